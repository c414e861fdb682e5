package core

import (
	"context"
	"encoding/binary"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

const fidWorkerIdleTTL = 5 * time.Minute

// Engine is the facade spec §4.4 describes: it routes a Message to the
// store identified by TypeToSetPostfix, applies the cross-store validation
// rules the per-type stores can't check on their own (is the signer
// currently active for this fid?), and serializes writes per fid.
//
// The per-fid queue is a map of job channels reaped when idle, generalizing
// the teacher's ConnPool (map[addr][]*pooledConn + reaper goroutine) from
// pooled connections to pooled per-fid serialization workers.
type Engine struct {
	db        KVStore
	network   string
	validator *Validator
	onchain   *OnChainEventStore
	revoke    *RevokeQueue
	events    *EventHandler
	trie      *SyncTrie
	cache     *StorageCache

	casts          *CastStore
	reactions      *ReactionStore
	links          *LinkStore
	verifications  *VerificationStore
	userData       *UserDataStore
	usernameProofs *UsernameProofStore

	logger *log.Logger

	mu      sync.Mutex
	workers map[Fid]*fidWorker
}

type fidWorker struct {
	jobs     chan func()
	lastUsed time.Time
}

// EngineConfig bundles the constructor knobs. DefaultLimits is applied to
// every fid's stores alike; it is not scaled per fid by that fid's storage
// units. cmd/hubd passes LimitsFor(0, FarcasterEpoch).
type EngineConfig struct {
	Network        string
	Workers        int
	DefaultLimits  StoreLimits
	Logger         *log.Logger
}

func NewEngine(db KVStore, cfg EngineConfig) (*Engine, error) {
	if cfg.Logger == nil {
		cfg.Logger = log.StandardLogger()
	}
	events, err := NewEventHandler(db)
	if err != nil {
		return nil, err
	}
	trie := NewSyncTrie(db)
	cache := NewStorageCache()
	revoke, err := NewRevokeQueue(db, cfg.Logger)
	if err != nil {
		return nil, err
	}
	onchain := NewOnChainEventStore(db, revoke, events)

	limits := cfg.DefaultLimits
	e := &Engine{
		db:             db,
		network:        cfg.Network,
		onchain:        onchain,
		revoke:         revoke,
		events:         events,
		trie:           trie,
		cache:          cache,
		casts:          NewCastStore(db, cache, events, trie, limits.Casts),
		reactions:      NewReactionStore(db, cache, events, trie, limits.Reactions),
		links:          NewLinkStore(db, cache, events, trie, limits.Links),
		verifications:  NewVerificationStore(db, cache, events, trie, limits.Verifications),
		userData:       NewUserDataStore(db, cache, events, trie, limits.UserData),
		usernameProofs: NewUsernameProofStore(db, cache, events, trie, limits.UsernameProofs),
		logger:         cfg.Logger,
		workers:        make(map[Fid]*fidWorker),
	}
	e.validator = NewValidator(cfg.Network, onchain, cfg.Workers, cfg.Logger)
	return e, nil
}

// RunRevokeQueue drains the durable RevokeBySigner queue until ctx is
// cancelled; callers run this as a background goroutine from cmd/hubd.
func (e *Engine) RunRevokeQueue(ctx context.Context) {
	e.revoke.Run(ctx, e.revokeSigner)
}

func (e *Engine) revokeSigner(job RevokeJob) error {
	stores := []interface {
		RevokeMessagesBySigner(Fid, Signer) (int, error)
	}{e.casts, e.reactions, e.links, e.verifications, e.userData, e.usernameProofs}
	var total int
	for _, s := range stores {
		n, err := s.RevokeMessagesBySigner(job.Fid, job.Signer)
		if err != nil {
			return err
		}
		total += n
	}
	e.logger.WithFields(log.Fields{"fid": job.Fid, "revoked": total}).Info("revoke queue: signer revoked")
	return nil
}

// SubmitMessage validates msg, confirms its signer is currently authorized
// for its fid, then merges it into the store matching its type — all
// serialized behind that fid's write queue (§5). An Ed25519-signed message
// must come from a currently active delegated signer; an Eip712-signed one
// must come from the fid's current custody address (the validator already
// confirmed the signature recovers to msg.Signer).
func (e *Engine) SubmitMessage(ctx context.Context, msg *Message) (bool, error) {
	if err := e.validator.Submit(ctx, msg); err != nil {
		return false, err
	}
	switch msg.SignatureScheme {
	case SignatureSchemeEd25519:
		if !e.onchain.IsActiveSigner(msg.Fid, msg.Signer) {
			return false, NewError(ErrUnauthorized, nil, "signer is not active for fid %d", msg.Fid)
		}
	case SignatureSchemeEip712:
		custody, ok := e.onchain.CustodyAddress(msg.Fid)
		if !ok || custody != msg.Signer.Address() {
			return false, NewError(ErrUnauthorized, nil, "signer is not the custody address for fid %d", msg.Fid)
		}
	}

	type result struct {
		applied bool
		err     error
	}
	done := make(chan result, 1)
	e.enqueue(msg.Fid, func() {
		applied, err := e.merge(msg)
		done <- result{applied, err}
	})

	select {
	case r := <-done:
		return r.applied, r.err
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

func (e *Engine) merge(msg *Message) (bool, error) {
	switch msg.Type {
	case CastAdd, CastRemove:
		return e.casts.Merge(msg)
	case ReactionAdd, ReactionRemove:
		return e.reactions.Merge(msg)
	case LinkAdd, LinkRemove:
		return e.links.Merge(msg)
	case LinkCompactState:
		return e.links.MergeCompactState(msg)
	case VerificationAdd, VerificationRemove:
		return e.verifications.Merge(msg)
	case UserDataAdd:
		return e.userData.Merge(msg)
	case UsernameProofType:
		return e.usernameProofs.Merge(msg)
	default:
		return false, NewError(ErrValidationFailure, nil, "unroutable message type %d", msg.Type)
	}
}

// IngestOnChainEvent bypasses the Validator entirely (§4.4) and is not
// serialized through the per-fid message queue, since on-chain events are
// already totally ordered by the chain itself.
func (e *Engine) IngestOnChainEvent(ev OnChainEvent) error {
	return e.onchain.IngestOnChainEvent(ev)
}

func (e *Engine) enqueue(fid Fid, job func()) {
	e.mu.Lock()
	w, ok := e.workers[fid]
	if !ok {
		w = &fidWorker{jobs: make(chan func(), 16)}
		e.workers[fid] = w
		go e.runWorker(fid, w)
	}
	w.lastUsed = time.Now()
	e.mu.Unlock()
	w.jobs <- job
}

func (e *Engine) runWorker(fid Fid, w *fidWorker) {
	for job := range w.jobs {
		job()
	}
}

// ReapIdleWorkers removes per-fid queues that have had no activity for
// fidWorkerIdleTTL; callers run this periodically (e.g. from a ticker
// alongside RunRevokeQueue).
func (e *Engine) ReapIdleWorkers() {
	e.mu.Lock()
	defer e.mu.Unlock()
	now := time.Now()
	for fid, w := range e.workers {
		if len(w.jobs) == 0 && now.Sub(w.lastUsed) > fidWorkerIdleTTL {
			close(w.jobs)
			delete(e.workers, fid)
		}
	}
}

func (e *Engine) Stores() (casts *CastStore, reactions *ReactionStore, links *LinkStore, verifications *VerificationStore, userData *UserDataStore, usernameProofs *UsernameProofStore) {
	return e.casts, e.reactions, e.links, e.verifications, e.userData, e.usernameProofs
}

func (e *Engine) OnChainEvents() *OnChainEventStore { return e.onchain }
func (e *Engine) Events() *EventHandler             { return e.events }
func (e *Engine) SyncTrie() *SyncTrie               { return e.trie }

// storeForType returns the MessageStore backing mt's primary rows, used by
// sync to resolve a SyncId's embedded type back to the store that owns it.
func (e *Engine) storeForType(mt MessageType) *MessageStore {
	switch mt {
	case CastAdd, CastRemove:
		return e.casts.MessageStore
	case ReactionAdd, ReactionRemove:
		return e.reactions.MessageStore
	case LinkAdd, LinkRemove:
		return e.links.MessageStore
	case LinkCompactState:
		return e.links.compact
	case VerificationAdd, VerificationRemove:
		return e.verifications.MessageStore
	case UserDataAdd:
		return e.userData.MessageStore
	case UsernameProofType:
		return e.usernameProofs.MessageStore
	default:
		return nil
	}
}

// GetAllMessagesBySyncIds resolves the SyncIds discovered by comparing two
// peers' sync tries back into full messages (§6 getAllMessagesBySyncIds).
// A SyncId with no backing row (already pruned or revoked since it was
// indexed) is silently skipped rather than failing the whole batch.
func (e *Engine) GetAllMessagesBySyncIds(ids []SyncId) ([]*Message, error) {
	out := make([]*Message, 0, len(ids))
	for _, id := range ids {
		store := e.storeForType(id.Type())
		if store == nil {
			continue
		}
		ts := NewTsHash(binary.BigEndian.Uint32(id[0:4]), id.Hash())
		postfix := TypeToSetPostfix(id.Type())
		m, found, err := store.GetByTsHash(id.Fid(), postfix, ts)
		if err != nil {
			return nil, err
		}
		if found {
			out = append(out, m)
		}
	}
	return out, nil
}

// WarmFid rebuilds every store's in-memory quota counter and the on-chain
// derived views for fid from the KV store (§9: StorageCache is rebuilt from
// the durable log, never itself persisted). cmd/hubd does not call it, since
// start always runs on a fresh in-memory store.
func (e *Engine) WarmFid(fid Fid) error {
	warmers := []*MessageStore{
		e.casts.MessageStore, e.reactions.MessageStore, e.links.MessageStore, e.links.compact,
		e.verifications.MessageStore, e.userData.MessageStore, e.usernameProofs.MessageStore,
	}
	for _, w := range warmers {
		if err := w.Warm(fid); err != nil {
			return err
		}
	}
	// A store found over its configured quota at warm time (e.g. a software
	// upgrade lowered the default allotment) is swept down to it immediately
	// rather than waiting on the next Merge to happen to evict (§4.7).
	for _, w := range warmers {
		if w.Limit() == 0 {
			continue
		}
		if _, err := w.PruneMessages(fid, w.Limit()); err != nil {
			return err
		}
	}
	return e.onchain.Warm(fid)
}
