package core

import (
	"encoding/binary"
	"sync"
)

// OnChainEventStore is the append-only on-chain event log plus the derived
// custody/signer/storage-unit views the rest of the engine consults. It
// bypasses the Validator entirely (§4.4 "the documented bypass") since
// these events arrive pre-verified by chain-event ingestion, an external
// collaborator per §1. Grounded on the teacher's Ledger (NewLedger/
// applyBlock/WAL-replay idiom in ledger.go), adapted from block-application
// to event-application: there is no undo, only forward append.
type OnChainEventStore struct {
	db     KVStore
	queue  *RevokeQueue
	events *EventHandler

	mu           sync.Mutex
	custody      map[Fid][20]byte
	signers      map[Fid]map[Signer]bool
	storageUnits map[Fid]uint32
}

func NewOnChainEventStore(db KVStore, queue *RevokeQueue, events *EventHandler) *OnChainEventStore {
	return &OnChainEventStore{
		db:           db,
		queue:        queue,
		events:       events,
		custody:      make(map[Fid][20]byte),
		signers:      make(map[Fid]map[Signer]bool),
		storageUnits: make(map[Fid]uint32),
	}
}

// Warm replays every persisted OnChainEvent for fid to rebuild derived
// state. Replay is ordered within each event type's own sub-range
// (blockNumber, logIndex ascending); cross-type ordering at identical
// block height is not reconstructed, since custody and signer state are
// independent derivations in the flat signer model (§9).
func (s *OnChainEventStore) Warm(fid Fid) error {
	for _, typ := range []OnChainEventType{IdRegister, SignerEvent, StorageRent} {
		err := s.db.View(func(txn Txn) error {
			return txn.Iterate(OnChainEventPrefix(fid, typ), false, func(key, value []byte) bool {
				ev, err := decodeOnChainEvent(value)
				if err != nil {
					return true
				}
				s.applyDerived(ev)
				return true
			})
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// IngestOnChainEvent persists ev (idempotent on (blockHash, txHash,
// logIndex) duplicates) and folds it into the derived views, enqueuing any
// cascading RevokeBySigner jobs the event requires.
func (s *OnChainEventStore) IngestOnChainEvent(ev OnChainEvent) error {
	var applied bool
	err := s.db.Update(func(txn Txn) error {
		idxKey := OnChainEventTxIndexKey(ev.BlockHash, ev.TransactionHash, ev.LogIndex)
		if _, found, err := txn.Get(idxKey); err != nil {
			return err
		} else if found {
			return nil // already ingested
		}
		if err := txn.Set(idxKey, []byte{1}); err != nil {
			return err
		}
		key := OnChainEventKey(ev.Fid, ev.Type, ev.BlockNumber, ev.LogIndex)
		if err := txn.Set(key, encodeOnChainEvent(&ev)); err != nil {
			return err
		}
		jobs := s.applyDerived(&ev)
		for _, j := range jobs {
			if err := s.queue.EnqueueTxn(txn, j); err != nil {
				return err
			}
		}
		if _, err := s.events.Append(txn, HubEventMergeOnChain, ev.Fid, &ev); err != nil {
			return err
		}
		applied = true
		return nil
	})
	_ = applied
	return err
}

// applyDerived folds ev into the in-memory custody/signer/storage views and
// returns any RevokeJobs the change requires. Caller holds no lock; this
// method takes s.mu itself.
func (s *OnChainEventStore) applyDerived(ev *OnChainEvent) []RevokeJob {
	s.mu.Lock()
	defer s.mu.Unlock()

	var jobs []RevokeJob
	switch ev.Type {
	case IdRegister:
		b := ev.IdRegisterBody
		if b.Op == IdRegisterOpTransfer {
			// Custody transfer invalidates every signer previously delegated
			// under the old custody address (flat signer model, §9: there are
			// no signer-added-by-signer edges, so the only re-derivation rule
			// is "new custody starts with zero active signers").
			for signer := range s.signers[ev.Fid] {
				jobs = append(jobs, RevokeJob{Fid: ev.Fid, Signer: signer})
			}
			s.signers[ev.Fid] = make(map[Signer]bool)
		}
		s.custody[ev.Fid] = b.To
	case SignerEvent:
		b := ev.SignerBody
		if s.signers[ev.Fid] == nil {
			s.signers[ev.Fid] = make(map[Signer]bool)
		}
		signer := SignerFromEd25519(b.Key)
		switch b.Op {
		case SignerOpAdd:
			s.signers[ev.Fid][signer] = true
		case SignerOpRemove:
			delete(s.signers[ev.Fid], signer)
			jobs = append(jobs, RevokeJob{Fid: ev.Fid, Signer: signer})
		}
	case StorageRent:
		b := ev.StorageBody
		s.storageUnits[ev.Fid] += b.Units
	}
	return jobs
}

func (s *OnChainEventStore) IsActiveSigner(fid Fid, signer Signer) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.signers[fid] != nil && s.signers[fid][signer]
}

func (s *OnChainEventStore) CustodyAddress(fid Fid) ([20]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.custody[fid]
	return a, ok
}

func (s *OnChainEventStore) StorageUnits(fid Fid) uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.storageUnits[fid]
}

// OnChainEventPage is the paginated-read result for the on-chain surface,
// carrying the full OnChainEvent rather than forcing it through the
// Message-shaped Page typed-store reads use (§6: event type, signer key,
// custody address, storage units, and block/tx identity must all survive
// the read, not just fid and a borrowed timestamp).
type OnChainEventPage struct {
	Events        []*OnChainEvent
	NextPageToken []byte
}

func (s *OnChainEventStore) GetEventsByFid(fid Fid, opts PageOptions) (*OnChainEventPage, error) {
	opts = opts.normalized()
	page := &OnChainEventPage{}
	err := s.db.View(func(txn Txn) error {
		started := len(opts.PageToken) == 0
		return txn.Iterate(OnChainEventFidPrefix(fid), opts.Reverse, func(key, value []byte) bool {
			if !started {
				if bytesCompareEqual(key, opts.PageToken) {
					started = true
				}
				return true
			}
			ev, err := decodeOnChainEvent(value)
			if err != nil {
				return true
			}
			page.Events = append(page.Events, ev)
			if len(page.Events) >= opts.PageSize {
				next := make([]byte, len(key))
				copy(next, key)
				page.NextPageToken = next
				return false
			}
			return true
		})
	})
	return page, err
}

func encodeOnChainEvent(ev *OnChainEvent) []byte {
	buf := make([]byte, 0, 96)
	buf = appendUint64BE(buf, uint64(ev.Fid))
	buf = append(buf, byte(ev.Type))
	buf = appendUint64BE(buf, ev.BlockNumber)
	buf = append(buf, ev.BlockHash[:]...)
	buf = append(buf, ev.TransactionHash[:]...)
	buf = appendUint32BE(buf, ev.LogIndex)
	switch ev.Type {
	case IdRegister:
		b := ev.IdRegisterBody
		buf = append(buf, b.Op)
		buf = append(buf, b.To[:]...)
		buf = append(buf, b.From[:]...)
	case SignerEvent:
		b := ev.SignerBody
		buf = append(buf, b.Op)
		buf = append(buf, b.Key[:]...)
	case StorageRent:
		b := ev.StorageBody
		buf = appendUint32BE(buf, b.Units)
		var exp [8]byte
		binary.BigEndian.PutUint64(exp[:], uint64(b.ExpiresAt))
		buf = append(buf, exp[:]...)
	}
	return buf
}

func decodeOnChainEvent(data []byte) (*OnChainEvent, error) {
	r := &reader{buf: data}
	ev := &OnChainEvent{}
	ev.Fid = Fid(r.uint64())
	ev.Type = OnChainEventType(r.byte1())
	ev.BlockNumber = r.uint64()
	r.fixed(ev.BlockHash[:])
	r.fixed(ev.TransactionHash[:])
	ev.LogIndex = r.uint32()
	switch ev.Type {
	case IdRegister:
		b := &IdRegisterBody{}
		b.Op = r.byte1()
		r.fixed(b.To[:])
		r.fixed(b.From[:])
		ev.IdRegisterBody = b
	case SignerEvent:
		b := &SignerBody{}
		b.Op = r.byte1()
		r.fixed(b.Key[:])
		ev.SignerBody = b
	case StorageRent:
		b := &StorageRentBody{}
		b.Units = r.uint32()
		b.ExpiresAt = int64(r.uint64())
		ev.StorageBody = b
	}
	if r.err != nil {
		return nil, r.err
	}
	return ev, nil
}
