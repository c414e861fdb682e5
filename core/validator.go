package core

import (
	"context"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
)

const futureClockSkew = 10 * time.Minute

var validationOutcomes = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "hub_validation_outcomes_total",
		Help: "Validator results by outcome.",
	},
	[]string{"outcome"},
)

func init() {
	prometheus.MustRegister(validationOutcomes)
}

// ValidationRequest is a single validator job.
type ValidationRequest struct {
	ID      string
	Message *Message
}

// ValidationResult is delivered to the submitter once a request completes.
type ValidationResult struct {
	ID  string
	Err error
}

// Validator runs the pure, side-effect-free checks of §4.2 on a fixed-size
// worker pool and rejoins results by job id, per §9 ("request/response map
// keyed by monotonic job id; cancellation drops the entry, and a stray
// response is logged and discarded").
type Validator struct {
	Network string
	Signers SignerLookup

	jobs chan ValidationRequest

	mu      sync.Mutex
	nextID  uint64
	pending map[string]chan ValidationResult

	logger *log.Logger
}

// SignerLookup resolves whether a signer is currently authorized to sign
// for a fid, and what the fid's custody address is. The Validator keeps one
// in Signers but validate does not consult it; Engine.SubmitMessage applies
// the active-signer and custody-address rules (§4.4) against the
// OnChainEventStore directly.
type SignerLookup interface {
	IsActiveSigner(fid Fid, signer Signer) bool
	CustodyAddress(fid Fid) ([20]byte, bool)
}

// NewValidator starts a worker pool sized to GOMAXPROCS (override via
// workers > 0).
func NewValidator(network string, signers SignerLookup, workers int, logger *log.Logger) *Validator {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	v := &Validator{
		Network: network,
		Signers: signers,
		jobs:    make(chan ValidationRequest, workers*4),
		pending: make(map[string]chan ValidationResult),
		logger:  logger,
	}
	for i := 0; i < workers; i++ {
		go v.worker()
	}
	return v
}

func (v *Validator) worker() {
	for req := range v.jobs {
		err := v.validate(req.Message)
		v.mu.Lock()
		ch, ok := v.pending[req.ID]
		if ok {
			delete(v.pending, req.ID)
		}
		v.mu.Unlock()
		if !ok {
			v.logger.WithField("job_id", req.ID).Debug("validator: stray response discarded")
			continue
		}
		outcome := "ok"
		if err != nil {
			outcome = string(KindOf(err))
		}
		validationOutcomes.WithLabelValues(outcome).Inc()
		ch <- ValidationResult{ID: req.ID, Err: err}
	}
}

// Submit dispatches msg for asynchronous validation and blocks until a
// result is available or ctx is cancelled. Cancellation before dispatch
// completes drops the pending entry (§9); a worker finishing after
// cancellation simply finds no receiver and discards the result.
func (v *Validator) Submit(ctx context.Context, msg *Message) error {
	result := make(chan ValidationResult, 1)

	v.mu.Lock()
	v.nextID++
	id := strconv.FormatUint(v.nextID, 10)
	v.pending[id] = result
	v.mu.Unlock()

	select {
	case v.jobs <- ValidationRequest{ID: id, Message: msg}:
	case <-ctx.Done():
		v.mu.Lock()
		delete(v.pending, id)
		v.mu.Unlock()
		return ctx.Err()
	}

	select {
	case res := <-result:
		return res.Err
	case <-ctx.Done():
		v.mu.Lock()
		delete(v.pending, id)
		v.mu.Unlock()
		return ctx.Err()
	}
}

// validate runs the ordered checks of spec §4.2.
func (v *Validator) validate(m *Message) error {
	if m == nil {
		return NewError(ErrValidationFailure, nil, "message is nil")
	}
	if m.Network != v.Network {
		return NewError(ErrValidationFailure, nil, "network mismatch: got %q want %q", m.Network, v.Network)
	}
	if m.HashScheme != HashSchemeBlake3 {
		return NewError(ErrValidationFailure, nil, "unsupported hash scheme %d", m.HashScheme)
	}
	canonical := CanonicalizeBody(m.Fid, m.Network, m.Timestamp, m.Type, m.Body)
	if ComputeMessageHash(canonical) != m.Hash {
		return NewError(ErrValidationFailure, nil, "hash mismatch")
	}

	switch m.SignatureScheme {
	case SignatureSchemeEd25519:
		key := m.Signer.Ed25519Key()
		if !VerifyEd25519(key, m.Hash, m.Signature) {
			return NewError(ErrValidationFailure, nil, "ed25519 signature verification failed")
		}
	case SignatureSchemeEip712:
		addr, err := RecoverEip712Signer(messageEip712Domain, m.Hash, m.Signature)
		if err != nil {
			return NewError(ErrValidationFailure, err, "eip712 signature recovery failed")
		}
		if addr != m.Signer.Address() {
			return NewError(ErrValidationFailure, nil, "eip712 recovered address does not match signer")
		}
	default:
		return NewError(ErrValidationFailure, nil, "unsupported signature scheme %d", m.SignatureScheme)
	}

	if err := validateBody(m); err != nil {
		return err
	}

	nowFarcaster := uint32(time.Now().UTC().Sub(FarcasterEpoch).Seconds())
	skew := uint32(futureClockSkew.Seconds())
	if m.Timestamp > nowFarcaster+skew {
		return NewError(ErrValidationFailure, nil, "timestamp too far in the future")
	}
	return nil
}

func validateBody(m *Message) error {
	switch m.Type {
	case CastAdd:
		c := m.Body.Cast
		if c == nil {
			return NewError(ErrValidationFailure, nil, "cast add missing body")
		}
		if len(c.Text) > 320 {
			return NewError(ErrValidationFailure, nil, "cast text too long")
		}
		if len(c.ParentURL) > 256 {
			return NewError(ErrValidationFailure, nil, "parent URL too long")
		}
		for _, e := range c.Embeds {
			if len(e) > 256 {
				return NewError(ErrValidationFailure, nil, "embed URL too long")
			}
		}
	case ReactionAdd, ReactionRemove:
		r := m.Body.Reaction
		if r == nil || (r.Type != ReactionTypeLike && r.Type != ReactionTypeRecast) {
			return NewError(ErrValidationFailure, nil, "invalid reaction type")
		}
	case LinkAdd, LinkRemove, LinkCompactState:
		l := m.Body.Link
		if l == nil || len(l.Type) == 0 || len(l.Type) > WidthLinkType {
			return NewError(ErrValidationFailure, nil, "invalid link type")
		}
		if l.TargetFid == 0 {
			return NewError(ErrValidationFailure, nil, "target fid must be > 0")
		}
	case VerificationAdd, VerificationRemove:
		if m.Body.Verification == nil {
			return NewError(ErrValidationFailure, nil, "verification missing body")
		}
	case UserDataAdd:
		u := m.Body.UserData
		if u == nil || u.Type == 0 {
			return NewError(ErrValidationFailure, nil, "invalid userdata type")
		}
	case UsernameProofType:
		p := m.Body.UsernameProof
		if p == nil || len(p.Name) == 0 || len(p.Name) > WidthUsernameProofName {
			return NewError(ErrValidationFailure, nil, "invalid username proof name")
		}
	default:
		return NewError(ErrValidationFailure, nil, "unknown message type %d", m.Type)
	}
	return nil
}
