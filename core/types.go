package core

import (
	"encoding/binary"
	"time"
)

// Fid is an on-chain issued identity number.
type Fid uint64

// MessageHash is a blake3-20 digest of a message's canonical body bytes.
type MessageHash [20]byte

// TsHash is the primary ordering key: 4-byte big-endian Farcaster-epoch
// seconds, followed by the full 20-byte MessageHash.
type TsHash [24]byte

// FarcasterEpoch is the reference point messages' timestamps are relative
// to (2021-01-01T00:00:00Z), matching the network's own epoch choice.
var FarcasterEpoch = time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)

// NewTsHash packs a Farcaster-epoch timestamp (seconds since FarcasterEpoch)
// and a message hash into their composite sort key.
func NewTsHash(timestamp uint32, hash MessageHash) TsHash {
	var ts TsHash
	binary.BigEndian.PutUint32(ts[:4], timestamp)
	copy(ts[4:], hash[:])
	return ts
}

func (t TsHash) Timestamp() uint32    { return binary.BigEndian.Uint32(t[:4]) }
func (t TsHash) Hash() MessageHash    { var h MessageHash; copy(h[:], t[4:]); return h }
func (t TsHash) Less(o TsHash) bool   { return bytesLess(t[:], o[:]) }
func (t TsHash) Equal(o TsHash) bool  { return t == o }

func bytesLess(a, b []byte) bool {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return len(a) < len(b)
}

// SyncId is the fixed-layout identifier used by the Merkle sync trie: a
// 10-byte TsHash prefix, a 1-byte message-type tag, the 4-byte fid, and the
// full 20-byte hash (10 + 1 + 4 + 20 = 35 bytes).
type SyncId [35]byte

// NewSyncId builds a SyncId from its constituent fields.
func NewSyncId(ts TsHash, mt MessageType, fid Fid, hash MessageHash) SyncId {
	var id SyncId
	copy(id[0:10], ts[:10])
	id[10] = byte(mt)
	binary.BigEndian.PutUint32(id[11:15], uint32(fid))
	copy(id[15:35], hash[:])
	return id
}

func (s SyncId) Type() MessageType { return MessageType(s[10]) }
func (s SyncId) Fid() Fid          { return Fid(binary.BigEndian.Uint32(s[11:15])) }
func (s SyncId) Hash() MessageHash { var h MessageHash; copy(h[:], s[15:35]); return h }

// MessageType enumerates the message families the engine merges.
type MessageType uint8

const (
	MessageTypeNone MessageType = iota
	CastAdd
	CastRemove
	ReactionAdd
	ReactionRemove
	LinkAdd
	LinkRemove
	LinkCompactState
	VerificationAdd
	VerificationRemove
	UserDataAdd
	UsernameProofType
)

// IsAdd reports whether mt is the "add" side of an LWW pair. Used by the
// total-order tie-break (ADD beats REMOVE on equal timestamp+hash).
func (mt MessageType) IsAdd() bool {
	switch mt {
	case CastAdd, ReactionAdd, LinkAdd, VerificationAdd, UserDataAdd:
		return true
	default:
		return false
	}
}

// HashScheme and SignatureScheme enumerate the cryptographic schemes a
// Message may declare.
type HashScheme uint8

const HashSchemeBlake3 HashScheme = 1

type SignatureScheme uint8

const (
	SignatureSchemeEd25519 SignatureScheme = 1
	SignatureSchemeEip712  SignatureScheme = 2
)

// Signer is either a 32-byte ed25519 public key or a 20-byte EOA address
// stored in the last 20 bytes of a zero-filled 32-byte slot so it can be used as a map/KV key
// without allocating a variable-width type.
type Signer [32]byte

// Address returns the low 20 bytes, the EIP-712/custody-address view.
func (s Signer) Address() [20]byte {
	var a [20]byte
	copy(a[:], s[12:])
	return a
}

// Ed25519Key returns the full 32-byte ed25519 public key view.
func (s Signer) Ed25519Key() [32]byte { return s }

// SignerFromAddress packs a 20-byte EOA address into a Signer slot.
func SignerFromAddress(a [20]byte) Signer {
	var s Signer
	copy(s[12:], a[:])
	return s
}

// SignerFromEd25519 packs a 32-byte ed25519 public key into a Signer slot.
func SignerFromEd25519(k [32]byte) Signer { return Signer(k) }

// Body is the type-specific payload union. Exactly one field is populated,
// selected by the owning Message's Type.
type Body struct {
	Cast           *CastBody
	Reaction       *ReactionBody
	Link           *LinkBody
	Verification   *VerificationBody
	UserData       *UserDataBody
	UsernameProof  *UsernameProofBody
}

type CastBody struct {
	Text              string
	Mentions          []Fid
	ParentCastHash    *MessageHash
	ParentCastFid     *Fid
	ParentURL         string
	Embeds            []string
	TargetHash        MessageHash // set on CastRemove: hash of the cast being removed
}

const ReactionTypeLike uint8 = 1
const ReactionTypeRecast uint8 = 2

type ReactionBody struct {
	Type           uint8
	TargetCastHash MessageHash
	TargetFid      Fid
}

type LinkBody struct {
	Type         string // <=8 byte ASCII, e.g. "follow"
	TargetFid    Fid
	DisplayTimestamp *uint32 // only set on LinkCompactState
}

type VerificationBody struct {
	Address        [20]byte
	ClaimSignature []byte
	BlockHash      [32]byte
	VerificationType uint8
}

const (
	UserDataTypePfp uint8 = iota + 1
	UserDataTypeDisplay
	UserDataTypeBio
	UserDataTypeURL
	UserDataTypeUsername
)

type UserDataBody struct {
	Type  uint8
	Value string
}

type UsernameProofBody struct {
	Name      string // <=20 bytes
	Owner     [20]byte
	Timestamp uint32
	Signature []byte
}

// Message is the logical record merged by a TypedStore.
type Message struct {
	Fid             Fid
	Network         string
	Timestamp       uint32 // seconds since FarcasterEpoch
	Type            MessageType
	Body            Body
	Hash            MessageHash
	HashScheme      HashScheme
	Signer          Signer
	Signature       []byte
	SignatureScheme SignatureScheme
}

func (m *Message) TsHash() TsHash { return NewTsHash(m.Timestamp, m.Hash) }

// OnChainEventType enumerates the three chain-event families the engine
// ingests (bypassing the validator).
type OnChainEventType uint8

const (
	IdRegister OnChainEventType = iota + 1
	SignerEvent
	StorageRent
)

const (
	IdRegisterOpRegister uint8 = iota
	IdRegisterOpTransfer
)

const (
	SignerOpAdd uint8 = iota
	SignerOpRemove
)

type OnChainEvent struct {
	Fid             Fid
	Type            OnChainEventType
	BlockNumber     uint64
	BlockHash       [32]byte
	TransactionHash [32]byte
	LogIndex        uint32

	IdRegisterBody *IdRegisterBody
	SignerBody     *SignerBody
	StorageBody    *StorageRentBody
}

type IdRegisterBody struct {
	Op   uint8 // register | transfer
	To   [20]byte
	From [20]byte // zero on initial register
}

type SignerBody struct {
	Op  uint8 // add | remove
	Key [32]byte
}

type StorageRentBody struct {
	Units     uint32
	ExpiresAt int64 // unix seconds
}

// PageOptions controls a single paginated read.
type PageOptions struct {
	PageToken []byte
	PageSize  int
	Reverse   bool
}

const (
	DefaultPageSize = 100
	MaxPageSize     = 1000
)

func (p PageOptions) normalized() PageOptions {
	if p.PageSize <= 0 {
		p.PageSize = DefaultPageSize
	}
	if p.PageSize > MaxPageSize {
		p.PageSize = MaxPageSize
	}
	return p
}

// Page is the result of a paginated read.
type Page struct {
	Messages      []*Message
	NextPageToken []byte
}
