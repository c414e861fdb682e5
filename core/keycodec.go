package core

import "encoding/binary"

// RootPrefix discriminates the top-level logical table a KV key belongs to.
// Every key in the database begins with exactly one of these bytes.
type RootPrefix byte

const (
	PrefixUser         RootPrefix = 0x01
	PrefixOnChainEvent RootPrefix = 0x02
	PrefixSyncTrieNode RootPrefix = 0x03
	PrefixHubEvent     RootPrefix = 0x04
	PrefixJobQueue     RootPrefix = 0x05
)

// Postfix discriminates the row kind within the User prefix: the primary
// message row for a type, or one of its secondary indices.
type Postfix byte

const (
	PostfixCastAdds             Postfix = 1
	PostfixCastRemoves          Postfix = 2
	PostfixLinkAdds             Postfix = 3
	PostfixLinkRemoves          Postfix = 4
	PostfixReactionAdds         Postfix = 5
	PostfixReactionRemoves      Postfix = 6
	PostfixVerifications        Postfix = 7
	PostfixUserData             Postfix = 8
	PostfixUsernameProofs       Postfix = 9
	PostfixLinkCompactState     Postfix = 10

	// Secondary index postfixes: body-key -> TsHash.
	PostfixCastsByParent    Postfix = 20
	PostfixCastsByMention   Postfix = 21
	PostfixLinksByTarget    Postfix = 22
	PostfixReactionsByTarget Postfix = 23
	PostfixByBodyKey        Postfix = 24 // generic (fid,type,bodyKey) -> tsHash index
	PostfixBySigner         Postfix = 25 // (fid,signer) -> tsHash, for RevokeBySigner
)

// TypeToSetPostfix maps a MessageType to the primary-row postfix that owns
// it (spec §4.4: "route to the store identified by typeToSetPostfix").
func TypeToSetPostfix(mt MessageType) Postfix {
	switch mt {
	case CastAdd:
		return PostfixCastAdds
	case CastRemove:
		return PostfixCastRemoves
	case LinkAdd:
		return PostfixLinkAdds
	case LinkRemove:
		return PostfixLinkRemoves
	case LinkCompactState:
		return PostfixLinkCompactState
	case ReactionAdd:
		return PostfixReactionAdds
	case ReactionRemove:
		return PostfixReactionRemoves
	case VerificationAdd, VerificationRemove:
		return PostfixVerifications
	case UserDataAdd:
		return PostfixUserData
	case UsernameProofType:
		return PostfixUsernameProofs
	default:
		return 0
	}
}

// Required fixed body-key widths per §4.1.
const (
	WidthLinkType         = 8
	WidthReactionType     = 1
	WidthUserDataType     = 1
	WidthVerificationAddr = 20
	WidthUsernameProofName = 20
)

// PadBodyKey right-zero-pads (or truncates) src to width, the canonical
// fixed-width body-key encoding mandated by §4.1.
func PadBodyKey(src []byte, width int) []byte {
	out := make([]byte, width)
	n := copy(out, src)
	_ = n
	return out
}

// CanonicalLinkTypeKey is the fixed-width, zero-padded link-type encoding
// every write after the §4.1 padding fix uses.
func CanonicalLinkTypeKey(linkType string) []byte { return PadBodyKey([]byte(linkType), WidthLinkType) }

// LegacyLinkTypeKey recreates the historical variable-width encoding a
// legacy writer could have produced for a link-type body key: the raw
// ASCII bytes with no padding (§9 "secondary-index padding bug"). Readers
// must probe both this and CanonicalLinkTypeKey, and any write path that
// lands on a legacy-keyed row must migrate it to canonical (§4.1).
func LegacyLinkTypeKey(linkType string) []byte { return []byte(linkType) }

// UserKey builds the canonical primary-row key:
// [User] || fid(4 BE) || postfix(1) || tsHash(24).
func UserKey(fid Fid, postfix Postfix, ts TsHash) []byte {
	key := make([]byte, 0, 1+4+1+24)
	key = append(key, byte(PrefixUser))
	key = appendFidBE(key, fid)
	key = append(key, byte(postfix))
	key = append(key, ts[:]...)
	return key
}

// UserPrefix builds a prefix matching every primary row for (fid, postfix),
// used for range scans (GetAllMessagesByFid, pruning, revoke-by-signer).
func UserPrefix(fid Fid, postfix Postfix) []byte {
	key := make([]byte, 0, 1+4+1)
	key = append(key, byte(PrefixUser))
	key = appendFidBE(key, fid)
	key = append(key, byte(postfix))
	return key
}

// BodyKeyIndexKey builds a secondary-index row key:
// [User] || fid(4 BE) || PostfixByBodyKey || setPostfix(1) || bodyKey(width) -> tsHash.
func BodyKeyIndexKey(fid Fid, setPostfix Postfix, bodyKey []byte) []byte {
	key := make([]byte, 0, 1+4+1+1+len(bodyKey))
	key = append(key, byte(PrefixUser))
	key = appendFidBE(key, fid)
	key = append(key, byte(PostfixByBodyKey))
	key = append(key, byte(setPostfix))
	key = append(key, bodyKey...)
	return key
}

// BySignerIndexKey builds the (fid, signer) -> tsHash index key used by
// RevokeBySigner to enumerate every message a signer authored for a fid.
func BySignerIndexKey(fid Fid, signer Signer, ts TsHash) []byte {
	key := make([]byte, 0, 1+4+1+32+24)
	key = append(key, byte(PrefixUser))
	key = appendFidBE(key, fid)
	key = append(key, byte(PostfixBySigner))
	key = append(key, signer[:]...)
	key = append(key, ts[:]...)
	return key
}

// BySignerPrefix builds a prefix matching every (fid, signer) index row.
func BySignerPrefix(fid Fid, signer Signer) []byte {
	key := make([]byte, 0, 1+4+1+32)
	key = append(key, byte(PrefixUser))
	key = appendFidBE(key, fid)
	key = append(key, byte(PostfixBySigner))
	key = append(key, signer[:]...)
	return key
}

// OnChainEventKey builds [OnChainEvent] || fid(4 BE) || type(1) || blockNumber(8 BE) || logIndex(4 BE).
func OnChainEventKey(fid Fid, typ OnChainEventType, blockNumber uint64, logIndex uint32) []byte {
	key := make([]byte, 0, 1+4+1+8+4)
	key = append(key, byte(PrefixOnChainEvent))
	key = appendFidBE(key, fid)
	key = append(key, byte(typ))
	key = appendUint64BE(key, blockNumber)
	key = appendUint32BE(key, logIndex)
	return key
}

// OnChainEventPrefix builds a prefix matching every event of typ for fid.
func OnChainEventPrefix(fid Fid, typ OnChainEventType) []byte {
	key := make([]byte, 0, 1+4+1)
	key = append(key, byte(PrefixOnChainEvent))
	key = appendFidBE(key, fid)
	key = append(key, byte(typ))
	return key
}

// OnChainEventFidPrefix matches every event for fid regardless of type.
func OnChainEventFidPrefix(fid Fid) []byte {
	key := make([]byte, 0, 1+4)
	key = append(key, byte(PrefixOnChainEvent))
	key = appendFidBE(key, fid)
	return key
}

// OnChainEventTxIndexKey dedups by (blockHash, txHash, logIndex).
func OnChainEventTxIndexKey(blockHash, txHash [32]byte, logIndex uint32) []byte {
	key := make([]byte, 0, 1+1+32+32+4)
	key = append(key, byte(PrefixOnChainEvent))
	key = append(key, 0xFF) // tx-index sub-table marker
	key = append(key, blockHash[:]...)
	key = append(key, txHash[:]...)
	key = appendUint32BE(key, logIndex)
	return key
}

// SyncTrieNodeKey builds the KV row key for a trie node at the given prefix
// of SyncId bytes.
func SyncTrieNodeKey(prefix []byte) []byte {
	key := make([]byte, 0, 1+len(prefix))
	key = append(key, byte(PrefixSyncTrieNode))
	key = append(key, prefix...)
	return key
}

// HubEventKey builds the append-only event-log row key, keyed by the
// monotonic event ID so range iteration yields commit order.
func HubEventKey(eventID uint64) []byte {
	key := make([]byte, 0, 1+8)
	key = append(key, byte(PrefixHubEvent))
	key = appendUint64BE(key, eventID)
	return key
}

// JobQueueKey builds a durable job-queue row key, keyed by monotonic
// sequence number so the queue drains in FIFO order across restarts.
func JobQueueKey(seq uint64) []byte {
	key := make([]byte, 0, 1+8)
	key = append(key, byte(PrefixJobQueue))
	key = appendUint64BE(key, seq)
	return key
}

func appendFidBE(b []byte, fid Fid) []byte {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], uint32(fid))
	return append(b, tmp[:]...)
}

func appendUint32BE(b []byte, v uint32) []byte {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	return append(b, tmp[:]...)
}

func appendUint64BE(b []byte, v uint64) []byte {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	return append(b, tmp[:]...)
}
