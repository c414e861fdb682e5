package core

// LinkStore merges LinkAdd/LinkRemove messages keyed by (type, target fid),
// plus an independent LinkCompactState side keyed only by type — a single
// LWW register summarizing a fid's full target set for that link type,
// exempt from pruning (§9 open question, resolved: LinkCompactState rows
// are never pruned — they represent a bulk sync snapshot, not growth from
// user activity).
type LinkStore struct {
	*MessageStore
	compact *MessageStore
}

func linkAddKey(linkType string, target Fid) []byte {
	key := CanonicalLinkTypeKey(linkType)
	key = append(key, appendUint64BE(nil, uint64(target))...)
	return key
}

func legacyLinkAddKey(linkType string, target Fid) []byte {
	key := LegacyLinkTypeKey(linkType)
	key = append(key, appendUint64BE(nil, uint64(target))...)
	return key
}

func linkBodyKey(m *Message) []byte {
	return linkAddKey(m.Body.Link.Type, m.Body.Link.TargetFid)
}

func legacyLinkBodyKey(m *Message) []byte {
	return legacyLinkAddKey(m.Body.Link.Type, m.Body.Link.TargetFid)
}

func linkCompactBodyKey(m *Message) []byte {
	return CanonicalLinkTypeKey(m.Body.Link.Type)
}

func legacyLinkCompactBodyKey(m *Message) []byte {
	return LegacyLinkTypeKey(m.Body.Link.Type)
}

func NewLinkStore(db KVStore, cache *StorageCache, events *EventHandler, trie *SyncTrie, limit uint) *LinkStore {
	core := NewMessageStore(db, cache, events, trie, StoreConfig{
		AddType:       LinkAdd,
		RemoveType:    LinkRemove,
		AddPostfix:    PostfixLinkAdds,
		RemovePostfix: PostfixLinkRemoves,
		BodyKey:       linkBodyKey,
		LegacyBodyKey: legacyLinkBodyKey,
		Limit:         limit,
	})
	compact := NewMessageStore(db, cache, events, trie, StoreConfig{
		AddType:       LinkCompactState,
		AddPostfix:    PostfixLinkCompactState,
		BodyKey:       linkCompactBodyKey,
		LegacyBodyKey: legacyLinkCompactBodyKey,
		Limit:         0,
	})
	return &LinkStore{MessageStore: core, compact: compact}
}

// GetLinkAdd probes the canonical (type, target) key and, on a miss, the
// legacy unpadded-type encoding, migrating a legacy hit in place (§4.1, §9).
func (s *LinkStore) GetLinkAdd(fid Fid, linkType string, target Fid) (*Message, bool, error) {
	return s.GetByBodyKeyChecked(fid, linkAddKey(linkType, target), legacyLinkAddKey(linkType, target))
}

// MergeCompactState merges a LinkCompactState snapshot through the
// compact-state side store; callers never prune it (PruneMessages is not
// called against s.compact).
func (s *LinkStore) MergeCompactState(m *Message) (bool, error) {
	return s.compact.Merge(m)
}

// RevokeMessagesBySigner overrides the embedded store's method to also
// revoke the compact-state side, since a revoked signer's snapshot must be
// torn down along with their individual link rows.
func (s *LinkStore) RevokeMessagesBySigner(fid Fid, signer Signer) (int, error) {
	n1, err := s.MessageStore.RevokeMessagesBySigner(fid, signer)
	if err != nil {
		return n1, err
	}
	n2, err := s.compact.RevokeMessagesBySigner(fid, signer)
	return n1 + n2, err
}
