package core

// CastStore merges CastAdd/CastRemove messages (§4.3).
type CastStore struct{ *MessageStore }

func castBodyKey(m *Message) []byte {
	if m.Type == CastAdd {
		return m.Hash[:]
	}
	return m.Body.Cast.TargetHash[:]
}

func NewCastStore(db KVStore, cache *StorageCache, events *EventHandler, trie *SyncTrie, limit uint) *CastStore {
	return &CastStore{NewMessageStore(db, cache, events, trie, StoreConfig{
		AddType:       CastAdd,
		RemoveType:    CastRemove,
		AddPostfix:    PostfixCastAdds,
		RemovePostfix: PostfixCastRemoves,
		BodyKey:       castBodyKey,
		Limit:         limit,
	})}
}

// GetCastAdd returns the active cast with the given hash, if any.
func (s *CastStore) GetCastAdd(fid Fid, hash MessageHash) (*Message, bool, error) {
	return s.GetByBodyKey(fid, hash[:])
}
