package core

// ReactionStore merges ReactionAdd/ReactionRemove messages (§4.3). A
// reaction's identity is (type, target cast), so two different reaction
// types against the same cast are independent CRDT registers.
type ReactionStore struct{ *MessageStore }

func reactionBodyKey(m *Message) []byte {
	r := m.Body.Reaction
	key := make([]byte, 0, 1+20)
	key = append(key, r.Type)
	key = append(key, r.TargetCastHash[:]...)
	return key
}

func NewReactionStore(db KVStore, cache *StorageCache, events *EventHandler, trie *SyncTrie, limit uint) *ReactionStore {
	return &ReactionStore{NewMessageStore(db, cache, events, trie, StoreConfig{
		AddType:       ReactionAdd,
		RemoveType:    ReactionRemove,
		AddPostfix:    PostfixReactionAdds,
		RemovePostfix: PostfixReactionRemoves,
		BodyKey:       reactionBodyKey,
		Limit:         limit,
	})}
}

func (s *ReactionStore) GetReactionAdd(fid Fid, reactionType uint8, target MessageHash) (*Message, bool, error) {
	key := append([]byte{reactionType}, target[:]...)
	return s.GetByBodyKey(fid, key)
}
