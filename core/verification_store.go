package core

// VerificationStore merges VerificationAdd/VerificationRemove messages,
// keyed by the claimed external address (§4.3).
type VerificationStore struct{ *MessageStore }

func verificationBodyKey(m *Message) []byte {
	return m.Body.Verification.Address[:]
}

func NewVerificationStore(db KVStore, cache *StorageCache, events *EventHandler, trie *SyncTrie, limit uint) *VerificationStore {
	return &VerificationStore{NewMessageStore(db, cache, events, trie, StoreConfig{
		AddType:       VerificationAdd,
		RemoveType:    VerificationRemove,
		AddPostfix:    PostfixVerifications,
		RemovePostfix: PostfixVerifications,
		BodyKey:       verificationBodyKey,
		Limit:         limit,
	})}
}

func (s *VerificationStore) GetVerificationAdd(fid Fid, address [20]byte) (*Message, bool, error) {
	return s.GetByBodyKey(fid, address[:])
}
