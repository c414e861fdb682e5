package core

// UsernameProofStore merges UsernameProofType messages keyed by the
// claimed username; no remove side (§4.3) — a later proof for the same
// name supersedes the earlier one (the name changed owners or renewed).
type UsernameProofStore struct{ *MessageStore }

func usernameProofBodyKey(m *Message) []byte {
	return PadBodyKey([]byte(m.Body.UsernameProof.Name), WidthUsernameProofName)
}

func NewUsernameProofStore(db KVStore, cache *StorageCache, events *EventHandler, trie *SyncTrie, limit uint) *UsernameProofStore {
	return &UsernameProofStore{NewMessageStore(db, cache, events, trie, StoreConfig{
		AddType:    UsernameProofType,
		AddPostfix: PostfixUsernameProofs,
		BodyKey:    usernameProofBodyKey,
		Limit:      limit,
	})}
}

func (s *UsernameProofStore) GetUsernameProof(fid Fid, name string) (*Message, bool, error) {
	return s.GetByBodyKey(fid, PadBodyKey([]byte(name), WidthUsernameProofName))
}
