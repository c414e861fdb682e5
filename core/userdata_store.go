package core

// UserDataStore merges UserDataAdd messages keyed by the userdata type
// slot (pfp, display, bio, url, username): there is no remove side, a new
// add for the same slot simply overwrites the old one under the CRDT
// total order (§4.3).
type UserDataStore struct{ *MessageStore }

func userDataBodyKey(m *Message) []byte {
	return []byte{m.Body.UserData.Type}
}

func NewUserDataStore(db KVStore, cache *StorageCache, events *EventHandler, trie *SyncTrie, limit uint) *UserDataStore {
	return &UserDataStore{NewMessageStore(db, cache, events, trie, StoreConfig{
		AddType:    UserDataAdd,
		AddPostfix: PostfixUserData,
		BodyKey:    userDataBodyKey,
		Limit:      limit,
	})}
}

func (s *UserDataStore) GetUserDataAdd(fid Fid, typ uint8) (*Message, bool, error) {
	return s.GetByBodyKey(fid, []byte{typ})
}
