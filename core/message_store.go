package core

import "bytes"

// StoreConfig parameterizes the generic CRDT merge/prune/revoke engine
// shared by all six typed stores (§4.3). AddType/AddPostfix is always
// populated; RemoveType/RemovePostfix are zero for stores with no remove
// side (UserData, UsernameProof) or with a third compact-state postfix
// handled separately (Link).
type StoreConfig struct {
	AddType       MessageType
	RemoveType    MessageType
	AddPostfix    Postfix
	RemovePostfix Postfix
	BodyKey       bodyKeyFunc
	Limit         uint

	// LegacyBodyKey, if set, recomputes m's body key under a historical
	// encoding a pre-padding-fix writer could have produced (§4.1, §9).
	// Both Merge and the by-body-key read path probe it and migrate any
	// legacy-keyed winner to the canonical BodyKey encoding in place.
	LegacyBodyKey bodyKeyFunc
}

func (c StoreConfig) postfixForType(mt MessageType) Postfix {
	if mt == c.AddType {
		return c.AddPostfix
	}
	return c.RemovePostfix
}

// mergeEventType picks the HubEvent kind a successful merge of a message of
// type mt should emit. UsernameProof has a distinct, named kind (§6); every
// other type merges through the generic kind.
func (c StoreConfig) mergeEventType(mt MessageType) HubEventType {
	if mt == UsernameProofType {
		return HubEventMergeUsernameProof
	}
	return HubEventMergeMessage
}

// MessageStore is the generic LWW CRDT engine behind every typed store: it
// owns merge (with quota enforcement and cross-index maintenance), prune,
// revoke-by-signer, and the read paths. There is no teacher analogue for
// CRDT conflict resolution itself (the teacher's tokens are balance CRDTs,
// not LWW registers); the struct/method shape follows the teacher's
// mutex-guarded-map-plus-small-methods idiom (SYN721Token).
type MessageStore struct {
	db     KVStore
	cache  *StorageCache
	events *EventHandler
	trie   *SyncTrie
	cfg    StoreConfig
}

func NewMessageStore(db KVStore, cache *StorageCache, events *EventHandler, trie *SyncTrie, cfg StoreConfig) *MessageStore {
	return &MessageStore{db: db, cache: cache, events: events, trie: trie, cfg: cfg}
}

// Limit returns the configured quota for this store, or 0 if unbounded.
func (s *MessageStore) Limit() uint { return s.cfg.Limit }

// Warm rebuilds this store's quota counter, and its earliest-row marker,
// from the KV store at startup.
func (s *MessageStore) Warm(fid Fid) error {
	var n uint
	var earliest TsHash
	hasEarliest := false
	err := s.db.View(func(txn Txn) error {
		err := txn.Iterate(UserPrefix(fid, s.cfg.AddPostfix), false, func(k, v []byte) bool {
			if !hasEarliest {
				copy(earliest[:], k[len(k)-24:])
				hasEarliest = true
			}
			n++
			return true
		})
		if err != nil {
			return err
		}
		if s.cfg.RemovePostfix != 0 && s.cfg.RemovePostfix != s.cfg.AddPostfix {
			err = txn.Iterate(UserPrefix(fid, s.cfg.RemovePostfix), false, func(k, v []byte) bool { n++; return true })
		}
		return err
	})
	if err != nil {
		return err
	}
	s.cache.Set(fid, s.cfg.AddPostfix, n, earliest, hasEarliest)
	return nil
}

type winnerPtr struct {
	postfix Postfix
	ts      TsHash
}

func encodeWinnerPtr(p winnerPtr) []byte {
	out := make([]byte, 1+24)
	out[0] = byte(p.postfix)
	copy(out[1:], p.ts[:])
	return out
}

func decodeWinnerPtr(b []byte) winnerPtr {
	var ts TsHash
	copy(ts[:], b[1:25])
	return winnerPtr{postfix: Postfix(b[0]), ts: ts}
}

// Merge applies m under the CRDT total order. It returns applied=false
// without an error when m is a duplicate or loses to the current winner
// (§4.3 "merge is idempotent and monotone: replays and out-of-order
// delivery never change the converged result").
func (s *MessageStore) Merge(m *Message) (applied bool, err error) {
	bodyKey := s.cfg.BodyKey(m)
	idxKey := BodyKeyIndexKey(m.Fid, s.cfg.AddPostfix, bodyKey)
	newPostfix := s.cfg.postfixForType(m.Type)
	newTs := m.TsHash()

	var ev HubEvent
	var prunedVictim *Message
	err = s.db.Update(func(txn Txn) error {
		if s.cfg.LegacyBodyKey != nil {
			if legacy := s.cfg.LegacyBodyKey(m); !bytesCompareEqual(legacy, bodyKey) {
				if err := s.migrateLegacyBodyKeyRaw(txn, m.Fid, bodyKey, legacy); err != nil {
					return err
				}
			}
		}

		var old *Message
		var oldPtr winnerPtr
		hadWinner := false

		if raw, ok, err := txn.Get(idxKey); err != nil {
			return err
		} else if ok {
			oldPtr = decodeWinnerPtr(raw)
			oldRaw, found, err := txn.Get(UserKey(m.Fid, oldPtr.postfix, oldPtr.ts))
			if err != nil {
				return err
			}
			if found {
				old, err = decodeMessage(oldRaw)
				if err != nil {
					return err
				}
				hadWinner = true
			}
		}

		if hadWinner {
			if old.Hash == m.Hash {
				return nil // exact duplicate, not applied
			}
			if !compareMessages(m, old) {
				return nil // loses to current winner, not applied
			}
			if err := txn.Delete(UserKey(m.Fid, oldPtr.postfix, oldPtr.ts)); err != nil {
				return err
			}
			if err := txn.Delete(BySignerIndexKey(m.Fid, old.Signer, oldPtr.ts)); err != nil {
				return err
			}
			if s.trie != nil {
				oldSyncID := NewSyncId(oldPtr.ts, old.Type, old.Fid, old.Hash)
				if err := s.trie.Delete(txn, oldSyncID); err != nil {
					return err
				}
			}
		} else if s.cfg.Limit > 0 {
			count, err := s.cache.Count(m.Fid, s.cfg.AddPostfix)
			if err != nil {
				return err
			}
			if count >= s.cfg.Limit {
				victim, victimKey, err := s.findOldestAdd(txn, m.Fid)
				if err != nil {
					return err
				}
				// A full store only rejects a message older than its
				// current floor; a newer message evicts the floor and is
				// accepted, keeping the most recent Limit messages (§4.7).
				if victim != nil && !compareMessages(m, victim) {
					return NewError(ErrPrunable, nil, "store at capacity (%d/%d) for fid %d", count, s.cfg.Limit, m.Fid)
				}
				if victim != nil {
					if err := s.deleteRow(txn, m.Fid, victim, victimKey); err != nil {
						return err
					}
					prunedVictim = victim
				}
			}
		}

		if err := txn.Set(UserKey(m.Fid, newPostfix, newTs), encodeMessage(m)); err != nil {
			return err
		}
		if err := txn.Set(idxKey, encodeWinnerPtr(winnerPtr{newPostfix, newTs})); err != nil {
			return err
		}
		signerVal := append([]byte{byte(newPostfix)}, bodyKey...)
		if err := txn.Set(BySignerIndexKey(m.Fid, m.Signer, newTs), signerVal); err != nil {
			return err
		}
		if s.trie != nil {
			syncID := NewSyncId(newTs, m.Type, m.Fid, m.Hash)
			if err := s.trie.Insert(txn, syncID); err != nil {
				return err
			}
		}
		if newPostfix == s.cfg.AddPostfix {
			if floor, ok := s.cache.Earliest(m.Fid, s.cfg.AddPostfix); ok && bytes.Compare(newTs[:], floor[:]) < 0 {
				s.cache.SetEarliest(m.Fid, s.cfg.AddPostfix, newTs)
			}
		}

		if !hadWinner {
			if err := s.cache.Increment(m.Fid, s.cfg.AddPostfix); err != nil {
				return err
			}
		}

		if prunedVictim != nil {
			if _, err := s.events.Append(txn, HubEventPruneMessage, m.Fid, prunedVictim); err != nil {
				return err
			}
		}

		ev, err = s.events.Append(txn, s.cfg.mergeEventType(m.Type), m.Fid, m)
		applied = true
		return err
	})
	if err != nil {
		return false, err
	}
	if applied {
		s.events.Publish(ev)
	}
	return applied, nil
}

// GetByBodyKey returns the active Add-side message for bodyKey. If the
// current CRDT winner for bodyKey is a Remove tombstone, it reports
// not-found: callers asking "what's the add for this id" never want to see
// the record that deleted it back.
func (s *MessageStore) GetByBodyKey(fid Fid, bodyKey []byte) (*Message, bool, error) {
	var out *Message
	err := s.db.View(func(txn Txn) error {
		raw, ok, err := txn.Get(BodyKeyIndexKey(fid, s.cfg.AddPostfix, bodyKey))
		if err != nil || !ok {
			return err
		}
		ptr := decodeWinnerPtr(raw)
		mraw, found, err := txn.Get(UserKey(fid, ptr.postfix, ptr.ts))
		if err != nil || !found {
			return err
		}
		m, err := decodeMessage(mraw)
		if err != nil {
			return err
		}
		if m.Type != s.cfg.AddType {
			return nil
		}
		out = m
		return nil
	})
	return out, out != nil, err
}

// GetByBodyKeyChecked probes the canonical bodyKey and, on a miss, a legacy
// encoding of the same logical id (§4.1, §9). A legacy hit is migrated to
// the canonical key in place before being returned, so later reads never
// need to fall back again.
func (s *MessageStore) GetByBodyKeyChecked(fid Fid, bodyKey, legacyBodyKey []byte) (*Message, bool, error) {
	if m, found, err := s.GetByBodyKey(fid, bodyKey); err != nil || found {
		return m, found, err
	}
	if legacyBodyKey == nil || bytesCompareEqual(bodyKey, legacyBodyKey) {
		return nil, false, nil
	}
	m, found, err := s.GetByBodyKey(fid, legacyBodyKey)
	if err != nil || !found {
		return nil, false, err
	}
	err = s.db.Update(func(txn Txn) error {
		return s.migrateLegacyBodyKeyRaw(txn, fid, bodyKey, legacyBodyKey)
	})
	if err != nil {
		return nil, false, err
	}
	return m, true, nil
}

// migrateLegacyBodyKeyRaw rewrites a legacy-keyed winner pointer under the
// canonical body key, leaving the primary UserKey row untouched (only the
// index pointer moves). A no-op if the canonical slot is already populated
// or no legacy entry exists.
func (s *MessageStore) migrateLegacyBodyKeyRaw(txn Txn, fid Fid, bodyKey, legacyBodyKey []byte) error {
	canonicalIdx := BodyKeyIndexKey(fid, s.cfg.AddPostfix, bodyKey)
	if _, found, err := txn.Get(canonicalIdx); err != nil || found {
		return err
	}
	legacyIdx := BodyKeyIndexKey(fid, s.cfg.AddPostfix, legacyBodyKey)
	raw, found, err := txn.Get(legacyIdx)
	if err != nil || !found {
		return err
	}
	if err := txn.Set(canonicalIdx, raw); err != nil {
		return err
	}
	return txn.Delete(legacyIdx)
}

// GetByTsHash fetches the physical row for (fid, postfix, ts) directly,
// used by sync to resolve SyncIds discovered via the trie back into
// messages without going through the body-key winner index.
func (s *MessageStore) GetByTsHash(fid Fid, postfix Postfix, ts TsHash) (*Message, bool, error) {
	var out *Message
	err := s.db.View(func(txn Txn) error {
		raw, found, err := txn.Get(UserKey(fid, postfix, ts))
		if err != nil || !found {
			return err
		}
		out, err = decodeMessage(raw)
		return err
	})
	return out, out != nil, err
}

// GetAllMessagesByFid returns the active ("add" side) messages for fid,
// oldest-first, following the duck-typed PageOptions contract of §9.
func (s *MessageStore) GetAllMessagesByFid(fid Fid, opts PageOptions) (*Page, error) {
	opts = opts.normalized()
	page := &Page{}
	prefix := UserPrefix(fid, s.cfg.AddPostfix)
	err := s.db.View(func(txn Txn) error {
		started := len(opts.PageToken) == 0
		return txn.Iterate(prefix, opts.Reverse, func(key, value []byte) bool {
			if !started {
				if bytesCompareEqual(key, opts.PageToken) {
					started = true
				}
				return true
			}
			m, err := decodeMessage(value)
			if err != nil {
				return true
			}
			page.Messages = append(page.Messages, m)
			if len(page.Messages) >= opts.PageSize {
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

func bytesCompareEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// RevokeMessagesBySigner deletes every message this store holds for fid
// that was authored by signer (§8 cascading revocation), returning the
// count removed.
func (s *MessageStore) RevokeMessagesBySigner(fid Fid, signer Signer) (int, error) {
	count := 0
	err := s.db.Update(func(txn Txn) error {
		prefix := BySignerPrefix(fid, signer)
		var rows [][2][]byte
		if err := txn.Iterate(prefix, false, func(key, value []byte) bool {
			k := make([]byte, len(key))
			copy(k, key)
			v := make([]byte, len(value))
			copy(v, value)
			rows = append(rows, [2][]byte{k, v})
			return true
		}); err != nil {
			return err
		}
		for _, row := range rows {
			key, val := row[0], row[1]
			var ts TsHash
			copy(ts[:], key[len(key)-24:])
			postfix := Postfix(val[0])
			bodyKey := val[1:]
			if postfix != s.cfg.AddPostfix && postfix != s.cfg.RemovePostfix {
				continue // row belongs to another store sharing the by-signer index
			}

			raw, found, err := txn.Get(UserKey(fid, postfix, ts))
			if err != nil {
				return err
			}
			if !found {
				continue
			}
			m, err := decodeMessage(raw)
			if err != nil {
				return err
			}
			if err := txn.Delete(UserKey(fid, postfix, ts)); err != nil {
				return err
			}
			if err := txn.Delete(key); err != nil {
				return err
			}
			if err := txn.Delete(BodyKeyIndexKey(fid, s.cfg.AddPostfix, bodyKey)); err != nil {
				return err
			}
			if s.trie != nil {
				syncID := NewSyncId(ts, m.Type, m.Fid, m.Hash)
				if err := s.trie.Delete(txn, syncID); err != nil {
					return err
				}
			}
			if err := s.cache.Decrement(fid, s.cfg.AddPostfix); err != nil {
				return err
			}
			if _, err := s.events.Append(txn, HubEventRevokeMessage, fid, m); err != nil {
				return err
			}
			count++
		}
		return nil
	})
	return count, err
}

// findOldestAdd locates the earliest-by-TsHash row under fid's add postfix,
// preferring the cached earliest marker over a full prefix scan. Returns a
// nil victim if the store holds no add-side rows for fid.
func (s *MessageStore) findOldestAdd(txn Txn, fid Fid) (*Message, []byte, error) {
	if ts, ok := s.cache.Earliest(fid, s.cfg.AddPostfix); ok {
		key := UserKey(fid, s.cfg.AddPostfix, ts)
		raw, found, err := txn.Get(key)
		if err != nil {
			return nil, nil, err
		}
		if found {
			m, err := decodeMessage(raw)
			if err != nil {
				return nil, nil, err
			}
			return m, key, nil
		}
		// cached marker is stale (its row was already deleted); fall through
		// to a full scan below.
	}
	var victim *Message
	var victimKey []byte
	err := txn.Iterate(UserPrefix(fid, s.cfg.AddPostfix), false, func(key, value []byte) bool {
		m, err := decodeMessage(value)
		if err != nil {
			return true
		}
		victim = m
		victimKey = append([]byte(nil), key...)
		return false
	})
	if err != nil {
		return nil, nil, err
	}
	if victim != nil {
		var ts TsHash
		copy(ts[:], victimKey[len(victimKey)-24:])
		s.cache.SetEarliest(fid, s.cfg.AddPostfix, ts)
	}
	return victim, victimKey, nil
}

// deleteRow removes victim's primary row, its body-key and signer indexes,
// and its sync-trie entry, and decrements the quota counter, all within
// txn. Shared by Merge's capacity eviction and PruneMessages; the caller is
// responsible for appending the HubEvent.
func (s *MessageStore) deleteRow(txn Txn, fid Fid, victim *Message, victimKey []byte) error {
	var ts TsHash
	copy(ts[:], victimKey[len(victimKey)-24:])
	bodyKey := s.cfg.BodyKey(victim)
	if err := txn.Delete(victimKey); err != nil {
		return err
	}
	if err := txn.Delete(BodyKeyIndexKey(fid, s.cfg.AddPostfix, bodyKey)); err != nil {
		return err
	}
	if err := txn.Delete(BySignerIndexKey(fid, victim.Signer, ts)); err != nil {
		return err
	}
	if s.trie != nil {
		syncID := NewSyncId(ts, victim.Type, victim.Fid, victim.Hash)
		if err := s.trie.Delete(txn, syncID); err != nil {
			return err
		}
	}
	return s.cache.Decrement(fid, s.cfg.AddPostfix)
}

// PruneMessages removes the oldest-by-TsHash active messages for fid until
// at most limit remain, enforcing the storage quota (§4.7). Stores with no
// prunable concept (LinkCompactState) never call this. Each eviction is its
// own transaction, the same one-victim-per-commit shape Merge's own
// capacity eviction uses.
func (s *MessageStore) PruneMessages(fid Fid, limit uint) (int, error) {
	pruned := 0
	for {
		count, err := s.cache.Count(fid, s.cfg.AddPostfix)
		if err != nil {
			return pruned, err
		}
		if count <= limit {
			return pruned, nil
		}
		removed := false
		err = s.db.Update(func(txn Txn) error {
			victim, victimKey, err := s.findOldestAdd(txn, fid)
			if err != nil {
				return err
			}
			if victim == nil {
				return nil
			}
			if err := s.deleteRow(txn, fid, victim, victimKey); err != nil {
				return err
			}
			if _, err := s.events.Append(txn, HubEventPruneMessage, fid, victim); err != nil {
				return err
			}
			removed = true
			return nil
		})
		if err != nil {
			return pruned, err
		}
		if !removed {
			return pruned, nil
		}
		pruned++
	}
}
