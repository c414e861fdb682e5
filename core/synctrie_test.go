package core

import "testing"

func testSyncId(fid Fid, seed byte) SyncId {
	var hash MessageHash
	for i := range hash {
		hash[i] = seed + byte(i)
	}
	ts := NewTsHash(uint32(seed), hash)
	return NewSyncId(ts, CastAdd, fid, hash)
}

func TestSyncTrieInsertAndRootHash(t *testing.T) {
	db := NewInMemoryKV()
	trie := NewSyncTrie(db)

	if _, ok, err := trie.RootHash(); err != nil || ok {
		t.Fatalf("empty trie should have no root: ok=%v err=%v", ok, err)
	}

	ids := []SyncId{testSyncId(1, 10), testSyncId(1, 20), testSyncId(1, 30)}
	err := db.Update(func(txn Txn) error {
		for _, id := range ids {
			if err := trie.Insert(txn, id); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	hash, ok, err := trie.RootHash()
	if err != nil || !ok {
		t.Fatalf("expected a root hash after inserts: ok=%v err=%v", ok, err)
	}
	if hash == ([32]byte{}) {
		t.Fatalf("root hash should not be the zero value")
	}
}

// TestSyncTrieOrderIndependence checks that the resulting root hash does
// not depend on insertion order, a precondition for two Hubs that merged
// the same set of messages in different orders to agree on a root (§4.5).
func TestSyncTrieOrderIndependence(t *testing.T) {
	ids := []SyncId{testSyncId(2, 5), testSyncId(2, 77), testSyncId(2, 140), testSyncId(2, 201)}

	forward := NewInMemoryKV()
	forwardTrie := NewSyncTrie(forward)
	if err := forward.Update(func(txn Txn) error {
		for _, id := range ids {
			if err := forwardTrie.Insert(txn, id); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		t.Fatalf("forward insert: %v", err)
	}

	reverse := NewInMemoryKV()
	reverseTrie := NewSyncTrie(reverse)
	if err := reverse.Update(func(txn Txn) error {
		for i := len(ids) - 1; i >= 0; i-- {
			if err := reverseTrie.Insert(txn, ids[i]); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		t.Fatalf("reverse insert: %v", err)
	}

	fHash, _, err := forwardTrie.RootHash()
	if err != nil {
		t.Fatalf("forward root hash: %v", err)
	}
	rHash, _, err := reverseTrie.RootHash()
	if err != nil {
		t.Fatalf("reverse root hash: %v", err)
	}
	if fHash != rHash {
		t.Fatalf("root hash depends on insertion order: forward=%x reverse=%x", fHash, rHash)
	}
}

func TestSyncTrieDelete(t *testing.T) {
	db := NewInMemoryKV()
	trie := NewSyncTrie(db)
	id1 := testSyncId(3, 1)
	id2 := testSyncId(3, 2)

	if err := db.Update(func(txn Txn) error {
		if err := trie.Insert(txn, id1); err != nil {
			return err
		}
		return trie.Insert(txn, id2)
	}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	ids, err := trie.AllSyncIdsByPrefix(nil)
	if err != nil || len(ids) != 2 {
		t.Fatalf("expected 2 ids, got %d (err=%v)", len(ids), err)
	}

	if err := db.Update(func(txn Txn) error { return trie.Delete(txn, id1) }); err != nil {
		t.Fatalf("delete: %v", err)
	}

	ids, err = trie.AllSyncIdsByPrefix(nil)
	if err != nil || len(ids) != 1 || ids[0] != id2 {
		t.Fatalf("expected only id2 to remain, got %v (err=%v)", ids, err)
	}

	if err := db.Update(func(txn Txn) error { return trie.Delete(txn, id2) }); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, err := trie.RootHash(); err != nil || ok {
		t.Fatalf("trie should be empty after deleting every id: ok=%v err=%v", ok, err)
	}
}
