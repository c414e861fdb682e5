package core

import "testing"

func newCastStoreForTest(t *testing.T, limit uint) *CastStore {
	t.Helper()
	db := NewInMemoryKV()
	events, err := NewEventHandler(db)
	if err != nil {
		t.Fatalf("NewEventHandler: %v", err)
	}
	return NewCastStore(db, NewStorageCache(), events, NewSyncTrie(db), limit)
}

func TestCastStoreMergeIdempotent(t *testing.T) {
	store := newCastStoreForTest(t, 100)
	s := newTestSigner()
	m := testCastAdd(1, 1000, "hello", s)

	applied, err := store.Merge(m)
	if err != nil || !applied {
		t.Fatalf("first merge: applied=%v err=%v", applied, err)
	}
	applied, err = store.Merge(m)
	if err != nil {
		t.Fatalf("second merge: %v", err)
	}
	if applied {
		t.Fatalf("re-merging the identical message should not re-apply")
	}

	got, found, err := store.GetCastAdd(1, m.Hash)
	if err != nil || !found {
		t.Fatalf("GetCastAdd: found=%v err=%v", found, err)
	}
	if got.Body.Cast.Text != "hello" {
		t.Fatalf("unexpected text %q", got.Body.Cast.Text)
	}
}

// TestCastStoreConvergence checks that applying an Add then a Remove (or
// the reverse order) for the same logical cast converges to the same
// winner, matching the CRDT commutativity property (§8).
func TestCastStoreConvergence(t *testing.T) {
	s := newTestSigner()
	add := testCastAdd(7, 100, "hi", s)
	remove := testCastRemove(7, 200, add.Hash, s)

	addFirst := newCastStoreForTest(t, 100)
	if _, err := addFirst.Merge(add); err != nil {
		t.Fatalf("merge add: %v", err)
	}
	if _, err := addFirst.Merge(remove); err != nil {
		t.Fatalf("merge remove: %v", err)
	}

	removeFirst := newCastStoreForTest(t, 100)
	if _, err := removeFirst.Merge(remove); err != nil {
		t.Fatalf("merge remove: %v", err)
	}
	if _, err := removeFirst.Merge(add); err != nil {
		t.Fatalf("merge add: %v", err)
	}

	_, foundA, err := addFirst.GetCastAdd(7, add.Hash)
	if err != nil {
		t.Fatalf("GetCastAdd (add-first): %v", err)
	}
	_, foundB, err := removeFirst.GetCastAdd(7, add.Hash)
	if err != nil {
		t.Fatalf("GetCastAdd (remove-first): %v", err)
	}
	if foundA != foundB {
		t.Fatalf("convergence violated: add-first found=%v remove-first found=%v", foundA, foundB)
	}
	if foundA {
		t.Fatalf("remove has the later timestamp, it should have won")
	}
}

// TestCastStoreMergeEvictsOldestAtCapacity matches S5 of §4.7: submitting
// five CastAdds against a 3-message quota leaves only the three newest, each
// insertion past the limit evicting the current floor rather than being
// rejected outright.
func TestCastStoreMergeEvictsOldestAtCapacity(t *testing.T) {
	store := newCastStoreForTest(t, 3)
	s := newTestSigner()

	var msgs []*Message
	for i, text := range []string{"a", "b", "c", "d", "e"} {
		m := testCastAdd(42, uint32(1000+i), text, s)
		applied, err := store.Merge(m)
		if err != nil {
			t.Fatalf("merge %d: %v", i, err)
		}
		if !applied {
			t.Fatalf("merge %d: newer-than-floor message at capacity should be accepted", i)
		}
		msgs = append(msgs, m)
	}

	for i, m := range msgs[:2] {
		if _, found, err := store.GetCastAdd(42, m.Hash); err != nil || found {
			t.Fatalf("evicted cast %d should be gone: found=%v err=%v", i, found, err)
		}
	}
	for i, m := range msgs[2:] {
		if _, found, err := store.GetCastAdd(42, m.Hash); err != nil || !found {
			t.Fatalf("surviving cast %d should remain: found=%v err=%v", i, found, err)
		}
	}
}

// TestCastStoreMergeRejectsOlderThanFloorAtCapacity checks the other half
// of §4.7's rule: a full store still refuses a message older than its
// current floor instead of evicting a newer row to make room for it.
func TestCastStoreMergeRejectsOlderThanFloorAtCapacity(t *testing.T) {
	store := newCastStoreForTest(t, 2)
	s := newTestSigner()

	for i, text := range []string{"a", "b"} {
		m := testCastAdd(42, uint32(1000+i), text, s)
		if _, err := store.Merge(m); err != nil {
			t.Fatalf("merge %d: %v", i, err)
		}
	}

	older := testCastAdd(42, 500, "too old", s)
	applied, err := store.Merge(older)
	if applied {
		t.Fatalf("merge should have been rejected: message is older than the current floor")
	}
	if KindOf(err) != ErrPrunable {
		t.Fatalf("expected ErrPrunable, got %v", err)
	}
}

// TestCastStorePruneMessages checks that an explicit PruneMessages call
// (e.g. after a storage-unit downgrade lowers the quota) evicts the
// oldest-by-timestamp rows first, down to the new limit (§4.7).
func TestCastStorePruneMessages(t *testing.T) {
	store := newCastStoreForTest(t, 100)
	s := newTestSigner()

	var msgs []*Message
	for i, text := range []string{"a", "b", "c"} {
		m := testCastAdd(42, uint32(1000+i), text, s)
		if _, err := store.Merge(m); err != nil {
			t.Fatalf("merge %d: %v", i, err)
		}
		msgs = append(msgs, m)
	}

	pruned, err := store.PruneMessages(42, 2)
	if err != nil {
		t.Fatalf("PruneMessages: %v", err)
	}
	if pruned != 1 {
		t.Fatalf("expected 1 pruned message, got %d", pruned)
	}

	if _, found, err := store.GetCastAdd(42, msgs[0].Hash); err != nil || found {
		t.Fatalf("oldest cast should have been pruned: found=%v err=%v", found, err)
	}
	if _, found, err := store.GetCastAdd(42, msgs[2].Hash); err != nil || !found {
		t.Fatalf("newest cast should survive: found=%v err=%v", found, err)
	}
}

func TestCastStoreRevokeBySigner(t *testing.T) {
	store := newCastStoreForTest(t, 100)
	s1 := newTestSigner()
	s2 := newTestSigner()

	m1 := testCastAdd(5, 1000, "from s1", s1)
	m2 := testCastAdd(5, 1001, "from s2", s2)
	if _, err := store.Merge(m1); err != nil {
		t.Fatalf("merge m1: %v", err)
	}
	if _, err := store.Merge(m2); err != nil {
		t.Fatalf("merge m2: %v", err)
	}

	n, err := store.RevokeMessagesBySigner(5, s1.signer())
	if err != nil {
		t.Fatalf("RevokeMessagesBySigner: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 revoked message, got %d", n)
	}

	if _, found, err := store.GetCastAdd(5, m1.Hash); err != nil || found {
		t.Fatalf("m1 should be revoked: found=%v err=%v", found, err)
	}
	if _, found, err := store.GetCastAdd(5, m2.Hash); err != nil || !found {
		t.Fatalf("m2 should survive: found=%v err=%v", found, err)
	}
}
