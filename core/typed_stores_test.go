package core

import "testing"

func newReactionStoreForTest(t *testing.T, limit uint) *ReactionStore {
	t.Helper()
	db := NewInMemoryKV()
	events, err := NewEventHandler(db)
	if err != nil {
		t.Fatalf("NewEventHandler: %v", err)
	}
	return NewReactionStore(db, NewStorageCache(), events, NewSyncTrie(db), limit)
}

func newLinkStoreForTest(t *testing.T, limit uint) *LinkStore {
	t.Helper()
	db := NewInMemoryKV()
	events, err := NewEventHandler(db)
	if err != nil {
		t.Fatalf("NewEventHandler: %v", err)
	}
	return NewLinkStore(db, NewStorageCache(), events, NewSyncTrie(db), limit)
}

func newVerificationStoreForTest(t *testing.T, limit uint) *VerificationStore {
	t.Helper()
	db := NewInMemoryKV()
	events, err := NewEventHandler(db)
	if err != nil {
		t.Fatalf("NewEventHandler: %v", err)
	}
	return NewVerificationStore(db, NewStorageCache(), events, NewSyncTrie(db), limit)
}

func newUserDataStoreForTest(t *testing.T, limit uint) *UserDataStore {
	t.Helper()
	db := NewInMemoryKV()
	events, err := NewEventHandler(db)
	if err != nil {
		t.Fatalf("NewEventHandler: %v", err)
	}
	return NewUserDataStore(db, NewStorageCache(), events, NewSyncTrie(db), limit)
}

func newUsernameProofStoreForTest(t *testing.T, limit uint) *UsernameProofStore {
	t.Helper()
	db := NewInMemoryKV()
	events, err := NewEventHandler(db)
	if err != nil {
		t.Fatalf("NewEventHandler: %v", err)
	}
	return NewUsernameProofStore(db, NewStorageCache(), events, NewSyncTrie(db), limit)
}

func testReactionAdd(fid Fid, ts uint32, target MessageHash, s testSigner) *Message {
	body := Body{Reaction: &ReactionBody{Type: ReactionTypeLike, TargetCastHash: target}}
	return newTestMessage(fid, "hub-test", ts, ReactionAdd, body, s)
}

func testReactionRemove(fid Fid, ts uint32, target MessageHash, s testSigner) *Message {
	body := Body{Reaction: &ReactionBody{Type: ReactionTypeLike, TargetCastHash: target}}
	return newTestMessage(fid, "hub-test", ts, ReactionRemove, body, s)
}

func testLinkAdd(fid Fid, ts uint32, linkType string, target Fid, s testSigner) *Message {
	body := Body{Link: &LinkBody{Type: linkType, TargetFid: target}}
	return newTestMessage(fid, "hub-test", ts, LinkAdd, body, s)
}

func testLinkRemove(fid Fid, ts uint32, linkType string, target Fid, s testSigner) *Message {
	body := Body{Link: &LinkBody{Type: linkType, TargetFid: target}}
	return newTestMessage(fid, "hub-test", ts, LinkRemove, body, s)
}

func testLinkCompactState(fid Fid, ts uint32, linkType string, s testSigner) *Message {
	body := Body{Link: &LinkBody{Type: linkType}}
	return newTestMessage(fid, "hub-test", ts, LinkCompactState, body, s)
}

func testVerificationAdd(fid Fid, ts uint32, addr [20]byte, s testSigner) *Message {
	body := Body{Verification: &VerificationBody{Address: addr}}
	return newTestMessage(fid, "hub-test", ts, VerificationAdd, body, s)
}

func testUserDataAdd(fid Fid, ts uint32, typ uint8, value string, s testSigner) *Message {
	body := Body{UserData: &UserDataBody{Type: typ, Value: value}}
	return newTestMessage(fid, "hub-test", ts, UserDataAdd, body, s)
}

func testUsernameProof(fid Fid, ts uint32, name string, s testSigner) *Message {
	body := Body{UsernameProof: &UsernameProofBody{Name: name, Timestamp: ts}}
	return newTestMessage(fid, "hub-test", ts, UsernameProofType, body, s)
}

func TestReactionStoreConvergence(t *testing.T) {
	s := newTestSigner()
	var target MessageHash
	target[0] = 9
	add := testReactionAdd(1, 100, target, s)
	remove := testReactionRemove(1, 200, target, s)

	store := newReactionStoreForTest(t, 100)
	if _, err := store.Merge(add); err != nil {
		t.Fatalf("merge add: %v", err)
	}
	if _, err := store.Merge(remove); err != nil {
		t.Fatalf("merge remove: %v", err)
	}
	if _, found, err := store.GetReactionAdd(1, ReactionTypeLike, target); err != nil || found {
		t.Fatalf("later remove should win: found=%v err=%v", found, err)
	}
}

func TestLinkStoreAddRemoveAndCompactState(t *testing.T) {
	store := newLinkStoreForTest(t, 100)
	s := newTestSigner()

	add := testLinkAdd(1, 100, "follow", 42, s)
	if _, err := store.Merge(add); err != nil {
		t.Fatalf("merge add: %v", err)
	}
	got, found, err := store.GetLinkAdd(1, "follow", 42)
	if err != nil || !found {
		t.Fatalf("GetLinkAdd: found=%v err=%v", found, err)
	}
	if got.Body.Link.TargetFid != 42 {
		t.Fatalf("unexpected target fid %d", got.Body.Link.TargetFid)
	}

	compact := testLinkCompactState(1, 150, "follow", s)
	applied, err := store.MergeCompactState(compact)
	if err != nil || !applied {
		t.Fatalf("MergeCompactState: applied=%v err=%v", applied, err)
	}

	remove := testLinkRemove(1, 200, "follow", 42, s)
	if _, err := store.Merge(remove); err != nil {
		t.Fatalf("merge remove: %v", err)
	}
	if _, found, err := store.GetLinkAdd(1, "follow", 42); err != nil || found {
		t.Fatalf("link should be removed: found=%v err=%v", found, err)
	}
}

// TestLinkStoreRevokeAlsoTearsDownCompactState checks that revoking a
// signer removes both their individual link rows and their compact-state
// snapshot, since LinkStore overrides RevokeMessagesBySigner for this.
func TestLinkStoreRevokeAlsoTearsDownCompactState(t *testing.T) {
	store := newLinkStoreForTest(t, 100)
	s := newTestSigner()

	if _, err := store.Merge(testLinkAdd(1, 100, "follow", 42, s)); err != nil {
		t.Fatalf("merge add: %v", err)
	}
	if _, err := store.MergeCompactState(testLinkCompactState(1, 150, "follow", s)); err != nil {
		t.Fatalf("merge compact state: %v", err)
	}

	n, err := store.RevokeMessagesBySigner(1, s.signer())
	if err != nil {
		t.Fatalf("RevokeMessagesBySigner: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected both the link row and compact state revoked, got %d", n)
	}
}

func TestVerificationStoreMergeAndGet(t *testing.T) {
	store := newVerificationStoreForTest(t, 100)
	s := newTestSigner()
	var addr [20]byte
	addr[0] = 0xCD

	add := testVerificationAdd(1, 100, addr, s)
	if _, err := store.Merge(add); err != nil {
		t.Fatalf("merge: %v", err)
	}
	got, found, err := store.GetVerificationAdd(1, addr)
	if err != nil || !found {
		t.Fatalf("GetVerificationAdd: found=%v err=%v", found, err)
	}
	if got.Body.Verification.Address != addr {
		t.Fatalf("unexpected address %x", got.Body.Verification.Address)
	}
}

func TestUserDataStoreLaterAddOverwrites(t *testing.T) {
	store := newUserDataStoreForTest(t, 100)
	s := newTestSigner()

	first := testUserDataAdd(1, 100, UserDataTypeBio, "old bio", s)
	second := testUserDataAdd(1, 200, UserDataTypeBio, "new bio", s)
	if _, err := store.Merge(first); err != nil {
		t.Fatalf("merge first: %v", err)
	}
	if _, err := store.Merge(second); err != nil {
		t.Fatalf("merge second: %v", err)
	}
	got, found, err := store.GetUserDataAdd(1, UserDataTypeBio)
	if err != nil || !found {
		t.Fatalf("GetUserDataAdd: found=%v err=%v", found, err)
	}
	if got.Body.UserData.Value != "new bio" {
		t.Fatalf("expected the later add to win, got %q", got.Body.UserData.Value)
	}
}

func TestUsernameProofStoreLaterProofOverwrites(t *testing.T) {
	store := newUsernameProofStoreForTest(t, 100)
	s := newTestSigner()

	first := testUsernameProof(1, 100, "alice", s)
	second := testUsernameProof(1, 200, "alice", s)
	if _, err := store.Merge(first); err != nil {
		t.Fatalf("merge first: %v", err)
	}
	if _, err := store.Merge(second); err != nil {
		t.Fatalf("merge second: %v", err)
	}
	got, found, err := store.GetUsernameProof(1, "alice")
	if err != nil || !found {
		t.Fatalf("GetUsernameProof: found=%v err=%v", found, err)
	}
	if got.Timestamp != 200 {
		t.Fatalf("expected the later proof to win, got timestamp %d", got.Timestamp)
	}
}
