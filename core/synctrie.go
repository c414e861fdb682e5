package core

import "crypto/sha256"

// SyncTrie is a persistent Merkle prefix trie over SyncId, branching on
// one hex nibble (4 bits) per level — 70 levels over a 35-byte SyncId. A
// node's hash is the XOR of its 16 children's hashes, or sha256(leaf id)
// for a leaf (§4.5). There is no teacher analogue for a Merkle trie; node
// persistence follows the KVStore-backed-append idiom used elsewhere in
// this package.
//
// crypto/sha256 (not blake3) hashes trie nodes, keeping the sync-trie hash
// domain visibly distinct from the message-hash domain, the same
// multi-hash-function habit the teacher shows across its own subsystems.
type SyncTrie struct {
	db KVStore
}

func NewSyncTrie(db KVStore) *SyncTrie { return &SyncTrie{db: db} }

type trieNode struct {
	isLeaf   bool
	leafID   SyncId
	children [16][32]byte
	present  [16]bool
	count    uint64
}

func (n *trieNode) hash() [32]byte {
	if n.isLeaf {
		return sha256.Sum256(n.leafID[:])
	}
	var h [32]byte
	for i, present := range n.present {
		if !present {
			continue
		}
		for b := range h {
			h[b] ^= n.children[i][b]
		}
	}
	return h
}

func nibblesOf(id SyncId) []byte {
	out := make([]byte, 0, len(id)*2)
	for _, b := range id {
		out = append(out, b>>4, b&0x0F)
	}
	return out
}

func nibblePrefix(nibbles []byte, depth int) []byte {
	return nibbles[:depth]
}

func encodeTrieNode(n *trieNode) []byte {
	if n.isLeaf {
		out := make([]byte, 0, 1+len(n.leafID))
		out = append(out, 1)
		out = append(out, n.leafID[:]...)
		return out
	}
	out := make([]byte, 0, 1+8+16*(1+32))
	out = append(out, 0)
	out = appendUint64BE(out, n.count)
	for i := 0; i < 16; i++ {
		if n.present[i] {
			out = append(out, 1)
			out = append(out, n.children[i][:]...)
		} else {
			out = append(out, 0)
		}
	}
	return out
}

func decodeTrieNode(b []byte) *trieNode {
	n := &trieNode{}
	if b[0] == 1 {
		n.isLeaf = true
		copy(n.leafID[:], b[1:1+len(n.leafID)])
		return n
	}
	r := &reader{buf: b[1:]}
	n.count = r.uint64()
	for i := 0; i < 16; i++ {
		if r.byte1() == 1 {
			n.present[i] = true
			r.fixed(n.children[i][:])
		}
	}
	return n
}

func (t *SyncTrie) getNode(txn Txn, prefix []byte) (*trieNode, bool, error) {
	raw, ok, err := txn.Get(SyncTrieNodeKey(prefix))
	if err != nil || !ok {
		return nil, false, err
	}
	return decodeTrieNode(raw), true, nil
}

func (t *SyncTrie) putNode(txn Txn, prefix []byte, n *trieNode) error {
	return txn.Set(SyncTrieNodeKey(prefix), encodeTrieNode(n))
}

// Insert adds id to the trie, idempotent on re-insertion of the same id.
func (t *SyncTrie) Insert(txn Txn, id SyncId) error {
	nibbles := nibblesOf(id)
	_, err := t.insertAt(txn, nibbles, 0, id)
	return err
}

func (t *SyncTrie) insertAt(txn Txn, path []byte, depth int, id SyncId) ([32]byte, error) {
	prefix := nibblePrefix(path, depth)
	node, exists, err := t.getNode(txn, prefix)
	if err != nil {
		return [32]byte{}, err
	}
	if !exists {
		leaf := &trieNode{isLeaf: true, leafID: id}
		if err := t.putNode(txn, prefix, leaf); err != nil {
			return [32]byte{}, err
		}
		return leaf.hash(), nil
	}
	if node.isLeaf {
		if node.leafID == id {
			return node.hash(), nil // already present
		}
		existingPath := nibblesOf(node.leafID)
		internal := &trieNode{count: 1}
		if err := t.putNode(txn, prefix, internal); err != nil {
			return [32]byte{}, err
		}
		if _, err := t.insertAt(txn, existingPath, depth+1, node.leafID); err != nil {
			return [32]byte{}, err
		}
		if _, err := t.insertAt(txn, path, depth+1, id); err != nil {
			return [32]byte{}, err
		}
		return t.recompute(txn, prefix, depth)
	}
	if _, err := t.insertAt(txn, path, depth+1, id); err != nil {
		return [32]byte{}, err
	}
	return t.recompute(txn, prefix, depth)
}

// recompute reloads the internal node at prefix, refreshes its child hash
// slot from the just-written child, persists, and returns the new hash.
func (t *SyncTrie) recompute(txn Txn, prefix []byte, depth int) ([32]byte, error) {
	node, exists, err := t.getNode(txn, prefix)
	if err != nil {
		return [32]byte{}, err
	}
	if !exists || node.isLeaf {
		return [32]byte{}, NewError(ErrUnknown, nil, "synctrie: expected internal node at depth %d", depth)
	}
	for i := 0; i < 16; i++ {
		childPrefix := append(append([]byte{}, prefix...), byte(i))
		child, ok, err := t.getNode(txn, childPrefix)
		if err != nil {
			return [32]byte{}, err
		}
		if ok {
			node.children[i] = child.hash()
			node.present[i] = true
		} else {
			node.present[i] = false
		}
	}
	node.count = t.countLeaves(node)
	if err := t.putNode(txn, prefix, node); err != nil {
		return [32]byte{}, err
	}
	return node.hash(), nil
}

func (t *SyncTrie) countLeaves(n *trieNode) uint64 {
	var c uint64
	for _, p := range n.present {
		if p {
			c++
		}
	}
	return c
}

// Delete removes id from the trie if present.
func (t *SyncTrie) Delete(txn Txn, id SyncId) error {
	nibbles := nibblesOf(id)
	_, err := t.deleteAt(txn, nibbles, 0, id)
	return err
}

// deleteAt returns (stillExists, err): whether a node remains at prefix.
func (t *SyncTrie) deleteAt(txn Txn, path []byte, depth int, id SyncId) (bool, error) {
	prefix := nibblePrefix(path, depth)
	node, exists, err := t.getNode(txn, prefix)
	if err != nil || !exists {
		return false, err
	}
	if node.isLeaf {
		if node.leafID != id {
			return true, nil // different id at this slot, nothing to do
		}
		if err := txn.Delete(SyncTrieNodeKey(prefix)); err != nil {
			return false, err
		}
		return false, nil
	}
	if _, err := t.deleteAt(txn, path, depth+1, id); err != nil {
		return true, err
	}
	// Refresh this node's child slots from current KV state.
	anyChild := false
	for i := 0; i < 16; i++ {
		cp := append(append([]byte{}, prefix...), byte(i))
		child, ok, err := t.getNode(txn, cp)
		if err != nil {
			return true, err
		}
		if ok {
			node.children[i] = child.hash()
			node.present[i] = true
			anyChild = true
		} else {
			node.present[i] = false
		}
	}
	if !anyChild {
		if err := txn.Delete(SyncTrieNodeKey(prefix)); err != nil {
			return false, err
		}
		return false, nil
	}
	node.count = t.countLeaves(node)
	if err := t.putNode(txn, prefix, node); err != nil {
		return true, err
	}
	return true, nil
}

// RootHash returns the trie's current root hash, or false if empty.
func (t *SyncTrie) RootHash() ([32]byte, bool, error) {
	var h [32]byte
	var ok bool
	err := t.db.View(func(txn Txn) error {
		node, exists, err := t.getNode(txn, nil)
		if err != nil || !exists {
			return err
		}
		h, ok = node.hash(), true
		return nil
	})
	return h, ok, err
}

// NodeMetadata describes a single trie node for getSyncMetadataByPrefix.
type NodeMetadata struct {
	Prefix      []byte
	NumMessages uint64
	Hash        [32]byte
	Children    []byte // present child nibbles, ascending
}

func (t *SyncTrie) NodeMetadataAt(prefixNibbles []byte) (*NodeMetadata, bool, error) {
	var md *NodeMetadata
	err := t.db.View(func(txn Txn) error {
		node, exists, err := t.getNode(txn, prefixNibbles)
		if err != nil || !exists {
			return err
		}
		meta := &NodeMetadata{Prefix: prefixNibbles, Hash: node.hash()}
		if node.isLeaf {
			meta.NumMessages = 1
		} else {
			meta.NumMessages = node.count
			for i, present := range node.present {
				if present {
					meta.Children = append(meta.Children, byte(i))
				}
			}
		}
		md = meta
		return nil
	})
	return md, md != nil, err
}

// AllSyncIdsByPrefix enumerates every SyncId stored under prefixNibbles.
func (t *SyncTrie) AllSyncIdsByPrefix(prefixNibbles []byte) ([]SyncId, error) {
	var out []SyncId
	err := t.db.View(func(txn Txn) error {
		return t.collect(txn, prefixNibbles, &out)
	})
	return out, err
}

func (t *SyncTrie) collect(txn Txn, prefix []byte, out *[]SyncId) error {
	node, exists, err := t.getNode(txn, prefix)
	if err != nil || !exists {
		return err
	}
	if node.isLeaf {
		*out = append(*out, node.leafID)
		return nil
	}
	for i := 0; i < 16; i++ {
		if !node.present[i] {
			continue
		}
		if err := t.collect(txn, append(append([]byte{}, prefix...), byte(i)), out); err != nil {
			return err
		}
	}
	return nil
}
