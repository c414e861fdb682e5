package core

import (
	"bytes"
	"sort"
	"sync"
)

// KVStore is the ordered, byte-keyed, transactional map the engine treats
// as its single embedded store. The concrete engine (badger/pebble/mdbx or
// similar) is an external collaborator per spec §1; this interface is the
// only surface the core depends on, and InMemoryKV below is a reference
// implementation used by tests and by the CLI's ephemeral run mode.
type KVStore interface {
	// Update runs fn inside a read-write transaction, committing on a nil
	// return and discarding all writes otherwise.
	Update(fn func(Txn) error) error
	// View runs fn inside a read-only transaction.
	View(fn func(Txn) error) error
}

// Txn is a single KV transaction: a byte-keyed map with ordered range
// iteration over a key prefix.
type Txn interface {
	Get(key []byte) ([]byte, bool, error)
	Set(key, value []byte) error
	Delete(key []byte) error
	// Iterate visits every key with the given prefix in ascending byte
	// order (descending if reverse is true), calling fn until it returns
	// false or keys are exhausted.
	Iterate(prefix []byte, reverse bool, fn func(key, value []byte) bool) error
}

// Iterator is a standalone cursor, used where a component wants to hold a
// read position across many calls rather than a single Iterate closure.
type Iterator interface {
	Next() bool
	Key() []byte
	Value() []byte
	Error() error
}

// InMemoryKV is a sorted-map-backed KVStore. Unlike the teacher's
// map-iteration-order PrefixIterator, this keeps keys sorted so range
// iteration is byte-ordered, matching the spec's invariant that the KV
// store supports ordered range iteration (needed for earliest-by-TsHash
// pruning and deterministic sync-trie enumeration).
type InMemoryKV struct {
	mu   sync.Mutex
	data map[string][]byte
	keys [][]byte // kept sorted
}

func NewInMemoryKV() *InMemoryKV {
	return &InMemoryKV{data: make(map[string][]byte)}
}

func (kv *InMemoryKV) Update(fn func(Txn) error) error {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	data := make(map[string][]byte, len(kv.data))
	for k, v := range kv.data {
		data[k] = v
	}
	keys := append([][]byte(nil), kv.keys...)
	txn := &memTxn{kv: kv}
	if err := fn(txn); err != nil {
		kv.data, kv.keys = data, keys
		return err
	}
	return nil
}

func (kv *InMemoryKV) View(fn func(Txn) error) error {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	txn := &memTxn{kv: kv, readOnly: true}
	return fn(txn)
}

type memTxn struct {
	kv       *InMemoryKV
	readOnly bool
}

func (t *memTxn) Get(key []byte) ([]byte, bool, error) {
	v, ok := t.kv.data[string(key)]
	if !ok {
		return nil, false, nil
	}
	cp := make([]byte, len(v))
	copy(cp, v)
	return cp, true, nil
}

func (t *memTxn) Set(key, value []byte) error {
	if t.readOnly {
		return NewError(ErrUnavailableStorage, nil, "write inside read-only transaction")
	}
	k := string(key)
	if _, exists := t.kv.data[k]; !exists {
		t.kv.insertKey(key)
	}
	cp := make([]byte, len(value))
	copy(cp, value)
	t.kv.data[k] = cp
	return nil
}

func (t *memTxn) Delete(key []byte) error {
	if t.readOnly {
		return NewError(ErrUnavailableStorage, nil, "delete inside read-only transaction")
	}
	k := string(key)
	if _, exists := t.kv.data[k]; exists {
		delete(t.kv.data, k)
		t.kv.removeKey(key)
	}
	return nil
}

func (t *memTxn) Iterate(prefix []byte, reverse bool, fn func(key, value []byte) bool) error {
	lo := sort.Search(len(t.kv.keys), func(i int) bool {
		return bytes.Compare(t.kv.keys[i], prefix) >= 0
	})
	if !reverse {
		for i := lo; i < len(t.kv.keys); i++ {
			k := t.kv.keys[i]
			if !bytes.HasPrefix(k, prefix) {
				break
			}
			if !fn(k, t.kv.data[string(k)]) {
				break
			}
		}
		return nil
	}
	hi := lo
	for hi < len(t.kv.keys) && bytes.HasPrefix(t.kv.keys[hi], prefix) {
		hi++
	}
	for i := hi - 1; i >= lo; i-- {
		k := t.kv.keys[i]
		if !fn(k, t.kv.data[string(k)]) {
			break
		}
	}
	return nil
}

func (kv *InMemoryKV) insertKey(key []byte) {
	cp := make([]byte, len(key))
	copy(cp, key)
	i := sort.Search(len(kv.keys), func(i int) bool { return bytes.Compare(kv.keys[i], cp) >= 0 })
	kv.keys = append(kv.keys, nil)
	copy(kv.keys[i+1:], kv.keys[i:])
	kv.keys[i] = cp
}

func (kv *InMemoryKV) removeKey(key []byte) {
	i := sort.Search(len(kv.keys), func(i int) bool { return bytes.Compare(kv.keys[i], key) >= 0 })
	if i < len(kv.keys) && bytes.Equal(kv.keys[i], key) {
		kv.keys = append(kv.keys[:i], kv.keys[i+1:]...)
	}
}
