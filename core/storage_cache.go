package core

import "sync"

// StorageCache is the only global mutable state in the engine (§9): an
// in-memory (fid, postfix) -> {count, earliest} map, never persisted.
// Engine.WarmFid rebuilds one fid's entries from the KV store by sweeping
// that fid's primary-row prefixes, the same sweep-on-init idiom the teacher
// uses to rebuild derived indices from a durable log rather than persisting
// the counts themselves.
//
// earliest tracks the TsHash of the oldest row last observed under the key,
// letting the quota check in MessageStore.Merge decide whether an incoming
// message is newer than the store's current floor without always paying for
// a fresh scan. A Decrement invalidates it, since the deleted row may have
// been the floor; the next caller that needs it re-derives it from the KV
// store (MessageStore.findOldestAdd already does this within its own txn).
type StorageCache struct {
	mu      sync.Mutex
	entries map[storageCacheKey]*storageCacheEntry
}

type storageCacheKey struct {
	fid     Fid
	postfix Postfix
}

type storageCacheEntry struct {
	count       uint
	earliest    TsHash
	hasEarliest bool
}

func NewStorageCache() *StorageCache {
	return &StorageCache{entries: make(map[storageCacheKey]*storageCacheEntry)}
}

func (c *StorageCache) entryLocked(fid Fid, postfix Postfix) *storageCacheEntry {
	key := storageCacheKey{fid, postfix}
	e, ok := c.entries[key]
	if !ok {
		e = &storageCacheEntry{}
		c.entries[key] = e
	}
	return e
}

// Warm rebuilds the count and earliest-row marker for (fid, postfix) by
// scanning the KV store. The engine does not call it: MessageStore.Warm
// runs its own sweep, counting add and remove rows into one bucket, and
// records the result with Set.
func (c *StorageCache) Warm(db KVStore, fid Fid, postfix Postfix) error {
	var n uint
	var earliest TsHash
	hasEarliest := false
	err := db.View(func(txn Txn) error {
		return txn.Iterate(UserPrefix(fid, postfix), false, func(key, value []byte) bool {
			if !hasEarliest {
				copy(earliest[:], key[len(key)-24:])
				hasEarliest = true
			}
			n++
			return true
		})
	})
	if err != nil {
		return err
	}
	c.Set(fid, postfix, n, earliest, hasEarliest)
	return nil
}

// Set overwrites the cached count and earliest-row marker for (fid,
// postfix), used by MessageStore.Warm when it sweeps add+remove rows
// together into a single quota bucket.
func (c *StorageCache) Set(fid Fid, postfix Postfix, count uint, earliest TsHash, hasEarliest bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.entryLocked(fid, postfix)
	e.count = count
	e.earliest = earliest
	e.hasEarliest = hasEarliest
}

func (c *StorageCache) Count(fid Fid, postfix Postfix) (uint, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entryLocked(fid, postfix).count, nil
}

func (c *StorageCache) Increment(fid Fid, postfix Postfix) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entryLocked(fid, postfix).count++
	return nil
}

func (c *StorageCache) Decrement(fid Fid, postfix Postfix) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.entryLocked(fid, postfix)
	if e.count > 0 {
		e.count--
	}
	e.hasEarliest = false
	return nil
}

// Earliest returns the cached earliest TsHash for (fid, postfix), if known.
func (c *StorageCache) Earliest(fid Fid, postfix Postfix) (TsHash, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.entryLocked(fid, postfix)
	return e.earliest, e.hasEarliest
}

// SetEarliest records ts as the known earliest row for (fid, postfix),
// e.g. once MessageStore.findOldestAdd resolves it from a fresh scan.
func (c *StorageCache) SetEarliest(fid Fid, postfix Postfix, ts TsHash) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.entryLocked(fid, postfix)
	e.earliest = ts
	e.hasEarliest = true
}
