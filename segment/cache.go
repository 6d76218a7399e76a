package segment

import (
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/fpindex/fpindex/vfs"
)

// cacheKey identifies an open segment by the index it belongs to and its
// segment id, matching spec §4.3's "(index_name, segment_id)" cache key.
type cacheKey struct {
	indexName string
	segmentID ID
}

// refReader pairs an open Reader with a refcount so the cache can defer
// closing a segment's file handle until every borrower has released it
// (spec §9 "Cyclic lifetimes").
type refReader struct {
	mu     sync.Mutex
	reader *Reader
	refs   int
	closed bool
}

// Cache bounds the number of concurrently open segment Readers with an
// LRU policy, grounded on weaviate's use of hashicorp/golang-lru/v2 to
// cap resident content readers for its LSM segment tiers
// (adapters/repos/db/lsmkv/contentReader).
type Cache struct {
	mu    sync.Mutex
	inner *lru.Cache[cacheKey, *refReader]
	fs    func(indexName string) (vfs.FileSystem, bool)
}

// NewCache creates a segment cache with the given capacity (number of
// open segments). fsFor resolves an index name to its FileSystem.
func NewCache(capacity int, fsFor func(indexName string) (vfs.FileSystem, bool)) *Cache {
	c := &Cache{fs: fsFor}
	inner, err := lru.NewWithEvict[cacheKey, *refReader](capacity, c.onEvict)
	if err != nil {
		// Only returned for capacity <= 0; callers pass a static positive
		// constant, so this is unreachable in practice.
		panic(fmt.Sprintf("segment: invalid cache capacity %d: %v", capacity, err))
	}
	c.inner = inner
	return c
}

func (c *Cache) onEvict(_ cacheKey, rr *refReader) {
	rr.mu.Lock()
	defer rr.mu.Unlock()
	rr.closed = true
	if rr.refs == 0 {
		rr.reader.Close()
	}
	// If still referenced, the last Release call closes it instead.
}

// Acquire returns an open Reader for (indexName, info), opening it on a
// cache miss. The caller must call Release exactly once when done.
func (c *Cache) Acquire(indexName string, info Info) (*Reader, error) {
	key := cacheKey{indexName: indexName, segmentID: info.ID}

	c.mu.Lock()
	if rr, ok := c.inner.Get(key); ok {
		rr.mu.Lock()
		if !rr.closed {
			rr.refs++
			rr.mu.Unlock()
			c.mu.Unlock()
			return rr.reader, nil
		}
		rr.mu.Unlock()
	}
	c.mu.Unlock()

	fs, ok := c.fs(indexName)
	if !ok {
		return nil, fmt.Errorf("segment: unknown index %q", indexName)
	}
	reader, err := Open(fs, info)
	if err != nil {
		return nil, err
	}

	rr := &refReader{reader: reader, refs: 1}

	c.mu.Lock()
	c.inner.Add(key, rr)
	c.mu.Unlock()

	return reader, nil
}

// Release returns a borrowed Reader to the cache. Once refs reaches zero
// for a segment that has already been evicted (e.g. by Invalidate or LRU
// pressure), the underlying file handle is closed here.
func (c *Cache) Release(indexName string, info Info) {
	key := cacheKey{indexName: indexName, segmentID: info.ID}

	c.mu.Lock()
	rr, ok := c.inner.Peek(key)
	c.mu.Unlock()
	if !ok {
		return
	}

	rr.mu.Lock()
	rr.refs--
	shouldClose := rr.refs == 0 && rr.closed
	rr.mu.Unlock()

	if shouldClose {
		rr.reader.Close()
	}
}

// Invalidate evicts a segment from the cache, e.g. after it has been
// retired from the manifest by a merge. The underlying Reader is closed
// once its refcount drops to zero.
func (c *Cache) Invalidate(indexName string, id ID) {
	key := cacheKey{indexName: indexName, segmentID: id}
	c.mu.Lock()
	c.inner.Remove(key)
	c.mu.Unlock()
}
