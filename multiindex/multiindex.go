// Package multiindex implements the MultiIndex (C8) from spec §4.8: a
// name -> engine.Index registry, backed by one vfs.FileSystem
// subdirectory per index and a segment.Cache shared across all of them.
// Grounded on the teacher's index/server package, which wires a single
// *index.DB into an http.Handler; here that single-index assumption is
// generalized into a registry, since nothing in the teacher's pack
// manages more than one index at a time.
package multiindex

import (
	stderrors "errors"
	"regexp"
	"sort"
	"sync"

	"github.com/pkg/errors"

	"github.com/fpindex/fpindex/engine"
	"github.com/fpindex/fpindex/ferrors"
	"github.com/fpindex/fpindex/segment"
	"github.com/fpindex/fpindex/vfs"
)

// nameRE is the allowed index name syntax (spec §4.8).
var nameRE = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ValidateName reports an error if name is not a legal index name.
func ValidateName(name string) error {
	if !nameRE.MatchString(name) {
		return ferrors.InvalidArgument("index name must match [A-Za-z0-9_-]+")
	}
	return nil
}

// Opener creates, opens, removes, and lists the vfs.FileSystem backing
// each named index's subdirectory, abstracting over the disk and
// in-memory vfs backends (spec §4.1's two Directory implementations).
type Opener interface {
	Open(name string, create bool) (vfs.FileSystem, error)
	Remove(name string) error
	List() ([]string, error)
}

// MultiIndex is a name -> engine.Index registry (spec §4.8).
type MultiIndex struct {
	mu      sync.Mutex
	opener  Opener
	cache   *segment.Cache
	indexes map[string]*engine.Index
	closed  bool
}

// Open loads every index already present under opener and returns a
// MultiIndex ready to serve them, sharing one segment.Cache across all
// indexes (spec §4.3's cache key is already namespaced by index name).
func Open(opener Opener) (*MultiIndex, error) {
	mi := &MultiIndex{
		opener:  opener,
		indexes: make(map[string]*engine.Index),
	}
	mi.cache = segment.NewCache(256, mi.resolveFS)

	names, err := opener.List()
	if err != nil {
		return nil, errors.Wrap(err, "multiindex: listing existing indexes failed")
	}
	for _, name := range names {
		fs, err := opener.Open(name, false)
		if err != nil {
			return nil, errors.Wrapf(err, "multiindex: opening existing index %q failed", name)
		}
		idx, err := engine.Open(fs, name, engine.WithSegmentCache(mi.cache))
		if err != nil {
			return nil, errors.Wrapf(err, "multiindex: loading existing index %q failed", name)
		}
		mi.indexes[name] = idx
	}

	return mi, nil
}

// resolveFS is the segment.Cache's fsFor callback: it returns the
// FileSystem for an already-open index without touching the opener, so
// cache misses never allocate a new directory handle for a name that
// isn't registered.
func (mi *MultiIndex) resolveFS(name string) (vfs.FileSystem, bool) {
	mi.mu.Lock()
	idx, ok := mi.indexes[name]
	mi.mu.Unlock()
	if !ok {
		return nil, false
	}
	return idx.FileSystem(), true
}

// CreateIndex allocates a new index's subdirectory and opens it,
// returning ferrors.AlreadyExists if name is already registered (spec
// §4.8 "create allocates a subdirectory").
func (mi *MultiIndex) CreateIndex(name string) (*engine.Index, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}

	mi.mu.Lock()
	defer mi.mu.Unlock()
	if mi.closed {
		return nil, ferrors.ErrClosed
	}
	if _, ok := mi.indexes[name]; ok {
		return nil, ferrors.AlreadyExists("index", name)
	}

	fs, err := mi.opener.Open(name, true)
	if err != nil {
		return nil, errors.Wrapf(err, "multiindex: creating index %q failed", name)
	}

	idx, err := engine.Open(fs, name, engine.WithSegmentCache(mi.cache))
	if err != nil {
		return nil, errors.Wrapf(err, "multiindex: opening new index %q failed", name)
	}

	mi.indexes[name] = idx
	return idx, nil
}

// GetOrCreateIndex returns name's index, creating it if absent, matching
// the HTTP front-end's idempotent `PUT /<idx>` (spec §6).
func (mi *MultiIndex) GetOrCreateIndex(name string) (idx *engine.Index, created bool, err error) {
	idx, err = mi.GetIndex(name)
	if err == nil {
		return idx, false, nil
	}
	if !isNotFound(err) {
		return nil, false, err
	}
	idx, err = mi.CreateIndex(name)
	if err != nil {
		if alreadyExists(err) {
			// Lost a race with a concurrent CreateIndex; fetch the winner.
			idx, err = mi.GetIndex(name)
			return idx, false, err
		}
		return nil, false, err
	}
	return idx, true, nil
}

// GetIndex returns name's index, or ferrors.NotFound if it is not
// registered (spec §4.8).
func (mi *MultiIndex) GetIndex(name string) (*engine.Index, error) {
	mi.mu.Lock()
	defer mi.mu.Unlock()
	if mi.closed {
		return nil, ferrors.ErrClosed
	}
	idx, ok := mi.indexes[name]
	if !ok {
		return nil, ferrors.NotFound("index", name)
	}
	return idx, nil
}

// DeleteIndex closes name's index and removes its backing files. Segment
// readers that the segment cache still holds for the index are not closed.
func (mi *MultiIndex) DeleteIndex(name string) error {
	mi.mu.Lock()
	idx, ok := mi.indexes[name]
	if !ok {
		mi.mu.Unlock()
		return ferrors.NotFound("index", name)
	}
	delete(mi.indexes, name)
	mi.mu.Unlock()

	if err := idx.Close(); err != nil {
		return errors.Wrapf(err, "multiindex: closing index %q failed", name)
	}
	if err := mi.opener.Remove(name); err != nil {
		return errors.Wrapf(err, "multiindex: removing index %q failed", name)
	}
	return nil
}

// ListIndexes returns every registered index name, sorted.
func (mi *MultiIndex) ListIndexes() []string {
	mi.mu.Lock()
	defer mi.mu.Unlock()
	names := make([]string, 0, len(mi.indexes))
	for name := range mi.indexes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Close closes every registered index (spec §4.8 "close() closes all
// indexes and fsyncs").
func (mi *MultiIndex) Close() error {
	mi.mu.Lock()
	defer mi.mu.Unlock()
	if mi.closed {
		return nil
	}
	mi.closed = true

	var firstErr error
	for name, idx := range mi.indexes {
		if err := idx.Close(); err != nil && firstErr == nil {
			firstErr = errors.Wrapf(err, "multiindex: closing index %q failed", name)
		}
		if err := idx.FileSystem().Sync(); err != nil && firstErr == nil {
			firstErr = errors.Wrapf(err, "multiindex: syncing index %q failed", name)
		}
	}
	return firstErr
}

func isNotFound(err error) bool {
	var nf *ferrors.NotFoundError
	return stderrors.As(err, &nf)
}

func alreadyExists(err error) bool {
	var ae *ferrors.AlreadyExistsError
	return stderrors.As(err, &ae)
}
