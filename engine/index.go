// Package engine combines the index writer (C6) and searcher (C7) from
// spec §4.6–§4.7 into the single-writer, many-reader Index type: oplog'd
// mutations against an in-memory segment, flush/merge against the
// on-disk segment set, and masked top-K search across both. Grounded on
// the teacher's index/db.go DB, which drives the same Add/Update/Delete/
// Search/commit shape over a sync.Mutex-guarded manifest; here the
// manifest pointer and in-memory segment pointer are each held in an
// atomic.Pointer so readers never block on the mutation lock (spec §5).
package engine

import (
	"fmt"
	"log"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/fpindex/fpindex/ferrors"
	"github.com/fpindex/fpindex/manifest"
	"github.com/fpindex/fpindex/memsegment"
	"github.com/fpindex/fpindex/merge"
	"github.com/fpindex/fpindex/oplog"
	"github.com/fpindex/fpindex/segment"
	"github.com/fpindex/fpindex/vfs"
)

const defaultFlushThresholdBytes = 4 << 20 // 4 MiB, spec §4.4 flush_threshold_bytes

// Option configures an Index at Open time.
type Option func(*Index)

// WithFlushThresholdBytes overrides the in-memory segment's flush
// threshold (spec §4.4's flush_threshold_bytes).
func WithFlushThresholdBytes(n int64) Option {
	return func(idx *Index) { idx.flushThresholdBytes = n }
}

// WithMergePolicy overrides the merge policy used by MaybeMerge.
func WithMergePolicy(p merge.Policy) Option {
	return func(idx *Index) { idx.policy = p }
}

// WithSegmentCache shares a segment.Cache across multiple indexes, as
// MultiIndex (C8) does; Open creates a private one if omitted.
func WithSegmentCache(c *segment.Cache) Option {
	return func(idx *Index) { idx.cache = c }
}

// Index is one logical fingerprint index: the C6 writer and C7 searcher
// over a single vfs.FileSystem directory.
type Index struct {
	name string
	fs   vfs.FileSystem

	mu sync.Mutex // mutation lock (spec §5): guards oplog append, in-memory mutation, manifest swap

	manifest atomic.Pointer[manifest.Manifest]
	mem      atomic.Pointer[memsegment.Segment]
	revision atomic.Uint64

	log   *oplog.Log
	cache *segment.Cache

	policy              merge.Policy
	flushThresholdBytes int64
	nextSegmentID       atomic.Uint64

	closed bool
}

// Open loads an index's manifest and oplog from fs, replaying any
// mutations recorded since the manifest's checkpoint into a fresh
// in-memory segment (spec §4.9). name identifies this index within a
// shared segment.Cache (spec §4.3's "(index_name, segment_id)" key); a
// standalone Index may pass any stable name.
func Open(fs vfs.FileSystem, name string, opts ...Option) (*Index, error) {
	m, err := manifest.Load(fs)
	if err != nil {
		return nil, errors.Wrap(err, "engine: loading manifest failed")
	}
	if m == nil {
		m = &manifest.Manifest{Attributes: map[string]string{}}
	}
	if m.Attributes == nil {
		m.Attributes = map[string]string{}
	}

	l, err := oplog.Open(fs)
	if err != nil {
		return nil, errors.Wrap(err, "engine: opening oplog failed")
	}

	mem := memsegment.New()
	for _, rec := range l.Records() {
		if rec.Seq <= m.OplogCheckpoint {
			continue
		}
		applyRecord(mem, m, rec)
	}

	var maxSegID uint64
	for _, info := range m.Segments {
		if uint64(info.ID) > maxSegID {
			maxSegID = uint64(info.ID)
		}
	}

	idx := &Index{
		name:                name,
		fs:                  fs,
		log:                 l,
		policy:              merge.NewTieredMergePolicy(),
		flushThresholdBytes: defaultFlushThresholdBytes,
	}
	idx.manifest.Store(m)
	idx.mem.Store(mem)
	idx.revision.Store(m.Revision)
	idx.nextSegmentID.Store(maxSegID + 1)

	for _, opt := range opts {
		opt(idx)
	}
	if idx.cache == nil {
		fsThis := fs
		idx.cache = segment.NewCache(16, func(n string) (vfs.FileSystem, bool) {
			if n != name {
				return nil, false
			}
			return fsThis, true
		})
	}

	return idx, nil
}

// applyRecord replays one oplog record into mem during startup, updating
// m's staged attributes in place for KindSetAttribute (spec §4.9 replay).
func applyRecord(mem *memsegment.Segment, m *manifest.Manifest, rec oplog.Record) {
	switch rec.Kind {
	case oplog.KindUpsert:
		mem.Upsert(rec.DocID, rec.Terms)
	case oplog.KindDelete:
		mem.Delete(rec.DocID)
	case oplog.KindSetAttribute:
		m.Attributes[rec.Key] = rec.Value
	}
}

// Name returns the index's identifier within its segment cache.
func (idx *Index) Name() string { return idx.name }

// FileSystem returns the vfs.FileSystem backing this index, used by
// MultiIndex to resolve a shared segment.Cache's fsFor callback.
func (idx *Index) FileSystem() vfs.FileSystem { return idx.fs }

// Revision returns the index's current monotonic revision counter (spec
// §4.6: increments on every accepted mutation and every manifest
// publication).
func (idx *Index) Revision() uint64 { return idx.revision.Load() }

// Upsert replaces docID's postings with terms, returning the new
// revision (spec §4.6).
func (idx *Index) Upsert(docID uint32, terms []uint32) (uint64, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.closed {
		return 0, ferrors.ErrClosed
	}
	if _, err := idx.log.Append(oplog.Record{Kind: oplog.KindUpsert, DocID: docID, Terms: terms}); err != nil {
		return 0, errors.Wrap(err, "engine: upsert failed")
	}
	idx.mem.Load().Upsert(docID, terms)
	rev := idx.revision.Add(1)
	idx.maybeAutoFlushLocked()
	return rev, nil
}

// Delete removes docID's postings and tombstones it, returning the new
// revision (spec §4.6).
func (idx *Index) Delete(docID uint32) (uint64, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.closed {
		return 0, ferrors.ErrClosed
	}
	if _, err := idx.log.Append(oplog.Record{Kind: oplog.KindDelete, DocID: docID}); err != nil {
		return 0, errors.Wrap(err, "engine: delete failed")
	}
	idx.mem.Load().Delete(docID)
	rev := idx.revision.Add(1)
	idx.maybeAutoFlushLocked()
	return rev, nil
}

// SetAttribute stages a key/value pair into the manifest's attribute map
// (spec §4.6). It is durable once its oplog record is appended; the value
// reaches an on-disk manifest the next time one is saved.
func (idx *Index) SetAttribute(key, value string) (uint64, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.closed {
		return 0, ferrors.ErrClosed
	}
	if _, err := idx.log.Append(oplog.Record{Kind: oplog.KindSetAttribute, Key: key, Value: value}); err != nil {
		return 0, errors.Wrap(err, "engine: set_attribute failed")
	}

	cur := idx.manifest.Load()
	next := cloneManifest(cur)
	next.Attributes[key] = value
	idx.manifest.Store(next)

	return idx.revision.Add(1), nil
}

// maybeAutoFlushLocked flushes the in-memory segment once it crosses
// flush_threshold_bytes (spec §4.4). Called with the mutation lock
// already held, from Upsert/Delete. A flush failure is logged rather
// than surfaced to the caller: the mutation itself already durably
// committed via the oplog append that preceded it (spec §5 "Writes are
// not cancellable once the oplog record is appended").
func (idx *Index) maybeAutoFlushLocked() {
	if idx.mem.Load().SizeBytes() < idx.flushThresholdBytes {
		return
	}
	if err := idx.flushLocked(); err != nil {
		log.Printf("engine: auto-flush failed: %v", err)
	}
}

// Attribute returns a staged or published attribute value.
func (idx *Index) Attribute(key string) (string, bool) {
	v, ok := idx.manifest.Load().Attributes[key]
	return v, ok
}

// Close flushes nothing implicitly; it only marks the index closed so
// further mutations are rejected. It does not close the oplog or drop
// cached segment readers. Callers that want durability on close must
// Flush first.
func (idx *Index) Close() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.closed = true
	return nil
}

func cloneManifest(m *manifest.Manifest) *manifest.Manifest {
	next := &manifest.Manifest{
		Revision:        m.Revision,
		Segments:        append([]segment.Info(nil), m.Segments...),
		OplogCheckpoint: m.OplogCheckpoint,
		Attributes:      make(map[string]string, len(m.Attributes)),
	}
	for k, v := range m.Attributes {
		next.Attributes[k] = v
	}
	return next
}

func sortSegmentsByID(infos []segment.Info) {
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
}

func segmentIDString(infos []segment.Info) string {
	ids := make([]uint64, len(infos))
	for i, info := range infos {
		ids[i] = uint64(info.ID)
	}
	return fmt.Sprint(ids)
}
