package engine

import (
	"log"

	"github.com/pkg/errors"

	"github.com/fpindex/fpindex/ferrors"
	"github.com/fpindex/fpindex/manifest"
	"github.com/fpindex/fpindex/memsegment"
	"github.com/fpindex/fpindex/merge"
	"github.com/fpindex/fpindex/segment"
)

// Flush freezes the current in-memory segment, persists it as a new
// on-disk segment, and publishes the resulting manifest (spec §4.4
// "Flush", §4.6 "flush()"). It is a no-op if the in-memory segment is
// empty. Flush holds the mutation lock for its full duration, matching
// the teacher's db.commit, which saves segments and the manifest under
// db.mu rather than releasing it mid-flush.
func (idx *Index) Flush() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.flushLocked()
}

func (idx *Index) flushLocked() error {
	mem := idx.mem.Load()
	if mem.Empty() {
		return nil
	}

	id := segment.ID(idx.nextSegmentID.Add(1) - 1)
	info, err := segment.Write(idx.fs, id, mem.Reader(), mem.Tombstones())
	if err != nil {
		return errors.Wrapf(err, "engine: flushing segment %d failed", uint64(id))
	}

	checkpoint := idx.log.LastSeq()
	cur := idx.manifest.Load()
	next := cloneManifest(cur)
	next.Segments = append(next.Segments, info)
	next.OplogCheckpoint = checkpoint
	next.Revision = cur.Revision + 1

	if err := manifest.Save(idx.fs, next); err != nil {
		segment.Remove(idx.fs, info)
		return errors.Wrap(err, "engine: publishing manifest failed")
	}

	idx.manifest.Store(next)
	idx.mem.Store(memsegment.New())
	idx.revision.Add(1)

	if err := idx.log.Truncate(checkpoint); err != nil {
		log.Printf("engine: oplog truncate after flush failed (benign, will replay): %v", err)
	}
	if err := manifest.GC(idx.fs, next.Revision); err != nil {
		log.Printf("engine: manifest GC failed (benign): %v", err)
	}

	log.Printf("engine: flushed segment %d (revision=%d segments=%d)", uint64(id), next.Revision, len(next.Segments))
	return nil
}

// MaybeMerge evaluates the merge policy against the current segment set
// and runs whatever merges it selects (spec §4.5, §4.6 "maybe_merge()").
// Each merge reads its input segments and writes the merged output
// without holding the mutation lock; only the manifest swap at the end
// of each merge briefly acquires it.
func (idx *Index) MaybeMerge() error {
	snapshot := idx.manifest.Load()
	candidates := make([]merge.Candidate, len(snapshot.Segments))
	for i, info := range snapshot.Segments {
		candidates[i] = merge.Candidate{Info: info, Size: merge.CandidateSize(info)}
	}

	plans := idx.policy.FindMerges(candidates, 0)
	for _, plan := range plans {
		if err := idx.runMerge(plan); err != nil {
			return err
		}
	}
	return nil
}

// runMerge runs one merge plan to completion. A panic anywhere in the merge
// body (spec §7 "panics inside background merge are caught and logged; the
// merge is dropped; no manifest change occurs") is recovered here, logged,
// and turned into an error instead of taking down the process or leaving
// idx.mu held.
func (idx *Index) runMerge(plan merge.Plan) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("engine: merge panicked, dropping merge: %v", r)
			err = errors.Errorf("engine: merge panicked: %v", r)
		}
	}()

	infos := make([]segment.Info, len(plan.Candidates))
	for i, c := range plan.Candidates {
		infos[i] = c.Info
	}
	sortSegmentsByID(infos)

	sources := make([]merge.Source, 0, len(infos))
	for _, info := range infos {
		r, err := idx.cache.Acquire(idx.name, info)
		if err != nil {
			return errors.Wrapf(err, "engine: opening segment %d for merge failed", uint64(info.ID))
		}
		sources = append(sources, merge.Source{Info: info, Reader: r})
	}
	defer func() {
		for _, info := range infos {
			idx.cache.Release(idx.name, info)
		}
	}()

	newID := segment.ID(idx.nextSegmentID.Add(1) - 1)
	newInfo, err := merge.Merge(idx.fs, newID, sources)
	if err != nil {
		return errors.Wrapf(err, "engine: merging segments %s failed", segmentIDString(infos))
	}

	err = func() error {
		idx.mu.Lock()
		defer idx.mu.Unlock()
		return idx.publishMerge(infos, newInfo)
	}()
	if err != nil {
		return err
	}

	for _, info := range infos {
		idx.cache.Invalidate(idx.name, info.ID)
		if err := segment.Remove(idx.fs, info); err != nil {
			log.Printf("engine: removing retired segment %d failed (benign): %v", uint64(info.ID), err)
		}
	}

	log.Printf("engine: merged segments %s into %d", segmentIDString(infos), uint64(newID))
	return nil
}

// publishMerge swaps in a manifest with the merged segments removed and
// the new one appended, under the mutation lock. If any input segment is
// no longer in the manifest (a concurrent MaybeMerge may have merged it
// away first), the new segment is dropped from disk and an error returned.
func (idx *Index) publishMerge(merged []segment.Info, newInfo segment.Info) error {
	if idx.closed {
		segment.Remove(idx.fs, newInfo)
		return ferrors.ErrClosed
	}

	removed := make(map[segment.ID]bool, len(merged))
	for _, info := range merged {
		removed[info.ID] = true
	}

	cur := idx.manifest.Load()
	var kept []segment.Info
	found := 0
	for _, info := range cur.Segments {
		if removed[info.ID] {
			found++
		} else {
			kept = append(kept, info)
		}
	}
	if found != len(merged) {
		segment.Remove(idx.fs, newInfo)
		return errors.Errorf("engine: merge inputs %s are no longer all live", segmentIDString(merged))
	}
	kept = append(kept, newInfo)
	sortSegmentsByID(kept)

	next := cloneManifest(cur)
	next.Segments = kept
	next.Revision = cur.Revision + 1

	if err := manifest.Save(idx.fs, next); err != nil {
		segment.Remove(idx.fs, newInfo)
		return errors.Wrap(err, "engine: publishing merged manifest failed")
	}

	idx.manifest.Store(next)
	idx.revision.Add(1)
	return nil
}
