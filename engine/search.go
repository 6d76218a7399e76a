package engine

import (
	"context"
	"sort"

	"github.com/fpindex/fpindex/ferrors"
	"github.com/fpindex/fpindex/manifest"
	"github.com/fpindex/fpindex/memsegment"
)

const (
	defaultLimit    = 500
	defaultMinScore = 1
)

// SearchOptions tunes one Search call (spec §4.7: limit default 500,
// min_score default 1). Limit and MinScore are pointers so an explicit
// zero (spec §8 boundary "limit=0 -> empty results") can be told apart
// from "unset, use the default"; a zero SearchOptions value uses both
// defaults.
type SearchOptions struct {
	Limit    *int
	MinScore *uint32
}

// Hit is one scored document in a Result.
type Hit struct {
	DocID uint32
	Score uint32
}

// Result is a Search call's scored, sorted, truncated output, alongside
// the revision it was computed against (spec §5 "a reader that observes
// revision R also observes all mutations with revision <= R").
type Result struct {
	Revision uint64
	Hits     []Hit
}

// searchStep is one segment (or the in-memory buffer) in high-to-low
// scan order, with the operations the algorithm needs from it.
type searchStep struct {
	find        func(term uint32) ([]uint32, error)
	containsDoc func(docID uint32) bool
	hasLive     func(docID uint32) (bool, error)
	release     func()
	invalidate  func()
}

// ContainsDocument reports whether docID currently has live postings
// anywhere in the index (spec §6 `GET /<idx>/_doc/<id>`). It walks the
// same high-to-low step order as Search, and is authoritative on the
// first (highest) step that has ever seen docID: a tombstone in that step
// means deleted, even if a lower step still holds stale live postings for
// the same docID (spec §3 invariant 1).
func (idx *Index) ContainsDocument(docID uint32) (bool, error) {
	m := idx.manifest.Load()
	mem := idx.mem.Load()

	steps, release, err := idx.openSearchSteps(m, mem)
	if err != nil {
		return false, err
	}
	defer release()

	for _, step := range steps {
		if !step.containsDoc(docID) {
			continue
		}
		live, err := step.hasLive(docID)
		if err != nil {
			if step.invalidate != nil {
				step.invalidate()
			}
			return false, err
		}
		return live, nil
	}
	return false, nil
}

// Search scores query against every live segment and returns the
// top-scoring docIDs (spec §4.7). query may contain duplicate terms;
// each occurrence scores independently. ctx's deadline, if any, is
// checked between query terms; an expired deadline returns
// ferrors.ErrTimeout with partial scoring discarded.
func (idx *Index) Search(ctx context.Context, query []uint32, opts SearchOptions) (Result, error) {
	limit := defaultLimit
	if opts.Limit != nil {
		limit = *opts.Limit
	}
	minScore := uint32(defaultMinScore)
	if opts.MinScore != nil {
		minScore = *opts.MinScore
	}

	m := idx.manifest.Load()
	mem := idx.mem.Load()

	steps, release, err := idx.openSearchSteps(m, mem)
	if err != nil {
		return Result{}, err
	}
	defer release()

	scores := make(map[uint32]uint32)
	for _, term := range query {
		if err := ctx.Err(); err != nil {
			return Result{}, ferrors.ErrTimeout
		}

		creditedForTerm := make(map[uint32]bool)
		for i, step := range steps {
			docIDs, err := step.find(term)
			if err != nil {
				// An I/O error on this segment's cached handle means the
				// handle itself may be bad (spec §7 "close the offending
				// segment's cached handle, fail this search with
				// IOError"); evict it so the next search reopens fresh.
				if step.invalidate != nil {
					step.invalidate()
				}
				return Result{}, err
			}
			for _, d := range docIDs {
				if creditedForTerm[d] {
					continue
				}
				if maskedByHigherStep(steps, i, d) {
					continue
				}
				scores[d]++
				creditedForTerm[d] = true
			}
		}
	}

	var hits []Hit
	for docID, score := range scores {
		if score < minScore {
			continue
		}
		hits = append(hits, Hit{DocID: docID, Score: score})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].DocID < hits[j].DocID
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}

	return Result{Revision: m.Revision, Hits: hits}, nil
}

// maskedByHigherStep reports whether docID is present (live posting or
// tombstone) in any step strictly higher than index i in the high-to-low
// scan order (spec §4.7 step 3's "higher-id segment" check).
func maskedByHigherStep(steps []searchStep, i int, docID uint32) bool {
	for j := 0; j < i; j++ {
		if steps[j].containsDoc(docID) {
			return true
		}
	}
	return false
}

// openSearchSteps builds the high-to-low scan order for one search: the
// in-memory segment first, then on-disk segments from highest id to
// lowest, each opened via the shared segment cache. The returned release
// func must be called once the caller is done reading.
func (idx *Index) openSearchSteps(m *manifest.Manifest, mem *memsegment.Segment) ([]searchStep, func(), error) {
	steps := []searchStep{{
		find:        func(term uint32) ([]uint32, error) { return mem.Find(term), nil },
		containsDoc: mem.ContainsDoc,
		hasLive:     func(docID uint32) (bool, error) { return mem.HasLivePosting(docID), nil },
	}}

	infos := m.Segments // stored ascending by id; walk backward for high-to-low
	for i := len(infos) - 1; i >= 0; i-- {
		info := infos[i]
		r, err := idx.cache.Acquire(idx.name, info)
		if err != nil {
			releaseSteps(steps)
			return nil, nil, err
		}
		reader := r
		segID := info.ID
		steps = append(steps, searchStep{
			find:        reader.Find,
			containsDoc: reader.ContainsDoc,
			hasLive:     reader.HasLivePosting,
			release:     func() { idx.cache.Release(idx.name, info) },
			invalidate:  func() { idx.cache.Invalidate(idx.name, segID) },
		})
	}

	release := func() { releaseSteps(steps) }
	return steps, release, nil
}

func releaseSteps(steps []searchStep) {
	for _, s := range steps {
		if s.release != nil {
			s.release()
		}
	}
}
