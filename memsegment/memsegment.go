// Package memsegment implements the mutable in-memory segment buffer from
// spec §4.4: a docID -> terms mapping plus a tombstone set, accepting
// upserts and deletes until its approximate memory footprint crosses a
// flush threshold. Grounded on the teacher's index/item.go ItemBuffer,
// generalized with per-docID upsert-replaces-prior-postings semantics and
// an incremental byte-size estimate in place of the teacher's simpler
// min/max-docID-only buffer. It keeps no term-keyed index: a term lookup
// scans every document, and postings are sorted only when read out.
package memsegment

import (
	"sync"

	"github.com/fpindex/fpindex/bitset"
	"github.com/fpindex/fpindex/postings"
)

// bytesPerPosting approximates the in-memory cost of one (term, docID)
// pair: two uint32 fields plus Go slice/map growth overhead. Used only to
// decide when to flush, never persisted.
const bytesPerPosting = 24

// Segment is a mutable postings buffer. Every method takes the segment's
// RWMutex, so reads and writes may run concurrently; the index still
// serializes writers under its own mutation lock.
type Segment struct {
	mu         sync.RWMutex
	byDoc      map[uint32][]uint32 // docID -> terms (unsorted within a doc)
	tombstones map[uint32]struct{}
	present    *bitset.Sparse
	numItems   int
}

// New returns an empty in-memory segment.
func New() *Segment {
	return &Segment{
		byDoc:      make(map[uint32][]uint32),
		tombstones: make(map[uint32]struct{}),
		present:    bitset.New(0),
	}
}

// Upsert replaces docID's postings in this segment with terms, clearing
// any tombstone recorded for it (spec §4.4). It does not consult or
// affect any other segment; cross-segment masking happens only at search
// and merge time.
func (s *Segment) Upsert(docID uint32, terms []uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.byDoc[docID]; ok {
		s.numItems -= len(old)
	}

	termsCopy := append([]uint32(nil), terms...)
	s.byDoc[docID] = termsCopy
	s.numItems += len(termsCopy)

	delete(s.tombstones, docID)
	s.present.Add(docID)
}

// Delete removes docID's postings from this segment and records a
// tombstone for it, so merges and searches know any lower-id segment's
// postings for docID must not survive (spec §4.4, §4.5).
func (s *Segment) Delete(docID uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.byDoc[docID]; ok {
		s.numItems -= len(old)
		delete(s.byDoc, docID)
	}
	s.tombstones[docID] = struct{}{}
	s.present.Add(docID)
}

// NumDocs returns the number of documents with live postings in this
// segment (tombstoned docs do not count).
func (s *Segment) NumDocs() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byDoc)
}

// NumItems returns the number of (term, docID) postings currently held.
func (s *Segment) NumItems() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.numItems
}

// Empty reports whether the segment has no postings and no tombstones.
func (s *Segment) Empty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.numItems == 0 && len(s.tombstones) == 0
}

// SizeBytes is the approximate memory footprint used to decide when to
// flush against flush_threshold_bytes (spec §4.4). It is intentionally a
// coarse estimate, not an exact accounting.
func (s *Segment) SizeBytes() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(s.numItems)*bytesPerPosting + int64(len(s.tombstones))*8
}

// Tombstones returns a copy of the set of docIDs deleted from this
// segment since it was created.
func (s *Segment) Tombstones() []uint32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]uint32, 0, len(s.tombstones))
	for docID := range s.tombstones {
		out = append(out, docID)
	}
	postings.SortUint32s(out)
	return out
}

// ContainsDoc reports whether docID has ever been upserted or deleted in
// this segment (live posting or tombstone), used by the merger and
// searcher to decide masking without scanning postings (spec §4.5, §4.7).
func (s *Segment) ContainsDoc(docID uint32) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.present.Contains(docID)
}

// HasLivePosting reports whether docID currently has postings in this
// segment, as opposed to only a tombstone. Used by the document-existence
// check (spec §6 `GET /<idx>/_doc/<id>`), which unlike search masking
// needs to tell a live doc from a deleted one, not just "ever mentioned".
func (s *Segment) HasLivePosting(docID uint32) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.byDoc[docID]
	return ok
}

// Reader returns a postings.Reader over this segment's live postings in
// canonical (term, docID) order. The segment must not be mutated while
// the returned Reader is in use; callers typically take a Reader only
// once the segment has been sealed for flushing (spec §4.4 "handed to
// the flusher").
func (s *Segment) Reader() postings.Reader {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]postings.Posting, 0, s.numItems)
	for docID, terms := range s.byDoc {
		for _, term := range terms {
			all = append(all, postings.Posting{Term: term, DocID: docID})
		}
	}
	return postings.NewSliceReader(len(s.byDoc), all)
}

// Find returns every live docID in this segment with a posting for term,
// in ascending order. Used by the searcher (spec §4.7) before consulting
// on-disk segments.
func (s *Segment) Find(term uint32) []uint32 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var docIDs []uint32
	for docID, terms := range s.byDoc {
		for _, t := range terms {
			if t == term {
				docIDs = append(docIDs, docID)
				break
			}
		}
	}
	postings.SortUint32s(docIDs)
	return docIDs
}
