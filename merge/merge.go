package merge

import (
	"github.com/fpindex/fpindex/postings"
	"github.com/fpindex/fpindex/segment"
	"github.com/fpindex/fpindex/vfs"
)

// Source is one input to a merge: an open segment reader, given in
// ascending id order (oldest first), matching spec §4.5's `[S1, ..., Sk]`.
type Source struct {
	Info   segment.Info
	Reader *segment.Reader
}

// Merge combines sources (oldest to newest) into one new segment with id
// newID, applying per-docID last-write-wins: for a given docID, only the
// postings contributed by the highest-id source whose presence sketch
// contains that docID survive; every other source's postings for it are
// dropped, whether or not the winning source itself has any live
// postings for it (spec §4.5). The output's presence sketch is the union
// of all sources' sketches, so a later merge against this result
// continues to mask correctly.
func Merge(fs vfs.FileSystem, newID segment.ID, sources []Source) (segment.Info, error) {
	return MergeSized(fs, newID, sources, 1024)
}

// MergeSized is Merge with an explicit output block size, for tests.
func MergeSized(fs vfs.FileSystem, newID segment.ID, sources []Source, blockSize int) (segment.Info, error) {
	if len(sources) == 0 {
		return segment.WriteSized(fs, newID, postings.NewSliceReader(0, nil), nil, blockSize)
	}

	// winner[docID] is the highest source index whose presence sketch
	// contains docID. Sources are visited oldest to newest, so later
	// assignments always win.
	winner := make(map[uint32]int)
	for i, s := range sources {
		for _, docID := range s.Reader.PresentDocs() {
			winner[docID] = i
		}
	}

	readers := make([]postings.Reader, len(sources))
	for i, s := range sources {
		readers[i] = &winnerFilterReader{src: s.Reader.Reader(), sourceIndex: i, winner: winner}
	}

	out, err := postings.ReadAll(postings.MergeReaders(readers...))
	if err != nil {
		return segment.Info{}, err
	}

	live := make(map[uint32]bool, len(out))
	for _, p := range out {
		live[p.DocID] = true
	}

	var tombstones []uint32
	for docID := range winner {
		if !live[docID] {
			tombstones = append(tombstones, docID)
		}
	}
	postings.SortUint32s(tombstones)

	reader := postings.NewSliceReader(0, out)
	return segment.WriteSized(fs, newID, reader, tombstones, blockSize)
}

// winnerFilterReader wraps one source's postings in canonical order,
// yielding only the postings whose docID that source actually won under
// the merge's per-docID last-write-wins rule, so the k-way
// postings.MergeReaders merge sees each source's already-sorted
// contribution rather than a flat, re-sorted buffer.
type winnerFilterReader struct {
	src         postings.Reader
	sourceIndex int
	winner      map[uint32]int
}

func (r *winnerFilterReader) NumDocs() int { return r.src.NumDocs() }

func (r *winnerFilterReader) ReadBlock() ([]postings.Posting, error) {
	for {
		block, err := r.src.ReadBlock()
		if err != nil {
			return nil, err
		}
		var out []postings.Posting
		for _, p := range block {
			if r.winner[p.DocID] == r.sourceIndex {
				out = append(out, p)
			}
		}
		if len(out) > 0 {
			return out, nil
		}
	}
}
