// Package segment implements the immutable on-disk segment structure from
// spec §4.3: a data file of compressed blocks plus a skip index for random
// access, written once and shared freely by reference afterward. Grounded
// on the teacher's index/segment.go, which combines writing and reading
// in one file; here the two responsibilities are split across writer.go
// and reader.go, and the skip index is its own file (`.fii`) rather than
// a trailer appended to the data file, matching spec §4.3's
// `segment_<id>.fid` / `segment_<id>.fii` layout.
package segment

import (
	"fmt"

	"github.com/fpindex/fpindex/bitset"
)

// ID identifies a segment. IDs are assigned by the writer or merger and
// strictly increase across the lifetime of an index (spec §3 invariant 2).
type ID uint64

// Info is a segment's published metadata, the unit stored in a Manifest.
type Info struct {
	ID               ID     `json:"id"`
	BlockCount       int    `json:"block_count"`
	BlockSize        int    `json:"block_size"`
	LastTerm         uint32 `json:"last_term"`
	Checksum         uint32 `json:"checksum"`
	DocCountEstimate int    `json:"doc_count_estimate"`
}

func (info Info) DataFileName() string {
	return fmt.Sprintf("segment_%d.fid", uint64(info.ID))
}

func (info Info) IndexFileName() string {
	return fmt.Sprintf("segment_%d.fii", uint64(info.ID))
}

// skipEntry is one (first_term, offset) pair in the `.fii` skip index,
// one per data block (spec §4.2 "Why fixed-size blocks").
type skipEntry struct {
	firstTerm uint32
	offset    uint64
}

// presentDocs returns the sorted-docID sketch used by the merger (spec
// §4.5) to tell whether a docID has any posting in a higher-id segment.
type presentDocs = bitset.Sparse
