// Package postings holds the shared (term, docID) pair type and the
// iteration/merge machinery used by every layer above the block codec:
// in-memory segments, on-disk segments, and the merger (spec §3, "Posting").
package postings

import "sort"

// Posting is one (term, docID) pair, the atomic unit stored in segments.
// The canonical ordering is (Term asc, DocID asc).
type Posting struct {
	Term  uint32
	DocID uint32
}

// Less reports whether p sorts before o under the canonical ordering.
func (p Posting) Less(o Posting) bool {
	return p.Term < o.Term || (p.Term == o.Term && p.DocID < o.DocID)
}

// ByTerm sorts a slice of Postings into canonical order.
type ByTerm []Posting

func (s ByTerm) Len() int           { return len(s) }
func (s ByTerm) Less(i, j int) bool { return s[i].Less(s[j]) }
func (s ByTerm) Swap(i, j int)      { s[i], s[j] = s[j], s[i] }

// Sort sorts postings into canonical (term, docID) order in place.
func Sort(postings []Posting) {
	sort.Sort(ByTerm(postings))
}

// SortUint32s sorts terms in increasing order; used before building a
// SingleDocReader so the block writer sees them in the order it expects.
func SortUint32s(terms []uint32) {
	sort.Slice(terms, func(i, j int) bool { return terms[i] < terms[j] })
}
