package segment

import (
	"encoding/binary"
	"io"
	"sort"

	"github.com/pkg/errors"

	"github.com/fpindex/fpindex/bitset"
	"github.com/fpindex/fpindex/block"
	"github.com/fpindex/fpindex/ferrors"
	"github.com/fpindex/fpindex/postings"
	"github.com/fpindex/fpindex/vfs"
)

// Reader is an opened, immutable segment. It holds a file handle to the
// data file and the fully-loaded skip index, and is safe for concurrent
// use by multiple searchers (spec §4.3 "Reader contract").
type Reader struct {
	info       Info
	data       vfs.ReadableFile
	skipIndex  []skipEntry
	present    *bitset.Sparse
	blockSize  int
}

// Open loads a segment's skip index and presence sketch and opens its
// data file for random access reads.
func Open(fs vfs.FileSystem, info Info) (*Reader, error) {
	data, err := fs.OpenFile(info.DataFileName())
	if err != nil {
		return nil, errors.Wrapf(err, "opening data file for segment %d failed", uint64(info.ID))
	}

	idxFile, err := fs.OpenFile(info.IndexFileName())
	if err != nil {
		data.Close()
		return nil, errors.Wrapf(err, "opening index file for segment %d failed", uint64(info.ID))
	}
	defer idxFile.Close()

	skipIndex := make([]skipEntry, 0, info.BlockCount)
	for i := 0; i < info.BlockCount; i++ {
		var e skipEntry
		if err := binary.Read(idxFile, binary.LittleEndian, &e.firstTerm); err != nil {
			data.Close()
			return nil, ferrors.CorruptSegment(uint64(info.ID), int64(i))
		}
		if err := binary.Read(idxFile, binary.LittleEndian, &e.offset); err != nil {
			data.Close()
			return nil, ferrors.CorruptSegment(uint64(info.ID), int64(i))
		}
		skipIndex = append(skipIndex, e)
	}

	present, err := bitset.Read(idxFile)
	if err != nil {
		data.Close()
		return nil, ferrors.CorruptSegment(uint64(info.ID), -1)
	}

	var footerBlockCount uint64
	var footerBlockSize uint64
	var footerLastTerm uint32
	var footerChecksum uint64
	if err := binary.Read(idxFile, binary.LittleEndian, &footerBlockCount); err != nil {
		data.Close()
		return nil, ferrors.CorruptSegment(uint64(info.ID), -1)
	}
	if err := binary.Read(idxFile, binary.LittleEndian, &footerBlockSize); err != nil {
		data.Close()
		return nil, ferrors.CorruptSegment(uint64(info.ID), -1)
	}
	if err := binary.Read(idxFile, binary.LittleEndian, &footerLastTerm); err != nil {
		data.Close()
		return nil, ferrors.CorruptSegment(uint64(info.ID), -1)
	}
	if err := binary.Read(idxFile, binary.LittleEndian, &footerChecksum); err != nil {
		data.Close()
		return nil, ferrors.CorruptSegment(uint64(info.ID), -1)
	}
	if int(footerBlockCount) != info.BlockCount || footerLastTerm != info.LastTerm || uint32(footerChecksum) != info.Checksum {
		data.Close()
		return nil, ferrors.CorruptSegment(uint64(info.ID), -1)
	}
	info.BlockSize = int(footerBlockSize)

	return &Reader{info: info, data: data, skipIndex: skipIndex, present: present, blockSize: info.BlockSize}, nil
}

// Info returns the segment's published metadata.
func (r *Reader) Info() Info { return r.info }

// Close releases the reader's file handle.
func (r *Reader) Close() error {
	return r.data.Close()
}

// ContainsTermRange reports whether the segment could possibly hold any
// postings with a term in [lo, hi] (spec §4.3). It is a cheap check using
// the first skip entry and the segment's LastTerm, never a full scan.
func (r *Reader) ContainsTermRange(lo, hi uint32) bool {
	if len(r.skipIndex) == 0 {
		return false
	}
	firstTerm := r.skipIndex[0].firstTerm
	return firstTerm <= hi && r.info.LastTerm >= lo
}

// ContainsDoc reports whether docID is in the presence sketch written at
// segment-creation time (spec §4.5): it has a posting here or was
// tombstoned when the segment was written. Search uses it to mask the
// document in older segments.
func (r *Reader) ContainsDoc(docID uint32) bool {
	return r.present.Contains(docID)
}

// PresentDocs returns every docID in this segment's presence sketch, live
// or tombstoned, in ascending order. Used by the merger (spec §4.5) to
// decide, for each docID, which source segment's postings should win.
func (r *Reader) PresentDocs() []uint32 {
	return r.present.Slice()
}

// HasLivePosting reports whether docID has at least one live posting in
// this segment, as opposed to only being present because it was
// tombstoned when the segment was written. The presence sketch alone
// cannot answer this (spec §4.5 folds tombstones into it), so this scans
// the segment's postings directly; used only off the search hot path, by
// the document-existence check (spec §6 `GET /<idx>/_doc/<id>`).
func (r *Reader) HasLivePosting(docID uint32) (bool, error) {
	rr := r.Reader()
	for {
		block, err := rr.ReadBlock()
		if err == io.EOF {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		for _, p := range block {
			if p.DocID == docID {
				return true, nil
			}
		}
	}
}

func (r *Reader) readBlock(i int) ([]postings.Posting, error) {
	if i < 0 || i >= len(r.skipIndex) {
		return nil, errBlockNotFound
	}
	size := r.blockSize
	buf := make([]byte, size)
	if _, err := r.data.ReadAt(buf, int64(r.skipIndex[i].offset)); err != nil {
		return nil, ferrors.IOError(errors.Wrapf(err, "reading block %d of segment %d failed", i, uint64(r.info.ID)))
	}
	out, err := block.Unpack(buf)
	if err != nil {
		if block.IsChecksumError(err) {
			return nil, ferrors.CorruptSegment(uint64(r.info.ID), r.blockOffset(i))
		}
		return nil, ferrors.CorruptSegment(uint64(r.info.ID), r.blockOffset(i))
	}
	return out, nil
}

func (r *Reader) blockOffset(i int) int64 {
	return int64(r.skipIndex[i].offset)
}

var errBlockNotFound = errors.New("block not found")

// Find returns every docID in this segment that has a posting for term,
// in ascending order, yielding each docID at most once (spec §4.3).
func (r *Reader) Find(term uint32) ([]uint32, error) {
	if len(r.skipIndex) == 0 || term > r.info.LastTerm {
		return nil, nil
	}

	// Binary search for the first block whose first term is >= term; the
	// block before it may also end with postings for term.
	i := sort.Search(len(r.skipIndex), func(i int) bool { return r.skipIndex[i].firstTerm >= term })
	if i > 0 {
		i--
	}
	if r.skipIndex[i].firstTerm > term {
		return nil, nil
	}

	var docIDs []uint32
	for {
		postingsInBlock, err := r.readBlock(i)
		if err != nil {
			return nil, err
		}
		for _, p := range postingsInBlock {
			// Postings are in (term, docID) order, so a repeated posting
			// for the same docID follows the previous one directly.
			if p.Term == term && (len(docIDs) == 0 || docIDs[len(docIDs)-1] != p.DocID) {
				docIDs = append(docIDs, p.DocID)
			}
		}
		// The matching term may continue into the next block.
		if i+1 < len(r.skipIndex) && r.skipIndex[i+1].firstTerm <= term {
			i++
			continue
		}
		break
	}
	return docIDs, nil
}

// IterRange returns a Reader over every posting in this segment whose
// term falls in [lo, hi], in canonical order; used by the merger (spec
// §4.5) to perform a k-way merge across segments.
func (r *Reader) IterRange(lo, hi uint32) postings.Reader {
	startBlock := 0
	if lo > 0 {
		startBlock = sort.Search(len(r.skipIndex), func(i int) bool { return r.skipIndex[i].firstTerm >= lo })
		if startBlock > 0 {
			startBlock--
		}
	}
	return &rangeReader{seg: r, next: startBlock, lo: lo, hi: hi}
}

type rangeReader struct {
	seg     *Reader
	next    int
	lo, hi  uint32
	done    bool
}

func (rr *rangeReader) NumDocs() int {
	return rr.seg.info.DocCountEstimate
}

func (rr *rangeReader) ReadBlock() ([]postings.Posting, error) {
	for {
		if rr.done || rr.next >= len(rr.seg.skipIndex) {
			return nil, io.EOF
		}
		if rr.seg.skipIndex[rr.next].firstTerm > rr.hi {
			rr.done = true
			return nil, io.EOF
		}
		blk, err := rr.seg.readBlock(rr.next)
		rr.next++
		if err != nil {
			return nil, err
		}
		var out []postings.Posting
		for _, p := range blk {
			if p.Term >= rr.lo && p.Term <= rr.hi {
				out = append(out, p)
			}
		}
		if len(out) > 0 {
			return out, nil
		}
		if rr.next >= len(rr.seg.skipIndex) {
			return nil, io.EOF
		}
	}
}

// Reader returns a postings.Reader over the segment's entire contents, in
// canonical order; a convenience wrapper around IterRange(0, MaxUint32).
func (r *Reader) Reader() postings.Reader {
	return r.IterRange(0, ^uint32(0))
}
