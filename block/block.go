// Package block implements the fixed-size block codec from spec §4.2: a
// sequence of (term_delta, docID) pairs LEB128-encoded after a small
// header, checksummed with CRC-32, and padded to a fixed byte budget.
// Grounded on the teacher's index/segment.go writeBlock/ReadBlock, split
// out into its own package because the spec treats the codec (C2) and
// the on-disk segment structure (C3) as separate components.
package block

import (
	"encoding/binary"
	"hash/crc32"

	"github.com/fpindex/fpindex/ferrors"
	"github.com/fpindex/fpindex/postings"
	"github.com/fpindex/fpindex/varint"
)

// DefaultSize is the default fixed block size in bytes.
const DefaultSize = 1024

// HeaderSize is the fixed-size header prepended to every block:
// base term (u32) + posting count (u32).
const HeaderSize = 8

// FooterSize is the CRC-32 checksum appended to every block.
const FooterSize = 4

// Pack encodes as many leading postings from in (already in canonical
// order) as fit within size bytes, returning the encoded block (padded to
// size) and the postings that did not fit. Pack never returns zero
// consumed postings unless in is empty: a block budget smaller than one
// posting's worst-case size is a configuration error, not handled here.
func Pack(in []postings.Posting, size int) (encoded []byte, remaining []postings.Posting) {
	if len(in) == 0 {
		return nil, in
	}

	termBuf := make([]byte, (size)*2) // generous scratch; trimmed below
	docBuf := make([]byte, (size)*2)
	tp, dp := 0, 0

	baseTerm := in[0].Term
	lastTerm := baseTerm
	n := len(in)
	for i, p := range in {
		delta := p.Term - lastTerm
		tn := varint.Size(delta)
		dn := varint.Size(p.DocID)
		if HeaderSize+tp+tn+dp+dn+FooterSize > size {
			n = i
			break
		}
		tp += varint.PutUvarint32(termBuf[tp:], delta)
		dp += varint.PutUvarint32(docBuf[dp:], p.DocID)
		lastTerm = p.Term
	}
	if n == 0 {
		// Even a single posting does not fit; caller's block size is too small.
		n = 1
		tp = varint.PutUvarint32(termBuf, 0)
		dp = varint.PutUvarint32(docBuf, in[0].DocID)
	}

	buf := make([]byte, size)
	binary.LittleEndian.PutUint32(buf[0:4], baseTerm)
	binary.LittleEndian.PutUint32(buf[4:8], uint32(n))
	off := HeaderSize
	off += copy(buf[off:], termBuf[:tp])
	off += copy(buf[off:], docBuf[:dp])

	checksum := crc32.ChecksumIEEE(buf[:len(buf)-FooterSize])
	binary.LittleEndian.PutUint32(buf[len(buf)-FooterSize:], checksum)

	return buf, in[n:]
}

// Unpack decodes a single fixed-size block back into its postings in
// ascending canonical order. It returns ferrors.CorruptSegment-compatible
// errors (via the caller, which knows the segment id and offset) when the
// checksum does not match or the encoded data is malformed.
func Unpack(buf []byte) ([]postings.Posting, error) {
	if len(buf) < HeaderSize+FooterSize {
		return nil, errInvalidHeader
	}

	baseTerm := binary.LittleEndian.Uint32(buf[0:4])
	n := binary.LittleEndian.Uint32(buf[4:8])

	body := buf[HeaderSize : len(buf)-FooterSize]
	wantChecksum := binary.LittleEndian.Uint32(buf[len(buf)-FooterSize:])
	gotChecksum := crc32.ChecksumIEEE(buf[:HeaderSize+len(body)])
	if gotChecksum != wantChecksum {
		return nil, errChecksumMismatch
	}

	out := make([]postings.Posting, n)
	ptr := 0
	term := baseTerm
	for i := range out {
		delta, consumed := varint.Uvarint32(body[ptr:])
		if consumed <= 0 {
			return nil, errInvalidBody
		}
		term += delta
		out[i].Term = term
		ptr += consumed
	}
	for i := range out {
		docID, consumed := varint.Uvarint32(body[ptr:])
		if consumed <= 0 {
			return nil, errInvalidBody
		}
		out[i].DocID = docID
		ptr += consumed
	}
	return out, nil
}

var (
	errInvalidHeader    = ferrors.InvalidArgument("block smaller than header+footer")
	errChecksumMismatch = ferrors.InvalidArgument("block checksum mismatch")
	errInvalidBody      = ferrors.InvalidArgument("block body truncated or malformed")
)

// IsChecksumError reports whether err is the checksum-mismatch sentinel
// Unpack returns, so callers can translate it into ferrors.CorruptSegment
// with their own segment id and block offset.
func IsChecksumError(err error) bool {
	return err == errChecksumMismatch
}
