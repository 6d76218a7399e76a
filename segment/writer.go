package segment

import (
	"bufio"
	"encoding/binary"
	"hash/crc32"
	"log"
	"time"

	"github.com/pkg/errors"

	"github.com/fpindex/fpindex/bitset"
	"github.com/fpindex/fpindex/block"
	"github.com/fpindex/fpindex/postings"
	"github.com/fpindex/fpindex/vfs"
)

// Write encodes reader's postings into a new segment with the given id,
// using the default block size. tombstones are docIDs deleted from the
// source in-memory segment (or carried forward from a merged segment)
// that have no live postings of their own; they are folded into the
// segment's presence sketch so a later merge still masks out any
// lower-id segment's postings for them (spec §4.4 "Flush", §4.5 "present
// docIds sketch").
func Write(fs vfs.FileSystem, id ID, reader postings.Reader, tombstones []uint32) (Info, error) {
	return WriteSized(fs, id, reader, tombstones, block.DefaultSize)
}

// WriteSized is Write with an explicit block size, exposed for tests that
// need small blocks to exercise multi-block behavior cheaply.
func WriteSized(fs vfs.FileSystem, id ID, reader postings.Reader, tombstones []uint32, blockSize int) (Info, error) {
	info := Info{ID: id, BlockSize: blockSize}
	started := time.Now()

	dataFile, err := fs.CreateFile(info.DataFileName())
	if err != nil {
		return Info{}, errors.Wrap(err, "create data file failed")
	}
	defer dataFile.Close()

	dataWriter := bufio.NewWriter(dataFile)
	checksum := crc32.NewIEEE()
	present := bitset.New(0)

	var skipIndex []skipEntry
	var offset uint64

	pending, err := postings.ReadAll(reader)
	if err != nil {
		return Info{}, errors.Wrap(err, "reading input postings failed")
	}

	for len(pending) > 0 {
		before := pending
		var encoded []byte
		encoded, pending = block.Pack(pending, blockSize)
		if len(encoded) == 0 {
			break
		}
		consumed := before[:len(before)-len(pending)]

		if _, err := dataWriter.Write(encoded); err != nil {
			return Info{}, errors.Wrap(err, "writing block failed")
		}
		if _, err := checksum.Write(encoded); err != nil {
			return Info{}, err
		}

		for _, p := range consumed {
			present.Add(p.DocID)
			if p.Term > info.LastTerm {
				info.LastTerm = p.Term
			}
		}

		skipIndex = append(skipIndex, skipEntry{firstTerm: consumed[0].Term, offset: offset})
		offset += uint64(len(encoded))
		info.BlockCount++
	}

	for _, docID := range tombstones {
		present.Add(docID)
	}

	if err := dataWriter.Flush(); err != nil {
		return Info{}, errors.Wrap(err, "flushing data file failed")
	}
	if err := dataFile.Commit(); err != nil {
		return Info{}, errors.Wrap(err, "committing data file failed")
	}

	info.Checksum = checksum.Sum32()
	info.DocCountEstimate = present.Len()

	if err := writeIndexFile(fs, info, skipIndex, present); err != nil {
		return Info{}, errors.Wrap(err, "writing index file failed")
	}

	log.Printf("segment: wrote segment %d (blocks=%d docs=%d checksum=0x%08x duration=%s)",
		uint64(id), info.BlockCount, info.DocCountEstimate, info.Checksum, time.Since(started))

	return info, nil
}

func writeIndexFile(fs vfs.FileSystem, info Info, skipIndex []skipEntry, present *presentDocs) error {
	file, err := fs.CreateFile(info.IndexFileName())
	if err != nil {
		return err
	}
	defer file.Close()

	w := bufio.NewWriter(file)

	for _, e := range skipIndex {
		if err := binary.Write(w, binary.LittleEndian, e.firstTerm); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, e.offset); err != nil {
			return err
		}
	}

	if err := present.Write(w); err != nil {
		return err
	}

	if err := binary.Write(w, binary.LittleEndian, uint64(info.BlockCount)); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint64(info.BlockSize)); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, info.LastTerm); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint64(info.Checksum)); err != nil {
		return err
	}

	if err := w.Flush(); err != nil {
		return err
	}
	return file.Commit()
}

// Remove deletes both files backing a segment at once. It does not wait
// for readers that still hold the segment open.
func Remove(fs vfs.FileSystem, info Info) error {
	if err := fs.RemoveFile(info.DataFileName()); err != nil {
		return errors.Wrapf(err, "failed to remove %s", info.DataFileName())
	}
	if err := fs.RemoveFile(info.IndexFileName()); err != nil {
		return errors.Wrapf(err, "failed to remove %s", info.IndexFileName())
	}
	return nil
}
