package segment

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fpindex/fpindex/postings"
	"github.com/fpindex/fpindex/vfs"
)

func buildSegment(t *testing.T, fs vfs.FileSystem, id ID, data map[uint32][]uint32) Info {
	t.Helper()
	var all []postings.Posting
	numDocs := 0
	for docID, terms := range data {
		numDocs++
		for _, term := range terms {
			all = append(all, postings.Posting{Term: term, DocID: docID})
		}
	}
	reader := postings.NewSliceReader(numDocs, all)
	info, err := Write(fs, id, reader, nil)
	require.NoError(t, err)
	return info
}

func TestWriteOpenFind(t *testing.T) {
	fs := vfs.OpenMem()
	info := buildSegment(t, fs, 1, map[uint32][]uint32{
		111: {1, 2, 3},
		112: {3, 4, 5},
	})

	r, err := Open(fs, info)
	require.NoError(t, err)
	defer r.Close()

	docs, err := r.Find(3)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uint32{111, 112}, docs)

	docs, err = r.Find(1)
	require.NoError(t, err)
	assert.Equal(t, []uint32{111}, docs)

	docs, err = r.Find(99)
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestWriteOpen_SpansMultipleBlocks(t *testing.T) {
	fs := vfs.OpenMem()

	data := make(map[uint32][]uint32)
	var terms []uint32
	for i := uint32(0); i < 400; i++ {
		terms = append(terms, i)
	}
	data[1] = terms

	var all []postings.Posting
	for _, term := range terms {
		all = append(all, postings.Posting{Term: term, DocID: 1})
	}
	reader := postings.NewSliceReader(1, all)
	info, err := WriteSized(fs, 1, reader, nil, 64)
	require.NoError(t, err)
	require.Greater(t, info.BlockCount, 1)

	r, err := Open(fs, info)
	require.NoError(t, err)
	defer r.Close()

	for _, term := range []uint32{0, 100, 250, 399} {
		docs, err := r.Find(term)
		require.NoError(t, err)
		assert.Equal(t, []uint32{1}, docs, "term %d", term)
	}
}

func TestReader_IterRange(t *testing.T) {
	fs := vfs.OpenMem()
	info := buildSegment(t, fs, 1, map[uint32][]uint32{
		1: {10, 20, 30},
	})
	r, err := Open(fs, info)
	require.NoError(t, err)
	defer r.Close()

	all, err := postings.ReadAll(r.Reader())
	require.NoError(t, err)
	assert.Equal(t, []postings.Posting{{Term: 10, DocID: 1}, {Term: 20, DocID: 1}, {Term: 30, DocID: 1}}, all)

	ranged, err := postings.ReadAll(r.IterRange(15, 25))
	require.NoError(t, err)
	assert.Equal(t, []postings.Posting{{Term: 20, DocID: 1}}, ranged)
}

func TestReader_ContainsTermRange(t *testing.T) {
	fs := vfs.OpenMem()
	info := buildSegment(t, fs, 1, map[uint32][]uint32{1: {10, 20}})
	r, err := Open(fs, info)
	require.NoError(t, err)
	defer r.Close()

	assert.True(t, r.ContainsTermRange(5, 15))
	assert.False(t, r.ContainsTermRange(21, 30))
}

func TestReader_ContainsDoc(t *testing.T) {
	fs := vfs.OpenMem()
	info := buildSegment(t, fs, 1, map[uint32][]uint32{111: {1}})
	r, err := Open(fs, info)
	require.NoError(t, err)
	defer r.Close()

	assert.True(t, r.ContainsDoc(111))
	assert.False(t, r.ContainsDoc(222))
}

func TestWrite_TombstonesJoinPresenceSketch(t *testing.T) {
	fs := vfs.OpenMem()
	reader := postings.NewSliceReader(1, []postings.Posting{{Term: 1, DocID: 111}})
	info, err := Write(fs, 1, reader, []uint32{999})
	require.NoError(t, err)

	r, err := Open(fs, info)
	require.NoError(t, err)
	defer r.Close()

	assert.True(t, r.ContainsDoc(111))
	assert.True(t, r.ContainsDoc(999))
	assert.False(t, r.ContainsDoc(1))

	docs, err := r.Find(1)
	require.NoError(t, err)
	assert.Equal(t, []uint32{111}, docs, "tombstoned doc has no postings")
}

func TestReader_HasLivePosting(t *testing.T) {
	fs := vfs.OpenMem()
	reader := postings.NewSliceReader(1, []postings.Posting{{Term: 1, DocID: 111}})
	info, err := Write(fs, 1, reader, []uint32{999})
	require.NoError(t, err)

	r, err := Open(fs, info)
	require.NoError(t, err)
	defer r.Close()

	live, err := r.HasLivePosting(111)
	require.NoError(t, err)
	assert.True(t, live)

	live, err = r.HasLivePosting(999)
	require.NoError(t, err)
	assert.False(t, live, "a tombstoned doc is present but not live")

	live, err = r.HasLivePosting(222)
	require.NoError(t, err)
	assert.False(t, live)
}

func TestOpen_CorruptChecksum(t *testing.T) {
	fs := vfs.OpenMem()
	info := buildSegment(t, fs, 1, map[uint32][]uint32{1: {10}})

	df, err := fs.OpenFile(info.DataFileName())
	require.NoError(t, err)
	buf := make([]byte, 8)
	_, err = df.ReadAt(buf, 0)
	require.NoError(t, err)
	df.Close()

	// Corrupt the data file directly by recreating it with a flipped byte.
	wf, err := fs.CreateFile(info.DataFileName() + ".tmp")
	require.NoError(t, err)
	full := make([]byte, 1024)
	df2, _ := fs.OpenFile(info.DataFileName())
	_, _ = io.ReadFull(df2, full)
	df2.Close()
	full[10] ^= 0xff
	_, _ = wf.Write(full)
	require.NoError(t, wf.Commit())
	wf.Close()
	require.NoError(t, fs.RemoveFile(info.DataFileName()))
	require.NoError(t, fs.Rename(info.DataFileName()+".tmp", info.DataFileName()))

	r, err := Open(fs, info)
	require.NoError(t, err) // header/skip index are still valid
	defer r.Close()

	_, err = r.Find(10)
	require.Error(t, err)
}

func TestCache_AcquireRelease(t *testing.T) {
	fs := vfs.OpenMem()
	info := buildSegment(t, fs, 1, map[uint32][]uint32{1: {10}})

	cache := NewCache(1, func(name string) (vfs.FileSystem, bool) {
		if name == "idx" {
			return fs, true
		}
		return nil, false
	})

	r1, err := cache.Acquire("idx", info)
	require.NoError(t, err)
	r2, err := cache.Acquire("idx", info)
	require.NoError(t, err)
	assert.Same(t, r1, r2, "a cache hit must return the same Reader")

	cache.Release("idx", info)
	cache.Release("idx", info)
}

func TestCache_EvictsUnderCapacity(t *testing.T) {
	fs := vfs.OpenMem()
	info1 := buildSegment(t, fs, 1, map[uint32][]uint32{1: {10}})
	info2 := buildSegment(t, fs, 2, map[uint32][]uint32{2: {20}})

	cache := NewCache(1, func(name string) (vfs.FileSystem, bool) { return fs, true })

	r1, err := cache.Acquire("idx", info1)
	require.NoError(t, err)
	cache.Release("idx", info1)

	_, err = cache.Acquire("idx", info2)
	require.NoError(t, err)
	cache.Release("idx", info2)

	// info1's reader was evicted and closed; re-acquiring opens it again
	// rather than returning the stale, closed Reader.
	r1b, err := cache.Acquire("idx", info1)
	require.NoError(t, err)
	assert.NotSame(t, r1, r1b)
	cache.Release("idx", info1)
}
