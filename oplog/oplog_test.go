package oplog

import (
	stderrors "errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fpindex/fpindex/ferrors"
	"github.com/fpindex/fpindex/vfs"
)

// rawReadFile and rawWriteFile let tests bypass Log's own rewrite() to
// inject a truncated or corrupted oplog.log directly.
func rawReadFile(t *testing.T, fs vfs.FileSystem) []byte {
	t.Helper()
	f, err := fs.OpenFile(FileName)
	require.NoError(t, err)
	defer f.Close()
	data, err := io.ReadAll(f)
	require.NoError(t, err)
	return data
}

func rawWriteFile(t *testing.T, fs vfs.FileSystem, data []byte) {
	t.Helper()
	f, err := fs.CreateFile(FileName)
	require.NoError(t, err)
	_, err = f.Write(data)
	require.NoError(t, err)
	require.NoError(t, f.Commit())
	require.NoError(t, fs.Sync())
}

func TestOpen_Empty(t *testing.T) {
	fs := vfs.OpenMem()
	l, err := Open(fs)
	require.NoError(t, err)
	assert.Empty(t, l.Records())
}

func TestAppend_AssignsIncreasingSeq(t *testing.T) {
	fs := vfs.OpenMem()
	l, err := Open(fs)
	require.NoError(t, err)

	seq1, err := l.Append(Record{Kind: KindUpsert, DocID: 1, Terms: []uint32{10}})
	require.NoError(t, err)
	seq2, err := l.Append(Record{Kind: KindUpsert, DocID: 2, Terms: []uint32{20}})
	require.NoError(t, err)

	assert.Equal(t, uint64(1), seq1)
	assert.Equal(t, uint64(2), seq2)
	assert.Len(t, l.Records(), 2)
}

func TestReopen_ReplaysRecords(t *testing.T) {
	fs := vfs.OpenMem()
	l, err := Open(fs)
	require.NoError(t, err)

	_, err = l.Append(Record{Kind: KindUpsert, DocID: 111, Terms: []uint32{1, 2, 3}})
	require.NoError(t, err)
	_, err = l.Append(Record{Kind: KindDelete, DocID: 5})
	require.NoError(t, err)

	l2, err := Open(fs)
	require.NoError(t, err)
	records := l2.Records()
	require.Len(t, records, 2)
	assert.Equal(t, KindUpsert, records[0].Kind)
	assert.Equal(t, uint32(111), records[0].DocID)
	assert.Equal(t, []uint32{1, 2, 3}, records[0].Terms)
	assert.Equal(t, KindDelete, records[1].Kind)
	assert.Equal(t, uint32(5), records[1].DocID)
}

func TestTruncate_DropsCheckpointedRecords(t *testing.T) {
	fs := vfs.OpenMem()
	l, err := Open(fs)
	require.NoError(t, err)

	seq1, err := l.Append(Record{Kind: KindUpsert, DocID: 1})
	require.NoError(t, err)
	_, err = l.Append(Record{Kind: KindUpsert, DocID: 2})
	require.NoError(t, err)

	require.NoError(t, l.Truncate(seq1))
	records := l.Records()
	require.Len(t, records, 1)
	assert.Equal(t, uint32(2), records[0].DocID)

	l2, err := Open(fs)
	require.NoError(t, err)
	assert.Len(t, l2.Records(), 1)
}

func TestTruncate_AllRecordsLeavesEmptyLog(t *testing.T) {
	fs := vfs.OpenMem()
	l, err := Open(fs)
	require.NoError(t, err)

	seq, err := l.Append(Record{Kind: KindUpsert, DocID: 1})
	require.NoError(t, err)
	require.NoError(t, l.Truncate(seq))

	l2, err := Open(fs)
	require.NoError(t, err)
	assert.Empty(t, l2.Records())
}

func TestLastSeq(t *testing.T) {
	fs := vfs.OpenMem()
	l, err := Open(fs)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), l.LastSeq())

	seq1, err := l.Append(Record{Kind: KindUpsert, DocID: 1})
	require.NoError(t, err)
	assert.Equal(t, seq1, l.LastSeq())

	seq2, err := l.Append(Record{Kind: KindUpsert, DocID: 2})
	require.NoError(t, err)
	assert.Equal(t, seq2, l.LastSeq())
}

func TestReopen_TrailingPartialRecordIsDroppedSilently(t *testing.T) {
	fs := vfs.OpenMem()
	l, err := Open(fs)
	require.NoError(t, err)

	_, err = l.Append(Record{Kind: KindUpsert, DocID: 1, Terms: []uint32{10}})
	require.NoError(t, err)
	_, err = l.Append(Record{Kind: KindUpsert, DocID: 2, Terms: []uint32{20}})
	require.NoError(t, err)

	full := rawReadFile(t, fs)
	// Cut off the file partway through the last record's bytes, simulating
	// a crash mid-rewrite; the first record is still fully intact.
	rawWriteFile(t, fs, full[:len(full)-3])

	l2, err := Open(fs)
	require.NoError(t, err)
	records := l2.Records()
	require.Len(t, records, 1)
	assert.Equal(t, uint32(1), records[0].DocID)
}

func TestReopen_CorruptChecksumFailsWithCorruptIndex(t *testing.T) {
	fs := vfs.OpenMem()
	l, err := Open(fs)
	require.NoError(t, err)

	_, err = l.Append(Record{Kind: KindUpsert, DocID: 1, Terms: []uint32{10}})
	require.NoError(t, err)

	full := rawReadFile(t, fs)
	// Flip a byte inside the JSON payload without touching the length or
	// checksum fields, so the record is fully present but invalid.
	corrupt := append([]byte(nil), full...)
	corrupt[4] ^= 0xff
	rawWriteFile(t, fs, corrupt)

	_, err = Open(fs)
	require.Error(t, err)
	var ci *ferrors.CorruptIndexError
	assert.True(t, stderrors.As(err, &ci))
}

func TestSetAttributeRecord_RoundTrips(t *testing.T) {
	fs := vfs.OpenMem()
	l, err := Open(fs)
	require.NoError(t, err)

	_, err = l.Append(Record{Kind: KindSetAttribute, Key: "alias", Value: "v2"})
	require.NoError(t, err)

	l2, err := Open(fs)
	require.NoError(t, err)
	records := l2.Records()
	require.Len(t, records, 1)
	assert.Equal(t, "alias", records[0].Key)
	assert.Equal(t, "v2", records[0].Value)
}
