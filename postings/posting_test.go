package postings

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeReaders(t *testing.T) {
	r1 := NewSliceReader(1, []Posting{{3, 1}, {5, 1}})
	r2 := NewSliceReader(1, []Posting{{3, 2}, {4, 2}})

	merged := MergeReaders(r1, r2)
	got, err := ReadAll(merged)
	require.NoError(t, err)
	assert.Equal(t, []Posting{{3, 1}, {3, 2}, {4, 2}, {5, 1}}, got)
	assert.Equal(t, 2, merged.NumDocs())
}

func TestMergeReaders_ManyWay(t *testing.T) {
	var readers []Reader
	readers = append(readers, NewSliceReader(1, []Posting{{1, 1}}))
	readers = append(readers, NewSliceReader(1, []Posting{{2, 2}}))
	readers = append(readers, NewSliceReader(1, []Posting{{0, 3}}))
	readers = append(readers, NewSliceReader(1, []Posting{{1, 4}}))

	got, err := ReadAll(MergeReaders(readers...))
	require.NoError(t, err)
	assert.Equal(t, []Posting{{0, 3}, {1, 1}, {1, 4}, {2, 2}}, got)
}

func TestSingleDocReader(t *testing.T) {
	r := NewSingleDocReader(7, []uint32{30, 10, 20})
	block, err := r.ReadBlock()
	assert.Equal(t, io.EOF, err)
	assert.Equal(t, []Posting{{10, 7}, {20, 7}, {30, 7}}, block)
	assert.Equal(t, 1, r.NumDocs())
}
