package bitset

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSparse_AddContainsRemove(t *testing.T) {
	s := New(0)
	s.Add(5)
	s.Add(1 << 20)
	assert.True(t, s.Contains(5))
	assert.True(t, s.Contains(1<<20))
	assert.False(t, s.Contains(6))

	s.Remove(5)
	assert.False(t, s.Contains(5))
	assert.Equal(t, 1, s.Len())
}

func TestSparse_Union(t *testing.T) {
	a := New(0)
	a.Add(1)
	b := New(0)
	b.Add(2)
	a.Union(b)
	assert.True(t, a.Contains(1))
	assert.True(t, a.Contains(2))
}

func TestSparse_Slice(t *testing.T) {
	s := New(0)
	for _, v := range []uint32{30, 10, 20, 10} {
		s.Add(v)
	}
	assert.Equal(t, []uint32{10, 20, 30}, s.Slice())
}

func TestSparse_WriteRead(t *testing.T) {
	s := New(0)
	s.Add(42)
	s.Add(1 << 18)

	var buf bytes.Buffer
	require.NoError(t, s.Write(&buf))

	s2, err := Read(&buf)
	require.NoError(t, err)
	assert.Equal(t, s.Slice(), s2.Slice())
}

func TestSparse_Clone(t *testing.T) {
	s := New(0)
	s.Add(1)
	clone := s.Clone()
	clone.Add(2)
	assert.False(t, s.Contains(2))
	assert.True(t, clone.Contains(2))
}
