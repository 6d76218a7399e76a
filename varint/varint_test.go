package varint

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoundTrip(t *testing.T) {
	values := []uint32{0, 1, 127, 128, 129, 16383, 16384, 1 << 20, 1<<32 - 1}
	buf := make([]byte, MaxLen32)
	for _, v := range values {
		n := PutUvarint32(buf, v)
		assert.Equal(t, Size(v), n)
		got, m := Uvarint32(buf[:n])
		assert.Equal(t, n, m)
		assert.Equal(t, v, got)
	}
}

func TestUvarint32_ShortBuffer(t *testing.T) {
	_, n := Uvarint32([]byte{0x80, 0x80})
	assert.Equal(t, 0, n)
}
