package hash

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCRC32C_Streaming(t *testing.T) {
	data := []byte("the quick brown fox")
	h := NewCRC32C()
	_, _ = h.Write(data[:5])
	_, _ = h.Write(data[5:])
	assert.Equal(t, CRC32C(data), h.Sum32())
}

func TestSizes(t *testing.T) {
	assert.Equal(t, Sizes([]int64{16, 8, 32}), Sizes([]int64{16, 8, 32}))
	assert.NotEqual(t, Sizes([]int64{16, 8, 32}), Sizes([]int64{8, 16, 32}))
	assert.NotEqual(t, Sizes([]int64{16}), Sizes([]int64{16, 0}))
}
