package conv

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOffset(t *testing.T) {
	got, err := Offset("cursor", math.MaxInt64)
	require.NoError(t, err)
	assert.Equal(t, int64(math.MaxInt64), got)

	_, err = Offset("cursor", math.MaxUint64)
	var re *RangeError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "cursor", re.What)
	assert.Contains(t, err.Error(), "18446744073709551615")
}

func TestPersisted(t *testing.T) {
	got, err := Persisted("size", 42)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), got)

	_, err = Persisted("size", -1)
	assert.Error(t, err)
}

func TestIndex(t *testing.T) {
	got, err := Index("area", 7)
	require.NoError(t, err)
	assert.Equal(t, uint32(7), got)

	_, err = Index("area", -1)
	assert.Error(t, err)
	if math.MaxInt > math.MaxUint32 {
		_, err = Index("area", math.MaxUint32+1)
		assert.Error(t, err)
	}
}

func TestLength(t *testing.T) {
	got, err := Length("key", math.MaxUint16)
	require.NoError(t, err)
	assert.Equal(t, uint16(math.MaxUint16), got)

	_, err = Length("key", math.MaxUint16+1)
	assert.Error(t, err)
}
