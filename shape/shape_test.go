package shape

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMakeClonesDims(t *testing.T) {
	dims := []int64{2, 3}
	d := Make("float", dims...)
	dims[0] = 99
	require.Equal(t, []int64{2, 3}, d.Dims)
}

func TestMakeNegativeDimPanics(t *testing.T) {
	require.Panics(t, func() { Make("float", -1) })
}

func TestRankAndSize(t *testing.T) {
	tests := []struct {
		name string
		d    Descriptor
		rank int
		size int64
	}{
		{"scalar", Make("double"), 0, 1},
		{"vector", Make("double", 4), 1, 4},
		{"matrix", Make("float", 2, 3), 2, 6},
		{"empty axis", Make("float", 4, 0), 2, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.rank, tt.d.Rank())
			assert.Equal(t, tt.size, tt.d.Size())
		})
	}
}

func TestEqual(t *testing.T) {
	assert.True(t, Make("double", 4).Equal(Make("double", 4)))
	assert.False(t, Make("double", 4).Equal(Make("float", 4)))
	assert.False(t, Make("double", 4).Equal(Make("double", 4, 1)))
	assert.True(t, Make("double").Equal(Make("double")))
}

func TestString(t *testing.T) {
	assert.Equal(t, "(double)[4]", Make("double", 4).String())
	assert.Equal(t, "(float)[2 3]", Make("float", 2, 3).String())
	assert.Equal(t, "(int32_t)[]", Make("int32_t").String())
}

func TestSizeOf(t *testing.T) {
	n, ok := SizeOf("double")
	require.True(t, ok)
	assert.Equal(t, int64(8), n)

	_, ok = SizeOf("struct foo")
	assert.False(t, ok)
}

func TestBytes(t *testing.T) {
	n, ok := Make("float", 2, 3).Bytes()
	require.True(t, ok)
	assert.Equal(t, int64(24), n)

	_, ok = Make("mytype", 4).Bytes()
	assert.False(t, ok)
}
