package yap

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInt64RoundTrip(t *testing.T) {
	for _, v := range []int64{0, 1, -1, math.MaxInt64, math.MinInt64} {
		got, ok := decodeInt64(encodeInt64(v))
		require.True(t, ok)
		require.Equal(t, v, got)
	}
}

func TestFloat64RoundTrip(t *testing.T) {
	for _, v := range []float64{0, 1.5, -1.5, math.Inf(1), math.Inf(-1)} {
		got, ok := decodeFloat64(encodeFloat64(v))
		require.True(t, ok)
		require.Equal(t, v, got)
	}
}

func TestDecodeRejectsWrongLength(t *testing.T) {
	_, ok := decodeInt64([]byte{1, 2, 3})
	require.False(t, ok)
	_, ok = decodeFloat64(nil)
	require.False(t, ok)
}
