package runtime

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestServerForHashCoversFullRange(t *testing.T) {
	require.Equal(t, 0, ServerForHash(0, 4))
	require.Equal(t, 3, ServerForHash(math.MaxUint64, 4))
	require.Equal(t, 0, ServerForHash(0, 1))
	require.Equal(t, 0, ServerForHash(math.MaxUint64, 1), "a single partition always routes to index 0")
}

func TestServerForHashIsDeterministic(t *testing.T) {
	for _, h := range []uint64{0, 17, 1 << 40, math.MaxUint64 / 2, math.MaxUint64} {
		require.Equal(t, ServerForHash(h, 8), ServerForHash(h, 8))
	}
}

func TestServerForHashBucketsAreOrdered(t *testing.T) {
	n := 5
	rangeSize := ^uint64(0) / uint64(n)
	for i := 0; i < n; i++ {
		got := ServerForHash(uint64(i)*rangeSize, n)
		require.Equal(t, i, got)
	}
}

func TestHashKeyBytesIsStableForEqualInput(t *testing.T) {
	require.Equal(t, hashKeyBytes([]byte("alpha")), hashKeyBytes([]byte("alpha")))
	require.NotEqual(t, hashKeyBytes([]byte("alpha")), hashKeyBytes([]byte("beta")))
}
