package buffer

import (
	"github.com/stretchr/testify/require"
	"math/rand/v2"
	"testing"
)

func TestPackedRoundTripAllWidths(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	for width := uint8(1); width <= MaxWidth; width++ {
		const n = 300
		p := NewPacked(n, width)
		want := make([]uint64, n)
		for i := range want {
			want[i] = rng.Uint64() & (1<<width - 1)
			p.Set(i, want[i])
		}
		for i := range want {
			require.Equal(t, want[i], p.Get(i), "width=%d i=%d", width, i)
		}
	}
}

func TestPackedSetDoesNotClobberNeighbours(t *testing.T) {
	p := NewPacked(10, 7)
	for i := 0; i < 10; i++ {
		p.Set(i, 127)
	}
	p.Set(4, 0)
	for i := 0; i < 10; i++ {
		if i == 4 {
			require.Equal(t, uint64(0), p.Get(i))
			continue
		}
		require.Equal(t, uint64(127), p.Get(i))
	}
}

func TestPackedTruncatesToWidth(t *testing.T) {
	p := NewPacked(3, 4)
	p.Set(1, 0xff)
	require.Equal(t, uint64(0xf), p.Get(1))
	require.Equal(t, uint64(0), p.Get(0))
	require.Equal(t, uint64(0), p.Get(2))
}

func TestPackedAlignedChunksOwnWholeWords(t *testing.T) {
	for width := uint8(1); width <= MaxWidth; width++ {
		p := NewPacked(128, width)
		// field 64 begins exactly at bit 64*width, i.e. a word boundary
		require.Zero(t, (64*uint(width))%64)
		p.Set(63, 1<<width-1)
		require.Equal(t, uint64(0), p.Get(64))
	}
}

func TestPackedCloneAndEqual(t *testing.T) {
	p := NewPacked(20, 5)
	p.Set(3, 17)
	c := p.Clone()
	require.True(t, p.Equal(&c))
	c.Set(3, 2)
	require.False(t, p.Equal(&c))
	require.Equal(t, uint64(17), p.Get(3))
}

func TestPackedMinAndBytes(t *testing.T) {
	p := NewPacked(65, 8)
	for i := 0; i < 65; i++ {
		p.Set(i, 200)
	}
	p.Set(64, 3)
	require.Equal(t, uint64(3), p.Min())
	require.Equal(t, 72, p.Bytes()) // 65*8 bits -> 9 words
}
