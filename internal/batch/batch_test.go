package batch

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seq(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

func TestChunks(t *testing.T) {
	tests := []struct {
		name  string
		n     int
		size  int
		sizes []int
	}{
		{name: "empty", n: 0, size: 50, sizes: nil},
		{name: "exact multiple", n: 100, size: 50, sizes: []int{50, 50}},
		{name: "remainder", n: 237, size: 50, sizes: []int{50, 50, 50, 50, 37}},
		{name: "smaller than size", n: 7, size: 100, sizes: []int{7}},
		{name: "non-positive size", n: 3, size: 0, sizes: []int{3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunks := Chunks(seq(tt.n), tt.size)
			var got []int
			for _, c := range chunks {
				got = append(got, len(c))
			}
			assert.Equal(t, tt.sizes, got)
		})
	}
}

func TestChunks_AppendDoesNotClobberNextChunk(t *testing.T) {
	chunks := Chunks(seq(4), 2)
	_ = append(chunks[0], 99)
	assert.Equal(t, []int{2, 3}, chunks[1])
}

func TestEach_IsolatesChunkErrors(t *testing.T) {
	boom := errors.New("boom")
	results, err := Each(context.Background(), seq(10), 3, func(_ context.Context, i int, _ []int) error {
		if i == 1 {
			return boom
		}
		return nil
	})
	require.NoError(t, err)
	require.Len(t, results, 4)
	assert.NoError(t, results[0].Err)
	assert.ErrorIs(t, results[1].Err, boom)
	assert.NoError(t, results[2].Err)
	assert.Equal(t, 1, results[3].Size)
}

func TestEach_Stop(t *testing.T) {
	results, err := Each(context.Background(), seq(10), 2, func(_ context.Context, i int, _ []int) error {
		if i == 2 {
			return ErrStop
		}
		return nil
	})
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestEach_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	results, err := Each(ctx, seq(10), 2, func(_ context.Context, i int, _ []int) error {
		if i == 0 {
			cancel()
		}
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, results, 1)
}
