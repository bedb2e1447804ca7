// Package batch splits bulk operations into fixed-size chunks so that each
// backend call stays under query-parameter limits.
package batch

import (
	"context"
	"errors"
)

// ErrStop may be returned from a chunk callback to end iteration early
// without reporting an error.
var ErrStop = errors.New("batch: stop")

// Chunks splits items into consecutive slices of at most size elements.
// The returned slices share the backing array of items.
func Chunks[T any](items []T, size int) [][]T {
	if size <= 0 {
		size = len(items)
	}
	if len(items) == 0 {
		return nil
	}
	out := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		out = append(out, items[start:end:end])
	}
	return out
}

// ChunkResult is the outcome of one chunk.
type ChunkResult struct {
	Index int
	Size  int
	Err   error
}

// Each runs fn over every chunk in order. A chunk error is captured in its
// ChunkResult and does not stop later chunks. Iteration ends early when the
// context is done or fn returns ErrStop; in both cases the chunks already run
// are returned together with the context error (nil for ErrStop).
func Each[T any](ctx context.Context, items []T, size int, fn func(ctx context.Context, index int, chunk []T) error) ([]ChunkResult, error) {
	chunks := Chunks(items, size)
	results := make([]ChunkResult, 0, len(chunks))
	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		err := fn(ctx, i, chunk)
		if errors.Is(err, ErrStop) {
			return results, nil
		}
		results = append(results, ChunkResult{Index: i, Size: len(chunk), Err: err})
	}
	return results, nil
}
