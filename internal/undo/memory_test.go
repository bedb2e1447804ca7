package undo

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/pricebook/internal/domain"
)

func TestMemoryStore_ConsumeOnce(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	snap := Snapshot{JobID: "job-1", Entries: []domain.PreviousPrice{{ItemID: "a", Price: 10}}}
	require.NoError(t, s.Open(ctx, "job-1", snap, 30*time.Second))

	peeked, err := s.Peek(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, "job-1", peeked.JobID)

	got, err := s.Consume(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, "a", got.Entries[0].ItemID)

	_, err = s.Consume(ctx, "job-1")
	assert.ErrorIs(t, err, domain.ErrUndoWindowClosed)
}

func TestMemoryStore_Expiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s := NewMemoryStore()
	s.now = func() time.Time { return now }

	require.NoError(t, s.Open(ctx, "job-1", Snapshot{JobID: "job-1"}, 30*time.Second))

	now = now.Add(29 * time.Second)
	_, err := s.Peek(ctx, "job-1")
	require.NoError(t, err)

	now = now.Add(time.Second)
	_, err = s.Peek(ctx, "job-1")
	assert.ErrorIs(t, err, domain.ErrUndoWindowClosed)
	_, err = s.Consume(ctx, "job-1")
	assert.ErrorIs(t, err, domain.ErrUndoWindowClosed)
}

func TestMemoryStore_ConcurrentConsume(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Open(ctx, "job-1", Snapshot{JobID: "job-1"}, time.Minute))

	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Consume(ctx, "job-1"); err == nil {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins)
}
