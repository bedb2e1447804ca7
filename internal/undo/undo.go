// Package undo keeps short-lived undo windows: a snapshot of pre-change prices
// that may be consumed exactly once before it expires.
package undo

import (
	"context"
	"time"

	"github.com/timmy/pricebook/internal/domain"
)

// Snapshot is the set of prices captured right before a mutation.
type Snapshot struct {
	JobID          string                 `json:"job_id"`
	OrganizationID string                 `json:"organization_id"`
	ModeName       string                 `json:"mode_name"`
	CapturedAt     time.Time              `json:"captured_at"`
	ExpiresAt      time.Time              `json:"expires_at"`
	Entries        []domain.PreviousPrice `json:"entries"`
}

// Store holds undo windows keyed by the apply job they belong to.
type Store interface {
	// Open stores snap under key for ttl, replacing any previous window.
	Open(ctx context.Context, key string, snap Snapshot, ttl time.Duration) error

	// Consume atomically removes and returns the window. It returns
	// domain.ErrUndoWindowClosed when the window expired or was consumed.
	Consume(ctx context.Context, key string) (*Snapshot, error)

	// Peek returns the window without consuming it, with the same error
	// semantics as Consume.
	Peek(ctx context.Context, key string) (*Snapshot, error)
}
