// Package activity delivers audit-log entries to one or more sinks. Delivery
// is best effort: callers log failures and carry on.
package activity

import (
	"context"
	"errors"

	"github.com/timmy/pricebook/internal/domain"
)

// Logger accepts audit-log entries.
type Logger interface {
	Log(ctx context.Context, entry domain.ActivityEntry) error
}

// Multi fans an entry out to every sink and joins their errors.
type Multi []Logger

// Log implements Logger.
func (m Multi) Log(ctx context.Context, entry domain.ActivityEntry) error {
	var errs []error
	for _, l := range m {
		if l == nil {
			continue
		}
		if err := l.Log(ctx, entry); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop discards entries.
type Nop struct{}

// Log implements Logger.
func (Nop) Log(context.Context, domain.ActivityEntry) error { return nil }
