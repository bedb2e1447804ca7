package service

import (
	"context"

	"github.com/timmy/pricebook/internal/activity"
	"github.com/timmy/pricebook/internal/domain"
	"github.com/timmy/pricebook/internal/logger"
)

// CatalogAccessor is the catalog storage layer the engine reads prices from
// and writes overrides to. Calls taking id lists accept at most 100 ids.
type CatalogAccessor interface {
	ListItemIDs(ctx context.Context, orgID string) ([]string, error)
	ItemsByIDs(ctx context.Context, ids []string) ([]domain.CatalogItem, error)
	CostCodesByIDs(ctx context.Context, ids []string) ([]domain.CostCode, error)
	ListOverrides(ctx context.Context, orgID string, itemIDs []string) ([]domain.PriceOverride, error)
	PricedItems(ctx context.Context, orgID string, ids []string) ([]domain.PricedItem, error)
	UpsertOverrides(ctx context.Context, orgID string, writes []domain.OverrideWrite) error
	UpsertOverride(ctx context.Context, orgID string, w domain.OverrideWrite) error
	DeleteOverrides(ctx context.Context, orgID string, itemIDs []string) error
	DeleteOverride(ctx context.Context, orgID, itemID string) error
}

// JobStore persists pricing jobs. Mark* methods report false when the job
// was not in a state that allows the transition.
type JobStore interface {
	Create(ctx context.Context, job *domain.PricingJob) error
	GetByID(ctx context.Context, id string) (*domain.PricingJob, error)
	MarkProcessing(ctx context.Context, id string) (bool, error)
	UpdateProgress(ctx context.Context, id string, processed int, summary *domain.ResultSummary) error
	UpdateTotal(ctx context.Context, id string, total int) error
	MarkCompleted(ctx context.Context, id string, summary *domain.ResultSummary) (bool, error)
	MarkFailed(ctx context.Context, id, message string, summary *domain.ResultSummary) (bool, error)
	ListActiveByOrg(ctx context.Context, orgID string) ([]domain.PricingJob, error)
}

// ModeStore persists pricing modes.
type ModeStore interface {
	Create(ctx context.Context, mode *domain.PricingMode) error
	GetByID(ctx context.Context, id string) (*domain.PricingMode, error)
	ListForOrg(ctx context.Context, orgID string) ([]domain.PricingMode, error)
	ListPresets(ctx context.Context) ([]domain.PricingMode, error)
	PresetExists(ctx context.Context, name string) (bool, error)
	Delete(ctx context.Context, id string) error
	IncrementUsage(ctx context.Context, id string) error
	RecordEstimate(ctx context.Context, id string, won bool) error
}

// recordActivity writes an audit entry. Failures are logged and swallowed so
// they never undo the change being recorded.
func recordActivity(ctx context.Context, sink activity.Logger, entry domain.ActivityEntry) {
	if sink == nil {
		return
	}
	if err := sink.Log(ctx, entry); err != nil {
		logger.FromContext(ctx).WithFields(logger.Fields{
			"entity_type": entry.EntityType,
			"entity_id":   entry.EntityID,
			"action":      entry.Action,
		}).WithError(err).Warn("Failed to record activity")
	}
}
