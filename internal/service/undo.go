package service

import (
	"context"
	"fmt"
	"time"

	"github.com/timmy/pricebook/internal/domain"
	"github.com/timmy/pricebook/internal/logger"
	"github.com/timmy/pricebook/internal/storage"
	"github.com/timmy/pricebook/internal/undo"
)

const defaultUndoWindow = 30 * time.Second

// ReportArchiver stores change reports of finished apply jobs.
type ReportArchiver interface {
	Save(ctx context.Context, report *storage.ChangeReport) (string, error)
	Load(ctx context.Context, orgID, jobID string) (*storage.ChangeReport, error)
}

// UndoManager captures pre-change prices and turns them into undo jobs within
// a short window after the change completes.
type UndoManager struct {
	catalog CatalogAccessor
	windows undo.Store
	orch    *Orchestrator
	archive ReportArchiver
	window  time.Duration
	now     func() time.Time
}

// NewUndoManager creates a new UndoManager.
// Parameters:
//   - catalog: current price source for snapshots.
//   - windows: undo window store.
//   - orch: orchestrator that creates undo jobs.
//   - archive: optional change-report archive; nil disables archiving.
//   - window: how long an undo stays available; zero uses 30 seconds.
// Returns:
//   - *UndoManager: initialized manager.
func NewUndoManager(catalog CatalogAccessor, windows undo.Store, orch *Orchestrator, archive ReportArchiver, window time.Duration) *UndoManager {
	if window <= 0 {
		window = defaultUndoWindow
	}
	return &UndoManager{
		catalog: catalog,
		windows: windows,
		orch:    orch,
		archive: archive,
		window:  window,
		now:     time.Now,
	}
}

// Snapshot captures the current effective price of each item together with
// the override it came from, if any. An empty itemIDs captures every item of
// the organization. Unknown items are skipped. Prices are kept unrounded so
// that undo restores them exactly.
func (m *UndoManager) Snapshot(ctx context.Context, orgID string, itemIDs []string) ([]domain.PreviousPrice, error) {
	targets := dedupe(itemIDs)
	if len(targets) == 0 {
		all, err := m.catalog.ListItemIDs(ctx, orgID)
		if err != nil {
			return nil, fmt.Errorf("failed to list items: %w", err)
		}
		targets = all
	}

	chunkSize, concurrency := m.orch.preview.chunkSize, m.orch.preview.concurrency
	return lookup(ctx, targets, chunkSize, concurrency, func(ctx context.Context, chunk []string) ([]domain.PreviousPrice, error) {
		priced, err := m.catalog.PricedItems(ctx, orgID, chunk)
		if err != nil {
			return nil, fmt.Errorf("failed to load prices: %w", err)
		}
		byID := make(map[string]domain.PricedItem, len(priced))
		for _, p := range priced {
			byID[p.Item.ID] = p
		}

		out := make([]domain.PreviousPrice, 0, len(chunk))
		for _, id := range chunk {
			p, ok := byID[id]
			if !ok {
				continue
			}
			had := p.Override != nil
			entry := domain.PreviousPrice{
				ItemID:      id,
				Price:       p.EffectivePrice,
				HadOverride: &had,
			}
			if had {
				entry.CustomPrice = p.Override.CustomPrice
				entry.MarkupPercentage = p.Override.MarkupPercentage
			}
			out = append(out, entry)
		}
		return out, nil
	})
}

// BeginWindow makes the snapshot stored on a completed apply job available
// for one undo during the window.
func (m *UndoManager) BeginWindow(ctx context.Context, job *domain.PricingJob) error {
	data := job.Data()
	if len(data.PreviousPrices) == 0 {
		return nil
	}
	snap := undo.Snapshot{
		JobID:          job.ID,
		OrganizationID: job.OrganizationID,
		ModeName:       data.ModeName,
		CapturedAt:     job.CreatedAt,
		Entries:        data.PreviousPrices,
	}
	if err := m.windows.Open(ctx, job.ID, snap, m.window); err != nil {
		return err
	}
	logger.With(logger.Fields{
		logger.FieldJobID: job.ID,
		logger.FieldCount: len(snap.Entries),
	}).Info(ctx, "Undo available for %s", m.window)
	return nil
}

// Window returns the open undo window of an apply job.
func (m *UndoManager) Window(ctx context.Context, orgID, applyJobID string) (*undo.Snapshot, error) {
	snap, err := m.windows.Peek(ctx, applyJobID)
	if err != nil {
		return nil, err
	}
	if snap.OrganizationID != orgID {
		return nil, domain.ErrUndoWindowClosed
	}
	return snap, nil
}

// Undo consumes the window of an apply job and creates the undo job. The
// window is gone before the job is created, so a second call fails even
// while the first undo is still running.
// Returns:
//   - string: the undo job ID.
//   - error: domain.ErrUndoWindowClosed when the window expired or was used.
func (m *UndoManager) Undo(ctx context.Context, orgID, actor, applyJobID string) (string, error) {
	if _, err := m.Window(ctx, orgID, applyJobID); err != nil {
		return "", err
	}
	snap, err := m.windows.Consume(ctx, applyJobID)
	if err != nil {
		return "", err
	}
	return m.createUndoJob(ctx, orgID, actor, snap.Entries, snap.ModeName, applyJobID)
}

// CreateUndoJob creates an undo job from an explicit snapshot.
func (m *UndoManager) CreateUndoJob(ctx context.Context, orgID, actor string, previous []domain.PreviousPrice) (string, error) {
	for _, p := range previous {
		if p.ItemID == "" {
			return "", &domain.ValidationError{Field: "previous_prices", Message: "item_id is required"}
		}
		if p.Price < 0 || (p.CustomPrice != nil && *p.CustomPrice < 0) {
			return "", &domain.ValidationError{Field: "previous_prices", Message: "prices must not be negative"}
		}
	}
	return m.createUndoJob(ctx, orgID, actor, previous, "", "")
}

func (m *UndoManager) createUndoJob(ctx context.Context, orgID, actor string, previous []domain.PreviousPrice, modeName, sourceJobID string) (string, error) {
	return m.orch.CreateJob(ctx, orgID, domain.OperationUndoPricing, len(previous), domain.JobData{
		ModeName:       modeName,
		PreviousPrices: previous,
		SourceJobID:    sourceJobID,
		Actor:          actor,
	})
}

// Archive writes the change report of a completed job. It is a no-op
// without an archive.
func (m *UndoManager) Archive(ctx context.Context, job *domain.PricingJob) error {
	if m.archive == nil {
		return nil
	}
	data := job.Data()
	completedAt := m.now()
	if job.CompletedAt != nil {
		completedAt = *job.CompletedAt
	}
	key, err := m.archive.Save(ctx, &storage.ChangeReport{
		JobID:          job.ID,
		OrganizationID: job.OrganizationID,
		OperationType:  job.OperationType,
		ModeID:         data.ModeID,
		ModeName:       data.ModeName,
		Status:         job.Status,
		Summary:        job.Summary(),
		PreviousPrices: data.PreviousPrices,
		CompletedAt:    completedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to archive change report: %w", err)
	}
	logger.With(logger.Fields{logger.FieldJobID: job.ID}).Info(ctx, "Archived change report to %s", key)
	return nil
}

// Report loads an archived change report.
func (m *UndoManager) Report(ctx context.Context, orgID, jobID string) (*storage.ChangeReport, error) {
	if m.archive == nil {
		return nil, &domain.NotFoundError{Entity: "change report", ID: jobID}
	}
	return m.archive.Load(ctx, orgID, jobID)
}
