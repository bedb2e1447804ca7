package service

import (
	"context"
	"time"

	"github.com/timmy/pricebook/internal/domain"
	"github.com/timmy/pricebook/internal/logger"
	"github.com/timmy/pricebook/internal/storage"
)

// PricingService is the caller-facing API of the bulk pricing engine.
type PricingService struct {
	registry *ModeRegistry
	preview  *PreviewEngine
	orch     *Orchestrator
	undo     *UndoManager
	runner   *Runner
}

// NewPricingService wires the engine components together. Completed apply
// jobs open their undo window and are archived.
// Parameters:
//   - registry: pricing mode registry.
//   - preview: preview engine.
//   - orch: job orchestrator.
//   - undoMgr: undo manager.
//   - runner: background executor for jobs.
// Returns:
//   - *PricingService: initialized service.
func NewPricingService(registry *ModeRegistry, preview *PreviewEngine, orch *Orchestrator, undoMgr *UndoManager, runner *Runner) *PricingService {
	s := &PricingService{
		registry: registry,
		preview:  preview,
		orch:     orch,
		undo:     undoMgr,
		runner:   runner,
	}
	orch.OnComplete(s.onJobCompleted)
	return s
}

func (s *PricingService) onJobCompleted(ctx context.Context, job *domain.PricingJob) {
	if job.OperationType != domain.OperationApplyPricingMode {
		return
	}
	if err := s.undo.BeginWindow(ctx, job); err != nil {
		logger.FromContext(ctx).WithError(err).Warn("Failed to open undo window")
	}
	if err := s.undo.Archive(ctx, job); err != nil {
		logger.FromContext(ctx).WithError(err).Warn("Failed to archive change report")
	}
}

// Registry returns the mode registry.
func (s *PricingService) Registry() *ModeRegistry {
	return s.registry
}

// ListModes returns the modes the organization can apply.
func (s *PricingService) ListModes(ctx context.Context, orgID string) ([]domain.PricingModeView, error) {
	return s.registry.List(ctx, orgID)
}

// Preview computes the changes a mode would make. Nothing is written.
func (s *PricingService) Preview(ctx context.Context, orgID, modeID string, itemIDs []string) ([]PriceChange, error) {
	mode, err := s.registry.Get(ctx, orgID, modeID)
	if err != nil {
		return nil, err
	}
	return s.preview.Preview(ctx, orgID, mode, itemIDs)
}

// CreatePricingJob records a confirmed apply and starts it in the background.
// When previousPrices is nil the current prices of the selection are
// captured for undo first.
// Returns:
//   - string: the job ID to poll.
//   - error: validation or not-found errors; execution errors are only
//     visible on the job.
func (s *PricingService) CreatePricingJob(ctx context.Context, orgID, actor, modeID string, itemIDs []string, previousPrices []domain.PreviousPrice) (string, error) {
	mode, err := s.registry.Get(ctx, orgID, modeID)
	if err != nil {
		return "", err
	}
	itemIDs = dedupe(itemIDs)
	if previousPrices == nil {
		previousPrices, err = s.undo.Snapshot(ctx, orgID, itemIDs)
		if err != nil {
			return "", err
		}
	}

	total := len(itemIDs)
	if total == 0 {
		total = len(previousPrices)
	}
	jobID, err := s.orch.CreateJob(ctx, orgID, domain.OperationApplyPricingMode, total, domain.JobData{
		ModeID:         mode.ID,
		ModeName:       mode.Name,
		ModeKind:       mode.Kind,
		ItemIDs:        itemIDs,
		PreviousPrices: previousPrices,
		Actor:          actor,
	})
	if err != nil {
		return "", err
	}
	s.start(ctx, jobID)
	return jobID, nil
}

// CreateUndoJob starts an undo job from an explicit snapshot.
func (s *PricingService) CreateUndoJob(ctx context.Context, orgID, actor string, previousPrices []domain.PreviousPrice) (string, error) {
	jobID, err := s.undo.CreateUndoJob(ctx, orgID, actor, previousPrices)
	if err != nil {
		return "", err
	}
	s.start(ctx, jobID)
	return jobID, nil
}

// Undo consumes the undo window of a completed apply job and starts the undo.
func (s *PricingService) Undo(ctx context.Context, orgID, actor, applyJobID string) (string, error) {
	jobID, err := s.undo.Undo(ctx, orgID, actor, applyJobID)
	if err != nil {
		return "", err
	}
	s.start(ctx, jobID)
	return jobID, nil
}

// JobStatus is a job together with its undo availability.
type JobStatus struct {
	*domain.PricingJob
	UndoExpiresAt *time.Time `json:"undo_expires_at,omitempty"`
}

// GetJobStatus returns an organization's job.
func (s *PricingService) GetJobStatus(ctx context.Context, orgID, jobID string) (*JobStatus, error) {
	job, err := s.orch.Status(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.OrganizationID != orgID {
		return nil, &domain.NotFoundError{Entity: "pricing job", ID: jobID}
	}
	status := &JobStatus{PricingJob: job}
	if job.OperationType == domain.OperationApplyPricingMode && job.Status == domain.JobStatusCompleted {
		if snap, err := s.undo.Window(ctx, orgID, jobID); err == nil {
			expires := snap.ExpiresAt
			status.UndoExpiresAt = &expires
		}
	}
	return status, nil
}

// GetActiveJobs returns the organization's unfinished jobs, failing stale
// ones on the way.
func (s *PricingService) GetActiveJobs(ctx context.Context, orgID string) ([]domain.PricingJob, error) {
	return s.orch.ListActive(ctx, orgID)
}

// CancelJob stops an organization's job at its next batch boundary.
func (s *PricingService) CancelJob(ctx context.Context, orgID, jobID string) error {
	return s.orch.Cancel(ctx, orgID, jobID)
}

// RecoverActiveJobs resumes every unfinished job of the organization that is
// not already running here. Stale jobs are failed instead.
// Returns:
//   - int: number of jobs resumed.
//   - error: non-nil if the active jobs cannot be listed.
func (s *PricingService) RecoverActiveJobs(ctx context.Context, orgID string) (int, error) {
	jobs, err := s.orch.ListActive(ctx, orgID)
	if err != nil {
		return 0, err
	}
	resumed := 0
	for _, job := range jobs {
		jobID := job.ID
		started := s.runner.Submit(ctx, jobID, func(ctx context.Context) error {
			return s.orch.Resume(ctx, jobID, orgID, s.progressLogger(ctx, jobID))
		})
		if started {
			resumed++
		}
	}
	if resumed > 0 {
		logger.With(logger.Fields{logger.FieldCount: resumed}).Info(ctx, "Resumed unfinished pricing jobs")
	}
	return resumed, nil
}

// Report returns the archived change report of a job.
func (s *PricingService) Report(ctx context.Context, orgID, jobID string) (*storage.ChangeReport, error) {
	job, err := s.orch.Status(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.OrganizationID != orgID {
		return nil, &domain.NotFoundError{Entity: "pricing job", ID: jobID}
	}
	return s.undo.Report(ctx, orgID, jobID)
}

// Shutdown stops background jobs and waits for them until ctx is done.
func (s *PricingService) Shutdown(ctx context.Context) error {
	return s.runner.Shutdown(ctx)
}

func (s *PricingService) start(ctx context.Context, jobID string) {
	s.runner.Submit(ctx, jobID, func(ctx context.Context) error {
		return s.orch.Execute(ctx, jobID, s.progressLogger(ctx, jobID))
	})
}

func (s *PricingService) progressLogger(ctx context.Context, jobID string) ProgressFunc {
	return func(current, total int) {
		logger.With(logger.Fields{
			logger.FieldJobID: jobID,
			logger.FieldCount: current,
			"total":           total,
		}).Debug(ctx, "Pricing job progress %d/%d", current, total)
	}
}
