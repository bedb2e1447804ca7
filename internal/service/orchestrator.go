package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/timmy/pricebook/internal/activity"
	"github.com/timmy/pricebook/internal/batch"
	"github.com/timmy/pricebook/internal/domain"
	"github.com/timmy/pricebook/internal/logger"
	"github.com/timmy/pricebook/internal/observability"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"
)

const (
	defaultWriteBatchSize  = 50
	defaultStaleJobTimeout = 10 * time.Minute

	// StaleJobMessage is recorded on processing jobs that never finished a batch.
	StaleJobMessage = "job timed out before making progress"
	// CancelledJobMessage is recorded on jobs stopped by a caller.
	CancelledJobMessage = "cancelled"
)

// ProgressFunc receives the number of items processed so far after every
// batch.
type ProgressFunc func(current, total int)

// CompletionHook runs after a job reaches completed.
type CompletionHook func(ctx context.Context, job *domain.PricingJob)

// OrchestratorConfig holds configuration for the orchestrator.
type OrchestratorConfig struct {
	WriteBatchSize  int
	StaleJobTimeout time.Duration
}

// Orchestrator turns confirmed pricing mutations into durable jobs and
// executes them batch by batch.
type Orchestrator struct {
	jobs       JobStore
	modes      ModeStore
	catalog    CatalogAccessor
	preview    *PreviewEngine
	activity   activity.Logger
	batchSize  int
	staleAfter time.Duration
	now        func() time.Time
	hooks      []CompletionHook
}

// NewOrchestrator creates a new Orchestrator.
// Parameters:
//   - jobs: job persistence.
//   - modes: mode lookup and usage counters.
//   - catalog: override writes.
//   - preview: engine used to derive apply work.
//   - sink: activity log; nil disables it.
//   - cfg: batch size (capped at 50) and stale timeout; nil uses defaults.
// Returns:
//   - *Orchestrator: initialized orchestrator.
func NewOrchestrator(
	jobs JobStore,
	modes ModeStore,
	catalog CatalogAccessor,
	preview *PreviewEngine,
	sink activity.Logger,
	cfg *OrchestratorConfig,
) *Orchestrator {
	o := &Orchestrator{
		jobs:       jobs,
		modes:      modes,
		catalog:    catalog,
		preview:    preview,
		activity:   sink,
		batchSize:  defaultWriteBatchSize,
		staleAfter: defaultStaleJobTimeout,
		now:        time.Now,
	}
	if cfg != nil {
		if cfg.WriteBatchSize > 0 && cfg.WriteBatchSize < defaultWriteBatchSize {
			o.batchSize = cfg.WriteBatchSize
		}
		if cfg.StaleJobTimeout > 0 {
			o.staleAfter = cfg.StaleJobTimeout
		}
	}
	return o
}

// OnComplete registers a hook run after every completed job.
func (o *Orchestrator) OnComplete(hook CompletionHook) {
	o.hooks = append(o.hooks, hook)
}

// CreateJob persists a pending job. It does not execute it.
// Returns:
//   - string: the new job ID.
//   - error: a *domain.ValidationError when required identifiers are missing.
func (o *Orchestrator) CreateJob(ctx context.Context, orgID string, opType domain.OperationType, totalItems int, data domain.JobData) (string, error) {
	if orgID == "" {
		return "", &domain.ValidationError{Field: "organization_id", Message: "is required"}
	}
	switch opType {
	case domain.OperationApplyPricingMode:
		if data.ModeID == "" {
			return "", &domain.ValidationError{Field: "mode_id", Message: "is required"}
		}
	case domain.OperationUndoPricing:
		if len(data.PreviousPrices) == 0 {
			return "", &domain.ValidationError{Field: "previous_prices", Message: "must not be empty"}
		}
	default:
		return "", &domain.ValidationError{Field: "operation_type", Message: fmt.Sprintf("unknown operation %q", opType)}
	}

	job := &domain.PricingJob{
		ID:             uuid.New().String(),
		OrganizationID: orgID,
		OperationType:  opType,
		Status:         domain.JobStatusPending,
		TotalItems:     totalItems,
		JobData:        datatypes.NewJSONType(data),
	}
	if err := o.jobs.Create(ctx, job); err != nil {
		return "", err
	}

	logger.With(logger.Fields{
		logger.FieldJobID: job.ID,
		logger.FieldCount: totalItems,
	}).Info(ctx, "Created %s job", opType)
	return job.ID, nil
}

// Status returns the job record.
func (o *Orchestrator) Status(ctx context.Context, jobID string) (*domain.PricingJob, error) {
	return o.jobs.GetByID(ctx, jobID)
}

// Execute runs a job to completion. Terminal jobs are left alone. The loop
// re-reads the job before every batch and returns cleanly once it is no
// longer processing; a cancelled ctx also stops it between batches and leaves
// the job resumable. Errors that stop the whole job are recorded on the job
// and returned for logging only.
func (o *Orchestrator) Execute(ctx context.Context, jobID string, onProgress ProgressFunc) (err error) {
	ctx = logger.SetJobID(ctx, jobID)
	ctx, span := observability.Tracer().Start(ctx, "pricing.execute",
		trace.WithAttributes(attribute.String("job_id", jobID)))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	job, err := o.jobs.GetByID(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status.IsTerminal() {
		logger.CtxInfo(ctx, "Job is already %s, nothing to execute", job.Status)
		return nil
	}
	ctx = logger.SetOrgID(ctx, job.OrganizationID)
	span.SetAttributes(
		attribute.String("org_id", job.OrganizationID),
		attribute.String("operation_type", string(job.OperationType)),
	)

	started, err := o.jobs.MarkProcessing(ctx, job.ID)
	if err != nil {
		return err
	}
	if !started {
		return nil
	}

	work, err := o.plan(ctx, job)
	if err != nil {
		if ctx.Err() != nil {
			logger.CtxWarn(ctx, "Job interrupted while planning; it can be resumed")
			return ctx.Err()
		}
		o.fail(ctx, job.ID, err.Error(), nil)
		return err
	}
	total := work.total()
	if err := o.jobs.UpdateTotal(ctx, job.ID, total); err != nil {
		if ctx.Err() != nil {
			logger.CtxWarn(ctx, "Job interrupted while planning; it can be resumed")
			return ctx.Err()
		}
		o.fail(ctx, job.ID, err.Error(), nil)
		return err
	}
	span.SetAttributes(attribute.Int("total_items", total))

	// a resumed run keeps the earlier run's results
	var (
		summary   = job.Summary().Clone()
		processed int
		stopped   bool
		abortErr  error
		startTime = time.Now()
	)
	if work.replayable && job.ProcessedItems > 0 {
		processed = work.skip(job.ProcessedItems)
	}
	for _, step := range work.steps {
		_, err := batch.Each(ctx, step.ids, o.batchSize, func(ctx context.Context, _ int, chunk []string) error {
			current, err := o.jobs.GetByID(ctx, job.ID)
			if err != nil {
				abortErr = fmt.Errorf("failed to re-read job status: %w", err)
				return batch.ErrStop
			}
			if current.Status != domain.JobStatusProcessing {
				stopped = true
				return batch.ErrStop
			}

			o.writeBatch(ctx, step, chunk, summary)
			processed += len(chunk)
			if err := o.jobs.UpdateProgress(ctx, job.ID, processed, summary); err != nil {
				abortErr = err
				return batch.ErrStop
			}
			if onProgress != nil {
				onProgress(processed, total)
			}
			return nil
		})
		if err != nil || stopped || abortErr != nil {
			break
		}
	}

	if ctx.Err() != nil {
		logger.With(logger.Fields{logger.FieldSize: total}).WithCount(processed).
			Warn(ctx, "Job interrupted between batches; it can be resumed")
		return ctx.Err()
	}
	if stopped {
		logger.With(logger.Fields{logger.FieldSize: total}).WithCount(processed).
			Info(ctx, "Job is no longer processing; stopped at batch boundary")
		return nil
	}
	if abortErr != nil {
		o.fail(ctx, job.ID, abortErr.Error(), summary)
		return abortErr
	}

	completed, err := o.jobs.MarkCompleted(ctx, job.ID, summary)
	if err != nil {
		return err
	}
	if !completed {
		return nil
	}

	logger.With(logger.Fields{logger.FieldSize: total}).
		WithCount(summary.SuccessCount).
		WithFailed(summary.FailedCount).
		WithDuration(time.Since(startTime).Milliseconds()).
		Info(ctx, "Pricing job completed")
	o.afterCompletion(ctx, job, summary)
	return nil
}

// Resume re-executes an interrupted job of orgID from its stored request.
// Already-written batches may be written again; upserts and deletes are
// idempotent. A stale job is failed instead of resumed.
func (o *Orchestrator) Resume(ctx context.Context, jobID, orgID string, onProgress ProgressFunc) error {
	job, err := o.jobs.GetByID(ctx, jobID)
	if err != nil {
		return err
	}
	if job.OrganizationID != orgID {
		return &domain.NotFoundError{Entity: "pricing job", ID: jobID}
	}
	if job.Status.IsTerminal() {
		return &domain.ValidationError{Field: "job_id", Message: fmt.Sprintf("job is already %s", job.Status)}
	}
	if o.isStale(job) {
		return o.failStale(ctx, job)
	}

	logger.With(logger.Fields{
		logger.FieldJobID: job.ID,
		logger.FieldCount: job.ProcessedItems,
	}).Info(ctx, "Resuming %s job", job.Status)
	return o.Execute(ctx, jobID, onProgress)
}

// ListActive returns the organization's pending and processing jobs. Stale
// jobs discovered here are marked failed and left out.
func (o *Orchestrator) ListActive(ctx context.Context, orgID string) ([]domain.PricingJob, error) {
	jobs, err := o.jobs.ListActiveByOrg(ctx, orgID)
	if err != nil {
		return nil, err
	}
	active := make([]domain.PricingJob, 0, len(jobs))
	for i := range jobs {
		if o.isStale(&jobs[i]) {
			if err := o.failStale(ctx, &jobs[i]); err != nil {
				return nil, err
			}
			continue
		}
		active = append(active, jobs[i])
	}
	return active, nil
}

// Cancel fails an active job of orgID. A running loop notices at its next
// batch boundary.
func (o *Orchestrator) Cancel(ctx context.Context, orgID, jobID string) error {
	job, err := o.jobs.GetByID(ctx, jobID)
	if err != nil {
		return err
	}
	if job.OrganizationID != orgID {
		return &domain.NotFoundError{Entity: "pricing job", ID: jobID}
	}
	ok, err := o.jobs.MarkFailed(ctx, jobID, CancelledJobMessage, nil)
	if err != nil {
		return err
	}
	if !ok {
		return &domain.ValidationError{Field: "job_id", Message: "job has already finished"}
	}
	logger.With(logger.Fields{logger.FieldJobID: jobID}).Info(ctx, "Cancelled pricing job")
	return nil
}

// isStale reports whether a processing job has gone past the timeout
// without finishing a single batch.
func (o *Orchestrator) isStale(job *domain.PricingJob) bool {
	return job.Status == domain.JobStatusProcessing &&
		job.ProcessedItems == 0 &&
		o.now().Sub(job.ProcessingSince()) > o.staleAfter
}

func (o *Orchestrator) failStale(ctx context.Context, job *domain.PricingJob) error {
	if _, err := o.jobs.MarkFailed(ctx, job.ID, StaleJobMessage, nil); err != nil {
		return err
	}
	logger.With(logger.Fields{logger.FieldJobID: job.ID}).Warn(ctx, "Marked stale pricing job as failed")
	return nil
}

func (o *Orchestrator) fail(ctx context.Context, jobID, message string, summary *domain.ResultSummary) {
	if _, err := o.jobs.MarkFailed(ctx, jobID, message, summary); err != nil {
		logger.FromContext(ctx).WithError(err).Error("Failed to record job failure")
		return
	}
	logger.CtxError(ctx, "Pricing job failed: %s", message)
}

func (o *Orchestrator) afterCompletion(ctx context.Context, job *domain.PricingJob, summary *domain.ResultSummary) {
	data := job.Data()
	if summary.SuccessCount > 0 {
		switch job.OperationType {
		case domain.OperationApplyPricingMode:
			if err := o.modes.IncrementUsage(ctx, data.ModeID); err != nil {
				logger.FromContext(ctx).WithError(err).Warn("Failed to increment mode usage")
			}
			recordActivity(ctx, o.activity, domain.ActivityEntry{
				OrganizationID: job.OrganizationID,
				Actor:          data.Actor,
				EntityType:     domain.EntityPricingJob,
				EntityID:       job.ID,
				Action:         domain.ActionApplied,
				Description:    fmt.Sprintf("Applied pricing mode %q to %d items", data.ModeName, summary.SuccessCount),
			})
		case domain.OperationUndoPricing:
			recordActivity(ctx, o.activity, domain.ActivityEntry{
				OrganizationID: job.OrganizationID,
				Actor:          data.Actor,
				EntityType:     domain.EntityPricingJob,
				EntityID:       job.ID,
				Action:         domain.ActionReverted,
				Description:    fmt.Sprintf("Restored previous prices for %d items", summary.SuccessCount),
			})
		}
	}

	if len(o.hooks) == 0 {
		return
	}
	done, err := o.jobs.GetByID(ctx, job.ID)
	if err != nil {
		logger.FromContext(ctx).WithError(err).Warn("Failed to reload completed job")
		return
	}
	for _, hook := range o.hooks {
		hook(ctx, done)
	}
}

// writeStep is one ordered group of item writes. writeAll is tried per
// batch; when it fails every item is retried with writeOne so that failures
// are attributed to single items.
type writeStep struct {
	ids      []string
	writeAll func(ctx context.Context, ids []string) error
	writeOne func(ctx context.Context, id string) error
}

// jobPlan is the ordered work of a job. A replayable plan is derived the same
// way on every run, so a resumed run can skip what was already processed.
type jobPlan struct {
	steps      []writeStep
	replayable bool
}

func (p *jobPlan) total() int {
	n := 0
	for _, s := range p.steps {
		n += len(s.ids)
	}
	return n
}

// skip drops the first n ids across steps and returns how many were dropped.
func (p *jobPlan) skip(n int) int {
	dropped := 0
	for i := range p.steps {
		k := min(n-dropped, len(p.steps[i].ids))
		p.steps[i].ids = p.steps[i].ids[k:]
		dropped += k
	}
	return dropped
}

func (o *Orchestrator) writeBatch(ctx context.Context, step writeStep, chunk []string, summary *domain.ResultSummary) {
	err := step.writeAll(ctx, chunk)
	if err == nil {
		summary.RecordSuccess(chunk...)
		return
	}
	logger.With(logger.Fields{logger.FieldSize: len(chunk)}).
		Warn(ctx, "Bulk write failed, retrying items individually: %v", err)

	for _, id := range chunk {
		if err := step.writeOne(ctx, id); err != nil {
			summary.RecordFailure(id, err.Error())
			continue
		}
		summary.RecordSuccess(id)
	}
}

// plan derives the writes a job performs from its stored request.
func (o *Orchestrator) plan(ctx context.Context, job *domain.PricingJob) (*jobPlan, error) {
	data := job.Data()
	switch job.OperationType {
	case domain.OperationApplyPricingMode:
		mode, err := o.modes.GetByID(ctx, data.ModeID)
		if err != nil {
			return nil, fmt.Errorf("failed to load pricing mode: %w", err)
		}
		changes, err := o.preview.Preview(ctx, job.OrganizationID, mode, data.ItemIDs)
		if err != nil {
			return nil, err
		}
		ids := make([]string, 0, len(changes))
		for _, c := range changes {
			ids = append(ids, c.ItemID)
		}
		if mode.Kind == domain.ModeKindResetToBaseline {
			return &jobPlan{steps: []writeStep{o.deleteStep(job.OrganizationID, ids)}}, nil
		}

		writes := make(map[string]domain.OverrideWrite, len(changes))
		for _, c := range changes {
			price := c.NewPrice
			writes[c.ItemID] = domain.OverrideWrite{
				ItemID:            c.ItemID,
				CustomPrice:       &price,
				AppliedModeID:     mode.ID,
				AppliedMultiplier: c.Multiplier,
			}
		}
		return &jobPlan{steps: []writeStep{o.upsertStep(job.OrganizationID, ids, writes)}}, nil

	case domain.OperationUndoPricing:
		return o.planUndo(ctx, job.OrganizationID, data.PreviousPrices)

	default:
		return nil, fmt.Errorf("unknown operation type %q", job.OperationType)
	}
}

// planUndo restores the captured override of every item that had one and
// deletes the override of every other item, so items that had no override
// before the change end up without one. Entries without a captured override
// form fall back to comparing the snapshot price with the base price.
func (o *Orchestrator) planUndo(ctx context.Context, orgID string, entries []domain.PreviousPrice) (*jobPlan, error) {
	var ids []string
	byItem := make(map[string]domain.PreviousPrice, len(entries))
	for _, e := range entries {
		if _, ok := byItem[e.ItemID]; ok || e.ItemID == "" {
			continue
		}
		byItem[e.ItemID] = e
		ids = append(ids, e.ItemID)
	}

	items, err := lookup(ctx, ids, o.preview.chunkSize, o.preview.concurrency, o.catalog.ItemsByIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load items: %w", err)
	}
	basePrice := make(map[string]float64, len(items))
	for _, item := range items {
		basePrice[item.ID] = item.BasePrice
	}

	var restoreIDs, deleteIDs []string
	writes := make(map[string]domain.OverrideWrite)
	for _, id := range ids {
		e := byItem[id]
		base, ok := basePrice[id]
		switch {
		case !ok, e.WithoutOverride():
			deleteIDs = append(deleteIDs, id)
		case !e.HasOverrideForm() && samePrice(e.Price, base):
			deleteIDs = append(deleteIDs, id)
		default:
			writes[id] = e.RestoreWrite()
			restoreIDs = append(restoreIDs, id)
		}
	}

	work := &jobPlan{replayable: true}
	if len(restoreIDs) > 0 {
		work.steps = append(work.steps, o.upsertStep(orgID, restoreIDs, writes))
	}
	if len(deleteIDs) > 0 {
		work.steps = append(work.steps, o.deleteStep(orgID, deleteIDs))
	}
	return work, nil
}

func (o *Orchestrator) upsertStep(orgID string, ids []string, writes map[string]domain.OverrideWrite) writeStep {
	return writeStep{
		ids: ids,
		writeAll: func(ctx context.Context, chunk []string) error {
			rows := make([]domain.OverrideWrite, 0, len(chunk))
			for _, id := range chunk {
				rows = append(rows, writes[id])
			}
			return o.catalog.UpsertOverrides(ctx, orgID, rows)
		},
		writeOne: func(ctx context.Context, id string) error {
			return o.catalog.UpsertOverride(ctx, orgID, writes[id])
		},
	}
}

func (o *Orchestrator) deleteStep(orgID string, ids []string) writeStep {
	return writeStep{
		ids: ids,
		writeAll: func(ctx context.Context, chunk []string) error {
			return o.catalog.DeleteOverrides(ctx, orgID, chunk)
		},
		writeOne: func(ctx context.Context, id string) error {
			return o.catalog.DeleteOverride(ctx, orgID, id)
		},
	}
}

// samePrice compares prices at cent precision.
func samePrice(a, b float64) bool {
	return math.Abs(a-b) < 0.005
}
