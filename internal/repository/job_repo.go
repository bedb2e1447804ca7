package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/timmy/pricebook/internal/domain"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// JobRepository persists pricing jobs. Every mutating statement is guarded on
// an active status so that terminal rows are never rewritten.
type JobRepository struct {
	db  *gorm.DB
	now func() time.Time
}

// NewJobRepository creates a new JobRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *JobRepository: repository instance bound to db.
func NewJobRepository(db *gorm.DB) *JobRepository {
	return &JobRepository{db: db, now: time.Now}
}

// Create inserts a new job.
func (r *JobRepository) Create(ctx context.Context, job *domain.PricingJob) error {
	if err := r.db.WithContext(ctx).Create(job).Error; err != nil {
		return fmt.Errorf("failed to create pricing job: %w", err)
	}
	return nil
}

// GetByID retrieves a job by ID. A missing job yields a domain.NotFoundError.
func (r *JobRepository) GetByID(ctx context.Context, id string) (*domain.PricingJob, error) {
	var job domain.PricingJob
	if err := r.db.WithContext(ctx).First(&job, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &domain.NotFoundError{Entity: "pricing job", ID: id}
		}
		return nil, fmt.Errorf("failed to get pricing job: %w", err)
	}
	return &job, nil
}

// MarkProcessing moves a pending job to processing and stamps started_at the
// first time. Re-marking a processing job is allowed so a resumed job can
// continue.
// Returns:
//   - bool: false if the job is terminal or missing.
//   - error: non-nil if the update fails.
func (r *JobRepository) MarkProcessing(ctx context.Context, id string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&domain.PricingJob{}).
		Where("id = ? AND status IN ?", id, domain.ActiveJobStatuses).
		Updates(map[string]interface{}{
			"status":     domain.JobStatusProcessing,
			"started_at": gorm.Expr("COALESCE(started_at, ?)", r.now()),
		})
	if res.Error != nil {
		return false, fmt.Errorf("failed to mark job processing: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// UpdateProgress raises processed_items to processed and saves the partial
// summary. Lower values are ignored, which keeps progress monotonic across
// resumed runs; the summary is always replaced.
func (r *JobRepository) UpdateProgress(ctx context.Context, id string, processed int, summary *domain.ResultSummary) error {
	updates := map[string]interface{}{
		"processed_items": gorm.Expr("CASE WHEN processed_items < ? THEN ? ELSE processed_items END", processed, processed),
	}
	if summary != nil {
		updates["result_summary"] = datatypes.NewJSONType(summary)
	}
	err := r.db.WithContext(ctx).Model(&domain.PricingJob{}).
		Where("id = ? AND status = ?", id, domain.JobStatusProcessing).
		Updates(updates).Error
	if err != nil {
		return fmt.Errorf("failed to update job progress: %w", err)
	}
	return nil
}

// UpdateTotal records the number of items the job will touch.
func (r *JobRepository) UpdateTotal(ctx context.Context, id string, total int) error {
	err := r.db.WithContext(ctx).Model(&domain.PricingJob{}).
		Where("id = ? AND status IN ?", id, domain.ActiveJobStatuses).
		Update("total_items", total).Error
	if err != nil {
		return fmt.Errorf("failed to update job total: %w", err)
	}
	return nil
}

// MarkCompleted finishes a processing job with its result summary.
// Returns:
//   - bool: false if the job was no longer processing (e.g. cancelled).
//   - error: non-nil if the update fails.
func (r *JobRepository) MarkCompleted(ctx context.Context, id string, summary *domain.ResultSummary) (bool, error) {
	res := r.db.WithContext(ctx).Model(&domain.PricingJob{}).
		Where("id = ? AND status = ?", id, domain.JobStatusProcessing).
		Updates(map[string]interface{}{
			"status":         domain.JobStatusCompleted,
			"result_summary": datatypes.NewJSONType(summary),
			"completed_at":   r.now(),
		})
	if res.Error != nil {
		return false, fmt.Errorf("failed to mark job completed: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// MarkFailed fails an active job. processed_items is left untouched so that
// partial progress stays visible.
// Returns:
//   - bool: false if the job was already terminal or missing.
//   - error: non-nil if the update fails.
func (r *JobRepository) MarkFailed(ctx context.Context, id, message string, summary *domain.ResultSummary) (bool, error) {
	updates := map[string]interface{}{
		"status":        domain.JobStatusFailed,
		"error_message": message,
		"completed_at":  r.now(),
	}
	if summary != nil {
		updates["result_summary"] = datatypes.NewJSONType(summary)
	}
	res := r.db.WithContext(ctx).Model(&domain.PricingJob{}).
		Where("id = ? AND status IN ?", id, domain.ActiveJobStatuses).
		Updates(updates)
	if res.Error != nil {
		return false, fmt.Errorf("failed to mark job failed: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// ListActiveByOrg returns the organization's pending and processing jobs,
// oldest first.
func (r *JobRepository) ListActiveByOrg(ctx context.Context, orgID string) ([]domain.PricingJob, error) {
	var jobs []domain.PricingJob
	if err := r.db.WithContext(ctx).
		Where("organization_id = ? AND status IN ?", orgID, domain.ActiveJobStatuses).
		Order("created_at ASC").
		Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("failed to list active jobs: %w", err)
	}
	return jobs, nil
}
