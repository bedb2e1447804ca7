package domain

import (
	"time"

	"gorm.io/datatypes"
)

// JobStatus represents the status of a pricing job.
// Values include JobStatusPending, JobStatusProcessing, JobStatusCompleted, and JobStatusFailed.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// IsTerminal reports whether no further transitions are allowed.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// ActiveJobStatuses are the statuses a job may still be executed from.
var ActiveJobStatuses = []JobStatus{JobStatusPending, JobStatusProcessing}

// OperationType identifies what a pricing job does.
type OperationType string

const (
	OperationApplyPricingMode OperationType = "apply_pricing_mode"
	OperationUndoPricing      OperationType = "undo_pricing"
)

// PreviousPrice is one entry of an undo snapshot. Price is the unrounded
// effective price. HadOverride is nil when the caller did not record whether
// an override existed. CustomPrice and MarkupPercentage hold the override as
// it was stored, when known.
type PreviousPrice struct {
	ItemID           string   `json:"item_id" validate:"required"`
	Price            float64  `json:"price" validate:"gte=0"`
	HadOverride      *bool    `json:"had_override,omitempty"`
	CustomPrice      *float64 `json:"custom_price,omitempty" validate:"omitempty,gte=0"`
	MarkupPercentage *float64 `json:"markup_percentage,omitempty"`
}

// WithoutOverride reports whether the item was known to have no override.
func (p PreviousPrice) WithoutOverride() bool {
	return p.HadOverride != nil && !*p.HadOverride
}

// HasOverrideForm reports whether the stored override form was captured.
func (p PreviousPrice) HasOverrideForm() bool {
	return p.CustomPrice != nil || p.MarkupPercentage != nil
}

// RestoreWrite returns the override write that puts the item back where it
// was. A captured override form is restored as is; otherwise Price becomes
// a custom price.
func (p PreviousPrice) RestoreWrite() OverrideWrite {
	w := OverrideWrite{ItemID: p.ItemID}
	switch {
	case p.CustomPrice != nil:
		price := *p.CustomPrice
		w.CustomPrice = &price
	case p.MarkupPercentage != nil:
		markup := *p.MarkupPercentage
		w.MarkupPercentage = &markup
	default:
		price := p.Price
		w.CustomPrice = &price
	}
	return w
}

// JobData is the request a job was created from. It is everything a resuming
// orchestrator needs to re-derive the work.
type JobData struct {
	ModeID         string          `json:"mode_id,omitempty"`
	ModeName       string          `json:"mode_name,omitempty"`
	ModeKind       ModeKind        `json:"mode_kind,omitempty"`
	ItemIDs        []string        `json:"item_ids,omitempty"` // empty means every item
	PreviousPrices []PreviousPrice `json:"previous_prices,omitempty"`
	SourceJobID    string          `json:"source_job_id,omitempty"`
	Actor          string          `json:"actor,omitempty"`
}

// FailedItem records why one item could not be written.
type FailedItem struct {
	ItemID string `json:"item_id"`
	Error  string `json:"error"`
}

// ResultSummary is the outcome of a job. It is saved with every progress
// update and carried over when an interrupted job resumes.
type ResultSummary struct {
	SuccessCount int          `json:"success_count"`
	FailedCount  int          `json:"failed_count"`
	FailedItems  []FailedItem `json:"failed_items,omitempty"`
}

// RecordSuccess counts ids as written and clears failures an earlier run
// recorded for them.
func (s *ResultSummary) RecordSuccess(ids ...string) {
	s.SuccessCount += len(ids)
	if len(s.FailedItems) == 0 {
		return
	}
	written := make(map[string]bool, len(ids))
	for _, id := range ids {
		written[id] = true
	}
	kept := s.FailedItems[:0]
	for _, f := range s.FailedItems {
		if !written[f.ItemID] {
			kept = append(kept, f)
		}
	}
	s.FailedItems = kept
	s.FailedCount = len(kept)
}

// RecordFailure records why id could not be written. An item fails at most
// once per summary; a repeated failure replaces the earlier message.
func (s *ResultSummary) RecordFailure(id, message string) {
	for i := range s.FailedItems {
		if s.FailedItems[i].ItemID == id {
			s.FailedItems[i].Error = message
			return
		}
	}
	s.FailedItems = append(s.FailedItems, FailedItem{ItemID: id, Error: message})
	s.FailedCount++
}

// Clone returns a deep copy, or an empty summary for nil.
func (s *ResultSummary) Clone() *ResultSummary {
	if s == nil {
		return &ResultSummary{}
	}
	cp := *s
	cp.FailedItems = append([]FailedItem(nil), s.FailedItems...)
	return &cp
}

// PricingJob is the durable record of one bulk price mutation.
type PricingJob struct {
	ID             string                             `gorm:"type:text;primaryKey" json:"id"`
	OrganizationID string                             `gorm:"type:text;not null;index:idx_pricing_jobs_org_status" json:"organization_id"`
	OperationType  OperationType                      `gorm:"type:text;not null" json:"operation_type"`
	Status         JobStatus                          `gorm:"type:text;not null;default:pending;index:idx_pricing_jobs_org_status" json:"status"`
	TotalItems     int                                `gorm:"default:0" json:"total_items"`
	ProcessedItems int                                `gorm:"default:0" json:"processed_items"`
	JobData        datatypes.JSONType[JobData]        `json:"job_data"`
	ResultSummary  datatypes.JSONType[*ResultSummary] `json:"result_summary"`
	ErrorMessage   string                             `gorm:"type:text" json:"error_message,omitempty"`
	StartedAt      *time.Time                         `json:"started_at,omitempty"`
	CompletedAt    *time.Time                         `json:"completed_at,omitempty"`
	CreatedAt      time.Time                          `json:"created_at"`
	UpdatedAt      time.Time                          `json:"updated_at"`
}

// TableName returns the database table name for PricingJob.
// Parameters: none.
// Returns:
//   - string: table name for GORM mapping.
func (PricingJob) TableName() string {
	return "pricing_jobs"
}

// Data returns the decoded job payload.
func (j *PricingJob) Data() JobData {
	return j.JobData.Data()
}

// Summary returns the result summary. It is partial while the job is active
// and nil before the first batch.
func (j *PricingJob) Summary() *ResultSummary {
	return j.ResultSummary.Data()
}

// ProcessingSince returns when the job entered processing, falling back to
// its creation time for rows written before started_at was recorded.
func (j *PricingJob) ProcessingSince() time.Time {
	if j.StartedAt != nil {
		return *j.StartedAt
	}
	return j.CreatedAt
}
