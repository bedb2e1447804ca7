package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/timmy/pricebook/internal/domain"
)

// ChangeReport records what a finished apply job changed and the prices it
// replaced.
type ChangeReport struct {
	JobID          string                 `json:"job_id"`
	OrganizationID string                 `json:"organization_id"`
	OperationType  domain.OperationType   `json:"operation_type"`
	ModeID         string                 `json:"mode_id,omitempty"`
	ModeName       string                 `json:"mode_name,omitempty"`
	Status         domain.JobStatus       `json:"status"`
	Summary        *domain.ResultSummary  `json:"summary,omitempty"`
	PreviousPrices []domain.PreviousPrice `json:"previous_prices,omitempty"`
	CompletedAt    time.Time              `json:"completed_at"`
}

// ReportArchive stores change reports as JSON objects under
// <prefix>/<org>/<job>.json.
type ReportArchive struct {
	store  ObjectStorage
	prefix string
}

// NewReportArchive creates a ReportArchive over store.
func NewReportArchive(store ObjectStorage, prefix string) *ReportArchive {
	return &ReportArchive{store: store, prefix: prefix}
}

// Key returns the object key of a job's report.
func (a *ReportArchive) Key(orgID, jobID string) string {
	return path.Join(a.prefix, orgID, jobID+".json")
}

// Save uploads the report and returns its key.
func (a *ReportArchive) Save(ctx context.Context, report *ChangeReport) (string, error) {
	raw, err := json.Marshal(report)
	if err != nil {
		return "", fmt.Errorf("failed to encode change report: %w", err)
	}
	key := a.Key(report.OrganizationID, report.JobID)
	if err := a.store.Upload(ctx, key, bytes.NewReader(raw), int64(len(raw)), "application/json"); err != nil {
		return "", err
	}
	return key, nil
}

// Load fetches a job's report. A missing report yields a domain.NotFoundError.
func (a *ReportArchive) Load(ctx context.Context, orgID, jobID string) (*ChangeReport, error) {
	body, err := a.store.Download(ctx, a.Key(orgID, jobID))
	if err != nil {
		if errors.Is(err, ErrObjectNotFound) {
			return nil, &domain.NotFoundError{Entity: "change report", ID: jobID}
		}
		return nil, err
	}
	defer body.Close()

	var report ChangeReport
	if err := json.NewDecoder(body).Decode(&report); err != nil {
		return nil, fmt.Errorf("failed to decode change report: %w", err)
	}
	return &report, nil
}
