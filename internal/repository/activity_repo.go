package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/timmy/pricebook/internal/domain"
	"gorm.io/gorm"
)

// ActivityRepository stores audit-log entries.
type ActivityRepository struct {
	db *gorm.DB
}

// NewActivityRepository creates a new ActivityRepository.
func NewActivityRepository(db *gorm.DB) *ActivityRepository {
	return &ActivityRepository{db: db}
}

// Log appends an entry, filling in ID and timestamp when missing.
func (r *ActivityRepository) Log(ctx context.Context, entry domain.ActivityEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	return r.db.WithContext(ctx).Create(&entry).Error
}

// ListByOrg returns the organization's most recent entries first.
func (r *ActivityRepository) ListByOrg(ctx context.Context, orgID string, limit int) ([]domain.ActivityEntry, error) {
	var entries []domain.ActivityEntry
	if err := r.db.WithContext(ctx).
		Where("organization_id = ?", orgID).
		Order("created_at DESC").
		Limit(limit).
		Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}
