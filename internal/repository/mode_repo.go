package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/timmy/pricebook/internal/domain"
	"gorm.io/gorm"
)

// ModeRepository handles pricing mode persistence.
type ModeRepository struct {
	db *gorm.DB
}

// NewModeRepository creates a new ModeRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *ModeRepository: repository instance bound to db.
func NewModeRepository(db *gorm.DB) *ModeRepository {
	return &ModeRepository{db: db}
}

// Create inserts a new pricing mode.
func (r *ModeRepository) Create(ctx context.Context, mode *domain.PricingMode) error {
	return r.db.WithContext(ctx).Create(mode).Error
}

// GetByID retrieves a mode by ID. A missing mode yields a domain.NotFoundError.
func (r *ModeRepository) GetByID(ctx context.Context, id string) (*domain.PricingMode, error) {
	var mode domain.PricingMode
	if err := r.db.WithContext(ctx).First(&mode, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &domain.NotFoundError{Entity: "pricing mode", ID: id}
		}
		return nil, fmt.Errorf("failed to get pricing mode: %w", err)
	}
	return &mode, nil
}

// ListForOrg returns active presets and the organization's active custom
// modes, presets first, then by descending usage.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - orgID: organization whose custom modes are included.
// Returns:
//   - []domain.PricingMode: ordered modes.
//   - error: non-nil if the query fails.
func (r *ModeRepository) ListForOrg(ctx context.Context, orgID string) ([]domain.PricingMode, error) {
	var modes []domain.PricingMode
	if err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Where("is_preset = ? OR organization_id = ?", true, orgID).
		Order("is_preset DESC").
		Order("usage_count DESC").
		Order("name ASC").
		Find(&modes).Error; err != nil {
		return nil, fmt.Errorf("failed to list pricing modes: %w", err)
	}
	return modes, nil
}

// ListPresets returns every preset ordered by name.
func (r *ModeRepository) ListPresets(ctx context.Context) ([]domain.PricingMode, error) {
	var modes []domain.PricingMode
	if err := r.db.WithContext(ctx).
		Where("is_preset = ?", true).
		Order("name ASC").
		Find(&modes).Error; err != nil {
		return nil, fmt.Errorf("failed to list presets: %w", err)
	}
	return modes, nil
}

// PresetExists reports whether a preset with the given name is stored.
func (r *ModeRepository) PresetExists(ctx context.Context, name string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&domain.PricingMode{}).
		Where("is_preset = ? AND name = ?", true, name).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// Delete removes a mode by ID.
func (r *ModeRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Delete(&domain.PricingMode{}, "id = ?", id).Error
}

// IncrementUsage bumps the usage counter of a mode.
func (r *ModeRepository) IncrementUsage(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Model(&domain.PricingMode{}).
		Where("id = ?", id).
		UpdateColumn("usage_count", gorm.Expr("usage_count + ?", 1)).Error
}

// RecordEstimate bumps the estimate counters used for the win-rate display.
func (r *ModeRepository) RecordEstimate(ctx context.Context, id string, won bool) error {
	updates := map[string]interface{}{
		"total_estimates": gorm.Expr("total_estimates + ?", 1),
	}
	if won {
		updates["successful_estimates"] = gorm.Expr("successful_estimates + ?", 1)
	}
	return r.db.WithContext(ctx).Model(&domain.PricingMode{}).
		Where("id = ?", id).
		UpdateColumns(updates).Error
}
