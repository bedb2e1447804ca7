package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/timmy/pricebook/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CatalogRepository is the gorm-backed catalog accessor: items, cost codes
// and per-organization price overrides. Callers keep id lists to at most
// 100 entries per call.
type CatalogRepository struct {
	db *gorm.DB
}

// NewCatalogRepository creates a new CatalogRepository.
func NewCatalogRepository(db *gorm.DB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

// UpsertItems inserts items or refreshes name, base price and cost code of
// existing ones. Overrides are never touched.
func (r *CatalogRepository) UpsertItems(ctx context.Context, items []domain.CatalogItem) error {
	if len(items) == 0 {
		return nil
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "base_price", "cost_code_id", "organization_id", "updated_at"}),
	}).CreateInBatches(items, 100).Error
	if err != nil {
		return fmt.Errorf("failed to upsert items: %w", err)
	}
	return nil
}

// UpsertCostCodes inserts cost codes or refreshes their description.
func (r *CatalogRepository) UpsertCostCodes(ctx context.Context, codes []domain.CostCode) error {
	if len(codes) == 0 {
		return nil
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"code", "description"}),
	}).Create(&codes).Error
	if err != nil {
		return fmt.Errorf("failed to upsert cost codes: %w", err)
	}
	return nil
}

// ListItemIDs returns the IDs of every item visible to the organization
// (its own items and shared ones) in a stable order.
func (r *CatalogRepository) ListItemIDs(ctx context.Context, orgID string) ([]string, error) {
	var ids []string
	if err := r.db.WithContext(ctx).Model(&domain.CatalogItem{}).
		Where("organization_id IS NULL OR organization_id = ?", orgID).
		Order("name ASC").
		Order("id ASC").
		Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("failed to list item IDs: %w", err)
	}
	return ids, nil
}

// ItemsByIDs retrieves items by ID. Missing IDs are skipped.
func (r *CatalogRepository) ItemsByIDs(ctx context.Context, ids []string) ([]domain.CatalogItem, error) {
	if len(ids) == 0 {
		return []domain.CatalogItem{}, nil
	}
	var items []domain.CatalogItem
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&items).Error; err != nil {
		return nil, fmt.Errorf("failed to get items by IDs: %w", err)
	}
	return items, nil
}

// CostCodesByIDs retrieves cost codes by ID.
func (r *CatalogRepository) CostCodesByIDs(ctx context.Context, ids []string) ([]domain.CostCode, error) {
	if len(ids) == 0 {
		return []domain.CostCode{}, nil
	}
	var codes []domain.CostCode
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&codes).Error; err != nil {
		return nil, fmt.Errorf("failed to get cost codes by IDs: %w", err)
	}
	return codes, nil
}

// ListOverrides returns the organization's overrides, restricted to itemIDs
// when it is non-empty, ordered by item ID.
func (r *CatalogRepository) ListOverrides(ctx context.Context, orgID string, itemIDs []string) ([]domain.PriceOverride, error) {
	q := r.db.WithContext(ctx).Where("organization_id = ?", orgID)
	if len(itemIDs) > 0 {
		q = q.Where("item_id IN ?", itemIDs)
	}
	var overrides []domain.PriceOverride
	if err := q.Order("item_id ASC").Find(&overrides).Error; err != nil {
		return nil, fmt.Errorf("failed to list overrides: %w", err)
	}
	return overrides, nil
}

// PricedItems returns items with their override and effective price.
func (r *CatalogRepository) PricedItems(ctx context.Context, orgID string, ids []string) ([]domain.PricedItem, error) {
	items, err := r.ItemsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	overrides, err := r.ListOverrides(ctx, orgID, ids)
	if err != nil {
		return nil, err
	}
	byItem := make(map[string]*domain.PriceOverride, len(overrides))
	for i := range overrides {
		byItem[overrides[i].ItemID] = &overrides[i]
	}

	out := make([]domain.PricedItem, 0, len(items))
	for _, item := range items {
		o := byItem[item.ID]
		out = append(out, domain.PricedItem{
			Item:           item,
			Override:       o,
			EffectivePrice: o.EffectivePrice(item.BasePrice),
		})
	}
	return out, nil
}

// UpsertOverrides writes overrides in one statement; on conflict the existing
// row for (organization, item) is replaced, last write wins.
func (r *CatalogRepository) UpsertOverrides(ctx context.Context, orgID string, writes []domain.OverrideWrite) error {
	if len(writes) == 0 {
		return nil
	}
	now := time.Now()
	rows := make([]domain.PriceOverride, 0, len(writes))
	for _, w := range writes {
		row := domain.PriceOverride{
			ID:               uuid.New().String(),
			OrganizationID:   orgID,
			ItemID:           w.ItemID,
			CustomPrice:      w.CustomPrice,
			MarkupPercentage: w.MarkupPercentage,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		if w.CustomPrice != nil {
			row.MarkupPercentage = nil
		}
		if w.AppliedModeID != "" {
			modeID := w.AppliedModeID
			multiplier := w.AppliedMultiplier
			row.AppliedModeID = &modeID
			row.AppliedMultiplier = &multiplier
		}
		rows = append(rows, row)
	}

	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "organization_id"}, {Name: "item_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"custom_price", "markup_percentage", "applied_mode_id", "applied_multiplier", "updated_at",
		}),
	}).Create(&rows).Error
	if err != nil {
		return fmt.Errorf("failed to upsert overrides: %w", err)
	}
	return nil
}

// UpsertOverride writes a single override.
func (r *CatalogRepository) UpsertOverride(ctx context.Context, orgID string, w domain.OverrideWrite) error {
	return r.UpsertOverrides(ctx, orgID, []domain.OverrideWrite{w})
}

// DeleteOverrides removes the organization's overrides for itemIDs. Items
// without an override are ignored.
func (r *CatalogRepository) DeleteOverrides(ctx context.Context, orgID string, itemIDs []string) error {
	if len(itemIDs) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).
		Where("organization_id = ? AND item_id IN ?", orgID, itemIDs).
		Delete(&domain.PriceOverride{}).Error; err != nil {
		return fmt.Errorf("failed to delete overrides: %w", err)
	}
	return nil
}

// DeleteOverride removes a single override.
func (r *CatalogRepository) DeleteOverride(ctx context.Context, orgID, itemID string) error {
	return r.DeleteOverrides(ctx, orgID, []string{itemID})
}
