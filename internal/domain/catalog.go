package domain

import "time"

// CatalogItem is a priced catalog entry. A nil OrganizationID marks an item
// shared by every organization.
type CatalogItem struct {
	ID             string    `gorm:"type:text;primaryKey" json:"id"`
	OrganizationID *string   `gorm:"type:text;index:idx_catalog_items_org" json:"organization_id,omitempty"`
	Name           string    `gorm:"type:text;not null" json:"name"`
	BasePrice      float64   `gorm:"not null;default:0" json:"base_price"`
	CostCodeID     *string   `gorm:"type:text;index:idx_catalog_items_cost_code" json:"cost_code_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// TableName returns the database table name for CatalogItem.
func (CatalogItem) TableName() string {
	return "catalog_items"
}

// CostCode is one entry of the cost-code taxonomy.
type CostCode struct {
	ID          string    `gorm:"type:text;primaryKey" json:"id"`
	Code        string    `gorm:"type:text;not null" json:"code"`
	Description string    `gorm:"type:text" json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

// TableName returns the database table name for CostCode.
func (CostCode) TableName() string {
	return "cost_codes"
}

// PriceOverride is an organization-specific price that supersedes an item's
// base price. CustomPrice and MarkupPercentage are mutually exclusive.
type PriceOverride struct {
	ID                string    `gorm:"type:text;primaryKey" json:"id"`
	OrganizationID    string    `gorm:"type:text;not null;uniqueIndex:idx_price_overrides_org_item" json:"organization_id"`
	ItemID            string    `gorm:"type:text;not null;uniqueIndex:idx_price_overrides_org_item" json:"item_id"`
	CustomPrice       *float64  `json:"custom_price,omitempty"`
	MarkupPercentage  *float64  `json:"markup_percentage,omitempty"`
	AppliedModeID     *string   `gorm:"type:text" json:"applied_mode_id,omitempty"`
	AppliedMultiplier *float64  `json:"applied_multiplier,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// TableName returns the database table name for PriceOverride.
func (PriceOverride) TableName() string {
	return "price_overrides"
}

// EffectivePrice applies the override to basePrice.
func (o *PriceOverride) EffectivePrice(basePrice float64) float64 {
	switch {
	case o == nil:
		return basePrice
	case o.CustomPrice != nil:
		return *o.CustomPrice
	case o.MarkupPercentage != nil:
		return basePrice * (1 + *o.MarkupPercentage/100)
	default:
		return basePrice
	}
}

// OverrideWrite is one override upsert. Exactly one of CustomPrice and
// MarkupPercentage should be set; writing one clears the other.
type OverrideWrite struct {
	ItemID            string
	CustomPrice       *float64
	MarkupPercentage  *float64
	AppliedModeID     string
	AppliedMultiplier float64
}

// PricedItem is an item together with its current effective price.
type PricedItem struct {
	Item           CatalogItem
	Override       *PriceOverride
	EffectivePrice float64
}
