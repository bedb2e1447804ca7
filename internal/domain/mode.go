package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"math"
	"time"

	"github.com/timmy/pricebook/internal/category"
)

// ModeKind selects how a pricing mode mutates prices.
// Values include ModeKindMultiplier and ModeKindResetToBaseline.
type ModeKind string

const (
	// ModeKindMultiplier scales base prices by per-category multipliers.
	ModeKindMultiplier ModeKind = "multiplier"
	// ModeKindResetToBaseline removes overrides so base prices apply again.
	ModeKindResetToBaseline ModeKind = "reset_to_baseline"
)

// Adjustments maps a category name (or "all") to a positive price multiplier.
type Adjustments map[string]float64

// Value implements the driver.Valuer interface for database serialization.
// Parameters: none.
// Returns:
//   - driver.Value: JSON-encoded string representation of the map.
//   - error: non-nil if marshaling fails.
func (a Adjustments) Value() (driver.Value, error) {
	if a == nil {
		return "{}", nil
	}
	b, err := json.Marshal(map[string]float64(a))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface for database deserialization.
// Parameters:
//   - value: raw database value to decode.
// Returns:
//   - error: non-nil if decoding fails or the type is unexpected.
func (a *Adjustments) Scan(value interface{}) error {
	if value == nil {
		*a = Adjustments{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		str, ok := value.(string)
		if !ok {
			return errors.New("failed to scan Adjustments")
		}
		bytes = []byte(str)
	}
	return json.Unmarshal(bytes, a)
}

// Multiplier returns the multiplier for a category, falling back to the
// wildcard "all" entry and then to 1 (no change).
func (a Adjustments) Multiplier(c category.Category) float64 {
	if m, ok := a[string(c)]; ok {
		return m
	}
	if m, ok := a[string(category.All)]; ok {
		return m
	}
	return 1
}

// PricingMode is a named set of category multipliers applied in bulk.
// A nil OrganizationID marks a system preset.
type PricingMode struct {
	ID                  string      `gorm:"type:text;primaryKey" json:"id"`
	OrganizationID      *string     `gorm:"type:text;index:idx_pricing_modes_org" json:"organization_id,omitempty"`
	Name                string      `gorm:"type:text;not null" json:"name"`
	Icon                string      `gorm:"type:text" json:"icon"`
	Description         string      `gorm:"type:text" json:"description"`
	Kind                ModeKind    `gorm:"type:text;not null;default:multiplier" json:"kind"`
	Adjustments         Adjustments `gorm:"type:text" json:"adjustments"`
	IsPreset            bool        `gorm:"default:false;index:idx_pricing_modes_preset" json:"is_preset"`
	IsActive            bool        `gorm:"default:true" json:"is_active"`
	UsageCount          int         `gorm:"default:0" json:"usage_count"`
	SuccessfulEstimates int         `gorm:"default:0" json:"successful_estimates"`
	TotalEstimates      int         `gorm:"default:0" json:"total_estimates"`
	CreatedAt           time.Time   `json:"created_at"`
	UpdatedAt           time.Time   `json:"updated_at"`
}

// TableName returns the database table name for PricingMode.
func (PricingMode) TableName() string {
	return "pricing_modes"
}

// OwnedBy reports whether the mode is a custom mode of orgID.
func (m *PricingMode) OwnedBy(orgID string) bool {
	return m.OrganizationID != nil && *m.OrganizationID == orgID
}

// VisibleTo reports whether orgID may read or apply the mode.
func (m *PricingMode) VisibleTo(orgID string) bool {
	return m.IsPreset || m.OwnedBy(orgID)
}

// WinRate returns round(successful/total*100), or nil without estimates.
func (m *PricingMode) WinRate() *int {
	if m.TotalEstimates <= 0 {
		return nil
	}
	rate := int(math.Round(float64(m.SuccessfulEstimates) / float64(m.TotalEstimates) * 100))
	return &rate
}

// PricingModeView is a mode decorated with its derived win rate.
type PricingModeView struct {
	PricingMode
	WinRate *int `json:"win_rate,omitempty"`
}

// CreateModeRequest carries the fields of a new organization-defined mode.
type CreateModeRequest struct {
	Name        string             `json:"name" validate:"required,max=120"`
	Icon        string             `json:"icon" validate:"max=32"`
	Description string             `json:"description" validate:"max=500"`
	Adjustments map[string]float64 `json:"adjustments" validate:"required,min=1,dive,keys,required,endkeys,gt=0"`
}
