package domain

import "time"

// ActivityEntry is one audit-log line describing a change made by an actor.
type ActivityEntry struct {
	ID             string    `gorm:"type:text;primaryKey" json:"id"`
	OrganizationID string    `gorm:"type:text;not null;index:idx_activity_logs_org" json:"organization_id"`
	Actor          string    `gorm:"type:text" json:"actor"`
	EntityType     string    `gorm:"type:text;not null" json:"entity_type"`
	EntityID       string    `gorm:"type:text;not null" json:"entity_id"`
	Action         string    `gorm:"type:text;not null" json:"action"`
	Description    string    `gorm:"type:text" json:"description"`
	CreatedAt      time.Time `json:"created_at"`
}

// TableName returns the database table name for ActivityEntry.
func (ActivityEntry) TableName() string {
	return "activity_logs"
}

const (
	EntityPricingMode = "pricing_mode"
	EntityPricingJob  = "pricing_job"

	ActionCreated  = "created"
	ActionDeleted  = "deleted"
	ActionApplied  = "applied"
	ActionReverted = "reverted"
)
