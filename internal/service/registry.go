package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/timmy/pricebook/internal/activity"
	"github.com/timmy/pricebook/internal/category"
	"github.com/timmy/pricebook/internal/domain"
	"github.com/timmy/pricebook/internal/logger"
)

// ModeRegistry stores preset and organization-defined pricing modes.
type ModeRegistry struct {
	modes    ModeStore
	activity activity.Logger
	validate *validator.Validate
}

// NewModeRegistry creates a new ModeRegistry.
// Parameters:
//   - modes: mode persistence.
//   - sink: activity log for create/delete entries; nil disables it.
// Returns:
//   - *ModeRegistry: initialized registry.
func NewModeRegistry(modes ModeStore, sink activity.Logger) *ModeRegistry {
	return &ModeRegistry{
		modes:    modes,
		activity: sink,
		validate: validator.New(),
	}
}

// List returns the active presets and the organization's custom modes,
// presets first and then by descending usage, each with its win rate.
func (r *ModeRegistry) List(ctx context.Context, orgID string) ([]domain.PricingModeView, error) {
	if orgID == "" {
		return nil, &domain.ValidationError{Field: "organization_id", Message: "is required"}
	}
	modes, err := r.modes.ListForOrg(ctx, orgID)
	if err != nil {
		return nil, err
	}
	return decorate(modes), nil
}

// Presets returns the system presets ordered by name.
func (r *ModeRegistry) Presets(ctx context.Context) ([]domain.PricingModeView, error) {
	modes, err := r.modes.ListPresets(ctx)
	if err != nil {
		return nil, err
	}
	return decorate(modes), nil
}

func decorate(modes []domain.PricingMode) []domain.PricingModeView {
	views := make([]domain.PricingModeView, 0, len(modes))
	for i := range modes {
		views = append(views, domain.PricingModeView{PricingMode: modes[i], WinRate: modes[i].WinRate()})
	}
	return views
}

// Get returns a mode the organization may use. Another organization's custom
// mode is reported as not found.
func (r *ModeRegistry) Get(ctx context.Context, orgID, modeID string) (*domain.PricingMode, error) {
	if modeID == "" {
		return nil, &domain.ValidationError{Field: "mode_id", Message: "is required"}
	}
	mode, err := r.modes.GetByID(ctx, modeID)
	if err != nil {
		return nil, err
	}
	if !mode.VisibleTo(orgID) {
		return nil, &domain.NotFoundError{Entity: "pricing mode", ID: modeID}
	}
	return mode, nil
}

// Create inserts a custom multiplier mode owned by orgID.
// Parameters:
//   - ctx: context for cancellation and logging.
//   - orgID: owning organization.
//   - actor: user recorded in the activity log.
//   - req: mode definition.
// Returns:
//   - *domain.PricingMode: the stored mode.
//   - error: a *domain.ValidationError for malformed definitions.
func (r *ModeRegistry) Create(ctx context.Context, orgID, actor string, req *domain.CreateModeRequest) (*domain.PricingMode, error) {
	if orgID == "" {
		return nil, &domain.ValidationError{Field: "organization_id", Message: "is required"}
	}
	if req == nil {
		return nil, &domain.ValidationError{Message: "mode definition is required"}
	}
	if err := r.validateRequest(req); err != nil {
		return nil, err
	}

	owner := orgID
	mode := &domain.PricingMode{
		ID:             uuid.New().String(),
		OrganizationID: &owner,
		Name:           strings.TrimSpace(req.Name),
		Icon:           req.Icon,
		Description:    req.Description,
		Kind:           domain.ModeKindMultiplier,
		Adjustments:    domain.Adjustments(req.Adjustments),
		IsActive:       true,
	}
	if err := r.modes.Create(ctx, mode); err != nil {
		return nil, fmt.Errorf("failed to create pricing mode: %w", err)
	}

	logger.With(logger.Fields{logger.FieldModeID: mode.ID}).Info(ctx, "Created pricing mode %q", mode.Name)
	recordActivity(ctx, r.activity, domain.ActivityEntry{
		OrganizationID: orgID,
		Actor:          actor,
		EntityType:     domain.EntityPricingMode,
		EntityID:       mode.ID,
		Action:         domain.ActionCreated,
		Description:    fmt.Sprintf("Created pricing mode %q", mode.Name),
	})
	return mode, nil
}

func (r *ModeRegistry) validateRequest(req *domain.CreateModeRequest) error {
	if strings.TrimSpace(req.Name) == "" {
		return &domain.ValidationError{Field: "name", Message: "is required"}
	}
	if err := r.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			field := strings.ToLower(fe.Field())
			if strings.HasPrefix(field, "adjustments") {
				field = "adjustments"
			}
			return &domain.ValidationError{Field: field, Message: describeTag(fe)}
		}
		return &domain.ValidationError{Message: err.Error()}
	}
	for name := range req.Adjustments {
		if !category.IsKnown(name) {
			return &domain.ValidationError{Field: "adjustments", Message: fmt.Sprintf("unknown category %q", name)}
		}
	}
	return nil
}

func describeTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return "must not be empty"
	case "max":
		return "is too long"
	case "gt":
		return "multipliers must be positive"
	default:
		return "failed " + fe.Tag() + " check"
	}
}

// Delete removes a custom mode. Presets and other organizations' modes
// yield a *domain.PermissionError.
func (r *ModeRegistry) Delete(ctx context.Context, orgID, actor, modeID string) error {
	mode, err := r.modes.GetByID(ctx, modeID)
	if err != nil {
		return err
	}
	if mode.IsPreset {
		return &domain.PermissionError{Message: "preset pricing modes cannot be deleted"}
	}
	if !mode.OwnedBy(orgID) {
		return &domain.PermissionError{Message: "pricing mode belongs to another organization"}
	}
	if err := r.modes.Delete(ctx, modeID); err != nil {
		return fmt.Errorf("failed to delete pricing mode: %w", err)
	}

	logger.With(logger.Fields{logger.FieldModeID: modeID}).Info(ctx, "Deleted pricing mode %q", mode.Name)
	recordActivity(ctx, r.activity, domain.ActivityEntry{
		OrganizationID: orgID,
		Actor:          actor,
		EntityType:     domain.EntityPricingMode,
		EntityID:       modeID,
		Action:         domain.ActionDeleted,
		Description:    fmt.Sprintf("Deleted pricing mode %q", mode.Name),
	})
	return nil
}

// RecordEstimate counts an estimate priced with the mode and whether it was
// won. The counters only feed the win-rate display.
func (r *ModeRegistry) RecordEstimate(ctx context.Context, orgID, modeID string, won bool) error {
	if _, err := r.Get(ctx, orgID, modeID); err != nil {
		return err
	}
	return r.modes.RecordEstimate(ctx, modeID, won)
}

// IncrementUsage bumps the mode's usage counter.
func (r *ModeRegistry) IncrementUsage(ctx context.Context, modeID string) error {
	return r.modes.IncrementUsage(ctx, modeID)
}

// SeedPresets inserts any preset that is not stored yet. It is safe to run on
// every startup.
// Returns:
//   - int: number of presets inserted.
//   - error: non-nil if a lookup or insert fails.
func (r *ModeRegistry) SeedPresets(ctx context.Context) (int, error) {
	inserted := 0
	for _, preset := range Presets {
		exists, err := r.modes.PresetExists(ctx, preset.Name)
		if err != nil {
			return inserted, fmt.Errorf("failed to check preset %q: %w", preset.Name, err)
		}
		if exists {
			continue
		}
		mode := preset
		mode.ID = uuid.New().String()
		mode.IsPreset = true
		mode.IsActive = true
		mode.Adjustments = make(domain.Adjustments, len(preset.Adjustments))
		for k, v := range preset.Adjustments {
			mode.Adjustments[k] = v
		}
		if err := r.modes.Create(ctx, &mode); err != nil {
			return inserted, fmt.Errorf("failed to seed preset %q: %w", preset.Name, err)
		}
		inserted++
	}
	if inserted > 0 {
		logger.With(logger.Fields{logger.FieldCount: inserted}).Info(ctx, "Seeded pricing presets")
	}
	return inserted, nil
}
