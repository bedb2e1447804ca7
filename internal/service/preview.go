package service

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
	"github.com/timmy/pricebook/internal/batch"
	"github.com/timmy/pricebook/internal/category"
	"github.com/timmy/pricebook/internal/domain"
	"github.com/timmy/pricebook/internal/observability"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"
)

const (
	defaultLookupChunkSize   = 100
	defaultLookupConcurrency = 4
)

// minPerceptibleChange is the smallest price difference a preview reports.
var minPerceptibleChange = decimal.RequireFromString("0.01")

// PriceChange is one item's price before and after a mode is applied.
type PriceChange struct {
	ItemID           string            `json:"item_id"`
	Name             string            `json:"name"`
	Category         category.Category `json:"category"`
	OldPrice         float64           `json:"old_price"`
	NewPrice         float64           `json:"new_price"`
	Multiplier       float64           `json:"multiplier"`
	ChangeAmount     float64           `json:"change_amount"`
	ChangePercentage float64           `json:"change_percentage"`
}

// PreviewConfig tunes lookup batching.
type PreviewConfig struct {
	LookupChunkSize   int
	LookupConcurrency int
}

// PreviewEngine computes the price changes a mode would make without writing
// anything.
type PreviewEngine struct {
	catalog     CatalogAccessor
	chunkSize   int
	concurrency int
}

// NewPreviewEngine creates a new PreviewEngine.
// Parameters:
//   - catalog: price and override source.
//   - cfg: lookup chunk size (capped at 100) and concurrency; nil uses defaults.
// Returns:
//   - *PreviewEngine: initialized engine.
func NewPreviewEngine(catalog CatalogAccessor, cfg *PreviewConfig) *PreviewEngine {
	e := &PreviewEngine{
		catalog:     catalog,
		chunkSize:   defaultLookupChunkSize,
		concurrency: defaultLookupConcurrency,
	}
	if cfg != nil {
		if cfg.LookupChunkSize > 0 && cfg.LookupChunkSize < defaultLookupChunkSize {
			e.chunkSize = cfg.LookupChunkSize
		}
		if cfg.LookupConcurrency > 0 {
			e.concurrency = cfg.LookupConcurrency
		}
	}
	return e
}

// Preview returns the changes mode would make to the organization's prices.
// An empty itemIDs targets every item visible to the organization. Entries
// follow target order, which is also the order jobs write them in.
func (e *PreviewEngine) Preview(ctx context.Context, orgID string, mode *domain.PricingMode, itemIDs []string) ([]PriceChange, error) {
	ctx, span := observability.Tracer().Start(ctx, "pricing.preview")
	defer span.End()
	span.SetAttributes(
		attribute.String("org_id", orgID),
		attribute.String("mode_id", mode.ID),
		attribute.String("mode_kind", string(mode.Kind)),
		attribute.Int("requested_items", len(itemIDs)),
	)

	var (
		changes []PriceChange
		err     error
	)
	if mode.Kind == domain.ModeKindResetToBaseline {
		changes, err = e.previewReset(ctx, orgID, dedupe(itemIDs))
	} else {
		changes, err = e.previewMultiplier(ctx, orgID, mode, dedupe(itemIDs))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("changes", len(changes)))
	return changes, nil
}

// previewReset reports every existing override as a change back to the base
// price. Items without an override are not reported.
func (e *PreviewEngine) previewReset(ctx context.Context, orgID string, itemIDs []string) ([]PriceChange, error) {
	var overrides []domain.PriceOverride
	if len(itemIDs) == 0 {
		all, err := e.catalog.ListOverrides(ctx, orgID, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to list overrides: %w", err)
		}
		overrides = all
	} else {
		parts, err := lookup(ctx, itemIDs, e.chunkSize, e.concurrency, func(ctx context.Context, chunk []string) ([]domain.PriceOverride, error) {
			return e.catalog.ListOverrides(ctx, orgID, chunk)
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list overrides: %w", err)
		}
		overrides = parts
	}
	if len(overrides) == 0 {
		return []PriceChange{}, nil
	}

	ids := make([]string, 0, len(overrides))
	for _, o := range overrides {
		ids = append(ids, o.ItemID)
	}
	items, err := lookup(ctx, ids, e.chunkSize, e.concurrency, e.catalog.ItemsByIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load items: %w", err)
	}
	byID := make(map[string]domain.CatalogItem, len(items))
	for _, item := range items {
		byID[item.ID] = item
	}

	changes := make([]PriceChange, 0, len(overrides))
	for i := range overrides {
		item, ok := byID[overrides[i].ItemID]
		if !ok {
			continue
		}
		old := round2(decimal.NewFromFloat(overrides[i].EffectivePrice(item.BasePrice)))
		base := round2(decimal.NewFromFloat(item.BasePrice))
		changes = append(changes, newPriceChange(item, category.All, old, base, 1))
	}
	return changes, nil
}

func (e *PreviewEngine) previewMultiplier(ctx context.Context, orgID string, mode *domain.PricingMode, itemIDs []string) ([]PriceChange, error) {
	targets := itemIDs
	if len(targets) == 0 {
		all, err := e.catalog.ListItemIDs(ctx, orgID)
		if err != nil {
			return nil, fmt.Errorf("failed to list items: %w", err)
		}
		targets = all
	}

	return lookup(ctx, targets, e.chunkSize, e.concurrency, func(ctx context.Context, chunk []string) ([]PriceChange, error) {
		return e.priceChunk(ctx, orgID, mode, chunk)
	})
}

// priceChunk prices one chunk of at most chunkSize items.
func (e *PreviewEngine) priceChunk(ctx context.Context, orgID string, mode *domain.PricingMode, ids []string) ([]PriceChange, error) {
	items, err := e.catalog.ItemsByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load items: %w", err)
	}
	overrides, err := e.catalog.ListOverrides(ctx, orgID, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to list overrides: %w", err)
	}

	var codeIDs []string
	seen := make(map[string]bool)
	for _, item := range items {
		if item.CostCodeID != nil && !seen[*item.CostCodeID] {
			seen[*item.CostCodeID] = true
			codeIDs = append(codeIDs, *item.CostCodeID)
		}
	}
	codes, err := e.catalog.CostCodesByIDs(ctx, codeIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load cost codes: %w", err)
	}

	itemByID := make(map[string]domain.CatalogItem, len(items))
	for _, item := range items {
		itemByID[item.ID] = item
	}
	overrideByItem := make(map[string]*domain.PriceOverride, len(overrides))
	for i := range overrides {
		overrideByItem[overrides[i].ItemID] = &overrides[i]
	}
	codeByID := make(map[string]string, len(codes))
	for _, c := range codes {
		codeByID[c.ID] = c.Code
	}

	changes := make([]PriceChange, 0, len(ids))
	for _, id := range ids {
		item, ok := itemByID[id]
		if !ok {
			continue
		}
		code := ""
		if item.CostCodeID != nil {
			code = codeByID[*item.CostCodeID]
		}
		cat := category.Classify(code)
		multiplier := mode.Adjustments.Multiplier(cat)

		old := round2(decimal.NewFromFloat(overrideByItem[id].EffectivePrice(item.BasePrice)))
		next := round2(decimal.NewFromFloat(item.BasePrice).Mul(decimal.NewFromFloat(multiplier)))
		if next.Sub(old).Abs().LessThan(minPerceptibleChange) {
			continue
		}
		changes = append(changes, newPriceChange(item, cat, old, next, multiplier))
	}
	return changes, nil
}

// lookup runs fn over ids in chunks of at most chunkSize, a bounded number of
// chunks at a time, and concatenates the results in chunk order.
func lookup[T any](ctx context.Context, ids []string, chunkSize, concurrency int, fn func(ctx context.Context, chunk []string) ([]T, error)) ([]T, error) {
	chunks := batch.Chunks(ids, chunkSize)
	results := make([][]T, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, chunk := range chunks {
		g.Go(func() error {
			out, err := fn(gctx, chunk)
			if err != nil {
				return err
			}
			results[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var total int
	for _, r := range results {
		total += len(r)
	}
	out := make([]T, 0, total)
	for _, r := range results {
		out = append(out, r...)
	}
	return out, nil
}

func newPriceChange(item domain.CatalogItem, cat category.Category, old, next decimal.Decimal, multiplier float64) PriceChange {
	change := next.Sub(old)
	pct := decimal.Zero
	if !old.IsZero() {
		pct = round2(change.Div(old).Mul(decimal.NewFromInt(100)))
	}
	return PriceChange{
		ItemID:           item.ID,
		Name:             item.Name,
		Category:         cat,
		OldPrice:         old.InexactFloat64(),
		NewPrice:         next.InexactFloat64(),
		Multiplier:       multiplier,
		ChangeAmount:     change.InexactFloat64(),
		ChangePercentage: pct.InexactFloat64(),
	}
}

func round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// dedupe drops repeated ids, keeping first occurrences in order.
func dedupe(ids []string) []string {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// CategoryTotal aggregates the changes of one category.
type CategoryTotal struct {
	Category category.Category `json:"category"`
	Items    int               `json:"items"`
	OldTotal float64           `json:"old_total"`
	NewTotal float64           `json:"new_total"`
	Change   float64           `json:"change"`
}

// PreviewSummary aggregates a preview for display.
type PreviewSummary struct {
	Items                   int             `json:"items"`
	OldTotal                float64         `json:"old_total"`
	NewTotal                float64         `json:"new_total"`
	AverageChangePercentage float64         `json:"average_change_percentage"`
	Categories              []CategoryTotal `json:"categories"`
}

// Summarize groups changes by category, ordered by category name.
func Summarize(changes []PriceChange) PreviewSummary {
	type acc struct {
		items    int
		old, new decimal.Decimal
	}
	byCat := make(map[category.Category]*acc)
	oldTotal, newTotal, pctTotal := decimal.Zero, decimal.Zero, decimal.Zero
	for _, c := range changes {
		a, ok := byCat[c.Category]
		if !ok {
			a = &acc{old: decimal.Zero, new: decimal.Zero}
			byCat[c.Category] = a
		}
		old, next := decimal.NewFromFloat(c.OldPrice), decimal.NewFromFloat(c.NewPrice)
		a.items++
		a.old = a.old.Add(old)
		a.new = a.new.Add(next)
		oldTotal = oldTotal.Add(old)
		newTotal = newTotal.Add(next)
		pctTotal = pctTotal.Add(decimal.NewFromFloat(c.ChangePercentage))
	}

	summary := PreviewSummary{
		Items:      len(changes),
		OldTotal:   round2(oldTotal).InexactFloat64(),
		NewTotal:   round2(newTotal).InexactFloat64(),
		Categories: make([]CategoryTotal, 0, len(byCat)),
	}
	if len(changes) > 0 {
		summary.AverageChangePercentage = round2(pctTotal.Div(decimal.NewFromInt(int64(len(changes))))).InexactFloat64()
	}
	for cat, a := range byCat {
		summary.Categories = append(summary.Categories, CategoryTotal{
			Category: cat,
			Items:    a.items,
			OldTotal: round2(a.old).InexactFloat64(),
			NewTotal: round2(a.new).InexactFloat64(),
			Change:   round2(a.new.Sub(a.old)).InexactFloat64(),
		})
	}
	sort.Slice(summary.Categories, func(i, j int) bool {
		return summary.Categories[i].Category < summary.Categories[j].Category
	})
	return summary
}
