package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/timmy/pricebook/internal/batch"
	"github.com/timmy/pricebook/internal/category"
	"github.com/timmy/pricebook/internal/domain"
	"github.com/timmy/pricebook/internal/logger"
	"github.com/timmy/pricebook/internal/source"
)

const defaultImportBatchSize = 100

// costCodeNamespace derives stable cost-code IDs from their code.
var costCodeNamespace = uuid.MustParse("6f1c9b52-3c1e-4c55-9a3e-2b7f0d4f8a10")

// CatalogWriter persists imported catalog data.
type CatalogWriter interface {
	UpsertItems(ctx context.Context, items []domain.CatalogItem) error
	UpsertCostCodes(ctx context.Context, codes []domain.CostCode) error
}

// ImportStats holds statistics for a catalog import run.
type ImportStats struct {
	TotalItems     int            `json:"total_items"`
	ProcessedItems int            `json:"processed_items"`
	FailedItems    int            `json:"failed_items"`
	ByCategory     map[string]int `json:"by_category"`
	Duration       time.Duration  `json:"duration"`
}

// CatalogImporter loads catalog items from an import source.
type CatalogImporter struct {
	catalog   CatalogWriter
	batchSize int
}

// NewCatalogImporter creates a new CatalogImporter. batchSize <= 0 uses 100.
func NewCatalogImporter(catalog CatalogWriter, batchSize int) *CatalogImporter {
	if batchSize <= 0 || batchSize > defaultImportBatchSize {
		batchSize = defaultImportBatchSize
	}
	return &CatalogImporter{catalog: catalog, batchSize: batchSize}
}

// CostCodeID returns the ID an imported cost code is stored under.
func CostCodeID(code string) string {
	return uuid.NewSHA1(costCodeNamespace, []byte(code)).String()
}

// Import reads every record of src, up to limit (0 means no limit), and
// upserts items and cost codes page by page. A failed page is counted and
// the import continues with the next one.
// Parameters:
//   - ctx: context for cancellation; a cancelled import returns ctx.Err().
//   - src: import source.
//   - limit: maximum number of records to read.
// Returns:
//   - *ImportStats: counts of processed and failed records.
//   - error: non-nil if the source cannot be read.
func (i *CatalogImporter) Import(ctx context.Context, src source.Source, limit int) (*ImportStats, error) {
	start := time.Now()
	ctx = logger.SetComponent(ctx, "importer")
	stats := &ImportStats{ByCategory: map[string]int{}}

	cursor := ""
	for {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		pageSize := i.batchSize
		if limit > 0 {
			remaining := limit - stats.TotalItems
			if remaining <= 0 {
				break
			}
			pageSize = min(pageSize, remaining)
		}

		records, next, err := src.FetchBatch(ctx, cursor, pageSize)
		if err != nil {
			return stats, fmt.Errorf("failed to fetch from %s: %w", src.GetSourceID(), err)
		}
		stats.TotalItems += len(records)

		if err := i.writePage(ctx, records, stats); err != nil {
			stats.FailedItems += len(records)
			logger.With(logger.Fields{logger.FieldSize: pageSize}).WithFailed(len(records)).Error(ctx, "Failed to import page at cursor %q: %v", cursor, err)
		} else {
			stats.ProcessedItems += len(records)
		}

		if next == "" || len(records) == 0 {
			break
		}
		cursor = next
	}

	stats.Duration = time.Since(start)
	logger.With(logger.Fields{
		logger.FieldCount:      stats.ProcessedItems,
		logger.FieldFailed:     stats.FailedItems,
		logger.FieldDurationMs: stats.Duration.Milliseconds(),
	}).Info(ctx, "Imported catalog from %s", src.GetDisplayName())
	return stats, nil
}

func (i *CatalogImporter) writePage(ctx context.Context, records []source.CatalogRecord, stats *ImportStats) error {
	if len(records) == 0 {
		return nil
	}
	codes := make(map[string]domain.CostCode)
	items := make([]domain.CatalogItem, 0, len(records))
	categories := make(map[string]int)
	for _, rec := range records {
		item := domain.CatalogItem{
			ID:        rec.ItemID,
			Name:      rec.Name,
			BasePrice: rec.BasePrice,
		}
		if rec.OrganizationID != "" {
			org := rec.OrganizationID
			item.OrganizationID = &org
		}
		code := ""
		if rec.CostCode != "" {
			id := CostCodeID(rec.CostCode)
			item.CostCodeID = &id
			codes[id] = domain.CostCode{ID: id, Code: rec.CostCode, Description: rec.CostCodeDescription}
			code = rec.CostCode
		}
		categories[string(category.Classify(code))]++
		items = append(items, item)
	}

	codeRows := make([]domain.CostCode, 0, len(codes))
	for _, c := range codes {
		codeRows = append(codeRows, c)
	}
	if err := i.catalog.UpsertCostCodes(ctx, codeRows); err != nil {
		return err
	}
	for _, chunk := range batch.Chunks(items, i.batchSize) {
		if err := i.catalog.UpsertItems(ctx, chunk); err != nil {
			return err
		}
	}
	for cat, n := range categories {
		stats.ByCategory[cat] += n
	}
	return nil
}
