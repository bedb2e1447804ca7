package source

import "context"

// CatalogRecord is one catalog item as delivered by an import source.
type CatalogRecord struct {
	ItemID              string  // Unique item ID, stable across imports
	Name                string  // Display name, also used for classification
	BasePrice           float64 // Price before any organization override
	CostCode            string  // Optional cost-code, e.g. "09-2900"
	CostCodeDescription string
	OrganizationID      string // Empty for items shared by every organization
}

// Source defines the interface for catalog import sources.
type Source interface {
	// GetSourceID returns the unique identifier for this source.
	GetSourceID() string

	// GetDisplayName returns a human-readable name for this source.
	GetDisplayName() string

	// FetchBatch fetches a batch of records starting from the given cursor.
	// Parameters:
	//   - ctx: context for cancellation and deadlines.
	//   - cursor: pagination cursor or empty for first page.
	//   - limit: maximum number of records to fetch.
	// Returns:
	//   - records: batch of catalog records.
	//   - nextCursor: cursor for the next batch or empty if done.
	//   - err: non-nil if fetching fails.
	FetchBatch(ctx context.Context, cursor string, limit int) (records []CatalogRecord, nextCursor string, err error)
}
