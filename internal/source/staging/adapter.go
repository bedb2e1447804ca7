package staging

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/timmy/pricebook/internal/logger"
	"github.com/timmy/pricebook/internal/source"
)

// ManifestFileName is the JSONL manifest file name in staging sources.
const ManifestFileName = "manifest.jsonl"

// ManifestItem represents a line of the manifest.jsonl file.
type ManifestItem struct {
	ID                  string  `json:"id"`
	Name                string  `json:"name"`
	BasePrice           float64 `json:"base_price"`
	CostCode            string  `json:"cost_code"`
	CostCodeDescription string  `json:"cost_code_description"`
	OrganizationID      string  `json:"organization_id"`
}

// Adapter implements the Source interface for a staging directory.
type Adapter struct {
	basePath string
	sourceID string
	records  []source.CatalogRecord
	skipped  int
	loaded   bool
}

// NewAdapter creates a new staging adapter.
// Parameters:
//   - basePath: base path to the staging directory.
//   - sourceID: name of the staged export under basePath.
// Returns:
//   - *Adapter: initialized staging adapter.
func NewAdapter(basePath, sourceID string) *Adapter {
	return &Adapter{
		basePath: basePath,
		sourceID: sourceID,
	}
}

// GetSourceID returns the source identifier with a "staging:" prefix.
func (a *Adapter) GetSourceID() string {
	return "staging:" + a.sourceID
}

// GetDisplayName returns a human-readable name for this source.
func (a *Adapter) GetDisplayName() string {
	return fmt.Sprintf("Staging (%s)", a.sourceID)
}

// FetchBatch fetches a batch of records from the staging manifest.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - cursor: pagination cursor as an index string.
//   - limit: maximum number of records to fetch.
// Returns:
//   - []source.CatalogRecord: batch of records.
//   - string: next cursor or empty if no more records.
//   - error: non-nil if loading or parsing fails.
func (a *Adapter) FetchBatch(ctx context.Context, cursor string, limit int) ([]source.CatalogRecord, string, error) {
	if err := a.ensureLoaded(ctx); err != nil {
		return nil, "", err
	}

	startIndex := 0
	if cursor != "" {
		var err error
		startIndex, err = strconv.Atoi(cursor)
		if err != nil || startIndex < 0 {
			return nil, "", fmt.Errorf("invalid cursor: %q", cursor)
		}
	}
	if startIndex >= len(a.records) {
		return []source.CatalogRecord{}, "", nil
	}

	endIndex := min(startIndex+limit, len(a.records))
	nextCursor := ""
	if endIndex < len(a.records) {
		nextCursor = strconv.Itoa(endIndex)
	}
	return a.records[startIndex:endIndex], nextCursor, nil
}

// GetTotalCount returns the number of valid records in the manifest.
func (a *Adapter) GetTotalCount(ctx context.Context) (int, error) {
	if err := a.ensureLoaded(ctx); err != nil {
		return 0, err
	}
	return len(a.records), nil
}

// Skipped returns the number of malformed manifest lines ignored.
func (a *Adapter) Skipped() int {
	return a.skipped
}

func (a *Adapter) ensureLoaded(ctx context.Context) error {
	if a.loaded {
		return nil
	}
	if err := a.loadRecords(ctx); err != nil {
		return fmt.Errorf("failed to load staging records: %w", err)
	}
	a.loaded = true
	return nil
}

// loadRecords reads the manifest. Lines without an ID or name, or with a
// negative price, are skipped.
func (a *Adapter) loadRecords(ctx context.Context) error {
	manifestPath := filepath.Join(a.basePath, a.sourceID, ManifestFileName)

	file, err := os.Open(manifestPath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("manifest file not found: %s", manifestPath)
		}
		return fmt.Errorf("failed to open manifest: %w", err)
	}
	defer file.Close()

	a.records = []source.CatalogRecord{}
	a.skipped = 0

	scanner := bufio.NewScanner(file)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var item ManifestItem
		if err := json.Unmarshal([]byte(line), &item); err != nil {
			a.skipped++
			logger.With(logger.Fields{"line": lineNo}).Warn(ctx, "Skipping malformed manifest line: %v", err)
			continue
		}
		if item.ID == "" || strings.TrimSpace(item.Name) == "" || item.BasePrice < 0 {
			a.skipped++
			logger.With(logger.Fields{"line": lineNo}).Warn(ctx, "Skipping invalid manifest item %q", item.ID)
			continue
		}

		a.records = append(a.records, source.CatalogRecord{
			ItemID:              item.ID,
			Name:                strings.TrimSpace(item.Name),
			BasePrice:           item.BasePrice,
			CostCode:            strings.TrimSpace(item.CostCode),
			CostCodeDescription: item.CostCodeDescription,
			OrganizationID:      item.OrganizationID,
		})
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading manifest: %w", err)
	}

	sort.Slice(a.records, func(i, j int) bool {
		return a.records[i].ItemID < a.records[j].ItemID
	})
	return nil
}

// ListStagingSources lists the staged exports under basePath.
// Parameters:
//   - basePath: base path to the staging directory.
// Returns:
//   - []string: list of staging source IDs.
//   - error: non-nil if reading the directory fails.
func ListStagingSources(basePath string) ([]string, error) {
	entries, err := os.ReadDir(basePath)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, err
	}

	var sources []string
	for _, entry := range entries {
		if entry.IsDir() {
			manifestPath := filepath.Join(basePath, entry.Name(), ManifestFileName)
			if _, err := os.Stat(manifestPath); err == nil {
				sources = append(sources, entry.Name())
			}
		}
	}
	return sources, nil
}
