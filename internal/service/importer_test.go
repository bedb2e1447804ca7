package service

import (
	"context"
	"errors"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/pricebook/internal/domain"
	"github.com/timmy/pricebook/internal/source"
)

type sliceSource struct {
	records []source.CatalogRecord
	limits  []int
}

func (s *sliceSource) GetSourceID() string    { return "test" }
func (s *sliceSource) GetDisplayName() string { return "Test" }

func (s *sliceSource) FetchBatch(_ context.Context, cursor string, limit int) ([]source.CatalogRecord, string, error) {
	s.limits = append(s.limits, limit)
	start := 0
	if cursor != "" {
		start, _ = strconv.Atoi(cursor)
	}
	end := min(start+limit, len(s.records))
	next := ""
	if end < len(s.records) {
		next = strconv.Itoa(end)
	}
	return s.records[start:end], next, nil
}

type recordingWriter struct {
	items    []domain.CatalogItem
	codes    map[string]domain.CostCode
	failWith string
}

func (w *recordingWriter) UpsertItems(_ context.Context, items []domain.CatalogItem) error {
	for _, it := range items {
		if it.ID == w.failWith {
			return errors.New("constraint violation")
		}
	}
	w.items = append(w.items, items...)
	return nil
}

func (w *recordingWriter) UpsertCostCodes(_ context.Context, codes []domain.CostCode) error {
	if w.codes == nil {
		w.codes = map[string]domain.CostCode{}
	}
	for _, c := range codes {
		w.codes[c.ID] = c
	}
	return nil
}

func records(n int) []source.CatalogRecord {
	out := make([]source.CatalogRecord, n)
	for i := range out {
		out[i] = source.CatalogRecord{ItemID: "item-" + strconv.Itoa(i), Name: "Item", BasePrice: float64(i)}
	}
	return out
}

func TestCatalogImporter_Import(t *testing.T) {
	recs := records(5)
	recs[0].CostCode = "150"
	recs[0].CostCodeDescription = "Framing labor"
	recs[1].CostCode = "150"
	recs[2].CostCode = "520"
	recs[3].OrganizationID = "org-1"

	src := &sliceSource{records: recs}
	w := &recordingWriter{}
	stats, err := NewCatalogImporter(w, 2).Import(context.Background(), src, 0)
	require.NoError(t, err)

	assert.Equal(t, 5, stats.TotalItems)
	assert.Equal(t, 5, stats.ProcessedItems)
	assert.Equal(t, 0, stats.FailedItems)
	assert.Equal(t, map[string]int{"labor": 2, "materials": 1, "all": 2}, stats.ByCategory)
	assert.Equal(t, []int{2, 2, 2}, src.limits)

	require.Len(t, w.items, 5)
	require.NotNil(t, w.items[0].CostCodeID)
	assert.Equal(t, CostCodeID("150"), *w.items[0].CostCodeID)
	assert.Equal(t, *w.items[0].CostCodeID, *w.items[1].CostCodeID)
	require.NotNil(t, w.items[3].OrganizationID)
	assert.Equal(t, "org-1", *w.items[3].OrganizationID)
	assert.Nil(t, w.items[4].OrganizationID)
	assert.Len(t, w.codes, 2)
	assert.Equal(t, "Framing labor", w.codes[CostCodeID("150")].Description)
}

func TestCatalogImporter_LimitAndFailedPage(t *testing.T) {
	src := &sliceSource{records: records(10)}
	w := &recordingWriter{failWith: "item-3"}
	stats, err := NewCatalogImporter(w, 3).Import(context.Background(), src, 7)
	require.NoError(t, err)

	assert.Equal(t, []int{3, 3, 1}, src.limits)
	assert.Equal(t, 7, stats.TotalItems)
	assert.Equal(t, 4, stats.ProcessedItems)
	assert.Equal(t, 3, stats.FailedItems)
	assert.Len(t, w.items, 4)
}

func TestCatalogImporter_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewCatalogImporter(&recordingWriter{}, 10).Import(ctx, &sliceSource{records: records(3)}, 0)
	assert.ErrorIs(t, err, context.Canceled)
}
