package storage

import (
	"bytes"
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/pricebook/internal/domain"
)

type memoryStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
}

func newMemoryStorage() *memoryStorage {
	return &memoryStorage{objects: map[string][]byte{}, types: map[string]string{}}
}

func (m *memoryStorage) Upload(_ context.Context, key string, reader io.Reader, _ int64, contentType string) error {
	raw, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = raw
	m.types[key] = contentType
	return nil
}

func (m *memoryStorage) Download(_ context.Context, key string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.objects[key]
	if !ok {
		return nil, ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(raw)), nil
}

func (m *memoryStorage) Exists(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[key]
	return ok, nil
}

func TestReportArchive_SaveLoad(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStorage()
	archive := NewReportArchive(store, "reports")

	report := &ChangeReport{
		JobID:          "job-1",
		OrganizationID: "org-1",
		OperationType:  domain.OperationApplyPricingMode,
		ModeName:       "Rush Job",
		Status:         domain.JobStatusCompleted,
		Summary:        &domain.ResultSummary{SuccessCount: 3},
		PreviousPrices: []domain.PreviousPrice{{ItemID: "a", Price: 100}},
		CompletedAt:    time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	key, err := archive.Save(ctx, report)
	require.NoError(t, err)
	assert.Equal(t, "reports/org-1/job-1.json", key)
	assert.Equal(t, "application/json", store.types[key])

	got, err := archive.Load(ctx, "org-1", "job-1")
	require.NoError(t, err)
	assert.Equal(t, report, got)

	_, err = archive.Load(ctx, "org-1", "missing")
	assert.True(t, domain.IsNotFound(err))
}

func TestDetectStorageType(t *testing.T) {
	tests := []struct {
		endpoint string
		want     StorageType
	}{
		{"https://abc.r2.cloudflarestorage.com", StorageTypeR2},
		{"s3.eu-west-1.amazonaws.com", StorageTypeS3},
		{"", StorageTypeS3},
		{"localhost:9000", StorageTypeS3Compatible},
	}
	for _, tt := range tests {
		t.Run(tt.endpoint, func(t *testing.T) {
			assert.Equal(t, tt.want, detectStorageType(tt.endpoint))
		})
	}
}

func TestNormalizeEndpoint(t *testing.T) {
	assert.Equal(t, "minio:9000", normalizeEndpoint("http://minio:9000/bucket/x"))
	assert.Equal(t, "s3.amazonaws.com", normalizeEndpoint("https://s3.amazonaws.com"))
}
