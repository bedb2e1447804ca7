package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/pricebook/internal/api/middleware"
	"github.com/timmy/pricebook/internal/config"
	"github.com/timmy/pricebook/internal/domain"
	"github.com/timmy/pricebook/internal/repository"
	"github.com/timmy/pricebook/internal/service"
	"github.com/timmy/pricebook/internal/undo"
)

type testServer struct {
	router  *gin.Engine
	runner  *service.Runner
	catalog *repository.CatalogRepository
	modes   *repository.ModeRepository
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	db, err := repository.InitDB(&config.DatabaseConfig{
		Driver:       "sqlite",
		Path:         "file:" + uuid.New().String() + "?mode=memory&cache=shared",
		MaxOpenConns: 1,
		AutoMigrate:  true,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	catalog := repository.NewCatalogRepository(db)
	modes := repository.NewModeRepository(db)
	jobs := repository.NewJobRepository(db)
	activityRepo := repository.NewActivityRepository(db)

	registry := service.NewModeRegistry(modes, activityRepo)
	_, err = registry.SeedPresets(context.Background())
	require.NoError(t, err)
	preview := service.NewPreviewEngine(catalog, nil)
	orch := service.NewOrchestrator(jobs, modes, catalog, preview, activityRepo, nil)
	undoMgr := service.NewUndoManager(catalog, undo.NewMemoryStore(), orch, nil, 30*time.Second)
	runner := service.NewRunner()
	svc := service.NewPricingService(registry, preview, orch, undoMgr, runner)

	cfg := &config.Config{Server: config.ServerConfig{Mode: "test", CORS: config.CORSConfig{AllowAllOrigins: true}}}
	router := SetupRouter(RouterDeps{Pricing: svc, Activity: activityRepo, DB: sqlDB}, cfg)
	t.Cleanup(runner.Wait)
	return &testServer{router: router, runner: runner, catalog: catalog, modes: modes}
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middleware.HeaderOrganizationID, "org-1")
	req.Header.Set(middleware.HeaderActor, "alice")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) presetID(t *testing.T, name string) string {
	t.Helper()
	presets, err := s.modes.ListPresets(context.Background())
	require.NoError(t, err)
	for _, p := range presets {
		if p.Name == name {
			return p.ID
		}
	}
	t.Fatalf("preset %q not seeded", name)
	return ""
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
	assert.NotEmpty(t, w.Header().Get(middleware.HeaderRequestID))
}

func TestOrganizationHeaderRequired(t *testing.T) {
	s := newTestServer(t)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/modes", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestModes_CreateListDelete(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/v1/modes", map[string]interface{}{
		"name":        "Holiday",
		"adjustments": map[string]float64{"labor": 1.3},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created domain.PricingMode
	decode(t, w, &created)
	assert.Equal(t, "Holiday", created.Name)
	assert.False(t, created.IsPreset)

	w = s.do(t, http.MethodPost, "/api/v1/modes", map[string]interface{}{
		"name":        "Broken",
		"adjustments": map[string]float64{"labor": -1},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/modes", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Modes []domain.PricingModeView `json:"modes"`
		Total int                      `json:"total"`
	}
	decode(t, w, &list)
	assert.Equal(t, len(service.Presets)+1, list.Total)
	assert.True(t, list.Modes[0].IsPreset)
	assert.Equal(t, "Holiday", list.Modes[list.Total-1].Name)

	w = s.do(t, http.MethodPost, "/api/v1/modes/"+created.ID+"/estimates", map[string]bool{"won": true})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var view domain.PricingModeView
	decode(t, w, &view)
	require.NotNil(t, view.WinRate)
	assert.Equal(t, 100, *view.WinRate)

	w = s.do(t, http.MethodDelete, "/api/v1/modes/"+s.presetID(t, "Rush Job"), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, http.MethodDelete, "/api/v1/modes/"+created.ID, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = s.do(t, http.MethodDelete, "/api/v1/modes/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPreview(t *testing.T) {
	s := newTestServer(t)
	require.NoError(t, s.catalog.UpsertItems(context.Background(), []domain.CatalogItem{
		{ID: "a", Name: "Drywall install labor", BasePrice: 100},
		{ID: "b", Name: "Copper pipe", BasePrice: 50},
	}))

	w := s.do(t, http.MethodPost, "/api/v1/preview", map[string]interface{}{
		"mode_id": s.presetID(t, "Rush Job"),
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp struct {
		Changes []service.PriceChange  `json:"changes"`
		Summary service.PreviewSummary `json:"summary"`
	}
	decode(t, w, &resp)
	require.Len(t, resp.Changes, 2)
	assert.Equal(t, 2, resp.Summary.Items)
	assert.InDelta(t, 150, resp.Summary.OldTotal, 1e-9)
	assert.InDelta(t, 225, resp.Summary.NewTotal, 1e-9)

	w = s.do(t, http.MethodPost, "/api/v1/preview", map[string]interface{}{"mode_id": "missing"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/preview", map[string]interface{}{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestJobs_ApplyThenUndo(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	require.NoError(t, s.catalog.UpsertItems(ctx, []domain.CatalogItem{
		{ID: "a", Name: "Trim carpentry", BasePrice: 100},
		{ID: "b", Name: "Paint", BasePrice: 40},
	}))

	w := s.do(t, http.MethodPost, "/api/v1/jobs", map[string]interface{}{
		"mode_id": s.presetID(t, "Premium Client"),
	})
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	var created struct {
		JobID string `json:"job_id"`
	}
	decode(t, w, &created)
	require.NotEmpty(t, created.JobID)
	s.runner.Wait()

	w = s.do(t, http.MethodGet, "/api/v1/jobs/"+created.JobID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var status struct {
		Status         domain.JobStatus `json:"status"`
		ProcessedItems int              `json:"processed_items"`
		TotalItems     int              `json:"total_items"`
		UndoExpiresAt  *time.Time       `json:"undo_expires_at"`
	}
	decode(t, w, &status)
	assert.Equal(t, domain.JobStatusCompleted, status.Status)
	assert.Equal(t, 2, status.ProcessedItems)
	assert.Equal(t, 2, status.TotalItems)
	assert.NotNil(t, status.UndoExpiresAt)

	priced, err := s.catalog.PricedItems(ctx, "org-1", []string{"a"})
	require.NoError(t, err)
	assert.InDelta(t, 120, priced[0].EffectivePrice, 1e-9)

	w = s.do(t, http.MethodPost, "/api/v1/jobs/"+created.JobID+"/undo", nil)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	s.runner.Wait()

	w = s.do(t, http.MethodPost, "/api/v1/jobs/"+created.JobID+"/undo", nil)
	assert.Equal(t, http.StatusGone, w.Code)

	priced, err = s.catalog.PricedItems(ctx, "org-1", []string{"a", "b"})
	require.NoError(t, err)
	for _, p := range priced {
		assert.Nil(t, p.Override, p.Item.ID)
	}

	w = s.do(t, http.MethodGet, "/api/v1/activity?limit=10", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var activity struct {
		Entries []domain.ActivityEntry `json:"entries"`
	}
	decode(t, w, &activity)
	var actions []string
	for _, e := range activity.Entries {
		actions = append(actions, e.Action)
	}
	assert.Contains(t, actions, domain.ActionApplied)
	assert.Contains(t, actions, domain.ActionReverted)

	w = s.do(t, http.MethodGet, "/api/v1/jobs/active", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"total":0`)
}

func TestJobs_NotFoundAndValidation(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/api/v1/jobs/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/jobs/undo", map[string]interface{}{
		"previous_prices": []map[string]interface{}{{"item_id": "", "price": 10}},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/jobs/missing/cancel", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/activity?limit=zero", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestJobs_UndoRestoresMarkupOverride(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	require.NoError(t, s.catalog.UpsertItems(ctx, []domain.CatalogItem{{ID: "a", Name: "Trim carpentry", BasePrice: 10.01}}))
	markup := 12.5
	require.NoError(t, s.catalog.UpsertOverride(ctx, "org-1", domain.OverrideWrite{ItemID: "a", MarkupPercentage: &markup}))

	w := s.do(t, http.MethodPost, "/api/v1/jobs", map[string]interface{}{
		"mode_id":  s.presetID(t, "Rush Job"),
		"item_ids": []string{"a"},
	})
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	var created struct {
		JobID string `json:"job_id"`
	}
	decode(t, w, &created)
	s.runner.Wait()

	w = s.do(t, http.MethodPost, "/api/v1/jobs/"+created.JobID+"/undo", nil)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	s.runner.Wait()

	priced, err := s.catalog.PricedItems(ctx, "org-1", []string{"a"})
	require.NoError(t, err)
	require.Len(t, priced, 1)
	require.NotNil(t, priced[0].Override)
	assert.Nil(t, priced[0].Override.CustomPrice)
	require.NotNil(t, priced[0].Override.MarkupPercentage)
	assert.Equal(t, 12.5, *priced[0].Override.MarkupPercentage)
	assert.InDelta(t, 11.26125, priced[0].EffectivePrice, 1e-9)
}
