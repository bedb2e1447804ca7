package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/timmy/pricebook/internal/domain"
	"gorm.io/datatypes"
)

// fakeCatalog is an in-memory CatalogAccessor with failure injection.
type fakeCatalog struct {
	mu        sync.Mutex
	items     map[string]domain.CatalogItem
	order     []string
	codes     map[string]domain.CostCode
	overrides map[string]map[string]domain.PriceOverride // org -> item -> override

	rejectItems map[string]bool // item writes that always fail
	failListIDs error
	maxKeys     int
	upsertCalls [][]string
	deleteCalls [][]string
	itemLookups []int
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{
		items:       map[string]domain.CatalogItem{},
		codes:       map[string]domain.CostCode{},
		overrides:   map[string]map[string]domain.PriceOverride{},
		rejectItems: map[string]bool{},
	}
}

func (c *fakeCatalog) addCode(id, code string) {
	c.codes[id] = domain.CostCode{ID: id, Code: code}
}

func (c *fakeCatalog) addItem(id string, base float64, codeID string) {
	item := domain.CatalogItem{ID: id, Name: "Item " + id, BasePrice: base}
	if codeID != "" {
		cid := codeID
		item.CostCodeID = &cid
	}
	c.items[id] = item
	c.order = append(c.order, id)
}

func (c *fakeCatalog) setOverride(orgID, itemID string, price float64) {
	if c.overrides[orgID] == nil {
		c.overrides[orgID] = map[string]domain.PriceOverride{}
	}
	p := price
	c.overrides[orgID][itemID] = domain.PriceOverride{OrganizationID: orgID, ItemID: itemID, CustomPrice: &p}
}

func (c *fakeCatalog) setMarkup(orgID, itemID string, pct float64) {
	if c.overrides[orgID] == nil {
		c.overrides[orgID] = map[string]domain.PriceOverride{}
	}
	p := pct
	c.overrides[orgID][itemID] = domain.PriceOverride{OrganizationID: orgID, ItemID: itemID, MarkupPercentage: &p}
}

func (c *fakeCatalog) override(orgID, itemID string) (domain.PriceOverride, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	o, ok := c.overrides[orgID][itemID]
	return o, ok
}

func (c *fakeCatalog) effective(orgID, itemID string) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	item := c.items[itemID]
	if o, ok := c.overrides[orgID][itemID]; ok {
		return o.EffectivePrice(item.BasePrice)
	}
	return item.BasePrice
}

func (c *fakeCatalog) checkKeys(ids []string) error {
	if len(ids) > 100 {
		return fmt.Errorf("too many keys: %d", len(ids))
	}
	if len(ids) > c.maxKeys {
		c.maxKeys = len(ids)
	}
	return nil
}

func (c *fakeCatalog) ListItemIDs(_ context.Context, _ string) ([]string, error) {
	if c.failListIDs != nil {
		return nil, c.failListIDs
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.order...), nil
}

func (c *fakeCatalog) ItemsByIDs(_ context.Context, ids []string) ([]domain.CatalogItem, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkKeys(ids); err != nil {
		return nil, err
	}
	c.itemLookups = append(c.itemLookups, len(ids))
	var out []domain.CatalogItem
	for _, id := range ids {
		if item, ok := c.items[id]; ok {
			out = append(out, item)
		}
	}
	return out, nil
}

func (c *fakeCatalog) CostCodesByIDs(_ context.Context, ids []string) ([]domain.CostCode, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkKeys(ids); err != nil {
		return nil, err
	}
	var out []domain.CostCode
	for _, id := range ids {
		if code, ok := c.codes[id]; ok {
			out = append(out, code)
		}
	}
	return out, nil
}

func (c *fakeCatalog) ListOverrides(_ context.Context, orgID string, itemIDs []string) ([]domain.PriceOverride, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkKeys(itemIDs); err != nil {
		return nil, err
	}
	want := map[string]bool{}
	for _, id := range itemIDs {
		want[id] = true
	}
	var out []domain.PriceOverride
	for id, o := range c.overrides[orgID] {
		if len(itemIDs) == 0 || want[id] {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ItemID < out[j].ItemID })
	return out, nil
}

func (c *fakeCatalog) PricedItems(_ context.Context, orgID string, ids []string) ([]domain.PricedItem, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkKeys(ids); err != nil {
		return nil, err
	}
	var out []domain.PricedItem
	for _, id := range ids {
		item, ok := c.items[id]
		if !ok {
			continue
		}
		p := domain.PricedItem{Item: item, EffectivePrice: item.BasePrice}
		if o, ok := c.overrides[orgID][id]; ok {
			p.Override = &o
			p.EffectivePrice = o.EffectivePrice(item.BasePrice)
		}
		out = append(out, p)
	}
	return out, nil
}

func (c *fakeCatalog) UpsertOverrides(_ context.Context, orgID string, writes []domain.OverrideWrite) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, 0, len(writes))
	for _, w := range writes {
		ids = append(ids, w.ItemID)
		if c.rejectItems[w.ItemID] {
			c.upsertCalls = append(c.upsertCalls, ids)
			return errors.New("bulk write rejected")
		}
	}
	c.upsertCalls = append(c.upsertCalls, ids)
	for _, w := range writes {
		c.apply(orgID, w)
	}
	return nil
}

func (c *fakeCatalog) UpsertOverride(_ context.Context, orgID string, w domain.OverrideWrite) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rejectItems[w.ItemID] {
		return errors.New("write rejected")
	}
	c.apply(orgID, w)
	return nil
}

func (c *fakeCatalog) apply(orgID string, w domain.OverrideWrite) {
	if c.overrides[orgID] == nil {
		c.overrides[orgID] = map[string]domain.PriceOverride{}
	}
	o := domain.PriceOverride{OrganizationID: orgID, ItemID: w.ItemID, CustomPrice: w.CustomPrice, MarkupPercentage: w.MarkupPercentage}
	if w.CustomPrice != nil {
		o.MarkupPercentage = nil
	}
	if w.AppliedModeID != "" {
		id, m := w.AppliedModeID, w.AppliedMultiplier
		o.AppliedModeID = &id
		o.AppliedMultiplier = &m
	}
	c.overrides[orgID][w.ItemID] = o
}

func (c *fakeCatalog) DeleteOverrides(_ context.Context, orgID string, itemIDs []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deleteCalls = append(c.deleteCalls, append([]string(nil), itemIDs...))
	for _, id := range itemIDs {
		if c.rejectItems[id] {
			return errors.New("bulk delete rejected")
		}
	}
	for _, id := range itemIDs {
		delete(c.overrides[orgID], id)
	}
	return nil
}

func (c *fakeCatalog) DeleteOverride(_ context.Context, orgID, itemID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rejectItems[itemID] {
		return errors.New("delete rejected")
	}
	delete(c.overrides[orgID], itemID)
	return nil
}

// fakeJobs is an in-memory JobStore with the same status guards as the
// database store.
type fakeJobs struct {
	mu      sync.Mutex
	jobs    map[string]*domain.PricingJob
	now     func() time.Time
	failGet error
}

func newFakeJobs() *fakeJobs {
	return &fakeJobs{jobs: map[string]*domain.PricingJob{}, now: time.Now}
}

func (s *fakeJobs) Create(_ context.Context, job *domain.PricingJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = s.now()
	}
	cp := *job
	s.jobs[job.ID] = &cp
	return nil
}

func (s *fakeJobs) GetByID(_ context.Context, id string) (*domain.PricingJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failGet != nil {
		return nil, s.failGet
	}
	job, ok := s.jobs[id]
	if !ok {
		return nil, &domain.NotFoundError{Entity: "pricing job", ID: id}
	}
	cp := *job
	return &cp, nil
}

func (s *fakeJobs) get(id string) *domain.PricingJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *s.jobs[id]
	return &cp
}

func (s *fakeJobs) MarkProcessing(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok || job.Status.IsTerminal() {
		return false, nil
	}
	job.Status = domain.JobStatusProcessing
	if job.StartedAt == nil {
		now := s.now()
		job.StartedAt = &now
	}
	return true, nil
}

func (s *fakeJobs) UpdateProgress(_ context.Context, id string, processed int, summary *domain.ResultSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok || job.Status != domain.JobStatusProcessing {
		return nil
	}
	if job.ProcessedItems < processed {
		job.ProcessedItems = processed
	}
	if summary != nil {
		job.ResultSummary = datatypes.NewJSONType(summary.Clone())
	}
	return nil
}

func (s *fakeJobs) UpdateTotal(_ context.Context, id string, total int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job, ok := s.jobs[id]; ok && !job.Status.IsTerminal() {
		job.TotalItems = total
	}
	return nil
}

func (s *fakeJobs) MarkCompleted(_ context.Context, id string, summary *domain.ResultSummary) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok || job.Status != domain.JobStatusProcessing {
		return false, nil
	}
	now := s.now()
	job.Status = domain.JobStatusCompleted
	job.ResultSummary = datatypes.NewJSONType(summary)
	job.CompletedAt = &now
	return true, nil
}

func (s *fakeJobs) MarkFailed(_ context.Context, id, message string, summary *domain.ResultSummary) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok || job.Status.IsTerminal() {
		return false, nil
	}
	now := s.now()
	job.Status = domain.JobStatusFailed
	job.ErrorMessage = message
	job.CompletedAt = &now
	if summary != nil {
		job.ResultSummary = datatypes.NewJSONType(summary)
	}
	return true, nil
}

func (s *fakeJobs) ListActiveByOrg(_ context.Context, orgID string) ([]domain.PricingJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.PricingJob
	for _, job := range s.jobs {
		if job.OrganizationID == orgID && !job.Status.IsTerminal() {
			out = append(out, *job)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// fakeModes is an in-memory ModeStore.
type fakeModes struct {
	mu    sync.Mutex
	modes map[string]*domain.PricingMode
}

func newFakeModes() *fakeModes {
	return &fakeModes{modes: map[string]*domain.PricingMode{}}
}

func (s *fakeModes) Create(_ context.Context, mode *domain.PricingMode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *mode
	s.modes[mode.ID] = &cp
	return nil
}

func (s *fakeModes) GetByID(_ context.Context, id string) (*domain.PricingMode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.modes[id]
	if !ok {
		return nil, &domain.NotFoundError{Entity: "pricing mode", ID: id}
	}
	cp := *m
	return &cp, nil
}

func (s *fakeModes) ListForOrg(_ context.Context, orgID string) ([]domain.PricingMode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.PricingMode
	for _, m := range s.modes {
		if m.IsActive && m.VisibleTo(orgID) {
			out = append(out, *m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].IsPreset != out[j].IsPreset {
			return out[i].IsPreset
		}
		if out[i].UsageCount != out[j].UsageCount {
			return out[i].UsageCount > out[j].UsageCount
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (s *fakeModes) ListPresets(_ context.Context) ([]domain.PricingMode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.PricingMode
	for _, m := range s.modes {
		if m.IsPreset {
			out = append(out, *m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *fakeModes) PresetExists(_ context.Context, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.modes {
		if m.IsPreset && m.Name == name {
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeModes) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.modes, id)
	return nil
}

func (s *fakeModes) IncrementUsage(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.modes[id]; ok {
		m.UsageCount++
	}
	return nil
}

func (s *fakeModes) RecordEstimate(_ context.Context, id string, won bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.modes[id]; ok {
		m.TotalEstimates++
		if won {
			m.SuccessfulEstimates++
		}
	}
	return nil
}

func (s *fakeModes) usage(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.modes[id].UsageCount
}

// recordingActivity collects entries and can be told to fail.
type recordingActivity struct {
	mu      sync.Mutex
	entries []domain.ActivityEntry
	err     error
}

func (r *recordingActivity) Log(_ context.Context, entry domain.ActivityEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
	return r.err
}

func (r *recordingActivity) actions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, e := range r.entries {
		out = append(out, e.Action)
	}
	return out
}

// testEngine bundles the components over fakes.
type testEngine struct {
	catalog  *fakeCatalog
	jobs     *fakeJobs
	modes    *fakeModes
	activity *recordingActivity
	registry *ModeRegistry
	preview  *PreviewEngine
	orch     *Orchestrator
}

func newTestEngine() *testEngine {
	e := &testEngine{
		catalog:  newFakeCatalog(),
		jobs:     newFakeJobs(),
		modes:    newFakeModes(),
		activity: &recordingActivity{},
	}
	e.registry = NewModeRegistry(e.modes, e.activity)
	e.preview = NewPreviewEngine(e.catalog, nil)
	e.orch = NewOrchestrator(e.jobs, e.modes, e.catalog, e.preview, e.activity, nil)
	return e
}

func (e *testEngine) addMode(id, name string, kind domain.ModeKind, adj domain.Adjustments) *domain.PricingMode {
	m := &domain.PricingMode{ID: id, Name: name, Kind: kind, Adjustments: adj, IsPreset: true, IsActive: true}
	_ = e.modes.Create(context.Background(), m)
	return m
}
