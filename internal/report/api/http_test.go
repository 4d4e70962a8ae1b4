package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/gram-swasthya/platform/internal/auth"
	"github.com/gram-swasthya/platform/internal/authz"
	"github.com/gram-swasthya/platform/internal/hierarchy"
	"github.com/gram-swasthya/platform/internal/notification"
	"github.com/gram-swasthya/platform/internal/report/domain"
	"github.com/gram-swasthya/platform/internal/scope"
	apperrors "github.com/gram-swasthya/platform/internal/shared/errors"
	"github.com/gram-swasthya/platform/internal/shared/types"
)

var (
	districtA = types.NewID()
	districtB = types.NewID()
	blockA1   = types.NewID()
	blockB1   = types.NewID()
	villageA1 = types.NewID()
	villageB1 = types.NewID()
)

type stubLoader struct {
	store *hierarchy.Store
}

func (s stubLoader) LoadSnapshot(context.Context) (*hierarchy.Store, error) {
	return s.store, nil
}

// memoryRepo is an in-memory domain.Repository with the same optimistic
// status check the Postgres implementation performs.
type memoryRepo struct {
	mu      sync.Mutex
	reports map[types.ID]*domain.HealthReport
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{reports: make(map[types.ID]*domain.HealthReport)}
}

func cloneReport(r *domain.HealthReport) *domain.HealthReport {
	c := *r
	c.ReviewHistory = append([]domain.ReviewEntry(nil), r.ReviewHistory...)
	if r.DiseaseOutbreakDetails != nil {
		d := *r.DiseaseOutbreakDetails
		c.DiseaseOutbreakDetails = &d
	}
	if r.WaterQualityDetails != nil {
		d := *r.WaterQualityDetails
		c.WaterQualityDetails = &d
	}
	if r.InfrastructureDetails != nil {
		d := *r.InfrastructureDetails
		c.InfrastructureDetails = &d
	}
	return &c
}

func (m *memoryRepo) Save(ctx context.Context, r *domain.HealthReport) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reports[r.ID] = cloneReport(r)
	return nil
}

func (m *memoryRepo) FindByID(ctx context.Context, id types.ID) (*domain.HealthReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reports[id]
	if !ok {
		return nil, apperrors.NotFound("report", id.String())
	}
	return cloneReport(r), nil
}

func (m *memoryRepo) FindByNumber(ctx context.Context, reportNumber string) (*domain.HealthReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.reports {
		if r.ReportNumber == reportNumber {
			return cloneReport(r), nil
		}
	}
	return nil, apperrors.NotFound("report", reportNumber)
}

func (m *memoryRepo) Update(ctx context.Context, r *domain.HealthReport) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.reports[r.ID]; !ok {
		return apperrors.NotFound("report", r.ID.String())
	}
	m.reports[r.ID] = cloneReport(r)
	return nil
}

func (m *memoryRepo) CommitTransition(ctx context.Context, r *domain.HealthReport, expected domain.Status, entry *domain.ReviewEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.reports[r.ID]
	if !ok {
		return apperrors.NotFound("report", r.ID.String())
	}
	if stored.Status != expected {
		return apperrors.StaleTransition(string(expected))
	}
	m.reports[r.ID] = cloneReport(r)
	return nil
}

func (m *memoryRepo) Delete(ctx context.Context, id types.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.reports[id]; !ok {
		return apperrors.NotFound("report", id.String())
	}
	delete(m.reports, id)
	return nil
}

func (m *memoryRepo) List(ctx context.Context, f domain.ListFilter) ([]domain.HealthReport, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var matched []domain.HealthReport
	for _, r := range m.reports {
		if !scopeMatches(f.Scope, r) {
			continue
		}
		if f.Type != nil && r.Type != *f.Type {
			continue
		}
		if f.Status != nil && r.Status != *f.Status {
			continue
		}
		if f.Priority != nil && r.Priority != *f.Priority {
			continue
		}
		if f.Village != nil && r.VillageID != *f.Village {
			continue
		}
		matched = append(matched, *cloneReport(r))
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].ReportNumber < matched[j].ReportNumber
	})

	total := len(matched)
	if f.Offset > 0 {
		if f.Offset >= len(matched) {
			matched = nil
		} else {
			matched = matched[f.Offset:]
		}
	}
	if f.Limit > 0 && len(matched) > f.Limit {
		matched = matched[:f.Limit]
	}
	return matched, total, nil
}

func scopeMatches(s domain.ScopeFilter, r *domain.HealthReport) bool {
	if s.Universal {
		return true
	}
	if !r.VillageID.IsZero() {
		for _, v := range s.Villages {
			if v == r.VillageID {
				return true
			}
		}
	}
	return !s.OwnerID.IsZero() && r.ReporterID == s.OwnerID
}

func newTestHandler(t *testing.T) (*Handler, *memoryRepo) {
	t.Helper()

	store, err := hierarchy.NewStore(
		[]hierarchy.District{{ID: districtA}, {ID: districtB}},
		[]hierarchy.Block{
			{ID: blockA1, DistrictID: districtA},
			{ID: blockB1, DistrictID: districtB},
		},
		[]hierarchy.Village{
			{ID: villageA1, BlockID: blockA1},
			{ID: villageB1, BlockID: blockB1},
		},
	)
	if err != nil {
		t.Fatal(err)
	}

	provider := hierarchy.NewProvider(stubLoader{store}, time.Minute)
	resolver := scope.NewResolver(provider.Trees(), nil)
	evaluator := authz.NewEvaluator(auth.MustLoadPolicy(), resolver)

	validator := domain.NewValidator()
	engine := domain.NewEngine(validator)
	repo := newMemoryRepo()

	return NewHandler(repo, engine, validator, evaluator, provider, nil, notification.Noop{}), repo
}

func seedReport(t *testing.T, repo *memoryRepo, reporter types.ID, village types.ID, status domain.Status) *domain.HealthReport {
	t.Helper()

	r, err := domain.NewHealthReport(domain.ReportTypeWaterQualityConcern, reporter)
	if err != nil {
		t.Fatal(err)
	}
	r.Title = "Contaminated well water"
	r.Description = "Several households reported discolored water from the main village well."
	r.WaterQualityDetails = &domain.WaterQualityDetails{
		ContaminationType:  "biological",
		WaterSource:        "village well",
		AffectedHouseholds: 12,
	}
	switch village {
	case villageA1:
		r.VillageID, r.BlockID, r.DistrictID = villageA1, blockA1, districtA
	case villageB1:
		r.VillageID, r.BlockID, r.DistrictID = villageB1, blockB1, districtB
	}
	r.Status = status
	r.GetDomainEvents()
	repo.reports[r.ID] = r
	return r
}

func serve(h *Handler, actor *auth.Actor, method, target string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			panic(err)
		}
	}
	req := httptest.NewRequest(method, target, &buf)
	req = req.WithContext(auth.WithActor(req.Context(), actor))
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Code string `json:"code"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding error body: %v", err)
	}
	return body.Code
}

func ashaActor() *auth.Actor {
	return &auth.Actor{ID: types.NewID(), Role: auth.RoleASHAWorker, VillageIDs: []types.ID{villageA1}}
}

func TestGetReportHidesOutOfScope(t *testing.T) {
	h, repo := newTestHandler(t)
	asha := ashaActor()

	inScope := seedReport(t, repo, types.NewID(), villageA1, domain.StatusSubmitted)
	outOfScope := seedReport(t, repo, types.NewID(), villageB1, domain.StatusSubmitted)

	rec := serve(h, asha, "GET", "/"+inScope.ID.String(), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("in-scope report: status = %d, want 200", rec.Code)
	}

	// Out of scope must be indistinguishable from nonexistent.
	rec = serve(h, asha, "GET", "/"+outOfScope.ID.String(), nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("out-of-scope report: status = %d, want 404", rec.Code)
	}
	if code := decodeError(t, rec); code != "NOT_FOUND" {
		t.Errorf("out-of-scope code = %s, want NOT_FOUND", code)
	}

	rec = serve(h, asha, "GET", "/"+types.NewID().String(), nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown report: status = %d, want 404", rec.Code)
	}
}

func TestReviewDeniedInScopeGets403(t *testing.T) {
	h, repo := newTestHandler(t)
	asha := ashaActor()

	report := seedReport(t, repo, types.NewID(), villageA1, domain.StatusSubmitted)

	// The report is visible to the actor, so the capability denial must
	// surface as 403 rather than hiding the resource.
	rec := serve(h, asha, "POST", "/"+report.ID.String()+"/review", map[string]any{
		"status":   "under_review",
		"comments": "taking a look",
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("review without capability: status = %d, want 403", rec.Code)
	}
	if code := decodeError(t, rec); code != "FORBIDDEN" {
		t.Errorf("code = %s, want FORBIDDEN", code)
	}
}

func TestListScopedBeforePagination(t *testing.T) {
	h, repo := newTestHandler(t)
	asha := ashaActor()

	for i := 0; i < 3; i++ {
		seedReport(t, repo, types.NewID(), villageA1, domain.StatusSubmitted)
	}
	for i := 0; i < 2; i++ {
		seedReport(t, repo, types.NewID(), villageB1, domain.StatusSubmitted)
	}

	var body struct {
		Data  []domain.HealthReport `json:"data"`
		Total int                   `json:"total"`
	}

	rec := serve(h, asha, "GET", "/", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list: status = %d", rec.Code)
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Total != 3 || len(body.Data) != 3 {
		t.Fatalf("list = %d reports, total %d; want 3 and 3", len(body.Data), body.Total)
	}
	for _, r := range body.Data {
		if r.VillageID == villageB1 {
			t.Error("out-of-scope report leaked into listing")
		}
	}

	// The total counts the whole scoped set, not the page.
	rec = serve(h, asha, "GET", "/?limit=2", nil)
	body.Data, body.Total = nil, 0
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Total != 3 || len(body.Data) != 2 {
		t.Fatalf("paged list = %d reports, total %d; want 2 and 3", len(body.Data), body.Total)
	}
}

func TestCreateRejectsUnsupportedStatus(t *testing.T) {
	h, _ := newTestHandler(t)
	asha := ashaActor()

	rec := serve(h, asha, "POST", "/", map[string]any{
		"report_type": "water_quality_concern",
		"status":      "under_review",
		"village_id":  villageA1.String(),
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("create with review status: status = %d, want 400", rec.Code)
	}
	if code := decodeError(t, rec); code != "BAD_REQUEST" {
		t.Errorf("code = %s, want BAD_REQUEST", code)
	}
}

func TestCreateAnchorlessDraftReachableByOwner(t *testing.T) {
	h, _ := newTestHandler(t)
	asha := ashaActor()

	// A draft may be saved before the field worker knows the exact
	// location; it carries no hierarchy anchor yet.
	rec := serve(h, asha, "POST", "/", map[string]any{
		"report_type": "water_quality_concern",
		"title":       "Well water discoloration",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create unlocated draft: status = %d, want 201: %s", rec.Code, rec.Body.String())
	}

	var created domain.HealthReport
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatal(err)
	}

	rec = serve(h, asha, "GET", "/"+created.ID.String(), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("owner reading own unlocated draft: status = %d, want 200", rec.Code)
	}

	other := ashaActor()
	rec = serve(h, other, "GET", "/"+created.ID.String(), nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unlocated draft visible to non-owner: status = %d, want 404", rec.Code)
	}
}

func TestUpdateStrictnessFollowsStatus(t *testing.T) {
	h, repo := newTestHandler(t)
	asha := ashaActor()

	// Draft saves stay lenient: an incomplete draft accepts partial edits.
	draft, err := domain.NewHealthReport(domain.ReportTypeWaterQualityConcern, asha.ID)
	if err != nil {
		t.Fatal(err)
	}
	draft.GetDomainEvents()
	repo.reports[draft.ID] = draft

	rec := serve(h, asha, "PUT", "/"+draft.ID.String(), map[string]any{
		"title": "Well water discoloration",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("partial draft edit: status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	// A report sent back for revision was complete at submission and must
	// not be saved back into an incomplete state.
	revision := seedReport(t, repo, asha.ID, villageA1, domain.StatusNeedsRevision)
	rec = serve(h, asha, "PUT", "/"+revision.ID.String(), map[string]any{
		"description": "too short",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("incomplete revision edit: status = %d, want 400", rec.Code)
	}
	if code := decodeError(t, rec); code != "VALIDATION_ERROR" {
		t.Errorf("code = %s, want VALIDATION_ERROR", code)
	}

	rec = serve(h, asha, "PUT", "/"+revision.ID.String(), map[string]any{
		"description": "Follow-up testing confirmed contamination in two more households nearby.",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("complete revision edit: status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
}
