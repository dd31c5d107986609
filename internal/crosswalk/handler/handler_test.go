package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ctrlmodels "crosswalk/internal/control/models"
	ctrlstore "crosswalk/internal/control/store"
	"crosswalk/internal/crosswalk/models"
	"crosswalk/internal/crosswalk/service"
	"crosswalk/internal/crosswalk/store"
	fwservice "crosswalk/internal/framework/service"
	fwstore "crosswalk/internal/framework/store"
	id "crosswalk/pkg/domain"
	"crosswalk/pkg/requestcontext"
	"crosswalk/pkg/testutil"
)

type env struct {
	router      chi.Router
	requirement id.RequirementID
	control     *ctrlmodels.Control
}

func newEnv(t *testing.T) *env {
	t.Helper()
	ctx := testutil.Context("ops@example.org")

	frameworks := fwstore.NewInMemoryStore()
	fwsvc := fwservice.New(frameworks)
	framework, err := fwsvc.CreateFramework(ctx, "HIPAA Security Rule", "")
	require.NoError(t, err)
	version, err := fwsvc.PublishVersion(ctx, fwservice.PublishInput{
		FrameworkID:   framework.ID,
		Label:         "2024-02",
		EffectiveDate: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
		Requirements: []fwservice.RequirementInput{{
			SectionCode: "164.312(d)",
			Text:        "Implement procedures to verify identity",
			Category:    "access control",
			RiskLevel:   id.RiskLevelHigh,
			ImplementationGuidance: []string{
				"enforce mfa for remote access",
				"review access logs quarterly",
			},
		}},
	})
	require.NoError(t, err)
	requirements, err := fwsvc.ListRequirements(ctx, version.ID)
	require.NoError(t, err)

	controls := ctrlstore.NewInMemoryStore()
	control, err := ctrlmodels.NewControl(id.NewControlID(), "MFA enforcement", "", "security", 4, testutil.Clock)
	require.NoError(t, err)
	require.NoError(t, controls.Create(ctx, control))

	svc := service.New(store.NewInMemoryStore(), frameworks, controls)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			rctx := requestcontext.WithTime(req.Context(), testutil.Clock)
			rctx = requestcontext.WithActor(rctx, "ops@example.org")
			next.ServeHTTP(w, req.WithContext(rctx))
		})
	})
	New(svc, logger).Register(r)

	return &env{router: r, requirement: requirements[0].ID, control: control}
}

func do(t *testing.T, r chi.Router, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func (e *env) createMapping(t *testing.T) models.Mapping {
	t.Helper()
	rec := do(t, e.router, http.MethodPost, "/mappings", map[string]any{
		"requirement_id": e.requirement.String(),
		"links": []map[string]any{{
			"control_id":          e.control.ID.String(),
			"contribution_weight": 100,
			"coverage_aspects":    []string{"mfa"},
		}},
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	return decode[models.Mapping](t, rec)
}

func TestCreateAndReadMappingEndpoints(t *testing.T) {
	e := newEnv(t)
	mapping := e.createMapping(t)
	assert.Equal(t, 50, mapping.CoverageScore)
	assert.Equal(t, models.StatusPartial, mapping.Status)

	rec := do(t, e.router, http.MethodGet, "/mappings/"+mapping.ID.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, e.router, http.MethodGet, "/requirements/"+e.requirement.String()+"/mappings", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]models.Mapping](t, rec), 1)

	rec = do(t, e.router, http.MethodGet, "/controls/"+e.control.ID.String()+"/mappings", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]models.Mapping](t, rec), 1)
}

func TestCreateMappingRejectsUnknownControl(t *testing.T) {
	e := newEnv(t)

	rec := do(t, e.router, http.MethodPost, "/mappings", map[string]any{
		"requirement_id": e.requirement.String(),
		"links": []map[string]any{{
			"control_id":          id.NewControlID().String(),
			"contribution_weight": 50,
		}},
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decode[map[string]string](t, rec)["error"])
}

func TestUpdateMappingEndpoint(t *testing.T) {
	e := newEnv(t)
	mapping := e.createMapping(t)

	rec := do(t, e.router, http.MethodPatch, "/mappings/"+mapping.ID.String(), map[string]any{
		"links": []map[string]any{{
			"control_id":          e.control.ID.String(),
			"contribution_weight": 100,
			"coverage_aspects":    []string{"mfa", "logs"},
		}},
		"record_version": mapping.RecordVersion,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	updated := decode[models.Mapping](t, rec)
	assert.Equal(t, 100, updated.CoverageScore)

	// Replaying the same record version conflicts.
	rec = do(t, e.router, http.MethodPatch, "/mappings/"+mapping.ID.String(), map[string]any{
		"not_applicable": true,
		"record_version": mapping.RecordVersion,
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestNotApplicableEndpoint(t *testing.T) {
	e := newEnv(t)
	mapping := e.createMapping(t)
	path := "/mappings/" + mapping.ID.String() + "/not-applicable"

	rec := do(t, e.router, http.MethodPost, path, map[string]any{"reason": ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, e.router, http.MethodPost, path, map[string]any{"reason": "no ePHI on this system"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.StatusNotApplicable, decode[models.Mapping](t, rec).Status)

	rec = do(t, e.router, http.MethodPost, path, map[string]any{"reason": "again"})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestGapAnalysisEndpoint(t *testing.T) {
	e := newEnv(t)
	mapping := e.createMapping(t)

	rec := do(t, e.router, http.MethodGet, "/mappings/"+mapping.ID.String()+"/gaps", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	analysis := decode[models.GapAnalysis](t, rec)
	assert.Equal(t, []string{"review access logs quarterly"}, analysis.MissingAspects)
}

func TestRecomputeEndpoint(t *testing.T) {
	e := newEnv(t)
	e.createMapping(t)

	rec := do(t, e.router, http.MethodPost, "/requirements/"+e.requirement.String()+"/recompute", nil)
	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestSummaryEndpoint(t *testing.T) {
	e := newEnv(t)
	e.createMapping(t)

	rec := do(t, e.router, http.MethodGet, "/crosswalk/summary", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	summary := decode[models.CrosswalkSummary](t, rec)
	assert.Equal(t, 1, summary.TotalMappings)
	assert.Equal(t, 50.0, summary.ScoreByFramework["HIPAA Security Rule"])
}
