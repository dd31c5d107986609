package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crosswalk/internal/control/models"
	"crosswalk/internal/control/service"
	"crosswalk/internal/control/store"
	"crosswalk/pkg/requestcontext"
	"crosswalk/pkg/testutil"
)

func newTestRouter(t *testing.T) chi.Router {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := New(service.New(store.NewInMemoryStore()), logger)

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := requestcontext.WithTime(req.Context(), testutil.Clock)
			ctx = requestcontext.WithActor(ctx, "auditor@example.org")
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})
	h.Register(r)
	return r
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

func createControl(t *testing.T, r chi.Router) models.Control {
	t.Helper()
	rec := do(t, r, http.MethodPost, "/controls", map[string]any{
		"name":                 "MFA enforcement",
		"description":          "enforce MFA on privileged accounts",
		"owner":                "security",
		"effectiveness_rating": 4,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	return decode[models.Control](t, rec)
}

func TestControlLifecycleEndpoints(t *testing.T) {
	r := newTestRouter(t)
	control := createControl(t, r)
	assert.Equal(t, models.ControlStatusNotStarted, control.Status)
	base := "/controls/" + control.ID.String()

	rec := do(t, r, http.MethodPut, base, map[string]any{
		"name":                 "MFA enforcement (IdP)",
		"owner":                "security",
		"effectiveness_rating": 5,
		"status":               "in_progress",
		"record_version":       control.RecordVersion,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	updated := decode[models.Control](t, rec)
	assert.Equal(t, models.ControlStatusInProgress, updated.Status)
	assert.Equal(t, int64(2), updated.RecordVersion)

	// Stale record version loses with a conflict.
	rec = do(t, r, http.MethodPut, base, map[string]any{
		"name":                 "MFA enforcement",
		"effectiveness_rating": 5,
		"record_version":       control.RecordVersion,
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "concurrent_modification", decode[map[string]string](t, rec)["error"])

	rec = do(t, r, http.MethodPost, base+"/deprecate", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	deprecated := decode[models.Control](t, rec)
	assert.True(t, deprecated.IsDeprecated())

	rec = do(t, r, http.MethodPost, base+"/deprecate", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestCreateControlValidation(t *testing.T) {
	r := newTestRouter(t)

	rec := do(t, r, http.MethodPost, "/controls", map[string]any{
		"name": "Backup encryption", "effectiveness_rating": 9,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_failed", decode[map[string]string](t, rec)["error"])
}

func TestEvidenceEndpoints(t *testing.T) {
	r := newTestRouter(t)
	control := createControl(t, r)
	base := "/controls/" + control.ID.String()

	rec := do(t, r, http.MethodPost, base+"/evidence", map[string]any{
		"description":  "IdP configuration export",
		"location":     "s3://evidence/idp.json",
		"collected_at": "2026-03-01T09:00:00Z",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	withEvidence := decode[models.Control](t, rec)
	require.Len(t, withEvidence.Evidence, 1)
	evidence := withEvidence.Evidence[0]
	assert.Equal(t, models.EvidenceStatusPending, evidence.Status)

	rec = do(t, r, http.MethodPost, base+"/evidence/"+evidence.ID.String()+"/verify", map[string]any{"approve": true})
	require.Equal(t, http.StatusOK, rec.Code)
	verified := decode[models.Control](t, rec)
	assert.Equal(t, models.EvidenceStatusVerified, verified.Evidence[0].Status)
	assert.Equal(t, "auditor@example.org", verified.Evidence[0].VerifiedBy)

	rec = do(t, r, http.MethodPost, base+"/evidence/"+evidence.ID.String()+"/verify", map[string]any{"approve": false})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, r, http.MethodGet, base, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[models.Control](t, rec).Evidence, 1)
}

func TestListControls(t *testing.T) {
	r := newTestRouter(t)
	createControl(t, r)

	rec := do(t, r, http.MethodGet, "/controls", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]models.Control](t, rec), 1)
}
