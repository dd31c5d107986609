package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"crosswalk/internal/drift/service"
	id "crosswalk/pkg/domain"
	"crosswalk/pkg/platform/httputil"
)

type Handler struct {
	svc    *service.Service
	logger *slog.Logger
}

func New(svc *service.Service, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/frameworks/{frameworkID}/drift-scans", h.scan)
	r.Get("/drifts", h.openDrifts)
	r.Get("/drifts/{driftID}", h.getDrift)
	r.Post("/drifts/{driftID}/acknowledge", h.acknowledge)
	r.Post("/drifts/{driftID}/plan", h.plan)
	r.Post("/drifts/{driftID}/start", h.start)
	r.Post("/drifts/{driftID}/resolve", h.resolve)
	r.Post("/drifts/{driftID}/accept-risk", h.acceptRisk)
	r.Post("/drifts/{driftID}/defer", h.deferDrift)
}

type scanRequest struct {
	OldVersionID string `json:"old_version_id"`
	NewVersionID string `json:"new_version_id"`
}

func (h *Handler) scan(w http.ResponseWriter, r *http.Request) {
	frameworkID, err := id.ParseFrameworkID(chi.URLParam(r, "frameworkID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var req scanRequest
	if err := httputil.Decode(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	oldVersionID, err := id.ParseVersionID(req.OldVersionID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	newVersionID, err := id.ParseVersionID(req.NewVersionID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	drifts, err := h.svc.ScanForDrift(r.Context(), frameworkID, oldVersionID, newVersionID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, drifts)
}

func (h *Handler) openDrifts(w http.ResponseWriter, r *http.Request) {
	drifts, err := h.svc.OpenDrifts(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, drifts)
}

func (h *Handler) getDrift(w http.ResponseWriter, r *http.Request) {
	driftID, err := id.ParseDriftID(chi.URLParam(r, "driftID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	drift, err := h.svc.GetDrift(r.Context(), driftID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, drift)
}

func (h *Handler) acknowledge(w http.ResponseWriter, r *http.Request) {
	driftID, err := id.ParseDriftID(chi.URLParam(r, "driftID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	drift, err := h.svc.Acknowledge(r.Context(), driftID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, drift)
}

type actionPayload struct {
	Description string     `json:"description"`
	Owner       string     `json:"owner,omitempty"`
	DueDate     *time.Time `json:"due_date,omitempty"`
}

type planRequest struct {
	Actions []actionPayload `json:"actions"`
}

func (h *Handler) plan(w http.ResponseWriter, r *http.Request) {
	driftID, err := id.ParseDriftID(chi.URLParam(r, "driftID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var req planRequest
	if err := httputil.Decode(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	actions := make([]service.ActionInput, 0, len(req.Actions))
	for _, a := range req.Actions {
		actions = append(actions, service.ActionInput{
			Description: a.Description,
			Owner:       a.Owner,
			DueDate:     a.DueDate,
		})
	}
	drift, err := h.svc.PlanRemediation(r.Context(), driftID, actions)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, drift)
}

func (h *Handler) start(w http.ResponseWriter, r *http.Request) {
	driftID, err := id.ParseDriftID(chi.URLParam(r, "driftID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	drift, err := h.svc.StartRemediation(r.Context(), driftID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, drift)
}

type noteRequest struct {
	Note string `json:"note"`
}

func (h *Handler) resolve(w http.ResponseWriter, r *http.Request) {
	driftID, err := id.ParseDriftID(chi.URLParam(r, "driftID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var req noteRequest
	if err := httputil.Decode(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	drift, err := h.svc.Resolve(r.Context(), driftID, req.Note)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, drift)
}

type justificationRequest struct {
	Justification string `json:"justification"`
}

func (h *Handler) acceptRisk(w http.ResponseWriter, r *http.Request) {
	driftID, err := id.ParseDriftID(chi.URLParam(r, "driftID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var req justificationRequest
	if err := httputil.Decode(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	drift, err := h.svc.AcceptRisk(r.Context(), driftID, req.Justification)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, drift)
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) deferDrift(w http.ResponseWriter, r *http.Request) {
	driftID, err := id.ParseDriftID(chi.URLParam(r, "driftID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var req reasonRequest
	if err := httputil.Decode(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	drift, err := h.svc.Defer(r.Context(), driftID, req.Reason)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, drift)
}
