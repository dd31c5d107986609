package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"crosswalk/internal/control/models"
	"crosswalk/internal/control/service"
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
	r.Post("/controls", h.createControl)
	r.Get("/controls", h.listControls)
	r.Get("/controls/{controlID}", h.getControl)
	r.Put("/controls/{controlID}", h.updateControl)
	r.Post("/controls/{controlID}/deprecate", h.deprecateControl)
	r.Post("/controls/{controlID}/evidence", h.attachEvidence)
	r.Post("/controls/{controlID}/evidence/{evidenceID}/verify", h.verifyEvidence)
}

type upsertControlRequest struct {
	Name                string `json:"name"`
	Description         string `json:"description"`
	Owner               string `json:"owner"`
	Status              string `json:"status,omitempty"`
	EffectivenessRating int    `json:"effectiveness_rating"`
	RecordVersion       int64  `json:"record_version,omitempty"`
}

func (h *Handler) createControl(w http.ResponseWriter, r *http.Request) {
	var req upsertControlRequest
	if err := httputil.Decode(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	control, err := h.svc.UpsertControl(r.Context(), service.UpsertInput{
		Name:                req.Name,
		Description:         req.Description,
		Owner:               req.Owner,
		EffectivenessRating: req.EffectivenessRating,
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, control)
}

func (h *Handler) updateControl(w http.ResponseWriter, r *http.Request) {
	controlID, err := id.ParseControlID(chi.URLParam(r, "controlID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var req upsertControlRequest
	if err := httputil.Decode(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	input := service.UpsertInput{
		ID:                  &controlID,
		Name:                req.Name,
		Description:         req.Description,
		Owner:               req.Owner,
		EffectivenessRating: req.EffectivenessRating,
		RecordVersion:       req.RecordVersion,
	}
	if req.Status != "" {
		status, err := models.ParseControlStatus(req.Status)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		input.Status = &status
	}
	control, err := h.svc.UpsertControl(r.Context(), input)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, control)
}

func (h *Handler) getControl(w http.ResponseWriter, r *http.Request) {
	controlID, err := id.ParseControlID(chi.URLParam(r, "controlID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	control, err := h.svc.GetControl(r.Context(), controlID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, control)
}

func (h *Handler) listControls(w http.ResponseWriter, r *http.Request) {
	controls, err := h.svc.ListControls(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, controls)
}

func (h *Handler) deprecateControl(w http.ResponseWriter, r *http.Request) {
	controlID, err := id.ParseControlID(chi.URLParam(r, "controlID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	control, err := h.svc.DeprecateControl(r.Context(), controlID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, control)
}

type attachEvidenceRequest struct {
	Description string     `json:"description"`
	Location    string     `json:"location"`
	CollectedAt time.Time  `json:"collected_at"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

func (h *Handler) attachEvidence(w http.ResponseWriter, r *http.Request) {
	controlID, err := id.ParseControlID(chi.URLParam(r, "controlID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var req attachEvidenceRequest
	if err := httputil.Decode(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	control, err := h.svc.AttachEvidence(r.Context(), controlID, service.EvidenceInput{
		Description: req.Description,
		Location:    req.Location,
		CollectedAt: req.CollectedAt,
		ExpiresAt:   req.ExpiresAt,
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, control)
}

type verifyEvidenceRequest struct {
	Approve bool `json:"approve"`
}

func (h *Handler) verifyEvidence(w http.ResponseWriter, r *http.Request) {
	controlID, err := id.ParseControlID(chi.URLParam(r, "controlID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	evidenceID, err := id.ParseEvidenceID(chi.URLParam(r, "evidenceID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var req verifyEvidenceRequest
	if err := httputil.Decode(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	control, err := h.svc.VerifyEvidence(r.Context(), controlID, evidenceID, req.Approve)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, control)
}
