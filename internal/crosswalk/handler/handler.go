package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"crosswalk/internal/crosswalk/service"
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
	r.Post("/mappings", h.createMapping)
	r.Patch("/mappings/{mappingID}", h.updateMapping)
	r.Get("/mappings/{mappingID}", h.getMapping)
	r.Get("/mappings/{mappingID}/gaps", h.analyzeGaps)
	r.Post("/mappings/{mappingID}/not-applicable", h.markNotApplicable)
	r.Get("/requirements/{requirementID}/mappings", h.listByRequirement)
	r.Post("/requirements/{requirementID}/recompute", h.recompute)
	r.Get("/controls/{controlID}/mappings", h.listByControl)
	r.Get("/crosswalk/summary", h.summary)
}

type linkPayload struct {
	ControlID          string   `json:"control_id"`
	ContributionWeight int      `json:"contribution_weight"`
	CoverageAspects    []string `json:"coverage_aspects"`
}

func parseLinks(payloads []linkPayload) ([]service.LinkInput, error) {
	links := make([]service.LinkInput, 0, len(payloads))
	for _, p := range payloads {
		controlID, err := id.ParseControlID(p.ControlID)
		if err != nil {
			return nil, err
		}
		links = append(links, service.LinkInput{
			ControlID:          controlID,
			ContributionWeight: p.ContributionWeight,
			CoverageAspects:    p.CoverageAspects,
		})
	}
	return links, nil
}

type createMappingRequest struct {
	RequirementID string        `json:"requirement_id"`
	Links         []linkPayload `json:"links"`
}

func (h *Handler) createMapping(w http.ResponseWriter, r *http.Request) {
	var req createMappingRequest
	if err := httputil.Decode(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	requirementID, err := id.ParseRequirementID(req.RequirementID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	links, err := parseLinks(req.Links)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	mapping, err := h.svc.CreateMapping(r.Context(), requirementID, links)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, mapping)
}

type updateMappingRequest struct {
	Links         *[]linkPayload `json:"links,omitempty"`
	NotApplicable *bool          `json:"not_applicable,omitempty"`
	RecordVersion int64          `json:"record_version"`
}

func (h *Handler) updateMapping(w http.ResponseWriter, r *http.Request) {
	mappingID, err := id.ParseMappingID(chi.URLParam(r, "mappingID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var req updateMappingRequest
	if err := httputil.Decode(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	input := service.UpdateInput{
		NotApplicable: req.NotApplicable,
		RecordVersion: req.RecordVersion,
	}
	if req.Links != nil {
		links, err := parseLinks(*req.Links)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		input.Links = &links
	}
	mapping, err := h.svc.UpdateMapping(r.Context(), mappingID, input)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, mapping)
}

func (h *Handler) getMapping(w http.ResponseWriter, r *http.Request) {
	mappingID, err := id.ParseMappingID(chi.URLParam(r, "mappingID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	mapping, err := h.svc.GetMapping(r.Context(), mappingID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, mapping)
}

func (h *Handler) analyzeGaps(w http.ResponseWriter, r *http.Request) {
	mappingID, err := id.ParseMappingID(chi.URLParam(r, "mappingID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	analysis, err := h.svc.AnalyzeGaps(r.Context(), mappingID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, analysis)
}

type notApplicableRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) markNotApplicable(w http.ResponseWriter, r *http.Request) {
	mappingID, err := id.ParseMappingID(chi.URLParam(r, "mappingID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var req notApplicableRequest
	if err := httputil.Decode(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	mapping, err := h.svc.MarkNotApplicable(r.Context(), mappingID, req.Reason)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, mapping)
}

func (h *Handler) listByRequirement(w http.ResponseWriter, r *http.Request) {
	requirementID, err := id.ParseRequirementID(chi.URLParam(r, "requirementID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	mappings, err := h.svc.ListByRequirement(r.Context(), requirementID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, mappings)
}

func (h *Handler) recompute(w http.ResponseWriter, r *http.Request) {
	requirementID, err := id.ParseRequirementID(chi.URLParam(r, "requirementID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.svc.RecomputeForRequirement(r.Context(), requirementID); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *Handler) listByControl(w http.ResponseWriter, r *http.Request) {
	controlID, err := id.ParseControlID(chi.URLParam(r, "controlID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	mappings, err := h.svc.ListByControl(r.Context(), controlID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, mappings)
}

func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.svc.Summary(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, summary)
}
