package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"crosswalk/internal/framework/service"
	id "crosswalk/pkg/domain"
	"crosswalk/pkg/platform/httputil"
)

// Handler wires HTTP endpoints to the framework service. It stays thin:
// parse, delegate, translate.
type Handler struct {
	svc    *service.Service
	logger *slog.Logger
}

func New(svc *service.Service, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/frameworks", h.createFramework)
	r.Get("/frameworks", h.listFrameworks)
	r.Get("/frameworks/{frameworkID}", h.getFramework)
	r.Post("/frameworks/{frameworkID}/versions", h.publishVersion)
	r.Get("/frameworks/{frameworkID}/versions", h.listVersions)
	r.Get("/frameworks/{frameworkID}/versions/active", h.getActiveVersion)
	r.Get("/frameworks/{frameworkID}/versions/{versionID}/requirements", h.listRequirements)
	r.Get("/frameworks/{frameworkID}/versions/{versionID}/requirements/{requirementID}", h.getRequirement)
}

type createFrameworkRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (h *Handler) createFramework(w http.ResponseWriter, r *http.Request) {
	var req createFrameworkRequest
	if err := httputil.Decode(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	framework, err := h.svc.CreateFramework(r.Context(), req.Name, req.Description)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, framework)
}

func (h *Handler) listFrameworks(w http.ResponseWriter, r *http.Request) {
	frameworks, err := h.svc.ListFrameworks(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, frameworks)
}

func (h *Handler) getFramework(w http.ResponseWriter, r *http.Request) {
	frameworkID, err := id.ParseFrameworkID(chi.URLParam(r, "frameworkID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	framework, err := h.svc.GetFramework(r.Context(), frameworkID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, framework)
}

type requirementPayload struct {
	SectionCode            string   `json:"section_code"`
	Text                   string   `json:"text"`
	Category               string   `json:"category"`
	RiskLevel              string   `json:"risk_level"`
	Keywords               []string `json:"keywords"`
	ImplementationGuidance []string `json:"implementation_guidance"`
	EvidenceExamples       []string `json:"evidence_examples"`
	Supersedes             string   `json:"supersedes,omitempty"`
	RelatedSectionCodes    []string `json:"related_section_codes,omitempty"`
}

type publishVersionRequest struct {
	Label         string               `json:"label"`
	EffectiveDate time.Time            `json:"effective_date"`
	SunsetDate    *time.Time           `json:"sunset_date,omitempty"`
	Requirements  []requirementPayload `json:"requirements"`
}

func (h *Handler) publishVersion(w http.ResponseWriter, r *http.Request) {
	frameworkID, err := id.ParseFrameworkID(chi.URLParam(r, "frameworkID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var req publishVersionRequest
	if err := httputil.Decode(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}

	input := service.PublishInput{
		FrameworkID:   frameworkID,
		Label:         req.Label,
		EffectiveDate: req.EffectiveDate,
		SunsetDate:    req.SunsetDate,
	}
	for _, p := range req.Requirements {
		riskLevel, err := id.ParseRiskLevel(p.RiskLevel)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		in := service.RequirementInput{
			SectionCode:            p.SectionCode,
			Text:                   p.Text,
			Category:               p.Category,
			RiskLevel:              riskLevel,
			Keywords:               p.Keywords,
			ImplementationGuidance: p.ImplementationGuidance,
			EvidenceExamples:       p.EvidenceExamples,
			RelatedSectionCodes:    p.RelatedSectionCodes,
		}
		if p.Supersedes != "" {
			sup, err := id.ParseRequirementID(p.Supersedes)
			if err != nil {
				httputil.WriteError(w, err)
				return
			}
			in.Supersedes = &sup
		}
		input.Requirements = append(input.Requirements, in)
	}

	version, err := h.svc.PublishVersion(r.Context(), input)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, version)
}

func (h *Handler) listVersions(w http.ResponseWriter, r *http.Request) {
	frameworkID, err := id.ParseFrameworkID(chi.URLParam(r, "frameworkID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	versions, err := h.svc.ListVersions(r.Context(), frameworkID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, versions)
}

func (h *Handler) getActiveVersion(w http.ResponseWriter, r *http.Request) {
	frameworkID, err := id.ParseFrameworkID(chi.URLParam(r, "frameworkID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	version, err := h.svc.GetActiveVersion(r.Context(), frameworkID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, version)
}

func (h *Handler) listRequirements(w http.ResponseWriter, r *http.Request) {
	versionID, err := id.ParseVersionID(chi.URLParam(r, "versionID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	requirements, err := h.svc.ListRequirements(r.Context(), versionID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, requirements)
}

func (h *Handler) getRequirement(w http.ResponseWriter, r *http.Request) {
	frameworkID, err := id.ParseFrameworkID(chi.URLParam(r, "frameworkID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	versionID, err := id.ParseVersionID(chi.URLParam(r, "versionID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	requirementID, err := id.ParseRequirementID(chi.URLParam(r, "requirementID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	requirement, err := h.svc.GetRequirement(r.Context(), frameworkID, requirementID, versionID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, requirement)
}
