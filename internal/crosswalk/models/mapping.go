package models

import (
	"time"

	id "crosswalk/pkg/domain"
	dErrors "crosswalk/pkg/domain-errors"
	"crosswalk/pkg/platform/aspect"
)

// ComplianceStatus is the computed stance of one mapping.
type ComplianceStatus string

const (
	StatusCompliant     ComplianceStatus = "compliant"
	StatusPartial       ComplianceStatus = "partial"
	StatusNonCompliant  ComplianceStatus = "non_compliant"
	StatusNotApplicable ComplianceStatus = "not_applicable"
)

func (s ComplianceStatus) IsValid() bool {
	switch s {
	case StatusCompliant, StatusPartial, StatusNonCompliant, StatusNotApplicable:
		return true
	}
	return false
}

func (s ComplianceStatus) String() string { return string(s) }

// ControlLink is one edge from a mapping to a control: how much of the
// requirement that control claims to address, and which facets of it.
type ControlLink struct {
	ControlID          id.ControlID `json:"control_id"`
	ContributionWeight int          `json:"contribution_weight"`
	CoverageAspects    []string     `json:"coverage_aspects,omitempty"`
}

// Mapping is the crosswalk edge between one requirement and the set of
// controls satisfying it.
//
// Invariants:
//   - Every link's ContributionWeight is within [0, 100]
//   - A control appears at most once among the links
//   - CoverageScore is within [0, 100] and is always derived, never set
//     by callers
//   - not_applicable is operator-set only, never inferred; a mapping
//     with zero links that was not marked is non_compliant
//   - RecordVersion increments on every persisted write
type Mapping struct {
	ID                  id.MappingID     `json:"id"`
	RequirementID       id.RequirementID `json:"requirement_id"`
	Links               []ControlLink    `json:"links"`
	CoverageScore       int              `json:"coverage_score"`
	Status              ComplianceStatus `json:"status"`
	NotApplicable       bool             `json:"not_applicable"`
	NotApplicableReason string           `json:"not_applicable_reason,omitempty"`
	FlaggedForReview    bool             `json:"flagged_for_review"`
	RecordVersion       int64            `json:"record_version"`
	CreatedAt           time.Time        `json:"created_at"`
	LastUpdated         time.Time        `json:"last_updated"`
}

func NewMapping(mappingID id.MappingID, requirementID id.RequirementID, links []ControlLink, now time.Time) (*Mapping, error) {
	if requirementID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "mapping requires a requirement id")
	}
	normalized, err := NormalizeLinks(links)
	if err != nil {
		return nil, err
	}
	return &Mapping{
		ID:            mappingID,
		RequirementID: requirementID,
		Links:         normalized,
		CoverageScore: 0,
		Status:        StatusNonCompliant,
		RecordVersion: 1,
		CreatedAt:     now,
		LastUpdated:   now,
	}, nil
}

// NormalizeLinks validates weights, rejects duplicate controls, and
// canonicalizes aspects.
func NormalizeLinks(links []ControlLink) ([]ControlLink, error) {
	seen := make(map[id.ControlID]struct{}, len(links))
	out := make([]ControlLink, 0, len(links))
	for _, l := range links {
		if l.ControlID.IsNil() {
			return nil, dErrors.New(dErrors.CodeValidation, "control link requires a control id")
		}
		if l.ContributionWeight < 0 || l.ContributionWeight > 100 {
			return nil, dErrors.New(dErrors.CodeValidation, "contribution weight must be between 0 and 100")
		}
		if _, dup := seen[l.ControlID]; dup {
			return nil, dErrors.New(dErrors.CodeValidation, "a control can be linked at most once per mapping")
		}
		seen[l.ControlID] = struct{}{}
		l.CoverageAspects = aspect.Normalize(l.CoverageAspects)
		out = append(out, l)
	}
	return out, nil
}

// ControlIDs returns the linked control ids in link order.
func (m *Mapping) ControlIDs() []id.ControlID {
	out := make([]id.ControlID, 0, len(m.Links))
	for _, l := range m.Links {
		out = append(out, l.ControlID)
	}
	return out
}

// References reports whether the mapping links the given control.
func (m *Mapping) References(controlID id.ControlID) bool {
	for _, l := range m.Links {
		if l.ControlID == controlID {
			return true
		}
	}
	return false
}

// MarkNotApplicable records the operator decision. The score drops to
// zero because no coverage claim is being made.
func (m *Mapping) MarkNotApplicable(reason string, now time.Time) error {
	if reason == "" {
		return dErrors.New(dErrors.CodeValidation, "marking a mapping not applicable requires a reason")
	}
	m.NotApplicable = true
	m.NotApplicableReason = reason
	m.Status = StatusNotApplicable
	m.CoverageScore = 0
	m.LastUpdated = now
	return nil
}
