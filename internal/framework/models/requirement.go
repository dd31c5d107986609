package models

import (
	"time"

	id "crosswalk/pkg/domain"
	dErrors "crosswalk/pkg/domain-errors"
	"crosswalk/pkg/platform/aspect"
)

// Requirement is one obligation within a specific framework version.
//
// Invariants:
//   - Append-only: a new framework version never mutates a prior
//     version's requirement, it records a new requirement linked through
//     Supersedes
//   - Supersedes, when set, resolves to a requirement in the immediately
//     prior version of the same framework (validated at publication)
//   - Cross-references are id-based lookups, never embedded records, so
//     versions stay immutable and ownership stays acyclic
type Requirement struct {
	ID                     id.RequirementID   `json:"id"`
	FrameworkID            id.FrameworkID     `json:"framework_id"`
	VersionID              id.VersionID       `json:"version_id"`
	SectionCode            string             `json:"section_code"`
	Text                   string             `json:"text"`
	Category               string             `json:"category"`
	RiskLevel              id.RiskLevel       `json:"risk_level"`
	Keywords               []string           `json:"keywords,omitempty"`
	ImplementationGuidance []string           `json:"implementation_guidance,omitempty"`
	EvidenceExamples       []string           `json:"evidence_examples,omitempty"`
	Supersedes             *id.RequirementID  `json:"supersedes,omitempty"`
	RelatedRequirements    []id.RequirementID `json:"related_requirements,omitempty"`
	CreatedAt              time.Time          `json:"created_at"`
}

func NewRequirement(
	requirementID id.RequirementID,
	frameworkID id.FrameworkID,
	versionID id.VersionID,
	sectionCode string,
	text string,
	category string,
	riskLevel id.RiskLevel,
	now time.Time,
) (*Requirement, error) {
	if sectionCode == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "requirement section code cannot be empty")
	}
	if text == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "requirement text cannot be empty")
	}
	if !riskLevel.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "invalid requirement risk level")
	}
	return &Requirement{
		ID:          requirementID,
		FrameworkID: frameworkID,
		VersionID:   versionID,
		SectionCode: sectionCode,
		Text:        text,
		Category:    category,
		RiskLevel:   riskLevel,
		CreatedAt:   now,
	}, nil
}

// NormalizedKeywords returns the canonical keyword set used by gap
// analysis heuristics.
func (r *Requirement) NormalizedKeywords() []string {
	return aspect.Normalize(r.Keywords)
}
