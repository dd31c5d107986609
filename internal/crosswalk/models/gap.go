package models

import id "crosswalk/pkg/domain"

// GapSeverity grades a single flagged issue on a mapping.
type GapSeverity string

const (
	GapSeverityLow      GapSeverity = "low"
	GapSeverityMedium   GapSeverity = "medium"
	GapSeverityHigh     GapSeverity = "high"
	GapSeverityCritical GapSeverity = "critical"
)

// EstimatedEffort is the coarse remediation sizing derived from the
// missing-aspect count. It is a fixed lookup, not an estimate model.
type EstimatedEffort string

const (
	EffortNone   EstimatedEffort = "none"
	EffortHours  EstimatedEffort = "hours"
	EffortDays   EstimatedEffort = "days"
	EffortWeeks  EstimatedEffort = "weeks"
	EffortMonths EstimatedEffort = "months"
)

// MappingGap is one flagged issue on a mapping: an uncovered guidance
// item or a link to a deprecated control.
type MappingGap struct {
	MappingID   id.MappingID  `json:"mapping_id"`
	ControlID   *id.ControlID `json:"control_id,omitempty"`
	Description string        `json:"description"`
	Severity    GapSeverity   `json:"severity"`
}

// GapAnalysis is the result of analyzing one mapping against its
// requirement. MissingAspects comes from a keyword-containment
// heuristic, not semantic matching; callers treat it as a review queue,
// not a verdict.
type GapAnalysis struct {
	MappingID       id.MappingID     `json:"mapping_id"`
	RequirementID   id.RequirementID `json:"requirement_id"`
	MissingAspects  []string         `json:"missing_aspects"`
	Gaps            []MappingGap     `json:"gaps,omitempty"`
	Priority        GapSeverity      `json:"priority"`
	EstimatedEffort EstimatedEffort  `json:"estimated_effort"`
}
