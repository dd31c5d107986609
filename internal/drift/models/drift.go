package models

import (
	"time"

	"crosswalk/internal/textdiff"
	id "crosswalk/pkg/domain"
	dErrors "crosswalk/pkg/domain-errors"
)

// ChangeType classifies what a new requirement version did to its
// predecessor.
type ChangeType string

const (
	ChangeStrengthened ChangeType = "requirement_strengthened"
	ChangeClarified    ChangeType = "requirement_clarified"
	ChangeModified     ChangeType = "requirement_modified"
)

// ImpactLevel grades how hard a drift hits the organization.
type ImpactLevel string

const (
	ImpactLow      ImpactLevel = "low"
	ImpactMedium   ImpactLevel = "medium"
	ImpactHigh     ImpactLevel = "high"
	ImpactCritical ImpactLevel = "critical"
)

// DriftStatus is the remediation workflow state.
type DriftStatus string

const (
	StatusDetected           DriftStatus = "detected"
	StatusAcknowledged       DriftStatus = "acknowledged"
	StatusRemediationPlanned DriftStatus = "remediation_planned"
	StatusInRemediation      DriftStatus = "in_remediation"
	StatusResolved           DriftStatus = "resolved"
	StatusRiskAccepted       DriftStatus = "risk_accepted"
)

// driftTransitions is the single source of truth for legal moves. The
// main path is monotone; risk_accepted branches off any non-terminal
// state. Both resolved and risk_accepted are terminal.
var driftTransitions = map[DriftStatus][]DriftStatus{
	StatusDetected:           {StatusAcknowledged, StatusRiskAccepted},
	StatusAcknowledged:       {StatusRemediationPlanned, StatusRiskAccepted},
	StatusRemediationPlanned: {StatusInRemediation, StatusRiskAccepted},
	StatusInRemediation:      {StatusResolved, StatusRiskAccepted},
	StatusResolved:           nil,
	StatusRiskAccepted:       nil,
}

func (s DriftStatus) IsValid() bool {
	_, ok := driftTransitions[s]
	return ok
}

func (s DriftStatus) IsTerminal() bool {
	return s == StatusResolved || s == StatusRiskAccepted
}

func (s DriftStatus) CanTransitionTo(next DriftStatus) bool {
	for _, allowed := range driftTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s DriftStatus) String() string { return string(s) }

// RequiredAction is one remediation step attached when a plan is made.
type RequiredAction struct {
	ID          id.ActionID `json:"id"`
	Description string      `json:"description"`
	Owner       string      `json:"owner,omitempty"`
	DueDate     *time.Time  `json:"due_date,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
}

// RequirementComparison is the recorded diff between a requirement and
// its successor.
type RequirementComparison struct {
	OldRequirementID id.RequirementID      `json:"old_requirement_id"`
	NewRequirementID id.RequirementID      `json:"new_requirement_id"`
	Segments         []textdiff.Segment    `json:"segments"`
	Significance     textdiff.Significance `json:"significance"`
	AddedSegments    int                   `json:"added_segments"`
	RemovedSegments  int                   `json:"removed_segments"`
}

// ComplianceDrift records that a published framework version changed a
// requirement the organization had mapped.
//
// Invariants:
//   - At most one drift per (requirement, old version, new version)
//     tuple; the store rejects duplicates
//   - Status moves only along driftTransitions; terminal drifts accept
//     no further mutation except audit fields (notes, decision log)
//   - Actions are attached when remediation is planned, never removed
type ComplianceDrift struct {
	ID                 id.DriftID            `json:"id"`
	FrameworkID        id.FrameworkID        `json:"framework_id"`
	OldVersionID       id.VersionID          `json:"old_version_id"`
	NewVersionID       id.VersionID          `json:"new_version_id"`
	RequirementID      id.RequirementID      `json:"requirement_id"`
	ChangeType         ChangeType            `json:"change_type"`
	ImpactLevel        ImpactLevel           `json:"impact_level"`
	AffectedControlIDs []id.ControlID        `json:"affected_control_ids"`
	Comparison         RequirementComparison `json:"comparison"`
	Status             DriftStatus           `json:"status"`
	Actions            []RequiredAction      `json:"actions,omitempty"`
	ResolutionNote     string                `json:"resolution_note,omitempty"`
	AcknowledgedBy     string                `json:"acknowledged_by,omitempty"`
	AcknowledgedAt     *time.Time            `json:"acknowledged_at,omitempty"`
	DecisionLog        []string              `json:"decision_log,omitempty"`
	RecordVersion      int64                 `json:"record_version"`
	DetectedAt         time.Time             `json:"detected_at"`
	LastUpdated        time.Time             `json:"last_updated"`
}

func NewDrift(
	driftID id.DriftID,
	frameworkID id.FrameworkID,
	oldVersionID, newVersionID id.VersionID,
	requirementID id.RequirementID,
	changeType ChangeType,
	impact ImpactLevel,
	affected []id.ControlID,
	comparison RequirementComparison,
	now time.Time,
) *ComplianceDrift {
	return &ComplianceDrift{
		ID:                 driftID,
		FrameworkID:        frameworkID,
		OldVersionID:       oldVersionID,
		NewVersionID:       newVersionID,
		RequirementID:      requirementID,
		ChangeType:         changeType,
		ImpactLevel:        impact,
		AffectedControlIDs: affected,
		Comparison:         comparison,
		Status:             StatusDetected,
		RecordVersion:      1,
		DetectedAt:         now,
		LastUpdated:        now,
	}
}

// CanTransition checks a status move without applying it.
func (d *ComplianceDrift) CanTransition(next DriftStatus) error {
	if d.Status.IsTerminal() {
		return dErrors.Newf(dErrors.CodeInvalidStateTransition, "drift is %s and can no longer change state", d.Status)
	}
	if !d.Status.CanTransitionTo(next) {
		return dErrors.Newf(dErrors.CodeInvalidStateTransition, "drift cannot move from %s to %s", d.Status, next)
	}
	return nil
}

// ApplyTransition moves the drift's status. Call CanTransition first.
func (d *ComplianceDrift) ApplyTransition(next DriftStatus, now time.Time) {
	d.Status = next
	d.LastUpdated = now
}

// RecordDecision appends to the audit-side decision log. Allowed even
// on terminal drifts: the log is an audit field, not workflow state.
func (d *ComplianceDrift) RecordDecision(entry string, now time.Time) {
	d.DecisionLog = append(d.DecisionLog, entry)
	d.LastUpdated = now
}
