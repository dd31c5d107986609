package audit

import "time"

// Event is emitted from domain logic to capture state-changing actions.
// Keep it transport-agnostic so stores and sinks can fan out.
type Event struct {
	ID        string
	Timestamp time.Time
	Actor     string
	Action    string
	Entity    string
	EntityID  string
	Reason    string
	RequestID string
}

// Actions recorded by the engine. One constant per state-changing
// operation keeps consumers free of string guessing.
const (
	ActionFrameworkCreated     = "framework_created"
	ActionVersionPublished     = "version_published"
	ActionControlUpserted      = "control_upserted"
	ActionControlDeprecated    = "control_deprecated"
	ActionEvidenceAttached     = "evidence_attached"
	ActionEvidenceVerified     = "evidence_verified"
	ActionMappingCreated       = "mapping_created"
	ActionMappingUpdated       = "mapping_updated"
	ActionMappingNotApplicable = "mapping_marked_not_applicable"
	ActionDriftDetected        = "drift_detected"
	ActionDriftAcknowledged    = "drift_acknowledged"
	ActionDriftPlanned         = "drift_remediation_planned"
	ActionDriftStarted         = "drift_remediation_started"
	ActionDriftResolved        = "drift_resolved"
	ActionDriftRiskAccepted    = "drift_risk_accepted"
	ActionDriftDeferred        = "drift_deferred"
)
