package models

import (
	"time"

	id "crosswalk/pkg/domain"
	dErrors "crosswalk/pkg/domain-errors"
)

// ControlStatus is the implementation state of an organizational control.
type ControlStatus string

const (
	ControlStatusNotStarted  ControlStatus = "not_started"
	ControlStatusInProgress  ControlStatus = "in_progress"
	ControlStatusImplemented ControlStatus = "implemented"
	ControlStatusVerified    ControlStatus = "verified"
	ControlStatusNeedsReview ControlStatus = "needs_review"
	ControlStatusDeprecated  ControlStatus = "deprecated"
)

// controlTransitions is the single source of truth for legal moves.
// Deprecated is terminal: controls are never resurrected.
var controlTransitions = map[ControlStatus][]ControlStatus{
	ControlStatusNotStarted:  {ControlStatusInProgress, ControlStatusDeprecated},
	ControlStatusInProgress:  {ControlStatusImplemented, ControlStatusDeprecated},
	ControlStatusImplemented: {ControlStatusVerified, ControlStatusNeedsReview, ControlStatusDeprecated},
	ControlStatusVerified:    {ControlStatusNeedsReview, ControlStatusDeprecated},
	ControlStatusNeedsReview: {ControlStatusInProgress, ControlStatusImplemented, ControlStatusVerified, ControlStatusDeprecated},
	ControlStatusDeprecated:  nil,
}

func (s ControlStatus) IsValid() bool {
	_, ok := controlTransitions[s]
	return ok
}

func (s ControlStatus) CanTransitionTo(next ControlStatus) bool {
	for _, allowed := range controlTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s ControlStatus) String() string { return string(s) }

// ParseControlStatus constructs a ControlStatus from external input.
func ParseControlStatus(v string) (ControlStatus, error) {
	if v == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "control status cannot be empty")
	}
	s := ControlStatus(v)
	if !s.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid control status")
	}
	return s, nil
}

// Control is the aggregate root for an organizational implementation.
//
// Invariants:
//   - Name is non-empty and at most 256 characters
//   - EffectivenessRating is within [1, 5]
//   - Status moves only along controlTransitions; deprecated is terminal
//   - Every evidence item's expiration, when set, is after collection
//   - RecordVersion increments on every persisted write (optimistic
//     concurrency; a stale stamp fails the write)
type Control struct {
	ID                  id.ControlID  `json:"id"`
	Name                string        `json:"name"`
	Description         string        `json:"description,omitempty"`
	Owner               string        `json:"owner,omitempty"`
	Status              ControlStatus `json:"status"`
	EffectivenessRating int           `json:"effectiveness_rating"`
	Evidence            []Evidence    `json:"evidence,omitempty"`
	RecordVersion       int64         `json:"record_version"`
	CreatedAt           time.Time     `json:"created_at"`
	LastUpdated         time.Time     `json:"last_updated"`
}

func NewControl(controlID id.ControlID, name, description, owner string, rating int, now time.Time) (*Control, error) {
	if name == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "control name cannot be empty")
	}
	if len(name) > 256 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "control name must be 256 characters or less")
	}
	if rating < 1 || rating > 5 {
		return nil, dErrors.New(dErrors.CodeValidation, "effectiveness rating must be between 1 and 5")
	}
	return &Control{
		ID:                  controlID,
		Name:                name,
		Description:         description,
		Owner:               owner,
		Status:              ControlStatusNotStarted,
		EffectivenessRating: rating,
		RecordVersion:       1,
		CreatedAt:           now,
		LastUpdated:         now,
	}, nil
}

func (c *Control) IsDeprecated() bool {
	return c.Status == ControlStatusDeprecated
}

// CanTransition checks a status move without applying it.
func (c *Control) CanTransition(next ControlStatus) error {
	if !c.Status.CanTransitionTo(next) {
		return dErrors.Newf(dErrors.CodeInvalidStateTransition, "control cannot move from %s to %s", c.Status, next)
	}
	return nil
}

// ApplyTransition moves the control's status. Call CanTransition first.
func (c *Control) ApplyTransition(next ControlStatus, now time.Time) {
	c.Status = next
	c.LastUpdated = now
}

// CanDeprecate checks the one-way deprecation transition.
func (c *Control) CanDeprecate() error {
	if c.IsDeprecated() {
		return dErrors.New(dErrors.CodeInvalidStateTransition, "control is already deprecated")
	}
	return nil
}

// ApplyDeprecation marks the control deprecated. Call CanDeprecate first.
func (c *Control) ApplyDeprecation(now time.Time) {
	c.Status = ControlStatusDeprecated
	c.LastUpdated = now
}

// HasVerifiedEvidence reports whether at least one evidence item is
// verified and not past its expiration at the given time. This feeds the
// compliant-status rule in coverage computation.
func (c *Control) HasVerifiedEvidence(now time.Time) bool {
	for _, e := range c.Evidence {
		if e.IsVerified(now) {
			return true
		}
	}
	return false
}
