package models

import (
	"time"

	id "crosswalk/pkg/domain"
	dErrors "crosswalk/pkg/domain-errors"
)

// VersionStatus is the lifecycle state of a framework version.
// Transitions only move forward: draft → final → active → superseded.
type VersionStatus string

const (
	VersionStatusDraft      VersionStatus = "draft"
	VersionStatusFinal      VersionStatus = "final"
	VersionStatusActive     VersionStatus = "active"
	VersionStatusSuperseded VersionStatus = "superseded"
)

// versionStatusRank is the single source of truth for ordering. A
// transition is legal only when it strictly increases rank.
var versionStatusRank = map[VersionStatus]int{
	VersionStatusDraft:      1,
	VersionStatusFinal:      2,
	VersionStatusActive:     3,
	VersionStatusSuperseded: 4,
}

func (s VersionStatus) IsValid() bool {
	_, ok := versionStatusRank[s]
	return ok
}

// CanTransitionTo reports whether moving to next is a forward step.
func (s VersionStatus) CanTransitionTo(next VersionStatus) bool {
	return next.IsValid() && versionStatusRank[next] > versionStatusRank[s]
}

func (s VersionStatus) String() string { return string(s) }

// Framework is a named regulatory standard that owns an ordered list of
// versions.
type Framework struct {
	ID          id.FrameworkID `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

func NewFramework(frameworkID id.FrameworkID, name, description string, now time.Time) (*Framework, error) {
	if name == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "framework name cannot be empty")
	}
	if len(name) > 128 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "framework name must be 128 characters or less")
	}
	return &Framework{
		ID:          frameworkID,
		Name:        name,
		Description: description,
		CreatedAt:   now,
	}, nil
}

// FrameworkVersion is one published revision of a framework's text.
//
// Invariants:
//   - Immutable once published: requirements are append-only records
//     owned by exactly one version
//   - Status moves draft → final → active → superseded, never backward
//   - At most one version per framework is active at a time (enforced by
//     the service during publication)
//   - EffectiveDate strictly increases across a framework's versions
//   - Sequence is the framework-scoped publication order, starting at 1
type FrameworkVersion struct {
	ID            id.VersionID   `json:"id"`
	FrameworkID   id.FrameworkID `json:"framework_id"`
	Label         string         `json:"label"`
	Status        VersionStatus  `json:"status"`
	EffectiveDate time.Time      `json:"effective_date"`
	SunsetDate    *time.Time     `json:"sunset_date,omitempty"`
	Sequence      int            `json:"sequence"`
	PublishedAt   time.Time      `json:"published_at"`
}

func NewFrameworkVersion(versionID id.VersionID, frameworkID id.FrameworkID, label string, effectiveDate time.Time, sunsetDate *time.Time) (*FrameworkVersion, error) {
	if label == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "version label cannot be empty")
	}
	if effectiveDate.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "version effective date is required")
	}
	if sunsetDate != nil && !sunsetDate.After(effectiveDate) {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "sunset date must be after effective date")
	}
	return &FrameworkVersion{
		ID:            versionID,
		FrameworkID:   frameworkID,
		Label:         label,
		Status:        VersionStatusDraft,
		EffectiveDate: effectiveDate,
		SunsetDate:    sunsetDate,
	}, nil
}

// CanSupersede checks the forward transition into superseded.
func (v *FrameworkVersion) CanSupersede() error {
	if !v.Status.CanTransitionTo(VersionStatusSuperseded) {
		return dErrors.New(dErrors.CodeInvariantViolation, "version is already superseded")
	}
	return nil
}

// ApplySuperseded marks the version superseded. Call CanSupersede first.
func (v *FrameworkVersion) ApplySuperseded() {
	v.Status = VersionStatusSuperseded
}

func (v *FrameworkVersion) IsActive() bool {
	return v.Status == VersionStatusActive
}
