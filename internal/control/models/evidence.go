package models

import (
	"time"

	id "crosswalk/pkg/domain"
	dErrors "crosswalk/pkg/domain-errors"
)

// EvidenceStatus is the verification state of one evidence item.
type EvidenceStatus string

const (
	EvidenceStatusPending  EvidenceStatus = "pending"
	EvidenceStatusVerified EvidenceStatus = "verified"
	EvidenceStatusRejected EvidenceStatus = "rejected"
	EvidenceStatusExpired  EvidenceStatus = "expired"
)

var validEvidenceStatuses = map[EvidenceStatus]bool{
	EvidenceStatusPending:  true,
	EvidenceStatusVerified: true,
	EvidenceStatusRejected: true,
	EvidenceStatusExpired:  true,
}

func (s EvidenceStatus) IsValid() bool { return validEvidenceStatuses[s] }

func (s EvidenceStatus) String() string { return string(s) }

// Evidence is one artifact supporting a control's implementation claim.
//
// Invariants:
//   - Description is non-empty
//   - ExpiresAt, when set, is strictly after CollectedAt
//   - Verification moves pending → verified/rejected; expiry is derived
//     from the clock, not stored backward
type Evidence struct {
	ID          id.EvidenceID  `json:"id"`
	Description string         `json:"description"`
	Location    string         `json:"location,omitempty"`
	Status      EvidenceStatus `json:"status"`
	CollectedAt time.Time      `json:"collected_at"`
	ExpiresAt   *time.Time     `json:"expires_at,omitempty"`
	VerifiedAt  *time.Time     `json:"verified_at,omitempty"`
	VerifiedBy  string         `json:"verified_by,omitempty"`
}

func NewEvidence(evidenceID id.EvidenceID, description, location string, collectedAt time.Time, expiresAt *time.Time) (*Evidence, error) {
	if description == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "evidence description cannot be empty")
	}
	if collectedAt.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "evidence collection time is required")
	}
	if expiresAt != nil && !expiresAt.After(collectedAt) {
		return nil, dErrors.New(dErrors.CodeValidation, "evidence expiration must be after collection")
	}
	return &Evidence{
		ID:          evidenceID,
		Description: description,
		Location:    location,
		Status:      EvidenceStatusPending,
		CollectedAt: collectedAt,
		ExpiresAt:   expiresAt,
	}, nil
}

// IsVerified reports verified-and-unexpired at the given time.
func (e Evidence) IsVerified(now time.Time) bool {
	if e.Status != EvidenceStatusVerified {
		return false
	}
	if e.ExpiresAt != nil && !now.Before(*e.ExpiresAt) {
		return false
	}
	return true
}

// CanVerify checks the pending → verified/rejected move.
func (e Evidence) CanVerify() error {
	if e.Status != EvidenceStatusPending {
		return dErrors.Newf(dErrors.CodeInvalidStateTransition, "evidence is %s, only pending evidence can be verified or rejected", e.Status)
	}
	return nil
}
