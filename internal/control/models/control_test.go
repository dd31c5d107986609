package models

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "crosswalk/pkg/domain"
	dErrors "crosswalk/pkg/domain-errors"
)

var testNow = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func TestNewControlValidation(t *testing.T) {
	_, err := NewControl(id.NewControlID(), "", "", "", 3, testNow)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))

	_, err = NewControl(id.NewControlID(), strings.Repeat("x", 257), "", "", 3, testNow)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))

	_, err = NewControl(id.NewControlID(), "MFA enforcement", "", "", 0, testNow)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))

	_, err = NewControl(id.NewControlID(), "MFA enforcement", "", "", 6, testNow)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))

	control, err := NewControl(id.NewControlID(), "MFA enforcement", "enforce MFA", "security", 4, testNow)
	require.NoError(t, err)
	assert.Equal(t, ControlStatusNotStarted, control.Status)
	assert.Equal(t, int64(1), control.RecordVersion)
}

func TestControlStatusTransitions(t *testing.T) {
	tests := []struct {
		from    ControlStatus
		to      ControlStatus
		allowed bool
	}{
		{ControlStatusNotStarted, ControlStatusInProgress, true},
		{ControlStatusNotStarted, ControlStatusImplemented, false},
		{ControlStatusNotStarted, ControlStatusVerified, false},
		{ControlStatusInProgress, ControlStatusImplemented, true},
		{ControlStatusInProgress, ControlStatusVerified, false},
		{ControlStatusImplemented, ControlStatusVerified, true},
		{ControlStatusImplemented, ControlStatusNeedsReview, true},
		{ControlStatusVerified, ControlStatusNeedsReview, true},
		{ControlStatusVerified, ControlStatusImplemented, false},
		{ControlStatusNeedsReview, ControlStatusInProgress, true},
		{ControlStatusNeedsReview, ControlStatusVerified, true},
		{ControlStatusDeprecated, ControlStatusInProgress, false},
		{ControlStatusDeprecated, ControlStatusNotStarted, false},
	}

	for _, tc := range tests {
		t.Run(string(tc.from)+"_to_"+string(tc.to), func(t *testing.T) {
			assert.Equal(t, tc.allowed, tc.from.CanTransitionTo(tc.to))
		})
	}

	// Every state may deprecate except deprecated itself.
	for from := range controlTransitions {
		if from == ControlStatusDeprecated {
			continue
		}
		assert.True(t, from.CanTransitionTo(ControlStatusDeprecated), "from %s", from)
	}
}

func TestControlDeprecationIsTerminal(t *testing.T) {
	control, err := NewControl(id.NewControlID(), "Legacy VPN", "", "", 2, testNow)
	require.NoError(t, err)

	require.NoError(t, control.CanDeprecate())
	control.ApplyDeprecation(testNow)
	assert.True(t, control.IsDeprecated())

	err = control.CanDeprecate()
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidStateTransition))
	err = control.CanTransition(ControlStatusInProgress)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidStateTransition))
}

func TestHasVerifiedEvidence(t *testing.T) {
	control, err := NewControl(id.NewControlID(), "MFA enforcement", "", "", 4, testNow)
	require.NoError(t, err)
	assert.False(t, control.HasVerifiedEvidence(testNow))

	expiry := testNow.Add(24 * time.Hour)
	control.Evidence = []Evidence{
		{ID: id.NewEvidenceID(), Description: "pending report", Status: EvidenceStatusPending, CollectedAt: testNow},
		{ID: id.NewEvidenceID(), Description: "idp config export", Status: EvidenceStatusVerified, CollectedAt: testNow, ExpiresAt: &expiry},
	}
	assert.True(t, control.HasVerifiedEvidence(testNow))
	// At the expiration instant the evidence no longer counts.
	assert.False(t, control.HasVerifiedEvidence(expiry))
}

func TestNewEvidenceValidation(t *testing.T) {
	_, err := NewEvidence(id.NewEvidenceID(), "", "", testNow, nil)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))

	_, err = NewEvidence(id.NewEvidenceID(), "report", "", time.Time{}, nil)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))

	before := testNow.Add(-time.Hour)
	_, err = NewEvidence(id.NewEvidenceID(), "report", "", testNow, &before)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))

	evidence, err := NewEvidence(id.NewEvidenceID(), "report", "s3://evidence/report.pdf", testNow, nil)
	require.NoError(t, err)
	assert.Equal(t, EvidenceStatusPending, evidence.Status)
	require.NoError(t, evidence.CanVerify())

	evidence.Status = EvidenceStatusRejected
	assert.True(t, dErrors.HasCode(evidence.CanVerify(), dErrors.CodeInvalidStateTransition))
}
