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

func TestVersionStatusOnlyMovesForward(t *testing.T) {
	assert.True(t, VersionStatusDraft.CanTransitionTo(VersionStatusFinal))
	assert.True(t, VersionStatusDraft.CanTransitionTo(VersionStatusActive))
	assert.True(t, VersionStatusActive.CanTransitionTo(VersionStatusSuperseded))

	assert.False(t, VersionStatusActive.CanTransitionTo(VersionStatusDraft))
	assert.False(t, VersionStatusSuperseded.CanTransitionTo(VersionStatusActive))
	assert.False(t, VersionStatusFinal.CanTransitionTo(VersionStatusFinal))
}

func TestNewFrameworkValidation(t *testing.T) {
	_, err := NewFramework(id.NewFrameworkID(), "", "", testNow)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))

	_, err = NewFramework(id.NewFrameworkID(), strings.Repeat("x", 129), "", testNow)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))

	framework, err := NewFramework(id.NewFrameworkID(), "HIPAA Security Rule", "45 CFR Part 164", testNow)
	require.NoError(t, err)
	assert.Equal(t, testNow, framework.CreatedAt)
}

func TestNewFrameworkVersionValidation(t *testing.T) {
	frameworkID := id.NewFrameworkID()
	effective := testNow.AddDate(0, 1, 0)

	_, err := NewFrameworkVersion(id.NewVersionID(), frameworkID, "", effective, nil)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))

	_, err = NewFrameworkVersion(id.NewVersionID(), frameworkID, "2026-01", time.Time{}, nil)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))

	sunsetBefore := effective.Add(-time.Hour)
	_, err = NewFrameworkVersion(id.NewVersionID(), frameworkID, "2026-01", effective, &sunsetBefore)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))

	version, err := NewFrameworkVersion(id.NewVersionID(), frameworkID, "2026-01", effective, nil)
	require.NoError(t, err)
	assert.Equal(t, VersionStatusDraft, version.Status)
}

func TestVersionSupersede(t *testing.T) {
	version, err := NewFrameworkVersion(id.NewVersionID(), id.NewFrameworkID(), "2026-01", testNow, nil)
	require.NoError(t, err)
	version.Status = VersionStatusActive

	require.NoError(t, version.CanSupersede())
	version.ApplySuperseded()
	assert.Equal(t, VersionStatusSuperseded, version.Status)
	assert.True(t, dErrors.HasCode(version.CanSupersede(), dErrors.CodeInvariantViolation))
}

func TestNewRequirementValidation(t *testing.T) {
	fid, vid := id.NewFrameworkID(), id.NewVersionID()

	_, err := NewRequirement(id.NewRequirementID(), fid, vid, "", "text", "access control", id.RiskLevelHigh, testNow)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))

	_, err = NewRequirement(id.NewRequirementID(), fid, vid, "164.312(d)", "", "access control", id.RiskLevelHigh, testNow)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))

	_, err = NewRequirement(id.NewRequirementID(), fid, vid, "164.312(d)", "text", "access control", id.RiskLevel("severe"), testNow)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))

	r, err := NewRequirement(id.NewRequirementID(), fid, vid, "164.312(d)", "Verify identity", "access control", id.RiskLevelHigh, testNow)
	require.NoError(t, err)
	r.Keywords = []string{"MFA", " mfa ", "Identity"}
	assert.Equal(t, []string{"mfa", "identity"}, r.NormalizedKeywords())
}
