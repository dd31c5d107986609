package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crosswalk/internal/audit"
	"crosswalk/internal/control/models"
	"crosswalk/internal/control/store"
	id "crosswalk/pkg/domain"
	dErrors "crosswalk/pkg/domain-errors"
	"crosswalk/pkg/testutil"
)

type recordingListener struct {
	deprecated []id.ControlID
}

func (l *recordingListener) OnControlDeprecated(_ context.Context, controlID id.ControlID) error {
	l.deprecated = append(l.deprecated, controlID)
	return nil
}

func newTestService(t *testing.T) (*Service, *recordingListener) {
	t.Helper()
	listener := &recordingListener{}
	svc := New(store.NewInMemoryStore(),
		WithAuditPublisher(audit.NewPublisher(audit.NewInMemoryStore())),
		WithDeprecationListener(listener),
	)
	return svc, listener
}

func createControl(t *testing.T, svc *Service) *models.Control {
	t.Helper()
	control, err := svc.UpsertControl(testutil.Context("ops@example.org"), UpsertInput{
		Name:                "MFA enforcement",
		Description:         "enforce MFA on privileged accounts",
		Owner:               "security",
		EffectivenessRating: 4,
	})
	require.NoError(t, err)
	return control
}

func TestUpsertCreatesControl(t *testing.T) {
	svc, _ := newTestService(t)

	control := createControl(t, svc)
	assert.Equal(t, models.ControlStatusNotStarted, control.Status)
	assert.Equal(t, int64(1), control.RecordVersion)
	assert.Equal(t, testutil.Clock, control.CreatedAt)

	_, err := svc.UpsertControl(testutil.Context(""), UpsertInput{Name: "Backup encryption", EffectivenessRating: 9})
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}

func TestUpsertUpdateEnforcesTransitionsAndConcurrency(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := testutil.Context("ops@example.org")
	control := createControl(t, svc)

	// not_started -> verified skips states.
	verified := models.ControlStatusVerified
	_, err := svc.UpsertControl(ctx, UpsertInput{
		ID: &control.ID, Name: control.Name, EffectivenessRating: 4,
		Status: &verified, RecordVersion: control.RecordVersion,
	})
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidStateTransition))

	inProgress := models.ControlStatusInProgress
	updated, err := svc.UpsertControl(ctx, UpsertInput{
		ID: &control.ID, Name: "MFA enforcement (IdP)", EffectivenessRating: 5,
		Status: &inProgress, RecordVersion: control.RecordVersion,
	})
	require.NoError(t, err)
	assert.Equal(t, models.ControlStatusInProgress, updated.Status)
	assert.Equal(t, int64(2), updated.RecordVersion)

	// A stale stamp loses the write.
	_, err = svc.UpsertControl(ctx, UpsertInput{
		ID: &control.ID, Name: "MFA enforcement", EffectivenessRating: 5,
		RecordVersion: control.RecordVersion,
	})
	assert.True(t, dErrors.HasCode(err, dErrors.CodeConcurrentModification))
}

func TestDeprecateControlNotifiesCrosswalk(t *testing.T) {
	svc, listener := newTestService(t)
	ctx := testutil.Context("ops@example.org")
	control := createControl(t, svc)

	deprecated, err := svc.DeprecateControl(ctx, control.ID)
	require.NoError(t, err)
	assert.True(t, deprecated.IsDeprecated())
	assert.Equal(t, []id.ControlID{control.ID}, listener.deprecated)

	_, err = svc.DeprecateControl(ctx, control.ID)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidStateTransition))

	// Deprecated controls reject edits and new evidence.
	_, err = svc.UpsertControl(ctx, UpsertInput{
		ID: &control.ID, Name: control.Name, EffectivenessRating: 4, RecordVersion: deprecated.RecordVersion,
	})
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidStateTransition))

	_, err = svc.AttachEvidence(ctx, control.ID, EvidenceInput{
		Description: "late report", CollectedAt: testutil.Clock,
	})
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidStateTransition))
}

func TestEvidenceLifecycle(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := testutil.Context("auditor@example.org")
	control := createControl(t, svc)

	expiry := testutil.Clock.AddDate(1, 0, 0)
	withEvidence, err := svc.AttachEvidence(ctx, control.ID, EvidenceInput{
		Description: "  IdP configuration export  ",
		Location:    "s3://evidence/idp.json",
		CollectedAt: testutil.Clock,
		ExpiresAt:   &expiry,
	})
	require.NoError(t, err)
	require.Len(t, withEvidence.Evidence, 1)
	evidence := withEvidence.Evidence[0]
	assert.Equal(t, "IdP configuration export", evidence.Description)
	assert.Equal(t, models.EvidenceStatusPending, evidence.Status)

	verified, err := svc.VerifyEvidence(ctx, control.ID, evidence.ID, true)
	require.NoError(t, err)
	require.Len(t, verified.Evidence, 1)
	assert.Equal(t, models.EvidenceStatusVerified, verified.Evidence[0].Status)
	assert.Equal(t, "auditor@example.org", verified.Evidence[0].VerifiedBy)
	require.NotNil(t, verified.Evidence[0].VerifiedAt)
	assert.Equal(t, testutil.Clock, *verified.Evidence[0].VerifiedAt)
	assert.True(t, verified.HasVerifiedEvidence(testutil.Clock))

	// Verification is single-shot.
	_, err = svc.VerifyEvidence(ctx, control.ID, evidence.ID, false)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidStateTransition))

	_, err = svc.VerifyEvidence(ctx, control.ID, id.NewEvidenceID(), true)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}

func TestRejectEvidence(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := testutil.Context("auditor@example.org")
	control := createControl(t, svc)

	withEvidence, err := svc.AttachEvidence(ctx, control.ID, EvidenceInput{
		Description: "blurry screenshot",
		CollectedAt: testutil.Clock,
	})
	require.NoError(t, err)

	rejected, err := svc.VerifyEvidence(ctx, control.ID, withEvidence.Evidence[0].ID, false)
	require.NoError(t, err)
	assert.Equal(t, models.EvidenceStatusRejected, rejected.Evidence[0].Status)
	assert.Empty(t, rejected.Evidence[0].VerifiedBy)
	assert.False(t, rejected.HasVerifiedEvidence(testutil.Clock))
}

func TestAttachEvidenceValidatesExpiry(t *testing.T) {
	svc, _ := newTestService(t)
	control := createControl(t, svc)

	before := testutil.Clock.Add(-time.Hour)
	_, err := svc.AttachEvidence(testutil.Context(""), control.ID, EvidenceInput{
		Description: "report",
		CollectedAt: testutil.Clock,
		ExpiresAt:   &before,
	})
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}
