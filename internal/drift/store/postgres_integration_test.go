//go:build integration

package store_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"crosswalk/internal/drift/models"
	"crosswalk/internal/drift/store"
	"crosswalk/internal/textdiff"
	id "crosswalk/pkg/domain"
	"crosswalk/pkg/platform/sentinel"
	"crosswalk/pkg/testutil"
	"crosswalk/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.PostgresStore
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.NewPostgresContainer(s.T())
	s.store = store.NewPostgres(s.postgres.Pool)
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "drifts"))
}

func (s *PostgresStoreSuite) newDrift(oldVersion, newVersion id.VersionID) *models.ComplianceDrift {
	oldReq, newReq := id.NewRequirementID(), id.NewRequirementID()
	drift := models.NewDrift(
		id.NewDriftID(),
		id.NewFrameworkID(),
		oldVersion, newVersion,
		newReq,
		models.ChangeStrengthened,
		models.ImpactHigh,
		[]id.ControlID{id.NewControlID()},
		models.RequirementComparison{
			OldRequirementID: oldReq,
			NewRequirementID: newReq,
			Significance:     textdiff.SignificanceSubstantive,
			AddedSegments:    1,
		},
		testutil.Clock,
	)
	s.Require().NoError(s.store.Create(context.Background(), drift))
	return drift
}

func (s *PostgresStoreSuite) TestCreateAndFindByTuple() {
	ctx := context.Background()
	oldVersion, newVersion := id.NewVersionID(), id.NewVersionID()
	drift := s.newDrift(oldVersion, newVersion)

	found, err := s.store.FindByTuple(ctx, drift.RequirementID, oldVersion, newVersion)
	s.Require().NoError(err)
	s.Equal(drift.ID, found.ID)
	s.Equal(models.ChangeStrengthened, found.ChangeType)
	s.Equal(textdiff.SignificanceSubstantive, found.Comparison.Significance)
	s.Len(found.AffectedControlIDs, 1)

	_, err = s.store.FindByTuple(ctx, id.NewRequirementID(), oldVersion, newVersion)
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestDuplicateTupleIsRejected() {
	ctx := context.Background()
	oldVersion, newVersion := id.NewVersionID(), id.NewVersionID()
	drift := s.newDrift(oldVersion, newVersion)

	dup := models.NewDrift(
		id.NewDriftID(),
		drift.FrameworkID,
		oldVersion, newVersion,
		drift.RequirementID,
		models.ChangeModified,
		models.ImpactLow,
		nil,
		models.RequirementComparison{},
		testutil.Clock,
	)
	s.Require().ErrorIs(s.store.Create(ctx, dup), sentinel.ErrAlreadyRecorded)
}

func (s *PostgresStoreSuite) TestListByVersionPair() {
	ctx := context.Background()
	oldVersion, newVersion := id.NewVersionID(), id.NewVersionID()
	s.newDrift(oldVersion, newVersion)
	s.newDrift(oldVersion, newVersion)
	s.newDrift(id.NewVersionID(), id.NewVersionID())

	drifts, err := s.store.ListByVersionPair(ctx, oldVersion, newVersion)
	s.Require().NoError(err)
	s.Len(drifts, 2)
}

func (s *PostgresStoreSuite) TestListOpenExcludesTerminalDrifts() {
	ctx := context.Background()
	open := s.newDrift(id.NewVersionID(), id.NewVersionID())
	closed := s.newDrift(id.NewVersionID(), id.NewVersionID())

	_, err := s.store.Execute(ctx, closed.ID,
		func(d *models.ComplianceDrift) error { return nil },
		func(d *models.ComplianceDrift) {
			d.Status = models.StatusRiskAccepted
			d.RecordDecision("risk accepted: compensating control in place", testutil.Clock)
		},
	)
	s.Require().NoError(err)

	drifts, err := s.store.ListOpen(ctx)
	s.Require().NoError(err)
	s.Require().Len(drifts, 1)
	s.Equal(open.ID, drifts[0].ID)
}

func (s *PostgresStoreSuite) TestExecutePersistsWorkflowState() {
	ctx := context.Background()
	drift := s.newDrift(id.NewVersionID(), id.NewVersionID())

	updated, err := s.store.Execute(ctx, drift.ID,
		func(d *models.ComplianceDrift) error { return d.CanTransition(models.StatusAcknowledged) },
		func(d *models.ComplianceDrift) {
			d.AcknowledgedBy = "analyst@example.org"
			ack := testutil.Clock
			d.AcknowledgedAt = &ack
			d.ApplyTransition(models.StatusAcknowledged, testutil.Clock)
		},
	)
	s.Require().NoError(err)
	s.Equal(int64(2), updated.RecordVersion)

	found, err := s.store.Find(ctx, drift.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusAcknowledged, found.Status)
	s.Equal("analyst@example.org", found.AcknowledgedBy)
	s.Require().NotNil(found.AcknowledgedAt)
}
