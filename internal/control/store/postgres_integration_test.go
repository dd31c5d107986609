//go:build integration

package store_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"crosswalk/internal/control/models"
	"crosswalk/internal/control/store"
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
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "controls"))
}

func (s *PostgresStoreSuite) newControl(name string) *models.Control {
	control, err := models.NewControl(id.NewControlID(), name, "enforce MFA", "security", 4, testutil.Clock)
	s.Require().NoError(err)
	s.Require().NoError(s.store.Create(context.Background(), control))
	return control
}

func (s *PostgresStoreSuite) TestCreateAndFindWithEvidence() {
	ctx := context.Background()
	control := s.newControl("MFA enforcement")

	expiry := testutil.Clock.AddDate(1, 0, 0)
	control.Evidence = append(control.Evidence, models.Evidence{
		ID:          id.NewEvidenceID(),
		Description: "IdP configuration export",
		Location:    "s3://evidence/idp.json",
		Status:      models.EvidenceStatusVerified,
		CollectedAt: testutil.Clock,
		ExpiresAt:   &expiry,
	})
	s.Require().NoError(s.store.Update(ctx, control))

	found, err := s.store.Find(ctx, control.ID)
	s.Require().NoError(err)
	s.Equal("MFA enforcement", found.Name)
	s.Require().Len(found.Evidence, 1)
	s.Equal(models.EvidenceStatusVerified, found.Evidence[0].Status)
	s.Require().NotNil(found.Evidence[0].ExpiresAt)
	s.True(found.HasVerifiedEvidence(testutil.Clock))
}

func (s *PostgresStoreSuite) TestUpdateEnforcesRecordVersion() {
	ctx := context.Background()
	control := s.newControl("MFA enforcement")

	control.Description = "enforce MFA on all privileged accounts"
	s.Require().NoError(s.store.Update(ctx, control))
	s.Equal(int64(2), control.RecordVersion)

	stale := *control
	stale.RecordVersion = 1
	s.Require().ErrorIs(s.store.Update(ctx, &stale), sentinel.ErrStaleVersion)
}

func (s *PostgresStoreSuite) TestFindManyReturnsOnlyKnownIDs() {
	ctx := context.Background()
	a := s.newControl("Access review")
	b := s.newControl("Backup encryption")

	controls, err := s.store.FindMany(ctx, []id.ControlID{a.ID, b.ID, id.NewControlID()})
	s.Require().NoError(err)
	s.Len(controls, 2)
}

func (s *PostgresStoreSuite) TestListOrdersByName() {
	ctx := context.Background()
	s.newControl("Zoning review")
	s.newControl("Access review")

	controls, err := s.store.List(ctx)
	s.Require().NoError(err)
	s.Require().Len(controls, 2)
	s.Equal("Access review", controls[0].Name)
	s.Equal("Zoning review", controls[1].Name)
}

func (s *PostgresStoreSuite) TestExecuteAppliesMutationAtomically() {
	ctx := context.Background()
	control := s.newControl("MFA enforcement")

	updated, err := s.store.Execute(ctx, control.ID,
		func(c *models.Control) error { return c.CanTransition(models.ControlStatusInProgress) },
		func(c *models.Control) { c.Status = models.ControlStatusInProgress },
	)
	s.Require().NoError(err)
	s.Equal(models.ControlStatusInProgress, updated.Status)
	s.Equal(int64(2), updated.RecordVersion)

	_, err = s.store.Execute(ctx, id.NewControlID(),
		func(*models.Control) error { return nil },
		func(*models.Control) {},
	)
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}
