package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crosswalk/internal/audit"
	"crosswalk/internal/framework/models"
	"crosswalk/internal/framework/store"
	id "crosswalk/pkg/domain"
	dErrors "crosswalk/pkg/domain-errors"
	"crosswalk/pkg/testutil"
)

func newTestService(t *testing.T) (*Service, *audit.InMemoryStore) {
	t.Helper()
	events := audit.NewInMemoryStore()
	svc := New(store.NewInMemoryStore(), WithAuditPublisher(audit.NewPublisher(events)))
	return svc, events
}

func requirementInput(section, text string) RequirementInput {
	return RequirementInput{
		SectionCode: section,
		Text:        text,
		Category:    "access control",
		RiskLevel:   id.RiskLevelHigh,
	}
}

func TestCreateFramework(t *testing.T) {
	svc, events := newTestService(t)
	ctx := testutil.Context("ops@example.org")

	framework, err := svc.CreateFramework(ctx, "  HIPAA Security Rule  ", "45 CFR Part 164")
	require.NoError(t, err)
	assert.Equal(t, "HIPAA Security Rule", framework.Name)
	assert.Equal(t, testutil.Clock, framework.CreatedAt)

	_, err = svc.CreateFramework(ctx, "HIPAA Security Rule", "duplicate")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))

	trail, err := events.ListByEntity(ctx, "framework", framework.ID.String())
	require.NoError(t, err)
	require.Len(t, trail, 1)
	assert.Equal(t, audit.ActionFrameworkCreated, trail[0].Action)
	assert.Equal(t, "ops@example.org", trail[0].Actor)
}

func TestPublishFirstVersion(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := testutil.Context("ops@example.org")

	framework, err := svc.CreateFramework(ctx, "HIPAA Security Rule", "")
	require.NoError(t, err)

	version, err := svc.PublishVersion(ctx, PublishInput{
		FrameworkID:   framework.ID,
		Label:         "2024-02",
		EffectiveDate: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
		Requirements: []RequirementInput{
			requirementInput("164.312(a)", "Implement technical policies for access control"),
			requirementInput("164.312(d)", "Implement procedures to verify identity"),
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, version.Sequence)
	assert.Equal(t, models.VersionStatusActive, version.Status)
	assert.Equal(t, testutil.Clock, version.PublishedAt)

	active, err := svc.GetActiveVersion(ctx, framework.ID)
	require.NoError(t, err)
	assert.Equal(t, version.ID, active.ID)

	requirements, err := svc.ListRequirements(ctx, version.ID)
	require.NoError(t, err)
	assert.Len(t, requirements, 2)

	require.NoError(t, svc.VerifyIntegrity(ctx))
}

func TestPublishVersionValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := testutil.Context("ops@example.org")

	framework, err := svc.CreateFramework(ctx, "HIPAA Security Rule", "")
	require.NoError(t, err)

	_, err = svc.PublishVersion(ctx, PublishInput{
		FrameworkID:   framework.ID,
		Label:         "2024-02",
		EffectiveDate: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
	})
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation), "version without requirements")

	_, err = svc.PublishVersion(ctx, PublishInput{
		FrameworkID:   id.NewFrameworkID(),
		Label:         "2024-02",
		EffectiveDate: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
		Requirements:  []RequirementInput{requirementInput("164.312(a)", "text")},
	})
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound), "unknown framework")

	_, err = svc.PublishVersion(ctx, PublishInput{
		FrameworkID:   framework.ID,
		Label:         "2024-02",
		EffectiveDate: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
		Requirements: []RequirementInput{
			requirementInput("164.312(a)", "text"),
			requirementInput("164.312(a)", "other text"),
		},
	})
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation), "duplicate section code")

	unknown := id.NewRequirementID()
	in := requirementInput("164.312(a)", "text")
	in.Supersedes = &unknown
	_, err = svc.PublishVersion(ctx, PublishInput{
		FrameworkID:   framework.ID,
		Label:         "2024-02",
		EffectiveDate: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
		Requirements:  []RequirementInput{in},
	})
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation), "supersedes without prior version")

	in = requirementInput("164.312(a)", "text")
	in.RelatedSectionCodes = []string{"164.999"}
	_, err = svc.PublishVersion(ctx, PublishInput{
		FrameworkID:   framework.ID,
		Label:         "2024-02",
		EffectiveDate: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
		Requirements:  []RequirementInput{in},
	})
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation), "unknown related section")
}

func TestPublishSuccessorVersion(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := testutil.Context("ops@example.org")

	framework, err := svc.CreateFramework(ctx, "HIPAA Security Rule", "")
	require.NoError(t, err)

	first, err := svc.PublishVersion(ctx, PublishInput{
		FrameworkID:   framework.ID,
		Label:         "2024-02",
		EffectiveDate: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
		Requirements:  []RequirementInput{requirementInput("164.312(d)", "Implement procedures to verify identity")},
	})
	require.NoError(t, err)

	priorRequirements, err := svc.ListRequirements(ctx, first.ID)
	require.NoError(t, err)
	require.Len(t, priorRequirements, 1)

	// Effective date must strictly advance.
	_, err = svc.PublishVersion(ctx, PublishInput{
		FrameworkID:   framework.ID,
		Label:         "2024-01",
		EffectiveDate: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Requirements:  []RequirementInput{requirementInput("164.312(d)", "text")},
	})
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))

	successor := requirementInput("164.312(d)", "Implement multi-factor authentication for all privileged access")
	successor.Supersedes = &priorRequirements[0].ID
	second, err := svc.PublishVersion(ctx, PublishInput{
		FrameworkID:   framework.ID,
		Label:         "2026-01",
		EffectiveDate: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Requirements:  []RequirementInput{successor},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, second.Sequence)

	// The prior version is superseded, its requirements untouched.
	versions, err := svc.ListVersions(ctx, framework.ID)
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, models.VersionStatusSuperseded, versions[0].Status)
	assert.Equal(t, models.VersionStatusActive, versions[1].Status)

	kept, err := svc.ListRequirements(ctx, first.ID)
	require.NoError(t, err)
	require.Len(t, kept, 1)
	assert.Equal(t, "Implement procedures to verify identity", kept[0].Text)

	newReqs, err := svc.ListRequirements(ctx, second.ID)
	require.NoError(t, err)
	require.Len(t, newReqs, 1)
	require.NotNil(t, newReqs[0].Supersedes)
	assert.Equal(t, priorRequirements[0].ID, *newReqs[0].Supersedes)
}

func TestGetRequirementRejectsCrossVersionLookup(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := testutil.Context("ops@example.org")

	framework, err := svc.CreateFramework(ctx, "HIPAA Security Rule", "")
	require.NoError(t, err)
	version, err := svc.PublishVersion(ctx, PublishInput{
		FrameworkID:   framework.ID,
		Label:         "2024-02",
		EffectiveDate: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
		Requirements:  []RequirementInput{requirementInput("164.312(d)", "text")},
	})
	require.NoError(t, err)
	requirements, err := svc.ListRequirements(ctx, version.ID)
	require.NoError(t, err)

	got, err := svc.GetRequirement(ctx, framework.ID, requirements[0].ID, version.ID)
	require.NoError(t, err)
	assert.Equal(t, requirements[0].ID, got.ID)

	_, err = svc.GetRequirement(ctx, id.NewFrameworkID(), requirements[0].ID, version.ID)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))

	_, err = svc.GetRequirement(ctx, framework.ID, requirements[0].ID, id.NewVersionID())
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}

func TestRelatedSectionCodesResolveWithinVersion(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := testutil.Context("ops@example.org")

	framework, err := svc.CreateFramework(ctx, "HIPAA Security Rule", "")
	require.NoError(t, err)

	a := requirementInput("164.312(a)", "access control text")
	d := requirementInput("164.312(d)", "identity verification text")
	d.RelatedSectionCodes = []string{"164.312(a)"}

	version, err := svc.PublishVersion(ctx, PublishInput{
		FrameworkID:   framework.ID,
		Label:         "2024-02",
		EffectiveDate: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
		Requirements:  []RequirementInput{a, d},
	})
	require.NoError(t, err)

	requirements, err := svc.ListRequirements(ctx, version.ID)
	require.NoError(t, err)
	require.Len(t, requirements, 2)

	byCode := map[string]*models.Requirement{}
	for _, r := range requirements {
		byCode[r.SectionCode] = r
	}
	require.Len(t, byCode["164.312(d)"].RelatedRequirements, 1)
	assert.Equal(t, byCode["164.312(a)"].ID, byCode["164.312(d)"].RelatedRequirements[0])
}
