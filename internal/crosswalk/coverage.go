// Package crosswalk holds the pure scoring and gap rules for
// requirement-to-control mappings. Everything here is deterministic:
// the same mapping, requirement, and controls always produce the same
// score and status, which is what makes recomputation idempotent.
package crosswalk

import (
	"math"
	"time"

	ctrlmodels "crosswalk/internal/control/models"
	"crosswalk/internal/crosswalk/models"
	fwmodels "crosswalk/internal/framework/models"
	id "crosswalk/pkg/domain"
	"crosswalk/pkg/platform/aspect"
)

// ComputeCoverage derives a mapping's score and status.
//
// Scoring unions distinct aspects instead of summing per control:
// each control's weight is split evenly across its declared aspects,
// and every distinct aspect is credited once at the highest share any
// control gives it. Two controls both declaring "mfa" therefore do not
// double-credit the facet. The raw sum is then scaled by the fraction
// of the requirement's implementation guidance the linked aspects
// touch (keyword containment, the documented heuristic), so a control
// set that covered an old narrow requirement scores lower against a
// broader successor. Deprecated controls contribute nothing; they
// surface through gap analysis instead.
//
// Status rules:
//   - not_applicable only when the operator marked it, never inferred
//   - zero links, unmarked: non_compliant with score 0
//   - compliant requires score >= 95 and every linked, non-deprecated
//     control holding at least one verified, unexpired evidence item
//   - otherwise partial, except score 0 which is non_compliant
func ComputeCoverage(mapping *models.Mapping, requirement *fwmodels.Requirement, controls []*ctrlmodels.Control, now time.Time) (int, models.ComplianceStatus) {
	if mapping.NotApplicable {
		return 0, models.StatusNotApplicable
	}
	if len(mapping.Links) == 0 {
		return 0, models.StatusNonCompliant
	}

	byID := make(map[id.ControlID]*ctrlmodels.Control, len(controls))
	for _, c := range controls {
		byID[c.ID] = c
	}

	bestShare := make(map[string]float64)
	allAspects := make(map[string]struct{})
	evidenceOK := true
	for _, link := range mapping.Links {
		control, ok := byID[link.ControlID]
		if !ok || control.IsDeprecated() {
			continue
		}
		if !control.HasVerifiedEvidence(now) {
			evidenceOK = false
		}

		aspects := aspect.Normalize(link.CoverageAspects)
		if len(aspects) == 0 {
			continue
		}
		weight := float64(link.ContributionWeight)
		if weight > 100 {
			weight = 100
		}
		share := weight / float64(len(aspects))
		for _, a := range aspects {
			allAspects[a] = struct{}{}
			if share > bestShare[a] {
				bestShare[a] = share
			}
		}
	}

	raw := 0.0
	for _, share := range bestShare {
		raw += share
	}
	if raw > 100 {
		raw = 100
	}

	score := int(math.Round(raw * guidanceCoveredFraction(requirement, allAspects)))
	if score > 100 {
		score = 100
	}

	switch {
	case score == 0:
		return 0, models.StatusNonCompliant
	case score >= 95 && evidenceOK:
		return score, models.StatusCompliant
	default:
		return score, models.StatusPartial
	}
}

// guidanceCoveredFraction reports how much of the requirement's
// implementation guidance the linked aspects touch. Requirements
// without guidance scale by 1: there is nothing to measure breadth
// against.
func guidanceCoveredFraction(requirement *fwmodels.Requirement, aspects map[string]struct{}) float64 {
	if requirement == nil || len(requirement.ImplementationGuidance) == 0 {
		return 1
	}
	covered := 0
	for _, item := range requirement.ImplementationGuidance {
		if aspect.ContainsAny(item, aspects) {
			covered++
		}
	}
	return float64(covered) / float64(len(requirement.ImplementationGuidance))
}
