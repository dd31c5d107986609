package crosswalk

import (
	ctrlmodels "crosswalk/internal/control/models"
	"crosswalk/internal/crosswalk/models"
	fwmodels "crosswalk/internal/framework/models"
	id "crosswalk/pkg/domain"
	"crosswalk/pkg/platform/aspect"
)

// AnalyzeGap enumerates what a mapping leaves uncovered and how urgent
// closing it is. Missing aspects come from keyword containment between
// the requirement's implementation guidance and the linked controls'
// coverage aspects; it is a review-queue heuristic, not semantic
// matching, and it deliberately mirrors the scaling rule in
// ComputeCoverage so a zero-missing analysis implies full breadth.
func AnalyzeGap(requirement *fwmodels.Requirement, mapping *models.Mapping, controls []*ctrlmodels.Control) models.GapAnalysis {
	byID := make(map[id.ControlID]*ctrlmodels.Control, len(controls))
	for _, c := range controls {
		byID[c.ID] = c
	}

	needles := make(map[string]struct{})
	for _, link := range mapping.Links {
		control, ok := byID[link.ControlID]
		if !ok || control.IsDeprecated() {
			continue
		}
		for _, a := range link.CoverageAspects {
			needles[aspect.Canonical(a)] = struct{}{}
		}
	}
	var missing []string
	for _, item := range requirement.ImplementationGuidance {
		if !aspect.ContainsAny(item, needles) {
			missing = append(missing, item)
		}
	}

	var gaps []models.MappingGap
	for _, link := range mapping.Links {
		control, ok := byID[link.ControlID]
		if ok && control.IsDeprecated() {
			cid := link.ControlID
			gaps = append(gaps, models.MappingGap{
				MappingID:   mapping.ID,
				ControlID:   &cid,
				Description: "linked control " + control.Name + " is deprecated and needs a replacement",
				Severity:    models.GapSeverityHigh,
			})
		}
	}
	for _, item := range missing {
		gaps = append(gaps, models.MappingGap{
			MappingID:   mapping.ID,
			Description: "no linked control covers: " + item,
			Severity:    severityForMissing(requirement.RiskLevel),
		})
	}

	return models.GapAnalysis{
		MappingID:       mapping.ID,
		RequirementID:   requirement.ID,
		MissingAspects:  missing,
		Gaps:            gaps,
		Priority:        gapPriority(requirement.RiskLevel, mapping.CoverageScore, len(missing)),
		EstimatedEffort: effortForMissing(len(missing)),
	}
}

// gapPriority escalates on risk level and score.
func gapPriority(risk id.RiskLevel, score, missing int) models.GapSeverity {
	switch {
	case risk == id.RiskLevelCritical && score < 50:
		return models.GapSeverityCritical
	case risk.AtLeast(id.RiskLevelHigh) || score < 80:
		return models.GapSeverityHigh
	case missing > 0 || score < 95:
		return models.GapSeverityMedium
	default:
		return models.GapSeverityLow
	}
}

func severityForMissing(risk id.RiskLevel) models.GapSeverity {
	if risk.AtLeast(id.RiskLevelHigh) {
		return models.GapSeverityHigh
	}
	return models.GapSeverityMedium
}

// effortForMissing is the fixed sizing table on missing-aspect count.
func effortForMissing(count int) models.EstimatedEffort {
	switch {
	case count == 0:
		return models.EffortNone
	case count == 1:
		return models.EffortHours
	case count <= 3:
		return models.EffortDays
	case count <= 6:
		return models.EffortWeeks
	default:
		return models.EffortMonths
	}
}
