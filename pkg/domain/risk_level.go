package domain

import dErrors "crosswalk/pkg/domain-errors"

// RiskLevel grades the impact of a requirement going unmet.
type RiskLevel string

const (
	RiskLevelLow      RiskLevel = "low"
	RiskLevelMedium   RiskLevel = "medium"
	RiskLevelHigh     RiskLevel = "high"
	RiskLevelCritical RiskLevel = "critical"
)

var riskLevelRank = map[RiskLevel]int{
	RiskLevelLow:      1,
	RiskLevelMedium:   2,
	RiskLevelHigh:     3,
	RiskLevelCritical: 4,
}

func ParseRiskLevel(v string) (RiskLevel, error) {
	r := RiskLevel(v)
	if !r.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "risk level must be low, medium, high or critical")
	}
	return r, nil
}

func (r RiskLevel) IsValid() bool {
	_, ok := riskLevelRank[r]
	return ok
}

// AtLeast reports whether r is equal to or graver than other.
func (r RiskLevel) AtLeast(other RiskLevel) bool {
	return riskLevelRank[r] >= riskLevelRank[other]
}

func (r RiskLevel) String() string { return string(r) }
