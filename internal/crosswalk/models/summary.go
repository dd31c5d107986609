package models

import "time"

// CrosswalkSummary is the aggregate view of every mapping: counts by
// status and average coverage per framework and per category.
type CrosswalkSummary struct {
	TotalMappings    int                      `json:"total_mappings"`
	CountsByStatus   map[ComplianceStatus]int `json:"counts_by_status"`
	ScoreByFramework map[string]float64       `json:"score_by_framework"`
	ScoreByCategory  map[string]float64       `json:"score_by_category"`
	GeneratedAt      time.Time                `json:"generated_at"`
}
