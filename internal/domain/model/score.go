package model

import "time"

// Score is the computed result for one submission. Ranking fields are only
// written by the ranking stage.
type Score struct {
	SubmissionID       string
	DomainID           string
	CriteriaBreakdown  map[string]float64
	WeightedBreakdown  map[string]float64
	RawTotal           float64
	WeightedTotal      float64
	NormalizedScore    float64
	QualityBonus       float64
	ConsistencyPenalty float64
	Grade              string
	RankingPosition    *int
	PercentileRank     *float64
	CalculatedAt       time.Time
}

// Placement is one row of a recomputed domain ranking.
type Placement struct {
	SubmissionID string
	Rank         int
	Percentile   float64
}
