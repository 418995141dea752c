// Package scoring turns per-criterion judge scores into weighted, normalized results.
package scoring

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
)

// Quality modifier constants.
const (
	flowBonus             = 0.5
	completenessBonus     = 0.3
	bonusCap              = 1.0
	bonusThreshold        = 8.0
	severePenalty         = 1.0
	mildPenalty           = 0.5
	severePenaltyBelow    = 5.0
	mildPenaltyBelow      = 7.0
	minCriterionScore     = 1.0
	maxCriterionScore     = 10.0
	normalizedScaleFactor = 100.0
)

// GradeUndefined is returned for scores that cannot be graded.
const GradeUndefined = "N/A"

// ErrNoCriteria is returned when an evaluation carries no criteria scores.
var ErrNoCriteria = errors.New("no criteria scores")

// Input is everything the score depends on.
type Input struct {
	CriteriaScores map[string]float64
	Weights        map[string]float64
	// Quality signals on a 1-10 scale; nil means absent.
	FlowScore         *float64
	CompletenessScore *float64
	ConsistencyScore  *float64
}

// Result is the computed score for one submission.
type Result struct {
	CriteriaBreakdown  map[string]float64
	WeightedBreakdown  map[string]float64
	RawTotal           float64
	WeightedSubtotal   float64
	QualityBonus       float64
	ConsistencyPenalty float64
	WeightedTotal      float64
	NormalizedScore    float64
	Grade              string
}

// Scorer computes a Result from an Input.
type Scorer interface {
	// Score computes a score, honoring ctx for cancellation.
	Score(ctx context.Context, in Input) (Result, error)
}

// Engine implements Scorer with the fixed bonus and penalty rules.
// It holds no state; identical inputs always produce identical results.
type Engine struct{}

// NewEngine creates a scoring engine.
func NewEngine() *Engine {
	return &Engine{}
}

// Score computes the weighted result for in. It fails with ErrNoCriteria
// when there is nothing to score.
func (e *Engine) Score(ctx context.Context, in Input) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, fmt.Errorf("context cancelled: %w", err)
	}
	if len(in.CriteriaScores) == 0 {
		return Result{}, ErrNoCriteria
	}
	return Compute(in), nil
}

// Compute is the pure scoring function.
func Compute(in Input) Result {
	r := Result{
		CriteriaBreakdown: make(map[string]float64, len(in.CriteriaScores)),
		WeightedBreakdown: make(map[string]float64, len(in.CriteriaScores)),
	}
	for c, s := range in.CriteriaScores {
		r.CriteriaBreakdown[c] = s
		r.RawTotal += s
		w := in.Weights[c]
		r.WeightedBreakdown[c] = s * w
		r.WeightedSubtotal += s * w
	}

	r.QualityBonus = QualityBonus(in.FlowScore, in.CompletenessScore)
	r.ConsistencyPenalty = ConsistencyPenalty(in.ConsistencyScore)
	r.WeightedTotal = r.WeightedSubtotal + r.QualityBonus - r.ConsistencyPenalty

	var weightSum float64
	for _, w := range in.Weights {
		weightSum += w
	}
	if weightSum > 0 {
		r.NormalizedScore = r.WeightedTotal / (maxCriterionScore * weightSum) * normalizedScaleFactor
	}
	r.Grade = Grade(r.NormalizedScore)
	return r
}

// OutOfRange returns, sorted, the criteria whose score falls outside 1-10.
// Normalization assumes that range, so such scores skew normalized results.
func OutOfRange(scores map[string]float64) []string {
	var out []string
	for c, v := range scores {
		if v < minCriterionScore || v > maxCriterionScore {
			out = append(out, c)
		}
	}
	sort.Strings(out)
	return out
}

// QualityBonus rewards strong flow and completeness, capped at 1.0.
func QualityBonus(flow, completeness *float64) float64 {
	var bonus float64
	if present(flow) && *flow >= bonusThreshold {
		bonus += flowBonus
	}
	if present(completeness) && *completeness >= bonusThreshold {
		bonus += completenessBonus
	}
	return math.Min(bonus, bonusCap)
}

// ConsistencyPenalty deducts for inconsistent messaging. An absent score
// carries no penalty.
func ConsistencyPenalty(consistency *float64) float64 {
	if !present(consistency) {
		return 0
	}
	switch c := *consistency; {
	case c < severePenaltyBelow:
		return severePenalty
	case c < mildPenaltyBelow:
		return mildPenalty
	}
	return 0
}

// present treats nil and zero as absent; judge scores start at 1.
func present(v *float64) bool {
	return v != nil && *v != 0
}

// gradeSteps is ordered from the highest floor down.
var gradeSteps = []struct { //nolint:gochecknoglobals // static grade table
	floor float64
	grade string
}{
	{90, "A+"},
	{85, "A"},
	{80, "A-"},
	{75, "B+"},
	{70, "B"},
	{65, "B-"},
	{60, "C+"},
	{55, "C"},
	{50, "C-"},
}

// Grade maps a normalized score to a letter grade.
func Grade(normalized float64) string {
	if math.IsNaN(normalized) || math.IsInf(normalized, 0) {
		return GradeUndefined
	}
	for _, step := range gradeSteps {
		if normalized >= step.floor {
			return step.grade
		}
	}
	return "F"
}
