// Package ranking recomputes domain-wide placements from completed scores.
package ranking

import (
	"math"
	"sort"

	"github.com/okian/pitchjudge/internal/domain/model"
)

const percentScale = 100.0

// Candidate is one completed submission competing for a rank.
type Candidate struct {
	SubmissionID  string
	WeightedTotal float64
}

// Compute assigns ranks 1..N by descending weighted total. Candidates must be
// supplied in evaluation order; ties keep that order. The input is not modified.
func Compute(candidates []Candidate) []model.Placement {
	if len(candidates) == 0 {
		return nil
	}
	sorted := make([]Candidate, len(candidates))
	copy(sorted, candidates)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].WeightedTotal > sorted[j].WeightedTotal
	})

	n := len(sorted)
	out := make([]model.Placement, n)
	for i, c := range sorted {
		rank := i + 1
		out[i] = model.Placement{
			SubmissionID: c.SubmissionID,
			Rank:         rank,
			Percentile:   Percentile(rank, n),
		}
	}
	return out
}

// Percentile returns ((n-rank+1)/n)*100 rounded to two decimals.
func Percentile(rank, n int) float64 {
	if n <= 0 {
		return 0
	}
	p := float64(n-rank+1) / float64(n) * percentScale
	return math.Round(p*percentScale) / percentScale
}
