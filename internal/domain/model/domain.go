package model

import (
	"fmt"
	"math"
	"time"
)

// WeightTolerance bounds how far a domain's weights may drift from 1.0.
const WeightTolerance = 0.01

// Domain is a scoring category with its own criteria and weights.
type Domain struct {
	ID          string
	Name        string
	Description string
	// Criteria maps criterion name to the description shown to the judge.
	Criteria map[string]string
	// Weights maps criterion name to its weight; missing criteria weigh 0.
	Weights   map[string]float64
	IsActive  bool
	CreatedAt time.Time
}

// WeightSum returns the sum of all weights.
func (d *Domain) WeightSum() float64 {
	var sum float64
	for _, w := range d.Weights {
		sum += w
	}
	return sum
}

// ValidateWeights checks that the weights sum to 1.0 within WeightTolerance.
func (d *Domain) ValidateWeights() error {
	if len(d.Weights) == 0 {
		return fmt.Errorf("domain %q: %w: no weights", d.ID, ErrInvalidWeights)
	}
	for c, w := range d.Weights {
		if w < 0 {
			return fmt.Errorf("domain %q: %w: negative weight for %s", d.ID, ErrInvalidWeights, c)
		}
	}
	if sum := d.WeightSum(); math.Abs(sum-1.0) > WeightTolerance {
		return fmt.Errorf("domain %q: %w: sum is %.4f", d.ID, ErrInvalidWeights, sum)
	}
	return nil
}
