// Package model holds the entities the evaluation pipeline reads and writes.
package model

import (
	"time"
)

// Status is the lifecycle state of a Submission.
type Status string

// Submission states. StatusError and StatusEvaluationError are terminal.
const (
	StatusUploaded        Status = "uploaded"
	StatusProcessing      Status = "processing"
	StatusProcessed       Status = "processed"
	StatusEvaluating      Status = "evaluating"
	StatusEvaluated       Status = "evaluated"
	StatusCompleted       Status = "completed"
	StatusError           Status = "error"
	StatusEvaluationError Status = "evaluation_error"
)

// transitions lists the forward edges plus the rollback edges a stage may take
// when it gives an attempt back to the queue.
var transitions = map[Status][]Status{ //nolint:gochecknoglobals // static transition graph
	StatusUploaded:   {StatusProcessing},
	StatusProcessing: {StatusProcessed, StatusUploaded},
	StatusProcessed:  {StatusEvaluating},
	StatusEvaluating: {StatusEvaluated, StatusProcessed},
	StatusEvaluated:  {StatusCompleted},
	StatusCompleted:  {StatusCompleted},
}

// Terminal reports whether no stage will move the submission further.
func (s Status) Terminal() bool {
	return s == StatusError || s == StatusEvaluationError
}

// Active reports whether the submission is still somewhere in the pipeline.
func (s Status) Active() bool {
	return !s.Terminal() && s != StatusCompleted
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusUploaded, StatusProcessing, StatusProcessed, StatusEvaluating,
		StatusEvaluated, StatusCompleted, StatusError, StatusEvaluationError:
		return true
	}
	return false
}

// CanTransition reports whether moving from one status to another is allowed.
// Error states are reachable from every active state.
func CanTransition(from, to Status) bool {
	if !from.Valid() || !to.Valid() {
		return false
	}
	if to.Terminal() {
		return from.Active()
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Submission is one uploaded document competing within a Domain.
type Submission struct {
	ID               string
	DomainID         string
	TeamName         string
	DocumentLocation string
	Status           Status
	SlideDir         string
	SlideCount       int
	TotalScore       *float64
	WeightedScore    *float64
	RankingPosition  *int
	ErrorMessage     string
	CreatedAt        time.Time
	UpdatedAt        time.Time
	CompletedAt      *time.Time
}
