// Package types contains the read and request shapes shared by the service
// and its HTTP and CLI surfaces.
package types

import "time"

// SubmitRequest registers a document for evaluation.
type SubmitRequest struct {
	DomainID string `json:"domain_id" validate:"required,max=64"`
	TeamName string `json:"team_name" validate:"required,max=255"`
	// Document is a local path or an s3://bucket/key location.
	Document string `json:"document" validate:"required"`
}

// Submission is the externally visible state of one submission.
type Submission struct {
	ID              string             `json:"id"`
	DomainID        string             `json:"domain_id"`
	TeamName        string             `json:"team_name"`
	Status          string             `json:"status"`
	SlideCount      int                `json:"slide_count"`
	TotalScore      *float64           `json:"total_score,omitempty"`
	WeightedScore   *float64           `json:"weighted_score,omitempty"`
	NormalizedScore *float64           `json:"normalized_score,omitempty"`
	Grade           string             `json:"grade,omitempty"`
	Rank            *int               `json:"rank,omitempty"`
	Percentile      *float64           `json:"percentile,omitempty"`
	ErrorMessage    string             `json:"error_message,omitempty"`
	Evaluation      *EvaluationSummary `json:"evaluation,omitempty"`
	CreatedAt       time.Time          `json:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at"`
	CompletedAt     *time.Time         `json:"completed_at,omitempty"`
}

// EvaluationSummary is the judge feedback shown with a submission.
type EvaluationSummary struct {
	CriteriaScores    map[string]float64 `json:"criteria_scores"`
	Strengths         []string           `json:"strengths"`
	Weaknesses        []string           `json:"weaknesses"`
	Suggestions       []string           `json:"suggestions"`
	ExecutiveSummary  string             `json:"executive_summary"`
	ProcessingSeconds float64            `json:"processing_seconds"`
}

// Standing is one row of a domain ranking.
type Standing struct {
	Rank            *int     `json:"rank"`
	SubmissionID    string   `json:"submission_id"`
	TeamName        string   `json:"team_name"`
	WeightedTotal   float64  `json:"weighted_total"`
	NormalizedScore float64  `json:"normalized_score"`
	Percentile      *float64 `json:"percentile"`
	Grade           string   `json:"grade"`
}

// Health reports liveness and the depth of every stage queue.
type Health struct {
	Status string         `json:"status"`
	Queues map[string]int `json:"queues"`
}
