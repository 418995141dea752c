package model

import "time"

// Stage names one step of the pipeline.
type Stage string

// Pipeline stages in execution order.
const (
	StageIngest   Stage = "ingest"
	StageEvaluate Stage = "evaluate"
	StageScore    Stage = "score"
	StageRank     Stage = "rank"
)

// Stages lists every stage in execution order.
var Stages = []Stage{StageIngest, StageEvaluate, StageScore, StageRank} //nolint:gochecknoglobals // fixed stage list

// Task is one stage invocation waiting in a queue. Subject is a submission id
// for ingest, evaluate and score, and a domain id for rank.
type Task struct {
	ID         string    `json:"id"`
	Stage      Stage     `json:"stage"`
	Subject    string    `json:"subject"`
	Attempt    int       `json:"attempt"`
	NotBefore  time.Time `json:"not_before"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// Ready reports whether the task may run at now.
func (t Task) Ready(now time.Time) bool {
	return !t.NotBefore.After(now)
}

// Metric is an append-only observability record.
type Metric struct {
	Name      string
	Value     float64
	Unit      string
	Context   map[string]any
	Timestamp time.Time
}
