package model

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// validate is the package-level validator instance used for struct validation.
var validate = newValidator() //nolint:gochecknoglobals // validator caches struct metadata

// newValidator reports fields by their JSON names so errors match the wire contract.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Verdict is the structured answer returned by the AI judge for one submission.
// Required fields must be present; an empty executive summary is accepted.
type Verdict struct {
	OverallAnalysis  *OverallAnalysis   `json:"overall_analysis" validate:"required"`
	CriteriaScores   map[string]float64 `json:"criteria_scores" validate:"required"`
	DetailedFeedback *Feedback          `json:"detailed_feedback" validate:"required"`
	SlideNotes       []SlideNote        `json:"slide_by_slide_notes,omitempty"`
	ExecutiveSummary *string            `json:"executive_summary" validate:"required"`
}

// OverallAnalysis carries the judge's whole-presentation quality signals.
// Each score is optional.
type OverallAnalysis struct {
	PresentationFlowScore *float64 `json:"presentation_flow_score"`
	CompletenessScore     *float64 `json:"completeness_score"`
	ConsistencyScore      *float64 `json:"consistency_score"`
	TotalSlidesAnalyzed   int      `json:"total_slides_analyzed"`
}

// Feedback is the judge's qualitative review.
type Feedback struct {
	Strengths   []string `json:"strengths"`
	Weaknesses  []string `json:"weaknesses"`
	Suggestions []string `json:"suggestions"`
}

// SlideNote is a per-slide remark.
type SlideNote struct {
	Slide int    `json:"slide"`
	Note  string `json:"note"`
}

// Validate checks the required-field contract. Every failure wraps
// ErrContractViolation and names the missing fields.
func (v *Verdict) Validate() error {
	if v == nil {
		return fmt.Errorf("%w: empty verdict", ErrContractViolation)
	}
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		missing := make([]string, 0, len(ve))
		for _, fe := range ve {
			missing = append(missing, fe.Field())
		}
		return fmt.Errorf("%w: missing %s", ErrContractViolation, strings.Join(missing, ", "))
	}
	return fmt.Errorf("%w: %w", ErrContractViolation, err)
}

// Evaluation is the persisted judge output for a submission. It is written
// once and never mutated.
type Evaluation struct {
	ID                    string
	SubmissionID          string
	CriteriaScores        map[string]float64
	PresentationFlowScore *float64
	CompletenessScore     *float64
	ConsistencyScore      *float64
	Feedback              Feedback
	SlideNotes            []SlideNote
	ExecutiveSummary      string
	SlideCount            int
	ProcessingTime        time.Duration
	// Raw is the judge payload as received, kept for audit.
	Raw       []byte
	CreatedAt time.Time
}

// NewEvaluation builds an Evaluation from a validated Verdict.
func NewEvaluation(id, submissionID string, v *Verdict, slides int, took time.Duration, raw []byte) *Evaluation {
	e := &Evaluation{
		ID:               id,
		SubmissionID:     submissionID,
		CriteriaScores:   make(map[string]float64, len(v.CriteriaScores)),
		Feedback:         *v.DetailedFeedback,
		SlideNotes:       v.SlideNotes,
		SlideCount:       slides,
		ProcessingTime:   took,
		Raw:              raw,
	}
	for c, s := range v.CriteriaScores {
		e.CriteriaScores[c] = s
	}
	if v.ExecutiveSummary != nil {
		e.ExecutiveSummary = *v.ExecutiveSummary
	}
	if oa := v.OverallAnalysis; oa != nil {
		e.PresentationFlowScore = oa.PresentationFlowScore
		e.CompletenessScore = oa.CompletenessScore
		e.ConsistencyScore = oa.ConsistencyScore
	}
	return e
}

// Judgment is what the judge returned for one request: the decoded verdict and
// the payload it was decoded from.
type Judgment struct {
	Verdict *Verdict
	Raw     []byte
}
