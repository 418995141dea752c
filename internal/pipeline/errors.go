package pipeline

import (
	"errors"
	"fmt"

	"github.com/okian/pitchjudge/internal/adapters/repository"
	"github.com/okian/pitchjudge/internal/domain/model"
	"github.com/okian/pitchjudge/internal/domain/scoring"
)

// Contract violations raised by the stages themselves. They are retried up to
// the stage's cap.
var (
	ErrNoDocument     = fmt.Errorf("%w: submission has no document location", model.ErrContractViolation)
	ErrNoSlides       = fmt.Errorf("%w: no slide images", model.ErrContractViolation)
	ErrMissingWeights = fmt.Errorf("%w: domain has no weight distribution", model.ErrContractViolation)
	ErrNotReady       = errors.New("submission not ready for stage")
)

// errorClass decides whether a failed attempt is retried.
type errorClass string

const (
	classTransient errorClass = "transient"
	classContract  errorClass = "contract"
	classPermanent errorClass = "permanent"
)

// classify maps an error to its retry class. Missing rows are permanent since
// retrying cannot bring them back.
func classify(err error) errorClass {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return classPermanent
	case errors.Is(err, model.ErrContractViolation), errors.Is(err, scoring.ErrNoCriteria):
		return classContract
	default:
		return classTransient
	}
}
