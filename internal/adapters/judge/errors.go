package judge

import (
	"errors"
	"fmt"

	"github.com/okian/pitchjudge/internal/domain/model"
)

var (
	// ErrNoImages is returned when Analyze is called without slides.
	ErrNoImages = errors.New("no slide images to analyze")
	// ErrEmptyResponse is returned when the provider answers without candidate text.
	ErrEmptyResponse = fmt.Errorf("%w: empty response", model.ErrContractViolation)
	// ErrNoJSON is returned when the answer carries no JSON object.
	ErrNoJSON = fmt.Errorf("%w: no JSON object in response", model.ErrContractViolation)
)

// ProviderError is a non-200 answer from the judge's API.
type ProviderError struct {
	StatusCode int    `json:"status_code"`
	Status     string `json:"status"`
	Message    string `json:"message"`
}

// Error returns the status code and the provider's message.
func (e *ProviderError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("gemini error (status %d %s): %s", e.StatusCode, e.Status, e.Message)
	}
	return fmt.Sprintf("gemini error (status %d): %s", e.StatusCode, e.Message)
}
