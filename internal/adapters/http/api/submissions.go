package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/okian/pitchjudge/internal/domain/model"
	"github.com/okian/pitchjudge/internal/domain/types"
)

const maxSubmitBody = 1 << 20

// SubmissionDependencies defines the interface for submission operations.
type SubmissionDependencies interface {
	Submit(ctx context.Context, req types.SubmitRequest) (*model.Submission, error)
	Submission(ctx context.Context, id string) (types.Submission, error)
}

// SubmissionHandler handles submission requests.
type SubmissionHandler struct {
	deps SubmissionDependencies
}

// NewSubmissionHandler creates a new submission handler.
func NewSubmissionHandler(deps SubmissionDependencies) *SubmissionHandler {
	return &SubmissionHandler{deps: deps}
}

type submitResponse struct {
	ID        string    `json:"id"`
	DomainID  string    `json:"domain_id"`
	TeamName  string    `json:"team_name"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// HandleCreate handles POST /submissions requests.
func (h *SubmissionHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req types.SubmitRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSubmitBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeServiceError(w, fmt.Errorf("%w: %w", ErrBadRequest, err))
		return
	}

	sub, err := h.deps.Submit(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, submitResponse{
		ID:        sub.ID,
		DomainID:  sub.DomainID,
		TeamName:  sub.TeamName,
		Status:    string(sub.Status),
		CreatedAt: sub.CreatedAt,
	})
}

// HandleGet handles GET /submissions/{id} requests.
func (h *SubmissionHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if id == "" {
		writeServiceError(w, ErrMissingID)
		return
	}
	view, err := h.deps.Submission(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}
