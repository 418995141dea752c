// Package api exposes the submission and ranking service over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/okian/pitchjudge/internal/adapters/mq/queue"
	"github.com/okian/pitchjudge/internal/adapters/repository"
	service "github.com/okian/pitchjudge/internal/app"
	"github.com/okian/pitchjudge/internal/domain/model"
	"github.com/okian/pitchjudge/internal/domain/types"
	"github.com/okian/pitchjudge/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Dependencies required by HTTP handlers. *service.Service satisfies it.
type Dependencies interface {
	Submit(ctx context.Context, req types.SubmitRequest) (*model.Submission, error)
	Submission(ctx context.Context, id string) (types.Submission, error)
	Domains(ctx context.Context) ([]*model.Domain, error)
	Ranking(ctx context.Context, domainID string) ([]types.Standing, error)
	RequestRank(ctx context.Context, domainID string) error
	Health(ctx context.Context) types.Health
}

var _ Dependencies = (*service.Service)(nil)

// Server wires HTTP routes for the business API.
type Server struct {
	health      *HealthHandler
	submissions *SubmissionHandler
	domains     *DomainHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies) *Server {
	return &Server{
		health:      NewHealthHandler(deps),
		submissions: NewSubmissionHandler(deps),
		domains:     NewDomainHandler(deps),
	}
}

// Register attaches all HTTP routes to r.
func (s *Server) Register(r *mux.Router) {
	r.Use(RequestIDMiddleware, MetricsMiddleware)

	r.HandleFunc("/healthz", s.health.HandleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{})).Methods(http.MethodGet)

	r.HandleFunc("/submissions", s.submissions.HandleCreate).Methods(http.MethodPost)
	r.HandleFunc("/submissions/{id}", s.submissions.HandleGet).Methods(http.MethodGet)

	r.HandleFunc("/domains", s.domains.HandleList).Methods(http.MethodGet)
	r.HandleFunc("/domains/{id}/rank", s.domains.HandleRank).Methods(http.MethodPost)
	r.HandleFunc("/domains/{id}/ranking", s.domains.HandleRanking).Methods(http.MethodGet)
}

// Handler returns a router with every route registered.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	s.Register(r)
	return r
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeServiceError maps service errors onto status codes.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidRequest), errors.Is(err, ErrBadRequest), errors.Is(err, ErrMissingID):
		writeError(w, http.StatusBadRequest, "bad_request", err)
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err)
	case errors.Is(err, repository.ErrInactive):
		writeError(w, http.StatusConflict, "inactive_domain", err)
	case errors.Is(err, queue.ErrClosed), errors.Is(err, queue.ErrFull):
		writeError(w, http.StatusServiceUnavailable, "unavailable", err)
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err)
	}
}
