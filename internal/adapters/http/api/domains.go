package api

import (
	"context"
	"net/http"
	"sort"

	"github.com/gorilla/mux"
	"github.com/okian/pitchjudge/internal/domain/model"
	"github.com/okian/pitchjudge/internal/domain/types"
)

// DomainDependencies defines the interface for domain and ranking operations.
type DomainDependencies interface {
	Domains(ctx context.Context) ([]*model.Domain, error)
	Ranking(ctx context.Context, domainID string) ([]types.Standing, error)
	RequestRank(ctx context.Context, domainID string) error
}

// DomainHandler handles domain listing and ranking requests.
type DomainHandler struct {
	deps DomainDependencies
}

// NewDomainHandler creates a new domain handler.
func NewDomainHandler(deps DomainDependencies) *DomainHandler {
	return &DomainHandler{deps: deps}
}

type domainResponse struct {
	ID          string             `json:"id"`
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Criteria    map[string]string  `json:"criteria"`
	Weights     map[string]float64 `json:"weights"`
	Active      bool               `json:"active"`
}

type rankingResponse struct {
	DomainID  string           `json:"domain_id"`
	Standings []types.Standing `json:"standings"`
}

type rankAccepted struct {
	DomainID string `json:"domain_id"`
	Status   string `json:"status"`
}

// HandleList handles GET /domains requests.
func (h *DomainHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	domains, err := h.deps.Domains(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	out := make([]domainResponse, 0, len(domains))
	for _, d := range domains {
		out = append(out, domainResponse{
			ID:          d.ID,
			Name:        d.Name,
			Description: d.Description,
			Criteria:    d.Criteria,
			Weights:     d.Weights,
			Active:      d.IsActive,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	writeJSON(w, http.StatusOK, out)
}

// HandleRank handles POST /domains/{id}/rank requests. The recomputation runs
// asynchronously; repeated requests while one is pending are coalesced.
func (h *DomainHandler) HandleRank(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.deps.RequestRank(r.Context(), id); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, rankAccepted{DomainID: id, Status: "scheduled"})
}

// HandleRanking handles GET /domains/{id}/ranking requests.
func (h *DomainHandler) HandleRanking(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	standings, err := h.deps.Ranking(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if standings == nil {
		standings = []types.Standing{}
	}
	writeJSON(w, http.StatusOK, rankingResponse{DomainID: id, Standings: standings})
}
