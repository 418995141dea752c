package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/okian/pitchjudge/internal/adapters/http/api"
	"github.com/okian/pitchjudge/internal/adapters/mq/queue"
	"github.com/okian/pitchjudge/internal/adapters/repository"
	service "github.com/okian/pitchjudge/internal/app"
	"github.com/okian/pitchjudge/internal/domain/model"
	"github.com/okian/pitchjudge/internal/domain/types"
	"github.com/okian/pitchjudge/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

var logs bytes.Buffer

func init() {
	if err := logger.InitWithFormat(&logs, "json"); err != nil {
		panic(err)
	}
}

type mockDependencies struct {
	submitErr   error
	submitted   []types.SubmitRequest
	submissions map[string]types.Submission
	domains     []*model.Domain
	standings   map[string][]types.Standing
	rankErr     error
	rankCalls   []string
	health      types.Health
}

func newMockDependencies() *mockDependencies {
	return &mockDependencies{
		submissions: map[string]types.Submission{},
		standings:   map[string][]types.Standing{},
		health:      types.Health{Status: "ok", Queues: map[string]int{"ingest": 2}},
	}
}

func (m *mockDependencies) Submit(_ context.Context, req types.SubmitRequest) (*model.Submission, error) {
	if m.submitErr != nil {
		return nil, m.submitErr
	}
	m.submitted = append(m.submitted, req)
	return &model.Submission{
		ID:        "sub-1",
		DomainID:  req.DomainID,
		TeamName:  req.TeamName,
		Status:    model.StatusUploaded,
		CreatedAt: time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
	}, nil
}

func (m *mockDependencies) Submission(_ context.Context, id string) (types.Submission, error) {
	s, ok := m.submissions[id]
	if !ok {
		return types.Submission{}, fmt.Errorf("submission %s: %w", id, repository.ErrNotFound)
	}
	return s, nil
}

func (m *mockDependencies) Domains(context.Context) ([]*model.Domain, error) {
	return m.domains, nil
}

func (m *mockDependencies) Ranking(_ context.Context, domainID string) ([]types.Standing, error) {
	s, ok := m.standings[domainID]
	if !ok {
		return nil, fmt.Errorf("domain %s: %w", domainID, repository.ErrNotFound)
	}
	return s, nil
}

func (m *mockDependencies) RequestRank(_ context.Context, domainID string) error {
	if m.rankErr != nil {
		return m.rankErr
	}
	m.rankCalls = append(m.rankCalls, domainID)
	return nil
}

func (m *mockDependencies) Health(context.Context) types.Health {
	return m.health
}

func serve(h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, http.NoBody)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeError(w *httptest.ResponseRecorder) map[string]string {
	var out map[string]string
	So(json.Unmarshal(w.Body.Bytes(), &out), ShouldBeNil)
	return out
}

func TestSubmissions(t *testing.T) {
	Convey("Given an API server", t, func() {
		deps := newMockDependencies()
		h := api.NewServer(deps).Handler()

		Convey("When a valid submission is posted", func() {
			w := serve(h, http.MethodPost, "/submissions",
				`{"domain_id":"fintech","team_name":"Ledger","document":"/decks/ledger.pdf"}`)

			Convey("Then it is accepted with its id and status", func() {
				So(w.Code, ShouldEqual, http.StatusCreated)
				So(w.Header().Get("Content-Type"), ShouldEqual, "application/json; charset=utf-8")

				var out map[string]any
				So(json.Unmarshal(w.Body.Bytes(), &out), ShouldBeNil)
				So(out["id"], ShouldEqual, "sub-1")
				So(out["status"], ShouldEqual, "uploaded")
				So(out["domain_id"], ShouldEqual, "fintech")
				So(deps.submitted, ShouldHaveLength, 1)
				So(deps.submitted[0].Document, ShouldEqual, "/decks/ledger.pdf")
			})
		})

		Convey("When the body is not JSON", func() {
			w := serve(h, http.MethodPost, "/submissions", `{not json`)

			Convey("Then it is rejected as a bad request", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				So(decodeError(w)["code"], ShouldEqual, "bad_request")
				So(deps.submitted, ShouldBeEmpty)
			})
		})

		Convey("When the body has unknown fields", func() {
			w := serve(h, http.MethodPost, "/submissions", `{"domain_id":"fintech","extra":1}`)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When the service rejects the request", func() {
			deps.submitErr = fmt.Errorf("%w: team_name required", service.ErrInvalidRequest)
			w := serve(h, http.MethodPost, "/submissions", `{"domain_id":"fintech"}`)

			So(w.Code, ShouldEqual, http.StatusBadRequest)
			So(decodeError(w)["message"], ShouldContainSubstring, "team_name required")
		})

		Convey("When the domain does not exist", func() {
			deps.submitErr = fmt.Errorf("domain nope: %w", repository.ErrNotFound)
			w := serve(h, http.MethodPost, "/submissions", `{"domain_id":"nope","team_name":"x","document":"d"}`)

			So(w.Code, ShouldEqual, http.StatusNotFound)
			So(decodeError(w)["code"], ShouldEqual, "not_found")
		})

		Convey("When the domain is inactive", func() {
			deps.submitErr = fmt.Errorf("domain old: %w", repository.ErrInactive)
			w := serve(h, http.MethodPost, "/submissions", `{"domain_id":"old","team_name":"x","document":"d"}`)

			So(w.Code, ShouldEqual, http.StatusConflict)
			So(decodeError(w)["code"], ShouldEqual, "inactive_domain")
		})

		Convey("When the ingest queue is closed", func() {
			deps.submitErr = fmt.Errorf("schedule ingest: %w", queue.ErrClosed)
			w := serve(h, http.MethodPost, "/submissions", `{"domain_id":"fintech","team_name":"x","document":"d"}`)

			So(w.Code, ShouldEqual, http.StatusServiceUnavailable)
		})

		Convey("When the store fails", func() {
			deps.submitErr = fmt.Errorf("connection reset")
			w := serve(h, http.MethodPost, "/submissions", `{"domain_id":"fintech","team_name":"x","document":"d"}`)

			So(w.Code, ShouldEqual, http.StatusInternalServerError)
			So(decodeError(w)["code"], ShouldEqual, "internal_error")
		})

		Convey("When a known submission is fetched", func() {
			score := 72.5
			rank := 1
			deps.submissions["sub-9"] = types.Submission{
				ID:              "sub-9",
				DomainID:        "fintech",
				Status:          "completed",
				NormalizedScore: &score,
				Rank:            &rank,
			}
			w := serve(h, http.MethodGet, "/submissions/sub-9", "")

			Convey("Then its view is returned", func() {
				So(w.Code, ShouldEqual, http.StatusOK)

				var out types.Submission
				So(json.Unmarshal(w.Body.Bytes(), &out), ShouldBeNil)
				So(out.Status, ShouldEqual, "completed")
				So(*out.NormalizedScore, ShouldEqual, 72.5)
				So(*out.Rank, ShouldEqual, 1)
			})
		})

		Convey("When an unknown submission is fetched", func() {
			w := serve(h, http.MethodGet, "/submissions/missing", "")
			So(w.Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("When submissions are read with the wrong method", func() {
			w := serve(h, http.MethodDelete, "/submissions/sub-9", "")
			So(w.Code, ShouldEqual, http.StatusMethodNotAllowed)
		})
	})
}

func TestDomains(t *testing.T) {
	Convey("Given an API server with domains", t, func() {
		deps := newMockDependencies()
		deps.domains = []*model.Domain{
			{ID: "healthtech", Name: "HealthTech", Weights: map[string]float64{"impact": 1}, IsActive: true},
			{ID: "fintech", Name: "FinTech", Weights: map[string]float64{"innovation": 1}, IsActive: true},
		}
		rank := 1
		pct := 100.0
		deps.standings["fintech"] = []types.Standing{
			{Rank: &rank, SubmissionID: "a", TeamName: "Ledger", WeightedTotal: 8.2, NormalizedScore: 82, Percentile: &pct, Grade: "A-"},
			{SubmissionID: "b", TeamName: "Late", WeightedTotal: 6, NormalizedScore: 60, Grade: "C"},
		}
		deps.standings["healthtech"] = nil
		h := api.NewServer(deps).Handler()

		Convey("When domains are listed", func() {
			w := serve(h, http.MethodGet, "/domains", "")

			Convey("Then they come back sorted by id", func() {
				So(w.Code, ShouldEqual, http.StatusOK)

				var out []map[string]any
				So(json.Unmarshal(w.Body.Bytes(), &out), ShouldBeNil)
				So(out, ShouldHaveLength, 2)
				So(out[0]["id"], ShouldEqual, "fintech")
				So(out[1]["id"], ShouldEqual, "healthtech")
				So(out[0]["active"], ShouldBeTrue)
			})
		})

		Convey("When a ranking is requested", func() {
			w := serve(h, http.MethodGet, "/domains/fintech/ranking", "")

			Convey("Then ranked entries come first and unranked ones have null rank", func() {
				So(w.Code, ShouldEqual, http.StatusOK)

				var out struct {
					DomainID  string           `json:"domain_id"`
					Standings []map[string]any `json:"standings"`
				}
				So(json.Unmarshal(w.Body.Bytes(), &out), ShouldBeNil)
				So(out.DomainID, ShouldEqual, "fintech")
				So(out.Standings, ShouldHaveLength, 2)
				So(out.Standings[0]["rank"], ShouldEqual, float64(1))
				So(out.Standings[1]["rank"], ShouldBeNil)
				So(out.Standings[1]["percentile"], ShouldBeNil)
			})
		})

		Convey("When a domain has no standings", func() {
			w := serve(h, http.MethodGet, "/domains/healthtech/ranking", "")

			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `"standings":[]`)
		})

		Convey("When the ranking of an unknown domain is requested", func() {
			w := serve(h, http.MethodGet, "/domains/nope/ranking", "")
			So(w.Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("When a recomputation is requested", func() {
			w := serve(h, http.MethodPost, "/domains/fintech/rank", "")

			Convey("Then it is scheduled", func() {
				So(w.Code, ShouldEqual, http.StatusAccepted)
				So(w.Body.String(), ShouldContainSubstring, `"status":"scheduled"`)
				So(deps.rankCalls, ShouldResemble, []string{"fintech"})
			})
		})

		Convey("When a recomputation is requested for an unknown domain", func() {
			deps.rankErr = fmt.Errorf("domain nope: %w", repository.ErrNotFound)
			w := serve(h, http.MethodPost, "/domains/nope/rank", "")
			So(w.Code, ShouldEqual, http.StatusNotFound)
		})
	})
}

func TestHealthAndMetrics(t *testing.T) {
	Convey("Given an API server", t, func() {
		deps := newMockDependencies()
		h := api.NewServer(deps).Handler()

		Convey("When the service is running", func() {
			w := serve(h, http.MethodGet, "/healthz", "")

			Convey("Then health reports queue depths", func() {
				So(w.Code, ShouldEqual, http.StatusOK)

				var out types.Health
				So(json.Unmarshal(w.Body.Bytes(), &out), ShouldBeNil)
				So(out.Status, ShouldEqual, "ok")
				So(out.Queues["ingest"], ShouldEqual, 2)
			})
		})

		Convey("When the service is stopped", func() {
			deps.health.Status = "stopped"
			w := serve(h, http.MethodGet, "/healthz", "")
			So(w.Code, ShouldEqual, http.StatusServiceUnavailable)
		})

		Convey("When metrics are scraped after traffic", func() {
			serve(h, http.MethodGet, "/submissions/missing", "")
			w := serve(h, http.MethodGet, "/metrics", "")

			Convey("Then request metrics are labelled by route template", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Body.String(), ShouldContainSubstring, `/submissions/{id}`)
				So(w.Body.String(), ShouldNotContainSubstring, `endpoint="/submissions/missing"`)
			})
		})

		Convey("When an unknown path is requested", func() {
			w := serve(h, http.MethodGet, "/unknown", "")
			So(w.Code, ShouldEqual, http.StatusNotFound)
		})
	})
}

func TestRequestID(t *testing.T) {
	Convey("Given an API server", t, func() {
		deps := newMockDependencies()
		h := api.NewServer(deps).Handler()

		Convey("When the caller sends no request id", func() {
			w := serve(h, http.MethodGet, "/healthz", "")

			Convey("Then one is minted and echoed", func() {
				So(w.Header().Get(api.RequestIDHeader), ShouldHaveLength, 36)
			})
		})

		Convey("When the caller sends a request id", func() {
			req := httptest.NewRequest(http.MethodGet, "/domains", http.NoBody)
			req.Header.Set(api.RequestIDHeader, "trace-42")
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)

			Convey("Then it is reused", func() {
				So(w.Header().Get(api.RequestIDHeader), ShouldEqual, "trace-42")
			})
		})

		Convey("When a request fails with a server error", func() {
			logs.Reset()
			deps.rankErr = fmt.Errorf("store down")
			req := httptest.NewRequest(http.MethodPost, "/domains/fintech/rank", http.NoBody)
			req.Header.Set(api.RequestIDHeader, "trace-500")
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)

			Convey("Then the failure is logged with the request id and route", func() {
				So(w.Code, ShouldEqual, http.StatusInternalServerError)
				So(logs.String(), ShouldContainSubstring, `"request_id":"trace-500"`)
				So(logs.String(), ShouldContainSubstring, `"endpoint":"/domains/{id}/rank"`)
			})
		})
	})
}
