package service_test

import (
	"context"
	"sync"
	"time"

	"github.com/okian/pitchjudge/internal/adapters/mq/queue"
	"github.com/okian/pitchjudge/internal/adapters/repository"
	service "github.com/okian/pitchjudge/internal/app"
	"github.com/okian/pitchjudge/internal/domain/model"
	"github.com/okian/pitchjudge/internal/ratelimit"
	"github.com/okian/pitchjudge/pkg/logger"
)

func init() {
	// Initialize logging for tests
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

type passFetcher struct{}

func (passFetcher) Fetch(_ context.Context, location, _ string) (string, error) { return location, nil }

// deckRenderer renders a document named "deck-N" into a single slide named
// after it, so the judge can tell submissions apart.
type deckRenderer struct {
	mu    sync.Mutex
	byDir map[string][]string
}

func newDeckRenderer() *deckRenderer { return &deckRenderer{byDir: map[string][]string{}} }

func (r *deckRenderer) Render(_ context.Context, doc, dir string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byDir[dir] = []string{doc + ".png"}
	return r.byDir[dir], nil
}

func (r *deckRenderer) Slides(dir string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.byDir[dir], nil
}

// scriptedJudge scores every criterion of a deck with scores[slide].
type scriptedJudge struct {
	mu     sync.Mutex
	scores map[string]float64
	calls  int
}

func (j *scriptedJudge) Analyze(_ context.Context, images []string, d *model.Domain) (model.Judgment, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.calls++
	criteria := make(map[string]float64, len(d.Weights))
	for c := range d.Weights {
		criteria[c] = j.scores[images[0]]
	}
	return model.Judgment{
		Verdict: &model.Verdict{
			OverallAnalysis:  &model.OverallAnalysis{TotalSlidesAnalyzed: len(images)},
			CriteriaScores:   criteria,
			DetailedFeedback: &model.Feedback{Strengths: []string{"clear problem"}},
			ExecutiveSummary: ptr("solid"),
		},
		Raw: []byte(`{}`),
	}, nil
}

func (j *scriptedJudge) Calls() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.calls
}

func pitchDomain() *model.Domain {
	return &model.Domain{
		ID:          "fintech",
		Name:        "FinTech",
		Description: "Financial Technology Solutions",
		Criteria:    map[string]string{"innovation": "novelty", "business": "market"},
		Weights:     map[string]float64{"innovation": 0.5, "business": 0.5},
		IsActive:    true,
	}
}

type fixture struct {
	store   *repository.MemStore
	queues  map[model.Stage]queue.Queue
	limiter *ratelimit.Limiter
	judge   *scriptedJudge
	svc     *service.Service
}

func newFixture(opts ...service.Option) *fixture {
	f := &fixture{
		store:  repository.NewMemStore(),
		queues: map[model.Stage]queue.Queue{},
		judge:  &scriptedJudge{scores: map[string]float64{}},
	}
	for _, st := range model.Stages {
		f.queues[st] = queue.NewInMemoryQueue(st)
	}
	limiter, err := ratelimit.New(ratelimit.NewMemoryStore())
	if err != nil {
		panic(err)
	}
	f.limiter = limiter

	opts = append([]service.Option{
		service.WithWorkers(model.StageIngest, 1),
		service.WithWorkers(model.StageEvaluate, 1),
		service.WithWorkers(model.StageScore, 1),
		service.WithWorkers(model.StageRank, 1),
	}, opts...)
	svc, err := service.New(service.Components{
		Store:    f.store,
		Queues:   f.queues,
		Limiter:  f.limiter,
		Fetcher:  passFetcher{},
		Renderer: newDeckRenderer(),
		Judge:    f.judge,
	}, opts...)
	if err != nil {
		panic(err)
	}
	f.svc = svc
	return f
}

func waitFor(timeout time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return cond()
}

func ptr[T any](v T) *T { return &v }
