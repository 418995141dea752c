package pipeline

import (
	"context"

	"github.com/okian/pitchjudge/internal/adapters/mq/worker"
	"github.com/okian/pitchjudge/internal/domain/model"
	"github.com/okian/pitchjudge/internal/domain/ranking"
	"github.com/okian/pitchjudge/pkg/logger"
)

// Rank recomputes placements for every completed submission in a domain.
// The whole domain is recomputed on each run, so repeated runs converge.
func (p *Pipeline) Rank(ctx context.Context, t model.Task) worker.Outcome { //nolint:gocritic // hugeParam: tasks are passed by value
	p.enqueue.RankStarted(ctx, t.Subject)

	placements, err := p.RankDomain(ctx, t.Subject)
	if err != nil {
		return p.fail(ctx, failure{task: t, err: err})
	}
	if len(placements) == 0 {
		p.logger.Info(ctx, "no completed submissions to rank", logger.String("domain_id", t.Subject))
	}
	return worker.Done()
}

// RankDomain recomputes and stores the ranking of domainID and returns it.
// An empty domain yields no placements and no error. Concurrent calls for
// one domain, from workers in any process or from RankNow, are serialized
// by the store.
func (p *Pipeline) RankDomain(ctx context.Context, domainID string) ([]model.Placement, error) {
	placements, err := p.store.RecomputeRanking(ctx, domainID, rankScores)
	if err != nil {
		return nil, err
	}
	if len(placements) > 0 {
		p.logger.Info(ctx, "domain ranked",
			logger.String("domain_id", domainID),
			logger.Int("submissions", len(placements)),
		)
	}
	return placements, nil
}

func rankScores(scores []*model.Score) []model.Placement {
	candidates := make([]ranking.Candidate, len(scores))
	for i, sc := range scores {
		candidates[i] = ranking.Candidate{SubmissionID: sc.SubmissionID, WeightedTotal: sc.WeightedTotal}
	}
	return ranking.Compute(candidates)
}
