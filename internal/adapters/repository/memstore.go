package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/okian/pitchjudge/internal/domain/model"
)

// MemStore is an in-process Store. Every method copies on the way in and out,
// so callers never share memory with the store.
type MemStore struct {
	mu          sync.RWMutex
	domains     map[string]*model.Domain
	submissions map[string]*model.Submission
	evaluations map[string]*model.Evaluation // by submission id
	scores      map[string]*model.Score      // by submission id
	metrics     []model.Metric
}

// NewMemStore creates an empty store.
func NewMemStore() *MemStore {
	return &MemStore{
		domains:     make(map[string]*model.Domain),
		submissions: make(map[string]*model.Submission),
		evaluations: make(map[string]*model.Evaluation),
		scores:      make(map[string]*model.Score),
	}
}

func (m *MemStore) SaveDomain(_ context.Context, d *model.Domain) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := copyDomain(d)
	if existing, ok := m.domains[d.ID]; ok {
		c.CreatedAt = existing.CreatedAt
	} else if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	m.domains[d.ID] = c
	return nil
}

func (m *MemStore) GetDomain(_ context.Context, id string) (*model.Domain, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.domains[id]
	if !ok {
		return nil, fmt.Errorf("domain %s: %w", id, ErrNotFound)
	}
	return copyDomain(d), nil
}

func (m *MemStore) ListDomains(_ context.Context) ([]*model.Domain, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*model.Domain, 0, len(m.domains))
	for _, d := range m.domains {
		out = append(out, copyDomain(d))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemStore) CreateSubmission(_ context.Context, s *model.Submission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.domains[s.DomainID]
	if !ok {
		return fmt.Errorf("domain %s: %w", s.DomainID, ErrNotFound)
	}
	if !d.IsActive {
		return fmt.Errorf("domain %s: %w", s.DomainID, ErrInactive)
	}
	if _, ok := m.submissions[s.ID]; ok {
		return fmt.Errorf("submission %s: %w", s.ID, ErrDuplicate)
	}
	c := *s
	now := time.Now().UTC()
	c.Status = model.StatusUploaded
	c.CreatedAt, c.UpdatedAt = now, now
	m.submissions[s.ID] = &c
	*s = c
	return nil
}

func (m *MemStore) GetSubmission(_ context.Context, id string) (*model.Submission, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.submissions[id]
	if !ok {
		return nil, fmt.Errorf("submission %s: %w", id, ErrNotFound)
	}
	c := *s
	return &c, nil
}

func (m *MemStore) TransitionStatus(_ context.Context, id string, from []model.Status, to model.Status, patch SubmissionPatch) (*model.Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.submissions[id]
	if !ok {
		return nil, fmt.Errorf("submission %s: %w", id, ErrNotFound)
	}
	if !statusIn(s.Status, from) {
		return nil, fmt.Errorf("submission %s is %s: %w", id, s.Status, ErrConflict)
	}
	if !model.CanTransition(s.Status, to) {
		return nil, fmt.Errorf("submission %s %s -> %s: %w", id, s.Status, to, model.ErrInvalidTransition)
	}
	s.Status = to
	s.UpdatedAt = time.Now().UTC()
	if patch.SlideDir != nil {
		s.SlideDir = *patch.SlideDir
	}
	if patch.SlideCount != nil {
		s.SlideCount = *patch.SlideCount
	}
	if patch.ErrorMessage != nil {
		s.ErrorMessage = *patch.ErrorMessage
	}
	c := *s
	return &c, nil
}

func (m *MemStore) GetEvaluation(_ context.Context, submissionID string) (*model.Evaluation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.evaluations[submissionID]
	if !ok {
		return nil, fmt.Errorf("evaluation for %s: %w", submissionID, ErrNotFound)
	}
	return copyEvaluation(e), nil
}

func (m *MemStore) CompleteEvaluation(_ context.Context, e *model.Evaluation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.submissions[e.SubmissionID]
	if !ok {
		return fmt.Errorf("submission %s: %w", e.SubmissionID, ErrNotFound)
	}
	if _, ok := m.evaluations[e.SubmissionID]; ok {
		return fmt.Errorf("evaluation for %s: %w", e.SubmissionID, ErrDuplicate)
	}
	if s.Status != model.StatusEvaluating {
		return fmt.Errorf("submission %s is %s: %w", s.ID, s.Status, ErrConflict)
	}
	c := copyEvaluation(e)
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	m.evaluations[e.SubmissionID] = c
	s.Status = model.StatusEvaluated
	s.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MemStore) CompleteScore(_ context.Context, sc *model.Score, completedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.submissions[sc.SubmissionID]
	if !ok {
		return fmt.Errorf("submission %s: %w", sc.SubmissionID, ErrNotFound)
	}
	if !statusIn(s.Status, []model.Status{model.StatusEvaluated, model.StatusCompleted}) {
		return fmt.Errorf("submission %s is %s: %w", s.ID, s.Status, ErrConflict)
	}

	c := copyScore(sc)
	if prev, ok := m.scores[sc.SubmissionID]; ok {
		c.RankingPosition = prev.RankingPosition
		c.PercentileRank = prev.PercentileRank
	} else {
		c.RankingPosition, c.PercentileRank = nil, nil
	}
	m.scores[sc.SubmissionID] = c

	raw, weighted := sc.RawTotal, sc.WeightedTotal
	at := completedAt.UTC()
	s.TotalScore = &raw
	s.WeightedScore = &weighted
	s.CompletedAt = &at
	s.Status = model.StatusCompleted
	s.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MemStore) GetScore(_ context.Context, submissionID string) (*model.Score, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sc, ok := m.scores[submissionID]
	if !ok {
		return nil, fmt.Errorf("score for %s: %w", submissionID, ErrNotFound)
	}
	return copyScore(sc), nil
}

func (m *MemStore) RecomputeRanking(_ context.Context, domainID string, rank RankFunc) ([]model.Placement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.domains[domainID]; !ok {
		return nil, fmt.Errorf("domain %s: %w", domainID, ErrNotFound)
	}
	scores := m.completedLocked(domainID)
	if len(scores) == 0 {
		return nil, nil
	}
	placements := rank(scores)
	if err := m.applyRankingLocked(domainID, placements); err != nil {
		return nil, err
	}
	return placements, nil
}

func (m *MemStore) completedLocked(domainID string) []*model.Score {
	subs := make([]*model.Submission, 0)
	for _, s := range m.submissions {
		if s.DomainID == domainID && s.Status == model.StatusCompleted {
			if _, ok := m.scores[s.ID]; ok {
				subs = append(subs, s)
			}
		}
	}
	sort.Slice(subs, func(i, j int) bool {
		a, b := completedAt(subs[i]), completedAt(subs[j])
		if !a.Equal(b) {
			return a.Before(b)
		}
		return subs[i].ID < subs[j].ID
	})

	out := make([]*model.Score, len(subs))
	for i, s := range subs {
		out[i] = copyScore(m.scores[s.ID])
	}
	return out
}

// applyRankingLocked validates every placement before writing any, so a
// bad placement leaves the previous ranking intact.
func (m *MemStore) applyRankingLocked(domainID string, placements []model.Placement) error {
	for _, p := range placements {
		if _, ok := m.scores[p.SubmissionID]; !ok {
			return fmt.Errorf("score for %s: %w", p.SubmissionID, ErrNotFound)
		}
		if s, ok := m.submissions[p.SubmissionID]; !ok || s.DomainID != domainID {
			return fmt.Errorf("submission %s in domain %s: %w", p.SubmissionID, domainID, ErrNotFound)
		}
	}
	for _, p := range placements {
		rank, pct := p.Rank, p.Percentile
		m.scores[p.SubmissionID].RankingPosition = &rank
		m.scores[p.SubmissionID].PercentileRank = &pct
		mirrored := p.Rank
		m.submissions[p.SubmissionID].RankingPosition = &mirrored
	}
	return nil
}

func (m *MemStore) Standings(_ context.Context, domainID string) ([]Standing, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Standing, 0)
	for _, s := range m.submissions {
		if s.DomainID != domainID || s.Status != model.StatusCompleted {
			continue
		}
		sc, ok := m.scores[s.ID]
		if !ok {
			continue
		}
		out = append(out, standingOf(s, copyScore(sc)))
	}
	sortStandings(out)
	return out, nil
}

func (m *MemStore) RecordMetric(_ context.Context, mt model.Metric) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if mt.Timestamp.IsZero() {
		mt.Timestamp = time.Now().UTC()
	}
	m.metrics = append(m.metrics, mt)
	return nil
}

func (m *MemStore) ListMetrics(_ context.Context, name string, limit int) ([]model.Metric, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.Metric, 0)
	for i := len(m.metrics) - 1; i >= 0; i-- {
		if name != "" && m.metrics[i].Name != name {
			continue
		}
		out = append(out, m.metrics[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *MemStore) Close() error { return nil }

func completedAt(s *model.Submission) time.Time {
	if s.CompletedAt == nil {
		return time.Time{}
	}
	return *s.CompletedAt
}

func standingOf(s *model.Submission, sc *model.Score) Standing {
	return Standing{
		SubmissionID:    s.ID,
		TeamName:        s.TeamName,
		Rank:            sc.RankingPosition,
		Percentile:      sc.PercentileRank,
		WeightedTotal:   sc.WeightedTotal,
		NormalizedScore: sc.NormalizedScore,
		Grade:           sc.Grade,
	}
}

// sortStandings puts ranked rows first by rank, then unranked rows by score.
func sortStandings(rows []Standing) {
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		switch {
		case a.Rank != nil && b.Rank != nil:
			return *a.Rank < *b.Rank
		case a.Rank != nil:
			return true
		case b.Rank != nil:
			return false
		}
		if a.WeightedTotal != b.WeightedTotal {
			return a.WeightedTotal > b.WeightedTotal
		}
		return a.SubmissionID < b.SubmissionID
	})
}

func copyDomain(d *model.Domain) *model.Domain {
	c := *d
	c.Criteria = make(map[string]string, len(d.Criteria))
	for k, v := range d.Criteria {
		c.Criteria[k] = v
	}
	c.Weights = make(map[string]float64, len(d.Weights))
	for k, v := range d.Weights {
		c.Weights[k] = v
	}
	return &c
}

func copyEvaluation(e *model.Evaluation) *model.Evaluation {
	c := *e
	c.CriteriaScores = make(map[string]float64, len(e.CriteriaScores))
	for k, v := range e.CriteriaScores {
		c.CriteriaScores[k] = v
	}
	c.SlideNotes = append([]model.SlideNote(nil), e.SlideNotes...)
	c.Raw = append([]byte(nil), e.Raw...)
	return &c
}

func copyScore(sc *model.Score) *model.Score {
	c := *sc
	c.CriteriaBreakdown = make(map[string]float64, len(sc.CriteriaBreakdown))
	for k, v := range sc.CriteriaBreakdown {
		c.CriteriaBreakdown[k] = v
	}
	c.WeightedBreakdown = make(map[string]float64, len(sc.WeightedBreakdown))
	for k, v := range sc.WeightedBreakdown {
		c.WeightedBreakdown[k] = v
	}
	if sc.RankingPosition != nil {
		r := *sc.RankingPosition
		c.RankingPosition = &r
	}
	if sc.PercentileRank != nil {
		p := *sc.PercentileRank
		c.PercentileRank = &p
	}
	return &c
}
