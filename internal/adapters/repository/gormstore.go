package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/okian/pitchjudge/internal/domain/model"
	"github.com/okian/pitchjudge/pkg/logger"
)

type domainRecord struct {
	ID          string             `gorm:"column:id;primaryKey"`
	Name        string             `gorm:"column:name;not null"`
	Description string             `gorm:"column:description"`
	Criteria    map[string]string  `gorm:"column:judging_criteria;serializer:json"`
	Weights     map[string]float64 `gorm:"column:weight_distribution;serializer:json"`
	IsActive    bool               `gorm:"column:is_active"`
	CreatedAt   time.Time          `gorm:"column:created_at"`
}

func (domainRecord) TableName() string { return "domains" }

type submissionRecord struct {
	ID               string     `gorm:"column:id;primaryKey"`
	DomainID         string     `gorm:"column:domain_id;index;not null"`
	TeamName         string     `gorm:"column:team_name"`
	DocumentLocation string     `gorm:"column:document_location"`
	Status           string     `gorm:"column:status;index;not null"`
	SlideDir         string     `gorm:"column:slide_dir"`
	SlideCount       int        `gorm:"column:slide_count"`
	TotalScore       *float64   `gorm:"column:total_score"`
	WeightedScore    *float64   `gorm:"column:weighted_score"`
	RankingPosition  *int       `gorm:"column:ranking_position"`
	ErrorMessage     string     `gorm:"column:error_message"`
	CreatedAt        time.Time  `gorm:"column:created_at"`
	UpdatedAt        time.Time  `gorm:"column:updated_at"`
	CompletedAt      *time.Time `gorm:"column:evaluation_completed_at"`
}

func (submissionRecord) TableName() string { return "submissions" }

type evaluationRecord struct {
	ID                string             `gorm:"column:id;primaryKey"`
	SubmissionID      string             `gorm:"column:submission_id;uniqueIndex;not null"`
	CriteriaScores    map[string]float64 `gorm:"column:criteria_scores;serializer:json"`
	FlowScore         *float64           `gorm:"column:presentation_flow_score"`
	CompletenessScore *float64           `gorm:"column:completeness_score"`
	ConsistencyScore  *float64           `gorm:"column:consistency_score"`
	Feedback          model.Feedback     `gorm:"column:detailed_feedback;serializer:json"`
	SlideNotes        []model.SlideNote  `gorm:"column:slide_notes;serializer:json"`
	ExecutiveSummary  string             `gorm:"column:executive_summary"`
	SlideCount        int                `gorm:"column:slide_count"`
	ProcessingMS      int64              `gorm:"column:processing_time_ms"`
	Raw               datatypes.JSON     `gorm:"column:raw_response"`
	CreatedAt         time.Time          `gorm:"column:created_at"`
}

func (evaluationRecord) TableName() string { return "submission_evaluations" }

type scoreRecord struct {
	SubmissionID       string             `gorm:"column:submission_id;primaryKey"`
	DomainID           string             `gorm:"column:domain_id;index"`
	CriteriaBreakdown  map[string]float64 `gorm:"column:criteria_breakdown;serializer:json"`
	WeightedBreakdown  map[string]float64 `gorm:"column:weighted_breakdown;serializer:json"`
	RawTotal           float64            `gorm:"column:raw_total"`
	WeightedTotal      float64            `gorm:"column:weighted_total"`
	NormalizedScore    float64            `gorm:"column:normalized_score"`
	QualityBonus       float64            `gorm:"column:presentation_quality_bonus"`
	ConsistencyPenalty float64            `gorm:"column:consistency_penalty"`
	Grade              string             `gorm:"column:grade_letter"`
	RankingPosition    *int               `gorm:"column:ranking_position"`
	PercentileRank     *float64           `gorm:"column:percentile_rank"`
	CalculatedAt       time.Time          `gorm:"column:calculated_at"`
}

func (scoreRecord) TableName() string { return "submission_scores" }

type metricRecord struct {
	ID         uint64         `gorm:"column:id;primaryKey;autoIncrement"`
	Name       string         `gorm:"column:metric_name;index;not null"`
	Value      float64        `gorm:"column:metric_value"`
	Unit       string         `gorm:"column:metric_unit"`
	Context    datatypes.JSON `gorm:"column:context"`
	RecordedAt time.Time      `gorm:"column:recorded_at;index"`
}

func (metricRecord) TableName() string { return "system_metrics" }

const pingTimeout = 5 * time.Second

// OpenPostgres connects to PostgreSQL and verifies the connection.
func OpenPostgres(ctx context.Context, dsn string) (*gorm.DB, error) {
	if dsn == "" {
		return nil, errors.New("postgres dsn is required")
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("open gorm postgres: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("resolve postgres sql db handle: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// GormStore implements Store on a relational database through gorm.
type GormStore struct {
	db     *gorm.DB
	logger logger.Logger

	// rankLocks serializes ranking per domain inside this process; the row
	// lock on the domain covers other processes on postgres.
	rankLocks sync.Map // domain id -> *sync.Mutex
}

// NewGormStore wraps an open gorm handle.
func NewGormStore(db *gorm.DB, log logger.Logger) *GormStore {
	if log == nil {
		log = logger.Get().Named("repository")
	}
	return &GormStore{db: db, logger: log}
}

// Migrate creates or updates the schema.
func (s *GormStore) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(
		&domainRecord{}, &submissionRecord{}, &evaluationRecord{}, &scoreRecord{}, &metricRecord{},
	); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func (s *GormStore) SaveDomain(ctx context.Context, d *model.Domain) error {
	row := domainRecord{
		ID:          d.ID,
		Name:        d.Name,
		Description: d.Description,
		Criteria:    d.Criteria,
		Weights:     d.Weights,
		IsActive:    d.IsActive,
		CreatedAt:   d.CreatedAt,
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"name", "description", "judging_criteria", "weight_distribution", "is_active",
		}),
	}).Create(&row).Error
	if err != nil {
		return s.logError(ctx, "save domain failed", err, "domain_id", d.ID)
	}
	return nil
}

func (s *GormStore) GetDomain(ctx context.Context, id string) (*model.Domain, error) {
	var row domainRecord
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("domain %s: %w", id, ErrNotFound)
		}
		return nil, s.logError(ctx, "get domain failed", err, "domain_id", id)
	}
	return row.toModel(), nil
}

func (s *GormStore) ListDomains(ctx context.Context) ([]*model.Domain, error) {
	var rows []domainRecord
	if err := s.db.WithContext(ctx).Order("id ASC").Find(&rows).Error; err != nil {
		return nil, s.logError(ctx, "list domains failed", err)
	}
	out := make([]*model.Domain, len(rows))
	for i := range rows {
		out[i] = rows[i].toModel()
	}
	return out, nil
}

func (s *GormStore) CreateSubmission(ctx context.Context, sub *model.Submission) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var d domainRecord
		if err := tx.Where("id = ?", sub.DomainID).First(&d).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("domain %s: %w", sub.DomainID, ErrNotFound)
			}
			return s.logError(ctx, "load domain failed", err, "domain_id", sub.DomainID)
		}
		if !d.IsActive {
			return fmt.Errorf("domain %s: %w", sub.DomainID, ErrInactive)
		}

		now := time.Now().UTC()
		row := submissionRecord{
			ID:               sub.ID,
			DomainID:         sub.DomainID,
			TeamName:         sub.TeamName,
			DocumentLocation: sub.DocumentLocation,
			Status:           string(model.StatusUploaded),
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		if err := tx.Create(&row).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return fmt.Errorf("submission %s: %w", sub.ID, ErrDuplicate)
			}
			return s.logError(ctx, "create submission failed", err, "submission_id", sub.ID)
		}
		*sub = *row.toModel()
		return nil
	})
}

func (s *GormStore) GetSubmission(ctx context.Context, id string) (*model.Submission, error) {
	row, err := s.loadSubmission(s.db.WithContext(ctx), id)
	if err != nil {
		return nil, err
	}
	return row.toModel(), nil
}

func (s *GormStore) loadSubmission(tx *gorm.DB, id string) (*submissionRecord, error) {
	var row submissionRecord
	if err := tx.Where("id = ?", id).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("submission %s: %w", id, ErrNotFound)
		}
		return nil, s.logError(tx.Statement.Context, "get submission failed", err, "submission_id", id)
	}
	return &row, nil
}

func (s *GormStore) TransitionStatus(ctx context.Context, id string, from []model.Status, to model.Status, patch SubmissionPatch) (*model.Submission, error) {
	var out *model.Submission
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := s.loadSubmission(tx, id)
		if err != nil {
			return err
		}
		current := model.Status(row.Status)
		if !statusIn(current, from) {
			return fmt.Errorf("submission %s is %s: %w", id, current, ErrConflict)
		}
		if !model.CanTransition(current, to) {
			return fmt.Errorf("submission %s %s -> %s: %w", id, current, to, model.ErrInvalidTransition)
		}

		updates := map[string]any{
			"status":     string(to),
			"updated_at": time.Now().UTC(),
		}
		if patch.SlideDir != nil {
			updates["slide_dir"] = *patch.SlideDir
		}
		if patch.SlideCount != nil {
			updates["slide_count"] = *patch.SlideCount
		}
		if patch.ErrorMessage != nil {
			updates["error_message"] = *patch.ErrorMessage
		}

		// Conditional on the status we read, so a concurrent writer loses.
		res := tx.Model(&submissionRecord{}).
			Where("id = ? AND status = ?", id, row.Status).
			Updates(updates)
		if res.Error != nil {
			return s.logError(ctx, "transition failed", res.Error, "submission_id", id, "to", string(to))
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("submission %s: %w", id, ErrConflict)
		}

		row, err = s.loadSubmission(tx, id)
		if err != nil {
			return err
		}
		out = row.toModel()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *GormStore) GetEvaluation(ctx context.Context, submissionID string) (*model.Evaluation, error) {
	var row evaluationRecord
	if err := s.db.WithContext(ctx).Where("submission_id = ?", submissionID).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("evaluation for %s: %w", submissionID, ErrNotFound)
		}
		return nil, s.logError(ctx, "get evaluation failed", err, "submission_id", submissionID)
	}
	return row.toModel(), nil
}

func (s *GormStore) CompleteEvaluation(ctx context.Context, e *model.Evaluation) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing int64
		if err := tx.Model(&evaluationRecord{}).Where("submission_id = ?", e.SubmissionID).Count(&existing).Error; err != nil {
			return s.logError(ctx, "check evaluation failed", err, "submission_id", e.SubmissionID)
		}
		if existing > 0 {
			return fmt.Errorf("evaluation for %s: %w", e.SubmissionID, ErrDuplicate)
		}

		row := evaluationRecordFrom(e)
		if err := tx.Create(&row).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return fmt.Errorf("evaluation for %s: %w", e.SubmissionID, ErrDuplicate)
			}
			return s.logError(ctx, "insert evaluation failed", err, "submission_id", e.SubmissionID)
		}

		res := tx.Model(&submissionRecord{}).
			Where("id = ? AND status = ?", e.SubmissionID, string(model.StatusEvaluating)).
			Updates(map[string]any{"status": string(model.StatusEvaluated), "updated_at": time.Now().UTC()})
		if res.Error != nil {
			return s.logError(ctx, "mark evaluated failed", res.Error, "submission_id", e.SubmissionID)
		}
		if res.RowsAffected == 0 {
			if _, err := s.loadSubmission(tx, e.SubmissionID); err != nil {
				return err
			}
			return fmt.Errorf("submission %s not evaluating: %w", e.SubmissionID, ErrConflict)
		}
		return nil
	})
}

func (s *GormStore) CompleteScore(ctx context.Context, sc *model.Score, completedAt time.Time) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row := scoreRecord{
			SubmissionID:       sc.SubmissionID,
			DomainID:           sc.DomainID,
			CriteriaBreakdown:  sc.CriteriaBreakdown,
			WeightedBreakdown:  sc.WeightedBreakdown,
			RawTotal:           sc.RawTotal,
			WeightedTotal:      sc.WeightedTotal,
			NormalizedScore:    sc.NormalizedScore,
			QualityBonus:       sc.QualityBonus,
			ConsistencyPenalty: sc.ConsistencyPenalty,
			Grade:              sc.Grade,
			CalculatedAt:       sc.CalculatedAt,
		}
		// Ranking columns are owned by RecomputeRanking and never overwritten here.
		err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "submission_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"domain_id", "criteria_breakdown", "weighted_breakdown", "raw_total", "weighted_total",
				"normalized_score", "presentation_quality_bonus", "consistency_penalty", "grade_letter", "calculated_at",
			}),
		}).Omit("ranking_position", "percentile_rank").Create(&row).Error
		if err != nil {
			return s.logError(ctx, "upsert score failed", err, "submission_id", sc.SubmissionID)
		}

		res := tx.Model(&submissionRecord{}).
			Where("id = ? AND status IN ?", sc.SubmissionID,
				[]string{string(model.StatusEvaluated), string(model.StatusCompleted)}).
			Updates(map[string]any{
				"status":                  string(model.StatusCompleted),
				"total_score":             sc.RawTotal,
				"weighted_score":          sc.WeightedTotal,
				"evaluation_completed_at": completedAt.UTC(),
				"updated_at":              time.Now().UTC(),
			})
		if res.Error != nil {
			return s.logError(ctx, "mark completed failed", res.Error, "submission_id", sc.SubmissionID)
		}
		if res.RowsAffected == 0 {
			if _, err := s.loadSubmission(tx, sc.SubmissionID); err != nil {
				return err
			}
			return fmt.Errorf("submission %s not evaluated: %w", sc.SubmissionID, ErrConflict)
		}
		return nil
	})
}

func (s *GormStore) GetScore(ctx context.Context, submissionID string) (*model.Score, error) {
	var row scoreRecord
	if err := s.db.WithContext(ctx).Where("submission_id = ?", submissionID).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("score for %s: %w", submissionID, ErrNotFound)
		}
		return nil, s.logError(ctx, "get score failed", err, "submission_id", submissionID)
	}
	return row.toModel(), nil
}

func (s *GormStore) RecomputeRanking(ctx context.Context, domainID string, rank RankFunc) ([]model.Placement, error) {
	mu, _ := s.rankLocks.LoadOrStore(domainID, &sync.Mutex{})
	mu.(*sync.Mutex).Lock()
	defer mu.(*sync.Mutex).Unlock()

	var placements []model.Placement
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx
		if tx.Dialector.Name() == "postgres" {
			q = q.Clauses(clause.Locking{Strength: "UPDATE"})
		}
		var d domainRecord
		if err := q.Where("id = ?", domainID).First(&d).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("domain %s: %w", domainID, ErrNotFound)
			}
			return s.logError(ctx, "lock domain failed", err, "domain_id", domainID)
		}

		scores, err := s.completed(ctx, tx, domainID)
		if err != nil || len(scores) == 0 {
			return err
		}
		placements = rank(scores)
		return s.applyRanking(ctx, tx, domainID, placements)
	})
	if err != nil {
		return nil, err
	}
	return placements, nil
}

func (s *GormStore) completed(ctx context.Context, tx *gorm.DB, domainID string) ([]*model.Score, error) {
	var rows []scoreRecord
	err := tx.
		Table("submission_scores").
		Select("submission_scores.*").
		Joins("JOIN submissions ON submissions.id = submission_scores.submission_id").
		Where("submissions.domain_id = ? AND submissions.status = ?", domainID, string(model.StatusCompleted)).
		Order("submissions.evaluation_completed_at ASC").
		Order("submissions.id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, s.logError(ctx, "list completed failed", err, "domain_id", domainID)
	}
	out := make([]*model.Score, len(rows))
	for i := range rows {
		out[i] = rows[i].toModel()
	}
	return out, nil
}

func (s *GormStore) applyRanking(ctx context.Context, tx *gorm.DB, domainID string, placements []model.Placement) error {
	for _, p := range placements {
		res := tx.Model(&scoreRecord{}).
			Where("submission_id = ?", p.SubmissionID).
			Updates(map[string]any{"ranking_position": p.Rank, "percentile_rank": p.Percentile})
		if res.Error != nil {
			return s.logError(ctx, "rank score failed", res.Error, "submission_id", p.SubmissionID)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("score for %s: %w", p.SubmissionID, ErrNotFound)
		}
		res = tx.Model(&submissionRecord{}).
			Where("id = ? AND domain_id = ?", p.SubmissionID, domainID).
			Update("ranking_position", p.Rank)
		if res.Error != nil {
			return s.logError(ctx, "rank submission failed", res.Error, "submission_id", p.SubmissionID)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("submission %s in domain %s: %w", p.SubmissionID, domainID, ErrNotFound)
		}
	}
	return nil
}

func (s *GormStore) Standings(ctx context.Context, domainID string) ([]Standing, error) {
	type standingRow struct {
		SubmissionID    string
		TeamName        string
		RankingPosition *int
		PercentileRank  *float64
		WeightedTotal   float64
		NormalizedScore float64
		GradeLetter     string
	}
	var rows []standingRow
	err := s.db.WithContext(ctx).
		Table("submission_scores").
		Select("submissions.id AS submission_id, submissions.team_name, submission_scores.ranking_position, " +
			"submission_scores.percentile_rank, submission_scores.weighted_total, " +
			"submission_scores.normalized_score, submission_scores.grade_letter").
		Joins("JOIN submissions ON submissions.id = submission_scores.submission_id").
		Where("submissions.domain_id = ? AND submissions.status = ?", domainID, string(model.StatusCompleted)).
		Scan(&rows).Error
	if err != nil {
		return nil, s.logError(ctx, "standings failed", err, "domain_id", domainID)
	}
	out := make([]Standing, len(rows))
	for i, r := range rows {
		out[i] = Standing{
			SubmissionID:    r.SubmissionID,
			TeamName:        r.TeamName,
			Rank:            r.RankingPosition,
			Percentile:      r.PercentileRank,
			WeightedTotal:   r.WeightedTotal,
			NormalizedScore: r.NormalizedScore,
			Grade:           r.GradeLetter,
		}
	}
	sortStandings(out)
	return out, nil
}

func (s *GormStore) RecordMetric(ctx context.Context, m model.Metric) error {
	var raw datatypes.JSON
	if len(m.Context) > 0 {
		b, err := json.Marshal(m.Context)
		if err != nil {
			return fmt.Errorf("encode metric context: %w", err)
		}
		raw = datatypes.JSON(b)
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now().UTC()
	}
	row := metricRecord{Name: m.Name, Value: m.Value, Unit: m.Unit, Context: raw, RecordedAt: m.Timestamp}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return s.logError(ctx, "record metric failed", err, "metric", m.Name)
	}
	return nil
}

func (s *GormStore) ListMetrics(ctx context.Context, name string, limit int) ([]model.Metric, error) {
	q := s.db.WithContext(ctx).Model(&metricRecord{}).Order("id DESC")
	if name != "" {
		q = q.Where("metric_name = ?", name)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []metricRecord
	if err := q.Find(&rows).Error; err != nil {
		return nil, s.logError(ctx, "list metrics failed", err, "metric", name)
	}
	out := make([]model.Metric, len(rows))
	for i, r := range rows {
		out[i] = model.Metric{Name: r.Name, Value: r.Value, Unit: r.Unit, Timestamp: r.RecordedAt}
		if len(r.Context) > 0 {
			if err := json.Unmarshal(r.Context, &out[i].Context); err != nil {
				return nil, fmt.Errorf("decode metric context: %w", err)
			}
		}
	}
	return out, nil
}

// Close releases the underlying connection pool.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *GormStore) logError(ctx context.Context, msg string, err error, kv ...string) error {
	fields := make([]logger.Field, 0, len(kv)/2+1)
	for i := 0; i+1 < len(kv); i += 2 {
		fields = append(fields, logger.String(kv[i], kv[i+1]))
	}
	fields = append(fields, logger.Error(err))
	s.logger.Error(ctx, msg, fields...)
	return fmt.Errorf("%s: %w", msg, err)
}

func (r *domainRecord) toModel() *model.Domain {
	d := &model.Domain{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		Criteria:    r.Criteria,
		Weights:     r.Weights,
		IsActive:    r.IsActive,
		CreatedAt:   r.CreatedAt,
	}
	if d.Criteria == nil {
		d.Criteria = map[string]string{}
	}
	if d.Weights == nil {
		d.Weights = map[string]float64{}
	}
	return d
}

func (r *submissionRecord) toModel() *model.Submission {
	return &model.Submission{
		ID:               r.ID,
		DomainID:         r.DomainID,
		TeamName:         r.TeamName,
		DocumentLocation: r.DocumentLocation,
		Status:           model.Status(r.Status),
		SlideDir:         r.SlideDir,
		SlideCount:       r.SlideCount,
		TotalScore:       r.TotalScore,
		WeightedScore:    r.WeightedScore,
		RankingPosition:  r.RankingPosition,
		ErrorMessage:     r.ErrorMessage,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
		CompletedAt:      r.CompletedAt,
	}
}

func evaluationRecordFrom(e *model.Evaluation) evaluationRecord {
	created := e.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	var raw datatypes.JSON
	if len(e.Raw) > 0 && json.Valid(e.Raw) {
		raw = datatypes.JSON(e.Raw)
	}
	return evaluationRecord{
		ID:                e.ID,
		SubmissionID:      e.SubmissionID,
		CriteriaScores:    e.CriteriaScores,
		FlowScore:         e.PresentationFlowScore,
		CompletenessScore: e.CompletenessScore,
		ConsistencyScore:  e.ConsistencyScore,
		Feedback:          e.Feedback,
		SlideNotes:        e.SlideNotes,
		ExecutiveSummary:  e.ExecutiveSummary,
		SlideCount:        e.SlideCount,
		ProcessingMS:      e.ProcessingTime.Milliseconds(),
		Raw:               raw,
		CreatedAt:         created,
	}
}

func (r *evaluationRecord) toModel() *model.Evaluation {
	return &model.Evaluation{
		ID:                    r.ID,
		SubmissionID:          r.SubmissionID,
		CriteriaScores:        r.CriteriaScores,
		PresentationFlowScore: r.FlowScore,
		CompletenessScore:     r.CompletenessScore,
		ConsistencyScore:      r.ConsistencyScore,
		Feedback:              r.Feedback,
		SlideNotes:            r.SlideNotes,
		ExecutiveSummary:      r.ExecutiveSummary,
		SlideCount:            r.SlideCount,
		ProcessingTime:        time.Duration(r.ProcessingMS) * time.Millisecond,
		Raw:                   []byte(r.Raw),
		CreatedAt:             r.CreatedAt,
	}
}

func (r *scoreRecord) toModel() *model.Score {
	return &model.Score{
		SubmissionID:       r.SubmissionID,
		DomainID:           r.DomainID,
		CriteriaBreakdown:  r.CriteriaBreakdown,
		WeightedBreakdown:  r.WeightedBreakdown,
		RawTotal:           r.RawTotal,
		WeightedTotal:      r.WeightedTotal,
		NormalizedScore:    r.NormalizedScore,
		QualityBonus:       r.QualityBonus,
		ConsistencyPenalty: r.ConsistencyPenalty,
		Grade:              r.Grade,
		RankingPosition:    r.RankingPosition,
		PercentileRank:     r.PercentileRank,
		CalculatedAt:       r.CalculatedAt,
	}
}
