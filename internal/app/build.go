package service

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/okian/pitchjudge/internal/adapters/blob"
	"github.com/okian/pitchjudge/internal/adapters/judge"
	"github.com/okian/pitchjudge/internal/adapters/mq/queue"
	"github.com/okian/pitchjudge/internal/adapters/render"
	"github.com/okian/pitchjudge/internal/adapters/repository"
	"github.com/okian/pitchjudge/internal/config"
	"github.com/okian/pitchjudge/internal/domain/model"
	"github.com/okian/pitchjudge/internal/pipeline"
	"github.com/okian/pitchjudge/internal/ratelimit"
	"github.com/okian/pitchjudge/pkg/logger"
)

const redisPingTimeout = 5 * time.Second

// OpenStore opens the configured datastore, migrating it when asked.
func OpenStore(ctx context.Context, cfg *config.Config) (repository.Store, error) {
	switch cfg.Database.Driver {
	case config.BackendPostgres:
		db, err := repository.OpenPostgres(ctx, cfg.Database.DSN)
		if err != nil {
			return nil, err
		}
		store := repository.NewGormStore(db, logger.Named("repository"))
		if cfg.Database.AutoMigrate {
			if err := store.Migrate(ctx); err != nil {
				_ = store.Close()
				return nil, err
			}
		}
		return store, nil
	default:
		return repository.NewMemStore(), nil
	}
}

// OpenRedis connects to redis and checks the connection.
func OpenRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis %s: %w", cfg.Addr, err)
	}
	return client, nil
}

// NewLimiter builds the judge limiter on the configured store.
func NewLimiter(cfg config.LimiterConfig, client redis.UniversalClient) (*ratelimit.Limiter, error) {
	var store ratelimit.Store = ratelimit.NewMemoryStore()
	if cfg.Backend == config.BackendRedis {
		store = ratelimit.NewRedisStore(client)
	}
	windows := []ratelimit.Window{{Name: "window", Size: cfg.Window, Limit: cfg.Limit}}
	if cfg.Tiered {
		windows = ratelimit.TieredWindows()
	}
	return ratelimit.New(store,
		ratelimit.WithWindows(windows...),
		ratelimit.WithLogger(logger.Named("ratelimit")),
	)
}

// Build assembles a Service from configuration and seeds the configured domains.
func Build(ctx context.Context, cfg *config.Config) (svc *Service, err error) {
	var closers []io.Closer
	defer func() {
		if err != nil {
			for _, c := range closers {
				_ = c.Close()
			}
		}
	}()

	store, err := OpenStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	closers = append(closers, store)

	var client *redis.Client
	if cfg.Queue.Backend == config.BackendRedis || cfg.Limiter.Backend == config.BackendRedis {
		if client, err = OpenRedis(ctx, cfg.Redis); err != nil {
			return nil, err
		}
		closers = append(closers, client)
	}

	queues := make(map[model.Stage]queue.Queue, len(model.Stages))
	for _, st := range model.Stages {
		if cfg.Queue.Backend == config.BackendRedis {
			queues[st] = queue.NewRedisQueue(client, st,
				queue.WithPollInterval(cfg.Queue.PollInterval),
				queue.WithLease(cfg.Queue.Lease),
			)
		} else {
			queues[st] = queue.NewInMemoryQueue(st, queue.WithCapacity(cfg.Queue.Capacity))
		}
	}

	limiter, err := NewLimiter(cfg.Limiter, client)
	if err != nil {
		return nil, err
	}

	fetchOpts := []blob.Option{blob.WithLogger(logger.Named("blob"))}
	if cfg.Storage.Endpoint != "" {
		mc, err := blob.NewMinioClient(blob.MinioConfig{
			Endpoint:  cfg.Storage.Endpoint,
			AccessKey: cfg.Storage.AccessKey,
			SecretKey: cfg.Storage.SecretKey,
			Region:    cfg.Storage.Region,
			UseSSL:    cfg.Storage.UseSSL,
		})
		if err != nil {
			return nil, err
		}
		fetchOpts = append(fetchOpts, blob.WithObjectStore(mc))
	}

	renderer := render.New(
		render.WithBinary(cfg.Render.Binary),
		render.WithDPI(cfg.Render.DPI),
		render.WithMaxWidth(cfg.Render.MaxWidth),
		render.WithLogger(logger.Named("render")),
	)
	if err := renderer.Available(); err != nil {
		logger.Get().Warn(ctx, "documents cannot be rendered until the binary is installed", logger.Error(err))
	}

	judgeClient := judge.New(cfg.Judge.APIKey,
		judge.WithEndpoint(cfg.Judge.Endpoint),
		judge.WithModel(cfg.Judge.Model),
		judge.WithTemperature(cfg.Judge.Temperature),
		judge.WithMaxOutputTokens(cfg.Judge.MaxOutputTokens),
		judge.WithLogger(logger.Named("judge")),
	)

	svc, err = New(Components{
		Store:    store,
		Queues:   queues,
		Limiter:  limiter,
		Fetcher:  blob.New(fetchOpts...),
		Renderer: renderer,
		Judge:    judgeClient,
		Closers:  closers[1:],
	}, Options(cfg)...)
	if err != nil {
		return nil, err
	}

	domains := make([]*model.Domain, len(cfg.Domains))
	for i, d := range cfg.Domains {
		domains[i] = d.Model()
	}
	if err := svc.SeedDomains(ctx, domains); err != nil {
		return nil, err
	}
	return svc, nil
}

// Options maps configuration onto Service options.
func Options(cfg *config.Config) []Option {
	policy := func(p config.PolicyConfig) pipeline.Policy {
		return pipeline.Policy{MaxRetries: p.MaxRetries, BaseDelay: p.BaseDelay}
	}
	return []Option{
		WithWorkers(model.StageIngest, cfg.Workers.Ingest),
		WithWorkers(model.StageEvaluate, cfg.Workers.Evaluate),
		WithWorkers(model.StageScore, cfg.Workers.Score),
		WithWorkers(model.StageRank, cfg.Workers.Rank),
		WithDedupeSize(cfg.DedupeSize),
		WithLimiterKey(cfg.Limiter.Key),
		WithPipelineOptions(
			pipeline.WithPolicy(model.StageIngest, policy(cfg.Retry.Ingest)),
			pipeline.WithPolicy(model.StageEvaluate, policy(cfg.Retry.Evaluate)),
			pipeline.WithPolicy(model.StageScore, policy(cfg.Retry.Score)),
			pipeline.WithPolicy(model.StageRank, policy(cfg.Retry.Rank)),
			pipeline.WithWorkDir(cfg.WorkDir),
			pipeline.WithJudgeTimeout(cfg.Judge.Timeout),
		),
	}
}
