package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	. "github.com/smartystreets/goconvey/convey"

	service "github.com/okian/pitchjudge/internal/app"
	"github.com/okian/pitchjudge/internal/config"
	"github.com/okian/pitchjudge/internal/domain/model"
	"github.com/okian/pitchjudge/internal/domain/types"
)

func TestServiceIntegration(t *testing.T) {
	Convey("Given a running service with one domain", t, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		f := newFixture()
		f.judge.scores["deck-strong.png"] = 9
		f.judge.scores["deck-steady.png"] = 7
		So(f.svc.SeedDomains(ctx, []*model.Domain{pitchDomain()}), ShouldBeNil)
		So(f.svc.Start(ctx), ShouldBeNil)
		defer func() { _ = f.svc.Stop(ctx) }()

		Convey("When two teams submit", func() {
			strong, err := f.svc.Submit(ctx, types.SubmitRequest{DomainID: "fintech", TeamName: "Ledger", Document: "deck-strong"})
			So(err, ShouldBeNil)
			steady, err := f.svc.Submit(ctx, types.SubmitRequest{DomainID: "fintech", TeamName: "Vault", Document: "deck-steady"})
			So(err, ShouldBeNil)

			ranked := waitFor(10*time.Second, func() bool {
				standings, err := f.svc.Ranking(ctx, "fintech")
				if err != nil || len(standings) != 2 {
					return false
				}
				for _, s := range standings {
					if s.Rank == nil {
						return false
					}
				}
				return true
			})

			Convey("Then both complete and are ranked by weighted total", func() {
				So(ranked, ShouldBeTrue)

				standings, err := f.svc.Ranking(ctx, "fintech")
				So(err, ShouldBeNil)
				So(standings[0].SubmissionID, ShouldEqual, strong.ID)
				So(*standings[0].Rank, ShouldEqual, 1)
				So(*standings[0].Percentile, ShouldEqual, 100.0)
				So(standings[0].WeightedTotal, ShouldAlmostEqual, 9.0, 1e-9)
				So(standings[1].SubmissionID, ShouldEqual, steady.ID)
				So(*standings[1].Rank, ShouldEqual, 2)
				So(*standings[1].Percentile, ShouldEqual, 50.0)

				view, err := f.svc.Submission(ctx, steady.ID)
				So(err, ShouldBeNil)
				So(view.Status, ShouldEqual, string(model.StatusCompleted))
				So(view.SlideCount, ShouldEqual, 1)
				So(*view.WeightedScore, ShouldAlmostEqual, 7.0, 1e-9)
				So(*view.NormalizedScore, ShouldAlmostEqual, 70.0, 1e-9)
				So(view.Evaluation, ShouldNotBeNil)
				So(view.Evaluation.ExecutiveSummary, ShouldEqual, "solid")
				So(view.CompletedAt, ShouldNotBeNil)

				So(f.judge.Calls(), ShouldEqual, 2)
			})

			Convey("Then the judge calls were counted by the limiter", func() {
				So(ranked, ShouldBeTrue)
				usage, err := f.svc.LimiterUsage(ctx)
				So(err, ShouldBeNil)
				So(usage[0].Current, ShouldEqual, 2)
			})
		})
	})
}

func TestBuild(t *testing.T) {
	Convey("Given the default configuration", t, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		cfg := config.New(ctx)
		cfg.WorkDir = t.TempDir()
		cfg.Domains = config.DefaultDomains()

		Convey("When building with in-memory backends", func() {
			svc, err := service.Build(ctx, cfg)
			So(err, ShouldBeNil)
			defer func() { _ = svc.Stop(ctx) }()

			Convey("Then the configured domains are seeded", func() {
				domains, err := svc.Domains(ctx)
				So(err, ShouldBeNil)
				So(domains, ShouldHaveLength, 4)
			})

			Convey("Then the configured limiter window is used", func() {
				usage, err := svc.LimiterUsage(ctx)
				So(err, ShouldBeNil)
				So(usage, ShouldHaveLength, 1)
				So(usage[0].Limit, ShouldEqual, 10)
			})
		})

		Convey("When building with redis queues and limiter", func() {
			mr := miniredis.RunT(t)
			cfg.Queue.Backend = config.BackendRedis
			cfg.Limiter.Backend = config.BackendRedis
			cfg.Limiter.Tiered = true
			cfg.Redis.Addr = mr.Addr()

			svc, err := service.Build(ctx, cfg)
			So(err, ShouldBeNil)
			defer func() { _ = svc.Stop(ctx) }()

			Convey("Then submissions are queued in redis", func() {
				sub, err := svc.Submit(ctx, types.SubmitRequest{DomainID: "edtech", TeamName: "Tutor", Document: "/decks/tutor.pdf"})
				So(err, ShouldBeNil)
				So(sub.Status, ShouldEqual, model.StatusUploaded)
				So(svc.Health(ctx).Queues["ingest"], ShouldEqual, 1)
				So(mr.Exists("pitchjudge:queue:ingest"), ShouldBeTrue)
			})

			Convey("Then the tiered windows are used", func() {
				usage, err := svc.LimiterUsage(ctx)
				So(err, ShouldBeNil)
				So(usage, ShouldHaveLength, 3)
			})
		})

		Convey("When redis is unreachable", func() {
			cfg.Queue.Backend = config.BackendRedis
			cfg.Redis.Addr = "127.0.0.1:1"

			_, err := service.Build(ctx, cfg)

			Convey("Then Build fails", func() {
				So(err, ShouldNotBeNil)
			})
		})
	})
}
