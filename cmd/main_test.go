package main

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/smartystreets/goconvey/convey"

	service "github.com/okian/pitchjudge/internal/app"
	"github.com/okian/pitchjudge/internal/config"
	"github.com/okian/pitchjudge/internal/domain/types"
	"github.com/okian/pitchjudge/pkg/logger"
)

func init() {
	if err := logger.InitWithFormat(os.Stderr, "text"); err != nil {
		panic(err)
	}
}

var commandEnv = []string{
	"PITCHJUDGE_CONFIG",
	"PITCHJUDGE_DOTENV",
	"PITCHJUDGE_WORK_DIR",
	"PITCHJUDGE_LIMITER__BACKEND",
	"PITCHJUDGE_LIMITER__TIERED",
	"PITCHJUDGE_LIMITER__LIMIT",
	"PITCHJUDGE_REDIS__ADDR",
	"PITCHJUDGE_ADDR",
}

func resetEnv() {
	for _, k := range commandEnv {
		_ = os.Unsetenv(k)
	}
}

// run executes the root command with args and returns its output.
func run(args ...string) (string, error) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRootCommand(t *testing.T) {
	convey.Convey("Given the root command", t, func() {
		root := newRootCmd()

		convey.Convey("Then every subcommand is registered", func() {
			names := map[string]bool{}
			for _, c := range root.Commands() {
				names[c.Name()] = true
			}
			convey.So(names["serve"], convey.ShouldBeTrue)
			convey.So(names["migrate"], convey.ShouldBeTrue)
			convey.So(names["rank"], convey.ShouldBeTrue)
			convey.So(names["limiter"], convey.ShouldBeTrue)
		})

		convey.Convey("And the limiter command has usage and reset", func() {
			cmd, _, err := root.Find([]string{"limiter", "usage"})
			convey.So(err, convey.ShouldBeNil)
			convey.So(cmd.Name(), convey.ShouldEqual, "usage")

			cmd, _, err = root.Find([]string{"limiter", "reset"})
			convey.So(err, convey.ShouldBeNil)
			convey.So(cmd.Name(), convey.ShouldEqual, "reset")

			cmd, _, err = root.Find([]string{"limiter", "wait"})
			convey.So(err, convey.ShouldBeNil)
			convey.So(cmd.Name(), convey.ShouldEqual, "wait")
		})

		convey.Convey("And rank requires exactly one domain", func() {
			_, err := run("rank")
			convey.So(err, convey.ShouldNotBeNil)
		})
	})
}

func TestMigrateCommand(t *testing.T) {
	convey.Convey("Given the in-memory datastore", t, func() {
		resetEnv()
		defer resetEnv()

		convey.Convey("When migrate runs with the default domains", func() {
			out, err := run("migrate")

			convey.Convey("Then every default domain is seeded", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(out, convey.ShouldContainSubstring, "schema up to date (memory)")
				convey.So(out, convey.ShouldContainSubstring, "seeded 4 domains")
			})
		})

		convey.Convey("When the config file is passed by flag", func() {
			path := filepath.Join(t.TempDir(), "pitchjudge.yaml")
			yaml := `
domains:
  - id: climate
    name: ClimateTech
    criteria: {impact: Emissions avoided}
    weights: {impact: 1.0}
`
			convey.So(os.WriteFile(path, []byte(yaml), 0o600), convey.ShouldBeNil)

			out, err := run("migrate", "--config", path)

			convey.So(err, convey.ShouldBeNil)
			convey.So(out, convey.ShouldContainSubstring, "seeded 1 domains")
		})

		convey.Convey("When the config is invalid", func() {
			_ = os.Setenv("PITCHJUDGE_ADDR", "")
			_, err := run("migrate")
			convey.So(err, convey.ShouldNotBeNil)
		})
	})
}

func TestRankCommand(t *testing.T) {
	convey.Convey("Given a fresh in-memory deployment", t, func() {
		resetEnv()
		defer resetEnv()
		_ = os.Setenv("PITCHJUDGE_WORK_DIR", t.TempDir())

		convey.Convey("When a known domain is ranked", func() {
			out, err := run("rank", "fintech")

			convey.So(err, convey.ShouldBeNil)
			convey.So(out, convey.ShouldContainSubstring, "no completed submissions in fintech")
		})

		convey.Convey("When JSON output is requested", func() {
			out, err := run("rank", "fintech", "--json")

			convey.So(err, convey.ShouldBeNil)
			convey.So(out, convey.ShouldContainSubstring, "[]")
		})

		convey.Convey("When an unknown domain is ranked", func() {
			_, err := run("rank", "nope")

			convey.So(err, convey.ShouldNotBeNil)
			convey.So(err.Error(), convey.ShouldContainSubstring, "rank nope")
		})
	})
}

type staticRanker []types.Standing

func (s staticRanker) Ranking(context.Context, string) ([]types.Standing, error) {
	return s, nil
}

func TestPrintStandings(t *testing.T) {
	convey.Convey("Given standings with a ranked and an unranked entry", t, func() {
		rank := 1
		pct := 100.0
		standings := staticRanker{
			{Rank: &rank, TeamName: "Ledger", WeightedTotal: 8.25, NormalizedScore: 82.5, Percentile: &pct, Grade: "A-"},
			{TeamName: "Late", WeightedTotal: 6, NormalizedScore: 60, Grade: "C"},
		}

		convey.Convey("When printed as a table", func() {
			var out bytes.Buffer
			err := printStandings(context.Background(), standings, "fintech", &out, false)

			convey.So(err, convey.ShouldBeNil)
			convey.So(out.String(), convey.ShouldContainSubstring, "RANK")
			convey.So(out.String(), convey.ShouldContainSubstring, "Ledger")
			convey.So(out.String(), convey.ShouldContainSubstring, "8.25")
			convey.So(out.String(), convey.ShouldContainSubstring, "100.0")
			convey.So(out.String(), convey.ShouldContainSubstring, "-")
		})

		convey.Convey("When printed as JSON", func() {
			var out bytes.Buffer
			err := printStandings(context.Background(), standings, "fintech", &out, true)

			convey.So(err, convey.ShouldBeNil)
			convey.So(out.String(), convey.ShouldContainSubstring, `"team_name": "Late"`)
			convey.So(out.String(), convey.ShouldContainSubstring, `"rank": null`)
		})
	})
}

func TestLimiterCommands(t *testing.T) {
	convey.Convey("Given the in-memory limiter", t, func() {
		resetEnv()
		defer resetEnv()

		convey.Convey("When usage is printed", func() {
			out, err := run("limiter", "usage")

			convey.So(err, convey.ShouldBeNil)
			convey.So(out, convey.ShouldContainSubstring, "REMAINING")
			convey.So(out, convey.ShouldContainSubstring, "gemini_api")
			convey.So(out, convey.ShouldContainSubstring, "window")
		})

		convey.Convey("When it is reset", func() {
			out, err := run("limiter", "reset")

			convey.So(err, convey.ShouldBeNil)
			convey.So(out, convey.ShouldContainSubstring, "limiter gemini_api reset")
		})
	})

	convey.Convey("Given a shared tiered limiter in redis", t, func() {
		resetEnv()
		defer resetEnv()
		mr := miniredis.RunT(t)
		_ = os.Setenv("PITCHJUDGE_LIMITER__BACKEND", "redis")
		_ = os.Setenv("PITCHJUDGE_LIMITER__TIERED", "true")
		_ = os.Setenv("PITCHJUDGE_REDIS__ADDR", mr.Addr())

		convey.Convey("When usage is printed", func() {
			out, err := run("limiter", "usage")

			convey.So(err, convey.ShouldBeNil)
			convey.So(out, convey.ShouldContainSubstring, "minute")
			convey.So(out, convey.ShouldContainSubstring, "hour")
			convey.So(out, convey.ShouldContainSubstring, "day")
		})

		convey.Convey("When slots are taken with wait", func() {
			_ = os.Setenv("PITCHJUDGE_LIMITER__TIERED", "false")
			_ = os.Setenv("PITCHJUDGE_LIMITER__LIMIT", "1")
			out, err := run("limiter", "wait", "--timeout", "1s")
			convey.So(err, convey.ShouldBeNil)
			convey.So(out, convey.ShouldContainSubstring, "limiter gemini_api admitted")

			convey.Convey("Then a second wait gives up once the window is full", func() {
				_, err := run("limiter", "wait", "--timeout", "0s")
				convey.So(errors.Is(err, errNoSlot), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When redis is unreachable", func() {
			_ = os.Setenv("PITCHJUDGE_REDIS__ADDR", "127.0.0.1:1")
			_, err := run("limiter", "reset")
			convey.So(err, convey.ShouldNotBeNil)
		})
	})
}

func TestHTTPServer(t *testing.T) {
	convey.Convey("Given a built service", t, func() {
		resetEnv()
		defer resetEnv()
		_ = os.Setenv("PITCHJUDGE_WORK_DIR", t.TempDir())

		ctx := context.Background()
		cfg, err := config.Load(ctx)
		convey.So(err, convey.ShouldBeNil)
		svc, err := service.Build(ctx, cfg)
		convey.So(err, convey.ShouldBeNil)
		defer func() { _ = svc.Stop(ctx) }()

		srv := newHTTPServer(":0", svc)

		convey.Convey("Then the server carries the configured timeouts", func() {
			convey.So(srv.ReadHeaderTimeout, convey.ShouldEqual, readHeaderTimeout)
			convey.So(srv.WriteTimeout, convey.ShouldEqual, writeTimeout)
		})

		convey.Convey("And health reports a stopped service before start", func() {
			w := httptest.NewRecorder()
			srv.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", http.NoBody))
			convey.So(w.Code, convey.ShouldEqual, http.StatusServiceUnavailable)
		})

		convey.Convey("And the API docs are routed", func() {
			w := httptest.NewRecorder()
			srv.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/openapi.yaml", http.NoBody))
			convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
		})

		convey.Convey("And domains are listed", func() {
			w := httptest.NewRecorder()
			srv.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/domains", http.NoBody))
			convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
			convey.So(w.Body.String(), convey.ShouldContainSubstring, "fintech")
		})
	})
}

func TestMetricsUpdaters(t *testing.T) {
	convey.Convey("Given the background metrics updaters", t, func() {
		convey.Convey("Then the system updater returns when its context ends", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
			defer cancel()
			convey.So(func() { startSystemMetricsUpdater(ctx) }, convey.ShouldNotPanic)
		})

		convey.Convey("And a system metrics update does not panic", func() {
			convey.So(updateSystemMetrics, convey.ShouldNotPanic)
		})
	})
}
