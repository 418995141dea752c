package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	service "github.com/okian/pitchjudge/internal/app"
	"github.com/okian/pitchjudge/internal/config"
	"github.com/okian/pitchjudge/internal/domain/types"
	"github.com/okian/pitchjudge/internal/ratelimit"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the datastore schema and seed the configured domains",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			cfg.Database.AutoMigrate = true

			ctx := cmd.Context()
			store, err := service.OpenStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			for _, dc := range cfg.Domains {
				d := dc.Model()
				if err := d.ValidateWeights(); err != nil {
					return fmt.Errorf("domain %s: %w", d.ID, err)
				}
				if err := store.SaveDomain(ctx, d); err != nil {
					return fmt.Errorf("seed domain %s: %w", d.ID, err)
				}
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "schema up to date (%s); seeded %d domains\n",
				cfg.Database.Driver, len(cfg.Domains))
			return err
		},
	}
}

func newRankCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rank <domain>",
		Short: "Recompute a domain's ranking now and print the standings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			asJSON, _ := cmd.Flags().GetBool("json")

			ctx := cmd.Context()
			svc, err := service.Build(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() { _ = svc.Stop(context.Background()) }()

			return rankDomain(ctx, svc, args[0], cmd.OutOrStdout(), asJSON)
		},
	}
	cmd.Flags().Bool("json", false, "print standings as JSON")
	return cmd
}

type ranker interface {
	Ranking(ctx context.Context, domainID string) ([]types.Standing, error)
}

// rankDomain recomputes and prints the standings of one domain.
func rankDomain(ctx context.Context, svc *service.Service, domainID string, out io.Writer, asJSON bool) error {
	if _, err := svc.RankNow(ctx, domainID); err != nil {
		return fmt.Errorf("rank %s: %w", domainID, err)
	}
	return printStandings(ctx, svc, domainID, out, asJSON)
}

func printStandings(ctx context.Context, r ranker, domainID string, out io.Writer, asJSON bool) error {
	standings, err := r.Ranking(ctx, domainID)
	if err != nil {
		return err
	}
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(standings)
	}
	if len(standings) == 0 {
		_, err := fmt.Fprintf(out, "no completed submissions in %s\n", domainID)
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "RANK\tTEAM\tWEIGHTED\tNORMALIZED\tGRADE\tPERCENTILE")
	for _, s := range standings {
		rank, pct := "-", "-"
		if s.Rank != nil {
			rank = fmt.Sprint(*s.Rank)
		}
		if s.Percentile != nil {
			pct = fmt.Sprintf("%.1f", *s.Percentile)
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%.2f\t%.1f\t%s\t%s\n",
			rank, s.TeamName, s.WeightedTotal, s.NormalizedScore, s.Grade, pct)
	}
	return tw.Flush()
}

func newLimiterCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "limiter",
		Short: "Inspect or reset the judge rate limiter",
	}
	cmd.AddCommand(
		newLimiterWaitCmd(),
		&cobra.Command{
			Use:   "usage",
			Short: "Print the usage of every limiter window",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withLimiter(cmd, func(ctx context.Context, l *ratelimit.Limiter, key string) error {
					usage, err := l.Usage(ctx, key)
					if err != nil {
						return err
					}
					return printUsage(cmd.OutOrStdout(), key, usage)
				})
			},
		},
		&cobra.Command{
			Use:   "reset",
			Short: "Clear every limiter window",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withLimiter(cmd, func(ctx context.Context, l *ratelimit.Limiter, key string) error {
					if err := l.Reset(ctx, key); err != nil {
						return err
					}
					_, err := fmt.Fprintf(cmd.OutOrStdout(), "limiter %s reset\n", key)
					return err
				})
			},
		},
	)
	return cmd
}

// errNoSlot reports that limiter wait gave up before a slot freed.
var errNoSlot = errors.New("no rate limit slot")

func newLimiterWaitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wait",
		Short: "Block until the limiter admits one call, then record it",
		Long: `wait takes one slot from the judge rate limiter, blocking up to --timeout
for a window to free. Use it to reserve capacity for a manual judge call
made outside the pipeline.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			timeout, _ := cmd.Flags().GetDuration("timeout")
			return withLimiter(cmd, func(ctx context.Context, l *ratelimit.Limiter, key string) error {
				ok, err := l.WaitForAvailability(ctx, key, timeout)
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("%w for %s within %s", errNoSlot, key, timeout)
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "limiter %s admitted\n", key)
				return err
			})
		},
	}
	cmd.Flags().Duration("timeout", 30*time.Second, "longest time to wait for a free slot")
	return cmd
}

// withLimiter builds the configured limiter, connecting to redis when the
// limiter is shared.
func withLimiter(cmd *cobra.Command, fn func(context.Context, *ratelimit.Limiter, string) error) (err error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	var client *redis.Client
	if cfg.Limiter.Backend == config.BackendRedis {
		if client, err = service.OpenRedis(ctx, cfg.Redis); err != nil {
			return err
		}
		defer func() { err = errors.Join(err, client.Close()) }()
	}
	l, err := service.NewLimiter(cfg.Limiter, client)
	if err != nil {
		return err
	}
	return fn(ctx, l, cfg.Limiter.Key)
}

func printUsage(out io.Writer, key string, usage []ratelimit.Usage) error {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(tw, "KEY\tWINDOW\tCURRENT\tLIMIT\tREMAINING\tRESET IN\n")
	for _, u := range usage {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%s\n",
			key, u.Window, u.Current, u.Limit, u.Remaining, u.ResetIn)
	}
	return tw.Flush()
}
