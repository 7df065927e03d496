package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"

	"petition-gateway/internal/config"
	rlinfra "petition-gateway/middleware/ratelimit/infra"

	"github.com/spf13/cobra"
)

var decisionResults = []string{"allowed", "denied", "degraded"}

func rateStatsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "ratelimit-stats",
		Short: "Print rate limit decision counters kept in Redis",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.FromContext(cmd.Context())
			if cfg == nil {
				return errors.New("no config found in context")
			}
			if !cfg.RateLimit.Stats.Redis || cfg.Redis.Addr == "" {
				return errors.New("rateLimit.stats.redis is disabled or redis.addr is not set")
			}
			rdb, err := openRedis(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer func() { _ = rdb.Close() }()

			stats := rlinfra.NewRedisStatsStore(rdb,
				rlinfra.WithStatsPrefix(cfg.RateLimit.Stats.Prefix),
				rlinfra.WithStatsBucket(cfg.RateLimit.Stats.Bucket),
			)
			return printRateStats(cmd.Context(), cmd.OutOrStdout(), stats, time.Now())
		},
	}
}

type rateStatsReader interface {
	Totals(ctx context.Context) (map[string]int64, error)
	Minute(ctx context.Context, at time.Time) (map[string]int64, error)
	ByRoute(ctx context.Context) (map[string]map[string]int64, error)
}

func printRateStats(ctx context.Context, out io.Writer, stats rateStatsReader, now time.Time) error {
	totals, err := stats.Totals(ctx)
	if err != nil {
		return err
	}
	// minuto anterior: o corrente ainda está acumulando
	minute, err := stats.Minute(ctx, now.Add(-time.Minute))
	if err != nil {
		return err
	}
	routes, err := stats.ByRoute(ctx)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "SCOPE\tALLOWED\tDENIED\tDEGRADED\n")
	writeRow := func(scope string, m map[string]int64) {
		fmt.Fprintf(tw, "%s", scope)
		for _, r := range decisionResults {
			fmt.Fprintf(tw, "\t%d", m[r])
		}
		fmt.Fprintln(tw)
	}
	writeRow("total", totals)
	writeRow("last-minute", minute)

	names := make([]string, 0, len(routes))
	for name := range routes {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		writeRow(name, routes[name])
	}
	return tw.Flush()
}
