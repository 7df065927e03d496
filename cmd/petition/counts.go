package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"

	"petition-gateway/internal/config"
	"petition-gateway/petition/domain"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

func countsCommand() *cobra.Command {
	var region string
	cmd := &cobra.Command{
		Use:   "counts",
		Short: "Print signature counts read directly from the store",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.FromContext(cmd.Context())
			if cfg == nil {
				return errors.New("no config found in context")
			}
			return countsRun(cmd.Context(), cmd.OutOrStdout(), cfg, region)
		},
	}
	cmd.Flags().StringVar(&region, "region", "", "print only this region code")
	return cmd
}

func countsRun(ctx context.Context, out io.Writer, cfg *config.Config, region string) error {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	catalog, err := cfg.Catalog()
	if err != nil {
		return err
	}
	if cfg.Store.Driver == config.StoreMemory {
		return errors.New("memory store has no data outside a running server")
	}

	var rdb *redis.Client
	if cfg.Store.Driver == config.StoreRedis {
		rdb, err = openRedis(ctx, cfg)
		if err != nil {
			return err
		}
		defer func() { _ = rdb.Close() }()
	}
	store, err := openStore(cfg, rdb, logger)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	if region != "" {
		code, ok := catalog.Lookup(region)
		if !ok {
			return fmt.Errorf("%w: %q", domain.ErrUnknownRegion, region)
		}
		n, err := store.CountOne(ctx, code)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(out, "%s\t%d\n", code, n)
		return err
	}

	byRegion, err := store.CountByRegion(ctx)
	if err != nil {
		return err
	}
	counts := catalog.ZeroFilled()
	var total int64
	for code := range counts {
		counts[code] = byRegion[code]
		total += byRegion[code]
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, code := range catalog.Codes() {
		fmt.Fprintf(tw, "%s\t%d\n", code, counts[code])
	}
	fmt.Fprintf(tw, "TOTAL\t%d\n", total)
	return tw.Flush()
}
