package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"petition-gateway/internal/config"
	"petition-gateway/internal/metrics"
	"petition-gateway/internal/tracing"
	"petition-gateway/internal/version"
	"petition-gateway/middleware/cors"
	"petition-gateway/middleware/ratelimit"
	rlapp "petition-gateway/middleware/ratelimit/application"
	rldomain "petition-gateway/middleware/ratelimit/domain"
	rlinfra "petition-gateway/middleware/ratelimit/infra"
	"petition-gateway/petition"
	"petition-gateway/petition/application"
	"petition-gateway/petition/domain"
	"petition-gateway/petition/infra"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

func serveCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.FromContext(cmd.Context())
			if cfg == nil {
				return errors.New("no config found in context")
			}
			return serveRun(cmd.Context(), cfg)
		},
	}
	cmd.Flags().String("listen", "", "listen address, overrides config")
	return cmd
}

func serveRun(parent context.Context, cfg *config.Config) error {
	logger := commonRun(cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	catalog, err := cfg.Catalog()
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	shutdownTracing, err := tracing.Setup(ctx, tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		Endpoint:    cfg.Tracing.Endpoint,
		Insecure:    cfg.Tracing.Insecure,
		ServiceName: programName,
		Version:     version.Version,
		SampleRatio: cfg.Tracing.SampleRatio,
	})
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warn("tracing shutdown failed", "error", err)
		}
	}()

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
	}

	var rdb *redis.Client
	if cfg.UsesRedis() {
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
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("store close failed", "error", err)
		}
	}()

	var promStats rldomain.StatsStore
	if m != nil {
		// leitura e escrita dividem o contador, separados pelo label route
		promStats = rlinfra.NewPromStatsStore(m.Registerer())
	}

	signLimiter, err := newSignLimiter(ctx, cfg, rdb, promStats, logger)
	if err != nil {
		return err
	}

	if cfg.RateLimit.FingerprintSecret == "" {
		logger.Warn("rateLimit.fingerprintSecret not set, using a random key; limits are per instance and reset on restart")
	}
	fp, err := ratelimit.NewFingerprinter(
		cfg.RateLimit.FingerprintSecret,
		ratelimit.DefaultKeyFunc(cfg.RateLimit.KeyHeader, cfg.RateLimit.TrustXFF),
	)
	if err != nil {
		return fmt.Errorf("fingerprinter: %w", err)
	}

	var verifier domain.Verifier
	if cfg.Verifier.Disabled {
		logger.Warn("bot verification disabled, every submission is accepted as human")
		verifier = infra.AllowAllVerifier{}
	} else {
		verifier = infra.NewSiteVerifier(infra.SiteVerifierConfig{
			URL:     cfg.Verifier.URL,
			Secret:  cfg.Verifier.Secret,
			Timeout: cfg.Verifier.Timeout,
			Logger:  logger,
		})
	}

	redirects, err := cors.NewAllowList(cfg.AllowedOrigins)
	if err != nil {
		return err
	}

	agg := application.NewAggregator(application.AggregatorConfig{
		Store:    store,
		Catalog:  catalog,
		TTL:      cfg.Counts.TTL,
		Timeout:  cfg.Counts.Timeout,
		MaxStale: cfg.Counts.MaxStale,
		Metrics:  m,
		Logger:   logger,
	})
	signer := &application.SignService{
		Validator: application.Validator{
			Catalog:         catalog,
			RedirectAllowed: redirects.AllowedURL,
		},
		Limiter:      signLimiter,
		Verifier:     verifier,
		Store:        store,
		Counts:       agg,
		StoreTimeout: cfg.Store.Timeout,
		Metrics:      m,
		Logger:       logger,
	}

	var readLimit func(http.Handler) http.Handler
	if cfg.RateLimit.ReadEnabled {
		readStore := rlinfra.NewStore(cfg.RateLimit.ReadRPS, cfg.RateLimit.ReadBurst)
		readStore.StartJanitor(ctx)
		readLimit = ratelimit.Middleware(ratelimit.Options{
			Store:               readStore,
			Stats:               promStats,
			KeyFn:               fp.KeyFunc(),
			RetryAfter:          cfg.RateLimit.RetryAfter,
			AddRateLimitHeaders: cfg.RateLimit.AddHeaders,
			OnLimited:           petition.WriteRateLimited,
			Route:               "GET /api/count",
			Logger:              logger,
		})
	}

	h, err := petition.NewHandler(petition.Options{
		Signer:         signer,
		Counter:        agg,
		AllowedOrigins: cfg.AllowedOrigins,
		CORSMaxAge:     10 * time.Minute,
		Fingerprinter:  fp,
		KeyHeader:      cfg.RateLimit.KeyHeader,
		TrustXFF:       cfg.RateLimit.TrustXFF,
		ReadLimit:      readLimit,
		Metrics:        httpMetrics(m),
		MetricsHandler: metricsHandler(m),
		Logger:         logger,
	})
	if err != nil {
		return err
	}
	h = ratelimit.ConcurrencyMiddleware(ratelimit.ConcurrencyOptions{
		Max:            cfg.Concurrency.Max,
		AcquireTimeout: cfg.Concurrency.AcquireTimeout,
		OnReject:       petition.WriteOverloaded,
	})(h)

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", "error", err)
		}
	}()

	logger.Info("listening",
		"component", programName,
		"addr", cfg.Listen,
		"store", cfg.Store.Driver,
		"regions", catalog.Len(),
	)
	logger.Info("rate limit",
		"backend", cfg.RateLimit.Backend,
		"signLimit", cfg.RateLimit.SignLimit,
		"signWindow", cfg.RateLimit.SignWindow,
		"readEnabled", cfg.RateLimit.ReadEnabled,
		"readRPS", cfg.RateLimit.ReadRPS,
		"readBurst", cfg.RateLimit.ReadBurst,
		"statsRedis", cfg.RateLimit.Stats.Redis,
	)
	logger.Info("concurrency",
		"max", cfg.Concurrency.Max,
		"acquireTimeout", cfg.Concurrency.AcquireTimeout,
	)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	logger.Info("shutdown complete")
	return nil
}

func openRedis(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if _, err := rdb.Ping(pingCtx).Result(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping error: %w", err)
	}
	return rdb, nil
}

// openStore abre o backend de assinaturas escolhido em store.driver.
// rdb só é usado pelo driver redis.
func openStore(cfg *config.Config, rdb *redis.Client, logger *slog.Logger) (domain.SignatureStore, error) {
	switch cfg.Store.Driver {
	case config.StoreMemory:
		logger.Warn("memory store selected, signatures are lost on restart")
		return infra.NewMemoryStore(), nil
	case config.StoreSQLite:
		return infra.NewSQLiteStore(cfg.Store.DataDir, logger)
	case config.StoreBadger:
		return infra.NewBadgerStore(cfg.Store.DataDir, logger)
	case config.StoreRedis:
		if rdb == nil {
			return nil, errors.New("redis store requires redis.addr")
		}
		return infra.NewRedisStore(rdb, infra.WithStorePrefix(cfg.Redis.Prefix)), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// newSignLimiter monta o limite do POST /api/sign: token bucket local ou
// janela fixa compartilhada no Redis, com estatísticas em Prometheus e,
// opcionalmente, Redis.
func newSignLimiter(ctx context.Context, cfg *config.Config, rdb *redis.Client, promStats rldomain.StatsStore, logger *slog.Logger) (rlapp.Service, error) {
	rl := cfg.RateLimit

	var store rldomain.LimiterStore
	switch rl.Backend {
	case config.LimiterMemory:
		s := rlinfra.NewStore(rlinfra.PerWindow(rl.SignLimit, rl.SignWindow), rl.SignLimit)
		s.StartJanitor(ctx)
		store = s
	case config.LimiterRedis:
		if rdb == nil {
			return rlapp.Service{}, errors.New("redis rate limit backend requires redis.addr")
		}
		store = rlinfra.NewRedisWindowStore(rdb, rl.SignLimit, rl.SignWindow)
	default:
		return rlapp.Service{}, fmt.Errorf("unknown rate limit backend %q", rl.Backend)
	}

	var stats rldomain.MultiStats
	if promStats != nil {
		stats = append(stats, promStats)
	}
	if rl.Stats.Redis && rdb != nil {
		stats = append(stats, rlinfra.NewRedisStatsStore(
			rdb,
			rlinfra.WithStatsPrefix(rl.Stats.Prefix),
			rlinfra.WithStatsTTL(rl.Stats.TTL),
			rlinfra.WithStatsBucket(rl.Stats.Bucket),
			rlinfra.WithStatsTrackKeys(rl.Stats.TrackKeys),
		))
	}

	svc := rlapp.Service{
		Store:      store,
		RetryAfter: rl.RetryAfter,
		Logger:     logger,
	}
	if len(stats) > 0 {
		svc.Stats = stats
	}
	return svc, nil
}

func httpMetrics(m *metrics.Metrics) petition.HTTPMetrics {
	if m == nil {
		return nil
	}
	return m
}

func metricsHandler(m *metrics.Metrics) http.Handler {
	if m == nil {
		return nil
	}
	return m.Handler()
}
