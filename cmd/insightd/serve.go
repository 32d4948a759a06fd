package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/davidleathers/barangay-insights/internal/api/rest"
	"github.com/davidleathers/barangay-insights/internal/infrastructure/analyticsapi"
	"github.com/davidleathers/barangay-insights/internal/infrastructure/cache"
	"github.com/davidleathers/barangay-insights/internal/infrastructure/database"
	"github.com/davidleathers/barangay-insights/internal/infrastructure/telemetry"
	"github.com/davidleathers/barangay-insights/internal/metrics"
	"github.com/davidleathers/barangay-insights/internal/service/analysis"
	"github.com/davidleathers/barangay-insights/internal/service/analytics"
	"github.com/davidleathers/barangay-insights/internal/service/dashboard"
	"github.com/davidleathers/barangay-insights/internal/service/retry"
)

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx)
		},
	}
}

func (a *app) serve(ctx context.Context) error {
	cfg := a.cfg
	if cfg.Database.URL == "" {
		return errors.New("database.url is required")
	}

	provider, err := telemetry.InitializeOpenTelemetry(ctx, telemetry.FromConfig(cfg))
	if err != nil {
		return fmt.Errorf("initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("telemetry shutdown failed", "error", err)
		}
	}()

	pipelineMetrics, err := metrics.NewRegistry("barangay-insights")
	if err != nil {
		return fmt.Errorf("create metrics: %w", err)
	}

	pool, err := database.Connect(ctx, cfg.Database, a.zap)
	if err != nil {
		return err
	}
	repo := database.NewMetricRepository(pool, a.zap)
	svc := analytics.NewService(repo, a.logger)

	var fetcher dashboard.Fetcher = analyticsapi.NewLocal(svc)
	if cfg.Dashboard.UpstreamURL != "" {
		client, err := analyticsapi.NewClient(cfg.Dashboard.UpstreamURL, cfg.Dashboard.FetchTimeout, a.zap)
		if err != nil {
			pool.Close()
			return err
		}
		fetcher = client
	}

	model, err := a.newModel(ctx, cfg.LLM, a.zap)
	if err != nil {
		pool.Close()
		return fmt.Errorf("create model: %w", err)
	}

	analysisOpts := []analysis.Option{
		analysis.WithModelTimeout(cfg.LLM.Timeout),
		analysis.WithMetrics(pipelineMetrics),
		analysis.WithLogger(a.logger),
	}
	checkers := []rest.HealthChecker{rest.NewPingChecker("database", pool.Ping)}

	var (
		redisClient *redis.Client
		quota       rest.Quota
	)
	if cfg.Redis.Address != "" {
		redisClient, err = cache.NewRedisClient(ctx, cfg.Redis, a.zap)
		if err != nil {
			pool.Close()
			return err
		}
		if cfg.Insights.CacheTTL > 0 {
			insights := cache.NewInsightCache(cache.NewRedisCache(redisClient, a.zap))
			analysisOpts = append(analysisOpts, analysis.WithResultCache(insights, cfg.Insights.CacheTTL))
		}
		quota = rest.Quota{
			Limiter: cache.NewRedisRateLimiter(redisClient, a.zap),
			Limit:   cfg.Insights.QuotaPerWindow,
			Window:  cfg.Insights.QuotaWindow,
		}
		checkers = append(checkers, rest.NewPingChecker("redis", func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}))
	} else {
		a.zap.Info("redis not configured, analysis cache and quotas are off")
	}

	sessions := dashboard.NewRegistry(dashboard.SessionConfig{
		Fetcher: fetcher,
		Model:   model,
		ChartOptions: []dashboard.ChartOption{
			dashboard.WithRetryPolicy(retry.Policy{
				MaxAttempts: cfg.Dashboard.RetryMaxAttempts,
				Delay:       cfg.Dashboard.RetryDelay,
			}),
			dashboard.WithFetchTimeout(cfg.Dashboard.FetchTimeout),
			dashboard.WithChartMetrics(pipelineMetrics),
			dashboard.WithChartLogger(a.logger),
		},
		AnalysisOptions: analysisOpts,
		Logger:          a.logger,
	}, pipelineMetrics)

	sweepCtx, stopSweep := context.WithCancel(ctx)
	if idle := cfg.Dashboard.SessionIdleTTL; idle > 0 {
		go sessions.Run(sweepCtx, sweepInterval(idle), idle)
	}

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	health := rest.NewHealthService(cfg.Version, checkers...)
	handler := rest.NewHandler(svc, sessions, quota, a.logger)
	router := rest.NewRouter(handler, rest.Config{
		Logger:            a.logger,
		Registry:          promRegistry,
		EnableTracing:     cfg.Telemetry.Enabled && cfg.Telemetry.EnableTracing,
		RequestsPerSecond: cfg.Server.RateLimit.RequestsPerSecond,
		Burst:             cfg.Server.RateLimit.BurstSize,
		Health:            health,
	})

	srv := rest.NewServer(cfg.Server, router, a.logger)
	srv.OnShutdown(func(context.Context) error {
		stopSweep()
		sessions.Close()
		return nil
	})
	if redisClient != nil {
		srv.OnShutdown(func(context.Context) error { return redisClient.Close() })
	}
	srv.OnShutdown(func(context.Context) error {
		pool.Close()
		return nil
	})

	a.zap.Info("insightd ready",
		zap.Int("port", cfg.Server.Port),
		zap.String("llm_provider", model.Name()),
		zap.Bool("remote_analytics", cfg.Dashboard.UpstreamURL != ""),
		zap.Strings("health_checks", health.CheckerNames()))
	return srv.Run(ctx)
}

// sweepInterval checks for idle sessions a few times per idle period.
func sweepInterval(idle time.Duration) time.Duration {
	interval := idle / 4
	if interval < time.Second {
		interval = time.Second
	}
	return interval
}
