// Package main is the entry point for the Scribe ranking API server.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/scribeworks/scribe/internal/api"
	"github.com/scribeworks/scribe/internal/article"
	"github.com/scribeworks/scribe/internal/config"
	"github.com/scribeworks/scribe/internal/health"
	"github.com/scribeworks/scribe/internal/invalidation"
	"github.com/scribeworks/scribe/internal/jobs"
	"github.com/scribeworks/scribe/internal/middleware"
	"github.com/scribeworks/scribe/internal/rank"
	"github.com/scribeworks/scribe/internal/store"
	"github.com/scribeworks/scribe/internal/tracing"
)

const serviceName = "scribe-api"

func main() {
	configPath := flag.String("config", "", "path to an optional YAML config file")
	help := flag.Bool("help", false, "display help message")
	flag.Parse()

	if *help {
		fmt.Println("Scribe Ranking API Server")
		fmt.Println()
		fmt.Println("Usage: api [options]")
		fmt.Println()
		fmt.Println("Options:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	cfg, errs := config.Load(*configPath)
	if len(errs) > 0 {
		for _, err := range errs {
			fmt.Fprintln(os.Stderr, "config error:", err)
		}
		os.Exit(1)
	}

	logger := middleware.NewLogger(cfg.Env)
	slog.SetDefault(logger)

	summary := cfg.LogSummary()
	attrs := make([]any, 0, len(summary)*2)
	for k, v := range summary {
		attrs = append(attrs, k, v)
	}
	logger.Info("configuration loaded", attrs...)

	// Tracing is opt-in via TRACING_ENABLED; spans are no-ops otherwise.
	tracerProvider, err := tracing.NewProvider(tracingConfig(cfg.Env))
	if err != nil {
		logger.Error("failed to initialize tracing", "error", err)
		os.Exit(1)
	}

	// Postgres: system of record for articles and the like/favorite relations.
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	if err := db.PingContext(pingCtx); err != nil {
		logger.Warn("database not reachable at startup", "error", err)
	}
	cancelPing()

	// Redis: hotness sorted sets, the status cache, and the delay queue.
	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Error("invalid redis url", "error", err)
		os.Exit(1)
	}
	redisClient := redis.NewClient(redisOpts)
	redisStore := store.NewRedisStore(redisClient)

	articles := article.NewPostgresRepository(db)

	engine := rank.NewEngine(redisStore, articles, rank.Options{
		Weights: rank.Weights{
			View:     float64(cfg.RankViewWeight),
			Like:     float64(cfg.RankLikeWeight),
			Comment:  float64(cfg.RankCommentWeight),
			Favorite: float64(cfg.RankFavoriteWeight),
		},
		ScoreFloor: cfg.RankScoreFloor,
		ClampMin:   cfg.RankClampMin,
		ClampMax:   cfg.RankClampMax,
		DayTTL:     cfg.RankDayTTL,
		WeekTTL:    cfg.RankWeekTTL,
	}, logger)

	// Metrics registry shared by HTTP middleware and background jobs.
	registry := prometheus.NewRegistry()
	httpMetrics := middleware.NewMetrics()
	if err := httpMetrics.Register(registry); err != nil {
		logger.Error("failed to register http metrics", "error", err)
		os.Exit(1)
	}
	jobMetrics := jobs.NewMetrics()
	if err := jobMetrics.Register(registry); err != nil {
		logger.Error("failed to register job metrics", "error", err)
		os.Exit(1)
	}

	// Background loops all share one stop channel.
	stop := make(chan struct{})

	scheduler := rank.NewScheduler(engine, logger, jobMetrics)
	go scheduler.Run(stop)

	queue := invalidation.NewQueue(redisStore, cfg.QueueRetention, logger)
	executor := invalidation.NewExecutor(redisStore, cfg.CacheTTL, logger, jobMetrics)
	bus := invalidation.NewBus(queue, executor, cfg.InvalidationWorkers, cfg.InvalidationBuffer, cfg.InvalidationEnabled, logger)
	bus.Start()

	drainer := invalidation.NewDrainer(queue, executor, cfg.DrainInterval, logger, jobMetrics)
	go drainer.Run(stop)

	verifier := invalidation.NewVerifier(articles, redisStore, cfg.VerifyInterval, cfg.VerifySampleSize, logger, jobMetrics)
	go verifier.Run(stop)

	// Seed the sorted sets so cold articles still appear in ranked reads.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		start := time.Now()
		n, err := engine.InitializeAllArticles(ctx)
		jobMetrics.ObserveJobDuration(jobs.JobTypeRankBootstrap, time.Since(start).Seconds())
		if err != nil {
			jobMetrics.IncJobsTotal(jobs.JobTypeRankBootstrap, jobs.StatusFailure)
			jobMetrics.IncJobErrors(jobs.JobTypeRankBootstrap, "bootstrap")
			logger.Error("rank bootstrap failed", "error", err)
			return
		}
		jobMetrics.IncJobsTotal(jobs.JobTypeRankBootstrap, jobs.StatusSuccess)
		logger.Info("rank bootstrap complete", "articles", n, "duration_ms", time.Since(start).Milliseconds())
	}()

	healthHandlers := api.NewHealthHandlers(api.HealthHandlersConfig{
		DBChecker:    health.NewDBChecker(db),
		RedisChecker: health.NewRedisChecker(redisClient),
	})
	articleHandlers := api.NewArticleHandlers(engine, articles, bus, cfg.DelayedDeleteDelay, logger)

	handler := newHandler(healthHandlers, articleHandlers, registry, httpMetrics, logger)

	server := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.Port),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("starting server", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	close(stop)
	bus.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	if err := tracerProvider.Shutdown(ctx); err != nil {
		logger.Warn("tracer shutdown error", "error", err)
	}
	if err := redisClient.Close(); err != nil {
		logger.Warn("redis close error", "error", err)
	}
	if err := db.Close(); err != nil {
		logger.Warn("database close error", "error", err)
	}

	logger.Info("server stopped")
}

// newHandler assembles the route table and wraps it in the middleware chain:
// RequestID -> Tracing -> HTTPMetrics -> Logging.
func newHandler(healthHandlers *api.HealthHandlers, articleHandlers *api.ArticleHandlers, registry *prometheus.Registry, httpMetrics *middleware.Metrics, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthHandlers.Health)
	mux.HandleFunc("/ready", healthHandlers.Ready)
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/api/articles/hot", articleHandlers.HotArticles)
	mux.HandleFunc("/api/articles/hot/page", articleHandlers.HotArticlesPage)
	mux.HandleFunc("/api/articles/", articleHandlers.HandleArticle)

	return middleware.RequestID(
		middleware.Tracing(serviceName)(
			middleware.HTTPMetrics(httpMetrics)(
				middleware.Logging(logger)(mux),
			),
		),
	)
}

// tracingConfig builds the tracer configuration from environment variables.
func tracingConfig(env string) tracing.Config {
	enabled, _ := strconv.ParseBool(os.Getenv("TRACING_ENABLED"))

	samplingRate := 0.1
	if raw := os.Getenv("TRACING_SAMPLING_RATE"); raw != "" {
		if rate, err := strconv.ParseFloat(raw, 64); err == nil {
			samplingRate = rate
		}
	}

	exporter := os.Getenv("TRACING_EXPORTER")
	if exporter == "" {
		exporter = "otlp-http"
	}

	return tracing.Config{
		ServiceName:  serviceName,
		Enabled:      enabled,
		Environment:  env,
		ExporterType: exporter,
		OTLPEndpoint: os.Getenv("OTLP_ENDPOINT"),
		SamplingRate: samplingRate,
		InsecureMode: env != "production",
	}
}
