package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fixture-edge/internal/bot"
	"fixture-edge/internal/cache"
	"fixture-edge/internal/config"
	"fixture-edge/internal/db"
	"fixture-edge/internal/estimator"
	"fixture-edge/internal/ev"
	"fixture-edge/internal/handler"
	"fixture-edge/internal/job"
	"fixture-edge/internal/matcher"
	"fixture-edge/internal/metrics"
	"fixture-edge/internal/provider"
	"fixture-edge/internal/repository"
	"fixture-edge/internal/service"
	"fixture-edge/internal/stream"
	"fixture-edge/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

const summaryTTL = 24 * time.Hour

var (
	loadEnvFunc            = godotenv.Load
	loadConfigFunc         = config.Load
	initPostgresFunc       = db.InitPostgres
	initRedisFunc          = cache.InitRedis
	initTracerFunc         = tracing.InitTracer
	newOpenAIClientFunc    = estimator.NewOpenAIClient
	startCycleJobFunc      = func(j *job.CycleJob, ctx context.Context) { go j.Start(ctx) }
	startTelegramBotFunc   = bot.StartTelegramBot
	newRouterFunc          = gin.Default
	setupSignalNotify      = signal.Notify
	waitForSignalFunc      = func(quit <-chan os.Signal) { <-quit }
	startHTTPServerFunc    = func(srv *http.Server) error { return srv.ListenAndServe() }
	shutdownHTTPServerFunc = func(srv *http.Server, ctx context.Context) error { return srv.Shutdown(ctx) }
)

func main() {
	loadEnvFunc()

	cfg := loadConfigFunc()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Init Postgres and Redis
	pool := initPostgresFunc(ctx, cfg.DatabaseURL)
	redisClient := initRedisFunc(ctx, cfg.RedisURL)

	// Init tracing
	tp, tracer, err := initTracerFunc(ctx)
	if err != nil {
		log.Fatalf("failed to initialize tracer: %v", err)
	}
	defer func() {
		if err := tp.Shutdown(ctx); err != nil {
			log.Printf("error shutting down tracer provider: %v", err)
		}
	}()

	// Persistence is optional; the interfaces stay nil without a database.
	var (
		store       service.Store
		assessments handler.AssessmentReader
		recent      bot.AssessmentReader
	)
	if pool != nil {
		repo := repository.NewAssessmentRepository(pool, tracer)
		if err := repo.RunMigrations(ctx); err != nil {
			log.Fatalf("failed to run migrations: %v", err)
		}
		store, assessments, recent = repo, repo, repo
	}

	summaries := job.NewSummaryStore(cache.NewSummaryCache(redisClient, summaryTTL))
	lookups := cache.NewLookupCache(redisClient, "fixture-edge")
	cooldowns := cache.NewCooldownStore(redisClient)

	// Providers
	opts := []provider.Option{
		provider.WithRateLimit(cfg.ProviderRPS, 1),
		provider.WithMaxRetries(cfg.ProviderMaxRetries),
	}
	oddsOpts, fixturesOpts := opts, opts
	if cfg.OddsAPIBaseURL != "" {
		oddsOpts = append(append([]provider.Option{}, opts...), provider.WithBaseURL(cfg.OddsAPIBaseURL))
	}
	if cfg.FixturesAPIBaseURL != "" {
		fixturesOpts = append(append([]provider.Option{}, opts...), provider.WithBaseURL(cfg.FixturesAPIBaseURL))
	}
	odds := provider.NewOddsAPIProvider(tracer, cfg.OddsAPIKey, cfg.OddsSports, oddsOpts...)
	fixtures := provider.NewFixturesProvider(tracer, cfg.FixturesAPIKey, lookups, fixturesOpts...)

	resolver := matcher.New(tracer, matcher.DefaultChain(fixtures, cfg.FixtureWindow), cfg.Matcher)

	var est estimator.Estimator = estimator.FairEstimator{}
	if cfg.OpenAIAPIKey != "" {
		est = estimator.NewOpenAIEstimator(tracer, newOpenAIClientFunc(cfg.OpenAIAPIKey), cfg.OpenAIModel)
	}

	evaluator := ev.New(cfg.EV, cooldowns)
	cycleMetrics := metrics.NewCycleMetrics()

	// Start Telegram bot
	var telegram service.Dispatcher
	if notifier := startTelegramBotFunc(cfg.TelegramBotToken, cfg.TelegramChatID, summaries, recent); notifier != nil {
		telegram = notifier
	}

	// Live alert stream for websocket subscribers
	alertHub := stream.NewHub()
	go alertHub.Run(ctx)
	dispatcher := service.NewFanout(telegram, alertHub)

	cycles := service.NewCycleService(tracer, odds, resolver, est, evaluator, dispatcher, store, cycleMetrics, service.CycleConfig{
		SoftBudget:       cfg.SoftTimeBudget,
		MaxConcurrent:    cfg.MaxConcurrentResolutions,
		MaxExternalCalls: cfg.MaxExternalCallsPerCycle,
		Market:           cfg.Market,
	})

	// Start the cycle job (background goroutine, stopped by ctx cancel)
	cycleJob := job.NewCycleJob(tracer, cycles, summaries, time.Duration(cfg.CyclePollSecs)*time.Second)
	startCycleJobFunc(cycleJob, ctx)

	// Create handlers and routes
	h := handler.New(tracer, summaries, cycleMetrics.Registry(), cfg.APIKey)
	h.SetCycleRunner(cycleJob)
	h.SetAlertStream(alertHub)
	if assessments != nil {
		h.SetAssessmentReader(assessments)
	}

	r := newRouterFunc()
	r.Use(otelgin.Middleware(tracing.ServiceName))
	h.RegisterRoutes(r)

	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	go func() {
		if err := startHTTPServerFunc(srv); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	setupSignalNotify(quit, syscall.SIGINT, syscall.SIGTERM)
	waitForSignalFunc(quit)
	log.Println("Shutting down server...")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := shutdownHTTPServerFunc(srv, shutdownCtx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server exiting")
}
