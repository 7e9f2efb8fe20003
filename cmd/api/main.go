package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/agent-console/cmd/mainconfig"
	"github.com/wolfman30/agent-console/internal/aggregation"
	"github.com/wolfman30/agent-console/internal/api/router"
	appconfig "github.com/wolfman30/agent-console/internal/config"
	"github.com/wolfman30/agent-console/internal/conversations"
	"github.com/wolfman30/agent-console/internal/emitter"
	"github.com/wolfman30/agent-console/internal/events"
	"github.com/wolfman30/agent-console/internal/feed"
	"github.com/wolfman30/agent-console/internal/http/handlers"
	"github.com/wolfman30/agent-console/internal/ids"
	"github.com/wolfman30/agent-console/internal/notify"
	"github.com/wolfman30/agent-console/internal/observability/metrics"
	"github.com/wolfman30/agent-console/internal/resolution"
	"github.com/wolfman30/agent-console/internal/stream"
	"github.com/wolfman30/agent-console/internal/suggestions"
	"github.com/wolfman30/agent-console/pkg/logging"
)

func main() {
	// A missing .env is fine; the environment may already be set.
	_ = godotenv.Load()
	cfg := appconfig.Load()

	logger := logging.NewWithFile(cfg.LogLevel, cfg.LogFile)
	defer func() { _ = logger.Close() }()
	logger.Info("starting agent console API server",
		"env", cfg.Env,
		"port", cfg.Port,
		"suggestion_store", cfg.SuggestionStore,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := buildApp(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to start", "error", err)
		os.Exit(1)
	}
	defer app.close()

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      app.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	var wg sync.WaitGroup
	for _, run := range app.background {
		wg.Add(1)
		go func(run func(context.Context)) {
			defer wg.Done()
			run(ctx)
		}(run)
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	wg.Wait()

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}

// application is the wired console: the HTTP handler, the loops to run
// beside it and the resources to release on exit.
type application struct {
	handler    http.Handler
	background []func(context.Context)
	closers    []func()
}

func (a *application) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func buildApp(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (*application, error) {
	app := &application{}
	checks := map[string]router.HealthCheck{}

	metricsHandler, consoleMetrics := setupMetrics()

	pool, err := mainconfig.ConnectPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if pool != nil {
		app.closers = append(app.closers, pool.Close)
		checks["postgres"] = pool.Ping
	}
	registry := setupRegistry(pool, logger)

	store, redisClient, err := setupStore(ctx, cfg, logger)
	if err != nil {
		app.close()
		return nil, err
	}
	if redisClient != nil {
		app.closers = append(app.closers, func() { _ = redisClient.Close() })
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}

	gen, err := ids.NewGenerator(cfg.IDNode)
	if err != nil {
		app.close()
		return nil, err
	}

	hub := stream.NewHub(logger)
	em := emitter.New(registry, gen, logger).
		WithLayout(cfg.TimestampLayout).
		WithObserver(hub)
	projector := aggregation.NewProjector(store, registry)
	engine := resolution.NewEngine(store, registry, em, projector, logger).
		WithDocumentClassifier(resolution.NewDocumentClassifier(cfg.DocumentSuffixes, cfg.DocumentCatalog)).
		WithViewSwitcher(hub).
		WithRemovalObserver(hub).
		WithMetrics(consoleMetrics)

	var awsCfg aws.Config
	if mainconfig.NeedsAWS(cfg) {
		if awsCfg, err = mainconfig.LoadAWSConfig(ctx, cfg); err != nil {
			app.close()
			return nil, err
		}
	}

	if notifier := setupNotifier(cfg, awsCfg, logger); notifier != nil {
		engine.WithNotifier(notifier)
	}

	if pool != nil {
		outbox := events.NewOutboxStore(pool)
		engine.WithRecorder(events.NewOutboxRecorder(outbox))
		if cfg.ResolutionQueueURL != "" {
			queue := events.NewSQSQueue(mainconfig.NewSQSClient(awsCfg, cfg), cfg.ResolutionQueueURL)
			deliverer := events.NewDeliverer(outbox, events.NewSQSPublisher(queue), logger).
				WithInterval(cfg.OutboxInterval).
				WithMaxAttempts(cfg.OutboxMaxAttempts).
				WithMetrics(consoleMetrics)
			app.background = append(app.background, deliverer.Start)
			logger.Info("resolution events publishing to sqs", "queue_url", cfg.ResolutionQueueURL)
		}
	}

	feeder := feed.NewFeeder(registry, store, logger).WithMetrics(consoleMetrics)
	if cfg.SeedFile != "" {
		res, err := feeder.ApplyFile(ctx, cfg.SeedFile)
		if err != nil {
			app.close()
			return nil, fmt.Errorf("seed %s: %w", cfg.SeedFile, err)
		}
		logger.Info("seed file applied", "file", cfg.SeedFile,
			"conversations", res.Conversations, "suggestions", res.Suggestions)
	}
	if cfg.SuggestionQueueURL != "" {
		queue := events.NewSQSQueue(mainconfig.NewSQSClient(awsCfg, cfg), cfg.SuggestionQueueURL)
		consumer := feed.NewConsumer(queue, feeder, logger).WithWaitSeconds(cfg.FeedWaitSeconds)
		if pool != nil {
			processed := events.NewProcessedStore(pool)
			consumer.WithDeduper(processed)
			if cfg.ProcessedRetention > 0 {
				app.background = append(app.background, func(ctx context.Context) {
					processed.PruneEvery(ctx, time.Hour, cfg.ProcessedRetention, logger)
				})
			}
		}
		app.background = append(app.background, consumer.Run)
	}

	app.handler = router.New(&router.Config{
		Logger:             logger,
		Console:            handlers.NewConsoleHandler(registry, projector, engine, em, feeder, logger),
		Stream:             http.HandlerFunc(hub.HandleWebSocket),
		MetricsHandler:     metricsHandler,
		HealthChecks:       checks,
		OperatorJWTSecret:  cfg.OperatorJWTSecret,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		MutationRateLimit:  cfg.MutationRateLimit,
		MutationBurst:      cfg.MutationBurst,
	})
	if cfg.OperatorJWTSecret == "" {
		logger.Warn("OPERATOR_JWT_SECRET not set, console mutations are unauthenticated")
	}
	return app, nil
}

func setupMetrics() (http.Handler, *metrics.ConsoleMetrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), metrics.NewConsoleMetrics(reg)
}

func setupRegistry(pool *pgxpool.Pool, logger *logging.Logger) conversations.Registry {
	if pool == nil {
		logger.Info("conversation registry in memory")
		return conversations.NewInMemoryRegistry()
	}
	logger.Info("conversation registry in postgres")
	return conversations.NewPostgresRegistry(pool)
}

func setupStore(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (suggestions.Store, *redis.Client, error) {
	if !cfg.UsesRedisStore() {
		if cfg.SuggestionStore == "redis" {
			logger.Warn("SUGGESTION_STORE=redis without REDIS_ADDR, using memory")
		}
		return suggestions.NewInMemoryStore(), nil, nil
	}
	client := redis.NewClient(mainconfig.RedisOptions(cfg))
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("redis ping %s: %w", cfg.RedisAddr, err)
	}
	logger.Info("suggestion store in redis", "addr", cfg.RedisAddr)
	return suggestions.NewRedisStore(client), client, nil
}

// setupNotifier returns nil when no escalation address is configured.
func setupNotifier(cfg *appconfig.Config, awsCfg aws.Config, logger *logging.Logger) *notify.EscalationNotifier {
	if cfg.EscalationEmailTo == "" {
		return nil
	}
	sender := notify.SenderConfig{
		Provider:       cfg.EmailProvider,
		SendGridAPIKey: cfg.SendGridAPIKey,
		FromEmail:      cfg.SendGridFromEmail,
		FromName:       cfg.SendGridFromName,
	}
	var ses *sesv2.Client
	if cfg.EmailProvider == "ses" {
		sender.FromEmail = cfg.SESFromEmail
		ses = mainconfig.NewSESClient(awsCfg, cfg)
	}
	return notify.NewEscalationNotifier(notify.NewEmailSender(sender, ses, logger), cfg.EscalationEmailTo, logger)
}
