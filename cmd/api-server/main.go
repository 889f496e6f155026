package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sungwon/mailrelay/internal/api"
	"github.com/sungwon/mailrelay/internal/auth"
	"github.com/sungwon/mailrelay/internal/bootstrap"
	"github.com/sungwon/mailrelay/internal/config"
	"github.com/sungwon/mailrelay/internal/logger"
	"github.com/sungwon/mailrelay/internal/queue"
	"github.com/sungwon/mailrelay/internal/reportstore"
)

func main() {
	// Load configuration
	cfg, err := config.Load("config")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(cfg.Logging.Options("api-server"))
	log.Info().Msg("starting API server")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var buildOpts []bootstrap.Option
	if cfg.Auth.RateLimit.RequestsPerMinute > 0 {
		buildOpts = append(buildOpts, bootstrap.WithRedis())
	}
	stack, err := bootstrap.Build(ctx, cfg, log, buildOpts...)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build mailer")
	}
	defer stack.Close()

	deps := api.Deps{
		Mailer: stack.Service,
		Checks: map[string]api.Pinger{},
		Log:    log,
	}

	// Interface fields stay nil when the backing store is absent so the
	// router skips their routes.
	if stack.Registry != nil {
		deps.Registry = stack.Registry
	}
	if stack.DB != nil {
		deps.Checks["database"] = stack.DB
		go stack.DB.ReportPoolStats(ctx, 15*time.Second)
	}
	if stack.Redis != nil {
		deps.Checks["redis"] = api.PingFunc(func(ctx context.Context) error {
			return stack.Redis.Ping(ctx).Err()
		})
	}

	// Bulk jobs
	q, err := queue.Open(cfg.Queue, log)
	if err != nil {
		log.Warn().Err(err).Msg("bulk queue unavailable, /api/v1/bulk disabled")
	} else {
		defer q.Close()
		deps.Queue = q
		deps.DLQ = q
	}

	store, err := reportstore.New(ctx, cfg.Reports, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open report store")
	}
	deps.Reports = reportstore.NewArchive(store)

	// Authentication
	if len(cfg.Auth.APIKeys) > 0 {
		keys := auth.NewKeySet(cfg.Auth.APIKeys)
		deps.Keys = keys
		log.Info().Int("keys", keys.Len()).Msg("API key authentication enabled")
	} else {
		log.Warn().Msg("no API keys configured; the API is unauthenticated. Generate one with: mailctl apikey generate <name>")
	}
	if stack.Redis != nil {
		deps.RateLimiter = auth.NewRateLimiter(stack.Redis, cfg.Auth.RateLimit)
	}

	router := api.NewRouter(deps)

	// Configure HTTP server
	addr := cfg.API.Addr()
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.API.ReadTimeout,
		WriteTimeout: cfg.API.WriteTimeout,
	}

	// Start server in goroutine
	go func() {
		log.Info().Str("addr", addr).Msg("API server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for shutdown signal
	<-ctx.Done()
	log.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.API.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}
