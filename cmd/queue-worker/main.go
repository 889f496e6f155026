package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sungwon/mailrelay/internal/bootstrap"
	"github.com/sungwon/mailrelay/internal/config"
	"github.com/sungwon/mailrelay/internal/logger"
	"github.com/sungwon/mailrelay/internal/queue"
	"github.com/sungwon/mailrelay/internal/reportstore"
	"github.com/sungwon/mailrelay/internal/worker"
)

func main() {
	cfg, err := config.Load("config")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Logging.Options("queue-worker"))
	log.Info().Msg("starting queue worker")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stack, err := bootstrap.Build(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build mailer")
	}
	defer stack.Close()

	if stack.DB != nil {
		go stack.DB.ReportPoolStats(ctx, 15*time.Second)
	}

	// Report archive
	store, err := reportstore.New(ctx, cfg.Reports, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open report store")
	}
	archive := reportstore.NewArchive(store)
	go archive.RunRetention(ctx, cfg.Reports.Retention, time.Hour, log)

	// Create job handler around the live mailer.
	handler := worker.NewHandler(stack.Service, archive, log)

	q, err := queue.Open(cfg.Queue, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open queue")
	}
	defer q.Close()

	consumer := q.Consumer(handler)
	if err := consumer.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start queue consumer")
	}
	log.Info().
		Str("type", cfg.Queue.Type).
		Str("stream", cfg.Queue.Stream).
		Int("workers", cfg.Queue.WorkerCount).
		Msg("queue worker started")

	go q.ReportDepth(ctx, 15*time.Second)

	// Wait for interrupt signal for graceful shutdown.
	<-ctx.Done()
	log.Info().Msg("shutting down queue worker")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Queue.ShutdownTimeout)
	defer cancel()

	if err := consumer.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("queue consumer did not stop cleanly")
	}

	log.Info().Msg("queue worker stopped")
}
