package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spec-kit/triage-engine/internal/app"
	"github.com/spec-kit/triage-engine/internal/config"
	"github.com/spec-kit/triage-engine/internal/observability"
	"github.com/spec-kit/triage-engine/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.App, cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	container, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to build application", zap.Error(err))
	}

	pool := worker.NewTriagePool(container.Queue, container.Triage, container.Metrics, logger.Named("pool"), worker.TriagePoolConfig{
		Concurrency: cfg.Triage.Concurrency,
		JobTimeout:  cfg.Triage.JobTimeout(),
		DequeueWait: cfg.Triage.DequeueWait(),
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return pool.Run(gctx) })
	g.Go(func() error {
		worker.SweeperLoop(gctx, container.Sweeper, cfg.SLA.SweepInterval(), logger.Named("sweeper"))
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("worker stopped with error", zap.Error(err))
	}
	logger.Info("worker shut down")

	closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	container.Close(closeCtx)
}
