package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fairlabs/stms-dashboard/internal/config"
	"github.com/fairlabs/stms-dashboard/internal/history"
	"github.com/fairlabs/stms-dashboard/internal/logger"
)

type historyPruner interface {
	DeleteOlderThan(ctx context.Context, maxAge time.Duration, batchSize int) (int64, error)
}

type healthChecker interface {
	Health(ctx context.Context) error
}

const (
	readyAttempts   = 10
	readyFirstDelay = 2 * time.Second
	readyMaxDelay   = 30 * time.Second
	pruneTimeout    = 2 * time.Minute
)

func main() {
	log := logger.New("retention")
	cfg, err := config.LoadRetention()
	if err != nil {
		log.Error("load config", slog.Any("err", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	store, err := history.New(cfg.ElasticsearchAddr, cfg.HistoryIndex, log)
	if err != nil {
		log.Error("init elasticsearch", slog.Any("err", err))
		os.Exit(1)
	}

	if err := waitReady(ctx, log, store, readyFirstDelay); err != nil {
		if ctx.Err() != nil {
			return
		}
		log.Error("search history unavailable", slog.Any("err", err))
		os.Exit(1)
	}

	log.Info("pruning search history",
		slog.String("index", cfg.HistoryIndex),
		slog.Duration("every", cfg.Interval),
		slog.Duration("max_age", cfg.MaxAge),
	)
	run(ctx, log, store, cfg)
	log.Info("retention stopped")
}

// waitReady polls Health with doubling delays until it succeeds, ctx ends or
// the attempts run out.
func waitReady(ctx context.Context, log *slog.Logger, hc healthChecker, delay time.Duration) error {
	var err error
	for attempt := 1; attempt <= readyAttempts; attempt++ {
		checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = hc.Health(checkCtx)
		cancel()
		if err == nil {
			return nil
		}

		log.Warn("search history not ready",
			slog.Any("err", err),
			slog.Int("attempt", attempt),
			slog.Duration("retry_in", delay),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay = min(2*delay, readyMaxDelay)
	}
	return fmt.Errorf("after %d attempts: %w", readyAttempts, err)
}

// run prunes once immediately, then every cfg.Interval until ctx ends.
func run(ctx context.Context, log *slog.Logger, pruner historyPruner, cfg *config.Retention) {
	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	for {
		runOnce(ctx, log, pruner, cfg)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func runOnce(ctx context.Context, log *slog.Logger, pruner historyPruner, cfg *config.Retention) {
	pruneCtx, cancel := context.WithTimeout(ctx, pruneTimeout)
	defer cancel()

	started := time.Now()
	deleted, err := pruner.DeleteOlderThan(pruneCtx, cfg.MaxAge, cfg.BatchSize)
	if err != nil {
		// the next tick retries
		log.Warn("prune failed", slog.Int64("deleted", deleted), slog.Any("err", err))
		return
	}
	log.Info("prune finished",
		slog.Int64("deleted", deleted),
		slog.Duration("elapsed", time.Since(started)),
	)
}
