package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	_ "github.com/joho/godotenv/autoload"
	"golang.org/x/sync/errgroup"

	"github.com/fairlabs/stms-dashboard/internal/cloud"
	"github.com/fairlabs/stms-dashboard/internal/config"
	"github.com/fairlabs/stms-dashboard/internal/dashboard"
	"github.com/fairlabs/stms-dashboard/internal/downloads"
	"github.com/fairlabs/stms-dashboard/internal/events"
	"github.com/fairlabs/stms-dashboard/internal/history"
	"github.com/fairlabs/stms-dashboard/internal/logger"
	"github.com/fairlabs/stms-dashboard/internal/objectstore"
	"github.com/fairlabs/stms-dashboard/internal/remote"
)

func main() {
	log := logger.New("server")
	cfg, err := config.LoadServer()
	if err != nil {
		log.Error("load config", slog.Any("err", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	awsCfg, err := cloud.Load(ctx, cfg.AWS)
	if err != nil {
		log.Error("init aws", slog.Any("err", err))
		os.Exit(1)
	}
	functions := remote.New(remote.NewLambdaClient(awsCfg, cfg.InvokeTimeout), cfg.SearchFunction, cfg.ReportFunction, log)
	tables := objectstore.New(s3.NewFromConfig(awsCfg), cfg.Bucket, log)

	var store downloads.Store
	if cfg.RedisAddr != "" {
		rdb := downloads.NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.DownloadTTL)
		defer rdb.Close()
		store = rdb
		log.Info("downloads stored in redis", slog.String("addr", cfg.RedisAddr))
	} else {
		store = downloads.NewMemory(cfg.DownloadCapacity, cfg.DownloadTTL)
	}

	var recorder dashboard.EventRecorder
	if len(cfg.KafkaBrokers) > 0 {
		pub := events.NewPublisher(cfg.KafkaBrokers, cfg.EventsTopic, log)
		defer pub.Close()
		recorder = pub
		log.Info("publishing search events", slog.String("topic", cfg.EventsTopic))
	}

	var hist historyReader
	if cfg.HistoryAddr != "" {
		hc, err := history.New(cfg.HistoryAddr, cfg.HistoryIndex, log)
		if err != nil {
			log.Error("init elasticsearch", slog.Any("err", err))
			os.Exit(1)
		}
		hist = hc
	}

	dash := dashboard.New(functions, tables, store, recorder, log)
	srv, err := newServer(log, cfg, dash, store, hist)
	if err != nil {
		log.Error("init server", slog.Any("err", err))
		os.Exit(1)
	}

	httpServer := &http.Server{
		Addr:              cfg.BindAddr,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      cfg.WriteTimeout(),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("server starting", slog.String("addr", cfg.BindAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("server stopped", slog.Any("err", err))
		os.Exit(1)
	}
}
