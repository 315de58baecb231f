package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/courtlabs/courtiq/internal/config"
	"github.com/courtlabs/courtiq/skill"
	"github.com/courtlabs/courtiq/storage"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		zap.NewExample().Fatal("configuration failed", zap.Error(err))
	}

	logger := newLogger(cfg.LogLevel)
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("service failed", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := skill.NewMetrics(registry)

	var stores skill.Stores
	if cfg.Mongo.URI != "" {
		mongoStore, err := storage.Connect(ctx, logger, cfg.Mongo.URI, cfg.Mongo.Database)
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = mongoStore.Close(shutdownCtx)
		}()
		if err := mongoStore.EnsureIndexes(ctx); err != nil {
			return err
		}
		stores = mongoStore.Stores()
	} else {
		logger.Warn("no mongo uri configured, using in-memory stores")
		mem := skill.NewMemoryStore()
		stores = skill.Stores{
			Players: mem, Results: mem, Games: mem,
			Stats: mem, History: mem, Models: mem,
		}
	}

	svc := skill.NewService(logger, &cfg.Skill, stores, metrics, cfg.HistoricalCSV, cfg.Seed)
	if err := svc.LoadModels(ctx); err != nil {
		return err
	}
	if _, err := svc.TrainModel(ctx); err != nil {
		// A failed initial run is survivable; the elo baseline serves until
		// the next periodic run succeeds.
		logger.Warn("initial training failed", zap.Error(err))
	}
	go svc.StartPeriodicTraining(ctx, cfg.RetrainInterval)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("metrics listening", zap.String("addr", cfg.MetricsAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newLogger(level string) *zap.Logger {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	logger, err := zcfg.Build()
	if err != nil {
		os.Exit(1)
	}
	return logger
}
