// Command worker runs the PDF→Markdown pipeline workers. One binary serves
// all six roles; WORKER_ROLES selects which of them this process consumes.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/fairyhunter13/pdf-ingest/internal/adapter/converter/mdserve"
	miniostore "github.com/fairyhunter13/pdf-ingest/internal/adapter/objectstore/minio"
	"github.com/fairyhunter13/pdf-ingest/internal/adapter/observability"
	"github.com/fairyhunter13/pdf-ingest/internal/adapter/queue/rabbitmq"
	"github.com/fairyhunter13/pdf-ingest/internal/adapter/splitter/qpdf"
	storepg "github.com/fairyhunter13/pdf-ingest/internal/adapter/store/postgres"
	"github.com/fairyhunter13/pdf-ingest/internal/app"
	"github.com/fairyhunter13/pdf-ingest/internal/config"
)

func main() {
	if err := run(); err != nil {
		slog.Error("worker exited", slog.Any("error", err))
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	slog.SetDefault(observability.SetupLogger(cfg))
	observability.InitMetrics()

	shutdownTracing, err := observability.SetupTracing(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := storepg.NewPool(ctx, cfg.DBURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	var rdb *redis.Client
	if cfg.TrackerBackend == config.TrackerBackendSearchIndex {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return err
		}
		rdb = redis.NewClient(opts)
		defer rdb.Close()
	}
	tracker, err := app.NewPartTracker(cfg, pool, rdb)
	if err != nil {
		return err
	}

	objects, err := miniostore.New(ctx, miniostore.Options{
		Endpoint:      cfg.MinioEndpoint,
		AccessKey:     cfg.MinioAccessKey,
		SecretKey:     cfg.MinioSecretKey,
		Bucket:        cfg.MinioBucket,
		UseSSL:        cfg.MinioUseSSL,
		PresignExpiry: cfg.PresignExpiry,
	})
	if err != nil {
		return err
	}

	// Topology mismatch or an unreachable broker is fatal here: starting a
	// worker that cannot consume would only hide the fault.
	broker, err := rabbitmq.New(cfg)
	if err != nil {
		return err
	}

	err = app.RegisterWorkers(app.Deps{
		Cfg:      cfg,
		Broker:   broker,
		Meta:     storepg.NewItemRepo(pool),
		Markdown: storepg.NewMarkdownRepo(pool),
		Objects:  objects,
		Conv:     mdserve.New(cfg.ConverterURL, cfg.ConverterTimeout),
		Pages:    qpdf.New(cfg.SplitterBin),
		Tracker:  tracker,
	})
	if err != nil {
		return err
	}

	ops := app.NewOpsServer(cfg, broker)
	go func() {
		if err := ops.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("ops server failed", slog.Any("error", err))
		}
	}()
	slog.Info("worker started",
		slog.Any("roles", cfg.WorkerRoles),
		slog.String("trackerBackend", cfg.TrackerBackend),
		slog.Int("metricsPort", cfg.MetricsPort))

	<-ctx.Done()
	slog.Info("shutting down", slog.Duration("grace", cfg.ShutdownGrace))

	graceCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
	defer cancel()
	if err := broker.Close(graceCtx); err != nil {
		slog.Warn("broker close failed", slog.Any("error", err))
	}
	if err := ops.Shutdown(graceCtx); err != nil {
		slog.Warn("ops server shutdown failed", slog.Any("error", err))
	}
	if shutdownTracing != nil {
		if err := shutdownTracing(graceCtx); err != nil {
			slog.Warn("tracing shutdown failed", slog.Any("error", err))
		}
	}
	return nil
}
