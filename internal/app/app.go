// Package app wires configuration, adapters, and the pipeline workers
// together for the worker binary.
package app

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/fairyhunter13/pdf-ingest/internal/adapter/queue/rabbitmq"
	trackerpg "github.com/fairyhunter13/pdf-ingest/internal/adapter/tracker/postgres"
	"github.com/fairyhunter13/pdf-ingest/internal/adapter/tracker/redisearch"
	"github.com/fairyhunter13/pdf-ingest/internal/config"
	"github.com/fairyhunter13/pdf-ingest/internal/domain"
	"github.com/fairyhunter13/pdf-ingest/internal/usecase"
)

// Deps carries the adapters a worker process shares across its roles.
type Deps struct {
	Cfg      config.Config
	Broker   *rabbitmq.Client
	Meta     domain.MetadataStore
	Markdown domain.MarkdownStore
	Objects  domain.ObjectStore
	Conv     domain.Converter
	Pages    domain.PageSplitter
	Tracker  domain.PartTracker
}

// NewPartTracker selects the tracker backend by configuration. Both backends
// implement the same port; the choice is operational, not semantic.
func NewPartTracker(cfg config.Config, pool *pgxpool.Pool, rdb *redis.Client) (domain.PartTracker, error) {
	switch cfg.TrackerBackend {
	case config.TrackerBackendDocument:
		return trackerpg.New(pool), nil
	case config.TrackerBackendSearchIndex:
		return redisearch.New(rdb), nil
	default:
		return nil, fmt.Errorf("op=app.NewPartTracker: backend %q: %w", cfg.TrackerBackend, domain.ErrInvalidArgument)
	}
}

// RegisterWorkers registers one consumer per configured role. Every role is
// optional; production deploys one role per process, dev runs all six.
func RegisterWorkers(d Deps) error {
	cfg := d.Cfg

	if cfg.HasRole("analyzer") {
		a := usecase.NewAnalyzer(usecase.AnalyzerConfig{
			SplitThreshold:     cfg.SplitThreshold,
			SuggestedSplitSize: cfg.SuggestedSplitSize,
			FetchTimeout:       cfg.PresignTimeout,
			MaxRetries:         cfg.MaxRetries,
		}, d.Meta, d.Objects, d.Broker)
		if err := rabbitmq.ConsumeTyped[domain.AnalysisRequest](d.Broker, domain.EventPdfAnalysisRequest, a.HandleAnalysisRequest); err != nil {
			return fmt.Errorf("op=app.RegisterWorkers: analyzer: %w", err)
		}
	}

	if cfg.HasRole("coordinator") {
		c := usecase.NewCoordinator(cfg.SuggestedSplitSize, cfg.MaxRetries, d.Meta, d.Broker)
		if err := rabbitmq.ConsumeTyped[domain.AnalysisCompleted](d.Broker, domain.EventPdfAnalysisCompleted, c.HandleAnalysisCompleted); err != nil {
			return fmt.Errorf("op=app.RegisterWorkers: coordinator: %w", err)
		}
	}

	if cfg.HasRole("splitter") {
		s := usecase.NewSplitterService(usecase.SplitterConfig{
			ConcurrentPartProcessing: cfg.ConcurrentPartProcessing,
			BatchPause:               time.Second,
			MaxRetries:               cfg.MaxRetries,
		}, d.Meta, d.Objects, d.Pages, d.Broker)
		if err := rabbitmq.ConsumeTyped[domain.SplittingRequest](d.Broker, domain.EventPdfSplittingRequest, s.HandleSplittingRequest); err != nil {
			return fmt.Errorf("op=app.RegisterWorkers: splitter: %w", err)
		}
	}

	if cfg.HasRole("converter") {
		c := usecase.NewConverterService(usecase.ConverterConfig{MaxRetries: cfg.MaxRetries}, d.Meta, d.Objects, d.Conv, d.Tracker, d.Broker)
		if err := rabbitmq.ConsumeTyped[domain.ConversionRequest](d.Broker, domain.EventPdfConversionRequest, c.HandleConversionRequest); err != nil {
			return fmt.Errorf("op=app.RegisterWorkers: converter: %w", err)
		}
		if err := rabbitmq.ConsumeTyped[domain.PartConversionRequest](d.Broker, domain.EventPdfPartConversionRequest, c.HandlePartConversionRequest); err != nil {
			return fmt.Errorf("op=app.RegisterWorkers: part converter: %w", err)
		}
	}

	if cfg.HasRole("storage") {
		s := usecase.NewStorageService(d.Meta, d.Markdown, d.Broker)
		if err := rabbitmq.ConsumeTyped[domain.StorageRequest](d.Broker, domain.EventMarkdownStorageRequest, s.HandleStorageRequest); err != nil {
			return fmt.Errorf("op=app.RegisterWorkers: storage: %w", err)
		}
	}

	if cfg.HasRole("merger") {
		m := usecase.NewMergerService(cfg.MaxRetries, d.Meta, d.Markdown, d.Tracker, d.Broker)
		if err := rabbitmq.ConsumeTyped[domain.MergingRequest](d.Broker, domain.EventPdfMergingRequest, m.HandleMergingRequest); err != nil {
			return fmt.Errorf("op=app.RegisterWorkers: merger: %w", err)
		}
	}

	slog.Info("workers registered", slog.Any("roles", cfg.WorkerRoles))
	return nil
}

// NewOpsServer serves Prometheus metrics and the readiness probe. Readiness
// follows the broker adapter: once its reconnect budget is exhausted the
// process reports unhealthy and the orchestrator restarts it.
func NewOpsServer(cfg config.Config, broker *rabbitmq.Client) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		if !broker.Healthy() {
			http.Error(w, "broker unhealthy", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.MetricsPort),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
