// Command worker runs the queue-draining pipeline worker on its own,
// for deployments that scale task processing separately from the HTTP
// surface. Channel connectors for outbound notifications are registered
// here; the loop-back channel ships by default.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "modernc.org/sqlite"

	"github.com/ryefield/souk/internal/adapters/sqlite"
	"github.com/ryefield/souk/internal/app/services"
	"github.com/ryefield/souk/internal/catalog"
	"github.com/ryefield/souk/internal/channels/simulated"
	"github.com/ryefield/souk/internal/config"
	"github.com/ryefield/souk/internal/db"
	"github.com/ryefield/souk/internal/geo"
	"github.com/ryefield/souk/internal/observability"
	"github.com/ryefield/souk/internal/parser"
	"github.com/ryefield/souk/internal/worker"
)

func Run() error {
	baseHandler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	log := slog.New(observability.WrapSlogHandler(baseHandler))
	slog.SetDefault(log)

	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file loaded", "error", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	shutdownTelemetry, err := observability.SetupOpenTelemetry(context.Background(), log, observability.OpenTelemetryConfig{
		Enabled:           cfg.Observability.Enabled,
		OTLPEndpoint:      cfg.Observability.OTLPEndpoint,
		OTLPTraceHeaders:  cfg.Observability.OTLPTraceHeaders,
		OTLPMetricHeaders: cfg.Observability.OTLPMetricHeaders,
		ServiceName:       cfg.Observability.ServiceName + "-worker",
		ServiceVer:        cfg.Observability.ServiceVer,
		Environment:       cfg.Environment,
		SamplingRatio:     cfg.Observability.SamplingRatio,
		MetricsConsole:    cfg.Observability.MetricsConsole,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(ctx); err != nil {
			slog.Error("Failed to shutdown OpenTelemetry", "error", err)
		}
	}()

	database, err := db.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if err := database.Close(); err != nil {
			slog.Error("Failed to close database", "error", err)
		}
	}()

	store := sqlite.NewStore(database)
	queue := sqlite.NewTaskQueue(database)

	registry := services.NewConnectorRegistry(simulated.New())
	notifier := services.NewNotifier(registry, log)
	messages := catalog.MustLoad()

	geocoderOpts := []geo.Option{}
	if cfg.Geocoding.CanadaEndpoint != "" {
		geocoderOpts = append(geocoderOpts, geo.WithCanadaEndpoint(cfg.Geocoding.CanadaEndpoint))
	}
	if cfg.Geocoding.USEndpoint != "" {
		geocoderOpts = append(geocoderOpts, geo.WithUSEndpoint(cfg.Geocoding.USEndpoint))
	}
	geocoder := geo.New(geocoderOpts...)

	dispatcher := services.NewDispatcher(store, store, store, store, store, store,
		parser.New(), queue, notifier, messages, log)
	demandValidator := services.NewDemandValidator(store, store, store, geocoder,
		queue, notifier, messages, log)
	proposalValidator := services.NewProposalValidator(store, store, store,
		queue, notifier, messages, log)

	pipelineWorker := worker.New(queue, dispatcher, demandValidator, proposalValidator, log,
		worker.WithVisibility(cfg.QueueVisibility()),
		worker.WithIdleDelay(cfg.QueueIdleDelay()),
		worker.WithMaxAttempts(cfg.Queue.MaxAttempts),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("Starting worker", "visibility", cfg.QueueVisibility(), "max_attempts", cfg.Queue.MaxAttempts)
	if err := pipelineWorker.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

func main() {
	if err := Run(); err != nil {
		slog.Error("worker exited", "error", err)
		os.Exit(1)
	}
}
