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
	"github.com/redis/go-redis/v9"
	_ "modernc.org/sqlite"

	"github.com/ryefield/souk/internal/adapters/rediscache"
	"github.com/ryefield/souk/internal/adapters/sqlite"
	"github.com/ryefield/souk/internal/app/domain"
	"github.com/ryefield/souk/internal/app/ports"
	"github.com/ryefield/souk/internal/app/services"
	"github.com/ryefield/souk/internal/catalog"
	"github.com/ryefield/souk/internal/channels/simulated"
	"github.com/ryefield/souk/internal/channels/widget"
	"github.com/ryefield/souk/internal/config"
	"github.com/ryefield/souk/internal/db"
	"github.com/ryefield/souk/internal/geo"
	"github.com/ryefield/souk/internal/observability"
	"github.com/ryefield/souk/internal/parser"
	"github.com/ryefield/souk/internal/server"
	"github.com/ryefield/souk/internal/server/routes"
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
		ServiceName:       cfg.Observability.ServiceName,
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

	if cfg.Database.LogTiming {
		go logDBLatencyStats(log, database)
	}

	store := sqlite.NewStore(database)
	queue := sqlite.NewTaskQueue(database)

	var settings ports.SettingsStore = store
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer func() { _ = client.Close() }()
		settings = rediscache.NewSettingsCache(store, client, cfg.CacheTTL())
		slog.Info("Watermark cache enabled", "addr", cfg.Redis.Addr)
	}

	widgetChannel := widget.NewChannel(nil)
	simulatedChannel := simulated.New()
	registry := services.NewConnectorRegistry(widgetChannel, simulatedChannel)

	notifier := services.NewNotifier(registry, log)
	messages := catalog.MustLoad()
	ingestion := services.NewIngestion(settings, store, store, registry, log)
	widgetChannel.SetIngestion(ingestion)

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

	go func() {
		if err := pipelineWorker.Run(ctx); err != nil && ctx.Err() == nil {
			slog.Error("Worker stopped", "error", err)
		}
	}()
	go runIngestionLoop(ctx, log, ingestion, cfg)

	srv := server.New(log)
	srv.RegisterRouter(routes.NewWebhookRoutes(widgetChannel))
	srv.RegisterRouter(routes.NewOpsRoutes(database, ingestion))

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	slog.Info("Starting server", "port", cfg.Server.Port)
	return srv.Start(addr)
}

func main() {
	if err := Run(); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

// runIngestionLoop polls the configured pull channels for new messages.
func runIngestionLoop(ctx context.Context, log *slog.Logger, ingestion *services.Ingestion, cfg config.Config) {
	sources := make([]domain.Source, 0, len(cfg.Ingestion.Sources))
	for _, raw := range cfg.Ingestion.Sources {
		source, err := domain.ParseSource(raw)
		if err != nil {
			log.Warn("Skipping unknown ingestion source", "source", raw)
			continue
		}
		sources = append(sources, source)
	}
	if len(sources) == 0 {
		return
	}

	ticker := time.NewTicker(cfg.IngestionInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		for _, source := range sources {
			recorded, err := ingestion.RunPass(ctx, source)
			if err != nil {
				log.Error("Ingestion pass failed", "source", source, "error", err)
				continue
			}
			if recorded > 0 {
				log.Info("Ingestion pass complete", "source", source, "recorded", recorded)
			}
		}
	}
}

func logDBLatencyStats(log *slog.Logger, database *db.Database) {
	ticker := time.NewTicker(60 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		stats := database.QueryLatencyStats()
		if len(stats) == 0 {
			continue
		}
		limit := 5
		if len(stats) < limit {
			limit = len(stats)
		}
		for index := 0; index < limit; index++ {
			entry := stats[index]
			log.Info("db_query_latency",
				"query", entry.Name,
				"count", entry.Count,
				"p50_ms", entry.P50.Milliseconds(),
				"p95_ms", entry.P95.Milliseconds(),
				"max_ms", entry.Max.Milliseconds(),
			)
		}
	}
}
