// Command ingest runs one ingestion pass over the configured pull
// channels and drains the resulting task backlog, then exits. Meant for
// cron-style deployments that do not keep a server process running.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	_ "modernc.org/sqlite"

	"github.com/ryefield/souk/internal/adapters/sqlite"
	"github.com/ryefield/souk/internal/app/domain"
	"github.com/ryefield/souk/internal/app/services"
	"github.com/ryefield/souk/internal/catalog"
	"github.com/ryefield/souk/internal/channels/simulated"
	"github.com/ryefield/souk/internal/config"
	"github.com/ryefield/souk/internal/db"
	"github.com/ryefield/souk/internal/geo"
	"github.com/ryefield/souk/internal/parser"
	"github.com/ryefield/souk/internal/worker"
)

func main() {
	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(log)

	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file loaded", "error", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Error("load config", "error", err)
		os.Exit(1)
	}

	dbPath := flag.String("db", cfg.Database.Path, "database path without .sqlite suffix")
	sourceList := flag.String("sources", strings.Join(cfg.Ingestion.Sources, ","), "comma-separated channel sources to poll")
	drain := flag.Bool("drain", true, "process the task backlog after the pass")
	flag.Parse()

	if err := run(context.Background(), log, cfg, *dbPath, *sourceList, *drain); err != nil {
		log.Error("ingest failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, log *slog.Logger, cfg config.Config, dbPath, sourceList string, drain bool) error {
	database, err := db.New(strings.TrimSpace(dbPath))
	if err != nil {
		return err
	}
	defer func() { _ = database.Close() }()

	store := sqlite.NewStore(database)
	queue := sqlite.NewTaskQueue(database)

	registry := services.NewConnectorRegistry(simulated.New())
	notifier := services.NewNotifier(registry, log)
	messages := catalog.MustLoad()
	ingestion := services.NewIngestion(store, store, store, registry, log)

	for _, raw := range strings.Split(sourceList, ",") {
		raw = strings.ToLower(strings.TrimSpace(raw))
		if raw == "" {
			continue
		}
		source, err := domain.ParseSource(raw)
		if err != nil {
			log.Warn("Skipping unknown source", "source", raw)
			continue
		}
		recorded, err := ingestion.RunPass(ctx, source)
		if err != nil {
			log.Error("Ingestion pass failed", "source", source, "error", err)
			continue
		}
		log.Info("Ingestion pass complete", "source", source, "recorded", recorded)
	}

	if !drain {
		return nil
	}

	dispatcher := services.NewDispatcher(store, store, store, store, store, store,
		parser.New(), queue, notifier, messages, log)
	demandValidator := services.NewDemandValidator(store, store, store, geo.New(),
		queue, notifier, messages, log)
	proposalValidator := services.NewProposalValidator(store, store, store,
		queue, notifier, messages, log)

	pipelineWorker := worker.New(queue, dispatcher, demandValidator, proposalValidator, log,
		worker.WithVisibility(cfg.QueueVisibility()),
		worker.WithMaxAttempts(cfg.Queue.MaxAttempts),
	)

	for {
		processed, err := pipelineWorker.RunOnce(ctx)
		if err != nil {
			return err
		}
		if !processed {
			return nil
		}
	}
}
