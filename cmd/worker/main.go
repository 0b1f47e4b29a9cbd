package main

import (
	"context"
	"log"
	"log/slog"
	"os"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

	"github.com/samirrijal/eudrsat/internal/adapters/esri"
	natsadapter "github.com/samirrijal/eudrsat/internal/adapters/nats"
	"github.com/samirrijal/eudrsat/internal/adapters/postgres"
	"github.com/samirrijal/eudrsat/internal/adapters/sentinelhub"
	"github.com/samirrijal/eudrsat/internal/adapters/valkey"
	"github.com/samirrijal/eudrsat/internal/pkg/config"
	"github.com/samirrijal/eudrsat/internal/pkg/logging"
	"github.com/samirrijal/eudrsat/internal/workflows"
)

func main() {
	cfg, err := config.Load("eudrsat-worker")
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}
	logging.Setup(logLevel, "json")

	ctx := context.Background()

	acts := &workflows.ImageryActivities{
		Static: esri.NewTileSource(cfg.Esri.BaseURL, cfg.Esri.PrimaryZoom, cfg.Esri.FallbackZoom),
		Processor: sentinelhub.New(sentinelhub.Options{
			TokenURL:      cfg.SentinelHub.TokenURL,
			ProcessURL:    cfg.SentinelHub.ProcessURL,
			ClientID:      cfg.SentinelHub.ClientID,
			ClientSecret:  cfg.SentinelHub.ClientSecret,
			Collection:    cfg.SentinelHub.Collection,
			Gain:          cfg.SentinelHub.Brightness,
			RatePerSecond: cfg.SentinelHub.RatePerSecond,
			Timeout:       cfg.SentinelHub.TimeoutDuration(),
		}),
	}

	db, err := postgres.New(ctx, cfg.Database.DSN())
	if err != nil {
		slog.Warn("database unavailable, cycle journal disabled", "error", err)
	} else {
		defer db.Close()
		acts.Cycles = postgres.NewCycleRepo(db)
	}

	pub, err := natsadapter.NewPublisher(cfg.NATS.URL)
	if err != nil {
		slog.Warn("nats unavailable, cycle events disabled", "error", err)
	} else {
		defer pub.Close()
		acts.Events = pub
	}

	// Rendered images too large for workflow history are parked here
	cache, err := valkey.New(cfg.Valkey.Addr, cfg.Valkey.Prefix)
	if err != nil {
		slog.Warn("valkey unavailable, oversized renders will fall back to static tiles", "error", err)
	} else {
		defer cache.Close()
		acts.Cache = cache
	}

	c, err := client.Dial(client.Options{
		HostPort:  cfg.Temporal.HostPort,
		Namespace: cfg.Temporal.Namespace,
		Logger:    slog.Default(),
	})
	if err != nil {
		log.Fatalf("temporal client: %v", err)
	}
	defer c.Close()

	w := worker.New(c, cfg.Temporal.TaskQueue, worker.Options{})

	w.RegisterWorkflow(workflows.ImageryWorkflow)
	w.RegisterActivity(acts)

	slog.Info("imagery worker started", "task_queue", cfg.Temporal.TaskQueue)
	if err := w.Run(worker.InterruptCh()); err != nil {
		log.Fatalf("worker: %v", err)
	}
}
