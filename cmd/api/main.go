package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/samirrijal/eudrsat/internal/adapters/esri"
	"github.com/samirrijal/eudrsat/internal/adapters/http"
	natsadapter "github.com/samirrijal/eudrsat/internal/adapters/nats"
	"github.com/samirrijal/eudrsat/internal/adapters/postgres"
	"github.com/samirrijal/eudrsat/internal/adapters/sentinelhub"
	"github.com/samirrijal/eudrsat/internal/adapters/valkey"
	"github.com/samirrijal/eudrsat/internal/core/usecases"
	"github.com/samirrijal/eudrsat/internal/pkg/config"
	"github.com/samirrijal/eudrsat/internal/pkg/logging"
	"github.com/samirrijal/eudrsat/internal/pkg/portals"
	"github.com/samirrijal/eudrsat/internal/pkg/telemetry"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	cfg, err := config.Load("eudrsat-api")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	// Structured logging
	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}
	logging.Setup(logLevel, "json")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Telemetry
	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.TempoAddr)
		if err != nil {
			slog.Warn("telemetry init failed", "error", err)
		} else {
			defer func() { _ = shutdown(context.Background()) }()
		}
	}

	deps := &http.Dependencies{Version: version}

	// Database (cycle journal). The service runs without it.
	db, err := postgres.New(ctx, cfg.Database.DSN())
	if err != nil {
		slog.Warn("database unavailable, cycle journal disabled", "error", err)
	} else {
		defer db.Close()
		go db.ReportPoolStats(ctx, 15*time.Second)
		deps.DB = db
	}

	// Cache
	cache, err := valkey.New(cfg.Valkey.Addr, cfg.Valkey.Prefix)
	if err != nil {
		slog.Warn("valkey unavailable", "error", err)
	} else {
		defer cache.Close()
		deps.Cache = cache
	}

	// NATS
	pub, err := natsadapter.NewPublisher(cfg.NATS.URL)
	if err != nil {
		slog.Warn("nats unavailable", "error", err)
	} else {
		defer pub.Close()
		deps.Broker = pub
	}
	sub, err := natsadapter.NewSubscriber(cfg.NATS.URL)
	if err != nil {
		slog.Warn("nats subscriber unavailable", "error", err)
	} else {
		defer sub.Close()
		deps.Events = sub
	}

	beforeWindow, _ := cfg.Imagery.BeforeWindow()
	linkWindow, _ := cfg.Links.Window()
	links := portals.Generator{Window: linkWindow, Zoom: cfg.Links.Zoom}
	static := esri.NewTileSource(cfg.Esri.BaseURL, cfg.Esri.PrimaryZoom, cfg.Esri.FallbackZoom)
	processor := sentinelhub.New(sentinelhub.Options{
		TokenURL:      cfg.SentinelHub.TokenURL,
		ProcessURL:    cfg.SentinelHub.ProcessURL,
		ClientID:      cfg.SentinelHub.ClientID,
		ClientSecret:  cfg.SentinelHub.ClientSecret,
		Collection:    cfg.SentinelHub.Collection,
		Gain:          cfg.SentinelHub.Brightness,
		RatePerSecond: cfg.SentinelHub.RatePerSecond,
		Timeout:       cfg.SentinelHub.TimeoutDuration(),
	})

	imageryDeps := usecases.ImageryDeps{
		Static:    static,
		Processor: processor,
		Links:     links,
	}
	if db != nil {
		cycleRepo := postgres.NewCycleRepo(db)
		imageryDeps.Cycles = cycleRepo
		deps.Cycles = usecases.NewCycleService(cycleRepo)
	}
	if pub != nil {
		imageryDeps.Events = pub
	}
	if cache != nil {
		imageryDeps.Cache = cache
	}

	imagerySvc := usecases.NewImageryService(imageryDeps, usecases.ImagerySettings{
		Authenticated: cfg.UseAuthenticated(),
		Parallel:      cfg.Imagery.ParallelFetch,
		BeforeWindow:  beforeWindow,
		RecentMonths:  cfg.Imagery.RecentMonths,
		Width:         cfg.Imagery.Width,
		Height:        cfg.Imagery.Height,
		Format:        cfg.Imagery.Format,
		PrimaryZoom:   cfg.Esri.PrimaryZoom,
		FallbackZoom:  cfg.Esri.FallbackZoom,
		CacheTTL:      cfg.Imagery.CacheTTL,
		SceneMaxCloud: float64(cfg.Imagery.SceneMaxCloud),
	})
	deps.Imagery = imagerySvc
	deps.Areas = usecases.NewAreaService(links, static, imagerySvc)

	slog.Info("imagery strategy selected",
		"authenticated", cfg.UseAuthenticated(),
		"parallel", cfg.Imagery.ParallelFetch,
		"journal", db != nil,
	)

	// Drop idle sessions
	sessionTTL := time.Duration(cfg.Server.SessionTTL) * time.Second
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := imagerySvc.Sessions().Prune(sessionTTL); n > 0 {
					slog.Debug("pruned idle sessions", "count", n)
				}
			}
		}
	}()

	app := http.NewApp(http.AppConfig{
		ReadTimeout:   time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout:  time.Duration(cfg.Server.WriteTimeout) * time.Second,
		AllowOrigins:  cfg.Server.AllowOrigins,
		RatePerMinute: cfg.Server.RatePerMinute,
	})
	http.SetupRoutes(app, deps)

	// Graceful shutdown
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		slog.Info("API server starting", "addr", addr, "version", version)
		if err := app.Listen(addr); err != nil {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("shutdown signal received, draining connections...", "signal", sig.String())

	// In-flight fetch cycles get the full request timeout to finish.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		slog.Error("forced shutdown", "error", err)
	}
	// Cycle events still on their way to the broker
	imagerySvc.Wait()

	slog.Info("server stopped")
}
