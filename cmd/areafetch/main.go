// Command areafetch resolves an area and fetches its before/now imagery from
// the command line.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/samirrijal/eudrsat/internal/adapters/esri"
	"github.com/samirrijal/eudrsat/internal/adapters/sentinelhub"
	"github.com/samirrijal/eudrsat/internal/core/usecases"
	"github.com/samirrijal/eudrsat/internal/pkg/config"
	"github.com/samirrijal/eudrsat/internal/pkg/logging"
	"github.com/samirrijal/eudrsat/internal/pkg/portals"
)

var version = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of areafetch",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("areafetch " + version)
	},
}

func main() {
	var logLevel string
	command := &cobra.Command{
		Use: "areafetch",
		Long: `
  areafetch resolves a GeoJSON area or a point into bounds and fetches
  before/now satellite imagery for it.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logging.Setup(logLevel, "text")
		},
	}
	command.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level (debug, info, warn, error)")

	command.AddCommand(newFetchCmd())
	command.AddCommand(newLinksCmd())
	command.AddCommand(newWatchCmd())
	command.AddCommand(versionCmd)

	if err := command.Execute(); err != nil {
		os.Exit(1)
	}
}

// services builds the in-process imagery stack from configuration. No
// journal, broker or cache is attached.
type services struct {
	cfg     *config.Config
	imagery *usecases.ImageryService
	areas   *usecases.AreaService
}

func loadServices() *services {
	cfg, err := config.Load("eudrsat-areafetch")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	beforeWindow, _ := cfg.Imagery.BeforeWindow()
	linkWindow, _ := cfg.Links.Window()
	links := portals.Generator{Window: linkWindow, Zoom: cfg.Links.Zoom}
	static := esri.NewTileSource(cfg.Esri.BaseURL, cfg.Esri.PrimaryZoom, cfg.Esri.FallbackZoom)

	imagery := usecases.NewImageryService(usecases.ImageryDeps{
		Static: static,
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
		Links: links,
	}, usecases.ImagerySettings{
		Authenticated: cfg.UseAuthenticated(),
		Parallel:      cfg.Imagery.ParallelFetch,
		BeforeWindow:  beforeWindow,
		RecentMonths:  cfg.Imagery.RecentMonths,
		Width:         cfg.Imagery.Width,
		Height:        cfg.Imagery.Height,
		Format:        cfg.Imagery.Format,
		PrimaryZoom:   cfg.Esri.PrimaryZoom,
		FallbackZoom:  cfg.Esri.FallbackZoom,
		SceneMaxCloud: float64(cfg.Imagery.SceneMaxCloud),
	})

	return &services{
		cfg:     cfg,
		imagery: imagery,
		areas:   usecases.NewAreaService(links, static, imagery),
	}
}
