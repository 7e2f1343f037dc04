package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/pagelift/pagelift/internal/api"
	"github.com/pagelift/pagelift/internal/config"
	"github.com/pagelift/pagelift/internal/fetch"
	"github.com/pagelift/pagelift/internal/ocr"
	"github.com/pagelift/pagelift/internal/pdfimages"
	"github.com/pagelift/pagelift/internal/pipeline"
	"github.com/pagelift/pagelift/internal/resolve"
	"github.com/pagelift/pagelift/internal/settings"
	"github.com/pagelift/pagelift/internal/storage"
	"github.com/pagelift/pagelift/pkg/logging"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "pagelift",
	Short: "OCR document pipeline: PDFs and scans in, markdown with resolved images out",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load()
		if err != nil {
			return err
		}
		cfg = loaded
		return logging.SetupLogger(&logging.LogConfig{
			Level:  cfg.LogLevel,
			Format: cfg.LogFormat,
		})
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(processCmd)
}

// services bundles the wired collaborators shared by the serve and
// process commands.
type services struct {
	store    *storage.FileStore
	settings settings.Store
	ocr      *ocr.Client
	pipeline *pipeline.Pipeline
	fetcher  *fetch.Fetcher
	handlers *api.Handlers
}

func buildServices(ctx context.Context) (*services, error) {
	metrics := storage.NewSimpleMetricsCollector()

	store, err := storage.NewFileStore(cfg.DataDir, metrics)
	if err != nil {
		return nil, err
	}

	var settingsStore settings.Store
	if cfg.DatabaseURL != "" {
		settingsStore, err = settings.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
	} else {
		settingsStore = settings.NewMemoryStore()
	}

	var archive pipeline.Archiver
	if cfg.ArchiveRepoPath != "" {
		gitArchive, err := storage.NewGitArchive(cfg.ArchiveRepoPath, metrics)
		if err != nil {
			return nil, err
		}
		archive = gitArchive
	}

	client := ocr.NewClient(cfg)
	extractor := pdfimages.NewExtractor(cfg)
	resolver := resolve.NewEngine(store, extractor)
	pipe := pipeline.New(client, resolver, store, archive)
	fetcher := fetch.NewFetcher(cfg)

	return &services{
		store:    store,
		settings: settingsStore,
		ocr:      client,
		pipeline: pipe,
		fetcher:  fetcher,
		handlers: api.NewHandlers(cfg, pipe, fetcher, client, extractor, store, settingsStore),
	}, nil
}
