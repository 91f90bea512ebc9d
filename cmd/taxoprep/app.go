package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/cognicore/taxoprep/internal/logging"
	"github.com/cognicore/taxoprep/internal/metrics"
	"github.com/cognicore/taxoprep/internal/notify"
	"github.com/cognicore/taxoprep/pkg/taxoprep"
	"github.com/cognicore/taxoprep/pkg/taxoprep/cache"
	"github.com/cognicore/taxoprep/pkg/taxoprep/config"
	"github.com/cognicore/taxoprep/pkg/taxoprep/dataset"
	"github.com/cognicore/taxoprep/pkg/taxoprep/store"
	"github.com/cognicore/taxoprep/pkg/taxoprep/store/memstore"
	"github.com/cognicore/taxoprep/pkg/taxoprep/store/sqlite"
)

// app holds everything a subcommand needs, built from the config.
type app struct {
	cfg      *config.Config
	ds       *dataset.Dataset
	store    store.Store
	cache    *cache.Cache
	metrics  *metrics.Metrics
	notifier notify.Notifier
	prep     *taxoprep.Preprocessor

	stopMetrics context.CancelFunc
}

func newApp(ctx context.Context, opts *rootOptions, writeHierarchy bool) (*app, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	if opts.logLevel != "" {
		cfg.Logging.Level = opts.logLevel
	}
	if opts.metricsAddr != "" {
		cfg.Metrics.Enabled = true
		cfg.Metrics.Addr = opts.metricsAddr
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	logger := logging.WithComponent("cli")

	path := cfg.DatasetPath()
	if cfg.Dataset.Download {
		if url := cfg.DatasetURL(); url != "" {
			if _, err := dataset.Fetch(ctx, url, path); err != nil {
				return nil, fmt.Errorf("fetching dataset: %w", err)
			}
		}
	}
	ds, err := dataset.Load(path, dataset.Options{
		TextColumn:     cfg.Dataset.TextColumn,
		CategoryColumn: cfg.Dataset.CategoryColumn,
	})
	if err != nil {
		return nil, err
	}
	logger.Info("dataset loaded", "path", path, "records", ds.Len())

	comp, err := cfg.NewLoader().Load()
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, ds: ds, stopMetrics: func() {}}

	outDir := cfg.OutputDir()
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}
	switch cfg.Manifest.Driver {
	case "memory":
		a.store = memstore.New()
	default:
		manifestPath := cfg.ManifestPath()
		if err := os.MkdirAll(filepath.Dir(manifestPath), 0755); err != nil {
			return nil, fmt.Errorf("creating manifest directory: %w", err)
		}
		a.store, err = sqlite.OpenSQLite(ctx, manifestPath)
		if err != nil {
			return nil, err
		}
	}
	a.cache = cache.New(outDir, a.store)

	a.metrics = metrics.New()
	if cfg.Metrics.Enabled {
		mctx, cancel := context.WithCancel(ctx)
		a.stopMetrics = cancel
		go func() {
			if err := a.metrics.Serve(mctx, cfg.Metrics.Addr); err != nil {
				slog.Error("metrics server failed", "addr", cfg.Metrics.Addr, "error", err)
			}
		}()
	}

	if cfg.Kafka.Enabled {
		a.notifier = notify.NewKafka(cfg.Kafka.Brokers, cfg.Kafka.Topic)
	} else {
		a.notifier = notify.Nop{}
	}

	hierarchyPath := ""
	if writeHierarchy {
		hierarchyPath = cfg.HierarchyPath()
	}
	a.prep, err = taxoprep.New(taxoprep.Options{
		Dataset:        ds,
		Delimiter:      cfg.Dataset.Delimiter,
		Cleaner:        comp.Cleaner,
		Tokenizer:      comp.Tokenizer,
		Cache:          a.cache,
		Seed:           cfg.Preprocess.Seed,
		ExtraLength:    cfg.Preprocess.ExtraLength,
		Workers:        cfg.Preprocess.Workers,
		SkipSingletons: cfg.Preprocess.SkipSingletons,
		HierarchyPath:  hierarchyPath,
		Metrics:        a.metrics,
		Notifier:       a.notifier,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// Close releases the store, the notifier and the metrics server.
func (a *app) Close() {
	a.stopMetrics()
	if a.notifier != nil {
		if err := a.notifier.Close(); err != nil {
			slog.Warn("closing notifier", "error", err)
		}
	}
	if a.store != nil {
		a.store.Close()
	}
}
