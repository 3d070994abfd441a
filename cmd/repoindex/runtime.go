package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/dshills/repoindex/internal/chunker"
	"github.com/dshills/repoindex/internal/config"
	"github.com/dshills/repoindex/internal/embedder"
	"github.com/dshills/repoindex/internal/indexer"
	"github.com/dshills/repoindex/internal/keypool"
	"github.com/dshills/repoindex/internal/parser"
	"github.com/dshills/repoindex/internal/searcher"
	"github.com/dshills/repoindex/internal/storage"
)

// app holds the components shared by every command
type app struct {
	cfg      *config.Config
	registry *storage.Registry
	embedder embedder.Embedder
	keys     *keypool.Pool
	indexer  *indexer.Indexer
	searcher *searcher.Searcher
}

// newApp loads the configuration, applies the persistent flags and the
// command's overrides, and wires the components together. The indexer and
// searcher share one embedder.
func newApp(overrides ...func(*config.Config)) (*app, error) {
	cfg, err := config.Read(flagConfig)
	if err != nil {
		return nil, err
	}
	if flagProvider != "" {
		cfg.SetProvider(flagProvider)
	}
	if flagDataDir != "" {
		cfg.DataDir = flagDataDir
	}
	if flagLogLevel != "" {
		cfg.LogLevel = flagLogLevel
	}
	for _, override := range overrides {
		override(cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.ConfigureLogging()

	keys := cfg.EmbeddingKeys()
	emb, err := embedder.New(cfg.Embedder(), keys)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	resolve, err := cfg.SourceResolver()
	if err != nil {
		_ = emb.Close()
		return nil, err
	}

	registry := storage.NewRegistry(cfg.DataDir)
	idx := indexer.New(registry, resolve, chunker.New(parser.New()), emb, indexer.Config{
		MaxFileSize:         cfg.Indexer.MaxFileSize,
		SupportedExtensions: cfg.Indexer.Extensions,
		SkipDirs:            cfg.Indexer.SkipDirs,
		Workers:             cfg.Indexer.Workers,
		Prune:               cfg.Indexer.Prune,
	})

	log.WithFields(log.Fields{
		"data_dir": cfg.DataDir,
		"provider": emb.Provider(),
		"model":    emb.Model(),
		"source":   cfg.Source.Kind,
	}).Debug("repoindex configured")

	return &app{
		cfg:      cfg,
		registry: registry,
		embedder: emb,
		keys:     keys,
		indexer:  idx,
		searcher: searcher.New(registry, emb),
	}, nil
}

func (a *app) Close() {
	if err := a.registry.Close(); err != nil {
		log.WithError(err).Warn("failed to close indexes")
	}
	_ = a.embedder.Close()
}

// signalContext is cancelled on SIGINT or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// withApp runs fn with a configured app and a signal-aware context
func withApp(fn func(ctx context.Context, a *app) error, overrides ...func(*config.Config)) error {
	a, err := newApp(overrides...)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := signalContext()
	defer cancel()
	return fn(ctx, a)
}

func printStats(repo string, indexed, skipped, errs int) {
	fmt.Printf("%s: %d indexed, %d skipped, %d errors\n", repo, indexed, skipped, errs)
}
