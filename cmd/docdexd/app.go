package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/covelabs/docdex/internal/chunker"
	"github.com/covelabs/docdex/internal/collections"
	"github.com/covelabs/docdex/internal/config"
	"github.com/covelabs/docdex/internal/embeddings"
	"github.com/covelabs/docdex/internal/extract"
	"github.com/covelabs/docdex/internal/filestore"
	"github.com/covelabs/docdex/internal/httpapi"
	"github.com/covelabs/docdex/internal/ingest"
	"github.com/covelabs/docdex/internal/logging"
	"github.com/covelabs/docdex/internal/metrics"
	"github.com/covelabs/docdex/internal/permissions"
	"github.com/covelabs/docdex/internal/reconcile"
	"github.com/covelabs/docdex/internal/retrieval"
	"github.com/covelabs/docdex/internal/store"
	"github.com/covelabs/docdex/internal/tasks"
	"github.com/covelabs/docdex/internal/vectorindex"
)

// App holds every built component. Commands construct the parts they
// need through the build* methods and close them in reverse order.
type App struct {
	Config *config.Config
	Logger *logging.Logger

	Store  *store.Store
	Engine *permissions.Engine
	Dense  embeddings.Provider
	Sparse *embeddings.SparseEncoder
	Index  vectorindex.Index
	Files  filestore.Store
	Runner *tasks.Runner

	Collections *collections.Service
	Ingest      *ingest.Service
	Retrieval   *retrieval.Service
	Server      *httpapi.Server
}

func newApp(configPath string) (*App, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	logCfg := logging.NewDefaultConfig()
	if cfg.Logging.Level != "" {
		level, err := zapcore.ParseLevel(cfg.Logging.Level)
		if err != nil {
			return nil, fmt.Errorf("parsing log level: %w", err)
		}
		logCfg.Level = level
	}
	if cfg.Logging.Format != "" {
		logCfg.Format = cfg.Logging.Format
	}
	logger, err := logging.New(logCfg)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}

	return &App{Config: cfg, Logger: logger}, nil
}

// buildCore opens the store and the pipeline components shared by the
// serve and reconcile commands.
func (a *App) buildCore(ctx context.Context) error {
	st, err := store.Open(a.Config.Database.DSN, a.Logger)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	a.Store = st
	a.Engine = permissions.NewEngine(st, a.Config.Auth.AdminEmails)

	dense, err := embeddings.NewProvider(a.Config.Embeddings, a.Logger)
	if err != nil {
		return fmt.Errorf("creating embedding provider: %w", err)
	}
	a.Dense = dense
	a.Sparse = embeddings.NewSparseEncoder()

	index, err := vectorindex.NewQdrantIndex(a.Config.Qdrant, a.Config.Embeddings.Dimension, a.Logger)
	if err != nil {
		return fmt.Errorf("connecting to qdrant: %w", err)
	}
	if err := index.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("ensuring index schema: %w", err)
	}
	a.Index = index
	return nil
}

// buildServices assembles the request-serving layer on top of the core.
func (a *App) buildServices(ctx context.Context) error {
	files, err := filestore.New(ctx, a.Config.FileStore, a.Logger)
	if err != nil {
		return fmt.Errorf("creating file store: %w", err)
	}
	a.Files = files

	runner, err := tasks.NewRunner(a.Config.Ingest.IndexWorkers, a.Logger)
	if err != nil {
		return fmt.Errorf("creating task runner: %w", err)
	}
	a.Runner = runner

	chk, err := chunker.New(a.Config.Ingest.ChunkSize, a.Config.Ingest.ChunkOverlap)
	if err != nil {
		return fmt.Errorf("creating chunker: %w", err)
	}

	a.Collections = collections.NewService(a.Store, a.Engine, a.Index, a.Files, a.Runner, a.Logger)
	a.Ingest = ingest.NewService(ingest.Options{
		Store:      a.Store,
		Engine:     a.Engine,
		Chunker:    chk,
		Dense:      a.Dense,
		Sparse:     a.Sparse,
		Index:      a.Index,
		Files:      a.Files,
		Extract:    extract.NewRegistry(),
		Runner:     a.Runner,
		Logger:     a.Logger,
		PresignTTL: a.Config.FileStore.PresignTTL,
	})
	a.Retrieval = retrieval.NewService(
		a.Store, a.Engine, a.Dense, a.Sparse, a.Index, a.Files,
		a.Config.Search, a.Config.FileStore.PresignTTL, a.Logger,
	)

	metrics.RegisterAll()
	a.Server = httpapi.NewServer(
		a.Config.Server, a.Store, a.Collections, a.Ingest, a.Retrieval,
		a.Config.Auth.AdminEmails, a.Logger,
	)
	return nil
}

func (a *App) reconciler() *reconcile.Reconciler {
	return reconcile.New(a.Store, a.Index, a.Dense, a.Sparse, a.Logger, 0)
}

// Close releases components in reverse dependency order. Safe to call
// with a partially built app.
func (a *App) Close() {
	ctx := context.Background()
	if a.Runner != nil {
		a.Runner.Close()
	}
	if a.Files != nil {
		if err := a.Files.Close(); err != nil {
			a.Logger.Warn(ctx, "closing file store", zap.Error(err))
		}
	}
	if a.Index != nil {
		if err := a.Index.Close(); err != nil {
			a.Logger.Warn(ctx, "closing vector index", zap.Error(err))
		}
	}
	if a.Dense != nil {
		if err := a.Dense.Close(); err != nil {
			a.Logger.Warn(ctx, "closing embedding provider", zap.Error(err))
		}
	}
	_ = a.Logger.Sync()
}
