package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bakkerme/curator-streams/internal/config"
	"github.com/bakkerme/curator-streams/internal/enrich"
	"github.com/bakkerme/curator-streams/internal/observability/otelx"
	"github.com/bakkerme/curator-streams/internal/runner/factory"
	"github.com/bakkerme/curator-streams/internal/store"
)

// app holds what every command that polls feeds needs.
type app struct {
	env           config.EnvConfig
	logger        *slog.Logger
	doc           *config.StreamsDocument
	store         *store.SQLiteStore
	directory     *enrich.Directory
	directoryPath string
	factory       *factory.Factory
	shutdown      otelx.Shutdown
}

func newApp(ctx context.Context) (*app, error) {
	env := environment()
	logger := newLogger(env.LogLevel)

	doc, err := config.LoadDocument(env.StreamsConfigPath)
	if err != nil {
		return nil, err
	}

	a := &app{env: env, logger: logger, doc: doc, directory: enrich.NewDirectory(nil)}
	a.directoryPath = env.DirectoryPath
	if a.directoryPath == "" {
		a.directoryPath = doc.Directory
	}
	if err := a.reloadDirectory(); err != nil {
		return nil, err
	}

	a.shutdown, err = otelx.Init(ctx, logger, env.OTel)
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}

	a.store, err = store.NewSQLiteStore(env.DBPath)
	if err != nil {
		_ = a.shutdown(ctx)
		return nil, err
	}
	a.factory = factory.NewFromEnvConfig(logger, env, a.store, a.directory)
	return a, nil
}

// reloadDirectory swaps in a freshly loaded enrichment directory.
func (a *app) reloadDirectory() error {
	if a.directoryPath == "" {
		return nil
	}
	snapshot, err := enrich.LoadFile(a.directoryPath)
	if err != nil {
		return err
	}
	a.directory.Swap(snapshot)
	users, lists := snapshot.Counts()
	a.logger.Info("Directory loaded",
		slog.String("path", a.directoryPath),
		slog.Int("users", users),
		slog.Int("lists", lists))
	return nil
}

func (a *app) Close(ctx context.Context) {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Error("Failed to close store", slog.String("error", err.Error()))
		}
	}
	if a.shutdown != nil {
		if err := a.shutdown(ctx); err != nil {
			a.logger.Error("Failed to shut down tracing", slog.String("error", err.Error()))
		}
	}
}
