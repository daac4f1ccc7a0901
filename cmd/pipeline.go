package main

import (
	"context"
	"log"

	"github.com/mohammad-safakhou/foresight/config"
	"github.com/mohammad-safakhou/foresight/internal/forecast"
	srv "github.com/mohammad-safakhou/foresight/internal/server"
	"github.com/mohammad-safakhou/foresight/internal/store"
	"github.com/mohammad-safakhou/foresight/internal/telemetry"
)

// buildPipeline assembles the forecast pipeline for CLI runs. Postgres and
// Redis are optional here: without them results are printed but not persisted.
func buildPipeline(ctx context.Context, cfg *config.Config) (*forecast.Pipeline, func(), error) {
	logger := log.New(log.Writer(), "[CLI] ", log.LstdFlags)

	var st *store.Store
	if dsn, err := cfg.Storage.Postgres.DSN(); err == nil {
		st, err = store.NewWithDSN(ctx, dsn)
		if err != nil {
			return nil, nil, err
		}
	} else {
		logger.Printf("postgres not configured, results will not be persisted: %v", err)
	}

	var cache *store.Cache
	if cfg.Storage.Redis.Host != "" {
		var err error
		cache, err = store.NewCache(ctx, cfg.Storage.Redis.Addr(), cfg.Storage.Redis.Password, cfg.Storage.Redis.DB, cfg.Storage.Redis.TTL)
		if err != nil {
			return nil, nil, err
		}
	}

	index, err := store.NewArticleIndex(cfg.Storage.IndexPath)
	if err != nil {
		return nil, nil, err
	}

	pipeline, err := srv.BuildPipeline(cfg, st, cache, index, telemetry.New())
	if err != nil {
		return nil, nil, err
	}

	cleanup := func() {
		_ = index.Close()
		if cache != nil {
			_ = cache.Close()
		}
		if st != nil {
			_ = st.DB.Close()
		}
	}
	return pipeline, cleanup, nil
}
