package main

import (
	"context"
	"fmt"

	"jobmarket/internal/analytics"
	"jobmarket/internal/cache"
	"jobmarket/internal/config"
	apperrors "jobmarket/internal/errors"
	"jobmarket/internal/storage"
)

// loadPipeline reads path, or returns the default pipeline when path is
// empty. Validation errors are returned as InvalidConfig.
func loadPipeline(path string) (config.Pipeline, error) {
	p := config.Default()
	if path != "" {
		var err error
		if p, err = config.Load(path); err != nil {
			return p, err
		}
	}
	if issues := config.ValidatePipeline(p); config.HasErrors(issues) {
		return p, apperrors.InvalidConfig(fmt.Sprintf("pipeline %s: %v", pipelineName(path), issues), nil)
	}
	return p, nil
}

func pipelineName(path string) string {
	if path == "" {
		return "(default)"
	}
	return path
}

func storeConfig(p config.Pipeline) storage.Config {
	return storage.Config{
		Kind:      p.Storage.Kind,
		DSN:       p.Storage.ExpandedDSN(),
		Table:     p.Storage.Table,
		BatchSize: p.Runtime.BatchSize,
	}
}

func openRepo(ctx context.Context, p config.Pipeline) (storage.Repository, error) {
	repo, err := storage.New(ctx, storeConfig(p))
	if err != nil {
		return nil, apperrors.StoreUnavailable(p.Storage.Kind, err)
	}
	return repo, nil
}

// openCache builds the results cache. A cache that cannot be reached is
// logged and replaced by a no-op cache; reports still work without it.
func (a *app) openCache(ctx context.Context, p config.Pipeline) cache.Cache {
	c, err := cache.New(ctx, p.Cache)
	if err != nil {
		a.log.Warn("cache unavailable; querying the store directly", "kind", p.Cache.Kind, "error", err)
		return cache.Noop{}
	}
	return c
}

// openEngine connects to the store of p and checks that the table has been
// loaded. The returned func releases the store and cache.
func (a *app) openEngine(ctx context.Context, p config.Pipeline) (*analytics.Engine, func(), error) {
	repo, err := openRepo(ctx, p)
	if err != nil {
		return nil, nil, err
	}
	cols, err := storage.TableColumns(ctx, repo, p.Storage.Table)
	if err != nil || len(cols) == 0 {
		repo.Close()
		if err == nil {
			err = fmt.Errorf("table %s does not exist", p.Storage.Table)
		}
		return nil, nil, apperrors.QueryFailed("open "+p.Storage.Table, fmt.Errorf("%w; run `jobmarket ingest` first", err))
	}

	c := a.openCache(ctx, p)
	eng := &analytics.Engine{
		Repo:     repo,
		Table:    p.Storage.Table,
		Cache:    c,
		CacheTTL: p.Cache.TTL(),
		Logger:   a.log,
	}
	closeAll := func() {
		if err := c.Close(); err != nil {
			a.log.Warn("cache close", "error", err)
		}
		repo.Close()
	}
	return eng, closeAll, nil
}
