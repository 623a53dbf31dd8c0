package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/magefree/tabletop-server-go/internal/catalog"
	"github.com/magefree/tabletop-server-go/internal/config"
	"github.com/magefree/tabletop-server-go/internal/coordinator"
	"github.com/magefree/tabletop-server-go/internal/repository"
	"go.uber.org/zap"
)

// dependencies are the collaborators the coordinator is built from.
type dependencies struct {
	store   coordinator.Store
	catalog catalog.Catalog
	cache   *catalog.Cached
	closers []func()
}

// Close releases resources in reverse order of acquisition.
func (d *dependencies) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
}

func openDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*dependencies, error) {
	deps := &dependencies{}

	var db *repository.DB
	needPostgres := cfg.Storage.Driver == config.DriverPostgres || cfg.Catalog.Source == config.SourcePostgres
	if needPostgres {
		var err error
		db, err = repository.NewDB(ctx, cfg.Storage.Postgres, logger.Named("db"))
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		deps.closers = append(deps.closers, db.Close)

		stats := db.Stats()
		logger.Info("database connection pool initialized",
			zap.Int32("total_conns", stats.TotalConns()),
			zap.Int32("idle_conns", stats.IdleConns()),
		)
	}

	store, err := openStore(cfg.Storage, db, deps)
	if err != nil {
		deps.Close()
		return nil, err
	}
	deps.store = store

	source, err := openCatalog(cfg.Catalog, db, logger.Named("catalog"))
	if err != nil {
		deps.Close()
		return nil, err
	}
	deps.cache = catalog.NewCached(source, cfg.Catalog.CacheTTL, logger.Named("catalog"))
	deps.catalog = deps.cache
	return deps, nil
}

func openStore(cfg config.StorageConfig, db *repository.DB, deps *dependencies) (coordinator.Store, error) {
	switch cfg.Driver {
	case config.DriverMemory:
		return repository.NewMemoryStore(), nil
	case config.DriverSQLite:
		store, err := repository.OpenSQLite(cfg.SQLite.Path)
		if err != nil {
			return nil, err
		}
		deps.closers = append(deps.closers, func() { _ = store.Close() })
		return store, nil
	case config.DriverPostgres:
		if db == nil {
			return nil, errors.New("postgres store requires a database connection")
		}
		return repository.NewPostgresStore(db), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

// openCatalog builds the configured deck source. The fixture file, when
// present, always answers first so local decks work offline.
func openCatalog(cfg config.CatalogConfig, db *repository.DB, logger *zap.Logger) (catalog.Catalog, error) {
	fixture, err := loadFixture(cfg.FixturePath)
	if err != nil {
		return nil, err
	}

	var chain catalog.Chain
	if fixture != nil {
		chain = append(chain, fixture)
		logger.Info("loaded deck fixture", zap.String("path", cfg.FixturePath), zap.Int("decks", len(fixture.Decks())))
	}

	switch cfg.Source {
	case config.SourceStatic:
		if fixture == nil {
			return nil, fmt.Errorf("catalog fixture %s not found", cfg.FixturePath)
		}
	case config.SourceMarvelCDB:
		remote, err := catalog.NewMarvelCDB(cfg.MarvelCDB, nil, logger.Named("marvelcdb"))
		if err != nil {
			return nil, err
		}
		chain = append(chain, remote)
	case config.SourcePostgres:
		if db == nil {
			return nil, errors.New("postgres catalog requires a database connection")
		}
		chain = append(chain, catalog.NewPostgres(db.Pool))
	default:
		return nil, fmt.Errorf("unknown catalog source %q", cfg.Source)
	}
	return chain, nil
}

func loadFixture(path string) (*catalog.Static, error) {
	if path == "" {
		return nil, nil
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	return catalog.LoadStaticFile(path)
}
