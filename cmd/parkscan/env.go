package main

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/parkscan/parkscan/internal/analyzer"
	"github.com/parkscan/parkscan/internal/geometry"
	"github.com/parkscan/parkscan/internal/observability"
	"github.com/parkscan/parkscan/internal/storage/sqlite"
	"github.com/parkscan/parkscan/pkg/logger"
)

// runtime bundles the storage and analysis stack shared by the commands.
type runtime struct {
	db       *sql.DB
	signs    *sqlite.SignStorage
	results  *sqlite.ResultStorage
	analyzer *analyzer.Analyzer
	metrics  *observability.Metrics
}

func (rt *runtime) Close() {
	if err := rt.db.Close(); err != nil {
		log.Warn("Failed to close database", logger.Error(err))
	}
}

// initRuntime opens the database, creates the schema, and wires the geometry
// provider chain: an in-memory LRU in front of the persistent street cache
// in front of Overpass.
func initRuntime() (*runtime, error) {
	db, err := sqlite.Open(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	signStore, err := sqlite.NewSignStorage(db, log)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init sign storage: %w", err)
	}

	resultStore, err := sqlite.NewResultStorage(db, log)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init result storage: %w", err)
	}

	overpassProvider := geometry.NewOverpassProvider(
		cfg.Geometry.OverpassURL,
		time.Duration(cfg.Geometry.RequestTimeoutSeconds)*time.Second,
		cfg.Geometry.RequestsPerSecond,
		cfg.Geometry.SearchRadiusMeters,
		cfg.Geometry.MaxRetries,
		log,
	)

	streetCache, err := sqlite.NewStreetCacheStorage(db, overpassProvider, cfg.Geometry.SearchRadiusMeters, log)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init street cache: %w", err)
	}

	provider := geometry.NewCachedProvider(streetCache, cfg.Geometry.CacheSize)
	builder := geometry.NewBuilder(cfg.Geometry.MaxSnapMeters, cfg.Geometry.IntervalLengthMeters, log)
	metrics := observability.NewMetrics()

	return &runtime{
		db:       db,
		signs:    signStore,
		results:  resultStore,
		analyzer: analyzer.New(cfg.Analysis, signStore, provider, builder, log),
		metrics:  metrics,
	}, nil
}
