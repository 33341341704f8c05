package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/parkscan/parkscan/internal/geometry"
	"github.com/parkscan/parkscan/pkg/logger"
)

// lookupToleranceDeg bounds how far apart two query points may sit and still
// share a cached nearest-street row. 0.0001 degrees is roughly 11 meters.
const lookupToleranceDeg = 0.0001

// StreetCacheStorage persists resolved street geometries so repeated
// analyses of the same area skip the Overpass round trip. It decorates an
// inner geometry.Provider; cache failures fall through to the inner
// provider and never fail a resolution.
type StreetCacheStorage struct {
	db            *sql.DB
	inner         geometry.Provider
	searchRadiusM float64
	logger        *logger.Logger
}

// NewStreetCacheStorage creates the street cache around inner.
// searchRadiusM must match the inner provider's nearest-street search
// radius: a cached row only satisfies a lookup when it was written with a
// radius at least this large.
func NewStreetCacheStorage(db *sql.DB, inner geometry.Provider, searchRadiusM float64, log *logger.Logger) (*StreetCacheStorage, error) {
	s := &StreetCacheStorage{
		db:            db,
		inner:         inner,
		searchRadiusM: searchRadiusM,
		logger:        log.Named("sqlite-streets"),
	}
	if err := s.initDB(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *StreetCacheStorage) initDB() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS cached_streets (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			query_lat REAL NOT NULL,
			query_lon REAL NOT NULL,
			radius_m REAL NOT NULL,
			street_id TEXT NOT NULL,
			street_name TEXT NOT NULL DEFAULT '',
			highway_type TEXT NOT NULL DEFAULT '',
			geometry TEXT NOT NULL,
			cached_at TIMESTAMP NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create cached_streets table: %w", err)
	}

	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_cached_streets_query ON cached_streets(query_lat, query_lon)`,
		`CREATE INDEX IF NOT EXISTS idx_cached_streets_street_id ON cached_streets(street_id)`,
	}
	for _, indexSQL := range indexes {
		if _, err := s.db.Exec(indexSQL); err != nil {
			return fmt.Errorf("failed to create cached_streets index: %w", err)
		}
	}

	return nil
}

// GeometryFor resolves a street by id, serving from the cache when a row
// for the id exists.
func (s *StreetCacheStorage) GeometryFor(ctx context.Context, streetID string) (*geometry.Street, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT street_id, street_name, highway_type, geometry
		FROM cached_streets
		WHERE street_id = ?
		ORDER BY cached_at DESC
		LIMIT 1`,
		streetID,
	)
	street, err := scanStreet(row)
	if err == nil {
		return street, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		s.logger.Warn("Street cache lookup failed",
			logger.String("street_id", streetID),
			logger.Error(err))
	}

	street, err = s.inner.GeometryFor(ctx, streetID)
	if err != nil {
		return nil, err
	}

	// A by-id fill carries no meaningful query point; radius 0 keeps the
	// row out of nearest-street lookups.
	lat, lon := firstVertex(street)
	s.save(ctx, lat, lon, 0, street)
	return street, nil
}

// NearestStreet resolves the street closest to the point, serving from the
// cache when an earlier lookup for roughly the same point covers it.
func (s *StreetCacheStorage) NearestStreet(ctx context.Context, lat, lon float64) (*geometry.Street, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT street_id, street_name, highway_type, geometry
		FROM cached_streets
		WHERE query_lat BETWEEN ? AND ?
		  AND query_lon BETWEEN ? AND ?
		  AND radius_m >= ?
		ORDER BY cached_at DESC
		LIMIT 1`,
		lat-lookupToleranceDeg, lat+lookupToleranceDeg,
		lon-lookupToleranceDeg, lon+lookupToleranceDeg,
		s.searchRadiusM,
	)
	street, err := scanStreet(row)
	if err == nil {
		return street, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		s.logger.Warn("Street cache lookup failed", logger.Error(err))
	}

	street, err = s.inner.NearestStreet(ctx, lat, lon)
	if err != nil {
		return nil, err
	}

	s.save(ctx, lat, lon, s.searchRadiusM, street)
	return street, nil
}

func (s *StreetCacheStorage) save(ctx context.Context, lat, lon, radiusM float64, street *geometry.Street) {
	data, err := geojson.Marshal(street.Line)
	if err != nil {
		s.logger.Warn("Failed to encode street geometry",
			logger.String("street_id", street.ID),
			logger.Error(err))
		return
	}

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO cached_streets (query_lat, query_lon, radius_m, street_id, street_name, highway_type, geometry, cached_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		lat, lon, radiusM,
		street.ID, street.Name, street.Highway,
		string(data),
		time.Now().UTC().Format(time.RFC3339),
	); err != nil {
		s.logger.Warn("Failed to cache street",
			logger.String("street_id", street.ID),
			logger.Error(err))
	}
}

func scanStreet(row scannable) (*geometry.Street, error) {
	var id, name, highway, geometryJSON string
	if err := row.Scan(&id, &name, &highway, &geometryJSON); err != nil {
		return nil, err
	}

	var g geom.T
	if err := geojson.Unmarshal([]byte(geometryJSON), &g); err != nil {
		return nil, fmt.Errorf("failed to decode street geometry: %w", err)
	}
	line, ok := g.(*geom.LineString)
	if !ok {
		return nil, fmt.Errorf("cached geometry for street %s is not a linestring", id)
	}

	return &geometry.Street{ID: id, Name: name, Highway: highway, Line: line}, nil
}

func firstVertex(street *geometry.Street) (lat, lon float64) {
	if street.Line == nil || street.Line.NumCoords() == 0 {
		return 0, 0
	}
	c := street.Line.Coord(0)
	return c[1], c[0]
}

type scannable interface {
	Scan(dest ...any) error
}
