package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/parkscan/parkscan/internal/analyzer"
	"github.com/parkscan/parkscan/internal/jobs"
	"github.com/parkscan/parkscan/pkg/logger"
)

// ErrResultNotFound is returned when no artifact exists for a handle.
var ErrResultNotFound = errors.New("result not found")

// Interval page sizing. Out-of-range requests fall back to the default.
const (
	DefaultPageSize = 100
	MaxPageSize     = 1000
)

// ResultStorage persists analysis result artifacts and the per-area
// summary rollup.
type ResultStorage struct {
	db     *sql.DB
	logger *logger.Logger
}

// NewResultStorage creates the result store and initializes its schema.
func NewResultStorage(db *sql.DB, log *logger.Logger) (*ResultStorage, error) {
	s := &ResultStorage{
		db:     db,
		logger: log.Named("sqlite-results"),
	}
	if err := s.initDB(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *ResultStorage) initDB() error {
	tables := []string{
		`CREATE TABLE IF NOT EXISTS analysis_results (
			job_id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			center_lat REAL NOT NULL,
			center_lon REAL NOT NULL,
			radius_km REAL NOT NULL,
			as_of TIMESTAMP NOT NULL,
			created_at TIMESTAMP NOT NULL,
			total_signs INTEGER NOT NULL,
			total_intervals INTEGER NOT NULL,
			free_count INTEGER NOT NULL,
			restricted_count INTEGER NOT NULL,
			skipped_count INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS parking_intervals (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			job_id TEXT NOT NULL REFERENCES analysis_results(job_id),
			sign_id TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			street_id TEXT NOT NULL,
			street_name TEXT NOT NULL DEFAULT '',
			allowed INTEGER NOT NULL,
			reason TEXT NOT NULL DEFAULT '',
			start_lat REAL NOT NULL,
			start_lon REAL NOT NULL,
			end_lat REAL NOT NULL,
			end_lon REAL NOT NULL,
			length_m REAL NOT NULL,
			geometry TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS area_summaries (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			center_lat REAL NOT NULL,
			center_lon REAL NOT NULL,
			radius_km REAL NOT NULL,
			total_signs INTEGER NOT NULL,
			total_intervals INTEGER NOT NULL,
			free_count INTEGER NOT NULL,
			restricted_count INTEGER NOT NULL,
			last_analyzed TIMESTAMP NOT NULL,
			UNIQUE(name, center_lat, center_lon, radius_km)
		)`,
	}
	for _, tableSQL := range tables {
		if _, err := s.db.Exec(tableSQL); err != nil {
			return fmt.Errorf("failed to create result table: %w", err)
		}
	}

	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_parking_intervals_job_id ON parking_intervals(job_id)`,
		`CREATE INDEX IF NOT EXISTS idx_area_summaries_name ON area_summaries(name)`,
	}
	for _, indexSQL := range indexes {
		if _, err := s.db.Exec(indexSQL); err != nil {
			return fmt.Errorf("failed to create result index: %w", err)
		}
	}

	return nil
}

// SaveResult stores the report as the artifact for the job and upserts the
// area summary. The returned handle is the job id. Saving the same job
// again replaces the earlier artifact.
func (s *ResultStorage) SaveResult(ctx context.Context, job *jobs.Job, report *analyzer.Report) (string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin result write: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM parking_intervals WHERE job_id = ?`, job.ID,
	); err != nil {
		return "", fmt.Errorf("failed to clear intervals for job %s: %w", job.ID, err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	if _, err := tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO analysis_results
		(job_id, name, center_lat, center_lon, radius_km, as_of, created_at,
		 total_signs, total_intervals, free_count, restricted_count, skipped_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.Name,
		report.CenterLat, report.CenterLon, report.RadiusKm,
		report.AsOf.Format(time.RFC3339), now,
		report.Candidates, len(report.Results),
		report.Free, report.Restricted, report.Skipped,
	); err != nil {
		return "", fmt.Errorf("failed to insert result for job %s: %w", job.ID, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO parking_intervals
		(job_id, sign_id, description, street_id, street_name, allowed, reason,
		 start_lat, start_lon, end_lat, end_lon, length_m, geometry)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return "", fmt.Errorf("failed to prepare interval insert: %w", err)
	}
	defer stmt.Close()

	for _, res := range report.Results {
		iv := res.Interval
		line := geom.NewLineStringFlat(geom.XY, []float64{
			iv.Start[0], iv.Start[1],
			iv.End[0], iv.End[1],
		})
		geometryJSON, err := geojson.Marshal(line)
		if err != nil {
			return "", fmt.Errorf("failed to encode interval for sign %s: %w", iv.SignID, err)
		}

		if _, err := stmt.ExecContext(ctx,
			job.ID,
			iv.SignID,
			res.Sign.Description,
			iv.StreetID,
			iv.StreetName,
			res.Outcome.Allowed,
			res.Outcome.Reason,
			iv.Start[1], iv.Start[0],
			iv.End[1], iv.End[0],
			iv.LengthM(),
			string(geometryJSON),
		); err != nil {
			return "", fmt.Errorf("failed to insert interval for sign %s: %w", iv.SignID, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO area_summaries
		(name, center_lat, center_lon, radius_km,
		 total_signs, total_intervals, free_count, restricted_count, last_analyzed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name, center_lat, center_lon, radius_km) DO UPDATE SET
			total_signs = excluded.total_signs,
			total_intervals = excluded.total_intervals,
			free_count = excluded.free_count,
			restricted_count = excluded.restricted_count,
			last_analyzed = excluded.last_analyzed`,
		job.Name,
		report.CenterLat, report.CenterLon, report.RadiusKm,
		report.Candidates, len(report.Results),
		report.Free, report.Restricted,
		now,
	); err != nil {
		return "", fmt.Errorf("failed to upsert area summary %s: %w", job.Name, err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit result for job %s: %w", job.ID, err)
	}

	s.logger.Info("Stored analysis result",
		logger.String("job_id", job.ID),
		logger.String("name", job.Name),
		logger.Int("intervals", len(report.Results)))
	return job.ID, nil
}

// GetResult returns one page of the artifact stored under handle. Page
// numbers start at 1; page sizes outside [1, MaxPageSize] fall back to
// DefaultPageSize.
func (s *ResultStorage) GetResult(ctx context.Context, handle string, page, pageSize int) (*ResultPage, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > MaxPageSize {
		pageSize = DefaultPageSize
	}

	result := &ResultPage{
		Handle:   handle,
		Page:     page,
		PageSize: pageSize,
	}

	var asOf string
	err := s.db.QueryRowContext(ctx, `
		SELECT name, center_lat, center_lon, radius_km, as_of,
		       total_signs, total_intervals, free_count, restricted_count, skipped_count
		FROM analysis_results
		WHERE job_id = ?`,
		handle,
	).Scan(
		&result.Name,
		&result.CenterLat, &result.CenterLon, &result.RadiusKm,
		&asOf,
		&result.Summary.TotalSigns, &result.Summary.TotalIntervals,
		&result.Summary.FreeCount, &result.Summary.RestrictedCount,
		&result.Summary.SkippedSigns,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrResultNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query result %s: %w", handle, err)
	}
	if result.AsOf, err = time.Parse(time.RFC3339, asOf); err != nil {
		return nil, fmt.Errorf("failed to parse as_of: %w", err)
	}

	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM parking_intervals WHERE job_id = ?`, handle,
	).Scan(&result.TotalIntervals); err != nil {
		return nil, fmt.Errorf("failed to count intervals for %s: %w", handle, err)
	}
	result.TotalPages = (result.TotalIntervals + pageSize - 1) / pageSize

	rows, err := s.db.QueryContext(ctx, `
		SELECT sign_id, description, street_id, street_name, allowed, reason,
		       start_lat, start_lon, end_lat, end_lon, length_m, geometry
		FROM parking_intervals
		WHERE job_id = ?
		ORDER BY id
		LIMIT ? OFFSET ?`,
		handle, pageSize, (page-1)*pageSize,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query intervals for %s: %w", handle, err)
	}
	defer rows.Close()

	for rows.Next() {
		var rec IntervalRecord
		var geometryJSON string
		if err := rows.Scan(
			&rec.SignID, &rec.Description, &rec.StreetID, &rec.StreetName,
			&rec.Allowed, &rec.Reason,
			&rec.StartLat, &rec.StartLon, &rec.EndLat, &rec.EndLon,
			&rec.LengthM, &geometryJSON,
		); err != nil {
			return nil, fmt.Errorf("failed to scan interval: %w", err)
		}
		rec.Geometry = json.RawMessage(geometryJSON)
		result.Intervals = append(result.Intervals, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate intervals for %s: %w", handle, err)
	}

	return result, nil
}

// ListAreaSummaries returns the per-area rollups, most recently analyzed
// first.
func (s *ResultStorage) ListAreaSummaries(ctx context.Context) ([]AreaSummaryRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, center_lat, center_lon, radius_km,
		       total_signs, total_intervals, free_count, restricted_count, last_analyzed
		FROM area_summaries
		ORDER BY last_analyzed DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query area summaries: %w", err)
	}
	defer rows.Close()

	var summaries []AreaSummaryRecord
	for rows.Next() {
		var rec AreaSummaryRecord
		var lastAnalyzed string
		if err := rows.Scan(
			&rec.Name,
			&rec.CenterLat, &rec.CenterLon, &rec.RadiusKm,
			&rec.TotalSigns, &rec.TotalIntervals,
			&rec.FreeCount, &rec.RestrictedCount,
			&lastAnalyzed,
		); err != nil {
			return nil, fmt.Errorf("failed to scan area summary: %w", err)
		}
		if rec.LastAnalyzed, err = time.Parse(time.RFC3339, lastAnalyzed); err != nil {
			return nil, fmt.Errorf("failed to parse last_analyzed: %w", err)
		}
		summaries = append(summaries, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate area summaries: %w", err)
	}

	return summaries, nil
}
