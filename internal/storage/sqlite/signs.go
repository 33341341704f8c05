package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/parkscan/parkscan/internal/analyzer"
	"github.com/parkscan/parkscan/internal/geometry"
	"github.com/parkscan/parkscan/internal/signs"
	"github.com/parkscan/parkscan/pkg/logger"
)

// SignStorage persists imported parking signs and serves them back as the
// analyzer's sign feed.
type SignStorage struct {
	db     *sql.DB
	logger *logger.Logger
}

// NewSignStorage creates the sign store and initializes its schema.
func NewSignStorage(db *sql.DB, log *logger.Logger) (*SignStorage, error) {
	s := &SignStorage{
		db:     db,
		logger: log.Named("sqlite-signs"),
	}
	if err := s.initDB(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SignStorage) initDB() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS parking_signs (
			sign_id TEXT PRIMARY KEY,
			lat REAL NOT NULL,
			lon REAL NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			arrow INTEGER NOT NULL DEFAULT 0,
			imported_at TIMESTAMP NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create parking_signs table: %w", err)
	}

	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_parking_signs_lat ON parking_signs(lat)`,
		`CREATE INDEX IF NOT EXISTS idx_parking_signs_lon ON parking_signs(lon)`,
	}
	for _, indexSQL := range indexes {
		if _, err := s.db.Exec(indexSQL); err != nil {
			return fmt.Errorf("failed to create parking_signs index: %w", err)
		}
	}

	return nil
}

// SaveSigns upserts a batch of signs keyed by sign id. A later import
// supersedes the earlier record for the same id.
func (s *SignStorage) SaveSigns(ctx context.Context, batch []signs.Sign) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin sign batch: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO parking_signs (sign_id, lat, lon, description, arrow, imported_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(sign_id) DO UPDATE SET
			lat = excluded.lat,
			lon = excluded.lon,
			description = excluded.description,
			arrow = excluded.arrow,
			imported_at = excluded.imported_at
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare sign upsert: %w", err)
	}
	defer stmt.Close()

	for _, sign := range batch {
		if _, err := stmt.ExecContext(ctx,
			sign.ID,
			sign.Lat,
			sign.Lon,
			sign.Description,
			int(sign.Arrow),
			sign.ImportedAt.Format(time.RFC3339),
		); err != nil {
			return 0, fmt.Errorf("failed to upsert sign %s: %w", sign.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit sign batch: %w", err)
	}
	return len(batch), nil
}

// FetchSignsNear returns all stored signs inside the bounding box.
func (s *SignStorage) FetchSignsNear(ctx context.Context, box geometry.BBox) ([]signs.Sign, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT sign_id, lat, lon, description, arrow, imported_at
		FROM parking_signs
		WHERE lat BETWEEN ? AND ? AND lon BETWEEN ? AND ?`,
		box.MinLat, box.MaxLat, box.MinLon, box.MaxLon,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query signs: %w: %w", analyzer.ErrFeedUnavailable, err)
	}
	defer rows.Close()

	var result []signs.Sign
	for rows.Next() {
		sign, err := scanSign(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, sign)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate signs: %w: %w", analyzer.ErrFeedUnavailable, err)
	}
	return result, nil
}

// CountSigns returns the number of stored signs.
func (s *SignStorage) CountSigns(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM parking_signs`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count signs: %w", err)
	}
	return n, nil
}

func scanSign(rows *sql.Rows) (signs.Sign, error) {
	var sign signs.Sign
	var arrow int
	var importedAt string

	if err := rows.Scan(
		&sign.ID,
		&sign.Lat,
		&sign.Lon,
		&sign.Description,
		&arrow,
		&importedAt,
	); err != nil {
		return signs.Sign{}, fmt.Errorf("failed to scan sign: %w", err)
	}

	sign.Arrow = geometry.ParseDirection(arrow)

	ts, err := time.Parse(time.RFC3339, importedAt)
	if err != nil {
		return signs.Sign{}, fmt.Errorf("failed to parse imported_at: %w", err)
	}
	sign.ImportedAt = ts

	return sign, nil
}
