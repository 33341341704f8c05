package signs

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/parkscan/parkscan/internal/geometry"
	"github.com/parkscan/parkscan/pkg/logger"
)

// Feed column names, as published in the municipal signalization dataset.
const (
	colSignID      = "ID_PANNEAU"
	colLatitude    = "LATITUDE"
	colLongitude   = "LONGITUDE"
	colDescription = "DESCRIPTION_RPA"
	colArrow       = "FLECHE_PAN"
)

// Store persists imported signs.
type Store interface {
	SaveSigns(ctx context.Context, batch []Sign) (int, error)
}

// ImportStats summarizes one import run.
type ImportStats struct {
	Total    int // rows read from the file, excluding the header
	Imported int // rows persisted
	Skipped  int // rows dropped for missing or unparseable coordinates
}

// Importer loads the signalization CSV feed into a store in batches.
type Importer struct {
	store     Store
	batchSize int
	logger    *logger.Logger
}

// NewImporter creates an importer writing through the given store.
func NewImporter(store Store, batchSize int, log *logger.Logger) *Importer {
	if batchSize < 1 {
		batchSize = 1
	}
	return &Importer{
		store:     store,
		batchSize: batchSize,
		logger:    log.Named("sign-importer"),
	}
}

// ImportCSV reads the feed and persists every row carrying usable
// coordinates. Rows without coordinates are counted and skipped, never
// fatal. The arrow column is optional; missing or unknown codes fall back
// to both sides.
func (im *Importer) ImportCSV(ctx context.Context, r io.Reader) (*ImportStats, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	colIdx := mapColumns(header)
	for _, required := range []string{colSignID, colLatitude, colLongitude, colDescription} {
		if _, ok := colIdx[required]; !ok {
			return nil, fmt.Errorf("CSV feed is missing required column %s", required)
		}
	}

	stats := &ImportStats{}
	importedAt := clock.Now().UTC()
	batch := make([]Sign, 0, im.batchSize)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		saved, err := im.store.SaveSigns(ctx, batch)
		if err != nil {
			return fmt.Errorf("failed to save sign batch: %w", err)
		}
		stats.Imported += saved
		batch = batch[:0]
		return nil
	}

	for {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return stats, fmt.Errorf("failed to read CSV row: %w", err)
		}
		stats.Total++

		sign, ok := im.signFromRecord(record, colIdx)
		if !ok {
			stats.Skipped++
			continue
		}
		sign.ImportedAt = importedAt

		batch = append(batch, sign)
		if len(batch) >= im.batchSize {
			if err := flush(); err != nil {
				return stats, err
			}
		}
	}

	if err := flush(); err != nil {
		return stats, err
	}

	im.logger.Info("Sign import finished",
		logger.Int("total", stats.Total),
		logger.Int("imported", stats.Imported),
		logger.Int("skipped", stats.Skipped))
	return stats, nil
}

func (im *Importer) signFromRecord(record []string, colIdx map[string]int) (Sign, bool) {
	lat, latOK := parseFloatField(record, colIdx[colLatitude])
	lon, lonOK := parseFloatField(record, colIdx[colLongitude])
	if !latOK || !lonOK {
		return Sign{}, false
	}

	sign := Sign{
		ID:          fieldAt(record, colIdx[colSignID]),
		Lat:         lat,
		Lon:         lon,
		Description: fieldAt(record, colIdx[colDescription]),
		Arrow:       geometry.DirectionBothSides,
	}

	if idx, ok := colIdx[colArrow]; ok {
		if code, err := strconv.Atoi(strings.TrimSpace(fieldAt(record, idx))); err == nil {
			sign.Arrow = geometry.ParseDirection(code)
		}
	}
	return sign, true
}

// mapColumns indexes header names, case-insensitively.
func mapColumns(header []string) map[string]int {
	colIdx := make(map[string]int, len(header))
	for i, name := range header {
		colIdx[strings.ToUpper(strings.TrimSpace(name))] = i
	}
	return colIdx
}

func fieldAt(record []string, idx int) string {
	if idx < 0 || idx >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[idx])
}

func parseFloatField(record []string, idx int) (float64, bool) {
	raw := fieldAt(record, idx)
	if raw == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
