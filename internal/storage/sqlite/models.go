package sqlite

import (
	"encoding/json"
	"time"

	"github.com/parkscan/parkscan/internal/jobs"
)

// IntervalRecord is one persisted street interval of a result artifact.
// Geometry holds the GeoJSON LineString the interval was stored with.
type IntervalRecord struct {
	SignID      string          `json:"sign_id"`
	Description string          `json:"description"`
	StreetID    string          `json:"street_id"`
	StreetName  string          `json:"street_name"`
	Allowed     bool            `json:"allowed"`
	Reason      string          `json:"reason"`
	StartLat    float64         `json:"start_lat"`
	StartLon    float64         `json:"start_lon"`
	EndLat      float64         `json:"end_lat"`
	EndLon      float64         `json:"end_lon"`
	LengthM     float64         `json:"length_m"`
	Geometry    json.RawMessage `json:"geometry"`
}

// ResultPage is one page of a stored result artifact.
type ResultPage struct {
	Handle         string           `json:"handle"`
	Name           string           `json:"name"`
	CenterLat      float64          `json:"center_lat"`
	CenterLon      float64          `json:"center_lon"`
	RadiusKm       float64          `json:"radius_km"`
	AsOf           time.Time        `json:"as_of"`
	Summary        jobs.Summary     `json:"summary"`
	Page           int              `json:"page"`
	PageSize       int              `json:"page_size"`
	TotalPages     int              `json:"total_pages"`
	TotalIntervals int              `json:"total_intervals"`
	Intervals      []IntervalRecord `json:"intervals"`
}

// AreaSummaryRecord is the latest analysis outcome for a named area.
type AreaSummaryRecord struct {
	Name            string    `json:"name"`
	CenterLat       float64   `json:"center_lat"`
	CenterLon       float64   `json:"center_lon"`
	RadiusKm        float64   `json:"radius_km"`
	TotalSigns      int       `json:"total_signs"`
	TotalIntervals  int       `json:"total_intervals"`
	FreeCount       int       `json:"free_count"`
	RestrictedCount int       `json:"restricted_count"`
	LastAnalyzed    time.Time `json:"last_analyzed"`
}
