package geometry

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	overpass "github.com/serjvanilla/go-overpass"
	"golang.org/x/time/rate"

	"github.com/parkscan/parkscan/pkg/logger"
)

// OverpassProvider resolves street centerlines from an Overpass API
// endpoint. Requests are rate limited and retried with backoff, since public
// Overpass instances throttle aggressively.
type OverpassProvider struct {
	client        *overpass.Client
	limiter       *rate.Limiter
	searchRadiusM float64
	maxRetries    int
	logger        *logger.Logger
}

// NewOverpassProvider creates a provider against the given Overpass
// endpoint. searchRadiusMeters bounds NearestStreet lookups.
func NewOverpassProvider(endpoint string, timeout time.Duration, requestsPerSecond, searchRadiusMeters float64, maxRetries int, log *logger.Logger) *OverpassProvider {
	httpClient := &http.Client{
		Timeout: timeout,
	}
	client := overpass.NewWithSettings(endpoint, 1, httpClient)

	return &OverpassProvider{
		client:        &client,
		limiter:       rate.NewLimiter(rate.Limit(requestsPerSecond), 1),
		searchRadiusM: searchRadiusMeters,
		maxRetries:    maxRetries,
		logger:        log.Named("overpass"),
	}
}

// GeometryFor fetches the way with the given OSM id.
func (p *OverpassProvider) GeometryFor(ctx context.Context, streetID string) (*Street, error) {
	wayID, err := strconv.ParseInt(streetID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("street id %q is not a way id: %w", streetID, ErrStreetNotFound)
	}

	query := fmt.Sprintf("[out:json];way(%d);out body;>;out skel qt;", wayID)
	result, err := p.query(ctx, query)
	if err != nil {
		return nil, err
	}

	way, ok := result.Ways[wayID]
	if !ok || way == nil {
		return nil, fmt.Errorf("way %d: %w", wayID, ErrStreetNotFound)
	}
	return wayToStreet(way), nil
}

// NearestStreet fetches highway ways around the point and returns the one
// whose centerline passes closest.
func (p *OverpassProvider) NearestStreet(ctx context.Context, lat, lon float64) (*Street, error) {
	query := fmt.Sprintf("[out:json];way(around:%.0f,%.6f,%.6f)[\"highway\"];out body;>;out skel qt;",
		p.searchRadiusM, lat, lon)
	result, err := p.query(ctx, query)
	if err != nil {
		return nil, err
	}

	var nearest *Street
	nearestDist := math.MaxFloat64
	for _, way := range result.Ways {
		if way == nil || len(way.Nodes) < 2 {
			continue
		}
		street := wayToStreet(way)
		proj := project(street.Line, lat, lon)
		if proj.distM < nearestDist {
			nearest = street
			nearestDist = proj.distM
		}
	}

	if nearest == nil {
		return nil, fmt.Errorf("no highway within %.0fm of %.6f,%.6f: %w",
			p.searchRadiusM, lat, lon, ErrStreetNotFound)
	}

	p.logger.Debug("Resolved nearest street",
		logger.String("street_id", nearest.ID),
		logger.String("name", nearest.Name),
		logger.Float64("distance_m", nearestDist))
	return nearest, nil
}

// query runs one Overpass query with rate limiting and retries.
func (p *OverpassProvider) query(ctx context.Context, query string) (*overpass.Result, error) {
	retryDelay := 1 * time.Second

	var lastErr error
	for attempt := 0; attempt < p.maxRetries; attempt++ {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		result, err := p.client.Query(query)
		if err == nil {
			return &result, nil
		}
		lastErr = err

		// If this was the last attempt, give up below
		if attempt == p.maxRetries-1 {
			break
		}

		p.logger.Warn("Retrying overpass query",
			logger.Int("attempt", attempt+1),
			logger.Int("max_attempts", p.maxRetries),
			logger.Error(err))

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(retryDelay):
			// Exponential backoff
			retryDelay *= 2
		}
	}

	return nil, fmt.Errorf("overpass query failed after %d attempts: %w: %w",
		p.maxRetries, ErrProviderUnavailable, lastErr)
}

func wayToStreet(way *overpass.Way) *Street {
	latLons := make([][2]float64, 0, len(way.Nodes))
	for _, node := range way.Nodes {
		if node == nil {
			continue
		}
		latLons = append(latLons, [2]float64{node.Lat, node.Lon})
	}
	return NewStreet(
		strconv.FormatInt(way.ID, 10),
		way.Tags["name"],
		way.Tags["highway"],
		latLons,
	)
}
