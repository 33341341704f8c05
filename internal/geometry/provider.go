package geometry

import (
	"context"
	"errors"
)

// ErrStreetNotFound means the provider has no street for the given id or no
// street within the search radius of the given point.
var ErrStreetNotFound = errors.New("street not found")

// ErrProviderUnavailable means the upstream geometry source could not be
// reached after retries. Unlike a not-found, this poisons every lookup, so
// callers abort instead of skipping.
var ErrProviderUnavailable = errors.New("geometry provider unavailable")

// Provider resolves street centerlines for signs.
type Provider interface {
	// GeometryFor returns the centerline of the street with the given id.
	GeometryFor(ctx context.Context, streetID string) (*Street, error)

	// NearestStreet returns the street whose centerline passes closest to
	// the point, searching within the provider's configured radius.
	NearestStreet(ctx context.Context, lat, lon float64) (*Street, error)
}
