package analyzer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parkscan/parkscan/internal/config"
	"github.com/parkscan/parkscan/internal/geometry"
	"github.com/parkscan/parkscan/internal/signs"
	"github.com/parkscan/parkscan/pkg/logger"
)

type fakeFeed struct {
	mu    sync.Mutex
	signs []signs.Sign
	err   error
	calls int
}

func (f *fakeFeed) FetchSignsNear(_ context.Context, box geometry.BBox) ([]signs.Sign, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	var out []signs.Sign
	for _, s := range f.signs {
		if box.Contains(s.Lat, s.Lon) {
			out = append(out, s)
		}
	}
	return out, nil
}

type fakeProvider struct {
	street *geometry.Street
	err    error
}

func (p *fakeProvider) GeometryFor(_ context.Context, _ string) (*geometry.Street, error) {
	return p.street, p.err
}

func (p *fakeProvider) NearestStreet(_ context.Context, _, _ float64) (*geometry.Street, error) {
	return p.street, p.err
}

const (
	centerLat = 45.4767
	centerLon = -73.6390
)

// testStreet runs east-west through the test center.
func testStreet() *geometry.Street {
	return geometry.NewStreet("12345", "Rue Test", "residential", [][2]float64{
		{45.4767, -73.6400},
		{45.4767, -73.6380},
	})
}

func newTestAnalyzer(feed Feed, provider geometry.Provider) *Analyzer {
	log := logger.Nop()
	cfg := config.AnalysisConfig{
		DefaultRadiusKm: 0.5,
		MaxRadiusKm:     2.0,
		QueryRadiusKm:   0.3,
		Concurrency:     4,
	}
	return New(cfg, feed, provider, geometry.NewBuilder(50, 50, log), log)
}

// Wednesday morning inside a LUN AU VEN 8h-10h window.
var wednesday9am = time.Date(2024, 4, 24, 9, 0, 0, 0, time.UTC)

func TestAnalyzeResultPlusSkippedEqualsCandidates(t *testing.T) {
	feed := &fakeFeed{signs: []signs.Sign{
		{ID: "1", Lat: 45.47672, Lon: -73.6392, Description: `\P LUN AU VEN 8h00-10h00`},
		{ID: "2", Lat: 45.47672, Lon: -73.6388, Description: "PARCOMETRE 9h-21h"},
		{ID: "3", Lat: 45.47668, Lon: -73.6390, Description: "P2X-UNCLASSIFIED"},
		// ~255m from the street centerline, fails the 50m snap tolerance.
		{ID: "4", Lat: 45.4790, Lon: -73.6390, Description: `\A EN TOUT TEMPS`},
	}}
	a := newTestAnalyzer(feed, &fakeProvider{street: testStreet()})

	report, err := a.Analyze(context.Background(), centerLat, centerLon, 0.5, wednesday9am, nil)
	require.NoError(t, err)

	assert.Equal(t, 4, report.Candidates)
	assert.Equal(t, 1, report.Skipped)
	assert.Len(t, report.Results, 3)
	assert.Equal(t, report.Candidates, len(report.Results)+report.Skipped)

	assert.Equal(t, 1, report.Restricted, "the weekday window blocks on Wednesday morning")
	assert.Equal(t, 2, report.Free, "paid and unclassified signs do not block")
	assert.Equal(t, len(report.Results), report.Free+report.Restricted)
	assert.Equal(t, 1, report.Fallbacks, "the unclassifiable description counts as a fallback")
}

func TestAnalyzeExactRadiusFilter(t *testing.T) {
	feed := &fakeFeed{signs: []signs.Sign{
		{ID: "center", Lat: centerLat, Lon: centerLon, Description: "PARCOMETRE"},
		// Inside the bounding box corner but outside the 0.5km circle.
		{ID: "corner", Lat: centerLat + 0.0040, Lon: centerLon + 0.0055, Description: "PARCOMETRE"},
	}}
	a := newTestAnalyzer(feed, &fakeProvider{street: testStreet()})

	report, err := a.Analyze(context.Background(), centerLat, centerLon, 0.5, wednesday9am, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, report.Candidates, "bbox corner sign is outside the great-circle radius")
}

func TestAnalyzeEmptyArea(t *testing.T) {
	a := newTestAnalyzer(&fakeFeed{}, &fakeProvider{street: testStreet()})

	report, err := a.Analyze(context.Background(), centerLat, centerLon, 0.5, wednesday9am, nil)
	require.NoError(t, err)

	assert.Equal(t, 0, report.Candidates)
	assert.Empty(t, report.Results)
	assert.Equal(t, 0, report.Skipped)
}

func TestAnalyzeFeedUnavailableAborts(t *testing.T) {
	a := newTestAnalyzer(&fakeFeed{err: ErrFeedUnavailable}, &fakeProvider{street: testStreet()})

	report, err := a.Analyze(context.Background(), centerLat, centerLon, 0.5, wednesday9am, nil)
	assert.Nil(t, report)
	assert.True(t, errors.Is(err, ErrFeedUnavailable))
}

func TestAnalyzeProviderUnavailableAborts(t *testing.T) {
	feed := &fakeFeed{signs: []signs.Sign{
		{ID: "1", Lat: centerLat, Lon: centerLon, Description: `\P 9h-17h`},
	}}
	a := newTestAnalyzer(feed, &fakeProvider{err: geometry.ErrProviderUnavailable})

	report, err := a.Analyze(context.Background(), centerLat, centerLon, 0.5, wednesday9am, nil)
	assert.Nil(t, report, "partial results are discarded on a fatal error")
	assert.True(t, errors.Is(err, geometry.ErrProviderUnavailable))
}

func TestAnalyzeStreetNotFoundSkips(t *testing.T) {
	feed := &fakeFeed{signs: []signs.Sign{
		{ID: "1", Lat: centerLat, Lon: centerLon, Description: `\P 9h-17h`},
		{ID: "2", Lat: 45.47672, Lon: -73.6392, Description: `\P 9h-17h`},
	}}
	a := newTestAnalyzer(feed, &fakeProvider{err: geometry.ErrStreetNotFound})

	report, err := a.Analyze(context.Background(), centerLat, centerLon, 0.5, wednesday9am, nil)
	require.NoError(t, err)

	assert.Equal(t, 2, report.Candidates)
	assert.Equal(t, 2, report.Skipped)
	assert.Empty(t, report.Results)
}

func TestAnalyzeProgressIsMonotonicAndCompletes(t *testing.T) {
	var ss []signs.Sign
	for i := 0; i < 10; i++ {
		ss = append(ss, signs.Sign{
			ID:          string(rune('a' + i)),
			Lat:         45.47672,
			Lon:         -73.6392 + float64(i)*0.00002,
			Description: "PARCOMETRE",
		})
	}
	a := newTestAnalyzer(&fakeFeed{signs: ss}, &fakeProvider{street: testStreet()})

	var mu sync.Mutex
	var dones []int
	report, err := a.Analyze(context.Background(), centerLat, centerLon, 0.5, wednesday9am, func(done, total int) {
		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, 10, total)
		dones = append(dones, done)
	})
	require.NoError(t, err)
	require.Equal(t, 10, report.Candidates)

	require.NotEmpty(t, dones)
	for i := 1; i < len(dones); i++ {
		assert.GreaterOrEqual(t, dones[i], dones[i-1], "progress never goes backwards")
	}
	assert.Equal(t, 10, dones[len(dones)-1])
}

func TestAnalyzeHonorsCancellation(t *testing.T) {
	feed := &fakeFeed{signs: []signs.Sign{
		{ID: "1", Lat: centerLat, Lon: centerLon, Description: `\P 9h-17h`},
	}}
	a := newTestAnalyzer(feed, &fakeProvider{street: testStreet()})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := a.Analyze(ctx, centerLat, centerLon, 0.5, wednesday9am, nil)
	assert.Nil(t, report)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestQueryPointNoSignsNearby(t *testing.T) {
	a := newTestAnalyzer(&fakeFeed{}, &fakeProvider{street: testStreet()})

	pa, err := a.QueryPoint(context.Background(), centerLat, centerLon, wednesday9am)
	require.NoError(t, err)

	assert.True(t, pa.Allowed)
	assert.Equal(t, "no parking signs nearby", pa.Reason)
	assert.Empty(t, pa.SignID)
}

func TestQueryPointNearestSignDecides(t *testing.T) {
	feed := &fakeFeed{signs: []signs.Sign{
		// ~22m away, blocking.
		{ID: "near", Lat: centerLat + 0.0002, Lon: centerLon, Description: `\A EN TOUT TEMPS`},
		// ~110m away, allowing.
		{ID: "far", Lat: centerLat + 0.0010, Lon: centerLon, Description: "PARCOMETRE"},
	}}
	a := newTestAnalyzer(feed, &fakeProvider{street: testStreet()})

	pa, err := a.QueryPoint(context.Background(), centerLat, centerLon, wednesday9am)
	require.NoError(t, err)

	assert.False(t, pa.Allowed)
	assert.Equal(t, "near", pa.SignID)
	assert.InDelta(t, 22, pa.DistanceM, 3)
	require.NotNil(t, pa.Matched)
}

func TestQueryPointIgnoresSignsBeyondRadius(t *testing.T) {
	feed := &fakeFeed{signs: []signs.Sign{
		// ~550m away, past the 0.3km query radius but inside the bbox? No:
		// the bbox is built from the query radius, so place it just inside
		// the bbox corner and outside the circle.
		{ID: "corner", Lat: centerLat + 0.0024, Lon: centerLon + 0.0033, Description: `\A EN TOUT TEMPS`},
	}}
	a := newTestAnalyzer(feed, &fakeProvider{street: testStreet()})

	pa, err := a.QueryPoint(context.Background(), centerLat, centerLon, wednesday9am)
	require.NoError(t, err)
	assert.True(t, pa.Allowed, "signs beyond the query radius are ignored")
}

func TestQueryPointFeedError(t *testing.T) {
	a := newTestAnalyzer(&fakeFeed{err: ErrFeedUnavailable}, &fakeProvider{street: testStreet()})

	pa, err := a.QueryPoint(context.Background(), centerLat, centerLon, wednesday9am)
	assert.Nil(t, pa)
	assert.True(t, errors.Is(err, ErrFeedUnavailable))
}
