package analyzer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/parkscan/parkscan/internal/config"
	"github.com/parkscan/parkscan/internal/geometry"
	"github.com/parkscan/parkscan/internal/rules"
	"github.com/parkscan/parkscan/internal/signs"
	"github.com/parkscan/parkscan/pkg/logger"
)

// ErrFeedUnavailable means the sign feed could not serve an area request.
// An analysis hitting this fails as a whole; there is nothing to evaluate.
var ErrFeedUnavailable = errors.New("sign feed unavailable")

// Feed supplies candidate signs for an area. Implementations over-fetch by
// bounding box; the analyzer applies the exact radius filter itself.
type Feed interface {
	FetchSignsNear(ctx context.Context, box geometry.BBox) ([]signs.Sign, error)
}

// ProgressFunc receives processed and total sign counts as an analysis
// advances. Calls are sequential; done never decreases.
type ProgressFunc func(done, total int)

// EvaluationResult is one sign's evaluated interval.
type EvaluationResult struct {
	Sign     signs.Sign
	Interval geometry.Interval
	Outcome  rules.Outcome
}

// Report is the output of one area analysis. Every candidate sign lands in
// exactly one bucket: Results or Skipped.
type Report struct {
	CenterLat  float64
	CenterLon  float64
	RadiusKm   float64
	AsOf       time.Time
	Candidates int
	Skipped    int
	Free       int
	Restricted int
	Fallbacks  int // signs whose description parsed to an unclassified rule
	Results    []EvaluationResult
}

// Analyzer evaluates all signs in an area against an instant in time.
type Analyzer struct {
	feed          Feed
	provider      geometry.Provider
	builder       *geometry.Builder
	parser        *rules.Parser
	concurrency   int
	queryRadiusKm float64
	logger        *logger.Logger
}

// New creates an analyzer over the given feed and geometry provider.
func New(cfg config.AnalysisConfig, feed Feed, provider geometry.Provider, builder *geometry.Builder, log *logger.Logger) *Analyzer {
	concurrency := cfg.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	return &Analyzer{
		feed:          feed,
		provider:      provider,
		builder:       builder,
		parser:        rules.NewParser(log),
		concurrency:   concurrency,
		queryRadiusKm: cfg.QueryRadiusKm,
		logger:        log.Named("analyzer"),
	}
}

// Analyze evaluates every sign within radiusKm of the center at the given
// instant. Signs whose street geometry cannot be resolved or matched are
// skipped and counted; feed or provider unavailability aborts the whole run.
// onProgress may be nil.
func (a *Analyzer) Analyze(ctx context.Context, centerLat, centerLon, radiusKm float64, asOf time.Time, onProgress ProgressFunc) (*Report, error) {
	box := geometry.NewBBox(centerLat, centerLon, radiusKm)

	fetched, err := a.feed.FetchSignsNear(ctx, box)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch signs for area: %w", err)
	}

	// The bbox over-covers; keep only signs within the true great-circle
	// radius.
	candidates := make([]signs.Sign, 0, len(fetched))
	for _, sign := range fetched {
		if geometry.HaversineKm(centerLat, centerLon, sign.Lat, sign.Lon) <= radiusKm {
			candidates = append(candidates, sign)
		}
	}

	report := &Report{
		CenterLat:  centerLat,
		CenterLon:  centerLon,
		RadiusKm:   radiusKm,
		AsOf:       asOf,
		Candidates: len(candidates),
		Results:    make([]EvaluationResult, 0, len(candidates)),
	}

	a.logger.Info("Starting area analysis",
		logger.Float64("center_lat", centerLat),
		logger.Float64("center_lon", centerLon),
		logger.Float64("radius_km", radiusKm),
		logger.Int("candidates", len(candidates)))

	if len(candidates) == 0 {
		return report, nil
	}

	var (
		mu   sync.Mutex
		done int
	)
	total := len(candidates)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)

	for _, sign := range candidates {
		sign := sign
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			parsed := a.parser.Parse(sign.Description)
			result, err := a.evaluateSign(gctx, sign, parsed, asOf)
			if err != nil {
				return err
			}

			mu.Lock()
			defer mu.Unlock()
			if hasUnknownRule(parsed) {
				report.Fallbacks++
			}
			if result == nil {
				report.Skipped++
			} else {
				report.Results = append(report.Results, *result)
				if result.Outcome.Allowed {
					report.Free++
				} else {
					report.Restricted++
				}
			}
			done++
			if onProgress != nil {
				onProgress(done, total)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	a.logger.Info("Area analysis finished",
		logger.Int("evaluated", len(report.Results)),
		logger.Int("skipped", report.Skipped),
		logger.Int("free", report.Free),
		logger.Int("restricted", report.Restricted))
	return report, nil
}

func hasUnknownRule(parsed []rules.Rule) bool {
	for _, r := range parsed {
		if r.Kind == rules.KindUnknown {
			return true
		}
	}
	return false
}

// evaluateSign resolves one sign's street, builds its interval, and
// evaluates its rules. A nil result with nil error means the sign was
// skipped for a per-sign geometry problem.
func (a *Analyzer) evaluateSign(ctx context.Context, sign signs.Sign, parsed []rules.Rule, asOf time.Time) (*EvaluationResult, error) {
	street, err := a.provider.NearestStreet(ctx, sign.Lat, sign.Lon)
	if err != nil {
		if errors.Is(err, geometry.ErrProviderUnavailable) {
			return nil, fmt.Errorf("resolving street for sign %s: %w", sign.ID, err)
		}
		a.logger.Debug("No street for sign, skipping",
			logger.String("sign_id", sign.ID),
			logger.Error(err))
		return nil, nil
	}

	interval, err := a.builder.BuildInterval(sign.Point(), street)
	if err != nil {
		a.logger.Debug("Interval build failed, skipping sign",
			logger.String("sign_id", sign.ID),
			logger.Error(err))
		return nil, nil
	}

	outcome := rules.Evaluate(parsed, asOf)
	return &EvaluationResult{
		Sign:     sign,
		Interval: *interval,
		Outcome:  outcome,
	}, nil
}

// PointAssessment answers "can I park here right now".
type PointAssessment struct {
	Allowed     bool
	Reason      string
	At          time.Time
	SignID      string
	Description string
	DistanceM   float64
	Matched     *rules.Rule
}

// QueryPoint evaluates the sign nearest to the point at the given instant.
// With no sign in range parking is unrestricted as far as the feed knows.
func (a *Analyzer) QueryPoint(ctx context.Context, lat, lon float64, at time.Time) (*PointAssessment, error) {
	box := geometry.NewBBox(lat, lon, a.queryRadiusKm)

	fetched, err := a.feed.FetchSignsNear(ctx, box)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch signs for query: %w", err)
	}

	var (
		nearest     *signs.Sign
		nearestDist float64
	)
	for i, sign := range fetched {
		d := geometry.Haversine(lat, lon, sign.Lat, sign.Lon)
		if d > a.queryRadiusKm*1000 {
			continue
		}
		if nearest == nil || d < nearestDist {
			nearest = &fetched[i]
			nearestDist = d
		}
	}

	if nearest == nil {
		return &PointAssessment{
			Allowed: true,
			Reason:  "no parking signs nearby",
			At:      at,
		}, nil
	}

	outcome := rules.Evaluate(a.parser.Parse(nearest.Description), at)
	return &PointAssessment{
		Allowed:     outcome.Allowed,
		Reason:      outcome.Reason,
		At:          at,
		SignID:      nearest.ID,
		Description: nearest.Description,
		DistanceM:   nearestDist,
		Matched:     outcome.Matched,
	}, nil
}
