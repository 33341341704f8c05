package geometry

import (
	"errors"
	"fmt"

	"github.com/twpayne/go-geom"

	"github.com/parkscan/parkscan/pkg/logger"
)

// ErrGeometryMismatch flags a sign that cannot be reconciled with its street
// geometry, either because the centerline is degenerate or because the sign
// sits too far from it.
var ErrGeometryMismatch = errors.New("sign does not match street geometry")

// Direction encodes which side of the sign post a restriction applies to,
// following the arrow printed on the sign. The zero value means the arrow is
// absent or unreadable and the restriction covers both directions.
type Direction int

const (
	DirectionBothSides Direction = iota
	DirectionUp
	DirectionLeft
	DirectionRight
)

// ParseDirection maps the feed's numeric arrow code to a Direction. Unknown
// codes fall back to both sides rather than failing the row.
func ParseDirection(code int) Direction {
	switch code {
	case 1:
		return DirectionUp
	case 2:
		return DirectionLeft
	case 3:
		return DirectionRight
	default:
		return DirectionBothSides
	}
}

func (d Direction) String() string {
	switch d {
	case DirectionUp:
		return "up"
	case DirectionLeft:
		return "left"
	case DirectionRight:
		return "right"
	default:
		return "both_sides"
	}
}

// SignPoint is the minimal view of a sign the interval builder needs.
type SignPoint struct {
	ID    string
	Lat   float64
	Lon   float64
	Arrow Direction
}

// Interval is the stretch of street centerline a sign governs. Start and End
// are XY coordinates (longitude, latitude) on the street's polyline.
type Interval struct {
	SignID     string
	StreetID   string
	StreetName string
	Start      geom.Coord
	End        geom.Coord
}

// LengthM returns the great-circle length of the interval in meters.
func (iv Interval) LengthM() float64 {
	return Haversine(iv.Start[1], iv.Start[0], iv.End[1], iv.End[0])
}

// Builder snaps signs onto street centerlines and derives the interval each
// sign's arrow describes.
type Builder struct {
	maxSnapM  float64
	intervalM float64
	logger    *logger.Logger
}

// NewBuilder creates a builder. maxSnapMeters bounds how far a sign may sit
// from its street before the pairing is rejected; intervalMeters sets the
// span used when the arrow points up (restriction centered on the post).
func NewBuilder(maxSnapMeters, intervalMeters float64, log *logger.Logger) *Builder {
	return &Builder{
		maxSnapM:  maxSnapMeters,
		intervalM: intervalMeters,
		logger:    log.Named("interval-builder"),
	}
}

// BuildInterval projects the sign onto the street and returns the directed
// interval its arrow covers. It returns ErrGeometryMismatch when the street
// has fewer than two vertices or the sign lies beyond the snap tolerance.
func (b *Builder) BuildInterval(sign SignPoint, street *Street) (*Interval, error) {
	if street == nil || street.Line == nil || street.Line.NumCoords() < 2 {
		return nil, fmt.Errorf("sign %s: street %s has no usable centerline: %w",
			sign.ID, streetID(street), ErrGeometryMismatch)
	}

	proj := project(street.Line, sign.Lat, sign.Lon)
	if proj.distM > b.maxSnapM {
		b.logger.Debug("Sign too far from street centerline",
			logger.String("sign_id", sign.ID),
			logger.String("street_id", street.ID),
			logger.Float64("distance_m", proj.distM),
			logger.Float64("max_snap_m", b.maxSnapM))
		return nil, fmt.Errorf("sign %s is %.1fm from street %s (max %.1fm): %w",
			sign.ID, proj.distM, street.ID, b.maxSnapM, ErrGeometryMismatch)
	}

	coords := street.Line.Coords()
	segStart := geom.Coord{coords[proj.segIdx][0], coords[proj.segIdx][1]}
	segEnd := geom.Coord{coords[proj.segIdx+1][0], coords[proj.segIdx+1][1]}

	iv := &Interval{
		SignID:     sign.ID,
		StreetID:   street.ID,
		StreetName: street.Name,
	}

	switch sign.Arrow {
	case DirectionLeft:
		// Restriction runs from the segment start up to the post.
		iv.Start, iv.End = segStart, proj.coord
	case DirectionRight:
		// Restriction runs from the post to the segment end.
		iv.Start, iv.End = proj.coord, segEnd
	case DirectionUp:
		// Restriction is centered on the post, clamped to the street extent.
		half := b.intervalM / 2
		total := lengthM(street.Line)
		from := proj.alongM - half
		to := proj.alongM + half
		if from < 0 {
			from = 0
		}
		if to > total {
			to = total
		}
		iv.Start, iv.End = pointAt(street.Line, from), pointAt(street.Line, to)
	default:
		// No arrow: the whole containing segment is covered.
		iv.Start, iv.End = segStart, segEnd
	}

	return iv, nil
}

func streetID(s *Street) string {
	if s == nil {
		return "<nil>"
	}
	return s.ID
}
