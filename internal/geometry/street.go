package geometry

import (
	"math"

	"github.com/twpayne/go-geom"
)

// Conversion factors for quick degree/distance approximations. One degree of
// latitude is ~111 km everywhere; one degree of longitude shrinks with the
// cosine of the latitude.
const (
	MetersPerDegreeLat = 111000.0
	KmPerDegreeLat     = 111.0
)

// Street is an ordered street centerline with its identifying tags.
// Coordinates follow the go-geom XY convention: X is longitude, Y is
// latitude.
type Street struct {
	ID      string
	Name    string
	Highway string
	Line    *geom.LineString
}

// NewStreet builds a street from ordered (lat, lon) vertex pairs.
func NewStreet(id, name, highway string, latLons [][2]float64) *Street {
	flat := make([]float64, 0, len(latLons)*2)
	for _, ll := range latLons {
		flat = append(flat, ll[1], ll[0])
	}
	return &Street{
		ID:      id,
		Name:    name,
		Highway: highway,
		Line:    geom.NewLineStringFlat(geom.XY, flat),
	}
}

// BBox is a geographic bounding box.
type BBox struct {
	MinLat float64
	MinLon float64
	MaxLat float64
	MaxLon float64
}

// NewBBox derives the bounding box covering a radius around a center point.
// It over-covers slightly at high latitudes, which is fine for a prefilter
// that an exact distance check narrows afterwards.
func NewBBox(centerLat, centerLon, radiusKm float64) BBox {
	latDelta := radiusKm / KmPerDegreeLat
	lonScale := math.Cos(centerLat * math.Pi / 180.0)
	if lonScale < 0.01 {
		lonScale = 0.01
	}
	lonDelta := radiusKm / (KmPerDegreeLat * lonScale)
	return BBox{
		MinLat: centerLat - latDelta,
		MinLon: centerLon - lonDelta,
		MaxLat: centerLat + latDelta,
		MaxLon: centerLon + lonDelta,
	}
}

// Contains reports whether the point falls inside the box.
func (b BBox) Contains(lat, lon float64) bool {
	return lat >= b.MinLat && lat <= b.MaxLat && lon >= b.MinLon && lon <= b.MaxLon
}

// Haversine calculates the distance in meters between two lat/lon points.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	const R = 6371000 // Earth radius in meters
	rad := math.Pi / 180.0

	lat1Rad := lat1 * rad
	lon1Rad := lon1 * rad
	lat2Rad := lat2 * rad
	lon2Rad := lon2 * rad

	dlon := lon2Rad - lon1Rad
	dlat := lat2Rad - lat1Rad

	a := math.Pow(math.Sin(dlat/2), 2) + math.Cos(lat1Rad)*math.Cos(lat2Rad)*math.Pow(math.Sin(dlon/2), 2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return R * c
}

// HaversineKm calculates the distance in kilometers between two points.
func HaversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	return Haversine(lat1, lon1, lat2, lon2) / 1000.0
}

// projection is the result of snapping a point onto a polyline.
type projection struct {
	segIdx int        // index of the containing segment (vertex i to i+1)
	frac   float64    // fraction along that segment, in [0, 1]
	coord  geom.Coord // projected point, XY order
	distM  float64    // great-circle distance from the point to the projection
	alongM float64    // arc length from the line start to the projection
}

// project snaps a (lat, lon) point onto the nearest segment of the line.
// The segment-local math runs on a small equirectangular plane anchored at
// the segment start, which is accurate at street scale.
func project(line *geom.LineString, lat, lon float64) projection {
	best := projection{segIdx: -1, distM: math.MaxFloat64}
	coords := line.Coords()

	var cumM float64
	for i := 0; i+1 < len(coords); i++ {
		aLon, aLat := coords[i][0], coords[i][1]
		bLon, bLat := coords[i+1][0], coords[i+1][1]

		kx := math.Cos(aLat * math.Pi / 180.0)
		bx := (bLon - aLon) * kx
		by := bLat - aLat
		px := (lon - aLon) * kx
		py := lat - aLat

		frac := 0.0
		if segLen2 := bx*bx + by*by; segLen2 > 0 {
			frac = (px*bx + py*by) / segLen2
			frac = math.Max(0, math.Min(1, frac))
		}

		projLon := aLon + (bLon-aLon)*frac
		projLat := aLat + (bLat-aLat)*frac
		distM := Haversine(lat, lon, projLat, projLon)

		if distM < best.distM {
			segLenM := Haversine(aLat, aLon, bLat, bLon)
			best = projection{
				segIdx: i,
				frac:   frac,
				coord:  geom.Coord{projLon, projLat},
				distM:  distM,
				alongM: cumM + segLenM*frac,
			}
		}
		cumM += Haversine(aLat, aLon, bLat, bLon)
	}
	return best
}

// lengthM returns the arc length of the line in meters.
func lengthM(line *geom.LineString) float64 {
	coords := line.Coords()
	var total float64
	for i := 0; i+1 < len(coords); i++ {
		total += Haversine(coords[i][1], coords[i][0], coords[i+1][1], coords[i+1][0])
	}
	return total
}

// pointAt walks the line to the given arc length and returns the coordinate
// there. Distances beyond the extent clamp to the nearest endpoint.
func pointAt(line *geom.LineString, distM float64) geom.Coord {
	coords := line.Coords()
	if distM <= 0 {
		return geom.Coord{coords[0][0], coords[0][1]}
	}

	var cumM float64
	for i := 0; i+1 < len(coords); i++ {
		segM := Haversine(coords[i][1], coords[i][0], coords[i+1][1], coords[i+1][0])
		if cumM+segM >= distM && segM > 0 {
			frac := (distM - cumM) / segM
			return geom.Coord{
				coords[i][0] + (coords[i+1][0]-coords[i][0])*frac,
				coords[i][1] + (coords[i+1][1]-coords[i][1])*frac,
			}
		}
		cumM += segM
	}
	last := coords[len(coords)-1]
	return geom.Coord{last[0], last[1]}
}
