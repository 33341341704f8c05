package signs

import (
	"time"

	"github.com/parkscan/parkscan/internal/geometry"
)

// Sign is one parking sign from the municipal signalization feed.
type Sign struct {
	ID          string
	Lat         float64
	Lon         float64
	Description string
	Arrow       geometry.Direction
	ImportedAt  time.Time
}

// Point returns the sign's view for geometry operations.
func (s Sign) Point() geometry.SignPoint {
	return geometry.SignPoint{
		ID:    s.ID,
		Lat:   s.Lat,
		Lon:   s.Lon,
		Arrow: s.Arrow,
	}
}
