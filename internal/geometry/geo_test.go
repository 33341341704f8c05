package geometry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHaversine(t *testing.T) {
	t.Run("one degree of latitude at the equator", func(t *testing.T) {
		d := Haversine(0, 0, 1, 0)
		assert.InDelta(t, 111195, d, 50)
	})

	t.Run("zero distance", func(t *testing.T) {
		d := Haversine(45.4767, -73.6387, 45.4767, -73.6387)
		assert.Equal(t, 0.0, d)
	})

	t.Run("symmetric", func(t *testing.T) {
		d1 := Haversine(45.50, -73.60, 45.51, -73.58)
		d2 := Haversine(45.51, -73.58, 45.50, -73.60)
		assert.InDelta(t, d1, d2, 1e-9)
	})

	t.Run("kilometers variant", func(t *testing.T) {
		m := Haversine(45.50, -73.60, 45.51, -73.58)
		km := HaversineKm(45.50, -73.60, 45.51, -73.58)
		assert.InDelta(t, m/1000.0, km, 1e-9)
	})
}

func TestNewBBox(t *testing.T) {
	center := struct{ lat, lon float64 }{45.4767, -73.6387}
	box := NewBBox(center.lat, center.lon, 0.5)

	assert.True(t, box.Contains(center.lat, center.lon))

	t.Run("point within radius is inside", func(t *testing.T) {
		// ~300m north of center
		assert.True(t, box.Contains(center.lat+0.0027, center.lon))
	})

	t.Run("point beyond radius is outside", func(t *testing.T) {
		// ~600m north of center
		assert.False(t, box.Contains(center.lat+0.0054, center.lon))
	})

	t.Run("longitude span widens with latitude", func(t *testing.T) {
		equator := NewBBox(0, 0, 1.0)
		north := NewBBox(60, 0, 1.0)
		assert.Greater(t, north.MaxLon-north.MinLon, equator.MaxLon-equator.MinLon)
	})
}

func TestProject(t *testing.T) {
	// East-west street through Montreal, ~156m long.
	street := NewStreet("1", "Rue Test", "residential", [][2]float64{
		{45.4767, -73.6400},
		{45.4767, -73.6380},
	})

	t.Run("point above midpoint projects onto midpoint", func(t *testing.T) {
		proj := project(street.Line, 45.47675, -73.6390)
		require.Equal(t, 0, proj.segIdx)
		assert.InDelta(t, 0.5, proj.frac, 0.01)
		assert.InDelta(t, -73.6390, proj.coord[0], 1e-6)
		assert.InDelta(t, 45.4767, proj.coord[1], 1e-6)
		assert.InDelta(t, 5.6, proj.distM, 1.0)
	})

	t.Run("point beyond an endpoint clamps to it", func(t *testing.T) {
		proj := project(street.Line, 45.4767, -73.6410)
		assert.Equal(t, 0.0, proj.frac)
		assert.InDelta(t, -73.6400, proj.coord[0], 1e-9)
	})

	t.Run("nearest segment wins on a polyline", func(t *testing.T) {
		bent := NewStreet("2", "Rue Coude", "residential", [][2]float64{
			{45.4767, -73.6400},
			{45.4767, -73.6390},
			{45.4780, -73.6390},
		})
		proj := project(bent.Line, 45.4775, -73.63895)
		assert.Equal(t, 1, proj.segIdx)
	})
}

func TestLineWalk(t *testing.T) {
	street := NewStreet("1", "Rue Test", "residential", [][2]float64{
		{45.4767, -73.6400},
		{45.4767, -73.6380},
	})
	total := lengthM(street.Line)
	require.InDelta(t, 156, total, 5)

	t.Run("zero distance returns first vertex", func(t *testing.T) {
		c := pointAt(street.Line, 0)
		assert.InDelta(t, -73.6400, c[0], 1e-9)
	})

	t.Run("beyond extent clamps to last vertex", func(t *testing.T) {
		c := pointAt(street.Line, total+100)
		assert.InDelta(t, -73.6380, c[0], 1e-9)
	})

	t.Run("half length lands at midpoint", func(t *testing.T) {
		c := pointAt(street.Line, total/2)
		assert.InDelta(t, -73.6390, c[0], 1e-6)
		assert.InDelta(t, 45.4767, c[1], 1e-6)
	})
}
