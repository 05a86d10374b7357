package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDistanceKm(t *testing.T) {
	newYork := Point{Lat: 40.7128, Lon: -74.0060}
	london := Point{Lat: 51.5074, Lon: -0.1278}

	d := DistanceKm(newYork, london)
	assert.InDelta(t, 5570, d, 20)

	// Symmetric.
	assert.InDelta(t, d, DistanceKm(london, newYork), 0.001)
}

func TestDistanceKmSamePoint(t *testing.T) {
	p := Point{Lat: -33.8688, Lon: 151.2093}
	assert.Equal(t, 0.0, DistanceKm(p, p))
}

func TestDistanceKmShortHop(t *testing.T) {
	// Roughly 1 degree of latitude is 111 km.
	a := Point{Lat: 48.0, Lon: 2.0}
	b := Point{Lat: 49.0, Lon: 2.0}
	assert.InDelta(t, 111.2, DistanceKm(a, b), 1)
}
