package travel_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/geotool-core/geocore/travel"
)

func TestDistAzimuthZeroForSamePoint(t *testing.T) {
	dist, az, baz := travel.DistAzimuth(10, 20, 10, 20)
	assert.InDelta(t, 0, dist, 1e-9)
	_ = az
	_ = baz
}

func TestDistAzimuthQuarterEquator(t *testing.T) {
	// Two points on the equator 90 degrees apart: great-circle distance
	// is exactly 90 degrees, and the forward azimuth due east is 90.
	dist, az, baz := travel.DistAzimuth(0, 0, 0, 90)
	assert.InDelta(t, 90, dist, 1e-6)
	assert.InDelta(t, 90, az, 1e-6)
	assert.InDelta(t, 270, baz, 1e-6)
}

func TestDistAzimuthPoleToEquator(t *testing.T) {
	dist, _, _ := travel.DistAzimuth(90, 0, 0, 0)
	assert.InDelta(t, 90, dist, 1e-6)
}

func TestDestinationRoundTripsWithDistAzimuth(t *testing.T) {
	lat0, lon0 := 35.0, -120.0
	distDeg, az, _ := travel.DistAzimuth(lat0, lon0, 40.0, -115.0)
	distKm := travel.DegToKm(distDeg)

	lat1, lon1 := travel.Destination(lat0, lon0, distKm, az)
	assert.InDelta(t, 40.0, lat1, 1e-3)
	assert.InDelta(t, -115.0, lon1, 1e-3)
}

func TestDestinationNorthMovesLatitudeUp(t *testing.T) {
	lat, lon := travel.Destination(0, 0, travel.DegToKm(1), 0)
	assert.InDelta(t, 1, lat, 1e-6)
	assert.InDelta(t, 0, lon, 1e-6)
}

func TestEastingNorthingToLatLonZeroOffsetIsIdentity(t *testing.T) {
	lat, lon := travel.EastingNorthingToLatLon(12, 34, 0, 0)
	assert.Equal(t, 12.0, lat)
	assert.Equal(t, 34.0, lon)
}

func TestEastingNorthingToLatLonEastOnly(t *testing.T) {
	distKm := travel.DegToKm(1)
	lat, lon := travel.EastingNorthingToLatLon(0, 0, distKm, 0)
	assert.InDelta(t, 0, lat, 1e-6)
	assert.Greater(t, lon, 0.0)
}

func TestDegKmRoundTrip(t *testing.T) {
	assert.InDelta(t, 5.0, travel.KmToDeg(travel.DegToKm(5.0)), 1e-9)
}

func TestDistAzimuthWithinValidRange(t *testing.T) {
	dist, az, baz := travel.DistAzimuth(-33.4, 151.2, 35.7, 139.7)
	assert.False(t, math.IsNaN(dist))
	assert.GreaterOrEqual(t, az, 0.0)
	assert.Less(t, az, 360.0)
	assert.GreaterOrEqual(t, baz, 0.0)
	assert.Less(t, baz, 360.0)
}
