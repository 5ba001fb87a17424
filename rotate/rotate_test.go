package rotate_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geotool-core/geocore/rotate"
	"github.com/geotool-core/geocore/segment"
	"github.com/geotool-core/geocore/tseries"
)

func TestRotate2DRoundTrip(t *testing.T) {
	x := []float32{1, 0, -1}
	y := []float32{0, 1, 0}
	orig := append([]float32(nil), x...)
	origY := append([]float32(nil), y...)

	rotate.Rotate2D(x, y, 37)
	rotate.Rotate2D(x, y, -37)

	for i := range x {
		assert.InDelta(t, orig[i], x[i], 1e-4)
		assert.InDelta(t, origY[i], y[i], 1e-4)
	}
}

func TestRotate2D90DegreesSwapsAxes(t *testing.T) {
	x := []float32{1}
	y := []float32{0}
	rotate.Rotate2D(x, y, 90)
	assert.InDelta(t, 0, x[0], 1e-4)
	assert.InDelta(t, -1, y[0], 1e-4)
}

func TestRotate3DIdentityIsNoOp(t *testing.T) {
	x := []float32{1, 2, 3}
	y := []float32{4, 5, 6}
	z := []float32{7, 8, 9}
	rotate.Rotate3D(x, y, z, 0, 0, 0, 0, 0, 0)
	assert.Equal(t, []float32{1, 2, 3}, x)
	assert.Equal(t, []float32{4, 5, 6}, y)
	assert.Equal(t, []float32{7, 8, 9}, z)
}

func buildTS(t *testing.T, data []float32) *tseries.TimeSeries {
	t.Helper()
	ts := tseries.New(tseries.Channel{})
	s, err := segment.New(0, 1, data, 1, 1)
	require.NoError(t, err)
	require.NoError(t, ts.AddSegment(s))
	return ts
}

func TestMaxAngleRecoversKnownAzimuth(t *testing.T) {
	const n = 200
	e := make([]float32, n)
	no := make([]float32, n)
	trueAngle := 25.0 // degrees clockwise from north
	for i := 0; i < n; i++ {
		amp := float32(math.Sin(2 * math.Pi * float64(i) / 20))
		rad := amp
		a := trueAngle * math.Pi / 180
		e[i] = float32(math.Sin(a)) * rad
		no[i] = float32(math.Cos(a)) * rad
	}
	east := buildTS(t, e)
	north := buildTS(t, no)

	angle, err := rotate.MaxAngle(east, north, east.Tbeg(), east.Tend())
	require.NoError(t, err)
	// the analytic solution is ambiguous by 180 degrees (radial axis has
	// no preferred sign), so accept either trueAngle or trueAngle+180.
	close := math.Abs(angle-trueAngle) < 1 || math.Abs(math.Abs(angle-trueAngle)-180) < 1
	assert.True(t, close, "got angle=%v want near %v or %v", angle, trueAngle, trueAngle+180)
}

func TestRotatorAppliesToBoundSeries(t *testing.T) {
	e := buildTS(t, []float32{1, -1, 1, -1})
	n := buildTS(t, []float32{0, 0, 0, 0})

	r, err := rotate.New(e, n, nil, 90, 0, 0, rotate.UpdateX|rotate.UpdateY)
	require.NoError(t, err)
	require.NoError(t, r.ApplyMethod([]*tseries.TimeSeries{e}))

	assert.InDelta(t, 0, float64(e.Segment(0).Data[0]), 1e-4)
	assert.InDelta(t, -1, float64(n.Segment(0).Data[0]), 1e-4)
}

func TestNewRejectsMissingComponents(t *testing.T) {
	e := buildTS(t, []float32{1})
	_, err := rotate.New(e, nil, nil, 0, 0, 0, rotate.UpdateX)
	assert.Error(t, err)
}
