package datamethod_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geotool-core/geocore/datamethod"
	"github.com/geotool-core/geocore/segment"
	"github.com/geotool-core/geocore/tseries"
)

func buildSeries(t *testing.T, data []float32) *tseries.TimeSeries {
	t.Helper()
	ts := tseries.New(tseries.Channel{})
	s, err := segment.New(0, 1, data, 1, 1)
	require.NoError(t, err)
	require.NoError(t, ts.AddSegment(s))
	return ts
}

func TestDemeanZeroesMean(t *testing.T) {
	ts := buildSeries(t, []float32{1, 2, 3, 4, 5})
	require.NoError(t, datamethod.Demean{}.ApplyMethod([]*tseries.TimeSeries{ts}))
	assert.InDelta(t, 0, ts.Mean(), 1e-6)
}

func TestCosineTaperZeroesEndpoints(t *testing.T) {
	data := make([]float32, 20)
	for i := range data {
		data[i] = 1
	}
	ts := buildSeries(t, data)
	taper, err := datamethod.NewTaper(datamethod.TaperCosine, 50, 0, 0)
	require.NoError(t, err)
	require.NoError(t, taper.ApplyMethod([]*tseries.TimeSeries{ts}))

	out := ts.Segment(0).Data
	assert.InDelta(t, 0, out[0], 1e-6)
	assert.InDelta(t, 0, out[len(out)-1], 1e-6)
	assert.Greater(t, out[len(out)/2], float32(0.9))
}

func TestCosineBegOnlyTapersStart(t *testing.T) {
	data := make([]float32, 20)
	for i := range data {
		data[i] = 1
	}
	ts := buildSeries(t, data)
	taper, err := datamethod.NewTaper(datamethod.TaperCosineBeg, 50, 0, 0)
	require.NoError(t, err)
	require.NoError(t, taper.ApplyMethod([]*tseries.TimeSeries{ts}))

	out := ts.Segment(0).Data
	assert.InDelta(t, 0, out[0], 1e-6)
	assert.InDelta(t, 1, out[len(out)-1], 1e-6)
}

func TestNewTaperRejectsUnknownType(t *testing.T) {
	_, err := datamethod.NewTaper("bogus", 10, 0, 0)
	assert.Error(t, err)
}

func TestHilbertOfSinePhaseShifted(t *testing.T) {
	const n = 64
	data := make([]float32, n)
	for i := range data {
		data[i] = float32(math.Sin(2 * math.Pi * 4 * float64(i) / n))
	}
	ts := buildSeries(t, data)
	require.NoError(t, datamethod.Hilbert{}.ApplyMethod([]*tseries.TimeSeries{ts}))

	out := ts.Segment(0).Data
	// Hilbert transform of sin is approximately -cos; check a
	// representative interior sample rather than the whole sequence to
	// avoid edge-effect sensitivity.
	i := n / 4
	want := -math.Cos(2 * math.Pi * 4 * float64(i) / n)
	assert.InDelta(t, want, float64(out[i]), 0.25)
}
