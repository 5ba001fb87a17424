package beam_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geotool-core/geocore/beam"
	"github.com/geotool-core/geocore/segment"
	"github.com/geotool-core/geocore/tseries"
)

func sineSeries(t *testing.T, n int, dt, freq float64) *tseries.TimeSeries {
	t.Helper()
	data := make([]float32, n)
	for i := range data {
		data[i] = float32(math.Sin(2 * math.Pi * freq * float64(i) * dt))
	}
	ts := tseries.New(tseries.Channel{})
	s, err := segment.New(0, dt, data, 1, 1)
	require.NoError(t, err)
	require.NoError(t, ts.AddSegment(s))
	return ts
}

func TestComputeOfIdenticalChannelsYieldsAlignedNonNegativeSemblance(t *testing.T) {
	const dt = 0.01
	n := 400
	a := sineSeries(t, n, dt, 2)
	b := sineSeries(t, n, dt, 2)
	c := sineSeries(t, n, dt, 2)

	stations := []beam.Station{{Lat: 0, Lon: 0}, {Lat: 0, Lon: 0}, {Lat: 0, Lon: 0}}
	p := beam.Params{
		Azimuth: 0, Slowness: 0, BeamLat: 0, BeamLon: 0,
		HalfWindow: 5, Npoles: 3, Flow: 0.5, Fhigh: 5, SNR: 2,
	}
	results, err := beam.Compute([]*tseries.TimeSeries{a, b, c}, stations, p)
	require.NoError(t, err)
	require.NotEmpty(t, results)

	for _, r := range results {
		require.Equal(t, len(r.Beam), len(r.Semblance))
		for _, s := range r.Semblance {
			assert.GreaterOrEqual(t, s, float32(0))
		}
	}
}

func TestComputeRejectsStationCountMismatch(t *testing.T) {
	const dt = 0.01
	a := sineSeries(t, 100, dt, 2)
	_, err := beam.Compute([]*tseries.TimeSeries{a}, nil, beam.Params{HalfWindow: 5})
	assert.Error(t, err)
}
