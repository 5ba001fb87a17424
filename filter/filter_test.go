package filter_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geotool-core/geocore/filter"
	"github.com/geotool-core/geocore/segment"
	"github.com/geotool-core/geocore/tseries"
)

func sine(n int, dt, freq float64) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(math.Sin(2 * math.Pi * freq * float64(i) * dt))
	}
	return out
}

func rms(x []float32) float64 {
	var sum float64
	for _, v := range x {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum / float64(len(x)))
}

func TestLowPassAttenuatesHighFrequency(t *testing.T) {
	const dt = 0.01 // 100 Hz sample rate
	f, err := filter.New(4, filter.LowPass, 0, 2, dt, false)
	require.NoError(t, err)

	low := sine(500, dt, 1)  // well inside passband
	high := sine(500, dt, 20) // well into the stopband

	f.Apply(low, true)
	fHigh, err := filter.New(4, filter.LowPass, 0, 2, dt, false)
	require.NoError(t, err)
	fHigh.Apply(high, true)

	assert.Greater(t, rms(low[100:]), rms(high[100:])*2,
		"low-pass filter should pass 1 Hz and attenuate 20 Hz at a 2 Hz cutoff")
	_ = f
}

func TestHighPassAttenuatesLowFrequency(t *testing.T) {
	const dt = 0.01
	fLow, err := filter.New(4, filter.HighPass, 5, 0, dt, false)
	require.NoError(t, err)
	fHigh, err := filter.New(4, filter.HighPass, 5, 0, dt, false)
	require.NoError(t, err)

	low := sine(500, dt, 1)
	high := sine(500, dt, 30)
	fLow.Apply(low, true)
	fHigh.Apply(high, true)

	assert.Greater(t, rms(high[100:]), rms(low[100:])*2,
		"high-pass filter should pass 30 Hz and attenuate 1 Hz at a 5 Hz cutoff")
}

func TestZeroPhaseFilterPreservesPeakLocation(t *testing.T) {
	const dt = 0.01
	n := 300
	data := make([]float32, n)
	data[n/2] = 1 // impulse at center

	f, err := filter.New(4, filter.LowPass, 0, 5, dt, true)
	require.NoError(t, err)
	f.Apply(data, true)

	peak := 0
	for i, v := range data {
		if math.Abs(float64(v)) > math.Abs(float64(data[peak])) {
			peak = i
		}
	}
	assert.InDelta(t, n/2, peak, 3, "zero-phase filtering must not shift the impulse response")
}

func TestNoFilterIsNoOp(t *testing.T) {
	f, err := filter.New(4, filter.NoFilter, 0, 0, 0.01, false)
	require.NoError(t, err)
	data := []float32{1, 2, 3, 4}
	want := append([]float32(nil), data...)
	f.Apply(data, true)
	assert.Equal(t, want, data)
}

func TestApplyMethodResetsOnlyAtNonContinuousBoundary(t *testing.T) {
	ts := tseries.New(tseries.Channel{})
	s1, err := segment.New(0, 0.01, sine(200, 0.01, 1), 1, 1)
	require.NoError(t, err)
	s2, err := segment.New(2.0, 0.01, sine(200, 0.01, 1), 1, 1) // contiguous with s1
	require.NoError(t, err)
	require.NoError(t, ts.AddSegment(s1))
	require.NoError(t, ts.AddSegment(s2))

	f, err := filter.New(4, filter.LowPass, 0, 10, 0.01, false)
	require.NoError(t, err)
	require.NoError(t, f.ApplyMethod([]*tseries.TimeSeries{ts}))

	// A contiguous filter run should not show a restart discontinuity at
	// the segment boundary: the first sample of s2's filtered output
	// should be close to the last sample of s1's, not reset to near zero.
	last1 := ts.Segment(0).Data[len(ts.Segment(0).Data)-1]
	first2 := ts.Segment(1).Data[0]
	assert.InDelta(t, float64(last1), float64(first2), 0.3)
}

func TestRejectsInvalidOrder(t *testing.T) {
	_, err := filter.New(0, filter.LowPass, 0, 1, 0.01, false)
	assert.Error(t, err)
}
