package cepstrum_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geotool-core/geocore/cepstrum"
)

func impulseAt(n, delaySamples int) []float32 {
	x := make([]float32, n)
	x[delaySamples] = 1
	return x
}

func defaultParams() cepstrum.Params {
	return cepstrum.Params{
		Flo: 0.5, Fhi: 10,
		SmoothingWidth: 2.0, SmoothingPasses: 2,
		Guard1: 0.1, Aveband1: 0.5,
		Guard2: 0.02, Aveband2: 0.1,
		Tpass: 2, Npass: 2,
		PulseDelayMin: 0, PulseDelayMax: 1,
	}
}

func TestComputeRejectsEmptySignal(t *testing.T) {
	_, err := cepstrum.Compute(nil, nil, 0.01, defaultParams())
	assert.Error(t, err)
}

func TestComputeRejectsNonPositiveDt(t *testing.T) {
	_, err := cepstrum.Compute([]float32{1, 2, 3}, nil, 0, defaultParams())
	assert.Error(t, err)
}

func TestComputeProducesFiniteStatistics(t *testing.T) {
	const dt = 0.01
	n := 256
	signal := make([]float32, n)
	for i := range signal {
		signal[i] = float32(math.Sin(2*math.Pi*3*float64(i)*dt)) * float32(math.Exp(-float64(i)*dt))
	}

	out, err := cepstrum.Compute(signal, nil, dt, defaultParams())
	require.NoError(t, err)

	assert.False(t, math.IsNaN(out.DelayTime))
	assert.False(t, math.IsNaN(out.Variance))
	assert.False(t, math.IsNaN(out.PeakStd))
	assert.GreaterOrEqual(t, out.Variance, 0.0)
	assert.Equal(t, n, out.Nf*2-2) // n is already a power of two, so np2 == n == 2*(nf-1)
}

func TestComputeWithNoiseSubtractsEnvelope(t *testing.T) {
	const dt = 0.01
	n := 256
	signal := make([]float32, n)
	noise := make([]float32, n)
	for i := range signal {
		signal[i] = float32(math.Sin(2 * math.Pi * 3 * float64(i) * dt))
		noise[i] = float32(0.01 * math.Sin(2*math.Pi*7*float64(i)*dt))
	}
	p := defaultParams()
	p.ReturnData2 = true
	p.ReturnData3 = true

	out, err := cepstrum.Compute(signal, noise, dt, p)
	require.NoError(t, err)
	require.Len(t, out.Data3, len(out.Data2))
	for _, v := range out.Data3 {
		assert.GreaterOrEqual(t, v, float32(0))
	}
}

func TestComputeReturnsRequestedIntermediates(t *testing.T) {
	const dt = 0.01
	signal := impulseAt(128, 5)
	p := defaultParams()
	p.ReturnData1 = true
	p.ReturnData4 = true
	p.ReturnData6 = true

	out, err := cepstrum.Compute(signal, nil, dt, p)
	require.NoError(t, err)
	assert.Equal(t, out.Nf, len(out.Data1))
	assert.Equal(t, out.Nf, len(out.Data4))
	assert.Equal(t, out.Nf, len(out.Data6))
	assert.Nil(t, out.Data2)
}
