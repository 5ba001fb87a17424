package detect_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geotool-core/geocore/detect"
	"github.com/geotool-core/geocore/segment"
	"github.com/geotool-core/geocore/tseries"
)

func defaultDef() detect.Def {
	return detect.Def{
		StaSec: 0.5, LtaSec: 5,
		OnRatio: 3, OffRatio: 1.5,
		SnrThreshold: 2, TrgSepSec: 2,
		Group: "P",
	}
}

func buildTS(t *testing.T, data []float32, dt float64) *tseries.TimeSeries {
	t.Helper()
	ts := tseries.New(tseries.Channel{})
	s, err := segment.New(0, dt, data, 1, 1)
	require.NoError(t, err)
	require.NoError(t, ts.AddSegment(s))
	return ts
}

func TestDetectFindsOnsetInNoisyThenLoudSignal(t *testing.T) {
	const dt = 0.01
	n := 2000
	data := make([]float32, n)
	for i := range data {
		v := 0.01
		if i > n/2 {
			v = 2.0
		}
		if i%2 == 0 {
			v = -v
		}
		data[i] = float32(v)
	}
	ts := buildTS(t, data, dt)

	cands := detect.Detect("XX", ts, 0, 0, 2.0, defaultDef())
	require.NotEmpty(t, cands)
	onset := cands[0].Time
	assert.InDelta(t, float64(n/2)*dt, onset, 2.0, "onset should land near the amplitude jump")
}

func TestDetectFindsNothingInFlatNoise(t *testing.T) {
	const dt = 0.01
	data := make([]float32, 1000)
	for i := range data {
		if i%2 == 0 {
			data[i] = 0.01
		} else {
			data[i] = -0.01
		}
	}
	ts := buildTS(t, data, dt)
	cands := detect.Detect("XX", ts, 0, 0, 2.0, defaultDef())
	assert.Empty(t, cands)
}

func TestReconcileKeepsOnlyBestSNRWithinSeparation(t *testing.T) {
	cands := []detect.Candidate{
		{Time: 10, SNR: 3, Sta: "AAA", BandIndex: 0},
		{Time: 10.5, SNR: 5, Sta: "AAA", BandIndex: 0},
		{Time: 11, SNR: 4, Sta: "AAA", BandIndex: 0},
		{Time: 30, SNR: 6, Sta: "AAA", BandIndex: 0},
	}
	defs := []detect.Def{{TrgSepSec: 2}}

	detect.Reconcile(cands, defs)

	var accepted []float64
	for _, c := range cands {
		if c.State == 1 {
			accepted = append(accepted, c.SNR)
		}
	}
	assert.Len(t, accepted, 2, "one winner from the close cluster, plus the isolated one at t=30")
	assert.Equal(t, []float64{5, 6}, accepted, "the cluster's best SNR (5), then the isolated candidate's (6)")
}

func TestReconcileTreatsDifferentStationsSeparately(t *testing.T) {
	cands := []detect.Candidate{
		{Time: 10, SNR: 3, Sta: "AAA", BandIndex: 0},
		{Time: 10.5, SNR: 5, Sta: "BBB", BandIndex: 0},
	}
	defs := []detect.Def{{TrgSepSec: 2}}
	detect.Reconcile(cands, defs)
	for _, c := range cands {
		assert.Equal(t, detect.StateChosen, c.State, "both stations should be accepted within the same time cluster")
	}
}

func TestCompareWithArrivalsKeepsWhenNoExistingArrivals(t *testing.T) {
	cands := []detect.Candidate{{Time: 10, SNR: 4, Sta: "AAA", BandIndex: 0, State: detect.StateChosen}}
	defs := []detect.Def{{TrgSepSec: 2}}

	detect.CompareWithArrivals(cands, nil, defs)

	assert.Equal(t, detect.StateKeep, cands[0].State)
}

func TestCompareWithArrivalsKeepsWhenExceedingEveryNearbyArrival(t *testing.T) {
	cands := []detect.Candidate{{Time: 10, SNR: 5, Sta: "AAA", BandIndex: 0, State: detect.StateChosen}}
	existing := []detect.ExistingArrival{
		{ID: 1, Sta: "AAA", Time: 10.2, SNR: 2},
		{ID: 2, Sta: "AAA", Time: 9.5, SNR: 3},
	}
	defs := []detect.Def{{TrgSepSec: 2}}

	detect.CompareWithArrivals(cands, existing, defs)

	assert.Equal(t, detect.StateKeep, cands[0].State)
}

func TestCompareWithArrivalsReplacesWeakestWhenOnlySomeExceeded(t *testing.T) {
	cands := []detect.Candidate{{Time: 10, SNR: 4, Sta: "AAA", BandIndex: 0, State: detect.StateChosen}}
	existing := []detect.ExistingArrival{
		{ID: 7, Sta: "AAA", Time: 10.1, SNR: 2}, // weaker, replaced
		{ID: 8, Sta: "AAA", Time: 9.8, SNR: 6},  // stronger, candidate falls below it
	}
	defs := []detect.Def{{TrgSepSec: 2}}

	detect.CompareWithArrivals(cands, existing, defs)

	assert.Equal(t, detect.StateReplace, cands[0].State)
	assert.EqualValues(t, 7, cands[0].ReplacesArrivalID)
}

func TestCompareWithArrivalsDropsWhenBelowEveryNearbyArrival(t *testing.T) {
	cands := []detect.Candidate{{Time: 10, SNR: 1, Sta: "AAA", BandIndex: 0, State: detect.StateChosen}}
	existing := []detect.ExistingArrival{{ID: 9, Sta: "AAA", Time: 10.1, SNR: 6}}
	defs := []detect.Def{{TrgSepSec: 2}}

	detect.CompareWithArrivals(cands, existing, defs)

	assert.Equal(t, detect.StateChosen, cands[0].State, "dropped candidates are left at StateChosen, not inserted")
}

func TestCompareWithArrivalsIgnoresArrivalsOutsideStationOrWindow(t *testing.T) {
	cands := []detect.Candidate{{Time: 10, SNR: 4, Sta: "AAA", BandIndex: 0, State: detect.StateChosen}}
	existing := []detect.ExistingArrival{
		{ID: 1, Sta: "BBB", Time: 10, SNR: 9}, // different station
		{ID: 2, Sta: "AAA", Time: 50, SNR: 9}, // outside trgsep window
	}
	defs := []detect.Def{{TrgSepSec: 2}}

	detect.CompareWithArrivals(cands, existing, defs)

	assert.Equal(t, detect.StateKeep, cands[0].State, "unrelated arrivals should not block a keep")
}

func TestCompareWithArrivalsLeavesUnchosenCandidatesAlone(t *testing.T) {
	cands := []detect.Candidate{{Time: 10, SNR: 4, Sta: "AAA", BandIndex: 0, State: detect.StateNew}}
	existing := []detect.ExistingArrival{{ID: 1, Sta: "AAA", Time: 10, SNR: 1}}
	defs := []detect.Def{{TrgSepSec: 2}}

	detect.CompareWithArrivals(cands, existing, defs)

	assert.Equal(t, detect.StateNew, cands[0].State)
}

func TestDetectYieldsNoNaNSNROnSilentInput(t *testing.T) {
	const dt = 0.01
	data := make([]float32, 500)
	ts := buildTS(t, data, dt)
	cands := detect.Detect("XX", ts, 0, 0, 1.0, defaultDef())
	for _, c := range cands {
		assert.False(t, math.IsNaN(c.SNR))
	}
}
