package locatelm_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geotool-core/geocore/locate"
	"github.com/geotool-core/geocore/locatelm"
	"github.com/geotool-core/geocore/travel"
)

// constantVelocityOracle is the same synthetic flat-earth oracle used by
// the locate package's tests, duplicated here (rather than exported from
// locate's test file, which Go does not allow importing) since both
// packages need an oracle that can produce analytic partials without a
// real phase-table dependency.
type constantVelocityOracle struct {
	velocityKmS float64
}

func (o constantVelocityOracle) TravelTime(req travel.Request) travel.Response {
	distKm := travel.DegToKm(req.DistanceDeg)
	depthKm := req.OriginDepth
	rangeKm := math.Hypot(distKm, depthKm)
	tt := rangeKm / o.velocityKmS

	return travel.Response{
		TravelTime: tt,
		Azimuth:    req.AzimuthDeg,
		Slowness:   1 / o.velocityKmS * travel.DegToKm(1),
		Deriv: travel.Derivatives{
			Dlon:   (distKm / rangeKm) * math.Sin(req.AzimuthDeg*math.Pi/180) / o.velocityKmS,
			Dlat:   (distKm / rangeKm) * math.Cos(req.AzimuthDeg*math.Pi/180) / o.velocityKmS,
			Ddepth: (depthKm / rangeKm) / o.velocityKmS,
			Dtime:  1,
		},
		ErrorCode: travel.ErrNone,
	}
}

func buildObservations(stations [][2]float64, origin locate.Origin, oracle constantVelocityOracle) []locate.Observation {
	var obs []locate.Observation
	for _, st := range stations {
		distDeg, _, esaz := travel.DistAzimuth(st[0], st[1], origin.Lat, origin.Lon)
		resp := oracle.TravelTime(travel.Request{
			OriginLat: origin.Lat, OriginLon: origin.Lon, OriginDepth: origin.Depth,
			DistanceDeg: distDeg, AzimuthDeg: esaz,
		})
		obs = append(obs, locate.Observation{
			StaLat: st[0], StaLon: st[1],
			UseTime: true,
			Time:    origin.OriginTime + resp.TravelTime,
			Sigma:   0.1,
		})
	}
	return obs
}

func TestRunRejectsEmptyObservations(t *testing.T) {
	oracle := constantVelocityOracle{velocityKmS: 6}
	_, err := locatelm.Run(nil, locate.Origin{}, 0, 0, locate.Origin{}, oracle, locatelm.Params{})
	assert.Error(t, err)
}

func TestRunRejectsNilOracle(t *testing.T) {
	obs := []locate.Observation{{StaLat: 1, StaLon: 1, UseTime: true, Time: 5, Sigma: 1}}
	_, err := locatelm.Run(obs, locate.Origin{}, 0, 0, locate.Origin{}, nil, locatelm.Params{})
	assert.Error(t, err)
}

func TestRunKeepsSVDWhenAlreadyGood(t *testing.T) {
	oracle := constantVelocityOracle{velocityKmS: 6.0}
	trueOrigin := locate.Origin{OriginTime: 100, Lon: 10, Lat: 10, Depth: 20}
	stations := [][2]float64{{9.5, 9.5}, {10.5, 10.5}, {9.5, 10.5}, {10.5, 9.5}}
	obs := buildObservations(stations, trueOrigin, oracle)

	// The true origin fits the synthetic arrivals exactly, so its weighted
	// RMS is 0 and no LM start can strictly improve on it.
	res, err := locatelm.Run(obs, trueOrigin, 0, len(obs), trueOrigin, oracle, locatelm.Params{MaxIterations: 5})
	require.NoError(t, err)
	assert.Equal(t, locatelm.UseSVD, res.Code)
	assert.Equal(t, trueOrigin.Lat, res.Origin.Lat)
}

func TestRunImprovesOnPoorSVDStart(t *testing.T) {
	oracle := constantVelocityOracle{velocityKmS: 6.0}
	trueOrigin := locate.Origin{OriginTime: 50, Lon: 20, Lat: -10, Depth: 100}
	stations := [][2]float64{
		{-10.5, 19.5}, {-9.5, 20.5}, {-10.5, 20.5}, {-9.5, 19.5}, {-10.2, 19.8},
	}
	obs := buildObservations(stations, trueOrigin, oracle)

	badSVD := locate.Origin{OriginTime: 30, Lon: 25, Lat: -15, Depth: 5}
	init := locate.Origin{OriginTime: 45, Lon: 21, Lat: -11, Depth: 50}

	res, err := locatelm.Run(obs, badSVD, 50.0, 1, init, oracle, locatelm.Params{MaxIterations: 25})
	require.NoError(t, err)
	assert.NotEqual(t, locatelm.UseSVD, res.Code)
	assert.Less(t, res.WeightedRMS, 50.0)
}

func TestRunHonorsFixedDepth(t *testing.T) {
	oracle := constantVelocityOracle{velocityKmS: 6.0}
	trueOrigin := locate.Origin{OriginTime: 0, Lon: 0, Lat: 0, Depth: 33}
	stations := [][2]float64{{-0.5, -0.5}, {0.5, 0.5}, {-0.5, 0.5}, {0.5, -0.5}}
	obs := buildObservations(stations, trueOrigin, oracle)

	badSVD := locate.Origin{OriginTime: -5, Lon: 1, Lat: 1, Depth: 60}
	res, err := locatelm.Run(obs, badSVD, 20.0, 1, badSVD, oracle,
		locatelm.Params{MaxIterations: 10, FixDepth: true})
	require.NoError(t, err)
	if res.Code != locatelm.UseSVD {
		assert.Equal(t, 60.0, res.Origin.Depth)
	}
}

func TestDepthDerivativeOfSlownessIsFiniteForSaneInputs(t *testing.T) {
	oracle := constantVelocityOracle{velocityKmS: 8.0}
	origin := locate.Origin{OriginTime: 0, Lon: 0, Lat: 0, Depth: 50}
	obs := locate.Observation{StaLat: 1, StaLon: 1, Phase: "P"}

	d := locatelm.DepthDerivativeOfSlowness(obs, origin, 5, oracle)
	assert.False(t, math.IsNaN(d))
	assert.False(t, math.IsInf(d, 0))
}
