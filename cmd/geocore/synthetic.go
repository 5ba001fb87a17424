package main

import (
	"math"
	"math/rand"

	"github.com/geotool-core/geocore/segment"
	"github.com/geotool-core/geocore/travel"
	"github.com/geotool-core/geocore/tseries"
)

// arrayStation is one element of a synthetic small-aperture array, laid
// out on a spiral around a reference point so beam.Compute has
// real (if fabricated) station geometry to compute delays from.
type arrayStation struct {
	Sta      string
	Lat, Lon float64
}

// syntheticArray lays out n stations on a spiral around (lat0, lon0),
// at 0.3, 0.65 or 1.0 times apertureKm from it (cycling with the station
// index) and evenly spaced in bearing, standing in for a real network response file
// this demo has no dependency on.
func syntheticArray(n int, lat0, lon0, apertureKm float64) []arrayStation {
	stations := make([]arrayStation, n)
	for i := 0; i < n; i++ {
		angle := float64(i) * (2 * math.Pi / float64(n))
		r := apertureKm * (0.3 + 0.7*float64(i%3)/2)
		lat, lon := travel.Destination(lat0, lon0, r, angle*180/math.Pi)
		stations[i] = arrayStation{Sta: stationName(i), Lat: lat, Lon: lon}
	}
	return stations
}

func stationName(i int) string {
	const letters = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	return "S" + string(letters[i%len(letters)])
}

// syntheticPlaneWave builds one TimeSeries per station: a short
// Ricker-wavelet-shaped pulse plus Gaussian noise, time-shifted across
// the array according to azimuthDeg/slownessSecPerKm measured from
// (beamLat, beamLon), the same delay geometry beam.Compute itself uses.
func syntheticPlaneWave(stations []arrayStation, beamLat, beamLon, azimuthDeg, slownessSecPerKm float64,
	dt float64, npts int, cfreq, noiseAmp float64, seed int64) []*tseries.TimeSeries {

	rng := rand.New(rand.NewSource(seed))
	rad := math.Pi / 180
	skx := slownessSecPerKm * math.Sin(azimuthDeg*rad)
	sky := slownessSecPerKm * math.Cos(azimuthDeg*rad)

	out := make([]*tseries.TimeSeries, len(stations))
	for j, st := range stations {
		var tau float64
		if st.Lat != beamLat || st.Lon != beamLon {
			distDeg, az, _ := travel.DistAzimuth(beamLat, beamLon, st.Lat, st.Lon)
			ang := az * rad
			distKm := travel.DegToKm(distDeg)
			x := distKm * math.Sin(ang)
			y := distKm * math.Cos(ang)
			tau = x*skx + y*sky
		}

		data := make([]float32, npts)
		onsetSec := float64(npts) * dt * 0.4
		for i := range data {
			t := float64(i)*dt + tau
			signal := rickerWavelet(t-onsetSec, cfreq)
			data[i] = float32(signal + noiseAmp*rng.NormFloat64())
		}

		ts := tseries.New(tseries.Channel{Sta: st.Sta, Chan: "BHZ", Net: "XX", Lat: st.Lat, Lon: st.Lon})
		seg, err := segment.New(0, dt, data, 1, 1)
		if err != nil {
			continue
		}
		_ = ts.AddSegment(seg)
		out[j] = ts
	}
	return out
}

// rickerWavelet is a standard "Mexican hat" seismic pulse shape, used
// here only to give the demo's synthetic channels a recognizable onset
// for detection and beamforming to find.
func rickerWavelet(t, cfreq float64) float64 {
	a := math.Pi * cfreq * t
	a2 := a * a
	return (1 - 2*a2) * math.Exp(-a2)
}

// constantVelocityOracle is a toy flat-earth travel.Oracle standing in
// for a real travel-time table (IASP91 or a crustal model), which this
// demo has no dependency on: travel time is straight-line range over a
// fixed velocity, with analytic partials.
type constantVelocityOracle struct {
	velocityKmS float64
}

func (o constantVelocityOracle) TravelTime(req travel.Request) travel.Response {
	distKm := travel.DegToKm(req.DistanceDeg)
	depthKm := req.OriginDepth
	rangeKm := math.Hypot(distKm, depthKm)
	if rangeKm < 1e-6 {
		rangeKm = 1e-6
	}
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
