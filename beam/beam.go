// Package beam implements delay-and-sum beamforming: per-channel
// detrend/taper/subsample time-alignment, beam summation, Butterworth
// filtering of the beam, and the semblance/F-statistic/non-central-F
// detection traces computed over a sliding window.
//
// Grounded on libsrc/libgbeam/ftrace.cpp (a translation of a Fortran
// program by Dave Bowers). The original leans on GSL
// (gsl_fft_real_radix2_transform, gsl_sf_beta_inc_e, gsl_fit_linear);
// this port uses gonum equivalents throughout — dsp/fourier for the
// subsample shift (via the fft package), gonum/stat for the linear
// detrend, and gonum/mathext's regularized incomplete beta function in
// place of gsl_sf_beta_inc_e, since mathext is the gonum module's
// counterpart to that GSL special function and the module is already a
// dependency.
package beam

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mathext"

	"github.com/geotool-core/geocore/fft"
	"github.com/geotool-core/geocore/filter"
	"github.com/geotool-core/geocore/gerrors"
	"github.com/geotool-core/geocore/travel"
	"github.com/geotool-core/geocore/tseries"
	"github.com/geotool-core/geocore/tsmath"
)

// Station carries the coordinates ftrace.cpp needs to compute each
// channel's relative delay from slowness and azimuth.
type Station struct {
	Lat, Lon float64
}

// Params bundles the beam/detector tuning parameters.
type Params struct {
	Azimuth     float64 `desc:"beam steering azimuth, degrees clockwise from north" def:"0"`
	Slowness    float64 `desc:"beam steering slowness, seconds per kilometer" def:"0"`
	BeamLat     float64 `desc:"reference point latitude for the beam" def:"0"`
	BeamLon     float64 `desc:"reference point longitude for the beam" def:"0"`
	HalfWindow  int     `desc:"detection trace half-window length in samples" def:"10"`
	Npoles      int     `desc:"Butterworth filter order applied to the beam and channels" def:"3"`
	Flow        float64 `desc:"low corner frequency, Hz" def:"1"`
	Fhigh       float64 `desc:"high corner frequency, Hz" def:"3"`
	ZeroPhase   bool    `desc:"apply the Butterworth filter zero-phase" def:"false"`
	SNR         float64 `desc:"assumed amplitude SNR for the non-central F probability" def:"2"`
}

// Result holds the four output traces ftrace.cpp produces per coverage
// window: the beam itself and the three detection statistics.
type Result struct {
	Beam        []float32
	Semblance   []float32
	Fstatistic  []float32
	Probability []float32
	Tbeg        float64
	Dt          float64
}

// cosineTaper20 applies the same squared-cosine edge taper to both ends
// of data, over taperLen samples, matching ftrace.cpp's static
// ctaper/ftaper (identical formula for float32 and float64 data).
func cosineTaper20(data []float64, taperLen int) {
	if taperLen <= 0 {
		return
	}
	n := len(data)
	ang := math.Pi / (2 * float64(taperLen))
	for i := 0; i < taperLen && taperLen-1-i >= 0 && n-taperLen-1+i < n; i++ {
		cs := math.Cos(float64(i) * ang)
		data[taperLen-1-i] *= cs * cs
		data[n-taperLen-1+i] *= cs * cs
	}
}

func cosineTaper32(data []float32, taperLen int) {
	if taperLen <= 0 {
		return
	}
	n := len(data)
	ang := math.Pi / (2 * float64(taperLen))
	for i := 0; i < taperLen && taperLen-1-i >= 0 && n-taperLen-1+i < n; i++ {
		cs := math.Cos(float64(i) * ang)
		data[taperLen-1-i] *= float32(cs * cs)
		data[n-taperLen-1+i] *= float32(cs * cs)
	}
}

// Compute builds the beam and its detection traces over the coverage
// windows common to every channel in series, steering toward
// Params.Azimuth/Slowness relative to Params.BeamLat/BeamLon.
//
// Grounded on Beam::ftrace's first overload (az/slowness form): per
// channel, remove the linear trend, apply a 1% cosine taper, compute
// the relative time delay from station geometry and slowness, shift by
// FFT, sum and normalize into the beam, Butterworth-filter the beam and
// every channel, then compute semblance/F/probability via fstuff.
func Compute(series []*tseries.TimeSeries, stations []Station, p Params) ([]Result, error) {
	if len(series) == 0 {
		return nil, fmt.Errorf("beam.Compute: no channels: %w", gerrors.ErrInvalidArgs)
	}
	if len(stations) != len(series) {
		return nil, fmt.Errorf("beam.Compute: %d stations for %d channels: %w",
			len(stations), len(series), gerrors.ErrInvalidArgs)
	}

	windows, err := tseries.Coverage(series, math.Inf(-1), math.Inf(1))
	if err != nil {
		return nil, err
	}

	rad := math.Pi / 180
	skx := p.Slowness * math.Sin(p.Azimuth*rad)
	sky := p.Slowness * math.Cos(p.Azimuth*rad)

	tau := make([]float64, len(series))
	for j, st := range stations {
		if st.Lat == p.BeamLat && st.Lon == p.BeamLon {
			tau[j] = 0
			continue
		}
		distDeg, az, _ := travel.DistAzimuth(p.BeamLat, p.BeamLon, st.Lat, st.Lon)
		ang := az * rad
		distKm := travel.DegToKm(distDeg)
		x := distKm * math.Sin(ang)
		y := distKm * math.Cos(ang)
		tau[j] = x*skx + y*sky
	}

	var results []Result
	for _, w := range windows {
		n := w.N
		if n <= 2*p.HalfWindow {
			continue
		}
		dt := w.Segments[0].Dt
		chans := make([][]float64, len(series))
		for j, seg := range w.Segments {
			beg := w.BeginIndex[j]
			xd := make([]float64, n)
			for i := 0; i < n; i++ {
				xd[i] = float64(seg.Data[beg+i])
			}
			tsmath.DetrendLinear(xd)
			cosineTaper20(xd, maxInt(1, n/100))
			shifted := fft.ShiftByFT(xd, dt, tau[j])
			chans[j] = shifted
		}

		beam := make([]float32, n)
		for i := 0; i < n; i++ {
			var sum float64
			for j := range chans {
				sum += chans[j][i]
			}
			beam[i] = float32(sum / float64(len(chans)))
		}

		bf, err := filter.New(p.Npoles, filter.BandPass, p.Flow, p.Fhigh, dt, p.ZeroPhase)
		if err != nil {
			return nil, err
		}
		bf.Apply(beam, true)

		chanF32 := make([][]float32, len(chans))
		for j := range chans {
			cf, err := filter.New(p.Npoles, filter.BandPass, p.Flow, p.Fhigh, dt, p.ZeroPhase)
			if err != nil {
				return nil, err
			}
			chanF32[j] = tsmath.Float64ToFloat32(chans[j])
			cf.Apply(chanF32[j], true)
		}

		semb, fst, prob := fstuff(chanF32, n, dt, p.HalfWindow, p.SNR, p.Flow, p.Fhigh)
		cosineTaper32(semb, 2*p.HalfWindow+1)

		results = append(results, Result{
			Beam: beam, Semblance: semb, Fstatistic: fst, Probability: prob,
			Tbeg: w.Tmin, Dt: dt,
		})
	}
	return results, nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// fstuff computes, for a sliding window of half-width spts samples, the
// semblance (normalized beam power), the F-statistic derived from it,
// and the probability of a non-central F distribution at that
// F-statistic given the assumed SNR.
//
// Grounded on Beam::fstuff. nn1/nn2 are the degrees of freedom (2*B*T
// with B the passband width and T the window duration, and nn1*(num-1)
// respectively); lambda is the F-distribution's non-centrality
// parameter at the configured SNR.
func fstuff(data [][]float32, npts int, tdel float64, spts int, snr, flow, fhigh float64) (semb, fst, prob []float32) {
	semb = make([]float32, npts)
	fst = make([]float32, npts)
	prob = make([]float32, npts)
	num := len(data)
	if num <= 0 {
		return
	}
	nwin := 2 * spts
	fnn1 := 2 * (fhigh - flow) * float64(nwin) * tdel
	nn1 := int(fnn1)
	if nn1 < 1 {
		nn1 = 1
	}
	nn2 := nn1 * (num - 1)
	lambda := int(fnn1 * snr * snr)
	nc1 := (nn1 + lambda) * (nn1 + lambda) / (nn1 + 2*lambda)

	for k := 0; k <= npts-nwin-1 && k >= 0; k++ {
		smv := k + spts
		if smv >= npts {
			break
		}
		var sum1, sum3 float64
		for i := k; i <= k+nwin && i < npts; i++ {
			var sum0, sum2 float64
			for j := 0; j < num; j++ {
				v := float64(data[j][i])
				sum0 += v
				sum2 += v * v
			}
			sum1 += sum0 * sum0
			sum3 += sum2
		}
		s := sum1 / (float64(num) * sum3)
		semb[smv] = float32(s)

		if s != 0 {
			fst[smv] = float32(s * float64(num-1) / (1 - s))
		} else {
			fst[smv] = float32(s * 1e30)
		}

		fprime := (float64(nn1) * float64(fst[smv])) / float64(nn1+lambda)
		x := float64(nn2) / (float64(nn2) + float64(nc1)*fprime)
		if x > 0 && x < 1 {
			prob[smv] = float32(1 - mathext.RegIncBeta(0.5*float64(nn2), 0.5*float64(nc1), x))
		}
	}
	return
}
