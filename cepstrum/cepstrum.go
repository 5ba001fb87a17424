// Package cepstrum implements spectral whitening via Noise Spectrum
// Equalization and cepstral peak picking, used to estimate a signal's
// onset delay (and a confidence measure for that delay) relative to a
// reference window.
//
// Grounded on libsrc/libgmath/cepstrum.c (itself a port of an algorithm
// from libhydro, Frank Graeber, PTS 2005). The original builds its
// spectra with GSL's gsl_fft_real_radix2_transform and unpacks the
// inverse from gsl_fft_halfcomplex_radix2_inverse's packed real/
// imaginary layout; this port uses the shared fft package (gonum's
// complex FFT) for both directions instead, building the explicit
// conjugate-symmetric spectrum the halfcomplex format represents
// implicitly. The demean and linear-detrend steps reuse tsmath, the
// same primitives filter design and beam already share.
package cepstrum

import (
	"fmt"
	"math"
	"math/cmplx"

	"github.com/geotool-core/geocore/fft"
	"github.com/geotool-core/geocore/gerrors"
	"github.com/geotool-core/geocore/tsmath"
)

// Params tunes the cepstrum pipeline, matching cepstrum.c's CepstrumParam.
type Params struct {
	Flo, Fhi         float64 `desc:"passband searched for the cepstral peak, Hz" def:"1,3"`
	SmoothingWidth   float64 `desc:"spectral smoothing box width, Hz" def:"0.5"`
	SmoothingPasses  int     `desc:"number of spectral smoothing passes" def:"3"`
	Guard1, Aveband1 float64 `desc:"guard and averaging bands for the frequency-domain noise equalization, Hz" def:"0,1"`
	Guard2, Aveband2 float64 `desc:"guard and averaging bands for the time-domain noise equalization, seconds" def:"0,1"`
	Tpass            float64 `desc:"noise-equalization pass threshold, halved every pass" def:"2"`
	Npass            int     `desc:"number of noise-equalization passes" def:"3"`
	NoiseFlag        bool    `desc:"output the noise-normalizing envelope instead of the normalized spectrum" def:"false"`
	PulseDelayMin    float64 `desc:"earliest onset delay considered in the peak search, seconds" def:"0"`
	PulseDelayMax    float64 `desc:"latest onset delay considered in the peak search, seconds" def:"10"`

	ReturnData1, ReturnData2, ReturnData3 bool
	ReturnData4, ReturnData5, ReturnData6 bool
	ReturnNoise1, ReturnNoise2            bool
}

// Out holds the cepstrum pipeline's summary statistics, plus whichever
// intermediate stages Params asked to keep.
type Out struct {
	Nf     int
	Dt, Df float64

	Data1, Data2, Data3 []float32
	Data4, Data5, Data6 []float32
	Noise1, Noise2      []float32

	DelayTime float64
	Variance  float64
	PeakStd   float64
}

// Compute runs the cepstrum pipeline on signal (samples dt seconds
// apart), optionally whitening against a separate noise sample of the
// same sample rate.
//
// Grounded on Cepstrum() in cepstrum.c, stage for stage.
func Compute(signal []float32, noise []float32, dt float64, p Params) (Out, error) {
	if len(signal) == 0 || dt <= 0 {
		return Out{}, fmt.Errorf("cepstrum.Compute: invalid signal/dt: %w", gerrors.ErrInvalidArgs)
	}

	npts := len(signal)
	if len(noise) > npts {
		npts = len(noise)
	}
	np2 := 2
	for np2 < npts {
		np2 *= 2
	}
	nf := np2/2 + 1
	df := 1 / (float64(np2) * dt)

	out := Out{Nf: nf, Dt: dt, Df: df}

	data := spectralAmplitude(signal, np2, nf)
	if p.ReturnData1 {
		out.Data1 = cloneF32(data)
	}

	if err := smooth(data, df, p.SmoothingWidth, p.SmoothingPasses); err != nil {
		return Out{}, err
	}

	max := maxOf(data)
	if max != 0 {
		scale(data, 1/max)
	}
	if p.ReturnData2 {
		out.Data2 = cloneF32(data)
	}

	if len(noise) > 0 {
		noiseAmp := spectralAmplitude(noise, np2, nf)
		if p.ReturnNoise1 {
			out.Noise1 = cloneF32(noiseAmp)
		}
		if err := smooth(noiseAmp, df, p.SmoothingWidth, p.SmoothingPasses); err != nil {
			return Out{}, err
		}
		if max != 0 {
			scale(noiseAmp, 1/max)
		}
		if p.ReturnNoise2 {
			out.Noise2 = cloneF32(noiseAmp)
		}
		for i := range data {
			data[i] -= noiseAmp[i]
			if data[i] < 0 {
				data[i] = 0
			}
		}
		if p.ReturnData3 {
			out.Data3 = cloneF32(data)
		}
	}

	for i := range data {
		data[i] = log10(data[i])
	}

	if1 := clampIndex(int(p.Flo/df+.5), nf)
	if2 := clampIndex(int(p.Fhi/df+.5), nf)
	if if2 < if1 {
		if1, if2 = if2, if1
	}

	guard := int(math.Round(p.Guard1 / df))
	aveband := int(math.Round(p.Aveband1 / df))
	band := data[if1 : if2+1]
	noiseSpectrumEqual(band, guard, aveband, p.Tpass, p.Npass, p.NoiseFlag)
	detrend(band)
	if p.NoiseFlag {
		cosineTaperFrac(band, 0.1, 0.1)
	} else {
		cosineTaperFrac(band, 0.2, 0.2)
	}

	for i := 0; i < if1; i++ {
		data[i] = data[if1]
	}
	for i := if2; i < nf; i++ {
		data[i] = data[if2]
	}

	// remove the mean to eliminate the DC component
	subtractMean(data)

	if p.ReturnData4 {
		out.Data4 = cloneF32(data)
	}

	data = inverseSymmetric(data, dt, np2, nf)

	if p.ReturnData5 {
		out.Data5 = cloneF32(data)
	}

	i1 := int(math.Round(p.PulseDelayMin/dt)) + 1
	if p.Fhi > 0 {
		if floor := int(1 / (p.Fhi * dt)); i1 < floor {
			i1 = floor
		}
	}
	i1 = clampIndex(i1, nf)
	i2 := clampIndex(int(math.Round(p.PulseDelayMax/dt)), nf)

	min := data[0]
	flatTo := 0
	for i := 0; i < i1; i++ {
		if data[i] <= min {
			flatTo = i
			min = data[i]
		}
	}
	for i := 0; i < flatTo; i++ {
		data[i] = min
	}

	min = data[0]
	for _, v := range data[:nf] {
		if v < min {
			min = v
		}
	}
	for i := range data {
		data[i] -= min
	}

	guard = int(math.Round(p.Guard2 / dt))
	aveband = int(math.Round(p.Aveband2 / dt))
	noiseSpectrumEqual(data, guard, aveband, p.Tpass, p.Npass, p.NoiseFlag)
	detrend(data)
	for i := range data {
		data[i] = float32(math.Abs(float64(data[i])))
	}

	if p.ReturnData6 {
		out.Data6 = cloneF32(data)
	}

	max32 := data[i1]
	imax := i1
	var mean float64
	for i := i1; i <= i2; i++ {
		if data[i] > max32 {
			max32 = data[i]
			imax = i
		}
		mean += float64(data[i])
	}
	out.DelayTime = float64(imax) * dt
	mean /= float64(i2 - i1 + 1)

	var sqerr float64
	for i := i1; i <= i2; i++ {
		d := mean - float64(data[i])
		sqerr += d * d
	}
	out.Variance = sqerr / float64(i2-i1+1)
	out.PeakStd = (float64(max32) - mean) / math.Sqrt(out.Variance)

	return out, nil
}

func clampIndex(i, nf int) int {
	if i < 0 {
		return 0
	}
	if i > nf-1 {
		return nf - 1
	}
	return i
}

func log10(v float32) float32 {
	if v == 0 {
		return 1e-20
	}
	return float32(math.Log10(float64(v)))
}

func cloneF32(x []float32) []float32 {
	c := make([]float32, len(x))
	copy(c, x)
	return c
}

func maxOf(x []float32) float32 {
	if len(x) == 0 {
		return 0
	}
	m := x[0]
	for _, v := range x[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

func scale(x []float32, factor float32) {
	for i := range x {
		x[i] *= factor
	}
}

func subtractMean(x []float32) {
	if len(x) == 0 {
		return
	}
	var sum float64
	for _, v := range x {
		sum += float64(v)
	}
	mean := float32(sum / float64(len(x)))
	for i := range x {
		x[i] -= mean
	}
}

// spectralAmplitude zero-pads x to np2 samples, demeans and Hann-tapers
// the real portion, and returns the magnitude of the first nf
// (=np2/2+1) DFT coefficients.
func spectralAmplitude(x []float32, np2, nf int) []float32 {
	r := make([]float64, np2)
	for i, v := range x {
		r[i] = float64(v)
	}
	tsmath.Demean(r[:len(x)])
	taperHann(r[:len(x)])

	coef := fft.Forward(r, np2)
	data := make([]float32, nf)
	for i := 0; i < nf; i++ {
		data[i] = float32(cmplx.Abs(coef[i]))
	}
	return data
}

// taperHann applies a Hann window across x in place, matching
// cepstrum.c's static taperHann (the same 0.5*(1-cos(2*pi*i/(n-1)))
// formula datamethod's hanning taper uses).
func taperHann(x []float64) {
	n := len(x)
	if n <= 1 {
		return
	}
	step := 2 * math.Pi / float64(n-1)
	for i := range x {
		x[i] *= 0.5 * (1 - math.Cos(float64(i)*step))
	}
}

// smooth runs a boxcar average over data smoothingPasses times, with a
// box width derived from the requested smoothingWidth in Hz.
//
// Grounded on CepstrumSmooth.
func smooth(data []float32, df, smoothingWidth float64, smoothingPasses int) error {
	nf := len(data)
	nbox := int(smoothingWidth / (2 * df))
	nbox = 2*nbox + 1
	if nbox < 3 || nf < 2*nbox || nbox%2 == 0 {
		return fmt.Errorf("cepstrum.smooth: smoothing width incompatible with %d bins: %w", nf, gerrors.ErrInvalidArgs)
	}
	nbox2 := (nbox - 1) / 2
	tmp := make([]float32, nf)
	for pass := 0; pass < smoothingPasses; pass++ {
		for i := 0; i < nf; i++ {
			istart := i - nbox2
			if istart < 0 {
				istart = 0
			}
			iend := i + nbox2 + 1
			if iend > nf {
				iend = nf
			}
			var sum float64
			for j := istart; j < iend; j++ {
				sum += float64(data[j])
			}
			tmp[i] = float32(sum / float64(iend-istart))
		}
		copy(data, tmp)
	}
	return nil
}

// noiseSpectrumEqual performs multi-pass split-symmetric-window noise
// spectrum equalization: at each bin it compares the value to a guard-
// banded average of its neighbors and clamps it to that average when it
// exceeds tpass times the average, halving tpass every pass. When
// noiseFlag is set the output is the averaged envelope itself rather
// than data normalized by it.
//
// Grounded on the static noiseSpectrumEqual in cepstrum.c.
func noiseSpectrumEqual(data []float32, guard, aveband int, tpass float64, npass int, noiseFlag bool) {
	nf := len(data)
	buff := make([]float64, nf)
	snorm := make([]float64, nf)
	for i, v := range data {
		buff[i] = float64(v)
	}

	tp := tpass
	for pass := 0; pass < npass; pass++ {
		for j := nf - 1; j >= 0; j-- {
			var tempu, dnomu float64
			if j < nf-guard-1 {
				k2 := j + aveband + guard + 1
				if k2 > nf {
					k2 = nf
				}
				for k := j + guard + 1; k < k2; k++ {
					tempu += buff[k]
				}
				dnomu = float64(k2 - (j + guard + 1))
			}
			var templ, dnoml float64
			if j > guard {
				k1 := j - (aveband + guard)
				if k1 < 0 {
					k1 = 0
				}
				for k := k1; k < j-guard; k++ {
					templ += buff[k]
				}
				dnoml = float64(j - guard - k1)
			}
			anoise := (templ + tempu) / (dnoml + dnomu)
			snorm[j] = anoise
			if buff[j] > tp*anoise {
				buff[j] = anoise
			}
		}
		tp /= 2
	}

	if noiseFlag {
		for i := range data {
			if math.Abs(snorm[i]) > 1e-13 {
				data[i] = float32(snorm[i])
			} else {
				data[i] = 1e-13
			}
		}
		return
	}
	for i := range data {
		n := float64(data[i])
		if math.Abs(n) <= 1e-11 {
			n = 1e-11
		}
		d := snorm[i]
		if math.Abs(d) <= 1e-11 {
			d = 1e-11
		}
		data[i] = float32(n / d)
	}
}

// detrend removes the best-fit line from data, in place. The original's
// closed-form 1-based-index formula and a least-squares fit against
// 0-based sample index (tsmath.DetrendLinear) remove the identical
// line — only the formula's intercept convention differs — so the
// shared helper is used here instead of re-deriving the same algebra.
func detrend(data []float32) {
	x := tsmath.Float32ToFloat64(data)
	tsmath.DetrendLinear(x)
	copy(data, tsmath.Float64ToFloat32(x))
}

// cosineTaperFrac tapers the first leftFrac and last rightFrac fraction
// of data with a half-cosine ramp, matching Taper_cosine's fractional
// width contract.
func cosineTaperFrac(data []float32, leftFrac, rightFrac float64) {
	n := len(data)
	wl := int(float64(n) * leftFrac)
	wr := int(float64(n) * rightFrac)
	for i := 0; i < wl && i < n; i++ {
		frac := 0.5 * (1 - math.Cos(math.Pi*float64(i)/float64(wl)))
		data[i] *= float32(frac)
	}
	for i := 0; i < wr && i < n; i++ {
		frac := 0.5 * (1 - math.Cos(math.Pi*float64(i)/float64(wr)))
		data[n-1-i] *= float32(frac)
	}
}

// inverseSymmetric treats data (length nf = np2/2+1) as the real part of
// a conjugate-symmetric spectrum with zero imaginary part, expands it to
// a full np2-point spectrum, and returns the real part of its inverse
// transform (length nf), scaled by 1/dt to match cepstrum.c's r[i] =
// data[i]/dt convention before the halfcomplex inverse.
func inverseSymmetric(data []float32, dt float64, np2, nf int) []float32 {
	coef := make([]complex128, np2)
	for i := 0; i < nf; i++ {
		coef[i] = complex(float64(data[i])/dt, 0)
	}
	for i := 1; i < nf-1; i++ {
		coef[np2-i] = coef[i]
	}
	seq := fft.Inverse(coef)
	out := make([]float32, nf)
	for i := 0; i < nf; i++ {
		out[i] = float32(real(seq[i]) / float64(np2))
	}
	return out
}
