// Package fft collects the handful of fourier-domain operations shared
// across the core: the Hilbert transform used by datamethod.Hilbert, the
// frequency-domain subsample time-shift used by beam, and the forward and
// inverse transforms used by cepstrum. Each call builds its own
// gonum.org/v1/gonum/dsp/fourier.CmplxFFT of the needed length, the same
// transform the teacher's own spectral code (dft.Params.Filter) uses.
package fft

import (
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
)

// Forward returns the n-point DFT of real-valued in, zero-padded or
// truncated to n.
func Forward(in []float64, n int) []complex128 {
	coef := make([]complex128, n)
	for i := 0; i < n && i < len(in); i++ {
		coef[i] = complex(in[i], 0)
	}
	cf := fourier.NewCmplxFFT(n)
	return cf.Coefficients(nil, coef)
}

// Inverse returns the inverse DFT of coef, a complex-valued signal of the
// same length.
func Inverse(coef []complex128) []complex128 {
	cf := fourier.NewCmplxFFT(len(coef))
	return cf.Sequence(nil, coef)
}

// Hilbert returns the analytic signal's imaginary part (the Hilbert
// transform) of the real sequence x: it zeroes the negative-frequency
// half of the spectrum, doubles the positive half, leaves DC and Nyquist
// alone, and inverse-transforms.
//
// Grounded on the standard discrete Hilbert-transform-via-FFT
// construction used by plugins/libghp/Hilbert.cpp's analytic signal step.
func Hilbert(x []float64) []float64 {
	n := len(x)
	if n == 0 {
		return nil
	}
	cf := fourier.NewCmplxFFT(n)
	coef := make([]complex128, n)
	for i, v := range x {
		coef[i] = complex(v, 0)
	}
	spec := cf.Coefficients(nil, coef)

	h := make([]float64, n)
	h[0] = 1
	if n%2 == 0 {
		h[n/2] = 1
		for i := 1; i < n/2; i++ {
			h[i] = 2
		}
	} else {
		for i := 1; i < (n+1)/2; i++ {
			h[i] = 2
		}
	}
	for i := range spec {
		spec[i] *= complex(h[i], 0)
	}
	seq := cf.Sequence(nil, spec)
	out := make([]float64, n)
	for i, c := range seq {
		out[i] = imag(c) / float64(n)
	}
	return out
}

// ShiftByFT applies a subsample time shift of shift seconds (positive delays
// the signal) to the real sequence x sampled at interval sampleDt, via a
// linear phase ramp in the frequency domain.
//
// Grounded on ftrace.cpp's FT-based beam alignment, which shifts traces
// by fractional samples this way rather than by resampling in time.
func ShiftByFT(x []float64, sampleDt, shift float64) []float64 {
	n := len(x)
	if n == 0 || shift == 0 {
		out := make([]float64, n)
		copy(out, x)
		return out
	}
	coef := make([]complex128, n)
	for i, v := range x {
		coef[i] = complex(v, 0)
	}
	cf := fourier.NewCmplxFFT(n)
	spec := cf.Coefficients(nil, coef)

	for k := range spec {
		freqIndex := k
		if freqIndex > n/2 {
			freqIndex -= n
		}
		freq := float64(freqIndex) / (float64(n) * sampleDt)
		phase := -2 * math.Pi * freq * shift
		spec[k] *= complex(math.Cos(phase), math.Sin(phase))
	}
	seq := cf.Sequence(nil, spec)
	out := make([]float64, n)
	for i, c := range seq {
		out[i] = real(c) / float64(n)
	}
	return out
}
