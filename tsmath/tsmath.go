// Package tsmath collects the small numeric helpers shared by beam and
// cepstrum: demeaning, linear-trend removal, float32/float64
// conversion, and descriptive statistics (mean, standard deviation,
// RMS). Grounded on
// the scattered helper routines in libsrc/libgmath and fronted by
// gonum.org/v1/gonum/stat rather than hand-rolled accumulators, matching
// the teacher's reliance on gonum for numeric primitives (dft.go's use
// of gonum.org/v1/gonum/dsp/fourier).
package tsmath

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Mean returns the arithmetic mean of x, or 0 if x is empty.
func Mean(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	return stat.Mean(x, nil)
}

// StdDev returns the sample standard deviation of x.
func StdDev(x []float64) float64 {
	if len(x) < 2 {
		return 0
	}
	return stat.StdDev(x, nil)
}

// Demean subtracts the mean of x from every element, in place, and
// returns the mean that was removed.
func Demean(x []float64) float64 {
	m := Mean(x)
	for i := range x {
		x[i] -= m
	}
	return m
}

// DetrendLinear removes the best-fit line from x (treating the sample
// index as the independent variable), in place. Used ahead of spectral
// operations (beam's FT shift, cepstrum) where a DC/linear trend would
// otherwise dominate the lowest frequency bins.
func DetrendLinear(x []float64) {
	n := len(x)
	if n < 2 {
		return
	}
	idx := make([]float64, n)
	for i := range idx {
		idx[i] = float64(i)
	}
	alpha, beta := stat.LinearRegression(idx, x, nil, false)
	for i := range x {
		x[i] -= alpha + beta*float64(i)
	}
}

// Float32ToFloat64 copies a []float32 into a freshly allocated []float64.
func Float32ToFloat64(x []float32) []float64 {
	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = float64(v)
	}
	return out
}

// Float64ToFloat32 copies a []float64 into a freshly allocated []float32.
func Float64ToFloat32(x []float64) []float32 {
	out := make([]float32, len(x))
	for i, v := range x {
		out[i] = float32(v)
	}
	return out
}

// RMS returns the root-mean-square of x.
func RMS(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	var sum float64
	for _, v := range x {
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(x)))
}
