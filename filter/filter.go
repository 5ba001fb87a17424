// Package filter implements the IIR Butterworth filter: pole placement
// for low-pass, high-pass, band-pass, and band-reject designs, the
// bilinear transform to second-order sections, and the streaming,
// optionally zero-phase, recursive application of those sections.
//
// Grounded on libsrc/libgmethod++/IIRFilter.cpp, a translation of Dave
// Harris's Fortran iir-filter routines (bupoles, lptbpa, lptbra,
// lpthpa, lpa, bilin2, apiir). The original represents poles with a
// hand-rolled Cmplx struct and its own complex arithmetic helpers; this
// port uses Go's native complex128 and math/cmplx in their place, the
// idiomatic equivalent.
package filter

import (
	"fmt"
	"math"
	"math/cmplx"
	"strings"

	"github.com/geotool-core/geocore/gerrors"
	"github.com/geotool-core/geocore/segment"
	"github.com/geotool-core/geocore/tseries"
)

// Type names the filter's passband shape.
type Type string

const (
	LowPass    Type = "LP"
	HighPass   Type = "HP"
	BandPass   Type = "BP"
	BandReject Type = "BR"
	NoFilter   Type = "NA"
)

// IIRFilter is a Butterworth IIR filter expressed as second-order
// sections, with its own recursive-filter state (x1/x2/y1/y2 per
// section) so a chain can continue a running filter across segments
// that are known to be contiguous.
type IIRFilter struct {
	Order     int
	FilterType Type
	Flow      float64
	Fhigh     float64
	Tdel      float64
	ZeroPhase bool

	sn, sd         [][3]float64 // numerator/denominator per section
	x1, x2, y1, y2 []float64
}

// New designs a Butterworth filter of the given order, type, cutoffs
// (Hz), sample interval tdel (seconds), and zero-phase flag.
//
// Grounded on IIRFilter::init: the cutoffs are first converted to the
// normalized angular form used by the pole-placement routines, then
// tangent-warped to compensate for the bilinear transform's frequency
// compression, then the poles of a normalized analog lowpass
// Butterworth filter are placed and transformed to the requested shape.
func New(order int, ftype Type, flow, fhigh, tdel float64, zeroPhase bool) (*IIRFilter, error) {
	if order <= 0 || order > 10 {
		return nil, fmt.Errorf("filter.New: order=%d: %w", order, gerrors.ErrInvalidArgs)
	}
	if tdel <= 0 {
		return nil, fmt.Errorf("filter.New: tdel=%g: %w", tdel, gerrors.ErrInvalidArgs)
	}
	f := &IIRFilter{Order: order, FilterType: ftype, Flow: flow, Fhigh: fhigh, Tdel: tdel, ZeroPhase: zeroPhase}

	if ftype == NoFilter {
		return f, nil
	}

	poles, ptype := butterPoles(order)

	switch strings.ToUpper(string(ftype)) {
	case string(BandPass):
		fl := flow * tdel / 2
		fh := fhigh * tdel / 2
		flw := tangentWarp(fl, 2)
		fhw := tangentWarp(fh, 2)
		f.lpToBP(poles, ptype, flw, fhw)
	case string(BandReject):
		fl := flow * tdel / 2
		fh := fhigh * tdel / 2
		flw := tangentWarp(fl, 2)
		fhw := tangentWarp(fh, 2)
		f.lpToBR(poles, ptype, flw, fhw)
	case string(LowPass):
		fh := fhigh * tdel / 2
		fhw := tangentWarp(fh, 2)
		f.lowpass(poles, ptype)
		f.cutoffAlter(fhw)
	case string(HighPass):
		fl := flow * tdel / 2
		flw := tangentWarp(fl, 2)
		f.lpToHP(poles, ptype)
		f.cutoffAlter(flw)
	default:
		return nil, fmt.Errorf("filter.New: type=%q: %w", ftype, gerrors.ErrInvalidArgs)
	}

	f.bilinear()
	n := len(f.sn)
	f.x1 = make([]float64, n)
	f.x2 = make([]float64, n)
	f.y1 = make([]float64, n)
	f.y2 = make([]float64, n)
	return f, nil
}

// butterPoles places the poles of a normalized analog lowpass
// Butterworth filter of order iord: one real pole at -1 if iord is odd,
// plus one pole per complex-conjugate pair, angularly spaced around the
// left half of the unit circle.
//
// Grounded on IIRFilter::butterPoles.
func butterPoles(iord int) ([]complex128, []byte) {
	half := iord / 2
	poles := make([]complex128, 0, half+1)
	ptype := make([]byte, 0, half+1)
	if 2*half < iord {
		poles = append(poles, complex(-1, 0))
		ptype = append(ptype, 'S')
	}
	for k := 0; k < half; k++ {
		angle := math.Pi * (0.5 + float64(2*(k+1)-1)/float64(2*iord))
		poles = append(poles, complex(math.Cos(angle), math.Sin(angle)))
		ptype = append(ptype, 'C')
	}
	return poles, ptype
}

// tangentWarp applies tangent frequency warping to compensate for the
// bilinear transform's frequency compression, per IIRFilter::tangent_warp.
func tangentWarp(f, t float64) float64 {
	fac := 0.5 * f * t
	if fac >= 0.25 {
		fac = 0.2499999
	}
	angle := fac * 2 * math.Pi
	warp := 2 * math.Tan(angle) / t
	return warp / (2 * math.Pi)
}

// lowpass builds second-order sections directly from the normalized
// analog lowpass poles. Grounded on IIRFilter::lowpass.
func (f *IIRFilter) lowpass(p []complex128, ptype []byte) {
	f.sn = f.sn[:0]
	f.sd = f.sd[:0]
	for i, pt := range ptype {
		if pt == 'C' {
			f.sn = append(f.sn, [3]float64{1, 0, 0})
			f.sd = append(f.sd, [3]float64{real(p[i] * cmplx.Conj(p[i])), -2 * real(p[i]), 1})
		} else {
			f.sn = append(f.sn, [3]float64{1, 0, 0})
			f.sd = append(f.sd, [3]float64{-real(p[i]), 1, 0})
		}
	}
}

// lpToHP converts the normalized analog lowpass poles to a highpass
// filter. Grounded on IIRFilter::LPtoHP.
func (f *IIRFilter) lpToHP(p []complex128, ptype []byte) {
	f.sn = f.sn[:0]
	f.sd = f.sd[:0]
	for i, pt := range ptype {
		if pt == 'C' {
			f.sn = append(f.sn, [3]float64{0, 0, 1})
			f.sd = append(f.sd, [3]float64{1, -2 * real(p[i]), real(p[i] * cmplx.Conj(p[i]))})
		} else {
			f.sn = append(f.sn, [3]float64{0, 1, 0})
			f.sd = append(f.sd, [3]float64{1, -real(p[i]), 0})
		}
	}
}

// lpToBP converts the normalized analog lowpass poles to a bandpass
// filter with cutoffs fl, fh. Grounded on IIRFilter::LPtoBP.
func (f *IIRFilter) lpToBP(p []complex128, ptype []byte, fl, fh float64) {
	f.sn = f.sn[:0]
	f.sd = f.sd[:0]
	twopi := 2 * math.Pi
	a := twopi * twopi * fl * fh
	b := twopi * (fh - fl)
	for i, pt := range ptype {
		if pt == 'C' {
			ctemp := b * p[i]
			ctemp = ctemp * ctemp
			ctemp = ctemp - complex(4*a, 0)
			ctemp = cmplx.Sqrt(ctemp)
			p1 := 0.5 * (complex(b, 0)*p[i] + ctemp)
			p2 := 0.5 * (complex(b, 0)*p[i] - ctemp)
			f.sn = append(f.sn, [3]float64{0, b, 0})
			f.sd = append(f.sd, [3]float64{real(p1 * cmplx.Conj(p1)), -2 * real(p1), 1})
			f.sn = append(f.sn, [3]float64{0, b, 0})
			f.sd = append(f.sd, [3]float64{real(p2 * cmplx.Conj(p2)), -2 * real(p2), 1})
		} else {
			f.sn = append(f.sn, [3]float64{0, b, 0})
			f.sd = append(f.sd, [3]float64{a, -b * real(p[i]), 1})
		}
	}
}

// lpToBR converts the normalized analog lowpass poles to a
// band-reject filter with cutoffs fl, fh. Grounded on IIRFilter::LPtoBR.
func (f *IIRFilter) lpToBR(p []complex128, ptype []byte, fl, fh float64) {
	f.sn = f.sn[:0]
	f.sd = f.sd[:0]
	twopi := 2 * math.Pi
	a := twopi * twopi * fl * fh
	b := twopi * (fh - fl)
	for i, pt := range ptype {
		if pt == 'C' {
			pinv := complex(1, 0) / p[i]
			ctemp := b * pinv
			ctemp = ctemp * ctemp
			ctemp = ctemp - complex(4*a, 0)
			ctemp = cmplx.Sqrt(ctemp)
			p1 := 0.5 * (complex(b, 0)*pinv + ctemp)
			p2 := 0.5 * (complex(b, 0)*pinv - ctemp)
			f.sn = append(f.sn, [3]float64{a, 0, 1})
			f.sd = append(f.sd, [3]float64{real(p1 * cmplx.Conj(p1)), -2 * real(p1), 1})
			f.sn = append(f.sn, [3]float64{a, 0, 1})
			f.sd = append(f.sd, [3]float64{real(p2 * cmplx.Conj(p2)), -2 * real(p2), 1})
		} else {
			f.sn = append(f.sn, [3]float64{a, 0, 1})
			f.sd = append(f.sd, [3]float64{-a * real(p[i]), b, -real(p[i])})
		}
	}
}

// cutoffAlter rescales a normalized lowpass or highpass filter's cutoff
// by the polynomial transformation s -> s/(2*pi*f). Grounded on
// IIRFilter::cutoffAlter.
func (f *IIRFilter) cutoffAlter(fc float64) {
	scale := 2 * math.Pi * fc
	for i := range f.sn {
		f.sn[i][1] /= scale
		f.sn[i][2] /= scale * scale
		f.sd[i][1] /= scale
		f.sd[i][2] /= scale * scale
	}
}

// bilinear transforms the analog second-order sections to digital
// second-order sections via the bilinear transformation. Grounded on
// IIRFilter::bilinear.
func (f *IIRFilter) bilinear() {
	for i := range f.sd {
		a0, a1, a2 := f.sd[i][0], f.sd[i][1], f.sd[i][2]
		scale := a2 + a1 + a0
		f.sd[i] = [3]float64{1, 2 * (a0 - a2) / scale, (a2 - a1 + a0) / scale}
		b0, b1, b2 := f.sn[i][0], f.sn[i][1], f.sn[i][2]
		f.sn[i] = [3]float64{(b2 + b1 + b0) / scale, 2 * (b0 - b2) / scale, (b2 - b1 + b0) / scale}
	}
}

// Reset zeroes the recursive filter's state, discarding any continuity
// with a previous segment.
func (f *IIRFilter) Reset() {
	for i := range f.x1 {
		f.x1[i], f.x2[i], f.y1[i], f.y2[i] = 0, 0, 0, 0
	}
}

// applySections runs data forward through every section in series,
// in place. Grounded on IIRFilter::applyFilter.
func (f *IIRFilter) applySections(data []float32) {
	for i := range data {
		input := float64(data[i])
		output := input
		for j := range f.sn {
			sn, sd := f.sn[j], f.sd[j]
			output = sn[0]*input + sn[1]*f.x1[j] + sn[2]*f.x2[j] -
				(sd[1]*f.y1[j] + sd[2]*f.y2[j])
			f.y2[j] = f.y1[j]
			f.y1[j] = output
			f.x2[j] = f.x1[j]
			f.x1[j] = input
			input = output
		}
		data[i] = float32(output)
	}
}

// reverseSections runs data backward through every section in series,
// in place. Grounded on IIRFilter::doReverse.
func (f *IIRFilter) reverseSections(data []float32) {
	n := len(data)
	for i := 0; i < n; i++ {
		ir := n - 1 - i
		input := float64(data[ir])
		output := input
		for j := range f.sn {
			sn, sd := f.sn[j], f.sd[j]
			output = sn[0]*input + sn[1]*f.x1[j] + sn[2]*f.x2[j] -
				(sd[1]*f.y1[j] + sd[2]*f.y2[j])
			f.y2[j] = f.y1[j]
			f.y1[j] = output
			f.x2[j] = f.x1[j]
			f.x1[j] = input
			input = output
		}
		data[ir] = float32(output)
	}
}

// Apply filters data in place. If reset, the recursive state is zeroed
// first; otherwise filtering continues from the state left by the
// previous call. Grounded on IIRFilter::applyMethod(float*,int,bool).
func (f *IIRFilter) Apply(data []float32, reset bool) {
	if len(f.sn) == 0 || len(data) == 0 {
		return
	}
	if reset {
		f.Reset()
	}
	f.applySections(data)
	if f.ZeroPhase {
		f.Reset()
		f.reverseSections(data)
	}
}

func (f *IIRFilter) Name() string { return "IIRFilter" }

func (f *IIRFilter) ApplyMethod(series []*tseries.TimeSeries) error {
	if len(f.sn) == 0 {
		return nil
	}
	for _, ts := range series {
		for i := 0; i < ts.Size(); i++ {
			s := ts.Segment(i)
			tol := 0.001 * s.Dt
			f.Apply(s.Data, !ts.Continuous(i, tol, tol))
		}
	}
	return nil
}

func (f *IIRFilter) ApplyToSegment(s *segment.Segment) error {
	f.Apply(s.Data, true)
	return nil
}

func (f *IIRFilter) CanAppend() bool           { return true }
func (f *IIRFilter) RotationCommutative() bool { return true }

func (f *IIRFilter) ContinueMethod(s *segment.Segment) error {
	f.Apply(s.Data, false)
	return nil
}

func (f *IIRFilter) String() string {
	return fmt.Sprintf("IIRFilter: type=%s order=%d flow=%.2f fhigh=%.2f zero_phase=%v",
		f.FilterType, f.Order, f.Flow, f.Fhigh, f.ZeroPhase)
}

func (f *IIRFilter) Clone() tseries.Method {
	c := &IIRFilter{
		Order: f.Order, FilterType: f.FilterType, Flow: f.Flow, Fhigh: f.Fhigh,
		Tdel: f.Tdel, ZeroPhase: f.ZeroPhase,
	}
	c.sn = append([][3]float64(nil), f.sn...)
	c.sd = append([][3]float64(nil), f.sd...)
	c.x1 = make([]float64, len(f.x1))
	c.x2 = make([]float64, len(f.x2))
	c.y1 = make([]float64, len(f.y1))
	c.y2 = make([]float64, len(f.y2))
	return c
}

var _ tseries.Method = (*IIRFilter)(nil)
