// Package rotate implements 2D and 3D rigid rotation of horizontal and
// vertical components, plus the analytic azimuth-optimizing angle
// search used to orient a horizontal pair onto the event's radial
// direction.
//
// Grounded on libsrc/libgmethod++/RotateData.cpp: the two- and
// three-orthogonal-array rotation kernels, the Euler-angle composition
// used to unrotate from the current orientation before applying a new
// one, and the closed-form maxAngle/maxAngles azimuth search.
package rotate

import (
	"fmt"
	"math"

	"github.com/geotool-core/geocore/gerrors"
	"github.com/geotool-core/geocore/segment"
	"github.com/geotool-core/geocore/tseries"
)

// Rotate2D rotates the coordinate axes of the component pair (x,y) by
// angle degrees counter-clockwise, in place, so an angle of 90 turns
// (x=1, y=0) into (x=0, y=-1). Grounded on RotateData::rotate(float*,
// float*, int, double).
func Rotate2D(x, y []float32, angleDeg float64) {
	r := angleDeg * math.Pi / 180
	s, c := math.Sin(r), math.Cos(r)
	for i := range x {
		xv, yv := float64(x[i]), float64(y[i])
		x[i] = float32(xv*c + yv*s)
		y[i] = float32(-xv*s + yv*c)
	}
}

// eulerMatrix returns the rotation matrix from E,N,Up to the system
// described by the Euler angles (alpha, beta, gamma), in degrees.
// Grounded on the c[][]/d[][] construction in RotateData::rotate(float*,
// float*, float*, ...).
func eulerMatrix(alphaDeg, betaDeg, gammaDeg float64) [3][3]float64 {
	a := alphaDeg * math.Pi / 180
	b := betaDeg * math.Pi / 180
	g := gammaDeg * math.Pi / 180
	sina, cosa := math.Sin(a), math.Cos(a)
	sinb, cosb := math.Sin(b), math.Cos(b)
	sing, cosg := math.Sin(g), math.Cos(g)

	var m [3][3]float64
	m[0][0] = cosa*cosb*cosg - sina*sing
	m[0][1] = sina*cosb*cosg + cosa*sing
	m[0][2] = -sinb * cosg

	m[1][0] = -cosa*cosb*sing - sina*cosg
	m[1][1] = -sina*cosb*sing + cosa*cosg
	m[1][2] = sinb * sing

	m[2][0] = cosa * sinb
	m[2][1] = sina * sinb
	m[2][2] = cosb
	return m
}

func matMul3(d, c [3][3]float64) [3][3]float64 {
	var e [3][3]float64
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			var sum float64
			for k := 0; k < 3; k++ {
				sum += d[i][k] * c[k][j]
			}
			e[i][j] = sum
		}
	}
	return e
}

// Rotate3D rotates the orthogonal triple (x,y,z), currently oriented at
// Euler angles (curAlpha,curBeta,curGamma), to the new orientation
// (alpha,beta,gamma), in place. It first builds the matrix that
// unrotates from the current system back to E,N,Up, then the matrix
// that rotates from E,N,Up to the target system, and applies their
// product.
//
// Grounded on RotateData::rotate(float*, float*, float*, int, double x6).
func Rotate3D(x, y, z []float32, curAlpha, curBeta, curGamma, alpha, beta, gamma float64) {
	c := eulerMatrix(-curGamma, -curBeta, -curAlpha)
	d := eulerMatrix(alpha, beta, gamma)
	e := matMul3(d, c)
	for i := range x {
		xv, yv, zv := float64(x[i]), float64(y[i]), float64(z[i])
		x[i] = float32(xv*e[0][0] + yv*e[0][1] + zv*e[0][2])
		y[i] = float32(xv*e[1][0] + yv*e[1][1] + zv*e[1][2])
		z[i] = float32(xv*e[2][0] + yv*e[2][1] + zv*e[2][2])
	}
}

// Update names which components' current samples actually change when
// a rotation is applied, matching RotateUpdate's ROTATE_X/Y/Z/XY/XYZ.
type Update int

const (
	UpdateX Update = 1 << iota
	UpdateY
	UpdateZ
)

// Rotator is the DataMethod-style operator bound to a horizontal pair
// (Alpha/Beta/Gamma 2D rotation, Z nil) or an orthogonal triple (full
// 3D Euler rotation). It implements tseries.Method against the series
// named in Update at construction.
type Rotator struct {
	Alpha, Beta, Gamma float64
	Update             Update

	x, y, z *tseries.TimeSeries
}

// New constructs a Rotator bound to the given components. z may be nil
// for a purely horizontal rotation (beta must then be 0), matching
// RotateData's ts_z-may-be-NULL contract.
func New(x, y, z *tseries.TimeSeries, alpha, beta, gamma float64, update Update) (*Rotator, error) {
	if x == nil || y == nil {
		return nil, fmt.Errorf("rotate.New: x and y components required: %w", gerrors.ErrInvalidArgs)
	}
	if z == nil && beta != 0 {
		return nil, fmt.Errorf("rotate.New: beta must be 0 without a vertical component: %w", gerrors.ErrInvalidArgs)
	}
	return &Rotator{Alpha: alpha, Beta: beta, Gamma: gamma, Update: update, x: x, y: y, z: z}, nil
}

func (r *Rotator) Name() string { return "Rotate" }

// ApplyMethod rotates the coverage-aligned windows shared by the bound
// components. Grounded on RotateData::rotate(GTimeSeries*,...): demean
// each component over its full current extent, rotate each
// contiguous-coverage window, then restore the (shared) mean.
func (r *Rotator) ApplyMethod(series []*tseries.TimeSeries) error {
	bound := []*tseries.TimeSeries{r.x, r.y}
	if r.z != nil {
		bound = append(bound, r.z)
	}
	matches := false
	for _, s := range series {
		if s == r.x || s == r.y || s == r.z {
			matches = true
		}
	}
	if !matches {
		return fmt.Errorf("rotate.ApplyMethod: none of the given series are bound to this rotator: %w", gerrors.ErrInvalidArgs)
	}

	curAlpha, curBeta, curGamma := r.x.CurrentAlpha(), r.x.CurrentBeta(), r.x.CurrentGamma()

	xMean, yMean := r.x.Mean(), r.y.Mean()
	var zMean, aMean float64
	if r.z == nil {
		aMean = (xMean + yMean) / 2
	} else {
		zMean = r.z.Mean()
		aMean = (xMean + yMean + zMean) / 3
	}

	windows, err := tseries.Coverage(bound, math.Inf(-1), math.Inf(1))
	if err != nil {
		return err
	}

	newX := tseries.New(r.x.Channel)
	newX.DtTolerance = r.x.DtTolerance
	newY := tseries.New(r.y.Channel)
	newY.DtTolerance = r.y.DtTolerance
	var newZ *tseries.TimeSeries
	if r.z != nil {
		newZ = tseries.New(r.z.Channel)
		newZ.DtTolerance = r.z.DtTolerance
	}

	for _, w := range windows {
		xs := w.Segments[0]
		ys := w.Segments[1]
		n := w.N
		if n <= 0 {
			continue
		}
		xi, yi := w.BeginIndex[0], w.BeginIndex[1]
		xd := make([]float32, n)
		yd := make([]float32, n)
		for i := 0; i < n; i++ {
			xd[i] = xs.Data[xi+i] - float32(xMean)
			yd[i] = ys.Data[yi+i] - float32(yMean)
		}
		if r.z == nil {
			Rotate2D(xd, yd, -(curAlpha-curGamma)+r.Alpha-r.Gamma)
		} else {
			zs := w.Segments[2]
			zi := w.BeginIndex[2]
			zd := make([]float32, n)
			for i := 0; i < n; i++ {
				zd[i] = zs.Data[zi+i] - float32(zMean)
			}
			Rotate3D(xd, yd, zd, curAlpha, curBeta, curGamma, r.Alpha, r.Beta, r.Gamma)
			if r.Update&UpdateZ != 0 {
				for i := range zd {
					zd[i] += float32(aMean)
				}
				seg, err := segment.New(xs.Time(xi), xs.Dt, zd, xs.Calib, xs.Calper)
				if err != nil {
					return err
				}
				if err := newZ.AddSegment(seg); err != nil {
					return err
				}
			}
		}
		if r.Update&UpdateX != 0 {
			for i := range xd {
				xd[i] += float32(aMean)
			}
			seg, err := segment.New(xs.Time(xi), xs.Dt, xd, xs.Calib, xs.Calper)
			if err != nil {
				return err
			}
			if err := newX.AddSegment(seg); err != nil {
				return err
			}
		}
		if r.Update&UpdateY != 0 {
			for i := range yd {
				yd[i] += float32(aMean)
			}
			seg, err := segment.New(ys.Time(yi), ys.Dt, yd, ys.Calib, ys.Calper)
			if err != nil {
				return err
			}
			if err := newY.AddSegment(seg); err != nil {
				return err
			}
		}
	}

	if r.Update&UpdateX != 0 {
		r.x.RemoveAllSegments()
		for _, s := range newX.Segments() {
			if err := r.x.AddSegment(s); err != nil {
				return err
			}
		}
		r.x.SetEuler(r.Alpha, r.Beta, r.Gamma)
	}
	if r.Update&UpdateY != 0 {
		r.y.RemoveAllSegments()
		for _, s := range newY.Segments() {
			if err := r.y.AddSegment(s); err != nil {
				return err
			}
		}
		r.y.SetEuler(r.Alpha, r.Beta, r.Gamma)
	}
	if r.z != nil && r.Update&UpdateZ != 0 {
		r.z.RemoveAllSegments()
		for _, s := range newZ.Segments() {
			if err := r.z.AddSegment(s); err != nil {
				return err
			}
		}
		r.z.SetEuler(r.Alpha, r.Beta, r.Gamma)
	}
	return nil
}

// ApplyToSegment has no meaning for a multichannel rotator applied to a
// single segment in isolation; it is a no-op, matching the absence of
// a single-segment entry point on RotateData.
func (r *Rotator) ApplyToSegment(s *segment.Segment) error { return nil }

func (r *Rotator) CanAppend() bool           { return false }
func (r *Rotator) RotationCommutative() bool { return false }

func (r *Rotator) ContinueMethod(s *segment.Segment) error { return nil }

func (r *Rotator) String() string {
	return fmt.Sprintf("Rotate: alpha=%.2f beta=%.2f gamma=%.2f", r.Alpha, r.Beta, r.Gamma)
}

func (r *Rotator) Clone() tseries.Method {
	c := *r
	return &c
}

var _ tseries.Method = (*Rotator)(nil)

// MaxAngle returns the clockwise rotation angle, in degrees, that
// maximizes the power of the north/radial component between tmin and
// tmax: the analytic azimuth estimate used ahead of beamforming and
// phase picking when the true backazimuth is not yet known.
//
// Grounded on RotateData::maxAngle's closed-form
// .5*atan2(2*sum(x*y), sum(y*y-x*x)) derivation.
func MaxAngle(east, north *tseries.TimeSeries, tmin, tmax float64) (float64, error) {
	eMean, nMean := east.Mean(), north.Mean()
	windows, err := tseries.Coverage([]*tseries.TimeSeries{east, north}, tmin, tmax)
	if err != nil {
		return 0, err
	}
	var sum1, sum2 float64
	for _, w := range windows {
		es, ns := w.Segments[0], w.Segments[1]
		ei, ni := w.BeginIndex[0], w.BeginIndex[1]
		for i := 0; i < w.N; i++ {
			x := float64(es.Data[ei+i]) - eMean
			y := float64(ns.Data[ni+i]) - nMean
			sum1 += x * y
			sum2 += y*y - x*x
		}
	}
	if sum1 == 0 && sum2 == 0 {
		return 0, nil
	}
	return 0.5 * math.Atan2(2*sum1, sum2) * 180 / math.Pi, nil
}

// MaxAngles extends MaxAngle to the three-component case: theta is the
// horizontal azimuth that maximizes the radial component's power, and
// phi is the corresponding vertical (incidence) angle from Up toward
// the new radial direction, computed the same way from the
// vertical/radial pair after applying theta.
//
// Grounded on RotateData::maxAngles.
func MaxAngles(east, north, up *tseries.TimeSeries, tmin, tmax float64) (theta, phi float64, err error) {
	theta, err = MaxAngle(east, north, tmin, tmax)
	if err != nil {
		return 0, 0, err
	}

	zMean := up.Mean()
	windows, err := tseries.Coverage([]*tseries.TimeSeries{east, north, up}, tmin, tmax)
	if err != nil {
		return 0, 0, err
	}
	eMean, nMean := east.Mean(), north.Mean()
	var sum1, sum2 float64
	for _, w := range windows {
		es, ns, us := w.Segments[0], w.Segments[1], w.Segments[2]
		ei, ni, ui := w.BeginIndex[0], w.BeginIndex[1], w.BeginIndex[2]
		for i := 0; i < w.N; i++ {
			x := float64(es.Data[ei+i]) - eMean
			y := float64(ns.Data[ni+i]) - nMean
			z := float64(us.Data[ui+i]) - zMean
			r := math.Sin(theta*math.Pi/180)*x + math.Cos(theta*math.Pi/180)*y
			sum1 += z * r
			sum2 += r*r - z*z
		}
	}
	if sum1 == 0 && sum2 == 0 {
		phi = 0
	} else {
		phi = 0.5 * math.Atan2(2*sum1, sum2) * 180 / math.Pi
	}
	return theta, phi, nil
}
