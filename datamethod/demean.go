// Package datamethod implements the general-purpose DataMethod operators
// that are not specific to filtering or rotation: Demean, Taper, and
// Hilbert. Each is grounded on the corresponding class in
// libsrc/libgmethod++ and implements tseries.Method.
package datamethod

import (
	"github.com/geotool-core/geocore/segment"
	"github.com/geotool-core/geocore/tseries"
)

// Demean subtracts each TimeSeries' overall sample mean from every
// segment. Grounded on Demean.cpp, which computes ts->mean() once per
// series and subtracts it from every sample of every segment.
type Demean struct{}

func (Demean) Name() string { return "Demean" }

func (Demean) ApplyMethod(series []*tseries.TimeSeries) error {
	for _, t := range series {
		mean := float32(t.Mean())
		for i := 0; i < t.Size(); i++ {
			s := t.Segment(i)
			for j := range s.Data {
				s.Data[j] -= mean
			}
		}
	}
	return nil
}

// ApplyToSegment demeans a single segment in isolation, using that
// segment's own mean (there is no enclosing series to consult).
func (Demean) ApplyToSegment(s *segment.Segment) error {
	if len(s.Data) == 0 {
		return nil
	}
	var sum float64
	for _, v := range s.Data {
		sum += float64(v)
	}
	mean := float32(sum / float64(len(s.Data)))
	for j := range s.Data {
		s.Data[j] -= mean
	}
	return nil
}

func (Demean) CanAppend() bool           { return false }
func (Demean) RotationCommutative() bool { return true }

// ContinueMethod re-demeans the appended segment using its own mean,
// matching applyToSegment: Demean never has enough state to continue a
// running mean across a gap.
func (d Demean) ContinueMethod(s *segment.Segment) error { return d.ApplyToSegment(s) }

func (Demean) String() string { return "Demean" }

func (d Demean) Clone() tseries.Method { return Demean{} }

var _ tseries.Method = Demean{}
