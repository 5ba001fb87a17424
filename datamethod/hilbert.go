package datamethod

import (
	"github.com/geotool-core/geocore/fft"
	"github.com/geotool-core/geocore/segment"
	"github.com/geotool-core/geocore/tseries"
)

// Hilbert replaces each segment's samples with their Hilbert transform,
// used upstream of envelope and instantaneous-phase computations.
// Grounded on plugins/libghp/Hilbert.cpp, which transforms each segment
// independently via FFT.
type Hilbert struct{}

func (Hilbert) Name() string { return "Hilbert" }

func (Hilbert) ApplyMethod(series []*tseries.TimeSeries) error {
	for _, ts := range series {
		for i := 0; i < ts.Size(); i++ {
			if err := (Hilbert{}).ApplyToSegment(ts.Segment(i)); err != nil {
				return err
			}
		}
	}
	return nil
}

func (Hilbert) ApplyToSegment(s *segment.Segment) error {
	n := s.Length()
	if n == 0 {
		return nil
	}
	in := make([]float64, n)
	for i, v := range s.Data {
		in[i] = float64(v)
	}
	out := fft.Hilbert(in)
	for i, v := range out {
		s.Data[i] = float32(v)
	}
	return nil
}

func (Hilbert) CanAppend() bool           { return false }
func (Hilbert) RotationCommutative() bool { return true }

func (h Hilbert) ContinueMethod(s *segment.Segment) error { return h.ApplyToSegment(s) }

func (Hilbert) String() string { return "Hilbert" }

func (h Hilbert) Clone() tseries.Method { return Hilbert{} }

var _ tseries.Method = Hilbert{}
