// Package segment implements the uniformly-sampled waveform block that is
// the leaf data structure of the core: a Segment holds one contiguous run
// of single-precision samples at a fixed sample interval, plus the
// calibration scalar needed to turn counts into physical units.
package segment

import (
	"fmt"

	"github.com/geotool-core/geocore/gerrors"
)

// Segment is a contiguous, uniformly-sampled block of samples with a
// start time, sample interval, and calibration. Data is mutated only by
// DataMethod instances or the owning TimeSeries; Segment itself exposes
// no arithmetic.
type Segment struct {
	Tbeg float64   // epoch seconds of the first sample
	Dt   float64   // sample interval in seconds, > 0
	Data []float32 // samples

	Calib  float64 // scalar gain, 1 if unset, never 0
	Calper float64 // reference period for Calib

	InitialCalib  float64 // calib at construction, preserved for replay
	InitialCalper float64

	owners int // reference count of owners (TimeSeries, CoverageView, DataLoop...)
}

// New constructs a Segment from data already sampled at interval dt
// starting at tbeg, with calibration calib/calper. calib of 0 is treated
// as unset and replaced by 1, matching the original Segment contract.
func New(tbeg, dt float64, data []float32, calib, calper float64) (*Segment, error) {
	if dt <= 0 {
		return nil, fmt.Errorf("segment.New: dt=%g: %w", dt, gerrors.ErrInvalidArgs)
	}
	if calib == 0 {
		calib = 1
	}
	s := &Segment{
		Tbeg: tbeg, Dt: dt, Data: data,
		Calib: calib, Calper: calper,
		InitialCalib: calib, InitialCalper: calper,
	}
	return s, nil
}

// Empty constructs a Segment with no samples yet, reserving length
// capacity. Used by readers that append samples incrementally.
func Empty(tbeg, dt float64, capacity int, calib, calper float64) (*Segment, error) {
	s, err := New(tbeg, dt, make([]float32, 0, capacity), calib, calper)
	return s, err
}

// Length returns the number of samples.
func (s *Segment) Length() int { return len(s.Data) }

// Tend returns the epoch time of the last sample, or Tbeg if empty.
func (s *Segment) Tend() float64 {
	n := s.Length()
	if n == 0 {
		return s.Tbeg
	}
	return s.Tbeg + float64(n-1)*s.Dt
}

// Time returns the epoch time of sample i.
func (s *Segment) Time(i int) float64 {
	return s.Tbeg + float64(i)*s.Dt
}

// AddOwner increments the reference count.
func (s *Segment) AddOwner() { s.owners++ }

// RemoveOwner decrements the reference count. The Segment is considered
// released (eligible for garbage collection by its last owner) once the
// count reaches zero; Go's GC does the actual reclamation, so this just
// tracks sharing discipline for callers that want to assert it.
func (s *Segment) RemoveOwner() {
	if s.owners > 0 {
		s.owners--
	}
}

// Owners reports the current reference count.
func (s *Segment) Owners() int { return s.owners }

// Subsegment returns a new Segment covering samples [i1,i2), sharing no
// backing array with the original (data is copied) so that later
// mutation of either copy cannot alias the other.
func (s *Segment) Subsegment(i1, i2 int) (*Segment, error) {
	if i1 < 0 || i2 < i1 || i2 > s.Length() {
		return nil, fmt.Errorf("segment.Subsegment: i1=%d i2=%d length=%d: %w",
			i1, i2, s.Length(), gerrors.ErrInvalidArgs)
	}
	data := make([]float32, i2-i1)
	copy(data, s.Data[i1:i2])
	return &Segment{
		Tbeg: s.Time(i1), Dt: s.Dt, Data: data,
		Calib: s.Calib, Calper: s.Calper,
		InitialCalib: s.InitialCalib, InitialCalper: s.InitialCalper,
	}, nil
}

// Truncate mutates the Segment in place to cover samples [i1,i2).
func (s *Segment) Truncate(i1, i2 int) error {
	if i1 < 0 || i2 < i1 || i2 > s.Length() {
		return fmt.Errorf("segment.Truncate: i1=%d i2=%d length=%d: %w",
			i1, i2, s.Length(), gerrors.ErrInvalidArgs)
	}
	s.Tbeg = s.Time(i1)
	data := make([]float32, i2-i1)
	copy(data, s.Data[i1:i2])
	s.Data = data
	return nil
}

// SetCalibration sets calib/calper. A calib of 0 is replaced by 1, per
// the Segment contract that calib is never 0.
func (s *Segment) SetCalibration(calib, calper float64) {
	if calib == 0 {
		calib = 1
	}
	s.Calib = calib
	s.Calper = calper
}

// ResetCalibration restores calib/calper to the values recorded at
// construction, used when a DataMethod chain is replayed from scratch.
func (s *Segment) ResetCalibration() {
	s.Calib = s.InitialCalib
	s.Calper = s.InitialCalper
}

// Clone returns a deep, independently-owned copy.
func (s *Segment) Clone() *Segment {
	data := make([]float32, len(s.Data))
	copy(data, s.Data)
	return &Segment{
		Tbeg: s.Tbeg, Dt: s.Dt, Data: data,
		Calib: s.Calib, Calper: s.Calper,
		InitialCalib: s.InitialCalib, InitialCalper: s.InitialCalper,
	}
}

// Overlaps reports whether this Segment's time span overlaps other's,
// counting a shared sample instant (one span ending exactly where the
// other begins) as an overlap.
func (s *Segment) Overlaps(other *Segment) bool {
	return s.Tbeg <= other.Tend() && other.Tbeg <= s.Tend()
}
