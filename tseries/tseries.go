// Package tseries implements the TimeSeries model: an ordered collection
// of Segments for one channel, the DataMethod replay chain bound to it,
// and the channel metadata (station, component, current rotation state)
// that downstream rotation and beamforming consult.
package tseries

import (
	"fmt"
	"math"
	"reflect"
	"sort"

	"github.com/geotool-core/geocore/gerrors"
	"github.com/geotool-core/geocore/segment"
)

// DefaultDtTolerance is the default relative tolerance used to decide
// whether two segments' sample intervals are "the same" rate.
const DefaultDtTolerance = 0.02

// Method is the DataMethod contract: a replayable sample-domain operator
// bound to a TimeSeries chain. Concrete operators (Demean, Taper,
// IIRFilter, Rotate, Hilbert, ...) live in sibling packages and implement
// this interface; dispatch is by variant, never by a class hierarchy.
type Method interface {
	// Name identifies the method's class for chain matching
	// (changeMethods/remove operate on Name, not on instance identity).
	Name() string

	// ApplyMethod runs the operator over every TimeSeries in ts and
	// mutates their current samples in place.
	ApplyMethod(ts []*TimeSeries) error

	// ApplyToSegment applies the operator to a single segment in
	// isolation, as if it were the start of a new chain.
	ApplyToSegment(s *segment.Segment) error

	// CanAppend reports whether the method may be applied to a single
	// newly-appended segment independently of earlier segments.
	CanAppend() bool

	// RotationCommutative reports whether rotation and this method can
	// be reordered without changing the final samples.
	RotationCommutative() bool

	// ContinueMethod applies the operator to a segment known to
	// continue, without a gap, from the previous segment's state.
	ContinueMethod(s *segment.Segment) error

	// String returns "Name: param1=v1 param2=v2 ..." so the method can
	// be reconstructed from its serialization.
	String() string

	// Clone returns a deep, independent copy.
	Clone() Method
}

// Channel carries station/component metadata that rotation and
// beamforming consult; it has no effect on replay semantics.
type Channel struct {
	Sta, Chan, Net     string
	Lat, Lon, Elev     float64
	Hang, Vang         float64 // horizontal/vertical orientation angles, degrees
}

// EulerState tracks the rotation Euler angles currently applied to a
// TimeSeries, so that a later rotation can first unrotate back to
// (E,N,Up) before applying a new target rotation.
type EulerState struct {
	Alpha, Beta, Gamma float64
	Set                bool
}

// TimeSeries is an ordered, non-overlapping collection of Segments for
// one channel, plus the DataMethod chain applied to it.
type TimeSeries struct {
	Channel Channel
	Euler   EulerState

	DtTolerance float64 // relative tolerance for compatible dt, default DefaultDtTolerance

	segments []*segment.Segment // current (post-method) samples
	raw      []*segment.Segment // original samples, preserved for replay
	methods  []Method
}

// New returns an empty TimeSeries for the given channel.
func New(ch Channel) *TimeSeries {
	return &TimeSeries{Channel: ch, DtTolerance: DefaultDtTolerance}
}

func (t *TimeSeries) tolerance() float64 {
	if t.DtTolerance > 0 {
		return t.DtTolerance
	}
	return DefaultDtTolerance
}

// Size returns the number of segments.
func (t *TimeSeries) Size() int { return len(t.segments) }

// Segment returns the i'th segment (current, post-method samples).
func (t *TimeSeries) Segment(i int) *segment.Segment { return t.segments[i] }

// Segments returns the full ordered slice of current segments.
func (t *TimeSeries) Segments() []*segment.Segment { return t.segments }

// Tbeg returns the start time of the first segment, or 0 if empty.
func (t *TimeSeries) Tbeg() float64 {
	if len(t.segments) == 0 {
		return 0
	}
	return t.segments[0].Tbeg
}

// Tend returns the end time of the last segment, or 0 if empty.
func (t *TimeSeries) Tend() float64 {
	if len(t.segments) == 0 {
		return 0
	}
	return t.segments[len(t.segments)-1].Tend()
}

// compatibleDt reports whether dt is within tol of ref, relative (always
// true when ref is 0).
func compatibleDt(dt, ref, tol float64) bool {
	if ref == 0 {
		return true
	}
	return math.Abs(dt-ref)/ref <= tol
}

// AddSegment appends s preserving time order, rejecting overlaps with an
// existing segment and incompatible sample intervals.
func (t *TimeSeries) AddSegment(s *segment.Segment) error {
	if s == nil || s.Dt <= 0 {
		return fmt.Errorf("tseries.AddSegment: invalid segment: %w", gerrors.ErrInvalidArgs)
	}
	if len(t.segments) > 0 {
		ref := t.segments[0].Dt
		if !compatibleDt(s.Dt, ref, t.tolerance()) {
			return fmt.Errorf("tseries.AddSegment: dt=%g incompatible with %g: %w",
				s.Dt, ref, gerrors.ErrSampleRate)
		}
	}
	idx := sort.Search(len(t.segments), func(i int) bool {
		return t.segments[i].Tbeg >= s.Tbeg
	})
	for _, other := range []*segment.Segment{
		segAt(t.segments, idx-1), segAt(t.segments, idx),
	} {
		if other != nil && s.Overlaps(other) {
			return fmt.Errorf("tseries.AddSegment: overlaps existing segment: %w", gerrors.ErrInvalidArgs)
		}
	}
	s.AddOwner()
	t.segments = append(t.segments, nil)
	copy(t.segments[idx+1:], t.segments[idx:])
	t.segments[idx] = s

	raw := s.Clone()
	t.raw = append(t.raw, nil)
	ridx := sort.Search(len(t.raw)-1, func(i int) bool { return t.raw[i].Tbeg >= s.Tbeg })
	copy(t.raw[ridx+1:], t.raw[ridx:len(t.raw)-1])
	t.raw[ridx] = raw
	return nil
}

func segAt(segs []*segment.Segment, i int) *segment.Segment {
	if i < 0 || i >= len(segs) {
		return nil
	}
	return segs[i]
}

// RemoveAllSegments empties the TimeSeries, releasing ownership of every
// segment and clearing the method chain (since there is nothing left to
// replay against).
func (t *TimeSeries) RemoveAllSegments() {
	for _, s := range t.segments {
		s.RemoveOwner()
	}
	t.segments = nil
	t.raw = nil
	t.methods = nil
}

// Mean returns the sample mean across all segments.
func (t *TimeSeries) Mean() float64 {
	var sum float64
	var n int
	for _, s := range t.segments {
		for _, v := range s.Data {
			sum += float64(v)
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// Subseries returns a new TimeSeries with segments truncated to [t1,t2].
func (t *TimeSeries) Subseries(t1, t2 float64) *TimeSeries {
	out := New(t.Channel)
	out.Euler = t.Euler
	out.DtTolerance = t.DtTolerance
	for _, s := range t.segments {
		if s.Tend() < t1 || s.Tbeg > t2 {
			continue
		}
		lo := s.Tbeg
		if t1 > lo {
			lo = t1
		}
		hi := s.Tend()
		if t2 < hi {
			hi = t2
		}
		i1 := int((lo-s.Tbeg)/s.Dt + 0.5)
		i2 := int((hi-s.Tbeg)/s.Dt+0.5) + 1
		if i1 < 0 {
			i1 = 0
		}
		if i2 > s.Length() {
			i2 = s.Length()
		}
		if i2 <= i1 {
			continue
		}
		sub, err := s.Subsegment(i1, i2)
		if err != nil {
			continue
		}
		_ = out.AddSegment(sub)
	}
	return out
}

// Continuous reports whether segment i connects to segment i-1 within the
// given start/end tolerances (seconds). Segment 0 is never continuous.
// Used by streaming filters to decide reset vs. continuation.
func (t *TimeSeries) Continuous(i int, tolStart, tolEnd float64) bool {
	if i <= 0 || i >= len(t.segments) {
		return false
	}
	prev, cur := t.segments[i-1], t.segments[i]
	if !compatibleDt(cur.Dt, prev.Dt, t.tolerance()) {
		return false
	}
	expected := prev.Tend() + prev.Dt
	return math.Abs(cur.Tbeg-expected) <= tolStart+tolEnd
}

// Methods returns the current ordered method chain.
func (t *TimeSeries) Methods() []Method { return append([]Method(nil), t.methods...) }

// GetMethod returns the last chain entry with the given name, or nil.
func (t *TimeSeries) GetMethod(name string) Method {
	for i := len(t.methods) - 1; i >= 0; i-- {
		if t.methods[i].Name() == name {
			return t.methods[i]
		}
	}
	return nil
}

// RemoveAllMethods clears the chain and restores the raw samples.
func (t *TimeSeries) RemoveAllMethods() error {
	t.methods = nil
	return t.replayFromRaw()
}

// ApplyMethods runs each method over [t] (and any additional coupled
// series, for multichannel operators such as Rotate) in order and
// appends each to the chain.
func ApplyMethods(ms []Method, ts []*TimeSeries) error {
	for _, m := range ms {
		if err := m.ApplyMethod(ts); err != nil {
			return err
		}
		for _, t := range ts {
			t.methods = append(t.methods, m)
		}
	}
	return nil
}

// ApplyMethods is the single-series convenience form of the package
// function of the same name.
func (t *TimeSeries) ApplyMethods(ms []Method) error {
	return ApplyMethods(ms, []*TimeSeries{t})
}

// ChangeMethods replaces the trailing subsequence of the chain whose
// class-types match ms with ms; if no such subsequence exists, ms is
// prepended. The full chain is then replayed against the raw samples.
func (t *TimeSeries) ChangeMethods(ms []Method) error {
	start := t.findTrailingTypeMatch(ms)
	if start < 0 {
		t.methods = append(append([]Method(nil), ms...), t.methods...)
	} else {
		replaced := append([]Method(nil), t.methods[:start]...)
		replaced = append(replaced, ms...)
		replaced = append(replaced, t.methods[start+len(ms):]...)
		t.methods = replaced
	}
	return t.replayFromRaw()
}

// findTrailingTypeMatch returns the start index of the trailing
// subsequence of t.methods whose dynamic types match ms in order, or -1.
func (t *TimeSeries) findTrailingTypeMatch(ms []Method) int {
	n := len(ms)
	if n == 0 || n > len(t.methods) {
		return -1
	}
	for start := len(t.methods) - n; start >= 0; start-- {
		ok := true
		for i := 0; i < n; i++ {
			if reflect.TypeOf(t.methods[start+i]) != reflect.TypeOf(ms[i]) {
				ok = false
				break
			}
		}
		if ok {
			return start
		}
	}
	return -1
}

// Remove strips every chain occurrence whose Name is in names, then
// replays the remaining chain against the raw samples.
func (t *TimeSeries) Remove(names []string) error {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	kept := t.methods[:0:0]
	for _, m := range t.methods {
		if !set[m.Name()] {
			kept = append(kept, m)
		}
	}
	t.methods = kept
	return t.replayFromRaw()
}

// Update replays the current chain against freshly re-read raw samples.
// Used after the chain has been edited by a caller that manipulated
// Methods() directly.
func (t *TimeSeries) Update() error {
	return t.replayFromRaw()
}

// replayFromRaw restores segments from raw and reapplies every method in
// the chain in order. This is the replay invariant: current samples
// always equal replaying the chain over the original raw samples.
func (t *TimeSeries) replayFromRaw() error {
	segs := make([]*segment.Segment, len(t.raw))
	for i, r := range t.raw {
		segs[i] = r.Clone()
	}
	t.segments = segs
	for _, m := range t.methods {
		if err := m.ApplyMethod([]*TimeSeries{t}); err != nil {
			return err
		}
	}
	return nil
}

// CurrentAlpha, CurrentBeta, CurrentGamma expose the tracked Euler state,
// matching the sentinel-unset convention of the original (< -900 means
// unset, here represented by Euler.Set == false).
func (t *TimeSeries) CurrentAlpha() float64 {
	if !t.Euler.Set {
		return 0
	}
	return t.Euler.Alpha
}
func (t *TimeSeries) CurrentBeta() float64 {
	if !t.Euler.Set {
		return 0
	}
	return t.Euler.Beta
}
func (t *TimeSeries) CurrentGamma() float64 {
	if !t.Euler.Set {
		return 0
	}
	return t.Euler.Gamma
}

// SetEuler records the Euler state after a rotation.
func (t *TimeSeries) SetEuler(alpha, beta, gamma float64) {
	t.Euler = EulerState{Alpha: alpha, Beta: beta, Gamma: gamma, Set: true}
}
