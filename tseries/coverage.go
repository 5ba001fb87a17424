package tseries

import (
	"fmt"
	"math"

	"github.com/geotool-core/geocore/gerrors"
	"github.com/geotool-core/geocore/segment"
)

// Window is one time interval over which every input TimeSeries has
// contiguous data: a derived, read-only record naming, per channel, the
// segment supplying the data and the index of its first sample in the
// window.
type Window struct {
	Tmin, Tmax float64
	N          int // sample count every channel supplies for this window
	Segments   []*segment.Segment
	BeginIndex []int
}

// Coverage derives, for the time window [tmin,tmax], every window over
// which all of ts have contiguous data. Windows are returned in
// ascending time order, matching the segment traversal order.
//
// Grounded on GCoverage::getCoverage: a recursive product over the
// input channels' segment lists, clipping the candidate window at each
// level and emitting a record once every channel has contributed a
// segment.
func Coverage(ts []*TimeSeries, tmin, tmax float64) ([]Window, error) {
	if len(ts) == 0 {
		return nil, nil
	}
	for _, t := range ts {
		if t.Tbeg() > tmin {
			tmin = t.Tbeg()
		}
		if t.Tend() < tmax {
			tmax = t.Tend()
		}
	}
	c := &coverageBuilder{ts: ts}
	segs := make([]*segment.Segment, len(ts))
	if err := c.recurse(0, segs, tmin, tmax); err != nil {
		return nil, err
	}
	return c.windows, nil
}

type coverageBuilder struct {
	ts      []*TimeSeries
	tdel    float64
	windows []Window
}

func (c *coverageBuilder) recurse(i int, segs []*segment.Segment, tmin, tmax float64) error {
	if i >= len(c.ts) {
		w := Window{Tmin: tmin, Tmax: tmax, Segments: append([]*segment.Segment(nil), segs...)}
		n := -1
		beg := make([]int, len(c.ts))
		for j, s := range segs {
			bidx := int((tmin-s.Tbeg)/s.Dt + 0.5)
			if s.Tbeg+float64(bidx)*s.Dt < tmin {
				bidx++
			}
			if bidx >= s.Length() {
				bidx = s.Length() - 1
			}
			end := int((tmax - s.Tbeg) / s.Dt)
			cnt := end - bidx + 1
			if n < 0 || cnt < n {
				n = cnt
			}
			beg[j] = bidx
		}
		if n < 0 {
			n = 0
		}
		w.N = n
		w.BeginIndex = beg
		c.windows = append(c.windows, w)
		return nil
	}

	for _, s := range c.ts[i].segments {
		if s.Tbeg >= tmax || s.Tend() <= tmin {
			continue
		}
		lo := tmin
		if s.Tbeg > lo {
			lo = s.Tbeg
		}
		hi := tmax
		if s.Tend() < hi {
			hi = s.Tend()
		}
		if i == 0 {
			c.tdel = s.Dt
		} else {
			tol := DefaultDtTolerance
			if len(c.ts) > 0 {
				tol = c.ts[0].tolerance()
			}
			if math.Abs(c.tdel-s.Dt)/c.tdel > tol {
				return fmt.Errorf("tseries.Coverage: dt=%g vs %g: %w", s.Dt, c.tdel, gerrors.ErrSampleRate)
			}
		}
		segs[i] = s
		if err := c.recurse(i+1, segs, lo, hi); err != nil {
			return err
		}
	}
	return nil
}
