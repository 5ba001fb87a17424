package datamethod

import (
	"fmt"
	"math"

	"github.com/geotool-core/geocore/gerrors"
	"github.com/geotool-core/geocore/segment"
	"github.com/geotool-core/geocore/tseries"
)

// Taper types, matching TaperData.h's documented set.
const (
	TaperHamming   = "hamming"
	TaperHanning   = "hanning"
	TaperCosine    = "cosine"
	TaperCosineBeg = "cosineBeg"
	TaperParzen    = "parzen"
	TaperWelch     = "welch"
	TaperBlackman  = "blackman"
	TaperNone      = "none"
)

// Taper applies a symmetric (or begin-only) window to each segment's
// ends. Width is the taper's extent as a percent of segment length;
// minpts/maxpts clamp the absolute sample count for the cosine and
// cosineBeg variants. The other windows (hamming, hanning, parzen,
// welch, blackman) apply across the entire segment, matching
// TaperData's documented behavior for those types.
//
// Grounded on TaperData.h; the window formulas themselves are the
// standard discrete definitions (no pack library implements them, so
// they are computed directly, same as the teacher computes its own
// spectral math directly rather than deferring to a dependency).
type Taper struct {
	Type   string
	Width  int
	MinPts int
	MaxPts int
}

// NewTaper validates type and returns a Taper.
func NewTaper(taperType string, width, minpts, maxpts int) (*Taper, error) {
	switch taperType {
	case TaperHamming, TaperHanning, TaperCosine, TaperCosineBeg,
		TaperParzen, TaperWelch, TaperBlackman, TaperNone:
	default:
		return nil, fmt.Errorf("datamethod.NewTaper: type=%q: %w", taperType, gerrors.ErrInvalidArgs)
	}
	return &Taper{Type: taperType, Width: width, MinPts: minpts, MaxPts: maxpts}, nil
}

func (t *Taper) Name() string { return "Taper" }

func (t *Taper) ApplyMethod(series []*tseries.TimeSeries) error {
	for _, ts := range series {
		for i := 0; i < ts.Size(); i++ {
			if err := t.ApplyToSegment(ts.Segment(i)); err != nil {
				return err
			}
		}
	}
	return nil
}

func (t *Taper) ApplyToSegment(s *segment.Segment) error {
	n := s.Length()
	if n == 0 || t.Type == TaperNone {
		return nil
	}
	switch t.Type {
	case TaperCosine, TaperCosineBeg:
		w := n * t.Width / 100
		if t.MinPts > 0 && w < t.MinPts {
			w = t.MinPts
		}
		if t.MaxPts > 0 && w > t.MaxPts {
			w = t.MaxPts
		}
		if w > n/2 {
			w = n / 2
		}
		applyCosineTaper(s.Data, w, t.Type == TaperCosine)
	case TaperHamming:
		applyWindow(s.Data, hammingCoef)
	case TaperHanning:
		applyWindow(s.Data, hannCoef)
	case TaperParzen:
		applyWindow(s.Data, parzenCoef)
	case TaperWelch:
		applyWindow(s.Data, welchCoef)
	case TaperBlackman:
		applyWindow(s.Data, blackmanCoef)
	}
	return nil
}

func (t *Taper) CanAppend() bool { return t.Type == TaperCosineBeg }

func (t *Taper) RotationCommutative() bool { return true }

// ContinueMethod is a no-op for a cosineBeg taper, whose begin taper was
// already applied to the earlier segment (a continuing segment's
// beginning is not a real waveform onset); every other taper type is
// applied to s as ApplyToSegment does.
func (t *Taper) ContinueMethod(s *segment.Segment) error {
	if t.Type == TaperCosineBeg {
		return nil
	}
	return t.ApplyToSegment(s)
}

func (t *Taper) String() string {
	if t.Type == TaperCosine || t.Type == TaperCosineBeg {
		return fmt.Sprintf("Taper: type=%s width=%d minpts=%d maxpts=%d", t.Type, t.Width, t.MinPts, t.MaxPts)
	}
	return fmt.Sprintf("Taper: type=%s", t.Type)
}

func (t *Taper) Clone() tseries.Method {
	c := *t
	return &c
}

var _ tseries.Method = (*Taper)(nil)

// applyCosineTaper tapers the first w samples with a half-cosine ramp
// from 0 to 1, and, if both, the last w samples with the mirror ramp.
func applyCosineTaper(data []float32, w int, both bool) {
	if w <= 0 {
		return
	}
	n := len(data)
	for i := 0; i < w && i < n; i++ {
		frac := 0.5 * (1 - math.Cos(math.Pi*float64(i)/float64(w)))
		data[i] *= float32(frac)
	}
	if both {
		for i := 0; i < w && i < n; i++ {
			frac := 0.5 * (1 - math.Cos(math.Pi*float64(i)/float64(w)))
			data[n-1-i] *= float32(frac)
		}
	}
}

// applyWindow multiplies data in place by coef(i, n-1) for i in [0,n).
func applyWindow(data []float32, coef func(i, nm1 int) float64) {
	n := len(data)
	if n < 2 {
		return
	}
	for i := range data {
		data[i] *= float32(coef(i, n-1))
	}
}

func hammingCoef(i, nm1 int) float64 {
	return 0.54 - 0.46*math.Cos(2*math.Pi*float64(i)/float64(nm1))
}

func hannCoef(i, nm1 int) float64 {
	return 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(nm1)))
}

func blackmanCoef(i, nm1 int) float64 {
	x := 2 * math.Pi * float64(i) / float64(nm1)
	return 0.42 - 0.5*math.Cos(x) + 0.08*math.Cos(2*x)
}

func welchCoef(i, nm1 int) float64 {
	half := float64(nm1) / 2
	x := (float64(i) - half) / half
	return 1 - x*x
}

// parzenCoef is the Parzen (de la Vallee Poussin) window.
func parzenCoef(i, nm1 int) float64 {
	n := float64(nm1)
	x := (float64(i) - n/2) / (n / 2)
	ax := math.Abs(x)
	if ax <= 0.5 {
		return 1 - 6*ax*ax*(1-ax)
	}
	return 2 * math.Pow(1-ax, 3)
}
