// Package detect implements an STA/LTA (short-term-average /
// long-term-average) onset detector run per channel, plus reconciliation
// of the resulting candidates across nearby detections, across frequency
// bands, and against a station's existing arrivals.
//
// Grounded on plugins/libgstlt/StaLta.cpp: StaLta::applyDetector's
// per-segment gap-bridging loop, StaLta::processCandidates/
// nearbyCandidates/bestSNR's candidate reconciliation, and
// StaLta::compareWithArrivals' final state resolution against existing
// arrivals. The inner STA/LTA ratio computation (libgstlt's own stalta()
// routine) was not present in the retrieved source, so it is the
// standard sliding-window short-term/long-term average trigger described
// in the seismological literature, computed with running sums rather
// than GSL or any other external numeric library (a sliding boxcar sum
// is a handful of arithmetic, not a library-sized problem — the same
// judgment already applied to cepstrum's and beam's cosine tapers).
package detect

import (
	"math"
	"sort"

	"github.com/geotool-core/geocore/segment"
	"github.com/geotool-core/geocore/tseries"
)

// Def configures one STA/LTA detector band.
type Def struct {
	StaSec, LtaSec    float64 `desc:"short-term and long-term average window lengths, seconds" def:"1,30"`
	OnRatio           float64 `desc:"STA/LTA ratio that triggers a detection" def:"3"`
	OffRatio          float64 `desc:"STA/LTA ratio that ends a detection" def:"1.5"`
	SnrThreshold      float64 `desc:"minimum peak ratio for a trigger to become a candidate" def:"3"`
	TrgSepSec         float64 `desc:"candidates within this separation and station are reconciled to the best SNR" def:"2"`
	Group             string  `desc:"recipe group name this band belongs to" def:""`
}

// Candidate is one detection surviving the SNR threshold.
type Candidate struct {
	Time      float64
	Duration  float64
	SNR       float64
	Cfreq     float64
	BandIndex int
	DataIndex int
	Sta       string
	Group     string
	State     State

	// ReplacesArrivalID is the ID of the existing arrival this candidate
	// should replace, set only when State == StateReplace.
	ReplacesArrivalID int64
}

// State is a candidate's position in the reconciliation pipeline.
type State int

const (
	StateNew     State = iota // not yet reconciled against nearby candidates
	StateChosen               // best SNR among its nearby candidates; not yet compared to existing arrivals
	StateReplace              // should replace the existing arrival named by ReplacesArrivalID
	StateKeep                 // a genuinely new arrival, no conflicting existing arrival
)

// ExistingArrival is one arrival already associated with a station,
// against which a newly chosen candidate is compared.
type ExistingArrival struct {
	ID   int64
	Sta  string
	Time float64
	SNR  float64
}

const (
	tdelTolerance   = 0.001
	calibTolerance  = 0.001
	calperTolerance = 0.001
)

// compatible reports whether prev and seg are close enough in sample
// rate and calibration that prev's tail may be prepended to seg's data
// ahead of detection, matching applyDetector's gap-bridging guard.
func compatible(prev, seg *segment.Segment) bool {
	if math.Abs(prev.Dt-seg.Dt)/seg.Dt >= tdelTolerance {
		return false
	}
	if seg.Calib != 0 && math.Abs(prev.Calib-seg.Calib)/seg.Calib >= calibTolerance {
		return false
	}
	if seg.Calper != 0 && math.Abs(prev.Calper-seg.Calper)/seg.Calper >= calperTolerance {
		return false
	}
	return true
}

// Detect runs def over every segment of ts, returning one Candidate per
// trigger whose peak ratio clears def.SnrThreshold. Where a segment
// follows closely enough on the previous one, a tail of the previous
// segment's samples is prepended before detection so a trigger
// straddling the gap is not missed or double-counted.
//
// Grounded on StaLta::applyDetector, with two corrections: the original
// computes the gap between segments as
// seg.tbeg()-prev.tbeg()+prev.length()*prev.tdel() — due to a missing
// set of parentheses this adds the previous segment's own duration to
// the gap instead of subtracting it (it should read
// seg.tbeg()-(prev.tbeg()+prev.length()*prev.tdel())), so on real data
// it is a huge positive number that clears every gap threshold; this
// port computes the gap correctly. It also adjusts a detection's
// absolute time by the prepended sample count — the original adds
// seg.tbeg() to the raw onset sample index even when that index falls
// inside the prepended region and so refers to an earlier segment,
// which this port corrects by subtracting the prepend length first.
func Detect(net string, ts *tseries.TimeSeries, dataIndex, bandIndex int, cfreq float64, def Def) []Candidate {
	var out []Candidate
	for i := 0; i < ts.Size(); i++ {
		seg := ts.Segment(i)
		data := seg.Data
		prevNsamp := 0

		if i > 0 {
			prev := ts.Segment(i - 1)
			if compatible(prev, seg) {
				prevEnd := prev.Tbeg + float64(prev.Length())*prev.Dt
				gapSec := seg.Tbeg - prevEnd

				var want int
				switch {
				case gapSec < def.LtaSec:
					want = maxInt(1, int(def.LtaSec/seg.Dt+.5))
				case gapSec < def.LtaSec*4:
					want = maxInt(1, int(def.LtaSec/seg.Dt+.5)) / 2
				}
				if want > 0 {
					offset := prev.Length() - want
					if offset < 0 {
						offset = 0
						want = prev.Length()
					}
					merged := make([]float32, want+len(seg.Data))
					copy(merged, prev.Data[offset:offset+want])
					copy(merged[want:], seg.Data)
					data = merged
					prevNsamp = want
				}
			}
		}

		for _, d := range staLta(data, seg.Dt, def) {
			if d.maxRatio <= def.SnrThreshold {
				continue
			}
			onset := d.onset - prevNsamp
			offset := d.offset - prevNsamp
			out = append(out, Candidate{
				Time:      seg.Tbeg + float64(onset)*seg.Dt,
				Duration:  float64(offset-onset) * seg.Dt,
				SNR:       d.maxRatio,
				Cfreq:     cfreq,
				BandIndex: bandIndex,
				DataIndex: dataIndex,
				Sta:       net,
				Group:     def.Group,
			})
		}
	}
	return out
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// detection is one STA/LTA trigger window within a single data array.
type detection struct {
	onset, offset int
	maxRatio      float64
}

// staLta runs a sliding-window short-term/long-term average ratio over
// data sampled at interval dt, using running sums so each step is O(1).
// A trigger opens when the ratio reaches def.OnRatio and closes when it
// falls back below def.OffRatio (or data ends while still triggered);
// maxRatio is the peak ratio reached during the open window.
func staLta(data []float32, dt float64, def Def) []detection {
	sta := maxInt(1, int(def.StaSec/dt+.5))
	lta := maxInt(1, int(def.LtaSec/dt+.5))
	n := len(data)
	if n < lta+sta {
		return nil
	}

	abs := make([]float64, n)
	for i, v := range data {
		abs[i] = math.Abs(float64(v))
	}

	var ltaSum, staSum float64
	for i := 0; i < lta; i++ {
		ltaSum += abs[i]
	}
	for i := lta; i < lta+sta; i++ {
		staSum += abs[i]
	}

	var dets []detection
	triggered := false
	var cur detection

	for i := lta + sta; i < n; i++ {
		var ratio float64
		if ltaSum > 0 {
			ratio = (staSum / float64(sta)) / (ltaSum / float64(lta))
		}

		if !triggered && ratio >= def.OnRatio {
			triggered = true
			cur = detection{onset: i - sta, offset: i - sta, maxRatio: ratio}
		} else if triggered {
			if ratio > cur.maxRatio {
				cur.maxRatio = ratio
			}
			if ratio < def.OffRatio {
				cur.offset = i
				dets = append(dets, cur)
				triggered = false
			}
		}

		staSum += abs[i] - abs[i-sta]
		ltaSum += abs[i-sta] - abs[i-sta-lta]
	}
	if triggered {
		cur.offset = n - 1
		dets = append(dets, cur)
	}
	return dets
}

// Reconcile sorts candidates by time and, for each station, within every
// run of that station's candidates whose times fall within
// defs[candidate.BandIndex].TrgSepSec of the first candidate in the run,
// promotes (StateChosen) only the member with the highest SNR; every
// other candidate is left at StateNew. Candidates of other stations
// falling inside a run are reconciled in runs of their own.
//
// Reconcile only resolves conflicts among the candidates themselves; a
// chosen candidate still needs to be compared against the station's
// existing arrivals via CompareWithArrivals before it is inserted.
//
// Grounded on StaLta::processCandidates/nearbyCandidates/bestSNR.
func Reconcile(candidates []Candidate, defs []Def) {
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Time < candidates[j].Time })

	done := make([]bool, len(candidates))
	for i := range candidates {
		if done[i] {
			continue
		}
		j := nearbyCandidates(candidates, i, defs[candidates[i].BandIndex].TrgSepSec)
		best := bestSNR(candidates, i, j)
		candidates[best].State = StateChosen
		for k := i; k <= i+j; k++ {
			if candidates[k].Sta == candidates[i].Sta {
				done[k] = true
			}
		}
	}
}

// CompareWithArrivals resolves every candidate left at StateChosen
// against existing, same-station arrivals falling within
// defs[candidate.BandIndex].TrgSepSec of its time: a candidate whose SNR
// exceeds every nearby arrival is promoted to StateKeep, a genuinely new
// arrival; a candidate that exceeds at least one nearby arrival but not
// all of them is promoted to StateReplace with ReplacesArrivalID set to
// the weakest arrival it beats; a candidate that fails to exceed any
// nearby arrival is left at StateChosen, meaning it should be dropped
// rather than inserted. Candidates not at StateChosen are untouched.
//
// Grounded on StaLta::compareWithArrivals, with its three outcomes made
// order-independent: the original resolves a candidate's fate by
// scanning existing arrivals one at a time and short-circuiting on the
// first one stronger than the candidate, so whether a candidate that
// both beats one arrival and loses to another ends up replace or
// unchanged depends on the arbitrary order existing arrivals are stored
// in. This port instead looks at every nearby arrival before deciding,
// matching the three-way rule (exceeds all / exceeds some / exceeds
// none) the original's behavior was meant to implement.
func CompareWithArrivals(candidates []Candidate, existing []ExistingArrival, defs []Def) {
	if len(existing) == 0 {
		for i := range candidates {
			if candidates[i].State == StateChosen {
				candidates[i].State = StateKeep
			}
		}
		return
	}

	for i := range candidates {
		if candidates[i].State != StateChosen {
			continue
		}
		trgsep := defs[candidates[i].BandIndex].TrgSepSec
		minTime := candidates[i].Time - trgsep
		maxTime := candidates[i].Time + trgsep

		exceedsAny := false
		exceedsAll := true
		var weakest ExistingArrival

		for _, a := range existing {
			if a.Sta != candidates[i].Sta || a.Time < minTime || a.Time > maxTime {
				continue
			}
			if candidates[i].SNR > a.SNR {
				if !exceedsAny || a.SNR < weakest.SNR {
					weakest = a
				}
				exceedsAny = true
			} else {
				exceedsAll = false
			}
		}

		switch {
		case exceedsAll:
			candidates[i].State = StateKeep
		case exceedsAny:
			candidates[i].State = StateReplace
			candidates[i].ReplacesArrivalID = weakest.ID
		}
	}
}

// nearbyCandidates returns the number of candidates immediately
// following i whose time is within trgsepSec of candidates[i]'s.
func nearbyCandidates(c []Candidate, i int, trgsepSec float64) int {
	maxTime := c[i].Time + trgsepSec
	n := 0
	for k := i + 1; k < len(c); k++ {
		if c[k].Time > maxTime {
			break
		}
		n++
	}
	return n
}

// bestSNR returns the index, among c[i..i+j] sharing c[i]'s station, of
// the highest-SNR candidate.
func bestSNR(c []Candidate, i, j int) int {
	best := i
	snr := c[i].SNR
	sta := c[i].Sta
	for k := i + 1; k <= i+j; k++ {
		if c[k].SNR > snr && c[k].Sta == sta {
			snr = c[k].SNR
			best = k
		}
	}
	return best
}
