// Package dataloop implements a realtime ring buffer of Segments for one
// station/channel: a loop that grows on demand to hold at least a
// configured minimum duration, then holds steady by discarding its
// oldest segment each time a new one arrives, plus incremental retrieval
// of "everything added since the last segment I already have".
//
// Grounded on libsrc/libgobject++/GDataLoop.cpp/.h.
package dataloop

import (
	"strings"
	"time"

	"github.com/geotool-core/geocore/segment"
)

// Loop is a growable ring buffer of Segments for one station/channel.
// The loop's storage grows, one segment slot at a time, until its total
// duration is at least MinDuration; after that, adding a segment
// discards the oldest one, keeping the loop's duration roughly constant.
// Segments are kept in arrival order, not time order.
type Loop struct {
	Net, Sta, Chan string

	// Clock returns the current epoch time in seconds, consulted by
	// AddSegment's MaxFutureTime/MaxAge checks. Defaults to the wall
	// clock; tests substitute a fixed or stepped function.
	Clock func() float64

	minDuration   float64
	maxOverlap    float64 // < 0 disables the overlap check
	maxFutureTime float64 // < 0 disables the future-time check
	maxAge        float64 // < 0 disables the age check

	duration float64
	begTime  float64
	endTime  float64
	storage  int

	start    int // index of the oldest segment
	num      int
	segments []*segment.Segment
}

// New returns a Loop for net/sta/chan (station and network names are
// upper-cased, the channel name lower-cased, matching GDataLoop's
// constructor), with initialCapacity segment slots reserved up front and
// a target minimum duration of minDuration seconds.
func New(net, sta, chanName string, initialCapacity int, minDuration float64) *Loop {
	return &Loop{
		Net: strings.ToUpper(net), Sta: strings.ToUpper(sta), Chan: strings.ToLower(chanName),

		minDuration:   minDuration,
		maxOverlap:    -1,
		maxFutureTime: -1,
		maxAge:        -1,

		segments: make([]*segment.Segment, initialCapacity),
	}
}

func (l *Loop) now() float64 {
	if l.Clock != nil {
		return l.Clock()
	}
	return float64(time.Now().UnixNano()) / 1e9
}

// MinDuration returns the loop's current target minimum duration.
func (l *Loop) MinDuration() float64 { return l.minDuration }

// SetMinDuration changes the target minimum duration. Lowering it may
// immediately discard the loop's oldest segments (down to whatever
// still satisfies the new target); raising it only takes effect as new
// segments arrive through AddSegment.
//
// Grounded on setMinDuration, with two corrections. First, the original
// leaves min_duration unmodified whenever it is not shrinking the loop
// (the assignment sits only inside the shrink branch), which would make
// a later raise of the target silently not take effect; this port
// assigns the new target unconditionally, matching the documented
// contract. Second, the original sizes its replacement array as
// end_index-i (one slot short of the end_index-i+1 segments the scan
// just decided to keep, since the break leaves i pointing at a segment
// that must be retained, not discarded) and then writes end_index-i+1
// entries into it; this port sizes the replacement correctly.
func (l *Loop) SetMinDuration(newMin float64) {
	if newMin == l.minDuration {
		return
	}
	if newMin < l.minDuration && l.num > 1 {
		endIndex := l.start + l.num - 1
		var d float64
		i := endIndex
		for ; i >= l.start; i-- {
			j := i
			if j >= len(l.segments) {
				j -= len(l.segments)
			}
			s := l.segments[j]
			d += s.Tend() - s.Tbeg
			if d > newMin {
				break
			}
		}
		if i > l.start {
			for k := l.start; k < i; k++ {
				j := k
				if j >= len(l.segments) {
					j -= len(l.segments)
				}
				old := l.segments[j]
				l.duration -= old.Tend() - old.Tbeg
				l.storage -= old.Length() * 4
				old.RemoveOwner()
			}
			n := endIndex - i + 1
			newSegs := make([]*segment.Segment, n)
			k := 0
			for ; i <= endIndex; i++ {
				j := i
				if j >= len(l.segments) {
					j -= len(l.segments)
				}
				newSegs[k] = l.segments[j]
				k++
			}
			l.num = k
			l.segments = newSegs
			l.start = 0
			l.begTime = newSegs[0].Tbeg
		}
	}
	l.minDuration = newMin
}

// SetMaxOverlap sets the maximum amount (seconds) that a new segment's
// start time may precede the loop's current end time. A negative value
// (the default) disables the check.
func (l *Loop) SetMaxOverlap(maxOverlap float64) { l.maxOverlap = maxOverlap }

// SetMaxFutureTime sets the maximum amount (seconds) that a new
// segment's start time may exceed the current time. A negative value
// (the default) disables the check.
func (l *Loop) SetMaxFutureTime(maxFutureTime float64) { l.maxFutureTime = maxFutureTime }

// SetMaxAge sets the maximum amount (seconds) that the current time may
// exceed a new segment's start time. A negative value (the default)
// disables the check.
func (l *Loop) SetMaxAge(maxAge float64) { l.maxAge = maxAge }

// NumSegments returns the number of segments currently held.
func (l *Loop) NumSegments() int { return l.num }

// Duration returns the loop's current total duration, in seconds.
func (l *Loop) Duration() float64 { return l.duration }

// BegTime returns the start time of the oldest segment, or 0 if empty.
func (l *Loop) BegTime() float64 { return l.begTime }

// EndTime returns the end time of the newest segment, or 0 if empty.
func (l *Loop) EndTime() float64 { return l.endTime }

// Storage returns the approximate number of sample bytes currently held.
func (l *Loop) Storage() int { return l.storage }

// AddSegment adds s to the loop in arrival order. It is silently
// rejected (matching GDataLoop::addSegment, which returns void) if it
// overlaps the loop's current end by more than MaxOverlap, starts more
// than MaxFutureTime past the current time, or starts more than MaxAge
// before the current time.
//
// Grounded on GDataLoop::addSegment: while the loop's storage has not
// yet reached capacity, segments are simply appended; once it has, the
// loop either grows by one slot (if its duration is still below
// min_duration) or drops its oldest segment to make room for s.
func (l *Loop) AddSegment(s *segment.Segment) {
	if l.maxOverlap >= 0 && l.num > 0 {
		endIndex := l.start + l.num - 1
		if endIndex >= len(l.segments) {
			endIndex -= len(l.segments)
		}
		if s.Tbeg < l.segments[endIndex].Tend()-l.maxOverlap {
			return
		}
	}
	if l.maxFutureTime >= 0 {
		if s.Tbeg > l.now()+l.maxFutureTime {
			return
		}
	}
	if l.maxAge >= 0 {
		if l.now()-s.Tbeg > l.maxAge {
			return
		}
	}

	if l.num == len(l.segments) {
		newDuration := l.duration + (s.Tend() - s.Tbeg)
		if l.num > 1 {
			oldest := l.segments[l.start]
			newDuration -= oldest.Tend() - oldest.Tbeg
		}
		if l.duration < l.minDuration || newDuration < l.minDuration {
			l.grow(s)
		} else {
			l.replaceOldest(s)
		}
	} else {
		l.append(s)
	}
}

func (l *Loop) grow(s *segment.Segment) {
	newSegs := make([]*segment.Segment, len(l.segments)+1)
	for i := 0; i < l.num; i++ {
		j := l.start + i
		if j >= len(l.segments) {
			j -= len(l.segments)
		}
		newSegs[i] = l.segments[j]
	}
	l.start = 0
	l.segments = newSegs
	l.segments[l.num] = s
	l.num++
	s.AddOwner()
	l.endTime = s.Tend()
	l.duration += s.Tend() - s.Tbeg
	l.storage += s.Length() * 4
}

func (l *Loop) replaceOldest(s *segment.Segment) {
	oldest := l.segments[l.start]
	l.duration -= oldest.Tend() - oldest.Tbeg
	l.storage -= oldest.Length() * 4
	oldest.RemoveOwner()
	l.segments[l.start] = s
	s.AddOwner()
	l.start++
	if l.start >= len(l.segments) {
		l.start = 0
	}
	l.begTime = l.segments[l.start].Tbeg
	l.endTime = s.Tend()
	l.duration += s.Tend() - s.Tbeg
	l.storage += s.Length() * 4
}

func (l *Loop) append(s *segment.Segment) {
	endIndex := l.start + l.num
	if endIndex >= len(l.segments) {
		endIndex -= len(l.segments)
	}
	l.segments[endIndex] = s
	s.AddOwner()
	if l.num == 0 {
		l.begTime = s.Tbeg
	}
	l.endTime = s.Tend()
	l.num++
	l.duration += s.Tend() - s.Tbeg
	l.storage += s.Length() * 4
}

// GetData returns the segments added since lastSeg was retrieved, oldest
// first. If lastSeg is nil, or is not found in the loop (it has already
// been discarded), every segment currently held is returned.
//
// Grounded on GDataLoop::getData.
func (l *Loop) GetData(lastSeg *segment.Segment) []*segment.Segment {
	if l.num == 0 {
		return nil
	}
	endIndex := l.start + l.num - 1
	i := endIndex
	for ; i >= l.start; i-- {
		j := i
		if j >= len(l.segments) {
			j -= len(l.segments)
		}
		if l.segments[j] == lastSeg {
			break
		}
	}
	var out []*segment.Segment
	for i++; i <= endIndex; i++ {
		j := i
		if j >= len(l.segments) {
			j -= len(l.segments)
		}
		out = append(out, l.segments[j])
	}
	return out
}

// Close releases the loop's ownership of every segment it still holds
// and empties it.
func (l *Loop) Close() {
	for i := 0; i < l.num; i++ {
		j := l.start + i
		if j >= len(l.segments) {
			j -= len(l.segments)
		}
		l.segments[j].RemoveOwner()
	}
	l.num = 0
	l.segments = l.segments[:0]
	l.start = 0
	l.duration, l.storage = 0, 0
	l.begTime, l.endTime = 0, 0
}
