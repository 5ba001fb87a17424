package dataloop_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geotool-core/geocore/dataloop"
	"github.com/geotool-core/geocore/segment"
)

func seg(t *testing.T, tbeg float64, n int) *segment.Segment {
	t.Helper()
	s, err := segment.New(tbeg, 1, make([]float32, n), 1, 1)
	require.NoError(t, err)
	return s
}

func fixedClock(t float64) func() float64 {
	return func() float64 { return t }
}

func TestLoopGrowsUntilMinDurationReached(t *testing.T) {
	l := dataloop.New("iu", "anmo", "BHZ", 1, 5)
	assert.Equal(t, "IU", l.Net)
	assert.Equal(t, "ANMO", l.Sta)
	assert.Equal(t, "bhz", l.Chan)

	l.AddSegment(seg(t, 0, 2))  // duration 1 (2 samples @ dt=1 -> span 1s)
	l.AddSegment(seg(t, 2, 2))
	l.AddSegment(seg(t, 4, 2))
	assert.Equal(t, 3, l.NumSegments())
	assert.Greater(t, l.Duration(), 0.0)
}

func TestLoopHoldsSteadyOnceMinDurationReached(t *testing.T) {
	l := dataloop.New("iu", "anmo", "bhz", 2, 2)
	l.AddSegment(seg(t, 0, 3))
	l.AddSegment(seg(t, 3, 3))
	require.Equal(t, 2, l.NumSegments())
	firstBeg := l.BegTime()

	l.AddSegment(seg(t, 6, 3))
	assert.Equal(t, 2, l.NumSegments(), "loop should hold steady, not keep growing")
	assert.Greater(t, l.BegTime(), firstBeg, "oldest segment should have been dropped")
}

func TestGetDataReturnsOnlySegmentsSinceLast(t *testing.T) {
	l := dataloop.New("iu", "anmo", "bhz", 8, 100)
	s1 := seg(t, 0, 3)
	s2 := seg(t, 3, 3)
	s3 := seg(t, 6, 3)
	l.AddSegment(s1)
	l.AddSegment(s2)

	all := l.GetData(nil)
	assert.Equal(t, []*segment.Segment{s1, s2}, all)

	l.AddSegment(s3)
	latest := l.GetData(s2)
	assert.Equal(t, []*segment.Segment{s3}, latest)
}

func TestAddSegmentRejectsExcessiveOverlap(t *testing.T) {
	l := dataloop.New("iu", "anmo", "bhz", 8, 100)
	l.SetMaxOverlap(0)
	l.AddSegment(seg(t, 0, 10)) // tend = 9
	l.AddSegment(seg(t, 5, 10)) // starts well before tend-0 -> rejected
	assert.Equal(t, 1, l.NumSegments())

	l.AddSegment(seg(t, 9, 10)) // starts exactly at tend -> accepted
	assert.Equal(t, 2, l.NumSegments())
}

func TestAddSegmentRejectsFutureAndStaleSegments(t *testing.T) {
	l := dataloop.New("iu", "anmo", "bhz", 8, 100)
	l.Clock = fixedClock(1000)
	l.SetMaxFutureTime(10)
	l.SetMaxAge(10)

	l.AddSegment(seg(t, 1050, 1)) // too far in the future
	assert.Equal(t, 0, l.NumSegments())

	l.AddSegment(seg(t, 900, 1)) // too old
	assert.Equal(t, 0, l.NumSegments())

	l.AddSegment(seg(t, 1005, 1)) // within both windows
	assert.Equal(t, 1, l.NumSegments())
}

func TestSetMinDurationShrinksLoop(t *testing.T) {
	l := dataloop.New("iu", "anmo", "bhz", 8, 100)
	l.AddSegment(seg(t, 0, 11))  // span 10s
	l.AddSegment(seg(t, 10, 11)) // span 10s
	l.AddSegment(seg(t, 20, 11)) // span 10s
	require.Equal(t, 3, l.NumSegments())

	l.SetMinDuration(15)
	assert.Equal(t, 15.0, l.MinDuration())
	assert.Less(t, l.NumSegments(), 3)
}

func TestCloseReleasesAllSegments(t *testing.T) {
	l := dataloop.New("iu", "anmo", "bhz", 4, 100)
	s := seg(t, 0, 3)
	l.AddSegment(s)
	require.Equal(t, 1, s.Owners())
	l.Close()
	assert.Equal(t, 0, s.Owners())
	assert.Equal(t, 0, l.NumSegments())
}
