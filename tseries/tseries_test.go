package tseries_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geotool-core/geocore/segment"
	"github.com/geotool-core/geocore/tseries"
)

// addConstant is a minimal tseries.Method stub used to exercise the
// chain-management operations without depending on a sibling operator
// package.
type addConstant struct {
	Value float64
}

func (m *addConstant) Name() string { return "AddConstant" }
func (m *addConstant) ApplyMethod(ts []*tseries.TimeSeries) error {
	for _, t := range ts {
		for i := 0; i < t.Size(); i++ {
			s := t.Segment(i)
			for j := range s.Data {
				s.Data[j] += float32(m.Value)
			}
		}
	}
	return nil
}
func (m *addConstant) ApplyToSegment(s *segment.Segment) error {
	for j := range s.Data {
		s.Data[j] += float32(m.Value)
	}
	return nil
}
func (m *addConstant) CanAppend() bool           { return true }
func (m *addConstant) RotationCommutative() bool { return true }
func (m *addConstant) ContinueMethod(s *segment.Segment) error {
	return m.ApplyToSegment(s)
}
func (m *addConstant) String() string     { return fmt.Sprintf("AddConstant: value=%g", m.Value) }
func (m *addConstant) Clone() tseries.Method { return &addConstant{Value: m.Value} }

func newSeg(t *testing.T, tbeg, dt float64, n int) *segment.Segment {
	t.Helper()
	s, err := segment.New(tbeg, dt, make([]float32, n), 1, 1)
	require.NoError(t, err)
	return s
}

func TestAddSegmentOrdersAndRejectsOverlap(t *testing.T) {
	ts := tseries.New(tseries.Channel{Sta: "AAA", Chan: "BHZ"})
	require.NoError(t, ts.AddSegment(newSeg(t, 10, 1, 5)))
	require.NoError(t, ts.AddSegment(newSeg(t, 0, 1, 5)))
	require.Equal(t, 2, ts.Size())
	assert.Equal(t, 0.0, ts.Segment(0).Tbeg)
	assert.Equal(t, 10.0, ts.Segment(1).Tbeg)

	err := ts.AddSegment(newSeg(t, 2, 1, 3))
	assert.Error(t, err)
}

func TestAddSegmentRejectsIncompatibleDt(t *testing.T) {
	ts := tseries.New(tseries.Channel{})
	require.NoError(t, ts.AddSegment(newSeg(t, 0, 1.0, 5)))
	err := ts.AddSegment(newSeg(t, 10, 0.01, 5))
	assert.Error(t, err)
}

func TestMeanAcrossSegments(t *testing.T) {
	ts := tseries.New(tseries.Channel{})
	s1 := newSeg(t, 0, 1, 2)
	s1.Data[0], s1.Data[1] = 1, 3
	s2 := newSeg(t, 10, 1, 2)
	s2.Data[0], s2.Data[1] = 5, 7
	require.NoError(t, ts.AddSegment(s1))
	require.NoError(t, ts.AddSegment(s2))
	assert.Equal(t, 4.0, ts.Mean())
}

func TestContinuous(t *testing.T) {
	ts := tseries.New(tseries.Channel{})
	require.NoError(t, ts.AddSegment(newSeg(t, 0, 1, 5))) // ends at t=4
	require.NoError(t, ts.AddSegment(newSeg(t, 5, 1, 5)))
	require.NoError(t, ts.AddSegment(newSeg(t, 50, 1, 5)))
	assert.False(t, ts.Continuous(0, 0.01, 0.01))
	assert.True(t, ts.Continuous(1, 0.01, 0.01))
	assert.False(t, ts.Continuous(2, 0.01, 0.01))
}

func TestReplayInvariantAfterChangeAndRemove(t *testing.T) {
	ts := tseries.New(tseries.Channel{})
	s := newSeg(t, 0, 1, 3)
	s.Data[0], s.Data[1], s.Data[2] = 1, 2, 3
	require.NoError(t, ts.AddSegment(s))

	require.NoError(t, ts.ApplyMethods([]tseries.Method{&addConstant{Value: 10}}))
	assert.Equal(t, []float32{11, 12, 13}, ts.Segment(0).Data)

	require.NoError(t, ts.ChangeMethods([]tseries.Method{&addConstant{Value: 100}}))
	assert.Equal(t, []float32{101, 102, 103}, ts.Segment(0).Data,
		"ChangeMethods must replace the trailing AddConstant, not stack a second one")

	require.NoError(t, ts.Remove([]string{"AddConstant"}))
	assert.Equal(t, []float32{1, 2, 3}, ts.Segment(0).Data,
		"Remove must restore raw samples via replay")
}

func TestSubseriesTruncatesToWindow(t *testing.T) {
	ts := tseries.New(tseries.Channel{})
	s := newSeg(t, 0, 1, 10)
	for i := range s.Data {
		s.Data[i] = float32(i)
	}
	require.NoError(t, ts.AddSegment(s))

	sub := ts.Subseries(2, 5)
	require.Equal(t, 1, sub.Size())
	assert.Equal(t, 2.0, sub.Segment(0).Tbeg)
	assert.Equal(t, []float32{2, 3, 4, 5}, sub.Segment(0).Data)
}
