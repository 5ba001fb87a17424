package segment_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geotool-core/geocore/segment"
)

func TestNewZeroCalibBecomesOne(t *testing.T) {
	s, err := segment.New(0, 0.01, make([]float32, 10), 0, 1)
	require.NoError(t, err)
	assert.Equal(t, 1.0, s.Calib)
}

func TestNewRejectsNonPositiveDt(t *testing.T) {
	_, err := segment.New(0, 0, make([]float32, 10), 1, 1)
	assert.Error(t, err)
}

func TestTendAndTime(t *testing.T) {
	s, err := segment.New(100, 0.5, make([]float32, 5), 1, 1)
	require.NoError(t, err)
	assert.Equal(t, 102.0, s.Tend())
	assert.Equal(t, 101.0, s.Time(2))
}

func TestSubsegmentCopiesAndRejectsBadRange(t *testing.T) {
	data := []float32{0, 1, 2, 3, 4}
	s, err := segment.New(0, 1, data, 1, 1)
	require.NoError(t, err)

	sub, err := s.Subsegment(1, 4)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2, 3}, sub.Data)
	assert.Equal(t, 1.0, sub.Tbeg)

	sub.Data[0] = 99
	assert.Equal(t, float32(1), s.Data[1], "subsegment must not alias the source")

	_, err = s.Subsegment(-1, 2)
	assert.Error(t, err)
	_, err = s.Subsegment(3, 2)
	assert.Error(t, err)
	_, err = s.Subsegment(0, 6)
	assert.Error(t, err)
}

func TestTruncateMutatesInPlace(t *testing.T) {
	data := []float32{0, 1, 2, 3, 4}
	s, err := segment.New(0, 1, data, 1, 1)
	require.NoError(t, err)

	require.NoError(t, s.Truncate(1, 3))
	assert.Equal(t, []float32{1, 2}, s.Data)
	assert.Equal(t, 1.0, s.Tbeg)
}

func TestSetCalibrationZeroBecomesOne(t *testing.T) {
	s, err := segment.New(0, 1, make([]float32, 1), 2, 1)
	require.NoError(t, err)
	s.SetCalibration(0, 1)
	assert.Equal(t, 1.0, s.Calib)
}

func TestOverlaps(t *testing.T) {
	a, _ := segment.New(0, 1, make([]float32, 10), 1, 1)
	b, _ := segment.New(9, 1, make([]float32, 10), 1, 1)
	c, _ := segment.New(20, 1, make([]float32, 10), 1, 1)
	assert.True(t, a.Overlaps(b))
	assert.False(t, a.Overlaps(c))
}

func TestOwnerRefcount(t *testing.T) {
	s, _ := segment.New(0, 1, make([]float32, 1), 1, 1)
	s.AddOwner()
	s.AddOwner()
	assert.Equal(t, 2, s.Owners())
	s.RemoveOwner()
	assert.Equal(t, 1, s.Owners())
}
