package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

var testBands = BandSet{
	{MinAchievement: 0, Status: StatusRed},
	{MinAchievement: 90, Status: StatusGreen},
	{MinAchievement: 70, Status: StatusYellow},
}

func TestBandSet_Classify(t *testing.T) {
	tests := []struct {
		achievement float64
		want        Status
	}{
		{120, StatusGreen},
		{90, StatusGreen},
		{89.99, StatusYellow},
		{70, StatusYellow},
		{10, StatusRed},
		{-5, StatusRed},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, testBands.Classify(tt.achievement), "achievement %.2f", tt.achievement)
	}
}

func TestBandSet_ClassifyIsMonotonic(t *testing.T) {
	prev := testBands.Classify(-50)
	for a := -50.0; a <= 200; a += 0.5 {
		got := testBands.Classify(a)
		assert.GreaterOrEqual(t, got.rank(), prev.rank(), "achievement %.1f", a)
		prev = got
	}
}

func TestBandSet_Validate(t *testing.T) {
	assert.NoError(t, testBands.Validate())

	inverted := BandSet{
		{MinAchievement: 90, Status: StatusRed},
		{MinAchievement: 50, Status: StatusGreen},
	}
	assert.Error(t, inverted.Validate())

	dup := BandSet{
		{MinAchievement: 50, Status: StatusYellow},
		{MinAchievement: 50, Status: StatusRed},
	}
	assert.Error(t, dup.Validate())

	grey := BandSet{{MinAchievement: 0, Status: StatusGrey}}
	assert.Error(t, grey.Validate())
}

func TestResolveStatus(t *testing.T) {
	assert.Equal(t, StatusGrey, ResolveStatus(0, true, 150, testBands))
	assert.Equal(t, StatusNeutral, ResolveStatus(3, false, 0, testBands))
	assert.Equal(t, StatusNeutral, ResolveStatus(3, true, 95, nil))
	assert.Equal(t, StatusGreen, ResolveStatus(3, true, 95, testBands))
}

func TestAchievement(t *testing.T) {
	a, ok := Achievement(50, 200, true)
	assert.True(t, ok)
	assert.Equal(t, 25.0, a)

	_, ok = Achievement(50, 0, true)
	assert.False(t, ok)

	_, ok = Achievement(50, 100, false)
	assert.False(t, ok)
}

func TestCompareTo(t *testing.T) {
	pct, verdict := CompareTo(150, 100)
	assert.Equal(t, 50.0, pct)
	assert.Equal(t, ChangeBetter, verdict)

	pct, verdict = CompareTo(50, 100)
	assert.Equal(t, -50.0, pct)
	assert.Equal(t, ChangeWorse, verdict)

	pct, verdict = CompareTo(10, 0)
	assert.Equal(t, 0.0, pct)
	assert.Equal(t, ChangeBetter, verdict)
}
