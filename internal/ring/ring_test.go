package ring

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

var stops = []float64{0, 2, 4, 6, 8, 10, 12}

func TestRound(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{0.125, 0.13},
		{-0.125, -0.13},
		{1.004, 1},
		{0.1 + 0.2, 0.3},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Round(tt.in), "Round(%v)", tt.in)
	}
}

func TestAdvance(t *testing.T) {
	tests := []struct {
		name           string
		pos, dist, len float64
		want           float64
	}{
		{"plain", 1, 0.5, 14, 1.5},
		{"exact sum", 0.1, 0.2, 14, 0.3},
		{"wraps", 13.75, 0.5, 14, 0.25},
		{"lands on length", 13.5, 0.5, 14, 0},
		{"zero speed", 3.3, 0, 14, 3.3},
		{"rounds before modulus", 13.996, 0, 14, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Advance(tt.pos, tt.dist, tt.len)
			assert.Equal(t, tt.want, got)
			assert.GreaterOrEqual(t, got, 0.0)
			assert.Less(t, got, tt.len)
		})
	}
}

func TestWrap(t *testing.T) {
	assert.Equal(t, 13.5, Wrap(-0.5, 14))
	assert.Equal(t, 0.0, Wrap(14, 14))
	assert.Equal(t, 1.25, Wrap(29.25, 14))
}

func TestForwardDistance(t *testing.T) {
	assert.Equal(t, 2.0, ForwardDistance(13, 1, 14))
	assert.Equal(t, 0.0, ForwardDistance(2, 2, 14))
	assert.Equal(t, 13.5, ForwardDistance(1, 0.5, 14))
	assert.Equal(t, 0.3, ForwardDistance(0.5, 0.8, 14))
}

func TestCrossed(t *testing.T) {
	tests := []struct {
		name     string
		from, to float64
		wantStop float64
		wantN    int
	}{
		{"between stops", 0.5, 1.5, 0, 0},
		{"passes a stop", 1.8, 2.3, 2, 1},
		{"lands on a stop", 1.5, 2, 2, 1},
		{"leaves a stop", 2, 2.5, 0, 0},
		{"wraps past origin", 13.8, 0.3, 0, 1},
		{"no movement", 4, 4, 0, 0},
		{"skips two stops", 1.5, 4.5, 2, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stop, n := Crossed(stops, tt.from, tt.to, 14)
			assert.Equal(t, tt.wantN, n)
			assert.Equal(t, tt.wantStop, stop)
		})
	}
}
