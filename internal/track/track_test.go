package track

import (
	"math/rand"
	"slices"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"ring-simulator/internal/layout"
	"ring-simulator/internal/ring"
	"ring-simulator/internal/speed"
)

func constant(t *testing.T, maxSpeed float64) speed.Policy {
	t.Helper()
	p, err := speed.NewConstant(maxSpeed)
	require.NoError(t, err)
	return p
}

func newTrack(t *testing.T, o Options) *Track {
	t.Helper()
	if o.Layout == nil {
		o.Layout = layout.Default()
	}
	tr, err := New(o)
	require.NoError(t, err)
	return tr
}

func twoTrains(trail, lead float64, reversed bool) *layout.Layout {
	l := layout.Default()
	l.Trains = []layout.Train{{Name: "Trail", Start: trail}, {Name: "Lead", Start: lead}}
	if reversed {
		slices.Reverse(l.Trains)
	}
	return l
}

func TestNewRecordsStartPositions(t *testing.T) {
	tr := newTrack(t, Options{Policy: constant(t, 0.5)})

	assert.Equal(t, 0, tr.Time())
	assert.Equal(t, 0, tr.History().Steps())
	assert.Equal(t, []float64{4}, tr.History().TrainPositions("Emily"))
	assert.Equal(t, DefaultHeadway, tr.Headway())
	assert.Equal(t, "Consistent Speed Track\nSpeed = 30 MPH", tr.Name())
	assert.Equal(t, speed.Constant, tr.Kind())
	assert.Len(t, tr.Stops(), 7)
	assert.Equal(t, "Alewife", tr.Stops()[0].Name)
	assert.True(t, strings.HasPrefix(tr.String(), "Train Thomas is at location 0\nTrain Gordon is at location 2\n"))
}

func TestPerfectTrackAdvancesInLockstep(t *testing.T) {
	tr := newTrack(t, Options{Policy: constant(t, 0.5)})
	require.NoError(t, tr.Run(10))

	want := []float64{0, 0.5, 1, 1.5, 2, 2.5, 3, 3.5, 4, 4.5, 5}
	if diff := cmp.Diff(want, tr.History().TrainPositions("Thomas")); diff != "" {
		t.Errorf("Thomas positions (-want +got):\n%s", diff)
	}
	for _, train := range tr.Layout().Trains {
		seq := tr.History().TrainPositions(train.Name)
		require.Len(t, seq, 11, train.Name)
		for k, pos := range seq {
			assert.Equal(t, ring.Wrap(train.Start+0.5*float64(k), 14), pos, "%s step %d", train.Name, k)
		}
	}
	assert.Equal(t, Stats{Steps: 10, Moves: 70, Arrivals: 14}, tr.Stats())
	pos, ok := tr.Position("Henry")
	require.True(t, ok)
	assert.Equal(t, 3.0, pos)
}

func TestStepEvents(t *testing.T) {
	tr := newTrack(t, Options{Policy: constant(t, 0.5)})
	for i := 0; i < 3; i++ {
		_, err := tr.Step()
		require.NoError(t, err)
	}
	events, err := tr.Step()
	require.NoError(t, err)
	require.Len(t, events, 7)
	assert.Equal(t, Event{Train: "Thomas", Outcome: Arrived, From: 1.5, To: 2, Stop: "Davis"}, events[0])
	assert.Equal(t, Event{Train: "Henry", Outcome: Arrived, From: 13.5, To: 0, Stop: "Alewife"}, events[6])
}

func TestTrailingTrainWaitsForHeadway(t *testing.T) {
	tests := []struct {
		name        string
		trail, lead float64
		wantTrail   []float64
		wantLead    []float64
	}{
		{
			name:      "gap beyond speed",
			trail:     0,
			lead:      0.8,
			wantTrail: []float64{0, 0, 0.5, 1, 1, 1.5},
			wantLead:  []float64{0.8, 1.3, 1.8, 2, 2.5, 3},
		},
		{
			name:      "started within headway",
			trail:     0,
			lead:      0.3,
			wantTrail: []float64{0, 0, 0, 0.5, 1, 1, 1.5},
			wantLead:  []float64{0.3, 0.8, 1.3, 1.8, 2, 2.5, 3},
		},
	}
	for _, tt := range tests {
		for _, reversed := range []bool{false, true} {
			t.Run(tt.name, func(t *testing.T) {
				tr := newTrack(t, Options{Layout: twoTrains(tt.trail, tt.lead, reversed), Policy: constant(t, 0.5)})
				require.NoError(t, tr.Run(len(tt.wantTrail)-1))

				assert.Equal(t, tt.wantTrail, tr.History().TrainPositions("Trail"), "reversed=%v", reversed)
				assert.Equal(t, tt.wantLead, tr.History().TrainPositions("Lead"), "reversed=%v", reversed)
			})
		}
	}
}

func TestBlockedEventNamesNearestTrain(t *testing.T) {
	l := layout.Default()
	l.Trains = []layout.Train{{Name: "A", Start: 0.5}, {Name: "B", Start: 1.4}, {Name: "C", Start: 1.2}}
	tr := newTrack(t, Options{Layout: l, Policy: constant(t, 0.5)})

	events, err := tr.Step()
	require.NoError(t, err)
	assert.Equal(t, Blocked, events[0].Outcome)
	assert.Equal(t, "C", events[0].Blocker)
	// C would pass B.
	assert.Equal(t, Blocked, events[2].Outcome)
	assert.Equal(t, "B", events[2].Blocker)
	assert.Equal(t, Moved, events[1].Outcome)
	assert.Equal(t, 2, tr.Stats().Blocked)
}

func TestSlowZone(t *testing.T) {
	l := layout.Default()
	p, err := speed.NewSlowZone(0.5, 0.5, l.SlowZone)
	require.NoError(t, err)
	tr := newTrack(t, Options{Layout: l, Policy: p})

	_, err = tr.Step()
	require.NoError(t, err)
	for train, want := range map[string]float64{"Edward": 8.5, "Percy": 10.25, "Henry": 12.5, "Emily": 4.5} {
		got, ok := tr.Position(train)
		require.True(t, ok)
		assert.Equal(t, want, got, train)
	}
}

func TestDwellHoldsAtStops(t *testing.T) {
	tr := newTrack(t, Options{Policy: constant(t, 0.5), DwellSteps: 2})
	require.NoError(t, tr.Run(10))

	assert.Equal(t, []float64{0, 0.5, 1, 1.5, 2, 2, 2, 2.5, 3, 3.5, 4}, tr.History().TrainPositions("Thomas"))
	assert.Equal(t, Stats{Steps: 10, Moves: 56, Arrivals: 14, Held: 14}, tr.Stats())
	assert.Equal(t, 2, tr.DwellSteps())
}

func TestRingInvariantAndSpacing(t *testing.T) {
	for _, dwell := range []int{0, 2} {
		p, err := speed.NewGaussian(0.5, 0.2, rand.New(rand.NewSource(7)))
		require.NoError(t, err)
		tr := newTrack(t, Options{Policy: p, DwellSteps: dwell})
		require.NoError(t, tr.Run(500))

		log := tr.History()
		require.NoError(t, log.Validate())
		trains := log.Trains()
		for step := 0; step <= 500; step++ {
			for i, a := range trains {
				pa, _ := log.At(a, step)
				require.GreaterOrEqual(t, pa, 0.0)
				require.Less(t, pa, 14.0)
				moved := false
				if step > 0 {
					before, _ := log.At(a, step-1)
					moved = before != pa
				}
				for j, b := range trains {
					if i == j {
						continue
					}
					pb, _ := log.At(b, step)
					require.NotEqual(t, pa, pb, "trains %s and %s collide at step %d", a, b, step)
					if moved {
						assert.Greater(t, ring.ForwardDistance(pa, pb, 14), DefaultHeadway,
							"%s moved within headway of %s at step %d", a, b, step)
					}
				}
			}
		}
	}
}

func TestNewRejectsInvalidOptions(t *testing.T) {
	tooFast, err := speed.NewSlowZone(0.5, 5, layout.Zone{Start: 10, End: 12})
	require.NoError(t, err)

	tests := []struct {
		name string
		o    Options
	}{
		{"no layout", Options{Policy: constant(t, 0.5)}},
		{"trains sharing a start", Options{Layout: twoTrains(1, 1, false), Policy: constant(t, 0.5)}},
		{"zero speed", Options{Layout: layout.Default()}},
		{"speed above stop spacing", Options{Layout: layout.Default(), Policy: constant(t, 2.5)}},
		{"slow zone factor above stop spacing", Options{Layout: layout.Default(), Policy: tooFast}},
		{"negative headway", Options{Layout: layout.Default(), Policy: constant(t, 0.5), Headway: -1}},
		{"negative dwell", Options{Layout: layout.Default(), Policy: constant(t, 0.5), DwellSteps: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.o)
			assert.ErrorIs(t, err, ErrInvalidParameter)
		})
	}
}

func TestStepFailsWhenSkippingStops(t *testing.T) {
	l := layout.Default()
	l.Trains = []layout.Train{{Name: "Solo", Start: 0.5}}
	tr := newTrack(t, Options{Layout: l, Policy: constant(t, 0.5)})
	tr.policy = constant(t, 5)

	_, err := tr.Step()
	assert.ErrorIs(t, err, ErrStopSkipped)
}

func TestFailedStepLeavesTrackUnchanged(t *testing.T) {
	l := layout.Default()
	l.Trains = []layout.Train{{Name: "Ahead", Start: 10.5}, {Name: "Behind", Start: 0.5}}
	tr := newTrack(t, Options{Layout: l, Policy: constant(t, 0.5)})
	tr.policy = constant(t, 5)

	_, err := tr.Step()
	require.ErrorIs(t, err, ErrStopSkipped)

	assert.Equal(t, 0, tr.Time())
	assert.Equal(t, 0, tr.History().Steps())
	assert.NoError(t, tr.History().Validate())
	assert.Equal(t, []float64{10.5}, tr.History().TrainPositions("Ahead"))
	assert.Equal(t, []float64{0.5}, tr.History().TrainPositions("Behind"))
	assert.Equal(t, Stats{}, tr.Stats())
}

func TestNarration(t *testing.T) {
	tests := []struct {
		verbose       int
		wantArrivals  int
		wantPositions int
	}{
		{0, 0, 0},
		{1, 14, 0},
		{2, 14, 70},
	}
	for _, tt := range tests {
		core, logs := observer.New(zap.InfoLevel)
		tr := newTrack(t, Options{Policy: constant(t, 0.5), Verbose: tt.verbose, Logger: zap.New(core)})
		require.NoError(t, tr.Run(10))

		assert.Equal(t, tt.wantArrivals, logs.FilterMessage("train arrived").Len(), "verbose %d", tt.verbose)
		assert.Equal(t, tt.wantPositions, logs.FilterMessage("train position").Len(), "verbose %d", tt.verbose)
	}
}
