package track

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/aarondl/opt/opt"
	"go.uber.org/zap"

	"ring-simulator/internal/history"
	"ring-simulator/internal/layout"
	"ring-simulator/internal/ring"
	"ring-simulator/internal/speed"
)

// DefaultHeadway is the minimum forward distance a train keeps to the train ahead.
const DefaultHeadway = 0.5

var (
	ErrInvalidParameter = errors.New("invalid track parameter")
	ErrStopSkipped      = errors.New("move skips a stop")
)

// Options configures a Track. Headway 0 selects DefaultHeadway.
// DwellSteps > 0 holds a train at a stop for that many additional steps
// after it arrives; 0 is the baseline without dwell.
type Options struct {
	Layout     *layout.Layout
	Policy     speed.Policy
	Headway    float64
	DwellSteps int
	Verbose    int
	Logger     *zap.Logger
}

// Outcome classifies what happened to a train during one step.
type Outcome int

const (
	Moved Outcome = iota
	Arrived
	Blocked
	Held
)

func (o Outcome) String() string {
	switch o {
	case Moved:
		return "moved"
	case Arrived:
		return "arrived"
	case Blocked:
		return "blocked"
	case Held:
		return "held"
	}
	return fmt.Sprintf("Outcome(%d)", int(o))
}

// Event is the result of evaluating one train in one step.
type Event struct {
	Train   string
	Outcome Outcome
	From    float64
	To      float64
	Blocker string // Blocked only
	Stop    string // Arrived only
}

// Stats counts outcomes over the lifetime of a Track.
type Stats struct {
	Steps    int
	Moves    int
	Arrivals int
	Blocked  int
	Held     int
}

// Track is one run of the loop: the trains, their positions and the
// history recorded so far. A Track is not safe for concurrent use.
type Track struct {
	layout  *layout.Layout
	policy  speed.Policy
	headway float64
	dwell   int
	verbose int
	log     *zap.Logger

	names     []string
	stops     []float64
	positions []float64
	// arrivedAt is the step at which a train last arrived at the stop it
	// occupies. Unset while the train is between stops or has not arrived
	// anywhere yet, in which case it is never held.
	arrivedAt []opt.Val[int]

	history *history.Log
	time    int
	stats   Stats
}

// New builds a Track with trains at their layout start positions and
// records those positions as step 0.
func New(o Options) (*Track, error) {
	if o.Layout == nil {
		return nil, fmt.Errorf("%w: layout is required", ErrInvalidParameter)
	}
	if err := o.Layout.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidParameter, err)
	}
	if o.Policy.MaxSpeed <= 0 {
		return nil, fmt.Errorf("%w: max speed must be positive, got %v", ErrInvalidParameter, o.Policy.MaxSpeed)
	}
	// Snapping handles one stop per step, so no step may span a whole segment.
	if top, seg := o.Policy.TopSpeed(), o.Layout.MinSegment(); top > seg {
		return nil, fmt.Errorf("%w: speed %v exceeds stop spacing %v", ErrInvalidParameter, top, seg)
	}
	if o.Headway < 0 {
		return nil, fmt.Errorf("%w: negative headway %v", ErrInvalidParameter, o.Headway)
	}
	if o.Headway == 0 {
		o.Headway = DefaultHeadway
	}
	if o.DwellSteps < 0 {
		return nil, fmt.Errorf("%w: negative dwell %d", ErrInvalidParameter, o.DwellSteps)
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}

	t := &Track{
		layout:    o.Layout,
		policy:    o.Policy,
		headway:   o.Headway,
		dwell:     o.DwellSteps,
		verbose:   o.Verbose,
		log:       o.Logger,
		names:     o.Layout.TrainNames(),
		stops:     o.Layout.StopPositions(),
		positions: make([]float64, len(o.Layout.Trains)),
		arrivedAt: make([]opt.Val[int], len(o.Layout.Trains)),
	}
	t.history = history.New(t.names, t.stops)
	for i, tr := range o.Layout.Trains {
		t.positions[i] = tr.Start
		if err := t.history.Add(tr.Name, tr.Start); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// Step advances every train once. Spacing is always judged against the
// positions held at the start of the step, so the order in which trains
// are evaluated does not change the outcome.
func (t *Track) Step() ([]Event, error) {
	prev := slices.Clone(t.positions)
	events := make([]Event, 0, len(t.names))
	for i, name := range t.names {
		ev, err := t.advance(i, prev)
		if err != nil {
			return nil, fmt.Errorf("step %d train %s: %w", t.time, name, err)
		}
		events = append(events, ev)
	}
	// Nothing is recorded until every train has a valid move.
	for i, ev := range events {
		if ev.To != ev.From {
			t.arrivedAt[i] = opt.Val[int]{}
			if ev.Outcome == Arrived {
				t.arrivedAt[i] = opt.From(t.time + 1)
			}
		}
		t.positions[i] = ev.To
		if err := t.history.Add(ev.Train, ev.To); err != nil {
			return nil, err
		}
		t.count(ev)
		t.narrate(ev)
	}
	t.time++
	t.stats.Steps++
	return events, nil
}

// Run advances the track n times.
func (t *Track) Run(n int) error {
	for i := 0; i < n; i++ {
		if _, err := t.Step(); err != nil {
			return err
		}
	}
	return nil
}

func (t *Track) advance(i int, prev []float64) (Event, error) {
	old := prev[i]
	ev := Event{Train: t.names[i], From: old, To: old}
	proposed := t.policy.NextPosition(old, t.layout.Length)

	if blocker, ok := t.blocker(i, old, proposed, prev); ok {
		ev.Outcome = Blocked
		ev.Blocker = blocker
		return ev, nil
	}

	_, atStop := t.layout.StopAt(old)
	if atStop && t.holds(i) {
		ev.Outcome = Held
		return ev, nil
	}
	stop, n := ring.Crossed(t.stops, old, proposed, t.layout.Length)
	if n > 1 || (n == 1 && atStop && stop != proposed) {
		return ev, fmt.Errorf("%w: %v -> %v passes %d stops", ErrStopSkipped, old, proposed, n)
	}
	ev.To = proposed
	if n == 1 {
		ev.To = stop
	}

	ev.Outcome = Moved
	if ev.To != old {
		if s, ok := t.layout.StopAt(ev.To); ok {
			ev.Outcome = Arrived
			ev.Stop = s.Name
		}
	}
	return ev, nil
}

// blocker finds the nearest train that keeps the train at old from moving
// to proposed: one lying within the headway ahead of proposed, or one the
// move would reach or pass. Ties go to the train listed first.
func (t *Track) blocker(i int, old, proposed float64, prev []float64) (string, bool) {
	length := t.layout.Length
	arc := ring.ForwardDistance(old, proposed, length)
	best := -1
	bestDist := 0.0
	for j, pos := range prev {
		if j == i {
			continue
		}
		ahead := ring.ForwardDistance(old, pos, length)
		d := ring.ForwardDistance(proposed, pos, length)
		tooClose := d > 0 && d <= t.headway
		passed := ahead > 0 && ahead <= arc
		if (tooClose || passed) && (best < 0 || ahead < bestDist) {
			best, bestDist = j, ahead
		}
	}
	if best < 0 {
		return "", false
	}
	return t.names[best], true
}

func (t *Track) holds(i int) bool {
	if t.dwell == 0 {
		return false
	}
	at, ok := t.arrivedAt[i].Get()
	return ok && t.time-at < t.dwell
}

func (t *Track) count(ev Event) {
	switch ev.Outcome {
	case Blocked:
		t.stats.Blocked++
	case Held:
		t.stats.Held++
	case Arrived:
		t.stats.Arrivals++
		t.stats.Moves++
	case Moved:
		t.stats.Moves++
	}
}

func (t *Track) narrate(ev Event) {
	if t.verbose > 0 {
		switch ev.Outcome {
		case Blocked:
			t.log.Info("train stuck", zap.String("train", ev.Train), zap.String("behind", ev.Blocker), zap.Int("time", t.time))
		case Arrived:
			t.log.Info("train arrived", zap.String("train", ev.Train), zap.String("stop", ev.Stop), zap.Int("time", t.time))
		}
	}
	if t.verbose > 1 {
		t.log.Info("train position", zap.String("train", ev.Train), zap.Float64("location", ev.To), zap.Stringer("outcome", ev.Outcome))
	}
}

// Name describes the track variant and its parameters.
func (t *Track) Name() string { return t.policy.Describe() }

// Kind is the speed policy variant driving the trains.
func (t *Track) Kind() speed.Kind { return t.policy.Kind }

// Trains returns the roster.
func (t *Track) Trains() []string { return slices.Clone(t.names) }

// Stops returns the stop layout as (name, location) pairs.
func (t *Track) Stops() []layout.Stop { return slices.Clone(t.layout.Stops) }

// Layout returns the layout the track was built from.
func (t *Track) Layout() *layout.Layout { return t.layout }

// Headway is the spacing in effect, after defaulting.
func (t *Track) Headway() float64 { return t.headway }

// DwellSteps is the number of steps a train is held at a stop.
func (t *Track) DwellSteps() int { return t.dwell }

// Position returns a train's current location.
func (t *Track) Position(train string) (float64, bool) {
	i := slices.Index(t.names, train)
	if i < 0 {
		return 0, false
	}
	return t.positions[i], true
}

// History is the log recorded so far. It stays valid after the track is discarded.
func (t *Track) History() *history.Log { return t.history }

// Time is the number of completed steps.
func (t *Track) Time() int { return t.time }

// Stats returns the outcome counters.
func (t *Track) Stats() Stats { return t.stats }

func (t *Track) String() string {
	var b strings.Builder
	for i, name := range t.names {
		fmt.Fprintf(&b, "Train %s is at location %v\n", name, t.positions[i])
	}
	return b.String()
}
