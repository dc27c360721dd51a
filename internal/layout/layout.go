package layout

import (
	"errors"
	"fmt"
	"os"
	"slices"

	"github.com/samber/lo"
	"gopkg.in/yaml.v3"

	"ring-simulator/internal/ring"
)

// Stop is a named point on the loop.
type Stop struct {
	Name     string  `yaml:"name"`
	Position float64 `yaml:"position"`
}

// Train is a named vehicle and the position it occupies at step 0.
type Train struct {
	Name  string  `yaml:"name"`
	Start float64 `yaml:"start"`
}

// Zone is the half-open interval [Start, End) where the slow-zone policy applies.
type Zone struct {
	Start float64
	End   float64
}

// Contains reports whether pos lies inside the zone.
func (z Zone) Contains(pos float64) bool { return pos >= z.Start && pos < z.End }

// Layout describes a single-track loop: its length, the stops placed on it,
// the trains running on it and the slow zone segment.
type Layout struct {
	Name         string
	Length       float64
	StopDistance float64
	Stops        []Stop // sorted by position
	Trains       []Train
	SlowZone     Zone
}

var (
	defaultStops  = []string{"Alewife", "Davis", "Porter", "Central", "Kendall-MIT", "Charles-MGH", "Park"}
	defaultTrains = []string{"Thomas", "Gordon", "Emily", "James", "Edward", "Percy", "Henry"}
)

// Default returns the built-in 14 mile line with a stop every 2 miles,
// one train parked at each stop and the slow zone between Charles-MGH and Park.
func Default() *Layout {
	l, err := build(file{
		Name:          "Red Line",
		Length:        14,
		StopDistance:  2,
		StopNames:     defaultStops,
		TrainNames:    defaultTrains,
		SlowZoneStart: "Charles-MGH",
	})
	if err != nil {
		panic(err) // built-in values are static
	}
	return l
}

// file is the YAML representation of a layout.
type file struct {
	Name          string   `yaml:"name"`
	Length        float64  `yaml:"length"`
	StopDistance  float64  `yaml:"stopDistance"`
	StopNames     []string `yaml:"stops"`
	TrainNames    []string `yaml:"trains"`
	TrainStarts   []Train  `yaml:"trainStarts"`
	SlowZoneStart string   `yaml:"slowZoneStart"`
}

// Load reads a layout from a YAML file. Stops are spaced evenly by
// stopDistance starting at 0. Trains listed under "trains" start one per
// stop; "trainStarts" places them explicitly instead.
func Load(path string) (*Layout, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(b)
}

// Parse decodes a YAML layout document.
func Parse(b []byte) (*Layout, error) {
	var f file
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse layout: %w", err)
	}
	return build(f)
}

func build(f file) (*Layout, error) {
	if f.Length <= 0 {
		return nil, fmt.Errorf("invalid layout length: %v", f.Length)
	}
	if f.StopDistance <= 0 || f.StopDistance > f.Length {
		return nil, fmt.Errorf("invalid stop distance: %v", f.StopDistance)
	}
	n := int(f.Length / f.StopDistance)
	if len(f.StopNames) < n {
		return nil, fmt.Errorf("layout needs %d stop names, got %d", n, len(f.StopNames))
	}
	l := &Layout{
		Name:         f.Name,
		Length:       f.Length,
		StopDistance: f.StopDistance,
	}
	for i := 0; i < n; i++ {
		l.Stops = append(l.Stops, Stop{Name: f.StopNames[i], Position: ring.Round(float64(i) * f.StopDistance)})
	}
	switch {
	case len(f.TrainStarts) > 0:
		for _, t := range f.TrainStarts {
			l.Trains = append(l.Trains, Train{Name: t.Name, Start: ring.Wrap(t.Start, f.Length)})
		}
	default:
		if len(f.TrainNames) > n {
			return nil, fmt.Errorf("%d trains do not fit on %d stops", len(f.TrainNames), n)
		}
		for i, name := range f.TrainNames {
			l.Trains = append(l.Trains, Train{Name: name, Start: l.Stops[i].Position})
		}
	}
	if f.SlowZoneStart != "" {
		idx := slices.IndexFunc(l.Stops, func(s Stop) bool { return s.Name == f.SlowZoneStart })
		if idx < 0 {
			return nil, fmt.Errorf("unknown slow zone stop %q", f.SlowZoneStart)
		}
		l.SlowZone = l.segment(idx)
	} else if len(l.Stops) > 1 {
		l.SlowZone = l.segment(len(l.Stops) - 2)
	}
	if err := l.Validate(); err != nil {
		return nil, err
	}
	return l, nil
}

// segment returns the zone from stop i to the following stop.
func (l *Layout) segment(i int) Zone {
	start := l.Stops[i].Position
	end := l.Length
	if i+1 < len(l.Stops) {
		end = l.Stops[i+1].Position
	}
	return Zone{Start: start, End: end}
}

// Validate checks the invariants the track relies on.
func (l *Layout) Validate() error {
	if l.Length <= 0 {
		return fmt.Errorf("invalid layout length: %v", l.Length)
	}
	if len(l.Stops) == 0 {
		return errors.New("layout has no stops")
	}
	for i, s := range l.Stops {
		if s.Position < 0 || s.Position >= l.Length {
			return fmt.Errorf("stop %q at %v outside [0, %v)", s.Name, s.Position, l.Length)
		}
		if i > 0 && s.Position <= l.Stops[i-1].Position {
			return fmt.Errorf("stops not strictly increasing at %q", s.Name)
		}
	}
	if len(l.Trains) == 0 {
		return errors.New("layout has no trains")
	}
	seen := make(map[string]struct{}, len(l.Trains))
	occupied := make(map[float64]string, len(l.Trains))
	for _, t := range l.Trains {
		if t.Name == "" {
			return errors.New("train without a name")
		}
		if _, dup := seen[t.Name]; dup {
			return fmt.Errorf("duplicate train %q", t.Name)
		}
		seen[t.Name] = struct{}{}
		if t.Start < 0 || t.Start >= l.Length {
			return fmt.Errorf("train %q starts at %v outside [0, %v)", t.Name, t.Start, l.Length)
		}
		at := ring.Round(t.Start)
		if other, ok := occupied[at]; ok {
			return fmt.Errorf("trains %q and %q both start at %v", other, t.Name, at)
		}
		occupied[at] = t.Name
	}
	return nil
}

// StopPositions returns the stop coordinates in ascending order.
func (l *Layout) StopPositions() []float64 {
	return lo.Map(l.Stops, func(s Stop, _ int) float64 { return s.Position })
}

// TrainNames returns the roster in layout order.
func (l *Layout) TrainNames() []string {
	return lo.Map(l.Trains, func(t Train, _ int) string { return t.Name })
}

// MinSegment is the shortest distance between two consecutive stops,
// including the segment that wraps from the last stop back to the first.
func (l *Layout) MinSegment() float64 {
	if len(l.Stops) == 1 {
		return l.Length
	}
	shortest := l.Length
	for i := range l.Stops {
		next := l.Stops[(i+1)%len(l.Stops)].Position
		if d := ring.ForwardDistance(l.Stops[i].Position, next, l.Length); d < shortest {
			shortest = d
		}
	}
	return shortest
}

// StopAt returns the stop located exactly at pos.
func (l *Layout) StopAt(pos float64) (Stop, bool) {
	for _, s := range l.Stops {
		if s.Position == pos {
			return s, true
		}
	}
	return Stop{}, false
}
