// Package history records where every train was at every step of one run.
package history

import (
	"fmt"
	"slices"
	"strings"
)

// Log is the per-train position history of one simulation run.
// Entry i of a train's sequence is its position after step i; entry 0 is
// the starting position.
type Log struct {
	trains    []string
	stops     []float64
	positions map[string][]float64
}

// New creates an empty log for the given roster and stop coordinates.
func New(trains []string, stops []float64) *Log {
	l := &Log{
		trains:    slices.Clone(trains),
		stops:     slices.Clone(stops),
		positions: make(map[string][]float64, len(trains)),
	}
	for _, t := range trains {
		l.positions[t] = nil
	}
	return l
}

// Add appends pos to train's sequence.
func (l *Log) Add(train string, pos float64) error {
	seq, ok := l.positions[train]
	if !ok {
		return fmt.Errorf("unknown train %q", train)
	}
	l.positions[train] = append(seq, pos)
	return nil
}

// TrainPositions returns a copy of train's sequence.
func (l *Log) TrainPositions(train string) []float64 {
	return slices.Clone(l.positions[train])
}

// Trains returns a copy of the roster.
func (l *Log) Trains() []string { return slices.Clone(l.trains) }

// StopPositions returns a copy of the stop coordinates.
func (l *Log) StopPositions() []float64 { return slices.Clone(l.stops) }

// Len is the number of entries recorded for train.
func (l *Log) Len(train string) int { return len(l.positions[train]) }

// Steps is the number of completed steps, i.e. one less than the number of
// entries per train. It is -1 for a log without any entries.
func (l *Log) Steps() int {
	if len(l.trains) == 0 {
		return -1
	}
	return len(l.positions[l.trains[0]]) - 1
}

// Validate checks that every train has the same number of entries.
func (l *Log) Validate() error {
	want := l.Steps() + 1
	for _, t := range l.trains {
		if n := len(l.positions[t]); n != want {
			return fmt.Errorf("train %q has %d entries, want %d", t, n, want)
		}
	}
	return nil
}

// At returns train's position at step i.
func (l *Log) At(train string, i int) (float64, bool) {
	seq := l.positions[train]
	if i < 0 || i >= len(seq) {
		return 0, false
	}
	return seq[i], true
}

func (l *Log) String() string {
	var b strings.Builder
	for _, t := range l.trains {
		fmt.Fprintf(&b, "%s: %v\n", t, l.positions[t])
	}
	return b.String()
}
