// Package runner executes independent repetitions of a track simulation.
package runner

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"ring-simulator/internal/history"
	mmetrics "ring-simulator/internal/metrics"
	"ring-simulator/internal/track"
)

var ErrInvalidRunCount = errors.New("invalid run count")

// Factory builds the fresh Track for one run. run is the zero based index
// of the repetition; stochastic policies derive their random stream from it.
type Factory func(run int) (*track.Track, error)

// Result holds the logs of a batch in run order, plus one of the tracks
// used so callers can read its name and stop layout.
type Result struct {
	Logs  []*history.Log
	Track *track.Track
	Stats []track.Stats
	Seed  int64
}

type settings struct {
	workers int
	metrics *mmetrics.Collector
	logger  *zap.Logger
}

type Option func(*settings)

// WithWorkers bounds how many runs execute at the same time. n <= 0 uses GOMAXPROCS.
func WithWorkers(n int) Option { return func(s *settings) { s.workers = n } }

func WithMetrics(c *mmetrics.Collector) Option { return func(s *settings) { s.metrics = c } }

func WithLogger(l *zap.Logger) Option { return func(s *settings) { s.logger = l } }

func newSettings(opts []Option) *settings {
	s := &settings{}
	for _, o := range opts {
		o(s)
	}
	if s.workers <= 0 {
		s.workers = runtime.GOMAXPROCS(0)
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	return s
}

// Run builds numSims tracks with factory and advances each numSteps times.
// Runs share no state and may execute concurrently; logs are returned in
// run order regardless. The first failing run cancels the batch.
func Run(ctx context.Context, factory Factory, numSims, numSteps int, opts ...Option) (*Result, error) {
	if numSims <= 0 {
		return nil, fmt.Errorf("%w: number of simulations must be positive, got %d", ErrInvalidRunCount, numSims)
	}
	if numSteps <= 0 {
		return nil, fmt.Errorf("%w: number of steps must be positive, got %d", ErrInvalidRunCount, numSteps)
	}
	s := newSettings(opts)

	tracks := make([]*track.Track, numSims)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i := 0; i < numSims; i++ {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			tr, err := s.runOne(factory, i, numSteps)
			if err != nil {
				return fmt.Errorf("run %d: %w", i, err)
			}
			tracks[i] = tr
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	res := &Result{
		Logs:  make([]*history.Log, numSims),
		Stats: make([]track.Stats, numSims),
		Track: tracks[numSims-1],
	}
	for i, tr := range tracks {
		res.Logs[i] = tr.History()
		res.Stats[i] = tr.Stats()
	}
	return res, nil
}

func (s *settings) runOne(factory Factory, run, numSteps int) (*track.Track, error) {
	tr, err := factory(run)
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.RunsStarted.Inc()
		s.metrics.ActiveRuns.Inc()
		defer s.metrics.ActiveRuns.Dec()
	}
	start := time.Now()
	err = tr.Run(numSteps)
	if s.metrics != nil {
		s.metrics.RunDuration.Observe(time.Since(start).Seconds())
		st := tr.Stats()
		s.metrics.Steps.Add(float64(st.Steps))
		s.metrics.TrainMoves.Add(float64(st.Moves))
		s.metrics.Arrivals.Add(float64(st.Arrivals))
		s.metrics.SpacingBlocks.Add(float64(st.Blocked))
		s.metrics.DwellHolds.Add(float64(st.Held))
		if err != nil {
			s.metrics.RunsFinished.WithLabelValues("error").Inc()
		} else {
			s.metrics.RunsFinished.WithLabelValues("ok").Inc()
		}
	}
	if err != nil {
		return nil, err
	}
	s.logger.Debug("run finished",
		zap.Int("run", run),
		zap.Int("steps", numSteps),
		zap.Duration("elapsed", time.Since(start)),
		zap.Int("arrivals", tr.Stats().Arrivals),
		zap.Int("blocked", tr.Stats().Blocked))
	return tr, nil
}
