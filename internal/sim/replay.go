// Package sim replays recorded runs as a live position feed, one step per tick.
package sim

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"ring-simulator/internal/history"
	"ring-simulator/internal/layout"
	mmetrics "ring-simulator/internal/metrics"
	"ring-simulator/internal/publisher"
)

// Sink receives replayed positions. *publisher.NATSPublisher satisfies it.
type Sink interface {
	PublishPosition(msg publisher.PositionMessage) error
}

// Replayer publishes the steps of each run at a fixed interval so
// subscribers see trains move as if the simulation were running live.
type Replayer struct {
	sink     Sink
	interval time.Duration
	metrics  *mmetrics.Collector
	log      *zap.Logger

	mu      sync.Mutex
	running map[int]context.CancelFunc // run -> cancel
	wg      sync.WaitGroup
}

func NewReplayer(sink Sink, interval time.Duration, metrics *mmetrics.Collector, logger *zap.Logger) *Replayer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Replayer{
		sink:     sink,
		interval: interval,
		metrics:  metrics,
		log:      logger,
		running:  make(map[int]context.CancelFunc),
	}
}

// Start launches one replay goroutine per log. Runs already being replayed are skipped.
func (r *Replayer) Start(ctx context.Context, batchID, trackName string, l *layout.Layout, logs []*history.Log) {
	for run, log := range logs {
		r.startRun(ctx, run, publisher.RunMessages(batchID, run, trackName, l, log))
	}
}

func (r *Replayer) startRun(parent context.Context, run int, msgs []publisher.PositionMessage) {
	r.mu.Lock()
	if _, exists := r.running[run]; exists {
		r.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(parent)
	r.running[run] = cancel
	r.wg.Add(1)
	if r.metrics != nil {
		r.metrics.ActiveReplays.Set(float64(len(r.running)))
	}
	r.mu.Unlock()

	go func() {
		defer r.wg.Done()
		defer cancel()
		if err := r.replay(ctx, run, msgs); err != nil {
			r.log.Info("replay stopped", zap.Int("run", run), zap.Error(err))
		}
		r.mu.Lock()
		delete(r.running, run)
		if r.metrics != nil {
			r.metrics.ReplaysFinished.Inc()
			r.metrics.ActiveReplays.Set(float64(len(r.running)))
		}
		r.mu.Unlock()
	}()
}

// replay publishes msgs grouped by step, one step per tick. Publish
// errors are logged and do not end the replay.
func (r *Replayer) replay(ctx context.Context, run int, msgs []publisher.PositionMessage) error {
	tick := time.NewTicker(r.interval)
	defer tick.Stop()

	next := 0
	for next < len(msgs) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick.C:
		}
		tickStart := time.Now()
		step := msgs[next].Step
		for ; next < len(msgs) && msgs[next].Step == step; next++ {
			if err := r.sink.PublishPosition(msgs[next]); err != nil {
				r.log.Warn("publish error", zap.Int("run", run), zap.String("train", msgs[next].Train), zap.Error(err))
			}
		}
		if r.metrics != nil {
			r.metrics.TickDuration.Observe(time.Since(tickStart).Seconds())
		}
	}
	r.log.Debug("replay finished", zap.Int("run", run), zap.Int("messages", len(msgs)))
	return nil
}

// Running is the number of runs still being replayed.
func (r *Replayer) Running() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.running)
}

// Wait blocks until every replay has finished.
func (r *Replayer) Wait() { r.wg.Wait() }

// Stop cancels all replays and waits for them to return.
func (r *Replayer) Stop() {
	r.mu.Lock()
	for _, cancel := range r.running {
		cancel()
	}
	r.mu.Unlock()
	r.wg.Wait()
}
