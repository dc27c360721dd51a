package sim

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ring-simulator/internal/history"
	"ring-simulator/internal/layout"
	mmetrics "ring-simulator/internal/metrics"
	"ring-simulator/internal/publisher"
)

type recordingSink struct {
	mu   sync.Mutex
	msgs []publisher.PositionMessage
	fail bool
}

func (s *recordingSink) PublishPosition(msg publisher.PositionMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, msg)
	if s.fail {
		return errors.New("nats down")
	}
	return nil
}

func (s *recordingSink) byRun() map[int][]publisher.PositionMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[int][]publisher.PositionMessage{}
	for _, m := range s.msgs {
		out[m.Run] = append(out[m.Run], m)
	}
	return out
}

func recorded(t *testing.T, l *layout.Layout, steps int) *history.Log {
	t.Helper()
	log := history.New([]string{"Thomas", "Gordon"}, l.StopPositions())
	for k := 0; k <= steps; k++ {
		require.NoError(t, log.Add("Thomas", 0.5*float64(k)))
		require.NoError(t, log.Add("Gordon", 2+0.5*float64(k)))
	}
	return log
}

func TestReplayPublishesEveryStepInOrder(t *testing.T) {
	l := layout.Default()
	sink := &recordingSink{}
	c := mmetrics.NewCollector(0.5, 2, 3, 1)
	r := NewReplayer(sink, time.Millisecond, c, nil)

	r.Start(context.Background(), "b1", "perfect", l, []*history.Log{recorded(t, l, 3), recorded(t, l, 3)})
	r.Wait()

	runs := sink.byRun()
	require.Len(t, runs, 2)
	for run, msgs := range runs {
		require.Len(t, msgs, 8, "run %d", run)
		for i, m := range msgs {
			assert.Equal(t, i/2, m.Step, "run %d message %d", run, i)
		}
		assert.Equal(t, "Davis", msgs[1].Stop)
	}
	assert.Equal(t, 0, r.Running())
	assert.Equal(t, 2.0, testutil.ToFloat64(c.ReplaysFinished))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.ActiveReplays))
}

func TestReplayContinuesAfterPublishErrors(t *testing.T) {
	l := layout.Default()
	sink := &recordingSink{fail: true}
	r := NewReplayer(sink, time.Millisecond, nil, nil)

	r.Start(context.Background(), "b1", "perfect", l, []*history.Log{recorded(t, l, 2)})
	r.Wait()
	assert.Len(t, sink.byRun()[0], 6)
}

func TestReplayStop(t *testing.T) {
	l := layout.Default()
	sink := &recordingSink{}
	r := NewReplayer(sink, time.Hour, nil, nil)

	r.Start(context.Background(), "b1", "perfect", l, []*history.Log{recorded(t, l, 5)})
	assert.Equal(t, 1, r.Running())

	done := make(chan struct{})
	go func() {
		r.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not return")
	}
	assert.Equal(t, 0, r.Running())
	assert.Empty(t, sink.byRun())
}
