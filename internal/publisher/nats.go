package publisher

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"ring-simulator/internal/history"
	"ring-simulator/internal/layout"
)

type NATSPublisher struct {
	nc          *nats.Conn
	prefix      string
	logSubjects bool
	metrics     PublisherMetrics
	log         *zap.Logger
}

type PublisherMetrics interface {
	NATSPublishedInc()
	NATSPublishErrInc()
	PublishObserve(d time.Duration)
	NATSSetConnected(connected bool)
}

func NewNATSPublisher(url, prefix string, logSubjects bool, m PublisherMetrics, logger *zap.Logger) (*NATSPublisher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	nc, err := nats.Connect(url,
		nats.Name("ring-simulator"),
		nats.DisconnectHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			logger.Warn("nats disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(true)
			}
			logger.Info("nats reconnected")
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			logger.Info("nats closed")
		}),
	)
	if err != nil {
		return nil, err
	}
	if m != nil {
		m.NATSSetConnected(true)
	}
	return &NATSPublisher{nc: nc, prefix: prefix, logSubjects: logSubjects, metrics: m, log: logger}, nil
}

func (p *NATSPublisher) Close() {
	if p.nc != nil {
		_ = p.nc.Drain()
		p.nc.Close()
	}
}

// PositionMessage is one train's recorded position at one step of one run.
type PositionMessage struct {
	BatchID  string  `json:"batchId"`
	Run      int     `json:"run"`
	Track    string  `json:"track"`
	Train    string  `json:"train"`
	Step     int     `json:"step"`
	Position float64 `json:"position"`
	Progress float64 `json:"progress"` // position / track length
	Stop     string  `json:"stop,omitempty"`
}

// RunMessages expands a recorded log into messages ordered by step, then
// by roster order within a step.
func RunMessages(batchID string, run int, trackName string, l *layout.Layout, log *history.Log) []PositionMessage {
	trains := log.Trains()
	seqs := make([][]float64, len(trains))
	for i, t := range trains {
		seqs[i] = log.TrainPositions(t)
	}
	steps := log.Steps() + 1
	msgs := make([]PositionMessage, 0, steps*len(trains))
	for step := 0; step < steps; step++ {
		for i, t := range trains {
			pos := seqs[i][step]
			m := PositionMessage{
				BatchID:  batchID,
				Run:      run,
				Track:    trackName,
				Train:    t,
				Step:     step,
				Position: pos,
				Progress: pos / l.Length,
			}
			if s, ok := l.StopAt(pos); ok {
				m.Stop = s.Name
			}
			msgs = append(msgs, m)
		}
	}
	return msgs
}

// PublishRun streams every recorded position of one run. Publishing stops
// at the first error.
func (p *NATSPublisher) PublishRun(batchID string, run int, trackName string, l *layout.Layout, log *history.Log) error {
	for _, m := range RunMessages(batchID, run, trackName, l, log) {
		if err := p.PublishPosition(m); err != nil {
			return fmt.Errorf("publish run %d step %d train %s: %w", run, m.Step, m.Train, err)
		}
	}
	return p.nc.Flush()
}

func (p *NATSPublisher) PublishPosition(msg PositionMessage) error {
	subject := Subject(p.prefix, msg.Track, msg.Train)
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if p.logSubjects {
		p.log.Debug("nats publish", zap.String("subject", subject))
	}
	start := time.Now()
	err = p.nc.Publish(subject, b)
	if p.metrics != nil {
		p.metrics.PublishObserve(time.Since(start))
		if err != nil {
			p.metrics.NATSPublishErrInc()
		} else {
			p.metrics.NATSPublishedInc()
		}
	}
	return err
}

// Subject builds "<prefix>.<track>.<train>" with each token sanitised.
func Subject(prefix, trackName, train string) string {
	return fmt.Sprintf("%s.%s.%s", subjectToken(prefix), subjectToken(trackName), subjectToken(train))
}

func subjectToken(s string) string {
	s = strings.TrimSpace(s)
	// NATS token cannot contain spaces, '>', '*', or trailing '.'
	repl := strings.NewReplacer(" ", "_", ".", "_", ">", "_", "*", "_", "/", "_", "\t", "_", "\n", "_")
	s = repl.Replace(s)
	if s == "" {
		s = "_"
	}
	return s
}
