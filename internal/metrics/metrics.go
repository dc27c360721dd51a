package metrics

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type Collector struct {
	reg *prometheus.Registry

	ActiveRuns prometheus.Gauge

	RunsStarted  prometheus.Counter
	RunsFinished *prometheus.CounterVec // result label: ok|error

	Steps         prometheus.Counter
	TrainMoves    prometheus.Counter
	Arrivals      prometheus.Counter
	SpacingBlocks prometheus.Counter
	DwellHolds    prometheus.Counter

	NATSPublished   prometheus.Counter
	NATSPublishErrs prometheus.Counter
	NATSConnected   prometheus.Gauge

	BatchesStored prometheus.Counter
	StoreErrors   prometheus.Counter

	ActiveReplays   prometheus.Gauge
	ReplaysFinished prometheus.Counter

	RunDuration     prometheus.Histogram
	PublishDuration prometheus.Histogram
	TickDuration    prometheus.Histogram

	MaxSpeed prometheus.Gauge
	NumSims  prometheus.Gauge
	NumSteps prometheus.Gauge
	Workers  prometheus.Gauge
}

func NewCollector(maxSpeed float64, numSims, numSteps, workers int) *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		ActiveRuns: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ringsim_active_runs",
			Help: "Number of simulation runs currently executing.",
		}),
		RunsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ringsim_runs_started_total",
			Help: "Total simulation runs started.",
		}),
		RunsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ringsim_runs_finished_total",
			Help: "Total simulation runs finished.",
		}, []string{"result"}),
		Steps: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ringsim_steps_total",
			Help: "Total simulated steps across all runs.",
		}),
		TrainMoves: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ringsim_train_moves_total",
			Help: "Train moves, arrivals included.",
		}),
		Arrivals: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ringsim_stop_arrivals_total",
			Help: "Total arrivals of trains at stops.",
		}),
		SpacingBlocks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ringsim_spacing_blocks_total",
			Help: "Moves rejected by the spacing rule.",
		}),
		DwellHolds: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ringsim_dwell_holds_total",
			Help: "Steps a train spent held at a stop by the dwell rule.",
		}),
		NATSPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ringsim_nats_published_total",
			Help: "Total NATS messages published.",
		}),
		NATSPublishErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ringsim_nats_publish_errors_total",
			Help: "Total NATS publish errors.",
		}),
		NATSConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ringsim_nats_connected",
			Help: "1 if NATS connection is established, 0 otherwise.",
		}),
		BatchesStored: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ringsim_batches_stored_total",
			Help: "Total batches written to the database.",
		}),
		StoreErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ringsim_store_errors_total",
			Help: "Total failed batch writes.",
		}),
		ActiveReplays: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ringsim_active_replays",
			Help: "Number of runs currently being replayed over NATS.",
		}),
		ReplaysFinished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ringsim_replays_finished_total",
			Help: "Total replays that published every step or were stopped.",
		}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ringsim_run_duration_seconds",
			Help:    "Wall time of one simulation run.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 16),
		}),
		PublishDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ringsim_publish_duration_seconds",
			Help:    "Duration to marshal and publish a NATS message.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 15),
		}),
		TickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ringsim_replay_tick_duration_seconds",
			Help:    "Time spent publishing one replayed step.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 15),
		}),
		MaxSpeed: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ringsim_max_speed",
			Help: "Configured maximum train speed (distance units per step).",
		}),
		NumSims: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ringsim_num_simulations",
			Help: "Configured number of simulation runs.",
		}),
		NumSteps: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ringsim_num_steps",
			Help: "Configured number of steps per run.",
		}),
		Workers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ringsim_workers",
			Help: "Maximum number of runs executed concurrently.",
		}),
	}

	reg.MustRegister(
		c.ActiveRuns, c.RunsStarted, c.RunsFinished,
		c.Steps, c.TrainMoves, c.Arrivals, c.SpacingBlocks, c.DwellHolds,
		c.NATSPublished, c.NATSPublishErrs, c.NATSConnected,
		c.BatchesStored, c.StoreErrors,
		c.ActiveReplays, c.ReplaysFinished,
		c.RunDuration, c.PublishDuration, c.TickDuration,
		c.MaxSpeed, c.NumSims, c.NumSteps, c.Workers,
	)

	c.MaxSpeed.Set(maxSpeed)
	c.NumSims.Set(float64(numSims))
	c.NumSteps.Set(float64(numSteps))
	c.Workers.Set(float64(workers))

	return c
}

func (c *Collector) Registry() *prometheus.Registry { return c.reg }

func (c *Collector) Handler() http.Handler { return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{}) }

// Serve starts an HTTP server exposing /metrics on the given address.
func (c *Collector) Serve(addr string, logger *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", zap.Error(err))
		}
	}()
	logger.Info("metrics listening", zap.String("addr", addr))
	return srv
}
