package cli

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/aarondl/opt/opt"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"ring-simulator/internal/analysis"
	"ring-simulator/internal/db"
	"ring-simulator/internal/layout"
	"ring-simulator/internal/metrics"
	"ring-simulator/internal/publisher"
	"ring-simulator/internal/runner"
	"ring-simulator/internal/sim"
	"ring-simulator/internal/speed"
	"ring-simulator/internal/track"
)

type runFlags struct {
	track         string
	numSims       int
	numSteps      int
	maxSpeed      float64
	slowDownParam float64
	dwellSteps    int
	headway       float64
	seed          int64
	workers       int
	verbose       int
	layoutFile    string
	metricsAddr   string
	natsURL       string
	natsPrefix    string
	logSubjects   bool
	replay        time.Duration
	store         bool
	slowDownSet   bool
}

func (a *app) newRunCmd() *cobra.Command {
	f := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "runs a batch of simulations and reports inter-arrival statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			f.slowDownSet = a.cfg.SlowDownParam != nil || cmd.Flags().Changed("slow-down-param")
			return a.run(ctx, cmd, f)
		},
	}
	cfg := a.cfg
	fs := cmd.Flags()
	fs.StringVarP(&f.track, "track", "t", cfg.Track, "track variant (perfect, gaussian, slowzone)")
	fs.IntVarP(&f.numSims, "num-sims", "n", cfg.NumSims, "number of independent runs")
	fs.IntVarP(&f.numSteps, "num-steps", "s", cfg.NumSteps, "steps per run")
	fs.Float64Var(&f.maxSpeed, "max-speed", cfg.MaxSpeed, "maximum distance a train covers per step")
	var param float64
	if cfg.SlowDownParam != nil {
		param = *cfg.SlowDownParam
	}
	fs.Float64Var(&f.slowDownParam, "slow-down-param", param,
		"standard deviation for gaussian, speed factor for slowzone")
	fs.IntVar(&f.dwellSteps, "dwell-steps", cfg.DwellSteps, "steps a train waits at a stop (0 disables dwell)")
	fs.Float64Var(&f.headway, "headway", track.DefaultHeadway, "minimum spacing to the train ahead")
	fs.Int64Var(&f.seed, "seed", cfg.Seed, "base random seed, 0 picks one from the clock")
	fs.IntVarP(&f.workers, "workers", "w", cfg.Workers, "runs executed concurrently")
	fs.IntVarP(&f.verbose, "verbose", "v", cfg.Verbose, "narration level (1 arrivals and blocks, 2 every position)")
	fs.StringVar(&f.layoutFile, "layout", cfg.LayoutFile, "yaml layout file (default is the built-in line)")
	fs.StringVar(&f.metricsAddr, "metrics-addr", cfg.MetricsAddr, "listen address for /metrics, empty disables")
	fs.StringVar(&f.natsURL, "nats-url", cfg.NATSURL, "NATS server to stream positions to, empty disables")
	fs.StringVar(&f.natsPrefix, "nats-prefix", cfg.NATSSubjectPrefix, "NATS subject prefix")
	fs.BoolVar(&f.logSubjects, "log-nats-subjects", cfg.LogNATSSubjects, "log every published subject")
	fs.DurationVar(&f.replay, "replay-interval", cfg.ReplayInterval, "publish one step per interval instead of all at once")
	fs.BoolVar(&f.store, "store", false, "save the batch to the result database")
	return cmd
}

func (a *app) params(f *runFlags) (runner.Params, error) {
	kind, err := speed.ParseKind(f.track)
	if err != nil {
		return runner.Params{}, fmt.Errorf("%w: %v", track.ErrInvalidParameter, err)
	}
	l := layout.Default()
	if f.layoutFile != "" {
		if l, err = layout.Load(f.layoutFile); err != nil {
			return runner.Params{}, err
		}
	}
	p := runner.Params{
		Variant:    kind,
		NumSims:    f.numSims,
		NumSteps:   f.numSteps,
		MaxSpeed:   f.maxSpeed,
		DwellSteps: f.dwellSteps,
		Headway:    f.headway,
		Seed:       f.seed,
		Verbose:    f.verbose,
		Layout:     l,
	}
	if f.slowDownSet {
		p.SlowDownParam = opt.From(f.slowDownParam)
	}
	return p, nil
}

func (a *app) run(ctx context.Context, cmd *cobra.Command, f *runFlags) error {
	p, err := a.params(f)
	if err != nil {
		return err
	}
	dsn, _ := cmd.Flags().GetString("db")
	if f.store && dsn == "" {
		return errors.New("--store needs a database, set --db or DATABASE_URL")
	}

	var mcol *metrics.Collector
	if f.metricsAddr != "" {
		mcol = metrics.NewCollector(f.maxSpeed, f.numSims, f.numSteps, f.workers)
		srv := mcol.Serve(f.metricsAddr, a.logger)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	res, err := runner.Simulate(ctx, p,
		runner.WithWorkers(f.workers),
		runner.WithMetrics(mcol),
		runner.WithLogger(a.logger))
	if err != nil {
		return err
	}

	batchID := uuid.New()
	overall := analysis.Analyze(res.Logs)
	report(cmd.OutOrStdout(), reportHeader{
		BatchID: batchID.String(),
		Name:    res.Track.Name(),
		Seed:    res.Seed,
		NumSims: p.NumSims,
	}, res.Track.Stops(), overall, analysis.ByStop(res.Logs))
	a.logger.Info("batch finished",
		zap.String("batch", batchID.String()),
		zap.String("track", res.Track.Name()),
		zap.Float64("mean", overall.Mean),
		zap.Float64("std", overall.Std),
		zap.Int("samples", len(overall.Samples)))

	if f.natsURL != "" {
		if err := a.publish(ctx, f, mcol, batchID, p, res); err != nil {
			return err
		}
	}
	if f.store {
		b := &db.Batch{
			ID:            batchID,
			Track:         p.Variant.String(),
			Name:          res.Track.Name(),
			NumSims:       p.NumSims,
			NumSteps:      p.NumSteps,
			MaxSpeed:      p.MaxSpeed,
			SlowDownParam: p.SlowDownParam,
			DwellSteps:    p.DwellSteps,
			Headway:       res.Track.Headway(),
			Seed:          res.Seed,
			Length:        res.Track.Layout().Length,
			Stops:         res.Track.Stops(),
			Logs:          res.Logs,
			Mean:          overall.Mean,
			Std:           overall.Std,
			NumSamples:    len(overall.Samples),
		}
		if err := a.store(ctx, dsn, b); err != nil {
			if mcol != nil {
				mcol.StoreErrors.Inc()
			}
			return err
		}
		if mcol != nil {
			mcol.BatchesStored.Inc()
		}
		a.logger.Info("batch stored", zap.String("batch", batchID.String()))
	}
	return nil
}

func (a *app) publish(ctx context.Context, f *runFlags, mcol *metrics.Collector, batchID uuid.UUID, p runner.Params, res *runner.Result) error {
	pub, err := publisher.NewNATSPublisher(f.natsURL, f.natsPrefix, f.logSubjects, wrapPublisherMetrics(mcol), a.logger)
	if err != nil {
		return fmt.Errorf("nats: %w", err)
	}
	defer pub.Close()

	if f.replay > 0 {
		r := sim.NewReplayer(pub, f.replay, mcol, a.logger)
		r.Start(ctx, batchID.String(), p.Variant.String(), res.Track.Layout(), res.Logs)
		a.logger.Info("replaying runs", zap.Int("runs", len(res.Logs)), zap.Duration("interval", f.replay))
		r.Wait()
		return ctx.Err()
	}
	for run, l := range res.Logs {
		if err := pub.PublishRun(batchID.String(), run, p.Variant.String(), res.Track.Layout(), l); err != nil {
			return err
		}
	}
	a.logger.Info("positions published", zap.Int("runs", len(res.Logs)), zap.String("prefix", f.natsPrefix))
	return nil
}

func (a *app) store(ctx context.Context, dsn string, b *db.Batch) error {
	if err := db.Migrate(dsn); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	sqlDB, err := db.Connect(ctx, dsn)
	if err != nil {
		return err
	}
	defer sqlDB.Close()
	return db.SaveBatch(ctx, sqlDB, b)
}
