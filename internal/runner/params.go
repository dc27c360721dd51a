package runner

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/aarondl/opt/opt"
	"go.uber.org/zap"

	"ring-simulator/internal/layout"
	"ring-simulator/internal/speed"
	"ring-simulator/internal/track"
)

// Params selects a track variant and the size of a batch.
type Params struct {
	Variant  speed.Kind
	NumSims  int
	NumSteps int
	MaxSpeed float64
	// SlowDownParam is sigma for the Gaussian variant and the slow zone
	// factor for the slow zone variant. It is absent for the constant variant.
	SlowDownParam opt.Val[float64]
	DwellSteps    int
	Headway       float64
	// Seed is the base seed; run i uses Seed+i. Zero picks a time based seed.
	Seed    int64
	Verbose int
	Layout  *layout.Layout
}

// Validate rejects parameters that can never produce a run.
func (p Params) Validate() error {
	if p.NumSims <= 0 {
		return fmt.Errorf("%w: number of simulations must be positive, got %d", ErrInvalidRunCount, p.NumSims)
	}
	if p.NumSteps <= 0 {
		return fmt.Errorf("%w: number of steps must be positive, got %d", ErrInvalidRunCount, p.NumSteps)
	}
	if p.MaxSpeed <= 0 {
		return fmt.Errorf("%w: max speed must be positive, got %v", track.ErrInvalidParameter, p.MaxSpeed)
	}
	param, set := p.SlowDownParam.Get()
	switch p.Variant {
	case speed.Gaussian:
		if !set || param < 0 {
			return fmt.Errorf("%w: gaussian track needs a standard deviation >= 0", track.ErrInvalidParameter)
		}
	case speed.SlowZone:
		if !set || param <= 0 {
			return fmt.Errorf("%w: slow zone track needs a factor > 0", track.ErrInvalidParameter)
		}
	}
	return nil
}

// Factory returns a track factory for p. Construction errors surface here,
// before any run starts, by building the track for run 0 once.
func (p Params) Factory(seed int64, logger *zap.Logger) (Factory, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	l := p.Layout
	if l == nil {
		l = layout.Default()
	}
	f := func(run int) (*track.Track, error) {
		policy, err := p.policy(l, seed+int64(run))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", track.ErrInvalidParameter, err)
		}
		return track.New(track.Options{
			Layout:     l,
			Policy:     policy,
			Headway:    p.Headway,
			DwellSteps: p.DwellSteps,
			Verbose:    p.Verbose,
			Logger:     logger.With(zap.Int("run", run)),
		})
	}
	if _, err := f(0); err != nil {
		return nil, err
	}
	return f, nil
}

func (p Params) policy(l *layout.Layout, seed int64) (speed.Policy, error) {
	param, _ := p.SlowDownParam.Get()
	switch p.Variant {
	case speed.Gaussian:
		return speed.NewGaussian(p.MaxSpeed, param, rand.New(rand.NewSource(seed)))
	case speed.SlowZone:
		return speed.NewSlowZone(p.MaxSpeed, param, l.SlowZone)
	default:
		return speed.NewConstant(p.MaxSpeed)
	}
}

// Simulate validates p, then runs the batch it describes.
func Simulate(ctx context.Context, p Params, opts ...Option) (*Result, error) {
	s := newSettings(opts)
	seed := p.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	if _, set := p.SlowDownParam.Get(); set && p.Variant == speed.Constant {
		s.logger.Warn("slow down parameter ignored for constant speed track")
	}
	factory, err := p.Factory(seed, s.logger)
	if err != nil {
		return nil, err
	}
	s.logger.Info("starting simulations",
		zap.Stringer("track", p.Variant),
		zap.Int("simulations", p.NumSims),
		zap.Int("steps", p.NumSteps),
		zap.Float64("maxSpeed", p.MaxSpeed),
		zap.Int64("seed", seed),
		zap.Int("workers", s.workers))
	res, err := Run(ctx, factory, p.NumSims, p.NumSteps, opts...)
	if err != nil {
		return nil, err
	}
	res.Seed = seed
	return res, nil
}
