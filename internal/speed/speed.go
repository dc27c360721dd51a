// Package speed holds the policies deciding how far a train tries to move in one step.
package speed

import (
	"fmt"
	"math"
	"math/rand"

	"ring-simulator/internal/layout"
	"ring-simulator/internal/ring"
)

// Kind selects the policy variant.
type Kind int

const (
	Constant Kind = iota
	Gaussian
	SlowZone
)

func (k Kind) String() string {
	switch k {
	case Constant:
		return "perfect"
	case Gaussian:
		return "gaussian"
	case SlowZone:
		return "slowzone"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// ParseKind maps a track selector ("perfect", "gaussian", "slowzone") to a Kind.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "perfect", "constant":
		return Constant, nil
	case "gaussian":
		return Gaussian, nil
	case "slowzone", "slow-zone":
		return SlowZone, nil
	}
	return 0, fmt.Errorf("unknown track variant %q", s)
}

// Policy proposes the next position of a train. Exactly one variant is
// active, selected by Kind; the remaining fields are variant parameters.
type Policy struct {
	Kind     Kind
	MaxSpeed float64

	// Gaussian
	Sigma float64
	rng   *rand.Rand

	// SlowZone
	Factor float64
	Zone   layout.Zone
}

// NewConstant returns a policy moving trains max speed every step.
func NewConstant(maxSpeed float64) (Policy, error) {
	if maxSpeed <= 0 || math.IsNaN(maxSpeed) {
		return Policy{}, fmt.Errorf("invalid max speed: %v", maxSpeed)
	}
	return Policy{Kind: Constant, MaxSpeed: maxSpeed}, nil
}

// NewGaussian returns a policy whose speed is reduced each step by the
// absolute value of a normal draw with mean 0 and standard deviation sigma.
// rng is owned by the policy from now on.
func NewGaussian(maxSpeed, sigma float64, rng *rand.Rand) (Policy, error) {
	p, err := NewConstant(maxSpeed)
	if err != nil {
		return Policy{}, err
	}
	if sigma < 0 || math.IsNaN(sigma) {
		return Policy{}, fmt.Errorf("invalid sigma: %v", sigma)
	}
	if rng == nil {
		return Policy{}, fmt.Errorf("gaussian policy needs a random source")
	}
	p.Kind = Gaussian
	p.Sigma = sigma
	p.rng = rng
	return p, nil
}

// NewSlowZone returns a policy moving at max speed times factor inside zone
// and at max speed elsewhere.
func NewSlowZone(maxSpeed, factor float64, zone layout.Zone) (Policy, error) {
	p, err := NewConstant(maxSpeed)
	if err != nil {
		return Policy{}, err
	}
	if factor <= 0 || math.IsNaN(factor) || math.IsInf(factor, 0) {
		return Policy{}, fmt.Errorf("invalid slow zone factor: %v", factor)
	}
	if zone.End <= zone.Start {
		return Policy{}, fmt.Errorf("invalid slow zone [%v, %v)", zone.Start, zone.End)
	}
	p.Kind = SlowZone
	p.Factor = factor
	p.Zone = zone
	return p, nil
}

// Speed is the distance the train at pos attempts to cover this step.
// The Gaussian variant consumes one draw from its random source.
func (p Policy) Speed(pos float64) float64 {
	switch p.Kind {
	case Gaussian:
		slowdown := p.rng.NormFloat64() * p.Sigma
		return math.Max(p.MaxSpeed-math.Abs(slowdown), 0)
	case SlowZone:
		if p.Zone.Contains(pos) {
			return p.MaxSpeed * p.Factor
		}
		return p.MaxSpeed
	default:
		return p.MaxSpeed
	}
}

// NextPosition proposes where a train at pos goes on a loop of the given length.
func (p Policy) NextPosition(pos, length float64) float64 {
	return ring.Advance(pos, p.Speed(pos), length)
}

// TopSpeed is the largest distance the policy can ever propose in one step.
func (p Policy) TopSpeed() float64 {
	if p.Kind == SlowZone && p.Factor > 1 {
		return p.MaxSpeed * p.Factor
	}
	return p.MaxSpeed
}

// Describe renders the policy for display names, with speeds in MPH
// (positions are miles and steps are minutes).
func (p Policy) Describe() string {
	mph := 60 * p.MaxSpeed
	switch p.Kind {
	case Gaussian:
		return fmt.Sprintf("Gaussian Slowdown Track\nSpeed = %g MPH\nSigma = %g", mph, p.Sigma)
	case SlowZone:
		return fmt.Sprintf("SlowZone Track\nSpeed = %g MPH\nSlow Zone Factor = %g", mph, p.Factor)
	default:
		return fmt.Sprintf("Consistent Speed Track\nSpeed = %g MPH", mph)
	}
}
