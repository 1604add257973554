// Package accountant computes (epsilon, delta) differential privacy
// guarantees for repeated application of the subsampled Gaussian mechanism.
//
// The accountant discretizes the privacy loss distribution (PLD) of a single
// mechanism invocation onto a fixed grid, composes it over the requested
// number of steps with FFT convolution, and reads the delta(epsilon) curve
// off the composed distribution.
package accountant

import (
	"errors"
	"fmt"
	"math"
)

// Relation selects the neighboring-dataset relation the guarantee refers to.
type Relation string

const (
	// RemoveAdd is the remove/add relation: neighboring datasets differ by
	// the presence of one record.
	RemoveAdd Relation = "R"

	// Substitute is the substitute relation: neighboring datasets differ by
	// the value of one record.
	Substitute Relation = "S"
)

// ParseRelation maps the CLI spelling of a relation to its Relation value.
func ParseRelation(s string) (Relation, error) {
	switch s {
	case "R", "remove", "remove-add":
		return RemoveAdd, nil
	case "S", "substitute":
		return Substitute, nil
	}
	return "", fmt.Errorf("unknown neighboring relation %q (want R or S)", s)
}

// Mechanism describes k-fold composition of the subsampled Gaussian mechanism.
type Mechanism struct {
	Sigma    float64  // noise multiplier (> 0)
	Q        float64  // subsampling ratio, in (0, 1]
	Steps    int      // number of compositions (>= 1)
	Relation Relation // neighboring relation
}

// Validate reports the first invalid Mechanism field.
func (m Mechanism) Validate() error {
	if !(m.Sigma > 0) {
		return fmt.Errorf("sigma must be positive, got %v", m.Sigma)
	}
	if !(m.Q > 0 && m.Q <= 1) {
		return fmt.Errorf("subsampling ratio must be in (0, 1], got %v", m.Q)
	}
	if m.Steps < 1 {
		return fmt.Errorf("steps must be >= 1, got %d", m.Steps)
	}
	if m.Relation != RemoveAdd && m.Relation != Substitute {
		return fmt.Errorf("unknown neighboring relation %q", m.Relation)
	}
	return nil
}

// Grid controls the PLD discretization: the privacy loss axis is truncated to
// [-L, L) and split into NX equal bins.
type Grid struct {
	L  float64 // truncation bound for the privacy loss axis
	NX int     // number of bins
}

// DefaultGrid returns the grid used when none is configured explicitly:
// L = max(20, 2*targetEps) with 50_000 bins per unit of L/20.
func DefaultGrid(targetEps float64) Grid {
	l := math.Max(20, 2*targetEps)
	return Grid{L: l, NX: int(1e6 * l / 20)}
}

// Scaled returns the grid with both range and resolution scaled by the given
// precision factor. Evaluating at precision 2 and comparing against
// precision 1 is the calibration layer's reliability check.
func (g Grid) Scaled(precision float64) Grid {
	return Grid{L: g.L * precision, NX: int(float64(g.NX) * precision)}
}

func (g Grid) validate() error {
	if !(g.L > 0) {
		return fmt.Errorf("grid bound L must be positive, got %v", g.L)
	}
	if g.NX < 16 {
		return fmt.Errorf("grid resolution NX must be >= 16, got %d", g.NX)
	}
	return nil
}

// ErrGridExhausted reports that the configured grid cannot represent the
// composed privacy loss distribution: either too much probability mass falls
// beyond the truncation bound, or the requested epsilon lies outside the
// grid. Callers typically retry with a larger noise multiplier or a wider
// grid.
var ErrGridExhausted = errors.New("privacy loss grid exhausted")

// Delta computes the tightest delta such that the composed mechanism is
// (eps, delta)-DP under the mechanism's neighboring relation.
func Delta(m Mechanism, g Grid, eps float64) (float64, error) {
	p, err := compose(m, g)
	if err != nil {
		return 0, err
	}
	if eps >= g.L {
		return 0, fmt.Errorf("%w: eps=%v outside grid bound L=%v", ErrGridExhausted, eps, g.L)
	}
	return p.delta(eps), nil
}

// Epsilon computes the tightest epsilon such that the composed mechanism is
// (eps, delta)-DP under the mechanism's neighboring relation. The result is
// clamped below at 0.
func Epsilon(m Mechanism, g Grid, delta float64) (float64, error) {
	if !(delta > 0 && delta < 1) {
		return 0, fmt.Errorf("delta must be in (0, 1), got %v", delta)
	}
	p, err := compose(m, g)
	if err != nil {
		return 0, err
	}

	lo, hi := 0.0, p.grid.L
	if p.delta(lo) <= delta {
		return 0, nil
	}
	if p.delta(hi) > delta {
		return 0, fmt.Errorf("%w: delta(%v) still above target %v at eps=L=%v",
			ErrGridExhausted, p.delta(hi), delta, hi)
	}
	// delta(eps) is nonincreasing; bisect until the bracket collapses.
	for i := 0; i < 200 && hi-lo > 1e-12*math.Max(1, hi); i++ {
		mid := 0.5 * (lo + hi)
		if p.delta(mid) > delta {
			lo = mid
		} else {
			hi = mid
		}
	}
	return hi, nil
}
