package optimizer

import (
	"math"

	"github.com/dpcalib/dpcalib/dpsgd"
)

// ADADP is the adaptive learning rate optimizer of Koskela and Honkela.
//
// Reference: A. Koskela, A. Honkela: Learning Rate Adaptation for Federated
// and Differentially Private Learning (https://arxiv.org/abs/1809.03832).
//
// Steps come in pairs: the even step takes one full step and remembers where
// it started, the odd step completes a second half step and compares the two
// half steps against the full step. The discrepancy drives the learning rate
// (clamped to a multiplicative change within [AlphaMin, AlphaMax]) and, when
// the stability check is on, large discrepancies roll the pair back.
type ADADP struct {
	tol            float64
	stabilityCheck bool
	alphaMin       float64
	alphaMax       float64

	step     int
	lr       float64
	params   dpsgd.Params
	stepped  dpsgd.Params // result of the full step taken on the even half
	previous dpsgd.Params // parameters before the even half
}

// ADADPOption overrides an ADADP default.
type ADADPOption func(*ADADP)

// WithTolerance sets the error tolerance for the discretized gradient steps
// (default 1.0).
func WithTolerance(tol float64) ADADPOption {
	return func(a *ADADP) { a.tol = tol }
}

// WithStabilityCheck toggles rejection of steps whose discrepancy exceeds
// the tolerance (default on).
func WithStabilityCheck(on bool) ADADPOption {
	return func(a *ADADP) { a.stabilityCheck = on }
}

// WithAlphaBounds sets the per-adaptation multiplicative bounds on the
// learning rate (default [0.9, 1.1]).
func WithAlphaBounds(min, max float64) ADADPOption {
	return func(a *ADADP) { a.alphaMin, a.alphaMax = min, max }
}

// NewADADP returns an ADADP optimizer with the given initial step size.
func NewADADP(stepSize float64, opts ...ADADPOption) *ADADP {
	a := &ADADP{
		tol:            1.0,
		stabilityCheck: true,
		alphaMin:       0.9,
		alphaMax:       1.1,
		lr:             stepSize,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *ADADP) Init(params dpsgd.Params) {
	a.params = params.Clone()
	a.stepped = params.ZerosLike()
	a.previous = params.Clone()
	a.step = 0
}

func (a *ADADP) Step(grads dpsgd.Params) {
	halfStepped := stepFrom(a.params, grads, 0.5*a.lr)

	if a.step%2 == 0 {
		a.previous = a.params
		a.stepped = stepFrom(a.params, grads, a.lr)
		a.params = halfStepped
		a.step++
		return
	}

	// Error estimate between the full step and the two half steps,
	// normalized per entry: ||(full - halves) / max(1, full)||_2. The
	// denominator uses the signed value, so entries below 1 (all negative
	// ones included) are compared on an absolute scale.
	var sq float64
	for name, full := range a.stepped {
		halves := halfStepped[name]
		for i := range full {
			diff := (full[i] - halves[i]) / math.Max(1, full[i])
			sq += diff * diff
		}
	}
	err := math.Sqrt(sq)

	newLr := a.lr * clamp(math.Sqrt(a.tol/err), a.alphaMin, a.alphaMax)

	if a.stabilityCheck && err > a.tol {
		a.params = a.previous
	} else {
		a.params = halfStepped
	}
	a.lr = newLr
	a.step++
}

func (a *ADADP) Params() dpsgd.Params {
	return a.params.Clone()
}

// LearningRate returns the current adapted step size.
func (a *ADADP) LearningRate() float64 {
	return a.lr
}

func stepFrom(params, grads dpsgd.Params, lr float64) dpsgd.Params {
	out := params.Clone()
	for name, g := range grads {
		x := out[name]
		for i := range x {
			x[i] -= lr * g[i]
		}
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	// sqrt(tol/0) is +Inf, which clamps to the upper bound.
	if math.IsNaN(v) || v > hi {
		return hi
	}
	if v < lo {
		return lo
	}
	return v
}
