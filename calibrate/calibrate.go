// Package calibrate finds the Gaussian-mechanism noise multiplier (sigma)
// matching a target privacy epsilon.
//
// The search brackets the target with a lower and upper sigma bound, then
// iteratively shrinks the bracket by fitting a logarithmic curve
// sigma = a - b*log(eps) through the bounds and probing it at the target.
// The epsilon evaluations themselves are delegated to the accountant.
package calibrate

import (
	"errors"
	"fmt"
	"math"

	"github.com/sirupsen/logrus"
)

// ErrEvalBudget reports that the sigma bracket could not be established
// within the configured number of accountant evaluations.
var ErrEvalBudget = errors.New("could not establish sigma bounds in given evaluation limit")

// EpsilonFunc evaluates the privacy epsilon for a given sigma at a precision
// scale. It must be monotonically decreasing in sigma. precision > 1 widens
// and refines the accountant grid proportionally; comparing precision 1
// against precision 2 is the reliability check for a fresh sigma estimate.
type EpsilonFunc func(sigma, precision float64) (float64, error)

// Options tune the sigma search.
type Options struct {
	// Tol is the absolute tolerance on |eps(sigma) - target|. Default 1e-4.
	Tol float64

	// ForceSmaller requires the returned sigma to yield an epsilon strictly
	// below the target, possibly at the cost of violating Tol.
	ForceSmaller bool

	// MaxEvals caps the number of EpsilonFunc evaluations. When the budget
	// runs out during refinement the current best estimate is returned
	// (ForceSmaller still honored). Default 10.
	MaxEvals int
}

func (o Options) withDefaults() Options {
	if o.Tol <= 0 {
		o.Tol = 1e-4
	}
	if o.MaxEvals <= 0 {
		o.MaxEvals = 10
	}
	return o
}

// Result is the outcome of a sigma search.
type Result struct {
	Sigma   float64 // noise multiplier found
	Epsilon float64 // epsilon achieved at Sigma
	Evals   int     // accountant evaluations spent
}

// Sigma approximates the noise multiplier whose epsilon matches targetEps.
// q is the subsampling ratio, used to pick the initial sigma guess.
func Sigma(targetEps, q float64, fn EpsilonFunc, opts Options) (Result, error) {
	if !(targetEps > 0) {
		return Result{}, fmt.Errorf("target epsilon must be positive, got %v", targetEps)
	}
	if !(q > 0 && q <= 1) {
		return Result{}, fmt.Errorf("subsampling ratio must be in (0, 1], got %v", q)
	}
	opts = opts.withDefaults()

	br, evals, err := bracket(fn, targetEps, q, opts.MaxEvals)
	if err != nil {
		return Result{}, err
	}

	// Current best estimate is the conservative (eps <= target) side.
	sigma, eps := br.sigmas[1], br.eps[1]
	consecutive := [2]int{}

	for math.Abs(targetEps-eps) > opts.Tol && evals < opts.MaxEvals {
		newSig := br.fitLog(targetEps)
		eps, err = fn(newSig, 1)
		evals++
		if err != nil {
			return Result{}, fmt.Errorf("refining sigma bracket: %w", err)
		}
		sigma = newSig
		br.update(newSig, eps, targetEps, &consecutive)

		// Guarantee both bounds keep moving: after too many one-sided
		// updates the optimum hugs the busy bound, so a midpoint probe is
		// certain to move the neglected one.
		const maxConsecutiveUpdates = 2
		if (consecutive[0] > maxConsecutiveUpdates || consecutive[1] > maxConsecutiveUpdates) && evals < opts.MaxEvals {
			newSig = 0.5 * (br.sigmas[0] + br.sigmas[1])
			eps, err = fn(newSig, 1)
			evals++
			if err != nil {
				return Result{}, fmt.Errorf("refining sigma bracket: %w", err)
			}
			sigma = newSig
			br.update(newSig, eps, targetEps, &consecutive)
		}
	}

	if opts.ForceSmaller && eps > targetEps {
		sigma, eps = br.sigmas[1], br.eps[1]
	}

	logrus.Debugf("sigma search finished: sigma=%.6g eps=%.6g evals=%d", sigma, eps, evals)
	return Result{Sigma: sigma, Epsilon: eps, Evals: evals}, nil
}

// bracketBounds holds a sigma bracket around the target epsilon.
// Invariant: sigmas[0] < sigmas[1] and eps[0] >= target >= eps[1]
// (epsilon decreases in sigma).
type bracketBounds struct {
	sigmas [2]float64
	eps    [2]float64
}

// fitLog fits sigma = a - b*log(eps) through the bounds and evaluates the fit
// at the target epsilon. The logarithmic shape was determined empirically for
// the accountant's eps(sigma) curve. The estimate is clamped into the bracket
// to absorb accountant round-off.
func (b *bracketBounds) fitLog(targetEps float64) float64 {
	slope := (b.sigmas[1] - b.sigmas[0]) / (math.Log(b.eps[0]) - math.Log(b.eps[1]))
	a := 0.5 * ((b.sigmas[0] + slope*math.Log(b.eps[0])) + (b.sigmas[1] + slope*math.Log(b.eps[1])))
	newSig := a - slope*math.Log(targetEps)

	if newSig < b.sigmas[0] || newSig > b.sigmas[1] {
		newSig = 0.5 * (b.sigmas[0] + b.sigmas[1])
	}
	return newSig
}

// update tightens the violated bound: the lower bound when eps overshoots the
// target, the upper bound otherwise. consecutive counts one-sided updates.
func (b *bracketBounds) update(sigma, eps, targetEps float64, consecutive *[2]int) {
	if eps > targetEps {
		b.sigmas[0] = sigma
		b.eps[0] = eps
		consecutive[0]++
		consecutive[1] = 0
	} else {
		b.sigmas[1] = sigma
		b.eps[1] = eps
		consecutive[1]++
		consecutive[0] = 0
	}
}

// bracket establishes rough lower and upper sigma bounds around the target.
//
// Starting from sigma = q/0.01, each candidate is evaluated at precision 1
// and 2; the value is trusted when the two agree within 10%, otherwise sigma
// grows tenfold (accountant grid errors also grow sigma; they signal the
// loss distribution does not fit the grid yet). The trusted sigma is then
// widened by factors of 4 (or shrunk by 4) until the target is straddled.
func bracket(fn EpsilonFunc, targetEps, q float64, maxEvals int) (bracketBounds, int, error) {
	sig := q / 0.01
	evals := 0
	var eps float64

	for {
		if evals >= maxEvals {
			return bracketBounds{}, evals, ErrEvalBudget
		}
		evals++
		e1, err := fn(sig, 1)
		if err != nil {
			sig *= 10
			continue
		}
		if evals >= maxEvals {
			return bracketBounds{}, evals, ErrEvalBudget
		}
		evals++
		e2, err := fn(sig, 2)
		if err != nil {
			sig *= 10
			continue
		}
		if math.Abs(1-e1/e2) <= 0.1 {
			eps = e1
			break
		}
		sig *= 10
	}

	sig1, eps1 := sig, eps

	probe := func(s float64) (float64, float64, error) {
		// On grid errors bisect back toward the last trusted sigma.
		for {
			if evals >= maxEvals {
				return 0, 0, ErrEvalBudget
			}
			evals++
			e, err := fn(s, 1)
			if err == nil {
				return s, e, nil
			}
			s = 0.5 * (s + sig1)
		}
	}

	if eps >= targetEps {
		for eps >= targetEps {
			var err error
			sig, eps, err = probe(sig * 4)
			if err != nil {
				return bracketBounds{}, evals, err
			}
		}
		return bracketBounds{sigmas: [2]float64{sig1, sig}, eps: [2]float64{eps1, eps}}, evals, nil
	}

	for eps < targetEps {
		var err error
		sig, eps, err = probe(sig / 4)
		if err != nil {
			return bracketBounds{}, evals, err
		}
	}
	return bracketBounds{sigmas: [2]float64{sig, sig1}, eps: [2]float64{eps, eps1}}, evals, nil
}
