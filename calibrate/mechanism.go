package calibrate

import (
	"github.com/dpcalib/dpcalib/accountant"
)

// ForMechanism returns an EpsilonFunc backed by the PLD accountant for the
// subsampled Gaussian mechanism with the given parameters. The grid is sized
// from the target epsilon (DefaultGrid) and scaled with the precision factor.
func ForMechanism(targetEps, delta, q float64, steps int, rel accountant.Relation) EpsilonFunc {
	base := accountant.DefaultGrid(targetEps)
	return func(sigma, precision float64) (float64, error) {
		m := accountant.Mechanism{Sigma: sigma, Q: q, Steps: steps, Relation: rel}
		return accountant.Epsilon(m, base.Scaled(precision), delta)
	}
}

// ApproximateSigma finds the noise multiplier matching targetEps under the
// substitute neighboring relation.
func ApproximateSigma(targetEps, delta, q float64, steps int, opts Options) (Result, error) {
	return Sigma(targetEps, q, ForMechanism(targetEps, delta, q, steps, accountant.Substitute), opts)
}

// ApproximateSigmaRemoveAdd finds the noise multiplier matching targetEps
// under the remove/add neighboring relation.
func ApproximateSigmaRemoveAdd(targetEps, delta, q float64, steps int, opts Options) (Result, error) {
	return Sigma(targetEps, q, ForMechanism(targetEps, delta, q, steps, accountant.RemoveAdd), opts)
}
