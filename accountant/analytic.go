package accountant

import "math"

// AnalyticGaussianDelta returns the exact delta(eps) of the unsubsampled
// Gaussian mechanism with the given sensitivity and noise multiplier,
// composed over steps invocations (Balle & Wang, ICML 2018):
//
//	delta(eps) = Phi(r/2 - eps/r) - e^eps * Phi(-r/2 - eps/r)
//
// where r = sqrt(steps) * sensitivity / sigma. Used as a reference for the
// q = 1 case, where subsampling degenerates and the PLD accountant must
// agree with the closed form.
func AnalyticGaussianDelta(sigma, sensitivity float64, steps int, eps float64) float64 {
	r := math.Sqrt(float64(steps)) * sensitivity / sigma
	d := stdNormalCDF(r/2-eps/r) - math.Exp(eps)*stdNormalCDF(-r/2-eps/r)
	if d < 0 {
		return 0
	}
	return d
}

// AnalyticGaussianEpsilon inverts AnalyticGaussianDelta by bisection.
func AnalyticGaussianEpsilon(sigma, sensitivity float64, steps int, delta float64) float64 {
	lo, hi := 0.0, 1.0
	for AnalyticGaussianDelta(sigma, sensitivity, steps, hi) > delta {
		hi *= 2
		if hi > 1e6 {
			return math.Inf(1)
		}
	}
	if AnalyticGaussianDelta(sigma, sensitivity, steps, lo) <= delta {
		return 0
	}
	for i := 0; i < 200 && hi-lo > 1e-12*math.Max(1, hi); i++ {
		mid := 0.5 * (lo + hi)
		if AnalyticGaussianDelta(sigma, sensitivity, steps, mid) > delta {
			lo = mid
		} else {
			hi = mid
		}
	}
	return hi
}

func stdNormalCDF(x float64) float64 {
	return 0.5 * math.Erfc(-x/math.Sqrt2)
}
