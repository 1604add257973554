package accountant

import (
	"fmt"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
)

const (
	// binningOversample is the ratio of probability-integration points to
	// privacy-loss bins when discretizing the single-step PLD.
	binningOversample = 4

	// tailSigmas bounds the integration range of the mixture density.
	tailSigmas = 40.0

	// tailTolerance is the largest acceptable probability mass falling
	// beyond the grid bound across all composition steps.
	tailTolerance = 1e-9

	// driftHeadroom is the number of composed standard deviations that must
	// fit between the composed mean privacy loss and the grid bound.
	driftHeadroom = 8.0
)

// composedPLD is the discretized privacy loss distribution after composition.
// mass[j] is the probability mass at loss value -L + j*dx.
type composedPLD struct {
	grid Grid
	dx   float64
	mass []float64
}

// compose discretizes the single-step PLD of the mechanism and convolves it
// Steps times via FFT.
func compose(m Mechanism, g Grid) (*composedPLD, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	if err := g.validate(); err != nil {
		return nil, err
	}

	mass, tail := binSingleStep(m, g)
	k := float64(m.Steps)

	if k*tail > tailTolerance {
		return nil, fmt.Errorf("%w: %.3g probability mass beyond L=%v after %d steps (raise sigma or widen the grid)",
			ErrGridExhausted, k*tail, g.L, m.Steps)
	}

	// Guard against composed mass drifting past the truncation bound, which
	// circular convolution would silently alias back into the grid.
	mean, std := massMoments(mass, g)
	if k*mean+driftHeadroom*math.Sqrt(k)*std > g.L {
		return nil, fmt.Errorf("%w: composed loss mean %.3g (+%gσ=%.3g) exceeds L=%v",
			ErrGridExhausted, k*mean, driftHeadroom, driftHeadroom*math.Sqrt(k)*std, g.L)
	}

	composed := mass
	if m.Steps > 1 {
		composed = convolvePow(mass, m.Steps)
	}

	return &composedPLD{grid: g, dx: 2 * g.L / float64(g.NX), mass: composed}, nil
}

// binSingleStep integrates the dominating-pair density and accumulates its
// probability mass into privacy-loss bins. Returns the binned mass and the
// mass whose loss exceeded the grid bound.
func binSingleStep(m Mechanism, g Grid) (mass []float64, tailHigh float64) {
	nx := g.NX
	dx := 2 * g.L / float64(nx)
	mass = make([]float64, nx)

	sigma, q := m.Sigma, m.Q
	logQ := math.Log(q)
	log1Q := math.Inf(-1)
	if q < 1 {
		log1Q = math.Log(1 - q)
	}
	logNorm := -math.Log(sigma * math.Sqrt(2*math.Pi))
	logPhi := func(t, mu float64) float64 {
		d := (t - mu) / sigma
		return logNorm - 0.5*d*d
	}

	tLo := -tailSigmas * sigma
	tHi := 1 + tailSigmas*sigma
	nt := binningOversample * nx
	dt := (tHi - tLo) / float64(nt)

	for i := 0; i < nt; i++ {
		t := tLo + (float64(i)+0.5)*dt

		// f is the subsampled mechanism's output density on the worse-off
		// dataset; g depends on the neighboring relation.
		logF := logSumExp(log1Q+logPhi(t, 0), logQ+logPhi(t, 1))
		var logG float64
		switch m.Relation {
		case Substitute:
			logG = logSumExp(log1Q+logPhi(t, 0), logQ+logPhi(t, -1))
		default: // RemoveAdd
			logG = logPhi(t, 0)
		}

		loss := logF - logG
		p := math.Exp(logF) * dt
		if p == 0 {
			continue
		}

		j := int(math.Floor((loss + g.L) / dx))
		switch {
		case j >= nx:
			tailHigh += p
		case j < 0:
			mass[0] += p
		default:
			mass[j] += p
		}
	}
	return mass, tailHigh
}

// convolvePow composes the mass vector with itself k times using FFT.
// The halves are swapped before transforming so that bin 0 corresponds to
// loss 0 and circular convolution adds loss values modulo 2L.
func convolvePow(mass []float64, k int) []float64 {
	n := len(mass)
	half := n / 2

	seq := make([]complex128, n)
	for j, v := range mass {
		seq[(j+half)%n] = complex(v, 0)
	}

	fft := fourier.NewCmplxFFT(n)
	coeff := fft.Coefficients(nil, seq)
	for i := range coeff {
		coeff[i] = cmplx.Pow(coeff[i], complex(float64(k), 0))
	}
	seq = fft.Sequence(nil, coeff)

	out := make([]float64, n)
	scale := 1 / float64(n)
	for j := range out {
		out[j] = real(seq[(j+half)%n]) * scale
	}
	return out
}

// delta evaluates delta(eps) on the composed distribution:
// sum over losses s > eps of (1 - e^(eps-s)) * mass(s).
func (p *composedPLD) delta(eps float64) float64 {
	var d float64
	for j, mj := range p.mass {
		if mj <= 0 {
			continue // FFT round-off can leave tiny negative mass
		}
		s := -p.grid.L + float64(j)*p.dx
		if s <= eps {
			continue
		}
		d += (1 - math.Exp(eps-s)) * mj
	}
	if d < 0 {
		return 0
	}
	if d > 1 {
		return 1
	}
	return d
}

// massMoments returns the mean and standard deviation of the binned loss.
func massMoments(mass []float64, g Grid) (mean, std float64) {
	dx := 2 * g.L / float64(len(mass))
	var total, m1 float64
	for j, mj := range mass {
		s := -g.L + float64(j)*dx
		total += mj
		m1 += s * mj
	}
	if total == 0 {
		return 0, 0
	}
	mean = m1 / total
	var m2 float64
	for j, mj := range mass {
		s := -g.L + float64(j)*dx
		m2 += (s - mean) * (s - mean) * mj
	}
	return mean, math.Sqrt(m2 / total)
}

func logSumExp(a, b float64) float64 {
	if math.IsInf(a, -1) {
		return b
	}
	if math.IsInf(b, -1) {
		return a
	}
	m := math.Max(a, b)
	return m + math.Log(math.Exp(a-m)+math.Exp(b-m))
}
