package models

import (
	"fmt"
	"math"
	"math/rand"
)

// Mixture is an isotropic Gaussian mixture: component j has weight
// Weights[j], mean vector Means[j] and shared per-dimension standard
// deviation Sigmas[j].
type Mixture struct {
	Weights []float64
	Means   [][]float64
	Sigmas  []float64
}

// Validate checks structural consistency of the mixture.
func (m Mixture) Validate() error {
	k := len(m.Weights)
	if k == 0 {
		return fmt.Errorf("mixture has no components")
	}
	if len(m.Means) != k || len(m.Sigmas) != k {
		return fmt.Errorf("mixture has %d weights, %d means, %d sigmas", k, len(m.Means), len(m.Sigmas))
	}
	d := len(m.Means[0])
	var total float64
	for j := 0; j < k; j++ {
		if len(m.Means[j]) != d {
			return fmt.Errorf("component %d has dimension %d, want %d", j, len(m.Means[j]), d)
		}
		if m.Sigmas[j] <= 0 {
			return fmt.Errorf("component %d has sigma %v, must be positive", j, m.Sigmas[j])
		}
		if m.Weights[j] < 0 {
			return fmt.Errorf("component %d has negative weight %v", j, m.Weights[j])
		}
		total += m.Weights[j]
	}
	if math.Abs(total-1) > 1e-9 {
		return fmt.Errorf("mixture weights sum to %v, want 1", total)
	}
	return nil
}

// LogDensity is the mixture log density at x.
func (m Mixture) LogDensity(x []float64) float64 {
	terms := make([]float64, len(m.Weights))
	for j := range m.Weights {
		terms[j] = math.Log(m.Weights[j]) + isotropicLogPdf(x, m.Means[j], m.Sigmas[j])
	}
	return logSumExp(terms)
}

// ComponentLogPosterior returns, for each observation, the unnormalized
// log posterior over components: log N(x | mean_j, sigma_j) + log weight_j.
func (m Mixture) ComponentLogPosterior(obs [][]float64) [][]float64 {
	out := make([][]float64, len(obs))
	for i, x := range obs {
		row := make([]float64, len(m.Weights))
		for j := range m.Weights {
			row[j] = isotropicLogPdf(x, m.Means[j], m.Sigmas[j]) + math.Log(m.Weights[j])
		}
		out[i] = row
	}
	return out
}

// Assign maps each observation to its most probable component.
func (m Mixture) Assign(obs [][]float64) []int {
	post := m.ComponentLogPosterior(obs)
	out := make([]int, len(obs))
	for i, row := range post {
		out[i] = argmax(row)
	}
	return out
}

// Sample draws one observation and its component index.
func (m Mixture) Sample(r *rand.Rand) ([]float64, int) {
	u := r.Float64()
	j := len(m.Weights) - 1
	var cum float64
	for idx, w := range m.Weights {
		cum += w
		if u < cum {
			j = idx
			break
		}
	}
	x := make([]float64, len(m.Means[j]))
	for d := range x {
		x[d] = m.Means[j][d] + m.Sigmas[j]*r.NormFloat64()
	}
	return x, j
}

// GMMToyData samples n observations in dimension d from a fixed imbalanced
// three-component mixture with two tight modes and one diffuse one.
// Returns the observations, their component labels and the mixture.
func GMMToyData(r *rand.Rand, n, d int) (obs [][]float64, labels []int, m Mixture) {
	m = Mixture{
		Weights: []float64{0.25, 0.25, 0.5},
		Means:   [][]float64{constVec(d, -10), constVec(d, 10), constVec(d, -2)},
		Sigmas:  []float64{0.1, 1.0, 0.1},
	}
	obs = make([][]float64, n)
	labels = make([]int, n)
	for i := 0; i < n; i++ {
		obs[i], labels[i] = m.Sample(r)
	}
	return obs, labels, m
}

// AssignmentAccuracy scores fitted mixture modes against labeled data. The
// fitted components may come out in any order; true modes are matched to
// fitted components by assigning each true mode under the fitted mixture
// (with unit sigmas, so tight and diffuse components compete on distance
// alone), and the data assignments are relabeled through the inverse of
// that match before comparing with the true labels.
func AssignmentAccuracy(obs [][]float64, labels []int, trueModes [][]float64, fittedModes [][]float64, fittedWeights []float64) (float64, error) {
	k := len(trueModes)
	if len(fittedModes) != k || len(fittedWeights) != k {
		return 0, fmt.Errorf("got %d true modes but %d fitted modes and %d weights", k, len(fittedModes), len(fittedWeights))
	}
	if len(obs) != len(labels) {
		return 0, fmt.Errorf("got %d observations but %d labels", len(obs), len(labels))
	}
	fitted := Mixture{Weights: fittedWeights, Means: fittedModes, Sigmas: constVec(k, 1)}
	if err := fitted.Validate(); err != nil {
		return 0, err
	}

	modeMatch := fitted.Assign(trueModes)
	invMatch := make(map[int]int, k)
	for j := 0; j < k; j++ {
		invMatch[j] = j
	}
	for j, fj := range modeMatch {
		invMatch[fj] = j
	}

	assigned := fitted.Assign(obs)
	hits := 0
	for i, a := range assigned {
		if invMatch[a] == labels[i] {
			hits++
		}
	}
	return float64(hits) / float64(len(obs)), nil
}

func isotropicLogPdf(x, mean []float64, sigma float64) float64 {
	d := float64(len(x))
	out := -d * (0.5*math.Log(2*math.Pi) + math.Log(sigma))
	inv2 := 1 / (2 * sigma * sigma)
	for i := range x {
		diff := x[i] - mean[i]
		out -= diff * diff * inv2
	}
	return out
}

func constVec(d int, v float64) []float64 {
	out := make([]float64, d)
	for i := range out {
		out[i] = v
	}
	return out
}

func argmax(xs []float64) int {
	best := 0
	for i, x := range xs {
		if x > xs[best] {
			best = i
		}
	}
	return best
}

func logSumExp(xs []float64) float64 {
	max := math.Inf(-1)
	for _, x := range xs {
		if x > max {
			max = x
		}
	}
	if math.IsInf(max, -1) {
		return max
	}
	var sum float64
	for _, x := range xs {
		sum += math.Exp(x - max)
	}
	return max + math.Log(sum)
}
