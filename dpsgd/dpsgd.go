// Package dpsgd privatizes per-example gradients: each example's gradient is
// clipped to a fixed l2 norm, the batch is averaged, and calibrated Gaussian
// noise is added. The noise multiplier comes from the calibrate package.
package dpsgd

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
)

// Params holds named parameter sites, each a flat float64 vector. Gradients,
// parameters and optimizer state all share this shape.
type Params map[string][]float64

// Clone deep-copies a Params tree.
func (p Params) Clone() Params {
	out := make(Params, len(p))
	for name, v := range p {
		c := make([]float64, len(v))
		copy(c, v)
		out[name] = c
	}
	return out
}

// ZerosLike returns a Params tree of the same structure with all-zero sites.
func (p Params) ZerosLike() Params {
	out := make(Params, len(p))
	for name, v := range p {
		out[name] = make([]float64, len(v))
	}
	return out
}

// sameStructure reports whether two trees share site names and lengths.
func sameStructure(a, b Params) bool {
	if len(a) != len(b) {
		return false
	}
	for name, v := range a {
		w, ok := b[name]
		if !ok || len(v) != len(w) {
			return false
		}
	}
	return true
}

// FullNorm returns the l2 norm across all sites jointly.
func FullNorm(p Params) float64 {
	var sq float64
	for _, v := range p {
		n := floats.Norm(v, 2)
		sq += n * n
	}
	return math.Sqrt(sq)
}

// Clip scales the whole tree by min(1, threshold/FullNorm), in place.
// A non-positive threshold disables clipping.
func Clip(p Params, threshold float64) {
	if threshold <= 0 {
		return
	}
	norm := FullNorm(p)
	if norm <= threshold {
		return
	}
	scale := threshold / norm
	for _, v := range p {
		floats.Scale(scale, v)
	}
}

// Combine privatizes a batch of per-example gradients:
// clip each example's tree to the clipping threshold, average the clipped
// trees, and perturb every entry with independent Gaussian noise of standard
// deviation noiseScale*clip/batchSize. Returns the privatized gradient and
// the mean per-example loss.
//
// The per-site noise draws are independent and the rng stream advances on
// every call, so repeated invocations never reuse noise.
func Combine(perExample []Params, losses []float64, clip, noiseScale float64, rng *rand.Rand) (Params, float64, error) {
	if len(perExample) == 0 {
		return nil, 0, fmt.Errorf("empty gradient batch")
	}
	if len(losses) != len(perExample) {
		return nil, 0, fmt.Errorf("got %d losses for %d gradient trees", len(losses), len(perExample))
	}
	if !(clip > 0) {
		return nil, 0, fmt.Errorf("clipping threshold must be positive, got %v", clip)
	}
	if noiseScale < 0 {
		return nil, 0, fmt.Errorf("noise scale must be non-negative, got %v", noiseScale)
	}
	for i, g := range perExample[1:] {
		if !sameStructure(perExample[0], g) {
			return nil, 0, fmt.Errorf("gradient tree %d does not match the batch structure", i+1)
		}
	}

	batch := float64(len(perExample))
	sum := perExample[0].ZerosLike()
	for _, g := range perExample {
		clipped := g.Clone()
		Clip(clipped, clip)
		for name, v := range clipped {
			floats.Add(sum[name], v)
		}
	}

	noiseStd := noiseScale * clip / batch
	for _, v := range sum {
		for i := range v {
			v[i] = v[i]/batch + noiseStd*rng.NormFloat64()
		}
	}

	return sum, floats.Sum(losses) / batch, nil
}
