// Package models implements the model families of the project wish-list in
// closed form: Bayesian logistic regression (MAP objective and per-example
// gradients) and Gaussian mixtures (densities and component assignment).
// The training loop they plug into lives in dpsgd/optimizer/minibatch.
package models

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"

	"github.com/dpcalib/dpcalib/dpsgd"
)

// Sigmoid is the logistic function.
func Sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

// Normalize returns a unit-l2-norm copy of x. The zero vector is returned
// unchanged.
func Normalize(x []float64) []float64 {
	out := make([]float64, len(x))
	copy(out, x)
	n := floats.Norm(out, 2)
	if n == 0 {
		return out
	}
	floats.Scale(1/n, out)
	return out
}

// LogRegData is a labeled design matrix for binary classification.
type LogRegData struct {
	X [][]float64
	Y []float64 // labels in {0, 1}
}

// Rows flattens the data into training rows (features followed by label),
// the layout the batchifiers operate on.
func (d LogRegData) Rows() [][]float64 {
	rows := make([][]float64, len(d.X))
	for i, x := range d.X {
		row := make([]float64, len(x)+1)
		copy(row, x)
		row[len(x)] = d.Y[i]
		rows[i] = row
	}
	return rows
}

// SplitRow undoes Rows: features and label of a single training row.
func SplitRow(row []float64) (x []float64, y float64) {
	return row[:len(row)-1], row[len(row)-1]
}

// LogRegToyData generates a synthetic binary classification problem:
// true weights and intercept drawn from the N(0,1) prior, standard normal
// predictors, labels drawn through the sigmoid. Returns train and test
// halves of n examples each plus the generating parameters.
func LogRegToyData(r *rand.Rand, n, d int) (train, test LogRegData, trueW []float64, trueB float64) {
	trueW = make([]float64, d)
	for i := range trueW {
		trueW[i] = r.NormFloat64()
	}
	trueB = r.NormFloat64()

	X := make([][]float64, 2*n)
	Y := make([]float64, 2*n)
	for i := range X {
		x := make([]float64, d)
		for j := range x {
			x[j] = r.NormFloat64()
		}
		X[i] = x
		if Sigmoid(floats.Dot(x, trueW)+trueB) > r.Float64() {
			Y[i] = 1
		}
	}

	train = LogRegData{X: X[:n], Y: Y[:n]}
	test = LogRegData{X: X[n:], Y: Y[n:]}
	return train, test, trueW, trueB
}

// LogRegParams assembles the parameter tree for the logistic regression
// model: weight site "w" and intercept site "b".
func LogRegParams(w []float64, b float64) dpsgd.Params {
	wc := make([]float64, len(w))
	copy(wc, w)
	return dpsgd.Params{"w": wc, "b": []float64{b}}
}

// LogRegGrad returns the per-example gradient and loss of the MAP objective
//
//	-log p(y|x,w,b) - (1/numObsTotal) * log p(w,b)
//
// with independent N(0,1) priors on the weights and intercept. The prior
// term is spread across examples so that summing per-example gradients over
// the full dataset recovers the exact posterior gradient.
func LogRegGrad(params dpsgd.Params, x []float64, y float64, numObsTotal int) (dpsgd.Params, float64, error) {
	w, ok := params["w"]
	if !ok {
		return nil, 0, fmt.Errorf("parameter tree has no site %q", "w")
	}
	bSite, ok := params["b"]
	if !ok || len(bSite) != 1 {
		return nil, 0, fmt.Errorf("parameter tree has no scalar site %q", "b")
	}
	if len(x) != len(w) {
		return nil, 0, fmt.Errorf("feature dimension %d does not match weights %d", len(x), len(w))
	}
	if numObsTotal < 1 {
		return nil, 0, fmt.Errorf("numObsTotal must be >= 1, got %d", numObsTotal)
	}
	b := bSite[0]

	z := floats.Dot(x, w) + b
	p := Sigmoid(z)
	residual := p - y
	invN := 1 / float64(numObsTotal)

	gw := make([]float64, len(w))
	var priorLoss float64
	for i := range w {
		gw[i] = residual*x[i] + invN*w[i]
		priorLoss += 0.5 * w[i] * w[i]
	}
	gb := residual + invN*b
	priorLoss += 0.5 * b * b

	// Numerically stable -log p(y|x): log(1+e^z) - y*z.
	nll := math.Log1p(math.Exp(-math.Abs(z))) + math.Max(z, 0) - y*z

	grads := dpsgd.Params{"w": gw, "b": []float64{gb}}
	return grads, nll + invN*priorLoss, nil
}

// LogRegAccuracy scores the decision rule sign(x*w + b) against the labels.
func LogRegAccuracy(params dpsgd.Params, data LogRegData) float64 {
	w := params["w"]
	b := params["b"][0]
	if len(data.X) == 0 {
		return 0
	}
	hits := 0
	for i, x := range data.X {
		pred := 0.0
		if floats.Dot(x, w)+b > 0 {
			pred = 1
		}
		if pred == data.Y[i] {
			hits++
		}
	}
	return float64(hits) / float64(len(data.X))
}
