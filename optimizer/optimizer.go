// Package optimizer provides the first-order optimizers used by the
// differentially private training loop. All optimizers operate on named
// parameter sites (dpsgd.Params) and keep their own state.
package optimizer

import (
	"math"

	"github.com/dpcalib/dpcalib/dpsgd"
)

// Optimizer advances a parameter tree one gradient step at a time.
type Optimizer interface {
	// Init sets the starting parameters. Must be called before Step.
	Init(params dpsgd.Params)

	// Step consumes the gradient evaluated at the current parameters.
	Step(grads dpsgd.Params)

	// Params returns the current parameter tree. The returned tree is a
	// copy; mutating it does not affect the optimizer.
	Params() dpsgd.Params
}

// SGD is plain stochastic gradient descent with a constant step size.
type SGD struct {
	lr     float64
	params dpsgd.Params
}

// NewSGD returns an SGD optimizer with the given step size.
func NewSGD(lr float64) *SGD {
	return &SGD{lr: lr}
}

func (s *SGD) Init(params dpsgd.Params) {
	s.params = params.Clone()
}

func (s *SGD) Step(grads dpsgd.Params) {
	for name, g := range grads {
		x := s.params[name]
		for i := range x {
			x[i] -= s.lr * g[i]
		}
	}
}

func (s *SGD) Params() dpsgd.Params {
	return s.params.Clone()
}

// Adam implements the Adam optimizer (Kingma & Ba) with the usual defaults
// beta1=0.9, beta2=0.999, eps=1e-8.
type Adam struct {
	lr           float64
	beta1, beta2 float64
	eps          float64

	step   int
	params dpsgd.Params
	m      dpsgd.Params
	v      dpsgd.Params
}

// NewAdam returns an Adam optimizer with the given step size.
func NewAdam(lr float64) *Adam {
	return &Adam{lr: lr, beta1: 0.9, beta2: 0.999, eps: 1e-8}
}

func (a *Adam) Init(params dpsgd.Params) {
	a.params = params.Clone()
	a.m = params.ZerosLike()
	a.v = params.ZerosLike()
	a.step = 0
}

func (a *Adam) Step(grads dpsgd.Params) {
	a.step++
	t := float64(a.step)
	for name, g := range grads {
		x := a.params[name]
		m := a.m[name]
		v := a.v[name]
		for i := range x {
			m[i] = a.beta1*m[i] + (1-a.beta1)*g[i]
			v[i] = a.beta2*v[i] + (1-a.beta2)*g[i]*g[i]
			mHat := m[i] / (1 - math.Pow(a.beta1, t))
			vHat := v[i] / (1 - math.Pow(a.beta2, t))
			x[i] -= a.lr * mHat / (math.Sqrt(vHat) + a.eps)
		}
	}
}

func (a *Adam) Params() dpsgd.Params {
	return a.params.Clone()
}
