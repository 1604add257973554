package optimizer

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dpcalib/dpcalib/dpsgd"
)

// quadGrad is the gradient of f(x) = sum_i (x_i - target_i)^2.
func quadGrad(params, target dpsgd.Params) dpsgd.Params {
	g := params.Clone()
	for name, x := range g {
		for i := range x {
			x[i] = 2 * (x[i] - target[name][i])
		}
	}
	return g
}

func runToConvergence(t *testing.T, opt Optimizer, steps int) {
	t.Helper()
	start := dpsgd.Params{"w": []float64{5, -3}, "b": []float64{1}}
	target := dpsgd.Params{"w": []float64{1, 2}, "b": []float64{-0.5}}

	opt.Init(start)
	for i := 0; i < steps; i++ {
		opt.Step(quadGrad(opt.Params(), target))
	}

	got := opt.Params()
	for name, want := range target {
		for i := range want {
			assert.InDelta(t, want[i], got[name][i], 0.05, "site %s[%d]", name, i)
		}
	}
}

func TestSGD_MinimizesQuadratic(t *testing.T) {
	runToConvergence(t, NewSGD(0.1), 200)
}

func TestAdam_MinimizesQuadratic(t *testing.T) {
	runToConvergence(t, NewAdam(0.1), 1000)
}

func TestADADP_MinimizesQuadratic(t *testing.T) {
	runToConvergence(t, NewADADP(0.1), 1000)
}

func TestSGD_KnownStep(t *testing.T) {
	opt := NewSGD(0.5)
	opt.Init(dpsgd.Params{"w": []float64{1}})
	opt.Step(dpsgd.Params{"w": []float64{2}})
	assert.InDelta(t, 0, opt.Params()["w"][0], 1e-12)
}

func TestAdam_FirstStepIsLearningRateSized(t *testing.T) {
	// With bias correction the very first Adam update is ~lr * sign(grad).
	opt := NewAdam(0.1)
	opt.Init(dpsgd.Params{"w": []float64{1}})
	opt.Step(dpsgd.Params{"w": []float64{42}})
	assert.InDelta(t, 0.9, opt.Params()["w"][0], 1e-6)
}

func TestADADP_LearningRateBounds(t *testing.T) {
	opt := NewADADP(0.1)
	opt.Init(dpsgd.Params{"w": []float64{5}})

	lr := opt.LearningRate()
	for i := 0; i < 40; i++ {
		opt.Step(quadGrad(opt.Params(), dpsgd.Params{"w": []float64{0}}))
		newLr := opt.LearningRate()
		ratio := newLr / lr
		assert.GreaterOrEqual(t, ratio, 0.9-1e-12, "step %d", i)
		assert.LessOrEqual(t, ratio, 1.1+1e-12, "step %d", i)
		lr = newLr
	}
}

func TestADADP_StabilityCheckRollsBack(t *testing.T) {
	opt := NewADADP(1.0, WithTolerance(1e-6))
	start := dpsgd.Params{"w": []float64{1}}
	opt.Init(start)

	// Consistent even step, wildly inconsistent odd step: the comparison of
	// two half steps against one full step must reject the pair.
	opt.Step(dpsgd.Params{"w": []float64{1}})
	opt.Step(dpsgd.Params{"w": []float64{1e6}})

	assert.Equal(t, start, opt.Params(), "parameters not restored after rejected step")
}

func TestADADP_ErrorScaleIsAbsoluteForNegativeParams(t *testing.T) {
	opt := NewADADP(1.0)
	opt.Init(dpsgd.Params{"w": []float64{-10}})

	// Zero even step keeps the full-step value at -10; the odd step then
	// diverges from it by 2. The max(1, full) denominator stays 1 for
	// negative entries, so err = 2 exceeds the default tolerance: the pair
	// is rejected and the learning rate shrinks to its lower bound.
	opt.Step(dpsgd.Params{"w": []float64{0}})
	opt.Step(dpsgd.Params{"w": []float64{4}})

	assert.Equal(t, dpsgd.Params{"w": []float64{-10}}, opt.Params())
	assert.InDelta(t, 0.9, opt.LearningRate(), 1e-12)
}

func TestADADP_NoRollbackWithoutStabilityCheck(t *testing.T) {
	opt := NewADADP(1.0, WithTolerance(1e-6), WithStabilityCheck(false))
	start := dpsgd.Params{"w": []float64{1}}
	opt.Init(start)

	opt.Step(dpsgd.Params{"w": []float64{1}})
	opt.Step(dpsgd.Params{"w": []float64{1e6}})

	assert.NotEqual(t, start, opt.Params())
}

func TestOptimizers_DoNotAliasParams(t *testing.T) {
	for _, opt := range []Optimizer{NewSGD(0.1), NewAdam(0.1), NewADADP(0.1)} {
		start := dpsgd.Params{"w": []float64{1}}
		opt.Init(start)
		start["w"][0] = 99
		require.Equal(t, 1.0, opt.Params()["w"][0], "%T aliases its input", opt)

		got := opt.Params()
		got["w"][0] = -1
		require.Equal(t, 1.0, opt.Params()["w"][0], "%T exposes internal state", opt)
	}
}

func TestADADP_LearningRateGrowsOnSmoothProblem(t *testing.T) {
	// On a smooth quadratic with a tiny initial step the discrepancy between
	// half and full steps is far below tolerance, so the rate must ratchet up.
	opt := NewADADP(1e-4)
	opt.Init(dpsgd.Params{"w": []float64{5}})
	for i := 0; i < 10; i++ {
		opt.Step(quadGrad(opt.Params(), dpsgd.Params{"w": []float64{0}}))
	}
	assert.Greater(t, opt.LearningRate(), 1e-4*math.Pow(1.1, 4))
}
