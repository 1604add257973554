package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"

	"github.com/dpcalib/dpcalib/dpsgd"
	"github.com/dpcalib/dpcalib/minibatch"
	"github.com/dpcalib/dpcalib/optimizer"
	"github.com/dpcalib/dpcalib/rng"
)

func TestSigmoid(t *testing.T) {
	assert.InDelta(t, 0.5, Sigmoid(0), 1e-12)
	assert.InDelta(t, 1.0, Sigmoid(40), 1e-12)
	assert.InDelta(t, 0.0, Sigmoid(-40), 1e-12)
	assert.InDelta(t, 1.0, Sigmoid(2)+Sigmoid(-2), 1e-12)
}

func TestNormalize(t *testing.T) {
	v := Normalize([]float64{3, 4})
	assert.InDelta(t, 1.0, floats.Norm(v, 2), 1e-12)
	assert.InDelta(t, 0.6, v[0], 1e-12)

	zero := Normalize([]float64{0, 0, 0})
	assert.Equal(t, []float64{0, 0, 0}, zero)
}

func TestLogRegToyData(t *testing.T) {
	p := rng.NewPartitionedRNG(rng.NewTrainingKey(7))
	train, test, trueW, _ := LogRegToyData(p.ForSubsystem(rng.SubsystemData), 500, 4)

	require.Len(t, train.X, 500)
	require.Len(t, test.X, 500)
	assert.Len(t, trueW, 4)

	ones := 0.0
	for _, y := range append(append([]float64{}, train.Y...), test.Y...) {
		require.True(t, y == 0 || y == 1)
		ones += y
	}
	// Labels drawn through a sigmoid centered near zero: neither class
	// should collapse.
	assert.Greater(t, ones, 50.0)
	assert.Less(t, ones, 950.0)
}

func TestLogRegDataRows(t *testing.T) {
	d := LogRegData{
		X: [][]float64{{1, 2}, {3, 4}},
		Y: []float64{0, 1},
	}
	rows := d.Rows()
	require.Len(t, rows, 2)
	assert.Equal(t, []float64{1, 2, 0}, rows[0])

	x, y := SplitRow(rows[1])
	assert.Equal(t, []float64{3, 4}, x)
	assert.Equal(t, 1.0, y)
}

func TestLogRegGradMatchesFiniteDifferences(t *testing.T) {
	w := []float64{0.3, -1.2, 0.7}
	b := 0.4
	x := []float64{1.5, -0.2, 2.0}
	y := 1.0
	n := 50

	params := LogRegParams(w, b)
	grads, _, err := LogRegGrad(params, x, y, n)
	require.NoError(t, err)

	lossAt := func(p dpsgd.Params) float64 {
		_, loss, err := LogRegGrad(p, x, y, n)
		require.NoError(t, err)
		return loss
	}

	const h = 1e-6
	for site, vals := range params {
		for i := range vals {
			up := params.Clone()
			up[site][i] += h
			down := params.Clone()
			down[site][i] -= h
			numeric := (lossAt(up) - lossAt(down)) / (2 * h)
			assert.InDelta(t, numeric, grads[site][i], 1e-5, "site %s index %d", site, i)
		}
	}
}

func TestLogRegGradErrors(t *testing.T) {
	good := LogRegParams([]float64{1, 2}, 0)
	x := []float64{1, 1}

	_, _, err := LogRegGrad(dpsgd.Params{"b": {0}}, x, 1, 10)
	assert.Error(t, err)

	_, _, err = LogRegGrad(dpsgd.Params{"w": {1, 2}}, x, 1, 10)
	assert.Error(t, err)

	_, _, err = LogRegGrad(good, []float64{1}, 1, 10)
	assert.Error(t, err)

	_, _, err = LogRegGrad(good, x, 1, 0)
	assert.Error(t, err)
}

func TestLogRegAccuracy(t *testing.T) {
	params := LogRegParams([]float64{1, 0}, 0)
	data := LogRegData{
		X: [][]float64{{2, 0}, {-2, 0}, {3, 1}, {-1, 5}},
		Y: []float64{1, 0, 0, 0},
	}
	// Three of four rows agree with sign(x[0]).
	assert.InDelta(t, 0.75, LogRegAccuracy(params, data), 1e-12)

	assert.Equal(t, 0.0, LogRegAccuracy(params, LogRegData{}))
}

// TestDPTrainingRecoversLogRegParams runs the full private training loop:
// subsampled minibatches, per-example gradients, clip-average-perturb, Adam.
// With a mild noise scale the MAP estimate should land close to the
// generating parameters.
func TestDPTrainingRecoversLogRegParams(t *testing.T) {
	const (
		n          = 2000
		dim        = 4
		batchSize  = 100
		epochs     = 30
		clip       = 20.0
		noiseScale = 0.01
	)

	p := rng.NewPartitionedRNG(rng.NewTrainingKey(12345))
	train, test, trueW, trueB := LogRegToyData(p.ForSubsystem(rng.SubsystemData), n, dim)

	rows := train.Rows()
	batchifier, err := minibatch.NewSubsampleBatchifier(rows, batchSize)
	require.NoError(t, err)

	opt := optimizer.NewAdam(0.05)
	opt.Init(LogRegParams(make([]float64, dim), 0))

	subRNG := p.ForSubsystem(rng.SubsystemSubsampling)
	perturbRNG := p.ForSubsystem(rng.SubsystemPerturbation)

	for epoch := 0; epoch < epochs; epoch++ {
		numBatches := batchifier.Init(subRNG)
		for i := 0; i < numBatches; i++ {
			batch, err := batchifier.Fetch(i)
			require.NoError(t, err)

			params := opt.Params()
			perExample := make([]dpsgd.Params, len(batch))
			losses := make([]float64, len(batch))
			for j, row := range batch {
				x, y := SplitRow(row)
				perExample[j], losses[j], err = LogRegGrad(params, x, y, n)
				require.NoError(t, err)
			}

			avg, _, err := dpsgd.Combine(perExample, losses, clip, noiseScale, perturbRNG)
			require.NoError(t, err)
			opt.Step(avg)
		}
	}

	fitted := opt.Params()
	trueParams := LogRegParams(trueW, trueB)

	// Direction of the fitted weights should line up with the generating
	// weights, and held-out accuracy should match the generating model.
	cosine := floats.Dot(Normalize(fitted["w"]), Normalize(trueW))
	assert.Greater(t, cosine, 0.9, "fitted weight direction off: cosine %v", cosine)

	fittedAcc := LogRegAccuracy(fitted, test)
	trueAcc := LogRegAccuracy(trueParams, test)
	assert.GreaterOrEqual(t, fittedAcc, trueAcc-0.05,
		"fitted accuracy %v, generating-model accuracy %v", fittedAcc, trueAcc)
}
