// Package minibatch provides the two batching strategies of the private
// training loop: uniform subsampling without replacement (the regime the
// accountant's subsampling ratio q refers to) and a shuffle-and-split pass
// for evaluation.
package minibatch

import (
	"fmt"
	"math/rand"
)

// SampleFromArray returns n distinct rows drawn uniformly from rows.
func SampleFromArray(r *rand.Rand, rows [][]float64, n int) ([][]float64, error) {
	if n < 1 || n > len(rows) {
		return nil, fmt.Errorf("cannot sample %d rows from %d", n, len(rows))
	}

	// Partial Fisher-Yates over an index view; the source rows stay intact.
	idx := make([]int, len(rows))
	for i := range idx {
		idx[i] = i
	}
	out := make([][]float64, n)
	for i := 0; i < n; i++ {
		j := i + r.Intn(len(idx)-i)
		idx[i], idx[j] = idx[j], idx[i]
		out[i] = rows[idx[i]]
	}
	return out, nil
}

// SubsampleBatchifier draws an independent uniform subsample (without
// replacement) for every batch. Each Fetch is a fresh draw; batch index
// only distinguishes fetches within an epoch for bookkeeping.
type SubsampleBatchifier struct {
	rows      [][]float64
	batchSize int
	r         *rand.Rand
}

// NewSubsampleBatchifier validates the batch size against the dataset.
func NewSubsampleBatchifier(rows [][]float64, batchSize int) (*SubsampleBatchifier, error) {
	if batchSize < 1 || batchSize > len(rows) {
		return nil, fmt.Errorf("batch size %d invalid for %d rows", batchSize, len(rows))
	}
	return &SubsampleBatchifier{rows: rows, batchSize: batchSize}, nil
}

// Init installs the RNG for the coming epoch and returns the number of
// batches per epoch (floor(N/B), mirroring one expected pass over the data).
func (b *SubsampleBatchifier) Init(r *rand.Rand) int {
	b.r = r
	return len(b.rows) / b.batchSize
}

// Fetch returns the next subsampled batch. Init must have been called.
func (b *SubsampleBatchifier) Fetch(i int) ([][]float64, error) {
	if b.r == nil {
		return nil, fmt.Errorf("batchifier not initialized")
	}
	return SampleFromArray(b.r, b.rows, b.batchSize)
}

// SubsamplingRatio returns B/N, the q parameter the privacy accountant
// expects for this batching scheme.
func (b *SubsampleBatchifier) SubsamplingRatio() float64 {
	return float64(b.batchSize) / float64(len(b.rows))
}

// SplitBatchifier shuffles once per epoch and partitions the data into
// floor(N/B) batches, dropping the tail. Used for evaluation passes where
// every example should be visited at most once.
type SplitBatchifier struct {
	rows      [][]float64
	batchSize int
	perm      []int
}

// NewSplitBatchifier validates the batch size against the dataset.
func NewSplitBatchifier(rows [][]float64, batchSize int) (*SplitBatchifier, error) {
	if batchSize < 1 || batchSize > len(rows) {
		return nil, fmt.Errorf("batch size %d invalid for %d rows", batchSize, len(rows))
	}
	return &SplitBatchifier{rows: rows, batchSize: batchSize}, nil
}

// Init reshuffles the split and returns the number of batches.
func (b *SplitBatchifier) Init(r *rand.Rand) int {
	b.perm = r.Perm(len(b.rows))
	return len(b.rows) / b.batchSize
}

// Fetch returns batch i of the current shuffle.
func (b *SplitBatchifier) Fetch(i int) ([][]float64, error) {
	if b.perm == nil {
		return nil, fmt.Errorf("batchifier not initialized")
	}
	numBatches := len(b.rows) / b.batchSize
	if i < 0 || i >= numBatches {
		return nil, fmt.Errorf("batch index %d out of range [0, %d)", i, numBatches)
	}
	out := make([][]float64, b.batchSize)
	for j := 0; j < b.batchSize; j++ {
		out[j] = b.rows[b.perm[i*b.batchSize+j]]
	}
	return out, nil
}

// ExampleCount reports how many examples a dataset value contributes: the
// row count of a matrix, the length of a vector, and 1 for a bare scalar.
func ExampleCount(data any) int {
	switch v := data.(type) {
	case [][]float64:
		return len(v)
	case []float64:
		return len(v)
	default:
		return 1
	}
}
