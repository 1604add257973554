package rng

import (
	"hash/fnv"
	"math/rand"
)

// TrainingKey uniquely identifies a reproducible calibration or training run.
// Two runs with the same TrainingKey and identical configuration MUST draw
// bit-for-bit identical random streams.
type TrainingKey int64

// NewTrainingKey creates a TrainingKey from a seed value.
func NewTrainingKey(seed int64) TrainingKey {
	return TrainingKey(seed)
}

const (
	// SubsystemSubsampling is the RNG subsystem for minibatch subsampling.
	SubsystemSubsampling = "subsampling"

	// SubsystemPerturbation is the RNG subsystem for gradient noise.
	SubsystemPerturbation = "perturbation"

	// SubsystemInit is the RNG subsystem for parameter initialization.
	SubsystemInit = "init"

	// SubsystemData is the RNG subsystem for toy data generation.
	SubsystemData = "data"
)

// PartitionedRNG provides deterministic, isolated RNG instances per subsystem.
//
// Derivation formula: key XOR fnv1a64(subsystemName). Hash-based derivation
// keeps the streams order-independent: drawing from one subsystem never
// shifts another subsystem's sequence.
//
// Thread-safety: NOT thread-safe. Must be called from a single goroutine.
type PartitionedRNG struct {
	key        TrainingKey
	subsystems map[string]*rand.Rand
}

// NewPartitionedRNG creates a PartitionedRNG from a TrainingKey.
func NewPartitionedRNG(key TrainingKey) *PartitionedRNG {
	return &PartitionedRNG{
		key:        key,
		subsystems: make(map[string]*rand.Rand),
	}
}

// ForSubsystem returns a deterministically-seeded RNG for the named subsystem.
// The same subsystem name always returns the same *rand.Rand instance (cached).
// Never returns nil.
func (p *PartitionedRNG) ForSubsystem(name string) *rand.Rand {
	if rng, ok := p.subsystems[name]; ok {
		return rng
	}

	derivedSeed := int64(p.key) ^ fnv1a64(name)
	rng := rand.New(rand.NewSource(derivedSeed))
	p.subsystems[name] = rng
	return rng
}

// Key returns the TrainingKey used to create this PartitionedRNG.
func (p *PartitionedRNG) Key() TrainingKey {
	return p.key
}

// fnv1a64 computes a 64-bit FNV-1a hash of the input string.
func fnv1a64(s string) int64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return int64(h.Sum64())
}
