// Package testutil provides deterministic helpers for tests and benchmarks.
package testutil

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math/rand"
	"sync"
	"sync/atomic"

	"github.com/hupe1980/semdex/distance"
)

// RNG struct encapsulates the random number generator and seed.
// It is thread-safe.
type RNG struct {
	rand *rand.Rand
	seed int64
	mu   sync.Mutex
}

// NewRNG creates a new RNG instance with the specified seed.
func NewRNG(seed int64) *RNG {
	return &RNG{
		rand: rand.New(rand.NewSource(seed)),
		seed: seed,
	}
}

// Seed returns the initial seed.
func (r *RNG) Seed() int64 {
	return r.seed
}

// Intn returns a non-negative pseudo-random number in [0,n).
func (r *RNG) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Intn(n)
}

// Float32 returns, as a float32, a pseudo-random number in [0.0,1.0).
func (r *RNG) Float32() float32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Float32()
}

// UniformVectors generates random vectors with values in range [0, 1).
// Uses a single backing array for efficiency.
func (r *RNG) UniformVectors(num int, dimensions int) [][]float32 {
	r.mu.Lock()
	defer r.mu.Unlock()

	data := make([]float32, num*dimensions)
	vectors := make([][]float32, num)

	for i := 0; i < num; i++ {
		vec := data[i*dimensions : (i+1)*dimensions]
		for j := range vec {
			vec[j] = r.rand.Float32()
		}
		vectors[i] = vec
	}

	return vectors
}

// FakeEmbedder is a deterministic in-process embedder. Each text maps to a
// unit vector seeded by its hash, so equal texts always embed identically
// and distinct texts almost surely differ.
type FakeEmbedder struct {
	dim   int
	model string

	encodeCalls atomic.Int64
	batchCalls  atomic.Int64

	// Err, when set, is returned by every encode call.
	Err error
}

// NewFakeEmbedder creates a fake embedder with the given dimensionality.
func NewFakeEmbedder(dim int) *FakeEmbedder {
	return &FakeEmbedder{dim: dim, model: "fake-embedder"}
}

// Encode embeds a single text.
func (f *FakeEmbedder) Encode(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.encodeCalls.Add(1)

	if f.Err != nil {
		return nil, f.Err
	}

	return f.vector(text), nil
}

// EncodeBatch embeds multiple texts, preserving input order.
func (f *FakeEmbedder) EncodeBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.batchCalls.Add(1)

	if f.Err != nil {
		return nil, f.Err
	}

	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = f.vector(text)
	}

	return out, nil
}

// Dimension returns the embedding dimensionality.
func (f *FakeEmbedder) Dimension() int { return f.dim }

// ModelName identifies the fake model.
func (f *FakeEmbedder) ModelName() string { return f.model }

// EncodeCalls returns how many single-text encodes happened.
func (f *FakeEmbedder) EncodeCalls() int { return int(f.encodeCalls.Load()) }

// BatchCalls returns how many batch encodes happened.
func (f *FakeEmbedder) BatchCalls() int { return int(f.batchCalls.Load()) }

func (f *FakeEmbedder) vector(text string) []float32 {
	sum := sha256.Sum256([]byte(text))
	seed := int64(binary.LittleEndian.Uint64(sum[:8]))

	rng := rand.New(rand.NewSource(seed))

	vec := make([]float32, f.dim)
	for i := range vec {
		vec[i] = rng.Float32()*2 - 1
	}

	distance.NormalizeL2InPlace(vec)

	return vec
}
