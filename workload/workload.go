// Package workload generates the synthetic uint8 arrays written by the
// benchmark. Data is uniformly random in 0..255 and deterministic for a
// given seed.
package workload

import (
	mrand "math/rand"
)

// Generator produces random array contents from a seeded source.
type Generator struct {
	seed int64
	rng  *mrand.Rand
}

// NewGenerator creates a Generator for the given seed.
func NewGenerator(seed int64) *Generator {
	return &Generator{
		seed: seed,
		rng:  mrand.New(mrand.NewSource(seed)),
	}
}

// Seed returns the seed the generator was created with.
func (g *Generator) Seed() int64 {
	return g.seed
}

// Fill returns Volume(shape) random bytes, one per array element in C
// order.
func (g *Generator) Fill(shape []int) []byte {
	buf := make([]byte, Volume(shape))
	g.rng.Read(buf)

	return buf
}

// Volume returns the number of elements of an array with the given
// extents. An empty shape has volume 1.
func Volume(shape []int) int64 {
	n := int64(1)
	for _, s := range shape {
		n *= int64(s)
	}

	return n
}
