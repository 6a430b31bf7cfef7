// Package selection implements deterministic seeded prompt selection.
// A session persists only its seed; replaying the same seed against the
// same pool reproduces the exact prompt sequence.
package selection

import (
	"errors"
	"math/rand/v2"
)

// ErrInvalidArgument reports a programming-contract violation such as a
// negative selection count. It is never returned for empty pools.
var ErrInvalidArgument = errors.New("selection: invalid argument")

// pcgStream fixes the second PCG seed word so a single int64 session seed
// fully determines the permutation.
const pcgStream = 0x9e3779b97f4a7c15

// GenerateSeed returns a fresh random seed. Each session uses one.
func GenerateSeed() int64 {
	return rand.Int64()
}

// Shuffled returns a copy of pool permuted deterministically by seed.
func Shuffled[T any](pool []T, seed int64) []T {
	out := make([]T, len(pool))
	copy(out, pool)
	r := rand.New(rand.NewPCG(uint64(seed), pcgStream))
	r.Shuffle(len(out), func(i, j int) {
		out[i], out[j] = out[j], out[i]
	})
	return out
}

// SeededSelect deterministically shuffles pool with seed and returns the
// first count elements. A count of at least len(pool) returns the whole
// pool in shuffled order; a negative count fails with ErrInvalidArgument.
func SeededSelect[T any](pool []T, count int, seed int64) ([]T, error) {
	if count < 0 {
		return nil, ErrInvalidArgument
	}
	shuffled := Shuffled(pool, seed)
	if count >= len(shuffled) {
		return shuffled, nil
	}
	return shuffled[:count], nil
}
