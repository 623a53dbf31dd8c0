package game

import "math/rand/v2"

// Randomizer is the permutation source used for shuffles. *rand.Rand
// satisfies it; tests pass a seeded one.
type Randomizer interface {
	Shuffle(n int, swap func(i, j int))
}

type globalRand struct{}

func (globalRand) Shuffle(n int, swap func(i, j int)) {
	rand.Shuffle(n, swap)
}

// DefaultRandomizer draws from the process-wide generator. No seed is kept,
// so shuffles are not reproducible.
var DefaultRandomizer Randomizer = globalRand{}

// Shuffle permutes codes in place with a uniform Fisher-Yates shuffle.
func Shuffle(codes []string, rnd Randomizer) {
	if rnd == nil {
		rnd = DefaultRandomizer
	}
	rnd.Shuffle(len(codes), func(i, j int) {
		codes[i], codes[j] = codes[j], codes[i]
	})
}
