// Package split partitions a dataset into train, validation and test subsets
// with a seeded two-stage random split.
//
// Stage one separates train+validation from test (80/20). Stage two splits
// the train+validation part 90/10, drawing from the same generator stream.
// Persisted artifacts depend on this exact sequence, so it must not be
// collapsed into a single 72/8/20 draw.
package split

import (
	"math"
	"math/rand/v2"
)

const (
	TrainValidFraction = 0.8
	TrainFraction      = 0.9

	// DefaultSeed is used when no seed is configured.
	DefaultSeed uint64 = 42
)

// Partition lists dataset positions for each subset.
type Partition struct {
	Train []int
	Valid []int
	Test  []int
}

// Sizes returns the subset sizes for n records. Rounding is half-to-even.
func Sizes(n int) (train, valid, test int) {
	trainValid := int(math.RoundToEven(float64(n) * TrainValidFraction))
	train = int(math.RoundToEven(float64(trainValid) * TrainFraction))
	return train, trainValid - train, n - trainValid
}

// TwoStage partitions positions [0,n) deterministically for seed.
func TwoStage(n int, seed uint64) Partition {
	r := newRand(seed)
	train, valid, _ := Sizes(n)
	trainValid := train + valid

	first := permutation(r, n)
	tv, test := first[:trainValid], first[trainValid:]

	second := permutation(r, trainValid)
	p := Partition{
		Train: make([]int, 0, train),
		Valid: make([]int, 0, valid),
		Test:  append([]int(nil), test...),
	}
	for i, j := range second {
		if i < train {
			p.Train = append(p.Train, tv[j])
		} else {
			p.Valid = append(p.Valid, tv[j])
		}
	}
	return p
}

func newRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// permutation is a Fisher-Yates shuffle of [0,n).
func permutation(r *rand.Rand, n int) []int {
	p := make([]int, n)
	for i := range p {
		p[i] = i
	}
	for i := n - 1; i > 0; i-- {
		j := int(r.Uint64N(uint64(i + 1)))
		p[i], p[j] = p[j], p[i]
	}
	return p
}

// Select returns items at the given positions, in order.
func Select[T any](items []T, positions []int) []T {
	out := make([]T, len(positions))
	for i, pos := range positions {
		out[i] = items[pos]
	}
	return out
}
