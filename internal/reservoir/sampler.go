package reservoir

import (
	"fmt"
	"math/rand/v2"
)

// Sampler chooses the order in which an epoch visits a reservoir snapshot.
type Sampler interface {
	// Init prepares an epoch over n items.
	Init(n int)
	// Next returns the next index, or false when the epoch is exhausted.
	Next() (int, bool)
}

// Sampler names accepted by NewSampler.
const (
	SamplerSequential = "sequential"
	SamplerRandom     = "random"
)

// NewSampler returns the sampler registered under name. An empty name
// selects the sequential sampler.
func NewSampler(name string, seed uint64) (Sampler, error) {
	switch name {
	case "", SamplerSequential:
		return &Sequential{}, nil
	case SamplerRandom:
		return NewRandom(seed), nil
	default:
		return nil, fmt.Errorf("reservoir: unknown sampler %q", name)
	}
}

// Sequential visits items in reservoir order, oldest first.
type Sequential struct {
	n, next int
}

func (s *Sequential) Init(n int) { s.n, s.next = n, 0 }

func (s *Sequential) Next() (int, bool) {
	if s.next >= s.n {
		return 0, false
	}
	i := s.next
	s.next++
	return i, true
}

// Random visits every item once in a shuffled order.
type Random struct {
	rng  *rand.Rand
	perm []int
}

// NewRandom returns a Random sampler with a deterministic seed.
func NewRandom(seed uint64) *Random {
	return &Random{rng: rand.New(rand.NewPCG(seed, seed^0x5851f42d4c957f2d))}
}

func (s *Random) Init(n int) { s.perm = s.rng.Perm(n) }

func (s *Random) Next() (int, bool) {
	if len(s.perm) == 0 {
		return 0, false
	}
	i := s.perm[0]
	s.perm = s.perm[1:]
	return i, true
}
