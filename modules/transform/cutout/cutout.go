// Package cutout registers the cutout transform, which overwrites a random
// contiguous window of a numeric feature. Each worker draws from its own
// generator seeded with the worker seed, so runs are reproducible for a
// given worker count.
package cutout

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"

	"github.com/flemzord/batchexec/internal/executor"
	"github.com/flemzord/batchexec/internal/transform"
	"github.com/flemzord/batchexec/pkg/batch"
	"gopkg.in/yaml.v3"
)

// Params configures the cutout transform.
type Params struct {
	Feature string `yaml:"feature"`
	// Size is the window length. Defaults to 1.
	Size int `yaml:"size"`
	// Fill is written over the window.
	Fill float64 `yaml:"fill"`
}

func init() {
	transform.Register(transform.Info{
		Name:        "cutout",
		Description: "overwrites a random window of a numeric feature",
		New:         New,
	})
}

// New builds a cutout transform from its YAML parameters.
func New(node *yaml.Node) (transform.Func, error) {
	p := Params{Size: 1}
	if err := transform.Decode(node, &p); err != nil {
		return nil, err
	}
	if p.Feature == "" {
		return nil, fmt.Errorf("cutout: feature is required")
	}
	if p.Size <= 0 {
		return nil, fmt.Errorf("cutout: size must be positive, got %d", p.Size)
	}

	c := &cutter{params: p, rngs: make(map[int64]*rand.Rand)}
	return c.apply, nil
}

type cutter struct {
	params Params

	mu   sync.Mutex
	rngs map[int64]*rand.Rand
}

func (c *cutter) apply(ctx context.Context, in batch.Batch) (batch.Batch, error) {
	values, err := in.Float64s(c.params.Feature)
	if err != nil {
		return nil, err
	}
	out := in.Clone()
	cut := make([]float64, len(values))
	copy(cut, values)

	if n := len(cut); n > 0 {
		size := min(c.params.Size, n)
		start := c.intn(ctx, n-size+1)
		for i := start; i < start+size; i++ {
			cut[i] = c.params.Fill
		}
	}
	out[c.params.Feature] = cut
	return out, nil
}

// intn draws from the generator of the worker running ctx. Synchronous
// execution uses seed -1.
func (c *cutter) intn(ctx context.Context, n int) int {
	seed := int64(-1)
	if info, ok := executor.WorkerFromContext(ctx); ok {
		seed = info.Seed
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	rng, ok := c.rngs[seed]
	if !ok {
		rng = rand.New(rand.NewPCG(uint64(seed), 0x9e3779b97f4a7c15))
		c.rngs[seed] = rng
	}
	return rng.IntN(n)
}
