// Package cast registers the cast transform, which converts numeric
// features to a fixed element kind.
package cast

import (
	"context"
	"fmt"
	"maps"
	"math"
	"slices"

	"github.com/flemzord/batchexec/internal/transform"
	"github.com/flemzord/batchexec/pkg/batch"
	"gopkg.in/yaml.v3"
)

// Kind is a target element kind.
type Kind string

const (
	Float64 Kind = "float64"
	Int64   Kind = "int64"
	Uint8   Kind = "uint8"
)

// Params maps feature names to their target kind. Features not listed are
// passed through.
type Params struct {
	Features map[string]Kind `yaml:"features"`
}

func init() {
	transform.Register(transform.Info{
		Name:        "cast",
		Description: "converts numeric features to float64, int64 or uint8",
		New:         New,
	})
}

// New builds a cast transform from its YAML parameters.
func New(node *yaml.Node) (transform.Func, error) {
	var p Params
	if err := transform.Decode(node, &p); err != nil {
		return nil, err
	}
	if len(p.Features) == 0 {
		return nil, fmt.Errorf("cast: at least one feature is required")
	}
	for name, kind := range p.Features {
		switch kind {
		case Float64, Int64, Uint8:
		default:
			return nil, fmt.Errorf("cast: feature %q: unsupported kind %q", name, kind)
		}
	}

	names := slices.Sorted(maps.Keys(p.Features))

	return func(_ context.Context, in batch.Batch) (batch.Batch, error) {
		out := in.Clone()
		for _, name := range names {
			values, err := in.Float64s(name)
			if err != nil {
				return nil, err
			}
			out[name] = convert(values, p.Features[name])
		}
		return out, nil
	}, nil
}

func convert(values []float64, kind Kind) any {
	switch kind {
	case Int64:
		out := make([]int64, len(values))
		for i, v := range values {
			out[i] = int64(math.Trunc(v))
		}
		return out
	case Uint8:
		out := make([]byte, len(values))
		for i, v := range values {
			out[i] = byte(min(max(math.Round(v), 0), math.MaxUint8))
		}
		return out
	default:
		return values
	}
}
