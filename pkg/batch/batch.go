// Package batch defines the payload exchanged between the data source, the
// executor workers and the consumer.
package batch

import (
	"errors"
	"fmt"
	"maps"
	"slices"
)

// ErrMissingFeature is returned when a batch does not carry a requested feature.
var ErrMissingFeature = errors.New("batch: missing feature")

// ErrNotNumeric is returned when a feature cannot be read as numbers.
var ErrNotNumeric = errors.New("batch: feature is not numeric")

// Batch is a named set of features. Values are scalars (numbers, strings,
// booleans) or arrays of scalars, which keeps a batch encodable with both
// JSON and msgpack.
type Batch map[string]any

// Clone returns a copy of the batch. Numeric arrays are copied so that a
// transform can modify its output without touching its input.
func (b Batch) Clone() Batch {
	out := make(Batch, len(b))
	for k, v := range b {
		switch tv := v.(type) {
		case []float64:
			out[k] = slices.Clone(tv)
		case []int64:
			out[k] = slices.Clone(tv)
		case []byte:
			out[k] = slices.Clone(tv)
		case []any:
			out[k] = slices.Clone(tv)
		default:
			out[k] = v
		}
	}
	return out
}

// Names returns the feature names in sorted order.
func (b Batch) Names() []string {
	return slices.Sorted(maps.Keys(b))
}

// Float64s returns the named feature as a float64 slice. Scalars are
// returned as a one-element slice.
func (b Batch) Float64s(name string) ([]float64, error) {
	v, ok := b[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrMissingFeature, name)
	}
	switch tv := v.(type) {
	case []float64:
		return tv, nil
	case []any:
		out := make([]float64, len(tv))
		for i, e := range tv {
			f, ok := toFloat64(e)
			if !ok {
				return nil, fmt.Errorf("%w: %q[%d] is %T", ErrNotNumeric, name, i, e)
			}
			out[i] = f
		}
		return out, nil
	case []int64:
		out := make([]float64, len(tv))
		for i, e := range tv {
			out[i] = float64(e)
		}
		return out, nil
	case []byte:
		out := make([]float64, len(tv))
		for i, e := range tv {
			out[i] = float64(e)
		}
		return out, nil
	}
	if f, ok := toFloat64(v); ok {
		return []float64{f}, nil
	}
	return nil, fmt.Errorf("%w: %q is %T", ErrNotNumeric, name, v)
}

// Float64 returns the named scalar feature as a float64.
func (b Batch) Float64(name string) (float64, error) {
	v, ok := b[name]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrMissingFeature, name)
	}
	f, ok := toFloat64(v)
	if !ok {
		return 0, fmt.Errorf("%w: %q is %T", ErrNotNumeric, name, v)
	}
	return f, nil
}

// toFloat64 converts the numeric kinds produced by the JSON and msgpack
// decoders.
func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}
