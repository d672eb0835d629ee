// Package transform holds the named batch transforms a pipeline can run.
// Transforms register themselves from init() functions so that the parent
// process and its worker processes resolve the same name to the same code.
package transform

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/flemzord/batchexec/internal/executor"
	"github.com/flemzord/batchexec/pkg/batch"
	"gopkg.in/yaml.v3"
)

// ErrUnknownTransform is returned when no transform is registered under a name.
var ErrUnknownTransform = errors.New("transform: unknown transform")

// Func is the batch transform signature run by the executor.
type Func = executor.Transform[batch.Batch, batch.Batch]

// Factory builds a Func from its YAML parameters. params may be nil.
type Factory func(params *yaml.Node) (Func, error)

// Info describes a registered transform.
type Info struct {
	Name        string
	Description string
	New         Factory
}

var (
	transforms   = make(map[string]Info)
	transformsMu sync.RWMutex
)

// Register adds a transform to the registry. It panics if the name is empty,
// New is nil, or the name is already taken. Intended to be called from
// init() functions.
func Register(info Info) {
	if info.Name == "" {
		panic("transform name must not be empty")
	}
	if info.New == nil {
		panic(fmt.Sprintf("transform %s: New function must not be nil", info.Name))
	}

	transformsMu.Lock()
	defer transformsMu.Unlock()

	if _, exists := transforms[info.Name]; exists {
		panic(fmt.Sprintf("transform already registered: %s", info.Name))
	}
	transforms[info.Name] = info
}

// Lookup returns the Info registered under name.
func Lookup(name string) (Info, bool) {
	transformsMu.RLock()
	defer transformsMu.RUnlock()
	info, ok := transforms[name]
	return info, ok
}

// All returns every registered transform sorted by name.
func All() []Info {
	transformsMu.RLock()
	defer transformsMu.RUnlock()

	result := make([]Info, 0, len(transforms))
	for _, info := range transforms {
		result = append(result, info)
	}
	slices.SortFunc(result, func(a, b Info) int {
		return cmp.Compare(a.Name, b.Name)
	})
	return result
}

// Build resolves name and instantiates it with params.
func Build(name string, params *yaml.Node) (Func, error) {
	info, ok := Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTransform, name)
	}
	fn, err := info.New(params)
	if err != nil {
		return nil, fmt.Errorf("transform %s: %w", name, err)
	}
	return fn, nil
}

// Chain runs fns in order, feeding each output into the next.
func Chain(fns ...Func) Func {
	return func(ctx context.Context, in batch.Batch) (batch.Batch, error) {
		out := in
		for _, fn := range fns {
			var err error
			if out, err = fn(ctx, out); err != nil {
				return nil, err
			}
		}
		return out, nil
	}
}

// Decode decodes params into v. A nil or empty node leaves v untouched.
func Decode(params *yaml.Node, v any) error {
	if params == nil || params.Kind == 0 {
		return nil
	}
	if err := params.Decode(v); err != nil {
		return fmt.Errorf("decoding params: %w", err)
	}
	return nil
}

// resetRegistry clears the registry. Only for testing.
func resetRegistry() {
	transformsMu.Lock()
	defer transformsMu.Unlock()
	transforms = make(map[string]Info)
}
