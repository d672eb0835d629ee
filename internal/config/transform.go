package config

import (
	"fmt"

	"github.com/flemzord/batchexec/internal/transform"
)

// Build instantiates the configured transform and the ones chained after it.
func (t TransformConfig) Build() (transform.Func, error) {
	fns := make([]transform.Func, 0, 1+len(t.Then))
	fn, err := transform.Build(t.Name, &t.Params)
	if err != nil {
		return nil, err
	}
	fns = append(fns, fn)
	for i, next := range t.Then {
		fn, err := next.Build()
		if err != nil {
			return nil, fmt.Errorf("then[%d]: %w", i, err)
		}
		fns = append(fns, fn)
	}
	if len(fns) == 1 {
		return fns[0], nil
	}
	return transform.Chain(fns...), nil
}

func (t TransformConfig) names() []string {
	names := []string{t.Name}
	for _, next := range t.Then {
		names = append(names, next.names()...)
	}
	return names
}
