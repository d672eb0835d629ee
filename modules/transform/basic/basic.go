// Package basic registers the pass-through transforms: identity, sleep and
// fail. They are mostly useful to exercise a pipeline end to end.
package basic

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/flemzord/batchexec/internal/transform"
	"github.com/flemzord/batchexec/pkg/batch"
	"gopkg.in/yaml.v3"
)

// ErrPoisoned is returned by the fail transform.
var ErrPoisoned = errors.New("basic: poisoned batch")

func init() {
	transform.Register(transform.Info{
		Name:        "identity",
		Description: "returns each batch unchanged",
		New:         newIdentity,
	})
	transform.Register(transform.Info{
		Name:        "sleep",
		Description: "waits a fixed duration, then returns the batch unchanged",
		New:         newSleep,
	})
	transform.Register(transform.Info{
		Name:        "fail",
		Description: "fails batches whose marker feature is set",
		New:         newFail,
	})
}

func newIdentity(_ *yaml.Node) (transform.Func, error) {
	return func(_ context.Context, in batch.Batch) (batch.Batch, error) {
		return in, nil
	}, nil
}

// SleepParams configures the sleep transform.
type SleepParams struct {
	Duration time.Duration `yaml:"duration"`
}

func newSleep(node *yaml.Node) (transform.Func, error) {
	var p SleepParams
	if err := transform.Decode(node, &p); err != nil {
		return nil, err
	}
	if p.Duration < 0 {
		return nil, fmt.Errorf("duration must be non-negative, got %s", p.Duration)
	}
	return func(ctx context.Context, in batch.Batch) (batch.Batch, error) {
		t := time.NewTimer(p.Duration)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-t.C:
			return in, nil
		}
	}, nil
}

// FailParams configures the fail transform.
type FailParams struct {
	// Feature is the marker feature. Defaults to "poison".
	Feature string `yaml:"feature"`
}

func newFail(node *yaml.Node) (transform.Func, error) {
	p := FailParams{Feature: "poison"}
	if err := transform.Decode(node, &p); err != nil {
		return nil, err
	}
	return func(_ context.Context, in batch.Batch) (batch.Batch, error) {
		if v, ok := in[p.Feature]; ok && v != false && v != nil {
			return nil, fmt.Errorf("%w: %s=%v", ErrPoisoned, p.Feature, v)
		}
		return in, nil
	}, nil
}
