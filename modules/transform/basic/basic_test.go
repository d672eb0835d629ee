package basic

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/flemzord/batchexec/internal/transform"
	"github.com/flemzord/batchexec/pkg/batch"
	"gopkg.in/yaml.v3"
)

func params(t *testing.T, src string) *yaml.Node {
	t.Helper()
	var node yaml.Node
	if err := yaml.Unmarshal([]byte(src), &node); err != nil {
		t.Fatalf("yaml.Unmarshal() error: %v", err)
	}
	return node.Content[0]
}

func TestRegistered(t *testing.T) {
	t.Parallel()
	for _, name := range []string{"identity", "sleep", "fail"} {
		if _, ok := transform.Lookup(name); !ok {
			t.Errorf("transform %q not registered", name)
		}
	}
}

func TestIdentity(t *testing.T) {
	t.Parallel()

	fn, err := transform.Build("identity", nil)
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	out, err := fn(context.Background(), batch.Batch{"x": 1.0})
	if err != nil || out["x"] != 1.0 {
		t.Errorf("identity() = %v, %v", out, err)
	}
}

func TestSleep(t *testing.T) {
	t.Parallel()

	fn, err := transform.Build("sleep", params(t, "duration: 10ms"))
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}

	start := time.Now()
	if _, err := fn(context.Background(), batch.Batch{}); err != nil {
		t.Fatalf("sleep() error: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 10*time.Millisecond {
		t.Errorf("sleep() returned after %s", elapsed)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	long, err := transform.Build("sleep", params(t, "duration: 1h"))
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	if _, err := long(ctx, batch.Batch{}); !errors.Is(err, context.Canceled) {
		t.Errorf("sleep() on cancelled context error = %v", err)
	}

	if _, err := transform.Build("sleep", params(t, "duration: -1s")); err == nil {
		t.Error("Build() accepted a negative duration")
	}
}

func TestFail(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		params string
		in     batch.Batch
		fails  bool
	}{
		{name: "default marker set", params: "{}", in: batch.Batch{"poison": true}, fails: true},
		{name: "default marker false", params: "{}", in: batch.Batch{"poison": false}},
		{name: "no marker", params: "{}", in: batch.Batch{"x": 1}},
		{name: "custom marker", params: "feature: bad", in: batch.Batch{"bad": 1}, fails: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			fn, err := transform.Build("fail", params(t, tt.params))
			if err != nil {
				t.Fatalf("Build() error: %v", err)
			}
			_, err = fn(context.Background(), tt.in)
			if got := errors.Is(err, ErrPoisoned); got != tt.fails {
				t.Errorf("fail() error = %v, want failure %v", err, tt.fails)
			}
		})
	}
}
