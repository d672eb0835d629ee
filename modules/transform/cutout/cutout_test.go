package cutout

import (
	"context"
	"slices"
	"testing"

	"github.com/flemzord/batchexec/internal/executor"
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

func TestCutout(t *testing.T) {
	t.Parallel()

	fn, err := New(params(t, "{feature: x, size: 3, fill: -1}"))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	in := batch.Batch{"x": []float64{1, 2, 3, 4, 5, 6, 7, 8}}
	out, err := fn(context.Background(), in)
	if err != nil {
		t.Fatalf("cutout() error: %v", err)
	}

	got := out["x"].([]float64)
	filled := 0
	first := -1
	for i, v := range got {
		if v == -1 {
			filled++
			if first < 0 {
				first = i
			}
		}
	}
	if filled != 3 {
		t.Fatalf("cutout() filled %d values, want 3: %v", filled, got)
	}
	for i := first; i < first+3; i++ {
		if got[i] != -1 {
			t.Errorf("window not contiguous: %v", got)
		}
	}
	if !slices.Equal(in["x"].([]float64), []float64{1, 2, 3, 4, 5, 6, 7, 8}) {
		t.Error("cutout modified its input")
	}
}

func TestCutout_WindowLargerThanFeature(t *testing.T) {
	t.Parallel()

	fn, err := New(params(t, "{feature: x, size: 10}"))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	out, err := fn(context.Background(), batch.Batch{"x": []float64{1, 2}})
	if err != nil {
		t.Fatalf("cutout() error: %v", err)
	}
	if got := out["x"].([]float64); !slices.Equal(got, []float64{0, 0}) {
		t.Errorf("cutout() = %v, want all zero", got)
	}
}

func TestCutout_SeededPerWorker(t *testing.T) {
	t.Parallel()

	draw := func(seed int64) []int {
		fn, err := New(params(t, "{feature: x}"))
		if err != nil {
			t.Fatalf("New() error: %v", err)
		}
		ctx := executor.WithWorker(context.Background(), executor.WorkerInfo{Index: int(seed), Seed: seed})
		var picks []int
		for range 20 {
			out, err := fn(ctx, batch.Batch{"x": []float64{1, 1, 1, 1, 1, 1, 1, 1, 1, 1}})
			if err != nil {
				t.Fatalf("cutout() error: %v", err)
			}
			picks = append(picks, slices.Index(out["x"].([]float64), 0))
		}
		return picks
	}

	if a, b := draw(1), draw(1); !slices.Equal(a, b) {
		t.Errorf("same seed drew %v and %v", a, b)
	}
	if a, b := draw(1), draw(2); slices.Equal(a, b) {
		t.Errorf("different seeds drew the same windows %v", a)
	}
}

func TestNew_Errors(t *testing.T) {
	t.Parallel()

	for _, src := range []string{"{size: 2}", "{feature: x, size: 0}", "{feature: x, size: -3}"} {
		if _, err := New(params(t, src)); err == nil {
			t.Errorf("New(%s) succeeded", src)
		}
	}
}
