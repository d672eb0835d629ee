package batch

import (
	"errors"
	"slices"
	"testing"
)

func TestBatch_Clone(t *testing.T) {
	t.Parallel()

	orig := Batch{"x": []float64{1, 2, 3}, "label": "cat"}
	cp := orig.Clone()
	cp["x"].([]float64)[0] = 99
	cp["label"] = "dog"

	if got := orig["x"].([]float64)[0]; got != 1 {
		t.Errorf("original x[0] = %v, want 1", got)
	}
	if orig["label"] != "cat" {
		t.Errorf("original label = %v, want cat", orig["label"])
	}
}

func TestBatch_Names(t *testing.T) {
	t.Parallel()

	b := Batch{"z": 1, "a": 2, "m": 3}
	if got := b.Names(); !slices.Equal(got, []string{"a", "m", "z"}) {
		t.Errorf("Names() = %v", got)
	}
}

func TestBatch_Float64s(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		value   any
		want    []float64
		wantErr error
	}{
		{name: "float slice", value: []float64{1.5, 2}, want: []float64{1.5, 2}},
		{name: "any slice", value: []any{int8(1), uint16(2), 3.5}, want: []float64{1, 2, 3.5}},
		{name: "int slice", value: []int64{4, 5}, want: []float64{4, 5}},
		{name: "scalar", value: int64(7), want: []float64{7}},
		{name: "string", value: "nope", wantErr: ErrNotNumeric},
		{name: "mixed", value: []any{1.0, "x"}, wantErr: ErrNotNumeric},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := Batch{"f": tt.value}.Float64s("f")
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !slices.Equal(got, tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBatch_MissingFeature(t *testing.T) {
	t.Parallel()

	_, err := Batch{}.Float64s("x")
	if !errors.Is(err, ErrMissingFeature) {
		t.Errorf("Float64s err = %v, want ErrMissingFeature", err)
	}
	_, err = Batch{}.Float64("x")
	if !errors.Is(err, ErrMissingFeature) {
		t.Errorf("Float64 err = %v, want ErrMissingFeature", err)
	}
}
