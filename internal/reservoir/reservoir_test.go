package reservoir

import (
	"context"
	"errors"
	"io"
	"slices"
	"testing"
	"time"
)

// sliceSource yields its items in order, then io.EOF.
type sliceSource struct {
	items   []int
	pos     int
	err     error
	rewinds int
}

func (s *sliceSource) Next(_ context.Context) (int, error) {
	if s.err != nil {
		return 0, s.err
	}
	if s.pos >= len(s.items) {
		return 0, io.EOF
	}
	v := s.items[s.pos]
	s.pos++
	return v, nil
}

func (s *sliceSource) Rewind() error {
	s.pos = 0
	s.rewinds++
	return nil
}

// fakePool doubles each job. Results become visible only after release
// moves them out of flight.
type fakePool struct {
	capacity int
	inFlight []int
	done     []int
}

func (p *fakePool) Put(job int) bool {
	if len(p.inFlight) >= p.capacity {
		return false
	}
	p.inFlight = append(p.inFlight, job)
	return true
}

func (p *fakePool) TryGet() (int, bool) {
	if len(p.done) == 0 {
		return 0, false
	}
	v := p.done[0]
	p.done = p.done[1:]
	return v, true
}

func (p *fakePool) release() {
	for _, j := range p.inFlight {
		p.done = append(p.done, j*2)
	}
	p.inFlight = nil
}

// autoPool completes every job as soon as it is put.
type autoPool struct{ fakePool }

func (p *autoPool) Put(job int) bool {
	if !p.fakePool.Put(job) {
		return false
	}
	p.release()
	return true
}

func collect(t *testing.T, seq func(func(int, error) bool)) []int {
	t.Helper()
	var got []int
	for v, err := range seq {
		if err != nil {
			t.Fatalf("epoch error: %v", err)
		}
		got = append(got, v)
	}
	return got
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "valid", cfg: Config{MaxSamples: 4, MinSamples: 2}},
		{name: "default min", cfg: Config{MaxSamples: 1}},
		{name: "zero max", cfg: Config{}, wantErr: true},
		{name: "min above max", cfg: Config{MaxSamples: 2, MinSamples: 3}, wantErr: true},
		{name: "negative per epoch", cfg: Config{MaxSamples: 2, MaxSamplesPerEpoch: -1}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if err := tt.cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNew_UnknownSampler(t *testing.T) {
	t.Parallel()
	_, err := New[int, int](Config{MaxSamples: 1, Sampler: "weighted"}, &sliceSource{}, &fakePool{}, nil)
	if err == nil {
		t.Fatal("New() accepted an unknown sampler")
	}
}

func TestReservoir_EpochSequential(t *testing.T) {
	t.Parallel()

	src := &sliceSource{items: []int{1, 2, 3}}
	pool := &autoPool{fakePool{capacity: 10}}
	r, err := New[int, int](Config{MaxSamples: 5, MinSamples: 3}, src, pool, nil)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	got := collect(t, r.Epoch(context.Background()))
	if want := []int{2, 4, 6}; !slices.Equal(got, want) {
		t.Errorf("first epoch = %v, want %v", got, want)
	}
	if r.Rewinds() == 0 || src.rewinds == 0 {
		t.Error("exhausted source was not rewound")
	}

	// The source restarted, so the reservoir now holds more than one pass
	// and evicted the oldest items to stay within MaxSamples.
	got = collect(t, r.Epoch(context.Background()))
	if len(got) == 0 || len(got) > 5 {
		t.Errorf("second epoch = %v, want 1..5 items", got)
	}
	if r.Len() > 5 {
		t.Errorf("Len() = %d, want <= 5", r.Len())
	}
}

func TestReservoir_EvictsOldest(t *testing.T) {
	t.Parallel()

	r, err := New[int, int](Config{MaxSamples: 3}, &sliceSource{}, &fakePool{}, nil)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	for v := range 5 {
		r.add(v)
	}
	if !slices.Equal(r.items, []int{2, 3, 4}) {
		t.Errorf("items = %v, want [2 3 4]", r.items)
	}
}

func TestReservoir_MaxSamplesPerEpoch(t *testing.T) {
	t.Parallel()

	src := &sliceSource{items: []int{1, 2, 3, 4, 5, 6}}
	pool := &autoPool{fakePool{capacity: 10}}
	r, err := New[int, int](Config{MaxSamples: 6, MinSamples: 6, MaxSamplesPerEpoch: 2}, src, pool, nil)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	got := collect(t, r.Epoch(context.Background()))
	if !slices.Equal(got, []int{2, 4}) {
		t.Errorf("epoch = %v, want [2 4]", got)
	}
	if r.Len() < 6 {
		t.Errorf("Len() = %d after a short epoch, want the reservoir kept", r.Len())
	}
}

func TestReservoir_WaitsForMinSamples(t *testing.T) {
	t.Parallel()

	src := &sliceSource{items: []int{1, 2, 3, 4}}
	pool := &fakePool{capacity: 4}
	r, err := New[int, int](Config{MaxSamples: 4, MinSamples: 2, WaitTime: time.Millisecond}, src, pool, nil)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	for _, err := range r.Epoch(ctx) {
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("epoch error = %v, want deadline exceeded", err)
		}
	}

	pool.release()
	got := collect(t, r.Epoch(context.Background()))
	if want := []int{2, 4, 6, 8}; !slices.Equal(got, want) {
		t.Errorf("epoch = %v, want %v", got, want)
	}
}

func TestReservoir_KeepsRefusedItem(t *testing.T) {
	t.Parallel()

	src := &sliceSource{items: []int{1, 2, 3}}
	pool := &fakePool{capacity: 1}
	r, err := New[int, int](Config{MaxSamples: 3}, src, pool, nil)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	for range 3 {
		if err := r.refresh(context.Background()); err != nil {
			t.Fatalf("refresh() error: %v", err)
		}
		pool.release()
	}
	if err := r.refresh(context.Background()); err != nil {
		t.Fatalf("refresh() error: %v", err)
	}
	if !slices.Equal(r.items, []int{2, 4, 6}) {
		t.Errorf("items = %v, want [2 4 6]: a refused item was lost", r.items)
	}
}

func TestReservoir_SourceError(t *testing.T) {
	t.Parallel()

	boom := errors.New("disk gone")
	r, err := New[int, int](Config{MaxSamples: 1}, &sliceSource{err: boom}, &fakePool{capacity: 1}, nil)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	for _, err := range r.Epoch(context.Background()) {
		if !errors.Is(err, boom) {
			t.Errorf("epoch error = %v, want %v", err, boom)
		}
	}
}

func TestSamplers(t *testing.T) {
	t.Parallel()

	seq, _ := NewSampler("", 0)
	seq.Init(3)
	var order []int
	for i, ok := seq.Next(); ok; i, ok = seq.Next() {
		order = append(order, i)
	}
	if !slices.Equal(order, []int{0, 1, 2}) {
		t.Errorf("sequential order = %v", order)
	}

	draw := func(seed uint64) []int {
		s, err := NewSampler(SamplerRandom, seed)
		if err != nil {
			t.Fatalf("NewSampler() error: %v", err)
		}
		s.Init(20)
		var out []int
		for i, ok := s.Next(); ok; i, ok = s.Next() {
			out = append(out, i)
		}
		return out
	}
	a := draw(7)
	if len(a) != 20 {
		t.Fatalf("random sampler visited %d items, want 20", len(a))
	}
	sorted := slices.Sorted(slices.Values(a))
	for i, v := range sorted {
		if v != i {
			t.Fatalf("random sampler order %v is not a permutation", a)
		}
	}
	if !slices.Equal(a, draw(7)) {
		t.Error("random sampler is not deterministic for a seed")
	}
}
