// Package dataset reads batches from and writes batches to JSON Lines files.
package dataset

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/flemzord/batchexec/pkg/batch"
)

const maxLineSize = 16 << 20

// Source reads one batch per line from a JSONL file. Blank lines are
// skipped. Next returns io.EOF at the end of the file; Rewind starts over.
type Source struct {
	path string
	f    *os.File
	sc   *bufio.Scanner
	line int
}

// Open opens the JSONL file at path.
func Open(path string) (*Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("dataset: open %s: %w", path, err)
	}
	s := &Source{path: path, f: f}
	s.reset()
	return s, nil
}

func (s *Source) reset() {
	s.sc = bufio.NewScanner(s.f)
	s.sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	s.line = 0
}

// Next decodes the next batch.
func (s *Source) Next(ctx context.Context) (batch.Batch, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !s.sc.Scan() {
			if err := s.sc.Err(); err != nil {
				return nil, fmt.Errorf("dataset: %s line %d: %w", s.path, s.line+1, err)
			}
			return nil, io.EOF
		}
		s.line++
		raw := bytes.TrimSpace(s.sc.Bytes())
		if len(raw) == 0 {
			continue
		}
		var b batch.Batch
		if err := json.Unmarshal(raw, &b); err != nil {
			return nil, fmt.Errorf("dataset: %s line %d: %w", s.path, s.line, err)
		}
		return b, nil
	}
}

// Rewind restarts reading at the first line.
func (s *Source) Rewind() error {
	if _, err := s.f.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("dataset: rewind %s: %w", s.path, err)
	}
	s.reset()
	return nil
}

// Close closes the underlying file.
func (s *Source) Close() error {
	return s.f.Close()
}

// Sink appends batches to a JSONL file. It is safe for concurrent use.
type Sink struct {
	mu    sync.Mutex
	f     *os.File
	w     *bufio.Writer
	enc   *json.Encoder
	count int
}

// Create creates or truncates the JSONL file at path, creating parent
// directories as needed.
func Create(path string) (*Sink, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("dataset: create directory %s: %w", dir, err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("dataset: create %s: %w", path, err)
	}
	w := bufio.NewWriter(f)
	return &Sink{f: f, w: w, enc: json.NewEncoder(w)}, nil
}

// Write appends b as one line.
func (s *Sink) Write(b batch.Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enc.Encode(b); err != nil {
		return fmt.Errorf("dataset: write: %w", err)
	}
	s.count++
	return nil
}

// Count returns the number of batches written.
func (s *Sink) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// Close flushes pending lines and closes the file.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return errors.Join(s.w.Flush(), s.f.Close())
}
