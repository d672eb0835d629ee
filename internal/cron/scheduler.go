package cron

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ValidateSchedule reports whether expr is a schedule the Scheduler accepts.
func ValidateSchedule(expr string) error {
	if _, err := parser.Parse(expr); err != nil {
		return fmt.Errorf("cron: invalid schedule %q: %w", expr, err)
	}
	return nil
}

// Scheduler runs registered jobs on their schedules. A job never overlaps
// itself: a tick that finds the previous run in progress is skipped.
type Scheduler struct {
	mu     sync.Mutex
	cron   *cron.Cron
	jobs   []Job
	locks  map[string]*sync.Mutex
	ids    map[string]cron.EntryID
	logger *slog.Logger
	cancel context.CancelFunc
}

// NewScheduler creates a scheduler. Jobs must be registered before Start().
func NewScheduler(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		locks:  make(map[string]*sync.Mutex),
		logger: logger,
	}
}

// RegisterJob adds a job to the scheduler. Must be called before Start().
// Returns an error if a job with the same name is already registered.
func (s *Scheduler) RegisterJob(j Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := j.Name()
	if _, exists := s.locks[name]; exists {
		return fmt.Errorf("cron: duplicate job name %q", name)
	}

	s.locks[name] = &sync.Mutex{}
	s.jobs = append(s.jobs, j)
	return nil
}

// Start schedules every registered job. It fails without starting anything
// if a schedule does not parse.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := cron.New(cron.WithParser(parser))
	ids := make(map[string]cron.EntryID, len(s.jobs))
	for _, job := range s.jobs {
		id, err := c.AddFunc(job.Schedule(), s.tick(ctx, job))
		if err != nil {
			cancel()
			return fmt.Errorf("cron: invalid schedule for job %q: %w", job.Name(), err)
		}
		ids[job.Name()] = id
	}

	s.cron = c
	s.ids = ids
	s.cancel = cancel
	s.cron.Start()
	s.logger.Info("cron: scheduler started", "jobs", len(s.jobs))
	return nil
}

// tick returns the function cron calls for job.
func (s *Scheduler) tick(ctx context.Context, job Job) func() {
	lock := s.locks[job.Name()]
	return func() {
		if !lock.TryLock() {
			s.logger.Warn("cron: job still running, skipping tick", "job", job.Name())
			return
		}
		defer lock.Unlock()

		start := time.Now()
		if err := job.Run(ctx); err != nil {
			s.logger.Error("cron: job failed", "job", job.Name(), "error", err)
			return
		}
		s.logger.Debug("cron: job completed", "job", job.Name(), "duration", time.Since(start))
	}
}

// Next returns the next activation time of each scheduled job, by name.
// It is empty before Start.
func (s *Scheduler) Next() map[string]time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make(map[string]time.Time, len(s.ids))
	if s.cron == nil {
		return next
	}
	for name, id := range s.ids {
		next[name] = s.cron.Entry(id).Next
	}
	return next
}

// Stop gracefully shuts down the scheduler, waiting for in-flight jobs
// until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron == nil {
		return nil
	}
	s.cancel()
	select {
	case <-s.cron.Stop().Done():
		s.logger.Info("cron: scheduler stopped")
	case <-ctx.Done():
		s.logger.Warn("cron: scheduler stop timed out, jobs still running")
	}
	s.cron = nil
	return nil
}
