// Package jobs hosts background work: periodic maintenance and share event publishing.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// Task is a periodic unit of work. It receives a context cancelled on shutdown.
type Task func(ctx context.Context) error

// Scheduler runs named periodic tasks. A task never overlaps itself; a late run is rescheduled.
type Scheduler struct {
	scheduler gocron.Scheduler
	logger    func(ctx context.Context, event string, fields map[string]any)

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	jobs    map[string]gocron.Job
	started bool
}

// SchedulerOption customises the scheduler.
type SchedulerOption func(*Scheduler)

// WithLogger routes task outcomes to logger.
func WithLogger(logger func(ctx context.Context, event string, fields map[string]any)) SchedulerOption {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewScheduler creates an idle scheduler.
func NewScheduler(opts ...SchedulerOption) (*Scheduler, error) {
	inner, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("jobs: create scheduler: %w", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		scheduler: inner,
		logger:    func(context.Context, string, map[string]any) {},
		ctx:       ctx,
		cancel:    cancel,
		jobs:      make(map[string]gocron.Job),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Every registers task to run every interval under name. Names must be unique.
func (s *Scheduler) Every(name string, interval time.Duration, task Task) error {
	if task == nil {
		return errors.New("jobs: task is required")
	}
	if interval <= 0 {
		return fmt.Errorf("jobs: %s: interval must be positive", name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("jobs: %s already registered", name)
	}
	job, err := s.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(s.run, name, task),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("jobs: register %s: %w", name, err)
	}
	s.jobs[name] = job
	return nil
}

func (s *Scheduler) run(name string, task Task) {
	start := time.Now()
	err := task(s.ctx)
	fields := map[string]any{
		"job":        name,
		"durationMs": time.Since(start).Milliseconds(),
	}
	if err != nil {
		fields["error"] = err
		s.logger(s.ctx, "job_failed", fields)
		return
	}
	s.logger(s.ctx, "job_completed", fields)
}

// Jobs lists registered job names.
func (s *Scheduler) Jobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	return names
}

// Start begins running registered jobs. Calling it again has no effect.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true
	s.scheduler.Start()
}

// Shutdown cancels running tasks and waits for them to return.
func (s *Scheduler) Shutdown() error {
	s.cancel()
	return s.scheduler.Shutdown()
}
