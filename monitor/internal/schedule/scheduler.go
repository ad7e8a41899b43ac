// Package schedule owns one recurring cron trigger per active source and
// guarantees at most one in-flight pipeline run per source.
//
// The per-source exclusion is structural: every trigger, scheduled or
// manual, must acquire the source's run gate (a one-slot channel) before the
// pipeline body executes. A trigger that cannot acquire it is dropped, never
// queued, so a slow fetch cannot build a backlog. Gates outlive job
// replacement so re-adding a source cannot defeat the exclusion while an
// old run is still draining.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// ErrBadSchedule is returned when a cron expression cannot be parsed. The
// source is left unscheduled; this is a caller error, not a process error.
var ErrBadSchedule = errors.New("schedule: invalid cron expression")

// Validate checks a cron expression without registering anything.
func Validate(spec string) error {
	if _, err := cron.ParseStandard(spec); err != nil {
		return fmt.Errorf("%w: %q: %v", ErrBadSchedule, spec, err)
	}
	return nil
}

// RunFunc executes one pipeline invocation for a source. It must not panic;
// errors are its own responsibility (the scheduler only sequences runs).
type RunFunc func(ctx context.Context, sourceID string)

// Config configures the scheduler.
type Config struct {
	// Location is the timezone cron expressions are evaluated in.
	// Default: UTC.
	Location *time.Location
}

func (c *Config) defaults() {
	if c.Location == nil {
		c.Location = time.UTC
	}
}

// Scheduler holds one cron entry per scheduled source.
type Scheduler struct {
	cron   *cron.Cron
	run    RunFunc
	logger *slog.Logger

	mu      sync.Mutex
	entries map[string]cron.EntryID
	gates   map[string]chan struct{}
	ctx     context.Context
	cancel  context.CancelFunc
}

// New creates a Scheduler. Call Start before adding triggers fire.
func New(run RunFunc, cfg Config, logger *slog.Logger) *Scheduler {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		cron:    cron.New(cron.WithLocation(cfg.Location)),
		run:     run,
		logger:  logger,
		entries: make(map[string]cron.EntryID),
		gates:   make(map[string]chan struct{}),
	}
}

// Start launches the cron loop. Runs triggered after Start use a context
// derived from ctx.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()
	s.cron.Start()
	s.logger.Info("scheduler: started")
}

// Stop halts the cron loop and cancels the run context. It returns after
// cron-started jobs have been handed their cancellation; it does not wait
// for in-flight pipeline bodies.
func (s *Scheduler) Stop() {
	s.cron.Stop()
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()
	s.logger.Info("scheduler: stopped")
}

// Add registers (or replaces) the recurring job for a source. spec is a
// standard 5-field cron expression; a parse failure returns ErrBadSchedule
// wrapped with the parser's detail and leaves the source unscheduled —
// an existing job for the same id survives a failed replacement.
func (s *Scheduler) Add(sourceID, spec string) error {
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return fmt.Errorf("%w: %q: %v", ErrBadSchedule, spec, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.entries[sourceID]; ok {
		s.cron.Remove(old)
	}
	id := s.cron.Schedule(sched, cron.FuncJob(func() {
		s.trigger(sourceID, "cron")
	}))
	s.entries[sourceID] = id
	s.logger.Info("scheduler: job added", "source_id", sourceID, "schedule", spec)
	return nil
}

// Remove deletes the recurring job for a source. The run gate is retained
// so an in-flight run keeps excluding new triggers until it drains.
func (s *Scheduler) Remove(sourceID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.entries[sourceID]; ok {
		s.cron.Remove(id)
		delete(s.entries, sourceID)
		s.logger.Info("scheduler: job removed", "source_id", sourceID)
	}
}

// Scheduled reports whether a recurring job exists for the source.
func (s *Scheduler) Scheduled(sourceID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[sourceID]
	return ok
}

// RunNow triggers an immediate, best-effort, one-off invocation through the
// same per-source gate as scheduled triggers.
func (s *Scheduler) RunNow(sourceID string) {
	go s.trigger(sourceID, "manual")
}

// trigger runs the pipeline for a source if its gate is free; otherwise the
// trigger is dropped (at most one run in flight per source).
func (s *Scheduler) trigger(sourceID, origin string) {
	gate := s.gate(sourceID)
	select {
	case gate <- struct{}{}:
	default:
		s.logger.Debug("scheduler: run in flight, trigger dropped",
			"source_id", sourceID, "origin", origin)
		return
	}
	defer func() { <-gate }()

	ctx := s.runContext()
	if ctx.Err() != nil {
		return
	}
	s.run(ctx, sourceID)
}

func (s *Scheduler) gate(sourceID string) chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.gates[sourceID]
	if !ok {
		g = make(chan struct{}, 1)
		s.gates[sourceID] = g
	}
	return g
}

func (s *Scheduler) runContext() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx == nil {
		return context.Background()
	}
	return s.ctx
}
