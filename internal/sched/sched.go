// Package sched runs the periodic data-refresh job on a cron schedule so the
// local bar store keeps up with the market without manual gathering.
package sched

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"

	"tycho/internal/gather"
)

// Scheduler runs gatherers on cron schedules.
type Scheduler struct {
	cron *cron.Cron
	log  *slog.Logger

	mu      sync.Mutex
	running map[string]bool
}

// New creates a Scheduler. Cron specs use the standard five-field format.
func New(log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{
		cron:    cron.New(),
		log:     log.With("component", "sched"),
		running: make(map[string]bool),
	}
}

// Register schedules a gatherer to run on the given cron spec. Overlapping
// runs of the same gatherer are skipped.
func (s *Scheduler) Register(ctx context.Context, spec string, g gather.Gatherer) error {
	_, err := s.cron.AddFunc(spec, func() {
		s.runOnce(ctx, g)
	})
	if err != nil {
		return fmt.Errorf("registering %s on %q: %w", g.Name(), spec, err)
	}
	s.log.Info("gatherer scheduled", "gatherer", g.Name(), "spec", spec)
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info("scheduler started")
}

// Stop stops the cron scheduler and waits for in-flight jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.log.Info("scheduler stopped")
}

// RunNow executes a gatherer immediately, outside its schedule.
func (s *Scheduler) RunNow(ctx context.Context, g gather.Gatherer) {
	s.runOnce(ctx, g)
}

func (s *Scheduler) runOnce(ctx context.Context, g gather.Gatherer) {
	s.mu.Lock()
	if s.running[g.Name()] {
		s.mu.Unlock()
		s.log.Warn("previous run still in progress, skipping", "gatherer", g.Name())
		return
	}
	s.running[g.Name()] = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running[g.Name()] = false
		s.mu.Unlock()
	}()

	s.log.Info("gatherer run starting", "gatherer", g.Name())
	if err := g.Run(ctx); err != nil {
		s.log.Error("gatherer run failed", "gatherer", g.Name(), "error", err)
		return
	}
	s.log.Info("gatherer run finished", "gatherer", g.Name())
}
