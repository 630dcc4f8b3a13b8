package tracker

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Scheduler drives the tracker's periodic work: a fast consolidation tick
// and a slower export tick. Both run only while a session is open, which
// the tracker itself enforces.
type Scheduler struct {
	tracker        *Tracker
	pollInterval   time.Duration
	exportInterval time.Duration
	logger         *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler creates a scheduler. Intervals must be positive.
func NewScheduler(t *Tracker, pollInterval, exportInterval time.Duration, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		tracker:        t,
		pollInterval:   pollInterval,
		exportInterval: exportInterval,
		logger:         logger,
	}
}

// Start launches the background loop. It returns immediately.
func (s *Scheduler) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.wg.Add(1)
	go s.run(ctx)
	s.logger.Info("scheduler started",
		"poll_interval", s.pollInterval, "export_interval", s.exportInterval)
}

// Stop halts the loop and waits for any in-flight tick to finish.
func (s *Scheduler) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) run(ctx context.Context) {
	defer s.wg.Done()

	poll := time.NewTicker(s.pollInterval)
	defer poll.Stop()
	export := time.NewTicker(s.exportInterval)
	defer export.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-poll.C:
			if err := s.tracker.ConsolidateOnce(ctx); err != nil {
				s.logger.Error("consolidation tick failed", "err", err)
			}
		case <-export.C:
			s.exportTick(ctx)
		}
	}
}

func (s *Scheduler) exportTick(ctx context.Context) {
	snap := s.tracker.Snapshot()
	if snap.Session == nil {
		return
	}
	if err := s.tracker.ExportSession(ctx, snap.Session.ID); err != nil {
		s.logger.Error("export tick failed", "session", snap.Session.ID, "err", err)
	}
}
