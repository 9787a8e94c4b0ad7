package consolidate

import (
	"context"
	"log/slog"
	"time"
)

// Scheduler runs consolidation on a fixed interval.
type Scheduler struct {
	runner   *Runner
	interval time.Duration
	stop     chan struct{}
}

func NewScheduler(runner *Runner, interval time.Duration) *Scheduler {
	return &Scheduler{
		runner:   runner,
		interval: interval,
		stop:     make(chan struct{}),
	}
}

func (s *Scheduler) Start() {
	slog.Info("starting consolidation scheduler", "interval", s.interval)
	go s.run()
}

func (s *Scheduler) Stop() {
	close(s.stop)
}

func (s *Scheduler) run() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			report, err := s.runner.Run(ctx, Options{})
			cancel()
			if err != nil {
				slog.Error("consolidation run failed", "error", err)
				continue
			}
			slog.Info("consolidation run finished",
				"archived", report.Archived,
				"promoted", report.Promoted,
				"merged", report.Merged,
				"queued", report.Queued,
				"tasks", report.TasksProcessed,
				"errors", len(report.Errors),
			)
		case <-s.stop:
			slog.Info("consolidation scheduler stopped")
			return
		}
	}
}
