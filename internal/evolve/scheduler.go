package evolve

import (
	"context"
	"log/slog"
	"time"
)

// Scheduler runs evolution cycles on a fixed interval.
type Scheduler struct {
	controller *Controller
	interval   time.Duration
	lookback   time.Duration
	stop       chan struct{}
}

func NewScheduler(controller *Controller, interval, lookback time.Duration) *Scheduler {
	return &Scheduler{
		controller: controller,
		interval:   interval,
		lookback:   lookback,
		stop:       make(chan struct{}),
	}
}

func (s *Scheduler) Start() {
	slog.Info("starting evolution scheduler", "interval", s.interval, "lookback", s.lookback)
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
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			outcome, err := s.controller.Evolve(ctx, false, s.lookback)
			cancel()
			if err != nil {
				slog.Error("evolution cycle failed", "error", err)
				continue
			}
			if len(outcome.Applied) > 0 {
				slog.Info("evolution applied parameter changes",
					"proposals", len(outcome.Proposals),
					"applied", len(outcome.Applied),
					"data_points", outcome.DataPoints,
				)
			}
		case <-s.stop:
			slog.Info("evolution scheduler stopped")
			return
		}
	}
}
