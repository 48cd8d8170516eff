package usecase

import (
	"context"
	"log/slog"
	"time"

	"PersonaCollector/internal/ports"
)

// Resumer relaunches jobs left open by a previous process.
type Resumer interface {
	ResumePending(ctx context.Context) (int, error)
}

// Scheduler wires the ticker driver with the resume sweep.
type Scheduler struct {
	driver  ports.Scheduler
	resumer Resumer
	logger  *slog.Logger
}

// NewScheduler returns a helper to start/stop the recurring sweep.
func NewScheduler(driver ports.Scheduler, resumer Resumer, logger *slog.Logger) *Scheduler {
	return &Scheduler{driver: driver, resumer: resumer, logger: logger}
}

// Start registers the sweep with the provided scheduler.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.driver == nil || s.resumer == nil {
		return nil
	}

	job := func(trigger time.Time) {
		n, err := s.resumer.ResumePending(ctx)
		if err != nil && s.logger != nil {
			s.logger.Warn("resume sweep failed", "error", err)
			return
		}
		if n > 0 && s.logger != nil {
			s.logger.Info("resume sweep", "resumed", n, "at", trigger)
		}
	}

	return s.driver.Start(ctx, job)
}

// Stop gracefully tears down the underlying scheduler.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}

	return s.driver.Stop(ctx)
}
