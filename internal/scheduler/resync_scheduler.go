// internal/scheduler/resync_scheduler.go
package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Resyncer reloads a collection from its source.
type Resyncer interface {
	Resync(ctx context.Context) error
}

// ResyncScheduler triggers Resync on a standard five-field cron schedule.
type ResyncScheduler struct {
	cron     *cron.Cron
	target   Resyncer
	schedule string
	timeout  time.Duration
	logger   *zap.Logger
	tracer   trace.Tracer
}

// NewResyncScheduler validates schedule and registers the resync job.
func NewResyncScheduler(schedule string, target Resyncer, logger *zap.Logger) (*ResyncScheduler, error) {
	s := &ResyncScheduler{
		cron:     cron.New(),
		target:   target,
		schedule: schedule,
		timeout:  30 * time.Second,
		logger:   logger.With(zap.String("component", "resync-scheduler")),
		tracer:   otel.Tracer("jobboard-scheduler"),
	}
	if _, err := s.cron.AddJob(schedule, s); err != nil {
		return nil, err
	}
	return s, nil
}

// Start runs the schedule until ctx is done.
func (s *ResyncScheduler) Start(ctx context.Context) error {
	s.logger.Info("resync scheduler started", zap.String("schedule", s.schedule))
	s.cron.Start()
	<-ctx.Done()
	s.logger.Info("resync scheduler stopping...")
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	s.logger.Info("resync scheduler stopped")
	return ctx.Err()
}

// Next reports when the schedule fires after t.
func (s *ResyncScheduler) Next(t time.Time) time.Time {
	sched, err := cron.ParseStandard(s.schedule)
	if err != nil {
		return time.Time{}
	}
	return sched.Next(t)
}

// Run is called by the cron library.
func (s *ResyncScheduler) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	ctx, span := s.tracer.Start(ctx, "scheduler.Resync",
		trace.WithAttributes(attribute.String("schedule", s.schedule)))
	defer span.End()

	if err := s.target.Resync(ctx); err != nil {
		s.logger.Warn("scheduled resync failed", zap.Error(err))
		span.RecordError(err)
		return
	}
	s.logger.Debug("scheduled resync completed")
}
