package scheduler

import (
	"context"
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"

	"citysync/internal/pipeline"
)

// Cron expressions for the refresh jobs, in UTC.
const (
	populationSchedule = "0 6 1 1 *" // January 1st, 06:00
	dailySchedule      = "0 6 * * *" // every day, 06:00
)

// Scheduler triggers the refresh jobs on their fixed cadence. A trigger
// runs its jobs sequentially; overlapping triggers are not mutually
// excluded, which is safe for the overwrite targets and produces
// duplicate rows on the append-only ones.
type Scheduler struct {
	scheduler *gocron.Scheduler
	jobs      *pipeline.Jobs
	timeout   time.Duration
	log       *zap.Logger
}

// New creates a new Scheduler.
func New(jobs *pipeline.Jobs, timeout time.Duration, log *zap.Logger) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Scheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		jobs:      jobs,
		timeout:   timeout,
		log:       log,
	}
}

// Start registers the cron jobs and starts the underlying scheduler.
func (s *Scheduler) Start() error {
	if _, err := s.scheduler.Cron(populationSchedule).Do(func() {
		s.run("refresh_populations", s.jobs.RefreshPopulations)
	}); err != nil {
		return err
	}

	if _, err := s.scheduler.Cron(dailySchedule).Do(func() {
		s.run("refresh_weather", s.jobs.RefreshWeather)
		s.run("refresh_flights", s.jobs.RefreshFlights)
	}); err != nil {
		return err
	}

	s.scheduler.StartAsync()
	return nil
}

func (s *Scheduler) run(name string, job func(context.Context) (string, error)) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	status, err := job(ctx)
	if err != nil {
		s.log.Error("scheduled job failed", zap.String("job", name), zap.Error(err))
		return
	}
	s.log.Info("scheduled job finished", zap.String("job", name), zap.String("status", status))
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
