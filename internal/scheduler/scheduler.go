package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/rs/zerolog"

	"github.com/i474232898/cmip6-download/internal/cmip6"
)

// Batch is the job the scheduler re-runs.
type Batch interface {
	Run(ctx context.Context) (cmip6.RunSummary, error)
}

// Scheduler periodically re-runs the download batch.
type Scheduler struct {
	scheduler *gocron.Scheduler
	batch     Batch
	interval  time.Duration
	logger    zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a new Scheduler.
func New(interval time.Duration, batch Batch, logger zerolog.Logger) *Scheduler {
	s := gocron.NewScheduler(time.UTC)
	// A batch can outlast the interval; the next run waits instead of overlapping.
	s.SingletonModeAll()
	return &Scheduler{
		scheduler: s,
		batch:     batch,
		interval:  interval,
		logger:    logger,
	}
}

// Start schedules the batch, runs it once immediately and starts the
// underlying scheduler. Runs stop when ctx is cancelled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.interval <= 0 {
		return errors.New("scheduler: interval must be positive")
	}
	s.ctx, s.cancel = context.WithCancel(ctx)

	_, err := s.scheduler.Every(s.interval).Do(s.runOnce)
	if err != nil {
		s.cancel()
		return err
	}

	s.scheduler.StartAsync()
	return nil
}

func (s *Scheduler) runOnce() {
	if s.ctx.Err() != nil {
		return
	}
	s.logger.Info().Dur("interval", s.interval).Msg("scheduler: running download batch")

	summary, err := s.batch.Run(s.ctx)
	if err != nil {
		s.logger.Error().Err(err).Str("run", summary.ID).Msg("scheduler: batch aborted")
		return
	}
	s.logger.Info().
		Str("run", summary.ID).
		Int("failed", summary.Failed).
		Msg("scheduler: completed download batch")
}

// Stop cancels the running batch and any future ones.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
