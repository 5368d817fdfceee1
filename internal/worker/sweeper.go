package worker

import (
	"context"
	"sync"
	"time"

	"bizpulse/internal/models"

	"github.com/rs/zerolog"
)

// DueJobSource lists pending jobs whose retry time has come.
type DueJobSource interface {
	GetDueRetryJobs(ctx context.Context, now time.Time, limit int) ([]*models.SyncJob, error)
}

// RetryHandler re-runs one due job.
type RetryHandler func(ctx context.Context, job *models.SyncJob)

// RetrySweeper picks up jobs with an elapsed nextRetryAt and hands them to the handler.
// Overlapping sweeps are skipped.
type RetrySweeper struct {
	source    DueJobSource
	handle    RetryHandler
	batchSize int
	logger    *zerolog.Logger
	now       func() time.Time

	mu      sync.Mutex
	running bool
}

func NewRetrySweeper(source DueJobSource, handle RetryHandler, batchSize int, logger *zerolog.Logger) *RetrySweeper {
	if batchSize <= 0 {
		batchSize = 50
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &RetrySweeper{
		source:    source,
		handle:    handle,
		batchSize: batchSize,
		logger:    logger,
		now:       time.Now,
	}
}

// SetClock replaces the time source used to decide which jobs are due.
func (s *RetrySweeper) SetClock(now func() time.Time) {
	s.now = now
}

// Sweep processes one batch and returns how many jobs were handed off.
func (s *RetrySweeper) Sweep(ctx context.Context) int {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.logger.Debug().Msg("retry sweep already running, skipping")
		return 0
	}
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	jobs, err := s.source.GetDueRetryJobs(ctx, s.now().UTC(), s.batchSize)
	if err != nil {
		s.logger.Error().Err(err).Msg("retry sweep: fetch due jobs")
		return 0
	}

	handled := 0
	for _, job := range jobs {
		if ctx.Err() != nil {
			break
		}
		if !models.IsSyncFamily(job.JobType) {
			s.logger.Warn().Str("job_id", job.ID).Str("job_type", job.JobType).Msg("retry sweep: job type has no executor")
			continue
		}
		s.handle(ctx, job)
		handled++
	}
	if handled > 0 {
		s.logger.Info().Int("jobs", handled).Msg("retry sweep completed")
	}
	return handled
}
