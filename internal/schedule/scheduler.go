package schedule

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Handle is a live scheduled trigger.
type Handle interface {
	Stop()
}

// Scheduler registers callbacks on cron expressions.
type Scheduler interface {
	Schedule(expr string, fn func()) (Handle, error)
}

// CronScheduler runs entries on a single robfig/cron instance in UTC.
// Standard 5-field expressions and descriptors such as @every are accepted.
type CronScheduler struct {
	cron   *cron.Cron
	logger *zerolog.Logger
}

func NewCronScheduler(logger *zerolog.Logger) *CronScheduler {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	cl := cronLogger{logger: logger}
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl)),
	)
	return &CronScheduler{cron: c, logger: logger}
}

func (s *CronScheduler) Schedule(expr string, fn func()) (Handle, error) {
	id, err := s.cron.AddFunc(expr, fn)
	if err != nil {
		return nil, fmt.Errorf("schedule %q: %w", expr, err)
	}
	return &cronHandle{cron: s.cron, id: id}, nil
}

func (s *CronScheduler) Start() {
	s.cron.Start()
	s.logger.Info().Int("entries", len(s.cron.Entries())).Msg("cron scheduler started")
}

// Stop halts future fires; the returned context is done once running callbacks return.
func (s *CronScheduler) Stop() context.Context {
	return s.cron.Stop()
}

type cronHandle struct {
	cron *cron.Cron
	id   cron.EntryID
	once sync.Once
}

func (h *cronHandle) Stop() {
	h.once.Do(func() { h.cron.Remove(h.id) })
}

type cronLogger struct {
	logger *zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg("cron: " + msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg("cron: " + msg)
}
