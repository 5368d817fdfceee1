package lease

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const recoverAfter = time.Minute

// FailoverStore uses primary until it errors, then serves from fallback and
// retries primary once a minute.
type FailoverStore struct {
	primary  Store
	fallback Store
	logger   *zerolog.Logger

	mu        sync.Mutex
	down      bool
	lastCheck time.Time
	now       func() time.Time
}

func NewFailoverStore(primary, fallback Store, logger *zerolog.Logger) *FailoverStore {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &FailoverStore{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
		now:      time.Now,
	}
}

func (s *FailoverStore) usePrimary() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.down {
		return true
	}
	if s.now().Sub(s.lastCheck) > recoverAfter {
		s.lastCheck = s.now()
		return true
	}
	return false
}

func (s *FailoverStore) markDown(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.down {
		s.logger.Error().Err(err).Msg("primary lease store failed, falling back to memory")
	}
	s.down = true
	s.lastCheck = s.now()
}

func (s *FailoverStore) markUp() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.down {
		s.logger.Info().Msg("primary lease store recovered")
	}
	s.down = false
}

func (s *FailoverStore) Acquire(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	if s.usePrimary() {
		ok, err := s.primary.Acquire(ctx, key, owner, ttl)
		if err == nil {
			s.markUp()
			return ok, nil
		}
		s.markDown(err)
	}
	return s.fallback.Acquire(ctx, key, owner, ttl)
}

// Release is sent to both stores; the lease may have been granted by either.
func (s *FailoverStore) Release(ctx context.Context, key, owner string) error {
	if err := s.fallback.Release(ctx, key, owner); err != nil {
		return err
	}
	if err := s.primary.Release(ctx, key, owner); err != nil {
		s.markDown(err)
	}
	return nil
}
