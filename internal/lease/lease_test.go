package lease

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestKey(t *testing.T) {
	assert.Equal(t, "sync_lease:t1:ga4_daily", Key("t1", "ga4_daily"))
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	ok, err := s.Acquire(ctx, "k", "a", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, _ = s.Acquire(ctx, "k", "b", time.Minute)
	assert.False(t, ok)

	// чужой владелец не снимает блокировку
	require.NoError(t, s.Release(ctx, "k", "b"))
	ok, _ = s.Acquire(ctx, "k", "b", time.Minute)
	assert.False(t, ok)

	now = now.Add(2 * time.Minute)
	ok, _ = s.Acquire(ctx, "k", "b", time.Minute)
	assert.True(t, ok, "expired lease must be reclaimable")

	require.NoError(t, s.Release(ctx, "k", "b"))
	ok, _ = s.Acquire(ctx, "k", "c", time.Minute)
	assert.True(t, ok)
}

func TestMemoryStore_Concurrent(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	var (
		wg      sync.WaitGroup
		granted int32
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if ok, _ := s.Acquire(ctx, "k", string(rune('a'+i)), time.Minute); ok {
				atomic.AddInt32(&granted, 1)
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, int32(1), granted)
}

func TestRedisStore(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	s := NewRedisStore(client)
	ctx := context.Background()

	t.Run("AcquireAndContend", func(t *testing.T) {
		ok, err := s.Acquire(ctx, "k1", "a", time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = s.Acquire(ctx, "k1", "b", time.Minute)
		require.NoError(t, err)
		assert.False(t, ok)

		assert.Equal(t, time.Minute, mr.TTL("k1"))
	})

	t.Run("ReleaseOnlyByOwner", func(t *testing.T) {
		require.NoError(t, s.Release(ctx, "k1", "b"))
		assert.True(t, mr.Exists("k1"))

		require.NoError(t, s.Release(ctx, "k1", "a"))
		assert.False(t, mr.Exists("k1"))
	})

	t.Run("Expiry", func(t *testing.T) {
		ok, err := s.Acquire(ctx, "k2", "a", time.Second)
		require.NoError(t, err)
		require.True(t, ok)

		mr.FastForward(2 * time.Second)

		ok, err = s.Acquire(ctx, "k2", "b", time.Second)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("ServerDown", func(t *testing.T) {
		mr.Close()
		_, err := s.Acquire(ctx, "k3", "a", time.Second)
		assert.Error(t, err)
	})
}

func TestRedisStore_NilClient(t *testing.T) {
	s := NewRedisStore(nil)
	_, err := s.Acquire(context.Background(), "k", "a", time.Second)
	assert.Error(t, err)
	assert.Error(t, s.Release(context.Background(), "k", "a"))
}

type mockStore struct {
	mock.Mock
}

func (m *mockStore) Acquire(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	args := m.Called(ctx, key, owner, ttl)
	return args.Bool(0), args.Error(1)
}

func (m *mockStore) Release(ctx context.Context, key, owner string) error {
	args := m.Called(ctx, key, owner)
	return args.Error(0)
}

func TestFailoverStore(t *testing.T) {
	ctx := context.Background()
	primary := new(mockStore)
	fallback := new(mockStore)
	logger := zerolog.New(io.Discard)
	s := NewFailoverStore(primary, fallback, &logger)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	t.Run("PrimarySuccess", func(t *testing.T) {
		primary.On("Acquire", ctx, "k", "a", time.Minute).Return(true, nil).Once()

		ok, err := s.Acquire(ctx, "k", "a", time.Minute)
		assert.NoError(t, err)
		assert.True(t, ok)
		primary.AssertExpectations(t)
	})

	t.Run("PrimaryFailure", func(t *testing.T) {
		primary.On("Acquire", ctx, "k", "b", time.Minute).Return(false, errors.New("redis down")).Once()
		fallback.On("Acquire", ctx, "k", "b", time.Minute).Return(true, nil).Once()

		ok, err := s.Acquire(ctx, "k", "b", time.Minute)
		assert.NoError(t, err)
		assert.True(t, ok)
		primary.AssertExpectations(t)
		fallback.AssertExpectations(t)
	})

	t.Run("StaysOnFallbackWhileDown", func(t *testing.T) {
		fallback.On("Acquire", ctx, "k2", "c", time.Minute).Return(true, nil).Once()

		ok, err := s.Acquire(ctx, "k2", "c", time.Minute)
		assert.NoError(t, err)
		assert.True(t, ok)
		primary.AssertNotCalled(t, "Acquire", ctx, "k2", "c", time.Minute)
	})

	t.Run("RecoversAfterInterval", func(t *testing.T) {
		now = now.Add(2 * time.Minute)
		primary.On("Acquire", ctx, "k3", "d", time.Minute).Return(true, nil).Once()

		ok, err := s.Acquire(ctx, "k3", "d", time.Minute)
		assert.NoError(t, err)
		assert.True(t, ok)
		primary.AssertExpectations(t)
	})

	t.Run("ReleaseGoesToBoth", func(t *testing.T) {
		fallback.On("Release", ctx, "k3", "d").Return(nil).Once()
		primary.On("Release", ctx, "k3", "d").Return(nil).Once()

		assert.NoError(t, s.Release(ctx, "k3", "d"))
		primary.AssertExpectations(t)
		fallback.AssertExpectations(t)
	})
}
