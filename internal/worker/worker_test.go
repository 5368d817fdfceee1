package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"bizpulse/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestRetryPolicyNextDelay(t *testing.T) {
	policy := RetryPolicy{InitialDelay: time.Second, BackoffFactor: 2, MaxDelay: 5 * time.Second}
	d1 := policy.NextDelay(1)
	d2 := policy.NextDelay(2)
	d3 := policy.NextDelay(5)

	assert.Equal(t, time.Second, d1)
	assert.Equal(t, 2*time.Second, d2)
	assert.Equal(t, 5*time.Second, d3)
	assert.Equal(t, time.Second, policy.NextDelay(0))
}

func TestRetryPolicy_DefaultTenantSequence(t *testing.T) {
	policy := PolicyFromConfig(models.RetryConfig{
		MaxRetries:        3,
		InitialDelay:      60000,
		MaxDelay:          3600000,
		BackoffMultiplier: 2,
	})

	var prev time.Duration
	for attempt := 1; attempt <= 10; attempt++ {
		d := policy.NextDelay(attempt)
		assert.GreaterOrEqual(t, d, prev, "delay must not decrease")
		assert.LessOrEqual(t, d, time.Hour)
		prev = d
	}

	assert.Equal(t, 60*time.Second, policy.NextDelay(1))
	assert.Equal(t, 120*time.Second, policy.NextDelay(2))
	assert.Equal(t, 240*time.Second, policy.NextDelay(3))
	assert.Equal(t, time.Hour, policy.NextDelay(100))
}

func TestRetryPolicyDecide(t *testing.T) {
	policy := PolicyFromConfig(models.RetryConfig{MaxRetries: 3, InitialDelay: 60000, MaxDelay: 3600000, BackoffMultiplier: 2})

	tests := []struct {
		retryCount int
		want       Decision
	}{
		{0, Decision{Retry: true, Attempt: 1, Delay: time.Minute}},
		{1, Decision{Retry: true, Attempt: 2, Delay: 2 * time.Minute}},
		{2, Decision{Retry: true, Attempt: 3, Delay: 4 * time.Minute}},
		{3, Decision{Retry: false, Attempt: 4}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, policy.Decide(tt.retryCount))
	}

	noRetries := RetryPolicy{MaxRetries: 0}
	assert.False(t, noRetries.Decide(0).Retry)
}

type mockSource struct {
	mock.Mock
}

func (m *mockSource) GetDueRetryJobs(ctx context.Context, now time.Time, limit int) ([]*models.SyncJob, error) {
	args := m.Called(ctx, now, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.SyncJob), args.Error(1)
}

func TestRetrySweeper_Sweep(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	source := new(mockSource)
	jobs := []*models.SyncJob{
		{ID: "j1", JobType: models.JobTypeGA4Daily},
		{ID: "j2", JobType: models.JobTypeManual},
		{ID: "j3", JobType: models.JobTypeCleanup},
	}
	source.On("GetDueRetryJobs", mock.Anything, now, 10).Return(jobs, nil).Once()

	var handled []string
	s := NewRetrySweeper(source, func(_ context.Context, job *models.SyncJob) {
		handled = append(handled, job.ID)
	}, 10, nil)
	s.now = func() time.Time { return now }

	n := s.Sweep(context.Background())
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"j1", "j3"}, handled)
	source.AssertExpectations(t)
}

func TestRetrySweeper_SourceError(t *testing.T) {
	source := new(mockSource)
	source.On("GetDueRetryJobs", mock.Anything, mock.Anything, 50).Return(nil, errors.New("db locked")).Once()

	called := false
	s := NewRetrySweeper(source, func(context.Context, *models.SyncJob) { called = true }, 0, nil)

	assert.Equal(t, 0, s.Sweep(context.Background()))
	assert.False(t, called)
}

func TestRetrySweeper_SkipsOverlap(t *testing.T) {
	source := new(mockSource)
	release := make(chan struct{})
	started := make(chan struct{})
	source.On("GetDueRetryJobs", mock.Anything, mock.Anything, 50).
		Return([]*models.SyncJob{{ID: "j1", JobType: models.JobTypeN8nRealtime}}, nil)

	s := NewRetrySweeper(source, func(context.Context, *models.SyncJob) {
		close(started)
		<-release
	}, 50, nil)

	done := make(chan int)
	go func() { done <- s.Sweep(context.Background()) }()
	<-started

	assert.Equal(t, 0, s.Sweep(context.Background()))
	close(release)
	require.Equal(t, 1, <-done)
}
