package worker

import (
	"math"
	"time"

	"bizpulse/internal/models"
)

// RetryPolicy defines exponential backoff parameters.
type RetryPolicy struct {
	MaxRetries    int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// PolicyFromConfig converts a tenant retry config (milliseconds) into a policy.
func PolicyFromConfig(rc models.RetryConfig) RetryPolicy {
	return RetryPolicy{
		MaxRetries:    rc.MaxRetries,
		InitialDelay:  time.Duration(rc.InitialDelay) * time.Millisecond,
		MaxDelay:      time.Duration(rc.MaxDelay) * time.Millisecond,
		BackoffFactor: rc.BackoffMultiplier,
	}
}

// NextDelay returns delay for a given attempt (1-based):
// min(InitialDelay * BackoffFactor^(attempt-1), MaxDelay).
func (r RetryPolicy) NextDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if r.InitialDelay <= 0 {
		r.InitialDelay = time.Second
	}
	if r.BackoffFactor <= 0 {
		r.BackoffFactor = 2
	}

	delay := float64(r.InitialDelay) * math.Pow(r.BackoffFactor, float64(attempt-1))
	if r.MaxDelay > 0 && delay > float64(r.MaxDelay) {
		return r.MaxDelay
	}
	// переполнение при больших attempt
	if delay >= math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(delay)
}

// Decision is the outcome of one failed attempt.
type Decision struct {
	Retry   bool
	Attempt int
	Delay   time.Duration
}

// Decide classifies a failure of a job that has already been retried retryCount times.
func (r RetryPolicy) Decide(retryCount int) Decision {
	attempt := retryCount + 1
	if attempt > r.MaxRetries {
		return Decision{Attempt: attempt}
	}
	return Decision{Retry: true, Attempt: attempt, Delay: r.NextDelay(attempt)}
}
