package queue

import (
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/spec-kit/triage-engine/internal/config"
)

// RetryPolicy bounds redelivery of failed jobs.
type RetryPolicy struct {
	MaxAttempts int
	Initial     time.Duration
	Max         time.Duration
}

// RetryPolicyFromConfig builds the policy from queue settings.
func RetryPolicyFromConfig(cfg config.QueueConfig) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: cfg.MaxAttempts,
		Initial:     cfg.BackoffInitial(),
		Max:         cfg.BackoffMax(),
	}
}

// Exhausted reports whether a job that just failed its attempt-th try (0-based)
// may not be retried.
func (p RetryPolicy) Exhausted(attempt int) bool {
	return attempt+1 >= max(1, p.MaxAttempts)
}

// Delay is the wait before retrying after the attempt-th failure. It doubles
// from Initial and is capped at Max.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.Initial
	b.MaxInterval = p.Max
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()

	delay := b.NextBackOff()
	for i := 0; i < attempt; i++ {
		delay = b.NextBackOff()
	}
	return delay
}
