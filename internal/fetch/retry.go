package fetch

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy bounds how often and how patiently a request is retried
type RetryPolicy struct {
	MaxAttempts int           `mapstructure:"max_attempts" yaml:"max_attempts"`
	BaseDelay   time.Duration `mapstructure:"base_delay" yaml:"base_delay"`
	Multiplier  float64       `mapstructure:"multiplier" yaml:"multiplier"`
	MaxDelay    time.Duration `mapstructure:"max_delay" yaml:"max_delay"`
}

// DefaultRetryPolicy is 3 attempts with exponential backoff from 1s, doubling
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		Multiplier:  2,
		MaxDelay:    30 * time.Second,
	}
}

func (p RetryPolicy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

func (p RetryPolicy) exponential() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.BaseDelay
	b.Multiplier = p.Multiplier
	if b.Multiplier < 1 {
		b.Multiplier = 1
	}
	if p.MaxDelay > 0 {
		b.MaxInterval = p.MaxDelay
	}
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// BackOff returns a fresh backoff honoring the attempt budget and ctx
func (p RetryPolicy) BackOff(ctx context.Context) backoff.BackOffContext {
	return backoff.WithContext(backoff.WithMaxRetries(p.exponential(), uint64(p.attempts()-1)), ctx)
}

// Delays lists the waits between attempts, e.g. [1s 2s] for the default policy
func (p RetryPolicy) Delays() []time.Duration {
	b := backoff.WithMaxRetries(p.exponential(), uint64(p.attempts()-1))
	var out []time.Duration
	for {
		d := b.NextBackOff()
		if d == backoff.Stop {
			return out
		}
		out = append(out, d)
	}
}
