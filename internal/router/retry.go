package router

import (
	"context"
	"time"
)

// Policy bounds retries of remote writes: a fixed attempt count with
// exponential backoff and a ceiling on the total wait.
type Policy struct {
	Attempts       int
	InitialBackoff time.Duration
	Multiplier     float64
	MaxElapsed     time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		Attempts:       3,
		InitialBackoff: 500 * time.Millisecond,
		Multiplier:     2.0,
		MaxElapsed:     30 * time.Second,
	}
}

// Do runs fn until it succeeds, returns a non-retryable error, or the policy
// is exhausted. The last error is returned when attempts run out.
func (p Policy) Do(ctx context.Context, retryable func(error) bool, fn func() error) error {
	attempts := p.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	backoff := p.InitialBackoff
	start := time.Now()

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = fn()
		if err == nil || !retryable(err) {
			return err
		}
		if attempt == attempts {
			break
		}
		if p.MaxElapsed > 0 && time.Since(start)+backoff > p.MaxElapsed {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff = time.Duration(float64(backoff) * p.Multiplier)
	}
	return err
}
