package httpx

import (
	"context"
	"math/rand/v2"
	"time"
)

// Backoff configures Retry. Retries is the number of attempts after the
// first one; the delay doubles from Initial up to Max.
type Backoff struct {
	Retries int
	Initial time.Duration
	Max     time.Duration
	// Jitter spreads each delay over [d/2, 3d/2).
	Jitter bool
	// Sleep waits between attempts. Nil uses a context-aware timer.
	Sleep func(ctx context.Context, d time.Duration) error
	// OnRetry is called before each retry with the attempt about to run.
	OnRetry func(attempt int, delay time.Duration, lastErr error)
}

// Retry calls fn until it succeeds, returns a non-transient error, or the
// retry budget is spent. It returns the number of attempts made.
func Retry(ctx context.Context, b Backoff, fn func(ctx context.Context) error) (int, error) {
	sleep := b.Sleep
	if sleep == nil {
		sleep = Sleep
	}
	delay := b.Initial
	attempts := 0
	for {
		attempts++
		err := fn(ctx)
		if err == nil {
			return attempts, nil
		}
		if attempts > b.Retries || !IsTransient(err) {
			return attempts, err
		}

		d := delay
		if b.Jitter && d > 0 {
			d = d/2 + time.Duration(rand.Int64N(int64(d)))
		}
		if b.OnRetry != nil {
			b.OnRetry(attempts+1, d, err)
		}
		if d > 0 {
			if serr := sleep(ctx, d); serr != nil {
				return attempts, err
			}
		}

		delay *= 2
		if b.Max > 0 && delay > b.Max {
			delay = b.Max
		}
	}
}

// Sleep blocks for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
