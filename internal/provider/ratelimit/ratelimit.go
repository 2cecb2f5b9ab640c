package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ErrBudgetExhausted is returned when the monthly request budget is spent.
var ErrBudgetExhausted = errors.New("monthly request budget exhausted")

// Policy gates upstream requests. Wait blocks until one request may be made
// or returns an error if none may be made.
type Policy interface {
	Wait(ctx context.Context) error
}

// Config bounds upstream usage. Zero values disable the respective limit.
type Config struct {
	MaxRequestsPerMinute int
	Burst                int
	MonthlyBudget        int
}

// Limiter combines a per-minute token bucket with a monthly request counter
// that resets at the start of each UTC calendar month.
type Limiter struct {
	minute  *rate.Limiter
	monthly int
	now     func() time.Time

	mu    sync.Mutex
	month time.Time
	used  int
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock overrides the clock used for the monthly window.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

func NewLimiter(cfg Config, opts ...Option) *Limiter {
	limit := rate.Inf
	if cfg.MaxRequestsPerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(cfg.MaxRequestsPerMinute))
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	l := &Limiter{
		minute:  rate.NewLimiter(limit, burst),
		monthly: cfg.MonthlyBudget,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Limiter) Wait(ctx context.Context) error {
	if err := l.reserve(); err != nil {
		return err
	}
	if err := l.minute.Wait(ctx); err != nil {
		l.release()
		return err
	}
	return nil
}

func (l *Limiter) reserve() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.roll()
	if l.monthly > 0 && l.used >= l.monthly {
		return fmt.Errorf("%w: %d/%d requests used since %s", ErrBudgetExhausted, l.used, l.monthly, l.month.Format("2006-01"))
	}
	l.used++
	return nil
}

func (l *Limiter) release() {
	l.mu.Lock()
	if l.used > 0 {
		l.used--
	}
	l.mu.Unlock()
}

// roll resets the counter when the UTC month changes. Callers hold mu.
func (l *Limiter) roll() {
	now := l.now().UTC()
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	if !start.Equal(l.month) {
		l.month = start
		l.used = 0
	}
}

// Used returns the requests counted in the current month.
func (l *Limiter) Used() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.roll()
	return l.used
}

// Remaining returns the requests left this month, or -1 when unbounded.
func (l *Limiter) Remaining() int {
	if l.monthly <= 0 {
		return -1
	}
	return l.monthly - l.Used()
}

// Budget returns the configured monthly budget (0 when unbounded).
func (l *Limiter) Budget() int { return l.monthly }

// EstimateMonthly projects the requests a 30-day month of cycles would make.
func EstimateMonthly(callsPerCycle int, every time.Duration) int {
	if every <= 0 || callsPerCycle <= 0 {
		return 0
	}
	cycles := int((30 * 24 * time.Hour) / every)
	return cycles * callsPerCycle
}
