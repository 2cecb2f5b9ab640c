// Package scheduler sequences resolve, fetch and publish for one of the
// three run modes.
//
// Cycles never overlap. In continuous mode the next cycle starts on the
// first interval boundary after the previous cycle started, or right away
// when the previous cycle ran past that boundary. Shutdown is honored
// between states: a cycle that started fetching also publishes.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"cryptocycles/internal/fetcher"
	"cryptocycles/internal/httpx"
	"cryptocycles/internal/provider"
	"cryptocycles/internal/provider/ratelimit"
	"cryptocycles/internal/publisher"
	"cryptocycles/internal/report"
	"cryptocycles/internal/resolver"
)

var (
	// ErrUnauthorized is returned when every delivery of the first cycle
	// was rejected with 401 or 403.
	ErrUnauthorized = errors.New("cycles api rejected the api key")
	// ErrNoDeliveries is returned by a test run that delivered nothing.
	ErrNoDeliveries = errors.New("no symbol was delivered")
)

type Resolver interface {
	Resolve(ctx context.Context, sel resolver.Selection) (resolver.Mapping, error)
}

type Fetcher interface {
	Fetch(ctx context.Context, m resolver.Mapping) fetcher.Result
	Batches(m resolver.Mapping) int
}

type Publisher interface {
	PublishAll(ctx context.Context, m resolver.Mapping, quotes map[provider.Symbol]provider.Quote) []publisher.DeliveryResult
}

// Reporter shows the operator what a run produced.
type Reporter interface {
	Mapping(m resolver.Mapping) error
	Summary(s report.Summary) error
}

// Recorder receives every finished cycle, e.g. for metrics.
type Recorder interface {
	ObserveCycle(s report.Summary)
}

// Observer is called on every state change.
type Observer func(from, to State)

// RunConfig is built once at startup and never changes afterwards.
type RunConfig struct {
	Mode      Mode
	Interval  Interval
	Selection resolver.Selection
}

func (c RunConfig) Validate() error {
	switch c.Mode {
	case Continuous:
		if !c.Interval.Valid() {
			return fmt.Errorf("continuous mode needs a supported interval, got %s", c.Interval)
		}
	case Test, Preview:
	default:
		return fmt.Errorf("unknown mode %s", c.Mode)
	}
	if !c.Selection.All && len(c.Selection.Symbols) == 0 {
		return resolver.ErrEmptySelection
	}
	return nil
}

type Scheduler struct {
	resolver  Resolver
	fetcher   Fetcher
	publisher Publisher
	reporter  Reporter
	recorder  Recorder
	observer  Observer
	logger    *slog.Logger

	now           func() time.Time
	sleep         func(ctx context.Context, d time.Duration) error
	newID         func() uuid.UUID
	monthlyBudget int

	state atomic.Int32
}

// Option configures a Scheduler.
type Option func(*Scheduler)

func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// WithSleep overrides the wait between cycles.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(s *Scheduler) { s.sleep = sleep }
}

func WithObserver(o Observer) Option {
	return func(s *Scheduler) { s.observer = o }
}

func WithRecorder(r Recorder) Option {
	return func(s *Scheduler) { s.recorder = r }
}

// WithMonthlyBudget enables the startup estimate of upstream usage.
func WithMonthlyBudget(n int) Option {
	return func(s *Scheduler) { s.monthlyBudget = n }
}

// WithIDs overrides how cycle ids are generated.
func WithIDs(newID func() uuid.UUID) Option {
	return func(s *Scheduler) { s.newID = newID }
}

func New(r Resolver, f Fetcher, p Publisher, rep Reporter, logger *slog.Logger, opts ...Option) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{
		resolver:  r,
		fetcher:   f,
		publisher: p,
		reporter:  rep,
		logger:    logger,
		now:       time.Now,
		sleep:     httpx.Sleep,
		newID:     uuid.New,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns the current state. Safe for concurrent use.
func (s *Scheduler) State() State {
	return State(s.state.Load())
}

// Run executes cfg until the mode completes or ctx is canceled. A canceled
// ctx is not an error. Work already started runs on a context that ignores
// cancellation; per-request timeouts still apply.
func (s *Scheduler) Run(ctx context.Context, cfg RunConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	defer s.transition(Stopped)
	if ctx.Err() != nil {
		return nil
	}
	work := context.WithoutCancel(ctx)

	s.transition(Resolving)
	m, err := s.resolver.Resolve(work, cfg.Selection)
	if err != nil {
		return fmt.Errorf("resolve streams: %w", err)
	}
	s.logger.Info("streams resolved",
		"mode", cfg.Mode,
		"selection", cfg.Selection,
		"streams", m.Len(),
	)

	switch cfg.Mode {
	case Preview:
		return s.report(m)
	case Test:
		if ctx.Err() != nil {
			return nil
		}
		sum := s.cycle(work, cfg, m)
		if sum.Unauthorized() {
			return ErrUnauthorized
		}
		if len(sum.Succeeded()) == 0 {
			return ErrNoDeliveries
		}
		return nil
	default:
		return s.loop(ctx, work, cfg, m)
	}
}

func (s *Scheduler) report(m resolver.Mapping) error {
	if s.reporter == nil {
		return nil
	}
	if err := s.reporter.Mapping(m); err != nil {
		return fmt.Errorf("report mapping: %w", err)
	}
	return nil
}

// loop runs continuous mode. The mapping resolved at startup is reused by
// every cycle so stream ids never change while the process lives.
func (s *Scheduler) loop(ctx, work context.Context, cfg RunConfig, m resolver.Mapping) error {
	s.checkBudget(cfg, m)
	for first := true; ; first = false {
		if ctx.Err() != nil {
			return nil
		}
		sum := s.cycle(work, cfg, m)
		if first && sum.Unauthorized() {
			return ErrUnauthorized
		}
		if ctx.Err() != nil {
			return nil
		}

		next := cfg.Interval.Next(sum.StartedAt)
		s.transition(Sleeping)
		if wait := next.Sub(s.now()); wait > 0 {
			s.logger.Debug("waiting for next boundary", "next", next, "wait", wait)
			if err := s.sleep(ctx, wait); err != nil {
				return nil
			}
		} else {
			s.logger.Warn("cycle overran its interval, starting the next one now",
				"boundary", next,
				"late", -wait,
			)
		}
		if ctx.Err() != nil {
			return nil
		}
		s.transition(Resolving)
	}
}

func (s *Scheduler) cycle(ctx context.Context, cfg RunConfig, m resolver.Mapping) report.Summary {
	id := s.newID()
	started := s.now()
	log := s.logger.With("cycle", id)

	s.transition(Fetching)
	fetched := s.fetcher.Fetch(ctx, m)
	failed := make([]provider.Symbol, 0, len(fetched.Failures))
	for sym := range fetched.Failures {
		failed = append(failed, sym)
	}
	sort.Slice(failed, func(i, j int) bool { return failed[i] < failed[j] })
	for _, sym := range failed {
		log.Warn("fetch failed", "symbol", sym, "err", fetched.Failures[sym])
	}

	s.transition(Publishing)
	deliveries := s.publisher.PublishAll(ctx, m, fetched.Quotes)

	sum := report.Build(id, cfg.Mode.String(), started, s.now().Sub(started), m, fetched, deliveries)
	log.Info("cycle finished",
		"delivered", len(sum.Succeeded()),
		"failed", len(sum.Failed()),
		"requests", sum.Requests,
		"duration", sum.Duration,
	)
	if s.recorder != nil {
		s.recorder.ObserveCycle(sum)
	}
	if s.reporter != nil {
		if err := s.reporter.Summary(sum); err != nil {
			log.Warn("report summary", "err", err)
		}
	}
	return sum
}

// checkBudget warns when the projected monthly upstream usage is above the budget.
func (s *Scheduler) checkBudget(cfg RunConfig, m resolver.Mapping) {
	if s.monthlyBudget <= 0 {
		return
	}
	est := ratelimit.EstimateMonthly(s.fetcher.Batches(m), cfg.Interval.Duration())
	if est > s.monthlyBudget {
		s.logger.Warn("interval will exceed the monthly request budget; later cycles will fail until the month resets",
			"interval", cfg.Interval,
			"estimated_requests", est,
			"monthly_budget", s.monthlyBudget,
		)
		return
	}
	s.logger.Debug("monthly request estimate",
		"interval", cfg.Interval,
		"estimated_requests", est,
		"monthly_budget", s.monthlyBudget,
	)
}

func (s *Scheduler) transition(to State) {
	from := State(s.state.Swap(int32(to)))
	if from == to {
		return
	}
	s.logger.Debug("state change", "from", from, "to", to)
	if s.observer != nil {
		s.observer(from, to)
	}
}
