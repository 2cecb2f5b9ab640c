package publisher

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"cryptocycles/internal/cycles"
	"cryptocycles/internal/httpx"
	"cryptocycles/internal/provider"
	"cryptocycles/internal/resolver"
)

// Submitter delivers one point to the ingestion API.
//
//go:generate mockgen -package=publisher_test -destination=mock_submitter_test.go -source=publisher.go Submitter
type Submitter interface {
	SubmitStreamData(ctx context.Context, p cycles.Point) error
}

type Config struct {
	// MaxRetries is the number of attempts after the first for transient errors.
	MaxRetries int
	Backoff    time.Duration
	MaxBackoff time.Duration
	// Concurrency bounds in-flight deliveries in PublishAll. Defaults to 4.
	Concurrency int
}

// DeliveryResult is the outcome of one symbol's delivery.
type DeliveryResult struct {
	Symbol     provider.Symbol
	StreamID   string
	Success    bool
	StatusCode int
	Attempts   int
	Err        error
}

// Unauthorized reports whether the ingestion API rejected the key.
func (r DeliveryResult) Unauthorized() bool {
	return r.StatusCode == http.StatusUnauthorized || r.StatusCode == http.StatusForbidden
}

type Publisher struct {
	submitter Submitter
	cfg       Config
	logger    *slog.Logger
	sleep     func(ctx context.Context, d time.Duration) error
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithSleep overrides the wait between retries.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(p *Publisher) { p.sleep = sleep }
}

func New(submitter Submitter, cfg Config, logger *slog.Logger, opts ...Option) *Publisher {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	p := &Publisher{submitter: submitter, cfg: cfg, logger: logger, sleep: httpx.Sleep}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Publish sends one UPSERT for quote to streamID.
func (p *Publisher) Publish(ctx context.Context, symbol provider.Symbol, streamID string, quote provider.Quote) DeliveryResult {
	point := cycles.NewUpsert(streamID, quote.ObservedAt, quote.Price)
	backoff := httpx.Backoff{
		Retries: p.cfg.MaxRetries,
		Initial: p.cfg.Backoff,
		Max:     p.cfg.MaxBackoff,
		Jitter:  true,
		Sleep:   p.sleep,
		OnRetry: func(attempt int, delay time.Duration, lastErr error) {
			p.logger.Debug("retrying delivery",
				"symbol", symbol,
				"stream_id", streamID,
				"attempt", attempt,
				"backoff", delay,
				"err", lastErr,
			)
		},
	}
	attempts, err := httpx.Retry(ctx, backoff, func(ctx context.Context) error {
		return p.submitter.SubmitStreamData(ctx, point)
	})

	res := DeliveryResult{
		Symbol:     symbol,
		StreamID:   streamID,
		Success:    err == nil,
		StatusCode: httpx.StatusCode(err),
		Attempts:   attempts,
		Err:        err,
	}
	if err != nil {
		p.logger.Warn("delivery failed",
			"symbol", symbol,
			"stream_id", streamID,
			"status", res.StatusCode,
			"attempts", attempts,
			"err", err,
		)
	}
	return res
}

// PublishAll delivers every quote whose symbol is in m. Deliveries are
// independent; the call returns once all of them finished, sorted by symbol.
func (p *Publisher) PublishAll(ctx context.Context, m resolver.Mapping, quotes map[provider.Symbol]provider.Quote) []DeliveryResult {
	var (
		mu      sync.Mutex
		results = make([]DeliveryResult, 0, len(quotes))
		g       errgroup.Group
	)
	g.SetLimit(p.cfg.Concurrency)
	for _, e := range m.Entries() {
		q, ok := quotes[e.Symbol]
		if !ok {
			continue
		}
		g.Go(func() error {
			r := p.Publish(ctx, e.Symbol, e.StreamID, q)
			mu.Lock()
			results = append(results, r)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i].Symbol < results[j].Symbol })
	return results
}
