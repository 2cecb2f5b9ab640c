// Package fetcher retrieves validated quotes for a stream mapping.
//
// Symbols are batched into as few upstream requests as the source allows,
// every request goes through the source's rate policy, transient failures
// are retried a bounded number of times, and anything that cannot be
// validated is reported as a per-symbol failure instead of a quote.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"cryptocycles/internal/httpx"
	"cryptocycles/internal/provider"
	"cryptocycles/internal/resolver"
)

// ErrMissingQuote marks a symbol the source did not answer for.
var ErrMissingQuote = errors.New("source returned no price")

// InvalidQuoteError marks a price that failed validation.
type InvalidQuoteError struct {
	Symbol provider.Symbol
	Reason string
}

func (e *InvalidQuoteError) Error() string {
	return fmt.Sprintf("invalid quote for %s: %s", e.Symbol, e.Reason)
}

// PriceSource is the part of provider.Provider the fetcher needs.
type PriceSource interface {
	Prices(ctx context.Context, ids []string) (map[string]provider.Price, error)
}

type Config struct {
	// MaxIDsPerRequest splits the mapping into batches; <= 0 means one request.
	MaxIDsPerRequest int
	// MaxConcurrency bounds concurrent batches. Defaults to 1.
	MaxConcurrency int
	// Retries and Backoff apply to transient failures of a batch.
	Retries int
	Backoff time.Duration
	// MaxClockSkew tolerates observation times slightly ahead of local time.
	MaxClockSkew time.Duration
}

// Result holds one cycle's quotes and per-symbol failures. Every symbol of
// the mapping appears in exactly one of the two maps.
type Result struct {
	Quotes   map[provider.Symbol]provider.Quote
	Failures map[provider.Symbol]error
	// Requests counts upstream attempts, retries included.
	Requests int
}

type Fetcher struct {
	cfg    Config
	source PriceSource
	logger *slog.Logger
	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithClock overrides the clock used for timestamp validation.
func WithClock(now func() time.Time) Option {
	return func(f *Fetcher) { f.now = now }
}

// WithSleep overrides the wait between retries.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(f *Fetcher) { f.sleep = sleep }
}

func New(source PriceSource, cfg Config, logger *slog.Logger, opts ...Option) *Fetcher {
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 1
	}
	if cfg.MaxClockSkew <= 0 {
		cfg.MaxClockSkew = 5 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	f := &Fetcher{cfg: cfg, source: source, logger: logger, now: time.Now, sleep: httpx.Sleep}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Batches returns how many upstream requests a fetch of m needs without retries.
func (f *Fetcher) Batches(m resolver.Mapping) int {
	return len(chunkStrings(assetIDs(m), f.cfg.MaxIDsPerRequest))
}

// Fetch retrieves quotes for every symbol of m. It never fails as a whole:
// batch errors are attributed to the symbols of that batch.
func (f *Fetcher) Fetch(ctx context.Context, m resolver.Mapping) Result {
	res := Result{
		Quotes:   make(map[provider.Symbol]provider.Quote, m.Len()),
		Failures: make(map[provider.Symbol]error),
	}
	if m.Len() == 0 {
		return res
	}

	symbolsByID := make(map[string][]provider.Symbol, m.Len())
	for _, e := range m.Entries() {
		symbolsByID[e.AssetID] = append(symbolsByID[e.AssetID], e.Symbol)
	}

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(f.cfg.MaxConcurrency)
	for _, batch := range chunkStrings(assetIDs(m), f.cfg.MaxIDsPerRequest) {
		g.Go(func() error {
			prices, attempts, err := f.fetchBatch(ctx, batch)
			now := f.now()

			mu.Lock()
			defer mu.Unlock()
			res.Requests += attempts
			for _, id := range batch {
				for _, sym := range symbolsByID[id] {
					if err != nil {
						res.Failures[sym] = err
						continue
					}
					p, ok := prices[id]
					if !ok {
						res.Failures[sym] = ErrMissingQuote
						continue
					}
					q, verr := validate(sym, p, now, f.cfg.MaxClockSkew)
					if verr != nil {
						res.Failures[sym] = verr
						continue
					}
					res.Quotes[sym] = q
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	f.logger.Debug("quotes fetched",
		"quotes", len(res.Quotes),
		"failures", len(res.Failures),
		"requests", res.Requests,
	)
	return res
}

func (f *Fetcher) fetchBatch(ctx context.Context, ids []string) (map[string]provider.Price, int, error) {
	var prices map[string]provider.Price
	backoff := httpx.Backoff{
		Retries: f.cfg.Retries,
		Initial: f.cfg.Backoff,
		Max:     30 * time.Second,
		Jitter:  true,
		Sleep:   f.sleep,
		OnRetry: func(attempt int, delay time.Duration, lastErr error) {
			f.logger.Debug("retrying price request",
				"attempt", attempt,
				"backoff", delay,
				"ids", len(ids),
				"err", lastErr,
			)
		},
	}
	attempts, err := httpx.Retry(ctx, backoff, func(ctx context.Context) error {
		p, err := f.source.Prices(ctx, ids)
		if err != nil {
			return err
		}
		prices = p
		return nil
	})
	if err != nil {
		return nil, attempts, fmt.Errorf("fetch prices: %w", err)
	}
	return prices, attempts, nil
}

// maxAmount is the largest price a float64 JSON consumer can represent.
var maxAmount = decimal.NewFromFloat(math.MaxFloat64)

func validate(sym provider.Symbol, p provider.Price, now time.Time, skew time.Duration) (provider.Quote, error) {
	d, err := decimal.NewFromString(p.Amount)
	if err != nil {
		return provider.Quote{}, &InvalidQuoteError{Symbol: sym, Reason: fmt.Sprintf("price %q is not a number", p.Amount)}
	}
	if d.IsNegative() {
		return provider.Quote{}, &InvalidQuoteError{Symbol: sym, Reason: "negative price " + d.String()}
	}
	if d.GreaterThan(maxAmount) {
		return provider.Quote{}, &InvalidQuoteError{Symbol: sym, Reason: fmt.Sprintf("price %q exceeds float64 range", p.Amount)}
	}
	if p.ObservedAt.IsZero() {
		return provider.Quote{}, &InvalidQuoteError{Symbol: sym, Reason: "missing observation time"}
	}
	ts := p.ObservedAt.UTC()
	if ts.After(now.Add(skew)) {
		return provider.Quote{}, &InvalidQuoteError{Symbol: sym, Reason: "observation time " + ts.Format(time.RFC3339) + " is in the future"}
	}
	return provider.Quote{Symbol: sym, Price: d, ObservedAt: ts}, nil
}

func assetIDs(m resolver.Mapping) []string {
	seen := make(map[string]struct{}, m.Len())
	ids := make([]string, 0, m.Len())
	for _, e := range m.Entries() {
		if _, ok := seen[e.AssetID]; ok {
			continue
		}
		seen[e.AssetID] = struct{}{}
		ids = append(ids, e.AssetID)
	}
	return ids
}

func chunkStrings(in []string, size int) [][]string {
	if len(in) == 0 {
		return nil
	}
	if size <= 0 {
		return [][]string{in}
	}
	out := make([][]string, 0, (len(in)+size-1)/size)
	for i := 0; i < len(in); i += size {
		j := min(i+size, len(in))
		out = append(out, in[i:j])
	}
	return out
}
