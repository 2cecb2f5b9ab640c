package fetcher_test

import (
	"context"
	"crypto/x509"
	"errors"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"cryptocycles/internal/fetcher"
	"cryptocycles/internal/httpx"
	"cryptocycles/internal/provider"
	"cryptocycles/internal/provider/ratelimit"
	"cryptocycles/internal/resolver"
)

var observed = time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

func clock() time.Time { return observed.Add(time.Minute) }

func noSleep(context.Context, time.Duration) error { return nil }

// scriptedSource answers from prices and fails the first len(errs) calls.
type scriptedSource struct {
	mu     sync.Mutex
	prices map[string]provider.Price
	errs   []error
	calls  [][]string
}

func (s *scriptedSource) Name() string { return "scripted" }

func (s *scriptedSource) Assets(context.Context) ([]provider.Asset, error) { return nil, nil }

func (s *scriptedSource) Prices(_ context.Context, ids []string) (map[string]provider.Price, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, append([]string(nil), ids...))
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		return nil, err
	}
	out := make(map[string]provider.Price, len(ids))
	for _, id := range ids {
		if p, ok := s.prices[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func mapping(t *testing.T, symbols ...string) resolver.Mapping {
	t.Helper()
	entries := make([]resolver.Entry, 0, len(symbols))
	for _, s := range symbols {
		sym := provider.Symbol(s)
		entries = append(entries, resolver.Entry{Symbol: sym, StreamID: resolver.StreamID(sym), AssetID: strings.ToLower(s) + "-id"})
	}
	m, err := resolver.NewMapping(entries)
	require.NoError(t, err)
	return m
}

func TestFetch_AllQuotes(t *testing.T) {
	t.Parallel()

	// Arrange
	src := &scriptedSource{prices: map[string]provider.Price{
		"btc-id": {Amount: "67000.12", ObservedAt: observed},
		"eth-id": {Amount: "2500.5", ObservedAt: observed},
	}}
	f := fetcher.New(src, fetcher.Config{}, nil, fetcher.WithClock(clock), fetcher.WithSleep(noSleep))

	// Act
	res := f.Fetch(t.Context(), mapping(t, "BTC", "ETH"))

	// Assert: one request carries both ids
	require.Empty(t, res.Failures)
	require.Len(t, src.calls, 1)
	require.Equal(t, 1, res.Requests)
	require.True(t, decimal.RequireFromString("67000.12").Equal(res.Quotes["BTC"].Price))
	require.Equal(t, observed, res.Quotes["BTC"].ObservedAt)
	require.Equal(t, provider.Symbol("ETH"), res.Quotes["ETH"].Symbol)
}

func TestFetch_PartialResponse_NoSubstitution(t *testing.T) {
	t.Parallel()

	// Arrange: the source knows BTC only
	src := &scriptedSource{prices: map[string]provider.Price{
		"btc-id": {Amount: "67000.12", ObservedAt: observed},
	}}
	f := fetcher.New(src, fetcher.Config{Retries: 3}, nil, fetcher.WithClock(clock), fetcher.WithSleep(noSleep))

	// Act
	res := f.Fetch(t.Context(), mapping(t, "BTC", "ETH", "SOL"))

	// Assert: missing symbols fail, are not retried and get no quote
	require.Len(t, res.Quotes, 1)
	require.Contains(t, res.Quotes, provider.Symbol("BTC"))
	require.NotContains(t, res.Quotes, provider.Symbol("ETH"))
	require.NotContains(t, res.Quotes, provider.Symbol("SOL"))
	require.ErrorIs(t, res.Failures["ETH"], fetcher.ErrMissingQuote)
	require.ErrorIs(t, res.Failures["SOL"], fetcher.ErrMissingQuote)
	require.Len(t, src.calls, 1)
}

func TestFetch_Batching(t *testing.T) {
	t.Parallel()

	// Arrange: five symbols, two ids per request
	prices := map[string]provider.Price{}
	symbols := []string{"ADA", "BTC", "DOT", "ETH", "SOL"}
	for _, s := range symbols {
		prices[strings.ToLower(s)+"-id"] = provider.Price{Amount: "1", ObservedAt: observed}
	}
	src := &scriptedSource{prices: prices}
	f := fetcher.New(src, fetcher.Config{MaxIDsPerRequest: 2, MaxConcurrency: 2}, nil, fetcher.WithClock(clock))
	m := mapping(t, symbols...)

	// Act
	res := f.Fetch(t.Context(), m)

	// Assert: ceil(5/2) requests, each within the batch limit
	require.Equal(t, 3, f.Batches(m))
	require.Len(t, src.calls, 3)
	var all []string
	for _, c := range src.calls {
		require.LessOrEqual(t, len(c), 2)
		all = append(all, c...)
	}
	sort.Strings(all)
	require.Equal(t, []string{"ada-id", "btc-id", "dot-id", "eth-id", "sol-id"}, all)
	require.Len(t, res.Quotes, 5)
}

func TestFetch_TransientRetriedThenSucceeds(t *testing.T) {
	t.Parallel()

	src := &scriptedSource{
		prices: map[string]provider.Price{"btc-id": {Amount: "1", ObservedAt: observed}},
		errs:   []error{&httpx.StatusError{StatusCode: http.StatusServiceUnavailable}, &httpx.StatusError{StatusCode: http.StatusTooManyRequests}},
	}
	f := fetcher.New(src, fetcher.Config{Retries: 2, Backoff: time.Second}, nil, fetcher.WithClock(clock), fetcher.WithSleep(noSleep))

	res := f.Fetch(t.Context(), mapping(t, "BTC"))

	require.Empty(t, res.Failures)
	require.Equal(t, 3, res.Requests)
	require.Len(t, src.calls, 3)
}

func TestFetch_TransientExhaustsRetries(t *testing.T) {
	t.Parallel()

	unavailable := &httpx.StatusError{StatusCode: http.StatusBadGateway}
	src := &scriptedSource{errs: []error{unavailable, unavailable, unavailable, unavailable}}
	f := fetcher.New(src, fetcher.Config{Retries: 2}, nil, fetcher.WithClock(clock), fetcher.WithSleep(noSleep))

	res := f.Fetch(t.Context(), mapping(t, "BTC", "ETH"))

	require.Empty(t, res.Quotes)
	require.Len(t, src.calls, 3)
	require.Equal(t, http.StatusBadGateway, httpx.StatusCode(res.Failures["BTC"]))
	require.Equal(t, http.StatusBadGateway, httpx.StatusCode(res.Failures["ETH"]))
}

func TestFetch_PermanentNotRetried(t *testing.T) {
	t.Parallel()

	src := &scriptedSource{errs: []error{&httpx.StatusError{StatusCode: http.StatusBadRequest}}}
	f := fetcher.New(src, fetcher.Config{Retries: 3}, nil, fetcher.WithClock(clock), fetcher.WithSleep(noSleep))

	res := f.Fetch(t.Context(), mapping(t, "BTC"))

	require.Len(t, src.calls, 1)
	require.Error(t, res.Failures["BTC"])
}

func TestFetch_CertificateFailureNotRetried(t *testing.T) {
	t.Parallel()

	certErr := &url.Error{Op: "Get", URL: "https://api.example.com", Err: x509.UnknownAuthorityError{}}
	src := &scriptedSource{errs: []error{certErr, certErr, certErr}}
	f := fetcher.New(src, fetcher.Config{Retries: 2}, nil, fetcher.WithClock(clock), fetcher.WithSleep(noSleep))

	res := f.Fetch(t.Context(), mapping(t, "BTC"))

	require.Len(t, src.calls, 1)
	require.Equal(t, 1, res.Requests)
	require.ErrorAs(t, res.Failures["BTC"], new(x509.UnknownAuthorityError))
}

func TestFetch_BudgetExhaustedDegrades(t *testing.T) {
	t.Parallel()

	// Arrange: a policy that refuses every request
	inner := &scriptedSource{prices: map[string]provider.Price{"btc-id": {Amount: "1", ObservedAt: observed}}}
	src := &ratelimit.Provider{P: inner, Policy: exhausted{}}
	f := fetcher.New(src, fetcher.Config{Retries: 3}, nil, fetcher.WithClock(clock), fetcher.WithSleep(noSleep))

	// Act
	res := f.Fetch(t.Context(), mapping(t, "BTC"))

	// Assert: no upstream call, failure reported, not retried
	require.Empty(t, inner.calls)
	require.True(t, errors.Is(res.Failures["BTC"], ratelimit.ErrBudgetExhausted))
	require.Equal(t, 1, res.Requests)
}

type exhausted struct{}

func (exhausted) Wait(context.Context) error { return ratelimit.ErrBudgetExhausted }

func TestFetch_InvalidQuotesDropped(t *testing.T) {
	t.Parallel()

	src := &scriptedSource{prices: map[string]provider.Price{
		"btc-id": {Amount: "-1", ObservedAt: observed},
		"eth-id": {Amount: "", ObservedAt: observed},
		"sol-id": {Amount: "150", ObservedAt: time.Time{}},
		"ada-id": {Amount: "0.5", ObservedAt: observed.Add(time.Hour)},
		"dot-id": {Amount: "0", ObservedAt: observed},
		"xrp-id": {Amount: "1e400", ObservedAt: observed},
		"trx-id": {Amount: "1.7e308", ObservedAt: observed},
	}}
	f := fetcher.New(src, fetcher.Config{}, nil, fetcher.WithClock(clock))

	res := f.Fetch(t.Context(), mapping(t, "BTC", "ETH", "SOL", "ADA", "DOT", "XRP", "TRX"))

	require.Len(t, res.Quotes, 2)
	require.True(t, res.Quotes["DOT"].Price.IsZero())
	require.Contains(t, res.Quotes, provider.Symbol("TRX"))
	for _, sym := range []provider.Symbol{"BTC", "ETH", "SOL", "ADA", "XRP"} {
		var invalid *fetcher.InvalidQuoteError
		require.Truef(t, errors.As(res.Failures[sym], &invalid), "expected invalid quote for %s, got %v", sym, res.Failures[sym])
		require.Equal(t, sym, invalid.Symbol)
	}
}

func TestFetch_EmptyMapping(t *testing.T) {
	t.Parallel()

	src := &scriptedSource{}
	f := fetcher.New(src, fetcher.Config{}, nil)

	res := f.Fetch(t.Context(), resolver.Mapping{})
	require.Empty(t, res.Quotes)
	require.Empty(t, res.Failures)
	require.Empty(t, src.calls)
	require.Zero(t, f.Batches(resolver.Mapping{}))
}
