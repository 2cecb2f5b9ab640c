package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"cryptocycles/internal/provider"
)

func TestLimiter_MonthlyBudgetExhausts(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	l := NewLimiter(Config{MonthlyBudget: 2}, WithClock(func() time.Time { return now }))

	require.NoError(t, l.Wait(t.Context()))
	require.NoError(t, l.Wait(t.Context()))
	err := l.Wait(t.Context())
	require.ErrorIs(t, err, ErrBudgetExhausted)
	require.Equal(t, 2, l.Used())
	require.Equal(t, 0, l.Remaining())
}

func TestLimiter_MonthlyBudgetResetsOnNewMonth(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 1, 31, 23, 59, 0, 0, time.UTC)
	l := NewLimiter(Config{MonthlyBudget: 1}, WithClock(func() time.Time { return now }))

	require.NoError(t, l.Wait(t.Context()))
	require.ErrorIs(t, l.Wait(t.Context()), ErrBudgetExhausted)

	now = now.Add(2 * time.Minute)
	require.NoError(t, l.Wait(t.Context()))
	require.Equal(t, 1, l.Used())
}

func TestLimiter_CanceledWaitDoesNotSpendBudget(t *testing.T) {
	t.Parallel()

	// One request per minute with the single token already taken: the
	// second Wait must block and then observe cancellation.
	l := NewLimiter(Config{MaxRequestsPerMinute: 1, MonthlyBudget: 10})
	require.NoError(t, l.Wait(t.Context()))

	ctx, cancel := context.WithTimeout(t.Context(), 10*time.Millisecond)
	defer cancel()
	require.Error(t, l.Wait(ctx))
	require.Equal(t, 1, l.Used())
}

func TestLimiter_Unbounded(t *testing.T) {
	t.Parallel()

	l := NewLimiter(Config{})
	for i := 0; i < 100; i++ {
		require.NoError(t, l.Wait(t.Context()))
	}
	require.Equal(t, -1, l.Remaining())
}

func TestEstimateMonthly(t *testing.T) {
	t.Parallel()

	require.Equal(t, 21600, EstimateMonthly(1, 2*time.Minute))
	require.Equal(t, 2880, EstimateMonthly(1, 15*time.Minute))
	require.Equal(t, 0, EstimateMonthly(0, time.Minute))
}

type countingProvider struct{ assets, prices int }

func (c *countingProvider) Name() string { return "counting" }
func (c *countingProvider) Assets(context.Context) ([]provider.Asset, error) {
	c.assets++
	return nil, nil
}
func (c *countingProvider) Prices(context.Context, []string) (map[string]provider.Price, error) {
	c.prices++
	return map[string]provider.Price{}, nil
}

type denyPolicy struct{}

func (denyPolicy) Wait(context.Context) error { return ErrBudgetExhausted }

func TestProvider_PolicyGatesCalls(t *testing.T) {
	t.Parallel()

	inner := &countingProvider{}
	p := &Provider{P: inner, Policy: denyPolicy{}}

	_, err := p.Assets(t.Context())
	require.True(t, errors.Is(err, ErrBudgetExhausted))
	_, err = p.Prices(t.Context(), []string{"bitcoin"})
	require.ErrorIs(t, err, ErrBudgetExhausted)
	require.Zero(t, inner.assets)
	require.Zero(t, inner.prices)

	p.Policy = nil
	_, err = p.Prices(t.Context(), []string{"bitcoin"})
	require.NoError(t, err)
	require.Equal(t, 1, inner.prices)
	require.Equal(t, "counting", p.Name())
}
