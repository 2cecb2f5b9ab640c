package config

import (
	"errors"
	"fmt"
	"net/url"

	"cryptocycles/internal/provider"
)

// ErrMissingAPIKey is returned when publishing is requested without a Cycles key.
var ErrMissingAPIKey = errors.New("cycles.api_key is required (set CYCLES_API_KEY)")

// Validate reports the first invalid field. The Cycles key is only
// required when points will be published, i.e. not in preview.
func (c *Config) Validate(publishing bool) error {
	if c.RequestTimeoutSec < 1 {
		return fmt.Errorf("request_timeout_sec must be >= 1, got %d", c.RequestTimeoutSec)
	}
	for _, s := range c.Symbols {
		if _, err := provider.ParseSymbol(s); err != nil {
			return fmt.Errorf("symbols: %w", err)
		}
	}
	for sym, id := range c.Streams {
		if _, err := provider.ParseSymbol(sym); err != nil {
			return fmt.Errorf("streams: %w", err)
		}
		if id == "" {
			return fmt.Errorf("streams.%s must not be empty", sym)
		}
	}

	if publishing && c.Cycles.APIKey == "" {
		return ErrMissingAPIKey
	}
	if err := validateURL("cycles.endpoint", c.Cycles.Endpoint); err != nil {
		return err
	}
	if c.Cycles.StreamQuota < 0 {
		return errors.New("cycles.stream_quota must be >= 0")
	}
	if c.Cycles.MaxRetries < 0 {
		return errors.New("cycles.max_retries must be >= 0")
	}
	if c.Cycles.BackoffMS < 0 {
		return errors.New("cycles.backoff_ms must be >= 0")
	}
	if c.Cycles.PublishConcurrency < 1 {
		return errors.New("cycles.publish_concurrency must be >= 1")
	}

	cg := c.CoinGecko
	if err := validateURL("coingecko.base_url", cg.BaseURL); err != nil {
		return err
	}
	if cg.VsCurrency == "" {
		return errors.New("coingecko.vs_currency is required")
	}
	if cg.APIKey != "" && cg.APIKeyHeader == "" {
		return errors.New("coingecko.api_key_header is required with coingecko.api_key")
	}
	if cg.UniverseSize < 1 || cg.UniverseSize > 250 {
		return fmt.Errorf("coingecko.universe_size must be between 1 and 250, got %d", cg.UniverseSize)
	}
	if cg.MaxIDsPerRequest < 1 {
		return errors.New("coingecko.max_ids_per_request must be >= 1")
	}
	if cg.MaxConcurrency < 1 {
		return errors.New("coingecko.max_concurrency must be >= 1")
	}
	if cg.MaxRequestsPerMinute < 0 {
		return errors.New("coingecko.max_requests_per_minute must be >= 0")
	}
	if cg.MonthlyRequestBudget < 0 {
		return errors.New("coingecko.monthly_request_budget must be >= 0")
	}
	if cg.MaxRetries < 0 {
		return errors.New("coingecko.max_retries must be >= 0")
	}
	if cg.BackoffMS < 0 {
		return errors.New("coingecko.backoff_ms must be >= 0")
	}
	return nil
}

func validateURL(field, raw string) error {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%s must be an http(s) URL, got %q", field, raw)
	}
	return nil
}
