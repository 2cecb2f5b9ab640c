package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"gopkg.in/yaml.v3"
)

type Cycles struct {
	Endpoint string `json:"endpoint" yaml:"endpoint" env:"CYCLES_ENDPOINT"`
	APIKey   string `json:"api_key" yaml:"api_key" env:"CYCLES_API_KEY"`
	// StreamQuota is the plan's stream limit; 0 disables the startup check.
	StreamQuota        int `json:"stream_quota" yaml:"stream_quota" env:"CYCLES_STREAM_QUOTA"`
	MaxRetries         int `json:"max_retries" yaml:"max_retries" env:"CYCLES_MAX_RETRIES"`
	BackoffMS          int `json:"backoff_ms" yaml:"backoff_ms" env:"CYCLES_BACKOFF_MS"`
	PublishConcurrency int `json:"publish_concurrency" yaml:"publish_concurrency" env:"CYCLES_PUBLISH_CONCURRENCY"`
}

type CoinGecko struct {
	BaseURL      string `json:"base_url" yaml:"base_url" env:"COINGECKO_BASE_URL"`
	APIKey       string `json:"api_key" yaml:"api_key" env:"COINGECKO_API_KEY"`
	APIKeyHeader string `json:"api_key_header" yaml:"api_key_header" env:"COINGECKO_API_KEY_HEADER"`
	VsCurrency   string `json:"vs_currency" yaml:"vs_currency" env:"COINGECKO_VS_CURRENCY"`
	// UniverseSize is how many top coins by market cap are resolvable.
	UniverseSize         int `json:"universe_size" yaml:"universe_size" env:"COINGECKO_UNIVERSE_SIZE"`
	MaxIDsPerRequest     int `json:"max_ids_per_request" yaml:"max_ids_per_request" env:"COINGECKO_MAX_IDS_PER_REQUEST"`
	MaxConcurrency       int `json:"max_concurrency" yaml:"max_concurrency" env:"COINGECKO_MAX_CONCURRENCY"`
	MaxRequestsPerMinute int `json:"max_requests_per_minute" yaml:"max_requests_per_minute" env:"COINGECKO_MAX_RPM"`
	MonthlyRequestBudget int `json:"monthly_request_budget" yaml:"monthly_request_budget" env:"COINGECKO_MONTHLY_BUDGET"`
	MaxRetries           int `json:"max_retries" yaml:"max_retries" env:"COINGECKO_MAX_RETRIES"`
	BackoffMS            int `json:"backoff_ms" yaml:"backoff_ms" env:"COINGECKO_BACKOFF_MS"`
}

type Config struct {
	RequestTimeoutSec int `json:"request_timeout_sec" yaml:"request_timeout_sec" env:"REQUEST_TIMEOUT_SEC"`
	// Symbols is used when no symbol is given on the command line.
	Symbols []string `json:"symbols" yaml:"symbols"`
	// Streams overrides the generated stream id per symbol.
	Streams   map[string]string `json:"streams" yaml:"streams"`
	Cycles    Cycles            `json:"cycles" yaml:"cycles"`
	CoinGecko CoinGecko         `json:"coingecko" yaml:"coingecko"`
}

func Default() Config {
	return Config{
		RequestTimeoutSec: 10,
		Symbols:           []string{"BTC", "ETH", "BNB", "SOL", "ADA", "AVAX", "LINK", "MATIC", "LTC", "DOT"},
		Cycles: Cycles{
			Endpoint:           "https://api.cycle.tools/api/Stream/SubmitStreamData",
			MaxRetries:         3,
			BackoffMS:          500,
			PublishConcurrency: 4,
		},
		CoinGecko: CoinGecko{
			BaseURL:              "https://api.coingecko.com/api/v3",
			APIKeyHeader:         "x-cg-demo-api-key",
			VsCurrency:           "usd",
			UniverseSize:         250,
			MaxIDsPerRequest:     100,
			MaxConcurrency:       1,
			MaxRequestsPerMinute: 25,
			MonthlyRequestBudget: 10000,
			MaxRetries:           2,
			BackoffMS:            1000,
		},
	}
}

// defaultFiles are tried in order when Load gets no path.
var defaultFiles = []string{"config.yaml", "config.yml", "config.json"}

// Load reads a YAML or JSON config (by extension) from path on top of the
// defaults. ${VAR} references in the file are expanded first. If path is
// empty the first existing default file is used, or none. Environment
// variables override select fields afterwards.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		for _, f := range defaultFiles {
			if _, err := os.Stat(f); err == nil {
				path = f
				break
			}
		}
	}
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := decode(path, []byte(os.ExpandEnv(string(b))), &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func decode(path string, b []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return json.Unmarshal(b, cfg)
	case ".yaml", ".yml", "":
		return yaml.Unmarshal(b, cfg)
	default:
		return fmt.Errorf("unsupported config format %q", filepath.Ext(path))
	}
}

// applyEnv fails on values that do not parse into their field.
func applyEnv(cfg *Config) error {
	err := envdecode.StrictDecode(cfg)
	if err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return fmt.Errorf("env overrides: %w", err)
	}
	return nil
}

func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSec) * time.Second
}

func (c Cycles) Backoff() time.Duration {
	return time.Duration(c.BackoffMS) * time.Millisecond
}

func (c CoinGecko) Backoff() time.Duration {
	return time.Duration(c.BackoffMS) * time.Millisecond
}
