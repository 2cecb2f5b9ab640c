package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"cryptocycles/internal/config"
	"cryptocycles/internal/cycles"
	"cryptocycles/internal/fetcher"
	"cryptocycles/internal/httpx"
	"cryptocycles/internal/metrics"
	"cryptocycles/internal/provider"
	"cryptocycles/internal/provider/coingecko"
	"cryptocycles/internal/provider/ratelimit"
	"cryptocycles/internal/publisher"
	"cryptocycles/internal/report"
	"cryptocycles/internal/resolver"
	"cryptocycles/internal/scheduler"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run returns the process exit code: 0 on success or shutdown, 1 on a
// fatal error, 2 on invalid usage.
func run(args []string, stdout, stderr io.Writer) int {
	opts, err := parseFlags(args, stderr)
	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	if err != nil {
		return 2
	}

	logger, err := newLogger(stderr, opts.logLevel, opts.logFormat)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}
	slog.SetDefault(logger)

	if opts.envFile != "" {
		if err := godotenv.Load(opts.envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.Error("load env file", "path", opts.envFile, "err", err)
			return 1
		}
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		logger.Error("load config", "err", err)
		return 1
	}
	mode := opts.mode()
	if err := cfg.Validate(mode != scheduler.Preview); err != nil {
		logger.Error("invalid config", "err", err)
		return 1
	}
	sel, err := opts.symbols.selection(cfg.Symbols)
	if err != nil {
		logger.Error("invalid symbols", "err", err)
		return 1
	}
	rw, err := report.NewWriter(stdout, opts.output)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := build(cfg, mode, rw, logger)
	if err != nil {
		logger.Error("startup", "err", err)
		return 1
	}
	if opts.metricsAddr != "" {
		shutdown := serveMetrics(opts.metricsAddr, app.metrics, logger)
		defer shutdown()
	}

	runCfg := scheduler.RunConfig{Mode: mode, Interval: opts.interval(), Selection: sel}
	logger.Info("starting",
		"mode", mode,
		"interval", runCfg.Interval,
		"symbols", sel,
		"vs_currency", cfg.CoinGecko.VsCurrency,
	)
	if err := app.scheduler.Run(ctx, runCfg); err != nil {
		logger.Error("stopped", "err", err)
		return 1
	}
	logger.Info("stopped")
	return 0
}

const userAgent = "cryptocycles/1.0"

type app struct {
	scheduler *scheduler.Scheduler
	metrics   *metrics.Collector
}

// build wires the market data source, the ingestion client and the scheduler.
func build(cfg config.Config, mode scheduler.Mode, rw *report.Writer, logger *slog.Logger) (*app, error) {
	httpClient := httpx.New(cfg.RequestTimeout())
	ua := http.Header{"User-Agent": []string{userAgent}}

	cgOpts := []coingecko.CoinGeckoAPIClientOption{
		coingecko.WithBaseURL(cfg.CoinGecko.BaseURL),
		coingecko.WithHTTPClient(httpClient),
		coingecko.WithHeader(ua),
	}
	if cfg.CoinGecko.APIKey != "" {
		cgOpts = append(cgOpts, coingecko.WithAPIKey(cfg.CoinGecko.APIKeyHeader, cfg.CoinGecko.APIKey))
	}
	source := coingecko.New(coingecko.Config{
		VsCurrency:   cfg.CoinGecko.VsCurrency,
		UniverseSize: cfg.CoinGecko.UniverseSize,
	}, coingecko.NewCoinGeckoAPIClient(cgOpts...))

	limiter := ratelimit.NewLimiter(ratelimit.Config{
		MaxRequestsPerMinute: cfg.CoinGecko.MaxRequestsPerMinute,
		MonthlyBudget:        cfg.CoinGecko.MonthlyRequestBudget,
	})
	var market provider.Provider = &ratelimit.Provider{P: source, Policy: limiter}

	overrides := make(map[provider.Symbol]string, len(cfg.Streams))
	for raw, id := range cfg.Streams {
		sym, err := provider.ParseSymbol(raw)
		if err != nil {
			return nil, fmt.Errorf("streams: %w", err)
		}
		overrides[sym] = id
	}
	res := resolver.New(market, resolver.Config{Overrides: overrides, StreamQuota: cfg.Cycles.StreamQuota}, logger)

	fetch := fetcher.New(market, fetcher.Config{
		MaxIDsPerRequest: cfg.CoinGecko.MaxIDsPerRequest,
		MaxConcurrency:   cfg.CoinGecko.MaxConcurrency,
		Retries:          cfg.CoinGecko.MaxRetries,
		Backoff:          cfg.CoinGecko.Backoff(),
	}, logger)

	// Preview never publishes, so it runs without a Cycles key.
	var pub scheduler.Publisher
	if mode != scheduler.Preview {
		client, err := cycles.NewCyclesAPIClient(cfg.Cycles.APIKey,
			cycles.WithEndpoint(cfg.Cycles.Endpoint),
			cycles.WithHTTPClient(httpClient),
			cycles.WithHeader(ua),
		)
		if err != nil {
			return nil, err
		}
		pub = publisher.New(client, publisher.Config{
			MaxRetries:  cfg.Cycles.MaxRetries,
			Backoff:     cfg.Cycles.Backoff(),
			Concurrency: cfg.Cycles.PublishConcurrency,
		}, logger)
	}

	collector := metrics.NewCollector("cryptocycles")
	collector.WatchBudget("cryptocycles", limiter.Remaining)

	sched := scheduler.New(res, fetch, pub, rw, logger,
		scheduler.WithRecorder(collector),
		scheduler.WithObserver(func(_, to scheduler.State) { collector.SetState(to.String()) }),
		scheduler.WithMonthlyBudget(limiter.Budget()),
	)
	return &app{scheduler: sched, metrics: collector}, nil
}

func newLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q", level)
	}
	opts := &slog.HandlerOptions{Level: lvl}
	switch strings.ToLower(format) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("invalid log format %q", format)
	}
}

func serveMetrics(addr string, c *metrics.Collector, logger *slog.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("metrics listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", "err", err)
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
