package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	"cryptocycles/internal/provider"
	"cryptocycles/internal/resolver"
	"cryptocycles/internal/scheduler"
)

// symbolList is a repeatable, comma separated symbol flag. "all" selects
// the whole universe.
type symbolList struct {
	all     bool
	symbols []provider.Symbol
}

func (s *symbolList) String() string {
	if s == nil {
		return ""
	}
	if s.all {
		return "all"
	}
	return resolver.Symbols(s.symbols...).String()
}

func (s *symbolList) Set(v string) error {
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if strings.EqualFold(part, "all") {
			s.all = true
			continue
		}
		sym, err := provider.ParseSymbol(part)
		if err != nil {
			return err
		}
		s.symbols = append(s.symbols, sym)
	}
	return nil
}

func (s *symbolList) empty() bool { return !s.all && len(s.symbols) == 0 }

// selection returns what was given on the command line, or defaults.
func (s *symbolList) selection(defaults []string) (resolver.Selection, error) {
	if s.all {
		return resolver.All(), nil
	}
	if !s.empty() {
		return resolver.Symbols(s.symbols...), nil
	}
	var fromConfig symbolList
	if err := fromConfig.Set(strings.Join(defaults, ",")); err != nil {
		return resolver.Selection{}, fmt.Errorf("config symbols: %w", err)
	}
	if fromConfig.all {
		return resolver.All(), nil
	}
	if fromConfig.empty() {
		return resolver.Selection{}, resolver.ErrEmptySelection
	}
	return resolver.Symbols(fromConfig.symbols...), nil
}

// intervalFlag is a boolean flag such as --5m.
type intervalFlag struct {
	interval scheduler.Interval
	chosen   *[]scheduler.Interval
}

func (f *intervalFlag) String() string   { return "false" }
func (f *intervalFlag) IsBoolFlag() bool { return true }

func (f *intervalFlag) Set(v string) error {
	switch strings.ToLower(v) {
	case "true", "1":
		*f.chosen = append(*f.chosen, f.interval)
	case "false", "0":
	default:
		return fmt.Errorf("invalid value %q", v)
	}
	return nil
}

var errUsage = errors.New("invalid usage")

type options struct {
	test        bool
	preview     bool
	intervals   []scheduler.Interval
	symbols     symbolList
	configPath  string
	envFile     string
	logLevel    string
	logFormat   string
	output      string
	metricsAddr string
}

func (o options) mode() scheduler.Mode {
	switch {
	case o.preview:
		return scheduler.Preview
	case o.test:
		return scheduler.Test
	default:
		return scheduler.Continuous
	}
}

func (o options) interval() scheduler.Interval {
	if len(o.intervals) == 0 {
		return scheduler.Every2m
	}
	return o.intervals[0]
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var o options
	fs := flag.NewFlagSet("cryptocycles", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintln(stderr, "usage: cryptocycles [--test|--preview] [--2m|--5m|...|--1d] [--symbols BTC,ETH|all] [flags]")
		fs.PrintDefaults()
	}

	fs.BoolVar(&o.test, "test", false, "publish once and exit")
	fs.BoolVar(&o.preview, "preview", false, "print the stream mapping without publishing")
	for _, i := range scheduler.Intervals() {
		fs.Var(&intervalFlag{interval: i, chosen: &o.intervals}, i.String(), "publish every "+i.String()+" (default 2m)")
	}
	fs.Var(&o.symbols, "symbols", "comma-separated symbols, or \"all\" (repeatable)")
	fs.Var(&o.symbols, "symbol", "alias for --symbols")
	fs.Var(&o.symbols, "s", "alias for --symbols")
	fs.StringVar(&o.configPath, "config", "", "path to config.yaml or config.json (optional)")
	fs.StringVar(&o.envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	fs.StringVar(&o.logLevel, "log-level", "info", "debug, info, warn or error")
	fs.StringVar(&o.logFormat, "log-format", "text", "text or json")
	fs.StringVar(&o.output, "output", "text", "report format: text or json")
	fs.StringVar(&o.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9090")

	if err := fs.Parse(args); err != nil {
		return o, err
	}
	if fs.NArg() > 0 {
		fmt.Fprintf(stderr, "unexpected arguments: %s\n", strings.Join(fs.Args(), " "))
		return o, errUsage
	}
	if o.test && o.preview {
		fmt.Fprintln(stderr, "--test and --preview are mutually exclusive")
		return o, errUsage
	}
	if len(o.intervals) > 1 {
		fmt.Fprintln(stderr, "at most one interval flag may be given")
		return o, errUsage
	}
	return o, nil
}
