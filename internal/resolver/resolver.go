// Package resolver turns a symbol selection into a stream mapping.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"cryptocycles/internal/provider"
)

var (
	// ErrUniverseUnavailable wraps failures to list the supported symbols.
	ErrUniverseUnavailable = errors.New("symbol universe unavailable")
	// ErrEmptySelection is returned for a selection with no symbols.
	ErrEmptySelection = errors.New("no symbols selected")
)

// Selection is either every supported symbol or a finite set.
type Selection struct {
	All     bool
	Symbols []provider.Symbol
}

// All selects the whole supported universe.
func All() Selection { return Selection{All: true} }

// Symbols selects a finite set.
func Symbols(ss ...provider.Symbol) Selection { return Selection{Symbols: ss} }

func (s Selection) String() string {
	if s.All {
		return "all"
	}
	names := make([]string, len(s.Symbols))
	for i, sym := range s.Symbols {
		names[i] = string(sym)
	}
	return strings.Join(names, ",")
}

// UnknownSymbolsError lists every requested symbol outside the universe.
type UnknownSymbolsError struct {
	Symbols []provider.Symbol
}

func (e *UnknownSymbolsError) Error() string {
	return "unknown symbols: " + Symbols(e.Symbols...).String()
}

// AssetLister provides the supported universe.
type AssetLister interface {
	Assets(ctx context.Context) ([]provider.Asset, error)
}

type Config struct {
	// Overrides pins stream ids for specific symbols.
	Overrides map[provider.Symbol]string
	// StreamQuota is the dashboard's stream limit; 0 means unknown.
	StreamQuota int
}

type Resolver struct {
	cfg    Config
	source AssetLister
	logger *slog.Logger
}

func New(source AssetLister, cfg Config, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{cfg: cfg, source: source, logger: logger}
}

// StreamID is the default stream id for sym, e.g. BTC -> BTC_PRICE.
func StreamID(sym provider.Symbol) string { return string(sym) + "_PRICE" }

func (r *Resolver) streamID(sym provider.Symbol) string {
	if id := strings.TrimSpace(r.cfg.Overrides[sym]); id != "" {
		return id
	}
	return StreamID(sym)
}

// Resolve maps the selection onto the universe. A finite selection fails as
// a whole if any symbol is unknown; the error lists all of them.
func (r *Resolver) Resolve(ctx context.Context, sel Selection) (Mapping, error) {
	if !sel.All && len(sel.Symbols) == 0 {
		return Mapping{}, ErrEmptySelection
	}

	assets, err := r.source.Assets(ctx)
	if err != nil {
		return Mapping{}, fmt.Errorf("%w: %w", ErrUniverseUnavailable, err)
	}
	if len(assets) == 0 {
		return Mapping{}, fmt.Errorf("%w: source listed no assets", ErrUniverseUnavailable)
	}

	// First occurrence wins: the universe is ordered by market cap.
	universe := make(map[provider.Symbol]provider.Asset, len(assets))
	order := make([]provider.Symbol, 0, len(assets))
	for _, a := range assets {
		if _, ok := universe[a.Symbol]; ok {
			continue
		}
		universe[a.Symbol] = a
		order = append(order, a.Symbol)
	}

	wanted := order
	if !sel.All {
		wanted = make([]provider.Symbol, 0, len(sel.Symbols))
		seen := make(map[provider.Symbol]struct{}, len(sel.Symbols))
		var unknown []provider.Symbol
		for _, s := range sel.Symbols {
			if _, dup := seen[s]; dup {
				continue
			}
			seen[s] = struct{}{}
			if _, ok := universe[s]; !ok {
				unknown = append(unknown, s)
				continue
			}
			wanted = append(wanted, s)
		}
		if len(unknown) > 0 {
			return Mapping{}, &UnknownSymbolsError{Symbols: provider.SortSymbols(unknown)}
		}
	}

	entries := make([]Entry, 0, len(wanted))
	for _, s := range wanted {
		a := universe[s]
		entries = append(entries, Entry{Symbol: s, StreamID: r.streamID(s), AssetID: a.ID, Name: a.Name})
	}
	m, err := NewMapping(entries)
	if err != nil {
		return Mapping{}, err
	}

	if r.cfg.StreamQuota > 0 && m.Len() > r.cfg.StreamQuota {
		r.logger.Warn("mapping exceeds dashboard stream quota",
			"streams", m.Len(),
			"quota", r.cfg.StreamQuota,
		)
	}
	r.logger.Debug("symbols resolved", "selection", sel.String(), "streams", m.Len())
	return m, nil
}
