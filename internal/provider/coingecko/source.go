package coingecko

import (
	"context"
	"strings"
	"time"

	"cryptocycles/internal/provider"
)

type Config struct {
	Name         string // display name, default: CoinGecko
	VsCurrency   string // quote currency, default: usd
	UniverseSize int    // coins listed by Assets, at most MaxPerPage
}

// Source adapts CoinGeckoAPIClient to provider.Provider.
type Source struct {
	cfg    Config
	client *CoinGeckoAPIClient
}

func New(cfg Config, client *CoinGeckoAPIClient) *Source {
	if cfg.Name == "" {
		cfg.Name = "CoinGecko"
	}
	if cfg.VsCurrency == "" {
		cfg.VsCurrency = "usd"
	}
	cfg.VsCurrency = strings.ToLower(cfg.VsCurrency)
	if cfg.UniverseSize <= 0 || cfg.UniverseSize > MaxPerPage {
		cfg.UniverseSize = MaxPerPage
	}
	return &Source{cfg: cfg, client: client}
}

func (s *Source) Name() string { return s.cfg.Name }

func (s *Source) Assets(ctx context.Context) ([]provider.Asset, error) {
	markets, err := s.client.GetMarkets(ctx, s.cfg.VsCurrency, 1, s.cfg.UniverseSize)
	if err != nil {
		return nil, err
	}
	out := make([]provider.Asset, 0, len(markets))
	for _, m := range markets {
		sym, err := provider.ParseSymbol(m.Symbol)
		if err != nil || m.ID == "" {
			continue
		}
		out = append(out, provider.Asset{ID: m.ID, Symbol: sym, Name: m.Name})
	}
	return out, nil
}

func (s *Source) Prices(ctx context.Context, ids []string) (map[string]provider.Price, error) {
	prices, err := s.client.GetSimplePrice(ctx, ids, s.cfg.VsCurrency)
	if err != nil {
		return nil, err
	}
	out := make(map[string]provider.Price, len(prices))
	for id, p := range prices {
		var ts time.Time
		if p.LastUpdatedAt > 0 {
			ts = time.Unix(p.LastUpdatedAt, 0).UTC()
		}
		out[id] = provider.Price{Amount: p.Value.String(), ObservedAt: ts}
	}
	return out, nil
}
