package provider

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"
)

// Symbol is an uppercase ticker such as "BTC".
type Symbol string

func (s Symbol) String() string { return string(s) }

// ParseSymbol normalizes a user supplied ticker.
func ParseSymbol(raw string) (Symbol, error) {
	s := strings.ToUpper(strings.TrimSpace(raw))
	if s == "" {
		return "", fmt.Errorf("empty symbol")
	}
	if strings.IndexFunc(s, func(r rune) bool { return unicode.IsSpace(r) || r == ',' }) >= 0 {
		return "", fmt.Errorf("invalid symbol %q", raw)
	}
	return Symbol(s), nil
}

// SortSymbols sorts in place and returns ss.
func SortSymbols(ss []Symbol) []Symbol {
	sort.Slice(ss, func(i, j int) bool { return ss[i] < ss[j] })
	return ss
}

// Asset is one entry of the upstream universe.
type Asset struct {
	ID     string // upstream coin id, e.g. "bitcoin"
	Symbol Symbol
	Name   string
}

// Price is a raw upstream observation, not yet validated.
// Amount keeps the upstream decimal text to avoid float rounding.
type Price struct {
	Amount     string
	ObservedAt time.Time
}

// Quote is a validated price for one symbol.
type Quote struct {
	Symbol     Symbol          `json:"symbol"`
	Price      decimal.Decimal `json:"price"`
	ObservedAt time.Time       `json:"observed_at"`
}

// Provider is the market-data source contract.
type Provider interface {
	Name() string
	// Assets lists the supported universe in upstream order.
	Assets(ctx context.Context) ([]Asset, error)
	// Prices performs one request for ids and returns what the source
	// answered, keyed by asset id. Missing ids are simply absent.
	Prices(ctx context.Context, ids []string) (map[string]Price, error)
}
