package coingecko

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

// Market is one row of /coins/markets. Only the identity fields are decoded.
type Market struct {
	ID     string `json:"id"`
	Symbol string `json:"symbol"`
	Name   string `json:"name"`
}

// MaxPerPage is the largest page size /coins/markets accepts.
const MaxPerPage = 250

// GetMarkets lists coins ordered by market capitalization, one page at a time.
func (c *CoinGeckoAPIClient) GetMarkets(ctx context.Context, vsCurrency string, page, perPage int) ([]Market, error) {
	if perPage <= 0 || perPage > MaxPerPage {
		return nil, fmt.Errorf("per_page must be between 1 and %d, got %d", MaxPerPage, perPage)
	}

	query := url.Values{}
	query.Set("vs_currency", vsCurrency)
	query.Set("order", "market_cap_desc")
	query.Set("per_page", strconv.Itoa(perPage))
	query.Set("page", strconv.Itoa(page))
	query.Set("sparkline", "false")

	endpoint := fmt.Sprintf("%s/coins/markets?%s", c.baseURL, query.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header = c.header.Clone()

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("performing request: %w", err)
	}
	defer res.Body.Close()

	if err := checkStatus(req, res); err != nil {
		return nil, err
	}

	var markets []Market
	if err := json.NewDecoder(res.Body).Decode(&markets); err != nil {
		return nil, fmt.Errorf("decoding markets response: %w", err)
	}
	return markets, nil
}
