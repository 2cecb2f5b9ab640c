package coingecko

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"cryptocycles/internal/httpx"
)

// SimplePrice is the price of one coin in one currency.
type SimplePrice struct {
	// Value is the decimal text as sent by the API.
	Value json.Number
	// LastUpdatedAt is a unix timestamp in seconds, 0 when absent.
	LastUpdatedAt int64
}

// GetSimplePrice retrieves current prices for ids in a single request.
// Coins the API does not know are absent from the result.
func (c *CoinGeckoAPIClient) GetSimplePrice(ctx context.Context, ids []string, vsCurrency string) (map[string]SimplePrice, error) {
	if len(ids) == 0 {
		return map[string]SimplePrice{}, nil
	}

	query := url.Values{}
	query.Set("ids", strings.Join(ids, ","))
	query.Set("vs_currencies", vsCurrency)
	query.Set("include_last_updated_at", "true")
	query.Set("precision", "full")

	endpoint := fmt.Sprintf("%s/simple/price?%s", c.baseURL, query.Encode())
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

	// {
	//   "bitcoin": {"usd": 67000.12, "last_updated_at": 1705314600}
	// }
	var body map[string]map[string]json.Number
	dec := json.NewDecoder(res.Body)
	dec.UseNumber()
	if err := dec.Decode(&body); err != nil {
		return nil, fmt.Errorf("decoding simple price response: %w", err)
	}

	out := make(map[string]SimplePrice, len(body))
	for id, fields := range body {
		v, ok := fields[vsCurrency]
		if !ok {
			// The coin exists but has no price in this currency.
			continue
		}
		sp := SimplePrice{Value: v}
		if ts, ok := fields["last_updated_at"]; ok && ts != "" {
			n, err := ts.Int64()
			if err != nil {
				return nil, fmt.Errorf("decoding last_updated_at for %s: %w", id, err)
			}
			sp.LastUpdatedAt = n
		}
		out[id] = sp
	}
	return out, nil
}

func checkStatus(req *http.Request, res *http.Response) error {
	if res.StatusCode >= 200 && res.StatusCode < 300 {
		return nil
	}
	return httpx.NewStatusError(req, res)
}
