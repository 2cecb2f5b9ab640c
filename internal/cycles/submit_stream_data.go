package cycles

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"cryptocycles/internal/httpx"
)

// Point is the SubmitStreamData request body. The API expects parallel
// arrays; this bridge always sends exactly one element in each.
type Point struct {
	StreamID    string        `json:"streamid"`
	MessageType string        `json:"messagetype"`
	Dates       []string      `json:"dates"`
	Values      []json.Number `json:"values"`
}

// NewUpsert builds a single-value UPSERT point. The value is sent as a
// JSON number carrying the exact decimal text.
func NewUpsert(streamID string, at time.Time, value decimal.Decimal) Point {
	return Point{
		StreamID:    streamID,
		MessageType: MessageTypeUpsert,
		Dates:       []string{at.UTC().Format(time.RFC3339)},
		Values:      []json.Number{json.Number(value.String())},
	}
}

// SubmitStreamData posts one point. Non-2xx responses are returned as
// *httpx.StatusError with the api key stripped from the URL.
func (c *CyclesAPIClient) SubmitStreamData(ctx context.Context, p Point) error {
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encoding point: %w", err)
	}

	u, err := url.Parse(c.endpoint)
	if err != nil {
		return fmt.Errorf("parsing endpoint: %w", err)
	}
	q := u.Query()
	q.Set("api_key", c.apiKey)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header = c.header.Clone()
	req.Header.Set("Content-Type", "application/json")

	res, err := c.httpClient.Do(req)
	if err != nil {
		// url.Error embeds the full URL, key included.
		var ue *url.Error
		if errors.As(err, &ue) {
			ue.URL = httpx.Redact(u)
		}
		return fmt.Errorf("performing request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return httpx.NewStatusError(req, res)
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, 4<<10))
	return nil
}
