package coingecko

import (
	"net/http"
)

const (
	baseURL = "https://api.coingecko.com/api/v3"

	// DefaultKeyHeader is the header used by demo API keys.
	// https://docs.coingecko.com/reference/authentication
	DefaultKeyHeader = "x-cg-demo-api-key"
)

// HTTPClient describes an HTTP client.
//
//go:generate mockgen -package=coingecko_test -destination=mock_http_client_test.go -source=client.go HTTPClient
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// CoinGeckoAPIClient is a client for the CoinGecko public API.
type CoinGeckoAPIClient struct {
	// baseURL is the base URL for the API.
	baseURL string
	// httpClient is the HTTP client.
	httpClient HTTPClient
	// header contains additional headers to be sent with each request.
	header http.Header
}

// CoinGeckoAPIClientOption is a configuration option for the CoinGecko API client.
type CoinGeckoAPIClientOption func(*CoinGeckoAPIClient)

// WithBaseURL sets the base URL for the API.
func WithBaseURL(baseURL string) CoinGeckoAPIClientOption {
	return func(c *CoinGeckoAPIClient) {
		c.baseURL = baseURL
	}
}

// WithHTTPClient sets the HTTP client for the API.
func WithHTTPClient(httpClient HTTPClient) CoinGeckoAPIClientOption {
	return func(c *CoinGeckoAPIClient) {
		c.httpClient = httpClient
	}
}

// WithHeader sets additional headers to be sent with each request.
func WithHeader(header http.Header) CoinGeckoAPIClientOption {
	return func(c *CoinGeckoAPIClient) {
		for key, values := range header {
			for _, value := range values {
				c.header.Add(key, value)
			}
		}
	}
}

// WithAPIKey authenticates requests with key sent in headerName.
// An empty key leaves the client anonymous.
func WithAPIKey(headerName, key string) CoinGeckoAPIClientOption {
	return func(c *CoinGeckoAPIClient) {
		if key == "" {
			return
		}
		if headerName == "" {
			headerName = DefaultKeyHeader
		}
		c.header.Set(headerName, key)
	}
}

// NewCoinGeckoAPIClient creates a new CoinGecko API client.
func NewCoinGeckoAPIClient(options ...CoinGeckoAPIClientOption) *CoinGeckoAPIClient {
	var client = &CoinGeckoAPIClient{
		baseURL:    baseURL,
		httpClient: http.DefaultClient,
		header:     http.Header{"Accept": []string{"application/json"}},
	}
	for _, option := range options {
		option(client)
	}
	return client
}
