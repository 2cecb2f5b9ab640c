package cycles

import (
	"errors"
	"net/http"
)

const (
	endpoint = "https://api.cycle.tools/api/Stream/SubmitStreamData"

	// MessageTypeUpsert creates the point or overwrites the one at the same date.
	MessageTypeUpsert = "UPSERT"
)

// ErrMissingAPIKey is returned when the client is built without a key.
var ErrMissingAPIKey = errors.New("cycles api key is required")

// HTTPClient describes an HTTP client.
//
//go:generate mockgen -package=cycles_test -destination=mock_http_client_test.go -source=client.go HTTPClient
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// CyclesAPIClient is a client for the Cycles stream ingestion API.
type CyclesAPIClient struct {
	// endpoint is the SubmitStreamData URL without query parameters.
	endpoint string
	// apiKey is sent as the api_key query parameter.
	apiKey string
	// httpClient is the HTTP client.
	httpClient HTTPClient
	// header contains additional headers to be sent with each request.
	header http.Header
}

// CyclesAPIClientOption is a configuration option for the Cycles API client.
type CyclesAPIClientOption func(*CyclesAPIClient)

// WithEndpoint overrides the SubmitStreamData URL.
func WithEndpoint(endpoint string) CyclesAPIClientOption {
	return func(c *CyclesAPIClient) {
		c.endpoint = endpoint
	}
}

// WithHTTPClient sets the HTTP client for the API.
func WithHTTPClient(httpClient HTTPClient) CyclesAPIClientOption {
	return func(c *CyclesAPIClient) {
		c.httpClient = httpClient
	}
}

// WithHeader sets additional headers to be sent with each request.
func WithHeader(header http.Header) CyclesAPIClientOption {
	return func(c *CyclesAPIClient) {
		for key, values := range header {
			for _, value := range values {
				c.header.Add(key, value)
			}
		}
	}
}

// NewCyclesAPIClient creates a new Cycles API client.
func NewCyclesAPIClient(apiKey string, options ...CyclesAPIClientOption) (*CyclesAPIClient, error) {
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	var client = &CyclesAPIClient{
		endpoint:   endpoint,
		apiKey:     apiKey,
		httpClient: http.DefaultClient,
		header:     http.Header{},
	}
	for _, option := range options {
		option(client)
	}
	return client, nil
}
