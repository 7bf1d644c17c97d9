// Package geocoding confirms Canadian postal codes against Geocodio and caches the answers in
// Redis.
package geocoding

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/prasathkrishna17/Botique-maid/internal/platform/config"
	"github.com/prasathkrishna17/Botique-maid/internal/services"
)

const (
	defaultBaseURL  = "https://api.geocod.io/v1.7"
	defaultTimeout  = 5 * time.Second
	maxResponseBody = 1 << 20
)

// ErrGeocodeFailed wraps transport, status and decoding failures.
var ErrGeocodeFailed = errors.New("geocoding: request failed")

// Client calls the Geocodio forward geocoding endpoint restricted to Canada.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *zap.Logger
}

var _ services.Geocoder = (*Client)(nil)

// Option customises Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.client = client
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient builds a Geocodio client from configuration.
func NewClient(cfg config.GeocodingConfig, opts ...Option) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("geocoding: api key is required")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	c := &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

// Geocode looks up a canonical postal code. An empty result set or an unprocessable query
// returns services.ErrGeocodeNotFound.
func (c *Client) Geocode(ctx context.Context, postalCode string) (services.GeocodeResult, error) {
	query := url.Values{}
	query.Set("q", postalCode)
	query.Set("country", "CA")
	query.Set("limit", "1")
	query.Set("api_key", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/geocode?"+query.Encode(), nil)
	if err != nil {
		return services.GeocodeResult{}, fmt.Errorf("%w: %v", ErrGeocodeFailed, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return services.GeocodeResult{}, fmt.Errorf("%w: %v", ErrGeocodeFailed, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return services.GeocodeResult{}, fmt.Errorf("%w: read body: %v", ErrGeocodeFailed, err)
	}

	switch {
	case resp.StatusCode == http.StatusUnprocessableEntity:
		return services.GeocodeResult{}, services.ErrGeocodeNotFound
	case resp.StatusCode != http.StatusOK:
		c.logger.Warn("geocodio returned error status",
			zap.Int("status", resp.StatusCode),
			zap.String("error", gjson.GetBytes(body, "error").String()),
		)
		return services.GeocodeResult{}, fmt.Errorf("%w: unexpected status %d", ErrGeocodeFailed, resp.StatusCode)
	case !gjson.ValidBytes(body):
		return services.GeocodeResult{}, fmt.Errorf("%w: invalid json", ErrGeocodeFailed)
	}

	first := gjson.GetBytes(body, "results.0")
	if !first.Exists() {
		return services.GeocodeResult{}, services.ErrGeocodeNotFound
	}
	components := first.Get("address_components")
	if country := components.Get("country").String(); country != "" && !strings.EqualFold(country, "CA") {
		return services.GeocodeResult{}, services.ErrGeocodeNotFound
	}
	return services.GeocodeResult{
		City:     components.Get("city").String(),
		Province: components.Get("state").String(),
	}, nil
}
