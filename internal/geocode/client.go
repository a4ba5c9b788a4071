package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	// DefaultBaseURL is the public Nominatim API endpoint.
	DefaultBaseURL = "https://nominatim.openstreetmap.org"

	// DefaultMinInterval honours the public Nominatim limit of one request
	// per second.
	DefaultMinInterval = time.Second

	// DefaultTimeout bounds a single reverse lookup.
	DefaultTimeout = 10 * time.Second
)

// ClientConfig configures the reverse geocoding HTTP client.
type ClientConfig struct {
	// BaseURL of the Nominatim-compatible service.
	BaseURL string

	// UserAgent identifies this application. Nominatim rejects requests
	// without one.
	UserAgent string

	// Timeout per request. Default: 10 seconds.
	Timeout time.Duration

	// MinInterval between consecutive requests. Default: 1 second.
	MinInterval time.Duration
}

// StatusError is returned when the geocoder answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("geocoder returned status %d: %s", e.StatusCode, e.Body)
}

// Client performs reverse geocoding against Nominatim with rate limiting.
type Client struct {
	baseURL     string
	userAgent   string
	minInterval time.Duration
	httpClient  *http.Client
	logger      *slog.Logger

	mu          sync.Mutex
	lastRequest time.Time
}

// NewClient creates a reverse geocoding client.
func NewClient(cfg ClientConfig, logger *slog.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.UserAgent) == "" {
		return nil, fmt.Errorf("geocoder user agent is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MinInterval < 0 {
		cfg.MinInterval = 0
	}

	return &Client{
		baseURL:     strings.TrimSuffix(cfg.BaseURL, "/"),
		userAgent:   cfg.UserAgent,
		minInterval: cfg.MinInterval,
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		logger:      logger,
	}, nil
}

// ReverseGeocode resolves lat/lng to address components.
func (c *Client) ReverseGeocode(ctx context.Context, lat, lng float64) (*Result, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("lat", strconv.FormatFloat(lat, 'f', 6, 64))
	params.Set("lon", strconv.FormatFloat(lng, 'f', 6, 64))
	params.Set("format", "jsonv2")
	params.Set("addressdetails", "1")

	reqURL := fmt.Sprintf("%s/reverse?%s", c.baseURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	c.logger.Debug("reverse geocoded",
		"lat", lat,
		"lng", lng,
		"components", len(result.Address),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return &result, nil
}

// wait blocks until the rate limit allows another request.
func (c *Client) wait(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if delay := c.minInterval - time.Since(c.lastRequest); delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	c.lastRequest = time.Now()
	return nil
}

var _ Geocoder = (*Client)(nil)
