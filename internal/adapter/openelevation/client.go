package openelevation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/couchcryptid/storm-data-shared/retry"
	"golang.org/x/time/rate"

	"github.com/couchcryptid/incident-elevation-etl/internal/observability"
)

const (
	// DefaultBaseURL is the public Open-Elevation service.
	DefaultBaseURL = "https://api.open-elevation.com"

	lookupPath     = "/api/v1/lookup"
	initialBackoff = 250 * time.Millisecond
	maxBackoff     = 5 * time.Second
)

// ErrNoElevation is returned when the service answers without an elevation value.
var ErrNoElevation = errors.New("no elevation in response")

// StatusError reports a non-200 response from the elevation service.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("open-elevation API error: status %d: %s", e.StatusCode, e.Body)
}

// Retryable reports whether the request may succeed if sent again.
func (e *StatusError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Options tune request pacing and retries. Zero values select defaults.
type Options struct {
	Timeout    time.Duration
	Limiter    *rate.Limiter
	MaxRetries int
	Backoff    time.Duration
}

// Client implements domain.ElevationResolver against the Open-Elevation lookup API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	limiter    *rate.Limiter
	maxRetries int
	backoff    time.Duration
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates an Open-Elevation client. A nil limiter disables pacing.
func NewClient(baseURL string, opts Options, metrics *observability.Metrics, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.Backoff <= 0 {
		opts.Backoff = initialBackoff
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	return &Client{
		httpClient: &http.Client{Timeout: opts.Timeout},
		baseURL:    baseURL,
		limiter:    opts.Limiter,
		maxRetries: opts.MaxRetries,
		backoff:    opts.Backoff,
		metrics:    metrics,
		logger:     logger,
	}
}

// NewPacer returns a limiter allowing one request per interval. A zero interval disables pacing.
func NewPacer(interval time.Duration) *rate.Limiter {
	if interval <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Every(interval), 1)
}

// ResolveElevation returns the ground elevation in meters at the given coordinate.
func (c *Client) ResolveElevation(ctx context.Context, lat, lon float64) (float64, error) {
	u := c.baseURL + lookupPath + "?" + url.Values{
		"locations": {fmt.Sprintf("%f,%f", lat, lon)},
	}.Encode()

	backoff := c.backoff
	for attempt := 0; ; attempt++ {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return 0, fmt.Errorf("wait for rate limiter: %w", err)
			}
		}

		elevation, err := c.doRequest(ctx, u)
		if err == nil {
			c.metrics.ElevationRequests.WithLabelValues("success").Inc()
			return elevation, nil
		}
		if attempt >= c.maxRetries || !retryable(ctx, err) {
			c.metrics.ElevationRequests.WithLabelValues("error").Inc()
			return 0, err
		}

		c.metrics.ElevationRequests.WithLabelValues("retry").Inc()
		c.logger.Debug("retrying elevation lookup",
			"lat", lat, "lon", lon, "attempt", attempt+1, "backoff", backoff, "error", err)
		if !retry.SleepWithContext(ctx, backoff) {
			return 0, ctx.Err()
		}
		backoff = retry.NextBackoff(backoff, maxBackoff)
	}
}

func (c *Client) doRequest(ctx context.Context, fullURL string) (float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	c.metrics.ElevationAPIDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return 0, fmt.Errorf("elevation request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return 0, &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var lookup response
	if err := json.NewDecoder(resp.Body).Decode(&lookup); err != nil {
		return 0, fmt.Errorf("decode response: %w", err)
	}
	if len(lookup.Results) == 0 || lookup.Results[0].Elevation == nil {
		return 0, ErrNoElevation
	}
	return *lookup.Results[0].Elevation, nil
}

// retryable reports whether err is a transient failure. Cancellation and
// malformed responses are not retried.
func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Retryable()
	}
	if errors.Is(err, ErrNoElevation) {
		return false
	}
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return false
	}
	return true
}

// Open-Elevation API response types.

type response struct {
	Results []result `json:"results"`
}

type result struct {
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	Elevation *float64 `json:"elevation"`
}
