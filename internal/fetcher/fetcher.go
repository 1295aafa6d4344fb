// Package fetcher provides a rate-limited HTTP client shared by the
// external data source adapters.
package fetcher

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/govscout/internal/resilience"
)

// Options configures the HTTP client.
type Options struct {
	UserAgent string
	Timeout   time.Duration

	// RequestsPerSecond is the default rate for hosts without a dedicated
	// limiter. Default: 10.
	RequestsPerSecond float64
}

// AdaptiveLimiter wraps a rate.Limiter with adaptive rate adjustment.
// On success it increases the rate by 20% (up to 2x initial).
// On 429 it halves the rate (down to initial/4 minimum).
type AdaptiveLimiter struct {
	mu          sync.Mutex
	limiter     *rate.Limiter
	initialRate rate.Limit
	maxRate     rate.Limit
	minRate     rate.Limit
	currentRate rate.Limit
}

// NewAdaptiveLimiter creates an adaptive rate limiter that auto-tunes.
func NewAdaptiveLimiter(initialRate rate.Limit, burst int) *AdaptiveLimiter {
	return &AdaptiveLimiter{
		limiter:     rate.NewLimiter(initialRate, burst),
		initialRate: initialRate,
		maxRate:     initialRate * 2,
		minRate:     initialRate / 4,
		currentRate: initialRate,
	}
}

// Wait blocks until the limiter allows an event.
func (a *AdaptiveLimiter) Wait(ctx context.Context) error {
	return a.limiter.Wait(ctx)
}

// OnSuccess increases the rate by 20%, up to 2x initial.
func (a *AdaptiveLimiter) OnSuccess() {
	a.mu.Lock()
	defer a.mu.Unlock()
	newRate := a.currentRate * 1.2
	if newRate > a.maxRate {
		newRate = a.maxRate
	}
	a.currentRate = newRate
	a.limiter.SetLimit(newRate)
}

// OnRateLimit halves the rate on 429 responses.
func (a *AdaptiveLimiter) OnRateLimit() {
	a.mu.Lock()
	defer a.mu.Unlock()
	newRate := a.currentRate * 0.5
	if newRate < a.minRate {
		newRate = a.minRate
	}
	a.currentRate = newRate
	a.limiter.SetLimit(newRate)
	zap.L().Warn("adaptive rate limit: reducing rate after 429",
		zap.Float64("new_rate", float64(newRate)),
	)
}

// Limit returns the current rate limit.
func (a *AdaptiveLimiter) Limit() rate.Limit {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.currentRate
}

// Client is a rate-limited HTTP client. It performs a single attempt per
// call and maps response status codes to typed errors, leaving retry
// policy to the caller. The historical crawler needs to see 429s raw so
// it can pause and re-request the same page.
type Client struct {
	http     *http.Client
	opts     Options
	adaptive map[string]*AdaptiveLimiter
	fallback *rate.Limiter
}

// defaultAdaptiveLimiters returns adaptive limiters for known API hosts.
func defaultAdaptiveLimiters() map[string]*AdaptiveLimiter {
	return map[string]*AdaptiveLimiter{
		"api.sam.gov":         NewAdaptiveLimiter(5, 5),
		"api.usaspending.gov": NewAdaptiveLimiter(5, 5),
		"subnet.sba.gov":      NewAdaptiveLimiter(2, 2),
		"www.sba.gov":         NewAdaptiveLimiter(2, 2),
	}
}

// New creates a Client with the given options.
func New(opts Options) *Client {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "govscout/1.0"
	}
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = 10
	}
	transport := &http.Transport{
		MaxIdleConnsPerHost: 10,
		MaxConnsPerHost:     20,
		IdleConnTimeout:     90 * time.Second,
	}
	return &Client{
		http: &http.Client{
			Timeout:   opts.Timeout,
			Transport: transport,
		},
		opts:     opts,
		adaptive: defaultAdaptiveLimiters(),
		fallback: rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), int(opts.RequestsPerSecond)),
	}
}

func (c *Client) limiterWait(ctx context.Context, rawURL string) (*AdaptiveLimiter, error) {
	u, err := url.Parse(rawURL)
	if err == nil {
		if a, ok := c.adaptive[u.Host]; ok {
			return a, a.Wait(ctx)
		}
	}
	return nil, c.fallback.Wait(ctx)
}

// Get performs a single rate-limited GET and returns the response body on
// 2xx. It returns a *resilience.RateLimitError on 429, a
// *resilience.TransientError on retryable status codes, and a plain error
// otherwise.
func (c *Client) Get(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "create request")
	}
	req.Header.Set("User-Agent", c.opts.UserAgent)
	req.Header.Set("Accept", "application/json, text/html;q=0.9, */*;q=0.8")

	adaptive, err := c.limiterWait(ctx, rawURL)
	if err != nil {
		return nil, eris.Wrap(err, "rate limiter wait")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrapf(err, "get %s", rawURL), 0)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode == http.StatusTooManyRequests {
		if adaptive != nil {
			adaptive.OnRateLimit()
		}
		retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
		return nil, resilience.NewRateLimitError(
			eris.Errorf("http 429 from %s", req.URL.Host), retryAfter)
	}

	if resilience.IsTransientHTTPStatus(resp.StatusCode) {
		return nil, resilience.NewTransientError(
			eris.Errorf("http %d from %s", resp.StatusCode, req.URL.Host), resp.StatusCode)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, eris.Errorf("http %d from %s", resp.StatusCode, req.URL.Host)
	}

	if adaptive != nil {
		adaptive.OnSuccess()
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, "read body"), 0)
	}
	return body, nil
}

// PostJSON performs a rate-limited POST with a JSON body and decodes the
// JSON response into out. Same error mapping as Get.
func (c *Client) PostJSON(ctx context.Context, rawURL string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return eris.Wrap(err, "encode request body")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "create request")
	}
	req.Header.Set("User-Agent", c.opts.UserAgent)
	req.Header.Set("Content-Type", "application/json")

	adaptive, err := c.limiterWait(ctx, rawURL)
	if err != nil {
		return eris.Wrap(err, "rate limiter wait")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return resilience.NewTransientError(eris.Wrapf(err, "post %s", rawURL), 0)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode == http.StatusTooManyRequests {
		if adaptive != nil {
			adaptive.OnRateLimit()
		}
		retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
		return resilience.NewRateLimitError(
			eris.Errorf("http 429 from %s", req.URL.Host), retryAfter)
	}
	if resilience.IsTransientHTTPStatus(resp.StatusCode) {
		return resilience.NewTransientError(
			eris.Errorf("http %d from %s", resp.StatusCode, req.URL.Host), resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return eris.Errorf("http %d from %s", resp.StatusCode, req.URL.Host)
	}

	if adaptive != nil {
		adaptive.OnSuccess()
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return resilience.NewTransientError(eris.Wrap(err, "read body"), 0)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return eris.Wrapf(err, "decode json from %s", rawURL)
	}
	return nil
}

// GetJSON performs a rate-limited GET and decodes the JSON response into v.
func (c *Client) GetJSON(ctx context.Context, rawURL string, v any) error {
	body, err := c.Get(ctx, rawURL)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return eris.Wrapf(err, "decode json from %s", rawURL)
	}
	return nil
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	if secs, err := strconv.Atoi(header); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}
