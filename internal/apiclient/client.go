// Package apiclient implements the polite JSON GET client shared by the
// Crossref and OpenAlex integrations.
package apiclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/paper-feeds/internal/policy/ratelimit"
)

// StatusError is returned when the upstream API answers with a non-2xx status.
type StatusError struct {
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("GET %s: unexpected status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("GET %s: unexpected status %d: %s", e.URL, e.StatusCode, e.Body)
}

// Observer receives one callback per finished request, e.g. for metrics.
type Observer func(api string, statusCode int, duration time.Duration)

// Config controls a Client.
type Config struct {
	// Name labels logs and metrics ("crossref", "openalex").
	Name      string
	BaseURL   string
	UserAgent string
	// Email joins the polite pool via the mailto query parameter.
	Email             string
	Timeout           time.Duration
	RequestsPerSecond float64
	HTTPClient        *http.Client
	Observer          Observer
	// OnDelay reports time spent waiting on the rate limiter.
	OnDelay ratelimit.DelayObserver
}

// Client issues rate-limited JSON GET requests against one API.
type Client struct {
	name      string
	base      *url.URL
	userAgent string
	email     string
	http      *http.Client
	limiter   *ratelimit.Limiter
	observe   Observer
	logger    *zap.Logger
}

const maxErrorBody = 512

// New constructs a Client.
func New(cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("%s: base url is required", cfg.Name)
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("%s: parse base url: %w", cfg.Name, err)
	}
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		name:      cfg.Name,
		base:      base,
		userAgent: cfg.UserAgent,
		email:     cfg.Email,
		http:      httpClient,
		limiter:   ratelimit.New(ratelimit.Config{RequestsPerSecond: cfg.RequestsPerSecond, OnDelay: cfg.OnDelay}),
		observe:   cfg.Observer,
		logger:    logger,
	}, nil
}

// GetJSON fetches base+endpoint with params and decodes the JSON body into out.
func (c *Client) GetJSON(ctx context.Context, endpoint string, params url.Values, out any) error {
	target := c.base.JoinPath(endpoint)
	if err := c.limiter.Wait(ctx, target.String()); err != nil {
		return fmt.Errorf("%s: %w", c.name, err)
	}

	q := url.Values{}
	for k, vals := range params {
		q[k] = append([]string(nil), vals...)
	}
	if c.email != "" {
		q.Set("mailto", c.email)
	}
	target.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return fmt.Errorf("%s build request: %w", c.name, err)
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.report(0, time.Since(start))
		return fmt.Errorf("%s request: %w", c.name, err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.logger.Debug("close response body", zap.Error(cerr))
		}
	}()
	c.report(resp.StatusCode, time.Since(start))
	c.logger.Debug("api request",
		zap.String("api", c.name),
		zap.String("url", target.Redacted()),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{
			URL:        target.Redacted(),
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
		}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s decode response: %w", c.name, err)
	}
	return nil
}

func (c *Client) report(status int, d time.Duration) {
	if c.observe != nil {
		c.observe(c.name, status, d)
	}
}
