package internal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	pkgerrs "github.com/jamesprial/go-mastodon-api-wrapper/pkg/errors"
	"golang.org/x/time/rate"
)

// Client is the Mastodon request engine. It owns the rate-limit state of one
// session and is safe for concurrent use; pacing under concurrent use is
// best-effort because goroutines may compute the same sleep.
type Client struct {
	client    *http.Client
	BaseURL   *url.URL
	UserAgent string

	tokenMu sync.RWMutex
	token   string

	RateLimit *RateLimitState

	limiter *rate.Limiter
	logger  *slog.Logger
	metrics Recorder
	sleep   func(context.Context, time.Duration) error
}

// Recorder receives request engine telemetry.
type Recorder interface {
	ObserveRequest(method string, statusCode int, duration time.Duration)
	ObserveRateLimitSleep(reason string, d time.Duration)
	ObserveThrottled()
}

// RateLimitConfig controls how requests are scheduled against the server's quota.
type RateLimitConfig struct {
	// Method is one of throw, wait or pace. Defaults to pace.
	Method RateLimitMethod
	// PaceFactor > 1 paces below the theoretical safe rate. Defaults to DefaultPaceFactor.
	PaceFactor float64
	// RequestsPerMinute adds a client-side token bucket in front of the
	// server-driven schedule. Zero disables it.
	RequestsPerMinute float64
	// Burst is the token bucket size. Defaults to DefaultRateLimitBurst.
	Burst int
}

// Call describes one logical API call.
type Call struct {
	Method string
	Path   string
	Params Params
	Files  map[string]File
	Header http.Header
	// RateLimited marks the call as participating in rate-limit accounting.
	// The OAuth token exchange does not.
	RateLimited bool
	// Raw skips JSON validation for endpoints that return plain text.
	Raw bool
}

// Response is the buffered result of a successful call.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Decode unmarshals the body into v.
func (r *Response) Decode(v any) error {
	if len(r.Body) == 0 || v == nil {
		return nil
	}
	if err := json.Unmarshal(r.Body, v); err != nil {
		return &pkgerrs.APIError{StatusCode: r.StatusCode, Message: "could not decode response", Err: err}
	}
	return nil
}

const (
	DefaultRateLimitBurst = 10
	SecondsPerMinute      = 60.0

	// minThrottleWait keeps a throttled wait/pace loop from spinning when the
	// advertised reset time has already passed.
	minThrottleWait = time.Second
)

var allowedMethods = map[string]bool{
	http.MethodGet:    true,
	http.MethodPost:   true,
	http.MethodPut:    true,
	http.MethodPatch:  true,
	http.MethodDelete: true,
}

// NewClient returns a new Mastodon request engine.
// If a nil httpClient is provided, http.DefaultClient will be used.
func NewClient(httpClient *http.Client, authToken string, baseURL string, userAgent string, rateCfg *RateLimitConfig, logger *slog.Logger) (*Client, error) {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	parsedURL, err := url.Parse(baseURL)
	if err != nil {
		return nil, &pkgerrs.ConfigError{Field: "BaseURL", Message: err.Error()}
	}
	if parsedURL.Scheme == "" || parsedURL.Host == "" {
		return nil, &pkgerrs.ConfigError{Field: "BaseURL", Message: "expected absolute URL like https://mastodon.social"}
	}
	if !strings.HasSuffix(parsedURL.Path, "/") {
		parsedURL.Path += "/"
	}

	if rateCfg == nil {
		rateCfg = &RateLimitConfig{}
	}
	method := rateCfg.Method
	if method == "" {
		method = RateLimitPace
	}
	if _, err := ParseRateLimitMethod(string(method)); err != nil {
		return nil, err
	}

	return &Client{
		client:    httpClient,
		BaseURL:   parsedURL,
		UserAgent: userAgent,
		token:     authToken,
		RateLimit: NewRateLimitState(method, rateCfg.PaceFactor),
		limiter:   buildLimiter(*rateCfg),
		logger:    logger,
		sleep:     sleepContext,
	}, nil
}

// SetRecorder installs a telemetry sink. Nil disables telemetry.
func (c *Client) SetRecorder(r Recorder) {
	c.metrics = r
}

// SetToken replaces the bearer token used for subsequent calls.
func (c *Client) SetToken(token string) {
	c.tokenMu.Lock()
	c.token = token
	c.tokenMu.Unlock()
}

// Token returns the current bearer token.
func (c *Client) Token() string {
	c.tokenMu.RLock()
	defer c.tokenMu.RUnlock()
	return c.token
}

// HTTPClient returns the underlying transport client.
func (c *Client) HTTPClient() *http.Client {
	return c.client
}

// Logger returns the engine's logger.
func (c *Client) Logger() *slog.Logger {
	return c.logger
}

// Request performs one logical call and returns the validated JSON response.
func (c *Client) Request(ctx context.Context, method, path string, params Params, files map[string]File, applyRateLimit bool) (*Response, error) {
	return c.Do(ctx, &Call{
		Method:      method,
		Path:        path,
		Params:      params,
		Files:       files,
		RateLimited: applyRateLimit,
	})
}

// Do performs one logical call. Throttled responses are resent in wait and
// pace mode until the server accepts the call; nothing else is retried.
func (c *Client) Do(ctx context.Context, call *Call) (*Response, error) {
	if call == nil {
		return nil, &pkgerrs.IllegalArgumentError{Argument: "call", Message: "call cannot be nil"}
	}
	method := strings.ToUpper(call.Method)
	if !allowedMethods[method] {
		return nil, &pkgerrs.IllegalArgumentError{Argument: "method", Message: fmt.Sprintf("unsupported HTTP method %q", call.Method)}
	}

	target, err := c.BaseURL.Parse(strings.TrimPrefix(call.Path, "/"))
	if err != nil {
		return nil, &pkgerrs.IllegalArgumentError{Argument: "endpoint", Message: err.Error()}
	}

	values, err := EncodeParams(call.Params)
	if err != nil {
		return nil, err
	}

	var body []byte
	var contentType string
	if method == http.MethodGet {
		if len(call.Files) > 0 {
			return nil, &pkgerrs.IllegalArgumentError{Argument: "files", Message: "GET requests cannot carry file attachments"}
		}
		q := target.Query()
		for k, vs := range values {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		target.RawQuery = q.Encode()
	} else {
		body, contentType, err = encodeBody(values, call.Files)
		if err != nil {
			var illegal *pkgerrs.IllegalArgumentError
			if errors.As(err, &illegal) {
				return nil, err
			}
			return nil, &pkgerrs.IllegalArgumentError{Argument: "files", Message: err.Error()}
		}
	}

	for attempt := 1; ; attempt++ {
		if call.RateLimited {
			if err := c.pace(ctx); err != nil {
				return nil, err
			}
		}
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, &pkgerrs.RateLimitError{Message: "client-side rate limit wait interrupted", Err: err}
			}
		}

		resp, err := c.send(ctx, method, target, body, contentType, call.Header)
		if err != nil {
			return nil, err
		}
		c.logger.Debug("mastodon API call",
			"method", method,
			"path", target.Path,
			"status", resp.StatusCode,
			"attempt", attempt,
		)

		if call.RateLimited {
			if _, err := c.RateLimit.Update(resp.Header); err != nil {
				return nil, err
			}
		}

		if !isThrottled(resp) {
			return checkResponse(target, resp, call.Raw)
		}

		if c.metrics != nil {
			c.metrics.ObserveThrottled()
		}
		if !call.RateLimited || c.RateLimit.Method() == RateLimitThrow {
			return nil, &pkgerrs.RateLimitError{Message: "hit rate limit", ResetAt: c.RateLimit.ResetTime()}
		}

		delay := c.RateLimit.ThrottleDelay()
		if delay < minThrottleWait {
			delay = minThrottleWait
		}
		if err := c.wait(ctx, "throttled", delay); err != nil {
			return nil, err
		}
	}
}

// pace sleeps as required by the rate-limit state before a rate-limited call.
func (c *Client) pace(ctx context.Context) error {
	delay := c.RateLimit.PreRequestDelay()
	if delay <= 0 {
		return nil
	}
	reason := "pace"
	if c.RateLimit.Snapshot().Remaining <= 0 {
		reason = "exhausted"
	}
	return c.wait(ctx, reason, delay)
}

func (c *Client) wait(ctx context.Context, reason string, d time.Duration) error {
	c.logger.Debug("rate limit sleep", "reason", reason, "duration", d)
	if c.metrics != nil {
		c.metrics.ObserveRateLimitSleep(reason, d)
	}
	if err := c.sleep(ctx, d); err != nil {
		return &pkgerrs.RateLimitError{Message: "rate limit wait interrupted", ResetAt: c.RateLimit.ResetTime(), Err: err}
	}
	return nil
}

func (c *Client) send(ctx context.Context, method string, target *url.URL, body []byte, contentType string, extra http.Header) (*Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, target.String(), reader)
	if err != nil {
		return nil, &pkgerrs.IllegalArgumentError{Argument: "endpoint", Message: err.Error()}
	}

	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for k, vs := range extra {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	started := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		c.observe(method, 0, started)
		return nil, &pkgerrs.NetworkError{Method: method, URL: target.String(), Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	c.observe(method, resp.StatusCode, started)
	if err != nil {
		return nil, &pkgerrs.NetworkError{Method: method, URL: target.String(), Err: err}
	}

	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: data}, nil
}

func (c *Client) observe(method string, status int, started time.Time) {
	if c.metrics != nil {
		c.metrics.ObserveRequest(method, status, time.Since(started))
	}
}

type serverError struct {
	Error       string `json:"error"`
	Description string `json:"error_description"`
}

func parseServerError(body []byte) serverError {
	var se serverError
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		_ = json.Unmarshal(trimmed, &se)
	}
	return se
}

func isThrottled(resp *Response) bool {
	if resp.StatusCode == http.StatusTooManyRequests {
		return true
	}
	return parseServerError(resp.Body).Error == "Throttled"
}

func checkResponse(target *url.URL, resp *Response, raw bool) (*Response, error) {
	se := parseServerError(resp.Body)

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, &pkgerrs.NotFoundError{URL: target.Path, Message: se.Error}
	case resp.StatusCode == http.StatusInternalServerError:
		msg := se.Error
		if msg == "" {
			msg = "internal server error"
		}
		return nil, &pkgerrs.APIError{StatusCode: resp.StatusCode, Message: msg, Description: se.Description}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		msg := se.Error
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return nil, &pkgerrs.APIError{StatusCode: resp.StatusCode, Message: msg, Description: se.Description}
	}

	if raw {
		return resp, nil
	}
	if len(bytes.TrimSpace(resp.Body)) == 0 {
		if resp.StatusCode == http.StatusNoContent {
			return resp, nil
		}
		return nil, &pkgerrs.APIError{StatusCode: resp.StatusCode, Message: "empty response body"}
	}
	if !json.Valid(resp.Body) {
		return nil, &pkgerrs.APIError{StatusCode: resp.StatusCode, Message: "could not parse response as JSON"}
	}
	return resp, nil
}

func buildLimiter(cfg RateLimitConfig) *rate.Limiter {
	if cfg.RequestsPerMinute <= 0 {
		return nil
	}

	burst := cfg.Burst
	if burst <= 0 {
		burst = DefaultRateLimitBurst
	}

	return rate.NewLimiter(rate.Limit(cfg.RequestsPerMinute/SecondsPerMinute), burst)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
