package streaming

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	pkgerrs "github.com/jamesprial/go-mastodon-api-wrapper/pkg/errors"
)

const (
	// DefaultReconnectInitialInterval is the first reconnect delay.
	DefaultReconnectInitialInterval = time.Second
	// DefaultReconnectMaxInterval caps the reconnect delay.
	DefaultReconnectMaxInterval = time.Minute

	streamingPath    = "api/v1/streaming"
	maxErrorBodySize = 2048
)

// errStreamClosed is returned by a session the server ended cleanly, so the
// reconnect loop tries again.
var errStreamClosed = errors.New("stream closed by server")

// Reconnect configures automatic reconnection. The zero value disables it.
type Reconnect struct {
	Enabled         bool
	InitialInterval time.Duration
	MaxInterval     time.Duration
	// MaxAttempts bounds the number of connections; zero means unlimited.
	MaxAttempts uint
}

// Runner streams server-sent events over a long-lived HTTP response.
type Runner struct {
	// HTTPClient is copied with its timeout cleared; nil uses http.DefaultClient.
	HTTPClient *http.Client
	// BaseURL is the streaming API root, usually the instance URL.
	BaseURL     *url.URL
	AccessToken string
	UserAgent   string
	Logger      *slog.Logger
	Observer    Observer
	Reconnect   Reconnect
}

// StreamPath maps a stream name such as "public:local" to its HTTP
// endpoint path below the base URL.
func StreamPath(stream string) string {
	return streamingPath + "/" + strings.ReplaceAll(stream, ":", "/")
}

// Stream connects to the named stream and feeds events to l until the
// context is cancelled, the server closes the connection (without
// reconnect) or a handler fails.
func (r *Runner) Stream(ctx context.Context, stream string, params url.Values, l Listener) error {
	if r.BaseURL == nil {
		return &pkgerrs.ConfigError{Field: "BaseURL", Message: "streaming base URL is required"}
	}
	target := r.BaseURL.ResolveReference(&url.URL{Path: StreamPath(stream)})
	if len(params) > 0 {
		target.RawQuery = params.Encode()
	}

	logger := r.logger()
	httpClient := streamHTTPClient(r.HTTPClient)
	session := func(ctx context.Context) (bool, error) {
		d := NewDispatcher(l, WithLogger(logger), WithObserver(r.Observer))
		return r.session(ctx, httpClient, target.String(), d)
	}
	return runSessions(ctx, logger, r.Reconnect, stream, l, session)
}

func (r *Runner) logger() *slog.Logger {
	if r.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return r.Logger
}

// session runs one connection. connected reports whether the server
// accepted the stream.
func (r *Runner) session(ctx context.Context, httpClient *http.Client, target string, d *Dispatcher) (connected bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return false, &pkgerrs.NetworkError{Method: http.MethodGet, URL: target, Err: err}
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	if r.UserAgent != "" {
		req.Header.Set("User-Agent", r.UserAgent)
	}
	if r.AccessToken != "" {
		req.Header.Set("Authorization", "Bearer "+r.AccessToken)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return false, &pkgerrs.NetworkError{Method: http.MethodGet, URL: target, Err: err}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= http.StatusBadRequest {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		return false, statusError(target, resp.StatusCode, body)
	}

	r.logger().Debug("stream connected", "url", target)
	body := networkReader{r: resp.Body, url: target}
	if err := d.run(body); err != nil {
		return true, err
	}
	return true, errStreamClosed
}

// streamHTTPClient copies c without a timeout; streams stay open indefinitely
// and are bounded by their context instead.
func streamHTTPClient(c *http.Client) *http.Client {
	if c == nil {
		c = http.DefaultClient
	}
	copied := *c
	copied.Timeout = 0
	return &copied
}

// networkReader reports body read failures as network errors so they can be
// told apart from dispatch failures.
type networkReader struct {
	r   io.Reader
	url string
}

func (n networkReader) Read(p []byte) (int, error) {
	read, err := n.r.Read(p)
	if err != nil && !errors.Is(err, io.EOF) {
		err = &pkgerrs.NetworkError{Method: http.MethodGet, URL: n.url, Err: err}
	}
	return read, err
}

func statusError(target string, status int, body []byte) error {
	var se struct {
		Error string `json:"error"`
	}
	_ = json.Unmarshal(body, &se)

	switch status {
	case http.StatusNotFound:
		return &pkgerrs.NotFoundError{URL: target, Message: se.Error}
	case http.StatusUnauthorized, http.StatusForbidden:
		return &pkgerrs.AuthError{StatusCode: status, Message: se.Error, Body: string(body)}
	}
	msg := se.Error
	if msg == "" {
		msg = http.StatusText(status)
	}
	return &pkgerrs.APIError{StatusCode: status, Message: msg}
}

// retryable reports whether a failed session is worth reconnecting.
func retryable(err error) bool {
	if errors.Is(err, errStreamClosed) || pkgerrs.IsNetwork(err) {
		return true
	}
	var apiErr *pkgerrs.APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= http.StatusInternalServerError
	}
	return false
}

type sessionFunc func(ctx context.Context) (connected bool, err error)

// runSessions runs session once, or repeatedly with exponential backoff when
// reconnect is enabled. Listeners implementing Aborter see the final error
// unless the context ended the stream.
func runSessions(ctx context.Context, logger *slog.Logger, rc Reconnect, stream string, l Listener, session sessionFunc) error {
	err := runSessionsInner(ctx, logger, rc, stream, session)
	if err != nil && ctx.Err() == nil {
		if a, ok := l.(Aborter); ok {
			a.Abort(err)
		}
	}
	return err
}

func runSessionsInner(ctx context.Context, logger *slog.Logger, rc Reconnect, stream string, session sessionFunc) error {
	if !rc.Enabled {
		_, err := session(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, errStreamClosed) {
			return nil
		}
		return err
	}

	retry := backoff.NewExponentialBackOff()
	retry.InitialInterval = rc.InitialInterval
	if retry.InitialInterval <= 0 {
		retry.InitialInterval = DefaultReconnectInitialInterval
	}
	retry.MaxInterval = rc.MaxInterval
	if retry.MaxInterval <= 0 {
		retry.MaxInterval = DefaultReconnectMaxInterval
	}

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		connected, err := session(ctx)
		if ctx.Err() != nil {
			return struct{}{}, backoff.Permanent(ctx.Err())
		}
		if connected {
			retry.Reset()
		}
		if !retryable(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(retry),
		backoff.WithMaxElapsedTime(0),
		backoff.WithMaxTries(rc.MaxAttempts),
		backoff.WithNotify(func(err error, next time.Duration) {
			logger.Warn("stream disconnected, reconnecting", "stream", stream, "error", err, "retry_in", next)
		}),
	)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}
