package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	pkgerrs "github.com/jamesprial/go-mastodon-api-wrapper/pkg/errors"
	"golang.org/x/time/rate"
)

// scriptedResponse is one canned reply of a scriptedServer.
type scriptedResponse struct {
	status  int
	body    string
	headers map[string]string
}

// scriptedServer replies with its responses in order, repeating the last one.
type scriptedServer struct {
	mu        sync.Mutex
	responses []scriptedResponse
	requests  []*http.Request
	bodies    []string
}

func (s *scriptedServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	s.mu.Lock()
	idx := len(s.requests)
	s.requests = append(s.requests, r)
	s.bodies = append(s.bodies, string(body))
	if idx >= len(s.responses) {
		idx = len(s.responses) - 1
	}
	resp := s.responses[idx]
	s.mu.Unlock()

	for k, v := range resp.headers {
		w.Header().Set(k, v)
	}
	w.WriteHeader(resp.status)
	fmt.Fprint(w, resp.body)
}

func (s *scriptedServer) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

// sleepRecorder replaces the engine's sleep so tests never block. Each
// successful sleep advances its clock, which also drives the rate-limit state.
type sleepRecorder struct {
	mu     sync.Mutex
	sleeps []time.Duration
	err    error
	clock  time.Time
}

func (r *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sleeps = append(r.sleeps, d)
	if r.err == nil {
		r.clock = r.clock.Add(d)
	}
	return r.err
}

func (r *sleepRecorder) now() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.clock
}

func newTestEngine(t *testing.T, method RateLimitMethod, responses ...scriptedResponse) (*Client, *scriptedServer, *sleepRecorder) {
	t.Helper()
	script := &scriptedServer{responses: responses}
	server := httptest.NewServer(script)
	t.Cleanup(server.Close)

	c, err := NewClient(server.Client(), "token-value", server.URL, "test-agent", &RateLimitConfig{Method: method}, nil)
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	rec := &sleepRecorder{clock: time.Now().Truncate(time.Second)}
	c.sleep = rec.sleep
	c.RateLimit.now = rec.now
	c.RateLimit.resetAt = timeToEpoch(rec.clock)
	c.RateLimit.lastCallAt = timeToEpoch(rec.clock)
	return c, script, rec
}

func rateLimitHeaders(remaining int, reset time.Time) map[string]string {
	return map[string]string{
		"X-RateLimit-Remaining": fmt.Sprint(remaining),
		"X-RateLimit-Limit":     "300",
		"X-RateLimit-Reset":     reset.UTC().Format(time.RFC3339Nano),
	}
}

func TestNewClient_NoLimiterByDefault(t *testing.T) {
	client, err := NewClient(nil, "token", "https://example.com/", "agent", nil, nil)
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	if client.limiter != nil {
		t.Error("expected no client-side limiter by default")
	}
	if client.RateLimit.Method() != RateLimitPace {
		t.Errorf("default method = %q, want pace", client.RateLimit.Method())
	}
	if client.HTTPClient() != http.DefaultClient {
		t.Error("expected http.DefaultClient for nil httpClient")
	}
}

func TestNewClient_InvalidBaseURL(t *testing.T) {
	for _, raw := range []string{"://bad", "mastodon.example", "/relative"} {
		_, err := NewClient(nil, "token", raw, "agent", nil, nil)
		var cfgErr *pkgerrs.ConfigError
		if !errors.As(err, &cfgErr) || cfgErr.Field != "BaseURL" {
			t.Errorf("NewClient(%q) error = %v, want ConfigError for BaseURL", raw, err)
		}
	}
}

func TestNewClient_InvalidMethod(t *testing.T) {
	_, err := NewClient(nil, "token", "https://example.com", "agent", &RateLimitConfig{Method: "later"}, nil)
	var argErr *pkgerrs.IllegalArgumentError
	if !errors.As(err, &argErr) {
		t.Fatalf("expected IllegalArgumentError, got %T (%v)", err, err)
	}
}

func TestNewClient_CustomLimiterConfig(t *testing.T) {
	client, err := NewClient(nil, "token", "https://example.com/api", "agent", &RateLimitConfig{RequestsPerMinute: 120, Burst: 5}, nil)
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}

	if got := client.BaseURL.String(); got != "https://example.com/api/" {
		t.Fatalf("expected base URL to gain trailing slash, got %q", got)
	}
	if client.limiter == nil {
		t.Fatal("expected limiter to be initialized")
	}
	if got := client.limiter.Limit(); got != rate.Limit(2) {
		t.Errorf("expected limit of 2 req/sec, got %v", got)
	}
	if got := client.limiter.Burst(); got != 5 {
		t.Errorf("expected burst of 5, got %d", got)
	}

	client, _ = NewClient(nil, "token", "https://example.com", "agent", &RateLimitConfig{RequestsPerMinute: 60}, nil)
	if got := client.limiter.Burst(); got != DefaultRateLimitBurst {
		t.Errorf("expected default burst %d, got %d", DefaultRateLimitBurst, got)
	}
}

func TestClient_RequestSetsHeadersAndQuery(t *testing.T) {
	c, script, _ := newTestEngine(t, RateLimitThrow, scriptedResponse{status: http.StatusOK, body: `[]`})

	_, err := c.Request(context.Background(), http.MethodGet, "/api/v1/timelines/home", Params{"limit": 20, "local": true, "max_id": nil}, nil, true)
	if err != nil {
		t.Fatalf("Request returned error: %v", err)
	}

	req := script.requests[0]
	if got := req.Header.Get("Authorization"); got != "Bearer token-value" {
		t.Errorf("Authorization = %q", got)
	}
	if got := req.Header.Get("User-Agent"); got != "test-agent" {
		t.Errorf("User-Agent = %q", got)
	}
	if req.URL.Path != "/api/v1/timelines/home" {
		t.Errorf("path = %q", req.URL.Path)
	}
	q := req.URL.Query()
	if q.Get("limit") != "20" || q.Get("local") != "true" || q.Has("max_id") {
		t.Errorf("query = %v", q)
	}
	if script.bodies[0] != "" {
		t.Errorf("GET request carried a body: %q", script.bodies[0])
	}
}

func TestClient_PostSendsFormBody(t *testing.T) {
	c, script, _ := newTestEngine(t, RateLimitThrow, scriptedResponse{status: http.StatusOK, body: `{"id":"1"}`})

	_, err := c.Do(context.Background(), &Call{
		Method:      http.MethodPost,
		Path:        "api/v1/statuses",
		Params:      Params{"status": "hi there", "media_ids": []string{"1", "2"}},
		Header:      http.Header{"Idempotency-Key": {"abc"}},
		RateLimited: true,
	})
	if err != nil {
		t.Fatalf("Do returned error: %v", err)
	}

	req := script.requests[0]
	if got := req.Header.Get("Content-Type"); got != "application/x-www-form-urlencoded" {
		t.Errorf("Content-Type = %q", got)
	}
	if got := req.Header.Get("Idempotency-Key"); got != "abc" {
		t.Errorf("Idempotency-Key = %q", got)
	}
	body := script.bodies[0]
	for _, want := range []string{"status=hi+there", "media_ids%5B%5D=1", "media_ids%5B%5D=2"} {
		if !strings.Contains(body, want) {
			t.Errorf("body %q missing %q", body, want)
		}
	}
}

func TestClient_PostMultipart(t *testing.T) {
	c, script, _ := newTestEngine(t, RateLimitThrow, scriptedResponse{status: http.StatusOK, body: `{"id":"m1"}`})

	_, err := c.Do(context.Background(), &Call{
		Method: http.MethodPost,
		Path:   "api/v2/media",
		Params: Params{"description": "alt"},
		Files:  map[string]File{"file": {FileName: "a.png", ContentType: "image/png", Data: []byte("png")}},
	})
	if err != nil {
		t.Fatalf("Do returned error: %v", err)
	}
	if ct := script.requests[0].Header.Get("Content-Type"); !strings.HasPrefix(ct, "multipart/form-data; boundary=") {
		t.Errorf("Content-Type = %q", ct)
	}
	if !strings.Contains(script.bodies[0], "png") || !strings.Contains(script.bodies[0], "alt") {
		t.Errorf("multipart body incomplete: %q", script.bodies[0])
	}
}

func TestClient_DoRejectsBadCalls(t *testing.T) {
	c, script, _ := newTestEngine(t, RateLimitThrow, scriptedResponse{status: http.StatusOK, body: `{}`})

	tests := []struct {
		name string
		call *Call
	}{
		{"nil call", nil},
		{"bad method", &Call{Method: "TRACE", Path: "x"}},
		{"unsupported param", &Call{Method: http.MethodGet, Path: "x", Params: Params{"bad": struct{}{}}}},
		{"files on GET", &Call{Method: http.MethodGet, Path: "x", Files: map[string]File{"file": {Data: []byte("x")}}}},
		{"empty file", &Call{Method: http.MethodPost, Path: "x", Files: map[string]File{"file": {}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Do(context.Background(), tt.call)
			var argErr *pkgerrs.IllegalArgumentError
			if !errors.As(err, &argErr) {
				t.Errorf("Do() error = %v, want IllegalArgumentError", err)
			}
		})
	}
	if n := script.count(); n != 0 {
		t.Errorf("invalid calls reached the server %d times", n)
	}
}

func TestClient_StatusMapping(t *testing.T) {
	tests := []struct {
		name     string
		resp     scriptedResponse
		raw      bool
		check    func(t *testing.T, err error)
		wantBody string
	}{
		{
			name:     "ok json",
			resp:     scriptedResponse{status: http.StatusOK, body: `{"id":"1"}`},
			wantBody: `{"id":"1"}`,
		},
		{
			name:     "no content",
			resp:     scriptedResponse{status: http.StatusNoContent},
			wantBody: "",
		},
		{
			name:     "raw plain text",
			resp:     scriptedResponse{status: http.StatusOK, body: "OK"},
			raw:      true,
			wantBody: "OK",
		},
		{
			name: "not found",
			resp: scriptedResponse{status: http.StatusNotFound, body: `{"error":"Record not found"}`},
			check: func(t *testing.T, err error) {
				var nf *pkgerrs.NotFoundError
				if !errors.As(err, &nf) || nf.Message != "Record not found" {
					t.Errorf("error = %v, want NotFoundError with server message", err)
				}
			},
		},
		{
			name: "internal server error",
			resp: scriptedResponse{status: http.StatusInternalServerError, body: `<html>oops</html>`},
			check: func(t *testing.T, err error) {
				var apiErr *pkgerrs.APIError
				if !errors.As(err, &apiErr) || apiErr.StatusCode != 500 || apiErr.Message != "internal server error" {
					t.Errorf("error = %v, want APIError 500", err)
				}
			},
		},
		{
			name: "unprocessable",
			resp: scriptedResponse{status: http.StatusUnprocessableEntity, body: `{"error":"Validation failed: Text can't be blank"}`},
			check: func(t *testing.T, err error) {
				var apiErr *pkgerrs.APIError
				if !errors.As(err, &apiErr) || apiErr.StatusCode != 422 || !strings.Contains(apiErr.Message, "Text can't be blank") {
					t.Errorf("error = %v, want APIError 422", err)
				}
			},
		},
		{
			name: "service unavailable without body",
			resp: scriptedResponse{status: http.StatusServiceUnavailable},
			check: func(t *testing.T, err error) {
				var apiErr *pkgerrs.APIError
				if !errors.As(err, &apiErr) || apiErr.Message != "Service Unavailable" {
					t.Errorf("error = %v, want APIError with status text", err)
				}
			},
		},
		{
			name: "invalid json",
			resp: scriptedResponse{status: http.StatusOK, body: `{"bad json"`},
			check: func(t *testing.T, err error) {
				var apiErr *pkgerrs.APIError
				if !errors.As(err, &apiErr) || !strings.Contains(apiErr.Message, "could not parse") {
					t.Errorf("error = %v, want APIError for invalid JSON", err)
				}
			},
		},
		{
			name: "empty body with 200",
			resp: scriptedResponse{status: http.StatusOK},
			check: func(t *testing.T, err error) {
				var apiErr *pkgerrs.APIError
				if !errors.As(err, &apiErr) {
					t.Errorf("error = %v, want APIError", err)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _, _ := newTestEngine(t, RateLimitThrow, tt.resp)
			resp, err := c.Do(context.Background(), &Call{Method: http.MethodGet, Path: "api/v1/x", RateLimited: true, Raw: tt.raw})
			if tt.check != nil {
				if resp != nil {
					t.Errorf("expected nil response alongside error")
				}
				tt.check(t, err)
				return
			}
			if err != nil {
				t.Fatalf("Do returned error: %v", err)
			}
			if string(resp.Body) != tt.wantBody {
				t.Errorf("body = %q, want %q", resp.Body, tt.wantBody)
			}
		})
	}
}

func TestResponseDecode(t *testing.T) {
	resp := &Response{StatusCode: 200, Body: []byte(`{"id":"7"}`)}
	var v struct{ ID string }
	if err := resp.Decode(&v); err != nil || v.ID != "7" {
		t.Errorf("Decode() = %v, id %q", err, v.ID)
	}
	bad := &Response{StatusCode: 200, Body: []byte(`[1,2]`)}
	var apiErr *pkgerrs.APIError
	if err := bad.Decode(&v); !errors.As(err, &apiErr) {
		t.Errorf("Decode() mismatch error = %v, want APIError", err)
	}
	if err := (&Response{StatusCode: 204}).Decode(&v); err != nil {
		t.Errorf("Decode() of empty body = %v", err)
	}
}

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

func TestClient_DoTransportErrorNotRetried(t *testing.T) {
	expectedErr := errors.New("boom")
	attempts := 0
	httpClient := &http.Client{Transport: roundTripperFunc(func(r *http.Request) (*http.Response, error) {
		attempts++
		return nil, expectedErr
	})}

	for _, method := range []RateLimitMethod{RateLimitThrow, RateLimitWait, RateLimitPace} {
		attempts = 0
		c, err := NewClient(httpClient, "token", "https://example.com/", "agent", &RateLimitConfig{Method: method}, nil)
		if err != nil {
			t.Fatalf("NewClient returned error: %v", err)
		}
		c.sleep = (&sleepRecorder{}).sleep

		_, err = c.Do(context.Background(), &Call{Method: http.MethodGet, Path: "resource", RateLimited: true})
		var netErr *pkgerrs.NetworkError
		if !errors.As(err, &netErr) {
			t.Fatalf("%s: expected NetworkError, got %T", method, err)
		}
		if !errors.Is(err, expectedErr) {
			t.Errorf("%s: expected wrapped error %v, got %v", method, expectedErr, err)
		}
		if attempts != 1 {
			t.Errorf("%s: transport called %d times, want 1", method, attempts)
		}
	}
}

func TestClient_ThrowModeReturnsRateLimitError(t *testing.T) {
	reset := time.Now().Add(2 * time.Minute)
	for _, resp := range []scriptedResponse{
		{status: http.StatusTooManyRequests, body: `{"error":"Too many requests"}`, headers: rateLimitHeaders(0, reset)},
		{status: http.StatusOK, body: `{"error":"Throttled"}`, headers: rateLimitHeaders(0, reset)},
	} {
		c, script, rec := newTestEngine(t, RateLimitThrow, resp)
		_, err := c.Do(context.Background(), &Call{Method: http.MethodGet, Path: "api/v1/x", RateLimited: true})

		var rlErr *pkgerrs.RateLimitError
		if !errors.As(err, &rlErr) {
			t.Fatalf("expected RateLimitError, got %T (%v)", err, err)
		}
		if rlErr.ResetAt.IsZero() {
			t.Error("RateLimitError.ResetAt not populated")
		}
		if script.count() != 1 {
			t.Errorf("throw mode sent %d requests, want 1", script.count())
		}
		if len(rec.sleeps) != 0 {
			t.Errorf("throw mode slept: %v", rec.sleeps)
		}
	}
}

func TestClient_WaitModeResendsAfterThrottle(t *testing.T) {
	reset := time.Now().Truncate(time.Second).Add(30 * time.Second)
	c, script, rec := newTestEngine(t, RateLimitWait,
		scriptedResponse{status: http.StatusTooManyRequests, body: `{"error":"Throttled"}`, headers: rateLimitHeaders(0, reset)},
		scriptedResponse{status: http.StatusOK, body: `{"id":"1"}`, headers: rateLimitHeaders(299, reset.Add(5*time.Minute))},
	)

	resp, err := c.Do(context.Background(), &Call{Method: http.MethodGet, Path: "api/v1/x", RateLimited: true})
	if err != nil {
		t.Fatalf("Do returned error: %v", err)
	}
	if string(resp.Body) != `{"id":"1"}` {
		t.Errorf("body = %q", resp.Body)
	}
	if script.count() != 2 {
		t.Errorf("requests = %d, want 2", script.count())
	}
	if len(rec.sleeps) != 1 {
		t.Fatalf("sleeps = %v, want exactly one throttle sleep", rec.sleeps)
	}
	if d := rec.sleeps[0]; d < 25*time.Second || d > 31*time.Second {
		t.Errorf("throttle sleep = %v, want about 30s", d)
	}
	if snap := c.RateLimit.Snapshot(); snap.Remaining != 299 {
		t.Errorf("Remaining = %d, want 299", snap.Remaining)
	}
}

func TestClient_ThrottleWaitHasFloor(t *testing.T) {
	past := time.Now().Add(-time.Minute).Truncate(time.Second)
	c, _, rec := newTestEngine(t, RateLimitPace,
		scriptedResponse{status: http.StatusTooManyRequests, headers: rateLimitHeaders(0, past)},
		scriptedResponse{status: http.StatusOK, body: `{}`, headers: rateLimitHeaders(300, time.Now().Add(5*time.Minute))},
	)

	if _, err := c.Do(context.Background(), &Call{Method: http.MethodGet, Path: "api/v1/x", RateLimited: true}); err != nil {
		t.Fatalf("Do returned error: %v", err)
	}
	found := false
	for _, d := range rec.sleeps {
		if d == minThrottleWait {
			found = true
		}
	}
	if !found {
		t.Errorf("sleeps = %v, want a %v floor sleep", rec.sleeps, minThrottleWait)
	}
}

func TestClient_UnratedCallNeverWaits(t *testing.T) {
	c, script, rec := newTestEngine(t, RateLimitWait,
		scriptedResponse{status: http.StatusTooManyRequests, body: `{"error":"Throttled"}`, headers: rateLimitHeaders(0, time.Now().Add(time.Minute))},
	)
	before := c.RateLimit.Snapshot()

	_, err := c.Do(context.Background(), &Call{Method: http.MethodPost, Path: "oauth/token"})
	if !pkgerrs.IsRateLimited(err) {
		t.Fatalf("expected RateLimitError, got %v", err)
	}
	if script.count() != 1 || len(rec.sleeps) != 0 {
		t.Errorf("requests = %d, sleeps = %v", script.count(), rec.sleeps)
	}
	if after := c.RateLimit.Snapshot(); after != before {
		t.Errorf("unrated call changed state: %+v -> %+v", before, after)
	}
}

func TestClient_WaitModeSleepsWhenExhausted(t *testing.T) {
	c, _, rec := newTestEngine(t, RateLimitWait, scriptedResponse{status: http.StatusOK, body: `{}`})
	c.RateLimit.remaining = 0
	c.RateLimit.resetAt = timeToEpoch(rec.now().Add(20 * time.Second))

	if _, err := c.Do(context.Background(), &Call{Method: http.MethodGet, Path: "api/v1/x", RateLimited: true}); err != nil {
		t.Fatalf("Do returned error: %v", err)
	}
	if len(rec.sleeps) != 1 || rec.sleeps[0] != 20*time.Second {
		t.Errorf("sleeps = %v, want [20s]", rec.sleeps)
	}
}

func TestClient_PaceModeSpacesCalls(t *testing.T) {
	c, _, rec := newTestEngine(t, RateLimitPace, scriptedResponse{status: http.StatusOK, body: `{}`})
	c.RateLimit.paceFactor = 1
	c.RateLimit.remaining = 10
	c.RateLimit.resetAt = timeToEpoch(rec.now().Add(100 * time.Second))

	if _, err := c.Do(context.Background(), &Call{Method: http.MethodGet, Path: "api/v1/x", RateLimited: true}); err != nil {
		t.Fatalf("Do returned error: %v", err)
	}
	if len(rec.sleeps) != 1 || rec.sleeps[0] != 10*time.Second {
		t.Errorf("sleeps = %v, want [10s]", rec.sleeps)
	}
}

func TestClient_InterruptedWait(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(c *Client, rec *sleepRecorder) context.Context
		requests int
	}{
		{
			name: "throttle resend",
			setup: func(c *Client, rec *sleepRecorder) context.Context {
				rec.err = context.Canceled
				return context.Background()
			},
			requests: 1,
		},
		{
			name: "exhausted window",
			setup: func(c *Client, rec *sleepRecorder) context.Context {
				c.RateLimit.remaining = 0
				c.RateLimit.resetAt = timeToEpoch(rec.now().Add(time.Minute))
				rec.err = context.DeadlineExceeded
				return context.Background()
			},
		},
		{
			name: "token bucket",
			setup: func(c *Client, rec *sleepRecorder) context.Context {
				c.limiter = rate.NewLimiter(rate.Every(time.Hour), 1)
				ctx, cancel := context.WithCancel(context.Background())
				cancel()
				return ctx
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, script, rec := newTestEngine(t, RateLimitWait,
				scriptedResponse{status: http.StatusTooManyRequests, headers: rateLimitHeaders(0, time.Now().Add(time.Minute))},
			)
			ctx := tt.setup(c, rec)

			_, err := c.Do(ctx, &Call{Method: http.MethodGet, Path: "api/v1/x", RateLimited: true})
			if !pkgerrs.IsRateLimited(err) {
				t.Fatalf("error = %T %v, want RateLimitError", err, err)
			}
			if pkgerrs.IsNetwork(err) {
				t.Errorf("interrupted wait reported as a network failure: %v", err)
			}
			if ctx.Err() != nil {
				if !errors.Is(err, ctx.Err()) {
					t.Errorf("error = %v, want it to wrap %v", err, ctx.Err())
				}
			} else if !errors.Is(err, rec.err) {
				t.Errorf("error = %v, want it to wrap %v", err, rec.err)
			}
			if !strings.Contains(err.Error(), "wait interrupted") {
				t.Errorf("error = %q", err.Error())
			}
			if script.count() != tt.requests {
				t.Errorf("requests = %d, want %d", script.count(), tt.requests)
			}
		})
	}
}

func TestClient_MalformedRateHeaders(t *testing.T) {
	c, _, _ := newTestEngine(t, RateLimitPace, scriptedResponse{
		status:  http.StatusOK,
		body:    `{}`,
		headers: map[string]string{"X-RateLimit-Remaining": "lots", "X-RateLimit-Limit": "300", "X-RateLimit-Reset": "soon"},
	})
	before := c.RateLimit.Snapshot()

	_, err := c.Do(context.Background(), &Call{Method: http.MethodGet, Path: "api/v1/x", RateLimited: true})
	if !pkgerrs.IsRateLimited(err) {
		t.Fatalf("error = %v, want RateLimitError", err)
	}
	if after := c.RateLimit.Snapshot(); after != before {
		t.Errorf("state changed: %+v -> %+v", before, after)
	}
}

func TestClient_HonorsCanceledContextBeforeSend(t *testing.T) {
	c, script, _ := newTestEngine(t, RateLimitThrow, scriptedResponse{status: http.StatusOK, body: `{}`})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Do(ctx, &Call{Method: http.MethodGet, Path: "api/v1/x"})
	if !pkgerrs.IsNetwork(err) || !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want NetworkError wrapping context.Canceled", err)
	}
	if script.count() != 0 {
		t.Errorf("requests = %d, want 0", script.count())
	}
}

type recordingMetrics struct {
	mu        sync.Mutex
	requests  []int
	sleeps    []string
	throttled int
}

func (m *recordingMetrics) ObserveRequest(_ string, status int, _ time.Duration) {
	m.mu.Lock()
	m.requests = append(m.requests, status)
	m.mu.Unlock()
}

func (m *recordingMetrics) ObserveRateLimitSleep(reason string, _ time.Duration) {
	m.mu.Lock()
	m.sleeps = append(m.sleeps, reason)
	m.mu.Unlock()
}

func (m *recordingMetrics) ObserveThrottled() {
	m.mu.Lock()
	m.throttled++
	m.mu.Unlock()
}

func TestClient_RecordsMetrics(t *testing.T) {
	c, _, rec := newTestEngine(t, RateLimitWait,
		scriptedResponse{status: http.StatusTooManyRequests, headers: rateLimitHeaders(0, time.Now().Truncate(time.Second).Add(10*time.Second))},
		scriptedResponse{status: http.StatusOK, body: `{}`, headers: rateLimitHeaders(300, time.Now().Add(5*time.Minute))},
	)
	m := &recordingMetrics{}
	c.SetRecorder(m)

	if _, err := c.Do(context.Background(), &Call{Method: http.MethodGet, Path: "api/v1/x", RateLimited: true}); err != nil {
		t.Fatalf("Do returned error: %v", err)
	}
	if len(m.requests) != 2 || m.requests[0] != 429 || m.requests[1] != 200 {
		t.Errorf("observed requests = %v", m.requests)
	}
	if m.throttled != 1 {
		t.Errorf("throttled = %d, want 1", m.throttled)
	}
	if len(m.sleeps) != 1 || m.sleeps[0] != "throttled" {
		t.Errorf("sleep reasons = %v, want [throttled]", m.sleeps)
	}
	if len(rec.sleeps) != 1 {
		t.Errorf("sleeps = %v", rec.sleeps)
	}
}

func TestClient_SetToken(t *testing.T) {
	c, script, _ := newTestEngine(t, RateLimitThrow, scriptedResponse{status: http.StatusOK, body: `{}`})
	c.SetToken("")
	if _, err := c.Do(context.Background(), &Call{Method: http.MethodGet, Path: "api/v1/instance"}); err != nil {
		t.Fatalf("Do returned error: %v", err)
	}
	if got := script.requests[0].Header.Get("Authorization"); got != "" {
		t.Errorf("Authorization = %q, want none", got)
	}
	c.SetToken("fresh")
	if c.Token() != "fresh" {
		t.Errorf("Token() = %q", c.Token())
	}
}

func TestSleepContext(t *testing.T) {
	if err := sleepContext(context.Background(), 0); err != nil {
		t.Errorf("sleepContext(0) = %v", err)
	}
	if err := sleepContext(context.Background(), time.Millisecond); err != nil {
		t.Errorf("sleepContext(1ms) = %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := sleepContext(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Errorf("sleepContext(cancelled) = %v", err)
	}
}
