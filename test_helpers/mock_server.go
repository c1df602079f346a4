package test_helpers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

// MockServer is a configurable fake Mastodon instance for tests.
type MockServer struct {
	server  *httptest.Server
	handler *MockHandler
}

// RequestEntry records one request received by the mock server.
type RequestEntry struct {
	Method    string
	Path      string
	Query     url.Values
	Headers   http.Header
	Body      string
	Timestamp time.Time
}

// Form parses a form-encoded body.
func (e RequestEntry) Form() url.Values {
	v, _ := url.ParseQuery(e.Body)
	return v
}

// MockResponse defines one canned response.
type MockResponse struct {
	Status  int
	Body    string
	Headers map[string]string
	Delay   time.Duration
	// Stream writes Body as text/event-stream and flushes it.
	Stream bool
}

// RateLimitHeaders describes the X-RateLimit-* headers sent with every response.
type RateLimitHeaders struct {
	Limit     int
	Remaining int
	Reset     time.Time
}

// MockHandler serves routes keyed by "METHOD /path". A route holds a queue
// of responses; the last one repeats once the queue is drained.
type MockHandler struct {
	mu          sync.Mutex
	routes      map[string][]*MockResponse
	defaultResp *MockResponse
	rateLimit   *RateLimitHeaders
	requestLog  []RequestEntry
	callCount   map[string]int
}

// NewMockServer starts a mock server. Unknown routes answer 404 with a
// Mastodon-style error body.
func NewMockServer() *MockServer {
	handler := &MockHandler{
		routes:    make(map[string][]*MockResponse),
		callCount: make(map[string]int),
		defaultResp: &MockResponse{
			Status: http.StatusNotFound,
			Body:   `{"error":"Record not found"}`,
		},
	}
	return &MockServer{
		server:  httptest.NewServer(handler),
		handler: handler,
	}
}

// URL returns the base URL of the mock server.
func (ms *MockServer) URL() string {
	return ms.server.URL
}

// Client returns an HTTP client for the server.
func (ms *MockServer) Client() *http.Client {
	return ms.server.Client()
}

// Close shuts down the mock server.
func (ms *MockServer) Close() {
	ms.server.CloseClientConnections()
	ms.server.Close()
}

// SetResponse replaces the responses of a route with a single one.
func (ms *MockServer) SetResponse(method, path string, response *MockResponse) {
	ms.SetSequence(method, path, response)
}

// SetSequence queues responses for a route, answered in order.
func (ms *MockServer) SetSequence(method, path string, responses ...*MockResponse) {
	ms.handler.mu.Lock()
	defer ms.handler.mu.Unlock()
	ms.handler.routes[routeKey(method, path)] = responses
}

// SetJSON is shorthand for a 200 response carrying body.
func (ms *MockServer) SetJSON(method, path, body string) {
	ms.SetResponse(method, path, &MockResponse{Status: http.StatusOK, Body: body})
}

// SetStream serves body as a server-sent event stream on path.
func (ms *MockServer) SetStream(path, body string) {
	ms.SetResponse(http.MethodGet, path, &MockResponse{Status: http.StatusOK, Body: body, Stream: true})
}

// SetRateLimit adds rate-limit headers to every response. Nil removes them.
func (ms *MockServer) SetRateLimit(rl *RateLimitHeaders) {
	ms.handler.mu.Lock()
	defer ms.handler.mu.Unlock()
	ms.handler.rateLimit = rl
}

// SetupError makes every unknown route fail with statusCode.
func (ms *MockServer) SetupError(statusCode int, message string) {
	ms.handler.mu.Lock()
	defer ms.handler.mu.Unlock()
	ms.handler.defaultResp = &MockResponse{
		Status: statusCode,
		Body:   fmt.Sprintf(`{"error":%q}`, message),
	}
}

// GetRequestLog returns a copy of the request log.
func (ms *MockServer) GetRequestLog() []RequestEntry {
	ms.handler.mu.Lock()
	defer ms.handler.mu.Unlock()
	return append([]RequestEntry{}, ms.handler.requestLog...)
}

// GetCallCount returns how often a route was requested.
func (ms *MockServer) GetCallCount(method, path string) int {
	ms.handler.mu.Lock()
	defer ms.handler.mu.Unlock()
	return ms.handler.callCount[routeKey(method, path)]
}

// GetLastRequest returns the last request made to a route.
func (ms *MockServer) GetLastRequest(method, path string) (*RequestEntry, error) {
	ms.handler.mu.Lock()
	defer ms.handler.mu.Unlock()
	for i := len(ms.handler.requestLog) - 1; i >= 0; i-- {
		e := ms.handler.requestLog[i]
		if e.Method == method && e.Path == path {
			return &e, nil
		}
	}
	return nil, fmt.Errorf("no requests found for %s %s", method, path)
}

// ClearLog clears the request log and call counts.
func (ms *MockServer) ClearLog() {
	ms.handler.mu.Lock()
	defer ms.handler.mu.Unlock()
	ms.handler.requestLog = nil
	ms.handler.callCount = make(map[string]int)
}

// WaitForRequests waits until at least count requests have been received.
func (ms *MockServer) WaitForRequests(count int, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for %d requests", count)
		case <-ticker.C:
			ms.handler.mu.Lock()
			n := len(ms.handler.requestLog)
			ms.handler.mu.Unlock()
			if n >= count {
				return nil
			}
		}
	}
}

// AssertRequestCount checks the number of requests made to a route.
func (ms *MockServer) AssertRequestCount(method, path string, expectedCount int) error {
	if actual := ms.GetCallCount(method, path); actual != expectedCount {
		return fmt.Errorf("expected %d requests to %s %s, got %d", expectedCount, method, path, actual)
	}
	return nil
}

// ServeHTTP implements http.Handler.
func (h *MockHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	key := routeKey(r.Method, r.URL.Path)

	h.mu.Lock()
	h.requestLog = append(h.requestLog, RequestEntry{
		Method:    r.Method,
		Path:      r.URL.Path,
		Query:     r.URL.Query(),
		Headers:   r.Header.Clone(),
		Body:      string(body),
		Timestamp: time.Now(),
	})
	h.callCount[key]++
	response := h.defaultResp
	if queue := h.routes[key]; len(queue) > 0 {
		response = queue[0]
		if len(queue) > 1 {
			h.routes[key] = queue[1:]
		}
	}
	rl := h.rateLimit
	h.mu.Unlock()

	if response.Delay > 0 {
		select {
		case <-time.After(response.Delay):
		case <-r.Context().Done():
			return
		}
	}

	if rl != nil {
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(rl.Remaining))
		w.Header().Set("X-RateLimit-Reset", rl.Reset.UTC().Format(time.RFC3339))
	}
	for k, v := range response.Headers {
		w.Header().Set(k, v)
	}

	if response.Stream {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(response.Status)
		_, _ = io.WriteString(w, response.Body)
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		return
	}

	if w.Header().Get("Content-Type") == "" {
		w.Header().Set("Content-Type", "application/json")
	}
	status := response.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = io.WriteString(w, response.Body)
}

func routeKey(method, path string) string {
	return strings.ToUpper(method) + " " + path
}
