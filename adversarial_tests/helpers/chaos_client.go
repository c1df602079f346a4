package helpers

import (
	"bytes"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
)

// ChaosMode defines the type of chaos to inject
type ChaosMode int

const (
	// ChaosNone forwards requests unchanged
	ChaosNone ChaosMode = iota

	// ChaosConnectionReset fails the round trip with ECONNRESET
	ChaosConnectionReset

	// ChaosPartialRead returns a body that fails after PartialReadBytes
	ChaosPartialRead

	// ChaosEmptyBody answers 200 with no body
	ChaosEmptyBody

	// ChaosInvalidJSON answers 200 with a body that is not JSON
	ChaosInvalidJSON

	// ChaosThrottled answers 429 with Mastodon's throttle body
	ChaosThrottled

	// ChaosServerError answers 503 with an HTML error page
	ChaosServerError

	// ChaosMaliciousRateHeaders forwards the request and replaces the
	// X-RateLimit-* headers of the response with RateHeaders
	ChaosMaliciousRateHeaders

	// ChaosTruncatedStream answers with an event stream cut off mid-event
	ChaosTruncatedStream

	// ChaosIntermittent randomly applies one of the failure modes
	ChaosIntermittent
)

func (m ChaosMode) String() string {
	switch m {
	case ChaosNone:
		return "none"
	case ChaosConnectionReset:
		return "connection-reset"
	case ChaosPartialRead:
		return "partial-read"
	case ChaosEmptyBody:
		return "empty-body"
	case ChaosInvalidJSON:
		return "invalid-json"
	case ChaosThrottled:
		return "throttled"
	case ChaosServerError:
		return "server-error"
	case ChaosMaliciousRateHeaders:
		return "malicious-rate-headers"
	case ChaosTruncatedStream:
		return "truncated-stream"
	case ChaosIntermittent:
		return "intermittent"
	}
	return fmt.Sprintf("ChaosMode(%d)", int(m))
}

// ChaosConfig configures the chaos transport behavior
type ChaosConfig struct {
	// Mode determines which type of chaos to inject
	Mode ChaosMode

	// FailureRate determines probability of failure (0.0 to 1.0)
	// Only used for ChaosIntermittent mode
	FailureRate float64

	// Delay adds artificial delay before every response
	Delay time.Duration

	// PartialReadBytes specifies how many bytes to read before failing
	PartialReadBytes int

	// RateHeaders replace the rate-limit headers in ChaosMaliciousRateHeaders
	RateHeaders map[string]string

	// Seed makes ChaosIntermittent reproducible; zero uses the clock
	Seed int64
}

// ChaosTransport is an http.RoundTripper that injects failures in front of
// a real transport.
type ChaosTransport struct {
	next     http.RoundTripper
	config   *ChaosConfig
	requests atomic.Uint64

	mu  sync.Mutex
	rnd *rand.Rand
}

// NewChaosTransport wraps next, or http.DefaultTransport when next is nil.
func NewChaosTransport(next http.RoundTripper, config *ChaosConfig) *ChaosTransport {
	if next == nil {
		next = http.DefaultTransport
	}
	if config == nil {
		config = &ChaosConfig{Mode: ChaosNone}
	}
	seed := config.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &ChaosTransport{
		next:   next,
		config: config,
		rnd:    rand.New(rand.NewSource(seed)),
	}
}

// Client returns an http.Client using the transport.
func (c *ChaosTransport) Client() *http.Client {
	return &http.Client{Transport: c, Timeout: 10 * time.Second}
}

// Requests returns the number of round trips attempted.
func (c *ChaosTransport) Requests() uint64 {
	return c.requests.Load()
}

// RoundTrip implements http.RoundTripper.
func (c *ChaosTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	c.requests.Add(1)

	if c.config.Delay > 0 {
		select {
		case <-time.After(c.config.Delay):
		case <-req.Context().Done():
			return nil, req.Context().Err()
		}
	}

	mode := c.config.Mode
	if mode == ChaosIntermittent {
		mode = c.pickMode()
	}

	switch mode {
	case ChaosConnectionReset:
		return nil, &netError{op: "read", err: syscall.ECONNRESET}

	case ChaosPartialRead:
		body := `{"id":"1","acct":"alice","display_name":"` + strings.Repeat("x", 4096) + `"}`
		n := c.config.PartialReadBytes
		if n <= 0 || n > len(body) {
			n = len(body) / 2
		}
		resp := buildResponse(req, http.StatusOK, "application/json", "")
		resp.Body = &partialReadCloser{data: []byte(body[:n])}
		resp.ContentLength = int64(len(body))
		return resp, nil

	case ChaosEmptyBody:
		return buildResponse(req, http.StatusOK, "application/json", ""), nil

	case ChaosInvalidJSON:
		return buildResponse(req, http.StatusOK, "application/json", `{"id": "1", "acct": `), nil

	case ChaosThrottled:
		return buildResponse(req, http.StatusTooManyRequests, "application/json", `{"error":"Throttled"}`), nil

	case ChaosServerError:
		return buildResponse(req, http.StatusServiceUnavailable, "text/html", "<html><body>We're sorry, but something went wrong.</body></html>"), nil

	case ChaosTruncatedStream:
		return buildResponse(req, http.StatusOK, "text/event-stream", "event: update\ndata: {\"id\":\"1\"}\n\nevent: update\ndata: {\"id\":"), nil

	case ChaosMaliciousRateHeaders:
		resp, err := c.next.RoundTrip(req)
		if err != nil {
			return nil, err
		}
		for _, h := range []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Date"} {
			resp.Header.Del(h)
		}
		for k, v := range c.config.RateHeaders {
			resp.Header.Set(k, v)
		}
		return resp, nil
	}

	return c.next.RoundTrip(req)
}

func (c *ChaosTransport) pickMode() ChaosMode {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rnd.Float64() >= c.config.FailureRate {
		return ChaosNone
	}
	modes := []ChaosMode{
		ChaosConnectionReset,
		ChaosPartialRead,
		ChaosEmptyBody,
		ChaosInvalidJSON,
		ChaosThrottled,
		ChaosServerError,
	}
	return modes[c.rnd.Intn(len(modes))]
}

func buildResponse(req *http.Request, status int, contentType, body string) *http.Response {
	header := make(http.Header)
	header.Set("Content-Type", contentType)
	return &http.Response{
		Status:        fmt.Sprintf("%d %s", status, http.StatusText(status)),
		StatusCode:    status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewBufferString(body)),
		ContentLength: int64(len(body)),
		Request:       req,
	}
}

// partialReadCloser returns its data and then a connection reset.
type partialReadCloser struct {
	data []byte
	pos  int
}

func (p *partialReadCloser) Read(buf []byte) (int, error) {
	if p.pos >= len(p.data) {
		return 0, &netError{op: "read", err: syscall.ECONNRESET}
	}
	n := copy(buf, p.data[p.pos:])
	p.pos += n
	return n, nil
}

func (p *partialReadCloser) Close() error {
	return nil
}

// netError mimics the *net.OpError a real connection failure produces.
type netError struct {
	op  string
	err error
}

func (e *netError) Error() string   { return e.op + ": " + e.err.Error() }
func (e *netError) Unwrap() error   { return e.err }
func (e *netError) Timeout() bool   { return false }
func (e *netError) Temporary() bool { return true }
