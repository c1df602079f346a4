package internal

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	pkgerrs "github.com/jamesprial/go-mastodon-api-wrapper/pkg/errors"
	"github.com/jamesprial/go-mastodon-api-wrapper/pkg/types"
)

// RateLimitMethod selects how the client reacts to the server's rate limit.
type RateLimitMethod string

const (
	// RateLimitThrow returns a RateLimitError as soon as the server throttles a call.
	RateLimitThrow RateLimitMethod = "throw"
	// RateLimitWait sleeps until the window resets whenever the quota is exhausted.
	RateLimitWait RateLimitMethod = "wait"
	// RateLimitPace spreads calls evenly over the remaining window.
	RateLimitPace RateLimitMethod = "pace"
)

const (
	// MaxRateLimitSleep caps every pacing and throttle sleep.
	MaxRateLimitSleep = 5 * time.Minute
	// DefaultPaceFactor slows pacing slightly below the theoretical safe rate.
	DefaultPaceFactor = 1.1
	// DefaultRateLimitLimit mirrors Mastodon's default of 300 calls per 5 minutes.
	DefaultRateLimitLimit = 300

	headerRemaining = "X-RateLimit-Remaining"
	headerLimit     = "X-RateLimit-Limit"
	headerReset     = "X-RateLimit-Reset"
	headerDate      = "Date"
)

// ParseRateLimitMethod validates a mode name.
func ParseRateLimitMethod(s string) (RateLimitMethod, error) {
	switch m := RateLimitMethod(strings.ToLower(strings.TrimSpace(s))); m {
	case RateLimitThrow, RateLimitWait, RateLimitPace:
		return m, nil
	case "":
		return RateLimitPace, nil
	default:
		return "", &pkgerrs.IllegalArgumentError{
			Argument: "ratelimit_method",
			Message:  fmt.Sprintf(`%q is not one of "throw", "wait" or "pace"`, s),
		}
	}
}

// RateLimitState holds the rate-limit bookkeeping of one client. All times are
// stored as local epoch seconds so that pacing arithmetic is clock-offset free.
type RateLimitState struct {
	mu sync.Mutex

	method     RateLimitMethod
	paceFactor float64

	limit      int
	remaining  int
	resetAt    float64
	lastCallAt float64

	now func() time.Time
}

// NewRateLimitState returns a state with a full default quota that resets now.
func NewRateLimitState(method RateLimitMethod, paceFactor float64) *RateLimitState {
	if paceFactor <= 0 || math.IsNaN(paceFactor) || math.IsInf(paceFactor, 0) {
		paceFactor = DefaultPaceFactor
	}
	if method == "" {
		method = RateLimitPace
	}
	s := &RateLimitState{
		method:     method,
		paceFactor: paceFactor,
		limit:      DefaultRateLimitLimit,
		remaining:  DefaultRateLimitLimit,
		now:        time.Now,
	}
	nowSec := s.nowSeconds()
	s.resetAt = nowSec
	s.lastCallAt = nowSec
	return s
}

// Method returns the configured mode.
func (s *RateLimitState) Method() RateLimitMethod {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.method
}

// Snapshot returns a copy of the current bookkeeping.
func (s *RateLimitState) Snapshot() types.RateLimitStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return types.RateLimitStatus{
		Method:     string(s.method),
		Limit:      s.limit,
		Remaining:  s.remaining,
		ResetAt:    epochToTime(s.resetAt),
		LastCallAt: epochToTime(s.lastCallAt),
		PaceFactor: s.paceFactor,
	}
}

// PreRequestDelay returns how long to sleep before the next rate-limited call.
// It is always within [0, MaxRateLimitSleep].
func (s *RateLimitState) PreRequestDelay() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.method == RateLimitThrow {
		return 0
	}

	now := s.nowSeconds()
	if s.remaining <= 0 {
		return clampSleep(s.resetAt - now)
	}
	if s.method != RateLimitPace {
		return 0
	}

	timeWaited := now - s.lastCallAt
	idealSpacing := (s.resetAt - now) / float64(s.remaining)
	remainingWait := idealSpacing - timeWaited
	if remainingWait <= 0 {
		return 0
	}
	return clampSleep(remainingWait / s.paceFactor)
}

// ThrottleDelay returns how long to sleep after a throttled response before
// resending, capped at MaxRateLimitSleep.
func (s *RateLimitState) ThrottleDelay() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return clampSleep(s.resetAt - s.nowSeconds())
}

// ResetTime returns the local time of the next window reset.
func (s *RateLimitState) ResetTime() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return epochToTime(s.resetAt)
}

// Update applies the rate-limit headers of a response. It reports false and
// leaves the state untouched when the response carries no rate-limit headers.
// Headers that are present but unparseable yield a RateLimitError, again
// without modifying the state.
func (s *RateLimitState) Update(h http.Header) (bool, error) {
	if h.Get(headerRemaining) == "" {
		return false, nil
	}

	remaining, err := strconv.Atoi(strings.TrimSpace(h.Get(headerRemaining)))
	if err != nil {
		return false, rateLimitParseError(headerRemaining, err)
	}
	limit, err := strconv.Atoi(strings.TrimSpace(h.Get(headerLimit)))
	if err != nil {
		return false, rateLimitParseError(headerLimit, err)
	}
	reset, err := parseResetHeader(h.Get(headerReset))
	if err != nil {
		return false, rateLimitParseError(headerReset, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.nowSeconds()
	resetAt := reset
	if date := h.Get(headerDate); date != "" {
		serverTime, err := http.ParseTime(date)
		if err != nil {
			return false, rateLimitParseError(headerDate, err)
		}
		resetAt += now - timeToEpoch(serverTime)
	}

	s.remaining = remaining
	s.limit = limit
	s.resetAt = resetAt
	s.lastCallAt = now
	return true, nil
}

func (s *RateLimitState) nowSeconds() float64 {
	return timeToEpoch(s.now())
}

// parseResetHeader accepts the ISO 8601 timestamps Mastodon sends, and plain
// epoch seconds as used by some compatible servers.
func parseResetHeader(v string) (float64, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, fmt.Errorf("header is missing")
	}
	if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
		return timeToEpoch(t), nil
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil && !math.IsNaN(secs) && !math.IsInf(secs, 0) {
		return secs, nil
	}
	return 0, fmt.Errorf("unrecognized timestamp %q", v)
}

func rateLimitParseError(header string, err error) error {
	return &pkgerrs.RateLimitError{
		Message: "rate limit time calculations failed on " + header,
		Err:     err,
	}
}

func clampSleep(seconds float64) time.Duration {
	if seconds <= 0 || math.IsNaN(seconds) {
		return 0
	}
	if seconds >= MaxRateLimitSleep.Seconds() {
		return MaxRateLimitSleep
	}
	return time.Duration(seconds * float64(time.Second))
}

func timeToEpoch(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

func epochToTime(sec float64) time.Time {
	whole, frac := math.Modf(sec)
	return time.Unix(int64(whole), int64(frac*float64(time.Second)))
}
