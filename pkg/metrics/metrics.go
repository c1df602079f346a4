// Package metrics exports Prometheus instruments for the API client and its
// streaming consumers.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "mastodon_client"

// Collector holds the client's instruments. Its methods satisfy the request
// engine's recorder and the stream dispatcher's observer.
type Collector struct {
	requestDuration *prometheus.HistogramVec
	requestsTotal   *prometheus.CounterVec
	rateLimitSleep  *prometheus.HistogramVec
	throttledTotal  prometheus.Counter
	streamEvents    *prometheus.CounterVec
	heartbeatsTotal prometheus.Counter
}

// New registers the instruments with reg. A nil reg uses the default
// registerer.
func New(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Collector{
		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Duration of Mastodon API requests, excluding rate limit sleeps",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"method", "status"}),

		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Mastodon API responses grouped by method and status class",
		}, []string{"method", "status"}),

		rateLimitSleep: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ratelimit_sleep_seconds",
			Help:      "Time spent sleeping for the server's rate limit",
			Buckets:   []float64{0.1, 1, 5, 15, 30, 60, 120, 300},
		}, []string{"reason"}),

		throttledTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "throttled_total",
			Help:      "Responses the server marked as throttled",
		}),

		streamEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_events_total",
			Help:      "Streaming events received grouped by name and whether a handler ran",
		}, []string{"event", "handled"}),

		heartbeatsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_heartbeats_total",
			Help:      "Streaming heartbeats received",
		}),
	}
}

// ObserveRequest records one HTTP round trip. Status 0 means no response.
func (c *Collector) ObserveRequest(method string, statusCode int, duration time.Duration) {
	status := StatusClass(statusCode)
	c.requestDuration.WithLabelValues(method, status).Observe(duration.Seconds())
	c.requestsTotal.WithLabelValues(method, status).Inc()
}

// ObserveRateLimitSleep records a pacing or throttle sleep.
func (c *Collector) ObserveRateLimitSleep(reason string, d time.Duration) {
	if reason == "" {
		reason = "unknown"
	}
	c.rateLimitSleep.WithLabelValues(reason).Observe(d.Seconds())
}

// ObserveThrottled counts a throttled response.
func (c *Collector) ObserveThrottled() {
	c.throttledTotal.Inc()
}

// ObserveStreamEvent counts a stream event.
func (c *Collector) ObserveStreamEvent(event string, handled bool) {
	c.streamEvents.WithLabelValues(event, strconv.FormatBool(handled)).Inc()
}

// ObserveHeartbeat counts a stream heartbeat.
func (c *Collector) ObserveHeartbeat() {
	c.heartbeatsTotal.Inc()
}

// StatusClass collapses a status code to "2xx", "4xx" and so on, or "error"
// when no response was received.
func StatusClass(code int) string {
	if code < 100 || code > 599 {
		return "error"
	}
	return strconv.Itoa(code/100) + "xx"
}
