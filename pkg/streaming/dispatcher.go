package streaming

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"unicode/utf8"

	pkgerrs "github.com/jamesprial/go-mastodon-api-wrapper/pkg/errors"
)

const (
	fieldEvent  = "event"
	fieldData   = "data"
	fieldStream = "stream"
)

// Observer receives stream counters. pkg/metrics provides an implementation.
type Observer interface {
	ObserveStreamEvent(event string, handled bool)
	ObserveHeartbeat()
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the logger used for dropped events and truncated streams.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithObserver sets a metrics observer.
func WithObserver(o Observer) Option {
	return func(d *Dispatcher) {
		d.observer = o
	}
}

// Dispatcher reassembles server-sent events line by line and invokes the
// listener's handlers. It is not safe for concurrent use; one Dispatcher
// serves one connection.
type Dispatcher struct {
	listener Listener
	logger   *slog.Logger
	observer Observer

	fields     map[string]string
	heartbeats int
	dispatched int
}

// NewDispatcher returns a dispatcher feeding l.
func NewDispatcher(l Listener, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		listener: l,
		logger:   slog.New(slog.DiscardHandler),
		fields:   make(map[string]string),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Heartbeats returns the number of comment lines seen.
func (d *Dispatcher) Heartbeats() int { return d.heartbeats }

// Dispatched returns the number of events handed to a handler.
func (d *Dispatcher) Dispatched() int { return d.dispatched }

// Pending reports whether fields have been accumulated for an event that has
// not been terminated yet.
func (d *Dispatcher) Pending() bool { return len(d.fields) > 0 }

// Feed processes one line, without its trailing newline. A trailing carriage
// return is ignored.
func (d *Dispatcher) Feed(line []byte) error {
	line = bytes.TrimSuffix(line, []byte("\r"))
	if !utf8.Valid(line) {
		return &pkgerrs.MalformedEventError{Reason: "malformed UTF-8", Data: string(bytes.ToValidUTF8(line, []byte("?")))}
	}

	if len(line) == 0 {
		if len(d.fields) == 0 {
			return nil
		}
		fields := d.fields
		d.fields = make(map[string]string)
		return d.dispatchFields(fields)
	}

	if line[0] == ':' {
		d.Heartbeat()
		return nil
	}

	key, value, ok := strings.Cut(string(line), ": ")
	if !ok {
		return &pkgerrs.MalformedEventError{Reason: "malformed line", Data: string(line)}
	}
	if prev, exists := d.fields[key]; exists && key == fieldData {
		d.fields[key] = prev + "\n" + value
	} else {
		d.fields[key] = value
	}
	return nil
}

// Heartbeat records a keepalive and notifies the listener. Feed calls it for
// comment lines; websocket transports call it for pings.
func (d *Dispatcher) Heartbeat() {
	d.heartbeats++
	if d.observer != nil {
		d.observer.ObserveHeartbeat()
	}
	d.listener.Heartbeat()
}

func (d *Dispatcher) dispatchFields(fields map[string]string) error {
	name, ok := fields[fieldEvent]
	if !ok {
		return &pkgerrs.MalformedEventError{Reason: "missing field", Field: fieldEvent}
	}
	data, ok := fields[fieldData]
	if !ok {
		return &pkgerrs.MalformedEventError{Reason: "missing field", Field: fieldData}
	}

	ev := Event{Name: name, Data: json.RawMessage(data)}
	if raw, ok := fields[fieldStream]; ok {
		ev.Stream = parseStreamField(raw)
	}
	return d.Dispatch(ev)
}

// Dispatch validates the payload of a complete event and calls its handler.
// Events without a handler are logged and dropped; handler errors are
// returned unchanged.
func (d *Dispatcher) Dispatch(ev Event) error {
	if ev.Name == "" {
		return &pkgerrs.MalformedEventError{Reason: "missing field", Field: fieldEvent}
	}
	if ev.Data == nil {
		return &pkgerrs.MalformedEventError{Reason: "missing field", Field: fieldData}
	}
	if !json.Valid(ev.Data) {
		var v any
		err := json.Unmarshal(ev.Data, &v)
		return &pkgerrs.MalformedEventError{Reason: "bad JSON", Field: fieldData, Data: string(ev.Data), Err: err}
	}

	handler, ok := d.listener.Handler(ev.Name)
	if d.observer != nil {
		d.observer.ObserveStreamEvent(ev.Name, ok)
	}
	if !ok {
		d.logger.Debug("dropping stream event without handler", "event", ev.Name)
		if u, isUnknown := d.listener.(UnknownEventHandler); isUnknown {
			u.UnknownEvent(ev.Name, ev.Data)
		}
		return nil
	}

	d.dispatched++
	return handler(ev.Data)
}

// Run reads lines from r until it is exhausted or a line fails. It returns
// nil at end of input, logging a warning when the input stopped mid-event.
// Listeners implementing Aborter are told about any returned error.
func (d *Dispatcher) Run(r io.Reader) error {
	err := d.run(r)
	if err != nil {
		if a, ok := d.listener.(Aborter); ok {
			a.Abort(err)
		}
	}
	return err
}

func (d *Dispatcher) run(r io.Reader) error {
	br := bufio.NewReader(r)
	for {
		line, err := br.ReadBytes('\n')
		if err == nil {
			if ferr := d.Feed(bytes.TrimSuffix(line, []byte("\n"))); ferr != nil {
				return ferr
			}
			continue
		}
		if !errors.Is(err, io.EOF) {
			return err
		}
		// An unterminated final line is part of an unfinished event.
		if d.Pending() || len(line) > 0 {
			d.logger.Warn("stream ended in the middle of an event", "fields", len(d.fields), "partial", len(line))
			d.fields = make(map[string]string)
		}
		return nil
	}
}

// parseStreamField accepts the JSON array form the server sends as well as
// a bare stream name.
func parseStreamField(raw string) []string {
	var names []string
	if err := json.Unmarshal([]byte(raw), &names); err == nil {
		return names
	}
	return []string{raw}
}
