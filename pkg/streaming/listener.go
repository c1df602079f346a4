package streaming

import (
	"encoding/json"

	pkgerrs "github.com/jamesprial/go-mastodon-api-wrapper/pkg/errors"
	"github.com/jamesprial/go-mastodon-api-wrapper/pkg/types"
)

// HandlerFunc handles the JSON payload of one event. A returned error stops
// the dispatcher and is handed back to its caller unchanged.
type HandlerFunc func(payload json.RawMessage) error

// Listener resolves event names to handlers.
type Listener interface {
	// Handler returns the handler for the named event, or false when the
	// listener does not handle it.
	Handler(event string) (HandlerFunc, bool)
	// Heartbeat is called for every comment line received.
	Heartbeat()
}

// UnknownEventHandler is implemented by listeners that want to see events
// they have no handler for.
type UnknownEventHandler interface {
	UnknownEvent(name string, payload json.RawMessage)
}

// Aborter is implemented by listeners that want to be told why a stream
// stopped with an error.
type Aborter interface {
	Abort(err error)
}

// CallbackListener is an explicit event-name to handler table.
type CallbackListener struct {
	handlers    map[string]HandlerFunc
	onHeartbeat func()
}

// NewCallbackListener returns an empty table.
func NewCallbackListener() *CallbackListener {
	return &CallbackListener{handlers: make(map[string]HandlerFunc)}
}

// On registers fn for the named event, replacing any previous handler.
func (l *CallbackListener) On(event string, fn HandlerFunc) *CallbackListener {
	if fn == nil {
		delete(l.handlers, event)
		return l
	}
	l.handlers[event] = fn
	return l
}

// OnHeartbeat registers a heartbeat callback.
func (l *CallbackListener) OnHeartbeat(fn func()) *CallbackListener {
	l.onHeartbeat = fn
	return l
}

// Handler implements Listener.
func (l *CallbackListener) Handler(event string) (HandlerFunc, bool) {
	fn, ok := l.handlers[event]
	return fn, ok
}

// Heartbeat implements Listener.
func (l *CallbackListener) Heartbeat() {
	if l.onHeartbeat != nil {
		l.onHeartbeat()
	}
}

// Handlers is a typed listener. Payloads are decoded into the matching
// entity before the callback runs; nil callbacks leave the event unhandled.
type Handlers struct {
	OnUpdate               func(*types.Status) error
	OnStatusUpdate         func(*types.Status) error
	OnNotification         func(*types.Notification) error
	OnDelete               func(statusID string) error
	OnConversation         func(*types.Conversation) error
	OnFiltersChanged       func() error
	OnAnnouncement         func(*types.Announcement) error
	OnAnnouncementReaction func(*types.AnnouncementReaction) error
	OnAnnouncementDelete   func(announcementID string) error
	OnEncryptedMessage     func(*types.EncryptedMessage) error

	// OnHeartbeat is called for every comment line.
	OnHeartbeat func()
	// OnUnknownEvent receives events whose name this package does not know.
	OnUnknownEvent func(name string, payload json.RawMessage)
	// OnAbort is called with the error that ended a stream.
	OnAbort func(err error)
}

// Handler implements Listener.
func (h *Handlers) Handler(event string) (HandlerFunc, bool) {
	var fn HandlerFunc
	switch event {
	case EventUpdate:
		fn = decodeTo(event, h.OnUpdate)
	case EventStatusUpdate:
		fn = decodeTo(event, h.OnStatusUpdate)
	case EventNotification:
		fn = decodeTo(event, h.OnNotification)
	case EventDelete:
		fn = decodeID(event, h.OnDelete)
	case EventConversation:
		fn = decodeTo(event, h.OnConversation)
	case EventFiltersChanged:
		if h.OnFiltersChanged != nil {
			cb := h.OnFiltersChanged
			fn = func(json.RawMessage) error { return cb() }
		}
	case EventAnnouncement:
		fn = decodeTo(event, h.OnAnnouncement)
	case EventAnnouncementReaction:
		fn = decodeTo(event, h.OnAnnouncementReaction)
	case EventAnnouncementDelete:
		fn = decodeID(event, h.OnAnnouncementDelete)
	case EventEncryptedMessage:
		fn = decodeTo(event, h.OnEncryptedMessage)
	}
	return fn, fn != nil
}

// Heartbeat implements Listener.
func (h *Handlers) Heartbeat() {
	if h.OnHeartbeat != nil {
		h.OnHeartbeat()
	}
}

// UnknownEvent implements UnknownEventHandler. Known events without a
// callback are not reported.
func (h *Handlers) UnknownEvent(name string, payload json.RawMessage) {
	if h.OnUnknownEvent != nil && !IsKnownEvent(name) {
		h.OnUnknownEvent(name, payload)
	}
}

// Abort implements Aborter.
func (h *Handlers) Abort(err error) {
	if h.OnAbort != nil {
		h.OnAbort(err)
	}
}

func decodeTo[T any](event string, cb func(*T) error) HandlerFunc {
	if cb == nil {
		return nil
	}
	return func(payload json.RawMessage) error {
		v := new(T)
		if err := json.Unmarshal(payload, v); err != nil {
			return &pkgerrs.MalformedEventError{Reason: "bad payload", Field: event, Data: string(payload), Err: err}
		}
		return cb(v)
	}
}

// decodeID accepts IDs sent as JSON strings or bare numbers.
func decodeID(event string, cb func(string) error) HandlerFunc {
	if cb == nil {
		return nil
	}
	return func(payload json.RawMessage) error {
		var id types.FlexibleID
		if err := json.Unmarshal(payload, &id); err != nil || id == "" {
			return &pkgerrs.MalformedEventError{Reason: "bad payload", Field: event, Data: string(payload), Err: err}
		}
		return cb(id.String())
	}
}
