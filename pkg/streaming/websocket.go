package streaming

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	pkgerrs "github.com/jamesprial/go-mastodon-api-wrapper/pkg/errors"
)

const pongWait = time.Second

// WebSocketRunner streams events over /api/v1/streaming using websocket
// frames instead of server-sent events.
type WebSocketRunner struct {
	// Dialer defaults to websocket.DefaultDialer.
	Dialer *websocket.Dialer
	// BaseURL is the streaming API root; http and https map to ws and wss.
	BaseURL     *url.URL
	AccessToken string
	UserAgent   string
	Logger      *slog.Logger
	Observer    Observer
	Reconnect   Reconnect
}

// frame is one websocket message. Payload is normally a JSON document
// encoded as a string.
type frame struct {
	Stream  []string        `json:"stream"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// WebSocketURL returns the websocket endpoint for stream below base.
func WebSocketURL(base *url.URL, stream string, params url.Values) *url.URL {
	u := base.ResolveReference(&url.URL{Path: streamingPath})
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	}
	q := url.Values{}
	for k, v := range params {
		q[k] = append([]string(nil), v...)
	}
	q.Set("stream", stream)
	u.RawQuery = q.Encode()
	return u
}

// Stream subscribes to stream and feeds frames to l until the context is
// cancelled, the server closes the socket (without reconnect) or a handler
// fails.
func (w *WebSocketRunner) Stream(ctx context.Context, stream string, params url.Values, l Listener) error {
	if w.BaseURL == nil {
		return &pkgerrs.ConfigError{Field: "BaseURL", Message: "streaming base URL is required"}
	}
	target := WebSocketURL(w.BaseURL, stream, params).String()
	logger := w.logger()

	session := func(ctx context.Context) (bool, error) {
		d := NewDispatcher(l, WithLogger(logger), WithObserver(w.Observer))
		return w.session(ctx, target, d)
	}
	return runSessions(ctx, logger, w.Reconnect, stream, l, session)
}

func (w *WebSocketRunner) logger() *slog.Logger {
	if w.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return w.Logger
}

func (w *WebSocketRunner) session(ctx context.Context, target string, d *Dispatcher) (bool, error) {
	dialer := w.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	header := http.Header{}
	if w.AccessToken != "" {
		header.Set("Authorization", "Bearer "+w.AccessToken)
	}
	if w.UserAgent != "" {
		header.Set("User-Agent", w.UserAgent)
	}

	conn, resp, err := dialer.DialContext(ctx, target, header)
	if err != nil {
		if resp != nil && resp.StatusCode >= http.StatusBadRequest {
			return false, statusError(target, resp.StatusCode, nil)
		}
		return false, &pkgerrs.NetworkError{Method: http.MethodGet, URL: target, Err: err}
	}
	defer func() {
		_ = conn.Close()
	}()
	stop := context.AfterFunc(ctx, func() {
		_ = conn.Close()
	})
	defer stop()

	conn.SetPingHandler(func(appData string) error {
		d.Heartbeat()
		err := conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(pongWait))
		var netErr net.Error
		if errors.Is(err, websocket.ErrCloseSent) || (errors.As(err, &netErr) && netErr.Timeout()) {
			return nil
		}
		return err
	})

	w.logger().Debug("stream connected", "url", target)
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return true, errStreamClosed
			}
			return true, &pkgerrs.NetworkError{Method: http.MethodGet, URL: target, Err: err}
		}
		ev, err := decodeFrame(msg)
		if err != nil {
			return true, err
		}
		if err := d.Dispatch(ev); err != nil {
			return true, err
		}
	}
}

// decodeFrame converts a websocket message into an Event. A string payload
// is unwrapped when it holds JSON; other strings, such as deleted IDs, are
// kept as JSON strings. A frame without a payload carries null.
func decodeFrame(msg []byte) (Event, error) {
	var f frame
	if err := json.Unmarshal(msg, &f); err != nil {
		return Event{}, &pkgerrs.MalformedEventError{Reason: "bad JSON", Data: string(msg), Err: err}
	}
	if f.Event == "" {
		return Event{}, &pkgerrs.MalformedEventError{Reason: "missing field", Field: fieldEvent, Data: string(msg)}
	}

	ev := Event{Name: f.Event, Stream: f.Stream, Data: f.Payload}
	trimmed := bytes.TrimSpace(f.Payload)
	switch {
	case len(trimmed) == 0:
		ev.Data = json.RawMessage("null")
	case trimmed[0] == '"':
		var inner string
		if err := json.Unmarshal(trimmed, &inner); err == nil && json.Valid([]byte(inner)) {
			ev.Data = json.RawMessage(inner)
		}
	}
	return ev, nil
}
