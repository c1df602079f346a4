package mastodon

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	pkgerrs "github.com/jamesprial/go-mastodon-api-wrapper/pkg/errors"
	"github.com/jamesprial/go-mastodon-api-wrapper/pkg/streaming"
	"github.com/jamesprial/go-mastodon-api-wrapper/pkg/types"
)

// streamingEndpoint caches the streaming API root of the instance.
type streamingEndpoint struct {
	mu   sync.Mutex
	base *url.URL
}

// Instance returns the instance metadata.
func (c *Client) Instance(ctx context.Context) (*types.Instance, error) {
	var inst types.Instance
	if _, err := c.get(ctx, "get instance", "api/v1/instance", nil, &inst); err != nil {
		return nil, err
	}
	return &inst, nil
}

// streamingBase returns the HTTP(S) root that serves the streaming API:
// Config.StreamingURL, else the URL the instance advertises, else the
// instance itself.
func (c *Client) streamingBase(ctx context.Context) (*url.URL, error) {
	c.streaming.mu.Lock()
	defer c.streaming.mu.Unlock()
	if c.streaming.base != nil {
		return c.streaming.base, nil
	}

	raw := c.config.StreamingURL
	if raw == "" {
		inst, err := c.Instance(ctx)
		if err != nil {
			return nil, err
		}
		raw = inst.URLs.StreamingAPI
	}
	base := *c.engine.BaseURL
	if raw != "" {
		u, err := url.Parse(raw)
		if err != nil || u.Host == "" {
			return nil, &pkgerrs.ConfigError{Field: "StreamingURL", Message: "invalid streaming URL " + raw}
		}
		base = *u
	}
	switch base.Scheme {
	case "wss":
		base.Scheme = "https"
	case "ws":
		base.Scheme = "http"
	}
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}
	c.streaming.base = &base
	c.logger.Debug("resolved streaming API", "url", base.String())
	return c.streaming.base, nil
}

func (c *Client) reconnect() streaming.Reconnect {
	return streaming.Reconnect{Enabled: c.config.StreamReconnect}
}

func (c *Client) observer() streaming.Observer {
	if c.config.Metrics == nil {
		return nil
	}
	return c.config.Metrics
}

// Stream connects to a named stream (see the Stream constants in
// pkg/streaming) over server-sent events and blocks, delivering events to l,
// until ctx is cancelled, the connection ends or a handler returns an error.
// With Config.StreamReconnect set, dropped connections are re-established
// with exponential backoff.
func (c *Client) Stream(ctx context.Context, stream string, params url.Values, l streaming.Listener) error {
	if l == nil {
		return &pkgerrs.IllegalArgumentError{Argument: "listener", Message: "listener cannot be nil"}
	}
	if err := c.ensureConnected(ctx); err != nil {
		return err
	}
	base, err := c.streamingBase(ctx)
	if err != nil {
		return err
	}
	runner := &streaming.Runner{
		HTTPClient:  c.engine.HTTPClient(),
		BaseURL:     base,
		AccessToken: c.engine.Token(),
		UserAgent:   c.config.UserAgent,
		Logger:      c.logger,
		Observer:    c.observer(),
		Reconnect:   c.reconnect(),
	}
	return runner.Stream(ctx, stream, params, l)
}

// StreamWebSocket is like Stream but uses the websocket transport.
func (c *Client) StreamWebSocket(ctx context.Context, stream string, params url.Values, l streaming.Listener) error {
	if l == nil {
		return &pkgerrs.IllegalArgumentError{Argument: "listener", Message: "listener cannot be nil"}
	}
	if err := c.ensureConnected(ctx); err != nil {
		return err
	}
	base, err := c.streamingBase(ctx)
	if err != nil {
		return err
	}
	dialer := *websocket.DefaultDialer
	if t, ok := c.engine.HTTPClient().Transport.(*http.Transport); ok && t.Proxy != nil {
		dialer.Proxy = t.Proxy
	}
	runner := &streaming.WebSocketRunner{
		Dialer:      &dialer,
		BaseURL:     base,
		AccessToken: c.engine.Token(),
		UserAgent:   c.config.UserAgent,
		Logger:      c.logger,
		Observer:    c.observer(),
		Reconnect:   c.reconnect(),
	}
	return runner.Stream(ctx, stream, params, l)
}

// StreamUser streams the user's home timeline and notifications.
func (c *Client) StreamUser(ctx context.Context, l streaming.Listener) error {
	return c.Stream(ctx, streaming.StreamUser, nil, l)
}

// StreamPublic streams the federated timeline. local restricts it to this
// instance, remote to other instances; onlyMedia keeps statuses with media.
func (c *Client) StreamPublic(ctx context.Context, local, remote, onlyMedia bool, l streaming.Listener) error {
	var stream string
	switch {
	case local && onlyMedia:
		stream = streaming.StreamPublicLocalMedia
	case local:
		stream = streaming.StreamPublicLocal
	case remote && onlyMedia:
		stream = streaming.StreamPublicRemoteMedia
	case remote:
		stream = streaming.StreamPublicRemote
	case onlyMedia:
		stream = streaming.StreamPublicMedia
	default:
		stream = streaming.StreamPublic
	}
	return c.Stream(ctx, stream, nil, l)
}

// StreamHashtag streams public statuses tagged with tag.
func (c *Client) StreamHashtag(ctx context.Context, tag string, local bool, l streaming.Listener) error {
	tag, err := c.validator.ValidateHashtag(tag)
	if err != nil {
		return err
	}
	stream := streaming.StreamHashtag
	if local {
		stream = streaming.StreamHashtagLocal
	}
	return c.Stream(ctx, stream, url.Values{"tag": {tag}}, l)
}

// StreamList streams statuses from the members of a list.
func (c *Client) StreamList(ctx context.Context, listID string, l streaming.Listener) error {
	if err := c.validator.ValidateID("list_id", listID); err != nil {
		return err
	}
	return c.Stream(ctx, streaming.StreamList, url.Values{"list": {listID}}, l)
}

// StreamDirect streams the user's direct conversations.
func (c *Client) StreamDirect(ctx context.Context, l streaming.Listener) error {
	return c.Stream(ctx, streaming.StreamDirect, nil, l)
}

// StreamHealthy reports whether the streaming API answers its health check.
// Transport failures are returned as a NetworkError.
func (c *Client) StreamHealthy(ctx context.Context) (bool, error) {
	base, err := c.streamingBase(ctx)
	if err != nil {
		return false, err
	}
	target := base.ResolveReference(&url.URL{Path: "api/v1/streaming/health"}).String()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return false, &pkgerrs.NetworkError{Method: http.MethodGet, URL: target, Err: err}
	}
	req.Header.Set("User-Agent", c.config.UserAgent)

	resp, err := c.engine.HTTPClient().Do(req)
	if err != nil {
		return false, &pkgerrs.NetworkError{Method: http.MethodGet, URL: target, Err: err}
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64))
	if err != nil {
		return false, &pkgerrs.NetworkError{Method: http.MethodGet, URL: target, Err: err}
	}
	return resp.StatusCode == http.StatusOK && strings.TrimSpace(string(body)) == "OK", nil
}
