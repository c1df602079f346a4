package mastodon_test

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mastodon "github.com/jamesprial/go-mastodon-api-wrapper"
	"github.com/jamesprial/go-mastodon-api-wrapper/pkg/metrics"
	"github.com/jamesprial/go-mastodon-api-wrapper/pkg/streaming"
	"github.com/jamesprial/go-mastodon-api-wrapper/pkg/types"
	"github.com/jamesprial/go-mastodon-api-wrapper/test_helpers"
)

const userStream = ":thump\n\n" +
	"event: update\ndata: {\"id\":\"1\",\"content\":\"hi\"}\n\n" +
	"event: notification\ndata: {\"id\":\"9\",\"type\":\"follow\",\"account\":{\"id\":\"2\",\"acct\":\"bob\"}}\n\n" +
	"event: delete\ndata: 1\n\n" +
	"event: emoji_reaction\ndata: {}\n\n"

func TestStreamUser(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector := metrics.New(reg)

	cfg := test_helpers.DefaultMockClientConfig()
	cfg.Metrics = collector
	tc := test_helpers.NewTestClient(&cfg)
	defer tc.Close()
	ms := tc.MockServer()
	ms.SetStream("/api/v1/streaming/user", userStream)

	var (
		updates       []*types.Status
		notifications []*types.Notification
		deleted       []string
		unknown       []string
		heartbeats    int
	)
	handlers := &streaming.Handlers{
		OnUpdate: func(s *types.Status) error {
			updates = append(updates, s)
			return nil
		},
		OnNotification: func(n *types.Notification) error {
			notifications = append(notifications, n)
			return nil
		},
		OnDelete: func(id string) error {
			deleted = append(deleted, id)
			return nil
		},
		OnUnknownEvent: func(name string, _ json.RawMessage) { unknown = append(unknown, name) },
		OnHeartbeat:    func() { heartbeats++ },
	}

	require.NoError(t, tc.StreamUser(context.Background(), handlers))

	require.Len(t, updates, 1)
	assert.Equal(t, "hi", updates[0].Content)
	require.Len(t, notifications, 1)
	assert.Equal(t, types.NotificationFollow, notifications[0].Type)
	assert.Equal(t, []string{"1"}, deleted)
	assert.Equal(t, []string{"emoji_reaction"}, unknown)
	assert.Equal(t, 1, heartbeats)

	req, err := ms.GetLastRequest(http.MethodGet, "/api/v1/streaming/user")
	require.NoError(t, err)
	assert.Equal(t, "Bearer mock_token", req.Headers.Get("Authorization"))
	assert.Equal(t, "text/event-stream", req.Headers.Get("Accept"))

	assert.Equal(t, 4, mustGatherCount(t, reg, "mastodon_client_stream_events_total"))
	assert.Equal(t, 1, mustGatherCount(t, reg, "mastodon_client_stream_heartbeats_total"))
}

func TestStreamHashtag(t *testing.T) {
	tc := test_helpers.NewTestClient(nil)
	defer tc.Close()
	ms := tc.MockServer()
	ms.SetStream("/api/v1/streaming/hashtag/local", "event: update\ndata: {\"id\":\"5\"}\n\n")

	var got []string
	l := streaming.NewCallbackListener().On(streaming.EventUpdate, func(payload json.RawMessage) error {
		got = append(got, string(payload))
		return nil
	})
	require.NoError(t, tc.StreamHashtag(context.Background(), "#Go", true, l))
	assert.Equal(t, []string{`{"id":"5"}`}, got)

	req, err := ms.GetLastRequest(http.MethodGet, "/api/v1/streaming/hashtag/local")
	require.NoError(t, err)
	assert.Equal(t, "Go", req.Query.Get("tag"))

	assert.Error(t, tc.StreamHashtag(context.Background(), "two words", false, l))
}

func TestStreamPublicSelectsStream(t *testing.T) {
	tests := []struct {
		name                     string
		local, remote, onlyMedia bool
		path                     string
	}{
		{"federated", false, false, false, "/api/v1/streaming/public"},
		{"local", true, false, false, "/api/v1/streaming/public/local"},
		{"remote media", false, true, true, "/api/v1/streaming/public/remote/media"},
		{"media", false, false, true, "/api/v1/streaming/public/media"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tc := test_helpers.NewTestClient(nil)
			defer tc.Close()
			tc.MockServer().SetStream(tt.path, ":\n\n")

			require.NoError(t, tc.StreamPublic(context.Background(), tt.local, tt.remote, tt.onlyMedia, streaming.NewCallbackListener()))
			assert.NoError(t, tc.MockServer().AssertRequestCount(http.MethodGet, tt.path, 1))
		})
	}
}

func TestStreamHandlerErrorStopsStream(t *testing.T) {
	tc := test_helpers.NewTestClient(nil)
	defer tc.Close()
	tc.MockServer().SetStream("/api/v1/streaming/direct", "event: conversation\ndata: {\"id\":\"1\"}\n\n")

	var aborted error
	handlerErr := assert.AnError
	h := &streaming.Handlers{
		OnConversation: func(*types.Conversation) error { return handlerErr },
		OnAbort:        func(err error) { aborted = err },
	}
	err := tc.StreamDirect(context.Background(), h)
	assert.Same(t, handlerErr, err)
	assert.Same(t, handlerErr, aborted)
}

func TestStreamNilListener(t *testing.T) {
	tc := test_helpers.NewTestClient(nil)
	defer tc.Close()
	assert.Error(t, tc.Stream(context.Background(), streaming.StreamUser, nil, nil))
}

func TestStreamDiscoversStreamingURL(t *testing.T) {
	streamServer := test_helpers.NewMockServer()
	defer streamServer.Close()
	streamServer.SetStream("/api/v1/streaming/list", "event: update\ndata: {\"id\":\"8\"}\n\n")

	api := test_helpers.NewMockServer()
	defer api.Close()
	api.SetJSON(http.MethodGet, "/api/v1/instance", `{"uri":"example","urls":{"streaming_api":"`+wsURL(streamServer.URL())+`"}}`)

	client, err := mastodon.NewClient(&mastodon.Config{BaseURL: api.URL(), AccessToken: "t", RateLimitMethod: mastodon.RateLimitWait})
	require.NoError(t, err)

	var ids []string
	h := &streaming.Handlers{OnUpdate: func(s *types.Status) error {
		ids = append(ids, s.ID)
		return nil
	}}
	require.NoError(t, client.StreamList(context.Background(), "12", h))
	assert.Equal(t, []string{"8"}, ids)

	req, err := streamServer.GetLastRequest(http.MethodGet, "/api/v1/streaming/list")
	require.NoError(t, err)
	assert.Equal(t, "12", req.Query.Get("list"))

	// The discovered URL is cached.
	require.NoError(t, client.StreamList(context.Background(), "12", h))
	assert.NoError(t, api.AssertRequestCount(http.MethodGet, "/api/v1/instance", 1))
}

func TestStreamHealthy(t *testing.T) {
	tc := test_helpers.NewTestClient(nil)
	defer tc.Close()
	ms := tc.MockServer()

	ms.SetResponse(http.MethodGet, "/api/v1/streaming/health", &test_helpers.MockResponse{
		Status:  http.StatusOK,
		Body:    "OK",
		Headers: map[string]string{"Content-Type": "text/plain"},
	})
	ok, err := tc.StreamHealthy(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)

	ms.SetResponse(http.MethodGet, "/api/v1/streaming/health", &test_helpers.MockResponse{Status: http.StatusServiceUnavailable, Body: "down"})
	ok, err = tc.StreamHealthy(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func wsURL(httpURL string) string {
	return "ws" + httpURL[len("http"):]
}

func mustGatherCount(t *testing.T, reg *prometheus.Registry, name string) int {
	t.Helper()
	n, err := testutil.GatherAndCount(reg, name)
	require.NoError(t, err)
	return n
}
