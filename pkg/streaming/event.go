// Package streaming consumes Mastodon's streaming API. A Dispatcher turns
// server-sent event lines into handler calls; Runner and WebSocketRunner
// connect it to the server over HTTP or a websocket.
package streaming

import (
	"encoding/json"
)

// Event names sent by the Mastodon streaming API.
const (
	EventUpdate               = "update"
	EventStatusUpdate         = "status.update"
	EventNotification         = "notification"
	EventDelete               = "delete"
	EventConversation         = "conversation"
	EventFiltersChanged       = "filters_changed"
	EventAnnouncement         = "announcement"
	EventAnnouncementReaction = "announcement.reaction"
	EventAnnouncementDelete   = "announcement.delete"
	EventEncryptedMessage     = "encrypted_message"
)

// Stream names accepted by /api/v1/streaming.
const (
	StreamUser              = "user"
	StreamUserNotification  = "user:notification"
	StreamPublic            = "public"
	StreamPublicLocal       = "public:local"
	StreamPublicRemote      = "public:remote"
	StreamPublicMedia       = "public:media"
	StreamPublicLocalMedia  = "public:local:media"
	StreamPublicRemoteMedia = "public:remote:media"
	StreamHashtag           = "hashtag"
	StreamHashtagLocal      = "hashtag:local"
	StreamList              = "list"
	StreamDirect            = "direct"
)

var knownEvents = map[string]bool{
	EventUpdate:               true,
	EventStatusUpdate:         true,
	EventNotification:         true,
	EventDelete:               true,
	EventConversation:         true,
	EventFiltersChanged:       true,
	EventAnnouncement:         true,
	EventAnnouncementReaction: true,
	EventAnnouncementDelete:   true,
	EventEncryptedMessage:     true,
}

// IsKnownEvent reports whether name is an event type this package decodes.
func IsKnownEvent(name string) bool {
	return knownEvents[name]
}

// Event is one reassembled stream event.
type Event struct {
	// Name is the value of the "event" field.
	Name string
	// Data is the JSON payload, validated before any handler runs.
	Data json.RawMessage
	// Stream lists the stream(s) the event was delivered on when the server
	// multiplexes several subscriptions over one connection.
	Stream []string
}
