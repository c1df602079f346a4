package test_generators

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jamesprial/go-mastodon-api-wrapper/pkg/types"
)

// StreamBuilder assembles a server-sent event body as the streaming API
// writes it.
type StreamBuilder struct {
	sb     strings.Builder
	events int
}

// NewStreamBuilder returns an empty builder.
func NewStreamBuilder() *StreamBuilder {
	return &StreamBuilder{}
}

// Event appends an event whose data is payload encoded as JSON.
func (b *StreamBuilder) Event(name string, payload any) *StreamBuilder {
	data, err := json.Marshal(payload)
	if err != nil {
		panic(fmt.Sprintf("stream builder: %v", err))
	}
	return b.RawEvent(name, string(data))
}

// RawEvent appends an event with data written verbatim.
func (b *StreamBuilder) RawEvent(name, data string) *StreamBuilder {
	fmt.Fprintf(&b.sb, "event: %s\ndata: %s\n\n", name, data)
	b.events++
	return b
}

// Update appends an update event.
func (b *StreamBuilder) Update(s *types.Status) *StreamBuilder {
	return b.Event("update", s)
}

// Notification appends a notification event.
func (b *StreamBuilder) Notification(n *types.Notification) *StreamBuilder {
	return b.Event("notification", n)
}

// Delete appends a delete event. The server sends the ID unquoted.
func (b *StreamBuilder) Delete(id string) *StreamBuilder {
	return b.RawEvent("delete", id)
}

// Heartbeat appends a comment line.
func (b *StreamBuilder) Heartbeat() *StreamBuilder {
	b.sb.WriteString(":thump\n\n")
	return b
}

// Line appends text followed by a newline, for malformed input.
func (b *StreamBuilder) Line(text string) *StreamBuilder {
	b.sb.WriteString(text)
	b.sb.WriteString("\n")
	return b
}

// Events returns the number of complete events appended.
func (b *StreamBuilder) Events() int {
	return b.events
}

// String returns the body.
func (b *StreamBuilder) String() string {
	return b.sb.String()
}

// GenerateUserStream builds a user stream of updates with heartbeats
// interleaved every few events.
func (g *StatusGenerator) GenerateUserStream(updates int) *StreamBuilder {
	b := NewStreamBuilder()
	for i := 0; i < updates; i++ {
		if i%5 == 0 {
			b.Heartbeat()
		}
		b.Update(g.GenerateStatus())
	}
	return b
}
