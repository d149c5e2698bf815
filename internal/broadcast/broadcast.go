package broadcast

import (
	"context"
	"time"

	"github.com/devsfort/whatsapp-relay/internal/model"
)

// Event names mirrored by the UI layer.
const (
	EventMessageSent     = "message.sent"
	EventMessageReceived = "message.received"
)

// MessagePayload is the flat projection of a message carried by every event.
type MessagePayload struct {
	ID        int64     `json:"id"`
	From      string    `json:"from"`
	Body      string    `json:"body"`
	Direction string    `json:"direction"`
	Type      string    `json:"type"`
	CreatedAt time.Time `json:"created_at"`
	UserID    *int64    `json:"user_id"`
	UserName  *string   `json:"user_name"`
}

// Event is one real-time broadcast, published to every channel it names.
type Event struct {
	Name     string
	Channels []string
	Payload  MessagePayload
}

// Broadcaster publishes events to named channels. Delivery is fire-and-forget
// relative to the request that produced the event.
type Broadcaster interface {
	Publish(ctx context.Context, ev Event) error
}

// NewMessageEvent builds the broadcast for a just-created message: one event
// on the per-conversation channel and the conversations-list channel.
func NewMessageEvent(prefix string, m model.Message) Event {
	name := EventMessageReceived
	if m.Direction == model.Outbound {
		name = EventMessageSent
	}

	return Event{
		Name: name,
		Channels: []string{
			prefix + ".chat." + m.From,
			prefix + ".conversations",
		},
		Payload: MessagePayload{
			ID:        m.ID,
			From:      m.From,
			Body:      m.Body,
			Direction: string(m.Direction),
			Type:      string(m.Type),
			CreatedAt: m.CreatedAt,
			UserID:    m.UserID,
			UserName:  m.UserName,
		},
	}
}
