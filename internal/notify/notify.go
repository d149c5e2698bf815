package notify

import (
	"context"
	"time"

	"github.com/devsfort/whatsapp-relay/internal/model"
)

// Kind is the closed set of notification variants. No dynamic dispatch: the
// caller selects a kind and the notifier decides how to deliver it.
type Kind string

const (
	KindMessageReceived Kind = "message_received"
	KindMessageSent     Kind = "message_sent"
)

// MessageNotice is the payload carried by both message kinds. SenderName is
// "Unknown" when the counterparty number did not resolve to a user.
type MessageNotice struct {
	MessageID  int64     `json:"message_id"`
	From       string    `json:"from"`
	Body       string    `json:"body"`
	SenderName string    `json:"sender_name"`
	CreatedAt  time.Time `json:"created_at"`
}

// Notifier delivers an in-app notification to one user. Failures must not
// block message persistence or broadcasting.
type Notifier interface {
	Notify(ctx context.Context, user model.User, kind Kind, notice MessageNotice) error
}
