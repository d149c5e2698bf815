package repo

import (
	"context"
	"time"

	"github.com/devsfort/whatsapp-relay/internal/model"
)

// MessageRepository persists chat history. Lookup methods return (nil, nil)
// when no row matches; callers decide whether that is an error.
type MessageRepository interface {
	// Create inserts one message and fills ID and CreatedAt.
	Create(ctx context.Context, m *model.Message) error
	// FindByProviderID looks a message up by the vendor-assigned id. Provider
	// ids can repeat (webhook redeliveries, same-second mock sends); the
	// oldest row wins.
	FindByProviderID(ctx context.Context, providerID string) (*model.Message, error)
	// UpdateStatus records an asynchronous delivery/read report.
	UpdateStatus(ctx context.Context, id int64, status model.DeliveryStatus, at time.Time) error
	// AssignUser attaches a user association after creation.
	AssignUser(ctx context.Context, messageID, userID int64) error
	// AssignUserByNumber back-fills the association for every message from a
	// number. Returns the number of rows updated.
	AssignUserByNumber(ctx context.Context, number string, userID int64) (int64, error)
	// ListByNumber returns one conversation's history, oldest first.
	ListByNumber(ctx context.Context, number string) ([]model.Message, error)
	// ListConversations groups history by counterparty number, newest first.
	ListConversations(ctx context.Context) ([]model.Conversation, error)
	// DeleteOlderThan removes messages created before the cutoff. Used only by
	// the administrative retention pruner, never by the relay core.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
