package relay

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/devsfort/whatsapp-relay/internal/model"
	"github.com/devsfort/whatsapp-relay/internal/phone"
)

// ConversationBuckets splits the conversation list for the admin UI:
// counterparties that resolved to verified users versus external numbers.
type ConversationBuckets struct {
	Registered []model.Conversation `json:"registered"`
	External   []model.Conversation `json:"external"`
	All        []model.Conversation `json:"all"`
}

// Conversations returns every conversation grouped by counterparty number,
// newest activity first.
func (s *Service) Conversations(ctx context.Context) (*ConversationBuckets, error) {
	all, err := s.messages.ListConversations(ctx)
	if err != nil {
		return nil, err
	}

	buckets := &ConversationBuckets{
		Registered: []model.Conversation{},
		External:   []model.Conversation{},
		All:        all,
	}
	for _, c := range all {
		if c.Registered() {
			buckets.Registered = append(buckets.Registered, c)
		} else {
			buckets.External = append(buckets.External, c)
		}
	}
	return buckets, nil
}

// Messages returns one conversation's history, oldest first.
func (s *Service) Messages(ctx context.Context, number string) ([]model.Message, error) {
	return s.messages.ListByNumber(ctx, phone.Normalize(number))
}

// AssignNumber binds an external number to a user as verified and back-fills
// the association on all existing messages from that number.
func (s *Service) AssignNumber(ctx context.Context, rawNumber string, userID int64) (*model.User, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}

	number := phone.Normalize(rawNumber)
	now := time.Now().UTC()

	if err := s.users.AssignNumber(ctx, userID, number, now); err != nil {
		return nil, fmt.Errorf("failed to assign number: %w", err)
	}

	updated, err := s.messages.AssignUserByNumber(ctx, number, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to associate messages: %w", err)
	}

	slog.Info("external number assigned to user",
		"number", number, "user_id", userID, "messages_updated", updated)

	user.WhatsAppNumber = &number
	user.WhatsAppVerified = true
	user.VerifiedAt = &now
	user.VerificationCode = nil
	return user, nil
}

// UsersWithWhatsApp lists users with verified numbers for the admin UI.
func (s *Service) UsersWithWhatsApp(ctx context.Context) ([]model.User, error) {
	return s.users.ListVerified(ctx)
}
