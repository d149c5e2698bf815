package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/devsfort/whatsapp-relay/internal/model"
	"github.com/devsfort/whatsapp-relay/internal/phone"
	"github.com/devsfort/whatsapp-relay/internal/whatsapp"
)

// WebhookResult is the structured outcome of one webhook delivery. Internal
// failures are converted here rather than surfacing as opaque errors.
type WebhookResult struct {
	Success   bool
	Message   string
	Processed []ProcessedItem
}

// ProcessedItem summarizes one handled message or status update.
type ProcessedItem struct {
	From      string `json:"from,omitempty"`
	MessageID string `json:"message_id"`
	Body      string `json:"body,omitempty"`
	Type      string `json:"type,omitempty"`
	Status    string `json:"status,omitempty"`
	Timestamp int64  `json:"timestamp"`
	Recipient string `json:"recipient_id,omitempty"`
}

// ProcessWebhook dispatches one vendor webhook delivery: inbound messages or
// delivery status updates, whichever the payload carries.
func (s *Service) ProcessWebhook(ctx context.Context, payload whatsapp.WebhookPayload) WebhookResult {
	if len(payload.Entry) == 0 || len(payload.Entry[0].Changes) == 0 {
		return WebhookResult{Success: false, Message: "no messages or statuses found in webhook data"}
	}

	value := payload.Entry[0].Changes[0].Value

	if len(value.Messages) > 0 {
		return s.processMessages(ctx, value.Messages)
	}
	if len(value.Statuses) > 0 {
		return s.processStatuses(ctx, value.Statuses)
	}

	return WebhookResult{Success: false, Message: "no messages or statuses found in webhook data"}
}

// processMessages persists every inbound message unconditionally: traffic to
// the business number must reach the admin whether or not the sender is a
// known user. Association and fanout follow persistence.
func (s *Service) processMessages(ctx context.Context, messages []whatsapp.InboundMessage) WebhookResult {
	var processed []ProcessedItem

	for _, in := range messages {
		from := phone.Normalize(in.From)
		body := inboundBody(in)

		slog.Info("processing whatsapp message",
			"from", from, "type", in.Type, "message_id", in.ID)

		raw, _ := json.Marshal(in)
		providerID := in.ID

		m := model.Message{
			ProviderID:  &providerID,
			From:        from,
			Body:        body,
			Direction:   model.Inbound,
			Type:        model.MessageType(in.Type),
			RawData:     raw,
			ProcessedAt: time.Now().UTC(),
		}
		if err := s.messages.Create(ctx, &m); err != nil {
			slog.Error("failed to persist inbound message", "from", from, "error", err)
			return WebhookResult{Success: false, Message: err.Error()}
		}

		sender, err := s.users.FindVerifiedByNumber(ctx, from)
		if err != nil {
			slog.Error("sender lookup failed", "from", from, "error", err)
		}
		if sender != nil {
			if err := s.messages.AssignUser(ctx, m.ID, sender.ID); err != nil {
				slog.Error("user association failed", "message_id", m.ID, "user_id", sender.ID, "error", err)
			} else {
				m.UserID = &sender.ID
				m.UserName = &sender.Name
			}
		}

		admins, err := s.users.ListAdmins(ctx)
		if err != nil {
			slog.Error("admin lookup failed", "error", err)
		}
		if len(admins) > 0 {
			s.publish(ctx, m)
		}
		s.notifyFor(ctx, m)

		processed = append(processed, ProcessedItem{
			From:      from,
			MessageID: in.ID,
			Body:      body,
			Type:      in.Type,
			Timestamp: parseUnix(in.Timestamp),
		})
	}

	return WebhookResult{Success: true, Processed: processed}
}

// processStatuses updates delivery state by provider message id. Updates with
// no matching row are dropped silently: the store may not have observed the
// original send.
func (s *Service) processStatuses(ctx context.Context, statuses []whatsapp.StatusUpdate) WebhookResult {
	var processed []ProcessedItem

	for _, st := range statuses {
		slog.Info("processing whatsapp status update",
			"message_id", st.ID, "status", st.Status, "recipient_id", st.RecipientID)

		m, err := s.messages.FindByProviderID(ctx, st.ID)
		if err != nil {
			slog.Error("status lookup failed", "message_id", st.ID, "error", err)
			return WebhookResult{Success: false, Message: err.Error()}
		}
		if m != nil {
			if err := s.messages.UpdateStatus(ctx, m.ID, model.DeliveryStatus(st.Status), time.Now().UTC()); err != nil {
				slog.Error("status update failed", "message_id", st.ID, "error", err)
				return WebhookResult{Success: false, Message: err.Error()}
			}
		}

		processed = append(processed, ProcessedItem{
			MessageID: st.ID,
			Status:    st.Status,
			Recipient: st.RecipientID,
			Timestamp: parseUnix(st.Timestamp),
		})
	}

	return WebhookResult{Success: true, Processed: processed}
}

// inboundBody derives the stored body by message type. Media content is not
// fetched; non-text types store a placeholder label.
func inboundBody(in whatsapp.InboundMessage) string {
	switch in.Type {
	case "text":
		if in.Text != nil {
			return in.Text.Body
		}
		return ""
	case "image":
		return "[Image]"
	case "document":
		return "[Document]"
	case "audio":
		return "[Audio]"
	case "video":
		return "[Video]"
	default:
		return fmt.Sprintf("[%s]", in.Type)
	}
}

func parseUnix(raw string) int64 {
	ts, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0
	}
	return ts
}
