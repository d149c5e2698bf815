package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/devsfort/whatsapp-relay/internal/broadcast"
	"github.com/devsfort/whatsapp-relay/internal/config"
	"github.com/devsfort/whatsapp-relay/internal/model"
	"github.com/devsfort/whatsapp-relay/internal/notify"
	"github.com/devsfort/whatsapp-relay/internal/phone"
	"github.com/devsfort/whatsapp-relay/internal/repo"
	"github.com/devsfort/whatsapp-relay/internal/whatsapp"
)

// Transport is the outbound Cloud API surface the relay depends on.
type Transport interface {
	SendText(ctx context.Context, to, body string) (*whatsapp.SendResult, error)
	SendTemplate(ctx context.Context, to, templateName string, params []string) (*whatsapp.SendResult, error)
}

// Service is the relay core: outbound sends, webhook ingestion, conversation
// reads and the verification flow. All configuration is injected here once;
// nothing else reads config.
type Service struct {
	cfg         config.WhatsAppConfig
	prefix      string
	transport   Transport
	messages    repo.MessageRepository
	users       repo.UserDirectory
	broadcaster broadcast.Broadcaster
	notifier    notify.Notifier
}

func New(
	cfg config.WhatsAppConfig,
	channelPrefix string,
	transport Transport,
	messages repo.MessageRepository,
	users repo.UserDirectory,
	broadcaster broadcast.Broadcaster,
	notifier notify.Notifier,
) *Service {
	return &Service{
		cfg:         cfg,
		prefix:      channelPrefix,
		transport:   transport,
		messages:    messages,
		users:       users,
		broadcaster: broadcaster,
		notifier:    notifier,
	}
}

// SendOutcome reports one send attempt. A degraded (mock) delivery is still a
// success; Warning is set when the degradation happened mid-call.
type SendOutcome struct {
	Success      bool
	MessageID    string
	Warning      string
	ErrorMessage string
	ErrorType    whatsapp.ErrType
	ErrorCode    int
}

// SendText relays one text message to a counterparty number. Exactly one
// outbound message row is created per successful, mock or fallback-to-mock
// attempt; hard failures create none.
func (s *Service) SendText(ctx context.Context, to, body string) (*SendOutcome, error) {
	return s.send(ctx, to, body, model.TypeText, func(ctx context.Context, normalized string) (*whatsapp.SendResult, error) {
		return s.transport.SendText(ctx, normalized, body)
	})
}

// SendTemplate relays a pre-approved template message.
func (s *Service) SendTemplate(ctx context.Context, to, templateName string, params []string) (*SendOutcome, error) {
	body := "Template: " + templateName
	return s.send(ctx, to, body, model.TypeTemplate, func(ctx context.Context, normalized string) (*whatsapp.SendResult, error) {
		return s.transport.SendTemplate(ctx, normalized, templateName, params)
	})
}

func (s *Service) send(
	ctx context.Context,
	to, body string,
	msgType model.MessageType,
	live func(ctx context.Context, normalized string) (*whatsapp.SendResult, error),
) (*SendOutcome, error) {
	normalized := phone.Normalize(to)

	if whatsapp.UseMock(s.cfg.AccessToken, s.cfg.UseMockMode) {
		mockID := fmt.Sprintf("mock_%d", time.Now().Unix())

		// Warn when mock was not asked for: credentials forced the downgrade.
		warning := ""
		if !s.cfg.UseMockMode {
			warning = "Message sent in mock mode due to missing or invalid access token"
			slog.Warn("credentials unusable, falling back to mock mode", "to", normalized)
		} else {
			slog.Info("mock mode: message would be sent", "to", normalized, "original_to", to)
		}

		if err := s.recordOutbound(ctx, normalized, body, msgType, mockID); err != nil {
			return nil, err
		}
		return &SendOutcome{Success: true, MessageID: mockID, Warning: warning}, nil
	}

	res, err := live(ctx, normalized)
	if err == nil {
		if err := s.recordOutboundRaw(ctx, normalized, body, msgType, res.MessageID, res.Raw); err != nil {
			return nil, err
		}
		return &SendOutcome{Success: true, MessageID: res.MessageID}, nil
	}

	// Expired-session rejections downgrade to mock so credential problems
	// never block the admin workflow.
	if s.cfg.AutoMockOnExpiry && whatsapp.IsExpiredToken(err) {
		mockID := fmt.Sprintf("mock_expired_token_%d", time.Now().Unix())
		slog.Warn("access token expired, switching to mock mode", "to", normalized, "error", err)

		if err := s.recordOutbound(ctx, normalized, body, msgType, mockID); err != nil {
			return nil, err
		}
		return &SendOutcome{
			Success:   true,
			MessageID: mockID,
			Warning:   "Message sent in mock mode due to expired access token",
		}, nil
	}

	var apiErr *whatsapp.APIError
	if errors.As(err, &apiErr) {
		slog.Error("whatsapp api error", "status", apiErr.StatusCode, "code", apiErr.Code, "to", normalized)

		msg := apiErr.Message
		if apiErr.Type == whatsapp.ErrTypeReEngagement {
			msg = "Cannot send message: Customer must initiate the conversation or message within 24 hours"
		}
		return &SendOutcome{
			Success:      false,
			ErrorMessage: msg,
			ErrorType:    apiErr.Type,
			ErrorCode:    apiErr.Code,
		}, nil
	}

	slog.Error("whatsapp send failed", "to", normalized, "error", err)
	return &SendOutcome{
		Success:      false,
		ErrorMessage: err.Error(),
		ErrorType:    whatsapp.ErrTypeGeneral,
	}, nil
}

// VerifyWebhookToken implements the vendor subscription handshake.
func (s *Service) VerifyWebhookToken(mode, token string) bool {
	return mode == "subscribe" && token == s.cfg.WebhookVerifyToken
}

// MaxMessageLength exposes the configured body limit for request validation.
func (s *Service) MaxMessageLength() int {
	return s.cfg.MaxMessageLength
}

func (s *Service) recordOutbound(ctx context.Context, to, body string, msgType model.MessageType, messageID string) error {
	raw, _ := json.Marshal(map[string]any{
		"messages": []map[string]string{{"id": messageID}},
	})
	return s.recordOutboundRaw(ctx, to, body, msgType, messageID, raw)
}

func (s *Service) recordOutboundRaw(ctx context.Context, to, body string, msgType model.MessageType, messageID string, raw json.RawMessage) error {
	m := model.Message{
		ProviderID:  &messageID,
		From:        to,
		Body:        body,
		Direction:   model.Outbound,
		Type:        msgType,
		RawData:     raw,
		ProcessedAt: time.Now().UTC(),
	}
	if err := s.messages.Create(ctx, &m); err != nil {
		return fmt.Errorf("failed to log outbound message: %w", err)
	}

	s.publish(ctx, m)
	s.notifyFor(ctx, m)
	return nil
}

// publish emits the broadcast event for a created message. Failures are
// logged, never propagated: the row has already committed.
func (s *Service) publish(ctx context.Context, m model.Message) {
	ev := broadcast.NewMessageEvent(s.prefix, m)
	if err := s.broadcaster.Publish(ctx, ev); err != nil {
		slog.Error("broadcast failed", "message_id", m.ID, "event", ev.Name, "error", err)
	}
}

// notifyFor dispatches in-app notifications: inbound messages go to every
// admin, outbound messages to the counterparty user when one resolves.
// Independent of broadcasting; failures are logged only.
func (s *Service) notifyFor(ctx context.Context, m model.Message) {
	notice := notify.MessageNotice{
		MessageID: m.ID,
		From:      m.From,
		Body:      m.Body,
		CreatedAt: m.CreatedAt,
	}

	switch m.Direction {
	case model.Inbound:
		sender, err := s.users.FindByNumber(ctx, m.From)
		if err != nil {
			slog.Error("sender lookup failed", "from", m.From, "error", err)
		}
		notice.SenderName = "Unknown"
		if sender != nil {
			notice.SenderName = sender.Name
		}

		admins, err := s.users.ListAdmins(ctx)
		if err != nil {
			slog.Error("admin lookup failed", "error", err)
			return
		}
		for _, admin := range admins {
			if err := s.notifier.Notify(ctx, admin, notify.KindMessageReceived, notice); err != nil {
				slog.Error("notification failed", "user_id", admin.ID, "error", err)
			}
		}

	case model.Outbound:
		recipient, err := s.users.FindByNumber(ctx, m.From)
		if err != nil {
			slog.Error("recipient lookup failed", "from", m.From, "error", err)
			return
		}
		if recipient == nil {
			slog.Warn("no recipient user for outbound message", "from", m.From)
			return
		}
		notice.SenderName = "Admin"
		if err := s.notifier.Notify(ctx, *recipient, notify.KindMessageSent, notice); err != nil {
			slog.Error("notification failed", "user_id", recipient.ID, "error", err)
		}
	}
}
