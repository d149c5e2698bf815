package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"unicode/utf8"

	"github.com/devsfort/whatsapp-relay/internal/model"
	"github.com/devsfort/whatsapp-relay/internal/relay"
	"github.com/devsfort/whatsapp-relay/internal/repo"
	"github.com/devsfort/whatsapp-relay/internal/whatsapp"
)

// RelayService is the relay core surface the HTTP layer depends on.
type RelayService interface {
	SendText(ctx context.Context, to, body string) (*relay.SendOutcome, error)
	ProcessWebhook(ctx context.Context, payload whatsapp.WebhookPayload) relay.WebhookResult
	VerifyWebhookToken(mode, token string) bool
	MaxMessageLength() int
	Conversations(ctx context.Context) (*relay.ConversationBuckets, error)
	Messages(ctx context.Context, number string) ([]model.Message, error)
	AssignNumber(ctx context.Context, rawNumber string, userID int64) (*model.User, error)
	UsersWithWhatsApp(ctx context.Context) ([]model.User, error)
	SendVerificationCode(ctx context.Context, userID int64, rawNumber string) error
	VerifyCode(ctx context.Context, userID int64, code string) error
	RemoveNumber(ctx context.Context, userID int64) error
}

type Handler struct {
	svc   RelayService
	users repo.UserDirectory
}

func NewHandler(svc RelayService, users repo.UserDirectory) *Handler {
	return &Handler{svc: svc, users: users}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// VerifyWebhook answers the vendor subscription handshake.
func (h *Handler) VerifyWebhook(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	mode := q.Get("hub.mode")
	token := q.Get("hub.verify_token")
	challenge := q.Get("hub.challenge")

	if h.svc.VerifyWebhookToken(mode, token) {
		slog.Info("webhook verified")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(challenge))
		return
	}

	slog.Warn("webhook verification failed", "mode", mode)
	http.Error(w, "Forbidden", http.StatusForbidden)
}

// Webhook ingests one vendor event delivery. Unexpected panics become a
// structured 500 instead of tearing the connection down.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("webhook handler panic", "panic", rec)
			writeJSON(w, http.StatusInternalServerError, map[string]any{
				"status":  "error",
				"message": "Internal server error",
			})
		}
	}()

	var payload whatsapp.WebhookPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"status":  "error",
			"message": "invalid JSON payload",
		})
		return
	}

	result := h.svc.ProcessWebhook(r.Context(), payload)
	if !result.Success {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"status":  "error",
			"message": result.Message,
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "success",
		"message":   "Webhook processed successfully",
		"processed": len(result.Processed),
	})
}

type sendRequest struct {
	To      string `json:"to"`
	Message string `json:"message"`
}

// SendMessage relays one admin-originated text message.
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	user, ok := h.requireAdmin(w, r)
	if !ok {
		return
	}

	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		failJSON(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.To == "" {
		failJSON(w, http.StatusBadRequest, "to is required")
		return
	}
	if req.Message == "" {
		failJSON(w, http.StatusBadRequest, "message is required")
		return
	}
	if utf8.RuneCountInString(req.Message) > h.svc.MaxMessageLength() {
		failJSON(w, http.StatusBadRequest, "message exceeds maximum length")
		return
	}

	out, err := h.svc.SendText(r.Context(), req.To, req.Message)
	if err != nil {
		slog.Error("send failed", "admin_id", user.ID, "error", err)
		failJSON(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	if !out.Success {
		status := http.StatusBadRequest
		if out.ErrorType == whatsapp.ErrTypeReEngagement {
			status = http.StatusUnprocessableEntity
		}
		writeJSON(w, status, map[string]any{
			"success":    false,
			"message":    out.ErrorMessage,
			"error_type": string(out.ErrorType),
			"error_code": out.ErrorCode,
		})
		return
	}

	resp := map[string]any{
		"success":    true,
		"message":    "Message sent successfully",
		"message_id": out.MessageID,
	}
	if out.Warning != "" {
		resp["warning"] = out.Warning
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) ListConversations(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireUser(w, r); !ok {
		return
	}

	buckets, err := h.svc.Conversations(r.Context())
	if err != nil {
		slog.Error("conversation listing failed", "error", err)
		failJSON(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":       true,
		"conversations": buckets,
	})
}

func (h *Handler) ListMessages(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireUser(w, r); !ok {
		return
	}

	number := r.PathValue("number")
	if number == "" {
		failJSON(w, http.StatusBadRequest, "number is required")
		return
	}

	msgs, err := h.svc.Messages(r.Context(), number)
	if err != nil {
		slog.Error("message listing failed", "number", number, "error", err)
		failJSON(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if msgs == nil {
		msgs = []model.Message{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"messages": msgs,
	})
}

// MarkRead acknowledges that the caller has seen a conversation. Read state
// is not persisted; the endpoint exists so UIs have a stable hook for it.
func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireUser(w, r); !ok {
		return
	}

	if r.PathValue("number") == "" {
		failJSON(w, http.StatusBadRequest, "number is required")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Messages marked as read",
	})
}

type assignRequest struct {
	PhoneNumber string `json:"phone_number"`
	UserID      int64  `json:"user_id"`
}

func (h *Handler) AssignNumber(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireAdmin(w, r); !ok {
		return
	}

	var req assignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		failJSON(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.PhoneNumber == "" {
		failJSON(w, http.StatusBadRequest, "phone_number is required")
		return
	}
	if req.UserID <= 0 {
		failJSON(w, http.StatusBadRequest, "user_id is required")
		return
	}

	user, err := h.svc.AssignNumber(r.Context(), req.PhoneNumber, req.UserID)
	if err != nil {
		if errors.Is(err, relay.ErrUserNotFound) {
			failJSON(w, http.StatusBadRequest, "User not found")
			return
		}
		slog.Error("number assignment failed", "user_id", req.UserID, "error", err)
		failJSON(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Number assigned successfully",
		"user":    user,
	})
}

func (h *Handler) ListUsersWithWhatsApp(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireAdmin(w, r); !ok {
		return
	}

	users, err := h.svc.UsersWithWhatsApp(r.Context())
	if err != nil {
		slog.Error("user listing failed", "error", err)
		failJSON(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if users == nil {
		users = []model.User{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"users":   users,
	})
}

type sendCodeRequest struct {
	WhatsAppNumber string `json:"whatsapp_number"`
}

func (h *Handler) SendVerificationCode(w http.ResponseWriter, r *http.Request) {
	user, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	var req sendCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		failJSON(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.WhatsAppNumber == "" {
		failJSON(w, http.StatusBadRequest, "whatsapp_number is required")
		return
	}
	if len(req.WhatsAppNumber) > 20 {
		failJSON(w, http.StatusBadRequest, "whatsapp_number must be at most 20 characters")
		return
	}

	if err := h.svc.SendVerificationCode(r.Context(), user.ID, req.WhatsAppNumber); err != nil {
		slog.Warn("verification code send failed", "user_id", user.ID, "error", err)
		failJSON(w, http.StatusBadRequest, "Failed to send verification code: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Verification code sent to your WhatsApp number",
	})
}

type verifyCodeRequest struct {
	VerificationCode string `json:"verification_code"`
}

func (h *Handler) VerifyCode(w http.ResponseWriter, r *http.Request) {
	user, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	var req verifyCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		failJSON(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if len(req.VerificationCode) != 6 {
		failJSON(w, http.StatusBadRequest, "verification_code must be exactly 6 characters")
		return
	}

	err := h.svc.VerifyCode(r.Context(), user.ID, req.VerificationCode)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"message": "WhatsApp number verified successfully!",
		})
	case errors.Is(err, relay.ErrNoCodeFound):
		failJSON(w, http.StatusBadRequest, "No verification code found. Please request a new one.")
	case errors.Is(err, relay.ErrInvalidCode):
		failJSON(w, http.StatusBadRequest, "Invalid verification code")
	case errors.Is(err, relay.ErrCodeExpired):
		failJSON(w, http.StatusBadRequest, "Verification code has expired. Please request a new one.")
	default:
		slog.Error("verification failed", "user_id", user.ID, "error", err)
		failJSON(w, http.StatusInternalServerError, "Internal server error")
	}
}

func (h *Handler) RemoveNumber(w http.ResponseWriter, r *http.Request) {
	user, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	if err := h.svc.RemoveNumber(r.Context(), user.ID); err != nil {
		slog.Error("number removal failed", "user_id", user.ID, "error", err)
		failJSON(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "WhatsApp number removed successfully",
	})
}

// requireUser resolves the authenticated user from the X-User-ID header set
// by the host's auth layer. Auth itself is a consumed collaborator.
func (h *Handler) requireUser(w http.ResponseWriter, r *http.Request) (*model.User, bool) {
	raw := r.Header.Get("X-User-ID")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		failJSON(w, http.StatusUnauthorized, "Unauthenticated")
		return nil, false
	}

	user, err := h.users.FindByID(r.Context(), id)
	if err != nil {
		slog.Error("user lookup failed", "user_id", id, "error", err)
		failJSON(w, http.StatusInternalServerError, "Internal server error")
		return nil, false
	}
	if user == nil {
		failJSON(w, http.StatusUnauthorized, "Unauthenticated")
		return nil, false
	}
	return user, true
}

func (h *Handler) requireAdmin(w http.ResponseWriter, r *http.Request) (*model.User, bool) {
	user, ok := h.requireUser(w, r)
	if !ok {
		return nil, false
	}
	if !user.IsAdmin() {
		failJSON(w, http.StatusForbidden, "Only administrators can perform this action.")
		return nil, false
	}
	return user, true
}

func failJSON(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{
		"success": false,
		"message": message,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
