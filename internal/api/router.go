package api

import "net/http"

// Router wires the relay's HTTP surface. The optional ws handler serves the
// real-time event stream when a broadcaster backend is available.
func Router(h *Handler, ws http.Handler) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/health", h.Health)

	mux.HandleFunc("GET /whatsapp/webhook", h.VerifyWebhook)
	mux.HandleFunc("POST /whatsapp/webhook", h.Webhook)

	mux.HandleFunc("POST /chat/send", h.SendMessage)
	mux.HandleFunc("GET /chat/conversations", h.ListConversations)
	mux.HandleFunc("GET /chat/messages/{number}", h.ListMessages)
	mux.HandleFunc("POST /chat/mark-read/{number}", h.MarkRead)
	mux.HandleFunc("POST /chat/assign-number", h.AssignNumber)
	mux.HandleFunc("GET /chat/users", h.ListUsersWithWhatsApp)

	mux.HandleFunc("POST /whatsapp/verification/send", h.SendVerificationCode)
	mux.HandleFunc("POST /whatsapp/verification/verify", h.VerifyCode)
	mux.HandleFunc("DELETE /whatsapp/verification", h.RemoveNumber)

	if ws != nil {
		mux.Handle("GET /ws", ws)
	}

	mux.HandleFunc("GET /", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("whatsapp-relay"))
	})

	return mux
}
