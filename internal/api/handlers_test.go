package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/devsfort/whatsapp-relay/internal/model"
	"github.com/devsfort/whatsapp-relay/internal/relay"
	"github.com/devsfort/whatsapp-relay/internal/repo"
	"github.com/devsfort/whatsapp-relay/internal/whatsapp"
)

type fakeService struct {
	sendOutcome *relay.SendOutcome
	sendErr     error
	gotTo       string
	gotBody     string

	webhookResult relay.WebhookResult
	gotPayload    whatsapp.WebhookPayload

	verifyToken string

	buckets  *relay.ConversationBuckets
	messages []model.Message

	verifyErr   error
	sendCodeErr error
}

var _ RelayService = (*fakeService)(nil)

func (f *fakeService) SendText(ctx context.Context, to, body string) (*relay.SendOutcome, error) {
	f.gotTo = to
	f.gotBody = body
	return f.sendOutcome, f.sendErr
}

func (f *fakeService) ProcessWebhook(ctx context.Context, payload whatsapp.WebhookPayload) relay.WebhookResult {
	f.gotPayload = payload
	return f.webhookResult
}

func (f *fakeService) VerifyWebhookToken(mode, token string) bool {
	return mode == "subscribe" && token == f.verifyToken
}

func (f *fakeService) MaxMessageLength() int { return 4096 }

func (f *fakeService) Conversations(ctx context.Context) (*relay.ConversationBuckets, error) {
	return f.buckets, nil
}

func (f *fakeService) Messages(ctx context.Context, number string) ([]model.Message, error) {
	return f.messages, nil
}

func (f *fakeService) AssignNumber(ctx context.Context, rawNumber string, userID int64) (*model.User, error) {
	if userID == 404 {
		return nil, relay.ErrUserNotFound
	}
	return &model.User{ID: userID}, nil
}

func (f *fakeService) UsersWithWhatsApp(ctx context.Context) ([]model.User, error) {
	return nil, nil
}

func (f *fakeService) SendVerificationCode(ctx context.Context, userID int64, rawNumber string) error {
	return f.sendCodeErr
}

func (f *fakeService) VerifyCode(ctx context.Context, userID int64, code string) error {
	return f.verifyErr
}

func (f *fakeService) RemoveNumber(ctx context.Context, userID int64) error {
	return nil
}

// fakeDirectory serves only the auth lookup; everything else is unused by
// the HTTP layer.
type fakeDirectory struct {
	users map[int64]model.User
}

var _ repo.UserDirectory = (*fakeDirectory)(nil)

func (f *fakeDirectory) FindByID(ctx context.Context, id int64) (*model.User, error) {
	if u, ok := f.users[id]; ok {
		return &u, nil
	}
	return nil, nil
}

func (f *fakeDirectory) FindVerifiedByNumber(ctx context.Context, number string) (*model.User, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeDirectory) FindByNumber(ctx context.Context, number string) (*model.User, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeDirectory) ListAdmins(ctx context.Context) ([]model.User, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeDirectory) ListVerified(ctx context.Context) ([]model.User, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeDirectory) SetPendingVerification(ctx context.Context, userID int64, number, code string) error {
	return errors.New("not implemented")
}

func (f *fakeDirectory) MarkVerified(ctx context.Context, userID int64, at time.Time) error {
	return errors.New("not implemented")
}

func (f *fakeDirectory) ClearWhatsApp(ctx context.Context, userID int64) error {
	return errors.New("not implemented")
}

func (f *fakeDirectory) AssignNumber(ctx context.Context, userID int64, number string, at time.Time) error {
	return errors.New("not implemented")
}

func newTestRouter(fs *fakeService) http.Handler {
	dir := &fakeDirectory{users: map[int64]model.User{
		1: {ID: 1, Name: "Admin", Type: model.TypeAdmin},
		2: {ID: 2, Name: "Bob", Type: model.TypeUser},
	}}
	return Router(NewHandler(fs, dir), nil)
}

func decodeJSON(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var m map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &m); err != nil {
		t.Fatalf("failed to decode json: %v body=%q", err, rr.Body.String())
	}
	return m
}

func TestVerifyWebhook_Handshake(t *testing.T) {
	mux := newTestRouter(&fakeService{verifyToken: "secret"})

	req := httptest.NewRequest(http.MethodGet,
		"/whatsapp/webhook?hub.mode=subscribe&hub.verify_token=secret&hub.challenge=12345", nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%q", rr.Code, rr.Body.String())
	}
	if rr.Body.String() != "12345" {
		t.Fatalf("expected challenge echoed, got %q", rr.Body.String())
	}
}

func TestVerifyWebhook_RejectsBadToken(t *testing.T) {
	mux := newTestRouter(&fakeService{verifyToken: "secret"})

	req := httptest.NewRequest(http.MethodGet,
		"/whatsapp/webhook?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=12345", nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
}

func TestWebhook_SuccessReportsProcessedCount(t *testing.T) {
	fs := &fakeService{webhookResult: relay.WebhookResult{
		Success:   true,
		Processed: []relay.ProcessedItem{{MessageID: "wamid.1"}, {MessageID: "wamid.2"}},
	}}
	mux := newTestRouter(fs)

	body := `{"object":"whatsapp_business_account","entry":[{"changes":[{"value":{"messages":[{"from":"361","id":"wamid.1","type":"text","text":{"body":"hi"}}]}}]}]}`
	req := httptest.NewRequest(http.MethodPost, "/whatsapp/webhook", strings.NewReader(body))
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%q", rr.Code, rr.Body.String())
	}
	resp := decodeJSON(t, rr)
	if resp["status"] != "success" {
		t.Fatalf("expected success status, got %v", resp)
	}
	if resp["processed"].(float64) != 2 {
		t.Fatalf("expected processed=2, got %v", resp["processed"])
	}
	if len(fs.gotPayload.Entry) != 1 {
		t.Fatalf("expected payload forwarded, got %+v", fs.gotPayload)
	}
}

func TestWebhook_ProcessingFailureReturns400(t *testing.T) {
	fs := &fakeService{webhookResult: relay.WebhookResult{
		Success: false,
		Message: "no messages or statuses found in webhook data",
	}}
	mux := newTestRouter(fs)

	req := httptest.NewRequest(http.MethodPost, "/whatsapp/webhook", strings.NewReader(`{}`))
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	resp := decodeJSON(t, rr)
	if resp["status"] != "error" {
		t.Fatalf("expected error status, got %v", resp)
	}
}

func TestWebhook_MalformedJSONReturns400(t *testing.T) {
	mux := newTestRouter(&fakeService{})

	req := httptest.NewRequest(http.MethodPost, "/whatsapp/webhook", strings.NewReader("{not json"))
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestSendMessage_AdminOnly(t *testing.T) {
	mux := newTestRouter(&fakeService{})

	req := httptest.NewRequest(http.MethodPost, "/chat/send", strings.NewReader(`{"to":"361","message":"hi"}`))
	req.Header.Set("X-User-ID", "2")
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-admin, got %d", rr.Code)
	}
}

func TestSendMessage_Unauthenticated(t *testing.T) {
	mux := newTestRouter(&fakeService{})

	req := httptest.NewRequest(http.MethodPost, "/chat/send", strings.NewReader(`{"to":"361","message":"hi"}`))
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without X-User-ID, got %d", rr.Code)
	}
}

func TestSendMessage_Success(t *testing.T) {
	fs := &fakeService{sendOutcome: &relay.SendOutcome{Success: true, MessageID: "wamid.ok"}}
	mux := newTestRouter(fs)

	req := httptest.NewRequest(http.MethodPost, "/chat/send", strings.NewReader(`{"to":"+1-234","message":"hello"}`))
	req.Header.Set("X-User-ID", "1")
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%q", rr.Code, rr.Body.String())
	}
	resp := decodeJSON(t, rr)
	if resp["message_id"] != "wamid.ok" {
		t.Fatalf("expected message_id, got %v", resp)
	}
	if fs.gotTo != "+1-234" || fs.gotBody != "hello" {
		t.Fatalf("unexpected service args: to=%q body=%q", fs.gotTo, fs.gotBody)
	}
}

func TestSendMessage_MockWarningSurfaces(t *testing.T) {
	fs := &fakeService{sendOutcome: &relay.SendOutcome{
		Success:   true,
		MessageID: "mock_123",
		Warning:   "Message sent in mock mode due to expired access token",
	}}
	mux := newTestRouter(fs)

	req := httptest.NewRequest(http.MethodPost, "/chat/send", strings.NewReader(`{"to":"361","message":"hi"}`))
	req.Header.Set("X-User-ID", "1")
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	resp := decodeJSON(t, rr)
	if _, ok := resp["warning"]; !ok {
		t.Fatalf("expected warning field, got %v", resp)
	}
}

func TestSendMessage_ReEngagementReturns422(t *testing.T) {
	fs := &fakeService{sendOutcome: &relay.SendOutcome{
		Success:      false,
		ErrorMessage: "Cannot send message: Customer must initiate the conversation or message within 24 hours",
		ErrorType:    whatsapp.ErrTypeReEngagement,
		ErrorCode:    131047,
	}}
	mux := newTestRouter(fs)

	req := httptest.NewRequest(http.MethodPost, "/chat/send", strings.NewReader(`{"to":"361","message":"hi"}`))
	req.Header.Set("X-User-ID", "1")
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for re-engagement, got %d", rr.Code)
	}
	resp := decodeJSON(t, rr)
	if resp["error_type"] != "re_engagement" {
		t.Fatalf("expected error_type re_engagement, got %v", resp)
	}
	if resp["error_code"].(float64) != 131047 {
		t.Fatalf("expected error_code 131047, got %v", resp["error_code"])
	}
}

func TestSendMessage_GeneralFailureReturns400(t *testing.T) {
	fs := &fakeService{sendOutcome: &relay.SendOutcome{
		Success:      false,
		ErrorMessage: "Unknown error",
		ErrorType:    whatsapp.ErrTypeGeneral,
	}}
	mux := newTestRouter(fs)

	req := httptest.NewRequest(http.MethodPost, "/chat/send", strings.NewReader(`{"to":"361","message":"hi"}`))
	req.Header.Set("X-User-ID", "1")
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestSendMessage_ValidatesBody(t *testing.T) {
	mux := newTestRouter(&fakeService{})

	long := strings.Repeat("x", 5000)
	cases := []struct {
		name string
		body string
	}{
		{"missing to", `{"message":"hi"}`},
		{"missing message", `{"to":"361"}`},
		{"oversized message", `{"to":"361","message":"` + long + `"}`},
	}

	for _, c := range cases {
		req := httptest.NewRequest(http.MethodPost, "/chat/send", strings.NewReader(c.body))
		req.Header.Set("X-User-ID", "1")
		rr := httptest.NewRecorder()
		mux.ServeHTTP(rr, req)

		if rr.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", c.name, rr.Code)
		}
	}
}

func TestListMessages_UsesPathNumber(t *testing.T) {
	fs := &fakeService{messages: []model.Message{{ID: 1, From: "12345678900", Body: "Hi"}}}
	mux := newTestRouter(fs)

	req := httptest.NewRequest(http.MethodGet, "/chat/messages/12345678900", nil)
	req.Header.Set("X-User-ID", "2")
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%q", rr.Code, rr.Body.String())
	}
	resp := decodeJSON(t, rr)
	msgs, ok := resp["messages"].([]any)
	if !ok || len(msgs) != 1 {
		t.Fatalf("expected one message, got %v", resp)
	}
}

func TestAssignNumber_UnknownUser(t *testing.T) {
	mux := newTestRouter(&fakeService{})

	req := httptest.NewRequest(http.MethodPost, "/chat/assign-number",
		strings.NewReader(`{"phone_number":"361","user_id":404}`))
	req.Header.Set("X-User-ID", "1")
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown user, got %d", rr.Code)
	}
	resp := decodeJSON(t, rr)
	if resp["message"] != "User not found" {
		t.Fatalf("unexpected message %v", resp["message"])
	}
}

func TestVerifyCode_LengthValidation(t *testing.T) {
	mux := newTestRouter(&fakeService{})

	req := httptest.NewRequest(http.MethodPost, "/whatsapp/verification/verify",
		strings.NewReader(`{"verification_code":"12345"}`))
	req.Header.Set("X-User-ID", "2")
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for short code, got %d", rr.Code)
	}
}

func TestVerifyCode_ErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{relay.ErrNoCodeFound, "No verification code found. Please request a new one."},
		{relay.ErrInvalidCode, "Invalid verification code"},
		{relay.ErrCodeExpired, "Verification code has expired. Please request a new one."},
	}

	for _, c := range cases {
		mux := newTestRouter(&fakeService{verifyErr: c.err})

		req := httptest.NewRequest(http.MethodPost, "/whatsapp/verification/verify",
			strings.NewReader(`{"verification_code":"abc123"}`))
		req.Header.Set("X-User-ID", "2")
		rr := httptest.NewRecorder()
		mux.ServeHTTP(rr, req)

		if rr.Code != http.StatusBadRequest {
			t.Fatalf("%v: expected 400, got %d", c.err, rr.Code)
		}
		resp := decodeJSON(t, rr)
		if resp["message"] != c.want {
			t.Fatalf("%v: expected %q, got %v", c.err, c.want, resp["message"])
		}
	}
}

func TestRemoveNumber(t *testing.T) {
	mux := newTestRouter(&fakeService{})

	req := httptest.NewRequest(http.MethodDelete, "/whatsapp/verification", nil)
	req.Header.Set("X-User-ID", "2")
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%q", rr.Code, rr.Body.String())
	}
	resp := decodeJSON(t, rr)
	if v, ok := resp["success"].(bool); !ok || !v {
		t.Fatalf("expected success, got %v", resp)
	}
}

func TestHealthAndRoot(t *testing.T) {
	mux := newTestRouter(&fakeService{})

	req := httptest.NewRequest(http.MethodGet, "/v1/health", nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	if got := strings.TrimSpace(rr.Body.String()); got != "whatsapp-relay" {
		t.Fatalf("expected root banner, got %q", got)
	}
}

func TestMarkRead(t *testing.T) {
	mux := newTestRouter(&fakeService{})

	req := httptest.NewRequest(http.MethodPost, "/chat/mark-read/12345678900", nil)
	req.Header.Set("X-User-ID", "2")
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%q", rr.Code, rr.Body.String())
	}
	resp := decodeJSON(t, rr)
	if v, ok := resp["success"].(bool); !ok || !v {
		t.Fatalf("expected success, got %v", resp)
	}

	req = httptest.NewRequest(http.MethodPost, "/chat/mark-read/12345678900", nil)
	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without X-User-ID, got %d", rr.Code)
	}
}
