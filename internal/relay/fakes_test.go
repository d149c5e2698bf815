package relay_test

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/devsfort/whatsapp-relay/internal/broadcast"
	"github.com/devsfort/whatsapp-relay/internal/model"
	"github.com/devsfort/whatsapp-relay/internal/notify"
	"github.com/devsfort/whatsapp-relay/internal/repo"
	"github.com/devsfort/whatsapp-relay/internal/whatsapp"
)

type fakeMessages struct {
	nextID int64
	rows   []model.Message

	// verifiedNames emulates the conversations query's join against verified
	// users: canonical number -> user name.
	verifiedNames map[string]string
	verifiedIDs   map[string]int64
}

var _ repo.MessageRepository = (*fakeMessages)(nil)

func (f *fakeMessages) Create(ctx context.Context, m *model.Message) error {
	f.nextID++
	m.ID = f.nextID
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	f.rows = append(f.rows, *m)
	return nil
}

func (f *fakeMessages) FindByProviderID(ctx context.Context, providerID string) (*model.Message, error) {
	for i := range f.rows {
		if f.rows[i].ProviderID != nil && *f.rows[i].ProviderID == providerID {
			m := f.rows[i]
			return &m, nil
		}
	}
	return nil, nil
}

func (f *fakeMessages) UpdateStatus(ctx context.Context, id int64, status model.DeliveryStatus, at time.Time) error {
	for i := range f.rows {
		if f.rows[i].ID == id {
			st := status
			t := at
			f.rows[i].Status = &st
			f.rows[i].StatusUpdatedAt = &t
			return nil
		}
	}
	return errors.New("message not found")
}

func (f *fakeMessages) AssignUser(ctx context.Context, messageID, userID int64) error {
	for i := range f.rows {
		if f.rows[i].ID == messageID {
			id := userID
			f.rows[i].UserID = &id
			return nil
		}
	}
	return errors.New("message not found")
}

func (f *fakeMessages) AssignUserByNumber(ctx context.Context, number string, userID int64) (int64, error) {
	var n int64
	for i := range f.rows {
		if f.rows[i].From == number {
			id := userID
			f.rows[i].UserID = &id
			n++
		}
	}
	return n, nil
}

func (f *fakeMessages) ListByNumber(ctx context.Context, number string) ([]model.Message, error) {
	var out []model.Message
	for _, m := range f.rows {
		if m.From == number {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (f *fakeMessages) ListConversations(ctx context.Context) ([]model.Conversation, error) {
	byNumber := map[string]model.Conversation{}
	for _, m := range f.rows {
		c, ok := byNumber[m.From]
		if !ok || !m.CreatedAt.Before(c.LastMessageAt) {
			c.From = m.From
			c.LastMessage = m.Body
			c.LastDirection = m.Direction
			c.LastMessageAt = m.CreatedAt
		}
		c.MessageCount++
		byNumber[m.From] = c
	}

	out := make([]model.Conversation, 0, len(byNumber))
	for _, c := range byNumber {
		if name, ok := f.verifiedNames[c.From]; ok {
			n := name
			c.UserName = &n
			if id, ok := f.verifiedIDs[c.From]; ok {
				uid := id
				c.UserID = &uid
			}
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastMessageAt.After(out[j].LastMessageAt) })
	return out, nil
}

func (f *fakeMessages) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	kept := f.rows[:0]
	var n int64
	for _, m := range f.rows {
		if m.CreatedAt.Before(cutoff) {
			n++
			continue
		}
		kept = append(kept, m)
	}
	f.rows = kept
	return n, nil
}

type fakeUsers struct {
	rows map[int64]*model.User
}

var _ repo.UserDirectory = (*fakeUsers)(nil)

func newFakeUsers(users ...model.User) *fakeUsers {
	f := &fakeUsers{rows: map[int64]*model.User{}}
	for i := range users {
		u := users[i]
		f.rows[u.ID] = &u
	}
	return f
}

func (f *fakeUsers) FindByID(ctx context.Context, id int64) (*model.User, error) {
	if u, ok := f.rows[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, nil
}

func (f *fakeUsers) FindVerifiedByNumber(ctx context.Context, number string) (*model.User, error) {
	for _, u := range f.rows {
		if u.WhatsAppVerified && u.WhatsAppNumber != nil && *u.WhatsAppNumber == number {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeUsers) FindByNumber(ctx context.Context, number string) (*model.User, error) {
	for _, u := range f.rows {
		if u.WhatsAppNumber != nil && *u.WhatsAppNumber == number {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeUsers) ListAdmins(ctx context.Context) ([]model.User, error) {
	var out []model.User
	for _, u := range f.rows {
		if u.Type == model.TypeAdmin {
			out = append(out, *u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeUsers) ListVerified(ctx context.Context) ([]model.User, error) {
	var out []model.User
	for _, u := range f.rows {
		if u.WhatsAppVerified && u.WhatsAppNumber != nil {
			out = append(out, *u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (f *fakeUsers) SetPendingVerification(ctx context.Context, userID int64, number, code string) error {
	u, ok := f.rows[userID]
	if !ok {
		return errors.New("user not found")
	}
	u.WhatsAppNumber = &number
	u.WhatsAppVerified = false
	u.VerifiedAt = nil
	u.VerificationCode = &code
	u.UpdatedAt = time.Now().UTC()
	return nil
}

func (f *fakeUsers) MarkVerified(ctx context.Context, userID int64, at time.Time) error {
	u, ok := f.rows[userID]
	if !ok {
		return errors.New("user not found")
	}
	u.WhatsAppVerified = true
	u.VerifiedAt = &at
	u.VerificationCode = nil
	u.UpdatedAt = time.Now().UTC()
	return nil
}

func (f *fakeUsers) ClearWhatsApp(ctx context.Context, userID int64) error {
	u, ok := f.rows[userID]
	if !ok {
		return errors.New("user not found")
	}
	u.WhatsAppNumber = nil
	u.WhatsAppVerified = false
	u.VerifiedAt = nil
	u.VerificationCode = nil
	u.UpdatedAt = time.Now().UTC()
	return nil
}

func (f *fakeUsers) AssignNumber(ctx context.Context, userID int64, number string, at time.Time) error {
	u, ok := f.rows[userID]
	if !ok {
		return errors.New("user not found")
	}
	u.WhatsAppNumber = &number
	u.WhatsAppVerified = true
	u.VerifiedAt = &at
	u.VerificationCode = nil
	u.UpdatedAt = time.Now().UTC()
	return nil
}

type fakeTransport struct {
	result *whatsapp.SendResult
	err    error

	calls  int
	lastTo string
}

func (f *fakeTransport) SendText(ctx context.Context, to, body string) (*whatsapp.SendResult, error) {
	f.calls++
	f.lastTo = to
	return f.result, f.err
}

func (f *fakeTransport) SendTemplate(ctx context.Context, to, templateName string, params []string) (*whatsapp.SendResult, error) {
	f.calls++
	f.lastTo = to
	return f.result, f.err
}

type fakeBroadcaster struct {
	events []broadcast.Event
	err    error
}

var _ broadcast.Broadcaster = (*fakeBroadcaster)(nil)

func (f *fakeBroadcaster) Publish(ctx context.Context, ev broadcast.Event) error {
	f.events = append(f.events, ev)
	return f.err
}

type sentNotice struct {
	userID int64
	kind   notify.Kind
	notice notify.MessageNotice
}

type fakeNotifier struct {
	sent []sentNotice
	err  error
}

var _ notify.Notifier = (*fakeNotifier)(nil)

func (f *fakeNotifier) Notify(ctx context.Context, user model.User, kind notify.Kind, notice notify.MessageNotice) error {
	f.sent = append(f.sent, sentNotice{userID: user.ID, kind: kind, notice: notice})
	return f.err
}
