package repo

import (
	"context"
	"time"

	"github.com/devsfort/whatsapp-relay/internal/model"
)

// UserDirectory is the host application's user table, consumed by the relay.
// Only the WhatsApp binding fields are ever written. Lookup methods return
// (nil, nil) when no row matches.
type UserDirectory interface {
	FindByID(ctx context.Context, id int64) (*model.User, error)
	// FindVerifiedByNumber resolves a canonical number to its verified owner.
	FindVerifiedByNumber(ctx context.Context, number string) (*model.User, error)
	// FindByNumber resolves a number regardless of verification state.
	FindByNumber(ctx context.Context, number string) (*model.User, error)
	ListAdmins(ctx context.Context) ([]model.User, error)
	// ListVerified returns users with a verified number, ordered by name.
	ListVerified(ctx context.Context) ([]model.User, error)

	// SetPendingVerification stores a number plus outstanding code and clears
	// any previous verified state.
	SetPendingVerification(ctx context.Context, userID int64, number, code string) error
	// MarkVerified confirms the pending number and clears the code.
	MarkVerified(ctx context.Context, userID int64, at time.Time) error
	// ClearWhatsApp removes the binding entirely.
	ClearWhatsApp(ctx context.Context, userID int64) error
	// AssignNumber binds a number as verified without a code exchange
	// (admin-driven assignment of an external number).
	AssignNumber(ctx context.Context, userID int64, number string, at time.Time) error
}
