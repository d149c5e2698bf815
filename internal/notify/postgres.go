package notify

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/devsfort/whatsapp-relay/internal/model"
)

// PostgresNotifier stores notifications in the host application's
// notifications table (UUID primary keys, JSON payload), where the host UI
// picks them up.
type PostgresNotifier struct {
	db *sql.DB
}

func NewPostgresNotifier(db *sql.DB) *PostgresNotifier {
	return &PostgresNotifier{db: db}
}

var _ Notifier = (*PostgresNotifier)(nil)

func (n *PostgresNotifier) Notify(ctx context.Context, user model.User, kind Kind, notice MessageNotice) error {
	payload, err := json.Marshal(notice)
	if err != nil {
		return err
	}

	_, err = n.db.ExecContext(ctx, `
		INSERT INTO notifications (id, user_id, kind, payload, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, uuid.NewString(), user.ID, string(kind), payload, time.Now().UTC())
	return err
}
