package repo

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/devsfort/whatsapp-relay/internal/model"
)

type PostgresMessageRepo struct {
	db *sql.DB
}

func NewPostgresMessageRepo(db *sql.DB) *PostgresMessageRepo {
	return &PostgresMessageRepo{db: db}
}

var _ MessageRepository = (*PostgresMessageRepo)(nil)

func (r *PostgresMessageRepo) Create(ctx context.Context, m *model.Message) error {
	if m.From == "" {
		return errors.New("message from number must not be empty")
	}

	var providerID sql.NullString
	if m.ProviderID != nil {
		providerID = sql.NullString{String: *m.ProviderID, Valid: true}
	}
	var userID sql.NullInt64
	if m.UserID != nil {
		userID = sql.NullInt64{Int64: *m.UserID, Valid: true}
	}

	return r.db.QueryRowContext(ctx, `
		INSERT INTO whatsapp_messages
			(provider_id, from_number, body, direction, type, raw_data, processed_at, user_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at
	`,
		providerID,
		m.From,
		m.Body,
		string(m.Direction),
		string(m.Type),
		[]byte(m.RawData),
		m.ProcessedAt,
		userID,
	).Scan(&m.ID, &m.CreatedAt)
}

func (r *PostgresMessageRepo) FindByProviderID(ctx context.Context, providerID string) (*model.Message, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, provider_id, from_number, body, direction, type, raw_data,
		       status, status_updated_at, processed_at, user_id, created_at
		FROM whatsapp_messages
		WHERE provider_id = $1
		ORDER BY id ASC
		LIMIT 1
	`, providerID)

	m, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return m, err
}

func (r *PostgresMessageRepo) UpdateStatus(ctx context.Context, id int64, status model.DeliveryStatus, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE whatsapp_messages
		SET status = $2, status_updated_at = $3
		WHERE id = $1
	`, id, string(status), at)
	return err
}

func (r *PostgresMessageRepo) AssignUser(ctx context.Context, messageID, userID int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE whatsapp_messages SET user_id = $2 WHERE id = $1
	`, messageID, userID)
	return err
}

func (r *PostgresMessageRepo) AssignUserByNumber(ctx context.Context, number string, userID int64) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE whatsapp_messages SET user_id = $2 WHERE from_number = $1
	`, number, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *PostgresMessageRepo) ListByNumber(ctx context.Context, number string) ([]model.Message, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT m.id, m.provider_id, m.from_number, m.body, m.direction, m.type, m.raw_data,
		       m.status, m.status_updated_at, m.processed_at, m.user_id, m.created_at,
		       u.name
		FROM whatsapp_messages m
		LEFT JOIN users u ON u.id = m.user_id
		WHERE m.from_number = $1
		ORDER BY m.created_at ASC, m.id ASC
	`, number)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Message
	for rows.Next() {
		var m model.Message
		var providerID sql.NullString
		var rawData []byte
		var status sql.NullString
		var statusAt sql.NullTime
		var userID sql.NullInt64
		var userName sql.NullString

		if err := rows.Scan(
			&m.ID,
			&providerID,
			&m.From,
			&m.Body,
			&m.Direction,
			&m.Type,
			&rawData,
			&status,
			&statusAt,
			&m.ProcessedAt,
			&userID,
			&m.CreatedAt,
			&userName,
		); err != nil {
			return nil, err
		}

		m.RawData = rawData
		applyNullable(&m, providerID, status, statusAt, userID)
		if userName.Valid {
			s := userName.String
			m.UserName = &s
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *PostgresMessageRepo) ListConversations(ctx context.Context) ([]model.Conversation, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT last.from_number, last.body, last.direction, last.created_at,
		       counts.message_count, u.id, u.name
		FROM (
			SELECT DISTINCT ON (from_number)
			       from_number, body, direction, created_at
			FROM whatsapp_messages
			ORDER BY from_number, created_at DESC, id DESC
		) last
		JOIN (
			SELECT from_number, COUNT(*) AS message_count
			FROM whatsapp_messages
			GROUP BY from_number
		) counts USING (from_number)
		LEFT JOIN users u
			ON u.whatsapp_number = last.from_number AND u.whatsapp_verified
		ORDER BY last.created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Conversation
	for rows.Next() {
		var c model.Conversation
		var userID sql.NullInt64
		var userName sql.NullString

		if err := rows.Scan(
			&c.From,
			&c.LastMessage,
			&c.LastDirection,
			&c.LastMessageAt,
			&c.MessageCount,
			&userID,
			&userName,
		); err != nil {
			return nil, err
		}

		if userID.Valid {
			id := userID.Int64
			c.UserID = &id
		}
		if userName.Valid {
			s := userName.String
			c.UserName = &s
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *PostgresMessageRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM whatsapp_messages WHERE created_at < $1
	`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (*model.Message, error) {
	var m model.Message
	var providerID sql.NullString
	var rawData []byte
	var status sql.NullString
	var statusAt sql.NullTime
	var userID sql.NullInt64

	if err := row.Scan(
		&m.ID,
		&providerID,
		&m.From,
		&m.Body,
		&m.Direction,
		&m.Type,
		&rawData,
		&status,
		&statusAt,
		&m.ProcessedAt,
		&userID,
		&m.CreatedAt,
	); err != nil {
		return nil, err
	}

	m.RawData = rawData
	applyNullable(&m, providerID, status, statusAt, userID)
	return &m, nil
}

func applyNullable(m *model.Message, providerID, status sql.NullString, statusAt sql.NullTime, userID sql.NullInt64) {
	if providerID.Valid {
		s := providerID.String
		m.ProviderID = &s
	}
	if status.Valid {
		st := model.DeliveryStatus(status.String)
		m.Status = &st
	}
	if statusAt.Valid {
		t := statusAt.Time
		m.StatusUpdatedAt = &t
	}
	if userID.Valid {
		id := userID.Int64
		m.UserID = &id
	}
}
