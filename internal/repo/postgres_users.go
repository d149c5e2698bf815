package repo

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/devsfort/whatsapp-relay/internal/model"
)

type PostgresUserDirectory struct {
	db *sql.DB
}

func NewPostgresUserDirectory(db *sql.DB) *PostgresUserDirectory {
	return &PostgresUserDirectory{db: db}
}

var _ UserDirectory = (*PostgresUserDirectory)(nil)

const userColumns = `id, name, email, type, whatsapp_number, whatsapp_verified,
	whatsapp_verified_at, whatsapp_verification_code, updated_at`

func (d *PostgresUserDirectory) FindByID(ctx context.Context, id int64) (*model.User, error) {
	return d.findOne(ctx, `WHERE id = $1`, id)
}

func (d *PostgresUserDirectory) FindVerifiedByNumber(ctx context.Context, number string) (*model.User, error) {
	return d.findOne(ctx, `WHERE whatsapp_number = $1 AND whatsapp_verified`, number)
}

func (d *PostgresUserDirectory) FindByNumber(ctx context.Context, number string) (*model.User, error) {
	return d.findOne(ctx, `WHERE whatsapp_number = $1`, number)
}

func (d *PostgresUserDirectory) findOne(ctx context.Context, where string, arg any) (*model.User, error) {
	row := d.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users `+where+` ORDER BY id LIMIT 1`, arg)

	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return u, err
}

func (d *PostgresUserDirectory) ListAdmins(ctx context.Context) ([]model.User, error) {
	return d.list(ctx, `WHERE type = 'admin' ORDER BY id`)
}

func (d *PostgresUserDirectory) ListVerified(ctx context.Context) ([]model.User, error) {
	return d.list(ctx, `WHERE whatsapp_verified AND whatsapp_number IS NOT NULL ORDER BY name ASC`)
}

func (d *PostgresUserDirectory) list(ctx context.Context, tail string) ([]model.User, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users `+tail)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *u)
	}
	return out, rows.Err()
}

func (d *PostgresUserDirectory) SetPendingVerification(ctx context.Context, userID int64, number, code string) error {
	_, err := d.db.ExecContext(ctx, `
		UPDATE users
		SET whatsapp_number = $2,
		    whatsapp_verified = false,
		    whatsapp_verified_at = NULL,
		    whatsapp_verification_code = $3,
		    updated_at = now()
		WHERE id = $1
	`, userID, number, code)
	return err
}

func (d *PostgresUserDirectory) MarkVerified(ctx context.Context, userID int64, at time.Time) error {
	_, err := d.db.ExecContext(ctx, `
		UPDATE users
		SET whatsapp_verified = true,
		    whatsapp_verified_at = $2,
		    whatsapp_verification_code = NULL,
		    updated_at = now()
		WHERE id = $1
	`, userID, at)
	return err
}

func (d *PostgresUserDirectory) ClearWhatsApp(ctx context.Context, userID int64) error {
	_, err := d.db.ExecContext(ctx, `
		UPDATE users
		SET whatsapp_number = NULL,
		    whatsapp_verified = false,
		    whatsapp_verified_at = NULL,
		    whatsapp_verification_code = NULL,
		    updated_at = now()
		WHERE id = $1
	`, userID)
	return err
}

func (d *PostgresUserDirectory) AssignNumber(ctx context.Context, userID int64, number string, at time.Time) error {
	_, err := d.db.ExecContext(ctx, `
		UPDATE users
		SET whatsapp_number = $2,
		    whatsapp_verified = true,
		    whatsapp_verified_at = $3,
		    whatsapp_verification_code = NULL,
		    updated_at = now()
		WHERE id = $1
	`, userID, number, at)
	return err
}

func scanUser(row rowScanner) (*model.User, error) {
	var u model.User
	var number sql.NullString
	var verifiedAt sql.NullTime
	var code sql.NullString

	if err := row.Scan(
		&u.ID,
		&u.Name,
		&u.Email,
		&u.Type,
		&number,
		&u.WhatsAppVerified,
		&verifiedAt,
		&code,
		&u.UpdatedAt,
	); err != nil {
		return nil, err
	}

	if number.Valid {
		s := number.String
		u.WhatsAppNumber = &s
	}
	if verifiedAt.Valid {
		t := verifiedAt.Time
		u.VerifiedAt = &t
	}
	if code.Valid {
		s := code.String
		u.VerificationCode = &s
	}
	return &u, nil
}
