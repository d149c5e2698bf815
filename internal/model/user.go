package model

import "time"

type UserType string

const (
	TypeAdmin UserType = "admin"
	TypeUser  UserType = "user"
)

// VerificationState is the explicit state of a user's WhatsApp number binding.
type VerificationState string

const (
	// VerificationNone: no number on record.
	VerificationNone VerificationState = "none"
	// VerificationPending: number stored with an outstanding code.
	VerificationPending VerificationState = "pending"
	// VerificationVerified: number confirmed, code cleared.
	VerificationVerified VerificationState = "verified"
)

// User is owned by the host application; the relay reads and writes only the
// WhatsApp binding fields.
type User struct {
	ID               int64      `json:"id"`
	Name             string     `json:"name"`
	Email            string     `json:"email"`
	Type             UserType   `json:"type"`
	WhatsAppNumber   *string    `json:"whatsapp_number"`
	WhatsAppVerified bool       `json:"whatsapp_verified"`
	VerifiedAt       *time.Time `json:"whatsapp_verified_at"`
	VerificationCode *string    `json:"-"`
	UpdatedAt        time.Time  `json:"-"`
}

func (u User) IsAdmin() bool { return u.Type == TypeAdmin }

// VerificationStateOf derives the explicit state from the binding fields.
func VerificationStateOf(u User) VerificationState {
	switch {
	case u.WhatsAppNumber == nil || *u.WhatsAppNumber == "":
		return VerificationNone
	case u.WhatsAppVerified:
		return VerificationVerified
	default:
		return VerificationPending
	}
}
