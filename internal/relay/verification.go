package relay

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"time"

	"github.com/devsfort/whatsapp-relay/internal/phone"
)

// codeTTL is how long an issued verification code stays valid.
const codeTTL = 10 * time.Minute

const codeLength = 6

const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// SendVerificationCode binds a number to the user in pending state and sends
// a fresh code over WhatsApp. Resending re-issues the code and resets the
// expiry timer.
func (s *Service) SendVerificationCode(ctx context.Context, userID int64, rawNumber string) error {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return err
	}
	if user == nil {
		return ErrUserNotFound
	}

	number := phone.Normalize(rawNumber)
	code, err := generateCode()
	if err != nil {
		return err
	}

	if err := s.users.SetPendingVerification(ctx, userID, number, code); err != nil {
		return fmt.Errorf("failed to store verification code: %w", err)
	}

	body := fmt.Sprintf("Your verification code is: %s\n\nThis code will expire in 10 minutes.", code)
	outcome, err := s.SendText(ctx, number, body)
	if err != nil {
		return err
	}
	if !outcome.Success {
		return fmt.Errorf("failed to send verification code: %s", outcome.ErrorMessage)
	}

	slog.Info("verification code sent", "user_id", userID, "number", number)
	return nil
}

// VerifyCode confirms a pending number. Distinct failures: no code on record,
// mismatch, and expiry measured from when the code-bearing record was last
// updated.
func (s *Service) VerifyCode(ctx context.Context, userID int64, submitted string) error {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return err
	}
	if user == nil {
		return ErrUserNotFound
	}

	if user.VerificationCode == nil {
		return ErrNoCodeFound
	}
	if *user.VerificationCode != submitted {
		return ErrInvalidCode
	}
	if time.Since(user.UpdatedAt) > codeTTL {
		return ErrCodeExpired
	}

	if err := s.users.MarkVerified(ctx, userID, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to mark user verified: %w", err)
	}

	slog.Info("whatsapp number verified", "user_id", userID)
	return nil
}

// RemoveNumber clears the user's WhatsApp binding entirely.
func (s *Service) RemoveNumber(ctx context.Context, userID int64) error {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return err
	}
	if user == nil {
		return ErrUserNotFound
	}
	return s.users.ClearWhatsApp(ctx, userID)
}

func generateCode() (string, error) {
	// Reject bytes past the largest multiple of the alphabet size so every
	// character is equally likely.
	const limit = byte(256 - 256%len(codeAlphabet))

	out := make([]byte, 0, codeLength)
	buf := make([]byte, codeLength)
	for len(out) < codeLength {
		if _, err := rand.Read(buf); err != nil {
			return "", err
		}
		for _, b := range buf {
			if b >= limit {
				continue
			}
			out = append(out, codeAlphabet[int(b)%len(codeAlphabet)])
			if len(out) == codeLength {
				break
			}
		}
	}
	return string(out), nil
}
