package backend

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/MrEthical07/relayauth"
	"github.com/MrEthical07/relayauth/internal"
	"github.com/MrEthical07/relayauth/internal/stores"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/hotp"
)

var codeOpts = hotp.ValidateOpts{Digits: otp.DigitsSix, Algorithm: otp.AlgorithmSHA1}

// issueCode replaces any live challenge of kind for a and mails the new code.
// Each challenge gets a fresh HOTP secret; the issue time is the counter.
func (b *Backend) issueCode(ctx context.Context, kind relayauth.OTPKind, a *account) error {
	secret, err := internal.NewCodeSecret()
	if err != nil {
		return err
	}
	now := b.now()
	code, err := hotp.GenerateCodeCustom(secret, uint64(now.Unix()), codeOpts)
	if err != nil {
		return fmt.Errorf("generate code: %w", err)
	}

	expires := now.Add(b.cfg.CodeTTL)
	rec := &stores.CodeRecord{
		UserID:    a.ID,
		CodeHash:  internal.HashCode(string(kind), a.Email, code),
		IssuedAt:  now.Unix(),
		ExpiresAt: expires.Unix(),
	}
	if err := b.codes.Save(ctx, string(kind), a.Email, rec, b.cfg.CodeTTL+b.cfg.CodeRetention); err != nil {
		return err
	}

	if err := b.mailer.Send(ctx, Message{To: a.Email, Kind: kind, Code: code, ExpiresAt: expires}); err != nil {
		b.logger.Error("relayauth backend: code mail failed",
			slog.String("kind", string(kind)), slog.String("user_id", a.ID), slog.Any("error", err))
		return failure("email_send_failed", http.StatusInternalServerError, "could not send code email")
	}
	return nil
}

// consumeCode redeems code for kind and email and returns the account id.
func (b *Backend) consumeCode(ctx context.Context, kind relayauth.OTPKind, email, code string) (string, error) {
	rec, err := b.codes.Consume(ctx, string(kind), email,
		internal.HashCode(string(kind), email, code), b.cfg.CodeMaxAttempts)
	if err != nil {
		return "", codeError(err)
	}
	return rec.UserID, nil
}
