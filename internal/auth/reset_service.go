// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyfold Contributors

package auth

import (
	"context"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// ResetMailer delivers a password reset link to a recipient. The
// concrete transport lives outside this package; success or failure
// only decides the outcome reported to the caller, never whether the
// token stays persisted.
type ResetMailer interface {
	SendResetMail(ctx context.Context, recipient, resetLink string) error
}

// PasswordResetService handles the password reset flow: issuing a
// token, validating a presented token, and consuming it exactly once.
type PasswordResetService struct {
	users    UserRepository
	hasher   PasswordHasher
	mailer   ResetMailer
	baseURL  string
	tokenTTL time.Duration
	now      func() time.Time
}

// NewPasswordResetService creates a PasswordResetService. baseURL is
// the public URL the reset link is built from; ttl is the validity
// window of issued tokens, falling back to ResetTokenTTL when zero or
// negative.
func NewPasswordResetService(users UserRepository, hasher PasswordHasher, mailer ResetMailer, baseURL string, ttl time.Duration) (*PasswordResetService, error) {
	if users == nil {
		return nil, oops.Code("AUTH_NIL_DEPENDENCY").Errorf("user repository is required")
	}
	if hasher == nil {
		return nil, oops.Code("AUTH_NIL_DEPENDENCY").Errorf("password hasher is required")
	}
	if mailer == nil {
		return nil, oops.Code("AUTH_NIL_DEPENDENCY").Errorf("reset mailer is required")
	}
	if baseURL == "" {
		return nil, oops.Code("AUTH_NIL_DEPENDENCY").Errorf("base URL is required")
	}
	if ttl <= 0 {
		ttl = ResetTokenTTL
	}
	return &PasswordResetService{
		users:    users,
		hasher:   hasher,
		mailer:   mailer,
		baseURL:  baseURL,
		tokenTTL: ttl,
		now:      time.Now,
	}, nil
}

// RequestReset issues a reset token for the account with the given
// email, persists it on the record, and dispatches the reset mail.
// Issuing replaces any earlier pending token, which invalidates it for
// consumption. The token is persisted before the mail is sent; a
// delivery failure returns ErrDeliveryFailed but never rolls the token
// back. Returns ErrNotFound when no account has the email.
func (s *PasswordResetService) RequestReset(ctx context.Context, email string) error {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return oops.Code("RESET_REQUEST_FAILED").
			With("operation", "get user by email").
			Wrap(err)
	}

	token, hash, err := GenerateResetToken()
	if err != nil {
		return oops.Code("RESET_REQUEST_FAILED").
			With("operation", "generate reset token").
			Wrap(err)
	}

	if err := user.SetPendingReset(hash, s.now().Add(s.tokenTTL)); err != nil {
		return oops.Code("RESET_REQUEST_FAILED").
			With("operation", "set pending reset").
			Wrap(err)
	}

	if err := s.users.Update(ctx, user); err != nil {
		return oops.Code("RESET_REQUEST_FAILED").
			With("operation", "persist reset token").
			Wrap(err)
	}

	resetLink := s.baseURL + "/reset-password/" + token
	if err := s.mailer.SendResetMail(ctx, user.Email, resetLink); err != nil {
		return oops.Code("RESET_MAIL_FAILED").
			With("recipient", user.Email).
			Wrap(errors.Join(ErrDeliveryFailed, err))
	}

	return nil
}

// ValidateToken checks a presented token against stored, unexpired
// reset tokens and returns the matching user's ID. Unknown, mismatched,
// and expired tokens all yield ErrResetTokenInvalid; the cases are not
// distinguished so a caller cannot probe for token existence.
func (s *PasswordResetService) ValidateToken(ctx context.Context, token string) (ulid.ULID, error) {
	if token == "" {
		return ulid.ULID{}, ErrResetTokenInvalid
	}

	user, err := s.users.GetByResetTokenHash(ctx, HashResetToken(token), s.now())
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ulid.ULID{}, ErrResetTokenInvalid
		}
		return ulid.ULID{}, oops.Code("RESET_VALIDATE_FAILED").
			With("operation", "get user by reset token hash").
			Wrap(err)
	}

	return user.ID, nil
}

// ConsumeReset consumes a reset token exactly once: the new password is
// hashed, then a single conditional update replaces the password hash
// and clears the token for the record whose unexpired token matches.
// A second consumption of the same token fails with
// ErrResetTokenInvalid, as does any unknown or expired token.
func (s *PasswordResetService) ConsumeReset(ctx context.Context, token, newPassword string) error {
	if token == "" {
		return ErrResetTokenInvalid
	}
	if err := ValidatePassword(newPassword); err != nil {
		return err
	}

	newHash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return oops.Code("RESET_CONSUME_FAILED").
			With("operation", "hash new password").
			Wrap(err)
	}

	if _, err := s.users.ConsumeResetToken(ctx, HashResetToken(token), s.now(), newHash); err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrResetTokenInvalid
		}
		return oops.Code("RESET_CONSUME_FAILED").
			With("operation", "consume reset token").
			Wrap(err)
	}

	return nil
}
