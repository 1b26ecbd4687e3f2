// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyfold Contributors

package auth

import (
	"context"
	"regexp"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// MinPasswordLength is the minimum accepted password length for
// registration and reset.
const MinPasswordLength = 8

// emailRegex is a light sanity check, not full RFC 5322 validation.
// The store's unique index is the actual authority on identity.
var emailRegex = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// User is a credential record. Email is the unique identifier; the
// password is stored only as an opaque hash. ResetTokenHash and
// ResetExpiresAt are present only while a password reset is pending,
// and are always set or cleared together.
type User struct {
	ID             ulid.ULID
	Email          string
	PasswordHash   string
	ResetTokenHash *string
	ResetExpiresAt *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// NewUser creates a validated User with no pending reset.
func NewUser(email, passwordHash string) (*User, error) {
	if err := ValidateEmail(email); err != nil {
		return nil, err
	}
	if passwordHash == "" {
		return nil, oops.Code("AUTH_INVALID_HASH").Errorf("password hash cannot be empty")
	}

	now := time.Now()
	return &User{
		ID:           ulid.Make(),
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// HasPendingReset reports whether a reset token is attached.
func (u *User) HasPendingReset() bool {
	return u.ResetTokenHash != nil && u.ResetExpiresAt != nil
}

// SetPendingReset attaches a reset token hash and its expiry, replacing
// any previous pending reset. The paired-presence invariant is enforced
// here rather than at call sites.
func (u *User) SetPendingReset(tokenHash string, expiresAt time.Time) error {
	if tokenHash == "" {
		return oops.Code("RESET_INVALID_HASH").Errorf("reset token hash cannot be empty")
	}
	if expiresAt.IsZero() {
		return oops.Code("RESET_INVALID_EXPIRY").Errorf("reset expiry cannot be zero")
	}
	u.ResetTokenHash = &tokenHash
	u.ResetExpiresAt = &expiresAt
	u.UpdatedAt = time.Now()
	return nil
}

// ClearPendingReset removes any pending reset token and expiry.
func (u *User) ClearPendingReset() {
	u.ResetTokenHash = nil
	u.ResetExpiresAt = nil
	u.UpdatedAt = time.Now()
}

// ValidateEmail validates an email address shape.
func ValidateEmail(email string) error {
	if email == "" {
		return oops.Code("AUTH_INVALID_EMAIL").Errorf("email cannot be empty")
	}
	if !emailRegex.MatchString(email) {
		return oops.Code("AUTH_INVALID_EMAIL").
			With("email", email).
			Errorf("email is not a valid address")
	}
	return nil
}

// ValidatePassword validates a plaintext password against policy.
func ValidatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return oops.Code("AUTH_WEAK_PASSWORD").
			With("min", MinPasswordLength).
			Wrap(ErrWeakPassword)
	}
	return nil
}

// UserRepository manages user credential persistence. Implementations
// return ErrEmailTaken from Create when the email is already registered
// and wrap ErrNotFound when a lookup matches nothing.
type UserRepository interface {
	// Create stores a new user.
	Create(ctx context.Context, user *User) error

	// GetByEmail retrieves a user by email (exact match).
	GetByEmail(ctx context.Context, email string) (*User, error)

	// GetByResetTokenHash retrieves the user whose pending reset token
	// hash equals tokenHash and whose expiry is strictly after now.
	GetByResetTokenHash(ctx context.Context, tokenHash string, now time.Time) (*User, error)

	// Update persists mutated fields of an existing user.
	Update(ctx context.Context, user *User) error

	// ConsumeResetToken atomically finds the user whose unexpired reset
	// token hash equals tokenHash, replaces the password hash, and
	// clears the pending reset, all in one conditional update. Returns
	// the updated user, or ErrNotFound when no unexpired token matched
	// (including when a concurrent consumer won the race).
	ConsumeResetToken(ctx context.Context, tokenHash string, now time.Time, newPasswordHash string) (*User, error)
}
