// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyfold Contributors

package auth

import "errors"

// Sentinel errors for flow outcomes. Callers match with errors.Is and
// map them to transport responses; the messages are the stable,
// user-visible forms.
var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrEmailTaken is returned when registering an email that already
	// has an account.
	ErrEmailTaken = errors.New("user already exists")

	// ErrInvalidCredentials is returned on a failed login. It covers
	// both a wrong password and, by policy, a missing account.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrResetTokenInvalid is the single outcome for a reset token that
	// is unknown, mismatched, or expired. The cases are deliberately
	// not distinguished to the caller.
	ErrResetTokenInvalid = errors.New("password reset token is invalid or has expired")

	// ErrDeliveryFailed is returned when the reset mail could not be
	// sent. The issued token remains persisted.
	ErrDeliveryFailed = errors.New("failed to send the password reset mail")

	// ErrWeakPassword is returned when a password does not meet the
	// minimum length policy.
	ErrWeakPassword = errors.New("password does not meet the minimum length")
)
