// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyfold Contributors

package auth_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/keyfold/keyfold/internal/auth"
	"github.com/keyfold/keyfold/internal/auth/mocks"
)

const resetBaseURL = "https://app.example.com"

func TestNewPasswordResetService_NilDependencies(t *testing.T) {
	tests := []struct {
		name        string
		users       auth.UserRepository
		hasher      auth.PasswordHasher
		mailer      auth.ResetMailer
		baseURL     string
		expectError string
	}{
		{
			name:        "nil user repository",
			users:       nil,
			hasher:      mocks.NewMockPasswordHasher(t),
			mailer:      mocks.NewMockResetMailer(t),
			baseURL:     resetBaseURL,
			expectError: "user repository is required",
		},
		{
			name:        "nil password hasher",
			users:       mocks.NewMockUserRepository(t),
			hasher:      nil,
			mailer:      mocks.NewMockResetMailer(t),
			baseURL:     resetBaseURL,
			expectError: "password hasher is required",
		},
		{
			name:        "nil reset mailer",
			users:       mocks.NewMockUserRepository(t),
			hasher:      mocks.NewMockPasswordHasher(t),
			mailer:      nil,
			baseURL:     resetBaseURL,
			expectError: "reset mailer is required",
		},
		{
			name:        "empty base URL",
			users:       mocks.NewMockUserRepository(t),
			hasher:      mocks.NewMockPasswordHasher(t),
			mailer:      mocks.NewMockResetMailer(t),
			baseURL:     "",
			expectError: "base URL is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := auth.NewPasswordResetService(tt.users, tt.hasher, tt.mailer, tt.baseURL, auth.ResetTokenTTL)
			require.Error(t, err)
			assert.Nil(t, svc)
			assert.Contains(t, err.Error(), tt.expectError)
		})
	}
}

// resetFixture seeds a user and returns the service wired against an
// in-memory repo, with a mailer that records the mailed reset links.
func resetFixture(t *testing.T) (*fakeUserRepo, *mocks.MockResetMailer, *auth.PasswordResetService) {
	t.Helper()

	repo := newFakeUserRepo()
	user, err := auth.NewUser("alice@example.com", "$argon2id$old")
	require.NoError(t, err)
	require.NoError(t, repo.Create(context.Background(), user))

	mailer := mocks.NewMockResetMailer(t)
	svc, err := auth.NewPasswordResetService(repo, auth.NewArgon2idHasher(), mailer, resetBaseURL, 0)
	require.NoError(t, err)

	return repo, mailer, svc
}

// mailedToken extracts the token from the last reset link the mailer saw.
func mailedToken(t *testing.T, mailer *mocks.MockResetMailer) string {
	t.Helper()
	require.NotEmpty(t, mailer.Calls)
	link, ok := mailer.Calls[len(mailer.Calls)-1].Arguments.Get(2).(string)
	require.True(t, ok)
	i := strings.LastIndex(link, "/")
	require.Greater(t, i, 0)
	return link[i+1:]
}

func TestPasswordResetService_RequestReset(t *testing.T) {
	ctx := context.Background()

	t.Run("persists token pair and mails the link", func(t *testing.T) {
		repo, mailer, svc := resetFixture(t)

		issuedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		svc.SetClock(func() time.Time { return issuedAt })

		mailer.On("SendResetMail", ctx, "alice@example.com", mock.AnythingOfType("string")).Return(nil)

		require.NoError(t, svc.RequestReset(ctx, "alice@example.com"))

		user, err := repo.GetByEmail(ctx, "alice@example.com")
		require.NoError(t, err)
		require.True(t, user.HasPendingReset())
		assert.Equal(t, issuedAt.Add(time.Hour), *user.ResetExpiresAt)

		token := mailedToken(t, mailer)
		assert.Len(t, token, 40)
		assert.True(t, strings.HasPrefix(
			mailer.Calls[0].Arguments.Get(2).(string),
			resetBaseURL+"/reset-password/",
		))
		// The stored value is the hash of the mailed token, never the token.
		assert.Equal(t, auth.HashResetToken(token), *user.ResetTokenHash)
	})

	t.Run("configured TTL sets the expiry window", func(t *testing.T) {
		repo := newFakeUserRepo()
		user, err := auth.NewUser("alice@example.com", "$argon2id$old")
		require.NoError(t, err)
		require.NoError(t, repo.Create(ctx, user))

		mailer := mocks.NewMockResetMailer(t)
		svc, err := auth.NewPasswordResetService(repo, auth.NewArgon2idHasher(), mailer, resetBaseURL, 30*time.Minute)
		require.NoError(t, err)

		issuedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		svc.SetClock(func() time.Time { return issuedAt })

		mailer.On("SendResetMail", ctx, "alice@example.com", mock.AnythingOfType("string")).Return(nil)

		require.NoError(t, svc.RequestReset(ctx, "alice@example.com"))

		stored, err := repo.GetByEmail(ctx, "alice@example.com")
		require.NoError(t, err)
		require.True(t, stored.HasPendingReset())
		assert.Equal(t, issuedAt.Add(30*time.Minute), *stored.ResetExpiresAt)
	})

	t.Run("unknown email yields ErrNotFound without mailing", func(t *testing.T) {
		_, _, svc := resetFixture(t)

		err := svc.RequestReset(ctx, "ghost@example.com")
		assert.ErrorIs(t, err, auth.ErrNotFound)
	})

	t.Run("delivery failure reports ErrDeliveryFailed but keeps the token", func(t *testing.T) {
		repo, mailer, svc := resetFixture(t)

		mailer.On("SendResetMail", ctx, "alice@example.com", mock.AnythingOfType("string")).
			Return(errors.New("smtp: connection refused"))

		err := svc.RequestReset(ctx, "alice@example.com")
		require.Error(t, err)
		assert.ErrorIs(t, err, auth.ErrDeliveryFailed)

		// Persistence happened before delivery and is not rolled back.
		user, getErr := repo.GetByEmail(ctx, "alice@example.com")
		require.NoError(t, getErr)
		assert.True(t, user.HasPendingReset())
	})

	t.Run("second issuance invalidates the first token", func(t *testing.T) {
		_, mailer, svc := resetFixture(t)

		mailer.On("SendResetMail", ctx, "alice@example.com", mock.AnythingOfType("string")).Return(nil)

		require.NoError(t, svc.RequestReset(ctx, "alice@example.com"))
		first := mailedToken(t, mailer)

		require.NoError(t, svc.RequestReset(ctx, "alice@example.com"))
		second := mailedToken(t, mailer)

		assert.NotEqual(t, first, second)

		_, err := svc.ValidateToken(ctx, first)
		assert.ErrorIs(t, err, auth.ErrResetTokenInvalid)

		_, err = svc.ValidateToken(ctx, second)
		assert.NoError(t, err)
	})
}

func TestPasswordResetService_ValidateToken(t *testing.T) {
	ctx := context.Background()

	issueToken := func(t *testing.T, svc *auth.PasswordResetService, mailer *mocks.MockResetMailer, issuedAt time.Time) string {
		t.Helper()
		svc.SetClock(func() time.Time { return issuedAt })
		mailer.On("SendResetMail", ctx, "alice@example.com", mock.AnythingOfType("string")).Return(nil)
		require.NoError(t, svc.RequestReset(ctx, "alice@example.com"))
		return mailedToken(t, mailer)
	}

	t.Run("valid one second before expiry", func(t *testing.T) {
		repo, mailer, svc := resetFixture(t)
		issuedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		token := issueToken(t, svc, mailer, issuedAt)

		svc.SetClock(func() time.Time { return issuedAt.Add(time.Hour - time.Second) })

		userID, err := svc.ValidateToken(ctx, token)
		require.NoError(t, err)

		user, err := repo.GetByEmail(ctx, "alice@example.com")
		require.NoError(t, err)
		assert.Equal(t, user.ID, userID)
	})

	t.Run("invalid one second after expiry", func(t *testing.T) {
		_, mailer, svc := resetFixture(t)
		issuedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		token := issueToken(t, svc, mailer, issuedAt)

		svc.SetClock(func() time.Time { return issuedAt.Add(time.Hour + time.Second) })

		_, err := svc.ValidateToken(ctx, token)
		assert.ErrorIs(t, err, auth.ErrResetTokenInvalid)
	})

	t.Run("invalid exactly at expiry (strict comparison)", func(t *testing.T) {
		_, mailer, svc := resetFixture(t)
		issuedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		token := issueToken(t, svc, mailer, issuedAt)

		svc.SetClock(func() time.Time { return issuedAt.Add(time.Hour) })

		_, err := svc.ValidateToken(ctx, token)
		assert.ErrorIs(t, err, auth.ErrResetTokenInvalid)
	})

	t.Run("unknown token and expired token are indistinguishable", func(t *testing.T) {
		_, mailer, svc := resetFixture(t)
		issuedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		token := issueToken(t, svc, mailer, issuedAt)

		svc.SetClock(func() time.Time { return issuedAt.Add(2 * time.Hour) })
		_, expiredErr := svc.ValidateToken(ctx, token)

		_, unknownErr := svc.ValidateToken(ctx, strings.Repeat("0", 40))

		require.Error(t, expiredErr)
		require.Error(t, unknownErr)
		assert.Equal(t, expiredErr.Error(), unknownErr.Error())
	})

	t.Run("empty token is invalid", func(t *testing.T) {
		_, _, svc := resetFixture(t)
		_, err := svc.ValidateToken(ctx, "")
		assert.ErrorIs(t, err, auth.ErrResetTokenInvalid)
	})
}

func TestPasswordResetService_ConsumeReset(t *testing.T) {
	ctx := context.Background()

	t.Run("consumes exactly once", func(t *testing.T) {
		repo, mailer, svc := resetFixture(t)

		mailer.On("SendResetMail", ctx, "alice@example.com", mock.AnythingOfType("string")).Return(nil)
		require.NoError(t, svc.RequestReset(ctx, "alice@example.com"))
		token := mailedToken(t, mailer)

		require.NoError(t, svc.ConsumeReset(ctx, token, "NewSecret456"))

		// Token and expiry are cleared together.
		user, err := repo.GetByEmail(ctx, "alice@example.com")
		require.NoError(t, err)
		assert.False(t, user.HasPendingReset())

		// New password is in effect.
		ok, err := auth.NewArgon2idHasher().Verify("NewSecret456", user.PasswordHash)
		require.NoError(t, err)
		assert.True(t, ok)

		// Second consumption of the same token fails.
		err = svc.ConsumeReset(ctx, token, "AnotherSecret789")
		assert.ErrorIs(t, err, auth.ErrResetTokenInvalid)
	})

	t.Run("expired token cannot be consumed", func(t *testing.T) {
		_, mailer, svc := resetFixture(t)

		issuedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		svc.SetClock(func() time.Time { return issuedAt })
		mailer.On("SendResetMail", ctx, "alice@example.com", mock.AnythingOfType("string")).Return(nil)
		require.NoError(t, svc.RequestReset(ctx, "alice@example.com"))
		token := mailedToken(t, mailer)

		svc.SetClock(func() time.Time { return issuedAt.Add(time.Hour + time.Second) })

		err := svc.ConsumeReset(ctx, token, "NewSecret456")
		assert.ErrorIs(t, err, auth.ErrResetTokenInvalid)
	})

	t.Run("weak new password is rejected before consumption", func(t *testing.T) {
		repo, mailer, svc := resetFixture(t)

		mailer.On("SendResetMail", ctx, "alice@example.com", mock.AnythingOfType("string")).Return(nil)
		require.NoError(t, svc.RequestReset(ctx, "alice@example.com"))
		token := mailedToken(t, mailer)

		err := svc.ConsumeReset(ctx, token, "short")
		assert.ErrorIs(t, err, auth.ErrWeakPassword)

		// Token survives the rejected attempt.
		user, getErr := repo.GetByEmail(ctx, "alice@example.com")
		require.NoError(t, getErr)
		assert.True(t, user.HasPendingReset())
	})

	t.Run("empty token is invalid", func(t *testing.T) {
		_, _, svc := resetFixture(t)
		err := svc.ConsumeReset(ctx, "", "NewSecret456")
		assert.ErrorIs(t, err, auth.ErrResetTokenInvalid)
	})
}
