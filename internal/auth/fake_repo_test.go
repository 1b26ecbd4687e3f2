// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyfold Contributors

package auth_test

import (
	"context"
	"sync"
	"time"

	"github.com/keyfold/keyfold/internal/auth"
)

// fakeUserRepo is an in-memory auth.UserRepository with the same
// matching semantics as the real store, including the strict
// greater-than expiry comparison and the atomic compare-and-clear
// consume.
type fakeUserRepo struct {
	mu    sync.Mutex
	users map[string]*auth.User // keyed by email
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[string]*auth.User)}
}

func (r *fakeUserRepo) Create(_ context.Context, user *auth.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[user.Email]; ok {
		return auth.ErrEmailTaken
	}
	copied := *user
	r.users[user.Email] = &copied
	return nil
}

func (r *fakeUserRepo) GetByEmail(_ context.Context, email string) (*auth.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[email]
	if !ok {
		return nil, auth.ErrNotFound
	}
	copied := *user
	return &copied, nil
}

func (r *fakeUserRepo) GetByResetTokenHash(_ context.Context, tokenHash string, now time.Time) (*auth.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, user := range r.users {
		if user.HasPendingReset() && *user.ResetTokenHash == tokenHash && user.ResetExpiresAt.After(now) {
			copied := *user
			return &copied, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (r *fakeUserRepo) Update(_ context.Context, user *auth.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.users[user.Email]
	if !ok {
		return auth.ErrNotFound
	}
	copied := *user
	copied.ID = stored.ID
	r.users[user.Email] = &copied
	return nil
}

func (r *fakeUserRepo) ConsumeResetToken(_ context.Context, tokenHash string, now time.Time, newPasswordHash string) (*auth.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, user := range r.users {
		if user.HasPendingReset() && *user.ResetTokenHash == tokenHash && user.ResetExpiresAt.After(now) {
			user.PasswordHash = newPasswordHash
			user.ResetTokenHash = nil
			user.ResetExpiresAt = nil
			copied := *user
			return &copied, nil
		}
	}
	return nil, auth.ErrNotFound
}

var _ auth.UserRepository = (*fakeUserRepo)(nil)
