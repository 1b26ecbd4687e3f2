// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyfold Contributors

package auth

import "time"

// SetClock overrides the service clock for deterministic expiry tests.
func (s *CredentialService) SetClock(now func() time.Time) { s.now = now }

// SetClock overrides the service clock for deterministic expiry tests.
func (s *PasswordResetService) SetClock(now func() time.Time) { s.now = now }

// SetClock overrides the issuer clock for deterministic expiry tests.
func (i *SessionIssuer) SetClock(now func() time.Time) { i.now = now }
