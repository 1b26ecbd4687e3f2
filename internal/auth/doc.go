// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyfold Contributors

// Package auth implements the credential and token lifecycle.
//
// # Domain Types
//
// User records should be created with NewUser, which validates the
// email and password hash. A pending password reset is attached with
// SetPendingReset and removed with ClearPendingReset; the token hash
// and expiry are always set or cleared together.
//
// # Services
//
// CredentialService handles registration and login, minting a
// stateless signed session token on successful login.
// PasswordResetService handles the reset flow: issuing a single-use
// time-bound token, validating a presented token, and consuming it
// exactly once.
//
// Services are created with New*Service constructors that validate
// dependencies.
package auth
