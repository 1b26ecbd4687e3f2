// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyfold Contributors

package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// SessionTokenTTL is the default validity window of a session token.
const SessionTokenTTL = time.Hour

// SessionClaims are the claims embedded in a session token. The user
// ID travels in the registered Subject claim; issuance and expiry in
// IssuedAt and ExpiresAt. Nothing else is needed because validity is
// determined purely by signature and expiry, never by a lookup.
type SessionClaims struct {
	jwt.RegisteredClaims
}

// SessionIssuer mints stateless signed session tokens. The signing
// secret is process-wide and read-only after startup.
type SessionIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewSessionIssuer creates a SessionIssuer. A missing secret is a
// configuration error and must be treated as fatal at startup.
func NewSessionIssuer(secret []byte, ttl time.Duration) (*SessionIssuer, error) {
	if len(secret) == 0 {
		return nil, oops.Code("SESSION_NO_SECRET").Errorf("session signing secret is not configured")
	}
	if ttl <= 0 {
		ttl = SessionTokenTTL
	}
	return &SessionIssuer{
		secret: secret,
		ttl:    ttl,
		now:    time.Now,
	}, nil
}

// Issue mints a signed HS256 token for the user, expiring after the
// issuer's TTL.
func (i *SessionIssuer) Issue(userID ulid.ULID) (string, error) {
	now := i.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	})

	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", oops.Code("SESSION_SIGN_FAILED").Wrap(err)
	}
	return signed, nil
}

// Verify checks the signature and expiry of a session token and
// returns the embedded user ID. This is what request authentication
// middleware calls; no server-side state is consulted.
func (i *SessionIssuer) Verify(tokenString string) (ulid.ULID, error) {
	claims := &SessionClaims{}

	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(*jwt.Token) (any, error) { return i.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return ulid.ULID{}, oops.Code("SESSION_INVALID").Wrap(err)
	}
	if !token.Valid {
		return ulid.ULID{}, oops.Code("SESSION_INVALID").Errorf("invalid session token")
	}

	userID, err := ulid.Parse(claims.Subject)
	if err != nil {
		return ulid.ULID{}, oops.Code("SESSION_INVALID").
			With("subject", claims.Subject).
			Wrap(err)
	}
	return userID, nil
}
