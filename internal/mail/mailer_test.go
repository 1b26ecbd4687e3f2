// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyfold Contributors

package mail

import (
	"context"
	"errors"
	"net/smtp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSMTPMailer(t *testing.T) {
	t.Run("valid config", func(t *testing.T) {
		m, err := NewSMTPMailer(SMTPConfig{Addr: "smtp.example.com:587", From: "noreply@example.com"})
		require.NoError(t, err)
		require.NotNil(t, m)
	})

	t.Run("missing address", func(t *testing.T) {
		m, err := NewSMTPMailer(SMTPConfig{From: "noreply@example.com"})
		require.Error(t, err)
		assert.Nil(t, m)
		assert.Contains(t, err.Error(), "smtp address is not configured")
	})

	t.Run("missing sender", func(t *testing.T) {
		m, err := NewSMTPMailer(SMTPConfig{Addr: "smtp.example.com:587"})
		require.Error(t, err)
		assert.Nil(t, m)
		assert.Contains(t, err.Error(), "smtp sender address is not configured")
	})
}

func TestSMTPMailer_SendResetMail(t *testing.T) {
	ctx := context.Background()

	t.Run("sends to the recipient through the configured relay", func(t *testing.T) {
		m, err := NewSMTPMailer(SMTPConfig{Addr: "smtp.example.com:587", From: "noreply@example.com"})
		require.NoError(t, err)

		var (
			gotAddr string
			gotAuth smtp.Auth
			gotFrom string
			gotTo   []string
			gotMsg  []byte
		)
		m.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
			gotAddr, gotAuth, gotFrom, gotTo, gotMsg = addr, a, from, to, msg
			return nil
		}

		err = m.SendResetMail(ctx, "alice@example.com", "https://app.example.com/reset-password/abc123")
		require.NoError(t, err)

		assert.Equal(t, "smtp.example.com:587", gotAddr)
		assert.Nil(t, gotAuth, "no auth without a username")
		assert.Equal(t, "noreply@example.com", gotFrom)
		assert.Equal(t, []string{"alice@example.com"}, gotTo)
		assert.Contains(t, string(gotMsg), "https://app.example.com/reset-password/abc123")
	})

	t.Run("uses plain auth when a username is configured", func(t *testing.T) {
		m, err := NewSMTPMailer(SMTPConfig{
			Addr:     "smtp.example.com:587",
			From:     "noreply@example.com",
			Username: "mailer",
			Password: "hunter2",
		})
		require.NoError(t, err)

		var gotAuth smtp.Auth
		m.send = func(_ string, a smtp.Auth, _ string, _ []string, _ []byte) error {
			gotAuth = a
			return nil
		}

		require.NoError(t, m.SendResetMail(ctx, "alice@example.com", "https://example.com/r/t"))
		assert.NotNil(t, gotAuth)
	})

	t.Run("relay failure is reported", func(t *testing.T) {
		m, err := NewSMTPMailer(SMTPConfig{Addr: "smtp.example.com:587", From: "noreply@example.com"})
		require.NoError(t, err)

		m.send = func(string, smtp.Auth, string, []string, []byte) error {
			return errors.New("550 mailbox unavailable")
		}

		err = m.SendResetMail(ctx, "alice@example.com", "https://example.com/r/t")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "550 mailbox unavailable")
	})

	t.Run("cancelled context aborts before dialing", func(t *testing.T) {
		m, err := NewSMTPMailer(SMTPConfig{Addr: "smtp.example.com:587", From: "noreply@example.com"})
		require.NoError(t, err)

		called := false
		m.send = func(string, smtp.Auth, string, []string, []byte) error {
			called = true
			return nil
		}

		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		err = m.SendResetMail(cancelled, "alice@example.com", "https://example.com/r/t")
		require.Error(t, err)
		assert.ErrorIs(t, err, context.Canceled)
		assert.False(t, called, "send must not run after cancellation")
	})
}

func TestComposeResetMessage(t *testing.T) {
	msg := string(composeResetMessage("noreply@example.com", "alice@example.com", "https://example.com/reset-password/tok"))

	headers, body, found := strings.Cut(msg, "\r\n\r\n")
	require.True(t, found, "message must separate headers from body")

	assert.Contains(t, headers, "From: noreply@example.com")
	assert.Contains(t, headers, "To: alice@example.com")
	assert.Contains(t, headers, "Subject: Password-Reset-Link")
	assert.Contains(t, headers, "Content-Type: text/html")

	assert.Contains(t, body, "Dear alice@example.com")
	assert.Contains(t, body, `<a href="https://example.com/reset-password/tok">Reset Password</a>`)
}
