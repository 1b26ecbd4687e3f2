// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyfold Contributors

// Package mail delivers password reset notifications over SMTP.
package mail

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/samber/oops"
)

// resetSubject is the subject line of the password reset mail.
const resetSubject = "Password-Reset-Link"

// resetBodyFormat is the HTML body of the reset mail. The first verb is
// the recipient address, the second the reset link.
const resetBodyFormat = `<p> Dear %s, </p>
<p>Sorry to hear you're having trouble logging into your account. We got a message that you forgot your password. If this was you, you can get right back into your account or reset your password now. </p>
<p> Click the following Link to reset your password: <a href="%s">Reset Password</a> </p>
<p>If you didn't request a login link or a password reset, you can ignore this message. </p>
<p> Only people who know your account password or click the login link in this email can log into your account. </p>`

// SMTPConfig holds the SMTP transport settings.
type SMTPConfig struct {
	Addr     string // host:port of the SMTP server
	From     string // sender address
	Username string
	Password string
}

// sendFunc matches smtp.SendMail, injectable for tests.
type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPMailer sends reset mails through an SMTP relay. It implements
// auth.ResetMailer.
type SMTPMailer struct {
	cfg  SMTPConfig
	send sendFunc
}

// NewSMTPMailer creates an SMTPMailer.
func NewSMTPMailer(cfg SMTPConfig) (*SMTPMailer, error) {
	if cfg.Addr == "" {
		return nil, oops.Code("MAIL_NO_ADDR").Errorf("smtp address is not configured")
	}
	if cfg.From == "" {
		return nil, oops.Code("MAIL_NO_FROM").Errorf("smtp sender address is not configured")
	}
	return &SMTPMailer{cfg: cfg, send: smtp.SendMail}, nil
}

// SendResetMail sends the password reset link to the recipient. The
// context is consulted before dialing; net/smtp itself does not take one.
func (m *SMTPMailer) SendResetMail(ctx context.Context, recipient, resetLink string) error {
	if err := ctx.Err(); err != nil {
		return oops.Code("MAIL_SEND_FAILED").Wrap(err)
	}

	msg := composeResetMessage(m.cfg.From, recipient, resetLink)

	var a smtp.Auth
	if m.cfg.Username != "" {
		host := m.cfg.Addr
		if i := strings.IndexByte(host, ':'); i >= 0 {
			host = host[:i]
		}
		a = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, host)
	}

	if err := m.send(m.cfg.Addr, a, m.cfg.From, []string{recipient}, msg); err != nil {
		return oops.Code("MAIL_SEND_FAILED").
			With("recipient", recipient).
			Wrap(err)
	}
	return nil
}

// composeResetMessage builds the full RFC 5322 message bytes.
func composeResetMessage(from, to, resetLink string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", resetSubject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	b.WriteString("\r\n")
	fmt.Fprintf(&b, resetBodyFormat, to, resetLink)
	b.WriteString("\r\n")
	return []byte(b.String())
}
