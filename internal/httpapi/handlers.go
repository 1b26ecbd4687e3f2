// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyfold Contributors

// Package httpapi maps credential lifecycle outcomes onto HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/keyfold/keyfold/internal/auth"
	"github.com/keyfold/keyfold/internal/observability"
	"github.com/keyfold/keyfold/pkg/errutil"
)

// CredentialService is the subset of the credential service the
// handlers need.
type CredentialService interface {
	Register(ctx context.Context, email, password string) (*auth.User, error)
	Login(ctx context.Context, email, password string) (string, error)
}

// ResetService is the subset of the password reset service the
// handlers need.
type ResetService interface {
	RequestReset(ctx context.Context, email string) error
	ConsumeReset(ctx context.Context, token, newPassword string) error
}

// Handler serves the credential lifecycle endpoints.
type Handler struct {
	credentials CredentialService
	resets      ResetService
	metrics     *observability.Metrics
	logger      *slog.Logger
}

// NewHandler creates a Handler. metrics may be nil; logger may be nil,
// in which case slog.Default is used.
func NewHandler(credentials CredentialService, resets ResetService, metrics *observability.Metrics, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		credentials: credentials,
		resets:      resets,
		metrics:     metrics,
		logger:      logger,
	}
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type emailRequest struct {
	Email string `json:"email"`
}

type passwordRequest struct {
	Password string `json:"password"`
}

type messageResponse struct {
	Message string `json:"message"`
	Token   string `json:"token,omitempty"`
}

// Register handles POST /register.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !h.decode(w, r, &req) {
		return
	}
	if auth.ValidateEmail(req.Email) != nil {
		writeError(w, http.StatusBadRequest, "email is not a valid address")
		return
	}

	_, err := h.credentials.Register(r.Context(), req.Email, req.Password)
	switch {
	case err == nil:
		h.countRegistration("created")
		writeJSON(w, http.StatusCreated, messageResponse{Message: "User registered successfully."})
	case errors.Is(err, auth.ErrEmailTaken):
		h.countRegistration("conflict")
		writeError(w, http.StatusConflict, auth.ErrEmailTaken.Error())
	case errors.Is(err, auth.ErrWeakPassword):
		h.countRegistration("rejected")
		writeError(w, http.StatusBadRequest, auth.ErrWeakPassword.Error())
	default:
		h.countRegistration("error")
		h.internalError(w, "register failed", err)
	}
}

// Login handles POST /login.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !h.decode(w, r, &req) {
		return
	}

	token, err := h.credentials.Login(r.Context(), req.Email, req.Password)
	switch {
	case err == nil:
		h.countLogin("success")
		writeJSON(w, http.StatusOK, messageResponse{Message: "Login successful", Token: token})
	case errors.Is(err, auth.ErrInvalidCredentials):
		h.countLogin("invalid_credentials")
		writeError(w, http.StatusUnauthorized, auth.ErrInvalidCredentials.Error())
	default:
		h.countLogin("error")
		h.internalError(w, "login failed", err)
	}
}

// ForgotPassword handles POST /forgot-password.
func (h *Handler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if !h.decode(w, r, &req) {
		return
	}

	err := h.resets.RequestReset(r.Context(), req.Email)
	switch {
	case err == nil:
		if h.metrics != nil {
			h.metrics.ResetsIssuedTotal.Inc()
		}
		writeJSON(w, http.StatusCreated, messageResponse{Message: "Password reset mail sent successfully"})
	case errors.Is(err, auth.ErrNotFound):
		writeError(w, http.StatusNotFound, "User not found.")
	case errors.Is(err, auth.ErrDeliveryFailed):
		// The token is already persisted; only the delivery failed.
		errutil.LogError(h.logger, "reset mail delivery failed", err)
		writeError(w, http.StatusInternalServerError, auth.ErrDeliveryFailed.Error())
	default:
		h.internalError(w, "reset request failed", err)
	}
}

// ResetPassword handles POST /reset-password/{token}.
func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")

	var req passwordRequest
	if !h.decode(w, r, &req) {
		return
	}

	err := h.resets.ConsumeReset(r.Context(), token, req.Password)
	switch {
	case err == nil:
		h.countResetConsumed("updated")
		writeJSON(w, http.StatusOK, messageResponse{Message: "Password has been updated."})
	case errors.Is(err, auth.ErrResetTokenInvalid):
		h.countResetConsumed("invalid")
		writeError(w, http.StatusBadRequest, auth.ErrResetTokenInvalid.Error())
	case errors.Is(err, auth.ErrWeakPassword):
		h.countResetConsumed("rejected")
		writeError(w, http.StatusBadRequest, auth.ErrWeakPassword.Error())
	default:
		h.countResetConsumed("error")
		h.internalError(w, "reset consumption failed", err)
	}
}

// decode parses the JSON request body, answering 400 on malformed input.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// internalError logs the real cause and answers with a generic message
// so internals never leak to the client.
func (h *Handler) internalError(w http.ResponseWriter, msg string, err error) {
	errutil.LogError(h.logger, msg, err)
	writeError(w, http.StatusInternalServerError, "Internal Server Error")
}

func (h *Handler) countRegistration(outcome string) {
	if h.metrics != nil {
		h.metrics.RegistrationsTotal.WithLabelValues(outcome).Inc()
	}
}

func (h *Handler) countLogin(outcome string) {
	if h.metrics != nil {
		h.metrics.LoginsTotal.WithLabelValues(outcome).Inc()
	}
}

func (h *Handler) countResetConsumed(outcome string) {
	if h.metrics != nil {
		h.metrics.ResetsConsumed.WithLabelValues(outcome).Inc()
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	//nolint:errcheck // response write error means the client went away
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, messageResponse{Message: msg})
}
