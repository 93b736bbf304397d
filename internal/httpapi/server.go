// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Scheduler Contributors

// Package httpapi exposes the auth operations as a thin JSON boundary.
// Handlers parse requests, delegate to the auth services, and map error
// codes to HTTP statuses; no business logic lives here.
package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/samber/oops"

	"github.com/dajbelshaw/Scheduler/internal/auth"
	"github.com/dajbelshaw/Scheduler/internal/observability"
	"github.com/dajbelshaw/Scheduler/pkg/errutil"
)

// SessionCookieName is the cookie carrying the session token.
const SessionCookieName = "scheduler_session"

// maxBodyBytes caps request bodies; auth payloads are tiny.
const maxBodyBytes = 16 << 10

// Server serves the auth HTTP API.
type Server struct {
	auth     *auth.Service
	recovery *auth.RecoveryService
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// NewServer creates a Server. metrics may be nil (e.g. in tests).
func NewServer(authSvc *auth.Service, recoverySvc *auth.RecoveryService, logger *slog.Logger, metrics *observability.Metrics) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		auth:     authSvc,
		recovery: recoverySvc,
		logger:   logger,
		metrics:  metrics,
	}
}

// Handler returns the route table for the auth API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/suggest", s.handleSuggest)
	mux.HandleFunc("POST /api/auth/signup", s.handleSignup)
	mux.HandleFunc("POST /api/auth/signin", s.handleSignin)
	mux.HandleFunc("POST /api/auth/recover", s.handleRecover)
	mux.HandleFunc("POST /api/auth/signout", s.handleSignout)
	mux.HandleFunc("GET /api/auth/me", s.handleMe)
	return mux
}

type signupRequest struct {
	EmojiID          string `json:"emoji_id,omitempty"`
	CredentialSource string `json:"credential_source"`
}

type signinRequest struct {
	EmojiID          string `json:"emoji_id"`
	CredentialSource string `json:"credential_source"`
}

type recoverRequest struct {
	EmojiID             string `json:"emoji_id"`
	Code                string `json:"code"`
	NewCredentialSource string `json:"new_credential_source,omitempty"`
}

type suggestResponse struct {
	EmojiID string `json:"emoji_id"`
}

type accountResponse struct {
	AccountID string `json:"account_id"`
	EmojiID   string `json:"emoji_id"`
}

type signupResponse struct {
	AccountID     string   `json:"account_id"`
	EmojiID       string   `json:"emoji_id"`
	RecoveryCodes []string `json:"recovery_codes"`
}

type recoverResponse struct {
	AccountID      string `json:"account_id"`
	EmojiID        string `json:"emoji_id"`
	RemainingCodes int    `json:"remaining_codes"`
	Warning        string `json:"warning,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func (s *Server) handleSuggest(w http.ResponseWriter, r *http.Request) {
	id, err := s.auth.SuggestID(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, suggestResponse{EmojiID: id})
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if !s.decode(w, r, &req) {
		return
	}

	result, err := s.auth.Signup(r.Context(), req.EmojiID, req.CredentialSource)
	if err != nil {
		s.countSignup("failed")
		s.writeError(w, err)
		return
	}
	s.countSignup("ok")

	s.setSessionCookie(w, result.Token, result.Session)
	s.writeJSON(w, http.StatusCreated, signupResponse{
		AccountID:     result.Account.ID.String(),
		EmojiID:       result.Account.EmojiID,
		RecoveryCodes: result.RecoveryCodes,
	})
}

func (s *Server) handleSignin(w http.ResponseWriter, r *http.Request) {
	var req signinRequest
	if !s.decode(w, r, &req) {
		return
	}

	result, err := s.auth.Signin(r.Context(), req.EmojiID, req.CredentialSource)
	if err != nil {
		s.countSignin("failed")
		s.writeError(w, err)
		return
	}
	s.countSignin("ok")

	s.setSessionCookie(w, result.Token, result.Session)
	s.writeJSON(w, http.StatusOK, accountResponse{
		AccountID: result.Account.ID.String(),
		EmojiID:   result.Account.EmojiID,
	})
}

func (s *Server) handleRecover(w http.ResponseWriter, r *http.Request) {
	var req recoverRequest
	if !s.decode(w, r, &req) {
		return
	}

	result, err := s.recovery.Recover(r.Context(), req.EmojiID, req.Code, req.NewCredentialSource)
	if err != nil {
		s.countRecovery("failed")
		s.writeError(w, err)
		return
	}
	s.countRecovery("ok")

	s.setSessionCookie(w, result.Token, result.Session)
	s.writeJSON(w, http.StatusOK, recoverResponse{
		AccountID:      result.Account.ID.String(),
		EmojiID:        result.Account.EmojiID,
		RemainingCodes: result.Remaining,
		Warning:        result.Warning,
	})
}

func (s *Server) handleSignout(w http.ResponseWriter, r *http.Request) {
	if err := s.auth.Signout(r.Context(), sessionToken(r)); err != nil {
		s.writeError(w, err)
		return
	}
	s.clearSessionCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	account, err := s.auth.Me(r.Context(), sessionToken(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, accountResponse{
		AccountID: account.ID.String(),
		EmojiID:   account.EmojiID,
	})
}

// sessionToken extracts the session token from the request cookie.
func sessionToken(r *http.Request) string {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

func (s *Server) setSessionCookie(w http.ResponseWriter, token string, session *auth.Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		Expires:  session.ExpiresAt,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// decode reads a JSON body into dst, writing a 400 on failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed request body"})
		return false
	}
	return true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Warn("response write failed", "error", err)
	}
}

// writeError maps service error codes to HTTP statuses. Internal errors
// are logged in full but returned as an opaque 500.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusForError(err)

	resp := errorResponse{Error: err.Error(), Code: errorCode(err)}
	if status == http.StatusInternalServerError {
		errutil.LogError(s.logger, "request failed", err)
		resp = errorResponse{Error: "internal error"}
	}
	if status == http.StatusServiceUnavailable && s.metrics != nil {
		s.metrics.AllocatorExhaustions.Inc()
	}

	s.writeJSON(w, status, resp)
}

// statusForError maps error taxonomy codes to HTTP status codes.
func statusForError(err error) int {
	switch errorCode(err) {
	case "EMOJI_ID_INVALID", "CREDENTIAL_INVALID_FORMAT", "CREDENTIAL_NOT_LIVE":
		return http.StatusBadRequest
	case "AUTH_INVALID_CREDENTIALS", "SESSION_INVALID":
		return http.StatusUnauthorized
	case "EMOJI_ID_TAKEN":
		return http.StatusConflict
	case "EMOJI_ALLOC_EXHAUSTED":
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// errorCode extracts the oops code from err, or empty string.
func errorCode(err error) string {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ""
	}
	if code, ok := oopsErr.Code().(string); ok {
		return code
	}
	return ""
}

func (s *Server) countSignup(status string) {
	if s.metrics != nil {
		s.metrics.SignupsTotal.WithLabelValues(status).Inc()
	}
}

func (s *Server) countSignin(status string) {
	if s.metrics != nil {
		s.metrics.SigninsTotal.WithLabelValues(status).Inc()
	}
}

func (s *Server) countRecovery(status string) {
	if s.metrics != nil {
		s.metrics.RecoveriesTotal.WithLabelValues(status).Inc()
	}
}
