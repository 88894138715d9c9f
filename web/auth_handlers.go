package web

import (
	"encoding/json"
	stderrors "errors"
	"net/http"

	"github.com/SK-Rookies-Final-Project/Backend/errors"
	"github.com/SK-Rookies-Final-Project/Backend/pkg/retry"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Username string `json:"username"`
	Token    string `json:"token"`
}

// handleLogin verifies the caller's own bus credentials against the broker,
// caches them for consumer starts, and issues an access token.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil ||
		req.Username == "" || req.Password == "" {
		writeJSONError(w, http.StatusBadRequest, "username and password are required")
		return
	}

	// Transient broker trouble retries briefly; a credential rejection does
	// not.
	err := retry.Do(r.Context(), retry.Quick(), func() error {
		verr := s.verifier.VerifyCredentials(r.Context(), req.Username, req.Password)
		if stderrors.Is(verr, errors.ErrAuthRejected) {
			return retry.NonRetryable(verr)
		}
		return verr
	})
	if err != nil {
		if stderrors.Is(err, errors.ErrAuthRejected) {
			s.logger.Info("login rejected", "username", req.Username)
			writeJSONError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		s.logger.Warn("login verification unavailable", "username", req.Username, "error", err)
		writeJSONError(w, http.StatusServiceUnavailable, "broker unavailable")
		return
	}

	if err := s.creds.Store(r.Context(), req.Username, req.Password); err != nil {
		s.logger.Error("credential cache write failed", "username", req.Username, "error", err)
		writeJSONError(w, http.StatusInternalServerError, "credential cache unavailable")
		return
	}

	token, err := s.tokens.Issue(req.Username)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "token issuance failed")
		return
	}

	s.logger.Info("login succeeded", "username", req.Username)
	writeJSON(w, http.StatusOK, loginResponse{Username: req.Username, Token: token})
}

// handleLogout revokes the caller's token and tears down every stream they
// own, which also purges their cached credential.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	username, err := s.identity(r)
	if err != nil {
		writeJSONError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	s.tokens.Revoke(bearerToken(r))
	s.registry.CloseAllForUser(r.Context(), username)

	s.logger.Info("logout", "username", username)
	writeJSON(w, http.StatusOK, map[string]string{"status": "logged out"})
}

type disconnectRequest struct {
	ConnectionID string `json:"connection_id,omitempty"`
}

// handleDisconnect closes one connection when a qualifier is given,
// otherwise every connection the caller owns across all categories.
func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	username, err := s.identity(r)
	if err != nil {
		writeJSONError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req disconnectRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req) // empty body means close all
	}

	if req.ConnectionID != "" {
		if err := s.registry.CloseConnection(r.Context(), username, req.ConnectionID); err != nil {
			writeJSONError(w, http.StatusNotFound, "unknown connection")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "disconnected"})
		return
	}

	s.registry.CloseAllForUser(r.Context(), username)
	writeJSON(w, http.StatusOK, map[string]string{"status": "all disconnected"})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
