package http

import (
	"net/http"
	"strings"
)

type credentialsRequest struct {
	Account  string `json:"account"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type userSummary struct {
	ID      int64  `json:"id"`
	Account string `json:"account"`
	IsAdmin bool   `json:"is_admin"`
}

type loginResponse struct {
	Success      bool        `json:"success"`
	User         userSummary `json:"user"`
	AccessToken  string      `json:"access_token"`
	RefreshToken string      `json:"refresh_token"`
}

type tokenResponse struct {
	Success      bool   `json:"success"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeFailure(w, r, err)
		return
	}

	if _, err := s.deps.Accounts.Register(r.Context(), strings.TrimSpace(req.Account), strings.TrimSpace(req.Password)); err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.deps.Stats.Invalidate(r.Context())

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Registration successful"})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeFailure(w, r, err)
		return
	}

	a, pair, err := s.deps.Accounts.Login(r.Context(), strings.TrimSpace(req.Account), strings.TrimSpace(req.Password))
	if err != nil {
		if statusIs(err, http.StatusUnauthorized) {
			writeError(w, http.StatusUnauthorized, "invalid account or password")
			return
		}
		s.writeFailure(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{
		Success:      true,
		User:         userSummary{ID: a.ID, Account: a.Account, IsAdmin: a.IsAdmin},
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeFailure(w, r, err)
		return
	}
	if req.RefreshToken == "" {
		writeError(w, http.StatusBadRequest, "refresh_token is required")
		return
	}

	pair, err := s.deps.Accounts.RefreshToken(r.Context(), req.RefreshToken)
	if err != nil {
		if statusIs(err, http.StatusUnauthorized) {
			writeError(w, http.StatusUnauthorized, "invalid refresh token")
			return
		}
		s.writeFailure(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, tokenResponse{Success: true, AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeFailure(w, r, err)
		return
	}
	if req.RefreshToken != "" {
		if err := s.deps.Accounts.Logout(r.Context(), req.RefreshToken); err != nil {
			s.writeFailure(w, r, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func statusIs(err error, status int) bool {
	got, _ := statusFor(err)
	return got == status
}

