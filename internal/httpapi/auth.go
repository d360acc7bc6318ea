package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/ent0n29/onesky/internal/auth"
	"github.com/ent0n29/onesky/internal/platform"
	"github.com/ent0n29/onesky/internal/store"
)

type registerRequest struct {
	Email     string `json:"email" validate:"required,email,max=254"`
	Password  string `json:"password" validate:"required,min=8,max=72"`
	FirstName string `json:"first_name" validate:"required,max=100"`
	LastName  string `json:"last_name" validate:"max=100"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type authResponse struct {
	User        platform.User     `json:"user"`
	AccessToken string            `json:"access_token"`
	ExpiresIn   int64             `json:"expires_in"`
	NewBadges   []platform.Record `json:"new_badges,omitempty"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !s.decodeValid(w, r, &req) {
		return
	}
	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		s.internalError(w, r, "hash password", err)
		return
	}
	user, err := s.store.CreateUser(r.Context(), platform.User{
		Email:        req.Email,
		FirstName:    strings.TrimSpace(req.FirstName),
		LastName:     strings.TrimSpace(req.LastName),
		PasswordHash: hash,
	})
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			respondError(w, http.StatusConflict, "email_taken", "An account with this email already exists")
			return
		}
		s.internalError(w, r, "create user", err)
		return
	}
	s.issue(w, r, http.StatusCreated, user, nil)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !s.decodeValid(w, r, &req) {
		return
	}
	user, err := s.store.Account(r.Context(), req.Email)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		s.internalError(w, r, "load account", err)
		return
	}
	if err != nil || !auth.CheckPassword(user.PasswordHash, req.Password) {
		respondError(w, http.StatusUnauthorized, "invalid_credentials", "Invalid email or password")
		return
	}
	s.issue(w, r, http.StatusOK, user, s.award(r.Context(), user.ID))
}

func (s *Server) issue(w http.ResponseWriter, r *http.Request, status int, user platform.User, badges []platform.Record) {
	token, err := s.tokens.Issue(user.Email, user.FirstName)
	if err != nil {
		s.internalError(w, r, "issue token", err)
		return
	}
	s.tokens.SetCookie(w, token, s.cfg.CookieSecure)
	respondJSON(w, status, authResponse{
		User:        user,
		AccessToken: token,
		ExpiresIn:   int64(s.tokens.TTL().Seconds()),
		NewBadges:   badges,
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, _ *http.Request) {
	auth.ClearCookie(w, s.cfg.CookieSecure)
	respondJSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.FromContext(r.Context())
	respondJSON(w, http.StatusOK, map[string]string{
		"email":      id.Email,
		"first_name": id.FirstName,
	})
}
