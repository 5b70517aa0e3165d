package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/willibrandon/gonuget-server/db"
)

type registrationRequest struct {
	Username string `json:"username"`
	Fullname string `json:"fullname"`
	Mail     string `json:"mail"`
	Password string `json:"password"`
}

type apiKeyResponse struct {
	Username string `json:"username"`
	APIKey   string `json:"apikey"`
}

// register creates an account and hands out its first API key. The
// endpoint is only live when auth.open_for_registration is set.
func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	if !s.openForSignup {
		http.Error(w, "registration is closed", http.StatusForbidden)
		return
	}

	var req registrationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed request body", http.StatusBadRequest)
		return
	}
	if req.Username == "" || req.Password == "" {
		http.Error(w, "username and password are required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	user, err := db.Register(ctx, s.db, s.directory, req.Username, req.Fullname, req.Mail, req.Password)
	if err != nil {
		if errors.Is(err, db.ErrUserAlreadyExists) {
			http.Error(w, "username is taken", http.StatusConflict)
			return
		}
		s.internalError(w, r, err)
		return
	}
	if err := user.GenerateAPIKey(ctx, s.db); err != nil {
		s.internalError(w, r, err)
		return
	}

	s.logger.Info("Registered user {User}", user.ID)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(apiKeyResponse{Username: user.ID, APIKey: *user.APIKey})
}

// issueAPIKey trades Basic credentials for a fresh API key, replacing
// any previous one. LDAP accounts are provisioned on first login.
func (s *Server) issueAPIKey(w http.ResponseWriter, r *http.Request) {
	username, password, ok := r.BasicAuth()
	if !ok {
		w.Header().Set("WWW-Authenticate", `Basic realm="feed"`)
		http.Error(w, "credentials required", http.StatusUnauthorized)
		return
	}

	ctx := r.Context()
	authenticated, err := db.Login(ctx, s.db, s.directory, s.logger, username, password)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	if !authenticated {
		http.Error(w, "login failed", http.StatusUnauthorized)
		return
	}

	user, err := db.GetUser(ctx, s.db, username)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	if err := user.GenerateAPIKey(ctx, s.db); err != nil {
		s.internalError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(apiKeyResponse{Username: user.ID, APIKey: *user.APIKey})
}
