package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/hatomail/hato/store"
)

type adminTokenRequest struct {
	Token string `json:"token"`
}

type adminDeleteAccountRequest struct {
	Email string `json:"email"`
}

// handleAdminVerify lets the admin frontend validate a token before it
// stores one for the session.
func (s *Server) handleAdminVerify(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	var req adminTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if !s.verifyAdminToken(req.Token) {
		s.writeError(w, http.StatusUnauthorized, "invalid admin token")
		return
	}

	s.writeData(w, http.StatusOK, nil, "token accepted")
}

func (s *Server) handleAdminDeleteAccount(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	var req adminDeleteAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Email == "" {
		s.writeError(w, http.StatusBadRequest, "email is required")
		return
	}

	if err := s.store.Delete(r.Context(), req.Email); err != nil {
		s.writeServiceError(w, "account delete", err)
		return
	}
	s.mailboxes.Teardown(req.Email)

	s.writeData(w, http.StatusOK, nil, fmt.Sprintf("account %s deleted", req.Email))
}

// handleAdminExport returns the full credential file, refresh tokens
// included. The admin token guard on the subrouter is the only thing
// between this and the world.
func (s *Server) handleAdminExport(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.store.List(r.Context())
	if err != nil {
		s.writeServiceError(w, "account export", err)
		return
	}

	if len(accounts) == 0 {
		s.writeError(w, http.StatusNotFound, "no accounts to export")
		return
	}

	content := store.RenderAdminExport(accounts, s.defaultClientID, time.Now())
	s.writeData(w, http.StatusOK, content, fmt.Sprintf("exported %d accounts", len(accounts)))
}
