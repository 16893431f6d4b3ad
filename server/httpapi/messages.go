package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/hatomail/hato/auth"
)

// tempMessagesRequest carries caller-supplied credentials for a one-off
// listing. Password is accepted for compatibility with stored-account
// payloads; the IMAP session only uses the OAuth token.
type tempMessagesRequest struct {
	Email        string `json:"email"`
	Password     string `json:"password"`
	ClientID     string `json:"client_id"`
	RefreshToken string `json:"refresh_token"`
	Top          *int   `json:"top"`
}

type tempMessageDetailRequest struct {
	Email        string `json:"email"`
	Password     string `json:"password"`
	ClientID     string `json:"client_id"`
	RefreshToken string `json:"refresh_token"`
	MessageID    string `json:"message_id"`
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	email := strings.TrimSpace(r.URL.Query().Get("email"))
	if email == "" {
		s.writeError(w, http.StatusBadRequest, "email query parameter is required")
		return
	}

	limit := defaultListLimit
	if raw := r.URL.Query().Get("top"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "top must be an integer")
			return
		}
		limit = n
	}

	envelopes, err := s.mailboxes.ListMessages(r.Context(), email, r.URL.Query().Get("mailbox"), limit)
	if err != nil {
		s.writeServiceError(w, "message list", err)
		return
	}

	s.writeData(w, http.StatusOK, envelopes, "")
}

func (s *Server) handleGetMessageDetail(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	email := strings.TrimSpace(r.URL.Query().Get("email"))
	if email == "" {
		s.writeError(w, http.StatusBadRequest, "email query parameter is required")
		return
	}

	detail, err := s.mailboxes.GetMessageDetail(r.Context(), email, id)
	if err != nil {
		s.writeServiceError(w, "message detail", err)
		return
	}

	// The content hash doubles as a validator: the raw message bytes behind
	// a UID never change.
	etag := `"` + detail.ContentHash + `"`
	w.Header().Set("ETag", etag)
	if ifNoneMatchSatisfied(r.Header.Get("If-None-Match"), etag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	s.writeData(w, http.StatusOK, detail, "")
}

// ifNoneMatchSatisfied reports whether an If-None-Match header matches the
// response validator. Weak comparison is fine here, the hash never changes
// for a given representation.
func ifNoneMatchSatisfied(header, etag string) bool {
	if header == "" {
		return false
	}
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimPrefix(strings.TrimSpace(candidate), "W/")
		if candidate == "*" || candidate == etag {
			return true
		}
	}
	return false
}

func (s *Server) handleTempMessages(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	var req tempMessagesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.RefreshToken == "" {
		s.writeError(w, http.StatusBadRequest, "email and refresh_token are required")
		return
	}

	limit := defaultListLimit
	if req.Top != nil {
		limit = *req.Top
	}

	creds := auth.Credentials{
		Email:        req.Email,
		RefreshToken: req.RefreshToken,
		ClientID:     req.ClientID,
	}

	envelopes, err := s.mailboxes.ListMessagesEphemeral(r.Context(), creds, "", limit)
	if err != nil {
		s.writeServiceError(w, "message list", err)
		return
	}

	s.writeData(w, http.StatusOK, envelopes, "")
}

func (s *Server) handleTempMessageDetail(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	var req tempMessageDetailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.RefreshToken == "" {
		s.writeError(w, http.StatusBadRequest, "email and refresh_token are required")
		return
	}
	if req.MessageID == "" {
		s.writeError(w, http.StatusBadRequest, "message_id is required")
		return
	}

	creds := auth.Credentials{
		Email:        req.Email,
		RefreshToken: req.RefreshToken,
		ClientID:     req.ClientID,
	}

	detail, err := s.mailboxes.GetMessageDetailEphemeral(r.Context(), creds, req.MessageID)
	if err != nil {
		s.writeServiceError(w, "message detail", err)
		return
	}

	s.writeData(w, http.StatusOK, detail, "")
}
