package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/hatomail/hato/logger"
	"github.com/hatomail/hato/store"
)

// accountSummary is the public view of a stored account. Credentials never
// leave through the unauthenticated listing.
type accountSummary struct {
	Email string `json:"email"`
}

type importRequest struct {
	Accounts  []store.Account `json:"accounts"`
	MergeMode string          `json:"merge_mode"`
}

type parseImportTextRequest struct {
	Text string `json:"text"`
}

// exportFile is the txt export payload: content plus a suggested download
// name.
type exportFile struct {
	Content  string `json:"content"`
	Filename string `json:"filename"`
}

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.store.List(r.Context())
	if err != nil {
		logger.Errorf("HTTP API: error listing accounts: %v", err)
		s.writeError(w, http.StatusInternalServerError, "account list failed")
		return
	}

	summaries := make([]accountSummary, 0, len(accounts))
	for _, account := range accounts {
		summaries = append(summaries, accountSummary{Email: account.Email})
	}

	s.writeData(w, http.StatusOK, summaries, fmt.Sprintf("%d accounts", len(summaries)))
}

func (s *Server) handleAddAccount(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	var account store.Account
	if err := json.NewDecoder(r.Body).Decode(&account); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	account.Email = strings.TrimSpace(account.Email)
	if !account.Valid() {
		s.writeError(w, http.StatusBadRequest, "email and refresh_token are required")
		return
	}

	if err := s.store.Create(r.Context(), account); err != nil {
		s.writeServiceError(w, "account create", err)
		return
	}

	s.writeData(w, http.StatusCreated, nil, fmt.Sprintf("account %s added", account.Email))
}

func (s *Server) handleUpdateAccount(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	email := mux.Vars(r)["email"]

	var account store.Account
	if err := json.NewDecoder(r.Body).Decode(&account); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	account.Email = strings.TrimSpace(account.Email)
	if account.Email == "" {
		account.Email = email
	}
	if account.RefreshToken == "" {
		s.writeError(w, http.StatusBadRequest, "refresh_token is required")
		return
	}

	existing, err := s.store.Get(r.Context(), email)
	if err != nil {
		s.writeServiceError(w, "account update", err)
		return
	}
	// An empty password or client ID keeps the stored value.
	if account.Password == "" {
		account.Password = existing.Password
	}
	if account.ClientID == "" {
		account.ClientID = existing.ClientID
	}

	if err := s.store.Update(r.Context(), email, account); err != nil {
		s.writeServiceError(w, "account update", err)
		return
	}

	if account.Email != email {
		// The client cached under the old address would never be used again.
		s.mailboxes.Teardown(email)
	}

	s.writeData(w, http.StatusOK, nil, fmt.Sprintf("account %s updated", account.Email))
}

func (s *Server) handleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	email := mux.Vars(r)["email"]

	if err := s.store.Delete(r.Context(), email); err != nil {
		s.writeServiceError(w, "account delete", err)
		return
	}
	s.mailboxes.Teardown(email)

	s.writeData(w, http.StatusOK, nil, fmt.Sprintf("account %s deleted", email))
}

func (s *Server) handleImportAccounts(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	var req importRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	mode, err := store.ParseMergeMode(req.MergeMode)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	existing, err := s.store.List(r.Context())
	if err != nil {
		logger.Errorf("HTTP API: error loading accounts for import: %v", err)
		s.writeError(w, http.StatusInternalServerError, "account import failed")
		return
	}

	merged, result := store.Merge(existing, req.Accounts, mode)

	// Nothing changed means nothing to persist; an all-errors batch must
	// not clobber the stored set.
	if result.Success && (result.AddedCount > 0 || result.UpdatedCount > 0) {
		if err := s.store.ReplaceAll(r.Context(), merged); err != nil {
			logger.Errorf("HTTP API: error saving imported accounts: %v", err)
			result.Success = false
			result.Message += ", but saving failed"
		}
	}

	// The import result is its own contract, not wrapped in the envelope.
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleExportAccounts(w http.ResponseWriter, r *http.Request) {
	format := strings.ToLower(r.URL.Query().Get("format"))
	if format == "" {
		format = "txt"
	}

	accounts, err := s.store.List(r.Context())
	if err != nil {
		logger.Errorf("HTTP API: error loading accounts for export: %v", err)
		s.writeError(w, http.StatusInternalServerError, "account export failed")
		return
	}

	switch format {
	case "json":
		payload := store.ExportJSON(accounts, s.defaultClientID, time.Now())
		s.writeData(w, http.StatusOK, payload, fmt.Sprintf("exported %d accounts", len(accounts)))
	case "txt":
		payload := exportFile{
			Content:  store.RenderAccountsFile(accounts, s.defaultClientID, nil),
			Filename: "accounts_" + time.Now().Format("20060102_150405") + ".txt",
		}
		s.writeData(w, http.StatusOK, payload, fmt.Sprintf("exported %d accounts", len(accounts)))
	default:
		s.writeError(w, http.StatusBadRequest, "format must be txt or json")
	}
}

func (s *Server) handleParseImportText(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	var req parseImportTextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if strings.TrimSpace(req.Text) == "" {
		s.writeError(w, http.StatusBadRequest, "text is required")
		return
	}

	result := store.ParseImportText(req.Text, s.defaultClientID)

	message := fmt.Sprintf("parsed %d accounts", result.ParsedCount)
	if result.ErrorCount > 0 {
		message = fmt.Sprintf("parsed %d accounts, %d lines failed", result.ParsedCount, result.ErrorCount)
	}
	s.writeData(w, http.StatusOK, result, message)
}
