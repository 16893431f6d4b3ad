package mailbox

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/hatomail/hato/auth"
	"github.com/hatomail/hato/config"
	"github.com/hatomail/hato/consts"
	"github.com/hatomail/hato/logger"
	"github.com/hatomail/hato/pkg/metrics"
	"github.com/hatomail/hato/store"
)

// SessionManager hands out at most one AccountClient per stored account.
// The account store is consulted before every top-level operation, so
// out-of-band edits (new accounts, rotated refresh tokens, deletions) take
// effect on the next request without a restart.
type SessionManager struct {
	cfg      *config.Config
	store    store.Store
	archiver Archiver

	mu      sync.Mutex
	clients map[string]*AccountClient

	// newClient is replaced in tests to inject fake sessions.
	newClient func(creds auth.Credentials) *AccountClient
}

func NewSessionManager(cfg *config.Config, st store.Store, archiver Archiver) *SessionManager {
	m := &SessionManager{
		cfg:      cfg,
		store:    st,
		archiver: archiver,
		clients:  make(map[string]*AccountClient),
	}
	m.newClient = func(creds auth.Credentials) *AccountClient {
		return NewAccountClient(creds, m.clientOptions())
	}
	return m
}

func (m *SessionManager) clientOptions() ClientOptions {
	attemptTimeout, err := m.cfg.Mail.GetAttemptTimeout()
	if err != nil {
		attemptTimeout = consts.ConnectAttemptTimeout
	}
	retryPause, err := m.cfg.Mail.GetRetryPause()
	if err != nil {
		retryPause = consts.ConnectRetryPause
	}
	return ClientOptions{
		Server:          m.cfg.Mail.Server,
		Mailbox:         m.cfg.Mail.Mailbox,
		ConnectAttempts: m.cfg.Mail.ConnectAttempts,
		AttemptTimeout:  attemptTimeout,
		RetryPause:      retryPause,
		Auth: auth.Options{
			Scope:             m.cfg.OAuth.Scope,
			TokenEndpoint:     m.cfg.OAuth.TokenEndpoint,
			AuthorizeEndpoint: m.cfg.OAuth.AuthorizeEndpoint,
		},
		Archiver: m.archiver,
	}
}

// resolve turns a stored account into credentials with the client ID
// resolved against the configured default.
func (m *SessionManager) resolve(account store.Account) auth.Credentials {
	clientID := account.ClientID
	if clientID == "" {
		clientID = m.cfg.OAuth.ClientID
	}
	return auth.Credentials{
		Email:        account.Email,
		RefreshToken: account.RefreshToken,
		ClientID:     clientID,
	}
}

// Get returns the live client for a stored account, creating one on first
// use and rebuilding it when the stored credentials changed. An address
// missing from the store evicts any cached client and reports
// NotFoundError.
func (m *SessionManager) Get(ctx context.Context, email string) (*AccountClient, error) {
	account, err := m.store.Get(ctx, email)
	if err != nil {
		if errors.Is(err, consts.ErrAccountNotFound) {
			m.Teardown(email)
			return nil, &NotFoundError{Kind: "account", ID: email}
		}
		return nil, err
	}
	creds := m.resolve(account)

	m.mu.Lock()
	defer m.mu.Unlock()

	if client, ok := m.clients[email]; ok {
		if client.creds == creds {
			return client, nil
		}
		// Stored credentials changed; the cached token state is stale.
		logger.Infof("credentials changed for %s, rebuilding client", email)
		delete(m.clients, email)
	}

	client := m.newClient(creds)
	m.clients[email] = client
	metrics.ActiveClients.Set(float64(len(m.clients)))
	logger.Debugf("account client created for %s (%d live)", email, len(m.clients))
	return client, nil
}

// ListMessages lists the newest limit messages for a stored account.
func (m *SessionManager) ListMessages(ctx context.Context, email, mailbox string, limit int) ([]*Envelope, error) {
	client, err := m.Get(ctx, email)
	if err != nil {
		return nil, err
	}
	envelopes, err := client.ListMessages(ctx, mailbox, limit)
	return envelopes, classifyError(email, err)
}

// GetMessageDetail fetches one full message for a stored account.
func (m *SessionManager) GetMessageDetail(ctx context.Context, email, id string) (*Detail, error) {
	client, err := m.Get(ctx, email)
	if err != nil {
		return nil, err
	}
	detail, err := client.GetMessageDetail(ctx, id)
	return detail, classifyError(email, err)
}

// ListMessagesEphemeral lists messages with caller-supplied credentials.
// The client is built for this call only and never enters the cache, so
// concurrent ephemeral requests with different client IDs cannot interfere.
func (m *SessionManager) ListMessagesEphemeral(ctx context.Context, creds auth.Credentials, mailbox string, limit int) ([]*Envelope, error) {
	client := m.newClient(m.resolveEphemeral(creds))
	envelopes, err := client.ListMessages(ctx, mailbox, limit)
	return envelopes, classifyError(creds.Email, err)
}

// GetMessageDetailEphemeral fetches one message with caller-supplied
// credentials, bypassing the store and the client cache.
func (m *SessionManager) GetMessageDetailEphemeral(ctx context.Context, creds auth.Credentials, id string) (*Detail, error) {
	client := m.newClient(m.resolveEphemeral(creds))
	detail, err := client.GetMessageDetail(ctx, id)
	return detail, classifyError(creds.Email, err)
}

func (m *SessionManager) resolveEphemeral(creds auth.Credentials) auth.Credentials {
	if creds.ClientID == "" {
		creds.ClientID = m.cfg.OAuth.ClientID
	}
	return creds
}

// Teardown drops the cached client for an address, if any. Clients hold no
// persistent connections, so dropping one only discards cached token state.
func (m *SessionManager) Teardown(email string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.clients[email]; ok {
		delete(m.clients, email)
		metrics.ActiveClients.Set(float64(len(m.clients)))
		logger.Debugf("account client dropped for %s", email)
	}
}

// TeardownAll drops every cached client. Called at shutdown and when the
// account set is cleared wholesale.
func (m *SessionManager) TeardownAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.clients)
	m.clients = make(map[string]*AccountClient)
	metrics.ActiveClients.Set(0)
	if n > 0 {
		logger.Infof("dropped %d account clients", n)
	}
}

// classifyError upgrades connection failures rooted in credential problems
// to authentication errors, so callers prompt for re-authorization instead
// of retrying a connection that can never succeed.
func classifyError(email string, err error) error {
	if err == nil {
		return nil
	}
	var authErr *auth.Error
	if errors.As(err, &authErr) {
		return err
	}
	var connErr *ConnectError
	if !errors.As(err, &connErr) {
		return err
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"token", "credential", "authenticate"} {
		if strings.Contains(msg, marker) {
			return &auth.Error{
				Email: email,
				Cause: "mail server rejected the credentials, re-authorize this account",
				Err:   err,
			}
		}
	}
	return err
}
