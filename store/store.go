// Package store persists mailbox account credentials. Three backends share
// one interface: a plain text file compatible with the legacy config.txt
// format, an embedded sqlite database, and postgres for shared deployments.
package store

import (
	"context"
	"fmt"

	"github.com/hatomail/hato/config"
)

// Account is one mailbox credential record. ClientID is empty when the
// account uses the configured default client; a non-empty value is a
// per-account override and round-trips through every backend.
type Account struct {
	Email        string `json:"email"`
	Password     string `json:"password,omitempty"`
	ClientID     string `json:"client_id,omitempty"`
	RefreshToken string `json:"refresh_token"`
}

// Valid reports whether the record carries the minimum required fields.
func (a Account) Valid() bool {
	return a.Email != "" && a.RefreshToken != ""
}

// Store is the account credential store.
//
// Implementations return consts.ErrAccountNotFound and
// consts.ErrAccountExists for the corresponding conditions so callers can
// map them without knowing the backend.
type Store interface {
	// List returns all accounts. File order for the file backend,
	// address order for the database backends.
	List(ctx context.Context) ([]Account, error)

	// Get returns the account for an address.
	Get(ctx context.Context, email string) (Account, error)

	// Create adds a new account and refuses to overwrite an existing one.
	Create(ctx context.Context, account Account) error

	// Update replaces the record stored under email. The new record may
	// carry a different address, which renames the account.
	Update(ctx context.Context, email string, account Account) error

	// Delete removes an account.
	Delete(ctx context.Context, email string) error

	// ReplaceAll atomically replaces the full account set. Import and
	// merge flows write their results through this.
	ReplaceAll(ctx context.Context, accounts []Account) error

	Close() error
}

// Open builds the store selected by the accounts configuration. The default
// client ID is needed by the file backend to render and normalize the
// client_id column.
func Open(ctx context.Context, cfg *config.Config) (Store, error) {
	switch cfg.Accounts.Backend {
	case "file":
		return NewFileStore(cfg.Accounts.Path, cfg.OAuth.ClientID), nil
	case "sqlite":
		return OpenSQLiteStore(ctx, cfg.Accounts.Path)
	case "postgres":
		return OpenPostgresStore(ctx, cfg.Accounts.Postgres)
	default:
		return nil, fmt.Errorf("unknown accounts backend %q", cfg.Accounts.Backend)
	}
}
