package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4/database"
	sqlitemigrate "github.com/golang-migrate/migrate/v4/database/sqlite"
	_ "modernc.org/sqlite"

	"github.com/hatomail/hato/consts"
	"github.com/hatomail/hato/pkg/metrics"
)

// SQLiteStore keeps accounts in an embedded sqlite database. Suited to
// single-node deployments that want transactional updates without running a
// database server.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore opens (creating if needed) the database at path and
// applies pending schema migrations.
func OpenSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// A single connection sidesteps SQLITE_BUSY between writers.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	err = runMigrations(db, "sqlite", func(db *sql.DB) (database.Driver, error) {
		return sqlitemigrate.WithInstance(db, &sqlitemigrate.Config{})
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) List(ctx context.Context) ([]Account, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT email, password, client_id, refresh_token FROM accounts ORDER BY email`)
	if err != nil {
		metrics.StoreOperationsTotal.WithLabelValues("sqlite", "list", "failure").Inc()
		return nil, fmt.Errorf("%w: %v", consts.ErrStoreLoadFailed, err)
	}
	defer rows.Close()

	accounts := []Account{}
	for rows.Next() {
		var account Account
		if err := rows.Scan(&account.Email, &account.Password, &account.ClientID, &account.RefreshToken); err != nil {
			metrics.StoreOperationsTotal.WithLabelValues("sqlite", "list", "failure").Inc()
			return nil, fmt.Errorf("%w: %v", consts.ErrStoreLoadFailed, err)
		}
		accounts = append(accounts, account)
	}
	if err := rows.Err(); err != nil {
		metrics.StoreOperationsTotal.WithLabelValues("sqlite", "list", "failure").Inc()
		return nil, fmt.Errorf("%w: %v", consts.ErrStoreLoadFailed, err)
	}

	metrics.StoreOperationsTotal.WithLabelValues("sqlite", "list", "success").Inc()
	metrics.AccountsTotal.Set(float64(len(accounts)))
	return accounts, nil
}

func (s *SQLiteStore) Get(ctx context.Context, email string) (Account, error) {
	var account Account
	err := s.db.QueryRowContext(ctx,
		`SELECT email, password, client_id, refresh_token FROM accounts WHERE email = ?`, email).
		Scan(&account.Email, &account.Password, &account.ClientID, &account.RefreshToken)
	if errors.Is(err, sql.ErrNoRows) {
		return Account{}, fmt.Errorf("%w: %s", consts.ErrAccountNotFound, email)
	}
	if err != nil {
		return Account{}, fmt.Errorf("%w: %v", consts.ErrStoreLoadFailed, err)
	}
	return account, nil
}

func (s *SQLiteStore) Create(ctx context.Context, account Account) error {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		exists, err := rowExists(ctx, tx, account.Email)
		if err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("%w: %s", consts.ErrAccountExists, account.Email)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO accounts (email, password, client_id, refresh_token) VALUES (?, ?, ?, ?)`,
			account.Email, account.Password, account.ClientID, account.RefreshToken)
		return err
	})
	return s.observe("create", err)
}

func (s *SQLiteStore) Update(ctx context.Context, email string, account Account) error {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		exists, err := rowExists(ctx, tx, email)
		if err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("%w: %s", consts.ErrAccountNotFound, email)
		}
		if account.Email != email {
			taken, err := rowExists(ctx, tx, account.Email)
			if err != nil {
				return err
			}
			if taken {
				return fmt.Errorf("%w: %s", consts.ErrAccountExists, account.Email)
			}
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE accounts SET email = ?, password = ?, client_id = ?, refresh_token = ?,
			        updated_at = datetime('now') WHERE email = ?`,
			account.Email, account.Password, account.ClientID, account.RefreshToken, email)
		return err
	})
	return s.observe("update", err)
}

func (s *SQLiteStore) Delete(ctx context.Context, email string) error {
	err := func() error {
		result, err := s.db.ExecContext(ctx, `DELETE FROM accounts WHERE email = ?`, email)
		if err != nil {
			return err
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return fmt.Errorf("%w: %s", consts.ErrAccountNotFound, email)
		}
		return nil
	}()
	return s.observe("delete", err)
}

func (s *SQLiteStore) ReplaceAll(ctx context.Context, accounts []Account) error {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM accounts`); err != nil {
			return err
		}
		for _, account := range accounts {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO accounts (email, password, client_id, refresh_token) VALUES (?, ?, ?, ?)`,
				account.Email, account.Password, account.ClientID, account.RefreshToken)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err == nil {
		metrics.AccountsTotal.Set(float64(len(accounts)))
	}
	return s.observe("replace_all", err)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// observe records the operation metric and passes the error through
// unchanged, keeping sentinel wrapping intact for the caller.
func (s *SQLiteStore) observe(operation string, err error) error {
	result := "success"
	if err != nil {
		result = "failure"
	}
	metrics.StoreOperationsTotal.WithLabelValues("sqlite", operation, result).Inc()
	return err
}

func rowExists(ctx context.Context, tx *sql.Tx, email string) (bool, error) {
	var one int
	err := tx.QueryRowContext(ctx, `SELECT 1 FROM accounts WHERE email = ?`, email).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
