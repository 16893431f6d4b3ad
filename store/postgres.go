package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4/database"
	pgxv5 "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/hatomail/hato/config"
	"github.com/hatomail/hato/consts"
	"github.com/hatomail/hato/logger"
	"github.com/hatomail/hato/pkg/metrics"
)

// PostgresStore keeps accounts in postgres, for deployments where several
// gateway instances share one credential set.
type PostgresStore struct {
	pool         *pgxpool.Pool
	queryTimeout time.Duration
}

// OpenPostgresStore connects a pgx pool using the configured limits and
// applies pending schema migrations through a short-lived database/sql
// handle, which is what the migration driver wants.
func OpenPostgresStore(ctx context.Context, cfg *config.PostgresConfig) (*PostgresStore, error) {
	if cfg == nil {
		return nil, fmt.Errorf("postgres account store requires an accounts.postgres config section")
	}

	port, err := cfg.GetPort()
	if err != nil {
		return nil, err
	}
	sslMode := "disable"
	if cfg.TLSMode {
		sslMode = "require"
	}
	connString := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.User, cfg.Password, cfg.Host, port, cfg.Name, sslMode)

	logger.Infof("store: connecting to postgres://%s@%s:%d/%s?sslmode=%s",
		cfg.User, cfg.Host, port, cfg.Name, sslMode)

	poolConfig, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse connection string: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxConns)
	}
	if cfg.MinConns > 0 {
		poolConfig.MinConns = int32(cfg.MinConns)
	}
	if lifetime, err := cfg.GetMaxConnLifetime(); err == nil {
		poolConfig.MaxConnLifetime = lifetime
	}
	if idle, err := cfg.GetMaxConnIdleTime(); err == nil {
		poolConfig.MaxConnIdleTime = idle
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to the database: %w", err)
	}

	if err := migratePostgres(ctx, connString); err != nil {
		pool.Close()
		return nil, err
	}

	queryTimeout, err := cfg.GetQueryTimeout()
	if err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool, queryTimeout: queryTimeout}, nil
}

func migratePostgres(ctx context.Context, connString string) error {
	sqlDB, err := sql.Open("pgx", connString)
	if err != nil {
		return fmt.Errorf("failed to open sql.DB for migrations: %w", err)
	}
	defer sqlDB.Close()

	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database for migrations: %w", err)
	}

	return runMigrations(sqlDB, "postgres", func(db *sql.DB) (database.Driver, error) {
		return pgxv5.WithInstance(db, &pgxv5.Config{})
	})
}

func (s *PostgresStore) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.queryTimeout)
}

func (s *PostgresStore) List(ctx context.Context) ([]Account, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`SELECT email, password, client_id, refresh_token FROM accounts ORDER BY email`)
	if err != nil {
		metrics.StoreOperationsTotal.WithLabelValues("postgres", "list", "failure").Inc()
		return nil, fmt.Errorf("%w: %v", consts.ErrStoreLoadFailed, err)
	}
	defer rows.Close()

	accounts := []Account{}
	for rows.Next() {
		var account Account
		if err := rows.Scan(&account.Email, &account.Password, &account.ClientID, &account.RefreshToken); err != nil {
			metrics.StoreOperationsTotal.WithLabelValues("postgres", "list", "failure").Inc()
			return nil, fmt.Errorf("%w: %v", consts.ErrStoreLoadFailed, err)
		}
		accounts = append(accounts, account)
	}
	if err := rows.Err(); err != nil {
		metrics.StoreOperationsTotal.WithLabelValues("postgres", "list", "failure").Inc()
		return nil, fmt.Errorf("%w: %v", consts.ErrStoreLoadFailed, err)
	}

	metrics.StoreOperationsTotal.WithLabelValues("postgres", "list", "success").Inc()
	metrics.AccountsTotal.Set(float64(len(accounts)))
	return accounts, nil
}

func (s *PostgresStore) Get(ctx context.Context, email string) (Account, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	var account Account
	err := s.pool.QueryRow(ctx,
		`SELECT email, password, client_id, refresh_token FROM accounts WHERE email = $1`, email).
		Scan(&account.Email, &account.Password, &account.ClientID, &account.RefreshToken)
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, fmt.Errorf("%w: %s", consts.ErrAccountNotFound, email)
	}
	if err != nil {
		return Account{}, fmt.Errorf("%w: %v", consts.ErrStoreLoadFailed, err)
	}
	return account, nil
}

func (s *PostgresStore) Create(ctx context.Context, account Account) error {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	err := s.withTx(ctx, func(tx pgx.Tx) error {
		exists, err := pgRowExists(ctx, tx, account.Email)
		if err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("%w: %s", consts.ErrAccountExists, account.Email)
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO accounts (email, password, client_id, refresh_token) VALUES ($1, $2, $3, $4)`,
			account.Email, account.Password, account.ClientID, account.RefreshToken)
		return err
	})
	return s.observe("create", err)
}

func (s *PostgresStore) Update(ctx context.Context, email string, account Account) error {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	err := s.withTx(ctx, func(tx pgx.Tx) error {
		exists, err := pgRowExists(ctx, tx, email)
		if err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("%w: %s", consts.ErrAccountNotFound, email)
		}
		if account.Email != email {
			taken, err := pgRowExists(ctx, tx, account.Email)
			if err != nil {
				return err
			}
			if taken {
				return fmt.Errorf("%w: %s", consts.ErrAccountExists, account.Email)
			}
		}
		_, err = tx.Exec(ctx,
			`UPDATE accounts SET email = $1, password = $2, client_id = $3, refresh_token = $4,
			        updated_at = now() WHERE email = $5`,
			account.Email, account.Password, account.ClientID, account.RefreshToken, email)
		return err
	})
	return s.observe("update", err)
}

func (s *PostgresStore) Delete(ctx context.Context, email string) error {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	err := func() error {
		tag, err := s.pool.Exec(ctx, `DELETE FROM accounts WHERE email = $1`, email)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%w: %s", consts.ErrAccountNotFound, email)
		}
		return nil
	}()
	return s.observe("delete", err)
}

func (s *PostgresStore) ReplaceAll(ctx context.Context, accounts []Account) error {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	err := s.withTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM accounts`); err != nil {
			return err
		}
		for _, account := range accounts {
			_, err := tx.Exec(ctx,
				`INSERT INTO accounts (email, password, client_id, refresh_token) VALUES ($1, $2, $3, $4)`,
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

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) withTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) observe(operation string, err error) error {
	result := "success"
	if err != nil {
		result = "failure"
	}
	metrics.StoreOperationsTotal.WithLabelValues("postgres", operation, result).Inc()
	return err
}

func pgRowExists(ctx context.Context, tx pgx.Tx, email string) (bool, error) {
	var exists bool
	err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM accounts WHERE email = $1)`, email).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}
