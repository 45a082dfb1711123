// Package tradestore is the transactional persistence layer for trades,
// their audit trail and price history: PostgreSQL via jackc/pgx/v5, with
// per-user row-level security and optimistic-concurrency version checks.
//
// Every other storage concern in this project runs on sqlite, following
// this project's Postgres conventions; trades are the
// exception, because row-level security, the append-only audit join, and
// the optimistic UPDATE...RETURNING pattern all need a real server-side
// transactional database.
package tradestore

import (
	"context"
	"embed"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Store wraps a pgxpool.Pool scoped to the paper_trades schema.
type Store struct {
	pool *pgxpool.Pool
}

// Open connects to Postgres, applies pending migrations, and returns a
// ready Store.
func Open(ctx context.Context, connURL string) (*Store, error) {
	if err := runMigrations(connURL); err != nil {
		return nil, fmt.Errorf("apply tradestore migrations: %w", err)
	}

	pool, err := pgxpool.New(ctx, connURL)
	if err != nil {
		return nil, fmt.Errorf("connect tradestore: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping tradestore: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Ping verifies the pool can still reach Postgres, used by the health-check job.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func runMigrations(connURL string) error {
	sourceDriver, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	migrator, err := migrate.NewWithSourceInstance("iofs", sourceDriver, connURL)
	if err != nil {
		return fmt.Errorf("init migrate: %w", err)
	}
	defer migrator.Close()

	if err := migrator.Up(); err != nil && err != migrate.ErrNoChange {
		return err
	}
	return nil
}

// withUser opens a transaction with app.current_user set for the
// duration of the transaction, so every row-level-security policy in the
// schema applies to subsequent statements.
func (s *Store) withUser(ctx context.Context, username string, fn func(tx pgTx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(context.Background())
		}
	}()

	if _, err := tx.Exec(ctx, `SELECT set_config('app.current_user', $1, true)`, username); err != nil {
		return fmt.Errorf("set app.current_user: %w", err)
	}

	if err := fn(poolTx{tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true
	return nil
}
