// ./internal/state/db.go
package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/elys-network/yield-optimizer/internal/config"
	"github.com/elys-network/yield-optimizer/internal/logger"
)

var dbLogger = logger.GetForComponent("state")

var ErrDBNotInitialized = errors.New("database not initialized")

// Repository is the PostgreSQL-backed persistence for transaction history, user settings
// and optimization runs.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Open initializes the database connection pool and verifies it with a ping.
func Open(ctx context.Context, cfg config.DBConfig) (*sql.DB, error) {
	psqlInfo := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)

	db, err := sql.Open("postgres", psqlInfo)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	dbLogger.Info().Str("host", cfg.Host).Str("db", cfg.DBName).Msg("Successfully connected to the PostgreSQL database!")
	return db, nil
}

// Close closes the database connection pool.
func (r *Repository) Close() {
	if r == nil || r.db == nil {
		return
	}
	dbLogger.Info().Msg("Closing database connection...")
	if err := r.db.Close(); err != nil {
		dbLogger.Error().Err(err).Msg("Error closing database connection")
	}
}

// Ping tests if the database connection is healthy.
func (r *Repository) Ping(ctx context.Context) error {
	if r == nil || r.db == nil {
		return ErrDBNotInitialized
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}

const schemaSQL = `
	CREATE TABLE IF NOT EXISTS transactions (
		tx_id VARCHAR(64) PRIMARY KEY,
		account_id VARCHAR(128) NOT NULL,
		tx_timestamp TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		tx_type VARCHAR(20) NOT NULL,
		protocol VARCHAR(128) NOT NULL,
		asset VARCHAR(32) NOT NULL,
		amount DECIMAL(30, 8) NOT NULL,
		status VARCHAR(20) NOT NULL,
		tx_hash VARCHAR(128),
		explorer_url TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_transactions_account_timestamp ON transactions(account_id, tx_timestamp DESC);

	CREATE TABLE IF NOT EXISTS user_settings (
		account_id VARCHAR(128) PRIMARY KEY,
		notifications BOOLEAN NOT NULL DEFAULT TRUE,
		auto_rebalance BOOLEAN NOT NULL DEFAULT FALSE,
		security_alerts BOOLEAN NOT NULL DEFAULT TRUE,
		rebalance_threshold INTEGER NOT NULL DEFAULT 5 CHECK (rebalance_threshold BETWEEN 1 AND 20),
		dark_mode BOOLEAN NOT NULL DEFAULT FALSE,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS optimization_runs (
		run_id SERIAL PRIMARY KEY,
		account_id VARCHAR(128) NOT NULL,
		run_timestamp TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		risk_level INTEGER NOT NULL,
		expected_apy DECIMAL(10, 4) NOT NULL,
		expected_risk DECIMAL(10, 4) NOT NULL,
		protocol_ids TEXT[],
		allocations JSONB NOT NULL,
		executed BOOLEAN NOT NULL DEFAULT FALSE
	);
	CREATE INDEX IF NOT EXISTS idx_optimization_runs_account_timestamp ON optimization_runs(account_id, run_timestamp DESC);
`

// EnsureSchema applies the necessary DDL to create tables if they don't exist.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	if r == nil || r.db == nil {
		return ErrDBNotInitialized
	}
	if _, err := r.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema DDL: %w", err)
	}
	dbLogger.Info().Msg("Database schema ensured.")
	return nil
}

// DropSchema removes every table owned by the optimizer. Used by scripts/reset_db.go.
func (r *Repository) DropSchema(ctx context.Context) error {
	if r == nil || r.db == nil {
		return ErrDBNotInitialized
	}
	const dropSQL = `
		DROP TABLE IF EXISTS optimization_runs CASCADE;
		DROP TABLE IF EXISTS user_settings CASCADE;
		DROP TABLE IF EXISTS transactions CASCADE;
	`
	if _, err := r.db.ExecContext(ctx, dropSQL); err != nil {
		return fmt.Errorf("failed to drop tables: %w", err)
	}
	dbLogger.Warn().Msg("Database schema dropped.")
	return nil
}
