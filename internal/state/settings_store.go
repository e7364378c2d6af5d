// ./internal/state/settings_store.go
package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/elys-network/yield-optimizer/internal/types"
)

var ErrInvalidSettings = errors.New("invalid settings")

// GetSettings loads the account's settings. found is false when none were saved yet; the
// returned settings are then the defaults.
func (r *Repository) GetSettings(ctx context.Context, accountID string) (settings types.Settings, found bool, err error) {
	if r == nil || r.db == nil {
		return types.Settings{}, false, ErrDBNotInitialized
	}

	query := `
		SELECT notifications, auto_rebalance, security_alerts, rebalance_threshold, dark_mode
		FROM user_settings
		WHERE account_id = $1;`

	var s types.Settings
	err = r.db.QueryRowContext(ctx, query, accountID).Scan(
		&s.Notifications, &s.AutoRebalance, &s.SecurityAlerts, &s.RebalanceThreshold, &s.DarkMode,
	)
	if errors.Is(err, sql.ErrNoRows) {
		dbLogger.Debug().Str("account_id", accountID).Msg("No saved settings, using defaults")
		return types.DefaultSettings(), false, nil
	}
	if err != nil {
		return types.Settings{}, false, fmt.Errorf("failed to load settings for %s: %w", accountID, err)
	}
	return s, true, nil
}

// SaveSettings upserts the account's settings in a transaction.
func (r *Repository) SaveSettings(ctx context.Context, accountID string, s types.Settings) (err error) {
	if r == nil || r.db == nil {
		return ErrDBNotInitialized
	}
	if accountID == "" {
		return fmt.Errorf("%w: account id is required", ErrInvalidSettings)
	}
	if s.RebalanceThreshold < types.MinRebalanceThreshold || s.RebalanceThreshold > types.MaxRebalanceThreshold {
		return fmt.Errorf("%w: rebalance threshold %d out of range", ErrInvalidSettings, s.RebalanceThreshold)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p) // Re-panic after rollback
		} else if err != nil {
			tx.Rollback() // Rollback if error occurred
		}
	}()

	stmt := `
		INSERT INTO user_settings (
			account_id, notifications, auto_rebalance, security_alerts, rebalance_threshold, dark_mode, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, CURRENT_TIMESTAMP)
		ON CONFLICT (account_id) DO UPDATE SET
			notifications = EXCLUDED.notifications,
			auto_rebalance = EXCLUDED.auto_rebalance,
			security_alerts = EXCLUDED.security_alerts,
			rebalance_threshold = EXCLUDED.rebalance_threshold,
			dark_mode = EXCLUDED.dark_mode,
			updated_at = CURRENT_TIMESTAMP;`

	if _, err = tx.ExecContext(ctx, stmt,
		accountID, s.Notifications, s.AutoRebalance, s.SecurityAlerts, s.RebalanceThreshold, s.DarkMode,
	); err != nil {
		return fmt.Errorf("failed to save settings for %s: %w", accountID, err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit settings for %s: %w", accountID, err)
	}

	dbLogger.Info().Str("account_id", accountID).Msg("Settings saved")
	return nil
}
