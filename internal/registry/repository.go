// Package registry persists bot configurations so the fleet can be
// rebuilt after a process restart.
package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/alexanderselivanov/botfleet/pkg/models"
)

// ErrNotFound is returned when no config row matches the given name.
var ErrNotFound = errors.New("bot config not found")

// Repository stores bot configs in Postgres.
type Repository struct {
	db *sqlx.DB
}

// NewRepository creates a bot config repository.
func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

const configColumns = `id, name, symbol, exchange, risk_level, leverage, position_size_pct,
	take_profit_pct, stop_loss_pct, time_cut_minutes, rsi_oversold, rsi_overbought,
	volume_threshold, is_testnet, is_active, description, created_at, updated_at`

// Create inserts a new bot config. The ID is generated when empty.
func (r *Repository) Create(ctx context.Context, cfg *models.BotConfig) error {
	if cfg.ID == "" {
		cfg.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	cfg.CreatedAt = now
	cfg.UpdatedAt = now

	query := `
		INSERT INTO bot_configs (id, name, symbol, exchange, risk_level, leverage,
			position_size_pct, take_profit_pct, stop_loss_pct, time_cut_minutes,
			rsi_oversold, rsi_overbought, volume_threshold, is_testnet, is_active,
			description, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`

	_, err := r.db.ExecContext(ctx, query,
		cfg.ID, cfg.Name, cfg.Symbol, cfg.Exchange, cfg.RiskLevel, cfg.Leverage,
		cfg.PositionSizePct, cfg.TakeProfitPct, cfg.StopLossPct, cfg.TimeCutMinutes,
		cfg.RSIOversold, cfg.RSIOverbought, cfg.VolumeThreshold, cfg.IsTestnet,
		cfg.IsActive, cfg.Description, cfg.CreatedAt, cfg.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert bot config: %w", err)
	}

	return nil
}

// Update rewrites the mutable fields of an existing config.
func (r *Repository) Update(ctx context.Context, cfg *models.BotConfig) error {
	cfg.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE bot_configs
		SET symbol = $2, exchange = $3, risk_level = $4, leverage = $5,
			position_size_pct = $6, take_profit_pct = $7, stop_loss_pct = $8,
			time_cut_minutes = $9, rsi_oversold = $10, rsi_overbought = $11,
			volume_threshold = $12, is_testnet = $13, is_active = $14,
			description = $15, updated_at = $16
		WHERE name = $1
	`

	result, err := r.db.ExecContext(ctx, query,
		cfg.Name, cfg.Symbol, cfg.Exchange, cfg.RiskLevel, cfg.Leverage,
		cfg.PositionSizePct, cfg.TakeProfitPct, cfg.StopLossPct, cfg.TimeCutMinutes,
		cfg.RSIOversold, cfg.RSIOverbought, cfg.VolumeThreshold, cfg.IsTestnet,
		cfg.IsActive, cfg.Description, cfg.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update bot config: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("bot %q: %w", cfg.Name, ErrNotFound)
	}

	return nil
}

// Delete removes a config by bot name.
func (r *Repository) Delete(ctx context.Context, name string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM bot_configs WHERE name = $1`, name)
	if err != nil {
		return fmt.Errorf("failed to delete bot config: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("bot %q: %w", name, ErrNotFound)
	}

	return nil
}

// Get loads a config by bot name.
func (r *Repository) Get(ctx context.Context, name string) (*models.BotConfig, error) {
	query := `SELECT ` + configColumns + ` FROM bot_configs WHERE name = $1`

	var cfg models.BotConfig
	if err := r.db.GetContext(ctx, &cfg, query, name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("bot %q: %w", name, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load bot config: %w", err)
	}

	return &cfg, nil
}

// List returns all stored configs ordered by creation time.
func (r *Repository) List(ctx context.Context) ([]models.BotConfig, error) {
	query := `SELECT ` + configColumns + ` FROM bot_configs ORDER BY created_at`

	var configs []models.BotConfig
	if err := r.db.SelectContext(ctx, &configs, query); err != nil {
		return nil, fmt.Errorf("failed to list bot configs: %w", err)
	}

	return configs, nil
}

// ListActive returns configs flagged for automatic startup.
func (r *Repository) ListActive(ctx context.Context) ([]models.BotConfig, error) {
	query := `SELECT ` + configColumns + ` FROM bot_configs WHERE is_active = TRUE ORDER BY created_at`

	var configs []models.BotConfig
	if err := r.db.SelectContext(ctx, &configs, query); err != nil {
		return nil, fmt.Errorf("failed to list active bot configs: %w", err)
	}

	return configs, nil
}
