package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/alexanderselivanov/botfleet/pkg/models"
)

// ErrTradeNotOpen is returned when a close targets a row that does not
// exist or was already closed. Exactly one close per open row.
var ErrTradeNotOpen = errors.New("trade is not open")

// Repository persists the trade ledger: one OPEN row per entry, updated
// to CLOSED exactly once at exit.
type Repository struct {
	db *sqlx.DB
}

// NewRepository creates new trade ledger repository
func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

const tradeColumns = `id, bot_id, symbol, side, entry_time, entry_price, quantity,
	leverage, entry_rsi, exit_time, exit_price, exit_reason, pnl, pnl_pct,
	duration_minutes, status`

// OpenTrade inserts the OPEN row for a fresh entry.
func (r *Repository) OpenTrade(ctx context.Context, trade *models.Trade) error {
	query := `
		INSERT INTO trades (id, bot_id, symbol, side, entry_time, entry_price,
			quantity, leverage, entry_rsi, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.db.ExecContext(ctx, query,
		trade.ID,
		trade.BotID,
		trade.Symbol,
		trade.Side,
		trade.EntryTime,
		trade.EntryPrice,
		trade.Quantity,
		trade.Leverage,
		trade.EntryRSI,
		models.TradeOpen,
	)
	if err != nil {
		return fmt.Errorf("failed to insert open trade: %w", err)
	}

	return nil
}

// CloseParams carries the exit fields for CloseTrade.
type CloseParams struct {
	ExitTime        time.Time
	ExitPrice       decimal.Decimal
	Reason          models.ExitReason
	PnL             decimal.Decimal
	PnLPct          float64
	DurationMinutes int
}

// CloseTrade updates the OPEN row to CLOSED. Returns ErrTradeNotOpen
// when the row is missing or already closed.
func (r *Repository) CloseTrade(ctx context.Context, tradeID string, p CloseParams) error {
	query := `
		UPDATE trades
		SET exit_time = $2, exit_price = $3, exit_reason = $4,
			pnl = $5, pnl_pct = $6, duration_minutes = $7, status = $8
		WHERE id = $1 AND status = $9
	`

	res, err := r.db.ExecContext(ctx, query,
		tradeID,
		p.ExitTime,
		p.ExitPrice,
		p.Reason,
		p.PnL,
		p.PnLPct,
		p.DurationMinutes,
		models.TradeClosed,
		models.TradeOpen,
	)
	if err != nil {
		return fmt.Errorf("failed to close trade %s: %w", tradeID, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read close result for %s: %w", tradeID, err)
	}
	if affected == 0 {
		return fmt.Errorf("close trade %s: %w", tradeID, ErrTradeNotOpen)
	}

	return nil
}

// FindOpenTrade returns the bot's OPEN row for the symbol, nil when
// none exists. Used by reconciliation to re-attach after a restart and
// to backfill rows lost between order fill and insert.
func (r *Repository) FindOpenTrade(ctx context.Context, botID, symbol string) (*models.Trade, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM trades
		WHERE bot_id = $1 AND symbol = $2 AND status = $3
		ORDER BY entry_time DESC
		LIMIT 1
	`, tradeColumns)

	var trade models.Trade
	err := r.db.GetContext(ctx, &trade, query, botID, symbol, models.TradeOpen)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find open trade: %w", err)
	}

	return &trade, nil
}

// RecentTrades returns the most recent closed rows, newest first.
func (r *Repository) RecentTrades(ctx context.Context, botID string, limit int) ([]models.Trade, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM trades
		WHERE bot_id = $1 AND status = $2
		ORDER BY exit_time DESC
		LIMIT $3
	`, tradeColumns)

	trades := make([]models.Trade, 0, limit)
	if err := r.db.SelectContext(ctx, &trades, query, botID, models.TradeClosed, limit); err != nil {
		return nil, fmt.Errorf("failed to query recent trades: %w", err)
	}

	return trades, nil
}

// Ping verifies the ledger is reachable.
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}
