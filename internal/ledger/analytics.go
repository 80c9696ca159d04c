package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alexanderselivanov/botfleet/pkg/models"
)

// Summary aggregates a bot's closed trades inside the look-back window.
type Summary struct {
	TotalTrades int             `db:"total_trades"`
	Wins        int             `db:"wins"`
	TotalPnL    decimal.Decimal `db:"total_pnl"`
	AvgPnLPct   float64         `db:"avg_pnl_pct"`
	BestPnLPct  float64         `db:"best_pnl_pct"`
	WorstPnLPct float64         `db:"worst_pnl_pct"`
}

// WinRate returns the win percentage, zero when no trades closed.
func (s *Summary) WinRate() float64 {
	if s.TotalTrades == 0 {
		return 0
	}
	return float64(s.Wins) / float64(s.TotalTrades) * 100
}

// ZoneStat aggregates closed trades by the RSI zone at entry.
type ZoneStat struct {
	Zone      string  `db:"zone"`
	Trades    int     `db:"trades"`
	Wins      int     `db:"wins"`
	AvgPnLPct float64 `db:"avg_pnl_pct"`
}

// WinRate returns the zone's win percentage.
func (z *ZoneStat) WinRate() float64 {
	if z.Trades == 0 {
		return 0
	}
	return float64(z.Wins) / float64(z.Trades) * 100
}

// HourStat aggregates closed trades by entry hour (UTC).
type HourStat struct {
	Hour      int     `db:"hour"`
	Trades    int     `db:"trades"`
	Wins      int     `db:"wins"`
	AvgPnLPct float64 `db:"avg_pnl_pct"`
}

// WinRate returns the hour's win percentage.
func (h *HourStat) WinRate() float64 {
	if h.Trades == 0 {
		return 0
	}
	return float64(h.Wins) / float64(h.Trades) * 100
}

// Streak is the bot's current run of consecutive wins or losses.
type Streak struct {
	Wins   bool
	Length int
}

func windowStart(days int) time.Time {
	return time.Now().UTC().AddDate(0, 0, -days)
}

// Stats returns the overall closed-trade aggregates for the window.
func (r *Repository) Stats(ctx context.Context, botID string, days int) (*Summary, error) {
	query := `
		SELECT
			COUNT(*) AS total_trades,
			COALESCE(SUM(CASE WHEN pnl > 0 THEN 1 ELSE 0 END), 0) AS wins,
			COALESCE(SUM(pnl), 0) AS total_pnl,
			COALESCE(AVG(pnl_pct), 0) AS avg_pnl_pct,
			COALESCE(MAX(pnl_pct), 0) AS best_pnl_pct,
			COALESCE(MIN(pnl_pct), 0) AS worst_pnl_pct
		FROM trades
		WHERE bot_id = $1 AND status = $2 AND exit_time >= $3
	`

	var s Summary
	if err := r.db.GetContext(ctx, &s, query, botID, models.TradeClosed, windowStart(days)); err != nil {
		return nil, fmt.Errorf("failed to query trade stats: %w", err)
	}

	return &s, nil
}

// RSIZoneStats groups closed trades by the RSI zone at entry. Rows with
// no recorded entry RSI are skipped.
func (r *Repository) RSIZoneStats(ctx context.Context, botID string, days int) ([]ZoneStat, error) {
	query := `
		SELECT
			CASE
				WHEN entry_rsi < 30 THEN 'oversold'
				WHEN entry_rsi < 45 THEN 'weak'
				WHEN entry_rsi <= 55 THEN 'neutral'
				WHEN entry_rsi <= 70 THEN 'strong'
				ELSE 'overbought'
			END AS zone,
			COUNT(*) AS trades,
			COALESCE(SUM(CASE WHEN pnl > 0 THEN 1 ELSE 0 END), 0) AS wins,
			COALESCE(AVG(pnl_pct), 0) AS avg_pnl_pct
		FROM trades
		WHERE bot_id = $1 AND status = $2 AND exit_time >= $3 AND entry_rsi IS NOT NULL
		GROUP BY 1
		ORDER BY trades DESC
	`

	var stats []ZoneStat
	if err := r.db.SelectContext(ctx, &stats, query, botID, models.TradeClosed, windowStart(days)); err != nil {
		return nil, fmt.Errorf("failed to query rsi zone stats: %w", err)
	}

	return stats, nil
}

// HourlyStats groups closed trades by entry hour of day (UTC).
func (r *Repository) HourlyStats(ctx context.Context, botID string, days int) ([]HourStat, error) {
	query := `
		SELECT
			EXTRACT(HOUR FROM entry_time AT TIME ZONE 'UTC')::INT AS hour,
			COUNT(*) AS trades,
			COALESCE(SUM(CASE WHEN pnl > 0 THEN 1 ELSE 0 END), 0) AS wins,
			COALESCE(AVG(pnl_pct), 0) AS avg_pnl_pct
		FROM trades
		WHERE bot_id = $1 AND status = $2 AND exit_time >= $3
		GROUP BY 1
		ORDER BY 1
	`

	var stats []HourStat
	if err := r.db.SelectContext(ctx, &stats, query, botID, models.TradeClosed, windowStart(days)); err != nil {
		return nil, fmt.Errorf("failed to query hourly stats: %w", err)
	}

	return stats, nil
}

// CurrentStreak walks the most recent closed trades until the win/loss
// sign flips. Length zero means no closed trades.
func (r *Repository) CurrentStreak(ctx context.Context, botID string) (*Streak, error) {
	query := `
		SELECT COALESCE(pnl, 0)
		FROM trades
		WHERE bot_id = $1 AND status = $2
		ORDER BY exit_time DESC
		LIMIT 50
	`

	var pnls []decimal.Decimal
	if err := r.db.SelectContext(ctx, &pnls, query, botID, models.TradeClosed); err != nil {
		return nil, fmt.Errorf("failed to query streak: %w", err)
	}

	streak := &Streak{}
	for i, pnl := range pnls {
		win := pnl.IsPositive()
		if i == 0 {
			streak.Wins = win
			streak.Length = 1
			continue
		}
		if win != streak.Wins {
			break
		}
		streak.Length++
	}

	return streak, nil
}
