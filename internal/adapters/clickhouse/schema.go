package clickhouse

import (
	"context"
	"fmt"
)

// Column order in these tables must match the Values() order of the
// matching pkg/metrics type; inserts are positional.

const ticksDDL = `
CREATE TABLE IF NOT EXISTS bot_ticks (
	timestamp       DateTime64(3),
	bot_name        LowCardinality(String),
	symbol          LowCardinality(String),
	price           Float64,
	signal          LowCardinality(String),
	weighted_score  Float64,
	consensus_ratio Float64,
	latency_ms      Int64,
	error           String
) ENGINE = MergeTree()
PARTITION BY toYYYYMM(timestamp)
ORDER BY (bot_name, timestamp)
`

const tradesDDL = `
CREATE TABLE IF NOT EXISTS bot_trades (
	timestamp        DateTime64(3),
	bot_name         LowCardinality(String),
	symbol           LowCardinality(String),
	side             LowCardinality(String),
	event            LowCardinality(String),
	reason           LowCardinality(String),
	quantity         Float64,
	price            Float64,
	pnl              Float64,
	pnl_pct          Float64,
	duration_minutes Int64
) ENGINE = MergeTree()
PARTITION BY toYYYYMM(timestamp)
ORDER BY (bot_name, timestamp)
`

// EnsureTables creates the telemetry tables when they do not exist.
// Idempotent, called once at startup.
func (r *Repository) EnsureTables(ctx context.Context) error {
	for _, ddl := range []string{ticksDDL, tradesDDL} {
		if _, err := r.db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("failed to create clickhouse table: %w", err)
		}
	}
	return nil
}
