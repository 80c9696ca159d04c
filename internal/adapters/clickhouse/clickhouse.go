// Package clickhouse is the fleet telemetry sink. Tick and trade rows
// arrive pre-batched from pkg/metrics and land in MergeTree tables
// sized for dashboard queries. The sink is optional: when ClickHouse
// is not configured the orchestrator runs without it and telemetry is
// dropped.
package clickhouse

import (
	"fmt"
	"time"

	_ "github.com/ClickHouse/clickhouse-go/v2"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/alexanderselivanov/botfleet/internal/adapters/config"
	"github.com/alexanderselivanov/botfleet/pkg/logger"
)

// Connect opens a ClickHouse connection over the native protocol.
func Connect(cfg *config.ClickHouseConfig) (*sqlx.DB, error) {
	conn, err := sqlx.Connect("clickhouse", cfg.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to clickhouse: %w", err)
	}

	conn.SetMaxOpenConns(10)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(time.Hour)

	logger.Info("clickhouse connection established",
		zap.String("addr", cfg.Addr),
		zap.String("database", cfg.Database),
	)

	return conn, nil
}
