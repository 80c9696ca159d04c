package clickhouse

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/alexanderselivanov/botfleet/pkg/logger"
)

// Repository executes batched inserts against ClickHouse. Insert
// statements carry no column list, so row value order must match the
// table DDL in schema.go.
type Repository struct {
	db *sqlx.DB
}

// NewRepository creates repository over an open connection
func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// InsertBatch writes all rows into tableName in one transaction. Every
// row must have the same column count.
func (r *Repository) InsertBatch(ctx context.Context, tableName string, rows [][]interface{}) error {
	if len(rows) == 0 {
		return nil
	}

	columns := len(rows[0])
	if columns == 0 {
		return fmt.Errorf("rows have no columns")
	}
	for i, row := range rows {
		if len(row) != columns {
			return fmt.Errorf("row %d has %d columns, expected %d", i, len(row), columns)
		}
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}

	stmt, err := tx.Preparex(insertStatement(tableName, columns))
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, row := range rows {
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to insert row into %s: %w", tableName, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	logger.Debug("clickhouse batch inserted",
		zap.String("table", tableName),
		zap.Int("rows", len(rows)),
	)

	return nil
}

// insertStatement builds the positional insert used by batch writes.
func insertStatement(tableName string, columns int) string {
	placeholders := make([]string, columns)
	for i := range placeholders {
		placeholders[i] = "?"
	}
	return fmt.Sprintf("INSERT INTO %s VALUES (%s)", tableName, strings.Join(placeholders, ", "))
}

// Ping checks the connection for readiness probes.
func (r *Repository) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("clickhouse ping failed: %w", err)
	}
	return nil
}

// Close closes the underlying connection.
func (r *Repository) Close() error {
	return r.db.Close()
}
