package clickhouse

import (
	"context"

	"github.com/alexanderselivanov/botfleet/pkg/metrics"
)

// Inserter is the slice of Repository the writer needs. Tests swap in
// a recorder.
type Inserter interface {
	InsertBatch(ctx context.Context, tableName string, rows [][]interface{}) error
	Close() error
}

// Writer adapts Repository to the metrics.Writer interface consumed by
// the buffered telemetry pipeline.
type Writer struct {
	repo Inserter
}

// NewWriter creates writer over repository
func NewWriter(repo Inserter) *Writer {
	return &Writer{repo: repo}
}

// Write converts metrics to value rows and inserts them as one batch.
func (w *Writer) Write(ctx context.Context, tableName string, batch []metrics.Metric) error {
	if len(batch) == 0 {
		return nil
	}

	rows := make([][]interface{}, len(batch))
	for i, m := range batch {
		rows[i] = m.Values()
	}

	return w.repo.InsertBatch(ctx, tableName, rows)
}

// Close closes the underlying repository.
func (w *Writer) Close() error {
	return w.repo.Close()
}
