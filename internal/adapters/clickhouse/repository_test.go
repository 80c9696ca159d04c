package clickhouse

import (
	"context"
	"strings"
	"testing"

	"github.com/alexanderselivanov/botfleet/pkg/metrics"
)

func TestInsertStatement(t *testing.T) {
	cases := []struct {
		table   string
		columns int
		want    string
	}{
		{"bot_ticks", 3, "INSERT INTO bot_ticks VALUES (?, ?, ?)"},
		{"bot_trades", 1, "INSERT INTO bot_trades VALUES (?)"},
	}

	for _, tc := range cases {
		if got := insertStatement(tc.table, tc.columns); got != tc.want {
			t.Errorf("insertStatement(%q, %d) = %q, want %q", tc.table, tc.columns, got, tc.want)
		}
	}
}

func TestInsertBatchEmptyIsNoOp(t *testing.T) {
	r := NewRepository(nil)

	if err := r.InsertBatch(context.Background(), "bot_ticks", nil); err != nil {
		t.Fatalf("empty batch: %v", err)
	}
	if err := r.InsertBatch(context.Background(), "bot_ticks", [][]interface{}{}); err != nil {
		t.Fatalf("zero-length batch: %v", err)
	}
}

func TestInsertBatchRejectsRaggedRows(t *testing.T) {
	r := NewRepository(nil)

	rows := [][]interface{}{
		{"alpha", 1.0},
		{"beta"},
	}
	err := r.InsertBatch(context.Background(), "bot_ticks", rows)
	if err == nil {
		t.Fatal("expected error for ragged rows")
	}
	if !strings.Contains(err.Error(), "row 1") {
		t.Errorf("error should name the offending row, got %q", err)
	}
}

func TestInsertBatchRejectsEmptyRow(t *testing.T) {
	r := NewRepository(nil)

	err := r.InsertBatch(context.Background(), "bot_ticks", [][]interface{}{{}})
	if err == nil {
		t.Fatal("expected error for row without columns")
	}
}

// Inserts are positional, so each metric's Values() must line up with
// its table's DDL column list.
func TestSchemaMatchesMetricValueOrder(t *testing.T) {
	cases := []struct {
		ddl    string
		metric metrics.Metric
	}{
		{ticksDDL, &metrics.TickMetric{}},
		{tradesDDL, &metrics.TradeMetric{}},
	}

	for _, tc := range cases {
		if !strings.Contains(tc.ddl, tc.metric.TableName()) {
			t.Errorf("DDL does not create table %q", tc.metric.TableName())
		}

		want := len(tc.metric.Values())
		got := strings.Count(tc.ddl, "\n\t")
		if got != want {
			t.Errorf("%s DDL declares %d columns, %T emits %d values",
				tc.metric.TableName(), got, tc.metric, want)
		}
	}
}
