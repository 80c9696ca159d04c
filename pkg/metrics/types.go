package metrics

import "time"

// TickMetric is one decision-loop iteration, batched into ClickHouse
// for fleet-wide latency and signal dashboards.
type TickMetric struct {
	Timestamp      time.Time
	BotName        string
	Symbol         string
	Price          float64
	Signal         string
	WeightedScore  float64
	ConsensusRatio float64
	LatencyMs      int64
	Error          string // empty when the tick succeeded
}

func (m *TickMetric) TableName() string {
	return "bot_ticks"
}

func (m *TickMetric) Values() []interface{} {
	return []interface{}{
		m.Timestamp,
		m.BotName,
		m.Symbol,
		m.Price,
		m.Signal,
		m.WeightedScore,
		m.ConsensusRatio,
		m.LatencyMs,
		m.Error,
	}
}

// TradeMetric mirrors entry and exit events so PnL analytics can run in
// ClickHouse without touching the ledger database.
type TradeMetric struct {
	Timestamp       time.Time
	BotName         string
	Symbol          string
	Side            string
	Event           string // OPEN or CLOSE
	Reason          string // exit reason, empty on OPEN
	Quantity        float64
	Price           float64
	PnL             float64
	PnLPct          float64
	DurationMinutes int64
}

func (m *TradeMetric) TableName() string {
	return "bot_trades"
}

func (m *TradeMetric) Values() []interface{} {
	return []interface{}{
		m.Timestamp,
		m.BotName,
		m.Symbol,
		m.Side,
		m.Event,
		m.Reason,
		m.Quantity,
		m.Price,
		m.PnL,
		m.PnLPct,
		m.DurationMinutes,
	}
}
