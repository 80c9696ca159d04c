package bot

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/alexanderselivanov/botfleet/pkg/models"
)

// Status is the externally visible snapshot of one bot, served by the
// admin API and the telegram commands.
type Status struct {
	ID               string            `json:"bot_id"`
	Name             string            `json:"bot_name"`
	Symbol           string            `json:"symbol"`
	Exchange         string            `json:"exchange"`
	RiskLevel        models.RiskLevel  `json:"risk_level"`
	IsRunning        bool              `json:"is_running"`
	IsPaused         bool              `json:"is_paused"`
	EmergencyClose   bool              `json:"emergency_close"`
	UptimeSeconds    int64             `json:"uptime_seconds"`
	LoopCount        int64             `json:"loop_count"`
	CurrentPrice     decimal.Decimal   `json:"current_price"`
	LastSignal       models.SignalKind `json:"last_signal"`
	LastSignalTime   time.Time         `json:"last_signal_time"`
	Position         *models.Position  `json:"position,omitempty"`
	UnrealizedPnLPct *float64          `json:"unrealized_pnl_pct,omitempty"`
}

// Status returns a point-in-time snapshot. The websocket mark price
// cache, when wired, gives fresher unrealized PnL than the last tick
// price; entries older than a minute are ignored.
func (b *Instance) Status() *Status {
	b.mu.RLock()
	defer b.mu.RUnlock()

	s := &Status{
		ID:             b.cfg.ID,
		Name:           b.cfg.Name,
		Symbol:         b.cfg.Symbol,
		Exchange:       b.cfg.Exchange,
		RiskLevel:      b.cfg.RiskLevel,
		IsRunning:      b.state.IsRunning,
		IsPaused:       b.state.IsPaused,
		EmergencyClose: b.state.EmergencyClose,
		LoopCount:      b.state.LoopCount,
		CurrentPrice:   b.state.CurrentPrice,
		LastSignal:     b.state.LastSignal,
		LastSignalTime: b.state.LastSignalTime,
	}
	if s.Exchange == "" {
		s.Exchange = "default"
	}
	if b.state.IsRunning && !b.state.UptimeStart.IsZero() {
		s.UptimeSeconds = int64(time.Since(b.state.UptimeStart).Seconds())
	}

	if b.state.Position != nil {
		pos := *b.state.Position
		s.Position = &pos

		price := b.state.CurrentPrice
		if b.deps.Prices != nil {
			if mark, at, ok := b.deps.Prices.MarkPrice(b.cfg.Symbol); ok && time.Since(at) < time.Minute {
				price = mark
			}
		}
		if !price.IsZero() {
			pct := pos.PnLPercent(price).InexactFloat64()
			s.UnrealizedPnLPct = &pct
		}
	}

	return s
}
