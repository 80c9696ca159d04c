package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// NewDecimal creates decimal from float64
func NewDecimal(value float64) decimal.Decimal {
	return decimal.NewFromFloat(value)
}

// NewDecimalFromString creates decimal from string, zero on parse failure
func NewDecimalFromString(value string) decimal.Decimal {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// SignalKind is the direction a signal source votes for
type SignalKind string

const (
	SignalLong  SignalKind = "LONG"
	SignalShort SignalKind = "SHORT"
	SignalWait  SignalKind = "WAIT"
)

// ParseSignalKind normalizes a raw string to a SignalKind.
// Unknown values report ok=false; callers coerce those to WAIT.
func ParseSignalKind(raw string) (SignalKind, bool) {
	switch SignalKind(strings.ToUpper(strings.TrimSpace(raw))) {
	case SignalLong:
		return SignalLong, true
	case SignalShort:
		return SignalShort, true
	case SignalWait:
		return SignalWait, true
	}
	return SignalWait, false
}

// PositionSide represents long or short position
type PositionSide string

const (
	PositionLong  PositionSide = "LONG"
	PositionShort PositionSide = "SHORT"
)

// Opposite returns the closing direction for the side.
func (s PositionSide) Opposite() OrderSide {
	if s == PositionLong {
		return SideSell
	}
	return SideBuy
}

// OrderSide represents buy or sell
type OrderSide string

const (
	SideBuy  OrderSide = "BUY"
	SideSell OrderSide = "SELL"
)

// ExitReason tags why a position was closed
type ExitReason string

const (
	ExitTakeProfit ExitReason = "TP"
	ExitStopLoss   ExitReason = "SL"
	ExitTimeCut    ExitReason = "TIME_CUT"
	ExitManual     ExitReason = "MANUAL"
	ExitShutdown   ExitReason = "END"
)

// TradeStatus is the ledger row lifecycle state
type TradeStatus string

const (
	TradeOpen   TradeStatus = "OPEN"
	TradeClosed TradeStatus = "CLOSED"
)

// RiskLevel seeds the strategy parameter defaults
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// RiskDefaults holds the per-level fallback values for optional
// BotConfig parameters.
type RiskDefaults struct {
	Leverage        int
	PositionSizePct float64
	TakeProfitPct   float64
	StopLossPct     float64
	TimeCutMinutes  int
	RSIOversold     float64
	RSIOverbought   float64
	VolumeThreshold float64
}

var riskDefaults = map[RiskLevel]RiskDefaults{
	RiskLow: {
		Leverage:        10,
		PositionSizePct: 0.03,
		TakeProfitPct:   0.003,
		StopLossPct:     0.003,
		TimeCutMinutes:  240,
		RSIOversold:     30,
		RSIOverbought:   70,
		VolumeThreshold: 1.5,
	},
	RiskMedium: {
		Leverage:        15,
		PositionSizePct: 0.05,
		TakeProfitPct:   0.004,
		StopLossPct:     0.004,
		TimeCutMinutes:  180,
		RSIOversold:     30,
		RSIOverbought:   70,
		VolumeThreshold: 1.2,
	},
	RiskHigh: {
		Leverage:        20,
		PositionSizePct: 0.08,
		TakeProfitPct:   0.006,
		StopLossPct:     0.006,
		TimeCutMinutes:  120,
		RSIOversold:     35,
		RSIOverbought:   65,
		VolumeThreshold: 1.0,
	},
}

// DefaultsFor returns the defaults for a risk level, medium when unknown.
func DefaultsFor(level RiskLevel) RiskDefaults {
	if d, ok := riskDefaults[level]; ok {
		return d
	}
	return riskDefaults[RiskMedium]
}

// symbolWhitelist is the set of tradable perpetual contracts. Symbols
// outside the list are rejected at config validation.
var symbolWhitelist = map[string]struct{}{
	"BTCUSDT":  {},
	"ETHUSDT":  {},
	"SOLUSDT":  {},
	"BNBUSDT":  {},
	"XRPUSDT":  {},
	"DOGEUSDT": {},
	"ADAUSDT":  {},
	"LINKUSDT": {},
	"AVAXUSDT": {},
	"DOTUSDT":  {},
}

// SymbolAllowed reports whether the symbol passes the whitelist.
func SymbolAllowed(symbol string) bool {
	_, ok := symbolWhitelist[symbol]
	return ok
}

// quantityPrecision maps symbols to their order quantity precision.
// Unlisted symbols fall back to 3 decimals.
var quantityPrecision = map[string]int32{
	"BTCUSDT":  3,
	"ETHUSDT":  3,
	"SOLUSDT":  1,
	"BNBUSDT":  2,
	"XRPUSDT":  1,
	"DOGEUSDT": 0,
	"ADAUSDT":  0,
	"LINKUSDT": 2,
	"AVAXUSDT": 1,
	"DOTUSDT":  1,
}

// QuantityPrecisionFor returns the rounding precision for order
// quantities on the given symbol.
func QuantityPrecisionFor(symbol string) int32 {
	if p, ok := quantityPrecision[symbol]; ok {
		return p
	}
	return 3
}

// BotConfig is the immutable per-bot configuration. Optional numeric
// parameters are pointers; nil means "use the risk-level default".
type BotConfig struct {
	ID              string    `json:"bot_id" db:"id"`
	Name            string    `json:"bot_name" db:"name"`
	Symbol          string    `json:"symbol" db:"symbol"`
	Exchange        string    `json:"exchange" db:"exchange"`
	RiskLevel       RiskLevel `json:"risk_level" db:"risk_level"`
	Leverage        *int      `json:"leverage,omitempty" db:"leverage"`
	PositionSizePct *float64  `json:"position_size_pct,omitempty" db:"position_size_pct"`
	TakeProfitPct   *float64  `json:"take_profit_pct,omitempty" db:"take_profit_pct"`
	StopLossPct     *float64  `json:"stop_loss_pct,omitempty" db:"stop_loss_pct"`
	TimeCutMinutes  *int      `json:"time_cut_minutes,omitempty" db:"time_cut_minutes"`
	RSIOversold     *float64  `json:"rsi_oversold,omitempty" db:"rsi_oversold"`
	RSIOverbought   *float64  `json:"rsi_overbought,omitempty" db:"rsi_overbought"`
	VolumeThreshold *float64  `json:"volume_threshold,omitempty" db:"volume_threshold"`
	IsTestnet       bool      `json:"is_testnet" db:"is_testnet"`
	IsActive        bool      `json:"is_active" db:"is_active"`
	Description     string    `json:"description,omitempty" db:"description"`
	CreatedAt       time.Time `json:"created_at,omitempty" db:"created_at"`
	UpdatedAt       time.Time `json:"updated_at,omitempty" db:"updated_at"`
}

// Validate checks name, symbol and parameter ranges. The symbol must be
// uppercase, end in USDT and pass the whitelist.
func (c *BotConfig) Validate() error {
	if l := len(c.Name); l < 1 || l > 50 {
		return fmt.Errorf("bot name must be 1-50 characters, got %d", l)
	}
	if c.Symbol != strings.ToUpper(c.Symbol) || !strings.HasSuffix(c.Symbol, "USDT") {
		return fmt.Errorf("symbol %q must be uppercase and end in USDT", c.Symbol)
	}
	if !SymbolAllowed(c.Symbol) {
		return fmt.Errorf("symbol %q is not in the allowed list", c.Symbol)
	}
	switch c.RiskLevel {
	case RiskLow, RiskMedium, RiskHigh:
	default:
		return fmt.Errorf("unknown risk level %q", c.RiskLevel)
	}
	if c.Leverage != nil && (*c.Leverage < 1 || *c.Leverage > 125) {
		return fmt.Errorf("leverage must be within [1,125], got %d", *c.Leverage)
	}
	if c.PositionSizePct != nil && (*c.PositionSizePct <= 0 || *c.PositionSizePct > 1) {
		return fmt.Errorf("position size pct must be within (0,1], got %v", *c.PositionSizePct)
	}
	if c.TakeProfitPct != nil && *c.TakeProfitPct <= 0 {
		return fmt.Errorf("take profit pct must be positive, got %v", *c.TakeProfitPct)
	}
	if c.StopLossPct != nil && *c.StopLossPct <= 0 {
		return fmt.Errorf("stop loss pct must be positive, got %v", *c.StopLossPct)
	}
	if c.TimeCutMinutes != nil && *c.TimeCutMinutes <= 0 {
		return fmt.Errorf("time cut minutes must be positive, got %d", *c.TimeCutMinutes)
	}
	return nil
}

// Warnings returns advisory findings that do not fail validation.
func (c *BotConfig) Warnings() []string {
	var out []string
	if c.PositionSizePct != nil && *c.PositionSizePct > 0.1 {
		out = append(out, fmt.Sprintf("position size %.0f%% of capital exceeds 10%%", *c.PositionSizePct*100))
	}
	return out
}

// EffectiveLeverage returns the explicit value or the risk-level default.
func (c *BotConfig) EffectiveLeverage() int {
	if c.Leverage != nil {
		return *c.Leverage
	}
	return DefaultsFor(c.RiskLevel).Leverage
}

func (c *BotConfig) EffectivePositionSizePct() float64 {
	if c.PositionSizePct != nil {
		return *c.PositionSizePct
	}
	return DefaultsFor(c.RiskLevel).PositionSizePct
}

func (c *BotConfig) EffectiveTakeProfitPct() float64 {
	if c.TakeProfitPct != nil {
		return *c.TakeProfitPct
	}
	return DefaultsFor(c.RiskLevel).TakeProfitPct
}

func (c *BotConfig) EffectiveStopLossPct() float64 {
	if c.StopLossPct != nil {
		return *c.StopLossPct
	}
	return DefaultsFor(c.RiskLevel).StopLossPct
}

func (c *BotConfig) EffectiveTimeCutMinutes() int {
	if c.TimeCutMinutes != nil {
		return *c.TimeCutMinutes
	}
	return DefaultsFor(c.RiskLevel).TimeCutMinutes
}

func (c *BotConfig) EffectiveRSIOversold() float64 {
	if c.RSIOversold != nil {
		return *c.RSIOversold
	}
	return DefaultsFor(c.RiskLevel).RSIOversold
}

func (c *BotConfig) EffectiveRSIOverbought() float64 {
	if c.RSIOverbought != nil {
		return *c.RSIOverbought
	}
	return DefaultsFor(c.RiskLevel).RSIOverbought
}

func (c *BotConfig) EffectiveVolumeThreshold() float64 {
	if c.VolumeThreshold != nil {
		return *c.VolumeThreshold
	}
	return DefaultsFor(c.RiskLevel).VolumeThreshold
}

// Position is the bot's open futures position. At most one per bot.
type Position struct {
	Symbol     string          `json:"symbol"`
	Side       PositionSide    `json:"side"`
	EntryPrice decimal.Decimal `json:"entry_price"`
	Quantity   decimal.Decimal `json:"quantity"`
	EntryTime  time.Time       `json:"entry_time"`
	Leverage   int             `json:"leverage"`
	TradeID    string          `json:"trade_id,omitempty"`
	OrderID    string          `json:"order_id,omitempty"`
}

// PnLPercent returns the unleveraged profit percentage at the given
// price: (price/entry - 1)*100 for LONG, negated for SHORT.
func (p *Position) PnLPercent(price decimal.Decimal) decimal.Decimal {
	if p.EntryPrice.IsZero() {
		return decimal.Zero
	}
	pct := price.Div(p.EntryPrice).Sub(decimal.NewFromInt(1)).Mul(decimal.NewFromInt(100))
	if p.Side == PositionShort {
		return pct.Neg()
	}
	return pct
}

// ToMap flattens the position for the state store hash.
func (p *Position) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"symbol":      p.Symbol,
		"side":        string(p.Side),
		"entry_price": p.EntryPrice,
		"quantity":    p.Quantity,
		"entry_time":  p.EntryTime,
		"leverage":    p.Leverage,
		"trade_id":    p.TradeID,
		"order_id":    p.OrderID,
	}
}

// PositionFromMap rebuilds a position from a decoded state hash.
// Returns nil when the map has no usable side field.
func PositionFromMap(m map[string]interface{}) *Position {
	side, _ := m["side"].(string)
	switch PositionSide(side) {
	case PositionLong, PositionShort:
	default:
		return nil
	}

	p := &Position{
		Symbol:     mapString(m, "symbol"),
		Side:       PositionSide(side),
		EntryPrice: mapDecimal(m, "entry_price"),
		Quantity:   mapDecimal(m, "quantity"),
		Leverage:   int(mapInt(m, "leverage")),
		TradeID:    mapString(m, "trade_id"),
		OrderID:    mapString(m, "order_id"),
	}
	if t, ok := m["entry_time"].(time.Time); ok {
		p.EntryTime = t
	}
	return p
}

// RuntimeState is the mutable per-bot state owned by the bot instance.
type RuntimeState struct {
	IsRunning      bool            `json:"is_running"`
	IsPaused       bool            `json:"is_paused"`
	EmergencyClose bool            `json:"emergency_close"`
	UptimeStart    time.Time       `json:"uptime_start"`
	LoopCount      int64           `json:"loop_count"`
	CurrentPrice   decimal.Decimal `json:"current_price"`
	LastSignal     SignalKind      `json:"last_signal"`
	LastSignalTime time.Time       `json:"last_signal_time"`
	Position       *Position       `json:"position,omitempty"`
}

// ToMap flattens the runtime state for the state store hash. The
// position travels in its own hash, so it is not included here.
func (s *RuntimeState) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"is_running":       s.IsRunning,
		"is_paused":        s.IsPaused,
		"emergency_close":  s.EmergencyClose,
		"uptime_start":     s.UptimeStart,
		"loop_count":       s.LoopCount,
		"current_price":    s.CurrentPrice,
		"last_signal":      string(s.LastSignal),
		"last_signal_time": s.LastSignalTime,
	}
}

// RuntimeStateFromMap rebuilds runtime state from a decoded hash.
func RuntimeStateFromMap(m map[string]interface{}) RuntimeState {
	s := RuntimeState{
		IsRunning:      mapBool(m, "is_running"),
		IsPaused:       mapBool(m, "is_paused"),
		EmergencyClose: mapBool(m, "emergency_close"),
		LoopCount:      mapInt(m, "loop_count"),
		CurrentPrice:   mapDecimal(m, "current_price"),
	}
	if kind, ok := ParseSignalKind(mapString(m, "last_signal")); ok {
		s.LastSignal = kind
	} else {
		s.LastSignal = SignalWait
	}
	if t, ok := m["uptime_start"].(time.Time); ok {
		s.UptimeStart = t
	}
	if t, ok := m["last_signal_time"].(time.Time); ok {
		s.LastSignalTime = t
	}
	return s
}

// Ticker24h is the 24-hour rolling ticker snapshot.
type Ticker24h struct {
	Symbol    string          `json:"symbol"`
	High      decimal.Decimal `json:"high"`
	Low       decimal.Decimal `json:"low"`
	ChangePct decimal.Decimal `json:"change_pct"`
	Volume    decimal.Decimal `json:"volume"`
}

// Candle represents OHLCV candlestick data
type Candle struct {
	Timestamp time.Time       `json:"timestamp"`
	Open      decimal.Decimal `json:"open"`
	High      decimal.Decimal `json:"high"`
	Low       decimal.Decimal `json:"low"`
	Close     decimal.Decimal `json:"close"`
	Volume    decimal.Decimal `json:"volume"`
}

// OrderResult is the acknowledgement for a filled market order.
// AvgPrice is zero when the venue omits the fill price.
type OrderResult struct {
	OrderID   string          `json:"order_id"`
	Symbol    string          `json:"symbol"`
	Side      OrderSide       `json:"side"`
	FilledQty decimal.Decimal `json:"filled_qty"`
	AvgPrice  decimal.Decimal `json:"avg_price"`
}

// ExchangePosition is the venue's view of an open position.
type ExchangePosition struct {
	Symbol     string          `json:"symbol"`
	Side       PositionSide    `json:"side"`
	Amount     decimal.Decimal `json:"amount"`
	EntryPrice decimal.Decimal `json:"entry_price"`
	Leverage   int             `json:"leverage"`
}

// AccountBalance is the USDT-margined futures wallet snapshot.
type AccountBalance struct {
	Available     decimal.Decimal `json:"available"`
	Balance       decimal.Decimal `json:"balance"`
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl"`
}

// IndicatorSet holds the derived technicals for one market snapshot.
// Values are plain floats; they never travel on the wire.
type IndicatorSet struct {
	RSI           float64 `json:"rsi"`
	MA7           float64 `json:"ma7"`
	MA25          float64 `json:"ma25"`
	MA99          float64 `json:"ma99"`
	ATR           float64 `json:"atr"`
	VolumeRatio   float64 `json:"volume_ratio"`
	MACD          float64 `json:"macd"`
	MACDSignal    float64 `json:"macd_signal"`
	MACDHistogram float64 `json:"macd_histogram"`
	BodyPct       float64 `json:"body_pct"`
	UpperWickPct  float64 `json:"upper_wick_pct"`
	LowerWickPct  float64 `json:"lower_wick_pct"`
	Bullish       bool    `json:"bullish"`
	Support       float64 `json:"support"`
	Resistance    float64 `json:"resistance"`
}

// MarketSnapshot aggregates one tick's view of the market.
type MarketSnapshot struct {
	Symbol     string          `json:"symbol"`
	Timestamp  time.Time       `json:"timestamp"`
	Price      decimal.Decimal `json:"price"`
	Candles    []Candle        `json:"candles"`
	Ticker     *Ticker24h      `json:"ticker,omitempty"`
	Indicators *IndicatorSet   `json:"indicators,omitempty"`
}

// IndividualSignal is one source's vote inside the ensemble.
type IndividualSignal struct {
	Source     string     `json:"source"`
	Kind       SignalKind `json:"kind"`
	Confidence float64    `json:"confidence"`
	Weight     float64    `json:"weight"`
	Reason     string     `json:"reason"`
}

// Vote returns the source's contribution to the weighted score.
func (s IndividualSignal) Vote() float64 {
	switch s.Kind {
	case SignalLong:
		return s.Weight * s.Confidence
	case SignalShort:
		return -s.Weight * s.Confidence
	}
	return 0
}

// EnsembleResult is the blended decision over all voting sources.
type EnsembleResult struct {
	FinalSignal    SignalKind         `json:"final_signal"`
	Signals        []IndividualSignal `json:"signals"`
	ConsensusRatio float64            `json:"consensus_ratio"`
	WeightedScore  float64            `json:"weighted_score"`
	Metadata       string             `json:"metadata,omitempty"`
}

// Trade is one ledger row. Exit fields stay NULL while status is OPEN.
// EntryRSI records the indicator value at entry so historical
// performance can be grouped by RSI zone.
type Trade struct {
	ID              string           `json:"id" db:"id"`
	BotID           string           `json:"bot_id" db:"bot_id"`
	Symbol          string           `json:"symbol" db:"symbol"`
	Side            PositionSide     `json:"side" db:"side"`
	EntryTime       time.Time        `json:"entry_time" db:"entry_time"`
	EntryPrice      decimal.Decimal  `json:"entry_price" db:"entry_price"`
	Quantity        decimal.Decimal  `json:"quantity" db:"quantity"`
	Leverage        int              `json:"leverage" db:"leverage"`
	EntryRSI        *float64         `json:"entry_rsi,omitempty" db:"entry_rsi"`
	ExitTime        *time.Time       `json:"exit_time,omitempty" db:"exit_time"`
	ExitPrice       *decimal.Decimal `json:"exit_price,omitempty" db:"exit_price"`
	ExitReason      *ExitReason      `json:"exit_reason,omitempty" db:"exit_reason"`
	PnL             *decimal.Decimal `json:"pnl,omitempty" db:"pnl"`
	PnLPct          *float64         `json:"pnl_pct,omitempty" db:"pnl_pct"`
	DurationMinutes *int             `json:"duration_minutes,omitempty" db:"duration_minutes"`
	Status          TradeStatus      `json:"status" db:"status"`
}

// TradeEventType distinguishes entry and exit callbacks
type TradeEventType string

const (
	TradeEventOpen  TradeEventType = "OPEN"
	TradeEventClose TradeEventType = "CLOSE"
)

// TradeEvent is the payload delivered to trade callbacks.
type TradeEvent struct {
	Type     TradeEventType  `json:"type"`
	TradeID  string          `json:"trade_id"`
	Symbol   string          `json:"symbol"`
	Side     PositionSide    `json:"side"`
	Quantity decimal.Decimal `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
	Reason   ExitReason      `json:"reason,omitempty"`
	PnL      decimal.Decimal `json:"pnl"`
	PnLPct   float64         `json:"pnl_pct"`

	// DurationMinutes is how long the position was held, zero on OPEN.
	DurationMinutes int64 `json:"duration_minutes,omitempty"`
}

// Callback signatures fanned out by the manager to every bot.
type (
	SignalCallback func(botName string, result *EnsembleResult)
	TradeCallback  func(botName string, event *TradeEvent)
	ErrorCallback  func(botName string, err error)
)

// map access helpers for decoded state hashes

func mapString(m map[string]interface{}, key string) string {
	s, _ := m[key].(string)
	return s
}

func mapBool(m map[string]interface{}, key string) bool {
	b, _ := m[key].(bool)
	return b
}

func mapInt(m map[string]interface{}, key string) int64 {
	switch v := m[key].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	}
	return 0
}

func mapDecimal(m map[string]interface{}, key string) decimal.Decimal {
	switch v := m[key].(type) {
	case decimal.Decimal:
		return v
	case float64:
		return decimal.NewFromFloat(v)
	case int64:
		return decimal.NewFromInt(v)
	}
	return decimal.Zero
}
