package bot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/alexanderselivanov/botfleet/internal/adapters/exchange"
	"github.com/alexanderselivanov/botfleet/internal/adapters/redis"
	"github.com/alexanderselivanov/botfleet/internal/indicators"
	"github.com/alexanderselivanov/botfleet/internal/ledger"
	"github.com/alexanderselivanov/botfleet/internal/signal"
	"github.com/alexanderselivanov/botfleet/pkg/logger"
	"github.com/alexanderselivanov/botfleet/pkg/metrics"
	"github.com/alexanderselivanov/botfleet/pkg/models"
)

// persistTimeout bounds the final state write during shutdown.
const persistTimeout = 5 * time.Second

// Instance drives one bot's decision loop. All venue interaction happens
// inside the loop goroutine; the mutex only guards runtime state read by
// status snapshots and control methods.
type Instance struct {
	cfg  *models.BotConfig
	deps Deps
	calc *indicators.Calculator

	mu    sync.RWMutex
	state models.RuntimeState
	cbs   callbacks

	// venue belongs to the active run session and is never touched from
	// outside the loop goroutine. lock is mu-guarded so the state
	// janitor can refresh it between ticks.
	venue exchange.Client
	lock  redis.RunLock

	// kickCh wakes the loop for an immediate tick after an emergency
	// close request instead of waiting out the interval.
	kickCh chan struct{}
}

type callbacks struct {
	onSignal models.SignalCallback
	onTrade  models.TradeCallback
	onError  models.ErrorCallback
}

// NewInstance builds a bot around a validated config.
func NewInstance(cfg *models.BotConfig, deps Deps) *Instance {
	if deps.Retry.MaxAttempts <= 0 {
		deps.Retry = exchange.DefaultRetryConfig()
	}
	return &Instance{
		cfg:    cfg,
		deps:   deps,
		calc:   indicators.NewCalculator(),
		kickCh: make(chan struct{}, 1),
		state:  models.RuntimeState{LastSignal: models.SignalWait},
	}
}

// Name returns the unique bot name.
func (b *Instance) Name() string { return b.cfg.Name }

// Config returns the bot's immutable configuration.
func (b *Instance) Config() *models.BotConfig { return b.cfg }

// IsRunning reports whether a run session is active.
func (b *Instance) IsRunning() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state.IsRunning
}

// Pause blocks new entries. Exit checks and emergency closes still run.
func (b *Instance) Pause() {
	b.mu.Lock()
	b.state.IsPaused = true
	b.mu.Unlock()
	logger.Info("bot paused", zap.String("bot", b.cfg.Name))
}

// Resume lifts a pause.
func (b *Instance) Resume() {
	b.mu.Lock()
	b.state.IsPaused = false
	b.mu.Unlock()
	logger.Info("bot resumed", zap.String("bot", b.cfg.Name))
}

// RequestEmergencyClose asks the loop to flatten the position and pause
// on its next tick, and wakes it so that tick happens now.
func (b *Instance) RequestEmergencyClose() {
	b.mu.Lock()
	b.state.EmergencyClose = true
	b.mu.Unlock()

	select {
	case b.kickCh <- struct{}{}:
	default:
	}
	logger.Warn("emergency close requested", zap.String("bot", b.cfg.Name))
}

// RecordExternalSignal notes a webhook-delivered signal on the status.
// The loop's own tick decisions are unaffected.
func (b *Instance) RecordExternalSignal(kind models.SignalKind, source string) {
	b.mu.Lock()
	b.state.LastSignal = kind
	b.state.LastSignalTime = time.Now().UTC()
	b.mu.Unlock()
	logger.Info("external signal recorded",
		zap.String("bot", b.cfg.Name),
		zap.String("signal", string(kind)),
		zap.String("source", source),
	)
}

func (b *Instance) setCallbacks(cbs callbacks) {
	b.mu.Lock()
	b.cbs = cbs
	b.mu.Unlock()
}

// Run executes the trading loop until stop is closed or ctx is
// cancelled. A stop request takes effect between ticks; a tick already
// in flight finishes first. The lock, when non-nil, is refreshed on
// every tick persist and released on exit.
func (b *Instance) Run(ctx context.Context, stop <-chan struct{}, lock redis.RunLock) {
	name := b.cfg.Name

	if lock != nil {
		defer b.releaseLock(lock)
	}

	venue, err := b.deps.Venues(b.cfg)
	if err != nil {
		err = fmt.Errorf("failed to create exchange client: %w", err)
		logger.Error("bot start failed", zap.String("bot", name), zap.Error(err))
		b.reportError(err)
		return
	}
	b.venue = venue
	b.mu.Lock()
	b.lock = lock
	b.mu.Unlock()
	defer func() {
		b.venue = nil
		b.mu.Lock()
		b.lock = nil
		b.mu.Unlock()
		if err := venue.Close(); err != nil {
			logger.Warn("failed to close exchange client", zap.String("bot", name), zap.Error(err))
		}
	}()

	b.restore(ctx)

	b.deps.Store.RegisterBot(ctx, name)
	b.deps.Store.SetBotRunning(ctx, name)

	b.mu.Lock()
	b.state.IsRunning = true
	b.state.UptimeStart = time.Now().UTC()
	b.mu.Unlock()

	logger.Info("🤖 bot started",
		zap.String("bot", name),
		zap.String("symbol", b.cfg.Symbol),
		zap.String("exchange", venue.Name()),
		zap.Duration("interval", b.deps.Orchestrator.LoopInterval),
	)

	ticker := time.NewTicker(b.deps.Orchestrator.LoopInterval)
	defer ticker.Stop()

	b.runTick(ctx)

	for {
		select {
		case <-ctx.Done():
			b.shutdown()
			return
		case <-stop:
			b.shutdown()
			return
		case <-b.kickCh:
			b.runTick(ctx)
		case <-ticker.C:
			b.runTick(ctx)
		}
	}
}

// restore reloads runtime state and position from the state store so a
// restart picks up where the previous session left off. IsRunning and
// UptimeStart always start fresh.
func (b *Instance) restore(ctx context.Context) {
	name := b.cfg.Name

	if m, ok := b.deps.Store.LoadBotState(ctx, name); ok {
		prev := models.RuntimeStateFromMap(m)
		b.mu.Lock()
		b.state.IsPaused = prev.IsPaused
		b.state.EmergencyClose = prev.EmergencyClose
		b.state.LoopCount = prev.LoopCount
		b.state.CurrentPrice = prev.CurrentPrice
		b.state.LastSignal = prev.LastSignal
		b.state.LastSignalTime = prev.LastSignalTime
		b.mu.Unlock()
	}

	if m, ok := b.deps.Store.LoadPosition(ctx, name); ok {
		if pos := models.PositionFromMap(m); pos != nil {
			b.mu.Lock()
			b.state.Position = pos
			b.mu.Unlock()
			logger.Info("restored position from state store",
				zap.String("bot", name),
				zap.String("side", string(pos.Side)),
				zap.String("entry_price", pos.EntryPrice.String()),
			)
		}
	}
}

func (b *Instance) shutdown() {
	name := b.cfg.Name

	b.mu.Lock()
	b.state.IsRunning = false
	loops := b.state.LoopCount
	b.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	b.persist(ctx)
	b.deps.Store.SetBotStopped(ctx, name)

	logger.Info("bot stopped", zap.String("bot", name), zap.Int64("loops", loops))
}

func (b *Instance) releaseLock(lock redis.RunLock) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := lock.Release(ctx); err != nil {
		logger.Warn("failed to release run lock", zap.String("bot", b.cfg.Name), zap.Error(err))
	}
}

// runTick executes one cycle and always finishes with a state persist,
// a lock refresh and a metrics row, so a failed cycle still leaves a
// trace and keeps the replica lock alive through venue outages.
func (b *Instance) runTick(ctx context.Context) {
	started := time.Now()
	result, err := b.tick(ctx)
	latency := time.Since(started)

	if err != nil {
		logger.Error("tick failed", zap.String("bot", b.cfg.Name), zap.Error(err))
		b.reportError(err)
	}

	b.mu.Lock()
	b.state.LoopCount++
	b.mu.Unlock()

	b.persist(ctx)
	b.recordTick(result, latency, err)
}

// tick runs one decision cycle: snapshot, signal, emergency close,
// reconcile, exit checks, entry. An error aborts the remaining steps.
func (b *Instance) tick(ctx context.Context) (*models.EnsembleResult, error) {
	snapshot, err := b.collectSnapshot(ctx)
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	b.state.CurrentPrice = snapshot.Price
	b.mu.Unlock()

	result := b.generateSignal(ctx, snapshot)

	b.mu.Lock()
	b.state.LastSignal = result.FinalSignal
	b.state.LastSignalTime = snapshot.Timestamp
	emergency := b.state.EmergencyClose
	b.mu.Unlock()

	b.reportSignal(result)

	entryAllowed := true
	if emergency {
		if err := b.closeLive(ctx, models.ExitManual, snapshot.Price); err != nil {
			return result, fmt.Errorf("emergency close failed: %w", err)
		}
		b.mu.Lock()
		b.state.EmergencyClose = false
		b.state.IsPaused = true
		b.mu.Unlock()
		entryAllowed = false
		logger.Warn("emergency close handled, bot paused", zap.String("bot", b.cfg.Name))
	}

	if err := b.reconcile(ctx); err != nil {
		return result, err
	}

	exited, err := b.checkExits(ctx, snapshot)
	if err != nil {
		return result, err
	}
	if exited {
		entryAllowed = false
	}

	if entryAllowed {
		if err := b.maybeEnter(ctx, snapshot, result); err != nil {
			return result, err
		}
	}

	return result, nil
}

// collectSnapshot gathers price, klines, the 24h ticker and derived
// indicators. Price and klines are required; ticker and indicators
// degrade to nil so the voters can still work from raw candles.
func (b *Instance) collectSnapshot(ctx context.Context) (*models.MarketSnapshot, error) {
	symbol := b.cfg.Symbol
	orch := b.deps.Orchestrator

	var price decimal.Decimal
	err := exchange.WithRetry(ctx, "get current price", b.deps.Retry, func() error {
		cctx, cancel := b.exchangeCtx(ctx)
		defer cancel()
		p, err := b.venue.GetCurrentPrice(cctx, symbol)
		if err != nil {
			return err
		}
		price = p
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch price: %w", err)
	}

	var candles []models.Candle
	err = exchange.WithRetry(ctx, "get klines", b.deps.Retry, func() error {
		cctx, cancel := b.exchangeCtx(ctx)
		defer cancel()
		c, err := b.venue.GetKlines(cctx, symbol, orch.KlineInterval, orch.KlineLimit)
		if err != nil {
			return err
		}
		candles = c
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch klines: %w", err)
	}

	snapshot := &models.MarketSnapshot{
		Symbol:    symbol,
		Timestamp: time.Now().UTC(),
		Price:     price,
		Candles:   candles,
	}

	err = exchange.WithRetry(ctx, "get 24h ticker", b.deps.Retry, func() error {
		cctx, cancel := b.exchangeCtx(ctx)
		defer cancel()
		t, err := b.venue.GetTicker24h(cctx, symbol)
		if err != nil {
			return err
		}
		snapshot.Ticker = t
		return nil
	})
	if err != nil {
		logger.Warn("24h ticker unavailable", zap.String("bot", b.cfg.Name), zap.Error(err))
	}

	ind, err := b.calc.Calculate(candles)
	if err != nil {
		logger.Warn("indicator calculation failed", zap.String("bot", b.cfg.Name), zap.Error(err))
	} else {
		snapshot.Indicators = ind
	}

	return snapshot, nil
}

func (b *Instance) exchangeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, b.deps.Orchestrator.ExchangeTimeout)
}

func (b *Instance) generateSignal(ctx context.Context, snapshot *models.MarketSnapshot) *models.EnsembleResult {
	in := &signal.Input{BotID: b.cfg.ID, Config: b.cfg, Snapshot: snapshot}
	if b.deps.Orchestrator.SignalMode == "rule" {
		return b.deps.Signals.RuleOnly(ctx, in)
	}
	return b.deps.Signals.Generate(ctx, in)
}

// reconcile aligns local position state with the venue. The exchange is
// the source of truth: a live position missing locally is adopted, a
// local position missing on the venue is dropped.
func (b *Instance) reconcile(ctx context.Context) error {
	var live *models.ExchangePosition
	err := exchange.WithRetry(ctx, "get position", b.deps.Retry, func() error {
		cctx, cancel := b.exchangeCtx(ctx)
		defer cancel()
		p, err := b.venue.GetPosition(cctx, b.cfg.Symbol)
		if err != nil {
			return err
		}
		live = p
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to reconcile position: %w", err)
	}

	b.mu.RLock()
	local := b.state.Position
	b.mu.RUnlock()

	if live == nil {
		if local != nil {
			logger.Warn("venue reports flat, dropping local position",
				zap.String("bot", b.cfg.Name),
				zap.String("trade_id", local.TradeID),
			)
			b.setPosition(nil)
		}
		return nil
	}

	pos := &models.Position{
		Symbol:     b.cfg.Symbol,
		Side:       live.Side,
		EntryPrice: live.EntryPrice,
		Quantity:   live.Amount,
		Leverage:   live.Leverage,
		EntryTime:  time.Now().UTC(),
	}

	switch {
	case local == nil:
		logger.Info("adopting live position from venue",
			zap.String("bot", b.cfg.Name),
			zap.String("side", string(live.Side)),
			zap.String("entry_price", live.EntryPrice.String()),
		)
	case local.Side == live.Side:
		pos.EntryTime = local.EntryTime
		pos.TradeID = local.TradeID
		pos.OrderID = local.OrderID
	default:
		logger.Warn("position side changed on venue, treating as new",
			zap.String("bot", b.cfg.Name),
			zap.String("local", string(local.Side)),
			zap.String("venue", string(live.Side)),
		)
	}

	if pos.TradeID == "" {
		b.attachTradeRow(ctx, pos)
	}

	b.setPosition(pos)
	return nil
}

// attachTradeRow links an adopted position to its open ledger row,
// creating one when the entry-time insert never landed.
func (b *Instance) attachTradeRow(ctx context.Context, pos *models.Position) {
	row, err := b.deps.Ledger.FindOpenTrade(ctx, b.cfg.ID, b.cfg.Symbol)
	if err != nil {
		logger.Warn("ledger lookup failed during reconcile", zap.String("bot", b.cfg.Name), zap.Error(err))
		return
	}
	if row != nil {
		pos.TradeID = row.ID
		if !row.EntryTime.IsZero() {
			pos.EntryTime = row.EntryTime
		}
		return
	}

	trade := &models.Trade{
		ID:         uuid.NewString(),
		BotID:      b.cfg.ID,
		Symbol:     pos.Symbol,
		Side:       pos.Side,
		EntryTime:  pos.EntryTime,
		EntryPrice: pos.EntryPrice,
		Quantity:   pos.Quantity,
		Leverage:   pos.Leverage,
		Status:     models.TradeOpen,
	}
	if err := b.deps.Ledger.OpenTrade(ctx, trade); err != nil {
		logger.Warn("failed to backfill trade row", zap.String("bot", b.cfg.Name), zap.Error(err))
		return
	}
	pos.TradeID = trade.ID
	logger.Info("backfilled trade row for adopted position",
		zap.String("bot", b.cfg.Name),
		zap.String("trade_id", trade.ID),
	)
}

// checkExits applies the exit rules in priority order: time cut, take
// profit, stop loss. The first match closes the position.
func (b *Instance) checkExits(ctx context.Context, snapshot *models.MarketSnapshot) (bool, error) {
	b.mu.RLock()
	pos := b.state.Position
	b.mu.RUnlock()
	if pos == nil {
		return false, nil
	}

	held := snapshot.Timestamp.Sub(pos.EntryTime)
	cutoff := time.Duration(b.cfg.EffectiveTimeCutMinutes()) * time.Minute
	if held >= cutoff {
		logger.Info("time cut reached", zap.String("bot", b.cfg.Name), zap.Duration("held", held))
		return true, b.closeLive(ctx, models.ExitTimeCut, snapshot.Price)
	}

	pnlPct := pos.PnLPercent(snapshot.Price)
	tp := decimal.NewFromFloat(b.cfg.EffectiveTakeProfitPct() * 100)
	sl := decimal.NewFromFloat(b.cfg.EffectiveStopLossPct() * 100).Neg()

	switch {
	case pnlPct.GreaterThanOrEqual(tp):
		return true, b.closeLive(ctx, models.ExitTakeProfit, snapshot.Price)
	case pnlPct.LessThanOrEqual(sl):
		return true, b.closeLive(ctx, models.ExitStopLoss, snapshot.Price)
	}

	return false, nil
}

// closeLive flattens the live venue position and records the exit. The
// venue is queried first; when it reports flat there is nothing to do
// and the next reconcile clears any stale local state.
func (b *Instance) closeLive(ctx context.Context, reason models.ExitReason, markPrice decimal.Decimal) error {
	symbol := b.cfg.Symbol

	var live *models.ExchangePosition
	err := exchange.WithRetry(ctx, "get position", b.deps.Retry, func() error {
		cctx, cancel := b.exchangeCtx(ctx)
		defer cancel()
		p, err := b.venue.GetPosition(cctx, symbol)
		if err != nil {
			return err
		}
		live = p
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to query position before close: %w", err)
	}
	if live == nil {
		return nil
	}

	var result *models.OrderResult
	err = exchange.WithRetry(ctx, "close position", b.deps.Retry, func() error {
		cctx, cancel := b.exchangeCtx(ctx)
		defer cancel()
		r, err := b.venue.ClosePosition(cctx, symbol)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to close position: %w", err)
	}

	exitPrice := markPrice
	if result != nil && !result.AvgPrice.IsZero() {
		exitPrice = result.AvgPrice
	}

	b.mu.RLock()
	local := b.state.Position
	b.mu.RUnlock()

	pos := &models.Position{
		Symbol:     symbol,
		Side:       live.Side,
		EntryPrice: live.EntryPrice,
		Quantity:   live.Amount,
		Leverage:   live.Leverage,
		EntryTime:  time.Now().UTC(),
	}
	if local != nil && local.Side == live.Side {
		pos.EntryTime = local.EntryTime
		pos.TradeID = local.TradeID
	}
	if pos.TradeID == "" {
		if row, err := b.deps.Ledger.FindOpenTrade(ctx, b.cfg.ID, symbol); err == nil && row != nil {
			pos.TradeID = row.ID
			if !row.EntryTime.IsZero() {
				pos.EntryTime = row.EntryTime
			}
		}
	}

	now := time.Now().UTC()
	pnlPct := pos.PnLPercent(exitPrice)
	pnl := exitPrice.Sub(pos.EntryPrice).Mul(pos.Quantity)
	if pos.Side == models.PositionShort {
		pnl = pnl.Neg()
	}
	duration := int(now.Sub(pos.EntryTime).Minutes())

	if pos.TradeID == "" {
		logger.Warn("closed position has no trade row", zap.String("bot", b.cfg.Name))
	} else {
		err := b.deps.Ledger.CloseTrade(ctx, pos.TradeID, ledger.CloseParams{
			ExitTime:        now,
			ExitPrice:       exitPrice,
			Reason:          reason,
			PnL:             pnl,
			PnLPct:          pnlPct.InexactFloat64(),
			DurationMinutes: duration,
		})
		switch {
		case errors.Is(err, ledger.ErrTradeNotOpen):
			logger.Warn("trade row already closed",
				zap.String("bot", b.cfg.Name),
				zap.String("trade_id", pos.TradeID),
			)
		case err != nil:
			logger.Warn("failed to record trade close", zap.String("bot", b.cfg.Name), zap.Error(err))
		}
	}

	b.setPosition(nil)

	logger.Info("position closed",
		zap.String("bot", b.cfg.Name),
		zap.String("reason", string(reason)),
		zap.String("side", string(pos.Side)),
		zap.String("exit_price", exitPrice.String()),
		zap.String("pnl_pct", pnlPct.StringFixed(3)),
	)

	b.reportTrade(&models.TradeEvent{
		Type:            models.TradeEventClose,
		TradeID:         pos.TradeID,
		Symbol:          symbol,
		Side:            pos.Side,
		Quantity:        pos.Quantity,
		Price:           exitPrice,
		Reason:          reason,
		PnL:             pnl,
		PnLPct:          pnlPct.InexactFloat64(),
		DurationMinutes: int64(duration),
	})

	return nil
}

// maybeEnter opens a position when the signal calls a direction and
// nothing blocks the entry.
func (b *Instance) maybeEnter(ctx context.Context, snapshot *models.MarketSnapshot, result *models.EnsembleResult) error {
	b.mu.RLock()
	pos := b.state.Position
	paused := b.state.IsPaused
	b.mu.RUnlock()

	if pos != nil || paused {
		return nil
	}

	var side models.PositionSide
	switch result.FinalSignal {
	case models.SignalLong:
		side = models.PositionLong
	case models.SignalShort:
		side = models.PositionShort
	default:
		return nil
	}

	qty := b.positionSize(ctx, snapshot.Price)
	if qty.IsZero() {
		logger.Warn("position size rounds to zero, skipping entry",
			zap.String("bot", b.cfg.Name),
			zap.String("price", snapshot.Price.String()),
		)
		return nil
	}

	leverage := b.cfg.EffectiveLeverage()
	err := exchange.WithRetry(ctx, "set leverage", b.deps.Retry, func() error {
		cctx, cancel := b.exchangeCtx(ctx)
		defer cancel()
		return b.venue.SetLeverage(cctx, b.cfg.Symbol, leverage)
	})
	if err != nil {
		return fmt.Errorf("failed to set leverage: %w", err)
	}

	orderSide := models.SideBuy
	if side == models.PositionShort {
		orderSide = models.SideSell
	}

	var order *models.OrderResult
	err = exchange.WithRetry(ctx, "create market order", b.deps.Retry, func() error {
		cctx, cancel := b.exchangeCtx(ctx)
		defer cancel()
		r, err := b.venue.CreateMarketOrder(cctx, b.cfg.Symbol, orderSide, qty)
		if err != nil {
			return err
		}
		order = r
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to place entry order: %w", err)
	}

	entryPrice := snapshot.Price
	filled := qty
	orderID := ""
	if order != nil {
		if !order.AvgPrice.IsZero() {
			entryPrice = order.AvgPrice
		}
		if !order.FilledQty.IsZero() {
			filled = order.FilledQty
		}
		orderID = order.OrderID
	}

	newPos := &models.Position{
		Symbol:     b.cfg.Symbol,
		Side:       side,
		EntryPrice: entryPrice,
		Quantity:   filled,
		EntryTime:  time.Now().UTC(),
		Leverage:   leverage,
		OrderID:    orderID,
	}

	trade := &models.Trade{
		ID:         uuid.NewString(),
		BotID:      b.cfg.ID,
		Symbol:     b.cfg.Symbol,
		Side:       side,
		EntryTime:  newPos.EntryTime,
		EntryPrice: entryPrice,
		Quantity:   filled,
		Leverage:   leverage,
		EntryRSI:   entryRSI(snapshot),
		Status:     models.TradeOpen,
	}
	if err := b.deps.Ledger.OpenTrade(ctx, trade); err != nil {
		// Reconcile backfills the row on the next tick.
		logger.Warn("failed to record trade open", zap.String("bot", b.cfg.Name), zap.Error(err))
	} else {
		newPos.TradeID = trade.ID
	}

	b.setPosition(newPos)

	logger.Info("position opened",
		zap.String("bot", b.cfg.Name),
		zap.String("side", string(side)),
		zap.String("qty", filled.String()),
		zap.String("entry_price", entryPrice.String()),
		zap.Int("leverage", leverage),
		zap.Float64("score", result.WeightedScore),
	)

	b.reportTrade(&models.TradeEvent{
		Type:     models.TradeEventOpen,
		TradeID:  newPos.TradeID,
		Symbol:   b.cfg.Symbol,
		Side:     side,
		Quantity: filled,
		Price:    entryPrice,
	})

	return nil
}

// positionSize computes the order quantity from capital, size fraction
// and leverage, truncated to the symbol's quantity precision. Balance
// fetch failures fall back to the configured notional so one flaky call
// does not cost an entry.
func (b *Instance) positionSize(ctx context.Context, price decimal.Decimal) decimal.Decimal {
	if price.IsZero() {
		return decimal.Zero
	}

	capital := b.deps.Orchestrator.NotionalCapital
	if b.deps.Orchestrator.UseRealBalance {
		var bal *models.AccountBalance
		err := exchange.WithRetry(ctx, "get account balance", b.deps.Retry, func() error {
			cctx, cancel := b.exchangeCtx(ctx)
			defer cancel()
			a, err := b.venue.GetAccountBalance(cctx)
			if err != nil {
				return err
			}
			bal = a
			return nil
		})
		if err != nil {
			logger.Warn("balance fetch failed, using notional capital",
				zap.String("bot", b.cfg.Name),
				zap.Float64("capital", capital),
				zap.Error(err),
			)
		} else if bal != nil {
			capital = bal.Available.InexactFloat64()
		}
	}

	notional := capital * b.cfg.EffectivePositionSizePct() * float64(b.cfg.EffectiveLeverage())
	qty := decimal.NewFromFloat(notional).Div(price)
	return qty.Truncate(models.QuantityPrecisionFor(b.cfg.Symbol))
}

func entryRSI(snapshot *models.MarketSnapshot) *float64 {
	if snapshot.Indicators == nil {
		return nil
	}
	rsi := snapshot.Indicators.RSI
	return &rsi
}

// persist writes state and position through the store and refreshes the
// run lock. The store logs its own failures; the loop carries on and
// rewrites everything next tick.
func (b *Instance) persist(ctx context.Context) {
	name := b.cfg.Name

	b.mu.RLock()
	stateMap := b.state.ToMap()
	pos := b.state.Position
	b.mu.RUnlock()

	b.deps.Store.SaveBotState(ctx, name, stateMap)
	if pos != nil {
		b.deps.Store.SavePosition(ctx, name, pos.ToMap())
	} else {
		b.deps.Store.DeletePosition(ctx, name)
	}

	if err := b.RefreshLock(ctx); err != nil {
		logger.Error("run lock refresh failed", zap.String("bot", name), zap.Error(err))
	}
}

// RefreshLock extends the run-lock TTL outside the tick cadence, so a
// tick stalled on a slow venue call cannot let the lease lapse mid-run.
// No-op when the bot runs without a lock.
func (b *Instance) RefreshLock(ctx context.Context) error {
	b.mu.RLock()
	lock := b.lock
	b.mu.RUnlock()

	if lock == nil {
		return nil
	}
	return lock.Refresh(ctx)
}

// recordTick emits one metrics row per loop iteration.
func (b *Instance) recordTick(result *models.EnsembleResult, latency time.Duration, tickErr error) {
	if b.deps.Metrics == nil {
		return
	}

	b.mu.RLock()
	price := b.state.CurrentPrice
	b.mu.RUnlock()

	m := &metrics.TickMetric{
		Timestamp: time.Now().UTC(),
		BotName:   b.cfg.Name,
		Symbol:    b.cfg.Symbol,
		Price:     price.InexactFloat64(),
		LatencyMs: latency.Milliseconds(),
	}
	if result != nil {
		m.Signal = string(result.FinalSignal)
		m.WeightedScore = result.WeightedScore
		m.ConsensusRatio = result.ConsensusRatio
	}
	if tickErr != nil {
		m.Error = tickErr.Error()
	}
	if err := b.deps.Metrics.Add(m); err != nil {
		logger.Debug("failed to buffer tick metric", zap.Error(err))
	}
}

func (b *Instance) setPosition(pos *models.Position) {
	b.mu.Lock()
	b.state.Position = pos
	b.mu.Unlock()
}

func (b *Instance) reportSignal(result *models.EnsembleResult) {
	b.mu.RLock()
	cb := b.cbs.onSignal
	b.mu.RUnlock()
	if cb != nil {
		cb(b.cfg.Name, result)
	}
}

func (b *Instance) reportTrade(event *models.TradeEvent) {
	b.mu.RLock()
	cb := b.cbs.onTrade
	b.mu.RUnlock()
	if cb != nil {
		cb(b.cfg.Name, event)
	}
}

func (b *Instance) reportError(err error) {
	b.mu.RLock()
	cb := b.cbs.onError
	b.mu.RUnlock()
	if cb != nil {
		cb(b.cfg.Name, err)
	}
}
