package bot

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/shopspring/decimal"

	"github.com/alexanderselivanov/botfleet/internal/adapters/config"
	"github.com/alexanderselivanov/botfleet/internal/adapters/exchange"
	"github.com/alexanderselivanov/botfleet/internal/adapters/redis"
	"github.com/alexanderselivanov/botfleet/internal/adapters/statestore"
	"github.com/alexanderselivanov/botfleet/internal/ledger"
	"github.com/alexanderselivanov/botfleet/internal/signal"
	"github.com/alexanderselivanov/botfleet/pkg/models"
)

func testOrchestrator() *config.OrchestratorConfig {
	return &config.OrchestratorConfig{
		LoopInterval:    time.Minute,
		SignalMode:      "memory",
		KlineInterval:   "5m",
		KlineLimit:      40,
		NotionalCapital: 1000,
		ExchangeTimeout: time.Second,
		RunLockTTL:      time.Minute,
	}
}

func testBotConfig(name string) *models.BotConfig {
	return &models.BotConfig{
		ID:        "bot-" + name,
		Name:      name,
		Symbol:    "BTCUSDT",
		RiskLevel: models.RiskMedium,
	}
}

func decision(kind models.SignalKind) *models.EnsembleResult {
	return &models.EnsembleResult{
		FinalSignal:    kind,
		WeightedScore:  0.5,
		ConsensusRatio: 1,
		Metadata:       "weighted",
	}
}

func testCandles(n int, base float64) []models.Candle {
	out := make([]models.Candle, n)
	start := time.Now().Add(-time.Duration(n) * 5 * time.Minute)
	for i := range out {
		price := decimal.NewFromFloat(base + float64(i%5))
		out[i] = models.Candle{
			Timestamp: start.Add(time.Duration(i) * 5 * time.Minute),
			Open:      price,
			High:      price.Add(decimal.NewFromInt(5)),
			Low:       price.Sub(decimal.NewFromInt(5)),
			Close:     price,
			Volume:    decimal.NewFromInt(100),
		}
	}
	return out
}

// stubSignals returns canned ensemble decisions.
type stubSignals struct {
	mu     sync.Mutex
	result *models.EnsembleResult
	rule   *models.EnsembleResult
}

func (s *stubSignals) set(result *models.EnsembleResult) {
	s.mu.Lock()
	s.result = result
	s.mu.Unlock()
}

func (s *stubSignals) Generate(context.Context, *signal.Input) *models.EnsembleResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result
}

func (s *stubSignals) RuleOnly(context.Context, *signal.Input) *models.EnsembleResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rule != nil {
		return s.rule
	}
	return s.result
}

// ledgerRecorder captures trade rows in memory. Error fields are set
// before a tick to simulate database failures.
type ledgerRecorder struct {
	mu       sync.Mutex
	opens    []*models.Trade
	closes   []closedTrade
	findRow  *models.Trade
	openErr  error
	closeErr error
	findErr  error
}

type closedTrade struct {
	id     string
	params ledger.CloseParams
}

func (l *ledgerRecorder) OpenTrade(_ context.Context, trade *models.Trade) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.openErr != nil {
		return l.openErr
	}
	cp := *trade
	l.opens = append(l.opens, &cp)
	return nil
}

func (l *ledgerRecorder) CloseTrade(_ context.Context, tradeID string, p ledger.CloseParams) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closeErr != nil {
		return l.closeErr
	}
	l.closes = append(l.closes, closedTrade{id: tradeID, params: p})
	return nil
}

func (l *ledgerRecorder) FindOpenTrade(context.Context, string, string) (*models.Trade, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.findErr != nil {
		return nil, l.findErr
	}
	return l.findRow, nil
}

func (l *ledgerRecorder) openCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.opens)
}

func (l *ledgerRecorder) closeCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.closes)
}

// tickFixture drives ticks synchronously on the test goroutine.
type tickFixture struct {
	inst    *Instance
	venue   *exchange.PaperClient
	trades  *ledgerRecorder
	signals *stubSignals
	store   statestore.Store
	mr      *miniredis.Miniredis

	events []*models.TradeEvent
	errs   []error
}

func newTickFixture(t *testing.T, cfg *models.BotConfig) *tickFixture {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	store, err := statestore.NewRedisStore(&config.RedisConfig{
		Addr:        mr.Addr(),
		KeyPrefix:   "test",
		DialTimeout: time.Second,
		OpTimeout:   time.Second,
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	f := &tickFixture{
		venue:   exchange.NewPaperClient(),
		trades:  &ledgerRecorder{},
		signals: &stubSignals{result: decision(models.SignalWait)},
		store:   store,
		mr:      mr,
	}
	f.venue.SetPrice("BTCUSDT", decimal.NewFromInt(50000))
	f.venue.SetKlines("BTCUSDT", testCandles(40, 50000))

	deps := Deps{
		Orchestrator: testOrchestrator(),
		Venues: func(*models.BotConfig) (exchange.Client, error) {
			return f.venue, nil
		},
		Signals: f.signals,
		Ledger:  f.trades,
		Store:   store,
		Locks:   redis.NewLocalFactory(),
		Retry: exchange.RetryConfig{
			MaxAttempts: 1,
			BaseDelay:   time.Millisecond,
			MaxDelay:    time.Millisecond,
			Multiplier:  2,
		},
	}

	f.inst = NewInstance(cfg, deps)
	f.inst.venue = f.venue
	f.inst.setCallbacks(callbacks{
		onTrade: func(_ string, event *models.TradeEvent) {
			f.events = append(f.events, event)
		},
		onError: func(_ string, err error) {
			f.errs = append(f.errs, err)
		},
	})
	return f
}

func (f *tickFixture) position() *models.Position {
	f.inst.mu.RLock()
	defer f.inst.mu.RUnlock()
	return f.inst.state.Position
}

func (f *tickFixture) runtime() models.RuntimeState {
	f.inst.mu.RLock()
	defer f.inst.mu.RUnlock()
	st := f.inst.state
	return st
}

func TestTickOpensLongPosition(t *testing.T) {
	f := newTickFixture(t, testBotConfig("alpha"))
	f.signals.set(decision(models.SignalLong))

	f.inst.runTick(context.Background())

	orders := f.venue.Orders()
	if len(orders) != 1 {
		t.Fatalf("orders: got %d, want 1", len(orders))
	}
	if orders[0].Side != models.SideBuy {
		t.Errorf("order side: got %s, want BUY", orders[0].Side)
	}
	if want := decimal.NewFromFloat(0.015); !orders[0].FilledQty.Equal(want) {
		t.Errorf("order qty: got %s, want %s", orders[0].FilledQty, want)
	}

	pos := f.position()
	if pos == nil {
		t.Fatal("position must be set after entry")
	}
	if pos.Side != models.PositionLong {
		t.Errorf("position side: got %s, want LONG", pos.Side)
	}
	if pos.Leverage != 15 {
		t.Errorf("position leverage: got %d, want 15", pos.Leverage)
	}
	if pos.TradeID == "" {
		t.Error("position must carry the ledger trade id")
	}

	if f.trades.openCount() != 1 {
		t.Fatalf("open trades: got %d, want 1", f.trades.openCount())
	}
	open := f.trades.opens[0]
	if open.Status != models.TradeOpen {
		t.Errorf("trade status: got %s, want OPEN", open.Status)
	}
	if open.Side != models.PositionLong {
		t.Errorf("trade side: got %s, want LONG", open.Side)
	}
	if open.ID != pos.TradeID {
		t.Error("trade id must match the position's")
	}

	if len(f.events) != 1 || f.events[0].Type != models.TradeEventOpen {
		t.Fatalf("events: got %+v, want one OPEN", f.events)
	}

	if _, ok := f.store.LoadPosition(context.Background(), "alpha"); !ok {
		t.Error("position must be persisted to the state store")
	}
}

func TestTickShortEntrySellsAtMarket(t *testing.T) {
	f := newTickFixture(t, testBotConfig("alpha"))
	f.signals.set(decision(models.SignalShort))

	f.inst.runTick(context.Background())

	orders := f.venue.Orders()
	if len(orders) != 1 || orders[0].Side != models.SideSell {
		t.Fatalf("orders: got %+v, want one SELL", orders)
	}
	if pos := f.position(); pos == nil || pos.Side != models.PositionShort {
		t.Fatalf("position: got %+v, want SHORT", pos)
	}
}

func TestTickWaitDoesNothing(t *testing.T) {
	f := newTickFixture(t, testBotConfig("alpha"))

	f.inst.runTick(context.Background())

	if len(f.venue.Orders()) != 0 {
		t.Errorf("orders: got %d, want 0", len(f.venue.Orders()))
	}
	if f.position() != nil {
		t.Error("no position must be opened on WAIT")
	}
	if got := f.runtime().LoopCount; got != 1 {
		t.Errorf("loop count: got %d, want 1", got)
	}
}

func TestTickTakeProfit(t *testing.T) {
	f := newTickFixture(t, testBotConfig("alpha"))
	f.signals.set(decision(models.SignalLong))
	f.inst.runTick(context.Background())

	f.signals.set(decision(models.SignalWait))
	f.venue.SetPrice("BTCUSDT", decimal.NewFromInt(50200))
	f.inst.runTick(context.Background())

	if f.position() != nil {
		t.Fatal("position must be cleared after take profit")
	}
	if f.trades.closeCount() != 1 {
		t.Fatalf("closed trades: got %d, want 1", f.trades.closeCount())
	}
	closed := f.trades.closes[0]
	if closed.params.Reason != models.ExitTakeProfit {
		t.Errorf("exit reason: got %s, want TP", closed.params.Reason)
	}
	if closed.id != f.trades.opens[0].ID {
		t.Error("close must target the opening trade row")
	}
	if want := decimal.NewFromInt(3); !closed.params.PnL.Equal(want) {
		t.Errorf("pnl: got %s, want %s", closed.params.PnL, want)
	}
	if math.Abs(closed.params.PnLPct-0.4) > 1e-9 {
		t.Errorf("pnl pct: got %v, want 0.4", closed.params.PnLPct)
	}

	live, err := f.venue.GetPosition(context.Background(), "BTCUSDT")
	if err != nil || live != nil {
		t.Errorf("venue position after close: got %+v, %v, want flat", live, err)
	}
	if _, ok := f.store.LoadPosition(context.Background(), "alpha"); ok {
		t.Error("persisted position must be deleted after close")
	}

	last := f.events[len(f.events)-1]
	if last.Type != models.TradeEventClose || last.Reason != models.ExitTakeProfit {
		t.Errorf("last event: got %+v, want CLOSE/TP", last)
	}
}

func TestTickStopLoss(t *testing.T) {
	f := newTickFixture(t, testBotConfig("alpha"))
	f.signals.set(decision(models.SignalShort))
	f.inst.runTick(context.Background())

	// Price moves against the short.
	f.signals.set(decision(models.SignalWait))
	f.venue.SetPrice("BTCUSDT", decimal.NewFromInt(50200))
	f.inst.runTick(context.Background())

	if f.trades.closeCount() != 1 {
		t.Fatalf("closed trades: got %d, want 1", f.trades.closeCount())
	}
	closed := f.trades.closes[0]
	if closed.params.Reason != models.ExitStopLoss {
		t.Errorf("exit reason: got %s, want SL", closed.params.Reason)
	}
	if want := decimal.NewFromInt(-3); !closed.params.PnL.Equal(want) {
		t.Errorf("pnl: got %s, want %s", closed.params.PnL, want)
	}
	if math.Abs(closed.params.PnLPct+0.4) > 1e-9 {
		t.Errorf("pnl pct: got %v, want -0.4", closed.params.PnLPct)
	}
}

func TestTickTimeCut(t *testing.T) {
	f := newTickFixture(t, testBotConfig("alpha"))
	f.signals.set(decision(models.SignalLong))
	f.inst.runTick(context.Background())

	f.inst.mu.Lock()
	f.inst.state.Position.EntryTime = time.Now().Add(-181 * time.Minute).UTC()
	f.inst.mu.Unlock()

	f.signals.set(decision(models.SignalWait))
	f.inst.runTick(context.Background())

	if f.trades.closeCount() != 1 {
		t.Fatalf("closed trades: got %d, want 1", f.trades.closeCount())
	}
	closed := f.trades.closes[0]
	if closed.params.Reason != models.ExitTimeCut {
		t.Errorf("exit reason: got %s, want TIME_CUT", closed.params.Reason)
	}
	if closed.params.DurationMinutes < 181 {
		t.Errorf("duration: got %d, want >= 181", closed.params.DurationMinutes)
	}
	if f.position() != nil {
		t.Error("position must be cleared after time cut")
	}
}

func TestTickEmergencyClose(t *testing.T) {
	f := newTickFixture(t, testBotConfig("alpha"))
	f.signals.set(decision(models.SignalLong))
	f.inst.runTick(context.Background())

	f.inst.RequestEmergencyClose()
	f.inst.runTick(context.Background())

	if f.trades.closeCount() != 1 {
		t.Fatalf("closed trades: got %d, want 1", f.trades.closeCount())
	}
	if got := f.trades.closes[0].params.Reason; got != models.ExitManual {
		t.Errorf("exit reason: got %s, want MANUAL", got)
	}

	st := f.runtime()
	if st.EmergencyClose {
		t.Error("emergency flag must clear after handling")
	}
	if !st.IsPaused {
		t.Error("bot must pause after an emergency close")
	}
	if st.Position != nil {
		t.Error("position must be cleared")
	}

	// Still LONG-signalled, but paused: no re-entry.
	f.inst.runTick(context.Background())
	if len(f.venue.Orders()) != 2 {
		t.Errorf("orders: got %d, want 2 (entry + close only)", len(f.venue.Orders()))
	}
}

func TestTickEmergencyCloseWithoutPosition(t *testing.T) {
	f := newTickFixture(t, testBotConfig("alpha"))
	f.inst.RequestEmergencyClose()

	f.inst.runTick(context.Background())

	if f.trades.closeCount() != 0 {
		t.Errorf("closed trades: got %d, want 0", f.trades.closeCount())
	}
	st := f.runtime()
	if st.EmergencyClose || !st.IsPaused {
		t.Errorf("state after flagged tick: emergency=%v paused=%v, want false/true",
			st.EmergencyClose, st.IsPaused)
	}
}

func TestPauseBlocksEntriesNotExits(t *testing.T) {
	f := newTickFixture(t, testBotConfig("alpha"))
	f.signals.set(decision(models.SignalLong))

	f.inst.Pause()
	f.inst.runTick(context.Background())
	if len(f.venue.Orders()) != 0 {
		t.Fatal("paused bot must not enter")
	}

	f.inst.Resume()
	f.inst.runTick(context.Background())
	if len(f.venue.Orders()) != 1 {
		t.Fatal("resumed bot must enter")
	}

	f.inst.Pause()
	f.venue.SetPrice("BTCUSDT", decimal.NewFromInt(50200))
	f.inst.runTick(context.Background())

	if f.trades.closeCount() != 1 {
		t.Error("exit checks must still fire while paused")
	}
	if len(f.venue.Orders()) != 2 {
		t.Errorf("orders: got %d, want 2 (no re-entry while paused)", len(f.venue.Orders()))
	}
}

func TestTickErrorIsolation(t *testing.T) {
	f := newTickFixture(t, testBotConfig("alpha"))
	f.signals.set(decision(models.SignalLong))

	f.venue.FailNext("price", errors.New("venue down"))
	f.inst.runTick(context.Background())

	if len(f.errs) != 1 {
		t.Fatalf("error callbacks: got %d, want 1", len(f.errs))
	}
	if f.position() != nil {
		t.Fatal("failed tick must not open a position")
	}
	if got := f.runtime().LoopCount; got != 1 {
		t.Errorf("loop count: got %d, want 1", got)
	}

	// Next tick recovers on its own.
	f.inst.runTick(context.Background())
	if f.position() == nil {
		t.Error("bot must enter once the venue recovers")
	}
	if len(f.errs) != 1 {
		t.Errorf("error callbacks: got %d, want still 1", len(f.errs))
	}
}

func TestTickStateStoreOutage(t *testing.T) {
	f := newTickFixture(t, testBotConfig("alpha"))
	f.signals.set(decision(models.SignalLong))

	f.mr.Close()
	f.inst.runTick(context.Background())

	if f.position() == nil {
		t.Fatal("trading must continue through a state store outage")
	}
	if len(f.errs) != 0 {
		t.Errorf("persist failures must not surface as tick errors, got %v", f.errs)
	}
}

func TestRestoreRuntimeState(t *testing.T) {
	f := newTickFixture(t, testBotConfig("alpha"))
	ctx := context.Background()

	prev := models.RuntimeState{
		IsPaused:   true,
		LoopCount:  7,
		LastSignal: models.SignalShort,
	}
	f.store.SaveBotState(ctx, "alpha", prev.ToMap())

	entryTime := time.Now().Add(-30 * time.Minute).UTC()
	seeded := models.Position{
		Symbol:     "BTCUSDT",
		Side:       models.PositionLong,
		EntryPrice: decimal.NewFromInt(49000),
		Quantity:   decimal.NewFromFloat(0.015),
		EntryTime:  entryTime,
		Leverage:   15,
		TradeID:    "trade-7",
	}
	f.store.SavePosition(ctx, "alpha", seeded.ToMap())

	f.inst.restore(ctx)

	st := f.runtime()
	if !st.IsPaused {
		t.Error("pause flag must survive a restart")
	}
	if st.LoopCount != 7 {
		t.Errorf("loop count: got %d, want 7", st.LoopCount)
	}
	pos := f.position()
	if pos == nil {
		t.Fatal("position must be restored")
	}
	if pos.TradeID != "trade-7" {
		t.Errorf("trade id: got %s, want trade-7", pos.TradeID)
	}
	if !pos.EntryTime.Equal(entryTime) {
		t.Errorf("entry time: got %s, want %s", pos.EntryTime, entryTime)
	}

	// The venue is flat, so the next reconcile drops the stale position
	// without recording a close.
	f.inst.runTick(ctx)
	if f.position() != nil {
		t.Error("stale local position must be dropped when the venue is flat")
	}
	if f.trades.closeCount() != 0 {
		t.Error("dropping a stale position must not record a close")
	}
}

func TestRestoreWithLivePosition(t *testing.T) {
	f := newTickFixture(t, testBotConfig("alpha"))
	ctx := context.Background()

	// The venue still holds the position from the previous session.
	if _, err := f.venue.CreateMarketOrder(ctx, "BTCUSDT", models.SideBuy, decimal.NewFromFloat(0.015)); err != nil {
		t.Fatalf("failed to seed venue position: %v", err)
	}

	entryTime := time.Now().Add(-30 * time.Minute).UTC()
	seeded := models.Position{
		Symbol:     "BTCUSDT",
		Side:       models.PositionLong,
		EntryPrice: decimal.NewFromInt(49000),
		Quantity:   decimal.NewFromFloat(0.015),
		EntryTime:  entryTime,
		Leverage:   15,
		TradeID:    "trade-7",
	}
	f.store.SavePosition(ctx, "alpha", seeded.ToMap())

	f.inst.restore(ctx)
	f.inst.runTick(ctx)

	pos := f.position()
	if pos == nil {
		t.Fatal("position must survive restore plus reconcile")
	}
	if pos.TradeID != "trade-7" {
		t.Errorf("trade id: got %s, want trade-7", pos.TradeID)
	}
	if !pos.EntryTime.Equal(entryTime) {
		t.Errorf("entry time: got %s, want %s", pos.EntryTime, entryTime)
	}
	// The venue's entry price wins over the stored one.
	if want := decimal.NewFromInt(50000); !pos.EntryPrice.Equal(want) {
		t.Errorf("entry price: got %s, want %s", pos.EntryPrice, want)
	}
}

func TestReconcileAdoptsUntrackedPosition(t *testing.T) {
	f := newTickFixture(t, testBotConfig("alpha"))
	ctx := context.Background()

	if _, err := f.venue.CreateMarketOrder(ctx, "BTCUSDT", models.SideSell, decimal.NewFromFloat(0.01)); err != nil {
		t.Fatalf("failed to seed venue position: %v", err)
	}

	f.inst.runTick(ctx)

	pos := f.position()
	if pos == nil {
		t.Fatal("untracked venue position must be adopted")
	}
	if pos.Side != models.PositionShort {
		t.Errorf("side: got %s, want SHORT", pos.Side)
	}
	if f.trades.openCount() != 1 {
		t.Fatalf("backfilled rows: got %d, want 1", f.trades.openCount())
	}
	if pos.TradeID != f.trades.opens[0].ID {
		t.Error("adopted position must link to the backfilled row")
	}
	if want := decimal.NewFromInt(50000); !f.trades.opens[0].EntryPrice.Equal(want) {
		t.Errorf("backfilled entry price: got %s, want %s", f.trades.opens[0].EntryPrice, want)
	}
}

func TestReconcileAttachesExistingRow(t *testing.T) {
	f := newTickFixture(t, testBotConfig("alpha"))
	ctx := context.Background()

	rowTime := time.Now().Add(-10 * time.Minute).UTC()
	f.trades.findRow = &models.Trade{
		ID:        "row-1",
		BotID:     "bot-alpha",
		Symbol:    "BTCUSDT",
		Side:      models.PositionShort,
		EntryTime: rowTime,
		Status:    models.TradeOpen,
	}
	if _, err := f.venue.CreateMarketOrder(ctx, "BTCUSDT", models.SideSell, decimal.NewFromFloat(0.01)); err != nil {
		t.Fatalf("failed to seed venue position: %v", err)
	}

	f.inst.runTick(ctx)

	pos := f.position()
	if pos == nil || pos.TradeID != "row-1" {
		t.Fatalf("position: got %+v, want trade id row-1", pos)
	}
	if !pos.EntryTime.Equal(rowTime) {
		t.Errorf("entry time: got %s, want ledger row's %s", pos.EntryTime, rowTime)
	}
	if f.trades.openCount() != 0 {
		t.Error("no backfill when an open row already exists")
	}
}

func TestEntrySkippedWhenQuantityRoundsToZero(t *testing.T) {
	f := newTickFixture(t, testBotConfig("alpha"))
	f.venue.SetPrice("BTCUSDT", decimal.NewFromInt(100000000))
	f.signals.set(decision(models.SignalLong))

	f.inst.runTick(context.Background())

	if len(f.venue.Orders()) != 0 {
		t.Error("zero-quantity entry must be skipped")
	}
	if f.position() != nil {
		t.Error("no position must be recorded")
	}
	if len(f.errs) != 0 {
		t.Errorf("skipping is not an error, got %v", f.errs)
	}
}

func TestEntryLedgerFailureBackfilledNextTick(t *testing.T) {
	f := newTickFixture(t, testBotConfig("alpha"))
	f.trades.openErr = errors.New("ledger down")
	f.signals.set(decision(models.SignalLong))

	f.inst.runTick(context.Background())

	pos := f.position()
	if pos == nil {
		t.Fatal("entry must stand even when the ledger write fails")
	}
	if pos.TradeID != "" {
		t.Fatal("trade id must stay empty after a failed ledger write")
	}

	f.trades.openErr = nil
	f.signals.set(decision(models.SignalWait))
	f.inst.runTick(context.Background())

	pos = f.position()
	if pos == nil || pos.TradeID == "" {
		t.Fatal("reconcile must backfill the missing trade row")
	}
	if f.trades.openCount() != 1 {
		t.Errorf("backfilled rows: got %d, want 1", f.trades.openCount())
	}
}

func TestRuleModeBypassesEnsemble(t *testing.T) {
	f := newTickFixture(t, testBotConfig("alpha"))
	f.inst.deps.Orchestrator.SignalMode = "rule"
	f.signals.rule = decision(models.SignalLong)
	f.signals.set(decision(models.SignalShort))

	f.inst.runTick(context.Background())

	orders := f.venue.Orders()
	if len(orders) != 1 || orders[0].Side != models.SideBuy {
		t.Fatalf("orders: got %+v, want one BUY from the rule decision", orders)
	}
}

func TestStatusSnapshot(t *testing.T) {
	f := newTickFixture(t, testBotConfig("alpha"))
	f.signals.set(decision(models.SignalLong))
	f.inst.runTick(context.Background())

	s := f.inst.Status()
	if s.Name != "alpha" || s.Symbol != "BTCUSDT" {
		t.Errorf("identity: got %s/%s", s.Name, s.Symbol)
	}
	if s.LastSignal != models.SignalLong {
		t.Errorf("last signal: got %s, want LONG", s.LastSignal)
	}
	if s.Position == nil {
		t.Fatal("status must include the open position")
	}
	if s.UnrealizedPnLPct == nil {
		t.Fatal("status must include unrealized pnl for an open position")
	}
	if math.Abs(*s.UnrealizedPnLPct) > 1e-9 {
		t.Errorf("unrealized pnl at entry price: got %v, want 0", *s.UnrealizedPnLPct)
	}
	if s.LoopCount != 1 {
		t.Errorf("loop count: got %d, want 1", s.LoopCount)
	}

	// The snapshot's position is a copy, not the live pointer.
	s.Position.Quantity = decimal.Zero
	if f.position().Quantity.IsZero() {
		t.Error("mutating the snapshot must not touch the live position")
	}
}
