package workers

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/shopspring/decimal"

	"github.com/alexanderselivanov/botfleet/internal/adapters/config"
	"github.com/alexanderselivanov/botfleet/internal/adapters/exchange"
	"github.com/alexanderselivanov/botfleet/internal/adapters/redis"
	"github.com/alexanderselivanov/botfleet/internal/adapters/statestore"
	"github.com/alexanderselivanov/botfleet/internal/bot"
	"github.com/alexanderselivanov/botfleet/internal/ledger"
	"github.com/alexanderselivanov/botfleet/internal/signal"
	"github.com/alexanderselivanov/botfleet/pkg/models"
)

type nopLedger struct{}

func (nopLedger) OpenTrade(context.Context, *models.Trade) error { return nil }
func (nopLedger) CloseTrade(context.Context, string, ledger.CloseParams) error {
	return nil
}
func (nopLedger) FindOpenTrade(context.Context, string, string) (*models.Trade, error) {
	return nil, nil
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

func paperVenues(cfg *models.BotConfig) (exchange.Client, error) {
	venue := exchange.NewPaperClient()
	venue.SetPrice(cfg.Symbol, decimal.NewFromInt(50000))
	venue.SetKlines(cfg.Symbol, testCandles(40, 50000))
	return venue, nil
}

func testBotConfig(name string) *models.BotConfig {
	return &models.BotConfig{
		ID:        "bot-" + name,
		Name:      name,
		Symbol:    "BTCUSDT",
		RiskLevel: models.RiskMedium,
	}
}

// newFleet builds a manager over a real Redis-backed store so janitor
// passes observe actual set and hash state.
func newFleet(t *testing.T) (*bot.Manager, statestore.Store) {
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

	// The zero-source ensemble always votes WAIT, so started bots tick
	// without ever trading.
	mgr := bot.NewManager(bot.Deps{
		Orchestrator: &config.OrchestratorConfig{
			LoopInterval:    50 * time.Millisecond,
			SignalMode:      "memory",
			KlineInterval:   "5m",
			KlineLimit:      40,
			NotionalCapital: 1000,
			ExchangeTimeout: time.Second,
			RunLockTTL:      time.Minute,
		},
		Venues:  paperVenues,
		Signals: signal.NewEnsemble(nil, signal.Weights{}, 0.3, 0.67),
		Ledger:  nopLedger{},
		Store:   store,
		Locks:   redis.NewLocalFactory(),
		Retry: exchange.RetryConfig{
			MaxAttempts: 1,
			BaseDelay:   time.Millisecond,
			MaxDelay:    time.Millisecond,
			Multiplier:  2,
		},
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		mgr.StopAll(ctx)
	})

	return mgr, store
}

func registered(store statestore.Store, name string) bool {
	for _, n := range store.GetRegisteredBots(context.Background()) {
		if n == name {
			return true
		}
	}
	return false
}

func TestJanitorPrunesOrphanedRegistrations(t *testing.T) {
	mgr, store := newFleet(t)
	ctx := context.Background()

	if _, err := mgr.AddBot(testBotConfig("managed")); err != nil {
		t.Fatalf("add: %v", err)
	}
	store.RegisterBot(ctx, "managed")

	// A peer replica's bot: registered with a live state hash.
	store.RegisterBot(ctx, "peer")
	store.SaveBotState(ctx, "peer", map[string]interface{}{"loop_count": int64(3)})

	// Leftover from a crashed replica: registered, nothing behind it.
	store.RegisterBot(ctx, "ghost")

	j := NewStateJanitor(mgr, store)
	if err := j.Run(ctx); err != nil {
		t.Fatalf("janitor run: %v", err)
	}

	if !registered(store, "managed") {
		t.Error("janitor must not prune bots this manager owns")
	}
	if !registered(store, "peer") {
		t.Error("janitor must not prune bots with a state hash")
	}
	if registered(store, "ghost") {
		t.Error("janitor should prune registrations with nothing behind them")
	}
}

func TestJanitorSparesBotsWithRunningMark(t *testing.T) {
	mgr, store := newFleet(t)
	ctx := context.Background()

	// A peer's bot between registration and its first state persist.
	store.RegisterBot(ctx, "starting")
	store.SetBotRunning(ctx, "starting")

	j := NewStateJanitor(mgr, store)
	if err := j.Run(ctx); err != nil {
		t.Fatalf("janitor run: %v", err)
	}

	if !registered(store, "starting") {
		t.Error("janitor must not prune bots with a running mark")
	}
}

func TestJanitorRefreshesLocksWhileFleetRuns(t *testing.T) {
	mgr, store := newFleet(t)
	ctx := context.Background()

	if _, err := mgr.AddBot(testBotConfig("alpha")); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := mgr.StartBot(ctx, "alpha"); err != nil {
		t.Fatalf("start: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for !mgr.GetBot("alpha").IsRunning() {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for bot to start")
		}
		time.Sleep(5 * time.Millisecond)
	}

	j := NewStateJanitor(mgr, store)
	if err := j.Run(ctx); err != nil {
		t.Fatalf("janitor run with running fleet: %v", err)
	}

	if !registered(store, "alpha") {
		t.Error("running bot lost its registration")
	}
}
