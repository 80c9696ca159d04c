package bot

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alexanderselivanov/botfleet/internal/adapters/config"
	"github.com/alexanderselivanov/botfleet/internal/adapters/exchange"
	"github.com/alexanderselivanov/botfleet/internal/adapters/redis"
	"github.com/alexanderselivanov/botfleet/internal/adapters/statestore"
	"github.com/alexanderselivanov/botfleet/internal/ledger"
	"github.com/alexanderselivanov/botfleet/internal/signal"
	"github.com/alexanderselivanov/botfleet/pkg/metrics"
	"github.com/alexanderselivanov/botfleet/pkg/models"
)

// VenueFactory builds the exchange client a bot trades through. Each run
// session gets its own client; it is closed when the session ends.
type VenueFactory func(cfg *models.BotConfig) (exchange.Client, error)

// SignalGenerator produces the blended decision for one tick.
// *signal.Ensemble satisfies it.
type SignalGenerator interface {
	Generate(ctx context.Context, in *signal.Input) *models.EnsembleResult
	RuleOnly(ctx context.Context, in *signal.Input) *models.EnsembleResult
}

// TradeLedger is the slice of the trade repository the loop writes through.
// *ledger.Repository satisfies it.
type TradeLedger interface {
	OpenTrade(ctx context.Context, trade *models.Trade) error
	CloseTrade(ctx context.Context, tradeID string, p ledger.CloseParams) error
	FindOpenTrade(ctx context.Context, botID, symbol string) (*models.Trade, error)
}

// MarkPriceCache serves websocket mark prices for status snapshots so they
// do not need a venue round-trip. *exchange.PriceStream satisfies it.
type MarkPriceCache interface {
	MarkPrice(symbol string) (decimal.Decimal, time.Time, bool)
}

// Deps are the shared services every bot instance runs on.
type Deps struct {
	Orchestrator *config.OrchestratorConfig
	Venues       VenueFactory
	Signals      SignalGenerator
	Ledger       TradeLedger
	Store        statestore.Store
	Locks        redis.LockFactory

	// Metrics receives per-tick rows when set.
	Metrics metrics.Buffer

	// Prices serves fresher unrealized PnL in status snapshots when set.
	Prices MarkPriceCache

	Retry exchange.RetryConfig
}
