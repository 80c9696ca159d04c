package exchange

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/alexanderselivanov/botfleet/internal/adapters/config"
	"github.com/alexanderselivanov/botfleet/pkg/models"
)

// Client is the venue port a bot instance trades through. Query methods
// that can legitimately find nothing return (nil, nil): GetPosition and
// ClosePosition when the account is flat on the symbol.
type Client interface {
	// Name returns the venue identifier (binance, bybit, paper).
	Name() string

	// GetCurrentPrice returns the latest traded price for the symbol.
	GetCurrentPrice(ctx context.Context, symbol string) (decimal.Decimal, error)

	// GetKlines returns up to limit candles, oldest first.
	GetKlines(ctx context.Context, symbol, interval string, limit int) ([]models.Candle, error)

	// GetTicker24h returns the rolling 24h statistics for the symbol.
	GetTicker24h(ctx context.Context, symbol string) (*models.Ticker24h, error)

	// SetLeverage sets position leverage for the symbol. Venues that
	// reject a no-op change report success.
	SetLeverage(ctx context.Context, symbol string, leverage int) error

	// CreateMarketOrder submits a market order and returns the fill
	// acknowledgement. AvgPrice may be zero when the venue omits it.
	CreateMarketOrder(ctx context.Context, symbol string, side models.OrderSide, quantity decimal.Decimal) (*models.OrderResult, error)

	// GetPosition returns the open position on the symbol, nil when flat.
	GetPosition(ctx context.Context, symbol string) (*models.ExchangePosition, error)

	// ClosePosition flattens the symbol with a market order in the
	// opposite direction. Returns nil when there was nothing to close.
	ClosePosition(ctx context.Context, symbol string) (*models.OrderResult, error)

	// GetAccountBalance returns the USDT futures wallet snapshot.
	GetAccountBalance(ctx context.Context) (*models.AccountBalance, error)

	// Close releases venue resources.
	Close() error
}

// New creates a client for the named venue. An empty name falls back to
// the configured default. The testnet flag routes to the sandbox
// endpoint without changing the contract.
func New(cfg *config.ExchangesConfig, name string, testnet bool) (Client, error) {
	if name == "" {
		name = cfg.Default
	}

	switch name {
	case "binance":
		return NewBinanceClient(&cfg.Binance, testnet)
	case "bybit":
		return NewBybitClient(&cfg.Bybit, testnet)
	case "paper":
		return NewPaperClient(), nil
	default:
		return nil, fmt.Errorf("unknown exchange %q", name)
	}
}
