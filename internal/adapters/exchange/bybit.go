package exchange

import (
	"context"
	"fmt"
	"strings"

	ccxt "github.com/ccxt/ccxt/go/v4"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/alexanderselivanov/botfleet/internal/adapters/config"
	"github.com/alexanderselivanov/botfleet/pkg/logger"
	"github.com/alexanderselivanov/botfleet/pkg/models"
)

// BybitClient trades linear perpetuals through the CCXT Bybit binding.
// Domain symbols (BTCUSDT) are converted to the unified slash form on
// the way out and compacted on the way back.
type BybitClient struct {
	exchange ccxt.Bybit
	retry    RetryConfig
	testnet  bool
}

// NewBybitClient creates a Bybit client over CCXT.
func NewBybitClient(cfg *config.ExchangeConfig, testnet bool) (*BybitClient, error) {
	options := map[string]interface{}{
		"apiKey": cfg.APIKey,
		"secret": cfg.Secret,
		"options": map[string]interface{}{
			"defaultType":             "linear",
			"adjustForTimeDifference": true,
		},
	}
	if testnet {
		options["testnet"] = true
	}

	exchange := ccxt.NewBybit(options)

	if _, err := exchange.LoadMarkets(); err != nil {
		return nil, fmt.Errorf("failed to load Bybit markets: %w", err)
	}

	logger.Info("Bybit client initialized",
		zap.Bool("testnet", testnet),
	)

	return &BybitClient{
		exchange: exchange,
		retry:    DefaultRetryConfig(),
		testnet:  testnet,
	}, nil
}

func (b *BybitClient) Name() string {
	return "bybit"
}

func (b *BybitClient) GetCurrentPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	var ticker ccxt.Ticker
	err := WithRetry(ctx, "bybit get price", b.retry, func() error {
		var callErr error
		ticker, callErr = b.exchange.FetchTicker(toSlashSymbol(symbol))
		return callErr
	})
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to fetch ticker for %s: %w", symbol, err)
	}
	if ticker.Last == nil {
		return decimal.Zero, fmt.Errorf("no last price in ticker for %s", symbol)
	}

	return models.NewDecimal(*ticker.Last), nil
}

func (b *BybitClient) GetKlines(ctx context.Context, symbol, interval string, limit int) ([]models.Candle, error) {
	var ohlcv []ccxt.OHLCV
	err := WithRetry(ctx, "bybit get klines", b.retry, func() error {
		var callErr error
		ohlcv, callErr = b.exchange.FetchOHLCV(
			toSlashSymbol(symbol),
			ccxt.WithFetchOHLCVTimeframe(interval),
			ccxt.WithFetchOHLCVLimit(int64(limit)),
		)
		return callErr
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch OHLCV for %s: %w", symbol, err)
	}

	candles := make([]models.Candle, len(ohlcv))
	for i, bar := range ohlcv {
		candles[i] = models.Candle{
			Timestamp: timeFromMillis(bar.Timestamp),
			Open:      models.NewDecimal(bar.Open),
			High:      models.NewDecimal(bar.High),
			Low:       models.NewDecimal(bar.Low),
			Close:     models.NewDecimal(bar.Close),
			Volume:    models.NewDecimal(bar.Volume),
		}
	}

	return candles, nil
}

func (b *BybitClient) GetTicker24h(ctx context.Context, symbol string) (*models.Ticker24h, error) {
	var ticker ccxt.Ticker
	err := WithRetry(ctx, "bybit get ticker", b.retry, func() error {
		var callErr error
		ticker, callErr = b.exchange.FetchTicker(toSlashSymbol(symbol))
		return callErr
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch 24h ticker for %s: %w", symbol, err)
	}

	return &models.Ticker24h{
		Symbol:    symbol,
		High:      models.NewDecimal(safeFloat(ticker.High)),
		Low:       models.NewDecimal(safeFloat(ticker.Low)),
		ChangePct: models.NewDecimal(safeFloat(ticker.Percentage)),
		Volume:    models.NewDecimal(safeFloat(ticker.BaseVolume)),
	}, nil
}

func (b *BybitClient) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	err := WithRetry(ctx, "bybit set leverage", b.retry, func() error {
		_, callErr := b.exchange.SetLeverage(int64(leverage), ccxt.WithSetLeverageSymbol(toSlashSymbol(symbol)))
		return callErr
	})
	if err != nil {
		// Bybit rejects setting the leverage it already has
		if strings.Contains(err.Error(), "110043") ||
			strings.Contains(strings.ToLower(err.Error()), "leverage not modified") {
			return nil
		}
		return fmt.Errorf("failed to set leverage for %s: %w", symbol, err)
	}
	return nil
}

func (b *BybitClient) CreateMarketOrder(ctx context.Context, symbol string, side models.OrderSide, quantity decimal.Decimal) (*models.OrderResult, error) {
	sideStr := "buy"
	if side == models.SideSell {
		sideStr = "sell"
	}

	qty, _ := quantity.Float64()

	var order ccxt.Order
	err := WithRetry(ctx, "bybit create order", b.retry, func() error {
		var callErr error
		order, callErr = b.exchange.CreateOrder(
			toSlashSymbol(symbol),
			"market",
			sideStr,
			qty,
		)
		return callErr
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create %s order for %s: %w", side, symbol, err)
	}

	filled := models.NewDecimal(safeFloat(order.Filled))
	if filled.IsZero() {
		filled = quantity
	}

	return &models.OrderResult{
		OrderID:   safeStringPtr(order.Id),
		Symbol:    symbol,
		Side:      side,
		FilledQty: filled,
		AvgPrice:  models.NewDecimal(safeFloat(order.Average)),
	}, nil
}

func (b *BybitClient) GetPosition(ctx context.Context, symbol string) (*models.ExchangePosition, error) {
	var positions []ccxt.Position
	err := WithRetry(ctx, "bybit get position", b.retry, func() error {
		var callErr error
		positions, callErr = b.exchange.FetchPositions()
		return callErr
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch positions: %w", err)
	}

	for _, pos := range positions {
		if compactSymbol(safeStringPtr(pos.Symbol)) != symbol {
			continue
		}
		contracts := safeFloat(pos.Contracts)
		if contracts == 0 {
			continue
		}

		side := models.PositionLong
		if safeStringPtr(pos.Side) == "short" || contracts < 0 {
			side = models.PositionShort
		}

		return &models.ExchangePosition{
			Symbol:     symbol,
			Side:       side,
			Amount:     models.NewDecimal(absFloat(contracts)),
			EntryPrice: models.NewDecimal(safeFloat(pos.EntryPrice)),
			Leverage:   int(safeFloat(pos.Leverage)),
		}, nil
	}

	return nil, nil
}

func (b *BybitClient) ClosePosition(ctx context.Context, symbol string) (*models.OrderResult, error) {
	pos, err := b.GetPosition(ctx, symbol)
	if err != nil {
		return nil, err
	}
	if pos == nil {
		return nil, nil
	}

	return b.CreateMarketOrder(ctx, symbol, pos.Side.Opposite(), pos.Amount)
}

func (b *BybitClient) GetAccountBalance(ctx context.Context) (*models.AccountBalance, error) {
	var balance ccxt.Balances
	err := WithRetry(ctx, "bybit get balance", b.retry, func() error {
		var callErr error
		balance, callErr = b.exchange.FetchBalance()
		return callErr
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch balance: %w", err)
	}

	return &models.AccountBalance{
		Available: models.NewDecimal(asFloat(balance.Free["USDT"])),
		Balance:   models.NewDecimal(asFloat(balance.Total["USDT"])),
	}, nil
}

func (b *BybitClient) Close() error {
	// CCXT holds no persistent connection
	return nil
}
