package exchange

import (
	"context"
	"fmt"
	"strconv"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/alexanderselivanov/botfleet/internal/adapters/config"
	"github.com/alexanderselivanov/botfleet/pkg/logger"
	"github.com/alexanderselivanov/botfleet/pkg/models"
)

// BinanceClient trades USDT-margined perpetuals through the Binance
// futures REST API.
type BinanceClient struct {
	client  *futures.Client
	retry   RetryConfig
	testnet bool
}

// NewBinanceClient creates a Binance futures client. The testnet flag
// switches the whole process to the sandbox endpoint.
func NewBinanceClient(cfg *config.ExchangeConfig, testnet bool) (*BinanceClient, error) {
	if testnet {
		futures.UseTestnet = true
	}
	client := futures.NewClient(cfg.APIKey, cfg.Secret)

	logger.Info("Binance futures client initialized",
		zap.Bool("testnet", testnet),
	)

	return &BinanceClient{
		client:  client,
		retry:   DefaultRetryConfig(),
		testnet: testnet,
	}, nil
}

func (b *BinanceClient) Name() string {
	return "binance"
}

func (b *BinanceClient) GetCurrentPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	var prices []*futures.SymbolPrice
	err := WithRetry(ctx, "binance get price", b.retry, func() error {
		var callErr error
		prices, callErr = b.client.NewListPricesService().Symbol(symbol).Do(ctx)
		return callErr
	})
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to fetch price for %s: %w", symbol, err)
	}
	if len(prices) == 0 {
		return decimal.Zero, fmt.Errorf("no price returned for %s", symbol)
	}

	price, err := decimal.NewFromString(prices[0].Price)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to parse price %q: %w", prices[0].Price, err)
	}

	return price, nil
}

func (b *BinanceClient) GetKlines(ctx context.Context, symbol, interval string, limit int) ([]models.Candle, error) {
	var klines []*futures.Kline
	err := WithRetry(ctx, "binance get klines", b.retry, func() error {
		var callErr error
		klines, callErr = b.client.NewKlinesService().
			Symbol(symbol).
			Interval(interval).
			Limit(limit).
			Do(ctx)
		return callErr
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch klines for %s: %w", symbol, err)
	}

	candles := make([]models.Candle, len(klines))
	for i, k := range klines {
		candles[i] = models.Candle{
			Timestamp: timeFromMillis(k.OpenTime),
			Open:      parseDecimal(k.Open),
			High:      parseDecimal(k.High),
			Low:       parseDecimal(k.Low),
			Close:     parseDecimal(k.Close),
			Volume:    parseDecimal(k.Volume),
		}
	}

	return candles, nil
}

func (b *BinanceClient) GetTicker24h(ctx context.Context, symbol string) (*models.Ticker24h, error) {
	var stats []*futures.PriceChangeStats
	err := WithRetry(ctx, "binance get ticker", b.retry, func() error {
		var callErr error
		stats, callErr = b.client.NewListPriceChangeStatsService().Symbol(symbol).Do(ctx)
		return callErr
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch 24h ticker for %s: %w", symbol, err)
	}
	if len(stats) == 0 {
		return nil, fmt.Errorf("no 24h ticker returned for %s", symbol)
	}

	s := stats[0]
	return &models.Ticker24h{
		Symbol:    symbol,
		High:      parseDecimal(s.HighPrice),
		Low:       parseDecimal(s.LowPrice),
		ChangePct: parseDecimal(s.PriceChangePercent),
		Volume:    parseDecimal(s.Volume),
	}, nil
}

func (b *BinanceClient) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	err := WithRetry(ctx, "binance set leverage", b.retry, func() error {
		_, callErr := b.client.NewChangeLeverageService().
			Symbol(symbol).
			Leverage(leverage).
			Do(ctx)
		return callErr
	})
	if err != nil {
		return fmt.Errorf("failed to set leverage for %s: %w", symbol, err)
	}
	return nil
}

func (b *BinanceClient) CreateMarketOrder(ctx context.Context, symbol string, side models.OrderSide, quantity decimal.Decimal) (*models.OrderResult, error) {
	orderSide := futures.SideTypeBuy
	if side == models.SideSell {
		orderSide = futures.SideTypeSell
	}

	var resp *futures.CreateOrderResponse
	err := WithRetry(ctx, "binance create order", b.retry, func() error {
		var callErr error
		resp, callErr = b.client.NewCreateOrderService().
			Symbol(symbol).
			Side(orderSide).
			Type(futures.OrderTypeMarket).
			Quantity(quantity.String()).
			Do(ctx)
		return callErr
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create %s order for %s: %w", side, symbol, err)
	}

	filled := parseDecimal(resp.ExecutedQuantity)
	if filled.IsZero() {
		filled = quantity
	}

	return &models.OrderResult{
		OrderID:   strconv.FormatInt(resp.OrderID, 10),
		Symbol:    symbol,
		Side:      side,
		FilledQty: filled,
		AvgPrice:  parseDecimal(resp.AvgPrice),
	}, nil
}

func (b *BinanceClient) GetPosition(ctx context.Context, symbol string) (*models.ExchangePosition, error) {
	var positions []*futures.PositionRisk
	err := WithRetry(ctx, "binance get position", b.retry, func() error {
		var callErr error
		positions, callErr = b.client.NewGetPositionRiskService().Symbol(symbol).Do(ctx)
		return callErr
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch position for %s: %w", symbol, err)
	}

	for _, pos := range positions {
		amt, parseErr := strconv.ParseFloat(pos.PositionAmt, 64)
		if parseErr != nil || amt == 0 {
			continue
		}

		side := models.PositionLong
		if amt < 0 {
			side = models.PositionShort
		}
		leverage, _ := strconv.Atoi(pos.Leverage)

		return &models.ExchangePosition{
			Symbol:     symbol,
			Side:       side,
			Amount:     decimal.NewFromFloat(absFloat(amt)),
			EntryPrice: parseDecimal(pos.EntryPrice),
			Leverage:   leverage,
		}, nil
	}

	return nil, nil
}

func (b *BinanceClient) ClosePosition(ctx context.Context, symbol string) (*models.OrderResult, error) {
	pos, err := b.GetPosition(ctx, symbol)
	if err != nil {
		return nil, err
	}
	if pos == nil {
		return nil, nil
	}

	closeSide := futures.SideTypeSell
	resultSide := models.SideSell
	if pos.Side == models.PositionShort {
		closeSide = futures.SideTypeBuy
		resultSide = models.SideBuy
	}

	var resp *futures.CreateOrderResponse
	err = WithRetry(ctx, "binance close position", b.retry, func() error {
		var callErr error
		resp, callErr = b.client.NewCreateOrderService().
			Symbol(symbol).
			Side(closeSide).
			Type(futures.OrderTypeMarket).
			Quantity(pos.Amount.String()).
			ReduceOnly(true).
			Do(ctx)
		return callErr
	})
	if err != nil {
		return nil, fmt.Errorf("failed to close position for %s: %w", symbol, err)
	}

	filled := parseDecimal(resp.ExecutedQuantity)
	if filled.IsZero() {
		filled = pos.Amount
	}

	return &models.OrderResult{
		OrderID:   strconv.FormatInt(resp.OrderID, 10),
		Symbol:    symbol,
		Side:      resultSide,
		FilledQty: filled,
		AvgPrice:  parseDecimal(resp.AvgPrice),
	}, nil
}

func (b *BinanceClient) GetAccountBalance(ctx context.Context) (*models.AccountBalance, error) {
	var balances []*futures.Balance
	err := WithRetry(ctx, "binance get balance", b.retry, func() error {
		var callErr error
		balances, callErr = b.client.NewGetBalanceService().Do(ctx)
		return callErr
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch account balance: %w", err)
	}

	for _, bal := range balances {
		if bal.Asset != "USDT" {
			continue
		}
		return &models.AccountBalance{
			Available:     parseDecimal(bal.AvailableBalance),
			Balance:       parseDecimal(bal.Balance),
			UnrealizedPnL: parseDecimal(bal.CrossUnPnl),
		}, nil
	}

	return &models.AccountBalance{}, nil
}

func (b *BinanceClient) Close() error {
	// REST client holds no persistent connection
	return nil
}
