package exchange

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/alexanderselivanov/botfleet/pkg/models"
)

// PaperClient is an in-memory venue. Orders fill instantly at the
// seeded price, positions net in one-way mode and realized PnL flows
// into the simulated wallet. It backs the paper trading mode and the
// trading-loop tests.
type PaperClient struct {
	mu        sync.Mutex
	prices    map[string]decimal.Decimal
	klines    map[string][]models.Candle
	tickers   map[string]*models.Ticker24h
	positions map[string]*models.ExchangePosition
	leverage  map[string]int
	balance   models.AccountBalance
	orders    []models.OrderResult
	orderSeq  int
	failNext  map[string]error
}

// NewPaperClient creates a paper venue with a 10000 USDT wallet.
func NewPaperClient() *PaperClient {
	start := decimal.NewFromInt(10000)
	return &PaperClient{
		prices:    make(map[string]decimal.Decimal),
		klines:    make(map[string][]models.Candle),
		tickers:   make(map[string]*models.Ticker24h),
		positions: make(map[string]*models.ExchangePosition),
		leverage:  make(map[string]int),
		balance:   models.AccountBalance{Available: start, Balance: start},
		failNext:  make(map[string]error),
	}
}

// SetPrice seeds the mark price for a symbol.
func (p *PaperClient) SetPrice(symbol string, price decimal.Decimal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prices[symbol] = price
}

// SetKlines seeds the candle history for a symbol.
func (p *PaperClient) SetKlines(symbol string, candles []models.Candle) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.klines[symbol] = candles
}

// SetTicker24h seeds the 24h ticker for a symbol.
func (p *PaperClient) SetTicker24h(symbol string, ticker *models.Ticker24h) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tickers[symbol] = ticker
}

// SetBalance overrides the wallet snapshot.
func (p *PaperClient) SetBalance(balance models.AccountBalance) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.balance = balance
}

// FailNext makes the next call of the named operation return err.
// Operations: price, klines, ticker, leverage, order, position, close,
// balance.
func (p *PaperClient) FailNext(op string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failNext[op] = err
}

// Orders returns every fill the venue has produced.
func (p *PaperClient) Orders() []models.OrderResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]models.OrderResult, len(p.orders))
	copy(out, p.orders)
	return out
}

func (p *PaperClient) takeFailure(op string) error {
	if err, ok := p.failNext[op]; ok {
		delete(p.failNext, op)
		return err
	}
	return nil
}

func (p *PaperClient) Name() string {
	return "paper"
}

func (p *PaperClient) GetCurrentPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.takeFailure("price"); err != nil {
		return decimal.Zero, err
	}
	price, ok := p.prices[symbol]
	if !ok {
		return decimal.Zero, fmt.Errorf("no price seeded for %s", symbol)
	}
	return price, nil
}

func (p *PaperClient) GetKlines(ctx context.Context, symbol, interval string, limit int) ([]models.Candle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.takeFailure("klines"); err != nil {
		return nil, err
	}
	candles := p.klines[symbol]
	if len(candles) > limit {
		candles = candles[len(candles)-limit:]
	}
	out := make([]models.Candle, len(candles))
	copy(out, candles)
	return out, nil
}

func (p *PaperClient) GetTicker24h(ctx context.Context, symbol string) (*models.Ticker24h, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.takeFailure("ticker"); err != nil {
		return nil, err
	}
	if t, ok := p.tickers[symbol]; ok {
		clone := *t
		return &clone, nil
	}
	return &models.Ticker24h{Symbol: symbol}, nil
}

func (p *PaperClient) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.takeFailure("leverage"); err != nil {
		return err
	}
	p.leverage[symbol] = leverage
	return nil
}

func (p *PaperClient) CreateMarketOrder(ctx context.Context, symbol string, side models.OrderSide, quantity decimal.Decimal) (*models.OrderResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.takeFailure("order"); err != nil {
		return nil, err
	}
	if quantity.IsZero() || quantity.IsNegative() {
		return nil, fmt.Errorf("invalid order quantity %s", quantity)
	}
	price, ok := p.prices[symbol]
	if !ok {
		return nil, fmt.Errorf("no price seeded for %s", symbol)
	}

	p.fill(symbol, side, quantity, price)

	p.orderSeq++
	result := models.OrderResult{
		OrderID:   "paper-" + strconv.Itoa(p.orderSeq),
		Symbol:    symbol,
		Side:      side,
		FilledQty: quantity,
		AvgPrice:  price,
	}
	p.orders = append(p.orders, result)
	return &result, nil
}

// fill nets the order into the one-way position book.
func (p *PaperClient) fill(symbol string, side models.OrderSide, quantity, price decimal.Decimal) {
	pos := p.positions[symbol]

	opening := models.PositionLong
	if side == models.SideSell {
		opening = models.PositionShort
	}

	if pos == nil {
		p.positions[symbol] = &models.ExchangePosition{
			Symbol:     symbol,
			Side:       opening,
			Amount:     quantity,
			EntryPrice: price,
			Leverage:   p.leverageFor(symbol),
		}
		return
	}

	if pos.Side == opening {
		// Same direction: average the entry
		oldNotional := pos.EntryPrice.Mul(pos.Amount)
		addNotional := price.Mul(quantity)
		pos.Amount = pos.Amount.Add(quantity)
		pos.EntryPrice = oldNotional.Add(addNotional).Div(pos.Amount)
		return
	}

	// Opposite direction: reduce, flatten or flip
	closed := decimal.Min(quantity, pos.Amount)
	pnl := price.Sub(pos.EntryPrice).Mul(closed)
	if pos.Side == models.PositionShort {
		pnl = pnl.Neg()
	}
	p.balance.Balance = p.balance.Balance.Add(pnl)
	p.balance.Available = p.balance.Available.Add(pnl)

	remainder := quantity.Sub(pos.Amount)
	switch {
	case remainder.IsNegative():
		pos.Amount = pos.Amount.Sub(quantity)
	case remainder.IsPositive():
		p.positions[symbol] = &models.ExchangePosition{
			Symbol:     symbol,
			Side:       opening,
			Amount:     remainder,
			EntryPrice: price,
			Leverage:   p.leverageFor(symbol),
		}
	default:
		delete(p.positions, symbol)
	}
}

func (p *PaperClient) leverageFor(symbol string) int {
	if lev, ok := p.leverage[symbol]; ok {
		return lev
	}
	return 1
}

func (p *PaperClient) GetPosition(ctx context.Context, symbol string) (*models.ExchangePosition, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.takeFailure("position"); err != nil {
		return nil, err
	}
	pos, ok := p.positions[symbol]
	if !ok {
		return nil, nil
	}
	clone := *pos
	return &clone, nil
}

func (p *PaperClient) ClosePosition(ctx context.Context, symbol string) (*models.OrderResult, error) {
	p.mu.Lock()
	if err := p.takeFailure("close"); err != nil {
		p.mu.Unlock()
		return nil, err
	}
	pos, ok := p.positions[symbol]
	if !ok {
		p.mu.Unlock()
		return nil, nil
	}
	side := pos.Side.Opposite()
	amount := pos.Amount
	p.mu.Unlock()

	return p.CreateMarketOrder(ctx, symbol, side, amount)
}

func (p *PaperClient) GetAccountBalance(ctx context.Context) (*models.AccountBalance, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.takeFailure("balance"); err != nil {
		return nil, err
	}
	clone := p.balance
	return &clone, nil
}

func (p *PaperClient) Close() error {
	return nil
}
