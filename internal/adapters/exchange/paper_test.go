package exchange

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/alexanderselivanov/botfleet/pkg/models"
)

func TestPaperClientMarketData(t *testing.T) {
	ctx := context.Background()
	paper := NewPaperClient()

	t.Run("price requires seeding", func(t *testing.T) {
		if _, err := paper.GetCurrentPrice(ctx, "BTCUSDT"); err == nil {
			t.Fatal("expected error for unseeded price")
		}

		paper.SetPrice("BTCUSDT", decimal.NewFromInt(50000))
		price, err := paper.GetCurrentPrice(ctx, "BTCUSDT")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !price.Equal(decimal.NewFromInt(50000)) {
			t.Errorf("expected 50000, got %s", price)
		}
	})

	t.Run("klines trimmed to limit", func(t *testing.T) {
		candles := make([]models.Candle, 10)
		for i := range candles {
			candles[i].Close = decimal.NewFromInt(int64(i))
		}
		paper.SetKlines("BTCUSDT", candles)

		got, err := paper.GetKlines(ctx, "BTCUSDT", "5m", 3)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(got) != 3 {
			t.Fatalf("expected 3 candles, got %d", len(got))
		}
		if !got[2].Close.Equal(decimal.NewFromInt(9)) {
			t.Errorf("expected newest candle last, got close %s", got[2].Close)
		}
	})

	t.Run("injected failure fires once", func(t *testing.T) {
		boom := errors.New("venue down")
		paper.FailNext("price", boom)

		if _, err := paper.GetCurrentPrice(ctx, "BTCUSDT"); !errors.Is(err, boom) {
			t.Errorf("expected injected error, got %v", err)
		}
		if _, err := paper.GetCurrentPrice(ctx, "BTCUSDT"); err != nil {
			t.Errorf("expected recovery after injected failure, got %v", err)
		}
	})
}

func TestPaperClientPositionLifecycle(t *testing.T) {
	ctx := context.Background()
	paper := NewPaperClient()
	paper.SetPrice("ETHUSDT", decimal.NewFromInt(2000))

	if err := paper.SetLeverage(ctx, "ETHUSDT", 15); err != nil {
		t.Fatalf("set leverage: %v", err)
	}

	t.Run("buy opens long", func(t *testing.T) {
		result, err := paper.CreateMarketOrder(ctx, "ETHUSDT", models.SideBuy, decimal.NewFromFloat(0.5))
		if err != nil {
			t.Fatalf("create order: %v", err)
		}
		if result.OrderID == "" {
			t.Error("expected order id")
		}
		if !result.AvgPrice.Equal(decimal.NewFromInt(2000)) {
			t.Errorf("expected fill at 2000, got %s", result.AvgPrice)
		}

		pos, err := paper.GetPosition(ctx, "ETHUSDT")
		if err != nil {
			t.Fatalf("get position: %v", err)
		}
		if pos == nil {
			t.Fatal("expected open position")
		}
		if pos.Side != models.PositionLong {
			t.Errorf("expected LONG, got %s", pos.Side)
		}
		if pos.Leverage != 15 {
			t.Errorf("expected leverage 15, got %d", pos.Leverage)
		}
	})

	t.Run("close realizes pnl", func(t *testing.T) {
		paper.SetPrice("ETHUSDT", decimal.NewFromInt(2100))

		result, err := paper.ClosePosition(ctx, "ETHUSDT")
		if err != nil {
			t.Fatalf("close position: %v", err)
		}
		if result == nil {
			t.Fatal("expected close fill")
		}
		if result.Side != models.SideSell {
			t.Errorf("expected SELL close, got %s", result.Side)
		}

		pos, err := paper.GetPosition(ctx, "ETHUSDT")
		if err != nil {
			t.Fatalf("get position: %v", err)
		}
		if pos != nil {
			t.Errorf("expected flat after close, got %+v", pos)
		}

		// 0.5 ETH gained 100 USDT/ETH
		balance, err := paper.GetAccountBalance(ctx)
		if err != nil {
			t.Fatalf("get balance: %v", err)
		}
		expected := decimal.NewFromInt(10050)
		if !balance.Balance.Equal(expected) {
			t.Errorf("expected balance %s, got %s", expected, balance.Balance)
		}
	})

	t.Run("close when flat returns nil", func(t *testing.T) {
		result, err := paper.ClosePosition(ctx, "ETHUSDT")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result != nil {
			t.Errorf("expected nil result, got %+v", result)
		}
	})

	t.Run("short side pnl is inverted", func(t *testing.T) {
		paper.SetPrice("ETHUSDT", decimal.NewFromInt(2000))
		if _, err := paper.CreateMarketOrder(ctx, "ETHUSDT", models.SideSell, decimal.NewFromInt(1)); err != nil {
			t.Fatalf("open short: %v", err)
		}

		pos, _ := paper.GetPosition(ctx, "ETHUSDT")
		if pos == nil || pos.Side != models.PositionShort {
			t.Fatalf("expected SHORT position, got %+v", pos)
		}

		paper.SetPrice("ETHUSDT", decimal.NewFromInt(1900))
		if _, err := paper.ClosePosition(ctx, "ETHUSDT"); err != nil {
			t.Fatalf("close short: %v", err)
		}

		balance, _ := paper.GetAccountBalance(ctx)
		expected := decimal.NewFromInt(10150)
		if !balance.Balance.Equal(expected) {
			t.Errorf("expected balance %s after short win, got %s", expected, balance.Balance)
		}
	})

	t.Run("opposite order nets down", func(t *testing.T) {
		paper.SetPrice("ETHUSDT", decimal.NewFromInt(2000))
		if _, err := paper.CreateMarketOrder(ctx, "ETHUSDT", models.SideBuy, decimal.NewFromInt(2)); err != nil {
			t.Fatalf("open long: %v", err)
		}
		if _, err := paper.CreateMarketOrder(ctx, "ETHUSDT", models.SideSell, decimal.NewFromInt(1)); err != nil {
			t.Fatalf("reduce long: %v", err)
		}

		pos, _ := paper.GetPosition(ctx, "ETHUSDT")
		if pos == nil {
			t.Fatal("expected remaining position")
		}
		if !pos.Amount.Equal(decimal.NewFromInt(1)) {
			t.Errorf("expected 1 remaining, got %s", pos.Amount)
		}
		if pos.Side != models.PositionLong {
			t.Errorf("expected LONG remainder, got %s", pos.Side)
		}
	})
}

func TestPaperClientRejectsBadQuantity(t *testing.T) {
	ctx := context.Background()
	paper := NewPaperClient()
	paper.SetPrice("BTCUSDT", decimal.NewFromInt(50000))

	if _, err := paper.CreateMarketOrder(ctx, "BTCUSDT", models.SideBuy, decimal.Zero); err == nil {
		t.Error("expected error for zero quantity")
	}
	if _, err := paper.CreateMarketOrder(ctx, "BTCUSDT", models.SideBuy, decimal.NewFromInt(-1)); err == nil {
		t.Error("expected error for negative quantity")
	}
}
