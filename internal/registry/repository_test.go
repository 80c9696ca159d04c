package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/alexanderselivanov/botfleet/internal/adapters/database/testdb"
	"github.com/alexanderselivanov/botfleet/pkg/models"
)

func intPtr(v int) *int           { return &v }
func floatPtr(v float64) *float64 { return &v }

func testConfig(name, symbol string) *models.BotConfig {
	return &models.BotConfig{
		Name:          name,
		Symbol:        symbol,
		Exchange:      "binance",
		RiskLevel:     models.RiskMedium,
		Leverage:      intPtr(10),
		TakeProfitPct: floatPtr(0.004),
		StopLossPct:   floatPtr(0.004),
		IsTestnet:     true,
		IsActive:      true,
		Description:   "integration fixture",
	}
}

func TestCreateAndGet(t *testing.T) {
	repo := NewRepository(testdb.Setup(t, "bot_configs"))
	ctx := context.Background()

	cfg := testConfig("alpha", "BTCUSDT")
	if err := repo.Create(ctx, cfg); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if cfg.ID == "" {
		t.Error("Create left the ID empty")
	}
	if cfg.CreatedAt.IsZero() || cfg.UpdatedAt.IsZero() {
		t.Error("Create left timestamps unset")
	}

	got, err := repo.Get(ctx, "alpha")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.ID != cfg.ID {
		t.Errorf("ID = %s, want %s", got.ID, cfg.ID)
	}
	if got.Symbol != "BTCUSDT" || got.Exchange != "binance" {
		t.Errorf("loaded %s on %s, want BTCUSDT on binance", got.Symbol, got.Exchange)
	}
	if got.RiskLevel != models.RiskMedium {
		t.Errorf("risk level = %s, want %s", got.RiskLevel, models.RiskMedium)
	}
	if got.Leverage == nil || *got.Leverage != 10 {
		t.Errorf("leverage = %v, want 10", got.Leverage)
	}
	if got.TimeCutMinutes != nil {
		t.Errorf("time cut = %v, want nil when unset", got.TimeCutMinutes)
	}
	if !got.IsTestnet || !got.IsActive {
		t.Errorf("flags testnet=%v active=%v, want both true", got.IsTestnet, got.IsActive)
	}

	if err := repo.Create(ctx, testConfig("alpha", "ETHUSDT")); err == nil {
		t.Error("expected duplicate name to be rejected")
	}

	_, err = repo.Get(ctx, "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Get missing: got %v, want ErrNotFound", err)
	}
}

func TestCreateKeepsGivenID(t *testing.T) {
	repo := NewRepository(testdb.Setup(t, "bot_configs"))
	ctx := context.Background()

	cfg := testConfig("fixed-id", "ETHUSDT")
	cfg.ID = "0b2d9fd4-0a5a-4f9c-9a8a-3e6d2b9c1f00"
	if err := repo.Create(ctx, cfg); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	got, err := repo.Get(ctx, "fixed-id")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.ID != cfg.ID {
		t.Errorf("ID = %s, want the provided %s", got.ID, cfg.ID)
	}
}

func TestUpdate(t *testing.T) {
	repo := NewRepository(testdb.Setup(t, "bot_configs"))
	ctx := context.Background()

	cfg := testConfig("beta", "BTCUSDT")
	if err := repo.Create(ctx, cfg); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	created := cfg.UpdatedAt

	cfg.Symbol = "SOLUSDT"
	cfg.RiskLevel = models.RiskHigh
	cfg.IsActive = false
	if err := repo.Update(ctx, cfg); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	got, err := repo.Get(ctx, "beta")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Symbol != "SOLUSDT" || got.RiskLevel != models.RiskHigh || got.IsActive {
		t.Errorf("update not applied: %+v", got)
	}
	if !got.UpdatedAt.After(created) {
		t.Errorf("updated_at %s not after %s", got.UpdatedAt, created)
	}

	ghost := testConfig("ghost", "BTCUSDT")
	if err := repo.Update(ctx, ghost); !errors.Is(err, ErrNotFound) {
		t.Errorf("Update missing: got %v, want ErrNotFound", err)
	}
}

func TestDelete(t *testing.T) {
	repo := NewRepository(testdb.Setup(t, "bot_configs"))
	ctx := context.Background()

	if err := repo.Create(ctx, testConfig("gamma", "BTCUSDT")); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := repo.Delete(ctx, "gamma"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := repo.Get(ctx, "gamma"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after delete: got %v, want ErrNotFound", err)
	}
	if err := repo.Delete(ctx, "gamma"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete: got %v, want ErrNotFound", err)
	}
}

func TestListOrdersByCreation(t *testing.T) {
	repo := NewRepository(testdb.Setup(t, "bot_configs"))
	ctx := context.Background()

	for _, name := range []string{"first", "second", "third"} {
		if err := repo.Create(ctx, testConfig(name, "BTCUSDT")); err != nil {
			t.Fatalf("Create %s failed: %v", name, err)
		}
	}

	configs, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(configs) != 3 {
		t.Fatalf("expected 3 configs, got %d", len(configs))
	}
	for i, want := range []string{"first", "second", "third"} {
		if configs[i].Name != want {
			t.Errorf("configs[%d] = %s, want %s", i, configs[i].Name, want)
		}
	}
}

func TestListActive(t *testing.T) {
	repo := NewRepository(testdb.Setup(t, "bot_configs"))
	ctx := context.Background()

	if err := repo.Create(ctx, testConfig("active-bot", "BTCUSDT")); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	paused := testConfig("paused-bot", "ETHUSDT")
	paused.IsActive = false
	if err := repo.Create(ctx, paused); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	configs, err := repo.ListActive(ctx)
	if err != nil {
		t.Fatalf("ListActive failed: %v", err)
	}
	if len(configs) != 1 || configs[0].Name != "active-bot" {
		names := make([]string, len(configs))
		for i, c := range configs {
			names[i] = c.Name
		}
		t.Fatalf("ListActive = %v, want only active-bot", names)
	}
}
