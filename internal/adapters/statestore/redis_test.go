package statestore

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/alexanderselivanov/botfleet/internal/adapters/config"
)

func newTestStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	store, err := NewRedisStore(&config.RedisConfig{
		Addr:        mr.Addr(),
		KeyPrefix:   "test",
		DialTimeout: time.Second,
		OpTimeout:   time.Second,
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	return store, mr
}

func TestRedisStoreStateRoundTrip(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	state := map[string]interface{}{
		"is_running":    true,
		"loop_count":    int64(12),
		"current_price": 64000.5,
		"last_signal":   "LONG",
	}

	if !store.SaveBotState(ctx, "alpha", state) {
		t.Fatal("save must succeed")
	}

	got, ok := store.LoadBotState(ctx, "alpha")
	if !ok {
		t.Fatal("load must find saved state")
	}
	if got["is_running"] != true {
		t.Errorf("is_running: got %v", got["is_running"])
	}
	if got["loop_count"] != int64(12) {
		t.Errorf("loop_count: got %v (%T)", got["loop_count"], got["loop_count"])
	}
	if got["current_price"] != 64000.5 {
		t.Errorf("current_price: got %v", got["current_price"])
	}
	if _, ok := got["last_updated"].(time.Time); !ok {
		t.Errorf("last_updated must decode as time, got %T", got["last_updated"])
	}
}

func TestRedisStoreLoadMissing(t *testing.T) {
	store, _ := newTestStore(t)

	if _, ok := store.LoadBotState(context.Background(), "ghost"); ok {
		t.Error("missing state must report ok=false")
	}
	if _, ok := store.LoadPosition(context.Background(), "ghost"); ok {
		t.Error("missing position must report ok=false")
	}
}

func TestRedisStorePositionLifecycle(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	position := map[string]interface{}{
		"symbol":      "BTCUSDT",
		"side":        "LONG",
		"entry_price": 100000.0,
		"quantity":    0.015,
	}

	if !store.SavePosition(ctx, "alpha", position) {
		t.Fatal("save position must succeed")
	}
	got, ok := store.LoadPosition(ctx, "alpha")
	if !ok || got["side"] != "LONG" {
		t.Fatalf("load position: got %v ok=%v", got, ok)
	}

	if !store.DeletePosition(ctx, "alpha") {
		t.Fatal("delete position must succeed")
	}
	if _, ok := store.LoadPosition(ctx, "alpha"); ok {
		t.Error("deleted position must not load")
	}
}

func TestRedisStoreRegistry(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	store.RegisterBot(ctx, "alpha")
	store.RegisterBot(ctx, "beta")
	store.SetBotRunning(ctx, "alpha")
	store.SaveBotState(ctx, "alpha", map[string]interface{}{"is_running": true})
	store.SavePosition(ctx, "alpha", map[string]interface{}{"side": "LONG"})

	bots := store.GetRegisteredBots(ctx)
	sort.Strings(bots)
	if len(bots) != 2 || bots[0] != "alpha" || bots[1] != "beta" {
		t.Fatalf("registered bots: got %v", bots)
	}

	running := store.GetRunningBots(ctx)
	if len(running) != 1 || running[0] != "alpha" {
		t.Fatalf("running bots: got %v", running)
	}

	t.Run("unregister cascades", func(t *testing.T) {
		if !store.UnregisterBot(ctx, "alpha") {
			t.Fatal("unregister must succeed")
		}
		if bots := store.GetRegisteredBots(ctx); len(bots) != 1 || bots[0] != "beta" {
			t.Errorf("registry after unregister: got %v", bots)
		}
		if running := store.GetRunningBots(ctx); len(running) != 0 {
			t.Errorf("running set after unregister: got %v", running)
		}
		if _, ok := store.LoadBotState(ctx, "alpha"); ok {
			t.Error("state must be deleted on unregister")
		}
		if _, ok := store.LoadPosition(ctx, "alpha"); ok {
			t.Error("position must be deleted on unregister")
		}
	})
}

func TestRedisStoreRunningMarks(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	store.SetBotRunning(ctx, "alpha")
	store.SetBotRunning(ctx, "beta")
	store.SetBotStopped(ctx, "alpha")

	running := store.GetRunningBots(ctx)
	if len(running) != 1 || running[0] != "beta" {
		t.Fatalf("got %v", running)
	}

	if !store.ClearRunningBots(ctx) {
		t.Fatal("clear must succeed")
	}
	if running := store.GetRunningBots(ctx); len(running) != 0 {
		t.Errorf("after clear: got %v", running)
	}
}

func TestRedisStoreOutage(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	if !store.Ping(ctx) {
		t.Fatal("ping must succeed while backend is up")
	}

	mr.Close()

	if store.Ping(ctx) {
		t.Error("ping must fail after backend goes away")
	}
	if store.SaveBotState(ctx, "alpha", map[string]interface{}{"a": 1}) {
		t.Error("save must report false during outage")
	}
	if _, ok := store.LoadBotState(ctx, "alpha"); ok {
		t.Error("load must report false during outage")
	}
	if store.RegisterBot(ctx, "alpha") {
		t.Error("register must report false during outage")
	}
}

func TestDummyStore(t *testing.T) {
	store := NewDummyStore()
	ctx := context.Background()

	if !store.SaveBotState(ctx, "alpha", map[string]interface{}{"a": 1}) {
		t.Error("dummy save must report success")
	}
	if _, ok := store.LoadBotState(ctx, "alpha"); ok {
		t.Error("dummy store must never return state")
	}
	if store.Ping(ctx) {
		t.Error("dummy ping must report false")
	}
	if !store.UnregisterBot(ctx, "alpha") {
		t.Error("dummy unregister must report success")
	}
	if bots := store.GetRegisteredBots(ctx); bots != nil {
		t.Errorf("dummy registry must be empty, got %v", bots)
	}
}
