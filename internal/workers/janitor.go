// Package workers holds the fleet's background maintenance loops,
// scheduled by pkg/worker.
package workers

import (
	"context"

	"go.uber.org/zap"

	"github.com/alexanderselivanov/botfleet/internal/adapters/statestore"
	"github.com/alexanderselivanov/botfleet/internal/bot"
	"github.com/alexanderselivanov/botfleet/pkg/logger"
)

// StateJanitor keeps the shared state store honest. Every pass
// refreshes the run-lock lease of locally running bots, so a tick
// stalled on a slow venue cannot lose its lease mid-run, and prunes
// registry members no replica backs anymore.
type StateJanitor struct {
	manager *bot.Manager
	store   statestore.Store
}

// NewStateJanitor creates new state janitor
func NewStateJanitor(manager *bot.Manager, store statestore.Store) *StateJanitor {
	return &StateJanitor{manager: manager, store: store}
}

// Name returns worker name
func (w *StateJanitor) Name() string {
	return "state_janitor"
}

// Run executes one maintenance pass.
func (w *StateJanitor) Run(ctx context.Context) error {
	refreshed := w.manager.RefreshRunLocks(ctx)
	pruned := w.pruneOrphans(ctx)

	if refreshed > 0 || pruned > 0 {
		logger.Debug("state janitor pass complete",
			zap.Int("locks_refreshed", refreshed),
			zap.Int("registrations_pruned", pruned),
		)
	}
	return nil
}

// pruneOrphans unregisters bots this manager does not own that carry
// neither a state hash nor a running mark. A bot on a peer replica
// rewrites its state hash every tick, so it is never touched.
func (w *StateJanitor) pruneOrphans(ctx context.Context) int {
	running := make(map[string]bool)
	for _, name := range w.store.GetRunningBots(ctx) {
		running[name] = true
	}

	pruned := 0
	for _, name := range w.store.GetRegisteredBots(ctx) {
		if w.manager.GetBot(name) != nil {
			continue
		}
		if running[name] {
			continue
		}
		if _, ok := w.store.LoadBotState(ctx, name); ok {
			continue
		}
		if w.store.UnregisterBot(ctx, name) {
			pruned++
			logger.Info("pruned orphaned bot registration", zap.String("bot", name))
		}
	}
	return pruned
}
