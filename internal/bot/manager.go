package bot

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/alexanderselivanov/botfleet/internal/adapters/redis"
	"github.com/alexanderselivanov/botfleet/pkg/logger"
	"github.com/alexanderselivanov/botfleet/pkg/models"
)

// shutdownTimeout bounds the graceful stop of the whole fleet. A stop
// waits for in-flight ticks, which can sit in venue retries.
const shutdownTimeout = 2 * time.Minute

// Manager owns every bot instance and its loop goroutine. Map mutations
// and start/stop bookkeeping are serialized by one mutex; waiting for a
// loop to exit happens outside it.
type Manager struct {
	deps Deps

	mu      sync.RWMutex
	bots    map[string]*Instance
	running map[string]*session

	cbs callbacks

	rootCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// session tracks one run of a bot loop.
type session struct {
	stop chan struct{}
	done chan struct{}
}

func (s *session) finished() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// NewManager creates an empty manager around the shared dependencies.
func NewManager(deps Deps) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		deps:    deps,
		bots:    make(map[string]*Instance),
		running: make(map[string]*session),
		rootCtx: ctx,
		cancel:  cancel,
	}
}

// AddBot validates and registers a bot without starting it. The name
// must be unique across the fleet.
func (m *Manager) AddBot(cfg *models.BotConfig) (*Instance, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid bot config: %w", err)
	}
	for _, w := range cfg.Warnings() {
		logger.Warn("bot config warning", zap.String("bot", cfg.Name), zap.String("warning", w))
	}
	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.bots[cfg.Name]; exists {
		return nil, fmt.Errorf("bot %q: %w", cfg.Name, ErrBotAlreadyExists)
	}

	inst := NewInstance(cfg, m.deps)
	inst.setCallbacks(m.cbs)
	m.bots[cfg.Name] = inst

	logger.Info("bot added",
		zap.String("bot", cfg.Name),
		zap.String("symbol", cfg.Symbol),
		zap.String("risk_level", string(cfg.RiskLevel)),
	)
	return inst, nil
}

// UpdateBot replaces the config of a stopped bot. The instance is
// rebuilt, so runtime state starts clean and is re-read from the state
// store on the next start.
func (m *Manager) UpdateBot(cfg *models.BotConfig) (*Instance, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid bot config: %w", err)
	}
	for _, w := range cfg.Warnings() {
		logger.Warn("bot config warning", zap.String("bot", cfg.Name), zap.String("warning", w))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	old, ok := m.bots[cfg.Name]
	if !ok {
		return nil, fmt.Errorf("bot %q: %w", cfg.Name, ErrBotNotFound)
	}
	if s := m.running[cfg.Name]; s != nil && !s.finished() {
		return nil, fmt.Errorf("bot %q: %w", cfg.Name, ErrBotRunning)
	}
	if cfg.ID == "" {
		cfg.ID = old.cfg.ID
	}
	if cfg.CreatedAt.IsZero() {
		cfg.CreatedAt = old.cfg.CreatedAt
	}

	inst := NewInstance(cfg, m.deps)
	inst.setCallbacks(m.cbs)
	m.bots[cfg.Name] = inst

	logger.Info("bot updated",
		zap.String("bot", cfg.Name),
		zap.String("symbol", cfg.Symbol),
		zap.String("risk_level", string(cfg.RiskLevel)),
	)
	return inst, nil
}

// RemoveBot deregisters a stopped bot and drops its state store keys.
func (m *Manager) RemoveBot(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.bots[name]; !ok {
		return fmt.Errorf("bot %q: %w", name, ErrBotNotFound)
	}
	if s := m.running[name]; s != nil && !s.finished() {
		return fmt.Errorf("bot %q: %w", name, ErrBotRunning)
	}

	delete(m.bots, name)
	delete(m.running, name)
	m.deps.Store.UnregisterBot(ctx, name)

	logger.Info("bot removed", zap.String("bot", name))
	return nil
}

// GetBot returns the instance or nil when unknown.
func (m *Manager) GetBot(name string) *Instance {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.bots[name]
}

// ListBots returns all instances sorted by name.
func (m *Manager) ListBots() []*Instance {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Instance, 0, len(m.bots))
	for _, inst := range m.bots {
		out = append(out, inst)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Counts returns the total and running bot numbers for health checks.
func (m *Manager) Counts() (total, running int) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	total = len(m.bots)
	for _, s := range m.running {
		if !s.finished() {
			running++
		}
	}
	return total, running
}

// RefreshRunLocks extends the run-lock lease of every bot with an
// active session and returns how many leases were extended. Refresh
// failures are logged per bot; the loop's own tick refresh decides
// whether to keep trading.
func (m *Manager) RefreshRunLocks(ctx context.Context) int {
	m.mu.RLock()
	instances := make([]*Instance, 0, len(m.running))
	for name, s := range m.running {
		if s.finished() {
			continue
		}
		if inst := m.bots[name]; inst != nil {
			instances = append(instances, inst)
		}
	}
	m.mu.RUnlock()

	refreshed := 0
	for _, inst := range instances {
		if err := inst.RefreshLock(ctx); err != nil {
			logger.Warn("run lock refresh failed",
				zap.String("bot", inst.Name()),
				zap.Error(err),
			)
			continue
		}
		refreshed++
	}
	return refreshed
}

// StartBot launches the bot's loop goroutine. Starting a bot that is
// already running is a no-op. The per-bot run lock is taken here so a
// second replica fails fast instead of spinning up a dead loop.
func (m *Manager) StartBot(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	inst, ok := m.bots[name]
	if !ok {
		return fmt.Errorf("bot %q: %w", name, ErrBotNotFound)
	}

	if s := m.running[name]; s != nil {
		if !s.finished() {
			return nil
		}
		delete(m.running, name)
	}

	var lock redis.RunLock
	if m.deps.Locks != nil {
		lock = m.deps.Locks.RunLockFor(name)
		acquired, err := lock.TryAcquire(ctx)
		if err != nil {
			return fmt.Errorf("failed to acquire run lock for %q: %w", name, err)
		}
		if !acquired {
			return fmt.Errorf("bot %q: %w", name, ErrBotLocked)
		}
	}

	s := &session{
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	m.running[name] = s

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer close(s.done)
		inst.Run(m.rootCtx, s.stop, lock)
	}()

	return nil
}

// StopBot signals the bot's loop and waits for it to exit. A tick in
// flight runs to completion first. Stopping a stopped bot is a no-op.
func (m *Manager) StopBot(ctx context.Context, name string) error {
	m.mu.Lock()
	if _, ok := m.bots[name]; !ok {
		m.mu.Unlock()
		return fmt.Errorf("bot %q: %w", name, ErrBotNotFound)
	}
	s := m.running[name]
	if s == nil {
		m.mu.Unlock()
		return nil
	}
	select {
	case <-s.stop:
	default:
		close(s.stop)
	}
	m.mu.Unlock()

	select {
	case <-s.done:
	case <-ctx.Done():
		return fmt.Errorf("failed to stop bot %q: %w", name, ctx.Err())
	}

	m.mu.Lock()
	if m.running[name] == s {
		delete(m.running, name)
	}
	m.mu.Unlock()
	return nil
}

// PauseBot blocks the bot's entries without stopping its loop.
func (m *Manager) PauseBot(name string) error {
	inst := m.GetBot(name)
	if inst == nil {
		return fmt.Errorf("bot %q: %w", name, ErrBotNotFound)
	}
	inst.Pause()
	return nil
}

// ResumeBot lifts a pause.
func (m *Manager) ResumeBot(name string) error {
	inst := m.GetBot(name)
	if inst == nil {
		return fmt.Errorf("bot %q: %w", name, ErrBotNotFound)
	}
	inst.Resume()
	return nil
}

// EmergencyCloseBot flags the bot to flatten its position and pause on
// its next tick.
func (m *Manager) EmergencyCloseBot(name string) error {
	inst := m.GetBot(name)
	if inst == nil {
		return fmt.Errorf("bot %q: %w", name, ErrBotNotFound)
	}
	inst.RequestEmergencyClose()
	return nil
}

// StartAll starts every registered bot. Individual failures are logged
// and do not stop the rest of the fleet.
func (m *Manager) StartAll(ctx context.Context) {
	for _, name := range m.botNames() {
		if err := m.StartBot(ctx, name); err != nil {
			logger.Error("failed to start bot", zap.String("bot", name), zap.Error(err))
		}
	}
}

// StopAll stops every bot and returns once all loops have exited, even
// when some of them never started or fail to stop in time.
func (m *Manager) StopAll(ctx context.Context) {
	for _, name := range m.botNames() {
		if err := m.StopBot(ctx, name); err != nil && !errors.Is(err, ErrBotNotFound) {
			logger.Error("failed to stop bot", zap.String("bot", name), zap.Error(err))
		}
	}
}

func (m *Manager) botNames() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.bots))
	for name := range m.bots {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Run starts the whole fleet and blocks until ctx is cancelled, then
// stops every bot, hard-cancelling loops that outlive the grace period.
func (m *Manager) Run(ctx context.Context) {
	m.deps.Store.ClearRunningBots(ctx)
	m.StartAll(ctx)

	total, running := m.Counts()
	logger.Info("🚀 bot manager running", zap.Int("bots", total), zap.Int("started", running))

	<-ctx.Done()
	logger.Info("🛑 shutting down bot fleet")

	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	m.StopAll(stopCtx)

	m.cancel()
	m.wg.Wait()
	logger.Info("✅ bot fleet stopped")
}

// SetSignalCallback installs the per-tick signal hook on current and
// future bots.
func (m *Manager) SetSignalCallback(cb models.SignalCallback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cbs.onSignal = cb
	m.applyCallbacks()
}

// SetTradeCallback installs the entry/exit hook on current and future
// bots.
func (m *Manager) SetTradeCallback(cb models.TradeCallback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cbs.onTrade = cb
	m.applyCallbacks()
}

// SetErrorCallback installs the tick failure hook on current and future
// bots.
func (m *Manager) SetErrorCallback(cb models.ErrorCallback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cbs.onError = cb
	m.applyCallbacks()
}

func (m *Manager) applyCallbacks() {
	for _, inst := range m.bots {
		inst.setCallbacks(m.cbs)
	}
}
