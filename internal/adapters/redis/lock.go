// Package redis provides the per-bot run locks. A lock is taken before
// a bot's loop starts and refreshed on every tick persist, so two
// orchestrator replicas sharing one Redis never drive the same bot.
package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/amyangfei/redlock-go/v3/redlock"
	"go.uber.org/zap"

	"github.com/alexanderselivanov/botfleet/internal/adapters/config"
	"github.com/alexanderselivanov/botfleet/pkg/logger"
)

// RunLock guards exclusive ownership of one bot's trading loop.
// Implementations are safe for concurrent use; the loop goroutine and
// the state janitor both refresh the same lock.
type RunLock interface {
	// TryAcquire attempts to take the lock. Returns false without error
	// when another holder has it.
	TryAcquire(ctx context.Context) (bool, error)

	// Refresh extends the lock TTL. An error means ownership was lost
	// and the caller should assume another replica drives the bot.
	Refresh(ctx context.Context) error

	// Release gives the lock up. Safe to call when not held.
	Release(ctx context.Context) error

	// Name returns the bot name the lock is for.
	Name() string
}

// NewLockManager connects the redlock manager used by RedlockFactory.
func NewLockManager(cfg *config.RedisConfig) (*redlock.RedLock, error) {
	addrs := []string{"tcp://" + cfg.Addr}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()

	manager, err := redlock.NewRedLock(ctx, addrs)
	if err != nil {
		return nil, fmt.Errorf("failed to create redlock manager: %w", err)
	}

	logger.Info("run-lock manager initialized", zap.Strings("addresses", addrs))
	return manager, nil
}

// RedisRunLock implements RunLock over the Redlock algorithm.
type RedisRunLock struct {
	manager *redlock.RedLock
	name    string
	key     string
	ttl     time.Duration

	mu   sync.Mutex
	held bool
}

func (l *RedisRunLock) TryAcquire(ctx context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	expiry, err := l.manager.Lock(ctx, l.key, l.ttl)
	if err != nil {
		// Lock not acquired, another replica has it
		logger.Debug("bot run lock held elsewhere",
			zap.String("bot", l.name),
			zap.String("key", l.key),
		)
		return false, nil
	}
	if expiry <= 0 {
		return false, fmt.Errorf("failed to acquire run lock %s: invalid expiry %v", l.key, expiry)
	}

	l.held = true
	logger.Info("bot run lock acquired",
		zap.String("bot", l.name),
		zap.Duration("ttl", l.ttl),
	)
	return true, nil
}

// Refresh extends the TTL. Redlock has no extend operation, so the lock
// is released and re-taken; losing that race means another replica now
// owns the bot.
func (l *RedisRunLock) Refresh(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.held {
		return fmt.Errorf("run lock %s is not held", l.key)
	}

	if err := l.manager.UnLock(ctx, l.key); err != nil {
		l.held = false
		return fmt.Errorf("run lock %s lost during refresh: %w", l.key, err)
	}

	expiry, err := l.manager.Lock(ctx, l.key, l.ttl)
	if err != nil || expiry <= 0 {
		l.held = false
		return fmt.Errorf("run lock %s taken over by another replica: %w", l.key, err)
	}
	return nil
}

func (l *RedisRunLock) Release(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.held {
		return nil
	}

	if err := l.manager.UnLock(ctx, l.key); err != nil {
		// Lock may have expired naturally; nothing left to hold either way
		logger.Warn("failed to release run lock",
			zap.String("bot", l.name),
			zap.Error(err),
		)
	} else {
		logger.Info("bot run lock released", zap.String("bot", l.name))
	}

	l.held = false
	return nil
}

func (l *RedisRunLock) Name() string {
	return l.name
}
