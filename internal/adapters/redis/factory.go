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

// LockFactory creates run locks for bots.
type LockFactory interface {
	RunLockFor(botName string) RunLock
}

// NewFactory returns a redlock-backed factory, degrading to
// process-local locks when Redis is unreachable.
func NewFactory(cfg *config.RedisConfig, ttl time.Duration) LockFactory {
	manager, err := NewLockManager(cfg)
	if err != nil {
		logger.Warn("redis unavailable for run locks, using process-local locks",
			zap.String("addr", cfg.Addr),
			zap.Error(err),
		)
		return NewLocalFactory()
	}
	return NewRedlockFactory(manager, cfg.KeyPrefix, ttl)
}

// RedlockFactory creates Redis-backed run locks.
type RedlockFactory struct {
	manager *redlock.RedLock
	prefix  string
	ttl     time.Duration
}

// NewRedlockFactory creates new redlock-backed lock factory
func NewRedlockFactory(manager *redlock.RedLock, prefix string, ttl time.Duration) *RedlockFactory {
	return &RedlockFactory{
		manager: manager,
		prefix:  prefix,
		ttl:     ttl,
	}
}

func (f *RedlockFactory) RunLockFor(botName string) RunLock {
	return &RedisRunLock{
		manager: f.manager,
		name:    botName,
		key:     fmt.Sprintf("%s:lock:bot:%s", f.prefix, botName),
		ttl:     f.ttl,
	}
}

// LocalFactory hands out process-local locks. Exclusivity holds within
// this process only; good enough for single-replica and test runs.
type LocalFactory struct {
	mu   sync.Mutex
	held map[string]bool
}

// NewLocalFactory creates new process-local lock factory
func NewLocalFactory() *LocalFactory {
	return &LocalFactory{held: make(map[string]bool)}
}

func (f *LocalFactory) RunLockFor(botName string) RunLock {
	return &localRunLock{factory: f, name: botName}
}

type localRunLock struct {
	factory *LocalFactory
	name    string
}

func (l *localRunLock) TryAcquire(_ context.Context) (bool, error) {
	l.factory.mu.Lock()
	defer l.factory.mu.Unlock()

	if l.factory.held[l.name] {
		return false, nil
	}
	l.factory.held[l.name] = true
	return true, nil
}

func (l *localRunLock) Refresh(_ context.Context) error {
	return nil
}

func (l *localRunLock) Release(_ context.Context) error {
	l.factory.mu.Lock()
	defer l.factory.mu.Unlock()

	delete(l.factory.held, l.name)
	return nil
}

func (l *localRunLock) Name() string {
	return l.name
}
