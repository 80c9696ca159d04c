package statestore

import (
	"go.uber.org/zap"

	"github.com/alexanderselivanov/botfleet/internal/adapters/config"
	"github.com/alexanderselivanov/botfleet/pkg/logger"
)

// New builds the state store for the process. When Redis is down and
// fallback is enabled it degrades to the dummy store instead of
// failing startup.
func New(cfg *config.RedisConfig) (Store, error) {
	store, err := NewRedisStore(cfg)
	if err == nil {
		return store, nil
	}

	if !cfg.FallbackToDummy {
		return nil, err
	}

	logger.Warn("state store unreachable, running without persistence",
		zap.String("addr", cfg.Addr),
		zap.Error(err),
	)
	return NewDummyStore(), nil
}
