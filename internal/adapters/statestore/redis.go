package statestore

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/alexanderselivanov/botfleet/internal/adapters/config"
	"github.com/alexanderselivanov/botfleet/pkg/logger"
)

// RedisStore persists bot state in Redis hashes and sets.
//
// Key layout:
//
//	<prefix>:bot:<name>:state     hash of tagged runtime-state fields
//	<prefix>:bot:<name>:position  hash of tagged position fields
//	<prefix>:manager:bots         set of registered bot names
//	<prefix>:manager:running      set of bots marked running
type RedisStore struct {
	client    *redis.Client
	prefix    string
	opTimeout time.Duration
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(cfg *config.RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.OpTimeout,
		WriteTimeout: cfg.OpTimeout,
		PoolSize:     10,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}

	logger.Info("state store connected",
		zap.String("addr", cfg.Addr),
		zap.String("prefix", cfg.KeyPrefix),
	)

	return &RedisStore{
		client:    client,
		prefix:    cfg.KeyPrefix,
		opTimeout: cfg.OpTimeout,
	}, nil
}

func (s *RedisStore) stateKey(name string) string {
	return fmt.Sprintf("%s:bot:%s:state", s.prefix, name)
}

func (s *RedisStore) positionKey(name string) string {
	return fmt.Sprintf("%s:bot:%s:position", s.prefix, name)
}

func (s *RedisStore) botsKey() string {
	return fmt.Sprintf("%s:manager:bots", s.prefix)
}

func (s *RedisStore) runningKey() string {
	return fmt.Sprintf("%s:manager:running", s.prefix)
}

func (s *RedisStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.opTimeout)
}

// SaveBotState writes the encoded state hash plus a last_updated stamp.
func (s *RedisStore) SaveBotState(ctx context.Context, name string, state map[string]interface{}) bool {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	encoded := EncodeMap(state)
	encoded["last_updated"] = EncodeValue(time.Now().UTC())

	if err := s.client.HSet(ctx, s.stateKey(name), encoded).Err(); err != nil {
		logger.Warn("failed to save bot state",
			zap.String("bot", name),
			zap.Error(err),
		)
		return false
	}
	return true
}

func (s *RedisStore) LoadBotState(ctx context.Context, name string) (map[string]interface{}, bool) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	raw, err := s.client.HGetAll(ctx, s.stateKey(name)).Result()
	if err != nil {
		logger.Warn("failed to load bot state",
			zap.String("bot", name),
			zap.Error(err),
		)
		return nil, false
	}
	if len(raw) == 0 {
		return nil, false
	}
	return DecodeMap(raw), true
}

func (s *RedisStore) SavePosition(ctx context.Context, name string, position map[string]interface{}) bool {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	encoded := EncodeMap(position)
	encoded["last_updated"] = EncodeValue(time.Now().UTC())

	if err := s.client.HSet(ctx, s.positionKey(name), encoded).Err(); err != nil {
		logger.Warn("failed to save position",
			zap.String("bot", name),
			zap.Error(err),
		)
		return false
	}
	return true
}

func (s *RedisStore) LoadPosition(ctx context.Context, name string) (map[string]interface{}, bool) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	raw, err := s.client.HGetAll(ctx, s.positionKey(name)).Result()
	if err != nil {
		logger.Warn("failed to load position",
			zap.String("bot", name),
			zap.Error(err),
		)
		return nil, false
	}
	if len(raw) == 0 {
		return nil, false
	}
	return DecodeMap(raw), true
}

func (s *RedisStore) DeletePosition(ctx context.Context, name string) bool {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if err := s.client.Del(ctx, s.positionKey(name)).Err(); err != nil {
		logger.Warn("failed to delete position",
			zap.String("bot", name),
			zap.Error(err),
		)
		return false
	}
	return true
}

func (s *RedisStore) RegisterBot(ctx context.Context, name string) bool {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if err := s.client.SAdd(ctx, s.botsKey(), name).Err(); err != nil {
		logger.Warn("failed to register bot",
			zap.String("bot", name),
			zap.Error(err),
		)
		return false
	}
	return true
}

// UnregisterBot removes the bot from the registry and deletes its
// state, position and running mark in one pipeline.
func (s *RedisStore) UnregisterBot(ctx context.Context, name string) bool {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	pipe := s.client.TxPipeline()
	pipe.SRem(ctx, s.botsKey(), name)
	pipe.SRem(ctx, s.runningKey(), name)
	pipe.Del(ctx, s.stateKey(name), s.positionKey(name))

	if _, err := pipe.Exec(ctx); err != nil {
		logger.Warn("failed to unregister bot",
			zap.String("bot", name),
			zap.Error(err),
		)
		return false
	}
	return true
}

func (s *RedisStore) GetRegisteredBots(ctx context.Context) []string {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	names, err := s.client.SMembers(ctx, s.botsKey()).Result()
	if err != nil {
		logger.Warn("failed to list registered bots", zap.Error(err))
		return nil
	}
	return names
}

func (s *RedisStore) SetBotRunning(ctx context.Context, name string) bool {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if err := s.client.SAdd(ctx, s.runningKey(), name).Err(); err != nil {
		logger.Warn("failed to mark bot running",
			zap.String("bot", name),
			zap.Error(err),
		)
		return false
	}
	return true
}

func (s *RedisStore) SetBotStopped(ctx context.Context, name string) bool {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if err := s.client.SRem(ctx, s.runningKey(), name).Err(); err != nil {
		logger.Warn("failed to mark bot stopped",
			zap.String("bot", name),
			zap.Error(err),
		)
		return false
	}
	return true
}

func (s *RedisStore) GetRunningBots(ctx context.Context) []string {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	names, err := s.client.SMembers(ctx, s.runningKey()).Result()
	if err != nil {
		logger.Warn("failed to list running bots", zap.Error(err))
		return nil
	}
	return names
}

// ClearRunningBots wipes the running set. Called once at process start
// so marks left by a crashed process do not linger.
func (s *RedisStore) ClearRunningBots(ctx context.Context) bool {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if err := s.client.Del(ctx, s.runningKey()).Err(); err != nil {
		logger.Warn("failed to clear running bots", zap.Error(err))
		return false
	}
	return true
}

func (s *RedisStore) Ping(ctx context.Context) bool {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.client.Ping(ctx).Err() == nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
