package statestore

import "context"

// Store is the durable per-bot state layer. Implementations must never
// panic or propagate backend failures; every mutation reports success
// as a bool so a store outage cannot take a trading loop down.
type Store interface {
	// SaveBotState writes the runtime-state hash for a bot, stamping a
	// last_updated field.
	SaveBotState(ctx context.Context, name string, state map[string]interface{}) bool
	// LoadBotState returns the decoded state hash. ok is false when the
	// backend failed or no state exists.
	LoadBotState(ctx context.Context, name string) (map[string]interface{}, bool)

	SavePosition(ctx context.Context, name string, position map[string]interface{}) bool
	LoadPosition(ctx context.Context, name string) (map[string]interface{}, bool)
	DeletePosition(ctx context.Context, name string) bool

	// RegisterBot adds the bot to the registry set. UnregisterBot
	// removes it and cascades to its state, position and running mark.
	RegisterBot(ctx context.Context, name string) bool
	UnregisterBot(ctx context.Context, name string) bool
	GetRegisteredBots(ctx context.Context) []string

	SetBotRunning(ctx context.Context, name string) bool
	SetBotStopped(ctx context.Context, name string) bool
	GetRunningBots(ctx context.Context) []string
	// ClearRunningBots wipes stale running marks, called at process start.
	ClearRunningBots(ctx context.Context) bool

	Ping(ctx context.Context) bool
	Close() error
}
