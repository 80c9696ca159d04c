package statestore

import "context"

// DummyStore satisfies Store while persisting nothing. It stands in
// when Redis is unreachable and fallback is enabled: the live loop
// keeps trading, crash recovery is lost.
type DummyStore struct{}

// NewDummyStore returns the no-op store.
func NewDummyStore() *DummyStore {
	return &DummyStore{}
}

func (d *DummyStore) SaveBotState(ctx context.Context, name string, state map[string]interface{}) bool {
	return true
}

func (d *DummyStore) LoadBotState(ctx context.Context, name string) (map[string]interface{}, bool) {
	return nil, false
}

func (d *DummyStore) SavePosition(ctx context.Context, name string, position map[string]interface{}) bool {
	return true
}

func (d *DummyStore) LoadPosition(ctx context.Context, name string) (map[string]interface{}, bool) {
	return nil, false
}

func (d *DummyStore) DeletePosition(ctx context.Context, name string) bool { return true }

func (d *DummyStore) RegisterBot(ctx context.Context, name string) bool   { return true }
func (d *DummyStore) UnregisterBot(ctx context.Context, name string) bool { return true }
func (d *DummyStore) GetRegisteredBots(ctx context.Context) []string      { return nil }

func (d *DummyStore) SetBotRunning(ctx context.Context, name string) bool { return true }
func (d *DummyStore) SetBotStopped(ctx context.Context, name string) bool { return true }
func (d *DummyStore) GetRunningBots(ctx context.Context) []string         { return nil }
func (d *DummyStore) ClearRunningBots(ctx context.Context) bool           { return true }

func (d *DummyStore) Ping(ctx context.Context) bool { return false }
func (d *DummyStore) Close() error                  { return nil }
