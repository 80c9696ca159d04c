package bot

import "errors"

// Typed errors the admin API maps onto HTTP statuses.
var (
	// ErrBotNotFound means no bot with that name is registered.
	ErrBotNotFound = errors.New("bot not found")

	// ErrBotAlreadyExists means a bot with that name is already registered.
	ErrBotAlreadyExists = errors.New("bot already exists")

	// ErrBotRunning means the operation requires the bot to be stopped first.
	ErrBotRunning = errors.New("bot is running")

	// ErrBotLocked means another replica holds the bot's run lock.
	ErrBotLocked = errors.New("bot is locked by another replica")
)
