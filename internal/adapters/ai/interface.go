// Package ai wraps the chat-completion providers behind a single
// Provider interface. Providers receive a system and a user prompt and
// return the raw assistant text; decoding the structured trading
// decision out of that text lives in prompts.go.
package ai

import (
	"context"
	"errors"
	"fmt"

	"github.com/alexanderselivanov/botfleet/internal/adapters/config"
)

// ErrNoProvider is returned by New when no provider is configured.
// The caller runs the ensemble without an AI voter in that case.
var ErrNoProvider = errors.New("no AI provider configured")

// Provider represents a chat-completion backend.
type Provider interface {
	// Name identifies the provider in logs and signal metadata.
	Name() string

	// Complete sends one system+user exchange and returns the
	// assistant's textual reply. Transport and API failures come back
	// as errors; content problems are the caller's to handle.
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// New builds the first configured provider in preference order:
// OpenAI, DeepSeek, Claude. Only one provider backs the AI voter.
func New(cfg *config.AIConfig) (Provider, error) {
	switch {
	case cfg.OpenAI.IsConfigured():
		return NewOpenAIProvider(cfg), nil
	case cfg.DeepSeek.IsConfigured():
		return NewDeepSeekProvider(cfg), nil
	case cfg.Claude.IsConfigured():
		return NewClaudeProvider(cfg), nil
	}
	return nil, fmt.Errorf("openai, deepseek, claude all disabled: %w", ErrNoProvider)
}
