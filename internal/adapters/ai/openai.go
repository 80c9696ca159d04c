package ai

import (
	"context"
	"fmt"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/alexanderselivanov/botfleet/internal/adapters/config"
	"github.com/alexanderselivanov/botfleet/pkg/logger"
)

const defaultOpenAIModel = openai.GPT4oMini

// OpenAIProvider implements Provider on top of the official-compatible
// chat completions API via sashabaranov/go-openai.
type OpenAIProvider struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
}

// NewOpenAIProvider creates new OpenAI provider
func NewOpenAIProvider(cfg *config.AIConfig) *OpenAIProvider {
	clientCfg := openai.DefaultConfig(cfg.OpenAI.APIKey)
	if cfg.OpenAI.BaseURL != "" {
		clientCfg.BaseURL = cfg.OpenAI.BaseURL
	}
	clientCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	model := cfg.OpenAI.Model
	if model == "" {
		model = defaultOpenAIModel
	}

	return &OpenAIProvider{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
	}
}

func (o *OpenAIProvider) Name() string {
	return "openai"
}

func (o *OpenAIProvider) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	startTime := time.Now()

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
		Temperature: o.temperature,
		MaxTokens:   o.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("openai request failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}

	content := resp.Choices[0].Message.Content

	logger.Debug("OpenAI response",
		zap.Duration("latency", time.Since(startTime)),
		zap.String("model", o.model),
		zap.String("response", content),
	)

	return content, nil
}
