package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/alexanderselivanov/botfleet/internal/adapters/config"
	"github.com/alexanderselivanov/botfleet/pkg/logger"
)

const (
	deepseekAPIURL       = "https://api.deepseek.com/v1/chat/completions"
	defaultDeepSeekModel = "deepseek-chat"
)

// DeepSeekProvider implements Provider for DeepSeek. The endpoint is
// OpenAI-compatible, so the wire shape mirrors the chat completions API.
type DeepSeekProvider struct {
	apiKey      string
	baseURL     string
	model       string
	temperature float32
	maxTokens   int
	client      *http.Client
}

// NewDeepSeekProvider creates new DeepSeek provider
func NewDeepSeekProvider(cfg *config.AIConfig) *DeepSeekProvider {
	baseURL := cfg.DeepSeek.BaseURL
	if baseURL == "" {
		baseURL = deepseekAPIURL
	}

	model := cfg.DeepSeek.Model
	if model == "" {
		model = defaultDeepSeekModel
	}

	return &DeepSeekProvider{
		apiKey:      cfg.DeepSeek.APIKey,
		baseURL:     baseURL,
		model:       model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

func (d *DeepSeekProvider) Name() string {
	return "deepseek"
}

func (d *DeepSeekProvider) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	reqBody := map[string]interface{}{
		"model": d.model,
		"messages": []map[string]string{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": userPrompt},
		},
		"temperature": d.temperature,
		"max_tokens":  d.maxTokens,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", d.apiKey))

	startTime := time.Now()
	resp, err := d.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("deepseek request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}

	if len(result.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}

	content := result.Choices[0].Message.Content

	logger.Debug("DeepSeek response",
		zap.Duration("latency", time.Since(startTime)),
		zap.String("model", d.model),
		zap.String("response", content),
	)

	return content, nil
}
