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
	claudeAPIURL       = "https://api.anthropic.com/v1/messages"
	claudeAPIVersion   = "2023-06-01"
	defaultClaudeModel = "claude-3-5-sonnet-20241022"
)

// ClaudeProvider implements Provider for the Anthropic messages API.
type ClaudeProvider struct {
	apiKey      string
	baseURL     string
	model       string
	temperature float32
	maxTokens   int
	client      *http.Client
}

// NewClaudeProvider creates new Claude provider
func NewClaudeProvider(cfg *config.AIConfig) *ClaudeProvider {
	baseURL := cfg.Claude.BaseURL
	if baseURL == "" {
		baseURL = claudeAPIURL
	}

	model := cfg.Claude.Model
	if model == "" {
		model = defaultClaudeModel
	}

	return &ClaudeProvider{
		apiKey:      cfg.Claude.APIKey,
		baseURL:     baseURL,
		model:       model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

func (c *ClaudeProvider) Name() string {
	return "claude"
}

func (c *ClaudeProvider) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	reqBody := map[string]interface{}{
		"model":       c.model,
		"max_tokens":  c.maxTokens,
		"temperature": c.temperature,
		"system":      systemPrompt,
		"messages": []map[string]string{
			{"role": "user", "content": userPrompt},
		},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", claudeAPIVersion)

	startTime := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("claude request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	var result struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}

	if len(result.Content) == 0 {
		return "", fmt.Errorf("no content in response")
	}

	content := result.Content[0].Text

	logger.Debug("Claude response",
		zap.Duration("latency", time.Since(startTime)),
		zap.String("model", c.model),
		zap.String("response", content),
	)

	return content, nil
}
