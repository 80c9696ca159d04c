package ai

import (
	"embed"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/alexanderselivanov/botfleet/pkg/logger"
	"github.com/alexanderselivanov/botfleet/pkg/models"
	"github.com/alexanderselivanov/botfleet/pkg/templates"
)

//go:embed prompts/*.tmpl
var promptFS embed.FS

var promptTemplates = templates.MustFromFS(promptFS, "prompts/*.tmpl")

// maxReasonLen caps the reason carried into signal metadata and logs.
const maxReasonLen = 200

// promptSeparator splits a rendered template into system and user parts.
const promptSeparator = "=== USER PROMPT ==="

// BuildPrompts renders the analyze template for one market snapshot and
// returns the system instructions and the market description separately.
// Callers may splice extra context (trading memory) in front of the
// user part before sending.
func BuildPrompts(snapshot *models.MarketSnapshot) (systemPrompt string, userPrompt string, err error) {
	output, err := promptTemplates.ExecuteTemplate("analyze.tmpl", snapshot)
	if err != nil {
		return "", "", fmt.Errorf("failed to render analyze template: %w", err)
	}

	systemPrompt, userPrompt = SplitPrompt(output)
	return systemPrompt, userPrompt, nil
}

// SplitPrompt splits template output into system and user prompts
func SplitPrompt(output string) (systemPrompt string, userPrompt string) {
	idx := strings.Index(output, promptSeparator)
	if idx == -1 {
		return "", strings.TrimSpace(output)
	}

	systemPrompt = strings.TrimSpace(output[:idx])
	userPrompt = strings.TrimSpace(output[idx+len(promptSeparator):])
	return systemPrompt, userPrompt
}

// Decision is the structured verdict parsed out of a model reply.
type Decision struct {
	Signal models.SignalKind `json:"signal"`
	Reason string            `json:"reason"`
}

// ParseDecision extracts the trading decision from a model reply. The
// reply is expected to be a {"signal", "reason"} JSON object, possibly
// wrapped in a Markdown code fence. Replies that decode but name an
// unknown signal degrade to WAIT; replies that do not decode at all are
// an error for the caller to translate.
func ParseDecision(content string) (*Decision, error) {
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("empty reply")
	}

	jsonStr := extractJSON(content)

	var raw struct {
		Signal string `json:"signal"`
		Reason string `json:"reason"`
	}

	if err := json.Unmarshal([]byte(jsonStr), &raw); err != nil {
		return nil, fmt.Errorf("failed to unmarshal JSON: %w (content: %s)", err, truncateContent(jsonStr, 120))
	}

	kind, ok := models.ParseSignalKind(raw.Signal)
	if !ok {
		logger.Warn("AI returned unknown signal kind, coercing to WAIT",
			zap.String("signal", raw.Signal),
		)
	}

	return &Decision{
		Signal: kind,
		Reason: truncateContent(raw.Reason, maxReasonLen),
	}, nil
}

// extractJSON extracts JSON from text that might contain markdown or extra content
func extractJSON(text string) string {
	// Remove markdown code blocks
	re := regexp.MustCompile("```(?:json)?\\s*([\\s\\S]*?)```")
	matches := re.FindStringSubmatch(text)
	if len(matches) > 1 {
		return strings.TrimSpace(matches[1])
	}

	// Fall back to the outermost JSON object
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		return strings.TrimSpace(text[start : end+1])
	}

	return strings.TrimSpace(text)
}

func truncateContent(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
