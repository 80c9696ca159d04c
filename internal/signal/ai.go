package signal

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/alexanderselivanov/botfleet/internal/adapters/ai"
	"github.com/alexanderselivanov/botfleet/pkg/logger"
	"github.com/alexanderselivanov/botfleet/pkg/models"
)

// aiConfidence is the fixed confidence an AI vote carries. The model
// reply has no usable numeric certainty, so all directional votes weigh
// the same.
const aiConfidence = 0.8

// MemoryBuilder supplies the trading-history context spliced into the
// prompt. *memory.Builder satisfies it.
type MemoryBuilder interface {
	Build(ctx context.Context, botID string) *models.MemoryContext
}

// AISource asks a chat-completion provider for a direction. The prompt
// is the market snapshot preceded by the bot's trading memory; an empty
// memory (fresh bot, ledger down) simply renders nothing.
type AISource struct {
	provider ai.Provider
	memory   MemoryBuilder
}

// NewAISource wires a provider with an optional memory builder.
func NewAISource(provider ai.Provider, memory MemoryBuilder) *AISource {
	return &AISource{
		provider: provider,
		memory:   memory,
	}
}

func (s *AISource) Name() string {
	return SourceAI
}

func (s *AISource) Evaluate(ctx context.Context, in *Input) (*models.IndividualSignal, error) {
	systemPrompt, marketPrompt, err := ai.BuildPrompts(in.Snapshot)
	if err != nil {
		return nil, fmt.Errorf("failed to build prompts: %w", err)
	}

	userPrompt := marketPrompt
	if s.memory != nil {
		if mem := s.memory.Build(ctx, in.BotID); !mem.IsEmpty() {
			userPrompt = mem.ToPrompt() + "\n" + marketPrompt
		}
	}

	reply, err := s.provider.Complete(ctx, systemPrompt, userPrompt)
	if err != nil {
		return nil, fmt.Errorf("%s provider: %w", s.provider.Name(), err)
	}

	decision, err := ai.ParseDecision(reply)
	if err != nil {
		logger.Warn("AI reply not parseable, voting WAIT",
			zap.String("bot_id", in.BotID),
			zap.String("provider", s.provider.Name()),
			zap.Error(err),
		)
		decision = &ai.Decision{
			Signal: models.SignalWait,
			Reason: "unparseable model reply",
		}
	}

	return &models.IndividualSignal{
		Source:     s.Name(),
		Kind:       decision.Signal,
		Confidence: aiConfidence,
		Reason:     decision.Reason,
	}, nil
}
