package signal

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/alexanderselivanov/botfleet/pkg/models"
)

type stubProvider struct {
	reply string
	err   error

	gotSystem string
	gotUser   string
}

func (p *stubProvider) Name() string { return "stub" }

func (p *stubProvider) Complete(_ context.Context, systemPrompt, userPrompt string) (string, error) {
	p.gotSystem = systemPrompt
	p.gotUser = userPrompt
	if p.err != nil {
		return "", p.err
	}
	return p.reply, nil
}

type stubMemory struct {
	ctx models.MemoryContext
}

func (m *stubMemory) Build(_ context.Context, _ string) *models.MemoryContext {
	return &m.ctx
}

func aiTestInput() *Input {
	return testInput(43500, &models.IndicatorSet{
		RSI: 28.4, MA7: 43400, MA25: 43100, MA99: 42500,
		ATR: 350, VolumeRatio: 1.8,
		Support: 42900, Resistance: 44000,
	})
}

func TestAISourceParsesReply(t *testing.T) {
	provider := &stubProvider{reply: `{"signal": "LONG", "reason": "oversold bounce"}`}
	src := NewAISource(provider, nil)

	sig, err := src.Evaluate(context.Background(), aiTestInput())
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if sig.Kind != models.SignalLong {
		t.Errorf("kind = %s, want LONG", sig.Kind)
	}
	if sig.Confidence != aiConfidence {
		t.Errorf("confidence = %v, want %v", sig.Confidence, aiConfidence)
	}
	if sig.Reason != "oversold bounce" {
		t.Errorf("reason = %q", sig.Reason)
	}
	if sig.Source != SourceAI {
		t.Errorf("source = %q", sig.Source)
	}
	if !strings.Contains(provider.gotUser, "BTCUSDT") {
		t.Error("user prompt should carry the symbol")
	}
	if !strings.Contains(provider.gotSystem, `"signal"`) {
		t.Error("system prompt should describe the reply format")
	}
}

func TestAISourceFencedReply(t *testing.T) {
	provider := &stubProvider{reply: "```json\n{\"signal\": \"SHORT\", \"reason\": \"rejection at resistance\"}\n```"}
	src := NewAISource(provider, nil)

	sig, err := src.Evaluate(context.Background(), aiTestInput())
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if sig.Kind != models.SignalShort {
		t.Errorf("kind = %s, want SHORT", sig.Kind)
	}
	if sig.Reason != "rejection at resistance" {
		t.Errorf("reason = %q", sig.Reason)
	}
}

func TestAISourceSplicesMemory(t *testing.T) {
	provider := &stubProvider{reply: `{"signal": "WAIT", "reason": "mixed"}`}
	mem := &stubMemory{ctx: models.MemoryContext{
		Summary:         "12 closed trades over 7 days, 58% win rate",
		Recommendations: "Prefer WAIT on losing streaks",
	}}
	src := NewAISource(provider, mem)

	if _, err := src.Evaluate(context.Background(), aiTestInput()); err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !strings.HasPrefix(provider.gotUser, "=== TRADING MEMORY ===") {
		t.Errorf("user prompt should open with the memory block, got %q", firstLine(provider.gotUser))
	}
	if !strings.Contains(provider.gotUser, "58% win rate") {
		t.Error("memory summary missing from user prompt")
	}
	if !strings.Contains(provider.gotUser, "BTCUSDT") {
		t.Error("market section missing from user prompt")
	}
}

func TestAISourceEmptyMemorySkipped(t *testing.T) {
	provider := &stubProvider{reply: `{"signal": "WAIT", "reason": "mixed"}`}
	src := NewAISource(provider, &stubMemory{})

	if _, err := src.Evaluate(context.Background(), aiTestInput()); err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if strings.Contains(provider.gotUser, "TRADING MEMORY") {
		t.Error("empty memory must not render a memory block")
	}
}

func TestAISourceProviderError(t *testing.T) {
	wantErr := errors.New("rate limited")
	src := NewAISource(&stubProvider{err: wantErr}, nil)

	_, err := src.Evaluate(context.Background(), aiTestInput())
	if err == nil {
		t.Fatal("expected provider error to propagate")
	}
	if !errors.Is(err, wantErr) {
		t.Errorf("error = %v, want wrapped %v", err, wantErr)
	}
}

func TestAISourceUnparseableReply(t *testing.T) {
	src := NewAISource(&stubProvider{reply: "I would buy here, looks strong!"}, nil)

	sig, err := src.Evaluate(context.Background(), aiTestInput())
	if err != nil {
		t.Fatalf("Evaluate should coerce garbage to WAIT, got error %v", err)
	}
	if sig.Kind != models.SignalWait {
		t.Errorf("kind = %s, want WAIT", sig.Kind)
	}
	if sig.Confidence != aiConfidence {
		t.Errorf("confidence = %v, want %v", sig.Confidence, aiConfidence)
	}
	if sig.Reason != "unparseable model reply" {
		t.Errorf("reason = %q", sig.Reason)
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
