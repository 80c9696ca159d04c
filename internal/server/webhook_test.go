package server

import (
	"net/http"
	"testing"

	"github.com/alexanderselivanov/botfleet/pkg/models"
)

func TestWebhookSignalTargeted(t *testing.T) {
	f := newAPIFixture(t)

	f.do(t, http.MethodPost, "/api/v1/bots", testBotConfig("alpha"))
	f.do(t, http.MethodPost, "/api/v1/bots", testBotConfig("beta"))

	w := f.do(t, http.MethodPost, "/webhook/signal", map[string]any{
		"bot_name":   "alpha",
		"signal":     "LONG",
		"source":     "tradingview",
		"confidence": 0.8,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("signal: got %d, want 200, body %s", w.Code, w.Body.String())
	}

	var resp struct {
		Signal    string   `json:"signal"`
		AppliedTo []string `json:"applied_to"`
	}
	decodeBody(t, w, &resp)
	if resp.Signal != "LONG" {
		t.Errorf("response signal: got %s, want LONG", resp.Signal)
	}
	if len(resp.AppliedTo) != 1 || resp.AppliedTo[0] != "alpha" {
		t.Errorf("applied_to: got %v, want [alpha]", resp.AppliedTo)
	}

	if got := f.mgr.GetBot("alpha").Status().LastSignal; got != models.SignalLong {
		t.Errorf("alpha last signal: got %s, want LONG", got)
	}
	if got := f.mgr.GetBot("beta").Status().LastSignal; got != models.SignalWait {
		t.Errorf("beta must be untouched, got %s", got)
	}
}

func TestWebhookSignalFanOut(t *testing.T) {
	f := newAPIFixture(t)

	f.do(t, http.MethodPost, "/api/v1/bots", testBotConfig("alpha"))
	f.do(t, http.MethodPost, "/api/v1/bots", testBotConfig("beta"))

	// Lowercase parses too; no bot_name reaches the whole fleet.
	w := f.do(t, http.MethodPost, "/webhook/signal", map[string]any{
		"signal": "short",
		"source": "research",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("signal: got %d, want 200", w.Code)
	}

	var resp struct {
		AppliedTo []string `json:"applied_to"`
	}
	decodeBody(t, w, &resp)
	if len(resp.AppliedTo) != 2 {
		t.Fatalf("applied_to: got %v, want both bots", resp.AppliedTo)
	}
	for _, name := range []string{"alpha", "beta"} {
		if got := f.mgr.GetBot(name).Status().LastSignal; got != models.SignalShort {
			t.Errorf("%s last signal: got %s, want SHORT", name, got)
		}
	}
}

func TestWebhookSignalMalformedDefaultsToWait(t *testing.T) {
	f := newAPIFixture(t)

	f.do(t, http.MethodPost, "/api/v1/bots", testBotConfig("alpha"))

	w := f.do(t, http.MethodPost, "/webhook/signal", map[string]any{
		"bot_name": "alpha",
		"signal":   "banana",
		"source":   "test",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("unknown signal: got %d, want 200", w.Code)
	}
	var resp struct {
		Signal string `json:"signal"`
	}
	decodeBody(t, w, &resp)
	if resp.Signal != "WAIT" {
		t.Errorf("unknown signal value: got %s, want WAIT", resp.Signal)
	}

	// Out-of-range confidence degrades a directional vote the same way.
	w = f.do(t, http.MethodPost, "/webhook/signal", map[string]any{
		"bot_name":   "alpha",
		"signal":     "LONG",
		"source":     "test",
		"confidence": 1.5,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("bad confidence: got %d, want 200", w.Code)
	}
	decodeBody(t, w, &resp)
	if resp.Signal != "WAIT" {
		t.Errorf("bad confidence: got %s, want WAIT", resp.Signal)
	}
	if got := f.mgr.GetBot("alpha").Status().LastSignal; got != models.SignalWait {
		t.Errorf("alpha last signal: got %s, want WAIT", got)
	}
}

func TestWebhookSignalClose(t *testing.T) {
	f := newAPIFixture(t)

	f.do(t, http.MethodPost, "/api/v1/bots", testBotConfig("alpha"))

	w := f.do(t, http.MethodPost, "/webhook/signal", map[string]any{
		"bot_name": "alpha",
		"signal":   "close",
		"source":   "risk-desk",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("close signal: got %d, want 200", w.Code)
	}
	var resp struct {
		Signal string `json:"signal"`
	}
	decodeBody(t, w, &resp)
	if resp.Signal != "CLOSE" {
		t.Errorf("response signal: got %s, want CLOSE", resp.Signal)
	}
	if !f.mgr.GetBot("alpha").Status().EmergencyClose {
		t.Error("close signal must flag an emergency close")
	}
}

func TestWebhookSignalUnknownBot(t *testing.T) {
	f := newAPIFixture(t)

	w := f.do(t, http.MethodPost, "/webhook/signal", map[string]any{
		"bot_name": "ghost",
		"signal":   "LONG",
	})
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown bot: got %d, want 404", w.Code)
	}
}

func TestWebhookSignalMalformedBody(t *testing.T) {
	f := newAPIFixture(t)

	if w := f.do(t, http.MethodPost, "/webhook/signal", []byte("{broken")); w.Code != http.StatusBadRequest {
		t.Errorf("broken body: got %d, want 400", w.Code)
	}
}

func TestWebhookCommandSingleBot(t *testing.T) {
	f := newAPIFixture(t)

	f.do(t, http.MethodPost, "/api/v1/bots", testBotConfig("alpha"))

	w := f.do(t, http.MethodPost, "/webhook/command", map[string]any{
		"bot_name": "alpha",
		"command":  "pause",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("pause command: got %d, want 200, body %s", w.Code, w.Body.String())
	}
	if !f.mgr.GetBot("alpha").Status().IsPaused {
		t.Error("pause command must pause the bot")
	}

	// Hyphenated spelling normalizes to the underscore form.
	w = f.do(t, http.MethodPost, "/webhook/command", map[string]any{
		"bot_name": "alpha",
		"command":  "emergency-close",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("emergency-close command: got %d, want 200", w.Code)
	}
	if !f.mgr.GetBot("alpha").Status().EmergencyClose {
		t.Error("emergency-close command must flag the bot")
	}
}

func TestWebhookCommandValidation(t *testing.T) {
	f := newAPIFixture(t)

	f.do(t, http.MethodPost, "/api/v1/bots", testBotConfig("alpha"))

	if w := f.do(t, http.MethodPost, "/webhook/command", map[string]any{
		"bot_name": "alpha",
		"command":  "dance",
	}); w.Code != http.StatusBadRequest {
		t.Errorf("unknown command: got %d, want 400", w.Code)
	}

	if w := f.do(t, http.MethodPost, "/webhook/command", map[string]any{
		"bot_name": "alpha",
	}); w.Code != http.StatusBadRequest {
		t.Errorf("missing command: got %d, want 400", w.Code)
	}

	if w := f.do(t, http.MethodPost, "/webhook/command", map[string]any{
		"bot_name": "ghost",
		"command":  "pause",
	}); w.Code != http.StatusNotFound {
		t.Errorf("unknown bot: got %d, want 404", w.Code)
	}
}

func TestWebhookCommandFanOut(t *testing.T) {
	f := newAPIFixture(t)

	f.do(t, http.MethodPost, "/api/v1/bots", testBotConfig("alpha"))
	f.do(t, http.MethodPost, "/api/v1/bots", testBotConfig("beta"))

	w := f.do(t, http.MethodPost, "/webhook/command", map[string]any{
		"command": "start",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("fleet start command: got %d, want 200", w.Code)
	}

	var resp struct {
		Command string            `json:"command"`
		Results map[string]string `json:"results"`
	}
	decodeBody(t, w, &resp)
	if resp.Command != "start" {
		t.Errorf("command echo: got %s, want start", resp.Command)
	}
	if len(resp.Results) != 2 || resp.Results["alpha"] != "ok" || resp.Results["beta"] != "ok" {
		t.Errorf("results: got %v, want ok for both bots", resp.Results)
	}
	waitFor(t, "both bots to start", func() bool {
		_, running := f.mgr.Counts()
		return running == 2
	})

	w = f.do(t, http.MethodPost, "/webhook/command", map[string]any{
		"command": "stop",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("fleet stop command: got %d, want 200", w.Code)
	}
	if _, running := f.mgr.Counts(); running != 0 {
		t.Errorf("running after stop: got %d, want 0", running)
	}
}
