package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

type fleetCounts struct{ total, running int }

func (f fleetCounts) Counts() (int, int) { return f.total, f.running }

func probe(t *testing.T, s *Server, path string) (*httptest.ResponseRecorder, map[string]json.RawMessage) {
	t.Helper()

	w := httptest.NewRecorder()
	s.server.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))

	var body map[string]json.RawMessage
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode %s response %q: %v", path, w.Body.String(), err)
	}
	return w, body
}

func TestHealthAlwaysServes(t *testing.T) {
	s := NewServer(0, fleetCounts{total: 3, running: 2}, map[string]Check{
		"statestore": func(context.Context) error { return errors.New("connection refused") },
	})

	w, body := probe(t, s, "/health")
	if w.Code != http.StatusOK {
		t.Fatalf("liveness: got %d, want 200 even with dead dependencies", w.Code)
	}

	var status HealthStatus
	if err := json.Unmarshal(w.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if status.Status != "healthy" {
		t.Errorf("status: got %s, want healthy", status.Status)
	}
	if status.Bots.Total != 3 || status.Bots.Running != 2 {
		t.Errorf("bot counts: got %+v, want 2/3", status.Bots)
	}
	if _, ok := body["checks"]; ok {
		t.Error("plain liveness must not run dependency checks")
	}

	// Verbose mode surfaces the failing check without changing the code.
	w, _ = probe(t, s, "/health?verbose=true")
	if w.Code != http.StatusOK {
		t.Errorf("verbose liveness: got %d, want 200", w.Code)
	}
	var verbose HealthStatus
	if err := json.Unmarshal(w.Body.Bytes(), &verbose); err != nil {
		t.Fatalf("decode verbose: %v", err)
	}
	if got := verbose.Checks["statestore"]; got != "unhealthy: connection refused" {
		t.Errorf("verbose check: got %q", got)
	}
}

func TestReadinessGate(t *testing.T) {
	ledgerErr := error(nil)
	s := NewServer(0, fleetCounts{total: 1}, map[string]Check{
		"statestore": func(context.Context) error { return nil },
		"ledger":     func(context.Context) error { return ledgerErr },
	})

	// Startup not finished yet.
	w, _ := probe(t, s, "/ready")
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("before SetReady: got %d, want 503", w.Code)
	}

	s.SetReady(true)
	w, _ = probe(t, s, "/ready")
	if w.Code != http.StatusOK {
		t.Errorf("ready with healthy checks: got %d, want 200", w.Code)
	}

	var status ReadinessStatus
	if err := json.Unmarshal(w.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !status.Ready || status.Checks["ledger"] != "healthy" {
		t.Errorf("ready payload: got %+v", status)
	}

	// A dependency dying flips readiness back to 503.
	ledgerErr = errors.New("dial tcp: connection refused")
	w, _ = probe(t, s, "/ready")
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("dead ledger: got %d, want 503", w.Code)
	}
	if err := json.Unmarshal(w.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if status.Ready || status.Checks["ledger"] == "healthy" {
		t.Errorf("not-ready payload: got %+v", status)
	}

	// Draining marks the service not ready again.
	ledgerErr = nil
	s.SetReady(false)
	if w, _ := probe(t, s, "/ready"); w.Code != http.StatusServiceUnavailable {
		t.Errorf("after drain: got %d, want 503", w.Code)
	}
}

func TestReadinessAliases(t *testing.T) {
	s := NewServer(0, nil, nil)
	s.SetReady(true)

	if w, _ := probe(t, s, "/readyz"); w.Code != http.StatusOK {
		t.Errorf("/readyz: got %d, want 200", w.Code)
	}
	if w, _ := probe(t, s, "/healthz"); w.Code != http.StatusOK {
		t.Errorf("/healthz: got %d, want 200", w.Code)
	}
}
