// Package health serves the liveness and readiness probes on a
// dedicated port, away from the authenticated admin listener.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/alexanderselivanov/botfleet/pkg/logger"
)

// checkTimeout bounds every dependency ping in a probe.
const checkTimeout = 2 * time.Second

// Check pings one dependency. Nil means healthy.
type Check func(ctx context.Context) error

// Counter reports fleet size for the health payload. *bot.Manager
// satisfies it.
type Counter interface {
	Counts() (total, running int)
}

// Server answers /health (liveness) and /ready (readiness).
type Server struct {
	server *http.Server
	fleet  Counter
	checks map[string]Check

	readyMu sync.RWMutex
	ready   bool

	startTime time.Time
}

// HealthStatus is the liveness payload.
type HealthStatus struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Uptime    string            `json:"uptime"`
	Bots      BotCounts         `json:"bots"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// ReadinessStatus is the readiness payload.
type ReadinessStatus struct {
	Ready     bool              `json:"ready"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks"`
	Bots      BotCounts         `json:"bots"`
}

// BotCounts shows fleet size.
type BotCounts struct {
	Running int `json:"running"`
	Total   int `json:"total"`
}

// NewServer builds the probe server. Checks are pinged on every
// readiness probe and on verbose liveness probes.
func NewServer(port int, fleet Counter, checks map[string]Check) *Server {
	mux := http.NewServeMux()

	s := &Server{
		server: &http.Server{
			Addr:         fmt.Sprintf(":%d", port),
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
		fleet:     fleet,
		checks:    checks,
		startTime: time.Now(),
	}

	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/ready", s.handleReadiness)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/readyz", s.handleReadiness)

	return s
}

// Start blocks serving probes until Stop is called.
func (s *Server) Start() error {
	logger.Info("health server listening", zap.String("addr", s.server.Addr))

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop shuts the probe listener down.
func (s *Server) Stop(ctx context.Context) error {
	logger.Info("stopping health server")
	return s.server.Shutdown(ctx)
}

// SetReady flips the readiness gate once startup completes, and back
// when shutdown begins so load balancers drain first.
func (s *Server) SetReady(ready bool) {
	s.readyMu.Lock()
	s.ready = ready
	s.readyMu.Unlock()

	if ready {
		logger.Info("service marked ready")
	} else {
		logger.Warn("service marked not ready")
	}
}

// runChecks pings every dependency. The bool is true when all passed.
func (s *Server) runChecks(ctx context.Context) (map[string]string, bool) {
	results := make(map[string]string, len(s.checks))
	healthy := true

	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		checkCtx, cancel := context.WithTimeout(ctx, checkTimeout)
		err := s.checks[name](checkCtx)
		cancel()

		if err != nil {
			results[name] = "unhealthy: " + err.Error()
			healthy = false
			continue
		}
		results[name] = "healthy"
	}
	return results, healthy
}

func (s *Server) botCounts() BotCounts {
	if s.fleet == nil {
		return BotCounts{}
	}
	total, running := s.fleet.Counts()
	return BotCounts{Running: running, Total: total}
}

// handleHealth is the liveness probe: 200 as long as the process
// serves, dependencies down or not. ?verbose=true adds check results
// for debugging.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := HealthStatus{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Uptime:    time.Since(s.startTime).Round(time.Second).String(),
		Bots:      s.botCounts(),
	}

	if r.URL.Query().Get("verbose") == "true" {
		status.Checks, _ = s.runChecks(r.Context())
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(status); err != nil {
		logger.Error("failed to encode health response", zap.Error(err))
	}
}

// handleReadiness is the readiness probe: 200 only when startup
// completed and every dependency answers.
func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	s.readyMu.RLock()
	ready := s.ready
	s.readyMu.RUnlock()

	checks, healthy := s.runChecks(r.Context())
	isReady := ready && healthy

	status := ReadinessStatus{
		Ready:     isReady,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    checks,
		Bots:      s.botCounts(),
	}

	w.Header().Set("Content-Type", "application/json")
	if isReady {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	if err := json.NewEncoder(w).Encode(status); err != nil {
		logger.Error("failed to encode readiness response", zap.Error(err))
	}
}
