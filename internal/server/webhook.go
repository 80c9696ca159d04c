package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/alexanderselivanov/botfleet/internal/bot"
	"github.com/alexanderselivanov/botfleet/pkg/logger"
	"github.com/alexanderselivanov/botfleet/pkg/models"
)

// signalRequest is the external signal payload, typically sent by a
// TradingView alert or a research pipeline.
type signalRequest struct {
	BotName    string         `json:"bot_name"`
	Signal     string         `json:"signal"`
	Source     string         `json:"source"`
	Confidence float64        `json:"confidence"`
	Metadata   map[string]any `json:"metadata"`
}

// commandRequest is the external control payload.
type commandRequest struct {
	BotName    string         `json:"bot_name"`
	Command    string         `json:"command" binding:"required"`
	Parameters map[string]any `json:"parameters"`
}

// closeSignal flattens the position instead of voting a direction.
const closeSignal = "CLOSE"

// webhookTargets resolves the bot_name field: empty fans out to the
// whole fleet, unknown names are an error.
func (s *Server) webhookTargets(c *gin.Context, name string) []*bot.Instance {
	if name == "" {
		return s.manager.ListBots()
	}
	inst := s.manager.GetBot(name)
	if inst == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "bot " + name + " not found"})
		return nil
	}
	return []*bot.Instance{inst}
}

func (s *Server) handleWebhookSignal(c *gin.Context) {
	var req signalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	if req.Source == "" {
		req.Source = "webhook"
	}

	targets := s.webhookTargets(c, req.BotName)
	if targets == nil {
		return
	}
	names := make([]string, 0, len(targets))

	raw := strings.ToUpper(strings.TrimSpace(req.Signal))
	if raw == closeSignal {
		for _, inst := range targets {
			inst.RequestEmergencyClose()
			names = append(names, inst.Name())
		}
		c.JSON(http.StatusOK, gin.H{"signal": closeSignal, "applied_to": names})
		return
	}

	// Anything unparseable, and any out-of-range confidence, degrades
	// to WAIT rather than failing the sender.
	kind, ok := models.ParseSignalKind(raw)
	if !ok || req.Confidence < 0 || req.Confidence > 1 {
		kind = models.SignalWait
	}

	for _, inst := range targets {
		inst.RecordExternalSignal(kind, req.Source)
		names = append(names, inst.Name())
	}

	logger.Info("webhook signal",
		zap.String("signal", string(kind)),
		zap.String("source", req.Source),
		zap.Float64("confidence", req.Confidence),
		zap.Strings("bots", names),
	)
	c.JSON(http.StatusOK, gin.H{"signal": kind, "applied_to": names})
}

func (s *Server) handleWebhookCommand(c *gin.Context) {
	var req commandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	command := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(req.Command)), "-", "_")
	apply, ok := s.commandFunc(command)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown command " + req.Command})
		return
	}

	if req.BotName != "" {
		if s.manager.GetBot(req.BotName) == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "bot " + req.BotName + " not found"})
			return
		}
		if err := apply(c, req.BotName); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"command": command, "bot": req.BotName, "status": "ok"})
		return
	}

	// Fleet-wide commands run log-and-continue, one result per bot.
	results := gin.H{}
	for _, inst := range s.manager.ListBots() {
		if err := apply(c, inst.Name()); err != nil {
			logger.Error("webhook command failed",
				zap.String("command", command),
				zap.String("bot", inst.Name()),
				zap.Error(err),
			)
			results[inst.Name()] = err.Error()
			continue
		}
		results[inst.Name()] = "ok"
	}
	c.JSON(http.StatusOK, gin.H{"command": command, "results": results})
}

// commandFunc maps a webhook command onto the manager operation.
func (s *Server) commandFunc(command string) (func(c *gin.Context, name string) error, bool) {
	switch command {
	case "start":
		return func(c *gin.Context, name string) error {
			return s.manager.StartBot(c.Request.Context(), name)
		}, true
	case "stop":
		return func(c *gin.Context, name string) error {
			return s.manager.StopBot(c.Request.Context(), name)
		}, true
	case "pause":
		return func(_ *gin.Context, name string) error {
			return s.manager.PauseBot(name)
		}, true
	case "resume":
		return func(_ *gin.Context, name string) error {
			return s.manager.ResumeBot(name)
		}, true
	case "emergency_close":
		return func(_ *gin.Context, name string) error {
			return s.manager.EmergencyCloseBot(name)
		}, true
	}
	return nil, false
}
