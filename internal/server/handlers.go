package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/alexanderselivanov/botfleet/internal/bot"
	"github.com/alexanderselivanov/botfleet/pkg/logger"
	"github.com/alexanderselivanov/botfleet/pkg/models"
)

// statusList snapshots every instance for list-shaped responses.
func statusList(instances []*bot.Instance) []*bot.Status {
	items := make([]*bot.Status, 0, len(instances))
	for _, inst := range instances {
		items = append(items, inst.Status())
	}
	return items
}

// respondError maps the manager's typed errors onto HTTP statuses.
// Anything untyped is a validation failure.
func respondError(c *gin.Context, err error) {
	status := http.StatusBadRequest
	switch {
	case errors.Is(err, bot.ErrBotNotFound):
		status = http.StatusNotFound
	case errors.Is(err, bot.ErrBotAlreadyExists),
		errors.Is(err, bot.ErrBotRunning),
		errors.Is(err, bot.ErrBotLocked):
		status = http.StatusConflict
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// botStatus responds with the bot's fresh snapshot, tolerating a
// concurrent removal.
func (s *Server) botStatus(c *gin.Context, name string) {
	inst := s.manager.GetBot(name)
	if inst == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("bot %q not found", name)})
		return
	}
	c.JSON(http.StatusOK, inst.Status())
}

func (s *Server) handleFleetStatus(c *gin.Context) {
	total, running := s.manager.Counts()
	c.JSON(http.StatusOK, gin.H{
		"total":   total,
		"running": running,
		"items":   statusList(s.manager.ListBots()),
	})
}

func (s *Server) handleListBots(c *gin.Context) {
	items := statusList(s.manager.ListBots())
	c.JSON(http.StatusOK, gin.H{
		"items": items,
		"total": len(items),
	})
}

func (s *Server) handleCreateBot(c *gin.Context) {
	var cfg models.BotConfig
	if err := c.ShouldBindJSON(&cfg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	inst, err := s.manager.AddBot(&cfg)
	if err != nil {
		respondError(c, err)
		return
	}

	if s.configs != nil {
		if err := s.configs.Create(c.Request.Context(), &cfg); err != nil {
			logger.Warn("bot config not persisted",
				zap.String("bot", cfg.Name), zap.Error(err))
		}
	}

	c.JSON(http.StatusCreated, inst.Status())
}

func (s *Server) handleGetBot(c *gin.Context) {
	s.botStatus(c, c.Param("name"))
}

func (s *Server) handleUpdateBot(c *gin.Context) {
	var cfg models.BotConfig
	if err := c.ShouldBindJSON(&cfg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	// The path owns the identity; the body may omit or repeat it.
	cfg.Name = c.Param("name")

	inst, err := s.manager.UpdateBot(&cfg)
	if err != nil {
		respondError(c, err)
		return
	}

	if s.configs != nil {
		if err := s.configs.Update(c.Request.Context(), &cfg); err != nil {
			logger.Warn("bot config update not persisted",
				zap.String("bot", cfg.Name), zap.Error(err))
		}
	}

	c.JSON(http.StatusOK, inst.Status())
}

func (s *Server) handleDeleteBot(c *gin.Context) {
	name := c.Param("name")
	if err := s.manager.RemoveBot(c.Request.Context(), name); err != nil {
		respondError(c, err)
		return
	}

	if s.configs != nil {
		if err := s.configs.Delete(c.Request.Context(), name); err != nil {
			logger.Warn("bot config delete not persisted",
				zap.String("bot", name), zap.Error(err))
		}
	}

	c.JSON(http.StatusOK, gin.H{"status": "removed", "bot": name})
}

func (s *Server) handleStartBot(c *gin.Context) {
	name := c.Param("name")
	if err := s.manager.StartBot(c.Request.Context(), name); err != nil {
		respondError(c, err)
		return
	}
	s.botStatus(c, name)
}

func (s *Server) handleStopBot(c *gin.Context) {
	name := c.Param("name")
	if err := s.manager.StopBot(c.Request.Context(), name); err != nil {
		respondError(c, err)
		return
	}
	s.botStatus(c, name)
}

func (s *Server) handlePauseBot(c *gin.Context) {
	name := c.Param("name")
	if err := s.manager.PauseBot(name); err != nil {
		respondError(c, err)
		return
	}
	s.botStatus(c, name)
}

func (s *Server) handleResumeBot(c *gin.Context) {
	name := c.Param("name")
	if err := s.manager.ResumeBot(name); err != nil {
		respondError(c, err)
		return
	}
	s.botStatus(c, name)
}

func (s *Server) handleEmergencyCloseBot(c *gin.Context) {
	name := c.Param("name")
	if err := s.manager.EmergencyCloseBot(name); err != nil {
		respondError(c, err)
		return
	}
	s.botStatus(c, name)
}

func (s *Server) handleStartFleet(c *gin.Context) {
	s.manager.StartAll(c.Request.Context())
	total, running := s.manager.Counts()
	c.JSON(http.StatusOK, gin.H{
		"total":   total,
		"running": running,
		"items":   statusList(s.manager.ListBots()),
	})
}

func (s *Server) handleStopFleet(c *gin.Context) {
	s.manager.StopAll(c.Request.Context())
	total, running := s.manager.Counts()
	c.JSON(http.StatusOK, gin.H{
		"total":   total,
		"running": running,
		"items":   statusList(s.manager.ListBots()),
	})
}
