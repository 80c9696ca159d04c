package server

// setupRoutes wires the admin API and the webhook ingress. Admin routes
// share the bearer token from config; webhooks carry their own token so
// external senders never hold admin credentials.
func (s *Server) setupRoutes() {
	v1 := s.router.Group("/api/v1")
	v1.Use(bearerAuth(s.cfg.AuthToken))
	{
		v1.GET("/status", s.handleFleetStatus)

		bots := v1.Group("/bots")
		{
			bots.GET("", s.handleListBots)
			bots.POST("", s.handleCreateBot)
			bots.GET("/:name", s.handleGetBot)
			bots.PUT("/:name", s.handleUpdateBot)
			bots.DELETE("/:name", s.handleDeleteBot)

			bots.POST("/:name/start", s.handleStartBot)
			bots.POST("/:name/stop", s.handleStopBot)
			bots.POST("/:name/pause", s.handlePauseBot)
			bots.POST("/:name/resume", s.handleResumeBot)
			bots.POST("/:name/emergency-close", s.handleEmergencyCloseBot)
		}

		fleet := v1.Group("/fleet")
		{
			fleet.POST("/start", s.handleStartFleet)
			fleet.POST("/stop", s.handleStopFleet)
		}
	}

	webhook := s.router.Group("/webhook")
	webhook.Use(bearerAuth(s.cfg.WebhookToken))
	{
		webhook.POST("/signal", s.handleWebhookSignal)
		webhook.POST("/command", s.handleWebhookCommand)
	}
}
