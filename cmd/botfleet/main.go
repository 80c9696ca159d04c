package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/alexanderselivanov/botfleet/internal/adapters/ai"
	"github.com/alexanderselivanov/botfleet/internal/adapters/clickhouse"
	"github.com/alexanderselivanov/botfleet/internal/adapters/config"
	"github.com/alexanderselivanov/botfleet/internal/adapters/database"
	"github.com/alexanderselivanov/botfleet/internal/adapters/exchange"
	redisAdapter "github.com/alexanderselivanov/botfleet/internal/adapters/redis"
	"github.com/alexanderselivanov/botfleet/internal/adapters/statestore"
	"github.com/alexanderselivanov/botfleet/internal/adapters/telegram"
	"github.com/alexanderselivanov/botfleet/internal/bot"
	"github.com/alexanderselivanov/botfleet/internal/health"
	"github.com/alexanderselivanov/botfleet/internal/ledger"
	"github.com/alexanderselivanov/botfleet/internal/memory"
	"github.com/alexanderselivanov/botfleet/internal/registry"
	"github.com/alexanderselivanov/botfleet/internal/server"
	botsignal "github.com/alexanderselivanov/botfleet/internal/signal"
	"github.com/alexanderselivanov/botfleet/internal/workers"
	"github.com/alexanderselivanov/botfleet/pkg/logger"
	"github.com/alexanderselivanov/botfleet/pkg/metrics"
	"github.com/alexanderselivanov/botfleet/pkg/models"
	"github.com/alexanderselivanov/botfleet/pkg/worker"
)

const (
	migrationsPath  = "./migrations"
	janitorInterval = time.Minute
	reportInterval  = 24 * time.Hour

	// probeSymbol is the market the readiness probe prices. Any liquid
	// perpetual works; it only proves the venue answers.
	probeSymbol = "BTCUSDT"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nReceived interrupt signal, shutting down...")
		cancel()
	}()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := initConfig()
	if err != nil {
		return err
	}
	defer logger.Sync()

	logger.Info("botfleet starting",
		zap.String("env", cfg.App.Env),
		zap.String("default_exchange", cfg.Exchanges.Default),
		zap.Duration("loop_interval", cfg.Orchestrator.LoopInterval),
	)

	db, err := initDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	store, err := statestore.New(&cfg.Redis)
	if err != nil {
		return fmt.Errorf("failed to initialize state store: %w", err)
	}
	defer store.Close()

	ledgerRepo := ledger.NewRepository(db.DB())
	registryRepo := registry.NewRepository(db.DB())

	buffer, chRepo := initMetricsPipeline(ctx, cfg)

	configs := loadRegistry(ctx, registryRepo)
	stream := initPriceStream(cfg, fleetSymbols(configs))

	deps := bot.Deps{
		Orchestrator: &cfg.Orchestrator,
		Venues:       venueFactory(cfg),
		Signals:      initEnsemble(cfg, ledgerRepo),
		Ledger:       ledgerRepo,
		Store:        store,
		Locks:        redisAdapter.NewFactory(&cfg.Redis, cfg.Orchestrator.RunLockTTL),
		Metrics:      buffer,
		Retry:        exchange.DefaultRetryConfig(),
	}
	if stream != nil {
		deps.Prices = stream
	}
	manager := bot.NewManager(deps)

	for i := range configs {
		if _, err := manager.AddBot(&configs[i]); err != nil {
			logger.Error("failed to restore bot",
				zap.String("bot", configs[i].Name),
				zap.Error(err),
			)
		}
	}

	tgBot := startTelegram(ctx, cfg, manager)
	wireCallbacks(manager, tgBot, buffer)

	group := startWorkers(ctx, manager, store, ledgerRepo, tgBot)
	srv := startAdminServer(cfg, manager, registryRepo)
	healthServer := startHealthServer(cfg, manager, db, store, chRepo)

	total, _ := manager.Counts()
	logger.Info("✅ botfleet ready",
		zap.Int("bots", total),
		zap.Int("admin_port", cfg.Server.Port),
		zap.Int("health_port", cfg.Health.Port),
	)

	// Flip readiness the moment the signal lands so load balancers
	// drain while the fleet is still stopping.
	go func() {
		<-ctx.Done()
		healthServer.SetReady(false)
	}()

	manager.Run(ctx)

	return performShutdown(srv, healthServer, group, stream, tgBot, buffer)
}

// initConfig loads configuration and boots the global logger.
func initConfig() (*config.Config, error) {
	// A local .env is optional; deployments configure through the
	// environment.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := logger.Init(cfg.Logging.Level, cfg.Logging.File); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	return cfg, nil
}

// initDatabase connects the ledger database and applies pending
// migrations.
func initDatabase(cfg *config.Config) (*database.DB, error) {
	db, err := database.New(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := database.RunMigrations(db.Conn(), migrationsPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	logger.Info("database connection established",
		zap.String("host", cfg.Database.Host),
		zap.String("database", cfg.Database.Name),
	)

	return db, nil
}

// initMetricsPipeline wires the ClickHouse telemetry sink. Any failure
// leaves the fleet running without tick metrics rather than failing
// startup.
func initMetricsPipeline(ctx context.Context, cfg *config.Config) (metrics.Buffer, *clickhouse.Repository) {
	if !cfg.ClickHouse.Enabled {
		logger.Info("clickhouse disabled, tick metrics are dropped")
		return nil, nil
	}

	chDB, err := clickhouse.Connect(&cfg.ClickHouse)
	if err != nil {
		logger.Warn("clickhouse unavailable, tick metrics disabled", zap.Error(err))
		return nil, nil
	}

	repo := clickhouse.NewRepository(chDB)
	if err := repo.EnsureTables(ctx); err != nil {
		logger.Warn("clickhouse schema setup failed, tick metrics disabled", zap.Error(err))
		repo.Close()
		return nil, nil
	}

	buffer := metrics.NewBufferedMetrics(metrics.BufferConfig{
		Writer:        clickhouse.NewWriter(repo),
		BatchSize:     cfg.ClickHouse.BatchSize,
		FlushInterval: cfg.ClickHouse.FlushInterval,
	})
	return buffer, repo
}

// initEnsemble builds the signal sources. The AI voter joins only when
// a provider is configured; rule and score always vote.
func initEnsemble(cfg *config.Config, ledgerRepo *ledger.Repository) *botsignal.Ensemble {
	orc := &cfg.Orchestrator

	sources := []botsignal.Source{
		botsignal.NewRuleSource(),
		botsignal.NewScoreSource(),
	}
	weights := botsignal.Weights{
		botsignal.SourceRule:  orc.RuleWeight,
		botsignal.SourceScore: orc.ScoreWeight,
	}

	provider, err := ai.New(&cfg.AI)
	if err != nil {
		logger.Warn("no AI provider configured, ensemble votes without the AI source", zap.Error(err))
	} else {
		memoryBuilder := memory.NewBuilder(ledgerRepo, orc.MemoryLookbackDays)
		sources = append(sources, botsignal.NewAISource(provider, memoryBuilder))
		weights[botsignal.SourceAI] = orc.AIWeight
		logger.Info("AI signal source enabled", zap.String("provider", provider.Name()))
	}

	return botsignal.NewEnsemble(sources, weights, orc.WeightedThreshold, orc.ConsensusThreshold)
}

// venueFactory builds per-session exchange clients. The bot config
// picks the venue and environment; credentials come from the process
// config.
func venueFactory(cfg *config.Config) bot.VenueFactory {
	return func(bc *models.BotConfig) (exchange.Client, error) {
		return exchange.New(&cfg.Exchanges, bc.Exchange, bc.IsTestnet)
	}
}

// loadRegistry fetches the active bot configs. A registry failure
// starts an empty fleet; the admin API can still add bots.
func loadRegistry(ctx context.Context, repo *registry.Repository) []models.BotConfig {
	configs, err := repo.ListActive(ctx)
	if err != nil {
		logger.Error("failed to load bot registry, starting with an empty fleet", zap.Error(err))
		return nil
	}

	if len(configs) > 0 {
		logger.Info("bot registry loaded", zap.Int("bots", len(configs)))
	}
	return configs
}

// fleetSymbols returns the distinct symbols of the restored fleet,
// sorted for stable subscription order.
func fleetSymbols(configs []models.BotConfig) []string {
	seen := make(map[string]bool, len(configs))
	symbols := make([]string, 0, len(configs))
	for i := range configs {
		if s := configs[i].Symbol; s != "" && !seen[s] {
			seen[s] = true
			symbols = append(symbols, s)
		}
	}
	sort.Strings(symbols)
	return symbols
}

// initPriceStream connects the mark-price websocket for the fleet's
// symbols. Without it status snapshots fall back to poll prices.
func initPriceStream(cfg *config.Config, symbols []string) *exchange.PriceStream {
	if len(symbols) == 0 {
		return nil
	}

	stream := exchange.NewPriceStream(symbols, cfg.Exchanges.Bybit.Testnet)
	if err := stream.Connect(); err != nil {
		logger.Warn("mark price stream unavailable, snapshots use poll prices",
			zap.Strings("symbols", symbols),
			zap.Error(err),
		)
		return nil
	}
	return stream
}

// startTelegram boots the operator chat when a token is configured.
func startTelegram(ctx context.Context, cfg *config.Config, manager *bot.Manager) *telegram.Bot {
	if !cfg.Telegram.Enabled() {
		logger.Info("telegram control disabled (no token provided)")
		return nil
	}

	tgBot, err := telegram.NewBot(&cfg.Telegram, manager)
	if err != nil {
		logger.Error("failed to create telegram bot", zap.Error(err))
		return nil
	}

	go func() {
		if err := tgBot.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("telegram bot error", zap.Error(err))
		}
	}()
	logger.Info("📱 telegram control channel started")

	return tgBot
}

// wireCallbacks fans per-bot events out to the operator chat and the
// trade metrics table.
func wireCallbacks(manager *bot.Manager, tgBot *telegram.Bot, buffer metrics.Buffer) {
	manager.SetTradeCallback(func(botName string, event *models.TradeEvent) {
		if buffer != nil {
			m := &metrics.TradeMetric{
				Timestamp:       time.Now().UTC(),
				BotName:         botName,
				Symbol:          event.Symbol,
				Side:            string(event.Side),
				Event:           string(event.Type),
				Reason:          string(event.Reason),
				Quantity:        event.Quantity.InexactFloat64(),
				Price:           event.Price.InexactFloat64(),
				PnL:             event.PnL.InexactFloat64(),
				PnLPct:          event.PnLPct,
				DurationMinutes: event.DurationMinutes,
			}
			if err := buffer.Add(m); err != nil {
				logger.Debug("failed to buffer trade metric", zap.Error(err))
			}
		}
		if tgBot != nil {
			tgBot.AlertTrade(botName, event)
		}
	})

	if tgBot != nil {
		manager.SetErrorCallback(tgBot.AlertError)
	}
}

// startWorkers schedules the state janitor and, when the operator chat
// is up, the daily fleet report.
func startWorkers(ctx context.Context, manager *bot.Manager, store statestore.Store, ledgerRepo *ledger.Repository, tgBot *telegram.Bot) *worker.Group {
	group := worker.NewGroup(ctx)
	group.Add(workers.NewStateJanitor(manager, store), janitorInterval)
	if tgBot != nil {
		group.Add(workers.NewDailyReporter(manager, ledgerRepo, tgBot), reportInterval)
	}
	group.Start()
	return group
}

// startAdminServer serves the admin REST API and webhook ingress.
func startAdminServer(cfg *config.Config, manager *bot.Manager, registryRepo *registry.Repository) *server.Server {
	srv := server.New(cfg.Server, manager, registryRepo)
	go func() {
		if err := srv.Start(); err != nil {
			logger.Error("admin server error", zap.Error(err))
		}
	}()
	return srv
}

// startHealthServer exposes liveness and readiness probes. Readiness
// covers the ledger, the state store, the default venue and, when
// enabled, the metrics sink.
func startHealthServer(cfg *config.Config, manager *bot.Manager, db *database.DB, store statestore.Store, chRepo *clickhouse.Repository) *health.Server {
	checks := map[string]health.Check{
		"ledger": db.Health,
		"statestore": func(ctx context.Context) error {
			if !store.Ping(ctx) {
				return fmt.Errorf("state store unreachable")
			}
			return nil
		},
	}

	probeTestnet := false
	switch cfg.Exchanges.Default {
	case "binance":
		probeTestnet = cfg.Exchanges.Binance.Testnet
	case "bybit":
		probeTestnet = cfg.Exchanges.Bybit.Testnet
	}
	if probe, err := exchange.New(&cfg.Exchanges, "", probeTestnet); err == nil {
		checks["exchange"] = func(ctx context.Context) error {
			_, err := probe.GetCurrentPrice(ctx, probeSymbol)
			return err
		}
	}

	if chRepo != nil {
		checks["clickhouse"] = chRepo.Ping
	}

	healthServer := health.NewServer(cfg.Health.Port, manager, checks)

	go func() {
		if err := healthServer.Start(); err != nil {
			logger.Error("health server error", zap.Error(err))
		}
	}()

	healthServer.SetReady(true)
	return healthServer
}

// performShutdown stops the surfaces after the fleet has exited. Bot
// loops are already down; what remains is draining listeners and
// flushing buffers.
func performShutdown(srv *server.Server, healthServer *health.Server, group *worker.Group, stream *exchange.PriceStream, tgBot *telegram.Bot, buffer metrics.Buffer) error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	group.Stop(5 * time.Second)

	if tgBot != nil {
		tgBot.Close()
	}
	if stream != nil {
		if err := stream.Close(); err != nil {
			logger.Warn("price stream close error", zap.Error(err))
		}
	}

	if err := srv.Stop(shutdownCtx); err != nil {
		logger.Error("admin server stop error", zap.Error(err))
	}
	if err := healthServer.Stop(shutdownCtx); err != nil {
		logger.Error("health server stop error", zap.Error(err))
	}

	if buffer != nil {
		if err := buffer.Close(shutdownCtx); err != nil {
			logger.Error("metrics buffer close error", zap.Error(err))
		}
	}

	logger.Info("✅ shutdown complete")
	return nil
}
