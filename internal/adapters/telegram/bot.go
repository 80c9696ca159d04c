// Package telegram is the chat control channel for the fleet: a
// long-poll command bot restricted to one chat, plus push alerts for
// entries, exits and tick errors.
package telegram

import (
	"context"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/alexanderselivanov/botfleet/internal/adapters/config"
	"github.com/alexanderselivanov/botfleet/internal/bot"
	"github.com/alexanderselivanov/botfleet/pkg/logger"
)

// Fleet is the slice of the bot manager the chat commands drive.
// *bot.Manager satisfies it.
type Fleet interface {
	ListBots() []*bot.Instance
	GetBot(name string) *bot.Instance
	StartBot(ctx context.Context, name string) error
	StopBot(ctx context.Context, name string) error
	PauseBot(name string) error
	ResumeBot(name string) error
	EmergencyCloseBot(name string) error
	Counts() (total, running int)
}

// Bot serves chat commands and pushes alerts into one configured chat.
type Bot struct {
	api           *tgbotapi.BotAPI
	chatID        int64
	alertOnTrades bool
	alertOnErrors bool
	fleet         Fleet
}

// NewBot connects to the Telegram API and binds the command surface to
// the fleet.
func NewBot(cfg *config.TelegramConfig, fleet Fleet) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	logger.Info("telegram bot initialized",
		zap.String("username", api.Self.UserName),
	)

	return &Bot{
		api:           api,
		chatID:        cfg.ChatID,
		alertOnTrades: cfg.AlertOnTrades,
		alertOnErrors: cfg.AlertOnErrors,
		fleet:         fleet,
	}, nil
}

// Start long-polls for commands until ctx is cancelled. Messages from
// any chat but the configured one are dropped.
func (b *Bot) Start(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)

	logger.Info("telegram bot listening for commands")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case update := <-updates:
			if update.Message == nil || !update.Message.IsCommand() {
				continue
			}
			if update.Message.Chat.ID != b.chatID {
				logger.Warn("telegram command from unauthorized chat",
					zap.Int64("chat_id", update.Message.Chat.ID),
				)
				continue
			}

			command := update.Message.Command()
			args := strings.TrimSpace(update.Message.CommandArguments())

			// A stop command can wait out an in-flight tick, so
			// replies must not block the update loop.
			go func() {
				reply := b.handleCommand(ctx, command, args)
				if err := b.send(reply); err != nil {
					logger.Error("failed to send telegram reply", zap.Error(err))
				}
			}()
		}
	}
}

// handleCommand builds the reply for one command.
func (b *Bot) handleCommand(ctx context.Context, command, args string) string {
	logger.Info("telegram command",
		zap.String("command", command),
		zap.String("args", args),
	)

	switch command {
	case "start":
		// Plain /start is Telegram's opening handshake.
		if args == "" {
			return b.welcomeMessage()
		}
		if err := b.fleet.StartBot(ctx, args); err != nil {
			return errorReply(err)
		}
		return fmt.Sprintf("▶️ Bot `%s` started", args)
	case "stop":
		if args == "" {
			return needsName("stop")
		}
		if err := b.fleet.StopBot(ctx, args); err != nil {
			return errorReply(err)
		}
		return fmt.Sprintf("⏹️ Bot `%s` stopped", args)
	case "pause":
		if args == "" {
			return needsName("pause")
		}
		if err := b.fleet.PauseBot(args); err != nil {
			return errorReply(err)
		}
		return fmt.Sprintf("⏸️ Bot `%s` paused, open position still managed", args)
	case "resume":
		if args == "" {
			return needsName("resume")
		}
		if err := b.fleet.ResumeBot(args); err != nil {
			return errorReply(err)
		}
		return fmt.Sprintf("▶️ Bot `%s` resumed", args)
	case "close":
		if args == "" {
			return needsName("close")
		}
		if err := b.fleet.EmergencyCloseBot(args); err != nil {
			return errorReply(err)
		}
		return fmt.Sprintf("🚨 Bot `%s` will flatten its position on the next tick and pause", args)
	case "bots":
		return b.fleetMessage()
	case "status":
		if args == "" {
			return b.fleetMessage()
		}
		return b.statusMessage(args)
	case "help":
		return b.helpMessage()
	default:
		return fmt.Sprintf("❓ Unknown command: /%s\nUse /help to see available commands", command)
	}
}

// fleetMessage is the one-line-per-bot overview.
func (b *Bot) fleetMessage() string {
	total, running := b.fleet.Counts()

	var sb strings.Builder
	fmt.Fprintf(&sb, "🤖 *Fleet* (%d running / %d total)\n", running, total)

	for _, inst := range b.fleet.ListBots() {
		s := inst.Status()

		glyph := "⏹️"
		switch {
		case s.IsRunning && s.IsPaused:
			glyph = "⏸️"
		case s.IsRunning:
			glyph = "▶️"
		}

		position := "flat"
		if s.Position != nil {
			position = fmt.Sprintf("%s %s @ %s",
				s.Position.Side, s.Position.Quantity.String(), s.Position.EntryPrice.String())
		}

		fmt.Fprintf(&sb, "\n%s `%s` %s %s: %s", glyph, s.Name, s.Symbol, s.RiskLevel, position)
	}
	return sb.String()
}

// statusMessage is the detailed view of one bot.
func (b *Bot) statusMessage(name string) string {
	inst := b.fleet.GetBot(name)
	if inst == nil {
		return fmt.Sprintf("❌ Bot `%s` not found", name)
	}
	s := inst.Status()

	var sb strings.Builder
	fmt.Fprintf(&sb, "📊 *%s*\n\n", s.Name)
	fmt.Fprintf(&sb, "Symbol: `%s`\n", s.Symbol)
	fmt.Fprintf(&sb, "Exchange: `%s`\n", s.Exchange)
	fmt.Fprintf(&sb, "Risk: `%s`\n", s.RiskLevel)
	fmt.Fprintf(&sb, "Running: `%t`", s.IsRunning)
	if s.IsRunning {
		fmt.Fprintf(&sb, " (uptime %s)", (time.Duration(s.UptimeSeconds) * time.Second).String())
	}
	fmt.Fprintf(&sb, "\nPaused: `%t`\n", s.IsPaused)
	if s.EmergencyClose {
		sb.WriteString("Emergency close: `pending`\n")
	}
	fmt.Fprintf(&sb, "Loops: `%d`\n", s.LoopCount)
	if !s.CurrentPrice.IsZero() {
		fmt.Fprintf(&sb, "Price: `%s`\n", s.CurrentPrice.String())
	}
	fmt.Fprintf(&sb, "Last signal: `%s`", s.LastSignal)
	if !s.LastSignalTime.IsZero() {
		fmt.Fprintf(&sb, " at `%s`", s.LastSignalTime.Format("15:04:05"))
	}

	if s.Position == nil {
		sb.WriteString("\nPosition: `flat`")
	} else {
		fmt.Fprintf(&sb, "\nPosition: *%s* `%s` @ `%s`",
			s.Position.Side, s.Position.Quantity.String(), s.Position.EntryPrice.String())
		if s.UnrealizedPnLPct != nil {
			fmt.Fprintf(&sb, " (PnL %+.2f%%)", *s.UnrealizedPnLPct)
		}
	}
	return sb.String()
}

func (b *Bot) welcomeMessage() string {
	return `👋 *Trading fleet control*

I alert this chat about entries, exits and errors, and take commands:

Use /bots for the fleet overview and /help for the full command list.`
}

func (b *Bot) helpMessage() string {
	return `📖 *Available commands:*

/bots - Fleet overview
/status <name> - Detailed bot status
/start <name> - Start a bot
/stop <name> - Stop a bot
/pause <name> - Pause entries, keep managing the open position
/resume <name> - Lift a pause
/close <name> - Flatten the position and pause
/help - This message`
}

func needsName(command string) string {
	return fmt.Sprintf("❓ Usage: /%s <bot-name>\nUse /bots to list bot names", command)
}

func errorReply(err error) string {
	return fmt.Sprintf("❌ Error: %v", err)
}

// send pushes one Markdown message into the configured chat.
func (b *Bot) send(text string) error {
	msg := tgbotapi.NewMessage(b.chatID, text)
	msg.ParseMode = "Markdown"

	if _, err := b.api.Send(msg); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

// Close stops the update stream.
func (b *Bot) Close() {
	if b.api != nil {
		b.api.StopReceivingUpdates()
		logger.Info("telegram bot stopped")
	}
}
