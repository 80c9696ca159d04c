package telegram

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/alexanderselivanov/botfleet/pkg/logger"
	"github.com/alexanderselivanov/botfleet/pkg/models"
)

// AlertTrade pushes an entry or exit notification. The signature
// matches models.TradeCallback so it wires straight into the manager.
func (b *Bot) AlertTrade(botName string, event *models.TradeEvent) {
	if !b.alertOnTrades {
		return
	}
	if err := b.send(formatTradeEvent(botName, event)); err != nil {
		logger.Error("failed to send trade alert",
			zap.String("bot", botName), zap.Error(err))
	}
}

// AlertError pushes a tick failure notification. The signature matches
// models.ErrorCallback.
func (b *Bot) AlertError(botName string, tickErr error) {
	if !b.alertOnErrors {
		return
	}
	if err := b.send(formatTickError(botName, tickErr)); err != nil {
		logger.Error("failed to send error alert",
			zap.String("bot", botName), zap.Error(err))
	}
}

// SendReport pushes a pre-rendered Markdown report into the operator
// chat. Reports are explicit, so they bypass the alert gates.
func (b *Bot) SendReport(text string) error {
	return b.send(text)
}

func formatTradeEvent(botName string, event *models.TradeEvent) string {
	if event.Type == models.TradeEventOpen {
		return fmt.Sprintf(
			"🟢 *POSITION OPENED*\n\n"+
				"Bot: `%s`\n"+
				"Symbol: `%s`\n"+
				"Side: *%s*\n"+
				"Quantity: `%s`\n"+
				"Entry: `$%s`\n"+
				"Time: `%s`",
			botName, event.Symbol, event.Side,
			event.Quantity.String(), event.Price.StringFixed(2),
			time.Now().Format("15:04:05"),
		)
	}

	emoji := "🔴"
	if event.PnL.IsPositive() {
		emoji = "🟢"
	}

	return fmt.Sprintf(
		"%s *POSITION CLOSED*\n\n"+
			"Bot: `%s`\n"+
			"Symbol: `%s`\n"+
			"Side: *%s*\n"+
			"Exit: `$%s`\n"+
			"Reason: `%s`\n"+
			"PnL: `$%s` (%+.2f%%)\n"+
			"Time: `%s`",
		emoji, botName, event.Symbol, event.Side,
		event.Price.StringFixed(2), event.Reason,
		event.PnL.StringFixed(2), event.PnLPct,
		time.Now().Format("15:04:05"),
	)
}

func formatTickError(botName string, err error) string {
	return fmt.Sprintf(
		"❌ *TICK FAILED*\n\n"+
			"Bot: `%s`\n"+
			"`%v`\n"+
			"Time: `%s`",
		botName, err,
		time.Now().Format("15:04:05"),
	)
}
