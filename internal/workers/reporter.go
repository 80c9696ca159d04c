package workers

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/alexanderselivanov/botfleet/internal/bot"
	"github.com/alexanderselivanov/botfleet/internal/ledger"
	"github.com/alexanderselivanov/botfleet/pkg/logger"
)

// Analytics is the slice of the trade ledger the reporter reads.
// *ledger.Repository satisfies it.
type Analytics interface {
	Stats(ctx context.Context, botID string, days int) (*ledger.Summary, error)
}

// Notifier delivers rendered reports to the operator chat.
// *telegram.Bot satisfies it.
type Notifier interface {
	SendReport(text string) error
}

// DailyReporter sends the operator one fleet performance summary per
// run, covering the trailing 24 hours of closed trades.
type DailyReporter struct {
	manager *bot.Manager
	ledger  Analytics
	notify  Notifier
}

// NewDailyReporter creates new daily reporter
func NewDailyReporter(manager *bot.Manager, ledger Analytics, notify Notifier) *DailyReporter {
	return &DailyReporter{manager: manager, ledger: ledger, notify: notify}
}

// Name returns worker name
func (w *DailyReporter) Name() string {
	return "daily_report"
}

// Run renders and sends one report.
func (w *DailyReporter) Run(ctx context.Context) error {
	if err := w.notify.SendReport(w.render(ctx)); err != nil {
		return fmt.Errorf("failed to send daily report: %w", err)
	}
	logger.Info("daily report sent")
	return nil
}

// render builds the Markdown report. Bots without closed trades inside
// the window get a single quiet line.
func (w *DailyReporter) render(ctx context.Context) string {
	var sb strings.Builder
	total, running := w.manager.Counts()
	fmt.Fprintf(&sb, "📈 *Daily fleet report* (%d running / %d total)\n", running, total)

	fleetTrades := 0
	fleetPnL := decimal.Zero
	for _, inst := range w.manager.ListBots() {
		cfg := inst.Config()

		s, err := w.ledger.Stats(ctx, cfg.ID, 1)
		if err != nil {
			logger.Warn("stats unavailable for daily report",
				zap.String("bot", cfg.Name), zap.Error(err))
			fmt.Fprintf(&sb, "\n`%s`: stats unavailable", cfg.Name)
			continue
		}
		if s.TotalTrades == 0 {
			fmt.Fprintf(&sb, "\n`%s`: no closed trades", cfg.Name)
			continue
		}

		fleetTrades += s.TotalTrades
		fleetPnL = fleetPnL.Add(s.TotalPnL)
		fmt.Fprintf(&sb, "\n`%s`: %d trades, win rate %.0f%%, PnL `$%s`",
			cfg.Name, s.TotalTrades, s.WinRate(), s.TotalPnL.StringFixed(2))
	}

	fmt.Fprintf(&sb, "\n\nFleet: %d trades, PnL `$%s`", fleetTrades, fleetPnL.StringFixed(2))
	return sb.String()
}
