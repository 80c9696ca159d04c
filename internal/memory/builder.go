// Package memory turns ledger analytics into the narrative context the
// AI signal source splices into its prompt.
package memory

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/alexanderselivanov/botfleet/internal/ledger"
	"github.com/alexanderselivanov/botfleet/pkg/logger"
	"github.com/alexanderselivanov/botfleet/pkg/models"
)

// Analytics is the slice of the trade ledger the builder reads.
// *ledger.Repository satisfies it.
type Analytics interface {
	Stats(ctx context.Context, botID string, days int) (*ledger.Summary, error)
	RSIZoneStats(ctx context.Context, botID string, days int) ([]ledger.ZoneStat, error)
	HourlyStats(ctx context.Context, botID string, days int) ([]ledger.HourStat, error)
	RecentTrades(ctx context.Context, botID string, limit int) ([]models.Trade, error)
	CurrentStreak(ctx context.Context, botID string) (*ledger.Streak, error)
}

const (
	defaultLookbackDays = 7
	recentTradeCount    = 10

	// A zone or hour only makes it into the narrative once it has
	// enough trades to mean something.
	zoneBestWinRate  = 70.0
	zoneWorstWinRate = 40.0
	zoneMinTrades    = 5

	hourBestWinRate  = 75.0
	hourWorstWinRate = 35.0
	hourMinTrades    = 3
)

// Builder assembles MemoryContexts from ledger aggregates.
type Builder struct {
	analytics Analytics
	lookback  int
}

// NewBuilder creates a builder with the given look-back window in days.
func NewBuilder(analytics Analytics, lookbackDays int) *Builder {
	if lookbackDays <= 0 {
		lookbackDays = defaultLookbackDays
	}
	return &Builder{
		analytics: analytics,
		lookback:  lookbackDays,
	}
}

// Build queries the analytics surface and renders the six narrative
// fields. Any query failure returns an empty context so the caller
// proceeds as if the bot had no history.
func (b *Builder) Build(ctx context.Context, botID string) *models.MemoryContext {
	empty := &models.MemoryContext{}

	summary, err := b.analytics.Stats(ctx, botID, b.lookback)
	if err != nil {
		logger.Warn("memory context unavailable",
			zap.String("bot_id", botID),
			zap.Error(err),
		)
		return empty
	}
	if summary.TotalTrades == 0 {
		return empty
	}

	recent, err := b.analytics.RecentTrades(ctx, botID, recentTradeCount)
	if err != nil {
		logger.Warn("memory context unavailable", zap.String("bot_id", botID), zap.Error(err))
		return empty
	}

	zones, err := b.analytics.RSIZoneStats(ctx, botID, b.lookback)
	if err != nil {
		logger.Warn("memory context unavailable", zap.String("bot_id", botID), zap.Error(err))
		return empty
	}

	hours, err := b.analytics.HourlyStats(ctx, botID, b.lookback)
	if err != nil {
		logger.Warn("memory context unavailable", zap.String("bot_id", botID), zap.Error(err))
		return empty
	}

	streak, err := b.analytics.CurrentStreak(ctx, botID)
	if err != nil {
		logger.Warn("memory context unavailable", zap.String("bot_id", botID), zap.Error(err))
		return empty
	}

	return &models.MemoryContext{
		Summary:           summaryLine(b.lookback, summary),
		RecentPerformance: recentLine(recent, streak),
		BestConditions:    zoneLine(zones, true),
		WorstConditions:   zoneLine(zones, false),
		TimingInsights:    timingLine(hours),
		Recommendations:   guidanceLine(summary, zones, hours, streak),
	}
}

func summaryLine(days int, s *ledger.Summary) string {
	return fmt.Sprintf("%d closed trades over %d days, %.0f%% win rate, total PnL %s USDT (avg %+.2f%% per trade).",
		s.TotalTrades, days, s.WinRate(), s.TotalPnL.StringFixed(2), s.AvgPnLPct)
}

func recentLine(trades []models.Trade, streak *ledger.Streak) string {
	if len(trades) == 0 {
		return ""
	}

	wins := 0
	var best, worst float64
	seeded := false
	for _, t := range trades {
		if t.PnL != nil && t.PnL.IsPositive() {
			wins++
		}
		if t.PnLPct == nil {
			continue
		}
		if !seeded || *t.PnLPct > best {
			best = *t.PnLPct
		}
		if !seeded || *t.PnLPct < worst {
			worst = *t.PnLPct
		}
		seeded = true
	}

	line := fmt.Sprintf("Last %d trades: %d wins, %d losses (best %+.2f%%, worst %+.2f%%).",
		len(trades), wins, len(trades)-wins, best, worst)

	if streak != nil && streak.Length >= 2 {
		word := "losing"
		if streak.Wins {
			word = "winning"
		}
		line += fmt.Sprintf(" Currently on a %d-trade %s streak.", streak.Length, word)
	}

	return line
}

// zoneLine renders the RSI zones that cleared the best (or worst)
// threshold, strongest sample first.
func zoneLine(zones []ledger.ZoneStat, best bool) string {
	var parts []string
	for i := range zones {
		z := &zones[i]
		if z.Trades < zoneMinTrades {
			continue
		}
		if best && z.WinRate() >= zoneBestWinRate {
			parts = append(parts, fmt.Sprintf("RSI %s entries: %.0f%% win rate over %d trades (avg %+.2f%%)",
				z.Zone, z.WinRate(), z.Trades, z.AvgPnLPct))
		}
		if !best && z.WinRate() <= zoneWorstWinRate {
			parts = append(parts, fmt.Sprintf("RSI %s entries: only %.0f%% win rate over %d trades (avg %+.2f%%)",
				z.Zone, z.WinRate(), z.Trades, z.AvgPnLPct))
		}
	}
	if len(parts) == 0 {
		return ""
	}
	return strings.Join(parts, "; ") + "."
}

func timingLine(hours []ledger.HourStat) string {
	var good, bad []string
	for i := range hours {
		h := &hours[i]
		if h.Trades < hourMinTrades {
			continue
		}
		switch {
		case h.WinRate() >= hourBestWinRate:
			good = append(good, fmt.Sprintf("%02d:00 UTC (%.0f%% of %d)", h.Hour, h.WinRate(), h.Trades))
		case h.WinRate() <= hourWorstWinRate:
			bad = append(bad, fmt.Sprintf("%02d:00 UTC (%.0f%% of %d)", h.Hour, h.WinRate(), h.Trades))
		}
	}

	var parts []string
	if len(good) > 0 {
		parts = append(parts, "Strong hours: "+strings.Join(good, ", "))
	}
	if len(bad) > 0 {
		parts = append(parts, "Weak hours: "+strings.Join(bad, ", "))
	}
	return strings.Join(parts, ". ")
}

// guidanceLine derives short actionable advice from the same aggregates.
func guidanceLine(s *ledger.Summary, zones []ledger.ZoneStat, hours []ledger.HourStat, streak *ledger.Streak) string {
	var advice []string

	if s.TotalTrades >= 5 && s.WinRate() < 50 {
		advice = append(advice, "win rate is below 50%, be more selective with entries")
	}

	for i := range zones {
		z := &zones[i]
		if z.Trades >= zoneMinTrades && z.WinRate() <= zoneWorstWinRate {
			advice = append(advice, fmt.Sprintf("avoid entries while RSI is in the %s zone", z.Zone))
			break
		}
	}

	for i := range hours {
		h := &hours[i]
		if h.Trades >= hourMinTrades && h.WinRate() <= hourWorstWinRate {
			advice = append(advice, fmt.Sprintf("avoid opening positions around %02d:00 UTC", h.Hour))
			break
		}
	}

	if streak != nil && !streak.Wins && streak.Length >= 3 {
		advice = append(advice, fmt.Sprintf("on a %d-trade losing streak, prefer WAIT unless the setup is clear", streak.Length))
	}

	if len(advice) == 0 {
		return ""
	}

	joined := strings.Join(advice, "; ") + "."
	return strings.ToUpper(joined[:1]) + joined[1:]
}
