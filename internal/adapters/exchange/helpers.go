package exchange

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Helper functions shared by exchange clients

func safeFloat(ptr *float64) float64 {
	if ptr != nil {
		return *ptr
	}
	return 0
}

func safeStringPtr(ptr *string) string {
	if ptr != nil {
		return *ptr
	}
	return ""
}

func absFloat(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

func getFloat(m interface{}, key string) float64 {
	if m == nil {
		return 0
	}
	if mmap, ok := m.(map[string]interface{}); ok {
		if val, ok := mmap[key]; ok {
			if fval, ok := val.(float64); ok {
				return fval
			}
		}
	}
	return 0
}

func getString(m interface{}, key string) string {
	if m == nil {
		return ""
	}
	if mmap, ok := m.(map[string]interface{}); ok {
		if val, ok := mmap[key]; ok {
			if sval, ok := val.(string); ok {
				return sval
			}
		}
	}
	return ""
}

func timeFromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

// asFloat unwraps a loosely typed numeric value.
func asFloat(v interface{}) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int64:
		return float64(n)
	case int:
		return float64(n)
	}
	return 0
}

// parseDecimal converts a wire string to decimal, zero on garbage.
func parseDecimal(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// toSlashSymbol converts BTCUSDT to the unified BTC/USDT form.
func toSlashSymbol(symbol string) string {
	if base, ok := strings.CutSuffix(symbol, "USDT"); ok {
		return base + "/USDT"
	}
	return symbol
}

// compactSymbol strips unified-symbol punctuation: BTC/USDT:USDT -> BTCUSDT.
func compactSymbol(symbol string) string {
	if i := strings.IndexByte(symbol, ':'); i >= 0 {
		symbol = symbol[:i]
	}
	return strings.ReplaceAll(symbol, "/", "")
}
