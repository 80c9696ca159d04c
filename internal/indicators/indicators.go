package indicators

import (
	"fmt"

	"github.com/cinar/indicator"

	"github.com/alexanderselivanov/botfleet/pkg/models"
)

const (
	// minCandles covers the MACD slow EMA window
	minCandles = 26
	// srWindow is the rolling extrema lookback for support/resistance
	srWindow = 20
)

// Calculator derives the technical snapshot the signal voters read.
type Calculator struct{}

// NewCalculator creates new indicator calculator
func NewCalculator() *Calculator {
	return &Calculator{}
}

// Calculate computes the full indicator set from candles, oldest first.
// Moving averages degrade to the running mean while their window warms
// up, so short histories still produce usable values.
func (c *Calculator) Calculate(candles []models.Candle) (*models.IndicatorSet, error) {
	if len(candles) < minCandles {
		return nil, fmt.Errorf("insufficient candles for indicators (need at least %d, got %d)", minCandles, len(candles))
	}

	closes := make([]float64, len(candles))
	highs := make([]float64, len(candles))
	lows := make([]float64, len(candles))
	volumes := make([]float64, len(candles))

	for i, candle := range candles {
		closes[i], _ = candle.Close.Float64()
		highs[i], _ = candle.High.Float64()
		lows[i], _ = candle.Low.Float64()
		volumes[i], _ = candle.Volume.Float64()
	}

	_, rsi := indicator.Rsi(closes)

	ma7 := indicator.Sma(7, closes)
	ma25 := indicator.Sma(25, closes)
	ma99 := indicator.Sma(99, closes)

	_, atr := indicator.Atr(14, highs, lows, closes)

	macdLine, signalLine := indicator.Macd(closes)
	histogram := macdLine[len(macdLine)-1] - signalLine[len(signalLine)-1]

	volumeAvg := calculateAverage(volumes)
	volumeRatio := 0.0
	if volumeAvg > 0 {
		volumeRatio = volumes[len(volumes)-1] / volumeAvg
	}

	bodyPct, upperWickPct, lowerWickPct, bullish := candleAnatomy(candles[len(candles)-1])
	support, resistance := rollingExtrema(candles, srWindow)

	return &models.IndicatorSet{
		RSI:           rsi[len(rsi)-1],
		MA7:           ma7[len(ma7)-1],
		MA25:          ma25[len(ma25)-1],
		MA99:          ma99[len(ma99)-1],
		ATR:           atr[len(atr)-1],
		VolumeRatio:   volumeRatio,
		MACD:          macdLine[len(macdLine)-1],
		MACDSignal:    signalLine[len(signalLine)-1],
		MACDHistogram: histogram,
		BodyPct:       bodyPct,
		UpperWickPct:  upperWickPct,
		LowerWickPct:  lowerWickPct,
		Bullish:       bullish,
		Support:       support,
		Resistance:    resistance,
	}, nil
}

// candleAnatomy splits a candle's range into body and wick fractions.
// A zero-range candle yields zero fractions.
func candleAnatomy(candle models.Candle) (body, upperWick, lowerWick float64, bullish bool) {
	open, _ := candle.Open.Float64()
	high, _ := candle.High.Float64()
	low, _ := candle.Low.Float64()
	closing, _ := candle.Close.Float64()

	bullish = closing >= open

	candleRange := high - low
	if candleRange <= 0 {
		return 0, 0, 0, bullish
	}

	top, bottom := open, closing
	if closing > open {
		top, bottom = closing, open
	}

	body = (top - bottom) / candleRange
	upperWick = (high - top) / candleRange
	lowerWick = (bottom - low) / candleRange
	return body, upperWick, lowerWick, bullish
}

// rollingExtrema returns the lowest low and highest high of the last
// window candles.
func rollingExtrema(candles []models.Candle, window int) (support, resistance float64) {
	start := len(candles) - window
	if start < 0 {
		start = 0
	}

	support, _ = candles[start].Low.Float64()
	resistance, _ = candles[start].High.Float64()

	for _, candle := range candles[start:] {
		low, _ := candle.Low.Float64()
		high, _ := candle.High.Float64()
		if low < support {
			support = low
		}
		if high > resistance {
			resistance = high
		}
	}
	return support, resistance
}

func calculateAverage(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	sum := 0.0
	for _, v := range values {
		sum += v
	}

	return sum / float64(len(values))
}
