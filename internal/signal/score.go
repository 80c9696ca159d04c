package signal

import (
	"context"
	"fmt"
	"math"

	"github.com/alexanderselivanov/botfleet/pkg/models"
)

// Sub-score weights. They sum to 1 so the total stays in [-1, +1].
const (
	weightRSI     = 0.25
	weightMA      = 0.25
	weightVolume  = 0.15
	weightATR     = 0.10
	weightMACD    = 0.15
	weightPriceMA = 0.10

	// longCutoff is the total needed to vote a direction.
	longCutoff  = 0.2
	shortCutoff = -0.2
)

// ScoreSource blends six bounded sub-scores into a single reading:
// RSI position, MA alignment, volume confirmation, the ATR band around
// MA25, MACD momentum, and price-vs-MA25 trend.
type ScoreSource struct{}

// NewScoreSource creates the score evaluator.
func NewScoreSource() *ScoreSource {
	return &ScoreSource{}
}

func (s *ScoreSource) Name() string {
	return SourceScore
}

func (s *ScoreSource) Evaluate(_ context.Context, in *Input) (*models.IndividualSignal, error) {
	ind := in.Snapshot.Indicators
	if ind == nil {
		return nil, fmt.Errorf("snapshot carries no indicators")
	}

	price := in.Snapshot.Price.InexactFloat64()

	var (
		rsi     = rsiScore(ind.RSI)
		ma      = maScore(ind)
		volume  = volumeScore(ind)
		atrBand = atrBandScore(price, ind)
		macd    = macdScore(price, ind)
		trend   = priceMAScore(price, ind)
	)

	total := weightRSI*rsi +
		weightMA*ma +
		weightVolume*volume +
		weightATR*atrBand +
		weightMACD*macd +
		weightPriceMA*trend

	kind := models.SignalWait
	switch {
	case total >= longCutoff:
		kind = models.SignalLong
	case total <= shortCutoff:
		kind = models.SignalShort
	}

	return &models.IndividualSignal{
		Source:     s.Name(),
		Kind:       kind,
		Confidence: math.Min(math.Abs(total), 1),
		Reason: fmt.Sprintf("score %+.2f (rsi %+.2f, ma %+.2f, vol %+.2f, atr %+.2f, macd %+.2f, trend %+.2f)",
			total, rsi, ma, volume, atrBand, macd, trend),
	}, nil
}

func clamp(v float64) float64 {
	return math.Max(-1, math.Min(1, v))
}

// rsiScore reads oversold as bullish: +1 at RSI 30 and below, -1 at 70
// and above, linear in between.
func rsiScore(rsi float64) float64 {
	return clamp((50 - rsi) / 20)
}

// maScore rewards stacked moving averages: a full uptrend alignment
// (MA7 > MA25 > MA99) reads +1, a partial one +0.5, mirrored for down.
func maScore(ind *models.IndicatorSet) float64 {
	switch {
	case ind.MA7 > ind.MA25 && ind.MA25 > ind.MA99:
		return 1
	case ind.MA7 < ind.MA25 && ind.MA25 < ind.MA99:
		return -1
	case ind.MA7 > ind.MA25:
		return 0.5
	case ind.MA7 < ind.MA25:
		return -0.5
	}
	return 0
}

// volumeScore lets elevated volume confirm the last candle's direction.
// Below-average volume carries no conviction either way.
func volumeScore(ind *models.IndicatorSet) float64 {
	if ind.VolumeRatio < 1 {
		return 0
	}
	strength := math.Min(ind.VolumeRatio-1, 1)
	if ind.Bullish {
		return strength
	}
	return -strength
}

// atrBandScore measures how stretched price is inside a 2-ATR band
// around MA25. Two ATRs below the mid reads +1 (snap-back long), two
// above reads -1.
func atrBandScore(price float64, ind *models.IndicatorSet) float64 {
	if ind.ATR <= 0 {
		return 0
	}
	return clamp((ind.MA25 - price) / (2 * ind.ATR))
}

// macdScore normalizes the MACD histogram by price so the reading is
// comparable across symbols. A histogram worth 0.1% of price saturates.
func macdScore(price float64, ind *models.IndicatorSet) float64 {
	if price <= 0 {
		return 0
	}
	histPct := ind.MACDHistogram / price * 100
	return clamp(histPct / 0.1)
}

// priceMAScore reads price holding above MA25 as trend strength,
// saturating at 1% distance.
func priceMAScore(price float64, ind *models.IndicatorSet) float64 {
	if ind.MA25 <= 0 {
		return 0
	}
	return clamp((price - ind.MA25) / ind.MA25 * 100)
}
