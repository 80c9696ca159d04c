package signal

import (
	"context"
	"fmt"

	"github.com/alexanderselivanov/botfleet/pkg/models"
)

// RuleSource votes LONG on an oversold RSI with price holding above the
// fast MA on elevated volume, SHORT on the mirror image, WAIT otherwise.
// All comparisons are strict, so a value sitting exactly on a threshold
// does not trigger.
type RuleSource struct{}

// NewRuleSource creates the rule evaluator.
func NewRuleSource() *RuleSource {
	return &RuleSource{}
}

func (s *RuleSource) Name() string {
	return SourceRule
}

func (s *RuleSource) Evaluate(_ context.Context, in *Input) (*models.IndividualSignal, error) {
	ind := in.Snapshot.Indicators
	if ind == nil {
		return nil, fmt.Errorf("snapshot carries no indicators")
	}

	var (
		price      = in.Snapshot.Price.InexactFloat64()
		oversold   = in.Config.EffectiveRSIOversold()
		overbought = in.Config.EffectiveRSIOverbought()
		volFloor   = in.Config.EffectiveVolumeThreshold()
	)

	kind := models.SignalWait
	reason := "no rule condition met"

	switch {
	case ind.RSI < oversold && price > ind.MA7 && ind.VolumeRatio > volFloor:
		kind = models.SignalLong
		reason = fmt.Sprintf("RSI %.1f under %.0f, price above MA7, volume %.2fx average",
			ind.RSI, oversold, ind.VolumeRatio)
	case ind.RSI > overbought && price < ind.MA7 && ind.VolumeRatio > volFloor:
		kind = models.SignalShort
		reason = fmt.Sprintf("RSI %.1f over %.0f, price below MA7, volume %.2fx average",
			ind.RSI, overbought, ind.VolumeRatio)
	}

	return &models.IndividualSignal{
		Source:     s.Name(),
		Kind:       kind,
		Confidence: 1.0,
		Reason:     reason,
	}, nil
}
