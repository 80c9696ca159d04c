// Package signal houses the three vote sources (rule, score, AI) and
// the weighted ensemble that blends them into one trading decision.
package signal

import (
	"context"
	"math"

	"go.uber.org/zap"

	"github.com/alexanderselivanov/botfleet/pkg/logger"
	"github.com/alexanderselivanov/botfleet/pkg/models"
)

// Input is the per-tick data every source may inspect.
type Input struct {
	BotID    string
	Config   *models.BotConfig
	Snapshot *models.MarketSnapshot
}

// Source produces one vote for the ensemble.
type Source interface {
	Name() string
	Evaluate(ctx context.Context, in *Input) (*models.IndividualSignal, error)
}

// Source names, also used as weight keys.
const (
	SourceRule  = "rule"
	SourceScore = "score"
	SourceAI    = "ai"
)

// Weights maps a source name to its share of the weighted vote.
type Weights map[string]float64

// Ensemble blends the votes of its sources. A failing source is
// excluded from the vote, never propagated.
type Ensemble struct {
	sources            []Source
	weights            Weights
	weightedThreshold  float64
	consensusThreshold float64
}

// NewEnsemble wires sources with their vote weights. weightedThreshold
// is the |score| needed for a direct weighted decision (default 0.3),
// consensusThreshold the vote share needed for a kind majority
// (default 2/3).
func NewEnsemble(sources []Source, weights Weights, weightedThreshold, consensusThreshold float64) *Ensemble {
	return &Ensemble{
		sources:            sources,
		weights:            weights,
		weightedThreshold:  weightedThreshold,
		consensusThreshold: consensusThreshold,
	}
}

// Generate asks every source for a vote and blends them. Source errors
// exclude that voter with a log line; the vote proceeds with the rest.
func (e *Ensemble) Generate(ctx context.Context, in *Input) *models.EnsembleResult {
	signals := make([]models.IndividualSignal, 0, len(e.sources))

	for _, src := range e.sources {
		sig, err := src.Evaluate(ctx, in)
		if err != nil {
			logger.Warn("signal source failed, excluded from vote",
				zap.String("bot_id", in.BotID),
				zap.String("source", src.Name()),
				zap.Error(err),
			)
			continue
		}
		sig.Weight = e.weights[src.Name()]
		signals = append(signals, *sig)
	}

	return e.blend(signals)
}

// RuleOnly evaluates just the rule source. Used when a bot runs in
// rule mode and as the fallback when memory-mode generation cannot run.
func (e *Ensemble) RuleOnly(ctx context.Context, in *Input) *models.EnsembleResult {
	for _, src := range e.sources {
		if src.Name() != SourceRule {
			continue
		}

		sig, err := src.Evaluate(ctx, in)
		if err != nil {
			logger.Warn("rule source failed",
				zap.String("bot_id", in.BotID),
				zap.Error(err),
			)
			break
		}
		sig.Weight = 1.0

		return &models.EnsembleResult{
			FinalSignal:    sig.Kind,
			Signals:        []models.IndividualSignal{*sig},
			ConsensusRatio: 1.0,
			WeightedScore:  sig.Vote(),
			Metadata:       "rule-only",
		}
	}

	return &models.EnsembleResult{
		FinalSignal: models.SignalWait,
		Metadata:    "no sources",
	}
}

// blend applies the decision precedence: weighted score first, kind
// consensus second, WAIT otherwise.
func (e *Ensemble) blend(signals []models.IndividualSignal) *models.EnsembleResult {
	if len(signals) == 0 {
		return &models.EnsembleResult{
			FinalSignal: models.SignalWait,
			Metadata:    "no sources",
		}
	}

	var weightSum, score float64
	counts := make(map[models.SignalKind]int, 3)
	for _, sig := range signals {
		weightSum += sig.Weight
		score += sig.Vote()
		counts[sig.Kind]++
	}
	if weightSum > 0 {
		score /= weightSum
	}

	// Fixed kind order keeps ties deterministic.
	topKind := models.SignalWait
	top := 0
	for _, kind := range []models.SignalKind{models.SignalLong, models.SignalShort, models.SignalWait} {
		if counts[kind] > top {
			top = counts[kind]
			topKind = kind
		}
	}
	consensusRatio := float64(top) / float64(len(signals))

	result := &models.EnsembleResult{
		Signals:        signals,
		ConsensusRatio: consensusRatio,
		WeightedScore:  score,
	}

	switch {
	case score != 0 && math.Abs(score) >= e.weightedThreshold:
		if score > 0 {
			result.FinalSignal = models.SignalLong
		} else {
			result.FinalSignal = models.SignalShort
		}
		result.Metadata = "weighted"
	case consensusRatio >= e.consensusThreshold:
		result.FinalSignal = topKind
		result.Metadata = "consensus"
	default:
		result.FinalSignal = models.SignalWait
		result.Metadata = "no consensus"
	}

	return result
}
