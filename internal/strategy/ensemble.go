// Package strategy turns indicator outputs into BUY/SELL/HOLD signals.
// Multiple rule-based strategies vote over the same indicator set; a majority
// consensus resolves the final signal and an optional news-sentiment score can
// upgrade or dampen it.
package strategy

import (
	"context"
	"fmt"
	"strings"

	"stockbot/internal/domain"
	"stockbot/internal/ports"
	"stockbot/internal/strategy/indicators"
)

// Config holds ensemble parameters.
type Config struct {
	Indicators indicators.Config

	// NewsThreshold is the minimum absolute sentiment score (scores are in
	// [-100, 100]) for the news input to influence the technical consensus.
	NewsThreshold int // default 30

	// StrongTechnical is the strength above which a technical signal beats a
	// disagreeing strong news score instead of being overridden by it.
	StrongTechnical float64 // e.g., 2.0

	// NewsDampenFactor multiplies the strength of a strong technical signal
	// that a strong news score disagrees with. Must be < 1.
	NewsDampenFactor float64 // e.g., 0.5
}

// Ensemble implements ports.SignalEvaluator by majority vote among its voters.
// A tie or no-majority resolves to HOLD.
type Ensemble struct {
	cfg    Config
	voters []Voter
	logger ports.Logger
}

// NewEnsemble creates the consensus evaluator. At least one voter is required.
func NewEnsemble(cfg Config, voters []Voter, logger ports.Logger) (*Ensemble, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required for strategy ensemble")
	}
	if len(voters) == 0 {
		return nil, fmt.Errorf("at least one voter is required")
	}
	if cfg.NewsThreshold <= 0 {
		cfg.NewsThreshold = 30
	}
	if cfg.NewsDampenFactor <= 0 || cfg.NewsDampenFactor >= 1 {
		cfg.NewsDampenFactor = 0.5
	}
	if cfg.StrongTechnical <= 0 {
		cfg.StrongTechnical = 2.0
	}
	return &Ensemble{cfg: cfg, voters: voters, logger: logger}, nil
}

// RequiredDataPoints returns the longest lookback among configured indicators.
func (e *Ensemble) RequiredDataPoints() int {
	return e.cfg.Indicators.RequiredDataPoints()
}

// Evaluate produces the consensus signal for one stock. With fewer prices than
// RequiredDataPoints the individual voters abstain and the result is HOLD.
func (e *Ensemble) Evaluate(ctx context.Context, stockCode string, prices []float64, isHolding bool, newsScore *int) domain.SignalResult {
	if len(prices) == 0 {
		return domain.Hold("no price history")
	}
	currentPrice := prices[len(prices)-1]
	set := indicators.Compute(prices, e.cfg.Indicators)

	var buyStrength, sellStrength float64
	var buyCount, sellCount int
	reasons := make([]string, 0, len(e.voters))
	for _, v := range e.voters {
		vote := v.Vote(set, currentPrice)
		switch vote.Signal {
		case domain.SignalBuy:
			buyCount++
			buyStrength += vote.Strength
			reasons = append(reasons, vote.Reason)
		case domain.SignalSell:
			sellCount++
			sellStrength += vote.Strength
			reasons = append(reasons, vote.Reason)
		}
	}

	result := domain.Hold("no majority")
	majority := len(e.voters)/2 + 1
	if buyCount >= majority && buyCount > sellCount {
		result = domain.SignalResult{
			Signal:   domain.SignalBuy,
			Strength: buyStrength / float64(buyCount),
			Reason:   strings.Join(reasons, "; "),
		}
	} else if sellCount >= majority && sellCount > buyCount {
		result = domain.SignalResult{
			Signal:   domain.SignalSell,
			Strength: sellStrength / float64(sellCount),
			Reason:   strings.Join(reasons, "; "),
		}
	}

	result = e.applyNews(ctx, stockCode, result, newsScore)

	// Cannot sell what is not held. The risk manager enforces this again as a
	// defense-in-depth check.
	if !isHolding && result.Signal == domain.SignalSell {
		e.logger.Debug(ctx, "Suppressing SELL signal for unheld stock", map[string]interface{}{
			"stockCode": stockCode, "reason": result.Reason,
		})
		return domain.Hold("sell suppressed: not holding")
	}
	return result
}

// applyNews folds an optional sentiment score into the technical consensus:
// a strong score upgrades a HOLD in its own direction, overrides a weak
// disagreeing technical signal, and dampens a strong one.
func (e *Ensemble) applyNews(ctx context.Context, stockCode string, technical domain.SignalResult, newsScore *int) domain.SignalResult {
	if newsScore == nil {
		return technical
	}
	score := *newsScore
	magnitude := score
	if magnitude < 0 {
		magnitude = -magnitude
	}
	if magnitude < e.cfg.NewsThreshold {
		return technical
	}

	newsSignal := domain.SignalBuy
	if score < 0 {
		newsSignal = domain.SignalSell
	}
	newsStrength := float64(magnitude) / float64(e.cfg.NewsThreshold)

	switch {
	case technical.Signal == domain.SignalHold:
		return domain.SignalResult{
			Signal:   newsSignal,
			Strength: newsStrength,
			Reason:   fmt.Sprintf("news score %d upgraded hold", score),
		}
	case technical.Signal == newsSignal:
		return technical
	case technical.Strength < e.cfg.StrongTechnical:
		// Weak technical signal against strong news: news wins.
		e.logger.Debug(ctx, "News score overrides weak technical signal", map[string]interface{}{
			"stockCode": stockCode, "score": score, "technical": technical.Signal,
		})
		return domain.SignalResult{
			Signal:   newsSignal,
			Strength: newsStrength,
			Reason:   fmt.Sprintf("news score %d overrode weak %s (%s)", score, technical.Signal, technical.Reason),
		}
	default:
		technical.Strength *= e.cfg.NewsDampenFactor
		technical.Reason = fmt.Sprintf("%s (dampened by news score %d)", technical.Reason, score)
		return technical
	}
}
