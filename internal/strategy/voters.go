package strategy

import (
	"fmt"
	"math"

	"stockbot/internal/domain"
	"stockbot/internal/strategy/indicators"
)

// Vote is one strategy's independent opinion for a single evaluation.
type Vote struct {
	Signal   domain.SignalType
	Strength float64
	Reason   string
}

// Voter is a single rule-based strategy voting over a shared indicator set.
// Implementations are pure: the same set and price always yield the same vote.
type Voter interface {
	Name() string
	Vote(set indicators.IndicatorSet, currentPrice float64) Vote
}

func hold(reason string) Vote {
	return Vote{Signal: domain.SignalHold, Reason: reason}
}

// MACrossover votes BUY when the short moving average is above the long one
// and SELL when below. Strength is the relative distance between the two
// averages, scaled so typical crossings land in low single digits.
type MACrossover struct{}

func (MACrossover) Name() string { return "ma_crossover" }

func (MACrossover) Vote(set indicators.IndicatorSet, currentPrice float64) Vote {
	if !set.HasShortMA || !set.HasLongMA || set.LongMA == 0 {
		return hold("ma: insufficient history")
	}
	spread := (set.ShortMA - set.LongMA) / set.LongMA * 100
	switch {
	case spread > 0:
		return Vote{
			Signal:   domain.SignalBuy,
			Strength: spread,
			Reason:   fmt.Sprintf("ma: short %.2f above long %.2f", set.ShortMA, set.LongMA),
		}
	case spread < 0:
		return Vote{
			Signal:   domain.SignalSell,
			Strength: -spread,
			Reason:   fmt.Sprintf("ma: short %.2f below long %.2f", set.ShortMA, set.LongMA),
		}
	default:
		return hold("ma: averages equal")
	}
}

// RSIThreshold votes BUY when RSI is at or below the oversold threshold and
// SELL when at or above the overbought threshold. Strength is the distance of
// RSI from the midline, scaled to single digits.
type RSIThreshold struct {
	Oversold   float64 // e.g., 30
	Overbought float64 // e.g., 70
}

func (RSIThreshold) Name() string { return "rsi_threshold" }

func (r RSIThreshold) Vote(set indicators.IndicatorSet, currentPrice float64) Vote {
	if !set.HasRSI {
		return hold("rsi: insufficient history")
	}
	strength := math.Abs(set.RSI-50) / 10
	switch {
	case set.RSI <= r.Oversold:
		return Vote{
			Signal:   domain.SignalBuy,
			Strength: strength,
			Reason:   fmt.Sprintf("rsi: %.1f at or below oversold %.1f", set.RSI, r.Oversold),
		}
	case set.RSI >= r.Overbought:
		return Vote{
			Signal:   domain.SignalSell,
			Strength: strength,
			Reason:   fmt.Sprintf("rsi: %.1f at or above overbought %.1f", set.RSI, r.Overbought),
		}
	default:
		return hold(fmt.Sprintf("rsi: %.1f neutral", set.RSI))
	}
}

// MACDCrossover votes on the sign of the MACD histogram (line vs signal).
// Strength is the histogram magnitude normalized by the current price, scaled
// to roughly match the other voters.
type MACDCrossover struct{}

func (MACDCrossover) Name() string { return "macd_crossover" }

func (MACDCrossover) Vote(set indicators.IndicatorSet, currentPrice float64) Vote {
	if !set.HasMACD || currentPrice <= 0 {
		return hold("macd: insufficient history")
	}
	strength := math.Abs(set.MACD.Histogram) / currentPrice * 1000
	switch {
	case set.MACD.Histogram > 0:
		return Vote{
			Signal:   domain.SignalBuy,
			Strength: strength,
			Reason:   fmt.Sprintf("macd: line %.3f above signal %.3f", set.MACD.Line, set.MACD.Signal),
		}
	case set.MACD.Histogram < 0:
		return Vote{
			Signal:   domain.SignalSell,
			Strength: strength,
			Reason:   fmt.Sprintf("macd: line %.3f below signal %.3f", set.MACD.Line, set.MACD.Signal),
		}
	default:
		return hold("macd: line on signal")
	}
}
