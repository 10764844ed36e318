package ports

import (
	"context"

	"stockbot/internal/domain"
)

// SignalEvaluator defines the interface for the strategy layer.
type SignalEvaluator interface {
	// RequiredDataPoints returns the minimum price-window length needed for
	// the underlying indicator calculations. Callers with less history must
	// treat the evaluation as HOLD, not as a fault.
	RequiredDataPoints() int

	// Evaluate produces a signal for one stock from its price window.
	// newsScore, when non-nil, is a bounded sentiment score in [-100, 100]
	// supplied by an external collaborator. isHolding=false suppresses SELL.
	// Evaluate is pure with respect to the price window: identical inputs
	// yield identical results.
	Evaluate(ctx context.Context, stockCode string, prices []float64, isHolding bool, newsScore *int) domain.SignalResult
}

// SentimentProvider supplies an optional news-sentiment score for a stock.
// The second return value is false when no score is available.
type SentimentProvider interface {
	ScoreFor(ctx context.Context, stockCode string) (int, bool)
}
