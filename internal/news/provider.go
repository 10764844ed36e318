// Package news supplies the optional sentiment input to the strategy layer.
// Real scoring is an external collaborator that emits a bounded score in
// [-100, 100]; this package only adapts such a source to the
// ports.SentimentProvider interface.
package news

import (
	"context"
	"sync"
)

// StaticProvider serves scores from an in-memory table, updated by whatever
// collaborator produces them. A missing entry means "no score available".
type StaticProvider struct {
	mu     sync.RWMutex
	scores map[string]int
}

// NewStaticProvider creates an empty provider.
func NewStaticProvider() *StaticProvider {
	return &StaticProvider{scores: make(map[string]int)}
}

// SetScore stores a sentiment score for a stock, clamped to [-100, 100].
func (p *StaticProvider) SetScore(stockCode string, score int) {
	if score > 100 {
		score = 100
	} else if score < -100 {
		score = -100
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.scores[stockCode] = score
}

// ClearScore removes a stock's score.
func (p *StaticProvider) ClearScore(stockCode string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.scores, stockCode)
}

// ScoreFor implements ports.SentimentProvider.
func (p *StaticProvider) ScoreFor(ctx context.Context, stockCode string) (int, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	score, ok := p.scores[stockCode]
	return score, ok
}
