package strategy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockbot/internal/domain"
	"stockbot/internal/strategy/indicators"
)

// mockLogger implements ports.Logger for testing
type mockLogger struct {
	debugMsgs []string
	infoMsgs  []string
	warnMsgs  []string
	errorMsgs []string
}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.debugMsgs = append(m.debugMsgs, msg)
}

func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.infoMsgs = append(m.infoMsgs, msg)
}

func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.warnMsgs = append(m.warnMsgs, msg)
}

func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
	m.errorMsgs = append(m.errorMsgs, msg)
}

// stubVoter always casts the configured vote regardless of indicators.
type stubVoter struct {
	name     string
	signal   domain.SignalType
	strength float64
}

func (s stubVoter) Name() string { return s.name }

func (s stubVoter) Vote(_ indicators.IndicatorSet, _ float64) Vote {
	return Vote{Signal: s.signal, Strength: s.strength, Reason: s.name}
}

func defaultConfig() Config {
	return Config{
		Indicators: indicators.Config{
			ShortMAPeriod: 5, LongMAPeriod: 20, RSIPeriod: 14,
			MACDFast: 12, MACDSlow: 26, MACDSignal: 9,
		},
		NewsThreshold:    30,
		StrongTechnical:  2.0,
		NewsDampenFactor: 0.5,
	}
}

func newTestEnsemble(t *testing.T, voters ...Voter) *Ensemble {
	t.Helper()
	e, err := NewEnsemble(defaultConfig(), voters, &mockLogger{})
	require.NoError(t, err)
	return e
}

func prices(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 1000 + float64(i)
	}
	return out
}

func TestNewEnsemble(t *testing.T) {
	t.Run("nil logger", func(t *testing.T) {
		_, err := NewEnsemble(defaultConfig(), []Voter{MACrossover{}}, nil)
		assert.Error(t, err)
	})

	t.Run("no voters", func(t *testing.T) {
		_, err := NewEnsemble(defaultConfig(), nil, &mockLogger{})
		assert.Error(t, err)
	})
}

func TestEvaluateMajority(t *testing.T) {
	tests := []struct {
		name   string
		voters []Voter
		want   domain.SignalType
	}{
		{
			name: "two of three buy wins",
			voters: []Voter{
				stubVoter{"a", domain.SignalBuy, 1},
				stubVoter{"b", domain.SignalBuy, 1},
				stubVoter{"c", domain.SignalSell, 1},
			},
			want: domain.SignalBuy,
		},
		{
			name: "unanimous sell",
			voters: []Voter{
				stubVoter{"a", domain.SignalSell, 1},
				stubVoter{"b", domain.SignalSell, 1},
				stubVoter{"c", domain.SignalSell, 1},
			},
			want: domain.SignalSell,
		},
		{
			name: "one buy one sell one hold resolves to hold",
			voters: []Voter{
				stubVoter{"a", domain.SignalBuy, 1},
				stubVoter{"b", domain.SignalSell, 1},
				stubVoter{"c", domain.SignalHold, 0},
			},
			want: domain.SignalHold,
		},
		{
			name: "all abstain resolves to hold",
			voters: []Voter{
				stubVoter{"a", domain.SignalHold, 0},
				stubVoter{"b", domain.SignalHold, 0},
				stubVoter{"c", domain.SignalHold, 0},
			},
			want: domain.SignalHold,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEnsemble(t, tt.voters...)
			got := e.Evaluate(context.Background(), "005930", prices(40), true, nil)
			assert.Equal(t, tt.want, got.Signal)
		})
	}
}

func TestEvaluateIsDeterministic(t *testing.T) {
	e := newTestEnsemble(t, MACrossover{}, RSIThreshold{Oversold: 30, Overbought: 70}, MACDCrossover{})
	window := prices(60)

	first := e.Evaluate(context.Background(), "005930", window, true, nil)
	second := e.Evaluate(context.Background(), "005930", window, true, nil)
	assert.Equal(t, first, second)
}

func TestEvaluateInsufficientHistory(t *testing.T) {
	e := newTestEnsemble(t, MACrossover{}, RSIThreshold{Oversold: 30, Overbought: 70}, MACDCrossover{})

	got := e.Evaluate(context.Background(), "005930", []float64{100, 101}, false, nil)
	assert.Equal(t, domain.SignalHold, got.Signal)

	got = e.Evaluate(context.Background(), "005930", nil, false, nil)
	assert.Equal(t, domain.SignalHold, got.Signal)
}

func TestEvaluateSellSuppressedWhenNotHolding(t *testing.T) {
	e := newTestEnsemble(t,
		stubVoter{"a", domain.SignalSell, 1},
		stubVoter{"b", domain.SignalSell, 1},
		stubVoter{"c", domain.SignalSell, 1},
	)

	held := e.Evaluate(context.Background(), "005930", prices(40), true, nil)
	assert.Equal(t, domain.SignalSell, held.Signal)

	unheld := e.Evaluate(context.Background(), "005930", prices(40), false, nil)
	assert.Equal(t, domain.SignalHold, unheld.Signal)
}

func TestApplyNews(t *testing.T) {
	holdVoters := []Voter{
		stubVoter{"a", domain.SignalHold, 0},
		stubVoter{"b", domain.SignalHold, 0},
		stubVoter{"c", domain.SignalHold, 0},
	}

	t.Run("strong positive score upgrades hold to buy", func(t *testing.T) {
		e := newTestEnsemble(t, holdVoters...)
		score := 45
		got := e.Evaluate(context.Background(), "005930", prices(40), false, &score)
		assert.Equal(t, domain.SignalBuy, got.Signal)
		assert.InDelta(t, 1.5, got.Strength, 1e-9)
	})

	t.Run("score below threshold is ignored", func(t *testing.T) {
		e := newTestEnsemble(t, holdVoters...)
		score := 29
		got := e.Evaluate(context.Background(), "005930", prices(40), false, &score)
		assert.Equal(t, domain.SignalHold, got.Signal)
	})

	t.Run("nil score is ignored", func(t *testing.T) {
		e := newTestEnsemble(t, holdVoters...)
		got := e.Evaluate(context.Background(), "005930", prices(40), false, nil)
		assert.Equal(t, domain.SignalHold, got.Signal)
	})

	t.Run("strong score overrides weak disagreeing technical", func(t *testing.T) {
		e := newTestEnsemble(t,
			stubVoter{"a", domain.SignalSell, 0.5},
			stubVoter{"b", domain.SignalSell, 0.5},
			stubVoter{"c", domain.SignalHold, 0},
		)
		score := 60
		got := e.Evaluate(context.Background(), "005930", prices(40), true, &score)
		assert.Equal(t, domain.SignalBuy, got.Signal)
	})

	t.Run("strong technical survives disagreeing news but is dampened", func(t *testing.T) {
		e := newTestEnsemble(t,
			stubVoter{"a", domain.SignalSell, 4},
			stubVoter{"b", domain.SignalSell, 4},
			stubVoter{"c", domain.SignalHold, 0},
		)
		score := 60
		got := e.Evaluate(context.Background(), "005930", prices(40), true, &score)
		assert.Equal(t, domain.SignalSell, got.Signal)
		assert.InDelta(t, 2.0, got.Strength, 1e-9) // 4 averaged, halved
	})

	t.Run("agreeing news leaves the technical signal untouched", func(t *testing.T) {
		e := newTestEnsemble(t,
			stubVoter{"a", domain.SignalBuy, 1},
			stubVoter{"b", domain.SignalBuy, 1},
			stubVoter{"c", domain.SignalHold, 0},
		)
		score := 80
		got := e.Evaluate(context.Background(), "005930", prices(40), false, &score)
		assert.Equal(t, domain.SignalBuy, got.Signal)
		assert.InDelta(t, 1.0, got.Strength, 1e-9)
	})

	t.Run("strong negative score upgrades hold to sell only when holding", func(t *testing.T) {
		e := newTestEnsemble(t, holdVoters...)
		score := -50
		held := e.Evaluate(context.Background(), "005930", prices(40), true, &score)
		assert.Equal(t, domain.SignalSell, held.Signal)

		unheld := e.Evaluate(context.Background(), "005930", prices(40), false, &score)
		assert.Equal(t, domain.SignalHold, unheld.Signal)
	})
}

func TestVoters(t *testing.T) {
	t.Run("ma crossover buy and sell", func(t *testing.T) {
		set := indicators.IndicatorSet{ShortMA: 110, HasShortMA: true, LongMA: 100, HasLongMA: true}
		vote := MACrossover{}.Vote(set, 110)
		assert.Equal(t, domain.SignalBuy, vote.Signal)
		assert.Greater(t, vote.Strength, 0.0)

		set = indicators.IndicatorSet{ShortMA: 90, HasShortMA: true, LongMA: 100, HasLongMA: true}
		vote = MACrossover{}.Vote(set, 90)
		assert.Equal(t, domain.SignalSell, vote.Signal)
	})

	t.Run("ma crossover abstains without history", func(t *testing.T) {
		vote := MACrossover{}.Vote(indicators.IndicatorSet{}, 100)
		assert.Equal(t, domain.SignalHold, vote.Signal)
	})

	t.Run("rsi thresholds", func(t *testing.T) {
		r := RSIThreshold{Oversold: 30, Overbought: 70}

		vote := r.Vote(indicators.IndicatorSet{RSI: 25, HasRSI: true}, 100)
		assert.Equal(t, domain.SignalBuy, vote.Signal)

		vote = r.Vote(indicators.IndicatorSet{RSI: 30, HasRSI: true}, 100)
		assert.Equal(t, domain.SignalBuy, vote.Signal) // boundary is inclusive

		vote = r.Vote(indicators.IndicatorSet{RSI: 75, HasRSI: true}, 100)
		assert.Equal(t, domain.SignalSell, vote.Signal)

		vote = r.Vote(indicators.IndicatorSet{RSI: 50, HasRSI: true}, 100)
		assert.Equal(t, domain.SignalHold, vote.Signal)
	})

	t.Run("macd histogram sign", func(t *testing.T) {
		set := indicators.IndicatorSet{MACD: indicators.MACDValue{Histogram: 1.5}, HasMACD: true}
		vote := MACDCrossover{}.Vote(set, 100)
		assert.Equal(t, domain.SignalBuy, vote.Signal)

		set = indicators.IndicatorSet{MACD: indicators.MACDValue{Histogram: -1.5}, HasMACD: true}
		vote = MACDCrossover{}.Vote(set, 100)
		assert.Equal(t, domain.SignalSell, vote.Signal)
	})
}
