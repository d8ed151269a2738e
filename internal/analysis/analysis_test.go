package analysis

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"easy2trade/internal/market"
	"easy2trade/internal/session"
	"easy2trade/internal/store"
	"easy2trade/internal/types"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeKlines struct {
	candles []types.Candle
	err     error
	gotArgs []interface{}
}

func (f *fakeKlines) Klines(_ context.Context, ticker, interval string, limit int) ([]types.Candle, error) {
	f.gotArgs = []interface{}{ticker, interval, limit}
	return f.candles, f.err
}

func candles(opens ...float64) []types.Candle {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]types.Candle, len(opens))
	for i, o := range opens {
		out[i] = types.Candle{OpenTime: start.AddDate(0, 0, i), Open: o, Close: o + 1, High: o + 2, Low: o - 1}
	}
	return out
}

func newScores(t *testing.T) *store.FeedbackStore {
	return store.NewFeedbackStore(filepath.Join(t.TempDir(), "feedback.csv"))
}

func TestAnalyzeStartsSessionWithStoredScore(t *testing.T) {
	scores := newScores(t)
	_, err := scores.Put("SOL", -2)
	require.NoError(t, err)

	k := &fakeKlines{candles: candles(100, 105, 109)}
	a := NewAnalyzer(k, scores, 100)

	prev := session.Begin("ADA", 3)
	st, report, err := a.Analyze(context.Background(), prev, Request{Coin: "solusdt", Interval: "1h", Threshold: 5})
	require.NoError(t, err)

	assert.Equal(t, []interface{}{"SOL", "1h", 100}, k.gotArgs)
	assert.Equal(t, "SOL", report.Coin)
	assert.Equal(t, 100.0, report.FirstOpen)
	assert.Equal(t, 110.0, report.LastClose)
	assert.InDelta(t, 10.0, report.PctChange, 1e-9)
	assert.True(t, report.MeetsThreshold)
	assert.Equal(t, -2, report.StartScore)

	assert.True(t, st.Analyzed("SOL"))
	assert.False(t, st.Analyzed("ADA"))
	assert.Equal(t, -2, st.StartScore)
	assert.Equal(t, types.ActionNone, st.LastAction)
}

func TestAnalyzeUnratedCoinStartsAtZero(t *testing.T) {
	a := NewAnalyzer(&fakeKlines{candles: candles(50, 40)}, newScores(t), 0)

	st, report, err := a.Analyze(context.Background(), session.State{}, Request{Coin: "ETH"})
	require.NoError(t, err)
	assert.Equal(t, "1d", report.Interval)
	assert.Equal(t, 0, st.StartScore)
	assert.InDelta(t, -18.0, report.PctChange, 1e-9)
	assert.False(t, report.MeetsThreshold)
}

func TestAnalyzeKeepsStateOnFailure(t *testing.T) {
	prev := session.Begin("ADA", 1)
	scores := newScores(t)

	cases := []struct {
		name string
		k    *fakeKlines
		req  Request
		want error
	}{
		{"empty coin", &fakeKlines{}, Request{Coin: " "}, ErrInvalidRequest},
		{"bad interval", &fakeKlines{}, Request{Coin: "SOL", Interval: "3d"}, ErrInvalidRequest},
		{"bad limit", &fakeKlines{}, Request{Coin: "SOL", Limit: 5000}, ErrInvalidRequest},
		{"fetch error", &fakeKlines{err: errors.Wrap(market.ErrDataUnavailable, "boom")}, Request{Coin: "SOL"}, market.ErrDataUnavailable},
		{"no candles", &fakeKlines{}, Request{Coin: "SOL"}, market.ErrDataUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			st, _, err := NewAnalyzer(tc.k, scores, 100).Analyze(context.Background(), prev, tc.req)
			assert.ErrorIs(t, err, tc.want)
			assert.Equal(t, prev, st)
		})
	}
}
