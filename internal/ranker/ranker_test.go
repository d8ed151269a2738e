package ranker

import (
	"math"
	"path/filepath"
	"testing"

	"easy2trade/internal/store"
	"easy2trade/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func row(coin string, volatility float64, cat types.Category, trend types.Trend, score int) types.FeatureRow {
	return types.FeatureRow{
		Coin: coin, Timestamp: "2024-01-01 00:00:00", Close: 1, Volume: 1,
		Volatility: volatility, AvgVolume: 1000 - volatility*10,
		VolatilityCategory: cat, AvgVolumeCategory: types.CategoryMedium,
		Trend: trend, Score: score,
	}
}

// table has four liked volatile coins, four disliked calm coins and two
// unrated coins.
func table() []types.FeatureRow {
	return []types.FeatureRow{
		row("BTC", 5, types.CategoryHigh, types.TrendUpward, 1),
		row("ETH", 6, types.CategoryHigh, types.TrendUpward, 2),
		row("DOGE", 7, types.CategoryHigh, types.TrendDownward, 1),
		row("SHIB", 8, types.CategoryHigh, types.TrendUpward, 3),
		row("LTC", 1, types.CategoryLow, types.TrendDownward, -1),
		row("XTZ", 2, types.CategoryLow, types.TrendStable, -2),
		row("ALGO", 3, types.CategoryLow, types.TrendDownward, -1),
		row("GRT", 4, types.CategoryLow, types.TrendStable, -1),
		row("SOL", 7.5, types.CategoryHigh, types.TrendUpward, 0),
		row("ADA", 1.5, types.CategoryLow, types.TrendDownward, 0),
	}
}

func TestTrainAndRecommend(t *testing.T) {
	m, err := Train(table())
	require.NoError(t, err)

	assert.GreaterOrEqual(t, m.Accuracy, 0.0)
	assert.LessOrEqual(t, m.Accuracy, 1.0)
	assert.Equal(t, 6, m.TrainRows)
	assert.Equal(t, 2, m.TestRows)
	assert.Equal(t, []string{
		"volatility", "avg_volume",
		"volatility_category_Low",
		"trend_Stable", "trend_Upward",
	}, m.Columns)

	recs := Recommend(m, table(), []string{"BTC", "ETH"})
	require.Len(t, recs, 2)
	assert.Equal(t, "SOL", recs[0].Coin)
	assert.Equal(t, "ADA", recs[1].Coin)
	assert.Greater(t, recs[0].Probability, recs[1].Probability)
}

func TestRecommendWithoutLikedCoins(t *testing.T) {
	m, err := Train(table())
	require.NoError(t, err)

	recs := Recommend(m, table(), nil)
	assert.NotNil(t, recs)
	assert.Empty(t, recs)

	// a coin the user mentions but never liked in the table does not count
	assert.Empty(t, Recommend(m, table(), []string{"LTC"}))
}

func TestRecommendWithoutCandidates(t *testing.T) {
	m, err := Train(table())
	require.NoError(t, err)

	rated := table()[:8]
	assert.Empty(t, Recommend(m, rated, []string{"BTC"}))
}

func TestRecommendDeduplicatesAndTruncates(t *testing.T) {
	m, err := Train(table())
	require.NoError(t, err)

	rows := table()
	for i, coin := range []string{"A", "B", "C", "D", "E", "F"} {
		rows = append(rows,
			row(coin, 5+float64(i)*0.1, types.CategoryHigh, types.TrendUpward, 0),
			row(coin, 1, types.CategoryLow, types.TrendDownward, 0),
		)
	}
	// incomplete candidates are skipped
	missing := row("NAN", 9, types.CategoryHigh, types.TrendUpward, 0)
	missing.Volatility = math.NaN()
	rows = append(rows, missing)

	recs := Recommend(m, rows, []string{"BTC"})
	require.Len(t, recs, ShortlistSize)

	seen := make(map[string]bool)
	for i, r := range recs {
		assert.False(t, seen[r.Coin], "duplicate %s", r.Coin)
		seen[r.Coin] = true
		assert.NotEqual(t, "NAN", r.Coin)
		if i > 0 {
			assert.GreaterOrEqual(t, recs[i-1].Probability, r.Probability)
		}
	}
}

func TestProbabilityAlignsUnknownLevels(t *testing.T) {
	m, err := Train(table())
	require.NoError(t, err)

	r := row("NEW", 6, types.CategoryMedium, "", 0)
	p, ok := m.Probability(r)
	require.True(t, ok)
	assert.True(t, p >= 0 && p <= 1)
}

func TestTrainInsufficientData(t *testing.T) {
	_, err := Train(table()[8:])
	assert.ErrorIs(t, err, ErrInsufficientData)

	onlyLikes := table()[:4]
	onlyLikes = append(onlyLikes, row("LTC", 1, types.CategoryLow, types.TrendDownward, -1))
	_, err = Train(onlyLikes)
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestSaveAndLoadModel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trained_model.msgpack")

	_, err := LoadModel(path)
	assert.ErrorIs(t, err, ErrModelNotFound)

	m, err := Train(table())
	require.NoError(t, err)
	require.NoError(t, m.Save(path))

	loaded, err := LoadModel(path)
	require.NoError(t, err)
	assert.Equal(t, m.Columns, loaded.Columns)

	want, _ := m.Probability(table()[8])
	got, _ := loaded.Probability(table()[8])
	assert.InDelta(t, want, got, 1e-12)
}

func TestService(t *testing.T) {
	dir := t.TempDir()
	features := store.NewFeatureStore(filepath.Join(dir, "processed_data.csv"))
	feedback := store.NewFeedbackStore(filepath.Join(dir, "feedback.csv"))
	require.NoError(t, features.Save(table()))
	require.NoError(t, feedback.Save([]types.FeedbackEntry{{Coin: "BTC", Score: 1}, {Coin: "ADA", Score: -1}}))

	svc := NewService(features, feedback, filepath.Join(dir, "model.msgpack"))

	_, err := svc.Recommend()
	assert.ErrorIs(t, err, ErrModelNotFound)

	_, err = svc.Train()
	require.NoError(t, err)

	recs, err := svc.Recommend()
	require.NoError(t, err)
	require.Len(t, recs, 1, "ADA already has feedback")
	assert.Equal(t, "SOL", recs[0].Coin)

	// a fresh service picks up the saved model
	recs, err = NewService(features, feedback, filepath.Join(dir, "model.msgpack")).Recommend()
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}
