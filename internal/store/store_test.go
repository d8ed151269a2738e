package store

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"easy2trade/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFeedbackStoreMissingFileIsEmpty(t *testing.T) {
	s := NewFeedbackStore(filepath.Join(t.TempDir(), "feedback.csv"))

	entries, err := s.Load()
	require.NoError(t, err)
	assert.Empty(t, entries)

	_, ok, err := s.Get("BTC")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFeedbackStorePutUpdatesInPlace(t *testing.T) {
	s := NewFeedbackStore(filepath.Join(t.TempDir(), "feedback.csv"))

	inserted, err := s.Put("btc", 1)
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = s.Put("ETHUSDT", -2)
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = s.Put("BTC", 3)
	require.NoError(t, err)
	assert.False(t, inserted)

	entries, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, []types.FeedbackEntry{{Coin: "BTC", Score: 3}, {Coin: "ETH", Score: -2}}, entries)
}

func TestFeedbackStoreRemove(t *testing.T) {
	s := NewFeedbackStore(filepath.Join(t.TempDir(), "feedback.csv"))
	_, err := s.Put("BTC", 1)
	require.NoError(t, err)

	require.NoError(t, s.Remove("btc"))
	assert.ErrorIs(t, s.Remove("BTC"), ErrNotFound)

	entries, err := s.Load()
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestFeedbackStoreReadsLegacyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feedback.csv")
	legacy := "coin,liked\nBTCUSDT,1.0\n eth ,-1\nBTC,2\n,5\nSOL,abc\n"
	require.NoError(t, os.WriteFile(path, []byte(legacy), 0o644))

	entries, err := NewFeedbackStore(path).Load()
	require.NoError(t, err)
	assert.Equal(t, []types.FeedbackEntry{{Coin: "BTC", Score: 2}, {Coin: "ETH", Score: -1}}, entries)
}

func TestFeatureStoreMissingFile(t *testing.T) {
	s := NewFeatureStore(filepath.Join(t.TempDir(), "data", "processed_data.csv"))
	assert.False(t, s.Exists())

	_, err := s.Load()
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFeatureStoreKeepsMissingValues(t *testing.T) {
	s := NewFeatureStore(filepath.Join(t.TempDir(), "data", "processed_data.csv"))
	rows := []types.FeatureRow{
		{
			Coin: "BTC", Timestamp: "2024-01-01", Close: 42000.5, Volume: 10,
			Volatility: math.NaN(), AvgVolume: math.NaN(), Trend: types.TrendStable,
		},
		{
			Coin: "BTC", Timestamp: "2024-01-08", Close: 43000, Volume: 12,
			Volatility: 2.5, AvgVolume: 11,
			VolatilityCategory: types.CategoryHigh, AvgVolumeCategory: types.CategoryLow,
			Trend: types.TrendUpward, Score: -2,
		},
	}
	require.NoError(t, s.Save(rows))
	assert.True(t, s.Exists())

	got, err := s.Load()
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.True(t, math.IsNaN(got[0].Volatility))
	assert.False(t, got[0].Complete())
	assert.Equal(t, rows[1], got[1])
}

func TestWriteTableLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	s := NewTrackedStore(filepath.Join(dir, "tracked_coins.csv"))
	require.NoError(t, s.Save([]types.TrackedCoin{{Coin: "SOL", Threshold: 5, BaselinePrice: 100}}))
	require.NoError(t, s.Save([]types.TrackedCoin{{Coin: "ADA", Threshold: 10, BaselinePrice: 50}}))

	files, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "tracked_coins.csv", files[0].Name())

	coins, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, []types.TrackedCoin{{Coin: "ADA", Threshold: 10, BaselinePrice: 50}}, coins)
}

func TestPreferencesStore(t *testing.T) {
	s := NewPreferencesStore(filepath.Join(t.TempDir(), "notification_preferences.csv"))

	p, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, types.NotificationPreferences{}, p)

	want := types.NotificationPreferences{Email: "me@example.com", TelegramChatID: 42}
	require.NoError(t, s.Save(want))

	p, err = s.Load()
	require.NoError(t, err)
	assert.Equal(t, want, p)
}
