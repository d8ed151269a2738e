package types

import (
	"math"
	"strings"
	"time"
)

// QuoteAsset is the market every ticker is quoted against.
const QuoteAsset = "USDT"

type Action string

const (
	ActionNone    Action = "none"
	ActionLike    Action = "like"
	ActionDislike Action = "dislike"
)

// ParseAction accepts "like" and "dislike" in any case.
func ParseAction(s string) (Action, bool) {
	switch Action(strings.ToLower(strings.TrimSpace(s))) {
	case ActionLike:
		return ActionLike, true
	case ActionDislike:
		return ActionDislike, true
	}
	return ActionNone, false
}

type Category string

const (
	CategoryLow    Category = "Low"
	CategoryMedium Category = "Medium"
	CategoryHigh   Category = "High"
)

type Trend string

const (
	TrendUpward   Trend = "Upward"
	TrendDownward Trend = "Downward"
	TrendStable   Trend = "Stable"
)

type FeedbackEntry struct {
	Coin  string `json:"coin"`
	Score int    `json:"score"`
}

// FeatureRow is one line of the processed market data table. Missing
// numeric values are NaN, missing categories are empty.
type FeatureRow struct {
	Coin               string   `json:"coin"`
	Timestamp          string   `json:"timestamp"`
	Close              float64  `json:"close"`
	Volume             float64  `json:"volume"`
	Volatility         float64  `json:"volatility"`
	AvgVolume          float64  `json:"avg_volume"`
	VolatilityCategory Category `json:"volatility_category"`
	AvgVolumeCategory  Category `json:"avg_volume_category"`
	Trend              Trend    `json:"trend"`
	Score              int      `json:"liked"`
}

// Complete reports whether the row carries every feature the model needs.
func (r FeatureRow) Complete() bool {
	return !math.IsNaN(r.Volatility) && !math.IsNaN(r.AvgVolume) &&
		r.VolatilityCategory != "" && r.AvgVolumeCategory != ""
}

type TrackedCoin struct {
	Coin          string  `json:"coin"`
	Threshold     float64 `json:"threshold"`
	BaselinePrice float64 `json:"initial_price"`
}

type Candle struct {
	OpenTime time.Time `json:"open_time"`
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	Volume   float64   `json:"volume"`
}

type NotificationPreferences struct {
	Email          string `json:"email"`
	TelegramChatID int64  `json:"telegram_chat_id"`
}

// NotificationRecord is an audit entry for a dispatched price alert.
type NotificationRecord struct {
	ID        int64     `json:"id"`
	Coin      string    `json:"coin"`
	Change    float64   `json:"change"`
	Channel   string    `json:"channel"`
	Recipient string    `json:"recipient"`
	Error     string    `json:"error,omitempty"`
	SentAt    time.Time `json:"sent_at"`
}

// NormalizeTicker trims, uppercases and strips a trailing quote asset,
// so "btcusdt " and "BTC" both become "BTC".
func NormalizeTicker(s string) string {
	t := strings.ToUpper(strings.TrimSpace(s))
	t = strings.TrimSuffix(t, QuoteAsset)
	return strings.TrimSpace(t)
}

// Symbol returns the exchange pair for a ticker, e.g. BTC -> BTCUSDT.
func Symbol(ticker string) string {
	return NormalizeTicker(ticker) + QuoteAsset
}
