package ingest

import (
	"math"
	"sort"
	"time"

	"easy2trade/internal/types"

	"github.com/markcheno/go-talib"
	"gonum.org/v1/gonum/stat"
)

// Window is the number of rows in the rolling volatility and volume windows.
const Window = 7

// ComputeFeatures derives one feature row per candle. Rows before a full
// window is available carry NaN for the rolling values.
func ComputeFeatures(coin string, candles []types.Candle) []types.FeatureRow {
	n := len(candles)
	rows := make([]types.FeatureRow, n)
	if n == 0 {
		return rows
	}

	closes := make([]float64, n)
	volumes := make([]float64, n)
	for i, c := range candles {
		closes[i] = c.Close
		volumes[i] = c.Volume
	}

	changes := make([]float64, n)
	changes[0] = math.NaN()
	for i := 1; i < n; i++ {
		changes[i] = closes[i]/closes[i-1] - 1
	}

	var sma []float64
	if n >= Window {
		sma = talib.Sma(volumes, Window)
	}

	coin = types.NormalizeTicker(coin)
	for i, c := range candles {
		row := types.FeatureRow{
			Coin:       coin,
			Timestamp:  c.OpenTime.UTC().Format(time.DateTime),
			Close:      c.Close,
			Volume:     c.Volume,
			Volatility: math.NaN(),
			AvgVolume:  math.NaN(),
			Trend:      types.TrendStable,
		}

		// the first change is undefined, so the first full window ends at Window
		if i >= Window {
			row.Volatility = stat.StdDev(changes[i-Window+1:i+1], nil) * 100
		}
		if i >= Window-1 {
			row.AvgVolume = sma[i]
		}
		if i > 0 {
			switch d := closes[i] - closes[i-1]; {
			case d > 0:
				row.Trend = types.TrendUpward
			case d < 0:
				row.Trend = types.TrendDownward
			}
		}
		rows[i] = row
	}
	return rows
}

// Categorize buckets volatility and average volume into terciles of the
// values present in rows. Rows with a missing value get no category.
func Categorize(rows []types.FeatureRow) {
	volatility := tercileFunc(rows, func(r types.FeatureRow) float64 { return r.Volatility })
	volume := tercileFunc(rows, func(r types.FeatureRow) float64 { return r.AvgVolume })

	for i := range rows {
		rows[i].VolatilityCategory = volatility(rows[i].Volatility)
		rows[i].AvgVolumeCategory = volume(rows[i].AvgVolume)
	}
}

func tercileFunc(rows []types.FeatureRow, value func(types.FeatureRow) float64) func(float64) types.Category {
	var xs []float64
	for _, r := range rows {
		if v := value(r); !math.IsNaN(v) {
			xs = append(xs, v)
		}
	}
	if len(xs) == 0 {
		return func(float64) types.Category { return "" }
	}
	sort.Float64s(xs)

	low := stat.Quantile(1.0/3, stat.LinInterp, xs, nil)
	high := stat.Quantile(2.0/3, stat.LinInterp, xs, nil)

	return func(v float64) types.Category {
		switch {
		case math.IsNaN(v):
			return ""
		case v <= low:
			return types.CategoryLow
		case v <= high:
			return types.CategoryMedium
		default:
			return types.CategoryHigh
		}
	}
}
