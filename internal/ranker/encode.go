package ranker

import (
	"sort"

	"easy2trade/internal/types"
)

const (
	colVolatility = "volatility"
	colAvgVolume  = "avg_volume"
)

type categorical struct {
	name  string
	value func(types.FeatureRow) string
}

var categoricals = []categorical{
	{"volatility_category", func(r types.FeatureRow) string { return string(r.VolatilityCategory) }},
	{"avg_volume_category", func(r types.FeatureRow) string { return string(r.AvgVolumeCategory) }},
	{"trend", func(r types.FeatureRow) string { return string(r.Trend) }},
}

// prepare fills a missing trend and reports whether the row has every
// feature the model reads.
func prepare(r types.FeatureRow) (types.FeatureRow, bool) {
	if r.Trend == "" {
		r.Trend = types.TrendStable
	}
	return r, r.Complete()
}

// columnsFor lists the numeric columns followed by one indicator column per
// categorical level seen in rows, minus the alphabetically first level.
func columnsFor(rows []types.FeatureRow) []string {
	cols := []string{colVolatility, colAvgVolume}
	for _, c := range categoricals {
		seen := make(map[string]bool)
		for _, r := range rows {
			seen[c.value(r)] = true
		}
		levels := make([]string, 0, len(seen))
		for l := range seen {
			levels = append(levels, l)
		}
		if len(levels) < 2 {
			continue
		}
		sort.Strings(levels)
		for _, l := range levels[1:] {
			cols = append(cols, c.name+"_"+l)
		}
	}
	return cols
}

// encode returns the values of row for columns. Indicator columns the row
// does not match are 0 and columns unknown to the row are 0 as well.
func encode(r types.FeatureRow, columns []string) []float64 {
	values := map[string]float64{
		colVolatility: r.Volatility,
		colAvgVolume:  r.AvgVolume,
	}
	for _, c := range categoricals {
		values[c.name+"_"+c.value(r)] = 1
	}

	x := make([]float64, len(columns))
	for i, col := range columns {
		x[i] = values[col]
	}
	return x
}
