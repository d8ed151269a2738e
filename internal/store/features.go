package store

import (
	"os"
	"strconv"

	"easy2trade/internal/types"

	"github.com/pkg/errors"
)

var featureHeader = []string{
	"coin", "timestamp", "close", "volume", "volatility", "avg_volume",
	"volatility_category", "avg_volume_category", "trend", "liked",
}

// FeatureStore reads and writes processed market data tables, both the
// combined processed_data.csv and the per-ticker files it is built from.
type FeatureStore struct {
	path string
}

func NewFeatureStore(path string) *FeatureStore {
	return &FeatureStore{path: path}
}

func (s *FeatureStore) Path() string {
	return s.path
}

func (s *FeatureStore) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

// Load fails with ErrNotFound when the table has not been produced yet.
func (s *FeatureStore) Load() ([]types.FeatureRow, error) {
	header, records, err := readTable(s.path)
	if err != nil {
		return nil, err
	}

	cols := indexColumns(header)
	rows := make([]types.FeatureRow, 0, len(records))
	for _, rec := range records {
		score, _ := cols.int(rec, "liked")
		rows = append(rows, types.FeatureRow{
			Coin:               types.NormalizeTicker(cols.get(rec, "coin")),
			Timestamp:          cols.get(rec, "timestamp"),
			Close:              cols.float(rec, "close"),
			Volume:             cols.float(rec, "volume"),
			Volatility:         cols.float(rec, "volatility"),
			AvgVolume:          cols.float(rec, "avg_volume"),
			VolatilityCategory: types.Category(cols.get(rec, "volatility_category")),
			AvgVolumeCategory:  types.Category(cols.get(rec, "avg_volume_category")),
			Trend:              types.Trend(cols.get(rec, "trend")),
			Score:              score,
		})
	}
	return rows, nil
}

func (s *FeatureStore) Save(rows []types.FeatureRow) error {
	records := make([][]string, 0, len(rows))
	for _, r := range rows {
		records = append(records, []string{
			r.Coin,
			r.Timestamp,
			formatFloat(r.Close),
			formatFloat(r.Volume),
			formatFloat(r.Volatility),
			formatFloat(r.AvgVolume),
			string(r.VolatilityCategory),
			string(r.AvgVolumeCategory),
			string(r.Trend),
			strconv.Itoa(r.Score),
		})
	}
	return errors.Wrapf(writeTable(s.path, featureHeader, records), "could not save %s", s.path)
}
