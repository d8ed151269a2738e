package store

import (
	"easy2trade/internal/types"

	"github.com/pkg/errors"
)

var trackedHeader = []string{"coin", "threshold", "initial_price"}

type TrackedStore struct {
	path string
}

func NewTrackedStore(path string) *TrackedStore {
	return &TrackedStore{path: path}
}

// Load returns the tracked coins; a missing file is an empty list.
func (s *TrackedStore) Load() ([]types.TrackedCoin, error) {
	header, records, err := readTable(s.path)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	cols := indexColumns(header)
	var coins []types.TrackedCoin
	for _, rec := range records {
		coin := types.NormalizeTicker(cols.get(rec, "coin"))
		if coin == "" {
			continue
		}
		coins = append(coins, types.TrackedCoin{
			Coin:          coin,
			Threshold:     cols.float(rec, "threshold"),
			BaselinePrice: cols.float(rec, "initial_price"),
		})
	}
	return coins, nil
}

func (s *TrackedStore) Save(coins []types.TrackedCoin) error {
	records := make([][]string, 0, len(coins))
	for _, c := range coins {
		records = append(records, []string{c.Coin, formatFloat(c.Threshold), formatFloat(c.BaselinePrice)})
	}
	return errors.Wrap(writeTable(s.path, trackedHeader, records), "could not save tracked coins")
}
