// Package alert watches tracked coins and sends one notification when the
// price has moved past the registered threshold.
package alert

import (
	"context"
	"math"
	"sort"
	"sync"

	"easy2trade/internal/metrics"
	"easy2trade/internal/store"
	"easy2trade/internal/types"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// MinThreshold is the smallest accepted percentage threshold.
const MinThreshold = 0.1

var (
	ErrAlreadyTracked   = errors.New("coin is already tracked")
	ErrUnknownTicker    = errors.New("coin is not traded against USDT")
	ErrInvalidThreshold = errors.Errorf("threshold must be at least %.1f%%", MinThreshold)
)

// trackedMutex serializes every read-modify-write of the tracked table.
var trackedMutex sync.Mutex

type PriceSource interface {
	Price(ctx context.Context, ticker string) (float64, error)
}

type TickerSource interface {
	Tickers(ctx context.Context) ([]string, error)
}

type TrackedTable interface {
	Load() ([]types.TrackedCoin, error)
	Save([]types.TrackedCoin) error
}

type Tracker struct {
	tickers TickerSource
	prices  PriceSource
	table   TrackedTable
}

func NewTracker(tickers TickerSource, prices PriceSource, table TrackedTable) *Tracker {
	return &Tracker{tickers: tickers, prices: prices, table: table}
}

func (t *Tracker) List() ([]types.TrackedCoin, error) {
	return t.table.Load()
}

// Register starts tracking coin with the current price as baseline.
func (t *Tracker) Register(ctx context.Context, coin string, threshold float64) (types.TrackedCoin, error) {
	coin = types.NormalizeTicker(coin)
	if err := validThreshold(threshold); err != nil {
		return types.TrackedCoin{}, err
	}

	tickers, err := t.tickers.Tickers(ctx)
	if err != nil {
		return types.TrackedCoin{}, errors.Wrap(err, "could not list tradable coins")
	}
	i := sort.SearchStrings(tickers, coin)
	if coin == "" || i == len(tickers) || tickers[i] != coin {
		return types.TrackedCoin{}, errors.Wrapf(ErrUnknownTicker, "coin %s", coin)
	}

	trackedMutex.Lock()
	defer trackedMutex.Unlock()

	coins, err := t.table.Load()
	if err != nil {
		return types.TrackedCoin{}, err
	}
	for _, c := range coins {
		if c.Coin == coin {
			return types.TrackedCoin{}, errors.Wrapf(ErrAlreadyTracked, "coin %s", coin)
		}
	}

	price, err := t.prices.Price(ctx, coin)
	if err != nil {
		return types.TrackedCoin{}, err
	}
	if price <= 0 {
		return types.TrackedCoin{}, errors.Errorf("refusing baseline price %f for %s", price, coin)
	}

	tc := types.TrackedCoin{Coin: coin, Threshold: threshold, BaselinePrice: price}
	coins = append(coins, tc)
	if err := t.table.Save(coins); err != nil {
		return types.TrackedCoin{}, err
	}
	metrics.App.TrackedCoins.Set(float64(len(coins)))

	log.Infof("Tracking %s from %f with threshold %.2f%%", coin, price, threshold)
	return tc, nil
}

// UpdateThreshold keeps the baseline and replaces the threshold.
func (t *Tracker) UpdateThreshold(coin string, threshold float64) error {
	if err := validThreshold(threshold); err != nil {
		return err
	}
	return t.modify(coin, func(coins []types.TrackedCoin, i int) []types.TrackedCoin {
		coins[i].Threshold = threshold
		return coins
	})
}

func (t *Tracker) Remove(coin string) error {
	return t.modify(coin, func(coins []types.TrackedCoin, i int) []types.TrackedCoin {
		return append(coins[:i], coins[i+1:]...)
	})
}

func (t *Tracker) modify(coin string, fn func([]types.TrackedCoin, int) []types.TrackedCoin) error {
	coin = types.NormalizeTicker(coin)

	trackedMutex.Lock()
	defer trackedMutex.Unlock()

	coins, err := t.table.Load()
	if err != nil {
		return err
	}
	for i, c := range coins {
		if c.Coin == coin {
			coins = fn(coins, i)
			if err := t.table.Save(coins); err != nil {
				return err
			}
			metrics.App.TrackedCoins.Set(float64(len(coins)))
			return nil
		}
	}
	return errors.Wrapf(store.ErrNotFound, "coin %s is not tracked", coin)
}

func validThreshold(threshold float64) error {
	if math.IsNaN(threshold) || threshold < MinThreshold {
		return ErrInvalidThreshold
	}
	return nil
}
