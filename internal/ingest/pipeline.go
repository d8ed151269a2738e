// Package ingest builds the feature table from exchange history.
package ingest

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"easy2trade/internal/store"
	"easy2trade/internal/types"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Symbols are the pairs the ingestion pass collects.
var Symbols = []string{
	"BTCUSDT", "ETHUSDT", "ADAUSDT", "SOLUSDT", "XRPUSDT", "MATICUSDT",
	"DOGEUSDT", "SHIBUSDT", "ARBUSDT", "OPUSDT", "AVAXUSDT", "ATOMUSDT",
	"DOTUSDT", "LINKUSDT", "LTCUSDT", "BNBUSDT", "UNIUSDT", "AAVEUSDT",
	"SANDUSDT", "MANAUSDT", "AXSUSDT", "FTMUSDT", "NEARUSDT", "ALGOUSDT",
	"GRTUSDT", "EGLDUSDT", "XTZUSDT", "APEUSDT", "FILUSDT", "RUNEUSDT",
}

const (
	Interval = "1d"
	Lookback = 365 * 24 * time.Hour
)

type History interface {
	KlinesSince(ctx context.Context, ticker, interval string, start time.Time) ([]types.Candle, error)
}

type Pipeline struct {
	history   History
	dataDir   string
	processed string
	now       func() time.Time
}

// NewPipeline writes one file per symbol into dataDir and combines them into
// processed.
func NewPipeline(history History, dataDir, processed string) *Pipeline {
	return &Pipeline{history: history, dataDir: dataDir, processed: processed, now: time.Now}
}

type Report struct {
	Written []string         `json:"written"`
	Failed  map[string]error `json:"-"`
}

// FetchAll downloads and featurizes every symbol. A failing symbol is logged
// and skipped; the pass only errors when the context is cancelled.
func (p *Pipeline) FetchAll(ctx context.Context, symbols []string) (Report, error) {
	report := Report{Failed: make(map[string]error)}
	start := p.now().Add(-Lookback)

	for _, symbol := range symbols {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		path, err := p.fetchOne(ctx, symbol, start)
		if err != nil {
			log.Warnf("Failed to fetch data for %s: %v", symbol, err)
			report.Failed[symbol] = err
			continue
		}
		log.Infof("Data for %s saved to %s", symbol, path)
		report.Written = append(report.Written, path)
	}
	return report, nil
}

func (p *Pipeline) fetchOne(ctx context.Context, symbol string, start time.Time) (string, error) {
	candles, err := p.history.KlinesSince(ctx, symbol, Interval, start)
	if err != nil {
		return "", err
	}

	rows := ComputeFeatures(symbol, candles)
	Categorize(rows)

	path := filepath.Join(p.dataDir, strings.ToUpper(symbol)+".csv")
	if err := store.NewFeatureStore(path).Save(rows); err != nil {
		return "", err
	}
	return path, nil
}

// Combine concatenates the per-symbol files into the processed table. The
// coin comes from the file name and every score starts at 0.
func (p *Pipeline) Combine() (int, error) {
	entries, err := os.ReadDir(p.dataDir)
	if err != nil {
		return 0, errors.Wrapf(err, "could not list %s", p.dataDir)
	}

	processed, _ := filepath.Abs(p.processed)
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".csv") {
			continue
		}
		if abs, _ := filepath.Abs(filepath.Join(p.dataDir, e.Name())); abs == processed {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	if len(names) == 0 {
		return 0, errors.Wrapf(store.ErrNotFound, "no market data files in %s", p.dataDir)
	}

	var combined []types.FeatureRow
	for _, name := range names {
		rows, err := store.NewFeatureStore(filepath.Join(p.dataDir, name)).Load()
		if err != nil {
			log.Warnf("Skipping %s: %v", name, err)
			continue
		}
		coin := types.NormalizeTicker(strings.TrimSuffix(name, ".csv"))
		for i := range rows {
			rows[i].Coin = coin
			rows[i].Score = 0
		}
		combined = append(combined, rows...)
	}

	if err := store.NewFeatureStore(p.processed).Save(combined); err != nil {
		return 0, err
	}
	log.Infof("Combined %d files into %s (%d rows)", len(names), p.processed, len(combined))
	return len(combined), nil
}
