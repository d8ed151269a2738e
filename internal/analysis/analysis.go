// Package analysis fetches recent candles for a coin and starts a new
// feedback session for it.
package analysis

import (
	"context"

	"easy2trade/internal/market"
	"easy2trade/internal/session"
	"easy2trade/internal/types"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// MaxLimit is the largest candle count a single request may ask for.
const MaxLimit = 1000

var ErrInvalidRequest = errors.New("invalid analysis request")

type KlineSource interface {
	Klines(ctx context.Context, ticker, interval string, limit int) ([]types.Candle, error)
}

type ScoreSource interface {
	Get(coin string) (types.FeedbackEntry, bool, error)
}

// Request selects the candles to analyze. Threshold is compared against
// the signed change, so zero matches any non-negative move.
type Request struct {
	Coin      string  `json:"coin"`
	Interval  string  `json:"interval"`
	Limit     int     `json:"limit"`
	Threshold float64 `json:"threshold"`
}

type Report struct {
	Coin           string         `json:"coin"`
	Interval       string         `json:"interval"`
	Candles        []types.Candle `json:"candles"`
	FirstOpen      float64        `json:"first_open"`
	LastClose      float64        `json:"last_close"`
	PctChange      float64        `json:"pct_change"`
	Threshold      float64        `json:"threshold"`
	MeetsThreshold bool           `json:"meets_threshold"`
	StartScore     int            `json:"start_score"`
}

type Analyzer struct {
	klines       KlineSource
	scores       ScoreSource
	defaultLimit int
}

func NewAnalyzer(klines KlineSource, scores ScoreSource, defaultLimit int) *Analyzer {
	if defaultLimit <= 0 || defaultLimit > MaxLimit {
		defaultLimit = 100
	}
	return &Analyzer{klines: klines, scores: scores, defaultLimit: defaultLimit}
}

// Analyze returns the report for req and the session state that follows it.
// On error the incoming state is returned unchanged.
func (a *Analyzer) Analyze(ctx context.Context, st session.State, req Request) (session.State, Report, error) {
	coin := types.NormalizeTicker(req.Coin)
	if coin == "" {
		return st, Report{}, errors.Wrap(ErrInvalidRequest, "coin is required")
	}
	interval := req.Interval
	if interval == "" {
		interval = "1d"
	}
	if !market.ValidInterval(interval) {
		return st, Report{}, errors.Wrapf(ErrInvalidRequest, "unsupported interval %q", interval)
	}
	limit := req.Limit
	if limit == 0 {
		limit = a.defaultLimit
	}
	if limit < 1 || limit > MaxLimit {
		return st, Report{}, errors.Wrapf(ErrInvalidRequest, "limit must be between 1 and %d", MaxLimit)
	}

	candles, err := a.klines.Klines(ctx, coin, interval, limit)
	if err != nil {
		return st, Report{}, err
	}
	if len(candles) == 0 {
		return st, Report{}, errors.Wrapf(market.ErrDataUnavailable, "no candles for %s", coin)
	}

	entry, found, err := a.scores.Get(coin)
	if err != nil {
		return st, Report{}, errors.Wrap(err, "could not read feedback score")
	}
	score := 0
	if found {
		score = entry.Score
	}

	first, last := candles[0], candles[len(candles)-1]
	report := Report{
		Coin:       coin,
		Interval:   interval,
		Candles:    candles,
		FirstOpen:  first.Open,
		LastClose:  last.Close,
		Threshold:  req.Threshold,
		StartScore: score,
	}
	if first.Open != 0 {
		report.PctChange = (last.Close - first.Open) / first.Open * 100
		report.MeetsThreshold = report.PctChange >= req.Threshold
	}

	log.Debugf("Analyzed %s over %d %s candles: %.2f%% (score %d)", coin, len(candles), interval, report.PctChange, score)
	return session.Begin(coin, score), report, nil
}
