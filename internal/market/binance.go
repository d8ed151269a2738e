// Package market talks to the Binance public REST API.
package market

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"easy2trade/internal/cache"
	"easy2trade/internal/types"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/vmihailenco/msgpack/v5"
)

// ErrDataUnavailable wraps every failure to obtain market data.
var ErrDataUnavailable = errors.New("market data unavailable")

// Intervals lists the kline interval codes the UI offers.
var Intervals = []string{"1m", "5m", "1h", "1d", "1w", "1M"}

const maxKlinesPerRequest = 1000

func ValidInterval(code string) bool {
	for _, i := range Intervals {
		if i == code {
			return true
		}
	}
	return false
}

type Client struct {
	baseURL string
	http    *http.Client
	cache   cache.Cache
	ttl     time.Duration
}

// NewClient returns a client for baseURL. Responses are kept in c for ttl;
// a zero ttl disables caching.
func NewClient(baseURL string, c cache.Cache, ttl time.Duration) *Client {
	if c == nil {
		c = cache.NewMemory()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 15 * time.Second},
		cache:   c,
		ttl:     ttl,
	}
}

// Klines returns the latest limit candles for ticker, oldest first.
func (c *Client) Klines(ctx context.Context, ticker, interval string, limit int) ([]types.Candle, error) {
	if !ValidInterval(interval) {
		return nil, errors.Wrapf(ErrDataUnavailable, "unsupported interval %q", interval)
	}
	symbol := types.Symbol(ticker)
	key := fmt.Sprintf("klines:%s:%s:%d", symbol, interval, limit)

	var candles []types.Candle
	if c.cached(ctx, key, &candles) {
		return candles, nil
	}

	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("interval", interval)
	q.Set("limit", strconv.Itoa(limit))

	candles, err := c.fetchKlines(ctx, q)
	if err != nil {
		return nil, err
	}
	if len(candles) == 0 {
		return nil, errors.Wrapf(ErrDataUnavailable, "no candles for %s", symbol)
	}
	c.store(ctx, key, candles)
	return candles, nil
}

// KlinesSince pages through the history of ticker from start until now.
func (c *Client) KlinesSince(ctx context.Context, ticker, interval string, start time.Time) ([]types.Candle, error) {
	if !ValidInterval(interval) {
		return nil, errors.Wrapf(ErrDataUnavailable, "unsupported interval %q", interval)
	}
	symbol := types.Symbol(ticker)

	var all []types.Candle
	from := start
	for {
		q := url.Values{}
		q.Set("symbol", symbol)
		q.Set("interval", interval)
		q.Set("startTime", strconv.FormatInt(from.UnixMilli(), 10))
		q.Set("limit", strconv.Itoa(maxKlinesPerRequest))

		page, err := c.fetchKlines(ctx, q)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if len(page) < maxKlinesPerRequest {
			break
		}
		from = page[len(page)-1].OpenTime.Add(time.Millisecond)
	}

	if len(all) == 0 {
		return nil, errors.Wrapf(ErrDataUnavailable, "no candles for %s since %s", symbol, start.Format(time.DateOnly))
	}
	return all, nil
}

// Price returns the last traded price of ticker in USDT. It always asks the
// exchange: alert baselines and checks must not see a cached quote.
func (c *Client) Price(ctx context.Context, ticker string) (float64, error) {
	symbol := types.Symbol(ticker)

	var resp struct {
		Symbol string `json:"symbol"`
		Price  string `json:"price"`
	}
	q := url.Values{}
	q.Set("symbol", symbol)
	if err := c.get(ctx, "/api/v3/ticker/price", q, &resp); err != nil {
		return 0, err
	}

	p, err := parseNumber(resp.Price)
	if err != nil {
		return 0, errors.Wrapf(ErrDataUnavailable, "bad price for %s: %v", symbol, err)
	}
	return p, nil
}

// Tickers returns every base asset quoted in USDT, sorted.
func (c *Client) Tickers(ctx context.Context) ([]string, error) {
	const key = "tickers"

	var tickers []string
	if c.cached(ctx, key, &tickers) {
		return tickers, nil
	}

	var info struct {
		Symbols []struct {
			Symbol     string `json:"symbol"`
			QuoteAsset string `json:"quoteAsset"`
		} `json:"symbols"`
	}
	if err := c.get(ctx, "/api/v3/exchangeInfo", nil, &info); err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	for _, s := range info.Symbols {
		if !strings.HasSuffix(s.Symbol, types.QuoteAsset) {
			continue
		}
		t := types.NormalizeTicker(s.Symbol)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		tickers = append(tickers, t)
	}
	sort.Strings(tickers)

	c.store(ctx, key, tickers)
	return tickers, nil
}

func (c *Client) fetchKlines(ctx context.Context, q url.Values) ([]types.Candle, error) {
	var raw [][]json.RawMessage
	if err := c.get(ctx, "/api/v3/klines", q, &raw); err != nil {
		return nil, err
	}

	candles := make([]types.Candle, 0, len(raw))
	for _, r := range raw {
		k, err := parseKline(r)
		if err != nil {
			return nil, errors.Wrapf(ErrDataUnavailable, "bad kline for %s: %v", q.Get("symbol"), err)
		}
		candles = append(candles, k)
	}
	return candles, nil
}

// parseKline reads [openTime, "open", "high", "low", "close", "volume", ...].
func parseKline(r []json.RawMessage) (types.Candle, error) {
	if len(r) < 6 {
		return types.Candle{}, errors.Errorf("expected at least 6 fields, got %d", len(r))
	}

	var openTime int64
	if err := json.Unmarshal(r[0], &openTime); err != nil {
		return types.Candle{}, errors.Wrap(err, "open time")
	}

	var fields [5]float64
	for i := range fields {
		var s string
		if err := json.Unmarshal(r[i+1], &s); err != nil {
			return types.Candle{}, errors.Wrapf(err, "field %d", i+1)
		}
		v, err := parseNumber(s)
		if err != nil {
			return types.Candle{}, err
		}
		fields[i] = v
	}

	return types.Candle{
		OpenTime: time.UnixMilli(openTime).UTC(),
		Open:     fields[0],
		High:     fields[1],
		Low:      fields[2],
		Close:    fields[3],
		Volume:   fields[4],
	}, nil
}

func parseNumber(s string) (float64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, errors.Wrapf(err, "parse %q", s)
	}
	return d.InexactFloat64(), nil
}

func (c *Client) get(ctx context.Context, path string, q url.Values, out interface{}) error {
	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return errors.Wrapf(ErrDataUnavailable, "build request: %v", err)
	}

	log.Debugf("GET %s", u)
	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(ErrDataUnavailable, "request %s: %v", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Code int    `json:"code"`
			Msg  string `json:"msg"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		return errors.Wrapf(ErrDataUnavailable, "%s returned %d: %s", path, resp.StatusCode, apiErr.Msg)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrapf(ErrDataUnavailable, "decode %s: %v", path, err)
	}
	return nil
}

func (c *Client) cached(ctx context.Context, key string, out interface{}) bool {
	if c.ttl <= 0 {
		return false
	}
	data, ok := c.cache.Get(ctx, key)
	if !ok {
		return false
	}
	if err := msgpack.Unmarshal(data, out); err != nil {
		log.Warnf("dropping cached %s: %v", key, err)
		return false
	}
	return true
}

func (c *Client) store(ctx context.Context, key string, v interface{}) {
	if c.ttl <= 0 {
		return
	}
	data, err := msgpack.Marshal(v)
	if err != nil {
		log.Warnf("could not cache %s: %v", key, err)
		return
	}
	c.cache.Set(ctx, key, data, c.ttl)
}
