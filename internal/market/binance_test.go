package market

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"easy2trade/internal/cache"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T, hits *int32) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v3/klines", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)
		if r.URL.Query().Get("symbol") != "BTCUSDT" {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"code":-1121,"msg":"Invalid symbol."}`)
			return
		}
		fmt.Fprint(w, `[
			[1704067200000,"42000.00","43000.00","41000.00","42500.50","120.5",1704153599999,"0",10,"0","0","0"],
			[1704153600000,"42500.50","44000.00","42000.00","43900.00","99.25",1704239999999,"0",10,"0","0","0"]
		]`)
	})
	mux.HandleFunc("/api/v3/ticker/price", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)
		switch r.URL.Query().Get("symbol") {
		case "SOLUSDT":
			fmt.Fprint(w, `{"symbol":"SOLUSDT","price":"106.00000000"}`)
		case "BADUSDT":
			fmt.Fprint(w, `{"symbol":"BADUSDT","price":"n/a"}`)
		default:
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"code":-1121,"msg":"Invalid symbol."}`)
		}
	})
	mux.HandleFunc("/api/v3/exchangeInfo", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)
		fmt.Fprint(w, `{"symbols":[
			{"symbol":"ETHUSDT","quoteAsset":"USDT"},
			{"symbol":"BTCUSDT","quoteAsset":"USDT"},
			{"symbol":"ETHBTC","quoteAsset":"BTC"},
			{"symbol":"BTCUSDT","quoteAsset":"USDT"}
		]}`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestKlines(t *testing.T) {
	var hits int32
	srv := newServer(t, &hits)
	c := NewClient(srv.URL, cache.NewMemory(), time.Minute)

	candles, err := c.Klines(context.Background(), "btc", "1d", 100)
	require.NoError(t, err)
	require.Len(t, candles, 2)

	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), candles[0].OpenTime)
	assert.Equal(t, 42000.0, candles[0].Open)
	assert.Equal(t, 42500.5, candles[0].Close)
	assert.Equal(t, 120.5, candles[0].Volume)
	assert.Equal(t, 43900.0, candles[1].Close)

	_, err = c.Klines(context.Background(), "BTCUSDT", "1d", 100)
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits), "second call is served from cache")
}

func TestKlinesFailures(t *testing.T) {
	var hits int32
	srv := newServer(t, &hits)
	c := NewClient(srv.URL, nil, 0)

	_, err := c.Klines(context.Background(), "NOPE", "1d", 100)
	assert.ErrorIs(t, err, ErrDataUnavailable)
	assert.Contains(t, err.Error(), "Invalid symbol.")

	_, err = c.Klines(context.Background(), "BTC", "3d", 100)
	assert.ErrorIs(t, err, ErrDataUnavailable)
}

func TestPrice(t *testing.T) {
	var hits int32
	srv := newServer(t, &hits)
	c := NewClient(srv.URL, nil, 0)

	p, err := c.Price(context.Background(), "sol")
	require.NoError(t, err)
	assert.Equal(t, 106.0, p)

	_, err = c.Price(context.Background(), "BAD")
	assert.ErrorIs(t, err, ErrDataUnavailable)

	_, err = c.Price(context.Background(), "XYZ")
	assert.ErrorIs(t, err, ErrDataUnavailable)
}

func TestPriceSkipsCache(t *testing.T) {
	var hits int32
	srv := newServer(t, &hits)
	mem := cache.NewMemory()
	mem.Set(context.Background(), "price:SOLUSDT", []byte("1"), time.Hour)
	c := NewClient(srv.URL, mem, time.Hour)

	for i := 0; i < 2; i++ {
		p, err := c.Price(context.Background(), "SOL")
		require.NoError(t, err)
		assert.Equal(t, 106.0, p)
	}
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits), "every price is a live quote")
}

func TestPriceUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewClient(url, nil, 0).Price(context.Background(), "SOL")
	assert.ErrorIs(t, err, ErrDataUnavailable)
}

func TestTickers(t *testing.T) {
	var hits int32
	srv := newServer(t, &hits)
	c := NewClient(srv.URL, nil, 0)

	tickers, err := c.Tickers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"BTC", "ETH"}, tickers)
}

func TestKlinesSincePages(t *testing.T) {
	start := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		from, _ := strconv.ParseInt(r.URL.Query().Get("startTime"), 10, 64)
		count := maxKlinesPerRequest
		if n == 2 {
			count = 3
		}
		fmt.Fprint(w, "[")
		for i := 0; i < count; i++ {
			if i > 0 {
				fmt.Fprint(w, ",")
			}
			fmt.Fprintf(w, `[%d,"1","2","0.5","1.5","10"]`, from+int64(i)*86400000)
		}
		fmt.Fprint(w, "]")
	}))
	defer srv.Close()

	candles, err := NewClient(srv.URL, nil, 0).KlinesSince(context.Background(), "BTC", "1d", start)
	require.NoError(t, err)
	assert.Len(t, candles, maxKlinesPerRequest+3)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	assert.Equal(t, start, candles[0].OpenTime)
}
