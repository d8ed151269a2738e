// Package coininfo resolves tickers to display names through CoinPaprika.
package coininfo

import (
	"net/http"
	"strings"
	"sync"

	"easy2trade/internal/types"

	"github.com/coinpaprika/coinpaprika-api-go-client/v2/coinpaprika"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

type Info struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Symbol string `json:"symbol"`
}

// URL links to the coin page on coinpaprika.com.
func (i Info) URL() string {
	if i.ID == "" {
		return ""
	}
	return "https://coinpaprika.com/coin/" + i.ID
}

type Lookup struct {
	client *coinpaprika.Client

	mu    sync.RWMutex
	known map[string]Info
}

// New returns a lookup using apiKey when set. httpClient may be nil.
func New(httpClient *http.Client, apiKey string) *Lookup {
	var client *coinpaprika.Client
	if apiKey != "" {
		client = coinpaprika.NewClient(httpClient, coinpaprika.WithAPIKey(apiKey))
	} else {
		client = coinpaprika.NewClient(httpClient)
	}
	return &Lookup{client: client, known: make(map[string]Info)}
}

// Find returns the best match for ticker. Results are remembered for the
// life of the process.
func (l *Lookup) Find(ticker string) (Info, error) {
	ticker = types.NormalizeTicker(ticker)
	if ticker == "" {
		return Info{}, errors.New("empty ticker")
	}

	l.mu.RLock()
	info, ok := l.known[ticker]
	l.mu.RUnlock()
	if ok {
		return info, nil
	}

	coin, err := l.search(ticker)
	if err != nil {
		return Info{}, err
	}
	info = Info{Symbol: ticker}
	if coin.ID != nil {
		info.ID = *coin.ID
	}
	if coin.Name != nil {
		info.Name = *coin.Name
	}
	if coin.Symbol != nil {
		info.Symbol = *coin.Symbol
	}

	l.mu.Lock()
	l.known[ticker] = info
	l.mu.Unlock()

	log.Debugf("Best match for '%s' is: %s", ticker, info.ID)
	return info, nil
}

// search prefers an exact symbol match and falls back to a name search.
func (l *Lookup) search(query string) (*coinpaprika.Coin, error) {
	searchOpts := &coinpaprika.SearchOptions{
		Query:      query,
		Categories: "currencies",
		Modifier:   "symbol_search",
	}
	result, err := l.client.Search.Search(searchOpts)
	if err != nil || len(result.Currencies) == 0 {
		log.Debugf("No results for symbol search, trying name search for '%s'", query)
		searchOpts = &coinpaprika.SearchOptions{Query: query, Categories: "currencies"}
		result, err = l.client.Search.Search(searchOpts)
		if err != nil || len(result.Currencies) == 0 {
			return nil, errors.Errorf("unknown coin: %s", query)
		}
	}

	for _, c := range result.Currencies {
		if c.Symbol != nil && strings.EqualFold(*c.Symbol, query) {
			return c, nil
		}
	}
	return result.Currencies[0], nil
}
