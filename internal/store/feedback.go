package store

import (
	"strconv"

	"easy2trade/internal/types"

	"github.com/pkg/errors"
)

var feedbackHeader = []string{"coin", "liked"}

// FeedbackStore persists one (coin, score) pair per coin in feedback.csv.
type FeedbackStore struct {
	path string
}

func NewFeedbackStore(path string) *FeedbackStore {
	return &FeedbackStore{path: path}
}

func (s *FeedbackStore) Path() string {
	return s.path
}

// Load returns all entries. A missing file means nobody rated anything yet.
func (s *FeedbackStore) Load() ([]types.FeedbackEntry, error) {
	header, records, err := readTable(s.path)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	cols := indexColumns(header)
	seen := make(map[string]int)
	var entries []types.FeedbackEntry
	for _, rec := range records {
		coin := types.NormalizeTicker(cols.get(rec, "coin"))
		score, ok := cols.int(rec, "liked")
		if coin == "" || !ok {
			continue
		}
		// later rows win, keeping one entry per coin
		if i, dup := seen[coin]; dup {
			entries[i].Score = score
			continue
		}
		seen[coin] = len(entries)
		entries = append(entries, types.FeedbackEntry{Coin: coin, Score: score})
	}
	return entries, nil
}

func (s *FeedbackStore) Save(entries []types.FeedbackEntry) error {
	records := make([][]string, 0, len(entries))
	for _, e := range entries {
		records = append(records, []string{e.Coin, strconv.Itoa(e.Score)})
	}
	return errors.Wrap(writeTable(s.path, feedbackHeader, records), "could not save feedback")
}

// Get returns the entry for coin, if any.
func (s *FeedbackStore) Get(coin string) (types.FeedbackEntry, bool, error) {
	entries, err := s.Load()
	if err != nil {
		return types.FeedbackEntry{}, false, err
	}
	coin = types.NormalizeTicker(coin)
	for _, e := range entries {
		if e.Coin == coin {
			return e, true, nil
		}
	}
	return types.FeedbackEntry{}, false, nil
}

// Put inserts or updates the score of coin and rewrites the file. It reports
// whether a new entry was created.
func (s *FeedbackStore) Put(coin string, score int) (bool, error) {
	entries, err := s.Load()
	if err != nil {
		return false, err
	}

	coin = types.NormalizeTicker(coin)
	inserted := true
	for i := range entries {
		if entries[i].Coin == coin {
			entries[i].Score = score
			inserted = false
			break
		}
	}
	if inserted {
		entries = append(entries, types.FeedbackEntry{Coin: coin, Score: score})
	}

	if err := s.Save(entries); err != nil {
		return false, err
	}
	return inserted, nil
}

// Remove deletes the entry for coin.
func (s *FeedbackStore) Remove(coin string) error {
	entries, err := s.Load()
	if err != nil {
		return err
	}

	coin = types.NormalizeTicker(coin)
	kept := entries[:0]
	found := false
	for _, e := range entries {
		if e.Coin == coin {
			found = true
			continue
		}
		kept = append(kept, e)
	}
	if !found {
		return errors.Wrapf(ErrNotFound, "coin %s has no feedback", coin)
	}
	return s.Save(kept)
}
