package feedback

import (
	"easy2trade/internal/metrics"
	"easy2trade/internal/types"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

type SyncReport struct {
	// Updated counts feature rows whose score changed.
	Updated int `json:"updated"`
	// Reset counts rows of coins without feedback that went back to 0.
	Reset int `json:"reset"`
	// Unmatched lists feedback coins with no feature row.
	Unmatched []string `json:"unmatched,omitempty"`
}

// Synchronize copies every feedback score onto the feature rows of the same
// coin. Rows of coins nobody rated are set to 0, the unrated marker, so a
// label written into the feature table by anything other than the feedback
// table is overwritten. Entries without rows are reported, never turned into
// rows. rows is not modified.
func Synchronize(entries []types.FeedbackEntry, rows []types.FeatureRow) ([]types.FeatureRow, SyncReport) {
	scores := make(map[string]int, len(entries))
	for _, e := range entries {
		scores[types.NormalizeTicker(e.Coin)] = e.Score
	}

	var report SyncReport
	present := make(map[string]bool)
	out := make([]types.FeatureRow, len(rows))
	for i, row := range rows {
		coin := types.NormalizeTicker(row.Coin)
		present[coin] = true

		score, rated := scores[coin]
		if !rated {
			score = 0
		}
		if row.Score != score {
			if rated {
				report.Updated++
			} else {
				report.Reset++
			}
		}
		row.Coin = coin
		row.Score = score
		out[i] = row
	}

	for _, e := range entries {
		coin := types.NormalizeTicker(e.Coin)
		if !present[coin] {
			report.Unmatched = append(report.Unmatched, coin)
		}
	}
	return out, report
}

type FeedbackSource interface {
	Load() ([]types.FeedbackEntry, error)
}

type FeatureTable interface {
	Load() ([]types.FeatureRow, error)
	Save([]types.FeatureRow) error
}

// Synchronizer runs Synchronize against the persisted tables.
type Synchronizer struct {
	feedback FeedbackSource
	features FeatureTable
}

func NewSynchronizer(feedback FeedbackSource, features FeatureTable) *Synchronizer {
	return &Synchronizer{feedback: feedback, features: features}
}

// Run fails without touching the feature file when it does not exist yet.
func (s *Synchronizer) Run() (SyncReport, error) {
	entries, err := s.feedback.Load()
	if err != nil {
		return SyncReport{}, errors.Wrap(err, "could not load feedback")
	}
	rows, err := s.features.Load()
	if err != nil {
		return SyncReport{}, errors.Wrap(err, "could not load feature table")
	}

	synced, report := Synchronize(entries, rows)
	if err := s.features.Save(synced); err != nil {
		return report, errors.Wrap(err, "could not save feature table")
	}

	metrics.App.FeatureRowsSynced.Add(float64(report.Updated + report.Reset))
	for _, coin := range report.Unmatched {
		log.Debugf("feedback for %s has no feature rows", coin)
	}
	log.Infof("Synchronized %d feature rows: %d updated, %d reset", len(synced), report.Updated, report.Reset)
	return report, nil
}
