package ranker

import (
	"sync"

	"easy2trade/internal/metrics"
	"easy2trade/internal/types"

	"github.com/davecgh/go-spew/spew"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

type FeatureSource interface {
	Load() ([]types.FeatureRow, error)
}

type FeedbackSource interface {
	Load() ([]types.FeedbackEntry, error)
}

// Service trains against the persisted feature table and serves
// recommendations from the saved model.
type Service struct {
	features  FeatureSource
	feedback  FeedbackSource
	modelPath string

	mu    sync.Mutex
	model *Model
}

func NewService(features FeatureSource, feedback FeedbackSource, modelPath string) *Service {
	return &Service{features: features, feedback: feedback, modelPath: modelPath}
}

// Train fits a new model and replaces the saved one.
func (s *Service) Train() (*Model, error) {
	rows, err := s.features.Load()
	if err != nil {
		return nil, errors.Wrap(err, "could not load feature table")
	}

	m, err := Train(rows)
	if err != nil {
		return nil, err
	}
	if err := m.Save(s.modelPath); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.model = m
	s.mu.Unlock()

	metrics.App.ModelAccuracy.Observe(m.Accuracy)
	log.Infof("Model trained on %d rows, accuracy %.2f%%, saved to %s", m.TrainRows, m.Accuracy*100, s.modelPath)
	if log.IsLevelEnabled(log.DebugLevel) {
		log.Debug(spew.Sdump(m))
	}
	return m, nil
}

// Model returns the current model, loading it from disk on first use.
func (s *Service) Model() (*Model, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.model != nil {
		return s.model, nil
	}
	m, err := LoadModel(s.modelPath)
	if err != nil {
		return nil, err
	}
	s.model = m
	return m, nil
}

// Recommend proposes coins for the liked coins in the feedback table. Coins
// that already have feedback are never proposed.
func (s *Service) Recommend() ([]Recommendation, error) {
	m, err := s.Model()
	if err != nil {
		return nil, err
	}
	rows, err := s.features.Load()
	if err != nil {
		return nil, errors.Wrap(err, "could not load feature table")
	}
	entries, err := s.feedback.Load()
	if err != nil {
		return nil, errors.Wrap(err, "could not load feedback")
	}

	rated := make(map[string]bool, len(entries))
	var liked []string
	for _, e := range entries {
		rated[e.Coin] = true
		if e.Score > 0 {
			liked = append(liked, e.Coin)
		}
	}

	candidates := rows[:0:0]
	for _, r := range rows {
		if r.Score == 0 && rated[types.NormalizeTicker(r.Coin)] {
			continue
		}
		candidates = append(candidates, r)
	}

	recs := Recommend(m, candidates, liked)
	metrics.App.RecommendationsMade.Inc()
	log.Debugf("recommendations for %v: %v", liked, recs)
	return recs, nil
}
