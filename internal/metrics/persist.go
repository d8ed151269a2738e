package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
)

// Store is where counter values survive restarts.
type Store interface {
	SaveMetric(name, labelKey, labelValue string, value float64) error
	GetMetric(name string) (float64, error)
	GetMetricsWithLabels(name string) (map[string]map[string]float64, error)
}

// Load adds the persisted values onto the current collectors. It is meant to
// run once at startup, before anything increments them.
func (m *AppMetrics) Load(s Store) {
	m.Mutex.Lock()
	defer m.Mutex.Unlock()

	for name, c := range m.plain() {
		v, err := s.GetMetric(name)
		if err != nil {
			log.Errorf("Failed to load metric %s: %v", name, err)
			continue
		}
		c.Add(v)
	}
	if v, err := s.GetMetric("tracked_coins"); err == nil {
		m.TrackedCoins.Set(v)
	}

	for name, vec := range m.labeled() {
		values, err := s.GetMetricsWithLabels(name)
		if err != nil {
			log.Errorf("Failed to load metric %s: %v", name, err)
			continue
		}
		for first, seconds := range values {
			for second, v := range seconds {
				vec.WithLabelValues(first, second).Add(v)
			}
		}
	}

	log.Debug("Metrics loaded from database.")
}

// Save writes every counter and the tracked coins gauge.
func (m *AppMetrics) Save(s Store) {
	m.Mutex.Lock()
	defer m.Mutex.Unlock()

	for name, c := range m.plain() {
		if err := s.SaveMetric(name, "", "", Value(c)); err != nil {
			log.Errorf("Failed to save metric %s: %v", name, err)
		}
	}
	if err := s.SaveMetric("tracked_coins", "", "", Value(m.TrackedCoins)); err != nil {
		log.Errorf("Failed to save metric tracked_coins: %v", err)
	}

	labels := map[string][2]string{
		"feedback_actions": {"action", "outcome"},
		"notifications":    {"channel", "status"},
	}
	for name, vec := range m.labeled() {
		l := labels[name]
		for k, v := range labeledValues(vec, l[0], l[1]) {
			if err := s.SaveMetric(name, k[0], k[1], v); err != nil {
				log.Errorf("Failed to save metric %s: %v", name, err)
			}
		}
	}

	log.Debug("Metrics saved to database.")
}

func (m *AppMetrics) plain() map[string]prometheus.Counter {
	return map[string]prometheus.Counter{
		"price_fetch_failures": m.PriceFetchFailures,
		"recommendations":      m.RecommendationsMade,
		"feature_rows_synced":  m.FeatureRowsSynced,
	}
}

func (m *AppMetrics) labeled() map[string]*prometheus.CounterVec {
	return map[string]*prometheus.CounterVec{
		"feedback_actions": m.FeedbackActions,
		"notifications":    m.Notifications,
	}
}
