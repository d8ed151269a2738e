package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	plain   map[string]float64
	labeled map[string]map[string]map[string]float64
}

func newMemStore() *memStore {
	return &memStore{
		plain:   make(map[string]float64),
		labeled: make(map[string]map[string]map[string]float64),
	}
}

func (s *memStore) SaveMetric(name, k, v string, value float64) error {
	if k == "" && v == "" {
		s.plain[name] = value
		return nil
	}
	if s.labeled[name] == nil {
		s.labeled[name] = make(map[string]map[string]float64)
	}
	if s.labeled[name][k] == nil {
		s.labeled[name][k] = make(map[string]float64)
	}
	s.labeled[name][k][v] = value
	return nil
}

func (s *memStore) GetMetric(name string) (float64, error) {
	return s.plain[name], nil
}

func (s *memStore) GetMetricsWithLabels(name string) (map[string]map[string]float64, error) {
	return s.labeled[name], nil
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	m := New()
	m.PriceFetchFailures.Add(3)
	m.RecommendationsMade.Inc()
	m.TrackedCoins.Set(2)
	m.FeedbackActions.WithLabelValues("like", "applied").Add(4)
	m.Notifications.WithLabelValues("email", "sent").Inc()

	s := newMemStore()
	m.Save(s)

	assert.Equal(t, 3.0, s.plain["price_fetch_failures"])
	assert.Equal(t, 4.0, s.labeled["feedback_actions"]["like"]["applied"])

	restored := New()
	restored.Load(s)

	assert.Equal(t, 3.0, Value(restored.PriceFetchFailures))
	assert.Equal(t, 1.0, Value(restored.RecommendationsMade))
	assert.Equal(t, 2.0, Value(restored.TrackedCoins))
	assert.Equal(t, 4.0, Value(restored.FeedbackActions.WithLabelValues("like", "applied")))
	assert.Equal(t, 1.0, Value(restored.Notifications.WithLabelValues("email", "sent")))
}

func TestMustRegisterOnFreshRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New()
	require.NotPanics(t, func() { m.MustRegister(reg) })

	m.RecommendationsMade.Inc()
	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}
