package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	log "github.com/sirupsen/logrus"
)

type AppMetrics struct {
	FeedbackActions     *prometheus.CounterVec
	Notifications       *prometheus.CounterVec
	PriceFetchFailures  prometheus.Counter
	RecommendationsMade prometheus.Counter
	FeatureRowsSynced   prometheus.Counter
	TrackedCoins        prometheus.Gauge
	ModelAccuracy       prometheus.Histogram
	Mutex               sync.Mutex
}

// App is the process-wide set of collectors, registered with the default
// prometheus registry.
var App = New()

func init() {
	App.MustRegister(prometheus.DefaultRegisterer)
}

func New() *AppMetrics {
	return &AppMetrics{
		FeedbackActions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "easy2trade",
				Subsystem: "feedback",
				Name:      "actions_total",
				Help:      "Like/dislike clicks by action and outcome",
			},
			[]string{"action", "outcome"},
		),
		Notifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "easy2trade",
				Subsystem: "monitor",
				Name:      "notifications_total",
				Help:      "Price alerts dispatched by channel and status",
			},
			[]string{"channel", "status"},
		),
		PriceFetchFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "easy2trade",
			Subsystem: "monitor",
			Name:      "price_fetch_failures_total",
			Help:      "Tracked coins skipped because the price lookup failed",
		}),
		RecommendationsMade: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "easy2trade",
			Subsystem: "ranker",
			Name:      "recommendations_total",
			Help:      "The total number of recommendation lists produced",
		}),
		FeatureRowsSynced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "easy2trade",
			Subsystem: "feedback",
			Name:      "feature_rows_synced_total",
			Help:      "Feature rows whose score was overwritten by a sync",
		}),
		TrackedCoins: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "easy2trade",
			Subsystem: "monitor",
			Name:      "tracked_coins",
			Help:      "The current number of coins waiting for a price alert",
		}),
		ModelAccuracy: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "easy2trade",
			Subsystem: "ranker",
			Name:      "model_accuracy",
			Help:      "Held-out accuracy of each trained model",
			Buckets:   prometheus.LinearBuckets(0.1, 0.1, 10),
		}),
	}
}

func (m *AppMetrics) MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(
		m.FeedbackActions,
		m.Notifications,
		m.PriceFetchFailures,
		m.RecommendationsMade,
		m.FeatureRowsSynced,
		m.TrackedCoins,
		m.ModelAccuracy,
	)
}

// Value reads the current value of a counter or gauge.
func Value(c prometheus.Collector) float64 {
	ch := make(chan prometheus.Metric, 1)
	c.Collect(ch)
	close(ch)

	m, ok := <-ch
	if !ok {
		return 0
	}
	pb := &dto.Metric{}
	if err := m.Write(pb); err != nil {
		log.Errorf("Failed to read metric value: %v", err)
		return 0
	}
	if pb.Counter != nil {
		return pb.Counter.GetValue()
	}
	if pb.Gauge != nil {
		return pb.Gauge.GetValue()
	}
	return 0
}

// labeledValues returns the value of every child of a two-label counter vec,
// keyed by its label values in declaration order.
func labeledValues(vec *prometheus.CounterVec, first, second string) map[[2]string]float64 {
	ch := make(chan prometheus.Metric)
	go func() {
		vec.Collect(ch)
		close(ch)
	}()

	out := make(map[[2]string]float64)
	for m := range ch {
		pb := &dto.Metric{}
		if err := m.Write(pb); err != nil {
			log.Errorf("Failed to read labeled metric: %v", err)
			continue
		}
		var k [2]string
		for _, l := range pb.Label {
			switch l.GetName() {
			case first:
				k[0] = l.GetValue()
			case second:
				k[1] = l.GetValue()
			}
		}
		out[k] = pb.Counter.GetValue()
	}
	return out
}
