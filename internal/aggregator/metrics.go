package aggregator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/vfactory/vfactory/pkg/topics"
)

// Metrics instruments the aggregator's event pipeline.
type Metrics struct {
	EventsTotal      *prometheus.CounterVec
	CommandsRelayed  prometheus.Counter
	ViewersConnected prometheus.Gauge
	ViewersPruned    prometheus.Counter
}

// NewMetrics registers the aggregator collectors with the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		EventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vfactory",
			Subsystem: "aggregator",
			Name:      "events_total",
			Help:      "Bus events processed, by topic category.",
		}, []string{"category"}),
		CommandsRelayed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "vfactory",
			Subsystem: "aggregator",
			Name:      "viewer_commands_total",
			Help:      "Commands relayed to the bus on behalf of viewers.",
		}),
		ViewersConnected: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "vfactory",
			Subsystem: "aggregator",
			Name:      "viewers_connected",
			Help:      "Currently connected viewers.",
		}),
		ViewersPruned: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "vfactory",
			Subsystem: "aggregator",
			Name:      "viewers_pruned_total",
			Help:      "Viewers dropped after a failed or stalled send.",
		}),
	}
}

var knownCategories = map[string]bool{
	topics.CategoryTelemetry: true,
	topics.CategoryAlarms:    true,
	topics.CategoryState:     true,
	topics.CategoryStatus:    true,
	topics.CategoryCommands:  true,
}

// categoryLabel folds unknown categories into "other" to keep the label
// cardinality bounded.
func categoryLabel(category string) string {
	if knownCategories[category] {
		return category
	}
	return topics.CategoryOther
}
