package notify

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	subscribers prometheus.Gauge
	events      *prometheus.CounterVec
	dropped     prometheus.Counter
}

var metricsSingleton = sync.OnceValue(func() *metrics {
	return &metrics{
		subscribers: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: "notify",
			Name:      "subscribers",
			Help:      "Connected event stream subscribers.",
		}),
		events: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "notify",
			Name:      "events_total",
			Help:      "Events delivered to local subscribers, by topic.",
		}, []string{"topic"}),
		dropped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "notify",
			Name:      "dropped_subscribers_total",
			Help:      "Subscribers disconnected because their queue was full.",
		}),
	}
})
