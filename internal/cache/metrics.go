package cache

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	hits   *prometheus.CounterVec
	misses *prometheus.CounterVec
	errors *prometheus.CounterVec
}

var metricsSingleton = sync.OnceValue(func() *metrics {
	return &metrics{
		hits: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "entity_cache",
			Name:      "hits_total",
			Help:      "Entity cache lookups answered from Redis.",
		}, []string{"region"}),
		misses: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "entity_cache",
			Name:      "misses_total",
			Help:      "Entity cache lookups that went to the database.",
		}, []string{"region"}),
		errors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "entity_cache",
			Name:      "errors_total",
			Help:      "Redis failures, by operation. Failed reads count as misses.",
		}, []string{"op"}),
	}
})
