package cache

import (
	"net/http"
	"sync/atomic"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/person-registry/internal/pkg/logger"
)

// StatsSource reports cumulative cache counters.
type StatsSource interface {
	Stats() Stats
}

// Toggle gates per-request stats logging. The zero value is off.
type Toggle struct {
	enabled atomic.Bool
}

// NewToggle creates a toggle with the given initial state.
func NewToggle(enabled bool) *Toggle {
	t := &Toggle{}
	t.enabled.Store(enabled)
	return t
}

// Enabled reports the current state.
func (t *Toggle) Enabled() bool { return t.enabled.Load() }

// Set changes the state.
func (t *Toggle) Set(enabled bool) { t.enabled.Store(enabled) }

// StatsLogging logs the hit/miss delta observed across each request while
// toggle is on. Counters are global, so concurrent requests share deltas.
// It never changes the response.
func StatsLogging(src StatsSource, toggle *Toggle) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !toggle.Enabled() {
				next.ServeHTTP(w, r)
				return
			}
			before := src.Stats()
			next.ServeHTTP(w, r)
			after := src.Stats()

			route := r.URL.Path
			if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
				route = rc.RoutePattern()
			}
			logger.Info("cache stats",
				"method", r.Method,
				"route", route,
				"hits_delta", after.Hits-before.Hits,
				"misses_delta", after.Misses-before.Misses,
				"hits_total", after.Hits,
				"misses_total", after.Misses,
			)
		})
	}
}
