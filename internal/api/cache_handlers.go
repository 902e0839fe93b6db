package api

import (
	"net/http"
	"strconv"

	"github.com/ignite/person-registry/internal/pkg/httputil"
)

// CacheStats handles GET /api/cache/l2/stats.
func (h *Handlers) CacheStats(w http.ResponseWriter, r *http.Request) {
	httputil.OK(w, h.stats.Stats())
}

// CacheLogging handles GET /api/cache/l2/logging.
func (h *Handlers) CacheLogging(w http.ResponseWriter, r *http.Request) {
	httputil.OK(w, map[string]bool{"enabled": h.cacheLogging.Enabled()})
}

// SetCacheLogging handles PUT /api/cache/l2/logging?enabled=true|false.
func (h *Handlers) SetCacheLogging(w http.ResponseWriter, r *http.Request) {
	enabled, err := strconv.ParseBool(r.URL.Query().Get("enabled"))
	if err != nil {
		httputil.BadRequest(w, "enabled must be true or false")
		return
	}
	h.cacheLogging.Set(enabled)
	httputil.OK(w, map[string]bool{"enabled": enabled})
}
