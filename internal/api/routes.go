package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ignite/person-registry/internal/auth"
	"github.com/ignite/person-registry/internal/cache"
	"github.com/ignite/person-registry/internal/pkg/httputil"
)

// SetupRoutes configures all API routes.
func SetupRoutes(h *Handlers, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", auth.HeaderUser, auth.HeaderRole},
		ExposedHeaders:   []string{"Content-Disposition", HeaderImportJobID},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", h.HealthCheck)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(auth.Middleware)
		r.Use(cache.StatsLogging(h.stats, h.cacheLogging))

		r.Get("/auth/me", auth.HandleWhoAmI)
		r.Get("/events", h.hub.HandleSSE)

		r.Route("/persons", func(r chi.Router) {
			r.Get("/", h.ListPersons)
			r.Post("/", h.CreatePerson)
			r.Get("/name-taken", h.NameTaken)
			r.Delete("/by-height", h.DeletePersonsByHeight)
			r.Get("/max-id", h.PersonWithMaxID)
			r.Get("/unique-heights", h.UniqueHeights)
			r.Get("/count-by-eye-color", h.CountByEyeColor)
			r.Get("/share-by-eye-color", h.ShareByEyeColor)
			r.Get("/stream", h.hub.Stream(h.keepAlive, "persons"))
			r.Post("/import", h.ImportPersons)
			r.Get("/imports", h.PersonImportHistory)
			r.Get("/{id}", h.GetPerson)
			r.Put("/{id}", h.UpdatePerson)
			r.Delete("/{id}", h.DeletePerson)
		})

		r.Route("/locations", func(r chi.Router) {
			r.Get("/", h.ListLocations)
			r.Post("/", h.CreateLocation)
			r.Post("/import", h.ImportLocations)
			r.Get("/imports", h.LocationImportHistory)
			r.Get("/{id}", h.GetLocation)
			r.Put("/{id}", h.UpdateLocation)
			r.Delete("/{id}", h.DeleteLocation)
		})

		r.Route("/coordinates", func(r chi.Router) {
			r.Get("/", h.ListCoordinates)
			r.Post("/", h.CreateCoordinates)
			r.Get("/{id}", h.GetCoordinates)
			r.Delete("/{id}", h.DeleteCoordinates)
		})

		r.Get("/imports/stream", h.hub.Stream(h.keepAlive, "import_person", "import_location"))
		r.Get("/imports/{id}/file", h.DownloadImportFile)

		r.Route("/cache/l2", func(r chi.Router) {
			r.Get("/stats", h.CacheStats)
			r.Get("/logging", h.CacheLogging)
			r.Put("/logging", h.SetCacheLogging)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httputil.NotFound(w, "route not found")
	})

	return r
}
