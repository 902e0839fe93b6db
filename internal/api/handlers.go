package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/person-registry/internal/cache"
	"github.com/ignite/person-registry/internal/domain"
	"github.com/ignite/person-registry/internal/notify"
	"github.com/ignite/person-registry/internal/pkg/httputil"
	"github.com/ignite/person-registry/internal/service/importer"
)

// PersonService is implemented by person.Service.
type PersonService interface {
	Create(ctx context.Context, in domain.PersonInput) (*domain.Person, error)
	Update(ctx context.Context, id int64, in domain.PersonInput) (*domain.Person, error)
	Get(ctx context.Context, id int64) (*domain.Person, error)
	List(ctx context.Context, f domain.PersonFilter) ([]domain.Person, int, error)
	Delete(ctx context.Context, id int64) error
	DeleteByHeight(ctx context.Context, height float64) (int, error)
	IsNameTaken(ctx context.Context, name string, ignoreID *int64) (bool, error)
	WithMaxID(ctx context.Context) (*domain.Person, error)
	UniqueHeights(ctx context.Context) ([]float64, error)
	CountByEyeColor(ctx context.Context, c domain.Color) (int64, error)
	ShareByEyeColor(ctx context.Context, c domain.Color) (float64, error)
}

// LocationService is implemented by location.Service.
type LocationService interface {
	Create(ctx context.Context, in domain.LocationInput) (*domain.Location, error)
	Get(ctx context.Context, id int64) (*domain.Location, error)
	List(ctx context.Context, limit, offset int) ([]domain.Location, int, error)
	Update(ctx context.Context, id int64, in domain.LocationInput) (*domain.Location, error)
	Delete(ctx context.Context, id int64) error
	CreateCoordinates(ctx context.Context, in domain.CoordinatesInput) (*domain.Coordinates, error)
	GetCoordinates(ctx context.Context, id int64) (*domain.Coordinates, error)
	ListCoordinates(ctx context.Context, limit, offset int) ([]domain.Coordinates, int, error)
	DeleteCoordinates(ctx context.Context, id int64) error
}

// ImportService is implemented by importer.Service.
type ImportService interface {
	ImportPersons(ctx context.Context, up importer.Upload) (*domain.ImportJob, error)
	ImportLocations(ctx context.Context, up importer.Upload) (*domain.ImportJob, error)
	History(ctx context.Context, typ domain.ImportJobType, scope string) ([]domain.ImportJob, error)
	DownloadFile(ctx context.Context, jobID int64) (*importer.DownloadedFile, error)
}

// Pinger reports database reachability for /health.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Deps are the collaborators of Handlers. DB may be nil.
type Deps struct {
	Persons        PersonService
	Locations      LocationService
	Imports        ImportService
	Hub            *notify.Hub
	Cache          cache.StatsSource
	CacheLogging   *cache.Toggle
	DB             Pinger
	KeepAlive      time.Duration
	MaxUploadBytes int64
}

// Handlers contains all HTTP handlers.
type Handlers struct {
	persons      PersonService
	locations    LocationService
	imports      ImportService
	hub          *notify.Hub
	stats        cache.StatsSource
	cacheLogging *cache.Toggle
	db           Pinger
	keepAlive    time.Duration
	maxUpload    int64
}

// NewHandlers creates handlers from d.
func NewHandlers(d Deps) *Handlers {
	if d.Cache == nil {
		d.Cache = noStats{}
	}
	if d.CacheLogging == nil {
		d.CacheLogging = cache.NewToggle(false)
	}
	if d.KeepAlive <= 0 {
		d.KeepAlive = notify.DefaultKeepAlive
	}
	if d.MaxUploadBytes <= 0 {
		d.MaxUploadBytes = 10 << 20
	}
	return &Handlers{
		persons:      d.Persons,
		locations:    d.Locations,
		imports:      d.Imports,
		hub:          d.Hub,
		stats:        d.Cache,
		cacheLogging: d.CacheLogging,
		db:           d.DB,
		keepAlive:    d.KeepAlive,
		maxUpload:    d.MaxUploadBytes,
	}
}

// HealthCheck returns the service health status.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.db.PingContext(ctx); err != nil {
			respondSafeError(w, http.StatusServiceUnavailable, err)
			return
		}
	}
	httputil.OK(w, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
	})
}

type noStats struct{}

func (noStats) Stats() cache.Stats { return cache.Stats{} }

// pathID parses the {id} URL parameter, writing a 400 on failure.
func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httputil.BadRequest(w, "invalid id")
		return 0, false
	}
	return id, true
}
