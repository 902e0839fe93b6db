package location

import (
	"context"
	"fmt"

	"github.com/ignite/person-registry/internal/cache"
	"github.com/ignite/person-registry/internal/domain"
	"github.com/ignite/person-registry/internal/pkg/validate"
)

// Notifier topics.
const (
	TopicLocations   = "locations"
	TopicCoordinates = "coordinates"
)

// Event is the payload broadcast on both topics.
type Event struct {
	Action string `json:"action"`
	ID     int64  `json:"id"`
}

// Service manages locations and coordinates. It is safe for concurrent use.
type Service struct {
	locs     Repository
	coords   CoordinatesRepository
	tx       TxRunner
	notifier Notifier
	cache    *cache.EntityCache
}

// NewService creates a location service. c may be nil.
func NewService(locs Repository, coords CoordinatesRepository, tx TxRunner, notifier Notifier, c *cache.EntityCache) *Service {
	return &Service{locs: locs, coords: coords, tx: tx, notifier: notifier, cache: c}
}

// Create validates and persists a new location.
func (s *Service) Create(ctx context.Context, in domain.LocationInput) (*domain.Location, error) {
	if err := validate.Struct(in); err != nil {
		return nil, err
	}
	l := &domain.Location{X: in.X, Y: in.Y, Z: in.Z, Name: in.Name}
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.locs.CreateLocation(ctx, l); err != nil {
			return err
		}
		s.cache.Put(ctx, cache.RegionLocation, l.ID, l)
		s.notifier.BroadcastAfterCommit(ctx, TopicLocations, Event{Action: "created", ID: l.ID})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return l, nil
}

// Get returns the location with id.
func (s *Service) Get(ctx context.Context, id int64) (*domain.Location, error) {
	return cache.ReadThrough(ctx, s.cache, cache.RegionLocation, id, func(ctx context.Context) (*domain.Location, error) {
		return s.locs.GetLocation(ctx, id)
	})
}

// List returns a page of locations and the total count.
func (s *Service) List(ctx context.Context, limit, offset int) ([]domain.Location, int, error) {
	return s.locs.ListLocations(ctx, limit, offset)
}

// Update replaces the location with id. Cached persons embed their location,
// so the person region is evicted as well.
func (s *Service) Update(ctx context.Context, id int64, in domain.LocationInput) (*domain.Location, error) {
	if err := validate.Struct(in); err != nil {
		return nil, err
	}
	l := &domain.Location{ID: id, X: in.X, Y: in.Y, Z: in.Z, Name: in.Name}
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.locs.UpdateLocation(ctx, l); err != nil {
			return err
		}
		s.cache.Evict(ctx, cache.RegionLocation, id)
		s.cache.Put(ctx, cache.RegionLocation, id, l)
		s.cache.EvictRegion(ctx, cache.RegionPerson)
		s.notifier.BroadcastAfterCommit(ctx, TopicLocations, Event{Action: "updated", ID: id})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return l, nil
}

// Delete removes the location with id unless a person references it.
func (s *Service) Delete(ctx context.Context, id int64) error {
	return s.tx.InTx(ctx, func(ctx context.Context) error {
		inUse, err := s.locs.LocationInUse(ctx, id)
		if err != nil {
			return err
		}
		if inUse {
			return fmt.Errorf("location %d: %w", id, domain.ErrLinkedEntityExists)
		}
		if err := s.locs.DeleteLocation(ctx, id); err != nil {
			return err
		}
		s.cache.Evict(ctx, cache.RegionLocation, id)
		s.notifier.BroadcastAfterCommit(ctx, TopicLocations, Event{Action: "deleted", ID: id})
		return nil
	})
}

// CreateCoordinates validates and persists new coordinates.
func (s *Service) CreateCoordinates(ctx context.Context, in domain.CoordinatesInput) (*domain.Coordinates, error) {
	if err := validate.Struct(in); err != nil {
		return nil, err
	}
	c := &domain.Coordinates{X: in.X, Y: in.Y}
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.coords.CreateCoordinates(ctx, c); err != nil {
			return err
		}
		s.cache.Put(ctx, cache.RegionCoordinates, c.ID, c)
		s.notifier.BroadcastAfterCommit(ctx, TopicCoordinates, Event{Action: "created", ID: c.ID})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// GetCoordinates returns the coordinates with id.
func (s *Service) GetCoordinates(ctx context.Context, id int64) (*domain.Coordinates, error) {
	return cache.ReadThrough(ctx, s.cache, cache.RegionCoordinates, id, func(ctx context.Context) (*domain.Coordinates, error) {
		return s.coords.GetCoordinates(ctx, id)
	})
}

// ListCoordinates returns a page of coordinates and the total count.
func (s *Service) ListCoordinates(ctx context.Context, limit, offset int) ([]domain.Coordinates, int, error) {
	return s.coords.ListCoordinates(ctx, limit, offset)
}

// DeleteCoordinates removes the coordinates with id unless a person references them.
func (s *Service) DeleteCoordinates(ctx context.Context, id int64) error {
	return s.tx.InTx(ctx, func(ctx context.Context) error {
		inUse, err := s.coords.CoordinatesInUse(ctx, id)
		if err != nil {
			return err
		}
		if inUse {
			return fmt.Errorf("coordinates %d: %w", id, domain.ErrLinkedEntityExists)
		}
		if err := s.coords.DeleteCoordinates(ctx, id); err != nil {
			return err
		}
		s.cache.Evict(ctx, cache.RegionCoordinates, id)
		s.notifier.BroadcastAfterCommit(ctx, TopicCoordinates, Event{Action: "deleted", ID: id})
		return nil
	})
}
