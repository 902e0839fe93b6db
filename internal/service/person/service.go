package person

import (
	"context"
	"fmt"
	"strings"

	"github.com/ignite/person-registry/internal/cache"
	"github.com/ignite/person-registry/internal/domain"
	"github.com/ignite/person-registry/internal/pkg/validate"
)

// Topic is the change notifier topic for person mutations.
const Topic = "persons"

// Event is the payload broadcast on Topic.
type Event struct {
	Action  string   `json:"action"`
	ID      int64    `json:"id,omitempty"`
	Height  *float64 `json:"height,omitempty"`
	Deleted int      `json:"deleted,omitempty"`
}

// defaultAuthorID is stamped on every person; there is no user table.
const defaultAuthorID = 1

// Deps are the collaborators of Service. Cache may be nil.
type Deps struct {
	Repo        Repository
	Coordinates CoordinatesStore
	Locations   LocationStore
	Tx          TxRunner
	Locker      NameLocker
	Notifier    Notifier
	Cache       *cache.EntityCache
}

// Service implements person business logic. It is safe for concurrent use.
type Service struct {
	repo     Repository
	coords   CoordinatesStore
	locs     LocationStore
	tx       TxRunner
	locker   NameLocker
	notifier Notifier
	cache    *cache.EntityCache
}

// NewService creates a person service.
func NewService(d Deps) *Service {
	return &Service{
		repo:     d.Repo,
		coords:   d.Coordinates,
		locs:     d.Locations,
		tx:       d.Tx,
		locker:   d.Locker,
		notifier: d.Notifier,
		cache:    d.Cache,
	}
}

// EnsureUniqueName locks name for the rest of the transaction in ctx and
// fails with domain.ErrNameConflict when another person (other than
// ignoreID) already has it, compared case-insensitively.
func (s *Service) EnsureUniqueName(ctx context.Context, name string, ignoreID *int64) error {
	if err := s.locker.LockName(ctx, name); err != nil {
		return err
	}
	exists, err := s.repo.NameExists(ctx, name, ignoreID)
	if err != nil {
		return fmt.Errorf("check name: %w", err)
	}
	if exists {
		return fmt.Errorf("%w: %q", domain.ErrNameConflict, name)
	}
	return nil
}

// IsNameTaken answers without locking. The result can be stale by the time
// the caller acts on it.
func (s *Service) IsNameTaken(ctx context.Context, name string, ignoreID *int64) (bool, error) {
	return s.repo.NameExists(ctx, strings.TrimSpace(name), ignoreID)
}

// Create validates in and persists a new person together with any new
// coordinates or location it describes.
func (s *Service) Create(ctx context.Context, in domain.PersonInput) (*domain.Person, error) {
	in.Name = strings.TrimSpace(in.Name)
	if err := validate.Struct(in); err != nil {
		return nil, err
	}

	var out *domain.Person
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.EnsureUniqueName(ctx, in.Name, nil); err != nil {
			return err
		}
		p := &domain.Person{AuthorID: defaultAuthorID}
		if err := s.apply(ctx, p, in); err != nil {
			return err
		}
		if err := s.repo.Create(ctx, p); err != nil {
			return err
		}
		s.cache.Put(ctx, cache.RegionPerson, p.ID, p)
		s.notifier.BroadcastAfterCommit(ctx, Topic, Event{Action: "created", ID: p.ID})
		out = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Update replaces the person with id. The person's own current name does
// not count as a conflict.
func (s *Service) Update(ctx context.Context, id int64, in domain.PersonInput) (*domain.Person, error) {
	in.Name = strings.TrimSpace(in.Name)
	if err := validate.Struct(in); err != nil {
		return nil, err
	}

	var out *domain.Person
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		p, err := s.repo.Get(ctx, id)
		if err != nil {
			return err
		}
		if err := s.EnsureUniqueName(ctx, in.Name, &id); err != nil {
			return err
		}
		if err := s.apply(ctx, p, in); err != nil {
			return err
		}
		if err := s.repo.Update(ctx, p); err != nil {
			return err
		}
		s.cache.Evict(ctx, cache.RegionPerson, id)
		s.cache.Put(ctx, cache.RegionPerson, id, p)
		s.notifier.BroadcastAfterCommit(ctx, Topic, Event{Action: "updated", ID: id})
		out = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// apply copies in onto p, resolving nested references.
func (s *Service) apply(ctx context.Context, p *domain.Person, in domain.PersonInput) error {
	coords, err := s.resolveCoordinates(ctx, in.Coordinates)
	if err != nil {
		return err
	}
	loc, err := s.resolveLocation(ctx, in.Location)
	if err != nil {
		return err
	}
	p.Name = in.Name
	p.Coordinates = *coords
	p.EyeColor = in.EyeColor
	p.HairColor = in.HairColor
	p.Height = in.Height
	p.Nationality = in.Nationality
	p.Location = *loc
	return nil
}

func (s *Service) resolveCoordinates(ctx context.Context, ref domain.CoordinatesRef) (*domain.Coordinates, error) {
	if ref.ID != nil {
		c, err := cache.ReadThrough(ctx, s.cache, cache.RegionCoordinates, *ref.ID, func(ctx context.Context) (*domain.Coordinates, error) {
			return s.coords.GetCoordinates(ctx, *ref.ID)
		})
		if err != nil {
			return nil, fmt.Errorf("coordinates %d: %w", *ref.ID, err)
		}
		return c, nil
	}
	in := ref.Input()
	c := &domain.Coordinates{X: in.X, Y: in.Y}
	if err := s.coords.CreateCoordinates(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Service) resolveLocation(ctx context.Context, ref domain.LocationRef) (*domain.Location, error) {
	if ref.ID != nil {
		l, err := cache.ReadThrough(ctx, s.cache, cache.RegionLocation, *ref.ID, func(ctx context.Context) (*domain.Location, error) {
			return s.locs.GetLocation(ctx, *ref.ID)
		})
		if err != nil {
			return nil, fmt.Errorf("location %d: %w", *ref.ID, err)
		}
		return l, nil
	}
	in := ref.Input()
	if in.Name == nil || strings.TrimSpace(*in.Name) == "" {
		return nil, fmt.Errorf("%w: location.name is required when location.id is null", domain.ErrValidation)
	}
	l := &domain.Location{X: in.X, Y: in.Y, Z: in.Z, Name: in.Name}
	if err := s.locs.CreateLocation(ctx, l); err != nil {
		return nil, err
	}
	return l, nil
}

// Get returns the person with id.
func (s *Service) Get(ctx context.Context, id int64) (*domain.Person, error) {
	return cache.ReadThrough(ctx, s.cache, cache.RegionPerson, id, func(ctx context.Context) (*domain.Person, error) {
		return s.repo.Get(ctx, id)
	})
}

// List returns persons matching f and the total match count.
func (s *Service) List(ctx context.Context, f domain.PersonFilter) ([]domain.Person, int, error) {
	return s.repo.List(ctx, f)
}

// Delete removes the person with id. Of two concurrent deletes of one id,
// exactly one succeeds and the other gets domain.ErrNotFound.
func (s *Service) Delete(ctx context.Context, id int64) error {
	return s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.repo.Delete(ctx, id); err != nil {
			return err
		}
		s.cache.Evict(ctx, cache.RegionPerson, id)
		s.notifier.BroadcastAfterCommit(ctx, Topic, Event{Action: "deleted", ID: id})
		return nil
	})
}

// DeleteByHeight removes every person with exactly height and returns how many.
func (s *Service) DeleteByHeight(ctx context.Context, height float64) (int, error) {
	var n int
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		ids, err := s.repo.DeleteByHeight(ctx, height)
		if err != nil {
			return err
		}
		for _, id := range ids {
			s.cache.Evict(ctx, cache.RegionPerson, id)
		}
		n = len(ids)
		if n > 0 {
			s.notifier.BroadcastAfterCommit(ctx, Topic, Event{Action: "deleted_by_height", Height: &height, Deleted: n})
		}
		return nil
	})
	return n, err
}

// WithMaxID returns the most recently created person.
func (s *Service) WithMaxID(ctx context.Context) (*domain.Person, error) {
	id, err := s.repo.MaxID(ctx)
	if err != nil {
		return nil, err
	}
	if id == nil {
		return nil, fmt.Errorf("person registry is empty: %w", domain.ErrNotFound)
	}
	return s.Get(ctx, *id)
}

// UniqueHeights returns the distinct heights in ascending order.
func (s *Service) UniqueHeights(ctx context.Context) ([]float64, error) {
	return s.repo.UniqueHeights(ctx)
}

// CountByEyeColor returns how many persons have eye color c.
func (s *Service) CountByEyeColor(ctx context.Context, c domain.Color) (int64, error) {
	if !c.Valid() {
		return 0, fmt.Errorf("%w: unknown eye color %q", domain.ErrValidation, c)
	}
	return s.repo.CountByEyeColor(ctx, c)
}

// ShareByEyeColor returns the percentage (0..100) of persons with eye color c.
func (s *Service) ShareByEyeColor(ctx context.Context, c domain.Color) (float64, error) {
	if !c.Valid() {
		return 0, fmt.Errorf("%w: unknown eye color %q", domain.ErrValidation, c)
	}
	return s.repo.ShareByEyeColor(ctx, c)
}
