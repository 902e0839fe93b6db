package person

import (
	"context"

	"github.com/ignite/person-registry/internal/domain"
)

// Repository persists persons.
type Repository interface {
	Get(ctx context.Context, id int64) (*domain.Person, error)
	List(ctx context.Context, f domain.PersonFilter) ([]domain.Person, int, error)
	NameExists(ctx context.Context, name string, ignoreID *int64) (bool, error)
	Create(ctx context.Context, p *domain.Person) error
	Update(ctx context.Context, p *domain.Person) error
	Delete(ctx context.Context, id int64) error
	DeleteByHeight(ctx context.Context, height float64) ([]int64, error)
	MaxID(ctx context.Context) (*int64, error)
	UniqueHeights(ctx context.Context) ([]float64, error)
	CountByEyeColor(ctx context.Context, c domain.Color) (int64, error)
	ShareByEyeColor(ctx context.Context, c domain.Color) (float64, error)
}

// CoordinatesStore resolves and persists coordinates referenced by persons.
type CoordinatesStore interface {
	GetCoordinates(ctx context.Context, id int64) (*domain.Coordinates, error)
	CreateCoordinates(ctx context.Context, c *domain.Coordinates) error
}

// LocationStore resolves and persists locations referenced by persons.
type LocationStore interface {
	GetLocation(ctx context.Context, id int64) (*domain.Location, error)
	CreateLocation(ctx context.Context, l *domain.Location) error
}

// TxRunner runs fn in a transaction, joining one already carried by ctx.
type TxRunner interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// NameLocker takes a lock on a name that lasts until the transaction in ctx ends.
type NameLocker interface {
	LockName(ctx context.Context, name string) error
}

// Notifier publishes change events once the surrounding transaction commits.
type Notifier interface {
	BroadcastAfterCommit(ctx context.Context, topic string, payload interface{})
}
