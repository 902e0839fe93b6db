package location

import (
	"context"

	"github.com/ignite/person-registry/internal/domain"
)

// Repository persists locations.
type Repository interface {
	GetLocation(ctx context.Context, id int64) (*domain.Location, error)
	ListLocations(ctx context.Context, limit, offset int) ([]domain.Location, int, error)
	CreateLocation(ctx context.Context, l *domain.Location) error
	UpdateLocation(ctx context.Context, l *domain.Location) error
	DeleteLocation(ctx context.Context, id int64) error
	LocationInUse(ctx context.Context, id int64) (bool, error)
}

// CoordinatesRepository persists coordinates.
type CoordinatesRepository interface {
	GetCoordinates(ctx context.Context, id int64) (*domain.Coordinates, error)
	ListCoordinates(ctx context.Context, limit, offset int) ([]domain.Coordinates, int, error)
	CreateCoordinates(ctx context.Context, c *domain.Coordinates) error
	DeleteCoordinates(ctx context.Context, id int64) error
	CoordinatesInUse(ctx context.Context, id int64) (bool, error)
}

// TxRunner runs fn in a transaction, joining one already carried by ctx.
type TxRunner interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Notifier publishes change events once the surrounding transaction commits.
type Notifier interface {
	BroadcastAfterCommit(ctx context.Context, topic string, payload interface{})
}
