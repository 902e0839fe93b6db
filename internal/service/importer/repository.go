package importer

import (
	"context"
	"io"

	"github.com/ignite/person-registry/internal/domain"
	"github.com/ignite/person-registry/internal/objectstore"
)

// Storage is the object staging store used by imports.
type Storage interface {
	StageUpload(ctx context.Context, data []byte, originalFileName, contentType string) (*objectstore.StagedObject, error)
	Commit(ctx context.Context, staged *objectstore.StagedObject) error
	Rollback(ctx context.Context, staged *objectstore.StagedObject)
	GetObject(ctx context.Context, key string) (io.ReadCloser, error)
}

// JobRepository persists import jobs. ListJobs returns every user's jobs when
// username is empty, newest first.
type JobRepository interface {
	CreateJob(ctx context.Context, job *domain.ImportJob) error
	UpdateJob(ctx context.Context, job *domain.ImportJob) error
	GetJob(ctx context.Context, id int64) (*domain.ImportJob, error)
	ListJobs(ctx context.Context, typ domain.ImportJobType, username string) ([]domain.ImportJob, error)
}

// PersonCreator is the uniqueness-guarded person create path.
type PersonCreator interface {
	Create(ctx context.Context, in domain.PersonInput) (*domain.Person, error)
}

// LocationCreator creates locations.
type LocationCreator interface {
	Create(ctx context.Context, in domain.LocationInput) (*domain.Location, error)
}

// TxRunner runs fn in a transaction, joining one already carried by ctx.
type TxRunner interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Notifier publishes events once the surrounding transaction commits.
type Notifier interface {
	BroadcastAfterCommit(ctx context.Context, topic string, payload interface{})
}
