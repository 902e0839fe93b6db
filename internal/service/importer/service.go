package importer

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/ignite/person-registry/internal/auth"
	"github.com/ignite/person-registry/internal/domain"
	"github.com/ignite/person-registry/internal/objectstore"
	"github.com/ignite/person-registry/internal/pkg/logger"
)

// ScopeAll asks History for every user's jobs. Only admins get them.
const ScopeAll = "all"

// Upload is one file submitted for import.
type Upload struct {
	FileName    string
	ContentType string
	Data        []byte
}

// Event is broadcast when a job reaches a terminal status.
type Event struct {
	JobID  int64                `json:"jobId"`
	Type   domain.ImportJobType `json:"type"`
	Status domain.ImportStatus  `json:"status"`
}

// Topic returns the notifier topic for jobs of typ.
func Topic(typ domain.ImportJobType) string {
	return "import_" + strings.ToLower(string(typ))
}

// DownloadedFile is the retained file of a successful job. Callers close Body.
type DownloadedFile struct {
	FileName    string
	ContentType string
	Body        io.ReadCloser
}

// Deps are the collaborators of Service.
type Deps struct {
	Storage   Storage
	Jobs      JobRepository
	Persons   PersonCreator
	Locations LocationCreator
	Tx        TxRunner
	Notifier  Notifier
}

// Service runs imports. It is safe for concurrent use.
type Service struct {
	store     Storage
	jobs      JobRepository
	persons   PersonCreator
	locations LocationCreator
	tx        TxRunner
	notifier  Notifier
	now       func() time.Time
}

// NewService creates an import service.
func NewService(d Deps) *Service {
	return &Service{
		store:     d.Storage,
		jobs:      d.Jobs,
		persons:   d.Persons,
		locations: d.Locations,
		tx:        d.Tx,
		notifier:  d.Notifier,
		now:       time.Now,
	}
}

// applyFunc creates the parsed records inside the import transaction and
// returns how many were added.
type applyFunc func(ctx context.Context) (int, error)

// ImportPersons imports a `persons:` document. Every person goes through the
// uniqueness-guarded create path; one failure fails the whole job.
func (s *Service) ImportPersons(ctx context.Context, up Upload) (*domain.ImportJob, error) {
	return s.execute(ctx, up, domain.ImportPerson, func(data []byte) (applyFunc, error) {
		records, err := ParsePersons(data)
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context) (int, error) {
			for i, rec := range records {
				if _, err := s.persons.Create(ctx, rec); err != nil {
					return 0, fmt.Errorf("record %d (%s): %w", i+1, rec.Name, err)
				}
			}
			return len(records), nil
		}, nil
	})
}

// ImportLocations imports a `locations:` document.
func (s *Service) ImportLocations(ctx context.Context, up Upload) (*domain.ImportJob, error) {
	return s.execute(ctx, up, domain.ImportLocation, func(data []byte) (applyFunc, error) {
		records, err := ParseLocations(data)
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context) (int, error) {
			for i, rec := range records {
				if _, err := s.locations.Create(ctx, rec); err != nil {
					return 0, fmt.Errorf("record %d: %w", i+1, err)
				}
			}
			return len(records), nil
		}, nil
	})
}

func (s *Service) execute(ctx context.Context, up Upload, typ domain.ImportJobType, prepare func([]byte) (applyFunc, error)) (*domain.ImportJob, error) {
	user := auth.FromContext(ctx)
	user.Username = domain.TruncateUsername(user.Username)
	fileName := domain.TruncateFileName(strings.TrimSpace(up.FileName))
	if fileName == "" {
		fileName = objectstore.DefaultFileName
	}

	staged, err := s.store.StageUpload(ctx, up.Data, fileName, up.ContentType)
	if err != nil {
		return s.stagingFailed(ctx, user, fileName, typ, err)
	}

	job := &domain.ImportJob{
		Username: user.Username,
		FileName: fileName,
		Type:     typ,
		Status:   domain.ImportInProgress,
	}
	if err := s.jobs.CreateJob(ctx, job); err != nil {
		s.store.Rollback(ctx, staged)
		return nil, fmt.Errorf("create import job: %w", err)
	}

	var done domain.ImportJob
	err = s.run(ctx, job, staged, prepare, up.Data, &done)
	if err != nil {
		s.store.Rollback(ctx, staged)
		s.fail(ctx, job, err)
		return job, err
	}

	*job = done
	logger.Info("import finished",
		"component", "importer",
		"job_id", job.ID,
		"type", string(typ),
		"user", job.Username,
		"added", *job.AddedCount,
	)
	return job, nil
}

// run parses the document, then creates the records, promotes the staged
// file and marks the job SUCCESS in a single transaction.
func (s *Service) run(ctx context.Context, job *domain.ImportJob, staged *objectstore.StagedObject, prepare func([]byte) (applyFunc, error), data []byte, done *domain.ImportJob) error {
	apply, err := prepare(data)
	if err != nil {
		return err
	}

	return s.tx.InTx(ctx, func(ctx context.Context) error {
		added, err := apply(ctx)
		if err != nil {
			return err
		}
		if err := s.store.Commit(ctx, staged); err != nil {
			return err
		}

		next := *job
		finished := s.now()
		key := staged.FinalKey
		next.Status = domain.ImportSuccess
		next.FinishedAt = &finished
		next.AddedCount = &added
		next.FileObjectKey = &key
		if err := s.jobs.UpdateJob(ctx, &next); err != nil {
			return fmt.Errorf("update import job: %w", err)
		}

		s.notifier.BroadcastAfterCommit(ctx, Topic(next.Type), eventFor(&next))
		*done = next
		return nil
	})
}

// fail records the terminal FAILED state outside the aborted transaction.
func (s *Service) fail(ctx context.Context, job *domain.ImportJob, cause error) {
	finished := s.now()
	msg := domain.TruncateMessage(cause.Error())
	job.Status = domain.ImportFailed
	job.FinishedAt = &finished
	job.ErrorMessage = &msg
	job.AddedCount = nil
	job.FileObjectKey = nil

	bg := context.WithoutCancel(ctx)
	if err := s.jobs.UpdateJob(bg, job); err != nil {
		logger.Error("failed to mark import job failed",
			"component", "importer",
			"job_id", job.ID,
			"error", err,
		)
	}
	logger.Warn("import failed",
		"component", "importer",
		"job_id", job.ID,
		"type", string(job.Type),
		"user", job.Username,
		"error", cause,
	)
	s.notifier.BroadcastAfterCommit(bg, Topic(job.Type), eventFor(job))
}

// stagingFailed records a job that never got past staging. No transaction
// is opened and nothing is left to roll back.
func (s *Service) stagingFailed(ctx context.Context, user domain.Identity, fileName string, typ domain.ImportJobType, cause error) (*domain.ImportJob, error) {
	finished := s.now()
	msg := domain.TruncateMessage(cause.Error())
	job := &domain.ImportJob{
		Username:     user.Username,
		FileName:     fileName,
		Type:         typ,
		Status:       domain.ImportFailed,
		FinishedAt:   &finished,
		ErrorMessage: &msg,
	}

	bg := context.WithoutCancel(ctx)
	if err := s.jobs.CreateJob(bg, job); err != nil {
		logger.Error("failed to record staging failure",
			"component", "importer",
			"file", fileName,
			"error", err,
		)
		return nil, fmt.Errorf("%w (recording job: %v)", cause, err)
	}
	logger.Warn("import staging failed",
		"component", "importer",
		"job_id", job.ID,
		"error", cause,
	)
	s.notifier.BroadcastAfterCommit(bg, Topic(typ), eventFor(job))
	return job, cause
}

func eventFor(job *domain.ImportJob) Event {
	return Event{JobID: job.ID, Type: job.Type, Status: job.Status}
}

// History lists import jobs of typ for the caller, or for every user when an
// admin passes ScopeAll. Newest first.
func (s *Service) History(ctx context.Context, typ domain.ImportJobType, scope string) ([]domain.ImportJob, error) {
	if !typ.Valid() {
		return nil, fmt.Errorf("%w: unknown import type %q", domain.ErrValidation, typ)
	}
	user := auth.FromContext(ctx)
	username := user.Username
	if scope == ScopeAll && user.IsAdmin() {
		username = ""
	}
	return s.jobs.ListJobs(ctx, typ, username)
}

// DownloadFile opens the retained file of job jobID. Only the job owner and
// admins may download it.
func (s *Service) DownloadFile(ctx context.Context, jobID int64) (*DownloadedFile, error) {
	job, err := s.jobs.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	user := auth.FromContext(ctx)
	if !user.IsAdmin() && job.Username != user.Username {
		return nil, fmt.Errorf("import job %d: %w", jobID, domain.ErrForbidden)
	}
	if job.FileObjectKey == nil {
		return nil, fmt.Errorf("file for import job %d: %w", jobID, domain.ErrNotFound)
	}

	body, err := s.store.GetObject(ctx, *job.FileObjectKey)
	if err != nil {
		return nil, err
	}
	return &DownloadedFile{
		FileName:    job.FileName,
		ContentType: contentTypeFor(job.FileName),
		Body:        body,
	}, nil
}

func contentTypeFor(fileName string) string {
	lower := strings.ToLower(fileName)
	if strings.HasSuffix(lower, ".yml") || strings.HasSuffix(lower, ".yaml") {
		return "application/x-yaml"
	}
	return "application/octet-stream"
}
