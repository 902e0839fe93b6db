package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ignite/person-registry/internal/domain"
	"github.com/ignite/person-registry/internal/pkg/txn"
)

// ImportJobRepo persists import jobs.
type ImportJobRepo struct{ db *sql.DB }

// NewImportJobRepo creates a Postgres-backed import job repository.
func NewImportJobRepo(db *sql.DB) *ImportJobRepo { return &ImportJobRepo{db: db} }

const jobColumns = `id, username, file_name, job_type, status, created_at, finished_at, added_count, error_message, file_object_key`

func scanJob(s scanner) (domain.ImportJob, error) {
	var (
		j        domain.ImportJob
		finished sql.NullTime
		added    sql.NullInt64
		msg      sql.NullString
		key      sql.NullString
	)
	err := s.Scan(&j.ID, &j.Username, &j.FileName, &j.Type, &j.Status, &j.CreatedAt,
		&finished, &added, &msg, &key)
	if err != nil {
		return j, err
	}
	if finished.Valid {
		t := finished.Time
		j.FinishedAt = &t
	}
	if added.Valid {
		n := int(added.Int64)
		j.AddedCount = &n
	}
	j.ErrorMessage = stringPtr(msg)
	j.FileObjectKey = stringPtr(key)
	return j, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullInt(n *int) sql.NullInt64 {
	if n == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*n), Valid: true}
}

func (r *ImportJobRepo) CreateJob(ctx context.Context, j *domain.ImportJob) error {
	err := txn.Conn(ctx, r.db).QueryRowContext(ctx, `
		INSERT INTO import_job (username, file_name, job_type, status, finished_at, added_count, error_message, file_object_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at`,
		j.Username, j.FileName, string(j.Type), string(j.Status), nullTime(j.FinishedAt),
		nullInt(j.AddedCount), nullString(j.ErrorMessage), nullString(j.FileObjectKey),
	).Scan(&j.ID, &j.CreatedAt)
	return mapError("create import job", err)
}

func (r *ImportJobRepo) UpdateJob(ctx context.Context, j *domain.ImportJob) error {
	op := fmt.Sprintf("update import job %d", j.ID)
	res, err := txn.Conn(ctx, r.db).ExecContext(ctx, `
		UPDATE import_job
		SET status = $2, finished_at = $3, added_count = $4, error_message = $5, file_object_key = $6
		WHERE id = $1`,
		j.ID, string(j.Status), nullTime(j.FinishedAt), nullInt(j.AddedCount),
		nullString(j.ErrorMessage), nullString(j.FileObjectKey),
	)
	if err != nil {
		return mapError(op, err)
	}
	return expectOne(op, res)
}

func (r *ImportJobRepo) GetJob(ctx context.Context, id int64) (*domain.ImportJob, error) {
	j, err := scanJob(txn.Conn(ctx, r.db).QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM import_job WHERE id = $1`, id))
	if err != nil {
		return nil, mapError(fmt.Sprintf("get import job %d", id), err)
	}
	return &j, nil
}

// ListJobs returns jobs of typ, newest first. An empty username lists every user.
func (r *ImportJobRepo) ListJobs(ctx context.Context, typ domain.ImportJobType, username string) ([]domain.ImportJob, error) {
	rows, err := txn.Conn(ctx, r.db).QueryContext(ctx, `
		SELECT `+jobColumns+`
		FROM import_job
		WHERE job_type = $1 AND ($2 = '' OR username = $2)
		ORDER BY created_at DESC, id DESC`,
		string(typ), username,
	)
	if err != nil {
		return nil, fmt.Errorf("list import jobs: %w", err)
	}
	return collectJobs(rows)
}

// RetainedJobs returns SUCCESS jobs that reference a stored file.
func (r *ImportJobRepo) RetainedJobs(ctx context.Context) ([]domain.ImportJob, error) {
	rows, err := txn.Conn(ctx, r.db).QueryContext(ctx, `
		SELECT `+jobColumns+`
		FROM import_job
		WHERE status = 'SUCCESS' AND file_object_key IS NOT NULL
		ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list retained jobs: %w", err)
	}
	return collectJobs(rows)
}

// KeyRetained reports whether a SUCCESS job references key.
func (r *ImportJobRepo) KeyRetained(ctx context.Context, key string) (bool, error) {
	var ok bool
	err := txn.Conn(ctx, r.db).QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM import_job WHERE status = 'SUCCESS' AND file_object_key = $1)`, key,
	).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("key retained: %w", err)
	}
	return ok, nil
}

func collectJobs(rows *sql.Rows) ([]domain.ImportJob, error) {
	defer rows.Close()
	out := []domain.ImportJob{}
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan import job: %w", err)
		}
		out = append(out, j)
	}
	return out, rows.Err()
}
