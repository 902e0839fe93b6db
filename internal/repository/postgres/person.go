package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ignite/person-registry/internal/domain"
	"github.com/ignite/person-registry/internal/pkg/txn"
)

// PersonRepo implements person.Repository against PostgreSQL.
type PersonRepo struct{ db *sql.DB }

// NewPersonRepo creates a Postgres-backed person repository.
func NewPersonRepo(db *sql.DB) *PersonRepo { return &PersonRepo{db: db} }

const personSelect = `
	SELECT p.id, p.name, p.creation_date, p.eye_color, p.hair_color, p.height,
	       p.nationality, p.author_id,
	       c.id, c.x, c.y,
	       l.id, l.x, l.y, l.z, l.name
	FROM person p
	JOIN coordinates c ON c.id = p.coordinates_id
	JOIN location l ON l.id = p.location_id`

const personFilter = `
	WHERE ($1 = '' OR lower(p.name) LIKE '%' || lower($1) || '%')
	  AND ($2 = '' OR p.eye_color = $2)`

func scanPerson(s scanner) (domain.Person, error) {
	var (
		p           domain.Person
		hair        sql.NullString
		nationality sql.NullString
		locName     sql.NullString
	)
	err := s.Scan(
		&p.ID, &p.Name, &p.CreationDate, &p.EyeColor, &hair, &p.Height,
		&nationality, &p.AuthorID,
		&p.Coordinates.ID, &p.Coordinates.X, &p.Coordinates.Y,
		&p.Location.ID, &p.Location.X, &p.Location.Y, &p.Location.Z, &locName,
	)
	if err != nil {
		return p, err
	}
	if hair.Valid {
		c := domain.Color(hair.String)
		p.HairColor = &c
	}
	if nationality.Valid {
		n := domain.Country(nationality.String)
		p.Nationality = &n
	}
	p.Location.Name = stringPtr(locName)
	return p, nil
}

func colorArg(c *domain.Color) sql.NullString {
	if c == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(*c), Valid: true}
}

func countryArg(c *domain.Country) sql.NullString {
	if c == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(*c), Valid: true}
}

func (r *PersonRepo) Get(ctx context.Context, id int64) (*domain.Person, error) {
	p, err := scanPerson(txn.Conn(ctx, r.db).QueryRowContext(ctx, personSelect+` WHERE p.id = $1`, id))
	if err != nil {
		return nil, mapError(fmt.Sprintf("get person %d", id), err)
	}
	return &p, nil
}

func (r *PersonRepo) List(ctx context.Context, f domain.PersonFilter) ([]domain.Person, int, error) {
	conn := txn.Conn(ctx, r.db)
	var total int
	if err := conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM person p`+personFilter, f.Name, string(f.EyeColor),
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count persons: %w", err)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = total
	}

	rows, err := conn.QueryContext(ctx,
		personSelect+personFilter+` ORDER BY p.id LIMIT $3 OFFSET $4`,
		f.Name, string(f.EyeColor), limit, f.Offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list persons: %w", err)
	}
	defer rows.Close()

	out := []domain.Person{}
	for rows.Next() {
		p, err := scanPerson(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan person: %w", err)
		}
		out = append(out, p)
	}
	return out, total, rows.Err()
}

// NameExists compares names case-insensitively, skipping ignoreID when set.
// The candidate is trimmed and folded by domain.NormalizeName, the same key
// the name lock uses; the stored side goes through lower() so the lookup
// matches person_name_lower_uniq.
func (r *PersonRepo) NameExists(ctx context.Context, name string, ignoreID *int64) (bool, error) {
	var exists bool
	err := txn.Conn(ctx, r.db).QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM person WHERE lower(name) = lower($1) AND ($2::bigint IS NULL OR id <> $2))`,
		domain.NormalizeName(name), nullInt64(ignoreID),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("person name exists: %w", err)
	}
	return exists, nil
}

func (r *PersonRepo) Create(ctx context.Context, p *domain.Person) error {
	err := txn.Conn(ctx, r.db).QueryRowContext(ctx, `
		INSERT INTO person (name, coordinates_id, eye_color, hair_color, height, nationality, location_id, author_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, creation_date`,
		p.Name, p.Coordinates.ID, string(p.EyeColor), colorArg(p.HairColor), p.Height,
		countryArg(p.Nationality), p.Location.ID, p.AuthorID,
	).Scan(&p.ID, &p.CreationDate)
	return mapError("create person", err)
}

func (r *PersonRepo) Update(ctx context.Context, p *domain.Person) error {
	op := fmt.Sprintf("update person %d", p.ID)
	res, err := txn.Conn(ctx, r.db).ExecContext(ctx, `
		UPDATE person
		SET name = $2, coordinates_id = $3, eye_color = $4, hair_color = $5,
		    height = $6, nationality = $7, location_id = $8
		WHERE id = $1`,
		p.ID, p.Name, p.Coordinates.ID, string(p.EyeColor), colorArg(p.HairColor),
		p.Height, countryArg(p.Nationality), p.Location.ID,
	)
	if err != nil {
		return mapError(op, err)
	}
	return expectOne(op, res)
}

func (r *PersonRepo) Delete(ctx context.Context, id int64) error {
	op := fmt.Sprintf("delete person %d", id)
	res, err := txn.Conn(ctx, r.db).ExecContext(ctx, `DELETE FROM person WHERE id = $1`, id)
	if err != nil {
		return mapError(op, err)
	}
	return expectOne(op, res)
}

// DeleteByHeight removes every person of the given height and returns their ids.
func (r *PersonRepo) DeleteByHeight(ctx context.Context, height float64) ([]int64, error) {
	rows, err := txn.Conn(ctx, r.db).QueryContext(ctx, `SELECT id FROM person_delete_by_height($1)`, height)
	if err != nil {
		return nil, fmt.Errorf("delete persons by height: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// MaxID returns nil for an empty table.
func (r *PersonRepo) MaxID(ctx context.Context) (*int64, error) {
	var id sql.NullInt64
	if err := txn.Conn(ctx, r.db).QueryRowContext(ctx, `SELECT person_max_id()`).Scan(&id); err != nil {
		return nil, fmt.Errorf("person max id: %w", err)
	}
	if !id.Valid {
		return nil, nil
	}
	return &id.Int64, nil
}

func (r *PersonRepo) UniqueHeights(ctx context.Context) ([]float64, error) {
	rows, err := txn.Conn(ctx, r.db).QueryContext(ctx, `SELECT height FROM person_unique_heights()`)
	if err != nil {
		return nil, fmt.Errorf("unique heights: %w", err)
	}
	defer rows.Close()

	out := []float64{}
	for rows.Next() {
		var h float64
		if err := rows.Scan(&h); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func (r *PersonRepo) CountByEyeColor(ctx context.Context, c domain.Color) (int64, error) {
	var n int64
	err := txn.Conn(ctx, r.db).QueryRowContext(ctx, `SELECT person_count_by_eye_color($1)`, string(c)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count by eye color: %w", err)
	}
	return n, nil
}

// ShareByEyeColor returns a percentage in [0, 100].
func (r *PersonRepo) ShareByEyeColor(ctx context.Context, c domain.Color) (float64, error) {
	var pct float64
	err := txn.Conn(ctx, r.db).QueryRowContext(ctx, `SELECT person_share_by_eye_color($1)`, string(c)).Scan(&pct)
	if err != nil {
		return 0, fmt.Errorf("share by eye color: %w", err)
	}
	return pct, nil
}
