package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ignite/person-registry/internal/domain"
	"github.com/ignite/person-registry/internal/pkg/txn"
)

// CoordinatesRepo stores coordinates.
type CoordinatesRepo struct{ db *sql.DB }

// NewCoordinatesRepo creates a Postgres-backed coordinates repository.
func NewCoordinatesRepo(db *sql.DB) *CoordinatesRepo { return &CoordinatesRepo{db: db} }

func (r *CoordinatesRepo) GetCoordinates(ctx context.Context, id int64) (*domain.Coordinates, error) {
	var c domain.Coordinates
	err := txn.Conn(ctx, r.db).QueryRowContext(ctx,
		`SELECT id, x, y FROM coordinates WHERE id = $1`, id,
	).Scan(&c.ID, &c.X, &c.Y)
	if err != nil {
		return nil, mapError(fmt.Sprintf("get coordinates %d", id), err)
	}
	return &c, nil
}

func (r *CoordinatesRepo) ListCoordinates(ctx context.Context, limit, offset int) ([]domain.Coordinates, int, error) {
	conn := txn.Conn(ctx, r.db)
	var total int
	if err := conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM coordinates`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count coordinates: %w", err)
	}
	if limit <= 0 {
		limit = total
	}

	rows, err := conn.QueryContext(ctx,
		`SELECT id, x, y FROM coordinates ORDER BY id LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list coordinates: %w", err)
	}
	defer rows.Close()

	out := []domain.Coordinates{}
	for rows.Next() {
		var c domain.Coordinates
		if err := rows.Scan(&c.ID, &c.X, &c.Y); err != nil {
			return nil, 0, fmt.Errorf("scan coordinates: %w", err)
		}
		out = append(out, c)
	}
	return out, total, rows.Err()
}

func (r *CoordinatesRepo) CreateCoordinates(ctx context.Context, c *domain.Coordinates) error {
	err := txn.Conn(ctx, r.db).QueryRowContext(ctx,
		`INSERT INTO coordinates (x, y) VALUES ($1, $2) RETURNING id`, c.X, c.Y,
	).Scan(&c.ID)
	return mapError("create coordinates", err)
}

func (r *CoordinatesRepo) DeleteCoordinates(ctx context.Context, id int64) error {
	res, err := txn.Conn(ctx, r.db).ExecContext(ctx, `DELETE FROM coordinates WHERE id = $1`, id)
	if err != nil {
		return mapError(fmt.Sprintf("delete coordinates %d", id), err)
	}
	return expectOne(fmt.Sprintf("delete coordinates %d", id), res)
}

func (r *CoordinatesRepo) CoordinatesInUse(ctx context.Context, id int64) (bool, error) {
	var used bool
	err := txn.Conn(ctx, r.db).QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM person WHERE coordinates_id = $1)`, id,
	).Scan(&used)
	if err != nil {
		return false, fmt.Errorf("coordinates in use: %w", err)
	}
	return used, nil
}

// LocationRepo stores locations.
type LocationRepo struct{ db *sql.DB }

// NewLocationRepo creates a Postgres-backed location repository.
func NewLocationRepo(db *sql.DB) *LocationRepo { return &LocationRepo{db: db} }

func scanLocation(s scanner) (domain.Location, error) {
	var (
		l    domain.Location
		name sql.NullString
	)
	if err := s.Scan(&l.ID, &l.X, &l.Y, &l.Z, &name); err != nil {
		return l, err
	}
	l.Name = stringPtr(name)
	return l, nil
}

func (r *LocationRepo) GetLocation(ctx context.Context, id int64) (*domain.Location, error) {
	l, err := scanLocation(txn.Conn(ctx, r.db).QueryRowContext(ctx,
		`SELECT id, x, y, z, name FROM location WHERE id = $1`, id))
	if err != nil {
		return nil, mapError(fmt.Sprintf("get location %d", id), err)
	}
	return &l, nil
}

func (r *LocationRepo) ListLocations(ctx context.Context, limit, offset int) ([]domain.Location, int, error) {
	conn := txn.Conn(ctx, r.db)
	var total int
	if err := conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM location`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count locations: %w", err)
	}
	if limit <= 0 {
		limit = total
	}

	rows, err := conn.QueryContext(ctx,
		`SELECT id, x, y, z, name FROM location ORDER BY id LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list locations: %w", err)
	}
	defer rows.Close()

	out := []domain.Location{}
	for rows.Next() {
		l, err := scanLocation(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan location: %w", err)
		}
		out = append(out, l)
	}
	return out, total, rows.Err()
}

func (r *LocationRepo) CreateLocation(ctx context.Context, l *domain.Location) error {
	err := txn.Conn(ctx, r.db).QueryRowContext(ctx,
		`INSERT INTO location (x, y, z, name) VALUES ($1, $2, $3, $4) RETURNING id`,
		l.X, l.Y, l.Z, nullString(l.Name),
	).Scan(&l.ID)
	return mapError("create location", err)
}

func (r *LocationRepo) UpdateLocation(ctx context.Context, l *domain.Location) error {
	op := fmt.Sprintf("update location %d", l.ID)
	res, err := txn.Conn(ctx, r.db).ExecContext(ctx,
		`UPDATE location SET x = $2, y = $3, z = $4, name = $5 WHERE id = $1`,
		l.ID, l.X, l.Y, l.Z, nullString(l.Name),
	)
	if err != nil {
		return mapError(op, err)
	}
	return expectOne(op, res)
}

func (r *LocationRepo) DeleteLocation(ctx context.Context, id int64) error {
	op := fmt.Sprintf("delete location %d", id)
	res, err := txn.Conn(ctx, r.db).ExecContext(ctx, `DELETE FROM location WHERE id = $1`, id)
	if err != nil {
		return mapError(op, err)
	}
	return expectOne(op, res)
}

func (r *LocationRepo) LocationInUse(ctx context.Context, id int64) (bool, error) {
	var used bool
	err := txn.Conn(ctx, r.db).QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM person WHERE location_id = $1)`, id,
	).Scan(&used)
	if err != nil {
		return false, fmt.Errorf("location in use: %w", err)
	}
	return used, nil
}
