package matters

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chambers-pm/chambers/internal/platform/db"
)

// Repository provides PostgreSQL backed persistence for matters.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// List returns matters newest first.
func (r *Repository) List(ctx context.Context, f ListFilter) ([]Matter, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, reference, title, client_name, status, opened_by, created_at
		FROM matters
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at DESC, id DESC
		LIMIT $2`, f.Status, f.Limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToStructByPos[Matter])
}

// Get fetches a matter by id.
func (r *Repository) Get(ctx context.Context, id int64) (Matter, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, reference, title, client_name, status, opened_by, created_at
		FROM matters WHERE id = $1`, id)
	if err != nil {
		return Matter{}, err
	}
	m, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByPos[Matter])
	if errors.Is(err, pgx.ErrNoRows) {
		return Matter{}, ErrNotFound
	}
	return m, err
}

// Create inserts a new open matter.
func (r *Repository) Create(ctx context.Context, in NewMatter, openedBy int64) (Matter, error) {
	m := Matter{Reference: in.Reference, Title: in.Title, ClientName: in.ClientName, Status: StatusOpen, OpenedBy: openedBy}
	err := r.pool.QueryRow(ctx, `
		INSERT INTO matters (reference, title, client_name, status, opened_by)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`, m.Reference, m.Title, m.ClientName, m.Status, m.OpenedBy).Scan(&m.ID, &m.CreatedAt)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return Matter{}, ErrDuplicateReference
		}
		return Matter{}, fmt.Errorf("matters: create: %w", err)
	}
	return m, nil
}
