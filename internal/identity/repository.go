package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chambers-pm/chambers/internal/platform/db"
)

// Repository provides PostgreSQL backed persistence for accounts.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const accountColumns = `u.id, u.name, u.email, u.password_hash, u.is_active,
	COALESCE(r.id, 0), COALESCE(r.name, ''), u.last_seen_at, u.created_at, u.updated_at`

const accountFrom = `FROM users u LEFT JOIN roles r ON r.id = u.role_id`

func scanAccount(row pgx.Row) (Account, error) {
	var a Account
	err := row.Scan(&a.ID, &a.Name, &a.Email, &a.PasswordHash, &a.Active,
		&a.Role.ID, &a.Role.Name, &a.LastSeenAt, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, ErrNotFound
	}
	return a, err
}

// FindByID fetches an account with its current role.
func (r *Repository) FindByID(ctx context.Context, id int64) (Account, error) {
	return scanAccount(r.pool.QueryRow(ctx, `SELECT `+accountColumns+` `+accountFrom+` WHERE u.id = $1`, id))
}

// FindByEmail fetches an account by its normalized email.
func (r *Repository) FindByEmail(ctx context.Context, email string) (Account, error) {
	return scanAccount(r.pool.QueryRow(ctx, `SELECT `+accountColumns+` `+accountFrom+` WHERE u.email = $1`, NormalizeEmail(email)))
}

// List returns every account ordered by name.
func (r *Repository) List(ctx context.Context) ([]Account, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+accountColumns+` `+accountFrom+` ORDER BY u.name, u.id`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Account, error) {
		return scanAccount(row)
	})
}

// SetActive flips the active flag. Accounts are never deleted.
func (r *Repository) SetActive(ctx context.Context, id int64, active bool) error {
	tag, err := r.pool.Exec(ctx, `UPDATE users SET is_active = $2, updated_at = NOW() WHERE id = $1`, id, active)
	if err != nil {
		return fmt.Errorf("identity: set active: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetRole assigns roleID to the account.
func (r *Repository) SetRole(ctx context.Context, id, roleID int64) error {
	tag, err := r.pool.Exec(ctx, `UPDATE users SET role_id = $2, updated_at = NOW() WHERE id = $1`, id, roleID)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return ErrRoleNotFound
		}
		return fmt.Errorf("identity: set role: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateProfile changes the display name and email.
func (r *Repository) UpdateProfile(ctx context.Context, id int64, name, email string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE users SET name = $2, email = $3, updated_at = NOW() WHERE id = $1`, id, name, NormalizeEmail(email))
	if err != nil {
		if db.IsUniqueViolation(err) {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("identity: update profile: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// TouchLastSeen records the time of the account's latest authenticated request.
func (r *Repository) TouchLastSeen(ctx context.Context, id int64, at time.Time) error {
	_, err := r.pool.Exec(ctx, `UPDATE users SET last_seen_at = $2 WHERE id = $1`, id, at.UTC())
	return err
}
