package audit

import (
	"context"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGRepository reads audit_logs from Postgres.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PGRepository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// Window runs the filtered, offset query. NULL parameters disable a filter.
func (r *PGRepository) Window(ctx context.Context, q WindowQuery) ([]TimelineRow, error) {
	f := q.Filters
	rows, err := r.pool.Query(ctx, `
		SELECT a.id, a.occurred_at, COALESCE(a.actor_id, 0), COALESCE(u.email, ''),
		       a.action, a.entity, a.entity_id, a.meta
		FROM audit_logs a
		LEFT JOIN users u ON u.id = a.actor_id
		WHERE ($1::timestamptz IS NULL OR a.occurred_at >= $1)
		  AND ($2::timestamptz IS NULL OR a.occurred_at < $2)
		  AND ($3::bigint IS NULL OR a.actor_id = $3)
		  AND ($4::text IS NULL OR a.entity = $4)
		  AND ($5::text IS NULL OR a.action = $5)
		ORDER BY a.occurred_at DESC, a.id DESC
		OFFSET $6 LIMIT $7`,
		toPgTime(f.From), toPgTime(f.To), optionalID(f.ActorID),
		optionalText(f.Entity), optionalText(f.Action), q.Offset, q.Limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (TimelineRow, error) {
		var (
			out TimelineRow
			at  pgtype.Timestamptz
		)
		if err := row.Scan(&out.ID, &at, &out.ActorID, &out.ActorEmail, &out.Action, &out.Entity, &out.EntityID, &out.Meta); err != nil {
			return TimelineRow{}, err
		}
		if at.Valid {
			out.At = at.Time.UTC()
		}
		return out, nil
	})
}

func toPgTime(t time.Time) pgtype.Timestamptz {
	if t.IsZero() {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: t, Valid: true}
}

func optionalID(id int64) pgtype.Int8 {
	if id <= 0 {
		return pgtype.Int8{}
	}
	return pgtype.Int8{Int64: id, Valid: true}
}

func optionalText(value string) pgtype.Text {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: trimmed, Valid: true}
}
