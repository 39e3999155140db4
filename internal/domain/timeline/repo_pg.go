package timeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vetref/vetref/internal/platform/db"
)

type entryRepoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &entryRepoPG{pool: pool} }

func (r *entryRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const entryCols = `id, case_id, user_id, action, description, metadata, created_at`

func scanEntry(row pgx.Row) (*Entry, error) {
	var e Entry
	err := row.Scan(&e.ID, &e.CaseID, &e.ActorID, &e.Action, &e.Description, &e.Metadata, &e.CreatedAt)
	return &e, err
}

func (r *entryRepoPG) Append(ctx context.Context, e *Entry) error {
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO case_timeline (case_id, user_id, action, description, metadata)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`,
		e.CaseID, e.ActorID, e.Action, e.Description, e.Metadata,
	).Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return ErrCaseNotFound
		}
		return fmt.Errorf("insert timeline entry: %w", err)
	}
	return nil
}

func (r *entryRepoPG) ListByCase(ctx context.Context, caseID uuid.UUID, order Order, limit, offset int) ([]*Entry, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM case_timeline WHERE case_id = $1`, caseID,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count timeline: %w", err)
	}

	dir := "DESC"
	if order == OldestFirst {
		dir = "ASC"
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+entryCols+` FROM case_timeline WHERE case_id = $1
		ORDER BY created_at `+dir+`, id `+dir+` LIMIT $2 OFFSET $3`,
		caseID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list timeline: %w", err)
	}
	defer rows.Close()

	var items []*Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan timeline entry: %w", err)
		}
		items = append(items, e)
	}
	return items, total, rows.Err()
}
