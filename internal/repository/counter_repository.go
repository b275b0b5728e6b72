package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/emmanuelh-dev/prexun-backend-sub000/internal/models"
)

// CounterRepository keeps one row per folio scope holding the last number
// handed out. Incrementing the row inside the caller's transaction both
// reserves the number and serializes concurrent allocators on that scope.
type CounterRepository struct{}

// Current returns the last number of the scope, if the row exists.
func (r *CounterRepository) Current(ctx context.Context, q Queryer, key models.ScopeKey) (int64, bool, error) {
	var v int64
	err := q.QueryRowContext(ctx,
		`SELECT last_folio FROM folio_counters WHERE campus_id = $1 AND scope = $2 AND period = $3`,
		key.CampusID, string(key.Scope), key.Period()).Scan(&v)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return v, true, nil
}

// Next increments the scope's row and returns the new value. When the row
// does not exist yet it is created holding seed. Two first-time allocators
// racing on the insert end up with seed and seed+1.
func (r *CounterRepository) Next(ctx context.Context, q Queryer, key models.ScopeKey, seed int64, now time.Time) (int64, error) {
	query := `
		INSERT INTO folio_counters (campus_id, scope, period, last_folio, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (campus_id, scope, period)
		DO UPDATE SET last_folio = folio_counters.last_folio + 1, updated_at = excluded.updated_at
		RETURNING last_folio
	`
	var v int64
	err := q.QueryRowContext(ctx, query,
		key.CampusID, string(key.Scope), key.Period(), seed, now.UTC()).Scan(&v)
	return v, err
}

// Set forces the scope's last number, creating the row if needed.
func (r *CounterRepository) Set(ctx context.Context, q Queryer, key models.ScopeKey, value int64, now time.Time) error {
	query := `
		INSERT INTO folio_counters (campus_id, scope, period, last_folio, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (campus_id, scope, period)
		DO UPDATE SET last_folio = excluded.last_folio, updated_at = excluded.updated_at
	`
	_, err := q.ExecContext(ctx, query,
		key.CampusID, string(key.Scope), key.Period(), value, now.UTC())
	return err
}
