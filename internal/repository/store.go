package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/emmanuelh-dev/prexun-backend-sub000/internal/models"
	"github.com/emmanuelh-dev/prexun-backend-sub000/pkg/database"
)

// Queryer is satisfied by both *sql.DB and *sql.Tx, so every repository
// method can run inside or outside a unit of work.
type Queryer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Store owns the connection pool and hands out repositories bound to its
// dialect.
type Store struct {
	db *database.DB

	Transactions *TransactionRepository
	Debts        *DebtRepository
	Counters     *CounterRepository
	References   *ReferenceRepository
	Audits       *AuditRepository
}

func NewStore(db *database.DB) *Store {
	lock := ""
	if db.IsPostgres() {
		lock = " FOR UPDATE"
	}
	return &Store{
		db:           db,
		Transactions: &TransactionRepository{lockClause: lock},
		Debts:        &DebtRepository{lockClause: lock},
		Counters:     &CounterRepository{},
		References:   &ReferenceRepository{},
		Audits:       &AuditRepository{},
	}
}

// DB returns the pool for reads and single-statement writes.
func (s *Store) DB() *sql.DB {
	return s.db.DB
}

// Migrate creates the tables the ledger needs.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range models.Schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

// InTx runs fn in one database transaction. Anything fn returns rolls the
// whole unit back; lock and uniqueness failures come back as
// models.ErrFolioConflict.
func (s *Store) InTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify(err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return classify(err)
	}

	return classify(tx.Commit())
}

func nullString(s *string) interface{} {
	if s == nil {
		return nil
	}
	return *s
}

func nullText(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullInt(v *int64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func nullTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func int64Ptr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}
