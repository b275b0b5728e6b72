package repository

import (
	"context"
	"database/sql"

	"github.com/emmanuelh-dev/prexun-backend-sub000/internal/models"
)

const debtColumns = `id, campus_id, student_id, concept, total_amount, paid_amount, remaining_amount,
	status, due_date, created_at, updated_at`

type DebtRepository struct {
	lockClause string
}

func (r *DebtRepository) Create(ctx context.Context, q Queryer, debt *models.Debt) error {
	query := `
		INSERT INTO debts (` + debtColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := q.ExecContext(ctx, query,
		debt.ID,
		debt.CampusID,
		debt.StudentID,
		debt.Concept,
		debt.TotalAmount,
		debt.PaidAmount,
		debt.RemainingAmount,
		string(debt.Status),
		debt.DueDate.UTC(),
		debt.CreatedAt.UTC(),
		debt.UpdatedAt.UTC(),
	)
	return err
}

// GetByID loads a debt, optionally holding its row for the rest of the
// transaction (Postgres only).
func (r *DebtRepository) GetByID(ctx context.Context, q Queryer, id string, lock bool) (*models.Debt, error) {
	query := `SELECT ` + debtColumns + ` FROM debts WHERE id = $1`
	if lock {
		query += r.lockClause
	}

	debt := &models.Debt{}
	err := q.QueryRowContext(ctx, query, id).Scan(
		&debt.ID,
		&debt.CampusID,
		&debt.StudentID,
		&debt.Concept,
		&debt.TotalAmount,
		&debt.PaidAmount,
		&debt.RemainingAmount,
		&debt.Status,
		&debt.DueDate,
		&debt.CreatedAt,
		&debt.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, models.ErrDebtNotFound
	}
	if err != nil {
		return nil, err
	}
	return debt, nil
}

// UpdateAggregate stores the derived amounts and status.
func (r *DebtRepository) UpdateAggregate(ctx context.Context, q Queryer, debt *models.Debt) error {
	query := `
		UPDATE debts
		SET paid_amount = $1, remaining_amount = $2, status = $3, updated_at = $4
		WHERE id = $5
	`
	res, err := q.ExecContext(ctx, query,
		debt.PaidAmount,
		debt.RemainingAmount,
		string(debt.Status),
		debt.UpdatedAt.UTC(),
		debt.ID,
	)
	if err != nil {
		return err
	}
	return expectOne(res, models.ErrDebtNotFound)
}

func (r *DebtRepository) Delete(ctx context.Context, q Queryer, id string) error {
	res, err := q.ExecContext(ctx, `DELETE FROM debts WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return expectOne(res, models.ErrDebtNotFound)
}
