package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/emmanuelh-dev/prexun-backend-sub000/internal/metrics"
	"github.com/emmanuelh-dev/prexun-backend-sub000/internal/models"
	"github.com/emmanuelh-dev/prexun-backend-sub000/internal/repository"
)

// DebtLedger keeps each debt's paid/remaining amounts and status in line
// with the paid transactions that reference it.
type DebtLedger struct {
	store  *repository.Store
	logger *zap.Logger
	now    func() time.Time
}

func NewDebtLedger(store *repository.Store, logger *zap.Logger, now func() time.Time) *DebtLedger {
	if now == nil {
		now = time.Now
	}
	return &DebtLedger{
		store:  store,
		logger: logger,
		now:    now,
	}
}

// Recompute re-derives a debt's aggregate from its paid transactions. It runs
// on the caller's database transaction, after the transaction row change
// that triggered it has been written.
func (l *DebtLedger) Recompute(ctx context.Context, q repository.Queryer, debtID string, now time.Time) (*models.Debt, error) {
	debt, err := l.store.Debts.GetByID(ctx, q, debtID, true)
	if err != nil {
		return nil, err
	}

	paid, err := l.store.Transactions.SumPaidForDebt(ctx, q, debtID)
	if err != nil {
		return nil, fmt.Errorf("failed to sum payments of debt %s: %w", debtID, err)
	}

	before := debt.Status
	debt.Settle(paid, now)
	debt.UpdatedAt = now

	if err := l.store.Debts.UpdateAggregate(ctx, q, debt); err != nil {
		return nil, fmt.Errorf("failed to update debt %s: %w", debtID, err)
	}

	metrics.DebtRecomputes.WithLabelValues(string(debt.Status)).Inc()
	if before != debt.Status {
		l.logger.Info("debt status changed",
			zap.String("debt_id", debtID),
			zap.String("from", string(before)),
			zap.String("to", string(debt.Status)),
			zap.String("paid_amount", debt.PaidAmount.String()),
			zap.String("remaining_amount", debt.RemainingAmount.String()))
	}
	return debt, nil
}

// CreateDebt registers a debt with nothing paid yet.
func (l *DebtLedger) CreateDebt(ctx context.Context, req *models.CreateDebtRequest) (*models.Debt, error) {
	if req.CampusID <= 0 {
		return nil, fmt.Errorf("%w: campus_id is required", models.ErrValidation)
	}
	if !models.ValidAmount(req.TotalAmount) {
		return nil, fmt.Errorf("%w: total_amount must be greater than zero with at most %d decimals", models.ErrValidation, models.AmountScale)
	}
	if req.DueDate.IsZero() {
		return nil, fmt.Errorf("%w: due_date is required", models.ErrValidation)
	}

	now := l.now()
	debt := &models.Debt{
		ID:          uuid.New().String(),
		CampusID:    req.CampusID,
		StudentID:   req.StudentID,
		Concept:     req.Concept,
		TotalAmount: req.TotalAmount,
		DueDate:     req.DueDate,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	debt.Settle(decimal.Zero, now)

	if err := l.store.Debts.Create(ctx, l.store.DB(), debt); err != nil {
		return nil, fmt.Errorf("failed to create debt: %w", err)
	}

	l.logger.Info("debt created",
		zap.String("debt_id", debt.ID),
		zap.Int64("campus_id", debt.CampusID),
		zap.String("total_amount", debt.TotalAmount.String()))
	return debt, nil
}

// GetDebt returns a debt with its overdue flag evaluated at read time.
func (l *DebtLedger) GetDebt(ctx context.Context, id string) (*models.Debt, error) {
	debt, err := l.store.Debts.GetByID(ctx, l.store.DB(), id, false)
	if err != nil {
		return nil, err
	}
	debt.Refresh(l.now())
	return debt, nil
}

// DeleteDebt removes a debt nothing references. Debts with transactions,
// paid or not, are kept.
func (l *DebtLedger) DeleteDebt(ctx context.Context, id string) error {
	return l.store.InTx(ctx, func(tx *sql.Tx) error {
		if _, err := l.store.Debts.GetByID(ctx, tx, id, true); err != nil {
			return err
		}

		n, err := l.store.Transactions.CountByDebt(ctx, tx, id)
		if err != nil {
			return fmt.Errorf("failed to count transactions of debt %s: %w", id, err)
		}
		if n > 0 {
			return fmt.Errorf("%w: %d transaction(s) reference debt %s", models.ErrDebtHasTransactions, n, id)
		}

		if err := l.store.Debts.Delete(ctx, tx, id); err != nil {
			return err
		}

		l.logger.Info("debt deleted", zap.String("debt_id", id))
		return nil
	})
}
