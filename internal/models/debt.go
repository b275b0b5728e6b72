package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type DebtStatus string

const (
	DebtPending DebtStatus = "pending"
	DebtPartial DebtStatus = "partial"
	DebtPaid    DebtStatus = "paid"
	DebtOverdue DebtStatus = "overdue"
)

// Debt is an amount a student owes. PaidAmount, RemainingAmount and Status
// are derived from the paid transactions that reference it.
type Debt struct {
	ID              string          `json:"id" db:"id"`
	CampusID        int64           `json:"campus_id" db:"campus_id"`
	StudentID       string          `json:"student_id" db:"student_id"`
	Concept         string          `json:"concept" db:"concept"`
	TotalAmount     decimal.Decimal `json:"total_amount" db:"total_amount"`
	PaidAmount      decimal.Decimal `json:"paid_amount" db:"paid_amount"`
	RemainingAmount decimal.Decimal `json:"remaining_amount" db:"remaining_amount"`
	Status          DebtStatus      `json:"status" db:"status"`
	DueDate         time.Time       `json:"due_date" db:"due_date"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at" db:"updated_at"`
}

// Settle recomputes the derived fields from the amount paid so far.
func (d *Debt) Settle(paid decimal.Decimal, now time.Time) {
	d.PaidAmount = paid
	d.RemainingAmount = d.TotalAmount.Sub(paid)
	if d.RemainingAmount.IsNegative() {
		d.RemainingAmount = decimal.Zero
	}
	d.Status = d.statusAt(now)
}

// Refresh re-evaluates the overdue flag without touching the amounts.
func (d *Debt) Refresh(now time.Time) {
	d.Status = d.statusAt(now)
}

func (d *Debt) statusAt(now time.Time) DebtStatus {
	switch {
	case d.RemainingAmount.IsZero():
		return DebtPaid
	case d.DueDate.Before(now):
		return DebtOverdue
	case d.PaidAmount.IsPositive():
		return DebtPartial
	default:
		return DebtPending
	}
}

// CreateDebtRequest for registering a new debt
type CreateDebtRequest struct {
	CampusID    int64           `json:"campus_id" binding:"required"`
	StudentID   string          `json:"student_id" binding:"required"`
	Concept     string          `json:"concept"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	DueDate     time.Time       `json:"due_date" binding:"required"`
}
