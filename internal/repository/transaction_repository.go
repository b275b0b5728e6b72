package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/emmanuelh-dev/prexun-backend-sub000/internal/models"
)

const transactionColumns = `id, campus_id, debt_id, card_id, payment_method, amount, paid, payment_date, notes,
	folio, folio_new, folio_cash, folio_transfer, folio_card, folio_scheme, created_at, updated_at`

// folioColumns whitelists the columns a counter scope may read from, with the
// timestamp that anchors the scope's month.
var folioColumns = map[models.CounterScope]struct{ column, anchor string }{
	models.ScopeLegacy:   {"folio", "payment_date"},
	models.ScopeCash:     {"folio_cash", "created_at"},
	models.ScopeTransfer: {"folio_transfer", "created_at"},
	models.ScopeCard:     {"folio_card", "created_at"},
}

// SpecificColumn names the stored column of a channel counter.
func SpecificColumn(method models.PaymentMethod) string {
	if c, ok := folioColumns[models.CounterScope(method)]; ok && method.Valid() {
		return c.column
	}
	return ""
}

type TransactionRepository struct {
	lockClause string
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTransaction(row rowScanner) (*models.Transaction, error) {
	var (
		txn                      models.Transaction
		debtID                   sql.NullString
		cardID                   sql.NullInt64
		paymentDate              sql.NullTime
		folio, folioNew          sql.NullString
		folioCash, folioTransfer sql.NullInt64
		folioCard                sql.NullInt64
		scheme                   string
	)

	err := row.Scan(
		&txn.ID,
		&txn.CampusID,
		&debtID,
		&cardID,
		&txn.PaymentMethod,
		&txn.Amount,
		&txn.Paid,
		&paymentDate,
		&txn.Notes,
		&folio,
		&folioNew,
		&folioCash,
		&folioTransfer,
		&folioCard,
		&scheme,
		&txn.CreatedAt,
		&txn.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if debtID.Valid {
		txn.DebtID = &debtID.String
	}
	txn.CardID = int64Ptr(cardID)
	if paymentDate.Valid {
		t := paymentDate.Time
		txn.PaymentDate = &t
	}
	txn.Numbering = models.Numbering{
		Scheme:   models.Scheme(scheme),
		Folio:    folio.String,
		FolioNew: folioNew.String,
		Cash:     int64Ptr(folioCash),
		Transfer: int64Ptr(folioTransfer),
		Card:     int64Ptr(folioCard),
	}
	return &txn, nil
}

func (r *TransactionRepository) Create(ctx context.Context, q Queryer, txn *models.Transaction) error {
	query := `
		INSERT INTO transactions (` + transactionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`
	_, err := q.ExecContext(ctx, query,
		txn.ID,
		txn.CampusID,
		nullString(txn.DebtID),
		nullInt(txn.CardID),
		string(txn.PaymentMethod),
		txn.Amount,
		txn.Paid,
		nullTime(txn.PaymentDate),
		txn.Notes,
		nullText(txn.Folio),
		nullText(txn.FolioNew),
		nullInt(txn.Cash),
		nullInt(txn.Transfer),
		nullInt(txn.Card),
		string(txn.Scheme),
		txn.CreatedAt.UTC(),
		txn.UpdatedAt.UTC(),
	)
	return err
}

// Update writes every mutable column of txn.
func (r *TransactionRepository) Update(ctx context.Context, q Queryer, txn *models.Transaction) error {
	query := `
		UPDATE transactions
		SET debt_id = $1, card_id = $2, payment_method = $3, amount = $4, paid = $5, payment_date = $6,
			notes = $7, folio = $8, folio_new = $9, folio_cash = $10, folio_transfer = $11, folio_card = $12,
			folio_scheme = $13, updated_at = $14
		WHERE id = $15
	`
	res, err := q.ExecContext(ctx, query,
		nullString(txn.DebtID),
		nullInt(txn.CardID),
		string(txn.PaymentMethod),
		txn.Amount,
		txn.Paid,
		nullTime(txn.PaymentDate),
		txn.Notes,
		nullText(txn.Folio),
		nullText(txn.FolioNew),
		nullInt(txn.Cash),
		nullInt(txn.Transfer),
		nullInt(txn.Card),
		string(txn.Scheme),
		txn.UpdatedAt.UTC(),
		txn.ID,
	)
	if err != nil {
		return err
	}
	return expectOne(res, models.ErrTransactionNotFound)
}

// UpdateNumbering rewrites only the folio columns.
func (r *TransactionRepository) UpdateNumbering(ctx context.Context, q Queryer, id string, n models.Numbering, updatedAt time.Time) error {
	query := `
		UPDATE transactions
		SET folio = $1, folio_new = $2, folio_cash = $3, folio_transfer = $4, folio_card = $5,
			folio_scheme = $6, updated_at = $7
		WHERE id = $8
	`
	res, err := q.ExecContext(ctx, query,
		nullText(n.Folio),
		nullText(n.FolioNew),
		nullInt(n.Cash),
		nullInt(n.Transfer),
		nullInt(n.Card),
		string(n.Scheme),
		updatedAt.UTC(),
		id,
	)
	if err != nil {
		return err
	}
	return expectOne(res, models.ErrTransactionNotFound)
}

// UpdateLegacyFolio overwrites the legacy folio of one row.
func (r *TransactionRepository) UpdateLegacyFolio(ctx context.Context, q Queryer, id, folio string, updatedAt time.Time) error {
	res, err := q.ExecContext(ctx,
		`UPDATE transactions SET folio = $1, updated_at = $2 WHERE id = $3`,
		folio, updatedAt.UTC(), id)
	if err != nil {
		return err
	}
	return expectOne(res, models.ErrTransactionNotFound)
}

func (r *TransactionRepository) Delete(ctx context.Context, q Queryer, id string) error {
	res, err := q.ExecContext(ctx, `DELETE FROM transactions WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return expectOne(res, models.ErrTransactionNotFound)
}

// GetByID loads one transaction. With lock set the row is held until the
// surrounding transaction ends (Postgres only).
func (r *TransactionRepository) GetByID(ctx context.Context, q Queryer, id string, lock bool) (*models.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1`
	if lock {
		query += r.lockClause
	}

	txn, err := scanTransaction(q.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, models.ErrTransactionNotFound
	}
	return txn, err
}

// StoredFolios returns the raw stored values of a counter scope's column for
// rows whose anchor timestamp falls in [start, end). Values are returned as
// text so callers can skip garbage left by older imports.
func (r *TransactionRepository) StoredFolios(ctx context.Context, q Queryer, campusID int64, scope models.CounterScope, start, end time.Time) ([]string, error) {
	cols, ok := folioColumns[scope]
	if !ok {
		return nil, fmt.Errorf("unknown counter scope %q", scope)
	}

	query := fmt.Sprintf(`
		SELECT %[1]s FROM transactions
		WHERE campus_id = $1 AND %[2]s >= $2 AND %[2]s < $3 AND %[1]s IS NOT NULL
	`, cols.column, cols.anchor)

	rows, err := q.QueryContext(ctx, query, campusID, start.UTC(), end.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var values []string
	for rows.Next() {
		var v sql.NullString
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		if v.Valid {
			values = append(values, v.String)
		}
	}
	return values, rows.Err()
}

// ListPaidCreatedBetween returns the paid rows of a campus created in
// [start, end), oldest first with the id as tie breaker.
func (r *TransactionRepository) ListPaidCreatedBetween(ctx context.Context, q Queryer, campusID int64, start, end time.Time) ([]*models.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE campus_id = $1 AND paid = $2 AND created_at >= $3 AND created_at < $4
		ORDER BY created_at ASC, id ASC
	`
	rows, err := q.QueryContext(ctx, query, campusID, true, start.UTC(), end.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var transactions []*models.Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, txn)
	}
	return transactions, rows.Err()
}

// FindByLegacyFolio returns the earliest created row of the campus holding
// the given legacy folio.
func (r *TransactionRepository) FindByLegacyFolio(ctx context.Context, q Queryer, campusID int64, folio string) (*models.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE campus_id = $1 AND folio = $2
		ORDER BY created_at ASC, id ASC
		LIMIT 1
	`
	txn, err := scanTransaction(q.QueryRowContext(ctx, query, campusID, folio))
	if err == sql.ErrNoRows {
		return nil, models.ErrTransactionNotFound
	}
	return txn, err
}

// SumPaidForDebt adds up the paid transactions that reference the debt.
// Amounts are read as text and summed as decimals: SQLite keeps NUMERIC
// values as REAL and its SUM would be inexact.
func (r *TransactionRepository) SumPaidForDebt(ctx context.Context, q Queryer, debtID string) (decimal.Decimal, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT CAST(amount AS TEXT) FROM transactions WHERE debt_id = $1 AND paid = $2`,
		debtID, true)
	if err != nil {
		return decimal.Zero, err
	}
	defer rows.Close()

	sum := decimal.Zero
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return decimal.Zero, err
		}
		amount, err := decimal.NewFromString(raw)
		if err != nil {
			return decimal.Zero, fmt.Errorf("invalid amount %q: %w", raw, err)
		}
		sum = sum.Add(amount)
	}
	if err := rows.Err(); err != nil {
		return decimal.Zero, err
	}
	return sum.Round(models.AmountScale), nil
}

// CountByDebt counts every transaction, paid or not, linked to the debt.
func (r *TransactionRepository) CountByDebt(ctx context.Context, q Queryer, debtID string) (int, error) {
	var n int
	err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM transactions WHERE debt_id = $1`, debtID).Scan(&n)
	return n, err
}

func expectOne(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}
