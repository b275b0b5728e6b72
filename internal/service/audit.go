package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/emmanuelh-dev/prexun-backend-sub000/internal/metrics"
	"github.com/emmanuelh-dev/prexun-backend-sub000/internal/models"
	"github.com/emmanuelh-dev/prexun-backend-sub000/internal/repository"
)

var auditChannels = []models.PaymentMethod{
	models.PaymentCash,
	models.PaymentTransfer,
	models.PaymentCard,
}

// ReconciliationAuditor re-derives the channel folios of a campus month
// from scratch and reports, or repairs, whatever drifted.
type ReconciliationAuditor struct {
	store  *repository.Store
	logger *zap.Logger
	loc    *time.Location
	now    func() time.Time
}

func NewReconciliationAuditor(store *repository.Store, loc *time.Location, logger *zap.Logger, now func() time.Time) *ReconciliationAuditor {
	if loc == nil {
		loc = time.UTC
	}
	if now == nil {
		now = time.Now
	}
	return &ReconciliationAuditor{
		store:  store,
		logger: logger,
		loc:    loc,
		now:    now,
	}
}

// Audit walks the paid transactions created in the month, oldest first,
// numbering each channel from 1. With dryRun the result is only reported.
// Otherwise the rows, the channel counters and the report are written in a
// single database transaction, so a second run finds nothing to fix.
func (a *ReconciliationAuditor) Audit(ctx context.Context, campusID int64, month, year int, dryRun bool) (*models.AuditReport, error) {
	if err := validatePeriod(campusID, month, year); err != nil {
		return nil, err
	}

	report := &models.AuditReport{
		ID:        uuid.New().String(),
		CampusID:  campusID,
		Month:     month,
		Year:      year,
		DryRun:    dryRun,
		Diffs:     []models.FolioDiff{},
		StartedAt: a.now(),
	}

	a.logger.Info("starting folio audit",
		zap.Int64("campus_id", campusID),
		zap.Int("month", month),
		zap.Int("year", year),
		zap.Bool("dry_run", dryRun))

	var err error
	if dryRun {
		err = a.run(ctx, a.store.DB(), report)
	} else {
		err = a.store.InTx(ctx, func(tx *sql.Tx) error {
			return a.run(ctx, tx, report)
		})
	}
	if err != nil {
		return nil, err
	}

	mode := "apply"
	if dryRun {
		mode = "dry_run"
	}
	metrics.AuditRuns.WithLabelValues(mode).Inc()

	if len(report.Diffs) == 0 {
		a.logger.Info("folio audit complete - CLEAN",
			zap.Int64("campus_id", campusID),
			zap.Int("processed", report.Processed))
	} else {
		a.logger.Warn("folio audit complete - DRIFT",
			zap.Int64("campus_id", campusID),
			zap.Int("processed", report.Processed),
			zap.Int("diffs", len(report.Diffs)),
			zap.Int("fixed", report.Fixed),
			zap.Bool("dry_run", dryRun))
	}
	return report, nil
}

// Reports lists the applied audits stored for a campus month. Dry runs are
// never stored.
func (a *ReconciliationAuditor) Reports(ctx context.Context, campusID int64, month, year int) ([]*models.AuditReport, error) {
	if err := validatePeriod(campusID, month, year); err != nil {
		return nil, err
	}

	reports, err := a.store.Audits.ListReports(ctx, a.store.DB(), campusID, month, year)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit reports: %w", err)
	}
	return reports, nil
}

func validatePeriod(campusID int64, month, year int) error {
	if campusID <= 0 {
		return fmt.Errorf("%w: campus_id is required", models.ErrValidation)
	}
	if month < 1 || month > 12 {
		return fmt.Errorf("%w: month must be between 1 and 12", models.ErrValidation)
	}
	if year < 2000 {
		return fmt.Errorf("%w: year must be 2000 or later", models.ErrValidation)
	}
	return nil
}

func (a *ReconciliationAuditor) run(ctx context.Context, q repository.Queryer, report *models.AuditReport) error {
	period := models.ScopeKey{CampusID: report.CampusID, Year: report.Year, Month: time.Month(report.Month)}
	start, end := period.Bounds(a.loc)

	transactions, err := a.store.Transactions.ListPaidCreatedBetween(ctx, q, report.CampusID, start, end)
	if err != nil {
		return fmt.Errorf("failed to list transactions: %w", err)
	}
	report.Processed = len(transactions)

	running := make(map[models.PaymentMethod]int64, len(auditChannels))
	cards := make(map[int64]*models.Card)

	for _, txn := range transactions {
		card := a.cardFor(ctx, q, txn, cards)
		specific := ShouldUseSpecificCounter(txn.PaymentMethod, card)
		if !specific && !txn.PaymentMethod.Valid() {
			continue
		}

		expected := txn.Numbering
		expected.ClearSpecific()
		if expected.Scheme != models.SchemeChannel {
			expected.Scheme = models.SchemeGeneral
		}
		if specific {
			running[txn.PaymentMethod]++
			expected.SetSpecific(txn.PaymentMethod, running[txn.PaymentMethod])
		}

		diffs := compareSpecific(txn, expected)
		if len(diffs) == 0 {
			continue
		}
		for _, d := range diffs {
			metrics.AuditDiffs.WithLabelValues(string(d.Channel)).Inc()
		}
		report.Diffs = append(report.Diffs, diffs...)

		if report.DryRun {
			continue
		}
		if err := a.store.Transactions.UpdateNumbering(ctx, q, txn.ID, expected, a.now()); err != nil {
			return fmt.Errorf("failed to repair transaction %s: %w", txn.ID, err)
		}
		report.Fixed++
	}

	if report.DryRun {
		report.FinishedAt = a.now()
		return nil
	}

	for _, channel := range auditChannels {
		key := period
		key.Scope = models.CounterScope(channel)
		if err := a.syncCounter(ctx, q, key, running[channel]); err != nil {
			return err
		}
	}

	report.FinishedAt = a.now()
	if err := a.store.Audits.SaveReport(ctx, q, report); err != nil {
		return fmt.Errorf("failed to save audit report: %w", err)
	}
	return nil
}

// syncCounter moves a channel counter to the audited count. Months that
// never had a counter and have no numbered rows are left without one.
func (a *ReconciliationAuditor) syncCounter(ctx context.Context, q repository.Queryer, key models.ScopeKey, count int64) error {
	current, exists, err := a.store.Counters.Current(ctx, q, key)
	if err != nil {
		return fmt.Errorf("failed to read folio counter %s: %w", key, err)
	}
	if (!exists && count == 0) || (exists && current == count) {
		return nil
	}

	if err := a.store.Counters.Set(ctx, q, key, count, a.now()); err != nil {
		return fmt.Errorf("failed to set folio counter %s: %w", key, err)
	}
	a.logger.Info("folio counter realigned",
		zap.String("scope", key.String()),
		zap.Int64("before", current),
		zap.Int64("after", count))
	return nil
}

// cardFor resolves the card the rule is re-derived with. A card that can no
// longer be read counts as no card.
func (a *ReconciliationAuditor) cardFor(ctx context.Context, q repository.Queryer, txn *models.Transaction, cache map[int64]*models.Card) *models.Card {
	if txn.CardID == nil {
		return nil
	}
	if card, ok := cache[*txn.CardID]; ok {
		return card
	}

	card, err := a.store.References.GetCard(ctx, q, *txn.CardID)
	if err != nil {
		a.logger.Warn("card lookup failed during audit",
			zap.String("transaction_id", txn.ID),
			zap.Int64("card_id", *txn.CardID),
			zap.Error(err))
		card = nil
	}
	cache[*txn.CardID] = card
	return card
}

func compareSpecific(txn *models.Transaction, expected models.Numbering) []models.FolioDiff {
	var diffs []models.FolioDiff
	for _, channel := range auditChannels {
		before := txn.Specific(channel)
		after := expected.Specific(channel)
		if sameInt(before, after) {
			continue
		}
		diffs = append(diffs, models.FolioDiff{
			TransactionID: txn.ID,
			Channel:       channel,
			Column:        repository.SpecificColumn(channel),
			Before:        before,
			After:         after,
		})
	}
	return diffs
}
