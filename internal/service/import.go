package service

import (
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/emmanuelh-dev/prexun-backend-sub000/internal/metrics"
	"github.com/emmanuelh-dev/prexun-backend-sub000/internal/models"
)

// ImportLegacyFolios overwrites legacy folios from a CSV of
// old_folio,campus_id,new_folio rows. A first row whose first column is not
// a number is taken as a header. Every row commits on its own and a bad row
// never stops the batch.
func (a *ReconciliationAuditor) ImportLegacyFolios(ctx context.Context, r io.Reader, campusID int64) (*models.ImportReport, error) {
	if campusID <= 0 {
		return nil, fmt.Errorf("%w: campus_id is required", models.ErrValidation)
	}

	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	report := &models.ImportReport{
		CampusID: campusID,
		Errors:   []models.ImportRowError{},
	}

	line := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++

		var parseErr *csv.ParseError
		if errors.As(err, &parseErr) {
			report.Total++
			a.rowFailed(report, report.Total, models.ImportMalformed, parseErr.Err.Error())
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read csv: %w", err)
		}

		if line == 1 && isHeader(record) {
			continue
		}
		report.Total++

		reason, detail := a.importRow(ctx, record, campusID)
		switch reason {
		case "":
			report.Updated++
			metrics.ImportRows.WithLabelValues("updated").Inc()
		case models.ImportNotFound:
			report.NotFound++
			report.Errors = append(report.Errors, models.ImportRowError{Row: report.Total, Reason: reason, Detail: detail})
			metrics.ImportRows.WithLabelValues(reason).Inc()
		default:
			a.rowFailed(report, report.Total, reason, detail)
		}
	}

	a.logger.Info("legacy folio import complete",
		zap.Int64("campus_id", campusID),
		zap.Int("total", report.Total),
		zap.Int("updated", report.Updated),
		zap.Int("not_found", report.NotFound),
		zap.Int("errored", report.Errored))
	return report, nil
}

func (a *ReconciliationAuditor) rowFailed(report *models.ImportReport, row int, reason, detail string) {
	report.Errored++
	report.Errors = append(report.Errors, models.ImportRowError{Row: row, Reason: reason, Detail: detail})
	metrics.ImportRows.WithLabelValues(reason).Inc()
}

// importRow applies one record and returns the failure reason, "" on success.
func (a *ReconciliationAuditor) importRow(ctx context.Context, record []string, campusID int64) (string, string) {
	if len(record) < 3 {
		return models.ImportMalformed, fmt.Sprintf("expected 3 columns, got %d", len(record))
	}

	oldFolio := strings.TrimSpace(record[0])
	rawCampus := strings.TrimSpace(record[1])
	newFolio := strings.TrimSpace(record[2])
	if oldFolio == "" || rawCampus == "" || newFolio == "" {
		return models.ImportMalformed, "empty column"
	}

	rowCampus, err := strconv.ParseInt(rawCampus, 10, 64)
	if err != nil {
		return models.ImportMalformed, fmt.Sprintf("campus_id %q is not a number", rawCampus)
	}
	if rowCampus != campusID {
		return models.ImportCampusMismatch, fmt.Sprintf("row campus %d, importing campus %d", rowCampus, campusID)
	}

	err = a.store.InTx(ctx, func(tx *sql.Tx) error {
		txn, err := a.store.Transactions.FindByLegacyFolio(ctx, tx, campusID, oldFolio)
		if err != nil {
			return err
		}

		legacy, numeric := models.ParseFolio(newFolio)
		if !numeric || !txn.Paid || txn.PaymentDate == nil {
			return a.store.Transactions.UpdateLegacyFolio(ctx, tx, txn.ID, newFolio, a.now())
		}

		var card *models.Card
		if txn.CardID != nil {
			if card, err = a.store.References.GetCard(ctx, tx, *txn.CardID); err != nil {
				card = nil
			}
		}

		numbering := txn.Numbering
		numbering.Folio = newFolio
		numbering.FolioNew = FormatFolioNew(txn.PaymentMethod, card, txn.PaymentDate.In(a.loc), legacy)
		return a.store.Transactions.UpdateNumbering(ctx, tx, txn.ID, numbering, a.now())
	})

	switch {
	case err == nil:
		return "", ""
	case errors.Is(err, models.ErrTransactionNotFound):
		return models.ImportNotFound, fmt.Sprintf("no transaction with folio %s", oldFolio)
	default:
		a.logger.Error("legacy folio import row failed",
			zap.String("old_folio", oldFolio),
			zap.Error(err))
		return models.ImportFailed, err.Error()
	}
}

func isHeader(record []string) bool {
	if len(record) == 0 {
		return false
	}
	_, err := strconv.ParseInt(strings.TrimSpace(record[0]), 10, 64)
	return err != nil
}
