package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/emmanuelh-dev/prexun-backend-sub000/internal/models"
)

type AuditRepository struct{}

// SaveReport keeps a record of an applied audit. Diffs are stored as JSON.
func (r *AuditRepository) SaveReport(ctx context.Context, q Queryer, report *models.AuditReport) error {
	diffs, err := json.Marshal(report.Diffs)
	if err != nil {
		return fmt.Errorf("failed to marshal diffs: %w", err)
	}

	query := `
		INSERT INTO folio_audit_reports
		(id, campus_id, month, year, processed, fixed, diffs, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err = q.ExecContext(ctx, query,
		report.ID,
		report.CampusID,
		report.Month,
		report.Year,
		report.Processed,
		report.Fixed,
		string(diffs),
		report.StartedAt.UTC(),
		report.FinishedAt.UTC(),
	)
	return err
}

// ListReports returns the applied audits of a campus month, newest first.
func (r *AuditRepository) ListReports(ctx context.Context, q Queryer, campusID int64, month, year int) ([]*models.AuditReport, error) {
	query := `
		SELECT id, campus_id, month, year, processed, fixed, diffs, started_at, finished_at
		FROM folio_audit_reports
		WHERE campus_id = $1 AND month = $2 AND year = $3
		ORDER BY finished_at DESC, id
	`
	rows, err := q.QueryContext(ctx, query, campusID, month, year)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	reports := []*models.AuditReport{}
	for rows.Next() {
		var (
			report models.AuditReport
			diffs  string
		)
		if err := rows.Scan(
			&report.ID,
			&report.CampusID,
			&report.Month,
			&report.Year,
			&report.Processed,
			&report.Fixed,
			&diffs,
			&report.StartedAt,
			&report.FinishedAt,
		); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(diffs), &report.Diffs); err != nil {
			return nil, fmt.Errorf("failed to unmarshal diffs of report %s: %w", report.ID, err)
		}
		reports = append(reports, &report)
	}
	return reports, rows.Err()
}
