package models

import (
	"fmt"
	"time"
)

// CounterScope names one folio sequence family within a campus.
type CounterScope string

const (
	ScopeLegacy   CounterScope = "legacy"
	ScopeCash     CounterScope = CounterScope(PaymentCash)
	ScopeTransfer CounterScope = CounterScope(PaymentTransfer)
	ScopeCard     CounterScope = CounterScope(PaymentCard)
)

// ScopeKey identifies a counting domain: campus, sequence family and month.
type ScopeKey struct {
	CampusID int64        `json:"campus_id"`
	Scope    CounterScope `json:"scope"`
	Year     int          `json:"year"`
	Month    time.Month   `json:"month"`
}

// NewScopeKey anchors a scope on the calendar month of t in loc.
func NewScopeKey(campusID int64, scope CounterScope, t time.Time, loc *time.Location) ScopeKey {
	local := t.In(loc)
	return ScopeKey{CampusID: campusID, Scope: scope, Year: local.Year(), Month: local.Month()}
}

// Period is the stored month label, e.g. "2024-03".
func (k ScopeKey) Period() string {
	return fmt.Sprintf("%04d-%02d", k.Year, int(k.Month))
}

// Bounds returns the half-open [start, end) range of the month in UTC.
func (k ScopeKey) Bounds(loc *time.Location) (time.Time, time.Time) {
	start := time.Date(k.Year, k.Month, 1, 0, 0, 0, 0, loc)
	return start.UTC(), start.AddDate(0, 1, 0).UTC()
}

func (k ScopeKey) String() string {
	return fmt.Sprintf("%d/%s/%s", k.CampusID, k.Scope, k.Period())
}

// FolioDiff is one mismatch found by an audit.
type FolioDiff struct {
	TransactionID string        `json:"transaction_id"`
	Channel       PaymentMethod `json:"channel"`
	Column        string        `json:"column"`
	Before        *int64        `json:"before"`
	After         *int64        `json:"after"`
}

// AuditReport summarizes an audit run over one campus month.
type AuditReport struct {
	ID         string      `json:"id"`
	CampusID   int64       `json:"campus_id"`
	Month      int         `json:"month"`
	Year       int         `json:"year"`
	DryRun     bool        `json:"dry_run"`
	Processed  int         `json:"processed"`
	Fixed      int         `json:"fixed"`
	Diffs      []FolioDiff `json:"diffs"`
	StartedAt  time.Time   `json:"started_at"`
	FinishedAt time.Time   `json:"finished_at"`
}

// AuditRequest for POST /folios/audit
type AuditRequest struct {
	CampusID int64 `json:"campus_id" binding:"required"`
	Month    int   `json:"month" binding:"required,min=1,max=12"`
	Year     int   `json:"year" binding:"required,min=2000"`
	DryRun   bool  `json:"dry_run"`
}

const (
	ImportNotFound       = "not_found"
	ImportMalformed      = "malformed"
	ImportCampusMismatch = "campus_mismatch"
	ImportFailed         = "failed"
)

// ImportRowError explains why one CSV row was not applied. Row is the
// 1-based data row; a skipped header is not counted.
type ImportRowError struct {
	Row    int    `json:"row"`
	Reason string `json:"reason"`
	Detail string `json:"detail,omitempty"`
}

// ImportReport summarizes a legacy folio import.
type ImportReport struct {
	CampusID int64            `json:"campus_id"`
	Total    int              `json:"total"`
	Updated  int              `json:"updated"`
	NotFound int              `json:"not_found"`
	Errored  int              `json:"errored"`
	Errors   []ImportRowError `json:"errors"`
}
