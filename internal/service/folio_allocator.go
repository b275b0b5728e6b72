package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/emmanuelh-dev/prexun-backend-sub000/internal/metrics"
	"github.com/emmanuelh-dev/prexun-backend-sub000/internal/models"
	"github.com/emmanuelh-dev/prexun-backend-sub000/internal/repository"
)

// ChannelConfig is what the allocator knows about a transaction's payment
// channel. Degraded is set when the campus or card lookup failed; such
// transactions only get general numbering.
type ChannelConfig struct {
	Card     *models.Card
	Degraded bool
}

// ShouldUseSpecificCounter decides whether a channel gets its own sequence.
// Cards flagged SAT stay on the general sequence.
func ShouldUseSpecificCounter(method models.PaymentMethod, card *models.Card) bool {
	switch method {
	case models.PaymentCash:
		return true
	case models.PaymentTransfer:
		return card == nil || !card.SAT
	case models.PaymentCard:
		return card != nil && !card.SAT
	default:
		return false
	}
}

// generalCode is the channel letter used by folio_new.
func generalCode(method models.PaymentMethod, card *models.Card) string {
	switch {
	case method == models.PaymentCash:
		return "E"
	case method == models.PaymentCard:
		return "I"
	case method == models.PaymentTransfer && card != nil && card.SAT:
		return "I"
	default:
		return "A"
	}
}

// FormatFolioNew builds the prefixed legacy identifier, e.g. "A0324-0015"
// for the 15th general folio of a March 2024 transfer.
func FormatFolioNew(method models.PaymentMethod, card *models.Card, paidAt time.Time, legacy int64) string {
	return fmt.Sprintf("%s%s-%04d", generalCode(method, card), paidAt.Format("0106"), legacy)
}

// FolioAllocator hands out folio numbers. It never opens its own database
// transaction: callers pass the one their row write and debt recompute run
// in, so a reserved number is never committed without its transaction.
type FolioAllocator struct {
	transactions *repository.TransactionRepository
	counters     *repository.CounterRepository
	loc          *time.Location
	logger       *zap.Logger
}

func NewFolioAllocator(store *repository.Store, loc *time.Location, logger *zap.Logger) *FolioAllocator {
	if loc == nil {
		loc = time.UTC
	}
	return &FolioAllocator{
		transactions: store.Transactions,
		counters:     store.Counters,
		loc:          loc,
		logger:       logger,
	}
}

// Location is the time zone month boundaries are computed in.
func (a *FolioAllocator) Location() *time.Location {
	return a.loc
}

// Allocate (re)computes the numbering of txn in place. Unpaid transactions
// are released. For paid ones the specific counters and folio_new are
// cleared first; the legacy folio is kept when it already holds a number.
func (a *FolioAllocator) Allocate(ctx context.Context, q repository.Queryer, txn *models.Transaction, cfg ChannelConfig, now time.Time) error {
	if !txn.Paid {
		a.Release(txn)
		return nil
	}
	if txn.PaymentDate == nil {
		paidAt := now
		txn.PaymentDate = &paidAt
	}

	txn.ClearSpecific()
	txn.FolioNew = ""
	txn.Scheme = models.SchemeGeneral

	legacy, ok := txn.LegacyValue()
	if !ok {
		key := models.NewScopeKey(txn.CampusID, models.ScopeLegacy, *txn.PaymentDate, a.loc)
		v, err := a.reserve(ctx, q, key, now)
		if err != nil {
			return err
		}
		legacy = v
		txn.Folio = strconv.FormatInt(v, 10)
	}
	txn.FolioNew = FormatFolioNew(txn.PaymentMethod, cfg.Card, txn.PaymentDate.In(a.loc), legacy)

	if cfg.Degraded || !ShouldUseSpecificCounter(txn.PaymentMethod, cfg.Card) {
		return nil
	}

	// Channel sequences are anchored on the creation month, the legacy one
	// on the payment month.
	key := models.NewScopeKey(txn.CampusID, models.CounterScope(txn.PaymentMethod), txn.CreatedAt, a.loc)
	v, err := a.reserve(ctx, q, key, now)
	if err != nil {
		return err
	}
	txn.SetSpecific(txn.PaymentMethod, v)

	a.logger.Debug("folio allocated",
		zap.String("transaction_id", txn.ID),
		zap.String("scope", key.String()),
		zap.Int64("folio", v))
	return nil
}

// Release clears every folio of a transaction going back to unpaid.
func (a *FolioAllocator) Release(txn *models.Transaction) {
	if txn.Scheme != models.SchemeNone && txn.Scheme != "" {
		metrics.FolioReleases.Inc()
	}
	txn.Numbering.Clear()
}

// reserve takes the next number of a scope. The counter row is seeded from
// the highest stored value on first use and never trails it, so rows
// numbered before counters existed, or rewritten by an import, are not
// handed out twice.
func (a *FolioAllocator) reserve(ctx context.Context, q repository.Queryer, key models.ScopeKey, now time.Time) (int64, error) {
	floor, err := a.nextFromHistory(ctx, q, key)
	if err != nil {
		return 0, fmt.Errorf("failed to read folio history for %s: %w", key, err)
	}

	v, err := a.counters.Next(ctx, q, key, floor, now)
	if err != nil {
		return 0, fmt.Errorf("failed to reserve folio for %s: %w", key, err)
	}
	if v < floor {
		if err := a.counters.Set(ctx, q, key, floor, now); err != nil {
			return 0, fmt.Errorf("failed to advance folio counter %s: %w", key, err)
		}
		a.logger.Warn("folio counter behind stored history",
			zap.String("scope", key.String()),
			zap.Int64("counter", v),
			zap.Int64("history", floor))
		v = floor
	}

	metrics.FolioAllocations.WithLabelValues(string(key.Scope)).Inc()
	return v, nil
}

// nextFromHistory is max(stored value in scope) + 1, skipping values that
// are not positive integers.
func (a *FolioAllocator) nextFromHistory(ctx context.Context, q repository.Queryer, key models.ScopeKey) (int64, error) {
	start, end := key.Bounds(a.loc)
	values, err := a.transactions.StoredFolios(ctx, q, key.CampusID, key.Scope, start, end)
	if err != nil {
		return 0, err
	}

	var max int64
	for _, raw := range values {
		if v, ok := models.ParseFolio(strings.TrimSpace(raw)); ok && v > max {
			max = v
		}
	}
	return max + 1, nil
}
