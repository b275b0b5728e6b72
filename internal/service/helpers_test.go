package service

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/emmanuelh-dev/prexun-backend-sub000/internal/models"
	"github.com/emmanuelh-dev/prexun-backend-sub000/internal/repository"
	"github.com/emmanuelh-dev/prexun-backend-sub000/pkg/database"
)

const (
	campusMerida int64 = 1
	campusCancun int64 = 2

	cardPOS    int64 = 10
	cardSAT    int64 = 11
	cardSATTrf int64 = 12
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testEnv struct {
	store   *repository.Store
	clock   *fakeClock
	ledger  *DebtLedger
	txns    *TransactionService
	auditor *ReconciliationAuditor
}

func newTestStore(t *testing.T) *repository.Store {
	t.Helper()

	db, err := database.NewSQLiteDB(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	store := repository.NewStore(db)
	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return store
}

// newTestEnv builds every service over a fresh database with two campuses
// and three cards, counting months in UTC.
func newTestEnv(t *testing.T, now time.Time) *testEnv {
	t.Helper()

	store := newTestStore(t)
	clock := &fakeClock{now: now}
	logger := zap.NewNop()

	ctx := context.Background()
	for _, c := range []models.Campus{{ID: campusMerida, Name: "Merida"}, {ID: campusCancun, Name: "Cancun"}} {
		c := c
		if err := store.References.UpsertCampus(ctx, store.DB(), &c); err != nil {
			t.Fatalf("failed to seed campus: %v", err)
		}
	}
	cards := []models.Card{
		{ID: cardPOS, CampusID: campusMerida, Name: "POS", ChannelHint: models.PaymentCard},
		{ID: cardSAT, CampusID: campusMerida, Name: "POS fiscal", ChannelHint: models.PaymentCard, SAT: true},
		{ID: cardSATTrf, CampusID: campusMerida, Name: "Cuenta fiscal", ChannelHint: models.PaymentTransfer, SAT: true},
	}
	for _, c := range cards {
		c := c
		if err := store.References.UpsertCard(ctx, store.DB(), &c); err != nil {
			t.Fatalf("failed to seed card: %v", err)
		}
	}

	allocator := NewFolioAllocator(store, time.UTC, logger)
	ledger := NewDebtLedger(store, logger, clock.Now)
	campuses := NewCampusCache(store, nil, time.Minute, logger)

	return &testEnv{
		store:   store,
		clock:   clock,
		ledger:  ledger,
		txns:    NewTransactionService(store, allocator, ledger, campuses, logger, WithClock(clock.Now)),
		auditor: NewReconciliationAuditor(store, time.UTC, logger, clock.Now),
	}
}

func (e *testEnv) pay(t *testing.T, campusID int64, method models.PaymentMethod, cardID *int64, amount int64) *models.Transaction {
	t.Helper()

	txn, err := e.txns.Create(context.Background(), &models.CreateTransactionRequest{
		CampusID:      campusID,
		PaymentMethod: method,
		CardID:        cardID,
		Amount:        decimal.NewFromInt(amount),
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	// Distinct creation times keep the audit order deterministic.
	e.clock.Advance(time.Second)
	return txn
}

func (e *testEnv) reload(t *testing.T, id string) *models.Transaction {
	t.Helper()

	txn, err := e.txns.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get(%s) error = %v", id, err)
	}
	return txn
}

func ptr[T any](v T) *T {
	return &v
}

func intValue(p *int64) int64 {
	if p == nil {
		return 0
	}
	return *p
}

func date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 12, 0, 0, 0, time.UTC)
}
