package service

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/emmanuelh-dev/prexun-backend-sub000/internal/models"
)

func TestCreateAllocatesFolios(t *testing.T) {
	env := newTestEnv(t, date(2024, time.April, 2))

	tests := []struct {
		name         string
		method       models.PaymentMethod
		cardID       *int64
		wantScheme   models.Scheme
		wantFolioNew string
		wantDisplay  string
	}{
		{"cash", models.PaymentCash, nil, models.SchemeChannel, "E0424-0001", "ME0001"},
		{"transfer", models.PaymentTransfer, nil, models.SchemeChannel, "A0424-0002", "MA0001"},
		{"card with terminal", models.PaymentCard, ptr(cardPOS), models.SchemeChannel, "I0424-0003", "MT0001"},
		{"card with sat terminal", models.PaymentCard, ptr(cardSAT), models.SchemeGeneral, "I0424-0004", "MI0424-0004"},
		{"transfer to sat account", models.PaymentTransfer, ptr(cardSATTrf), models.SchemeGeneral, "I0424-0005", "MI0424-0005"},
		{"card without terminal", models.PaymentCard, nil, models.SchemeGeneral, "I0424-0006", "MI0424-0006"},
		{"second cash", models.PaymentCash, nil, models.SchemeChannel, "E0424-0007", "ME0002"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			txn := env.pay(t, campusMerida, tt.method, tt.cardID, 100)

			if txn.Scheme != tt.wantScheme {
				t.Errorf("Scheme = %q, want %q", txn.Scheme, tt.wantScheme)
			}
			if txn.FolioNew != tt.wantFolioNew {
				t.Errorf("FolioNew = %q, want %q", txn.FolioNew, tt.wantFolioNew)
			}
			if txn.DisplayFolio != tt.wantDisplay {
				t.Errorf("DisplayFolio = %q, want %q", txn.DisplayFolio, tt.wantDisplay)
			}

			stored := env.reload(t, txn.ID)
			if stored.DisplayFolio != tt.wantDisplay {
				t.Errorf("stored DisplayFolio = %q, want %q", stored.DisplayFolio, tt.wantDisplay)
			}
			if tt.wantScheme == models.SchemeGeneral && (stored.Cash != nil || stored.Transfer != nil || stored.Card != nil) {
				t.Errorf("general row has a specific folio: %+v", stored.Numbering)
			}
		})
	}
}

func TestCreateSeventhCashDisplaysME0007(t *testing.T) {
	env := newTestEnv(t, date(2024, time.April, 2))

	var last *models.Transaction
	for i := 0; i < 7; i++ {
		last = env.pay(t, campusMerida, models.PaymentCash, nil, 50)
	}

	if got := intValue(last.Cash); got != 7 {
		t.Fatalf("folio_cash = %d, want 7", got)
	}
	folio, err := env.txns.DisplayFolio(context.Background(), last.ID)
	if err != nil {
		t.Fatalf("DisplayFolio() error = %v", err)
	}
	if folio != "ME0007" {
		t.Errorf("DisplayFolio() = %q, want ME0007", folio)
	}
}

func TestCreateIsGaplessUnderConcurrency(t *testing.T) {
	env := newTestEnv(t, date(2024, time.April, 2))

	const n = 12
	var wg sync.WaitGroup
	results := make(chan *models.Transaction, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			txn, err := env.txns.Create(context.Background(), &models.CreateTransactionRequest{
				CampusID:      campusMerida,
				PaymentMethod: models.PaymentCash,
				Amount:        decimal.NewFromInt(10),
			})
			if err != nil {
				t.Errorf("Create() error = %v", err)
				return
			}
			results <- txn
		}()
	}
	wg.Wait()
	close(results)

	var cash, legacy []int
	for txn := range results {
		cash = append(cash, int(intValue(txn.Cash)))
		v, _ := txn.LegacyValue()
		legacy = append(legacy, int(v))
	}
	sort.Ints(cash)
	sort.Ints(legacy)

	if len(cash) != n {
		t.Fatalf("got %d transactions, want %d", len(cash), n)
	}
	for i := 0; i < n; i++ {
		if cash[i] != i+1 {
			t.Errorf("folio_cash values = %v, want 1..%d", cash, n)
			break
		}
		if legacy[i] != i+1 {
			t.Errorf("legacy folios = %v, want 1..%d", legacy, n)
			break
		}
	}
}

func TestSequencesAreScopedPerCampus(t *testing.T) {
	env := newTestEnv(t, date(2024, time.April, 2))

	env.pay(t, campusMerida, models.PaymentCash, nil, 10)
	env.pay(t, campusMerida, models.PaymentCash, nil, 10)
	other := env.pay(t, campusCancun, models.PaymentCash, nil, 10)

	if got := intValue(other.Cash); got != 1 {
		t.Errorf("folio_cash in second campus = %d, want 1", got)
	}
	if other.DisplayFolio != "CE0001" {
		t.Errorf("DisplayFolio = %q, want CE0001", other.DisplayFolio)
	}
}

// Legacy folios count by payment month, channel folios by creation month.
func TestLegacyAndChannelScopesUseDifferentMonths(t *testing.T) {
	env := newTestEnv(t, date(2024, time.April, 2))
	ctx := context.Background()

	create := func(paidAt time.Time) *models.Transaction {
		t.Helper()
		txn, err := env.txns.Create(ctx, &models.CreateTransactionRequest{
			CampusID:      campusMerida,
			PaymentMethod: models.PaymentCash,
			Amount:        decimal.NewFromInt(10),
			PaymentDate:   &paidAt,
		})
		if err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		env.clock.Advance(time.Second)
		return txn
	}

	first := create(date(2024, time.March, 30))
	second := create(date(2024, time.April, 1))
	third := create(date(2024, time.March, 31))

	tests := []struct {
		name         string
		txn          *models.Transaction
		wantFolio    string
		wantFolioNew string
		wantCash     int64
	}{
		{"march payment", first, "1", "E0324-0001", 1},
		{"april payment", second, "1", "E0424-0001", 2},
		{"second march payment", third, "2", "E0324-0002", 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.txn.Folio != tt.wantFolio {
				t.Errorf("Folio = %q, want %q", tt.txn.Folio, tt.wantFolio)
			}
			if tt.txn.FolioNew != tt.wantFolioNew {
				t.Errorf("FolioNew = %q, want %q", tt.txn.FolioNew, tt.wantFolioNew)
			}
			if got := intValue(tt.txn.Cash); got != tt.wantCash {
				t.Errorf("folio_cash = %d, want %d", got, tt.wantCash)
			}
		})
	}
}

func TestLegacyHistorySeedsCounter(t *testing.T) {
	now := date(2024, time.April, 2)
	env := newTestEnv(t, now)
	ctx := context.Background()

	insert := func(folio string) {
		t.Helper()
		paidAt := now
		txn := &models.Transaction{
			ID:            "legacy-" + folio,
			CampusID:      campusMerida,
			PaymentMethod: models.PaymentMethod("deposit"),
			Amount:        decimal.NewFromInt(1),
			Paid:          true,
			PaymentDate:   &paidAt,
			Numbering:     models.Numbering{Scheme: models.SchemeGeneral, Folio: folio},
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := env.store.Transactions.Create(ctx, env.store.DB(), txn); err != nil {
			t.Fatalf("failed to insert history: %v", err)
		}
	}

	insert("abc")
	insert("-4")
	if got := env.pay(t, campusMerida, models.PaymentCash, nil, 10).Folio; got != "1" {
		t.Errorf("folio after garbage history = %q, want 1", got)
	}

	insert("0007")
	if got := env.pay(t, campusMerida, models.PaymentCash, nil, 10).Folio; got != "8" {
		t.Errorf("folio after imported history = %q, want 8", got)
	}
	if got := env.pay(t, campusMerida, models.PaymentCash, nil, 10).Folio; got != "9" {
		t.Errorf("next folio = %q, want 9", got)
	}
}

func TestDegradedLookupsUseGeneralNumbering(t *testing.T) {
	env := newTestEnv(t, date(2024, time.April, 2))

	unknownCard := env.pay(t, campusMerida, models.PaymentCard, ptr(int64(999)), 10)
	if unknownCard.Scheme != models.SchemeGeneral || unknownCard.Card != nil {
		t.Errorf("unknown card numbering = %+v, want general", unknownCard.Numbering)
	}
	if unknownCard.DisplayFolio != "MI0424-0001" {
		t.Errorf("DisplayFolio = %q, want MI0424-0001", unknownCard.DisplayFolio)
	}

	unknownCampus := env.pay(t, 42, models.PaymentCash, nil, 10)
	if unknownCampus.Scheme != models.SchemeGeneral || unknownCampus.Cash != nil {
		t.Errorf("unknown campus numbering = %+v, want general", unknownCampus.Numbering)
	}
	if unknownCampus.DisplayFolio != "E0424-0001" {
		t.Errorf("DisplayFolio = %q, want E0424-0001", unknownCampus.DisplayFolio)
	}
}

func TestCreateUnpaidHasNoFolios(t *testing.T) {
	env := newTestEnv(t, date(2024, time.April, 2))

	txn, err := env.txns.Create(context.Background(), &models.CreateTransactionRequest{
		CampusID:      campusMerida,
		PaymentMethod: models.PaymentCash,
		Amount:        decimal.NewFromInt(10),
		Paid:          ptr(false),
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if txn.Scheme != models.SchemeNone || txn.Folio != "" || txn.FolioNew != "" || txn.Cash != nil {
		t.Errorf("unpaid numbering = %+v, want empty", txn.Numbering)
	}
	if txn.PaymentDate != nil {
		t.Errorf("PaymentDate = %v, want nil", txn.PaymentDate)
	}
	if txn.DisplayFolio != "" {
		t.Errorf("DisplayFolio = %q, want empty", txn.DisplayFolio)
	}
}

func TestUnpayClearsFolios(t *testing.T) {
	env := newTestEnv(t, date(2024, time.April, 2))
	ctx := context.Background()

	env.pay(t, campusMerida, models.PaymentCash, nil, 10)
	env.pay(t, campusMerida, models.PaymentCash, nil, 10)
	txn := env.pay(t, campusMerida, models.PaymentCash, nil, 10)
	if got := intValue(txn.Cash); got != 3 {
		t.Fatalf("folio_cash = %d, want 3", got)
	}

	unpaid, err := env.txns.Update(ctx, txn.ID, &models.UpdateTransactionRequest{Paid: ptr(false)})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	stored := env.reload(t, unpaid.ID)
	if stored.Paid {
		t.Error("Paid = true, want false")
	}
	if stored.Folio != "" || stored.FolioNew != "" || stored.Cash != nil {
		t.Errorf("numbering after unpay = %+v, want cleared", stored.Numbering)
	}
	if stored.Scheme != models.SchemeNone {
		t.Errorf("Scheme = %q, want none", stored.Scheme)
	}
	if stored.DisplayFolio != "" {
		t.Errorf("DisplayFolio = %q, want empty", stored.DisplayFolio)
	}

	// Settled again a month later: the legacy folio follows the new payment
	// month, the channel folio stays in the creation month.
	env.clock.Set(date(2024, time.May, 3))
	repaid, err := env.txns.Update(ctx, txn.ID, &models.UpdateTransactionRequest{Paid: ptr(true)})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if repaid.PaymentDate == nil || repaid.PaymentDate.Month() != time.May {
		t.Errorf("PaymentDate = %v, want May 2024", repaid.PaymentDate)
	}
	if repaid.Folio != "1" || repaid.FolioNew != "E0524-0001" {
		t.Errorf("legacy after repay = %q/%q, want 1/E0524-0001", repaid.Folio, repaid.FolioNew)
	}
	if repaid.Scheme != models.SchemeChannel || intValue(repaid.Cash) != 4 {
		t.Errorf("numbering after repay = %+v, want folio_cash 4", repaid.Numbering)
	}

	explicit := date(2024, time.April, 20)
	if _, err := env.txns.Update(ctx, txn.ID, &models.UpdateTransactionRequest{Paid: ptr(false)}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	dated, err := env.txns.Update(ctx, txn.ID, &models.UpdateTransactionRequest{Paid: ptr(true), PaymentDate: &explicit})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if dated.PaymentDate == nil || !dated.PaymentDate.Equal(explicit) {
		t.Errorf("PaymentDate = %v, want %v", dated.PaymentDate, explicit)
	}
	if dated.FolioNew != "E0424-0004" {
		t.Errorf("FolioNew = %q, want E0424-0004", dated.FolioNew)
	}
}

func TestUnitOfWorkRetriesConflictOnce(t *testing.T) {
	env := newTestEnv(t, date(2024, time.April, 2))

	tests := []struct {
		name         string
		failures     int
		failWith     error
		wantAttempts int
		wantErr      error
	}{
		{"conflict then success", 1, &pq.Error{Code: "40001"}, 2, nil},
		{"conflict twice", 2, &pq.Error{Code: "40001"}, 2, models.ErrFolioConflict},
		{"other errors are not retried", 1, models.ErrDebtNotFound, 1, models.ErrDebtNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attempts := 0
			err := env.txns.unitOfWork(context.Background(), "test", func(tx *sql.Tx) error {
				attempts++
				if attempts <= tt.failures {
					return tt.failWith
				}
				return nil
			})

			if attempts != tt.wantAttempts {
				t.Errorf("attempts = %d, want %d", attempts, tt.wantAttempts)
			}
			if tt.wantErr == nil && err != nil {
				t.Errorf("unitOfWork() error = %v, want nil", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("unitOfWork() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestRechannelMovesSpecificFolio(t *testing.T) {
	env := newTestEnv(t, date(2024, time.April, 2))

	txn := env.pay(t, campusMerida, models.PaymentCash, nil, 10)

	updated, err := env.txns.Update(context.Background(), txn.ID, &models.UpdateTransactionRequest{
		PaymentMethod: ptr(models.PaymentTransfer),
	})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	if updated.Cash != nil {
		t.Errorf("folio_cash = %d, want nil", *updated.Cash)
	}
	if got := intValue(updated.Transfer); got != 1 {
		t.Errorf("folio_transfer = %d, want 1", got)
	}
	if updated.Folio != txn.Folio {
		t.Errorf("Folio = %q, want unchanged %q", updated.Folio, txn.Folio)
	}
	if updated.FolioNew != "A0424-0001" {
		t.Errorf("FolioNew = %q, want A0424-0001", updated.FolioNew)
	}

	// Moving onto a SAT terminal drops channel numbering altogether.
	sat, err := env.txns.Update(context.Background(), txn.ID, &models.UpdateTransactionRequest{
		PaymentMethod: ptr(models.PaymentCard),
		CardID:        ptr(cardSAT),
	})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if sat.Scheme != models.SchemeGeneral || sat.Transfer != nil || sat.Card != nil {
		t.Errorf("numbering on sat card = %+v, want general", sat.Numbering)
	}
	if sat.DisplayFolio != "MI0424-0001" {
		t.Errorf("DisplayFolio = %q, want MI0424-0001", sat.DisplayFolio)
	}
}

func TestCreateValidation(t *testing.T) {
	env := newTestEnv(t, date(2024, time.April, 2))

	tests := []struct {
		name string
		req  models.CreateTransactionRequest
	}{
		{"missing campus", models.CreateTransactionRequest{PaymentMethod: models.PaymentCash, Amount: decimal.NewFromInt(1)}},
		{"missing method", models.CreateTransactionRequest{CampusID: campusMerida, Amount: decimal.NewFromInt(1)}},
		{"unknown method", models.CreateTransactionRequest{CampusID: campusMerida, PaymentMethod: "check", Amount: decimal.NewFromInt(1)}},
		{"zero amount", models.CreateTransactionRequest{CampusID: campusMerida, PaymentMethod: models.PaymentCash}},
		{"negative amount", models.CreateTransactionRequest{CampusID: campusMerida, PaymentMethod: models.PaymentCash, Amount: decimal.NewFromInt(-5)}},
		{"empty debt id", models.CreateTransactionRequest{CampusID: campusMerida, PaymentMethod: models.PaymentCash, Amount: decimal.NewFromInt(1), DebtID: ptr("")}},
		{"sub-cent amount", models.CreateTransactionRequest{CampusID: campusMerida, PaymentMethod: models.PaymentCash, Amount: decimal.RequireFromString("10.005")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := tt.req
			_, err := env.txns.Create(context.Background(), &req)
			if !errors.Is(err, models.ErrValidation) {
				t.Errorf("Create() error = %v, want ErrValidation", err)
			}
		})
	}

	// Nothing was numbered by the rejected requests.
	if txn := env.pay(t, campusMerida, models.PaymentCash, nil, 10); txn.Folio != "1" || intValue(txn.Cash) != 1 {
		t.Errorf("first accepted payment numbering = %+v, want 1/1", txn.Numbering)
	}
}

func TestUpdateAndDeleteNotFound(t *testing.T) {
	env := newTestEnv(t, date(2024, time.April, 2))
	ctx := context.Background()

	if _, err := env.txns.Update(ctx, "missing", &models.UpdateTransactionRequest{Paid: ptr(false)}); !errors.Is(err, models.ErrTransactionNotFound) {
		t.Errorf("Update() error = %v, want ErrTransactionNotFound", err)
	}
	if err := env.txns.Delete(ctx, "missing"); !errors.Is(err, models.ErrTransactionNotFound) {
		t.Errorf("Delete() error = %v, want ErrTransactionNotFound", err)
	}
	if _, err := env.txns.Get(ctx, "missing"); !errors.Is(err, models.ErrTransactionNotFound) {
		t.Errorf("Get() error = %v, want ErrTransactionNotFound", err)
	}
}
