package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/emmanuelh-dev/prexun-backend-sub000/internal/metrics"
	"github.com/emmanuelh-dev/prexun-backend-sub000/internal/models"
	"github.com/emmanuelh-dev/prexun-backend-sub000/internal/repository"
	"github.com/emmanuelh-dev/prexun-backend-sub000/pkg/redis"
)

const (
	idempotencyTTL     = 24 * time.Hour
	idempotencyLockTTL = 30 * time.Second
)

// TransactionService is the write path for payments: every create, update
// and delete allocates folios, writes the row and recomputes the linked debt
// in one unit of work.
type TransactionService struct {
	store       *repository.Store
	allocator   *FolioAllocator
	ledger      *DebtLedger
	campuses    *CampusCache
	redisClient *redis.Client
	logger      *zap.Logger
	now         func() time.Time
}

// TransactionServiceOption configures optional collaborators.
type TransactionServiceOption func(*TransactionService)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) TransactionServiceOption {
	return func(s *TransactionService) {
		s.now = now
	}
}

// WithIdempotencyCache enables Idempotency-Key handling on Create.
func WithIdempotencyCache(client *redis.Client) TransactionServiceOption {
	return func(s *TransactionService) {
		s.redisClient = client
	}
}

func NewTransactionService(
	store *repository.Store,
	allocator *FolioAllocator,
	ledger *DebtLedger,
	campuses *CampusCache,
	logger *zap.Logger,
	opts ...TransactionServiceOption,
) *TransactionService {
	s := &TransactionService{
		store:     store,
		allocator: allocator,
		ledger:    ledger,
		campuses:  campuses,
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create records a transaction. Paid defaults to true; paid transactions get
// their folios and update the referenced debt before the commit.
func (s *TransactionService) Create(ctx context.Context, req *models.CreateTransactionRequest) (*models.Transaction, error) {
	if err := validateCreate(req); err != nil {
		return nil, err
	}

	if req.IdempotencyKey != "" {
		if cached, err := s.getIdempotent(ctx, req.IdempotencyKey); err == nil && cached != nil {
			s.logger.Info("idempotent replay", zap.String("transaction_id", cached.ID))
			return cached, nil
		}

		release, err := s.claimIdempotent(ctx, req.IdempotencyKey)
		if err != nil {
			return nil, err
		}
		defer release()
	}

	paid := true
	if req.Paid != nil {
		paid = *req.Paid
	}

	var txn *models.Transaction
	err := s.unitOfWork(ctx, "create", func(tx *sql.Tx) error {
		now := s.now()
		txn = &models.Transaction{
			ID:            uuid.New().String(),
			CampusID:      req.CampusID,
			DebtID:        req.DebtID,
			CardID:        req.CardID,
			PaymentMethod: req.PaymentMethod,
			Amount:        req.Amount,
			Paid:          paid,
			Notes:         req.Notes,
			Numbering:     models.Numbering{Scheme: models.SchemeNone},
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if paid {
			txn.PaymentDate = req.PaymentDate
		}

		if txn.DebtID != nil {
			if _, err := s.store.Debts.GetByID(ctx, tx, *txn.DebtID, false); err != nil {
				return err
			}
		}

		cfg, campusName := s.channelConfig(ctx, tx, txn)
		if err := s.allocator.Allocate(ctx, tx, txn, cfg, now); err != nil {
			return err
		}

		if err := s.store.Transactions.Create(ctx, tx, txn); err != nil {
			return fmt.Errorf("failed to create transaction: %w", err)
		}

		if txn.DebtID != nil {
			if _, err := s.ledger.Recompute(ctx, tx, *txn.DebtID, now); err != nil {
				return err
			}
		}

		txn.DisplayFolio = FormatFolio(txn, campusName, cfg.Card)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if req.IdempotencyKey != "" {
		s.cacheIdempotent(ctx, req.IdempotencyKey, txn)
	}

	s.logger.Info("transaction created",
		zap.String("transaction_id", txn.ID),
		zap.Int64("campus_id", txn.CampusID),
		zap.String("payment_method", string(txn.PaymentMethod)),
		zap.Bool("paid", txn.Paid),
		zap.String("folio", txn.DisplayFolio))

	return txn, nil
}

// Update applies a partial change. Folios are recomputed when the paid flag,
// channel or card changes, and both the old and the new debt are recomputed.
func (s *TransactionService) Update(ctx context.Context, id string, req *models.UpdateTransactionRequest) (*models.Transaction, error) {
	if err := validateUpdate(req); err != nil {
		return nil, err
	}

	var txn *models.Transaction
	err := s.unitOfWork(ctx, "update", func(tx *sql.Tx) error {
		now := s.now()

		current, err := s.store.Transactions.GetByID(ctx, tx, id, true)
		if err != nil {
			return err
		}
		txn = current

		wasPaid := txn.Paid
		oldMethod := txn.PaymentMethod
		oldCard := txn.CardID
		oldDebt := txn.DebtID

		applyUpdate(txn, req)

		if txn.DebtID != nil && !sameString(txn.DebtID, oldDebt) {
			if _, err := s.store.Debts.GetByID(ctx, tx, *txn.DebtID, false); err != nil {
				return err
			}
		}

		cfg, campusName := s.channelConfig(ctx, tx, txn)
		switch {
		case !txn.Paid:
			s.allocator.Release(txn)
		case !wasPaid:
			// Settling again dates the payment now unless the caller says when.
			if req.PaymentDate == nil {
				paidAt := now
				txn.PaymentDate = &paidAt
			}
			txn.Numbering.Clear()
			if err := s.allocator.Allocate(ctx, tx, txn, cfg, now); err != nil {
				return err
			}
		case txn.PaymentMethod != oldMethod || !sameInt(txn.CardID, oldCard):
			if err := s.allocator.Allocate(ctx, tx, txn, cfg, now); err != nil {
				return err
			}
		}

		txn.UpdatedAt = now
		if err := s.store.Transactions.Update(ctx, tx, txn); err != nil {
			return fmt.Errorf("failed to update transaction: %w", err)
		}

		for _, debtID := range debtsToRecompute(oldDebt, txn.DebtID) {
			if _, err := s.ledger.Recompute(ctx, tx, debtID, now); err != nil {
				return err
			}
		}

		txn.DisplayFolio = FormatFolio(txn, campusName, cfg.Card)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("transaction updated",
		zap.String("transaction_id", txn.ID),
		zap.Bool("paid", txn.Paid),
		zap.String("folio", txn.DisplayFolio))
	return txn, nil
}

// Delete removes a transaction and recomputes the debt it paid toward.
func (s *TransactionService) Delete(ctx context.Context, id string) error {
	err := s.unitOfWork(ctx, "delete", func(tx *sql.Tx) error {
		txn, err := s.store.Transactions.GetByID(ctx, tx, id, true)
		if err != nil {
			return err
		}

		if err := s.store.Transactions.Delete(ctx, tx, id); err != nil {
			return fmt.Errorf("failed to delete transaction: %w", err)
		}

		if txn.DebtID != nil {
			if _, err := s.ledger.Recompute(ctx, tx, *txn.DebtID, s.now()); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("transaction deleted", zap.String("transaction_id", id))
	return nil
}

// Get returns a transaction with its display folio filled in.
func (s *TransactionService) Get(ctx context.Context, id string) (*models.Transaction, error) {
	txn, err := s.store.Transactions.GetByID(ctx, s.store.DB(), id, false)
	if err != nil {
		return nil, err
	}
	txn.DisplayFolio = s.displayFolio(ctx, txn)
	return txn, nil
}

// DisplayFolio returns only the display folio of a transaction.
func (s *TransactionService) DisplayFolio(ctx context.Context, id string) (string, error) {
	txn, err := s.Get(ctx, id)
	if err != nil {
		return "", err
	}
	return txn.DisplayFolio, nil
}

func (s *TransactionService) displayFolio(ctx context.Context, txn *models.Transaction) string {
	name, err := s.campuses.Name(ctx, txn.CampusID)
	if err != nil {
		s.logger.Warn("campus lookup failed for folio display",
			zap.Int64("campus_id", txn.CampusID), zap.Error(err))
	}

	var card *models.Card
	if txn.CardID != nil {
		card, err = s.store.References.GetCard(ctx, s.store.DB(), *txn.CardID)
		if err != nil {
			s.logger.Warn("card lookup failed for folio display",
				zap.Int64("card_id", *txn.CardID), zap.Error(err))
			card = nil
		}
	}
	return FormatFolio(txn, name, card)
}

// channelConfig looks up the campus and card of a transaction. Failures do
// not fail the request; they push allocation onto general numbering.
func (s *TransactionService) channelConfig(ctx context.Context, q repository.Queryer, txn *models.Transaction) (ChannelConfig, string) {
	var cfg ChannelConfig
	var campusName string

	campus, err := s.store.References.GetCampus(ctx, q, txn.CampusID)
	if err != nil {
		cfg.Degraded = true
		metrics.DegradedAllocations.WithLabelValues("campus").Inc()
		s.logger.Warn("campus lookup failed, using general numbering",
			zap.Int64("campus_id", txn.CampusID), zap.Error(err))
	} else {
		campusName = campus.Name
	}

	if txn.CardID != nil {
		card, err := s.store.References.GetCard(ctx, q, *txn.CardID)
		if err != nil {
			cfg.Degraded = true
			metrics.DegradedAllocations.WithLabelValues("card").Inc()
			s.logger.Warn("card lookup failed, using general numbering",
				zap.Int64("card_id", *txn.CardID), zap.Error(err))
		} else {
			cfg.Card = card
		}
	}
	return cfg, campusName
}

// unitOfWork runs fn in a database transaction and retries it once in a
// fresh one when the first attempt lost a folio race.
func (s *TransactionService) unitOfWork(ctx context.Context, operation string, fn func(tx *sql.Tx) error) error {
	start := time.Now()
	defer func() {
		metrics.UnitOfWorkDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	}()

	err := s.store.InTx(ctx, fn)
	if !errors.Is(err, models.ErrFolioConflict) {
		return err
	}

	metrics.Conflicts.WithLabelValues("retried").Inc()
	s.logger.Warn("folio conflict, retrying", zap.String("operation", operation), zap.Error(err))

	err = s.store.InTx(ctx, fn)
	if errors.Is(err, models.ErrFolioConflict) {
		metrics.Conflicts.WithLabelValues("failed").Inc()
		s.logger.Error("folio conflict after retry", zap.String("operation", operation), zap.Error(err))
	}
	return err
}

func (s *TransactionService) getIdempotent(ctx context.Context, key string) (*models.Transaction, error) {
	if s.redisClient == nil {
		return nil, nil
	}

	data, err := s.redisClient.Get(ctx, idempotencyKey(key))
	if err != nil {
		if err != redis.ErrKeyNotFound {
			s.logger.Warn("idempotency lookup failed", zap.Error(err))
		}
		return nil, err
	}

	var txn models.Transaction
	if err := json.Unmarshal([]byte(data), &txn); err != nil {
		return nil, err
	}
	return &txn, nil
}

// claimIdempotent marks a key as being processed so a concurrent retry of
// the same request is turned away instead of recording a second payment.
// Redis failures leave the request unguarded.
func (s *TransactionService) claimIdempotent(ctx context.Context, key string) (func(), error) {
	noop := func() {}
	if s.redisClient == nil {
		return noop, nil
	}

	lock := idempotencyKey(key) + ":lock"
	acquired, err := s.redisClient.SetNX(ctx, lock, "1", idempotencyLockTTL)
	if err != nil {
		s.logger.Warn("idempotency lock failed", zap.Error(err))
		return noop, nil
	}
	if !acquired {
		return nil, fmt.Errorf("%w: %s", models.ErrRequestInProgress, key)
	}

	return func() {
		if err := s.redisClient.Delete(context.Background(), lock); err != nil {
			s.logger.Warn("failed to release idempotency lock", zap.Error(err))
		}
	}, nil
}

func (s *TransactionService) cacheIdempotent(ctx context.Context, key string, txn *models.Transaction) {
	if s.redisClient == nil {
		return
	}

	data, err := json.Marshal(txn)
	if err != nil {
		s.logger.Warn("failed to marshal transaction for idempotency cache", zap.Error(err))
		return
	}
	if err := s.redisClient.Set(ctx, idempotencyKey(key), data, idempotencyTTL); err != nil {
		s.logger.Warn("failed to cache idempotent transaction", zap.Error(err))
	}
}

func idempotencyKey(key string) string {
	return fmt.Sprintf("idempotency:transactions:%s", key)
}

func validateCreate(req *models.CreateTransactionRequest) error {
	switch {
	case req.CampusID <= 0:
		return fmt.Errorf("%w: campus_id is required", models.ErrValidation)
	case req.PaymentMethod == "":
		return fmt.Errorf("%w: payment_method is required", models.ErrValidation)
	case !req.PaymentMethod.Valid():
		return fmt.Errorf("%w: unknown payment_method %q", models.ErrValidation, req.PaymentMethod)
	case !models.ValidAmount(req.Amount):
		return fmt.Errorf("%w: amount must be greater than zero with at most %d decimals", models.ErrValidation, models.AmountScale)
	case req.DebtID != nil && *req.DebtID == "":
		return fmt.Errorf("%w: debt_id must not be empty", models.ErrValidation)
	}
	return nil
}

func validateUpdate(req *models.UpdateTransactionRequest) error {
	switch {
	case req.PaymentMethod != nil && !req.PaymentMethod.Valid():
		return fmt.Errorf("%w: unknown payment_method %q", models.ErrValidation, *req.PaymentMethod)
	case req.Amount != nil && !models.ValidAmount(*req.Amount):
		return fmt.Errorf("%w: amount must be greater than zero with at most %d decimals", models.ErrValidation, models.AmountScale)
	case req.CardID != nil && req.ClearCard:
		return fmt.Errorf("%w: card_id and clear_card are exclusive", models.ErrValidation)
	case req.DebtID != nil && req.ClearDebt:
		return fmt.Errorf("%w: debt_id and clear_debt are exclusive", models.ErrValidation)
	case req.DebtID != nil && *req.DebtID == "":
		return fmt.Errorf("%w: debt_id must not be empty", models.ErrValidation)
	}
	return nil
}

func applyUpdate(txn *models.Transaction, req *models.UpdateTransactionRequest) {
	if req.PaymentMethod != nil {
		txn.PaymentMethod = *req.PaymentMethod
	}
	if req.CardID != nil {
		txn.CardID = req.CardID
	}
	if req.ClearCard {
		txn.CardID = nil
	}
	if req.Amount != nil {
		txn.Amount = *req.Amount
	}
	if req.Paid != nil {
		txn.Paid = *req.Paid
	}
	if req.PaymentDate != nil {
		txn.PaymentDate = req.PaymentDate
	}
	if req.DebtID != nil {
		txn.DebtID = req.DebtID
	}
	if req.ClearDebt {
		txn.DebtID = nil
	}
	if req.Notes != nil {
		txn.Notes = *req.Notes
	}
}

func debtsToRecompute(before, after *string) []string {
	var ids []string
	if before != nil {
		ids = append(ids, *before)
	}
	if after != nil && !sameString(before, after) {
		ids = append(ids, *after)
	}
	return ids
}

func sameString(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func sameInt(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
