// Package app wires the ledger's storage, caches and services from a Config.
// Both the HTTP server and folioctl start from here.
package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/emmanuelh-dev/prexun-backend-sub000/internal/config"
	"github.com/emmanuelh-dev/prexun-backend-sub000/internal/repository"
	"github.com/emmanuelh-dev/prexun-backend-sub000/internal/service"
	"github.com/emmanuelh-dev/prexun-backend-sub000/pkg/database"
	"github.com/emmanuelh-dev/prexun-backend-sub000/pkg/redis"
)

type App struct {
	DB    *database.DB
	Redis *redis.Client
	Store *repository.Store

	Allocator    *service.FolioAllocator
	Ledger       *service.DebtLedger
	Campuses     *service.CampusCache
	Transactions *service.TransactionService
	Auditor      *service.ReconciliationAuditor
}

// New connects to the database and, when configured, Redis. An unreachable
// Redis is logged and left out rather than failing startup.
func New(ctx context.Context, cfg *config.Config, log *zap.Logger) (*App, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	db, err := database.Open(cfg.Database.Driver, cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient, err = redis.NewFromURL(cfg.Redis.Addr)
		if err != nil {
			db.Close()
			return nil, err
		}

		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err := redisClient.Ping(pingCtx)
		cancel()
		if err != nil {
			log.Warn("redis unavailable, continuing without it",
				zap.String("addr", redisClient.Addr()), zap.Error(err))
			redisClient.Close()
			redisClient = nil
		}
	}

	return Build(db, redisClient, loc, cfg.Cache.CampusTTL, log), nil
}

// Build assembles the services over an open database. redisClient may be nil.
func Build(db *database.DB, redisClient *redis.Client, loc *time.Location, campusTTL time.Duration, log *zap.Logger, opts ...service.TransactionServiceOption) *App {
	store := repository.NewStore(db)
	allocator := service.NewFolioAllocator(store, loc, log)
	ledger := service.NewDebtLedger(store, log, nil)
	campuses := service.NewCampusCache(store, redisClient, campusTTL, log)

	if redisClient != nil {
		opts = append([]service.TransactionServiceOption{service.WithIdempotencyCache(redisClient)}, opts...)
	}

	return &App{
		DB:           db,
		Redis:        redisClient,
		Store:        store,
		Allocator:    allocator,
		Ledger:       ledger,
		Campuses:     campuses,
		Transactions: service.NewTransactionService(store, allocator, ledger, campuses, log, opts...),
		Auditor:      service.NewReconciliationAuditor(store, loc, log, nil),
	}
}

// Close releases the database and Redis connections.
func (a *App) Close() {
	if a.Redis != nil {
		a.Redis.Close()
	}
	a.DB.Close()
}
