package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/emmanuelh-dev/prexun-backend-sub000/internal/models"
	"github.com/emmanuelh-dev/prexun-backend-sub000/internal/service"
)

const idempotencyHeader = "Idempotency-Key"

type TransactionHandler struct {
	service *service.TransactionService
	logger  *zap.Logger
}

func NewTransactionHandler(service *service.TransactionService, logger *zap.Logger) *TransactionHandler {
	return &TransactionHandler{
		service: service,
		logger:  logger,
	}
}

// Register mounts the transaction routes on the API group.
func (h *TransactionHandler) Register(v1 *gin.RouterGroup) {
	transactions := v1.Group("/transactions")
	{
		transactions.POST("", h.CreateTransaction)
		transactions.GET("/:id", h.GetTransaction)
		transactions.PATCH("/:id", h.UpdateTransaction)
		transactions.DELETE("/:id", h.DeleteTransaction)
		transactions.GET("/:id/folio", h.GetFolio)
	}
}

// CreateTransaction handles POST /api/v1/transactions
func (h *TransactionHandler) CreateTransaction(c *gin.Context) {
	var req models.CreateTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	req.IdempotencyKey = c.GetHeader(idempotencyHeader)

	txn, err := h.service.Create(c.Request.Context(), &req)
	if err != nil {
		respondError(c, h.logger, "Failed to create transaction", err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"transaction": txn})
}

// GetTransaction handles GET /api/v1/transactions/:id
func (h *TransactionHandler) GetTransaction(c *gin.Context) {
	txn, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, "Failed to get transaction", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"transaction": txn})
}

// UpdateTransaction handles PATCH /api/v1/transactions/:id
func (h *TransactionHandler) UpdateTransaction(c *gin.Context) {
	var req models.UpdateTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	txn, err := h.service.Update(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		respondError(c, h.logger, "Failed to update transaction", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"transaction": txn})
}

// DeleteTransaction handles DELETE /api/v1/transactions/:id
func (h *TransactionHandler) DeleteTransaction(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, h.logger, "Failed to delete transaction", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Transaction deleted successfully"})
}

// GetFolio handles GET /api/v1/transactions/:id/folio
func (h *TransactionHandler) GetFolio(c *gin.Context) {
	id := c.Param("id")
	folio, err := h.service.DisplayFolio(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, "Failed to get folio", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"transaction_id": id, "folio": folio})
}
