package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/emmanuelh-dev/prexun-backend-sub000/internal/models"
	"github.com/emmanuelh-dev/prexun-backend-sub000/internal/service"
)

type DebtHandler struct {
	ledger *service.DebtLedger
	logger *zap.Logger
}

func NewDebtHandler(ledger *service.DebtLedger, logger *zap.Logger) *DebtHandler {
	return &DebtHandler{
		ledger: ledger,
		logger: logger,
	}
}

func (h *DebtHandler) Register(v1 *gin.RouterGroup) {
	debts := v1.Group("/debts")
	{
		debts.POST("", h.CreateDebt)
		debts.GET("/:id", h.GetDebt)
		debts.DELETE("/:id", h.DeleteDebt)
	}
}

// CreateDebt handles POST /api/v1/debts
func (h *DebtHandler) CreateDebt(c *gin.Context) {
	var req models.CreateDebtRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	debt, err := h.ledger.CreateDebt(c.Request.Context(), &req)
	if err != nil {
		respondError(c, h.logger, "Failed to create debt", err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"debt": debt})
}

// GetDebt handles GET /api/v1/debts/:id
func (h *DebtHandler) GetDebt(c *gin.Context) {
	debt, err := h.ledger.GetDebt(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, "Failed to get debt", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"debt": debt})
}

// DeleteDebt handles DELETE /api/v1/debts/:id
func (h *DebtHandler) DeleteDebt(c *gin.Context) {
	if err := h.ledger.DeleteDebt(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, h.logger, "Failed to delete debt", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Debt deleted successfully"})
}
