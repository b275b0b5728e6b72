package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/emmanuelh-dev/prexun-backend-sub000/internal/models"
)

// respondError maps service errors onto status codes. Anything unknown is
// logged and hidden behind a generic message.
func respondError(c *gin.Context, logger *zap.Logger, msg string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, models.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, models.ErrTransactionNotFound),
		errors.Is(err, models.ErrDebtNotFound),
		errors.Is(err, models.ErrCampusNotFound),
		errors.Is(err, models.ErrCardNotFound):
		status = http.StatusNotFound
	case errors.Is(err, models.ErrFolioConflict),
		errors.Is(err, models.ErrDebtHasTransactions),
		errors.Is(err, models.ErrRequestInProgress):
		status = http.StatusConflict
	}

	if status == http.StatusInternalServerError {
		logger.Error(msg, zap.Error(err))
		c.JSON(status, gin.H{"error": msg})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
