package handler

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/emmanuelh-dev/prexun-backend-sub000/internal/models"
	"github.com/emmanuelh-dev/prexun-backend-sub000/internal/service"
)

type FolioHandler struct {
	auditor *service.ReconciliationAuditor
	logger  *zap.Logger
}

func NewFolioHandler(auditor *service.ReconciliationAuditor, logger *zap.Logger) *FolioHandler {
	return &FolioHandler{
		auditor: auditor,
		logger:  logger,
	}
}

func (h *FolioHandler) Register(v1 *gin.RouterGroup) {
	folios := v1.Group("/folios")
	{
		folios.POST("/audit", h.Audit)
		folios.GET("/audits", h.ListAudits)
		folios.POST("/import", h.Import)
	}
}

// Audit handles POST /api/v1/folios/audit
func (h *FolioHandler) Audit(c *gin.Context) {
	var req models.AuditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	report, err := h.auditor.Audit(c.Request.Context(), req.CampusID, req.Month, req.Year, req.DryRun)
	if err != nil {
		respondError(c, h.logger, "Failed to audit folios", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"report": report})
}

// ListAudits handles GET /api/v1/folios/audits?campus_id=&month=&year=
func (h *FolioHandler) ListAudits(c *gin.Context) {
	var params [3]int64
	for i, name := range []string{"campus_id", "month", "year"} {
		v, err := strconv.ParseInt(c.Query(name), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": name + " query parameter is required"})
			return
		}
		params[i] = v
	}

	reports, err := h.auditor.Reports(c.Request.Context(), params[0], int(params[1]), int(params[2]))
	if err != nil {
		respondError(c, h.logger, "Failed to list audit reports", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"reports": reports, "count": len(reports)})
}

// Import handles POST /api/v1/folios/import?campus_id=
// The CSV comes either as a multipart "file" field or as the raw body.
func (h *FolioHandler) Import(c *gin.Context) {
	campusID, err := strconv.ParseInt(c.Query("campus_id"), 10, 64)
	if err != nil || campusID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "campus_id query parameter is required"})
		return
	}

	body, err := h.csvBody(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	defer body.Close()

	report, err := h.auditor.ImportLegacyFolios(c.Request.Context(), body, campusID)
	if err != nil {
		respondError(c, h.logger, "Failed to import folios", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"report": report})
}

func (h *FolioHandler) csvBody(c *gin.Context) (io.ReadCloser, error) {
	if !strings.HasPrefix(c.ContentType(), "multipart/") {
		return c.Request.Body, nil
	}

	header, err := c.FormFile("file")
	if err != nil {
		return nil, fmt.Errorf("file field is required: %w", err)
	}
	return header.Open()
}
