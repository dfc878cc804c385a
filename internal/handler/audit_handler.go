package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/opencoe/exam-paper-api/internal/middleware"
	"github.com/opencoe/exam-paper-api/internal/service"
	"github.com/opencoe/exam-paper-api/pkg/response"
)

// AuditHandler serves the on-chain audit trail.
type AuditHandler struct {
	service *service.AuditService
}

// NewAuditHandler creates a new handler.
func NewAuditHandler(svc *service.AuditService) *AuditHandler {
	return &AuditHandler{service: svc}
}

// History returns the merged upload/download event trail as JSON.
func (h *AuditHandler) History(c *gin.Context) {
	events, err := h.service.History(c.Request.Context(), middleware.CurrentUser(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, events, nil)
}

// Export renders the audit trail as a downloadable PDF report.
func (h *AuditHandler) Export(c *gin.Context) {
	report, err := h.service.ExportPDF(c.Request.Context(), middleware.CurrentUser(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	filename := fmt.Sprintf("audit-trail-%s.pdf", time.Now().UTC().Format("2006-01-02"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "application/pdf", report)
}
