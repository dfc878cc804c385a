package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/opencoe/exam-paper-api/internal/middleware"
	"github.com/opencoe/exam-paper-api/internal/service"
	"github.com/opencoe/exam-paper-api/pkg/response"
)

// ReleaseHandler exposes the superintendent endpoints for the release gate.
type ReleaseHandler struct {
	service *service.ReleaseService
	metrics *service.MetricsService
}

// NewReleaseHandler creates a new handler.
func NewReleaseHandler(svc *service.ReleaseService, metrics *service.MetricsService) *ReleaseHandler {
	return &ReleaseHandler{service: svc, metrics: metrics}
}

// List returns all finalized papers with their current release eligibility.
func (h *ReleaseHandler) List(c *gin.Context) {
	papers, err := h.service.ListPapers(c.Request.Context(), middleware.CurrentUser(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, papers, nil)
}

// Download streams the paper PDF. The claim is single use: a second call for
// the same paper is rejected.
func (h *ReleaseHandler) Download(c *gin.Context) {
	paper, err := h.service.Download(c.Request.Context(), c.Param("id"), middleware.CurrentUser(c))
	if err != nil {
		h.metrics.CountDownload("failure")
		response.Error(c, err)
		return
	}
	h.metrics.CountDownload("success")

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", paper.Filename))
	c.Data(http.StatusOK, "application/pdf", paper.Content)
}
