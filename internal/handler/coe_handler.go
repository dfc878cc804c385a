package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/opencoe/exam-paper-api/internal/dto"
	"github.com/opencoe/exam-paper-api/internal/middleware"
	"github.com/opencoe/exam-paper-api/internal/service"
	appErrors "github.com/opencoe/exam-paper-api/pkg/errors"
	"github.com/opencoe/exam-paper-api/pkg/response"
)

// COEHandler exposes the controller-of-examinations endpoints: creating
// assignments, monitoring requests and finalizing uploaded papers.
type COEHandler struct {
	requests *service.RequestService
	finalize *service.FinalizeService
	metrics  *service.MetricsService
}

// NewCOEHandler creates a new handler.
func NewCOEHandler(requests *service.RequestService, finalize *service.FinalizeService, metrics *service.MetricsService) *COEHandler {
	return &COEHandler{requests: requests, finalize: finalize, metrics: metrics}
}

// EligibleSetters lists teachers who match the filter and have no active
// assignment.
func (h *COEHandler) EligibleSetters(c *gin.Context) {
	var filter dto.EligibleSettersFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid setter filter"))
		return
	}

	result, err := h.requests.EligibleSetters(c.Request.Context(), filter, middleware.CurrentUser(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// CreateAssignment registers a new paper request. The syllabus and question
// pattern arrive alongside the form fields as multipart files.
func (h *COEHandler) CreateAssignment(c *gin.Context) {
	var req dto.CreateAssignmentRequest
	if err := c.ShouldBind(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid assignment payload"))
		return
	}

	syllabus, err := readMultipartFile(c, "syllabus", maxPaperSize)
	if err != nil {
		response.Error(c, err)
		return
	}
	qPattern, err := readMultipartFile(c, "q_pattern", maxPaperSize)
	if err != nil {
		response.Error(c, err)
		return
	}

	record, err := h.requests.CreateAssignment(c.Request.Context(), req, syllabus, qPattern, middleware.CurrentUser(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, record)
}

// Overview lists every request with its setter and current status.
func (h *COEHandler) Overview(c *gin.Context) {
	rows, err := h.requests.Overview(c.Request.Context(), middleware.CurrentUser(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rows, nil)
}

// Finalize publishes an uploaded paper and records it on the ledger.
func (h *COEHandler) Finalize(c *gin.Context) {
	paper, err := h.finalize.Finalize(c.Request.Context(), c.Param("id"), middleware.CurrentUser(c))
	if err != nil {
		h.metrics.CountFinalization("failure")
		response.Error(c, err)
		return
	}
	h.metrics.CountFinalization("success")
	response.JSON(c, http.StatusOK, paper, nil)
}
