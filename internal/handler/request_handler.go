package handler

import (
	"io"
	"net/http"
	"path/filepath"

	"github.com/gin-gonic/gin"

	"github.com/opencoe/exam-paper-api/internal/middleware"
	"github.com/opencoe/exam-paper-api/internal/service"
	appErrors "github.com/opencoe/exam-paper-api/pkg/errors"
	"github.com/opencoe/exam-paper-api/pkg/response"
)

// maxPaperSize bounds the multipart upload body.
const maxPaperSize = 32 << 20

// RequestHandler exposes the setter-facing lifecycle endpoints.
type RequestHandler struct {
	service *service.RequestService
}

// NewRequestHandler creates a new handler.
func NewRequestHandler(svc *service.RequestService) *RequestHandler {
	return &RequestHandler{service: svc}
}

// List returns the calling setter's requests. ?pending=true limits the list
// to requests still awaiting acceptance.
func (h *RequestHandler) List(c *gin.Context) {
	pending := c.Query("pending") == "true"
	requests, err := h.service.ListForSetter(c.Request.Context(), pending, middleware.CurrentUser(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, requests, nil)
}

// Accept moves a pending request into the accepted state.
func (h *RequestHandler) Accept(c *gin.Context) {
	if err := h.service.Accept(c.Request.Context(), c.Param("id"), middleware.CurrentUser(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"status": "accepted"}, nil)
}

// UploadPaper receives the setter's document as multipart form data, encrypts
// it and stages it for finalization.
func (h *RequestHandler) UploadPaper(c *gin.Context) {
	upload, err := readMultipartFile(c, "paper", maxPaperSize)
	if err != nil {
		response.Error(c, err)
		return
	}

	record, err := h.service.UploadPaper(c.Request.Context(), c.Param("id"), upload, middleware.CurrentUser(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

func readMultipartFile(c *gin.Context, field string, limit int64) (service.PaperUpload, error) {
	header, err := c.FormFile(field)
	if err != nil {
		return service.PaperUpload{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, field+" file is required")
	}
	if header.Size > limit {
		return service.PaperUpload{}, appErrors.Clone(appErrors.ErrValidation, field+" file is too large")
	}

	file, err := header.Open()
	if err != nil {
		return service.PaperUpload{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "failed to open uploaded file")
	}
	defer file.Close() //nolint:errcheck

	content, err := io.ReadAll(io.LimitReader(file, limit))
	if err != nil {
		return service.PaperUpload{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read uploaded file")
	}

	return service.PaperUpload{
		Filename: filepath.Base(header.Filename),
		Content:  content,
	}, nil
}
