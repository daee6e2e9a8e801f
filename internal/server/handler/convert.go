package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Frank2Yang/pdf-paper-converter/internal/service"
)

// ConvertService defines the behavior consumed by the handler.
type ConvertService interface {
	Stager
	ConvertAll(ctx context.Context, files []*service.StagedFile, req service.Request) []service.Result
}

// ConvertHandler serves synchronous conversions.
type ConvertHandler struct {
	service   ConvertService
	maxUpload int64
	logger    *zap.Logger
}

// NewConvertHandler builds the handler. maxUpload is the total size limit
// for one request in bytes; zero disables the check.
func NewConvertHandler(svc ConvertService, maxUpload int64, logger *zap.Logger) *ConvertHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConvertHandler{service: svc, maxUpload: maxUpload, logger: logger}
}

// HandleConvert converts the uploaded PDFs and returns one result per file.
func (h *ConvertHandler) HandleConvert(c *gin.Context) {
	files, req, ok := readUpload(c, h.service, h.maxUpload, h.logger)
	if !ok {
		return
	}

	results := h.service.ConvertAll(c.Request.Context(), files, req)
	if service.AllFailed(results) {
		h.logger.Warn("every file failed", zap.Int("files", len(results)))
		c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{
			"error":   "conversion failed",
			"results": results,
		})
		return
	}

	c.JSON(http.StatusOK, results)
}
