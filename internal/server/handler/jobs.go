package handler

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Frank2Yang/pdf-paper-converter/internal/jobs"
	"github.com/Frank2Yang/pdf-paper-converter/internal/render"
	"github.com/Frank2Yang/pdf-paper-converter/internal/service"
)

const (
	defaultListLimit = 20
	maxListLimit     = 200
)

// JobManager defines the job operations consumed by the handler.
type JobManager interface {
	Submit(ctx context.Context, files []*service.StagedFile, req service.Request) (*jobs.Job, error)
	Get(ctx context.Context, id string) (*jobs.Job, error)
	List(ctx context.Context, limit int) ([]*jobs.Job, error)
}

// JobHandler serves asynchronous conversions.
type JobHandler struct {
	stager    Stager
	jobs      JobManager
	maxUpload int64
	logger    *zap.Logger
}

func NewJobHandler(stager Stager, manager JobManager, maxUpload int64, logger *zap.Logger) *JobHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &JobHandler{stager: stager, jobs: manager, maxUpload: maxUpload, logger: logger}
}

// HandleSubmit stages the uploads and queues a job for them.
func (h *JobHandler) HandleSubmit(c *gin.Context) {
	files, req, ok := readUpload(c, h.stager, h.maxUpload, h.logger)
	if !ok {
		return
	}

	job, err := h.jobs.Submit(c.Request.Context(), files, req)
	switch {
	case errors.Is(err, jobs.ErrQueueFull), errors.Is(err, jobs.ErrClosed):
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	case err != nil:
		h.logger.Error("submit job", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to queue job"})
		return
	}

	c.Header("Location", "/api/v1/jobs/"+job.ID)
	c.JSON(http.StatusAccepted, job)
}

func (h *JobHandler) HandleList(c *gin.Context) {
	limit := defaultListLimit
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = min(n, maxListLimit)
	}

	list, err := h.jobs.List(c.Request.Context(), limit)
	if err != nil {
		h.logger.Error("list jobs", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to list jobs"})
		return
	}
	if list == nil {
		list = []*jobs.Job{}
	}
	c.JSON(http.StatusOK, list)
}

func (h *JobHandler) HandleGet(c *gin.Context) {
	job, ok := h.lookup(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, job)
}

// HandleDownload returns one rendered output as an attachment.
func (h *JobHandler) HandleDownload(c *gin.Context) {
	job, ok := h.lookup(c)
	if !ok {
		return
	}
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil || index < 0 || index >= len(job.Files) {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "file not found"})
		return
	}
	format, err := render.ParseFormat(c.Param("format"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if index >= len(job.Results) {
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "file not processed yet"})
		return
	}
	res := job.Results[index]
	content, ok := res.Outputs[format]
	if !res.Success || !ok {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "output not available"})
		return
	}

	c.Header("Content-Disposition", attachment(service.Stem(res.FileName)+"."+format.Ext()))
	c.Data(http.StatusOK, format.ContentType(), []byte(content))
}

// HandleArchive returns every output of a finished job as a zip file.
func (h *JobHandler) HandleArchive(c *gin.Context) {
	job, ok := h.lookup(c)
	if !ok {
		return
	}
	if !job.Done() {
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "job not finished"})
		return
	}

	data, n, err := zipOutputs(job)
	if err != nil {
		h.logger.Error("build archive", zap.String("job", job.ID), zap.Error(err))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to build archive"})
		return
	}
	if n == 0 {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "job has no outputs"})
		return
	}

	c.Header("Content-Disposition", attachment(job.ID+".zip"))
	c.Data(http.StatusOK, "application/zip", data)
}

// attachment formats a Content-Disposition value. Quotes are escaped and
// non-ASCII names are sent as an RFC 2231 filename* parameter.
func attachment(name string) string {
	return mime.FormatMediaType("attachment", map[string]string{"filename": name})
}

func (h *JobHandler) lookup(c *gin.Context) (*jobs.Job, bool) {
	job, err := h.jobs.Get(c.Request.Context(), c.Param("id"))
	if errors.Is(err, jobs.ErrJobNotFound) {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return nil, false
	}
	if err != nil {
		h.logger.Error("get job", zap.String("job", c.Param("id")), zap.Error(err))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to load job"})
		return nil, false
	}
	return job, true
}

// zipOutputs writes entries named NN-<stem>.<ext> and reports how many
// were written.
func zipOutputs(job *jobs.Job) ([]byte, int, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	n := 0
	for i, res := range job.Results {
		if !res.Success {
			continue
		}
		for _, format := range render.AllFormats {
			content, ok := res.Outputs[format]
			if !ok {
				continue
			}
			w, err := zw.Create(fmt.Sprintf("%02d-%s.%s", i, service.Stem(res.FileName), format.Ext()))
			if err != nil {
				return nil, 0, err
			}
			if _, err := w.Write([]byte(content)); err != nil {
				return nil, 0, err
			}
			n++
		}
	}
	if err := zw.Close(); err != nil {
		return nil, 0, err
	}
	return buf.Bytes(), n, nil
}
