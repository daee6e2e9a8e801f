package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Frank2Yang/pdf-paper-converter/internal/mineru"
	"github.com/Frank2Yang/pdf-paper-converter/internal/render"
	"github.com/Frank2Yang/pdf-paper-converter/internal/service"
)

const (
	multipartMemory = 32 << 20
	// formOverhead is allowed on top of the file limit for boundaries and fields.
	formOverhead = 1 << 20
)

// Stager persists an upload to local disk.
type Stager interface {
	Stage(u service.Upload) (*service.StagedFile, error)
}

// readUpload parses the multipart form, validates the options and stages
// every "file" part. On failure it aborts the request and returns false.
func readUpload(c *gin.Context, stager Stager, maxBytes int64, logger *zap.Logger) ([]*service.StagedFile, service.Request, bool) {
	if maxBytes > 0 {
		if c.Request.ContentLength > maxBytes+formOverhead {
			abortTooLarge(c, maxBytes)
			return nil, service.Request{}, false
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes+formOverhead)
	}

	if err := c.Request.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			abortTooLarge(c, maxBytes)
			return nil, service.Request{}, false
		}
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"error": "invalid multipart payload",
		})
		return nil, service.Request{}, false
	}
	form := c.Request.MultipartForm
	defer form.RemoveAll()

	headers := form.File["file"]
	if len(headers) == 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"error": "missing file",
		})
		return nil, service.Request{}, false
	}
	var total int64
	for _, h := range headers {
		total += h.Size
	}
	if maxBytes > 0 && total > maxBytes {
		abortTooLarge(c, maxBytes)
		return nil, service.Request{}, false
	}

	req, err := parseRequest(c)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"error": err.Error(),
		})
		return nil, service.Request{}, false
	}

	staged := make([]*service.StagedFile, 0, len(headers))
	fail := func(status int, msg string) ([]*service.StagedFile, service.Request, bool) {
		for _, f := range staged {
			f.Cleanup()
		}
		c.AbortWithStatusJSON(status, gin.H{"error": msg})
		return nil, service.Request{}, false
	}
	for _, h := range headers {
		file, err := h.Open()
		if err != nil {
			return fail(http.StatusBadRequest, "unreadable file "+h.Filename)
		}
		f, err := stager.Stage(service.Upload{Name: h.Filename, Size: h.Size, Reader: file})
		file.Close()
		if err != nil {
			if service.IsClientError(err) {
				return fail(http.StatusBadRequest, err.Error())
			}
			logger.Error("stage upload", zap.String("file", h.Filename), zap.Error(err))
			return fail(http.StatusInternalServerError, "failed to store upload")
		}
		staged = append(staged, f)
	}
	return staged, req, true
}

func parseRequest(c *gin.Context) (service.Request, error) {
	opts := mineru.DefaultOptions()
	var err error
	if opts.Language, err = mineru.ParseLanguage(c.PostForm("language")); err != nil {
		return service.Request{}, err
	}
	if opts.Method, err = mineru.ParseMethod(c.PostForm("parse_method")); err != nil {
		return service.Request{}, err
	}
	if opts.FormulaEnable, err = formBool(c, "formula_enable", opts.FormulaEnable); err != nil {
		return service.Request{}, err
	}
	if opts.TableEnable, err = formBool(c, "table_enable", opts.TableEnable); err != nil {
		return service.Request{}, err
	}
	formats, err := render.ParseFormats(c.PostForm("formats"))
	if err != nil {
		return service.Request{}, err
	}
	return service.Request{Options: opts, Formats: formats}, nil
}

func formBool(c *gin.Context, key string, def bool) (bool, error) {
	v := strings.TrimSpace(c.PostForm(key))
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %q", key, v)
	}
	return b, nil
}

func abortTooLarge(c *gin.Context, maxBytes int64) {
	c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{
		"error": fmt.Sprintf("upload exceeds the %d MB limit", maxBytes>>20),
	})
}
