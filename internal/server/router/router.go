package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Frank2Yang/pdf-paper-converter/internal/server/middleware"
)

// ConvertHandler serves synchronous conversions.
type ConvertHandler interface {
	HandleConvert(c *gin.Context)
}

// JobHandler serves the asynchronous job API.
type JobHandler interface {
	HandleSubmit(c *gin.Context)
	HandleList(c *gin.Context)
	HandleGet(c *gin.Context)
	HandleDownload(c *gin.Context)
	HandleArchive(c *gin.Context)
}

type StatusHandler interface {
	HandleStatus(c *gin.Context)
}

// Handlers groups everything the router mounts. Jobs, Status and Index
// are optional.
type Handlers struct {
	Convert ConvertHandler
	Jobs    JobHandler
	Status  StatusHandler
	Index   gin.HandlerFunc
}

// New wires up handlers to the Gin engine.
func New(apiKey string, h Handlers, logger *zap.Logger) *gin.Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := gin.New()
	r.Use(middleware.Recovery(logger), middleware.RequestLogger(logger))

	// Health check and upload page (no API key)
	r.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	if h.Index != nil {
		r.GET("/", h.Index)
	}

	v1 := r.Group("/api/v1")
	v1.Use(middleware.WithAPIKey(apiKey))
	{
		if h.Status != nil {
			v1.GET("/status", h.Status.HandleStatus)
		}

		v1.POST("/convert/pdf", h.Convert.HandleConvert)

		if h.Jobs != nil {
			jobs := v1.Group("/jobs")
			jobs.POST("", h.Jobs.HandleSubmit)
			jobs.GET("", h.Jobs.HandleList)
			jobs.GET("/:id", h.Jobs.HandleGet)
			jobs.GET("/:id/files/:index/:format", h.Jobs.HandleDownload)
			jobs.GET("/:id/archive", h.Jobs.HandleArchive)
		}
	}

	return r
}
