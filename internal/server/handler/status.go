package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Frank2Yang/pdf-paper-converter/internal/mineru"
	"github.com/Frank2Yang/pdf-paper-converter/internal/render"
)

// StatusInfo describes the running deployment.
type StatusInfo struct {
	Engine      string   `json:"engine"`
	Engines     []string `json:"engines"`
	Vercel      bool     `json:"vercel"`
	MaxUploadMB int      `json:"max_upload_mb"`
	Storage     string   `json:"storage"`
}

type StatusHandler struct {
	info StatusInfo
}

func NewStatusHandler(info StatusInfo) *StatusHandler {
	return &StatusHandler{info: info}
}

func (h *StatusHandler) HandleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"engine":          h.info.Engine,
		"engines":         h.info.Engines,
		"vercel":          h.info.Vercel,
		"max_upload_mb":   h.info.MaxUploadMB,
		"storage":         h.info.Storage,
		"languages":       []mineru.Language{mineru.LanguageChinese, mineru.LanguageEnglish, mineru.LanguageAuto},
		"parse_methods":   []mineru.Method{mineru.MethodAuto, mineru.MethodOCR, mineru.MethodText},
		"formats":         render.AllFormats,
		"default_formats": render.DefaultFormats,
	})
}
