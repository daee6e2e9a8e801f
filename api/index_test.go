package handler

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	t.Setenv("VERCEL", "1")
	t.Setenv("MINERU_BINARY", "definitely-not-a-real-mineru-binary")

	w := httptest.NewRecorder()
	Handler(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if w.Code != http.StatusOK || w.Body.String() != "ok" {
		t.Fatalf("unexpected health response %d %q", w.Code, w.Body.String())
	}

	w = httptest.NewRecorder()
	Handler(w, httptest.NewRequest(http.MethodGet, "/api/v1/status", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, `"vercel":true`) || !strings.Contains(body, `"max_upload_mb":50`) {
		t.Fatalf("unexpected status body %s", body)
	}
	if !strings.Contains(body, `"engine":"basic"`) {
		t.Fatalf("expected basic engine only, got %s", body)
	}
}
