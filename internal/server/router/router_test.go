package router

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

type fakeHandler struct {
	called []string
}

func (f *fakeHandler) record(name string, c *gin.Context) {
	f.called = append(f.called, name)
	c.Status(http.StatusAccepted)
}

func (f *fakeHandler) HandleConvert(c *gin.Context)  { f.record("convert", c) }
func (f *fakeHandler) HandleSubmit(c *gin.Context)   { f.record("submit", c) }
func (f *fakeHandler) HandleList(c *gin.Context)     { f.record("list", c) }
func (f *fakeHandler) HandleGet(c *gin.Context)      { f.record("get:"+c.Param("id"), c) }
func (f *fakeHandler) HandleDownload(c *gin.Context) { f.record("download:"+c.Param("index")+":"+c.Param("format"), c) }
func (f *fakeHandler) HandleArchive(c *gin.Context)  { f.record("archive", c) }
func (f *fakeHandler) HandleStatus(c *gin.Context)   { f.record("status", c) }

func newRouter(apiKey string, f *fakeHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	return New(apiKey, Handlers{
		Convert: f,
		Jobs:    f,
		Status:  f,
		Index:   func(c *gin.Context) { c.String(http.StatusOK, "index") },
	}, nil)
}

func TestNew_Healthz(t *testing.T) {
	router := newRouter("secret", &fakeHandler{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", w.Code)
	}
	if body := w.Body.String(); body != "ok" {
		t.Fatalf("unexpected body: %s", body)
	}
}

func TestNew_IndexIsPublic(t *testing.T) {
	router := newRouter("secret", &fakeHandler{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	if w.Code != http.StatusOK || w.Body.String() != "index" {
		t.Fatalf("unexpected response %d %q", w.Code, w.Body.String())
	}
}

func TestNew_Routes(t *testing.T) {
	tests := []struct {
		method string
		path   string
		want   string
	}{
		{http.MethodPost, "/api/v1/convert/pdf", "convert"},
		{http.MethodGet, "/api/v1/status", "status"},
		{http.MethodPost, "/api/v1/jobs", "submit"},
		{http.MethodGet, "/api/v1/jobs", "list"},
		{http.MethodGet, "/api/v1/jobs/abc", "get:abc"},
		{http.MethodGet, "/api/v1/jobs/abc/files/1/md", "download:1:md"},
		{http.MethodGet, "/api/v1/jobs/abc/archive", "archive"},
	}

	for _, tt := range tests {
		f := &fakeHandler{}
		router := newRouter("", f)

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(tt.method, tt.path, nil))

		if w.Code != http.StatusAccepted {
			t.Errorf("%s %s: unexpected status %d", tt.method, tt.path, w.Code)
			continue
		}
		if len(f.called) != 1 || f.called[0] != tt.want {
			t.Errorf("%s %s: expected %q, got %v", tt.method, tt.path, tt.want, f.called)
		}
	}
}

func TestNew_WithAPIKey(t *testing.T) {
	fakeHandler := &fakeHandler{}
	router := newRouter("secret-key", fakeHandler)

	// Test without API key - should fail
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/convert/pdf", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without API key, got %d", w.Code)
	}
	if len(fakeHandler.called) != 0 {
		t.Fatal("handler should not be called without valid API key")
	}

	// Test with correct API key - should succeed
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/v1/jobs/abc", nil)
	req.Header.Set("x-api-key", "secret-key")
	router.ServeHTTP(w, req)

	if len(fakeHandler.called) != 1 {
		t.Fatal("handler should be called with valid API key")
	}
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202 with valid API key, got %d", w.Code)
	}
}

func TestNew_OptionalHandlers(t *testing.T) {
	gin.SetMode(gin.TestMode)
	f := &fakeHandler{}
	router := New("", Handlers{Convert: f}, nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/jobs", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 without job handler, got %d", w.Code)
	}
}
