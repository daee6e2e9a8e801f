package handler

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/Frank2Yang/pdf-paper-converter/internal/jobs"
	"github.com/Frank2Yang/pdf-paper-converter/internal/render"
	"github.com/Frank2Yang/pdf-paper-converter/internal/service"
)

type fakeManager struct {
	jobs      map[string]*jobs.Job
	submitErr error
	submitted []string
	limit     int
}

func (f *fakeManager) Submit(ctx context.Context, files []*service.StagedFile, req service.Request) (*jobs.Job, error) {
	for _, file := range files {
		file.Cleanup()
	}
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	job := &jobs.Job{ID: "job-1", Status: jobs.StatusQueued}
	for _, file := range files {
		job.Files = append(job.Files, file.Name)
		f.submitted = append(f.submitted, file.Name)
	}
	return job, nil
}

func (f *fakeManager) Get(ctx context.Context, id string) (*jobs.Job, error) {
	j, ok := f.jobs[id]
	if !ok {
		return nil, jobs.ErrJobNotFound
	}
	return j, nil
}

func (f *fakeManager) List(ctx context.Context, limit int) ([]*jobs.Job, error) {
	f.limit = limit
	var out []*jobs.Job
	for _, j := range f.jobs {
		out = append(out, j)
	}
	return out, nil
}

func finishedJob() *jobs.Job {
	return &jobs.Job{
		ID:     "done",
		Status: jobs.StatusPartial,
		Files:  []string{"paper.pdf", "broken.pdf"},
		Results: []service.Result{
			{
				FileName: "paper.pdf",
				Success:  true,
				Outputs: map[render.Format]string{
					render.FormatMarkdown: "# Paper",
					render.FormatText:     "Paper",
				},
			},
			{FileName: "broken.pdf", Error: "boom"},
		},
	}
}

func newJobRouter(m *fakeManager) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewJobHandler(newFakeService(), m, 10<<20, nil)
	r := gin.New()
	r.POST("/jobs", h.HandleSubmit)
	r.GET("/jobs", h.HandleList)
	r.GET("/jobs/:id", h.HandleGet)
	r.GET("/jobs/:id/files/:index/:format", h.HandleDownload)
	r.GET("/jobs/:id/archive", h.HandleArchive)
	return r
}

func do(r http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestJobHandler_Submit(t *testing.T) {
	m := &fakeManager{}
	r := newJobRouter(m)

	w := do(r, newMultipartRequest(t, "/jobs", nil, pdfPart("a.pdf"), pdfPart("b.pdf")))
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202 got %d: %s", w.Code, w.Body.String())
	}
	if loc := w.Header().Get("Location"); loc != "/api/v1/jobs/job-1" {
		t.Fatalf("unexpected location %q", loc)
	}
	var job jobs.Job
	if err := json.Unmarshal(w.Body.Bytes(), &job); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if job.ID != "job-1" || job.Status != jobs.StatusQueued {
		t.Fatalf("unexpected job %+v", job)
	}
	if strings.Join(m.submitted, ",") != "a.pdf,b.pdf" {
		t.Fatalf("unexpected files %v", m.submitted)
	}
}

func TestJobHandler_SubmitErrors(t *testing.T) {
	w := do(newJobRouter(&fakeManager{submitErr: jobs.ErrQueueFull}), newMultipartRequest(t, "/jobs", nil, pdfPart("a.pdf")))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 got %d", w.Code)
	}

	w = do(newJobRouter(&fakeManager{}), newMultipartRequest(t, "/jobs", nil))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", w.Code)
	}
}

func TestJobHandler_GetAndList(t *testing.T) {
	m := &fakeManager{jobs: map[string]*jobs.Job{"done": finishedJob()}}
	r := newJobRouter(m)

	w := do(r, httptest.NewRequest(http.MethodGet, "/jobs/done", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"status":"partial"`) {
		t.Fatalf("unexpected response %d: %s", w.Code, w.Body.String())
	}

	w = do(r, httptest.NewRequest(http.MethodGet, "/jobs/missing", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", w.Code)
	}

	w = do(r, httptest.NewRequest(http.MethodGet, "/jobs?limit=5000", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", w.Code)
	}
	if m.limit != maxListLimit {
		t.Fatalf("expected limit clamped to %d, got %d", maxListLimit, m.limit)
	}

	w = do(r, httptest.NewRequest(http.MethodGet, "/jobs?limit=abc", nil))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", w.Code)
	}
}

func TestJobHandler_ListEmpty(t *testing.T) {
	w := do(newJobRouter(&fakeManager{}), httptest.NewRequest(http.MethodGet, "/jobs", nil))
	if w.Code != http.StatusOK || strings.TrimSpace(w.Body.String()) != "[]" {
		t.Fatalf("unexpected response %d: %s", w.Code, w.Body.String())
	}
}

func TestJobHandler_Download(t *testing.T) {
	r := newJobRouter(&fakeManager{jobs: map[string]*jobs.Job{"done": finishedJob()}})

	w := do(r, httptest.NewRequest(http.MethodGet, "/jobs/done/files/0/md", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", w.Code, w.Body.String())
	}
	if name := dispositionName(t, w); name != "paper.md" {
		t.Fatalf("unexpected download name %q", name)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/markdown") {
		t.Fatalf("unexpected content type %q", ct)
	}
	if w.Body.String() != "# Paper" {
		t.Fatalf("unexpected body %q", w.Body.String())
	}

	cases := map[string]int{
		"/jobs/done/files/0/html": http.StatusNotFound,
		"/jobs/done/files/1/md":   http.StatusNotFound,
		"/jobs/done/files/7/md":   http.StatusNotFound,
		"/jobs/done/files/x/md":   http.StatusNotFound,
		"/jobs/done/files/0/docx": http.StatusNotFound,
		"/jobs/nope/files/0/md":   http.StatusNotFound,
	}
	for path, want := range cases {
		if w := do(r, httptest.NewRequest(http.MethodGet, path, nil)); w.Code != want {
			t.Errorf("%s: expected %d got %d", path, want, w.Code)
		}
	}
}

func TestJobHandler_DownloadNames(t *testing.T) {
	job := &jobs.Job{
		ID:     "names",
		Status: jobs.StatusSucceeded,
		Files:  []string{"注意力机制.pdf", `say "hi".pdf`},
		Results: []service.Result{
			{FileName: "注意力机制.pdf", Success: true, Outputs: map[render.Format]string{render.FormatMarkdown: "# 注意力"}},
			{FileName: `say "hi".pdf`, Success: true, Outputs: map[render.Format]string{render.FormatMarkdown: "# hi"}},
		},
	}
	r := newJobRouter(&fakeManager{jobs: map[string]*jobs.Job{"names": job}})

	w := do(r, httptest.NewRequest(http.MethodGet, "/jobs/names/files/0/md", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", w.Code, w.Body.String())
	}
	if cd := w.Header().Get("Content-Disposition"); !strings.Contains(cd, "filename*=utf-8''") {
		t.Fatalf("expected extended filename parameter, got %q", cd)
	}
	if name := dispositionName(t, w); name != "注意力机制.md" {
		t.Fatalf("unexpected download name %q", name)
	}

	w = do(r, httptest.NewRequest(http.MethodGet, "/jobs/names/files/1/md", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", w.Code, w.Body.String())
	}
	if name := dispositionName(t, w); name != `say "hi".md` {
		t.Fatalf("unexpected download name %q", name)
	}

	w = do(r, httptest.NewRequest(http.MethodGet, "/jobs/names/archive", nil))
	if name := dispositionName(t, w); name != "names.zip" {
		t.Fatalf("unexpected archive name %q", name)
	}
}

func dispositionName(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	disposition, params, err := mime.ParseMediaType(w.Header().Get("Content-Disposition"))
	if err != nil {
		t.Fatalf("parse disposition %q: %v", w.Header().Get("Content-Disposition"), err)
	}
	if disposition != "attachment" {
		t.Fatalf("expected attachment, got %q", disposition)
	}
	return params["filename"]
}

func TestJobHandler_DownloadBeforeProcessed(t *testing.T) {
	running := &jobs.Job{ID: "run", Status: jobs.StatusRunning, Files: []string{"a.pdf"}}
	r := newJobRouter(&fakeManager{jobs: map[string]*jobs.Job{"run": running}})

	w := do(r, httptest.NewRequest(http.MethodGet, "/jobs/run/files/0/md", nil))
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d", w.Code)
	}
	w = do(r, httptest.NewRequest(http.MethodGet, "/jobs/run/archive", nil))
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d", w.Code)
	}
}

func TestJobHandler_Archive(t *testing.T) {
	r := newJobRouter(&fakeManager{jobs: map[string]*jobs.Job{"done": finishedJob()}})

	w := do(r, httptest.NewRequest(http.MethodGet, "/jobs/done/archive", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/zip" {
		t.Fatalf("unexpected content type %q", ct)
	}

	zr, err := zip.NewReader(bytes.NewReader(w.Body.Bytes()), int64(w.Body.Len()))
	if err != nil {
		t.Fatalf("open zip: %v", err)
	}
	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
		if f.Name == "00-paper.md" {
			rc, err := f.Open()
			if err != nil {
				t.Fatal(err)
			}
			data, _ := io.ReadAll(rc)
			rc.Close()
			if string(data) != "# Paper" {
				t.Fatalf("unexpected entry content %q", data)
			}
		}
	}
	sort.Strings(names)
	if strings.Join(names, ",") != "00-paper.md,00-paper.txt" {
		t.Fatalf("unexpected entries %v", names)
	}
}

func TestJobHandler_ArchiveWithoutOutputs(t *testing.T) {
	failed := &jobs.Job{ID: "f", Status: jobs.StatusFailed, Files: []string{"a.pdf"}, Results: []service.Result{{FileName: "a.pdf"}}}
	r := newJobRouter(&fakeManager{jobs: map[string]*jobs.Job{"f": failed}})

	if w := do(r, httptest.NewRequest(http.MethodGet, "/jobs/f/archive", nil)); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", w.Code)
	}
}
