package service

import (
	"bytes"
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Frank2Yang/pdf-paper-converter/internal/mineru"
	"github.com/Frank2Yang/pdf-paper-converter/internal/pdftest"
	"github.com/Frank2Yang/pdf-paper-converter/internal/render"
)

const expectedMarkdown = "# Paper\n\ncontent in page 1"

type fakeEngine struct {
	mu       sync.Mutex
	out      *mineru.Output
	err      error
	failFor  string
	lastPath string
	lastOpts mineru.Options
	inFlight atomic.Int32
	maxSeen  atomic.Int32
	delay    time.Duration
}

func (f *fakeEngine) Name() string { return "fake" }

func (f *fakeEngine) Parse(ctx context.Context, pdfPath, outputDir string, opts mineru.Options) (*mineru.Output, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		seen := f.maxSeen.Load()
		if n <= seen || f.maxSeen.CompareAndSwap(seen, n) {
			break
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	f.mu.Lock()
	f.lastPath = pdfPath
	f.lastOpts = opts
	f.mu.Unlock()

	if f.err != nil {
		return nil, f.err
	}
	if f.failFor != "" {
		data, _ := os.ReadFile(pdfPath)
		if bytes.Contains(data, []byte(f.failFor)) {
			return nil, errors.New("engine rejected " + f.failFor)
		}
	}
	out := *f.out
	return &out, nil
}

type fakeInspector struct {
	pages int
	err   error
}

func (f fakeInspector) PageCount(string) (int, error) { return f.pages, f.err }

func pdfUpload(name string, pages ...string) Upload {
	data := pdftest.Minimal(pages...)
	return Upload{Name: name, Size: int64(len(data)), Reader: bytes.NewReader(data)}
}

func TestConvertService_Convert_Success(t *testing.T) {
	engine := &fakeEngine{out: &mineru.Output{Markdown: expectedMarkdown, Method: "mineru"}}
	svc := NewConvertService(engine, fakeInspector{pages: 5}, nil)

	f, err := svc.Stage(pdfUpload("paper.pdf", "a"))
	if err != nil {
		t.Fatalf("stage: %v", err)
	}
	defer f.Cleanup()

	var steps []float64
	req := Request{
		Options: mineru.Options{Language: mineru.LanguageEnglish},
		Formats: []render.Format{render.FormatMarkdown, render.FormatHTML},
	}
	res := svc.Convert(context.Background(), f, req, func(p float64, msg string) {
		steps = append(steps, p)
	})

	if !res.Success {
		t.Fatalf("expected success, got error %q", res.Error)
	}
	if res.FileName != "paper.pdf" || res.Method != "mineru" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.Outputs[render.FormatMarkdown] != expectedMarkdown {
		t.Fatalf("unexpected markdown: %q", res.Outputs[render.FormatMarkdown])
	}
	if !strings.Contains(res.Outputs[render.FormatHTML], "<title>paper</title>") {
		t.Fatalf("expected html titled by stem")
	}
	if _, ok := res.Outputs[render.FormatText]; ok {
		t.Fatal("text output was not requested")
	}
	if res.Stats.TotalPages != 5 {
		t.Fatalf("expected inspector page count, got %d", res.Stats.TotalPages)
	}
	if engine.lastOpts.Language != mineru.LanguageEnglish {
		t.Fatalf("expected options to pass through, got %+v", engine.lastOpts)
	}
	if len(steps) == 0 || steps[len(steps)-1] != 1 {
		t.Fatalf("expected progress to finish at 1, got %v", steps)
	}
}

func TestConvertService_Convert_EnginePagesWin(t *testing.T) {
	engine := &fakeEngine{out: &mineru.Output{Markdown: "x", Pages: 9}}
	svc := NewConvertService(engine, fakeInspector{pages: 2}, nil)

	f, err := svc.Stage(pdfUpload("a.pdf"))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Cleanup()

	res := svc.Convert(context.Background(), f, Request{}, nil)
	if res.Stats.TotalPages != 9 {
		t.Fatalf("expected engine page count, got %d", res.Stats.TotalPages)
	}
	if len(res.Outputs) != len(render.DefaultFormats) {
		t.Fatalf("expected default formats, got %v", res.Outputs)
	}
}

func TestConvertService_Convert_InspectorErrorIsNotFatal(t *testing.T) {
	engine := &fakeEngine{out: &mineru.Output{Markdown: "x"}}
	svc := NewConvertService(engine, fakeInspector{err: errors.New("broken xref")}, nil)

	f, err := svc.Stage(pdfUpload("a.pdf"))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Cleanup()

	res := svc.Convert(context.Background(), f, Request{}, nil)
	if !res.Success || res.Stats.TotalPages != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestConvertService_Convert_PropagatesEngineError(t *testing.T) {
	svc := NewConvertService(&fakeEngine{err: errors.New("ocr failed")}, nil, nil)

	f, err := svc.Stage(pdfUpload("a.pdf"))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Cleanup()

	var last string
	res := svc.Convert(context.Background(), f, Request{}, func(_ float64, msg string) { last = msg })
	if res.Success {
		t.Fatal("expected failure")
	}
	if !strings.Contains(res.Error, "ocr failed") {
		t.Fatalf("expected engine error in result, got %q", res.Error)
	}
	if !strings.HasPrefix(last, "failed") {
		t.Fatalf("expected failure progress message, got %q", last)
	}
}

func TestConvertService_Stage(t *testing.T) {
	svc := NewConvertService(&fakeEngine{}, nil, nil)

	f, err := svc.Stage(Upload{Name: `C:\papers\thesis.pdf`, Reader: bytes.NewReader(pdftest.Minimal())})
	if err != nil {
		t.Fatalf("stage: %v", err)
	}
	if f.Name != "thesis.pdf" {
		t.Fatalf("expected base name, got %q", f.Name)
	}
	if f.Size == 0 {
		t.Fatal("expected size to be filled from disk")
	}
	path := f.Path
	f.Cleanup()
	f.Cleanup()
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected temp file cleanup, got err=%v", err)
	}

	_, err = svc.Stage(Upload{Name: "notes.pdf", Reader: strings.NewReader("plain text")})
	if !errors.Is(err, ErrNotPDF) || !IsClientError(err) {
		t.Fatalf("expected ErrNotPDF, got %v", err)
	}
}

func TestConvertService_Process_Batch(t *testing.T) {
	engine := &fakeEngine{
		out:     &mineru.Output{Markdown: expectedMarkdown},
		failFor: "poison",
		delay:   20 * time.Millisecond,
	}
	svc := NewConvertService(engine, nil, nil)
	svc.Workers = 2

	uploads := []Upload{
		pdfUpload("one.pdf", "ok"),
		{Name: "two.txt", Reader: strings.NewReader("not a pdf")},
		pdfUpload("three.pdf", "poison"),
		pdfUpload("four.pdf", "ok"),
		pdfUpload("five.pdf", "ok"),
	}
	results := svc.Process(context.Background(), uploads, Request{})

	if len(results) != len(uploads) {
		t.Fatalf("expected %d results, got %d", len(uploads), len(results))
	}
	wantSuccess := []bool{true, false, false, true, true}
	for i, r := range results {
		if r.FileName != displayName(uploads[i].Name) {
			t.Fatalf("result %d out of order: %s", i, r.FileName)
		}
		if r.Success != wantSuccess[i] {
			t.Fatalf("result %d success=%v error=%q", i, r.Success, r.Error)
		}
	}
	if engine.maxSeen.Load() > 2 {
		t.Fatalf("expected at most 2 concurrent parses, saw %d", engine.maxSeen.Load())
	}
	if AllFailed(results) {
		t.Fatal("AllFailed should be false")
	}
	if _, err := os.Stat(engine.lastPath); !os.IsNotExist(err) {
		t.Fatalf("expected staged files removed, got err=%v", err)
	}
}

func TestAllFailed(t *testing.T) {
	if !AllFailed(nil) {
		t.Fatal("empty batch counts as all failed")
	}
	if !AllFailed([]Result{{}, {}}) {
		t.Fatal("expected true")
	}
}

func TestStem(t *testing.T) {
	if got := Stem("dir/paper.v2.pdf"); got != "paper.v2" {
		t.Fatalf("unexpected stem %q", got)
	}
	if got := Stem(""); got != "document" {
		t.Fatalf("unexpected stem %q", got)
	}
}
