package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Frank2Yang/pdf-paper-converter/internal/mineru"
	"github.com/Frank2Yang/pdf-paper-converter/internal/pdfinfo"
	"github.com/Frank2Yang/pdf-paper-converter/internal/render"
)

const defaultWorkers = 2

// ErrNotPDF is returned by Stage for uploads without a PDF header.
var ErrNotPDF = pdfinfo.ErrNotPDF

// Inspector reports the page count of a staged PDF.
type Inspector interface {
	PageCount(path string) (int, error)
}

// ProgressFunc receives a completion fraction in [0,1] and a status line.
type ProgressFunc func(fraction float64, message string)

// Request carries the user's processing choices.
type Request struct {
	Options mineru.Options
	Formats []render.Format
}

// Upload is one incoming file.
type Upload struct {
	Name   string
	Size   int64
	Reader io.Reader
}

// StagedFile is an upload persisted to local disk.
type StagedFile struct {
	Name    string
	Path    string
	Size    int64
	cleanup func()
}

// Cleanup removes the staged copy. Safe to call more than once.
func (f *StagedFile) Cleanup() {
	if f.cleanup != nil {
		f.cleanup()
		f.cleanup = nil
	}
}

// Result is the outcome for a single file.
type Result struct {
	FileName string                   `json:"file_name"`
	Success  bool                     `json:"success"`
	Error    string                   `json:"error,omitempty"`
	Method   string                   `json:"method,omitempty"`
	Stats    render.Stats             `json:"stats"`
	Outputs  map[render.Format]string `json:"outputs,omitempty"`
	// Files holds archive URIs when a result store is configured.
	Files map[render.Format]string `json:"files,omitempty"`
}

// ConvertService orchestrates staging, engine parsing and rendering.
type ConvertService struct {
	engine    mineru.Engine
	inspector Inspector
	logger    *zap.Logger
	now       func() time.Time

	// Workers bounds how many files of a batch are parsed at once.
	Workers int
}

// NewConvertService creates ConvertService. A nil inspector disables page
// counting; a nil logger discards logs.
func NewConvertService(engine mineru.Engine, inspector Inspector, logger *zap.Logger) *ConvertService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConvertService{
		engine:    engine,
		inspector: inspector,
		logger:    logger,
		now:       time.Now,
		Workers:   defaultWorkers,
	}
}

// EngineName reports the configured engine, for status output.
func (s *ConvertService) EngineName() string { return s.engine.Name() }

// Stage persists an upload and checks that it is a PDF.
func (s *ConvertService) Stage(u Upload) (*StagedFile, error) {
	name := displayName(u.Name)
	path, cleanup, err := mineru.SaveUploadedFile(u.Reader)
	if err != nil {
		return nil, fmt.Errorf("persist upload (%s): %w", name, err)
	}
	f := &StagedFile{Name: name, Path: path, Size: u.Size, cleanup: cleanup}
	if err := pdfinfo.CheckFile(path); err != nil {
		f.Cleanup()
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	if f.Size <= 0 {
		if info, err := os.Stat(path); err == nil {
			f.Size = info.Size()
		}
	}
	return f, nil
}

// Convert runs the engine on a staged file and renders the requested
// formats. Failures are reported in the Result, not as an error.
func (s *ConvertService) Convert(ctx context.Context, f *StagedFile, req Request, progress ProgressFunc) Result {
	if progress == nil {
		progress = func(float64, string) {}
	}
	log := s.logger.With(zap.String("file", f.Name))
	res := Result{FileName: f.Name}

	fail := func(msg string, err error) Result {
		log.Error(msg, zap.Error(err))
		res.Error = fmt.Sprintf("%s: %v", msg, err)
		progress(1, "failed: "+res.Error)
		return res
	}

	progress(0.1, "initializing")
	outDir, err := os.MkdirTemp("", "mineru-out-*")
	if err != nil {
		return fail("create output dir", err)
	}
	defer os.RemoveAll(outDir)

	progress(0.3, "parsing pdf")
	start := s.now()
	out, err := s.engine.Parse(ctx, f.Path, outDir, req.Options)
	if err != nil {
		return fail("parse pdf", err)
	}

	pages := out.Pages
	if pages == 0 && s.inspector != nil {
		n, err := s.inspector.PageCount(f.Path)
		if err != nil {
			log.Warn("page count unavailable", zap.Error(err))
		} else {
			pages = n
		}
	}

	progress(0.8, "rendering outputs")
	doc, err := render.Render(render.Source{
		Title:       stem(f.Name),
		Markdown:    out.Markdown,
		JSON:        out.JSON,
		Pages:       pages,
		Method:      out.Method,
		FileSize:    f.Size,
		ProcessedAt: s.now(),
	}, req.Formats)
	if err != nil {
		return fail("render outputs", err)
	}

	res.Success = true
	res.Method = out.Method
	res.Stats = doc.Stats
	res.Outputs = doc.Outputs
	log.Info("pdf converted",
		zap.String("method", out.Method),
		zap.Int("pages", doc.Stats.TotalPages),
		zap.Duration("took", s.now().Sub(start)),
	)
	progress(1, "done")
	return res
}

// Process stages and converts a batch. Results keep upload order and a
// failing file does not stop the others.
func (s *ConvertService) Process(ctx context.Context, uploads []Upload, req Request) []Result {
	results := make([]Result, len(uploads))
	staged := make([]*StagedFile, 0, len(uploads))
	index := make([]int, 0, len(uploads))
	for i, u := range uploads {
		f, err := s.Stage(u)
		if err != nil {
			results[i] = Result{FileName: displayName(u.Name), Error: err.Error()}
			continue
		}
		staged = append(staged, f)
		index = append(index, i)
	}
	for j, r := range s.ConvertAll(ctx, staged, req) {
		results[index[j]] = r
	}
	return results
}

// ConvertAll converts already staged files on at most Workers goroutines
// and removes them afterwards. Results keep the order of files.
func (s *ConvertService) ConvertAll(ctx context.Context, files []*StagedFile, req Request) []Result {
	results := make([]Result, len(files))
	workers := s.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}
	var g errgroup.Group
	g.SetLimit(workers)
	for i, f := range files {
		g.Go(func() error {
			defer f.Cleanup()
			results[i] = s.Convert(ctx, f, req, nil)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// AllFailed reports whether no result succeeded.
func AllFailed(results []Result) bool {
	for _, r := range results {
		if r.Success {
			return false
		}
	}
	return true
}

// IsClientError reports whether err stems from bad input rather than the engine.
func IsClientError(err error) bool {
	return errors.Is(err, ErrNotPDF)
}

func displayName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	if name == "." || name == "/" || name == "" {
		return "document.pdf"
	}
	return name
}

func stem(name string) string {
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// Stem is the download base name for a file.
func Stem(name string) string { return stem(displayName(name)) }
