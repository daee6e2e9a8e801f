package mineru

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	defaultBinary  = "mineru"
	defaultTimeout = 10 * time.Minute

	contentListSuffix = "_content_list.json"
)

// placeholderMarkdown is returned when MinerU finished but wrote no Markdown.
const placeholderMarkdown = "# Processing result\n\nNo Markdown content was generated.\n"

// CLIEngine wraps the MinerU command line invocation.
type CLIEngine struct {
	Binary  string
	Timeout time.Duration
	// Backend is passed through as -b when set (e.g. "pipeline").
	Backend string
}

// NewCLIEngine returns a CLIEngine with sane defaults.
func NewCLIEngine() *CLIEngine {
	return &CLIEngine{
		Binary:  defaultBinary,
		Timeout: defaultTimeout,
	}
}

func (e *CLIEngine) Name() string { return "mineru-cli" }

// Parse runs MinerU against pdfPath, writing into outputDir, and collects
// the Markdown and JSON files it produced.
func (e *CLIEngine) Parse(ctx context.Context, pdfPath, outputDir string, opts Options) (*Output, error) {
	if pdfPath == "" {
		return nil, errors.New("pdf path is required")
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	binary := e.Binary
	if binary == "" {
		binary = defaultBinary
	}
	timeout := e.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	cmdCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(cmdCtx, binary, e.args(pdfPath, outputDir, opts)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("mineru: %w - %s", err, strings.TrimSpace(stderr.String()))
	}

	out, err := collectOutputs(outputDir)
	if err != nil {
		return nil, err
	}
	out.Method = "mineru"
	return out, nil
}

func (e *CLIEngine) args(pdfPath, outputDir string, opts Options) []string {
	method := opts.Method
	if method == "" {
		method = MethodAuto
	}
	args := []string{
		"-p", pdfPath,
		"-o", outputDir,
		"-m", string(method),
		"-l", opts.EngineLanguage(),
		"-f", strconv.FormatBool(opts.FormulaEnable),
		"-t", strconv.FormatBool(opts.TableEnable),
	}
	if e.Backend != "" {
		args = append(args, "-b", e.Backend)
	}
	return args
}

// collectOutputs walks dir for the files MinerU writes. MinerU nests results
// under <name>/<method>/, so the walk is recursive.
func collectOutputs(dir string) (*Output, error) {
	var mdFiles, jsonFiles []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".md":
			mdFiles = append(mdFiles, path)
		case ".json":
			jsonFiles = append(jsonFiles, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk output dir: %w", err)
	}
	sort.Strings(mdFiles)
	sort.Strings(jsonFiles)

	out := &Output{Markdown: placeholderMarkdown}
	if len(mdFiles) > 0 {
		data, err := readFile(mdFiles[len(mdFiles)-1])
		if err != nil {
			return nil, err
		}
		out.Markdown = normalizeNewlines(string(data))
	}
	if path := pickJSON(jsonFiles); path != "" {
		data, err := readFile(path)
		if err != nil {
			return nil, err
		}
		out.JSON = data
	}
	return out, nil
}

// pickJSON prefers the content list, which is the reading-order block list.
func pickJSON(paths []string) string {
	for _, p := range paths {
		if strings.HasSuffix(p, contentListSuffix) {
			return p
		}
	}
	if len(paths) > 0 {
		return paths[0]
	}
	return ""
}

func readFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", filepath.Base(path), err)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	return data, nil
}

func normalizeNewlines(in string) string {
	return strings.ReplaceAll(in, "\r\n", "\n")
}

// SaveUploadedFile copies the provided reader to a temporary PDF file.
func SaveUploadedFile(r io.Reader) (string, func(), error) {
	tmpFile, err := os.CreateTemp("", "mineru-input-*.pdf")
	if err != nil {
		return "", nil, fmt.Errorf("create temp pdf: %w", err)
	}

	cleanup := func() {
		tmpFile.Close()
		os.Remove(tmpFile.Name())
	}

	if _, err := io.Copy(tmpFile, r); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("write temp pdf: %w", err)
	}

	return tmpFile.Name(), cleanup, nil
}

// EnsureBinary checks whether the MinerU binary is available on PATH.
func EnsureBinary(binary string) error {
	if binary == "" {
		binary = defaultBinary
	}
	_, err := exec.LookPath(binary)
	if err != nil {
		return fmt.Errorf("mineru binary not found (%s): %w", binary, err)
	}
	return nil
}

// ResolveBinary returns the absolute binary path if available on PATH.
func ResolveBinary(binary string) (string, error) {
	if binary == "" {
		binary = defaultBinary
	}
	path, err := exec.LookPath(binary)
	if err != nil {
		return "", err
	}
	if abs, err := filepath.Abs(path); err == nil {
		return abs, nil
	}
	return path, nil
}
