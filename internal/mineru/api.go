package mineru

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const defaultAPITimeout = 5 * time.Minute

// APIEngine forwards PDFs to a remotely deployed MinerU service.
type APIEngine struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
}

// NewAPIEngine builds an APIEngine. A zero timeout uses the default.
func NewAPIEngine(baseURL, apiKey string, timeout time.Duration) *APIEngine {
	if timeout <= 0 {
		timeout = defaultAPITimeout
	}
	return &APIEngine{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		Client:  &http.Client{Timeout: timeout},
	}
}

func (e *APIEngine) Name() string { return "mineru-api" }

type apiResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Method  string `json:"method"`
	Outputs struct {
		Markdown string `json:"markdown_content"`
		JSON     string `json:"json_content"`
	} `json:"outputs"`
	Stats struct {
		TotalPages int `json:"total_pages"`
	} `json:"stats"`
}

// Parse uploads pdfPath to <BaseURL>/process. outputDir is unused; the
// remote service keeps its own working files.
func (e *APIEngine) Parse(ctx context.Context, pdfPath, outputDir string, opts Options) (*Output, error) {
	if e.BaseURL == "" {
		return nil, errors.New("mineru api url is not configured")
	}
	body, contentType, err := e.buildBody(pdfPath, opts)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.BaseURL+"/process", body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	if e.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.APIKey)
	}

	client := e.Client
	if client == nil {
		client = &http.Client{Timeout: defaultAPITimeout}
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("mineru api: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read mineru api response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("mineru api: status %d - %s", resp.StatusCode, truncate(string(data), 200))
	}

	var parsed apiResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("decode mineru api response: %w", err)
	}
	if !parsed.Success {
		msg := parsed.Error
		if msg == "" {
			msg = "unknown error"
		}
		return nil, fmt.Errorf("mineru api: %s", msg)
	}

	out := &Output{
		Markdown: normalizeNewlines(parsed.Outputs.Markdown),
		Pages:    parsed.Stats.TotalPages,
		Method:   parsed.Method,
	}
	if out.Markdown == "" {
		out.Markdown = placeholderMarkdown
	}
	if parsed.Outputs.JSON != "" {
		out.JSON = []byte(parsed.Outputs.JSON)
	}
	if out.Method == "" {
		out.Method = "mineru-api"
	}
	return out, nil
}

func (e *APIEngine) buildBody(pdfPath string, opts Options) (io.Reader, string, error) {
	f, err := os.Open(pdfPath)
	if err != nil {
		return nil, "", fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	cfg, err := json.Marshal(opts)
	if err != nil {
		return nil, "", fmt.Errorf("encode config: %w", err)
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", filepath.Base(pdfPath))
	if err != nil {
		return nil, "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, "", fmt.Errorf("copy pdf: %w", err)
	}
	if err := writer.WriteField("config", string(cfg)); err != nil {
		return nil, "", fmt.Errorf("write config field: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart: %w", err)
	}
	return body, writer.FormDataContentType(), nil
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
