package mineru

import (
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// BasicEngine extracts the embedded text layer page by page. It is the
// fallback when no MinerU installation or service is reachable: no OCR, no
// table or formula recognition.
type BasicEngine struct{}

func NewBasicEngine() *BasicEngine { return &BasicEngine{} }

func (e *BasicEngine) Name() string { return "basic" }

func (e *BasicEngine) Parse(ctx context.Context, pdfPath, outputDir string, opts Options) (out *Output, err error) {
	// ledongthuc/pdf panics on some malformed content streams.
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("basic extraction: %v", r)
		}
	}()

	f, r, err := pdf.Open(pdfPath)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	total := r.NumPage()
	var md strings.Builder
	for i := 1; i <= total; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i, err)
		}
		text = strings.TrimSpace(normalizeNewlines(text))
		if text == "" {
			continue
		}
		fmt.Fprintf(&md, "# Page %d\n\n%s\n\n", i, text)
	}

	return &Output{
		Markdown: md.String(),
		Pages:    total,
		Method:   "basic",
	}, nil
}
