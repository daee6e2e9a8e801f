// Package render turns engine Markdown into the downloadable output formats.
package render

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Source is the engine output plus the metadata needed to render it.
type Source struct {
	Title       string
	Markdown    string
	JSON        []byte
	Pages       int
	Method      string
	FileSize    int64
	ProcessedAt time.Time
}

// Document holds the rendered outputs keyed by format.
type Document struct {
	Outputs map[Format]string
	Stats   Stats
}

type envelope struct {
	Document struct {
		Title       string `json:"title"`
		Pages       int    `json:"pages"`
		ProcessedAt string `json:"processed_at"`
		Method      string `json:"method"`
	} `json:"document"`
	Content struct {
		Text     string `json:"text"`
		Markdown string `json:"markdown"`
	} `json:"content"`
	Metadata struct {
		FileSize int64 `json:"file_size"`
	} `json:"metadata"`
}

// BuildJSON pretty-prints the engine's structured output when it is valid
// JSON. Otherwise it wraps the text and Markdown in a document envelope.
func BuildJSON(src Source) (string, error) {
	if len(bytes.TrimSpace(src.JSON)) > 0 && json.Valid(src.JSON) {
		var out bytes.Buffer
		if err := json.Indent(&out, src.JSON, "", "  "); err != nil {
			return "", fmt.Errorf("indent engine json: %w", err)
		}
		return out.String(), nil
	}

	var env envelope
	env.Document.Title = src.Title
	env.Document.Pages = max(src.Pages, 1)
	env.Document.ProcessedAt = processedAt(src).Format(time.RFC3339)
	env.Document.Method = src.Method
	env.Content.Text = ToText(src.Markdown)
	env.Content.Markdown = src.Markdown
	env.Metadata.FileSize = src.FileSize

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(env); err != nil {
		return "", fmt.Errorf("encode document json: %w", err)
	}
	return string(bytes.TrimRight(buf.Bytes(), "\n")), nil
}

func processedAt(src Source) time.Time {
	if src.ProcessedAt.IsZero() {
		return time.Now().UTC()
	}
	return src.ProcessedAt.UTC()
}

// Render produces the requested formats. Stats are always computed.
func Render(src Source, formats []Format) (*Document, error) {
	if len(formats) == 0 {
		formats = DefaultFormats
	}
	doc := &Document{
		Outputs: make(map[Format]string, len(formats)),
		Stats:   ComputeStats(src.Markdown, src.Pages),
	}
	for _, f := range formats {
		switch f {
		case FormatMarkdown:
			doc.Outputs[f] = src.Markdown
		case FormatHTML:
			out, err := ToHTML(src.Markdown, src.Title)
			if err != nil {
				return nil, err
			}
			doc.Outputs[f] = out
		case FormatText:
			doc.Outputs[f] = ToText(src.Markdown)
		case FormatJSON:
			out, err := BuildJSON(src)
			if err != nil {
				return nil, err
			}
			doc.Outputs[f] = out
		default:
			return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, f)
		}
	}
	return doc, nil
}
