package mineru

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Language is the dominant document language passed to MinerU.
type Language string

const (
	LanguageChinese Language = "ch"
	LanguageEnglish Language = "en"
	LanguageAuto    Language = "auto"
)

// Method selects how MinerU reads the PDF.
type Method string

const (
	MethodAuto Method = "auto"
	MethodOCR  Method = "ocr"
	MethodText Method = "txt"
)

var (
	ErrUnknownLanguage = errors.New("unknown language")
	ErrUnknownMethod   = errors.New("unknown parse method")
)

// Options controls a single engine invocation.
type Options struct {
	Language      Language `json:"language"`
	Method        Method   `json:"parse_method"`
	FormulaEnable bool     `json:"formula_enable"`
	TableEnable   bool     `json:"table_enable"`
}

// DefaultOptions mirrors the defaults of the upload form.
func DefaultOptions() Options {
	return Options{
		Language:      LanguageChinese,
		Method:        MethodAuto,
		FormulaEnable: true,
		TableEnable:   true,
	}
}

// EngineLanguage is the value handed to MinerU. MinerU has no "auto" mode,
// so auto falls back to Chinese.
func (o Options) EngineLanguage() string {
	if o.Language == "" || o.Language == LanguageAuto {
		return string(LanguageChinese)
	}
	return string(o.Language)
}

// ParseLanguage validates a user supplied language. Empty input yields the default.
func ParseLanguage(s string) (Language, error) {
	switch l := Language(strings.ToLower(strings.TrimSpace(s))); l {
	case "":
		return LanguageChinese, nil
	case LanguageChinese, LanguageEnglish, LanguageAuto:
		return l, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownLanguage, s)
	}
}

// ParseMethod validates a user supplied parse method. Empty input yields the default.
func ParseMethod(s string) (Method, error) {
	switch m := Method(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return MethodAuto, nil
	case MethodAuto, MethodOCR, MethodText:
		return m, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMethod, s)
	}
}

// Output is what an engine hands back before rendering.
type Output struct {
	Markdown string
	// JSON is the engine's structured output, nil when the engine has none.
	JSON []byte
	// Pages is zero when the engine did not report a page count.
	Pages  int
	Method string
}

// Engine parses a PDF into Markdown (and optionally structured JSON).
type Engine interface {
	Name() string
	Parse(ctx context.Context, pdfPath, outputDir string, opts Options) (*Output, error)
}
