// Package pdfinfo inspects uploaded PDFs before they are handed to an engine.
package pdfinfo

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// ErrNotPDF is returned when content does not start with the PDF header.
var ErrNotPDF = errors.New("not a pdf file")

var magic = []byte("%PDF-")

func init() {
	// pdfcpu would otherwise create a config dir under $HOME, which is
	// read-only on serverless hosts.
	api.DisableConfigDir()
}

func relaxed() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

// IsPDF reports whether r starts with the PDF header. Some producers emit
// a few junk bytes first, so the header is searched for in the first 1KB.
func IsPDF(r io.ReaderAt) bool {
	head := make([]byte, 1024)
	n, err := r.ReadAt(head, 0)
	if err != nil && !errors.Is(err, io.EOF) {
		return false
	}
	return bytes.Contains(head[:n], magic)
}

// CheckFile returns ErrNotPDF when the file at path lacks the PDF header.
func CheckFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()
	if !IsPDF(f) {
		return ErrNotPDF
	}
	return nil
}

// PageCount returns the number of pages of the PDF at path.
func PageCount(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()
	n, err := api.PageCount(f, relaxed())
	if err != nil {
		return 0, fmt.Errorf("count pages: %w", err)
	}
	return n, nil
}

// Inspector is the pdfcpu backed page counter used by the conversion service.
type Inspector struct{}

func (Inspector) PageCount(path string) (int, error) { return PageCount(path) }
