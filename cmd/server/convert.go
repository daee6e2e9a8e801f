package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Frank2Yang/pdf-paper-converter/internal/config"
	"github.com/Frank2Yang/pdf-paper-converter/internal/mineru"
	"github.com/Frank2Yang/pdf-paper-converter/internal/pdfinfo"
	"github.com/Frank2Yang/pdf-paper-converter/internal/render"
	"github.com/Frank2Yang/pdf-paper-converter/internal/server"
	"github.com/Frank2Yang/pdf-paper-converter/internal/service"
	"github.com/Frank2Yang/pdf-paper-converter/pkg"
)

type convertOptions struct {
	out       string
	formats   string
	language  string
	method    string
	noFormula bool
	noTable   bool
}

// fileSummary is what convert prints per input file.
type fileSummary struct {
	File    string       `json:"file"`
	Success bool         `json:"success"`
	Error   string       `json:"error,omitempty"`
	Method  string       `json:"method,omitempty"`
	Stats   render.Stats `json:"stats"`
	Written []string     `json:"written,omitempty"`
}

func newConvertCmd() *cobra.Command {
	var o convertOptions
	cmd := &cobra.Command{
		Use:   "convert <file.pdf>...",
		Short: "Convert local PDF files and write the outputs to a directory",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConvert(cmd.Context(), cmd.OutOrStdout(), cfg, logger, o, args)
		},
	}
	cmd.Flags().StringVarP(&o.out, "out", "o", "output", "directory for the converted files")
	cmd.Flags().StringVarP(&o.formats, "formats", "f", "", "comma separated output formats (markdown,html,text,json)")
	cmd.Flags().StringVarP(&o.language, "language", "l", "", "document language: ch, en or auto")
	cmd.Flags().StringVarP(&o.method, "method", "m", "", "parse method: auto, ocr or txt")
	cmd.Flags().BoolVar(&o.noFormula, "no-formula", false, "disable formula recognition")
	cmd.Flags().BoolVar(&o.noTable, "no-table", false, "disable table recognition")
	return cmd
}

func (o convertOptions) request() (service.Request, error) {
	opts := mineru.DefaultOptions()
	var err error
	if opts.Language, err = mineru.ParseLanguage(o.language); err != nil {
		return service.Request{}, err
	}
	if opts.Method, err = mineru.ParseMethod(o.method); err != nil {
		return service.Request{}, err
	}
	opts.FormulaEnable = !o.noFormula
	opts.TableEnable = !o.noTable
	formats, err := render.ParseFormats(o.formats)
	if err != nil {
		return service.Request{}, err
	}
	return service.Request{Options: opts, Formats: formats}, nil
}

func runConvert(ctx context.Context, w io.Writer, cfg *config.Config, logger *zap.Logger, o convertOptions, paths []string) error {
	req, err := o.request()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(o.out, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	uploads := make([]service.Upload, 0, len(paths))
	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			return fmt.Errorf("open input: %w", err)
		}
		defer f.Close()
		uploads = append(uploads, service.Upload{Name: filepath.Base(p), Reader: f})
	}

	svc := service.NewConvertService(server.NewEngine(cfg, logger), pdfinfo.Inspector{}, logger)
	svc.Workers = cfg.Workers
	results := svc.Process(ctx, uploads, req)

	stems := outputStems(results)
	summaries := make([]fileSummary, 0, len(results))
	for i, res := range results {
		s := fileSummary{File: res.FileName, Success: res.Success, Error: res.Error, Method: res.Method, Stats: res.Stats}
		for _, format := range render.AllFormats {
			content, ok := res.Outputs[format]
			if !ok {
				continue
			}
			dest := filepath.Join(o.out, stems[i]+"."+format.Ext())
			if err := os.WriteFile(dest, []byte(content), 0o644); err != nil {
				return fmt.Errorf("write %s: %w", dest, err)
			}
			s.Written = append(s.Written, dest)
		}
		summaries = append(summaries, s)
	}

	if err := pkg.Print(w, summaries); err != nil {
		return err
	}
	if service.AllFailed(results) {
		return errors.New("no file could be converted")
	}
	return nil
}

// outputStems gives every result its own file stem. Inputs sharing a base
// name get -2, -3, ... appended in input order.
func outputStems(results []service.Result) []string {
	taken := make(map[string]bool, len(results))
	stems := make([]string, len(results))
	for i, res := range results {
		base := service.Stem(res.FileName)
		stem := base
		for n := 2; taken[stem]; n++ {
			stem = fmt.Sprintf("%s-%d", base, n)
		}
		taken[stem] = true
		stems[i] = stem
	}
	return stems
}
