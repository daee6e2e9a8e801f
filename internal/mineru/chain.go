package mineru

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Chain tries each engine in order and returns the first successful output.
type Chain struct {
	engines []Engine
	logger  *zap.Logger
}

// NewChain builds a Chain. A nil logger is replaced by a no-op logger.
func NewChain(logger *zap.Logger, engines ...Engine) *Chain {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Chain{engines: engines, logger: logger}
}

func (c *Chain) Name() string {
	return strings.Join(c.Engines(), ">")
}

// Engines returns the engine names in the order they are tried.
func (c *Chain) Engines() []string {
	names := make([]string, 0, len(c.engines))
	for _, e := range c.engines {
		names = append(names, e.Name())
	}
	return names
}

// Parse gives every engine its own sub directory so a failed attempt
// cannot leave files behind for the next one to pick up.
func (c *Chain) Parse(ctx context.Context, pdfPath, outputDir string, opts Options) (*Output, error) {
	if len(c.engines) == 0 {
		return nil, errors.New("no engine configured")
	}
	var errs []error
	for _, e := range c.engines {
		dir := filepath.Join(outputDir, e.Name())
		out, err := e.Parse(ctx, pdfPath, dir, opts)
		if err == nil {
			return out, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", e.Name(), err))
		cleanDir(dir)
		if ctx.Err() != nil {
			break
		}
		c.logger.Warn("engine failed, trying next",
			zap.String("engine", e.Name()),
			zap.String("pdf", filepath.Base(pdfPath)),
			zap.Error(err),
		)
	}
	return nil, errors.Join(errs...)
}

// EngineConfig selects which engines participate in the chain.
type EngineConfig struct {
	Binary     string
	Backend    string
	Timeout    time.Duration
	APIURL     string
	APIKey     string
	APITimeout time.Duration
	// DisableBasic drops the text-layer fallback.
	DisableBasic bool
}

// NewEngine assembles the chain: remote API when a URL is configured, the
// local CLI when its binary is on PATH, then the basic text extractor.
func NewEngine(cfg EngineConfig, logger *zap.Logger) *Chain {
	if logger == nil {
		logger = zap.NewNop()
	}
	var engines []Engine
	if cfg.APIURL != "" {
		engines = append(engines, NewAPIEngine(cfg.APIURL, cfg.APIKey, cfg.APITimeout))
	}
	if path, err := ResolveBinary(cfg.Binary); err == nil {
		cli := NewCLIEngine()
		cli.Binary = path
		cli.Backend = cfg.Backend
		if cfg.Timeout > 0 {
			cli.Timeout = cfg.Timeout
		}
		engines = append(engines, cli)
	} else {
		logger.Info("mineru binary not available, cli engine disabled", zap.Error(err))
	}
	if !cfg.DisableBasic {
		engines = append(engines, NewBasicEngine())
	}
	return NewChain(logger, engines...)
}

// cleanDir removes a directory tree, ignoring a missing path.
func cleanDir(dir string) {
	if dir == "" {
		return
	}
	_ = os.RemoveAll(dir)
}
