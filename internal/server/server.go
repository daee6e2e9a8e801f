package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Frank2Yang/pdf-paper-converter/internal/config"
	"github.com/Frank2Yang/pdf-paper-converter/internal/jobs"
	"github.com/Frank2Yang/pdf-paper-converter/internal/mineru"
	"github.com/Frank2Yang/pdf-paper-converter/internal/pdfinfo"
	"github.com/Frank2Yang/pdf-paper-converter/internal/server/handler"
	"github.com/Frank2Yang/pdf-paper-converter/internal/server/router"
	"github.com/Frank2Yang/pdf-paper-converter/internal/service"
	"github.com/Frank2Yang/pdf-paper-converter/internal/storage"
)

const shutdownTimeout = 30 * time.Second

// App is the assembled HTTP application and the resources behind it.
type App struct {
	Engine *gin.Engine
	Jobs   *jobs.Manager

	closers []func() error
}

// NewEngine builds the engine chain described by cfg.
func NewEngine(cfg *config.Config, logger *zap.Logger) *mineru.Chain {
	return mineru.NewEngine(mineru.EngineConfig{
		Binary:       cfg.MinerU.Binary,
		Backend:      cfg.MinerU.Backend,
		Timeout:      cfg.MinerU.Timeout,
		APIURL:       cfg.MinerU.APIURL,
		APIKey:       cfg.MinerU.APIKey,
		APITimeout:   cfg.MinerU.APITimeout,
		DisableBasic: cfg.MinerU.DisableBasic,
	}, logger)
}

// Build assembles the application from configuration.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	return build(ctx, cfg, NewEngine(cfg, logger), logger)
}

func build(ctx context.Context, cfg *config.Config, engine *mineru.Chain, logger *zap.Logger) (*App, error) {
	// Set Gin mode based on environment
	if gin.Mode() != gin.TestMode {
		if cfg.Production() {
			gin.SetMode(gin.ReleaseMode)
		} else {
			gin.SetMode(gin.DebugMode)
		}
	}

	if len(engine.Engines()) == 0 {
		err := mineru.EnsureBinary(cfg.MinerU.Binary)
		if err == nil {
			err = errors.New("every engine is disabled")
		}
		return nil, fmt.Errorf("no conversion engine available: %w", err)
	}

	// Build dependency chain
	svc := service.NewConvertService(engine, pdfinfo.Inspector{}, logger)
	svc.Workers = cfg.Workers

	app := &App{}
	archive, err := storage.New(ctx, storage.Config{
		Backend: cfg.Storage.Backend,
		Dir:     cfg.Storage.Dir,
		Bucket:  cfg.Storage.Bucket,
	})
	if err != nil {
		return nil, fmt.Errorf("open result storage: %w", err)
	}
	if c, ok := archive.(io.Closer); ok {
		app.closers = append(app.closers, c.Close)
	}

	store, err := openJobStore(cfg)
	if err != nil {
		app.close()
		return nil, err
	}
	if c, ok := store.(io.Closer); ok {
		app.closers = append(app.closers, c.Close)
	}
	app.Jobs = jobs.NewManager(svc, store, archive, logger, jobs.Config{
		Workers:   cfg.Jobs.Workers,
		QueueSize: cfg.Jobs.QueueSize,
	})

	maxUpload := cfg.MaxUploadBytes()
	app.Engine = router.New(cfg.APIKey, router.Handlers{
		Convert: handler.NewConvertHandler(svc, maxUpload, logger),
		Jobs:    handler.NewJobHandler(svc, app.Jobs, maxUpload, logger),
		Status: handler.NewStatusHandler(handler.StatusInfo{
			Engine:      engine.Name(),
			Engines:     engine.Engines(),
			Vercel:      cfg.Vercel,
			MaxUploadMB: cfg.MaxUploadMB,
			Storage:     cfg.Storage.Backend,
		}),
		Index: handler.HandleIndex,
	}, logger)

	logger.Info("application ready",
		zap.String("engine", engine.Name()),
		zap.Int("max_upload_mb", cfg.MaxUploadMB),
		zap.String("storage", cfg.Storage.Backend),
		zap.Bool("vercel", cfg.Vercel),
	)
	return app, nil
}

func openJobStore(cfg *config.Config) (jobs.Store, error) {
	if cfg.Jobs.DBPath == "" {
		return jobs.NewMemoryStore(cfg.Jobs.MaxKept), nil
	}
	s, err := jobs.OpenSQLite(cfg.Jobs.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open job store: %w", err)
	}
	return s, nil
}

// Close drains the job queue and releases storage handles.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.Jobs != nil {
		errs = append(errs, a.Jobs.Close(ctx))
	}
	errs = append(errs, a.close())
	return errors.Join(errs...)
}

func (a *App) close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}

// Run starts the HTTP server and blocks until ctx is cancelled or the
// listener fails. In-flight requests and queued jobs get shutdownTimeout
// to finish.
func Run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	app, err := Build(ctx, cfg, logger)
	if err != nil {
		return err
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           app.Engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			_ = app.Close(context.Background())
			return fmt.Errorf("listen %s: %w", addr, err)
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return errors.Join(srv.Shutdown(shutdownCtx), app.Close(shutdownCtx))
}
