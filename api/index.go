// Package handler is the Vercel serverless entry point.
package handler

import (
	"context"
	"net/http"
	"sync"

	"go.uber.org/zap"

	"github.com/Frank2Yang/pdf-paper-converter/internal/config"
	"github.com/Frank2Yang/pdf-paper-converter/internal/logging"
	"github.com/Frank2Yang/pdf-paper-converter/internal/server"
)

var (
	once    sync.Once
	app     http.Handler
	initErr error
)

// Handler serves every request routed to the function. The application is
// built on the first call and reused while the instance stays warm.
func Handler(w http.ResponseWriter, r *http.Request) {
	once.Do(setup)
	if initErr != nil {
		http.Error(w, `{"error":"server misconfigured"}`, http.StatusInternalServerError)
		return
	}
	app.ServeHTTP(w, r)
}

func setup() {
	cfg, err := config.Load("")
	if err != nil {
		initErr = err
		return
	}
	logger, err := logging.New(cfg.Mode, cfg.LogLevel)
	if err != nil {
		initErr = err
		return
	}
	a, err := server.Build(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("build application", zap.Error(err))
		initErr = err
		return
	}
	app = a.Engine
}
