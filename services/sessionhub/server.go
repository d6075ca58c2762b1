// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package sessionhub assembles the session hub service: transcript index,
// runtime store, mapping store, purpose cache and reconciliation engine
// behind one HTTP server.
package sessionhub

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tacogips/QraftBox-sub000/pkg/logging"
	"github.com/tacogips/QraftBox-sub000/services/sessionhub/config"
	"github.com/tacogips/QraftBox-sub000/services/sessionhub/mapping"
	"github.com/tacogips/QraftBox-sub000/services/sessionhub/middleware"
	"github.com/tacogips/QraftBox-sub000/services/sessionhub/purpose"
	"github.com/tacogips/QraftBox-sub000/services/sessionhub/reconcile"
	"github.com/tacogips/QraftBox-sub000/services/sessionhub/routes"
	"github.com/tacogips/QraftBox-sub000/services/sessionhub/runtimestore"
	"github.com/tacogips/QraftBox-sub000/services/sessionhub/summarize"
	"github.com/tacogips/QraftBox-sub000/services/sessionhub/transcript"
)

const shutdownTimeout = 10 * time.Second

// Server owns the service's stores and HTTP listener.
type Server struct {
	cfg    config.Config
	logger *logging.Logger

	reader   *transcript.Reader
	store    *runtimestore.Store
	mappings *mapping.Store
	httpSrv  *http.Server
}

// NewServer builds the full service from configuration. Call Run to serve
// and Close to release the stores.
func NewServer(cfg config.Config, logger *logging.Logger) (*Server, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir %s: %w", cfg.DataDir, err)
	}

	store, err := runtimestore.Open(cfg.SQLitePath())
	if err != nil {
		return nil, fmt.Errorf("open runtime store: %w", err)
	}

	mappings, err := mapping.Open(mapping.Config{
		Path:   cfg.MappingPath(),
		Logger: logger.Slog(),
	})
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("open mapping store: %w", err)
	}

	reader := transcript.NewReader(cfg.ClaudeRoot, cfg.CodexRoot, logger.Slog())

	var summarizer summarize.Summarizer
	s, err := summarize.NewOpenAISummarizer(summarize.Config{
		Model:          cfg.Summarizer.Model,
		Timeout:        time.Duration(cfg.Summarizer.TimeoutSeconds) * time.Second,
		OutputLanguage: cfg.Summarizer.OutputLanguage,
		RatePerMinute:  cfg.Summarizer.RatePerMinute,
		Logger:         logger.Slog(),
	})
	if err != nil {
		logger.Warn("summarizer unavailable, purposes fall back to first prompts", "error", err)
	} else {
		summarizer = s
	}

	cache := purpose.NewCache(reader, summarizer, logger.Slog())
	engine := reconcile.NewEngine(reader, store, mappings, logger.Slog())

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(middleware.RequestID())
	router.Use(middleware.RequestLogger(logger.Slog()))
	router.Use(gin.Recovery())

	routes.SetupRoutes(router, routes.Deps{
		Engine:   engine,
		Reader:   reader,
		Purpose:  cache,
		Store:    store,
		Mappings: mappings,
	})

	return &Server{
		cfg:      cfg,
		logger:   logger,
		reader:   reader,
		store:    store,
		mappings: mappings,
		httpSrv: &http.Server{
			Addr:              cfg.Addr,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

// Run serves HTTP until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("session hub listening", "addr", s.cfg.Addr)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return <-errCh
}

// Close releases the stores and the transcript watcher.
func (s *Server) Close() error {
	var firstErr error
	if err := s.reader.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := s.mappings.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := s.store.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
