// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Command qraftbox starts the session hub API server.
//
// The session hub unifies AI coding sessions from CLI agent transcript
// directories (Claude Code, Codex) with sessions launched through this tool,
// and serves them over one REST API.
//
// Usage:
//
//	qraftbox serve
//	qraftbox serve --config ~/.qraftbox/config.yaml
//	qraftbox serve --addr 127.0.0.1:9000
//
// Example requests:
//
//	# Health check
//	curl http://localhost:8396/health
//
//	# Unified session list
//	curl 'http://localhost:8396/v1/sessions?limit=20&search=refactor' | jq
//
//	# Session purpose (LLM summary with fallback)
//	curl http://localhost:8396/v1/sessions/<id>/purpose | jq
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tacogips/QraftBox-sub000/pkg/logging"
	sessionhub "github.com/tacogips/QraftBox-sub000/services/sessionhub"
	"github.com/tacogips/QraftBox-sub000/services/sessionhub/config"
	"github.com/tacogips/QraftBox-sub000/services/sessionhub/observability"
)

var version = "dev"

func main() {
	root := &cobra.Command{
		Use:           "qraftbox",
		Short:         "Unified AI coding session hub",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newServeCmd() *cobra.Command {
	var configPath string
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the session hub API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Addr = addr
			}

			logger := logging.New(logging.Config{
				Level:   logging.ParseLevel(cfg.Log.Level),
				LogDir:  cfg.Log.Dir,
				Service: "sessionhub",
				JSON:    cfg.Log.JSON,
			})
			defer logger.Close()
			logger.SetAsDefault()

			observability.InitMetrics()

			srv, err := sessionhub.NewServer(cfg, logger)
			if err != nil {
				return err
			}
			defer srv.Close()

			ctx, stop := signal.NotifyContext(context.Background(),
				os.Interrupt, syscall.SIGTERM)
			defer stop()

			return srv.Run(ctx)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "config file path (default ~/.qraftbox/config.yaml)")
	cmd.Flags().StringVar(&addr, "addr", "", "listen address override")
	return cmd
}
