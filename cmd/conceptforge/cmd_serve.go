// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"log"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/conceptforge/services/orchestrator"
)

var (
	servePort int

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the concept resolution HTTP service",
		Long: `Starts the HTTP service exposing concept set resolution and cohort
builds, plus /health and /metrics endpoints.`,
		Run: runServe,
	}
)

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "override the configured listen port")
}

func runServe(cmd *cobra.Command, args []string) {
	setupLogging("conceptforge")
	shutdown := setupTracing()
	defer shutdown()

	cfg, err := orchestrator.LoadServiceConfig(configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	cfg.LogLevel = logLevel
	if servePort != 0 {
		cfg.Port = servePort
	}

	svc, err := orchestrator.NewService(cfg, nil)
	if err != nil {
		log.Fatalf("initialize service: %v", err)
	}
	if err := svc.Run(); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
