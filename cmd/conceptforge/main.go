// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// conceptforge resolves OMOP concept sets from clinical phrases: it
// searches the ATHENA vocabulary, explores concept relationships under
// strict bounds, and emits ATLAS-importable concept set definitions.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/AleutianAI/conceptforge/pkg/logging"
)

var (
	rootCmd = &cobra.Command{
		Use:   "conceptforge",
		Short: "Resolve clinical phrases into OMOP standard concept sets",
		Long: `Conceptforge turns free-text clinical terms and cohort definitions
into OMOP standard concept sets by exploring the vocabulary
relationship graph under strict depth, visit, and time bounds.`,
	}

	configPath string
	logLevel   string
	traceSpans bool
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to YAML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVar(&traceSpans, "trace", false, "print trace spans to stdout")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(resolveCmd)
	rootCmd.AddCommand(buildCmd)
}

// setupLogging installs the process-wide logger from the CLI flags.
func setupLogging(service string) *logging.Logger {
	logger := logging.New(logging.Config{
		Level:   logging.ParseLevel(logLevel),
		Service: service,
	})
	logger.SetAsDefault()
	return logger
}

// setupTracing installs a stdout span exporter when --trace is set and
// returns a shutdown function.
func setupTracing() func() {
	if !traceSpans {
		return func() {}
	}

	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		fmt.Fprintf(os.Stderr, "trace exporter init failed: %v\n", err)
		return func() {}
	}
	provider := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
	otel.SetTracerProvider(provider)

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = provider.Shutdown(ctx)
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
