// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/conceptforge/pkg/ux"
	"github.com/AleutianAI/conceptforge/services/oracle"
	"github.com/AleutianAI/conceptforge/services/orchestrator"
)

var (
	resolveDomain string
	resolveIntent string
	resolveFast   bool
	resolveJSON   bool

	resolveCmd = &cobra.Command{
		Use:   "resolve [term]",
		Short: "Resolve one clinical term into a standard concept set",
		Long: `Searches the ATHENA vocabulary for the term, explores the concept
relationship graph under the configured bounds, and prints the
resolved concept set with its ATLAS export as JSON.`,
		Args: cobra.MinimumNArgs(1),
		Run:  runResolve,
	}
)

func init() {
	resolveCmd.Flags().StringVar(&resolveDomain, "domain", "", "OMOP domain hint (Condition, Drug, Measurement, Procedure, Observation)")
	resolveCmd.Flags().StringVar(&resolveIntent, "intent", "", "clinical intent behind the term")
	resolveCmd.Flags().BoolVar(&resolveFast, "fast", false, "use shallower, faster exploration bounds")
	resolveCmd.Flags().BoolVar(&resolveJSON, "json", false, "print the full result as JSON")
}

func runResolve(cmd *cobra.Command, args []string) {
	logger := setupLogging("conceptforge-cli")
	shutdown := setupTracing()
	defer shutdown()

	cfg, err := orchestrator.LoadServiceConfig(configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	orch, err := orchestrator.NewStack(cfg, logger)
	if err != nil {
		log.Fatalf("initialize stack: %v", err)
	}

	term := strings.Join(args, " ")
	spec := oracle.ConceptSetSpec{
		Name:               term,
		Intent:             resolveIntent,
		Domain:             resolveDomain,
		Queries:            []string{term},
		IncludeDescendants: true,
		StandardOnly:       true,
	}

	spinner := ux.NewSpinner("resolving " + term)
	spinner.Start()
	output := orch.ResolveSet(context.Background(), spec, resolveFast)
	spinner.Stop()

	if resolveJSON {
		printJSON(output)
		return
	}
	renderSet(output)
}

func printJSON(v any) {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(v); err != nil {
		log.Fatalf("encode output: %v", err)
	}
}
