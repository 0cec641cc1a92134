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
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/conceptforge/pkg/ux"
	"github.com/AleutianAI/conceptforge/services/orchestrator"
)

var (
	buildFile     string
	buildFast     bool
	buildAtlasDir string
	buildJSON     bool

	buildCmd = &cobra.Command{
		Use:   "build [cohort definition]",
		Short: "Build all concept sets for a cohort definition",
		Long: `Decomposes a free-text cohort definition into its component concept
sets, resolves each set in parallel, and prints the full build result
as JSON. With --atlas-dir, each set's ATLAS export is also written to
its own file.`,
		Run: runBuild,
	}
)

func init() {
	buildCmd.Flags().StringVar(&buildFile, "file", "", "read the cohort definition from a file")
	buildCmd.Flags().BoolVar(&buildFast, "fast", false, "use shallower, faster exploration bounds")
	buildCmd.Flags().StringVar(&buildAtlasDir, "atlas-dir", "", "write per-set ATLAS JSON files to this directory")
	buildCmd.Flags().BoolVar(&buildJSON, "json", false, "print the full result as JSON")
}

func runBuild(cmd *cobra.Command, args []string) {
	logger := setupLogging("conceptforge-cli")
	shutdown := setupTracing()
	defer shutdown()

	definition, err := readDefinition(args)
	if err != nil {
		log.Fatal(err)
	}

	cfg, err := orchestrator.LoadServiceConfig(configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	orch, err := orchestrator.NewStack(cfg, logger)
	if err != nil {
		log.Fatalf("initialize stack: %v", err)
	}

	spinner := ux.NewSpinner("building concept sets")
	spinner.Start()
	result, err := orch.Build(context.Background(), definition, buildFast)
	spinner.Stop()
	if err != nil {
		log.Fatalf("build failed: %v", err)
	}

	if buildAtlasDir != "" {
		if err := writeAtlasExports(buildAtlasDir, result); err != nil {
			log.Fatalf("write atlas exports: %v", err)
		}
	}
	if buildJSON {
		printJSON(result)
		return
	}
	renderBuild(result)
}

func readDefinition(args []string) (string, error) {
	if buildFile != "" {
		data, err := os.ReadFile(buildFile)
		if err != nil {
			return "", fmt.Errorf("read definition file: %w", err)
		}
		return string(data), nil
	}
	if len(args) == 0 {
		return "", fmt.Errorf("provide a cohort definition as an argument or via --file")
	}
	return strings.Join(args, " "), nil
}

// writeAtlasExports writes one ATLAS concept set file per resolved set.
func writeAtlasExports(dir string, result *orchestrator.BuildResult) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	for _, set := range result.Sets {
		data, err := json.MarshalIndent(set.Atlas, "", "  ")
		if err != nil {
			return err
		}
		path := filepath.Join(dir, slugify(set.Name)+".json")
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return err
		}
	}
	return nil
}

func slugify(name string) string {
	slug := strings.ToLower(strings.TrimSpace(name))
	slug = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, slug)
	return strings.Trim(slug, "_")
}
