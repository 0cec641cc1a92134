// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package oracle

import "context"

// GenerationParams tunes a single completion request.
type GenerationParams struct {
	Temperature *float32 `json:"temperature,omitempty"`
	MaxTokens   *int     `json:"max_tokens,omitempty"`
	TopP        *float32 `json:"top_p,omitempty"`
	Stop        []string `json:"stop,omitempty"`
}

// Client defines the standard interface for any LLM backend.
//
// Implementations must be safe for concurrent use; the orchestrator
// shares one client across parallel concept-set resolutions.
type Client interface {
	// Complete sends a system+user prompt pair and returns the raw
	// completion text.
	Complete(ctx context.Context, system, user string, params GenerationParams) (string, error)

	// Model returns the backing model identifier for logging.
	Model() string
}
