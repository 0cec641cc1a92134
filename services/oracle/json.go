// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package oracle

import (
	"encoding/json"
	"fmt"
	"strings"
)

// decodeResponse parses an LLM completion into out, tolerating
// markdown code fences and surrounding prose.
func decodeResponse(response string, out any) error {
	// Try direct parse
	if err := json.Unmarshal([]byte(response), out); err == nil {
		return nil
	}

	cleaned := extractJSON(response)
	if cleaned != "" {
		if err := json.Unmarshal([]byte(cleaned), out); err == nil {
			return nil
		}
	}
	return fmt.Errorf("unable to parse completion as JSON")
}

// extractJSON tries to extract JSON from markdown code blocks, falling
// back to the outermost brace pair.
func extractJSON(response string) string {
	startMarkers := []string{"```json\n", "```json\r\n", "```\n", "```\r\n"}
	endMarker := "```"

	for _, startMarker := range startMarkers {
		startIdx := strings.Index(response, startMarker)
		if startIdx == -1 {
			continue
		}

		contentStart := startIdx + len(startMarker)
		remaining := response[contentStart:]
		endIdx := strings.Index(remaining, endMarker)
		if endIdx == -1 {
			continue
		}

		return strings.TrimSpace(remaining[:endIdx])
	}

	startIdx := strings.Index(response, "{")
	endIdx := strings.LastIndex(response, "}")
	if startIdx != -1 && endIdx != -1 && endIdx > startIdx {
		return response[startIdx : endIdx+1]
	}

	return ""
}
