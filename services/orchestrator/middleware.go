// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package orchestrator

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/conceptforge/pkg/extensions"
)

const authInfoKey = "conceptforge.auth_info"

// AuthMiddleware validates the bearer token on every request through
// the configured provider. The default NopAuthProvider accepts all
// requests, so local deployments run unauthenticated.
func AuthMiddleware(provider extensions.AuthProvider, audit extensions.AuditLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractBearerToken(c)

		authInfo, err := provider.Validate(c.Request.Context(), token)
		if err != nil {
			_ = audit.Log(c.Request.Context(), extensions.AuditEvent{
				EventType: "auth.failed",
				UserID:    "anonymous",
				Outcome:   "blocked",
				Metadata:  map[string]any{"path": c.Request.URL.Path},
			})
			if errors.Is(err, extensions.ErrUnauthorized) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
				return
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication failed"})
			return
		}

		c.Set(authInfoKey, authInfo)
		c.Next()
	}
}

// GetAuthInfo returns the authenticated identity stored by
// AuthMiddleware, or nil when authentication did not run.
func GetAuthInfo(c *gin.Context) *extensions.AuthInfo {
	value, ok := c.Get(authInfoKey)
	if !ok {
		return nil
	}
	info, ok := value.(*extensions.AuthInfo)
	if !ok {
		return nil
	}
	return info
}

// extractBearerToken parses "Bearer <token>" from the Authorization
// header. The prefix match is case-insensitive per RFC 7235.
func extractBearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
