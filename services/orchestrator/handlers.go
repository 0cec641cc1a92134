// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package orchestrator

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/conceptforge/pkg/extensions"
	"github.com/AleutianAI/conceptforge/pkg/logging"
	"github.com/AleutianAI/conceptforge/pkg/validation"
	"github.com/AleutianAI/conceptforge/services/oracle"
)

var handlerTracer = otel.Tracer("github.com/AleutianAI/conceptforge/services/orchestrator")

// HandleHealth reports service liveness.
func HandleHealth() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

// auditUser names the caller for audit events.
func auditUser(c *gin.Context) string {
	if info := GetAuthInfo(c); info != nil {
		return info.UserID
	}
	return "anonymous"
}

// HandleResolve runs a full cohort build: decompose the free-text
// definition into concept sets, resolve each one, aggregate.
func HandleResolve(orch *Orchestrator, logger *logging.Logger, audit extensions.AuditLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := handlerTracer.Start(c.Request.Context(), "HandleResolve")
		defer span.End()

		var request ResolveRequest
		if err := c.BindJSON(&request); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}

		requestID := uuid.New().String()
		span.SetAttributes(
			attribute.String("request_id", requestID),
			attribute.Bool("fast", request.Fast),
		)
		logger.Info("resolve request", "request_id", requestID, "fast", request.Fast)

		result, err := orch.Build(ctx, request.CohortDefinition, request.Fast)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			logger.Error("cohort build failed", "request_id", requestID, "error", err)
			_ = audit.Log(ctx, extensions.AuditEvent{
				EventType: "resolve.request",
				UserID:    auditUser(c),
				Outcome:   "failure",
				Metadata:  map[string]any{"request_id": requestID, "error": err.Error()},
			})
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
			return
		}
		result.RequestID = requestID
		_ = audit.Log(ctx, extensions.AuditEvent{
			EventType: "resolve.request",
			UserID:    auditUser(c),
			Outcome:   "success",
			Metadata: map[string]any{
				"request_id": requestID,
				"sets":       result.Summary.TotalSets,
				"resolved":   result.Summary.Resolved,
			},
		})

		span.SetAttributes(
			attribute.Int("sets.total", result.Summary.TotalSets),
			attribute.Int("sets.resolved", result.Summary.Resolved),
		)
		c.JSON(http.StatusOK, result)
	}
}

// HandleResolveSets resolves caller-supplied concept set specs,
// skipping decomposition.
func HandleResolveSets(orch *Orchestrator, logger *logging.Logger, audit extensions.AuditLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := handlerTracer.Start(c.Request.Context(), "HandleResolveSets")
		defer span.End()

		var request SetsRequest
		if err := c.BindJSON(&request); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}

		specs := make([]oracle.ConceptSetSpec, len(request.ConceptSets))
		for i, spec := range request.ConceptSets {
			term, err := validation.SanitizeSearchTerm(spec.Name)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("concept_sets[%d]: %v", i, err)})
				return
			}
			if err := validation.ValidateDomain(spec.Domain); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("concept_sets[%d]: %v", i, err)})
				return
			}
			for _, q := range spec.Queries {
				if err := validation.ValidateSearchTerm(q); err != nil {
					c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("concept_sets[%d] query %q: %v", i, q, err)})
					return
				}
			}
			spec.Name = term
			if len(spec.Queries) == 0 {
				spec.Queries = []string{term}
			}
			specs[i] = spec
		}

		requestID := uuid.New().String()
		span.SetAttributes(
			attribute.String("request_id", requestID),
			attribute.Int("sets.requested", len(specs)),
			attribute.Bool("fast", request.Fast),
		)
		logger.Info("sets request", "request_id", requestID, "sets", len(specs))

		result := orch.BuildSets(ctx, specs, request.Fast)
		result.RequestID = requestID
		_ = audit.Log(ctx, extensions.AuditEvent{
			EventType: "sets.request",
			UserID:    auditUser(c),
			Outcome:   "success",
			Metadata: map[string]any{
				"request_id": requestID,
				"sets":       result.Summary.TotalSets,
				"resolved":   result.Summary.Resolved,
			},
		})
		c.JSON(http.StatusOK, result)
	}
}
