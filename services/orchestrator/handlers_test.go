// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/conceptforge/pkg/extensions"
	"github.com/AleutianAI/conceptforge/pkg/logging"
	"github.com/AleutianAI/conceptforge/services/oracle"
	"github.com/AleutianAI/conceptforge/services/resolve"
)

func testRouter(t *testing.T, orch *Orchestrator) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := logging.New(logging.Config{Level: logging.LevelError, Quiet: true})

	router := gin.New()
	router.GET("/health", HandleHealth())
	router.POST("/v1/concepts/resolve", HandleResolve(orch, logger, &extensions.NopAuditLogger{}))
	router.POST("/v1/concepts/sets", HandleResolveSets(orch, logger, &extensions.NopAuditLogger{}))
	return router
}

func postJSON(t *testing.T, router *gin.Engine, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	return w
}

func TestHandleHealth(t *testing.T) {
	router := testRouter(t, testOrchestrator(&scriptedResolver{}, &scriptedDecomposer{}))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestHandleResolve_Success(t *testing.T) {
	resolver := &scriptedResolver{results: map[string]resolve.SetResult{
		"alpha": resolvedResult("alpha", 1),
	}}
	decomposer := &scriptedDecomposer{specs: []oracle.ConceptSetSpec{
		{Name: "alpha", Domain: "Condition", Queries: []string{"alpha"}},
		{Name: "beta", Domain: "Drug", Queries: []string{"beta"}},
	}}
	router := testRouter(t, testOrchestrator(resolver, decomposer))

	w := postJSON(t, router, "/v1/concepts/resolve", ResolveRequest{
		CohortDefinition: "patients with alpha on beta",
	})

	require.Equal(t, http.StatusOK, w.Code)

	var result BuildResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.NotEmpty(t, result.RequestID)
	require.Len(t, result.Sets, 2)
	assert.Equal(t, "alpha", result.Sets[0].Name)
	assert.Equal(t, 2, result.Summary.TotalSets)
	assert.Equal(t, 1, result.Summary.Resolved)
	assert.Equal(t, 1, result.Summary.Unresolved)
}

func TestHandleResolve_DecompositionFailure(t *testing.T) {
	decomposer := &scriptedDecomposer{err: errors.New("no parseable plan")}
	router := testRouter(t, testOrchestrator(&scriptedResolver{}, decomposer))

	w := postJSON(t, router, "/v1/concepts/resolve", ResolveRequest{CohortDefinition: "gibberish"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestHandleResolve_MissingDefinition(t *testing.T) {
	router := testRouter(t, testOrchestrator(&scriptedResolver{}, &scriptedDecomposer{}))

	w := postJSON(t, router, "/v1/concepts/resolve", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleResolveSets_Success(t *testing.T) {
	resolver := &scriptedResolver{results: map[string]resolve.SetResult{
		"atrial fibrillation": resolvedResult("atrial fibrillation", 313217),
	}}
	router := testRouter(t, testOrchestrator(resolver, &scriptedDecomposer{}))

	w := postJSON(t, router, "/v1/concepts/sets", SetsRequest{
		ConceptSets: []oracle.ConceptSetSpec{
			{Name: "atrial fibrillation", Domain: "Condition"},
			{Name: "warfarin", Domain: "Drug", Queries: []string{"warfarin"}},
		},
	})

	require.Equal(t, http.StatusOK, w.Code)

	var result BuildResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.NotEmpty(t, result.RequestID)
	require.Len(t, result.Sets, 2)
	assert.Equal(t, "atrial fibrillation", result.Sets[0].Name)
	require.Len(t, result.Sets[0].Atlas.Expression.Items, 1)
	assert.Equal(t, int64(313217), result.Sets[0].Atlas.Expression.Items[0].Concept.ConceptID)
	assert.Equal(t, 1, result.Summary.Resolved)
	assert.Equal(t, 1, result.Summary.Unresolved)
}

func TestHandleResolveSets_Validation(t *testing.T) {
	router := testRouter(t, testOrchestrator(&scriptedResolver{}, &scriptedDecomposer{}))

	tests := []struct {
		name string
		body any
	}{
		{"missing concept sets", map[string]string{}},
		{"empty concept sets", SetsRequest{ConceptSets: []oracle.ConceptSetSpec{}}},
		{"unknown domain", SetsRequest{ConceptSets: []oracle.ConceptSetSpec{
			{Name: "flu", Domain: "Potion"}}}},
		{"control characters", SetsRequest{ConceptSets: []oracle.ConceptSetSpec{
			{Name: "flu\x00shot", Domain: "Condition"}}}},
		{"bad query", SetsRequest{ConceptSets: []oracle.ConceptSetSpec{
			{Name: "flu", Domain: "Condition", Queries: []string{"flu\x00shot"}}}}},
		{"not json", "definitely not json"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := postJSON(t, router, "/v1/concepts/sets", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

// recordingResolver captures the specs it is asked to resolve.
type recordingResolver struct {
	mu    sync.Mutex
	specs []oracle.ConceptSetSpec
}

func (r *recordingResolver) Resolve(ctx context.Context, spec oracle.ConceptSetSpec) resolve.SetResult {
	r.mu.Lock()
	r.specs = append(r.specs, spec)
	r.mu.Unlock()
	return resolve.SetResult{
		Name:              spec.Name,
		IncludedConcepts:  []resolve.IncludedConcept{},
		ExcludedConcepts:  []resolve.IncludedConcept{},
		ResolutionOutcome: resolve.Outcome{Status: resolve.StatusResolved},
	}
}

func TestHandleResolveSets_DefaultsQueryToName(t *testing.T) {
	resolver := &recordingResolver{}
	router := testRouter(t, testOrchestrator(resolver, &scriptedDecomposer{}))

	w := postJSON(t, router, "/v1/concepts/sets", SetsRequest{
		ConceptSets: []oracle.ConceptSetSpec{{Name: "  influenza  ", Domain: "Condition"}},
	})

	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, resolver.specs, 1)
	assert.Equal(t, "influenza", resolver.specs[0].Name)
	assert.Equal(t, []string{"influenza"}, resolver.specs[0].Queries)
}
