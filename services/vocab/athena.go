// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package vocab

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/AleutianAI/conceptforge/pkg/logging"
	"github.com/AleutianAI/conceptforge/pkg/validation"
)

// DefaultBaseURL is the public ATHENA vocabulary API endpoint.
const DefaultBaseURL = "https://athena.ohdsi.org/api/v1"

const (
	defaultPageSize   = 20
	defaultMaxRetries = 3
	defaultTimeout    = 30 * time.Second

	// defaultRatePerSecond keeps us well under ATHENA's public limits.
	defaultRatePerSecond = 5
)

// HTTPClient abstracts http.Client for testing.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// AthenaClient talks to the OHDSI ATHENA vocabulary API.
//
// Thread Safety:
//
//	AthenaClient is safe for concurrent use. The rate limiter and
//	HTTP client handle their own synchronization.
type AthenaClient struct {
	baseURL    string
	httpClient HTTPClient
	limiter    *rate.Limiter
	maxRetries int
	logger     *logging.Logger
}

// AthenaOption configures an AthenaClient.
type AthenaOption func(*AthenaClient)

// WithBaseURL overrides the API endpoint (used for testing and
// self-hosted ATHENA mirrors).
func WithBaseURL(u string) AthenaOption {
	return func(c *AthenaClient) { c.baseURL = u }
}

// WithHTTPClient injects a custom HTTP client (used for testing).
func WithHTTPClient(hc HTTPClient) AthenaOption {
	return func(c *AthenaClient) { c.httpClient = hc }
}

// WithRateLimit sets the sustained request rate per second.
func WithRateLimit(perSecond float64) AthenaOption {
	return func(c *AthenaClient) {
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), int(perSecond)+1)
	}
}

// WithMaxRetries sets the retry budget for transient failures.
func WithMaxRetries(n int) AthenaOption {
	return func(c *AthenaClient) { c.maxRetries = n }
}

// WithLogger injects a logger. Defaults to logging.Default().
func WithLogger(l *logging.Logger) AthenaOption {
	return func(c *AthenaClient) { c.logger = l }
}

// NewAthenaClient creates a client for the ATHENA vocabulary API.
//
// Example:
//
//	client := vocab.NewAthenaClient(vocab.WithRateLimit(2))
//	concepts, err := client.SearchConcepts(ctx, "type 2 diabetes", vocab.SearchOptions{StandardOnly: true})
func NewAthenaClient(opts ...AthenaOption) *AthenaClient {
	c := &AthenaClient{
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
		limiter:    rate.NewLimiter(rate.Limit(defaultRatePerSecond), defaultRatePerSecond+1),
		maxRetries: defaultMaxRetries,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = logging.Default()
	}
	return c
}

// searchResponse is the wire shape of GET /concepts.
type searchResponse struct {
	Content []wireConcept `json:"content"`
}

// wireConcept is ATHENA's concept shape. Field names differ from our
// Concept type (ATHENA uses "id"/"domain", OMOP exports use
// "conceptId"/"domainId"), so decoding goes through this struct.
type wireConcept struct {
	ID              int64    `json:"id"`
	Name            string   `json:"name"`
	Domain          string   `json:"domain"`
	Vocabulary      string   `json:"vocabulary"`
	ClassName       string   `json:"className"`
	StandardConcept string   `json:"standardConcept"`
	Code            string   `json:"code"`
	InvalidReason   string   `json:"invalidReason"`
	Synonyms        []string `json:"synonyms"`
	Score           float64  `json:"score"`
}

func (w wireConcept) toConcept() Concept {
	return Concept{
		ID:              w.ID,
		Name:            w.Name,
		Domain:          w.Domain,
		Vocabulary:      w.Vocabulary,
		ConceptClass:    w.ClassName,
		StandardConcept: w.StandardConcept,
		Code:            w.Code,
		InvalidReason:   w.InvalidReason,
		Synonyms:        w.Synonyms,
		Score:           w.Score,
	}
}

// relationshipsResponse is the wire shape of GET /concepts/{id}/relationships.
// ATHENA groups edges by relationship name.
type relationshipsResponse struct {
	Count int `json:"count"`
	Items []struct {
		GroupName     string `json:"groupName"`
		Relationships []struct {
			RelationshipName  string `json:"relationshipName"`
			TargetConceptID   int64  `json:"targetConceptId"`
			TargetConceptName string `json:"targetConceptName"`
			TargetVocabulary  string `json:"targetVocabularyId"`
			TargetStandard    string `json:"targetStandardConcept"`
		} `json:"relationships"`
	} `json:"items"`
}

// SearchConcepts searches the vocabulary for concepts matching term.
//
// When opts.StandardOnly is set, non-standard hits are replaced by the
// standard concepts they map to; hits with no standard mapping are
// dropped. Results are deduplicated by concept ID in first-seen order.
func (c *AthenaClient) SearchConcepts(ctx context.Context, term string, opts SearchOptions) ([]Concept, error) {
	safeTerm, err := validation.SanitizeSearchTerm(term)
	if err != nil {
		return nil, fmt.Errorf("search concepts: %w", err)
	}
	if err := validation.ValidateDomain(opts.Domain); err != nil {
		return nil, fmt.Errorf("search concepts: %w", err)
	}

	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}

	q := url.Values{}
	q.Set("query", safeTerm)
	q.Set("pageSize", strconv.Itoa(pageSize))
	if opts.Domain != "" {
		q.Set("domain", opts.Domain)
	}
	if opts.Vocabulary != "" {
		q.Set("vocabulary", opts.Vocabulary)
	}

	var resp searchResponse
	if err := c.getJSON(ctx, "/concepts?"+q.Encode(), &resp); err != nil {
		return nil, fmt.Errorf("search concepts %q: %w", safeTerm, err)
	}

	concepts := make([]Concept, 0, len(resp.Content))
	for _, w := range resp.Content {
		concepts = append(concepts, w.toConcept())
	}

	if !opts.StandardOnly {
		return concepts, nil
	}
	return c.replaceWithStandard(ctx, concepts)
}

// replaceWithStandard swaps non-standard concepts for their "Maps to"
// targets, preserving order and deduplicating by ID. Mapping failures
// for individual concepts drop that concept rather than failing the
// whole search.
func (c *AthenaClient) replaceWithStandard(ctx context.Context, concepts []Concept) ([]Concept, error) {
	out := make([]Concept, 0, len(concepts))
	seen := make(map[int64]bool, len(concepts))

	for _, concept := range concepts {
		if concept.IsStandard() {
			if !seen[concept.ID] {
				seen[concept.ID] = true
				out = append(out, concept)
			}
			continue
		}

		mappedIDs, err := c.MapsToStandard(ctx, concept.ID)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			c.logger.Warn("standard mapping lookup failed, dropping hit",
				"concept_id", concept.ID, "error", err)
			continue
		}
		for _, id := range mappedIDs {
			if seen[id] {
				continue
			}
			mapped, err := c.GetConcept(ctx, id)
			if err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				c.logger.Warn("mapped concept fetch failed",
					"concept_id", id, "error", err)
				continue
			}
			seen[id] = true
			out = append(out, *mapped)
		}
	}
	return out, nil
}

// GetConcept fetches a single concept by ID.
//
// Returns ErrNotFound (wrapped) if the ID does not exist.
func (c *AthenaClient) GetConcept(ctx context.Context, id int64) (*Concept, error) {
	if err := validation.ValidateConceptID(id); err != nil {
		return nil, fmt.Errorf("get concept: %w", err)
	}

	var w wireConcept
	if err := c.getJSON(ctx, fmt.Sprintf("/concepts/%d", id), &w); err != nil {
		return nil, fmt.Errorf("get concept %d: %w", id, err)
	}
	concept := w.toConcept()
	return &concept, nil
}

// GetRelationships fetches all relationship edges for a concept.
func (c *AthenaClient) GetRelationships(ctx context.Context, id int64) ([]Relationship, error) {
	if err := validation.ValidateConceptID(id); err != nil {
		return nil, fmt.Errorf("get relationships: %w", err)
	}

	var resp relationshipsResponse
	if err := c.getJSON(ctx, fmt.Sprintf("/concepts/%d/relationships", id), &resp); err != nil {
		return nil, fmt.Errorf("get relationships %d: %w", id, err)
	}

	var rels []Relationship
	for _, group := range resp.Items {
		for _, r := range group.Relationships {
			name := r.RelationshipName
			if name == "" {
				name = group.GroupName
			}
			rels = append(rels, Relationship{
				RelationshipName:  name,
				TargetConceptID:   r.TargetConceptID,
				TargetConceptName: r.TargetConceptName,
				TargetVocabulary:  r.TargetVocabulary,
				TargetStandard:    r.TargetStandard,
			})
		}
	}
	return rels, nil
}

// MapsToStandard returns the IDs of standard concepts this concept
// maps to via "Maps to" edges, excluding the self-edge every standard
// concept carries.
func (c *AthenaClient) MapsToStandard(ctx context.Context, id int64) ([]int64, error) {
	rels, err := c.GetRelationships(ctx, id)
	if err != nil {
		return nil, err
	}

	var ids []int64
	for _, rel := range rels {
		if rel.IsMapsTo() && rel.TargetConceptID != id {
			ids = append(ids, rel.TargetConceptID)
		}
	}
	return ids, nil
}

// GetConceptsBatch fetches multiple concepts, tolerating individual
// failures: concepts that cannot be fetched are skipped with a warning.
// Returns an error only when every fetch fails or the context is done.
func (c *AthenaClient) GetConceptsBatch(ctx context.Context, ids []int64) ([]Concept, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	if err := validation.ValidateConceptIDs(ids); err != nil {
		return nil, fmt.Errorf("get concepts batch: %w", err)
	}

	concepts := make([]Concept, 0, len(ids))
	var lastErr error
	for _, id := range ids {
		concept, err := c.GetConcept(ctx, id)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			c.logger.Warn("batch concept fetch failed", "concept_id", id, "error", err)
			lastErr = err
			continue
		}
		concepts = append(concepts, *concept)
	}

	if len(concepts) == 0 && lastErr != nil {
		return nil, fmt.Errorf("get concepts batch: all %d fetches failed: %w", len(ids), lastErr)
	}
	return concepts, nil
}

// getJSON performs a rate-limited, retried GET and decodes the JSON body.
//
// Retries cover 429 and 5xx responses and transport errors with
// exponential backoff. Context cancellation is never retried.
func (c *AthenaClient) getJSON(ctx context.Context, path string, out any) error {
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<uint(attempt-1)) * time.Second
			c.logger.Debug("retrying vocabulary request",
				"path", path, "attempt", attempt, "backoff", backoff.String())
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		err := c.doGet(ctx, path, out)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		// Not found is definitive; retrying won't make the concept exist.
		if isNonRetryable(err) {
			return err
		}
		lastErr = err
	}
	return fmt.Errorf("after %d retries: %w", c.maxRetries, lastErr)
}

func isNonRetryable(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrInvalidResponse)
}

func (c *AthenaClient) doGet(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "conceptforge/1.0")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		observeRequest(path, "transport_error", time.Since(start))
		return fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	observeRequest(path, strconv.Itoa(resp.StatusCode), time.Since(start))

	switch {
	case resp.StatusCode == http.StatusOK:
		// fall through to decode
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode == http.StatusTooManyRequests:
		return ErrRateLimited
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: status %d", ErrUpstream, resp.StatusCode)
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: status %d: %s", ErrInvalidResponse, resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode: %v", ErrInvalidResponse, err)
	}
	return nil
}
