// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package oracle

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/AleutianAI/conceptforge/pkg/logging"
)

const (
	defaultModel      = "gpt-4o-mini"
	defaultMaxRetries = 2

	// secretPath is where container runtimes mount the API key.
	secretPath = "/run/secrets/openai_api_key"
)

// OpenAIClient implements Client against the OpenAI chat API.
type OpenAIClient struct {
	client     *openai.Client
	model      string
	maxRetries int
	logger     *logging.Logger
}

// OpenAIOption configures an OpenAIClient.
type OpenAIOption func(*OpenAIClient)

// WithModel overrides the model (otherwise OPENAI_MODEL or the default).
func WithModel(model string) OpenAIOption {
	return func(c *OpenAIClient) { c.model = model }
}

// WithMaxRetries sets the retry budget for transient API failures.
func WithMaxRetries(n int) OpenAIOption {
	return func(c *OpenAIClient) { c.maxRetries = n }
}

// WithLogger injects a logger.
func WithLogger(l *logging.Logger) OpenAIOption {
	return func(c *OpenAIClient) { c.logger = l }
}

// NewOpenAIClient creates a client from the environment.
//
// The API key comes from OPENAI_API_KEY, falling back to the container
// secret mount. The model comes from OPENAI_MODEL unless overridden.
func NewOpenAIClient(opts ...OpenAIOption) (*OpenAIClient, error) {
	c := &OpenAIClient{
		model:      os.Getenv("OPENAI_MODEL"),
		maxRetries: defaultMaxRetries,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = logging.Default()
	}

	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		keyBytes, err := os.ReadFile(secretPath)
		if err != nil {
			c.logger.Error("no OpenAI API key in environment or secret mount", "path", secretPath)
			return nil, fmt.Errorf("OPENAI_API_KEY environment variable not set")
		}
		apiKey = strings.TrimSpace(string(keyBytes))
		c.logger.Info("read OpenAI API key from secret mount")
	}

	if c.model == "" {
		c.model = defaultModel
		c.logger.Warn("OPENAI_MODEL not set, using default", "model", defaultModel)
	}

	c.logger.Info("initializing OpenAI client", "model", c.model)
	c.client = openai.NewClient(apiKey)
	return c, nil
}

// Model returns the backing model identifier.
func (c *OpenAIClient) Model() string {
	return c.model
}

// Complete implements the Client interface with bounded retries.
//
// Context cancellation is never retried; transient API failures back
// off exponentially.
func (c *OpenAIClient) Complete(ctx context.Context, system, user string, params GenerationParams) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
	}
	if params.Temperature != nil {
		req.Temperature = *params.Temperature
	}
	if params.MaxTokens != nil {
		req.MaxCompletionTokens = *params.MaxTokens
	}
	if params.TopP != nil {
		req.TopP = *params.TopP
	}
	if len(params.Stop) > 0 {
		req.Stop = params.Stop
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<uint(attempt-1)) * time.Second
			c.logger.Debug("retrying completion", "attempt", attempt, "backoff", backoff.String())
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(backoff):
			}
		}

		resp, err := c.client.CreateChatCompletion(ctx, req)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			c.logger.Warn("completion failed", "model", c.model, "error", err)
			lastErr = err
			continue
		}
		if len(resp.Choices) == 0 {
			lastErr = fmt.Errorf("completion returned no choices")
			continue
		}
		return resp.Choices[0].Message.Content, nil
	}
	return "", fmt.Errorf("completion failed after %d retries: %w", c.maxRetries, lastErr)
}
