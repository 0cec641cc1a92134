// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package extensions

import (
	"context"
	"sync"
	"time"
)

// AuditEvent records one security-relevant service event.
//
// Event types used by the service:
//   - "resolve.request": cohort build from a free-text definition
//   - "sets.request": resolution of pre-decomposed concept sets
//   - "auth.failed": bearer token rejected
type AuditEvent struct {
	// EventType categorizes the event, formatted "category.action".
	EventType string

	// Timestamp is when the event occurred, in UTC. Implementations
	// set it to time.Now().UTC() when zero.
	Timestamp time.Time

	// UserID identifies who performed the action; "anonymous" when
	// authentication is absent.
	UserID string

	// Resource names what was acted on, e.g. the concept set name.
	Resource string

	// Outcome is one of "success", "failure", or "blocked".
	Outcome string

	// Metadata holds event-specific details such as request IDs,
	// outcome statuses, or error messages.
	Metadata map[string]any
}

// AuditLogger records audit events.
//
// Implementations must be safe for concurrent use and should never
// block request handling; buffer or drop under pressure.
type AuditLogger interface {
	Log(ctx context.Context, event AuditEvent) error
}

// NopAuditLogger discards all events.
type NopAuditLogger struct{}

// Log does nothing.
func (l *NopAuditLogger) Log(ctx context.Context, event AuditEvent) error {
	return nil
}

// MemoryAuditLogger keeps events in memory. Intended for tests and
// local inspection, not production retention.
type MemoryAuditLogger struct {
	mu     sync.Mutex
	events []AuditEvent
}

// Log appends the event, stamping a zero timestamp with the current
// time.
func (l *MemoryAuditLogger) Log(ctx context.Context, event AuditEvent) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
	return nil
}

// Events returns a copy of the recorded events.
func (l *MemoryAuditLogger) Events() []AuditEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]AuditEvent, len(l.events))
	copy(out, l.events)
	return out
}

var (
	_ AuditLogger = (*NopAuditLogger)(nil)
	_ AuditLogger = (*MemoryAuditLogger)(nil)
)
