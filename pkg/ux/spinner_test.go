// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestSpinnerStartStop(t *testing.T) {
	var buf bytes.Buffer
	var mu sync.Mutex

	s := NewSpinner("resolving")
	s.out = &lockedWriter{buf: &buf, mu: &mu}

	s.Start()
	time.Sleep(200 * time.Millisecond)
	s.Stop()

	mu.Lock()
	output := buf.String()
	mu.Unlock()
	if !strings.Contains(output, "resolving") {
		t.Error("spinner never rendered its message")
	}
	// The stop sequence clears the line.
	if !strings.Contains(output, "\033[K") {
		t.Error("spinner did not clear its line on stop")
	}
}

func TestSpinnerDoubleStartAndStop(t *testing.T) {
	var buf bytes.Buffer
	var mu sync.Mutex

	s := NewSpinner("working")
	s.out = &lockedWriter{buf: &buf, mu: &mu}

	s.Start()
	s.Start() // no-op
	s.Stop()
	s.Stop() // no-op, must not panic on closed channel
}

func TestSpinnerUpdateMessage(t *testing.T) {
	var buf bytes.Buffer
	var mu sync.Mutex

	s := NewSpinner("first")
	s.out = &lockedWriter{buf: &buf, mu: &mu}

	s.Start()
	time.Sleep(120 * time.Millisecond)
	s.UpdateMessage("second")
	time.Sleep(120 * time.Millisecond)
	s.Stop()

	mu.Lock()
	output := buf.String()
	mu.Unlock()
	if !strings.Contains(output, "second") {
		t.Error("updated message never rendered")
	}
}

func TestIconRender(t *testing.T) {
	for _, icon := range []Icon{IconSuccess, IconWarning, IconError, IconArrow, IconBullet} {
		if rendered := icon.Render(); !strings.Contains(rendered, string(icon)) {
			t.Errorf("icon %q rendered as %q", icon, rendered)
		}
	}
}

type lockedWriter struct {
	buf *bytes.Buffer
	mu  *sync.Mutex
}

func (w *lockedWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.Write(p)
}
