// Package status implements the single-producer WARNING/ERROR status
// holder shared by one top-level owner (store, averager, or query) and
// its subordinates, plus an optional append-only log sink.
package status

/*
 Copyright 2019 - 2025 Crunchy Data Solutions, Inc.
 Licensed under the Apache License, Version 2.0 (the "License");
 you may not use this file except in compliance with the License.
 You may obtain a copy of the License at
      http://www.apache.org/licenses/LICENSE-2.0
 Unless required by applicable law or agreed to in writing, software
 distributed under the License is distributed on an "AS IS" BASIS,
 WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 See the License for the specific language governing permissions and
 limitations under the License.
*/

import (
	"fmt"
	"os"
	"sync"
)

// Level is the three-state status: OK, WARNING, or ERROR.
type Level int

const (
	OK Level = iota
	WARNING
	ERROR
)

func (l Level) String() string {
	switch l {
	case OK:
		return "OK"
	case WARNING:
		return "WARNING"
	case ERROR:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Handler is the single propagation channel for warnings and fatal
// errors. It is owned by exactly one top-level component and borrowed
// (via pointer) by its subordinates; the internal mutex only guards
// against incidental concurrent access, not a concurrent-writer design.
type Handler struct {
	mu      sync.Mutex
	level   Level
	message string

	sinkEnabled bool
	sinkPath    string
	sinkFile    *os.File
}

// New returns a Handler in the OK state with logging disabled.
func New() *Handler {
	return &Handler{level: OK}
}

// Status returns the current level.
func (h *Handler) Status() Level {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.level
}

// Message returns the last warning/error message, or "" if OK.
func (h *Handler) Message() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.message
}

// IsError reports whether the current status is ERROR.
func (h *Handler) IsError() bool {
	return h.Status() == ERROR
}

// Error sets status to ERROR and records msg. ERROR is terminal: once
// set, further Warning calls do not overwrite it (WARNING never
// overwrites ERROR), and further Error calls update the message.
func (h *Handler) Error(msg string) {
	h.mu.Lock()
	h.level = ERROR
	h.message = msg
	h.mu.Unlock()
	h.log("ERROR: " + msg)
}

// Errorf is a convenience wrapper around Error + fmt.Sprintf.
func (h *Handler) Errorf(format string, args ...any) {
	h.Error(fmt.Sprintf(format, args...))
}

// Warning sets status to WARNING and records msg, unless status is
// already ERROR (WARNING never overwrites ERROR).
func (h *Handler) Warning(msg string) {
	h.mu.Lock()
	if h.level != ERROR {
		h.level = WARNING
		h.message = msg
	}
	h.mu.Unlock()
	h.log("WARNING: " + msg)
}

// Warningf is a convenience wrapper around Warning + fmt.Sprintf.
func (h *Handler) Warningf(format string, args ...any) {
	h.Warning(fmt.Sprintf(format, args...))
}

// ResetStatus clears status to OK and empties the message. Callers use
// this to continue after a WARNING (or to explicitly acknowledge and
// clear a terminal ERROR before reusing the handler).
func (h *Handler) ResetStatus() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.level = OK
	h.message = ""
}

// SetLogFilename enables the append-only log sink at path. An empty
// path is equivalent to the null-device default (sink disabled).
// Re-enabling after a prior Disable appends rather than truncating.
func (h *Handler) SetLogFilename(path string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.sinkFile != nil {
		h.sinkFile.Close()
		h.sinkFile = nil
	}

	if path == "" {
		h.sinkEnabled = false
		h.sinkPath = ""
		return nil
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	h.sinkFile = f
	h.sinkPath = path
	h.sinkEnabled = true
	return nil
}

// Disable turns the log sink off without discarding the configured
// filename; a later SetLogFilename with the same path resumes
// appending rather than truncating.
func (h *Handler) Disable() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sinkEnabled = false
	if h.sinkFile != nil {
		h.sinkFile.Close()
		h.sinkFile = nil
	}
}

// Log appends msg to the sink if enabled; it is a no-op otherwise.
func (h *Handler) Log(msg string) {
	h.log(msg)
}

func (h *Handler) log(msg string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.sinkEnabled || h.sinkFile == nil {
		return
	}
	fmt.Fprintln(h.sinkFile, msg)
}

// Close releases the log sink file, if any. Idempotent.
func (h *Handler) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.sinkFile == nil {
		return nil
	}
	err := h.sinkFile.Close()
	h.sinkFile = nil
	return err
}
