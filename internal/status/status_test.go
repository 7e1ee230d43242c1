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
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestWarningDoesNotOverwriteError(t *testing.T) {
	h := New()
	h.Error("boom")
	h.Warning("minor issue")

	if h.Status() != ERROR {
		t.Fatalf("status = %v, want ERROR", h.Status())
	}
	if h.Message() != "boom" {
		t.Fatalf("message = %q, want %q", h.Message(), "boom")
	}
}

func TestResetStatus(t *testing.T) {
	h := New()
	h.Warning("transient")
	h.ResetStatus()

	if h.Status() != OK {
		t.Fatalf("status = %v, want OK", h.Status())
	}
	if h.Message() != "" {
		t.Fatalf("message = %q, want empty", h.Message())
	}
}

func TestLogSinkAppendsAcrossReenable(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sink.log")

	h := New()
	if err := h.SetLogFilename(path); err != nil {
		t.Fatalf("SetLogFilename: %v", err)
	}
	h.Warning("first")
	h.Disable()
	h.Warning("second (dropped)")

	if err := h.SetLogFilename(path); err != nil {
		t.Fatalf("SetLogFilename (reenable): %v", err)
	}
	h.Warning("third")
	h.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	content := string(data)
	if !strings.Contains(content, "first") {
		t.Errorf("log missing first entry: %q", content)
	}
	if strings.Contains(content, "dropped") {
		t.Errorf("log should not contain entries written while disabled: %q", content)
	}
	if !strings.Contains(content, "third") {
		t.Errorf("log missing third entry: %q", content)
	}
}

func TestDefaultSinkDisabled(t *testing.T) {
	h := New()
	h.Warning("nobody sees this")
	// No SetLogFilename call: sink defaults to the null device (disabled),
	// so nothing should be written anywhere observable. Nothing to assert
	// beyond "it does not panic or block".
}
