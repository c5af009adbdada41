// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{"INFO", LevelInfo, false},
		{"", LevelInfo, false},
		{"warning", LevelWarn, false},
		{" error ", LevelError, false},
		{"verbose", LevelInfo, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnknownLevel)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLevel_String(t *testing.T) {
	assert.Equal(t, "WARN", LevelWarn.String())
	assert.Equal(t, "UNKNOWN", Level(42).String())
}

func TestNew_JSONOutputWithService(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: LevelInfo, Service: "deckd", Format: FormatJSON, Output: &buf})
	defer l.Close()

	l.Debug("hidden")
	l.With("document_id", "doc-1").Info("loaded", "slides", 3)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)
	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))
	assert.Equal(t, "loaded", rec["msg"])
	assert.Equal(t, "deckd", rec["service"])
	assert.Equal(t, "doc-1", rec["document_id"])
	assert.Equal(t, float64(3), rec["slides"])
}

func TestNew_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: LevelDebug, Format: FormatText, Output: &buf})
	l.Warn("slow subscriber", "topic", "doc-1")
	assert.Contains(t, buf.String(), "level=WARN")
	assert.Contains(t, buf.String(), "topic=doc-1")
}

func TestNew_AutoFormatNonTerminal(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: LevelInfo, Output: &buf})
	l.Info("x")
	assert.True(t, strings.HasPrefix(buf.String(), "{"), buf.String())
}

func TestNew_FileLogging(t *testing.T) {
	dir := t.TempDir()
	var buf bytes.Buffer
	l := New(Config{Level: LevelInfo, LogDir: dir, Service: "deckd-test", Format: FormatText, Output: &buf})
	l.Error("persist failed", "error", "disk full")
	require.NoError(t, l.Close())
	require.NoError(t, l.Close())

	matches, err := filepath.Glob(filepath.Join(dir, "deckd-test_*.log"))
	require.NoError(t, err)
	require.Len(t, matches, 1)
	data, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"persist failed"`)
	assert.Contains(t, buf.String(), "persist failed")
}

func TestNew_Quiet(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Quiet: true, Output: &buf})
	l.Error("nothing")
	assert.Empty(t, buf.String())
	assert.NotNil(t, l.Slog())
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".deckd"), expandPath("~/.deckd"))
	assert.Equal(t, "/var/log", expandPath("/var/log"))
}
