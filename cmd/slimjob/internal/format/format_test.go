// Copyright 2025 Vulntor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

package format

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    OutputMode
		wantErr bool
	}{
		{"json", ModeJSON, false},
		{"JSON", ModeJSON, false},
		{" table ", ModeTable, false},
		{"xml", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			mode, err := ParseMode(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, mode)
		})
	}
}

func TestPrinter_JSON(t *testing.T) {
	var stdout, stderr bytes.Buffer
	p := New(&stdout, &stderr, ModeJSON, false, false)

	require.NoError(t, p.JSON(map[string]string{"name": "a"}))
	assert.Equal(t, "{\n  \"name\": \"a\"\n}\n", stdout.String())
}

func TestPrinter_Table(t *testing.T) {
	var stdout, stderr bytes.Buffer
	p := New(&stdout, &stderr, ModeTable, false, false)

	require.NoError(t, p.Table([]string{"name", "state"}, [][]string{{"a", "completed"}, {"bb", "faulted"}}))
	lines := strings.Split(strings.TrimSpace(stdout.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "NAME  STATE", lines[0])
	assert.Equal(t, "a     completed", lines[1])
}

func TestPrinter_Summary(t *testing.T) {
	t.Run("table mode writes to stdout", func(t *testing.T) {
		var stdout, stderr bytes.Buffer
		require.NoError(t, New(&stdout, &stderr, ModeTable, false, false).Summary("done"))
		assert.Equal(t, "done\n", stdout.String())
		assert.Empty(t, stderr.String())
	})

	t.Run("json mode keeps stdout clean", func(t *testing.T) {
		var stdout, stderr bytes.Buffer
		require.NoError(t, New(&stdout, &stderr, ModeJSON, false, false).Summary("done"))
		assert.Empty(t, stdout.String())
		assert.Equal(t, "done\n", stderr.String())
	})

	t.Run("quiet", func(t *testing.T) {
		var stdout, stderr bytes.Buffer
		require.NoError(t, New(&stdout, &stderr, ModeTable, true, false).Summary("done"))
		assert.Empty(t, stdout.String())
		assert.Empty(t, stderr.String())
	})
}

func TestPrinter_Error(t *testing.T) {
	t.Run("table mode", func(t *testing.T) {
		var stdout, stderr bytes.Buffer
		p := New(&stdout, &stderr, ModeTable, false, false)

		require.NoError(t, p.Error(errors.New("boom")))
		assert.Equal(t, "Error: boom\n", stderr.String())
		assert.Empty(t, stdout.String())
		require.NoError(t, p.Error(nil))
	})

	t.Run("json mode", func(t *testing.T) {
		var stdout, stderr bytes.Buffer
		p := New(&stdout, &stderr, ModeJSON, false, false)

		require.NoError(t, p.Error(errors.New("boom")))
		var doc struct {
			Success *bool  `json:"success"`
			Error   string `json:"error"`
		}
		require.NoError(t, json.Unmarshal(stdout.Bytes(), &doc))
		require.NotNil(t, doc.Success)
		assert.False(t, *doc.Success)
		assert.Equal(t, "boom", doc.Error)
		assert.Empty(t, stderr.String())
	})
}

func sampleReport() Report {
	return Report{
		Script: "demo",
		Steps: []StepRow{
			{Name: "a", State: "completed", Delay: 0, Started: 1, Elapsed: time.Millisecond},
			{Name: "b", State: "faulted", Delay: 10 * time.Millisecond, Started: 2, Error: "faulted: boom"},
			{Name: "c", State: "canceled", Delay: time.Second},
		},
		Order:     []string{"a", "b"},
		Completed: 1,
		Faulted:   1,
		Canceled:  1,
		Duration:  1500 * time.Millisecond,
	}
}

func TestPrinter_Report_Table(t *testing.T) {
	var stdout, stderr bytes.Buffer
	p := New(&stdout, &stderr, ModeTable, false, false)

	require.NoError(t, p.Report(sampleReport()))
	out := stdout.String()
	assert.Contains(t, out, "STEP")
	assert.Contains(t, out, "faulted: boom")
	assert.Contains(t, out, "✗ demo: 1 completed, 1 faulted, 1 canceled in 1.5s")

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 5)
	assert.True(t, strings.HasPrefix(lines[3], "c "))
	assert.Contains(t, lines[3], " - ", "unstarted steps have no order")
}

func TestPrinter_Report_TableQuiet(t *testing.T) {
	var stdout, stderr bytes.Buffer
	p := New(&stdout, &stderr, ModeTable, true, false)

	require.NoError(t, p.Report(sampleReport()))
	assert.NotContains(t, stdout.String(), "✗ demo")
	assert.Len(t, strings.Split(strings.TrimSpace(stdout.String()), "\n"), 4)
}

func TestPrinter_Report_JSON(t *testing.T) {
	var stdout, stderr bytes.Buffer
	p := New(&stdout, &stderr, ModeJSON, false, false)

	require.NoError(t, p.Report(sampleReport()))
	var decoded Report
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &decoded))
	assert.Equal(t, sampleReport(), decoded)
	assert.Contains(t, stderr.String(), "demo: 1 completed, 1 faulted, 1 canceled")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
	assert.Equal(t, "a b", truncate("a\nb", 10))
}
