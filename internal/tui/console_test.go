package tui

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pders01/usages/internal/usage"
)

func TestConsoleShowResults(t *testing.T) {
	var out bytes.Buffer
	c := NewConsole(&out, nil, "/src")

	sink := usage.NewSink("s", []usage.Target{{Name: "Parse"}}, nil)
	require.NoError(t, sink.Append(&usage.Usage{Path: "/src/a.go", Line: 3, Column: 7, Text: "\tx := Parse(y)"}))
	require.NoError(t, sink.Append(&usage.Usage{Path: "/elsewhere/b.go", Line: 1, Column: 1, Text: "Parse"}))

	c.OpenResults(sink)
	require.NoError(t, c.ShowResults(sink, true))
	require.NoError(t, c.ShowResults(sink, true))

	got := out.String()
	assert.Contains(t, got, "Parse")
	assert.Contains(t, got, "a.go:3:7: x := Parse(y)\n")
	assert.Contains(t, got, "/elsewhere/b.go:1:1: Parse\n")
	assert.Equal(t, 1, strings.Count(got, "a.go:3:7"), "usages print once")
}

func TestConsoleNotify(t *testing.T) {
	var out bytes.Buffer
	c := NewConsole(&out, nil, "")

	c.Notify(usage.Notification{
		Kind:    usage.NotifyWarning,
		Lines:   []string{"Only the declaration of Parse was found"},
		Details: []string{"File 'big.go' (3Mb) is too large and cannot be scanned"},
	})

	assert.Contains(t, out.String(), "Only the declaration of Parse was found")
	assert.Contains(t, out.String(), "  File 'big.go' (3Mb)")
}

func TestConsolePromptTooMany(t *testing.T) {
	tests := []struct {
		name     string
		in       io.Reader
		expected usage.Decision
	}{
		{"no input continues", nil, usage.DecisionContinue},
		{"enter continues", strings.NewReader("\n"), usage.DecisionContinue},
		{"y continues", strings.NewReader("y\n"), usage.DecisionContinue},
		{"n aborts", strings.NewReader("n\n"), usage.DecisionAbort},
		{"eof aborts", strings.NewReader(""), usage.DecisionAbort},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			c := NewConsole(&out, tt.in, "")
			assert.Equal(t, tt.expected, c.PromptTooMany(context.Background(), 1000))
		})
	}
}

func TestConsolePromptCancelled(t *testing.T) {
	r, w := io.Pipe()
	defer w.Close()

	c := NewConsole(io.Discard, r, "")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Equal(t, usage.DecisionAbort, c.PromptTooMany(ctx, 1000))
}

func TestConsoleAbandonedPromptKeepsNextLine(t *testing.T) {
	r, w := io.Pipe()
	defer w.Close()

	c := NewConsole(io.Discard, r, "")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.Equal(t, usage.DecisionAbort, c.PromptTooMany(ctx, 1000))

	go io.WriteString(w, "2\n")
	actions := []usage.Action{{Name: "Search all files"}, {Name: "Ignore case"}}
	assert.Equal(t, 1, c.ChooseAction(context.Background(), "No usages of Parse found", actions))

	go io.WriteString(w, "y\n")
	assert.Equal(t, usage.DecisionContinue, c.PromptTooMany(context.Background(), 1000))
}

func TestConsoleChooseAction(t *testing.T) {
	actions := []usage.Action{{Name: "Search all files"}, {Name: "Ignore case"}}

	tests := []struct {
		name     string
		in       io.Reader
		expected int
	}{
		{"no input", nil, -1},
		{"second", strings.NewReader("2\n"), 1},
		{"none", strings.NewReader("\n"), -1},
		{"out of range", strings.NewReader("7\n"), -1},
		{"garbage", strings.NewReader("abc\n"), -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			c := NewConsole(&out, tt.in, "")
			assert.Equal(t, tt.expected, c.ChooseAction(context.Background(), "No usages of Parse found", actions))
			assert.Contains(t, out.String(), "No usages of Parse found")
		})
	}
}

func TestConsoleNavigateTo(t *testing.T) {
	var out bytes.Buffer
	c := NewConsole(&out, nil, "/src")
	var opened *usage.Usage
	c.Open = func(u *usage.Usage) error {
		opened = u
		return nil
	}

	u := &usage.Usage{Path: "/src/a.go", Line: 4, Column: 2, Text: " Parse() "}
	require.NoError(t, c.NavigateTo(u))
	assert.Equal(t, "a.go:4:2: Parse()\n", out.String())
	assert.Same(t, u, opened)
}
