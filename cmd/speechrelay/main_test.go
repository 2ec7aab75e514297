package main

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/ent0n29/speechrelay/internal/protocol"
)

const sampleResponse = "Hello there. This is a short demo of the relay.\n\n" +
	"```go\nfmt.Println(\"never spoken.\")\n```\n" +
	"After the code comes a closing remark"

func TestReplayPrintsChunks(t *testing.T) {
	var out bytes.Buffer
	opts := replayOptions{step: 7, interval: time.Millisecond, sanitize: true}
	if err := replay(context.Background(), sampleResponse, opts, &out); err != nil {
		t.Fatalf("replay() error = %v", err)
	}

	got := out.String()
	if !strings.HasPrefix(got, "[1] Hello there.\n") {
		t.Fatalf("output should start with the first sentence, got:\n%s", got)
	}
	if strings.Contains(got, "never spoken") {
		t.Fatalf("code block leaked into output:\n%s", got)
	}
	if !strings.Contains(got, "(final) After the code comes a closing remark") {
		t.Fatalf("missing final tail in output:\n%s", got)
	}
}

func TestReplayJSONLines(t *testing.T) {
	var out bytes.Buffer
	opts := replayOptions{step: 64, interval: time.Millisecond, jsonOut: true}
	if err := replay(context.Background(), "One sentence here. Two", opts, &out); err != nil {
		t.Fatalf("replay() error = %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines = %q, want 2", lines)
	}
	var last protocol.Chunk
	if err := json.Unmarshal([]byte(lines[1]), &last); err != nil {
		t.Fatalf("decode chunk: %v", err)
	}
	if !last.IsFinal || last.Text != "Two" || last.SequenceID != 2 {
		t.Fatalf("last chunk = %+v", last)
	}
}

func TestReplayEmptyInput(t *testing.T) {
	var out bytes.Buffer
	if err := replay(context.Background(), "  \n", replayOptions{}, &out); err != nil {
		t.Fatalf("replay() error = %v", err)
	}
	if out.Len() != 0 {
		t.Fatalf("output = %q, want nothing", out.String())
	}
}

func TestRootCommandWiresSubcommands(t *testing.T) {
	root := rootCmd()
	for _, name := range []string{"serve", "segment"} {
		if c, _, err := root.Find([]string{name}); err != nil || c.Name() != name {
			t.Fatalf("Find(%q) = %v, %v", name, c, err)
		}
	}
}

func TestNewLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "debug", "json")
	logger.Debug("chunk sent", "response_id", "r1")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("log line is not JSON: %q", buf.String())
	}
	if rec["response_id"] != "r1" || rec["level"] != "DEBUG" {
		t.Fatalf("record = %+v", rec)
	}
}
