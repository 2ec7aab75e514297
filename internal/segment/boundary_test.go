package segment

import "testing"

func TestScanFindsEarliestBoundary(t *testing.T) {
	cases := []struct {
		name     string
		text     string
		from     int
		wantKind Kind
		wantText string
		unclosed bool
	}{
		{
			name:     "closed code fence",
			text:     "Intro ```go\nx := 1\n``` after",
			wantKind: KindCodeBlock,
			wantText: "```go\nx := 1\n```",
		},
		{
			name:     "reasoning block",
			text:     "Sure. <thinking>plan it</thinking> Done.",
			wantKind: KindReasoning,
			wantText: "<thinking>plan it</thinking>",
		},
		{
			name:     "tool call with attributes",
			text:     "Let me check. <tool_use id=\"1\">{}</tool_use>",
			wantKind: KindToolCall,
			wantText: "<tool_use id=\"1\">{}</tool_use>",
		},
		{
			name:     "tool result",
			text:     "<function_results>ok</function_results> Next.",
			wantKind: KindToolResult,
			wantText: "<function_results>ok</function_results>",
		},
		{
			name:     "citation",
			text:     "Paris is big <cite index=\"1-2\">per source</cite>.",
			wantKind: KindCitation,
			wantText: "<cite index=\"1-2\">per source</cite>",
		},
		{
			name:     "generic tag",
			text:     "Look <span class=\"x\">here</span> now.",
			wantKind: KindGenericTag,
			wantText: "<span class=\"x\">here</span>",
		},
		{
			name:     "self closing tag",
			text:     "Line one<br/>line two.",
			wantKind: KindGenericTag,
			wantText: "<br/>",
		},
		{
			name:     "stray closing tag",
			text:     "Done.</answer> Bye.",
			wantKind: KindGenericTag,
			wantText: "</answer>",
		},
		{
			name:     "unclosed fence runs to end",
			text:     "Here:\n```python\nprint(1)",
			wantKind: KindCodeBlock,
			wantText: "```python\nprint(1)",
			unclosed: true,
		},
		{
			name:     "scan starts at offset",
			text:     "<a>x</a> then <b>y</b>",
			from:     8,
			wantKind: KindGenericTag,
			wantText: "<b>y</b>",
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			b, ok := Scan(tc.text, tc.from)
			if !ok {
				t.Fatalf("Scan(%q, %d) found nothing", tc.text, tc.from)
			}
			if b.Kind != tc.wantKind {
				t.Fatalf("Kind = %q, want %q", b.Kind, tc.wantKind)
			}
			if got := tc.text[b.Start:b.End]; got != tc.wantText {
				t.Fatalf("span = %q, want %q", got, tc.wantText)
			}
			if b.Unclosed != tc.unclosed {
				t.Fatalf("Unclosed = %v, want %v", b.Unclosed, tc.unclosed)
			}
		})
	}
}

func TestScanSpecificPatternWinsTieOverGeneric(t *testing.T) {
	b, ok := Scan("<thinking>x</thinking>", 0)
	if !ok {
		t.Fatalf("Scan() found nothing")
	}
	if b.Kind != KindReasoning {
		t.Fatalf("Kind = %q, want %q", b.Kind, KindReasoning)
	}
}

func TestScanCodeFenceShadowsTagsInside(t *testing.T) {
	text := "```\n<thinking>not real</thinking>\n``` ok"
	b, ok := Scan(text, 0)
	if !ok {
		t.Fatalf("Scan() found nothing")
	}
	if b.Kind != KindCodeBlock || b.End != len("```\n<thinking>not real</thinking>\n```") {
		t.Fatalf("Scan() = %+v, want the whole fence", b)
	}
}

func TestScanPlainProse(t *testing.T) {
	if b, ok := Scan("Nothing to see, 3 < 4 is true.", 0); ok {
		t.Fatalf("Scan() = %+v, want none", b)
	}
}

func TestScanUnclosedReasoningOpensRegion(t *testing.T) {
	text := "Answer first. <thinking>still going"
	b, ok := Scan(text, 0)
	if !ok || !b.Unclosed || b.End != len(text) {
		t.Fatalf("Scan() = %+v ok=%v, want unclosed to end", b, ok)
	}
}

func TestPendingMarker(t *testing.T) {
	cases := []struct {
		text string
		want int
	}{
		{"plain text", -1},
		{"before `", 7},
		{"before ``", 7},
		{"before <", 7},
		{"before <thin", 7},
		{"before </thin", 7},
		{"before <tool_use id=\"1\"", 7},
		{"3 < 4", -1},
		{"done <b>", -1},
	}
	for _, tc := range cases {
		if got := PendingMarker(tc.text); got != tc.want {
			t.Fatalf("PendingMarker(%q) = %d, want %d", tc.text, got, tc.want)
		}
	}
}

func TestAllStopsAtUnclosed(t *testing.T) {
	got := All("<a>1</a> ```x``` <thinking>open")
	if len(got) != 3 {
		t.Fatalf("All() len = %d, want 3", len(got))
	}
	if !got[2].Unclosed || got[2].Kind != KindReasoning {
		t.Fatalf("last boundary = %+v, want unclosed reasoning", got[2])
	}
}
