// Package segment finds the non-speakable regions of assistant text and cuts
// the remaining prose into speakable units.
package segment

import (
	"regexp"
	"strings"
)

// Kind classifies a non-speakable span.
type Kind string

const (
	KindCodeBlock  Kind = "code_block"
	KindReasoning  Kind = "reasoning_block"
	KindToolCall   Kind = "tool_call"
	KindToolResult Kind = "tool_result"
	KindCitation   Kind = "citation"
	KindGenericTag Kind = "generic_tag"
)

// Boundary is a non-speakable span [Start, End) of a text. OpenEnd is the
// offset just past the opening marker. Unclosed boundaries run to the end of
// the text because their closing marker has not arrived yet.
type Boundary struct {
	Start    int
	OpenEnd  int
	End      int
	Kind     Kind
	Unclosed bool
}

type marker struct {
	kind    Kind
	open    *regexp.Regexp
	closing func(name string) string
}

func closingTag(name string) string { return "</" + name + ">" }

// catalogue is ordered from most to least specific; ties on start offset go to
// the earlier entry, so the permissive generic patterns never shadow the rest.
var catalogue = []marker{
	{kind: KindCodeBlock, open: regexp.MustCompile("```"), closing: func(string) string { return "```" }},
	{kind: KindReasoning, open: regexp.MustCompile(`<(thinking|reasoning|antThinking)(?:\s[^<>]*)?>`), closing: closingTag},
	{kind: KindToolCall, open: regexp.MustCompile(`<(function_calls|tool_use|invoke)(?:\s[^<>]*)?>`), closing: closingTag},
	{kind: KindToolResult, open: regexp.MustCompile(`<(function_results|tool_result)(?:\s[^<>]*)?>`), closing: closingTag},
	{kind: KindCitation, open: regexp.MustCompile(`<(cite|citation|source)(?:\s[^<>]*)?>`), closing: closingTag},
	{kind: KindGenericTag, open: regexp.MustCompile(`<([A-Za-z][\w:-]*)(?:\s[^<>]*)?/?>`), closing: closingTag},
	// Stray closing tags carry no prose; they are excised on their own.
	{kind: KindGenericTag, open: regexp.MustCompile(`</[A-Za-z][\w:-]*\s*>`), closing: nil},
}

var pendingTagPattern = regexp.MustCompile(`^<(?:/?[A-Za-z][\w:-]*(?:\s[^<>]*)?/?|/)?$`)

const maxPendingMarkerLen = 200

// Scan returns the earliest-starting boundary at or after from.
func Scan(text string, from int) (Boundary, bool) {
	if from < 0 {
		from = 0
	}
	if from >= len(text) {
		return Boundary{}, false
	}

	best := Boundary{Start: -1}
	rest := text[from:]
	for _, m := range catalogue {
		loc := m.open.FindStringSubmatchIndex(rest)
		if loc == nil {
			continue
		}
		start := from + loc[0]
		if best.Start >= 0 && start >= best.Start {
			continue
		}
		openEnd := from + loc[1]
		b := Boundary{Start: start, OpenEnd: openEnd, Kind: m.kind}

		if m.closing == nil || strings.HasSuffix(text[start:openEnd], "/>") {
			b.End = openEnd
			best = b
			continue
		}

		name := ""
		if len(loc) >= 4 && loc[2] >= 0 {
			name = rest[loc[2]:loc[3]]
		}
		closeTok := m.closing(name)
		if idx := strings.Index(text[openEnd:], closeTok); idx >= 0 {
			b.End = openEnd + idx + len(closeTok)
		} else {
			b.End = len(text)
			b.Unclosed = true
		}
		best = b
	}
	if best.Start < 0 {
		return Boundary{}, false
	}
	return best, true
}

// PendingMarker reports where a partially-arrived opening marker begins at the
// tail of text (a run of one or two backticks, or an unterminated "<tag"), or
// -1 when the tail is plain prose.
func PendingMarker(text string) int {
	if strings.HasSuffix(text, "`") {
		i := len(text)
		for i > 0 && text[i-1] == '`' {
			i--
		}
		if len(text)-i < 3 {
			return i
		}
	}

	idx := strings.LastIndexByte(text, '<')
	if idx < 0 || len(text)-idx > maxPendingMarkerLen {
		return -1
	}
	if pendingTagPattern.MatchString(text[idx:]) {
		return idx
	}
	return -1
}

// All returns every boundary in text in order of appearance.
func All(text string) []Boundary {
	var out []Boundary
	pos := 0
	for {
		b, ok := Scan(text, pos)
		if !ok {
			return out
		}
		out = append(out, b)
		if b.Unclosed || b.End <= pos {
			return out
		}
		pos = b.End
	}
}
