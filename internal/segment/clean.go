package segment

import (
	"regexp"
	"strings"
)

// ParagraphBreak replaces every excised region so the prose on either side is
// never joined into one sentence.
const ParagraphBreak = "\n\n"

var (
	horizontalSpaceRun = regexp.MustCompile(`[ \t\f\v]+`)
	newlineRun         = regexp.MustCompile(`\n{3,}`)
)

// Clean removes every closed boundary from text and collapses whitespace runs.
//
// While the response is still growing (final == false) the result stops at the
// first unclosed boundary and drops a partially-arrived marker at the tail, so
// nothing from inside a region that is still arriving is ever exposed. With
// final == true unclosed code, reasoning, tool and citation regions are dropped
// to the end of the text, and an unclosed generic tag loses only its opening
// marker.
func Clean(text string, final bool) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")

	var b strings.Builder
	b.Grow(len(text))

	pos := 0
	for pos < len(text) {
		bd, ok := Scan(text, pos)
		if !ok {
			break
		}
		b.WriteString(text[pos:bd.Start])

		if bd.Unclosed {
			if !final {
				return collapseWhitespace(b.String())
			}
			b.WriteString(ParagraphBreak)
			if bd.Kind == KindGenericTag {
				pos = bd.OpenEnd
				continue
			}
			pos = len(text)
			break
		}

		b.WriteString(ParagraphBreak)
		pos = bd.End
	}

	if pos < len(text) {
		rest := text[pos:]
		if !final {
			if cut := PendingMarker(rest); cut >= 0 {
				rest = rest[:cut]
			}
		}
		b.WriteString(rest)
	}
	return collapseWhitespace(b.String())
}

func collapseWhitespace(s string) string {
	s = horizontalSpaceRun.ReplaceAllString(s, " ")
	return newlineRun.ReplaceAllString(s, ParagraphBreak)
}
