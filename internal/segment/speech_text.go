package segment

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	speechURLPattern          = regexp.MustCompile(`https?://\S+`)
	speechInlineCodePattern   = regexp.MustCompile("`([^`]*)`")
	speechMarkdownLinkPattern = regexp.MustCompile(`\[([^\]]*)\]\([^)]*\)`)
	speechHeadingPattern      = regexp.MustCompile(`(?m)^\s{0,3}#{1,6}\s+`)
	speechBulletPattern       = regexp.MustCompile(`(?m)^\s*(?:[-*+]|\d+[.)])\s+`)
)

// SanitizeSpeech strips markdown and symbol noise from a chunk so the sink
// reads it conversationally. Inline code keeps its content; links keep their
// label; bare URLs are dropped.
func SanitizeSpeech(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	raw = speechMarkdownLinkPattern.ReplaceAllString(raw, "$1")
	raw = speechURLPattern.ReplaceAllString(raw, " ")
	raw = speechInlineCodePattern.ReplaceAllString(raw, "$1")
	raw = speechHeadingPattern.ReplaceAllString(raw, "")
	raw = speechBulletPattern.ReplaceAllString(raw, "")

	raw = strings.NewReplacer(
		"*", " ",
		"_", " ",
		"\\", " ",
		"|", " ",
		"#", " ",
		"~", " ",
		"<", " ",
		">", " ",
		"`", " ",
	).Replace(raw)

	var b strings.Builder
	b.Grow(len(raw))
	prevSpace := true

	for _, r := range raw {
		switch {
		case r == '\u200d' || r == '\ufe0f' || r == '\u20e3':
			continue
		case unicode.IsSpace(r):
			if !prevSpace {
				b.WriteByte(' ')
				prevSpace = true
			}
		case unicode.IsControl(r):
			continue
		case unicode.In(r, unicode.So, unicode.Sk):
			// Emoji and pictographs.
			continue
		default:
			b.WriteRune(r)
			prevSpace = false
		}
	}

	return strings.TrimSpace(b.String())
}
