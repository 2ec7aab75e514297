package segment

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Policy holds the length thresholds that decide when pending prose is ready
// to be spoken.
type Policy struct {
	// ParagraphMin is the length a paragraph must exceed to be emitted whole.
	ParagraphMin int
	// SentenceMin is the length a sentence must exceed to be emitted.
	SentenceMin int
	// PunctTrigger is the pending length above which a clause break is accepted.
	PunctTrigger int
	// PunctMin is the minimum unit length when breaking at a clause.
	PunctMin int
	// ForceTrigger is the pending length above which a break is forced.
	ForceTrigger int
	// ForceWindowMin and ForceMax bound the window searched for a forced break;
	// ForceMax is also the hard cut when the window has no break.
	ForceWindowMin int
	ForceMax       int
}

// DefaultPolicy returns the production thresholds.
func DefaultPolicy() Policy {
	return Policy{
		ParagraphMin:   20,
		SentenceMin:    10,
		PunctTrigger:   100,
		PunctMin:       60,
		ForceTrigger:   300,
		ForceWindowMin: 200,
		ForceMax:       250,
	}
}

// Unit is one speakable piece of prose. Consumed counts the bytes of the input
// it covers, leading whitespace included.
type Unit struct {
	Text     string
	Consumed int
}

// FindSpeakableUnit applies DefaultPolicy.
func FindSpeakableUnit(text string) (Unit, bool) {
	return DefaultPolicy().FindSpeakableUnit(text)
}

// FindSpeakableUnit returns the first complete unit at the head of text, or
// false when more text has to arrive first.
func (p Policy) FindSpeakableUnit(text string) (Unit, bool) {
	lead := len(text) - len(strings.TrimLeftFunc(text, unicode.IsSpace))
	body := text[lead:]
	if body == "" {
		return Unit{}, false
	}

	if textEnd, consumed, ok := p.paragraphBreak(body); ok {
		return unitOf(body[:textEnd], lead+consumed)
	}
	if end, ok := p.sentenceBreak(body); ok {
		return unitOf(body[:end], lead+end)
	}
	if len(body) > p.PunctTrigger {
		if end, ok := p.clauseBreak(body); ok {
			return unitOf(body[:end], lead+end)
		}
	}
	if len(body) > p.ForceTrigger {
		end := p.forcedBreak(body)
		return unitOf(body[:end], lead+end)
	}
	return Unit{}, false
}

func unitOf(raw string, consumed int) (Unit, bool) {
	return Unit{Text: strings.TrimSpace(raw), Consumed: consumed}, true
}

func (p Policy) paragraphBreak(body string) (textEnd, consumed int, ok bool) {
	idx := strings.Index(body, ParagraphBreak)
	if idx < 0 {
		return 0, 0, false
	}
	para := strings.TrimSpace(body[:idx])
	if len(para) <= p.ParagraphMin || !endsSentence(para) {
		return 0, 0, false
	}
	return idx, idx + len(ParagraphBreak), true
}

func (p Policy) sentenceBreak(body string) (int, bool) {
	for i := 0; i < len(body); i++ {
		if !isSentencePunct(body[i]) {
			continue
		}
		j := i + 1
		for j < len(body) && isCloser(body[j]) {
			j++
		}
		if j >= len(body) || !isSpaceByte(body[j]) {
			continue
		}
		if j > p.SentenceMin {
			return j, true
		}
	}
	return 0, false
}

func (p Policy) clauseBreak(body string) (int, bool) {
	start := p.PunctMin - 1
	if start < 0 {
		start = 0
	}
	for i := start; i < len(body); i++ {
		switch body[i] {
		case ',', ';', ':', '\n':
			return i + 1, true
		}
	}
	return 0, false
}

func (p Policy) forcedBreak(body string) int {
	hi := p.ForceMax
	if hi >= len(body) {
		hi = len(body) - 1
	}
	for i := hi; i >= p.ForceWindowMin && i > 0; i-- {
		c := body[i]
		if isSpaceByte(c) {
			return i
		}
		if isSentencePunct(c) || c == ',' || c == ';' || c == ':' {
			return i + 1
		}
	}

	cut := p.ForceMax
	if cut > len(body) {
		cut = len(body)
	}
	for cut > 0 && cut < len(body) && !utf8.RuneStart(body[cut]) {
		cut--
	}
	if cut == 0 {
		return len(body)
	}
	return cut
}

func endsSentence(s string) bool {
	s = strings.TrimRightFunc(s, func(r rune) bool { return r < utf8.RuneSelf && isCloser(byte(r)) })
	return s != "" && isSentencePunct(s[len(s)-1])
}

func isSentencePunct(c byte) bool {
	return c == '.' || c == '!' || c == '?'
}

func isCloser(c byte) bool {
	switch c {
	case '"', '\'', ')', ']', '*', '_':
		return true
	}
	return false
}

func isSpaceByte(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\r', '\f', '\v':
		return true
	}
	return false
}
