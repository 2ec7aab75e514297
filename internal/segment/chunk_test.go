package segment

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestFindSpeakableUnitFirstSentence(t *testing.T) {
	text := "Hello there. This is a test of the system."
	u, ok := FindSpeakableUnit(text)
	if !ok {
		t.Fatalf("FindSpeakableUnit() not ready, want first sentence")
	}
	if u.Text != "Hello there." {
		t.Fatalf("Text = %q, want %q", u.Text, "Hello there.")
	}

	rest := text[u.Consumed:]
	if u, ok := FindSpeakableUnit(rest); ok {
		t.Fatalf("FindSpeakableUnit(%q) = %q, want wait for more text", rest, u.Text)
	}
	u, ok = FindSpeakableUnit(rest + " And more")
	if !ok || u.Text != "This is a test of the system." {
		t.Fatalf("FindSpeakableUnit() = %q ok=%v, want second sentence", u.Text, ok)
	}
}

func TestFindSpeakableUnitSkipsLeadingParagraphBreak(t *testing.T) {
	u, ok := FindSpeakableUnit("\n\n More text here. Next")
	if !ok {
		t.Fatalf("FindSpeakableUnit() not ready")
	}
	if u.Text != "More text here." {
		t.Fatalf("Text = %q, want %q", u.Text, "More text here.")
	}
	if u.Consumed != len("\n\n More text here.") {
		t.Fatalf("Consumed = %d, want %d", u.Consumed, len("\n\n More text here."))
	}
}

func TestFindSpeakableUnitParagraph(t *testing.T) {
	text := "The first paragraph ends right here. It has two sentences!\n\nSecond"
	u, ok := FindSpeakableUnit(text)
	if !ok {
		t.Fatalf("FindSpeakableUnit() not ready")
	}
	want := "The first paragraph ends right here. It has two sentences!"
	if u.Text != want {
		t.Fatalf("Text = %q, want %q", u.Text, want)
	}
	if text[u.Consumed:] != "Second" {
		t.Fatalf("remainder = %q, want %q", text[u.Consumed:], "Second")
	}
}

func TestFindSpeakableUnitShortSentenceMerges(t *testing.T) {
	u, ok := FindSpeakableUnit("Yes. I can do that for you. More")
	if !ok {
		t.Fatalf("FindSpeakableUnit() not ready")
	}
	if u.Text != "Yes. I can do that for you." {
		t.Fatalf("Text = %q, want merged sentence", u.Text)
	}
}

func TestFindSpeakableUnitWaitsOnShortUnbrokenText(t *testing.T) {
	for _, text := range []string{
		"",
		"   \n",
		"just some words without an ending",
		strings.Repeat("word, ", 15),
	} {
		if u, ok := FindSpeakableUnit(text); ok {
			t.Fatalf("FindSpeakableUnit(%q) = %q, want not ready", text, u.Text)
		}
	}
}

func TestFindSpeakableUnitClauseBreakAfterHundred(t *testing.T) {
	text := strings.Repeat("a", 70) + ", " + strings.Repeat("b", 40)
	u, ok := FindSpeakableUnit(text)
	if !ok {
		t.Fatalf("FindSpeakableUnit() not ready")
	}
	if u.Text != strings.Repeat("a", 70)+"," {
		t.Fatalf("Text = %q, want clause up to the comma", u.Text)
	}
}

func TestFindSpeakableUnitForcedBreakAtWhitespace(t *testing.T) {
	text := strings.Repeat("word ", 70)
	u, ok := FindSpeakableUnit(text)
	if !ok {
		t.Fatalf("FindSpeakableUnit() not ready for %d chars", len(text))
	}
	if len(u.Text) < 199 || len(u.Text) > 250 {
		t.Fatalf("len(Text) = %d, want within forced window", len(u.Text))
	}
	if strings.HasSuffix(u.Text, "wor") {
		t.Fatalf("Text = %q, want cut on a word boundary", u.Text)
	}
}

func TestFindSpeakableUnitHardBreak(t *testing.T) {
	text := strings.Repeat("x", 301)
	u, ok := FindSpeakableUnit(text)
	if !ok {
		t.Fatalf("FindSpeakableUnit() not ready")
	}
	if len(u.Text) != 250 || u.Consumed != 250 {
		t.Fatalf("len(Text)=%d Consumed=%d, want 250", len(u.Text), u.Consumed)
	}
}

func TestFindSpeakableUnitHardBreakIsRuneSafe(t *testing.T) {
	text := strings.Repeat("é", 200)
	u, ok := FindSpeakableUnit(text)
	if !ok {
		t.Fatalf("FindSpeakableUnit() not ready")
	}
	if !utf8.ValidString(u.Text) || !utf8.ValidString(text[u.Consumed:]) {
		t.Fatalf("forced cut split a rune at %d", u.Consumed)
	}
}

func TestFindSpeakableUnitEventuallyProgresses(t *testing.T) {
	// No sentence, clause or paragraph break anywhere: growth past the force
	// threshold must still produce units.
	text := strings.Repeat("z", 1000)
	var total int
	for {
		u, ok := FindSpeakableUnit(text)
		if !ok {
			break
		}
		total += u.Consumed
		text = text[u.Consumed:]
	}
	if total < 700 {
		t.Fatalf("consumed %d bytes, want forced progress", total)
	}
}

func TestCustomPolicy(t *testing.T) {
	p := DefaultPolicy()
	p.SentenceMin = 2
	u, ok := p.FindSpeakableUnit("Ok. Then")
	if !ok || u.Text != "Ok." {
		t.Fatalf("FindSpeakableUnit() = %q ok=%v, want %q", u.Text, ok, "Ok.")
	}
}
