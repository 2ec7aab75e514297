package policy

import "regexp"

var (
	emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	phonePattern = regexp.MustCompile(`\+?[0-9][0-9\-() ]{7,}[0-9]`)
	cardPattern  = regexp.MustCompile(`\b(?:\d[ -]*?){13,19}\b`)
)

// RedactForSpeech swaps high-risk personal data in a chunk for a short spoken
// placeholder, so the sink says "an email address" instead of reading it out.
func RedactForSpeech(input string) (redacted string, changed bool) {
	out := input

	next := emailPattern.ReplaceAllString(out, "an email address")
	changed = changed || next != out
	out = next

	// Cards first, or the phone pattern claims their digit runs.
	next = cardPattern.ReplaceAllString(out, "a card number")
	changed = changed || next != out
	out = next

	next = phonePattern.ReplaceAllString(out, "a phone number")
	changed = changed || next != out
	out = next

	return out, changed
}
