// Package stream turns observations of a growing assistant response into
// speakable chunks and hands them to delivery.
package stream

import (
	"strings"

	"github.com/ent0n29/speechrelay/internal/segment"
	"github.com/ent0n29/speechrelay/internal/session"
)

// ChangeKind classifies an observation against the previous snapshot.
type ChangeKind string

const (
	ChangeUnchanged ChangeKind = "unchanged"
	ChangeGrowth    ChangeKind = "growth"
	ChangeShrink    ChangeKind = "shrink"
	// ChangeReplaced is an edit of the same message: tracked state and the
	// dedup set are reset.
	ChangeReplaced ChangeKind = "replaced"
	// ChangeDiverged is an unrelated text that reached the tracker without a
	// session rotation.
	ChangeDiverged ChangeKind = "diverged"
)

// Delta is the new cleaned text produced by one observation.
type Delta struct {
	Kind       ChangeKind
	Text       string
	Similarity float64
}

const DefaultSimilarityThreshold = 0.7

// DeltaTracker computes what is new in a response snapshot.
type DeltaTracker struct {
	threshold float64
}

func NewDeltaTracker(threshold float64) *DeltaTracker {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultSimilarityThreshold
	}
	return &DeltaTracker{threshold: threshold}
}

// Observe cleans raw and diffs it against the session's snapshot, updating the
// snapshot. final selects end-of-response cleaning of unclosed regions.
func (t *DeltaTracker) Observe(sess *session.ResponseSession, raw string, final bool) Delta {
	cleaned := segment.Clean(raw, final)
	prev := sess.CleanedSnapshot

	switch {
	case cleaned == prev:
		sess.RawSnapshot = raw
		return Delta{Kind: ChangeUnchanged}
	case strings.HasPrefix(cleaned, prev):
		sess.RawSnapshot = raw
		sess.CleanedSnapshot = cleaned
		return Delta{Kind: ChangeGrowth, Text: cleaned[len(prev):]}
	case strings.HasPrefix(prev, cleaned):
		// Transient re-render: never un-speak.
		return Delta{Kind: ChangeShrink}
	}

	sim := Similarity(sess.RawSnapshot, cleaned)
	kind := ChangeDiverged
	if sim >= t.threshold {
		kind = ChangeReplaced
	}
	sess.RawSnapshot = raw
	sess.CleanedSnapshot = cleaned
	sess.SentLength = 0
	return Delta{Kind: kind, Text: cleaned, Similarity: sim}
}

// Similarity is the fraction of whitespace-delimited tokens of prev that also
// occur in next. An empty prev scores 0.
func Similarity(prev, next string) float64 {
	prevTokens := strings.Fields(prev)
	if len(prevTokens) == 0 {
		return 0
	}
	present := make(map[string]struct{}, len(prevTokens))
	for _, tok := range strings.Fields(next) {
		present[tok] = struct{}{}
	}
	hits := 0
	for _, tok := range prevTokens {
		if _, ok := present[tok]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(prevTokens))
}
