package session

import "time"

// ResponseSession is the tracked state of one logical assistant turn.
//
// Snapshot fields (RawSnapshot through FinalAttempted) belong to whoever holds
// the pipeline's processing lock. Lifecycle fields (IsStreaming, Retired,
// LastObservedAt) are only read and written under the Manager's mutex.
type ResponseSession struct {
	ID        string    `json:"response_id"`
	CreatedAt time.Time `json:"created_at"`

	RawSnapshot     string `json:"-"`
	CleanedSnapshot string `json:"-"`
	// SentLength is an offset into CleanedSnapshot.
	SentLength     int  `json:"sent_length"`
	ChunkSeq       int  `json:"chunk_seq"`
	FinalAttempted bool `json:"final_attempted"`

	IsStreaming    bool      `json:"is_streaming"`
	Retired        bool      `json:"retired"`
	LastObservedAt time.Time `json:"last_observed_at"`
}

// NextSeq returns the next chunk sequence id.
func (s *ResponseSession) NextSeq() int {
	s.ChunkSeq++
	return s.ChunkSeq
}

// Pending returns the cleaned text not yet dispatched.
func (s *ResponseSession) Pending() string {
	if s.SentLength >= len(s.CleanedSnapshot) {
		return ""
	}
	return s.CleanedSnapshot[s.SentLength:]
}

// Info is a point-in-time copy of the lifecycle fields.
type Info struct {
	ID             string    `json:"response_id"`
	CreatedAt      time.Time `json:"created_at"`
	IsStreaming    bool      `json:"is_streaming"`
	Retired        bool      `json:"retired"`
	LastObservedAt time.Time `json:"last_observed_at"`
}
