package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Chunk is the unit handed to the speech sink.
type Chunk struct {
	Text       string `json:"text"`
	IsFinal    bool   `json:"is_complete"`
	ResponseID string `json:"response_id"`
	SequenceID int    `json:"sequence_id"`
}

// DeliverResult is the sink's acknowledgement of a chunk.
type DeliverResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// MessageType identifies websocket payload variants.
type MessageType string

const (
	TypeResponseStarted MessageType = "response_started"
	TypeTextObserved    MessageType = "text_observed"
	TypeStreamingEnded  MessageType = "streaming_ended"
	TypeMonitorStatus   MessageType = "monitor_status"
	TypeErrorEvent      MessageType = "error_event"
)

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

type ResponseStarted struct {
	Type       MessageType `json:"type"`
	ResponseID string      `json:"response_id,omitempty"`
}

type TextObserved struct {
	Type         MessageType `json:"type"`
	ResponseID   string      `json:"response_id,omitempty"`
	Text         string      `json:"text"`
	StillGrowing bool        `json:"still_growing"`
}

type StreamingEnded struct {
	Type       MessageType `json:"type"`
	ResponseID string      `json:"response_id,omitempty"`
}

// MonitorStatus reports pipeline and sink state to observers.
type MonitorStatus struct {
	Type        MessageType `json:"type"`
	Running     bool        `json:"running"`
	ResponseID  string      `json:"response_id,omitempty"`
	Streaming   bool        `json:"streaming"`
	Retired     bool        `json:"retired"`
	SentLength  int         `json:"sent_length"`
	ChunkSeq    int         `json:"chunk_seq"`
	SinkHealthy bool        `json:"sink_healthy"`
	BacklogLen  int         `json:"backlog_len"`
}

type ErrorEvent struct {
	Type       MessageType `json:"type"`
	ResponseID string      `json:"response_id,omitempty"`
	Code       string      `json:"code"`
	Retryable  bool        `json:"retryable"`
	Detail     string      `json:"detail"`
}

func ParseClientMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeResponseStarted:
		var msg ResponseStarted
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		return msg, nil
	case TypeTextObserved:
		var msg TextObserved
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		return msg, nil
	case TypeStreamingEnded:
		var msg StreamingEnded
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		return msg, nil
	default:
		return nil, ErrUnsupportedType
	}
}
