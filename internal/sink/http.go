package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ent0n29/speechrelay/internal/protocol"
)

// HTTPSink talks to a TTS server exposing POST /stream, GET /health and
// POST /reset_conversation.
type HTTPSink struct {
	baseURL string
	client  *http.Client
}

func NewHTTPSink(baseURL string, timeout time.Duration) *HTTPSink {
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	return &HTTPSink{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

func (s *HTTPSink) Deliver(ctx context.Context, chunk protocol.Chunk) error {
	payload, err := json.Marshal(chunk)
	if err != nil {
		return fmt.Errorf("%w: marshal chunk: %v", ErrPermanent, err)
	}

	res, err := s.do(ctx, http.MethodPost, "/stream", payload)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, 64<<10))
	if err != nil {
		return fmt.Errorf("read stream response: %w", err)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	var ack protocol.DeliverResult
	if err := json.Unmarshal(body, &ack); err != nil {
		// Plain 2xx bodies count as success.
		return nil
	}
	return ackError(ack)
}

func (s *HTTPSink) Probe(ctx context.Context) error {
	res, err := s.do(ctx, http.MethodGet, "/health", nil)
	if err != nil {
		return err
	}
	res.Body.Close()
	return nil
}

func (s *HTTPSink) ResetConversation(ctx context.Context) error {
	res, err := s.do(ctx, http.MethodPost, "/reset_conversation", []byte("{}"))
	if err != nil {
		return err
	}
	res.Body.Close()
	return nil
}

func (s *HTTPSink) do(ctx context.Context, method, path string, payload []byte) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %v", ErrPermanent, err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send %s %s: %w", method, path, err)
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		defer res.Body.Close()
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return nil, &StatusError{Code: res.StatusCode, Body: strings.TrimSpace(string(msg))}
	}
	return res, nil
}
