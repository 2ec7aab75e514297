package sink

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ent0n29/speechrelay/internal/protocol"
)

// WSSink keeps one websocket to the speech service and writes each chunk as a
// JSON frame, waiting for a protocol.DeliverResult frame in reply. Any
// transport error drops the connection; the next call redials.
type WSSink struct {
	url    string
	dialer websocket.Dialer

	mu   sync.Mutex
	conn *websocket.Conn
}

func NewWSSink(url string) *WSSink {
	return &WSSink{
		url: url,
		dialer: websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 4 * time.Second,
		},
	}
}

func (s *WSSink) Deliver(ctx context.Context, chunk protocol.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conn, err := s.connLocked(ctx)
	if err != nil {
		return err
	}
	deadline := deadlineOf(ctx)
	_ = conn.SetWriteDeadline(deadline)
	if err := conn.WriteJSON(chunk); err != nil {
		s.dropLocked()
		return fmt.Errorf("ws write: %w", err)
	}
	_ = conn.SetReadDeadline(deadline)
	var ack protocol.DeliverResult
	if err := conn.ReadJSON(&ack); err != nil {
		s.dropLocked()
		return fmt.Errorf("ws read ack: %w", err)
	}
	return ackError(ack)
}

func (s *WSSink) Probe(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conn, err := s.connLocked(ctx)
	if err != nil {
		return err
	}
	if err := conn.WriteControl(websocket.PingMessage, nil, deadlineOf(ctx)); err != nil {
		s.dropLocked()
		return fmt.Errorf("ws ping: %w", err)
	}
	return nil
}

func (s *WSSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	err := s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	s.dropLocked()
	if errors.Is(err, websocket.ErrCloseSent) {
		return nil
	}
	return err
}

func (s *WSSink) connLocked(ctx context.Context) (*websocket.Conn, error) {
	if s.conn != nil {
		return s.conn, nil
	}
	conn, resp, err := s.dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		if resp != nil {
			return nil, &StatusError{Code: resp.StatusCode, Body: resp.Status}
		}
		return nil, fmt.Errorf("ws dial: %w", err)
	}
	s.conn = conn
	return conn, nil
}

func (s *WSSink) dropLocked() {
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}
}

func deadlineOf(ctx context.Context) time.Time {
	if d, ok := ctx.Deadline(); ok {
		return d
	}
	return time.Now().Add(8 * time.Second)
}
