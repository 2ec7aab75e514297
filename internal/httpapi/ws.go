package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ent0n29/speechrelay/internal/protocol"
)

const (
	wsWriteWait    = 10 * time.Second
	wsReadWait     = 120 * time.Second
	wsPingInterval = 30 * time.Second
)

// handleMonitorWS accepts a stream of response_started / text_observed /
// streaming_ended messages and answers each with a monitor_status or an
// error_event.
func (s *Server) handleMonitorWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	outbound := make(chan any, 64)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		ping := time.NewTicker(wsPingInterval)
		defer ping.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ping.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
					cancel()
					return
				}
			case msg := <-outbound:
				_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
				if err := conn.WriteJSON(msg); err != nil {
					s.logger.Debug("websocket write failed", "error", err)
					cancel()
					return
				}
				if t, ok := messageTypeOf(msg); ok {
					s.metrics.ObserveWSMessage("outbound", string(t))
				}
			}
		}
	}()

	send := func(msg any) {
		select {
		case outbound <- msg:
		case <-ctx.Done():
		}
	}

	conn.SetReadLimit(4 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(wsReadWait))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(wsReadWait))
		return nil
	})

	for ctx.Err() == nil {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsReadWait))
		if msgType != websocket.TextMessage {
			continue
		}
		parsed, err := protocol.ParseClientMessage(data)
		if err != nil {
			send(protocol.ErrorEvent{
				Type:   protocol.TypeErrorEvent,
				Code:   "invalid_client_message",
				Detail: err.Error(),
			})
			continue
		}
		if t, ok := messageTypeOf(parsed); ok {
			s.metrics.ObserveWSMessage("inbound", string(t))
		}
		send(s.dispatch(ctx, parsed))
	}

	cancel()
	<-writerDone
}

// dispatch applies one client message to the monitor and returns the reply.
func (s *Server) dispatch(ctx context.Context, msg any) any {
	var (
		responseID string
		err        error
	)
	switch m := msg.(type) {
	case protocol.ResponseStarted:
		responseID = m.ResponseID
		_, err = s.monitor.BeginResponse(m.ResponseID)
	case protocol.TextObserved:
		responseID = m.ResponseID
		err = s.monitor.ObserveResponse(m.ResponseID, m.Text, m.StillGrowing)
	case protocol.StreamingEnded:
		responseID = m.ResponseID
		err = s.monitor.EndResponse(m.ResponseID)
	}
	if err != nil {
		code, retryable := errorCode(err)
		return protocol.ErrorEvent{
			Type:       protocol.TypeErrorEvent,
			ResponseID: responseID,
			Code:       code,
			Retryable:  retryable,
			Detail:     err.Error(),
		}
	}
	return s.monitor.Status(ctx)
}

func messageTypeOf(v any) (protocol.MessageType, bool) {
	switch m := v.(type) {
	case protocol.ResponseStarted:
		return m.Type, true
	case protocol.TextObserved:
		return m.Type, true
	case protocol.StreamingEnded:
		return m.Type, true
	case protocol.MonitorStatus:
		return m.Type, true
	case protocol.ErrorEvent:
		return m.Type, true
	default:
		return "", false
	}
}
