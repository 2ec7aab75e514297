package sink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/ent0n29/speechrelay/internal/protocol"
)

// NATSSink delivers chunks as NATS requests on subject and expects a
// protocol.DeliverResult reply. Health is a request on subject+".health".
type NATSSink struct {
	nc      *nats.Conn
	subject string
	logger  *slog.Logger
}

func NewNATSSink(url, subject string, logger *slog.Logger) (*NATSSink, error) {
	if logger == nil {
		logger = slog.Default()
	}
	nc, err := nats.Connect(url,
		nats.Name("speechrelay"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("sink nats disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info("sink nats reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	return NewNATSSinkConn(nc, subject, logger), nil
}

// NewNATSSinkConn wraps an existing connection.
func NewNATSSinkConn(nc *nats.Conn, subject string, logger *slog.Logger) *NATSSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &NATSSink{nc: nc, subject: subject, logger: logger}
}

func (s *NATSSink) Deliver(ctx context.Context, chunk protocol.Chunk) error {
	payload, err := json.Marshal(chunk)
	if err != nil {
		return fmt.Errorf("%w: marshal chunk: %v", ErrPermanent, err)
	}
	msg, err := s.nc.RequestWithContext(ctx, s.subject, payload)
	if err != nil {
		return fmt.Errorf("nats request %s: %w", s.subject, err)
	}
	var ack protocol.DeliverResult
	if err := json.Unmarshal(msg.Data, &ack); err != nil {
		return fmt.Errorf("decode nats ack: %w", err)
	}
	return ackError(ack)
}

func (s *NATSSink) Probe(ctx context.Context) error {
	if !s.nc.IsConnected() {
		return fmt.Errorf("nats status %s", s.nc.Status())
	}
	if _, err := s.nc.RequestWithContext(ctx, s.subject+".health", nil); err != nil {
		if errors.Is(err, nats.ErrNoResponders) {
			return fmt.Errorf("no sink listening on %s", s.subject)
		}
		return fmt.Errorf("nats health: %w", err)
	}
	return nil
}

func (s *NATSSink) ResetConversation(_ context.Context) error {
	return s.nc.Publish(s.subject+".reset", nil)
}

func (s *NATSSink) Close() {
	s.nc.Close()
}
