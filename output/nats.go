package output

import (
	"context"
	stderrors "errors"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/c360/ringkit/errors"
)

// Publisher is the part of *nats.Conn the NATS sink uses.
type Publisher interface {
	Publish(subject string, data []byte) error
	FlushWithContext(ctx context.Context) error
}

// NATSSink publishes each flushed channel to <subject>.<channel>.
type NATSSink struct {
	pub     Publisher
	subject string
	close   func()
}

// NewNATSSink publishes through pub. Close is a no-op; the caller owns pub.
func NewNATSSink(pub Publisher, subject string) *NATSSink {
	return &NATSSink{pub: pub, subject: subject, close: func() {}}
}

// ConnectNATS dials url and returns a sink that owns the connection.
func ConnectNATS(url, subject string) (*NATSSink, error) {
	logger := slog.Default().With("component", "nats-sink", "url", url)
	conn, err := nats.Connect(url,
		nats.Name("ringkit"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.Timeout(5*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("NATS disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("NATS reconnected", "server", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, errors.WrapTransient(err, "NATSSink", "ConnectNATS", "connect to "+url)
	}
	return &NATSSink{pub: conn, subject: subject, close: conn.Close}, nil
}

// Name returns the sink name used in metrics labels.
func (s *NATSSink) Name() string { return "nats" }

// Subject returns the subject a channel publishes to.
func (s *NATSSink) Subject(channel string) string {
	return s.subject + "." + channel
}

// Deliver publishes data and waits for the server to acknowledge the flush.
func (s *NATSSink) Deliver(ctx context.Context, channel string, data []byte) error {
	subject := s.Subject(channel)
	if err := s.pub.Publish(subject, data); err != nil {
		if stderrors.Is(err, nats.ErrMaxPayload) || stderrors.Is(err, nats.ErrBadSubject) {
			return errors.WrapInvalid(err, "NATSSink", "Deliver", "publish to "+subject)
		}
		return errors.WrapTransient(err, "NATSSink", "Deliver", "publish to "+subject)
	}
	if err := s.pub.FlushWithContext(ctx); err != nil {
		return errors.WrapTransient(err, "NATSSink", "Deliver", "flush "+subject)
	}
	return nil
}

// Close closes the connection if the sink opened it.
func (s *NATSSink) Close() error {
	s.close()
	return nil
}
