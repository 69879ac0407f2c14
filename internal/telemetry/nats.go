package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
)

// DefaultSubjectPrefix is prepended to the event type to form the subject.
const DefaultSubjectPrefix = "triage.telemetry"

// #region nats-sink

// Publisher is the slice of *nats.Conn the sink uses.
type Publisher interface {
	Publish(subj string, data []byte) error
}

// NATSSink publishes each event as JSON on <prefix>.<type>, e.g.
// triage.telemetry.routing.
type NATSSink struct {
	pub    Publisher
	conn   *nats.Conn // set only when the sink dialed the connection itself
	prefix string
	closed atomic.Bool
}

// NewNATSSink publishes through pub. The caller keeps ownership of pub.
func NewNATSSink(pub Publisher, prefix string) *NATSSink {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &NATSSink{pub: pub, prefix: prefix}
}

// DialNATS connects to url and returns a sink that owns the connection.
func DialNATS(url, prefix string) (*NATSSink, error) {
	conn, err := nats.Connect(url,
		nats.Name("adaptive-triage-telemetry"),
		nats.MaxReconnects(5),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	s := NewNATSSink(conn, prefix)
	s.conn = conn
	return s, nil
}

// Subject returns the subject events of type typ are published on.
func (s *NATSSink) Subject(typ EventType) string {
	return s.prefix + "." + string(typ)
}

// Write publishes e. NATS publish is fire-and-forget, so ctx is only checked
// before the call.
func (s *NATSSink) Write(ctx context.Context, e Event) error {
	if s.closed.Load() {
		return ErrSinkClosed
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled before publish: %w", err)
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal telemetry event: %w", err)
	}
	if err := s.pub.Publish(s.Subject(e.Type), data); err != nil {
		return fmt.Errorf("publish telemetry event: %w", err)
	}
	return nil
}

// Close drains the connection when the sink owns it.
func (s *NATSSink) Close() error {
	if s.closed.Swap(true) || s.conn == nil {
		return nil
	}
	if err := s.conn.Drain(); err != nil {
		s.conn.Close()
		return fmt.Errorf("drain NATS connection: %w", err)
	}
	return nil
}

// #endregion nats-sink
