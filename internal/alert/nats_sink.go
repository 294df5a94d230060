package alert

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/quantpipe/cointegration-pipeline/internal/model"
)

// NATSSink publishes firings as JSON to a NATS subject, giving the
// pipeline a second, independent sink implementation (spec §4.7's
// "optional callback sinks" is plural by design).
type NATSSink struct {
	conn    *nats.Conn
	subject string
}

// NewNATSSink connects to url and returns a sink publishing to subject.
func NewNATSSink(url, subject string) (*NATSSink, error) {
	conn, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("alert: nats sink: %w", err)
	}
	return &NATSSink{conn: conn, subject: subject}, nil
}

func (n *NATSSink) Name() string { return "nats" }

func (n *NATSSink) Deliver(_ context.Context, f model.Firing) error {
	payload, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("alert: marshal firing: %w", err)
	}
	return n.conn.Publish(n.subject, payload)
}

// Close closes the underlying NATS connection (nats.Conn.Close; the
// connection is not drained first).
func (n *NATSSink) Close() {
	n.conn.Close()
}
