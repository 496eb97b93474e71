// Package bus mirrors annotated telemetry packets onto NATS JetStream so
// downstream consumers outside this process can tap the live feed. The
// mirror is optional and best-effort; the core pipeline never depends on it.
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/saviobatista/telemetry-server/internal/tracker"
	"github.com/saviobatista/telemetry-server/internal/types"
)

const (
	SubjectPackets = "telemetry.packets"

	streamName = "TELEMETRY"
)

// Client represents a NATS client
type Client struct {
	conn *nats.Conn
	js   nats.JetStreamContext
}

// New connects to NATS and ensures the telemetry stream exists.
func New(url string) (*Client, error) {
	nc, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to get JetStream context: %w", err)
	}

	_, err = js.AddStream(&nats.StreamConfig{
		Name:     streamName,
		Subjects: []string{SubjectPackets},
		Storage:  nats.FileStorage,
		MaxAge:   24 * time.Hour,
	})
	if err != nil && !strings.Contains(err.Error(), "stream name already in use") {
		nc.Close()
		return nil, fmt.Errorf("failed to create stream: %w", err)
	}

	return &Client{
		conn: nc,
		js:   js,
	}, nil
}

// Publish publishes an annotated packet. It satisfies the ingest mirror
// interface; the tracker result is unused here.
func (c *Client) Publish(_ context.Context, pkt *types.AnnotatedPacket, _ tracker.Result) error {
	data, err := json.Marshal(pkt)
	if err != nil {
		return fmt.Errorf("failed to marshal packet: %w", err)
	}

	if _, err := c.js.Publish(SubjectPackets, data); err != nil {
		return fmt.Errorf("failed to publish packet: %w", err)
	}
	return nil
}

// SubscribePackets subscribes to the mirrored packet feed.
func (c *Client) SubscribePackets(handler func(*types.AnnotatedPacket)) error {
	_, err := c.js.Subscribe(SubjectPackets, func(msg *nats.Msg) {
		var pkt types.AnnotatedPacket
		if err := json.Unmarshal(msg.Data, &pkt); err != nil {
			return
		}
		handler(&pkt)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}
	return nil
}

// Close closes the NATS connection.
func (c *Client) Close() {
	if c.conn != nil {
		c.conn.Close()
	}
}
